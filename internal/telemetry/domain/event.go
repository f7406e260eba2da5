package domain

import (
	"encoding/json"
	"time"
)

// Event is one verification or session lifecycle event. Identifier is always masked; codes and tokens never
// appear in events.
type Event struct {
	ID         string          `json:"id"`
	EventType  string          `json:"eventType"`
	Source     string          `json:"source"`
	Context    string          `json:"context,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
	Method     string          `json:"method,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Event types.
const (
	TypeOTPIssued       = "otp_issued"
	TypeOTPRateLimited  = "otp_rate_limited"
	TypeOTPVerified     = "otp_verified"
	TypeOTPRejected     = "otp_rejected"
	TypeSessionMinted   = "session_minted"
	TypeSessionPromoted = "session_promoted"
	TypeSessionCleared  = "session_cleared"
	TypeDeliveryFailed  = "delivery_failed"
	TypeHTTPRequest     = "http_request"
)
