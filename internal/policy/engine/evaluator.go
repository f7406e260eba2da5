package engine

import "context"

// Session actions understood by the default policy.
const (
	ActionReadSession   = "read_session"
	ActionBook          = "book"
	ActionPay           = "pay"
	ActionViewBookings  = "view_bookings"
	ActionManageAccount = "manage_account"
)

// Input is what a policy sees about a request: the session's context and state, and the requested action.
type Input struct {
	Context          string
	Action           string
	Method           string
	HasIdentity      bool
	ExpiresInSeconds int64
}

// Decision is the policy outcome. Reason is a short machine-readable code.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator decides whether a live session may perform an action.
type Evaluator interface {
	Authorize(ctx context.Context, in Input) (Decision, error)
}
