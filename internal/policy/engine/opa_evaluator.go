// Package engine evaluates session access policies written in Rego.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

const policyQuery = "data.bookinggate.session_access"

// Default Rego policy. A custom policy must declare the same package and define allow and reason.
const defaultRegoPolicy = `package bookinggate.session_access

default allow := false

default reason := "action_not_permitted"

open_actions := {"read_session", "book"}

identity_actions := {"view_bookings", "manage_account"}

allow if input.action in open_actions

allow if {
	input.action == "pay"
	input.context != "assistant"
}

allow if {
	input.action in identity_actions
	input.context == "portal"
	input.session.has_identity
}

reason := "ok" if allow

reason := "identity_required" if {
	not allow
	input.action in identity_actions
	input.context == "portal"
	not input.session.has_identity
}

reason := "context_not_permitted" if {
	not allow
	input.action == "pay"
	input.context == "assistant"
}
`

// OPAEvaluator evaluates session access with a prepared Rego query.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy, or the built-in policy when policy is empty, and verifies it answers.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	pq, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("session_access.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	e := &OPAEvaluator{query: pq}
	if err := e.HealthCheck(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// NewOPAEvaluatorFromFile loads the policy from path; an empty path selects the built-in policy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(src))
}

// HealthCheck evaluates a minimal request against the loaded policy. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Authorize(ctx, Input{Context: "booking", Action: ActionReadSession})
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	return nil
}

// Authorize evaluates the policy for in. A policy that yields no allow value denies; one without a reason rule
// gets "ok" or "action_not_permitted".
func (e *OPAEvaluator) Authorize(ctx context.Context, in Input) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return Decision{Reason: "policy_error"}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{Reason: "policy_error"}, fmt.Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Reason: "policy_error"}, fmt.Errorf("policy result is %T, want object", rs[0].Expressions[0].Value)
	}
	out := Decision{Reason: "action_not_permitted"}
	if v, ok := doc["allow"].(bool); ok {
		out.Allowed = v
	}
	if v, ok := doc["reason"].(string); ok && v != "" {
		out.Reason = v
	} else if out.Allowed {
		out.Reason = "ok"
	}
	return out, nil
}

func buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"context": in.Context,
		"action":  in.Action,
		"session": map[string]interface{}{
			"method":             in.Method,
			"has_identity":       in.HasIdentity,
			"expires_in_seconds": in.ExpiresInSeconds,
		},
	}
}
