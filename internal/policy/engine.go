// Package policy evaluates chat session lifecycle rules with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

// Decisions returned by the lifecycle policy besides "allow".
const (
	DecisionAllow             = "allow"
	DecisionAlreadyClaimed    = "already_claimed"
	DecisionNotAssignee       = "not_assignee"
	DecisionSessionClosed     = "session_closed"
	DecisionInvalidTransition = "invalid_transition"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input describes an attempted lifecycle action.
type Input struct {
	Action        domain.Action
	SessionStatus domain.SessionStatus
	AssignedAdmin string
	ActorID       string
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_lifecycle.decision"),
		rego.Module("chat_lifecycle.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns "allow" or the reason the action is refused.
func (e *Engine) Evaluate(ctx context.Context, in Input) (string, error) {
	input := map[string]interface{}{
		"action": string(in.Action),
		"session": map[string]interface{}{
			"status":   string(in.SessionStatus),
			"admin_id": in.AssignedAdmin,
		},
		"actor": map[string]interface{}{
			"id": in.ActorID,
		},
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionInvalidTransition, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionInvalidTransition, nil
}

// DefaultPolicy encodes the session state machine:
// pending -> active (claim), active -> closed_by_admin | closed_by_visitor,
// pending -> closed_by_visitor, closed_* -> archived.
const DefaultPolicy = `
package chat_lifecycle

has_admin {
	input.session.admin_id != ""
}

open_session {
	input.session.status == "pending"
}

open_session {
	input.session.status == "active"
}

closed {
	input.session.status == "closed_by_admin"
}

closed {
	input.session.status == "closed_by_visitor"
}

terminal {
	closed
}

assignee_action {
	input.action == "reply"
}

assignee_action {
	input.action == "close_by_admin"
}

terminal {
	input.session.status == "archived"
}

allowed {
	input.action == "claim"
	input.session.status == "pending"
	not has_admin
}

allowed {
	input.action == "reply"
	input.session.status == "active"
	input.session.admin_id == input.actor.id
}

allowed {
	input.action == "visitor_message"
	open_session
}

allowed {
	input.action == "close_by_admin"
	input.session.status == "active"
	input.session.admin_id == input.actor.id
}

allowed {
	input.action == "close_by_visitor"
	open_session
}

allowed {
	input.action == "archive"
	closed
}

deny_reason = "session_closed" {
	terminal
	input.action != "archive"
} else = "already_claimed" {
	input.action == "claim"
	has_admin
} else = "not_assignee" {
	assignee_action
	input.session.status == "active"
	input.session.admin_id != input.actor.id
} else = "invalid_transition" {
	true
}

decision = "allow" {
	allowed
}

decision = reason {
	not allowed
	reason := deny_reason
}
`
