package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rancherdx/pawfect-livechat/internal/domain"
)

func TestDefaultPolicyDecisions(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	cases := []struct {
		name string
		in   Input
		want string
	}{
		{"claim pending", Input{Action: domain.ActionClaim, SessionStatus: domain.SessionStatusPending, ActorID: "a1"}, DecisionAllow},
		{"claim claimed", Input{Action: domain.ActionClaim, SessionStatus: domain.SessionStatusActive, AssignedAdmin: "a1", ActorID: "a2"}, DecisionAlreadyClaimed},
		{"claim closed", Input{Action: domain.ActionClaim, SessionStatus: domain.SessionStatusClosedByAdmin, AssignedAdmin: "a1", ActorID: "a2"}, DecisionSessionClosed},
		{"reply assignee", Input{Action: domain.ActionReply, SessionStatus: domain.SessionStatusActive, AssignedAdmin: "a1", ActorID: "a1"}, DecisionAllow},
		{"reply other admin", Input{Action: domain.ActionReply, SessionStatus: domain.SessionStatusActive, AssignedAdmin: "a1", ActorID: "a2"}, DecisionNotAssignee},
		{"reply unclaimed", Input{Action: domain.ActionReply, SessionStatus: domain.SessionStatusPending, ActorID: "a1"}, DecisionInvalidTransition},
		{"reply archived", Input{Action: domain.ActionReply, SessionStatus: domain.SessionStatusArchived, AssignedAdmin: "a1", ActorID: "a1"}, DecisionSessionClosed},
		{"visitor writes pending", Input{Action: domain.ActionVisitorMessage, SessionStatus: domain.SessionStatusPending, ActorID: "v1"}, DecisionAllow},
		{"visitor writes closed", Input{Action: domain.ActionVisitorMessage, SessionStatus: domain.SessionStatusClosedByVisitor, ActorID: "v1"}, DecisionSessionClosed},
		{"admin closes own", Input{Action: domain.ActionCloseByAdmin, SessionStatus: domain.SessionStatusActive, AssignedAdmin: "a1", ActorID: "a1"}, DecisionAllow},
		{"admin closes other", Input{Action: domain.ActionCloseByAdmin, SessionStatus: domain.SessionStatusActive, AssignedAdmin: "a1", ActorID: "a2"}, DecisionNotAssignee},
		{"admin closes pending", Input{Action: domain.ActionCloseByAdmin, SessionStatus: domain.SessionStatusPending, ActorID: "a1"}, DecisionInvalidTransition},
		{"visitor leaves pending", Input{Action: domain.ActionCloseByVisitor, SessionStatus: domain.SessionStatusPending, ActorID: "v1"}, DecisionAllow},
		{"archive closed", Input{Action: domain.ActionArchive, SessionStatus: domain.SessionStatusClosedByAdmin, AssignedAdmin: "a1", ActorID: "a2"}, DecisionAllow},
		{"archive active", Input{Action: domain.ActionArchive, SessionStatus: domain.SessionStatusActive, AssignedAdmin: "a1", ActorID: "a1"}, DecisionInvalidTransition},
		{"archive archived", Input{Action: domain.ActionArchive, SessionStatus: domain.SessionStatusArchived, ActorID: "a1"}, DecisionInvalidTransition},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Evaluate(ctx, tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewEngineRejectsBrokenPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package chat_lifecycle\n decision = {")
	assert.Error(t, err)
}
