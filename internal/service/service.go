// Package service implements the chat session lifecycle and message log.
package service

import (
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/rancherdx/pawfect-livechat/internal/metrics"
	"github.com/rancherdx/pawfect-livechat/internal/policy"
	"github.com/rancherdx/pawfect-livechat/internal/protocol"
	"github.com/rancherdx/pawfect-livechat/internal/repository"
)

// MaxMessageLength bounds message_text in runes.
const MaxMessageLength = 4000

// Notifier fans events out to connected clients.
type Notifier interface {
	BroadcastAdmins(env protocol.Envelope) error
	SendToVisitor(visitorID string, env protocol.Envelope) error
}

type Service struct {
	store        store.Store
	policyEngine *policy.Engine
	notifier     Notifier
	metrics      *metrics.Metrics
	logger       *zap.Logger
	sanitizer    *bluemonday.Policy
	now          func() time.Time
}

func New(store store.Store, policyEngine *policy.Engine, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		policyEngine: policyEngine,
		notifier:     notifier,
		metrics:      m,
		logger:       logger,
		sanitizer:    bluemonday.UGCPolicy(),
		now:          time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}
