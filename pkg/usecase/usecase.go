package usecase

import (
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/service/slack"
)

// DefaultDedupWindow is the time bucket for collapsing duplicate deliveries
const DefaultDedupWindow = 5 * time.Minute

type UseCases struct {
	repo        interfaces.Repository
	notifier    slack.Service
	dedupWindow time.Duration
	now         func() time.Time

	Mapping *MappingUseCase
	Sync    *SyncUseCase
}

type Option func(*UseCases)

// WithNotifier sets the chat transport for outbound dispatches. Without it
// the engine records transitions silently.
func WithNotifier(svc slack.Service) Option {
	return func(uc *UseCases) {
		uc.notifier = svc
	}
}

// WithDedupWindow overrides the dedup time bucket
func WithDedupWindow(window time.Duration) Option {
	return func(uc *UseCases) {
		uc.dedupWindow = window
	}
}

// WithNow overrides the clock, for tests
func WithNow(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:        repo,
		dedupWindow: DefaultDedupWindow,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Mapping = NewMappingUseCase(repo, uc.now)
	uc.Sync = NewSyncUseCase(repo, uc.notifier, uc.dedupWindow)

	return uc
}
