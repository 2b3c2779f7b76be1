package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/secmon-lab/orthrus/pkg/domain/interfaces"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
)

// fakeNotifier records dispatches. Dispatch runs on background goroutines,
// so tests wait on the signal channel before asserting.
type fakeNotifier struct {
	mu             sync.Mutex
	transitions    []*interfaces.TransitionOutcome
	communications []string
	warned         []types.ConversationID
	archived       []types.ConversationID
	dispatched     chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		dispatched: make(chan struct{}, 32),
	}
}

func (f *fakeNotifier) NotifyTransition(ctx context.Context, outcome *interfaces.TransitionOutcome) error {
	f.mu.Lock()
	f.transitions = append(f.transitions, outcome)
	f.mu.Unlock()
	f.dispatched <- struct{}{}
	return nil
}

func (f *fakeNotifier) NotifyCommunication(ctx context.Context, conv *model.Conversation, body string, eventTime time.Time) error {
	f.mu.Lock()
	f.communications = append(f.communications, body)
	f.mu.Unlock()
	f.dispatched <- struct{}{}
	return nil
}

func (f *fakeNotifier) Warn(ctx context.Context, conv *model.Conversation, archiveAt time.Time) error {
	f.mu.Lock()
	f.warned = append(f.warned, conv.ID)
	f.mu.Unlock()
	f.dispatched <- struct{}{}
	return nil
}

func (f *fakeNotifier) Archive(ctx context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	f.archived = append(f.archived, conv.ID)
	f.mu.Unlock()
	f.dispatched <- struct{}{}
	return nil
}

// waitDispatches blocks until n dispatches completed
func (f *fakeNotifier) waitDispatches(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.dispatched:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}
}

// settle gives stray dispatches a moment to land before counting
func (f *fakeNotifier) settle() {
	time.Sleep(50 * time.Millisecond)
}

func (f *fakeNotifier) transitionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transitions)
}

func (f *fakeNotifier) communicationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.communications)
}
