package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/rankgate/rankgate/internal/authz"
	ierr "github.com/rankgate/rankgate/internal/errors"
)

// InMemoryAuthorizer is a deterministic stand-in for the external
// authorization service. Per-user allowed sets are seeded directly; it
// also supports forcing individual batch-check calls to fail, for testing
// the fail-closed-empty policy.
type InMemoryAuthorizer struct {
	mu      sync.Mutex
	allowed map[string]map[string]struct{}

	// FailForIDs, when non-empty, makes CheckBatch fail (return an
	// error alongside an empty set) whenever the batch contains any of
	// these ids.
	FailForIDs map[string]struct{}

	BatchCheckCalls int
}

func NewInMemoryAuthorizer() *InMemoryAuthorizer {
	return &InMemoryAuthorizer{allowed: make(map[string]map[string]struct{})}
}

// Allow grants userID access to the given event ids.
func (a *InMemoryAuthorizer) Allow(userID string, eventIDs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.allowed[userID]
	if !ok {
		set = make(map[string]struct{})
		a.allowed[userID] = set
	}
	for _, id := range eventIDs {
		set[id] = struct{}{}
	}
}

func (a *InMemoryAuthorizer) CheckBatch(ctx context.Context, eventIDs []string, userID string, deadline time.Duration) (map[string]struct{}, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.BatchCheckCalls++

	if len(eventIDs) == 0 {
		return map[string]struct{}{}, nil
	}

	for _, id := range eventIDs {
		if _, fail := a.FailForIDs[id]; fail {
			return map[string]struct{}{}, ierr.New(ierr.ErrCodeAuthTransient, "simulated authorization failure")
		}
	}

	userAllowed := a.allowed[userID]
	out := make(map[string]struct{})
	for _, id := range eventIDs {
		if _, ok := userAllowed[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (a *InMemoryAuthorizer) EnumerateForUser(ctx context.Context, userID string, deadline time.Duration) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ids []string
	for id := range a.allowed[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ authz.Client = (*InMemoryAuthorizer)(nil)
