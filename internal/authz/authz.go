// Package authz implements the Authorizer Client: a bounded HTTP client to
// the external authorization service, offering batch permission checks and
// full-enumeration lookups with a fail-closed-empty error policy.
package authz

import (
	"context"
	"time"
)

// Client is the Authorizer Client contract.
type Client interface {
	// CheckBatch returns the subset of eventIDs userID may see. Empty
	// input yields empty output without a round-trip. On deadline
	// expiry or any connection/server error, it returns an empty set
	// together with a non-nil diagnostic error; callers treat that as
	// "authorized nothing" — fail-closed, never a hard failure.
	CheckBatch(ctx context.Context, eventIDs []string, userID string, deadline time.Duration) (authorizedIDs map[string]struct{}, err error)

	// EnumerateForUser returns the full allowed set for a user, used by
	// the query-less fast path. Same fail-closed-empty policy.
	EnumerateForUser(ctx context.Context, userID string, deadline time.Duration) (eventIDs []string, err error)
}
