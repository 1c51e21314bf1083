package testutil

import (
	"context"

	"github.com/rankgate/rankgate/internal/types"
)

// SetupContext returns a context tagged with test request/user ids, the
// way service tests seed their own.
func SetupContext() context.Context {
	ctx := context.Background()
	ctx = types.WithUserID(ctx, "user_test")
	ctx = types.WithRequestID(ctx, types.GenerateUUID())
	return ctx
}
