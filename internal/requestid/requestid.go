// Package requestid carries the correlation id through context.Context.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header the id is read from and echoed on.
const Header = "X-Request-ID"

type ctxKey struct{}

// With returns a child context carrying id.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the id stored in ctx, or "-" when there is none.
func From(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return "-"
}

// New generates a fresh id.
func New() string {
	return uuid.NewString()
}
