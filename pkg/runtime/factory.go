package runtime

import (
	"context"

	"github.com/harun/warden/internal/config"
)

// ExecContext is the expensive per-identity object this runtime builds and
// manages. The runtime never looks inside it; callers type-assert to their
// concrete context.
type ExecContext interface{}

// ReleaseFunc frees the resources acquired while building a context. It is
// invoked exactly once, on the same goroutine that ran the build.
type ReleaseFunc func() error

// Factory constructs a runnable execution context from a per-identity
// configuration. Build must respect ctx cancellation and must be safe to
// cancel before it completes.
type Factory interface {
	Build(ctx context.Context, cfg *config.Config) (ExecContext, ReleaseFunc, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, cfg *config.Config) (ExecContext, ReleaseFunc, error)

func (f FactoryFunc) Build(ctx context.Context, cfg *config.Config) (ExecContext, ReleaseFunc, error) {
	return f(ctx, cfg)
}
