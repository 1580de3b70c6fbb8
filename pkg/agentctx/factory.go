package agentctx

import (
	"context"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/pkg/runtime"
	"github.com/harun/warden/pkg/transcript"
)

// Factory builds per-identity agent contexts for the runtime. All contexts
// it builds reference the same Shared handles.
type Factory struct {
	builder *SharedBuilder
	store   *transcript.Store
}

// NewFactory creates a factory backed by the given transcript store.
// A nil store disables transcript recording.
func NewFactory(store *transcript.Store) *Factory {
	return &Factory{
		builder: NewSharedBuilder(),
		store:   store,
	}
}

// Build implements runtime.Factory.
func (f *Factory) Build(ctx context.Context, cfg *config.Config) (runtime.ExecContext, runtime.ReleaseFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	shared, err := f.builder.Ensure(cfg)
	if err != nil {
		return nil, nil, err
	}

	ac, err := newAgentContext(cfg, shared, f.store)
	if err != nil {
		return nil, nil, err
	}

	return ac, ac.Close, nil
}
