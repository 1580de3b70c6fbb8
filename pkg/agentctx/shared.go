package agentctx

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/harun/warden/internal/config"
)

// Shared holds the process-wide expensive handles every per-identity context
// references. Built once, guarded by a lock, read-only after construction;
// contexts reference it without copying.
type Shared struct {
	providers       map[string]Provider
	defaultProvider string
}

// Provider returns the named provider, or the default when name is empty.
func (s *Shared) Provider(name string) (Provider, error) {
	if name == "" {
		name = s.defaultProvider
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

// SharedBuilder builds the Shared handles exactly once. Failed builds are
// not cached; a later attempt builds again.
type SharedBuilder struct {
	mu     sync.Mutex
	shared *Shared

	// newProviders is swappable for tests
	newProviders func(cfg *config.Config) (map[string]Provider, error)
}

// NewSharedBuilder creates a builder for the process-wide handles
func NewSharedBuilder() *SharedBuilder {
	return &SharedBuilder{
		newProviders: buildProviders,
	}
}

// Ensure returns the shared handles, building them on first call.
func (b *SharedBuilder) Ensure(cfg *config.Config) (*Shared, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shared != nil {
		return b.shared, nil
	}

	providers, err := b.newProviders(cfg)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no model providers configured")
	}

	defaultProvider := cfg.Providers.Default
	if _, ok := providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q not configured", defaultProvider)
	}

	b.shared = &Shared{
		providers:       providers,
		defaultProvider: defaultProvider,
	}

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	log.Info().Strs("providers", names).Str("default", defaultProvider).Msg("Shared provider handles built")

	return b.shared, nil
}

func buildProviders(cfg *config.Config) (map[string]Provider, error) {
	providers := make(map[string]Provider)

	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		providers["anthropic"] = NewAnthropicProvider(key)
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		providers["openai"] = NewOpenAIProvider(key)
	}

	return providers, nil
}
