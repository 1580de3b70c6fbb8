package agentctx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/warden/internal/config"
)

type stubProvider struct {
	name    string
	reply   string
	err     error
	calls   atomic.Int64
	lastReq Request
	mu      sync.Mutex
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) Complete(_ context.Context, request Request) (*Reply, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.lastReq = request
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &Reply{
		Content: p.reply,
		Usage:   TokenUsage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (p *stubProvider) lastRequest() Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}

func stubBuilder(providers map[string]Provider) *SharedBuilder {
	b := NewSharedBuilder()
	b.newProviders = func(*config.Config) (map[string]Provider, error) {
		return providers, nil
	}
	return b
}

func TestSharedBuilder_EnsureBuildsOnce(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Default = "anthropic"

	var builds atomic.Int64
	b := NewSharedBuilder()
	b.newProviders = func(*config.Config) (map[string]Provider, error) {
		builds.Add(1)
		return map[string]Provider{"anthropic": &stubProvider{name: "anthropic"}}, nil
	}

	var wg sync.WaitGroup
	results := make([]*Shared, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := b.Ensure(cfg)
			require.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), builds.Load())
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
}

func TestSharedBuilder_FailedBuildRetries(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Default = "anthropic"

	var builds atomic.Int64
	b := NewSharedBuilder()
	b.newProviders = func(*config.Config) (map[string]Provider, error) {
		if builds.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return map[string]Provider{"anthropic": &stubProvider{name: "anthropic"}}, nil
	}

	_, err := b.Ensure(cfg)
	require.Error(t, err)

	s, err := b.Ensure(cfg)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, int64(2), builds.Load())
}

func TestSharedBuilder_NoProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	b := stubBuilder(map[string]Provider{})

	_, err := b.Ensure(cfg)
	assert.ErrorContains(t, err, "no model providers")
}

func TestSharedBuilder_DefaultProviderMissing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Default = "openai"
	b := stubBuilder(map[string]Provider{"anthropic": &stubProvider{name: "anthropic"}})

	_, err := b.Ensure(cfg)
	assert.ErrorContains(t, err, "default provider")
}

func TestShared_ProviderLookup(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Default = "anthropic"
	anthropic := &stubProvider{name: "anthropic"}
	openai := &stubProvider{name: "openai"}
	b := stubBuilder(map[string]Provider{"anthropic": anthropic, "openai": openai})

	s, err := b.Ensure(cfg)
	require.NoError(t, err)

	p, err := s.Provider("")
	require.NoError(t, err)
	assert.Same(t, Provider(anthropic), p)

	p, err = s.Provider("openai")
	require.NoError(t, err)
	assert.Same(t, Provider(openai), p)

	_, err = s.Provider("gemini")
	assert.ErrorContains(t, err, "not configured")
}
