package agentctx

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/pkg/transcript"
)

// AgentContext is the per-identity execution context. It carries the derived
// configuration for its identity, references the process-wide Shared handles,
// and records every exchange in the identity's transcript.
type AgentContext struct {
	id       string
	identity string
	cfg      *config.Config
	shared   *Shared
	store    *transcript.Store
	logger   zerolog.Logger

	mu      sync.Mutex
	history []Message
	closed  bool
}

func newAgentContext(cfg *config.Config, shared *Shared, store *transcript.Store) (*AgentContext, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate context id: %w", err)
	}

	ac := &AgentContext{
		id:       id,
		identity: cfg.Identity,
		cfg:      cfg,
		shared:   shared,
		store:    store,
		logger:   log.With().Str("component", "agentctx").Str("context_id", id).Str("identity", cfg.Identity).Logger(),
	}

	if store != nil {
		entries, err := store.Load(context.Background(), cfg.Identity)
		if err != nil {
			return nil, fmt.Errorf("failed to load transcript for %s: %w", cfg.Identity, err)
		}
		for _, e := range entries {
			ac.history = append(ac.history, Message{Role: e.Message.Role, Content: e.Message.Content})
		}
	}

	ac.logger.Debug().Int("history", len(ac.history)).Msg("Agent context created")
	return ac, nil
}

// ID returns the unique instance id of this context.
func (c *AgentContext) ID() string {
	return c.id
}

// Identity returns the identity this context serves.
func (c *AgentContext) Identity() string {
	return c.identity
}

// Config returns the derived per-identity configuration.
func (c *AgentContext) Config() *config.Config {
	return c.cfg
}

// History returns a copy of the conversation so far.
func (c *AgentContext) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// Complete sends the user input to the configured provider along with the
// accumulated conversation, records both turns in the transcript, and
// returns the reply.
func (c *AgentContext) Complete(ctx context.Context, input string) (*Reply, error) {
	provider, err := c.shared.Provider(c.cfg.Providers.Default)
	if err != nil {
		return nil, err
	}

	// Snapshot the history under the lock; the provider call itself runs
	// unlocked so concurrent operations on this context are not serialized
	// behind the network round trip.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("context %s is closed", c.id)
	}
	messages := make([]Message, 0, len(c.history)+1)
	messages = append(messages, c.history...)
	messages = append(messages, Message{Role: "user", Content: input})
	c.mu.Unlock()

	providerCfg := c.providerConfig(provider.Name())

	reply, err := provider.Complete(ctx, Request{
		Model:     providerCfg.Model,
		MaxTokens: providerCfg.MaxTokens,
		Messages:  messages,
	})
	if err != nil {
		return nil, fmt.Errorf("completion failed for %s: %w", c.identity, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("context %s is closed", c.id)
	}
	c.history = append(c.history,
		Message{Role: "user", Content: input},
		Message{Role: "assistant", Content: reply.Content},
	)
	c.mu.Unlock()

	if c.store != nil {
		now := time.Now()
		if err := c.store.Append(ctx, c.identity, transcript.Message{Role: "user", Content: input, Timestamp: now}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record user turn")
		}
		if err := c.store.Append(ctx, c.identity, transcript.Message{Role: "assistant", Content: reply.Content, Timestamp: time.Now()}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record assistant turn")
		}
	}

	c.logger.Debug().
		Str("provider", provider.Name()).
		Int("input_tokens", reply.Usage.InputTokens).
		Int("output_tokens", reply.Usage.OutputTokens).
		Msg("Completion finished")

	return reply, nil
}

func (c *AgentContext) providerConfig(name string) config.ProviderConfig {
	switch name {
	case "openai":
		return c.cfg.Providers.OpenAI
	default:
		return c.cfg.Providers.Anthropic
	}
}

// Close releases the context. Safe to call more than once.
func (c *AgentContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.history = nil
	c.logger.Debug().Msg("Agent context closed")
	return nil
}
