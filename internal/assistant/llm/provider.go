// Package llm provides the language-model layer for the assistant.
//
// The LLM is deliberately kept out of control decisions: intent
// classification is deterministic, permission checks and record mutations
// never consult a model.  What remains for this layer is text generation —
// the chat fallback, knowledge answers, script generation, and document
// analysis — behind one small Completer interface, so every caller is
// indifferent to which upstream provider is configured.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ontime-erp/assistant/common/retry"
)

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (HTTP 429).  Callers should surface a user-visible message and
// must not retry immediately.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// ErrUnknownProvider is returned by the Registry for provider names that
// were never registered.
var ErrUnknownProvider = errors.New("llm: unknown provider")

// Message is a single turn in a model conversation.
type Message struct {
	// Role is "system" or "user".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// Completer generates a text completion for a conversation.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Registry holds the configured providers by name and applies a shared
// retry policy to every call.
type Registry struct {
	providers   map[string]Completer
	defaultName string
	retry       retry.Config
}

// NewRegistry returns an empty Registry with the default retry policy:
// transient failures are retried with backoff, upstream rate limits are not.
func NewRegistry() *Registry {
	cfg := retry.DefaultConfig
	cfg.ShouldRetry = func(err error) bool {
		return !errors.Is(err, ErrRateLimit)
	}
	return &Registry{
		providers: make(map[string]Completer),
		retry:     cfg,
	}
}

// Register adds a named provider.  The first registered provider becomes the
// default until SetDefault overrides it.
func (r *Registry) Register(name string, c Completer) {
	if len(r.providers) == 0 && r.defaultName == "" {
		r.defaultName = name
	}
	r.providers[name] = c
}

// SetDefault selects the provider used when Complete is called with an empty
// provider name.
func (r *Registry) SetDefault(name string) error {
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	r.defaultName = name
	return nil
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Complete runs the conversation against the named provider ("" selects the
// default), retrying transient failures.
func (r *Registry) Complete(ctx context.Context, provider string, messages []Message) (string, error) {
	name := provider
	if name == "" {
		name = r.defaultName
	}
	c, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	var out string
	err := retry.Do(ctx, r.retry, func() error {
		var cerr error
		out, cerr = c.Complete(ctx, messages)
		return cerr
	})
	if err != nil {
		return "", fmt.Errorf("llm: provider %s: %w", name, err)
	}
	return out, nil
}

// Config configures one HTTP provider client.
type Config struct {
	// APIKey authenticates against the upstream API.
	APIKey string
	// BaseURL overrides the API endpoint.  Useful for local models or any
	// other compatible endpoint.
	BaseURL string
	// Model is the chat model to use.
	Model string
	// Timeout is the HTTP request timeout.  Defaults to 30 s.
	Timeout time.Duration
}

const defaultTimeout = 30 * time.Second
