// Package llm renders prompts and runs them through the configured chat
// model, with optional per-call model and API-key overrides.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/kbrag-go/internal/budget"
	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/provider"
)

// ChatModel is the part of an eino chat model the generator needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Builder constructs a chat model from a provider configuration.
type Builder func(ctx context.Context, cfg *provider.Config) (ChatModel, error)

// Overrides customise a single Generate call. Empty fields keep the
// process-wide defaults.
type Overrides struct {
	Model  string
	APIKey string
}

func (o Overrides) empty() bool { return o.Model == "" && o.APIKey == "" }

// GenerationError reports a failed model call.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm: generation with %s failed: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Options tune a Generator.
type Options struct {
	// Builder defaults to provider.New.
	Builder Builder
	// MaxContextTokens is the prompt size above which a warning is logged.
	// Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Generator sends prompts to the configured chat model.
//
// The default configuration is copied at construction and never modified.
// A call with overrides builds a one-off model from a derived copy, so an
// override can never leak into later calls, whether or not the call fails.
type Generator struct {
	base      provider.Config
	build     Builder
	maxTokens int

	mu       sync.Mutex
	defaultM ChatModel
}

// NewGenerator returns a Generator for cfg. The default model is built on
// first use, so a missing default credential only fails calls that do not
// supply their own.
func NewGenerator(cfg *provider.Config, opts *Options) *Generator {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Builder == nil {
		o.Builder = func(ctx context.Context, c *provider.Config) (ChatModel, error) {
			return provider.New(ctx, c)
		}
	}
	if o.MaxContextTokens <= 0 {
		o.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &Generator{base: *cfg, build: o.Builder, maxTokens: o.MaxContextTokens}
}

// ModelName reports the model a call with o would use.
func (g *Generator) ModelName(o Overrides) string {
	cfg := g.base.WithOverrides(o.Model, o.APIKey)
	return cfg.ModelName()
}

// Generate sends prompt as a single user message and returns the reply
// text. Failures are returned as *GenerationError.
func (g *Generator) Generate(ctx context.Context, prompt string, o Overrides) (string, error) {
	log := logging.FromContext(ctx)
	modelName := g.ModelName(o)

	cm, err := g.model(ctx, o)
	if err != nil {
		return "", &GenerationError{Model: modelName, Err: err}
	}

	msgs := []*schema.Message{schema.UserMessage(prompt)}
	report := budget.Check(msgs, g.maxTokens)
	if report.Over() {
		log.Warn("llm: prompt exceeds context budget",
			slog.Int("estimated_tokens", report.Tokens),
			slog.Int("max_tokens", report.Max),
		)
	}

	start := time.Now()
	reply, err := cm.Generate(ctx, msgs)
	if err != nil {
		return "", &GenerationError{Model: modelName, Err: err}
	}
	if reply == nil {
		return "", &GenerationError{Model: modelName, Err: fmt.Errorf("empty reply")}
	}

	log.Debug("llm: generation complete",
		slog.String("model", modelName),
		slog.Bool("override", !o.empty()),
		slog.Int("prompt_tokens_est", report.Tokens),
		slog.Duration("duration", time.Since(start)),
	)
	return reply.Content, nil
}

// Ping builds the default model, verifying the default configuration.
func (g *Generator) Ping(ctx context.Context) error {
	_, err := g.model(ctx, Overrides{})
	return err
}

func (g *Generator) model(ctx context.Context, o Overrides) (ChatModel, error) {
	if !o.empty() {
		cfg := g.base.WithOverrides(o.Model, o.APIKey)
		return g.build(ctx, &cfg)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.defaultM != nil {
		return g.defaultM, nil
	}
	cfg := g.base
	cm, err := g.build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	g.defaultM = cm
	return cm, nil
}
