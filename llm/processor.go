// Backend request processor - fallback across providers with a sticky
// last-known-good provider.
//
// Information Hiding:
// - Attempt order: sticky provider first, then its fallback chain
// - Whitespace normalization before sending
// - Per-attempt timeout
// - Response parsing and repair
// - Stop-status detection (e.g. 402, 429) that aborts all fallback

package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	jsonutil "github.com/ElectronicaGitHub/agented-io/internal/json"
	"github.com/ElectronicaGitHub/agented-io/internal/telemetry"
	"github.com/ElectronicaGitHub/agented-io/logging"
	"go.opentelemetry.io/otel/attribute"
)

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// DefaultProvider is the initial sticky provider.
	DefaultProvider string
	// Fallbacks maps a provider name to the providers tried after it.
	Fallbacks map[string][]string
	// Timeout bounds a single provider attempt.
	Timeout time.Duration
	// StopStatuses are HTTP statuses that abort the request immediately.
	StopStatuses []int
	LogPrompt    bool
	LogResponse  bool
}

// StatusEvent is reported when a provider answers with a stop status.
type StatusEvent struct {
	Provider  string
	Status    int
	Err       error
	Timestamp time.Time
}

// Response is a parsed provider reply.
type Response struct {
	// Value is the decoded JSON (map[string]any or []any).
	Value    any
	Raw      string
	Provider string
	Model    string
	Usage    *TokenUsage
}

// ProcessorOption configures optional Processor behaviour.
type ProcessorOption func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger logging.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithStatusHook registers a callback for stop-status events.
func WithStatusHook(fn func(StatusEvent)) ProcessorOption {
	return func(p *Processor) {
		p.onStatus = fn
	}
}

// Processor sends prompts to providers in fallback order and parses the
// first usable reply. It is safe for concurrent use.
type Processor struct {
	providers map[string]Provider
	cfg       ProcessorConfig
	logger    logging.Logger
	onStatus  func(StatusEvent)

	mu     sync.Mutex
	sticky string
}

// NewProcessor creates a processor over the given providers, keyed by name.
func NewProcessor(providers map[string]Provider, cfg ProcessorConfig, opts ...ProcessorOption) (*Processor, error) {
	if len(providers) == 0 {
		return nil, errors.New("processor needs at least one provider")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DefaultProvider == "" {
		names := make([]string, 0, len(providers))
		for name := range providers {
			names = append(names, name)
		}
		slices.Sort(names)
		cfg.DefaultProvider = names[0]
	}

	p := &Processor{
		providers: providers,
		cfg:       cfg,
		logger:    logging.NoOpLogger{},
		sticky:    cfg.DefaultProvider,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Sticky returns the provider tried first on the next request.
func (p *Processor) Sticky() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sticky
}

// AttemptOrder returns the providers in the order the next request will try
// them: the sticky provider followed by its fallbacks, without duplicates.
func (p *Processor) AttemptOrder() []string {
	sticky := p.Sticky()
	order := []string{sticky}
	for _, name := range p.cfg.Fallbacks[sticky] {
		if name != "" && !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	return order
}

// Request sends prompt to providers in attempt order and returns the first
// successfully parsed reply. A stop status aborts with *StopRetryError.
func (p *Processor) Request(ctx context.Context, prompt SplitPrompt) (Response, error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.request")
	order := p.AttemptOrder()
	span.SetAttributes(attribute.StringSlice("llm.attempt_order", order))

	var errs []error
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			telemetry.EndSpan(span, err)
			return Response{}, err
		}

		resp, err := p.attempt(ctx, name, prompt)
		if err == nil {
			p.mu.Lock()
			p.sticky = name
			p.mu.Unlock()
			span.SetAttributes(attribute.String("llm.provider", name))
			telemetry.EndSpan(span, nil)
			return resp, nil
		}

		if IsStopRetry(err) {
			p.logger.Warn("llm.provider.stop", "provider", name, "error", err)
			telemetry.EndSpan(span, err)
			return Response{}, err
		}
		p.logger.Warn("llm.provider.failed", "provider", name, "error", err)
		errs = append(errs, err)
	}

	err := fmt.Errorf("%w: %w", ErrNoResponse, errors.Join(errs...))
	telemetry.EndSpan(span, err)
	return Response{}, err
}

func (p *Processor) attempt(ctx context.Context, name string, prompt SplitPrompt) (resp Response, err error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.attempt", attribute.String("llm.provider", name))
	defer func() { telemetry.EndSpan(span, err) }()

	provider, ok := p.providers[name]
	if !ok {
		return Response{}, &ProviderError{Provider: name, Err: errors.New("unsupported provider")}
	}

	cleaned := SplitPrompt{
		Cacheable:    CleanWhitespace(prompt.Cacheable),
		NonCacheable: CleanWhitespace(prompt.NonCacheable),
	}
	p.logger.Debug("llm.request.sent", "provider", name,
		"length", len(cleaned.Cacheable)+len(cleaned.NonCacheable),
		"removed", len(prompt.Cacheable)+len(prompt.NonCacheable)-len(cleaned.Cacheable)-len(cleaned.NonCacheable))
	if p.cfg.LogPrompt {
		p.logger.Info("llm.prompt", "provider", name, "cacheable", cleaned.Cacheable, "non_cacheable", cleaned.NonCacheable)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	result, callErr := provider.SendChatMessage(callCtx, cleaned, "")

	status := result.HTTPStatus
	if status == 0 {
		status = StatusCode(callErr)
	}
	if status != 0 && slices.Contains(p.cfg.StopStatuses, status) {
		p.reportStatus(name, status, callErr)
		return Response{}, &StopRetryError{Provider: name, Status: status, Err: callErr}
	}

	if callErr != nil {
		if errors.Is(callErr, context.DeadlineExceeded) && ctx.Err() == nil {
			callErr = fmt.Errorf("LLM %s request timeout after %s: %w", name, p.cfg.Timeout, callErr)
		}
		return Response{}, &ProviderError{Provider: name, Err: callErr}
	}
	if result.Text == "" {
		return Response{}, &ProviderError{Provider: name, Err: errors.New("empty response from LLM")}
	}
	if p.cfg.LogResponse {
		p.logger.Info("llm.response", "provider", name, "text", result.Text)
	}

	value, parseErr := jsonutil.Parse(result.Text)
	if parseErr != nil {
		return Response{}, &ProviderError{Provider: name, Err: parseErr}
	}

	return Response{
		Value:    value,
		Raw:      result.Text,
		Provider: name,
		Model:    provider.Model(),
		Usage:    result.Usage,
	}, nil
}

func (p *Processor) reportStatus(name string, status int, err error) {
	if p.onStatus == nil {
		return
	}
	p.onStatus(StatusEvent{Provider: name, Status: status, Err: err, Timestamp: time.Now()})
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanWhitespace collapses a prompt onto a single line: newlines and tabs
// become spaces, carriage returns are removed, runs of whitespace collapse
// to one space and the result is trimmed.
func CleanWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
