// Agent processing pipeline.
//
// Information Hiding:
// - Context polyfill and loop guard hidden
// - Prompt assembly (history text, children status, mixins) hidden
// - Backend retry policy hidden

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ElectronicaGitHub/agented-io/internal/telemetry"
	"github.com/ElectronicaGitHub/agented-io/llm"
	"github.com/ElectronicaGitHub/agented-io/model"
	"github.com/ElectronicaGitHub/agented-io/prompt"
)

// childStatusMessages is the number of recent messages shown per child in
// the children status summary.
const childStatusMessages = 3

// maxRetryInterval caps the delay between backend attempts.
const maxRetryInterval = time.Minute

// decision is a validated backend reply.
type decision struct {
	response model.UnifiedResponse
	usage    *model.Usage
}

// processItem is the queue handler. Returned errors move the agent to
// ERROR unless ctx was cancelled first. The work timer cancels the item
// with a *TimeoutError, which is then returned in place of whatever the
// pass ended with.
func (a *Agent) processItem(ctx context.Context, item model.WorkItem) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "agent.process",
		attribute.String("agent.name", a.Name()),
		attribute.String("agent.sender", item.Sender),
		attribute.String("agent.item_type", string(item.Type)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	a.mu.Lock()
	last := item
	a.lastItem = &last
	a.active = a.submitted
	a.cancelItem = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.cancelItem = nil
		a.mu.Unlock()

		var timeout *TimeoutError
		if errors.As(context.Cause(ctx), &timeout) {
			err = timeout
		}
	}()

	a.setStatus(model.StatusWorking, "")
	a.startWorkTimer()

	if err := a.enterFlow(item); err != nil {
		return err
	}

	mixins, err := a.runMixins(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	if item.Text != "" {
		if err := a.appendHistory(ctx, model.FromWorkItem(item)); err != nil {
			return fmt.Errorf("failed to record work item: %w", err)
		}
	}

	history, err := a.history(ctx)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	status, err := a.childrenStatus(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.ctx[model.CtxMessages] = history
	a.mu.Unlock()

	rendered := prompt.Render(a.basePrompt, prompt.DynamicVars{
		ChatHistory:    historyText(history, a.config.HistoryWindow),
		LastInput:      item.Text,
		MixinsResult:   mixins,
		ChildrenStatus: status,
	}.Vars())
	split := llm.Split(rendered)

	a.mu.Lock()
	a.splitPrompt = split
	a.mu.Unlock()

	d, err := a.request(ctx, split)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	return a.dispatch(ctx, item, d)
}

// enterFlow applies the context polyfill and the loop guard.
func (a *Agent) enterFlow(item model.WorkItem) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx = a.ctx.Merge(map[string]any{
		model.CtxInputText: item.Text,
		model.CtxSender:    item.Sender,
		model.CtxAgentName: a.Name(),
	})

	a.flowLength++
	if limit := a.config.MaxFlowLength; limit > 0 && a.flowLength > limit {
		return &LoopGuardError{Agent: a.Name(), Limit: limit}
	}
	return nil
}

func (a *Agent) runMixins(ctx context.Context) (string, error) {
	if len(a.mixins) == 0 {
		return "", nil
	}
	agentCtx := a.Context()
	outputs := make([]string, 0, len(a.mixins))
	for _, mixin := range a.mixins {
		out, err := mixin(ctx, agentCtx)
		if err != nil {
			return "", fmt.Errorf("mixin failed: %w", err)
		}
		outputs = append(outputs, out)
	}
	return strings.Join(outputs, "\n"), nil
}

// request calls the backend with bounded retries. Stop statuses and
// cancellation end the loop at once.
func (a *Agent) request(ctx context.Context, split llm.SplitPrompt) (decision, error) {
	multiplier := a.config.RetryMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     a.config.RetryDelay,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         maxRetryInterval,
	}
	tries := a.config.MaxRetries
	if tries < 1 {
		tries = 1
	}

	operation := func() (decision, error) {
		resp, err := a.tree.backend.Request(ctx, split)
		if err != nil {
			if llm.IsStopRetry(err) || ctx.Err() != nil {
				return decision{}, backoff.Permanent(err)
			}
			return decision{}, err
		}

		decoded, err := model.DecodeResponse(resp.Value)
		if err != nil {
			return decision{}, &ShapeError{Agent: a.Name(), Raw: resp.Raw, Err: err}
		}
		return decision{response: decoded, usage: usageOf(resp)}, nil
	}

	d, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.logger.Warn("agent.request.retry", "error", err, "next", next)
		}),
	)
	if err != nil {
		// The last attempt returns permanent errors still wrapped.
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return decision{}, err
	}
	return d, nil
}

func usageOf(resp llm.Response) *model.Usage {
	if resp.Usage == nil {
		return nil
	}
	return &model.Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		CachedTokens: int(resp.Usage.CachedTokens),
		Model:        resp.Model,
		Provider:     resp.Provider,
	}
}

// historyText renders the last n messages as "sender: text" lines.
func historyText(msgs []model.Message, n int) string {
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Sender+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}

// childrenStatus summarizes every child with its status and recent activity.
func (a *Agent) childrenStatus(ctx context.Context) (string, error) {
	if len(a.children) == 0 {
		return "No child agents available.", nil
	}

	blocks := make([]string, 0, len(a.children))
	for _, child := range a.children {
		msgs, err := child.history(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read history of %s: %w", child.Name(), err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s:\n  Status: %s\n  Recent activity:\n", child.Name(), child.Status())
		if len(msgs) == 0 {
			b.WriteString("  No recent messages")
		} else {
			if len(msgs) > childStatusMessages {
				msgs = msgs[len(msgs)-childStatusMessages:]
			}
			lines := make([]string, 0, len(msgs))
			for _, m := range msgs {
				lines = append(lines, "  "+m.Sender+": "+m.Text)
			}
			b.WriteString(strings.Join(lines, "\n"))
		}
		blocks = append(blocks, b.String())
	}
	return "Child Agents Status:\n" + strings.Join(blocks, "\n\n"), nil
}
