package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	reply func(ctx context.Context, prompt SplitPrompt) (Result, error)

	mu      sync.Mutex
	calls   int
	prompts []SplitPrompt
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return f.name + "-model" }

func (f *fakeProvider) SendChatMessage(ctx context.Context, prompt SplitPrompt, _ string) (Result, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(ctx, prompt)
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type statusError struct{ code int }

func (e statusError) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusError) HTTPStatus() int { return e.code }

func replyText(text string) func(context.Context, SplitPrompt) (Result, error) {
	return func(context.Context, SplitPrompt) (Result, error) {
		return Result{Text: text}, nil
	}
}

func replyErr(err error) func(context.Context, SplitPrompt) (Result, error) {
	return func(context.Context, SplitPrompt) (Result, error) {
		return Result{}, err
	}
}

const okReply = `{"actions":[{"type":"text","text":"hi"}],"finished":true}`

func newTestProcessor(t *testing.T, providers map[string]Provider, opts ...ProcessorOption) *Processor {
	t.Helper()
	p, err := NewProcessor(providers, ProcessorConfig{
		DefaultProvider: "a",
		Fallbacks: map[string][]string{
			"a": {"b", "c"},
			"b": {"c", "b", "a"},
			"c": {"a"},
		},
		Timeout:      time.Second,
		StopStatuses: []int{402, 429},
	}, opts...)
	require.NoError(t, err)
	return p
}

func TestProcessorFallbackAndSticky(t *testing.T) {
	a := &fakeProvider{name: "a", reply: replyErr(errors.New("boom"))}
	b := &fakeProvider{name: "b", reply: replyText(okReply)}
	c := &fakeProvider{name: "c", reply: replyText(okReply)}
	p := newTestProcessor(t, map[string]Provider{"a": a, "b": b, "c": c})

	assert.Equal(t, []string{"a", "b", "c"}, p.AttemptOrder())

	resp, err := p.Request(context.Background(), SplitPrompt{Cacheable: "x"})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Provider)
	assert.Equal(t, "b-model", resp.Model)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, 0, c.Calls())

	assert.Equal(t, "b", p.Sticky())
	assert.Equal(t, []string{"b", "c", "a"}, p.AttemptOrder())

	_, err = p.Request(context.Background(), SplitPrompt{Cacheable: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Calls(), "sticky provider should be tried first")
	assert.Equal(t, 2, b.Calls())
}

func TestProcessorStopStatusFromError(t *testing.T) {
	a := &fakeProvider{name: "a", reply: replyErr(statusError{code: 429})}
	b := &fakeProvider{name: "b", reply: replyText(okReply)}

	var events []StatusEvent
	p := newTestProcessor(t, map[string]Provider{"a": a, "b": b}, WithStatusHook(func(ev StatusEvent) {
		events = append(events, ev)
	}))

	_, err := p.Request(context.Background(), SplitPrompt{Cacheable: "x"})
	require.Error(t, err)

	var stop *StopRetryError
	require.True(t, errors.As(err, &stop))
	assert.Equal(t, 429, stop.Status)
	assert.Equal(t, "a", stop.Provider)
	assert.Equal(t, 0, b.Calls(), "no fallback after a stop status")
	require.Len(t, events, 1)
	assert.Equal(t, 429, events[0].Status)
	assert.Equal(t, "a", p.Sticky())
}

func TestProcessorStopStatusFromResult(t *testing.T) {
	a := &fakeProvider{name: "a", reply: func(context.Context, SplitPrompt) (Result, error) {
		return Result{HTTPStatus: 402}, nil
	}}
	b := &fakeProvider{name: "b", reply: replyText(okReply)}
	p := newTestProcessor(t, map[string]Provider{"a": a, "b": b})

	_, err := p.Request(context.Background(), SplitPrompt{Cacheable: "x"})
	assert.True(t, IsStopRetry(err))
	assert.Equal(t, 0, b.Calls())
}

func TestProcessorNonStopStatusFallsBack(t *testing.T) {
	a := &fakeProvider{name: "a", reply: replyErr(statusError{code: 500})}
	b := &fakeProvider{name: "b", reply: replyText(okReply)}
	p := newTestProcessor(t, map[string]Provider{"a": a, "b": b})

	resp, err := p.Request(context.Background(), SplitPrompt{Cacheable: "x"})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Provider)
}

func TestProcessorParseFailuresFallBack(t *testing.T) {
	a := &fakeProvider{name: "a", reply: replyText("I cannot answer in JSON today")}
	b := &fakeProvider{name: "b", reply: replyText("")}
	c := &fakeProvider{name: "c", reply: replyText("Sure!\n```json\n{\"actions\": [{\"type\": \"text\", \"text\": \"hi\"}], \"finished\": true,}\n```")}
	p := newTestProcessor(t, map[string]Provider{"a": a, "b": b, "c": c})

	resp, err := p.Request(context.Background(), SplitPrompt{Cacheable: "x"})
	require.NoError(t, err)
	assert.Equal(t, "c", resp.Provider)

	obj, ok := resp.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, obj["finished"])
}

func TestProcessorAllFail(t *testing.T) {
	a := &fakeProvider{name: "a", reply: replyErr(errors.New("down"))}
	b := &fakeProvider{name: "b", reply: replyText("garbage")}
	p := newTestProcessor(t, map[string]Provider{"a": a, "b": b})

	_, err := p.Request(context.Background(), SplitPrompt{Cacheable: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoResponse))

	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
}

func TestProcessorAttemptTimeout(t *testing.T) {
	a := &fakeProvider{name: "a", reply: func(ctx context.Context, _ SplitPrompt) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}}
	b := &fakeProvider{name: "b", reply: replyText(okReply)}

	p, err := NewProcessor(map[string]Provider{"a": a, "b": b}, ProcessorConfig{
		DefaultProvider: "a",
		Fallbacks:       map[string][]string{"a": {"b"}},
		Timeout:         20 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	resp, err := p.Request(context.Background(), SplitPrompt{Cacheable: "x"})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Provider)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcessorCancelledContext(t *testing.T) {
	a := &fakeProvider{name: "a", reply: replyText(okReply)}
	p := newTestProcessor(t, map[string]Provider{"a": a})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Request(ctx, SplitPrompt{Cacheable: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.Calls())
}

func TestProcessorCleansPrompt(t *testing.T) {
	a := &fakeProvider{name: "a", reply: replyText(okReply)}
	p := newTestProcessor(t, map[string]Provider{"a": a})

	_, err := p.Request(context.Background(), SplitPrompt{
		Cacheable:    "  line one\n\tline two\r\n",
		NonCacheable: "a   b",
	})
	require.NoError(t, err)
	require.Len(t, a.prompts, 1)
	assert.Equal(t, "line one line two", a.prompts[0].Cacheable)
	assert.Equal(t, "a b", a.prompts[0].NonCacheable)
}

func TestNewProcessorRequiresProviders(t *testing.T) {
	_, err := NewProcessor(nil, ProcessorConfig{})
	assert.Error(t, err)
}

func TestCleanWhitespace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a\nb", "a b"},
		{"a\r\nb", "a b"},
		{"a\t\tb", "a b"},
		{"  lead and trail  ", "lead and trail"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanWhitespace(tt.in); got != tt.want {
			t.Errorf("CleanWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
