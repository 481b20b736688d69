// Package testutil provides scripted backends and recording functions for
// tests across packages.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ElectronicaGitHub/agented-io/llm"
)

// Reply is one scripted provider answer.
type Reply struct {
	Text   string
	Status int
	Err    error
	// Delay is waited (honouring ctx) before answering.
	Delay time.Duration
}

// ScriptedProvider answers with its replies in order and repeats the last
// one once the script is exhausted. It is safe for concurrent use.
type ScriptedProvider struct {
	name string

	mu      sync.Mutex
	replies []Reply
	prompts []llm.SplitPrompt
}

// NewScriptedProvider creates a provider named name.
func NewScriptedProvider(name string, replies ...Reply) *ScriptedProvider {
	return &ScriptedProvider{name: name, replies: replies}
}

// Texts is shorthand for a script of successful text replies.
func Texts(texts ...string) []Reply {
	out := make([]Reply, len(texts))
	for i, t := range texts {
		out[i] = Reply{Text: t}
	}
	return out
}

func (p *ScriptedProvider) Name() string  { return p.name }
func (p *ScriptedProvider) Model() string { return p.name + "-model" }

// SendChatMessage returns the next scripted reply.
func (p *ScriptedProvider) SendChatMessage(ctx context.Context, prompt llm.SplitPrompt, model string) (llm.Result, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	n := len(p.prompts)
	var r Reply
	switch {
	case len(p.replies) == 0:
		p.mu.Unlock()
		return llm.Result{}, errors.New("no scripted reply")
	case n <= len(p.replies):
		r = p.replies[n-1]
	default:
		r = p.replies[len(p.replies)-1]
	}
	p.mu.Unlock()

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return llm.Result{}, ctx.Err()
		}
	}
	if r.Err != nil {
		return llm.Result{HTTPStatus: r.Status}, r.Err
	}
	if r.Status >= 400 {
		return llm.Result{HTTPStatus: r.Status}, fmt.Errorf("status %d", r.Status)
	}
	return llm.Result{
		Text:       r.Text,
		HTTPStatus: 200,
		Usage:      &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// Calls returns how many requests the provider received.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// Prompts returns a copy of every prompt received.
func (p *ScriptedProvider) Prompts() []llm.SplitPrompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.SplitPrompt(nil), p.prompts...)
}

// Processor wraps providers in an llm.Processor with the first provider as
// the default and a short attempt timeout.
func Processor(providers ...*ScriptedProvider) *llm.Processor {
	m := make(map[string]llm.Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	proc, err := llm.NewProcessor(m, llm.ProcessorConfig{
		DefaultProvider: providers[0].Name(),
		Timeout:         5 * time.Second,
		StopStatuses:    []int{402, 429},
	})
	if err != nil {
		panic(err)
	}
	return proc
}
