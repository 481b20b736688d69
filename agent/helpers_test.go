package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ElectronicaGitHub/agented-io/config"
	"github.com/ElectronicaGitHub/agented-io/internal/testutil"
	"github.com/ElectronicaGitHub/agented-io/llm"
	"github.com/ElectronicaGitHub/agented-io/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 3 * time.Second
const tick = 5 * time.Millisecond

func testSettings() config.AgentConfig {
	s := config.DefaultAgentConfig()
	s.WorkTimeout = 2 * time.Second
	s.PingInterval = 20 * time.Millisecond
	s.RetryDelay = time.Millisecond
	return s
}

func parseSchema(t *testing.T, yaml string) config.AgentSchema {
	t.Helper()
	schema, err := config.ParseTree([]byte(yaml))
	require.NoError(t, err)
	return schema
}

func build(t *testing.T, b *Builder) *Tree {
	t.Helper()
	tree, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

// routedBackend sends each prompt to the processor of the agent named in
// it. Prompts naming no routed agent go to fallback.
type routedBackend struct {
	routes   map[string]*llm.Processor
	fallback *llm.Processor
}

func (b routedBackend) Request(ctx context.Context, p llm.SplitPrompt) (llm.Response, error) {
	for name, proc := range b.routes {
		if strings.Contains(p.Cacheable, "You are "+name+",") {
			return proc.Request(ctx, p)
		}
	}
	if b.fallback != nil {
		return b.fallback.Request(ctx, p)
	}
	return llm.Response{}, errors.New("no route for prompt")
}

// recorder collects tree events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(tree *Tree, types ...EventType) *recorder {
	r := &recorder{}
	for _, typ := range types {
		tree.On(typ, func(ev Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
		})
	}
	return r
}

func (r *recorder) texts(typ EventType, agentName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Type == typ && ev.Agent == agentName {
			out = append(out, ev.Text)
		}
	}
	return out
}

func (r *recorder) statuses(agentName string) []model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Status
	for _, ev := range r.events {
		if ev.Type == EventStatusChanged && ev.Agent == agentName {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (r *recorder) find(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func finishedText(text string) string {
	return `{"actions": [{"type": "text", "text": "` + text + `"}], "finished": true}`
}

func pendingText(text string) string {
	return `{"actions": [{"type": "text", "text": "` + text + `"}], "finished": false}`
}

func delegateTo(child, instructions string) string {
	return `{"actions": [{"type": "agent", "name": "` + child + `", "specialInstructions": "` + instructions + `"}], "finished": false}`
}

func scripted(name string, replies ...testutil.Reply) (*testutil.ScriptedProvider, *llm.Processor) {
	p := testutil.NewScriptedProvider(name, replies...)
	return p, testutil.Processor(p)
}

func messages(t *testing.T, a *Agent) []model.Message {
	t.Helper()
	msgs, err := a.Messages(context.Background())
	require.NoError(t, err)
	return msgs
}
