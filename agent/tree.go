// Agent tree.
//
// Information Hiding:
// - Arena ownership: agents are addressed by index, parents by lookup
// - Message store and backend shared by every agent
// - Shutdown ordering (timers, queues, ping loops)

package agent

import (
	"context"
	"sync/atomic"

	"github.com/ElectronicaGitHub/agented-io/llm"
	"github.com/ElectronicaGitHub/agented-io/logging"
	"github.com/ElectronicaGitHub/agented-io/model"
	"github.com/ElectronicaGitHub/agented-io/storage"
)

// Backend turns a split prompt into a parsed reply. *llm.Processor
// implements it.
type Backend interface {
	Request(ctx context.Context, prompt llm.SplitPrompt) (llm.Response, error)
}

// UserSender is the default sender for messages entering the tree.
const UserSender = "user"

// Tree owns every agent of one session. The root is always agents[0].
type Tree struct {
	agents  []*Agent
	byName  map[string]int
	store   storage.MessageStore
	backend Backend
	logger  logging.Logger
	events  registry
	closed  atomic.Bool
}

// Root returns the root agent.
func (t *Tree) Root() *Agent { return t.agents[0] }

// Agent returns the agent with the given name.
func (t *Tree) Agent(name string) (*Agent, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.agents[i], true
}

// Agents returns every agent in build order.
func (t *Tree) Agents() []*Agent {
	return append([]*Agent(nil), t.agents...)
}

// Store returns the message store shared by the agents.
func (t *Tree) Store() storage.MessageStore { return t.store }

// On registers a listener for events emitted by any agent of the tree.
// The returned func removes it.
func (t *Tree) On(typ EventType, fn Listener) func() {
	return t.events.on(typ, fn)
}

// ListenerCount returns the number of tree-level listeners for typ.
func (t *Tree) ListenerCount(typ EventType) int {
	return t.events.count(typ)
}

// SendMessage hands text to the root agent. An empty sender means the user.
func (t *Tree) SendMessage(text, sender string) {
	if sender == "" {
		sender = UserSender
	}
	t.Root().Process(text, sender)
}

// ReportProviderStatus re-emits a backend stop status on the root agent.
// Wire it to llm.WithStatusHook.
func (t *Tree) ReportProviderStatus(ev llm.StatusEvent) {
	out := Event{
		Type:       EventProviderStatus,
		CreatedAt:  ev.Timestamp,
		Provider:   ev.Provider,
		HTTPStatus: ev.Status,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	t.Root().Emit(out)
}

// Idle reports whether no agent has work running or queued and no parent
// is still polling a child.
func (t *Tree) Idle() bool {
	for _, a := range t.agents {
		if a.Busy() || a.pinging() {
			return false
		}
	}
	return true
}

// Close stops every agent and waits for their goroutines. Work submitted
// afterwards is ignored.
func (t *Tree) Close() {
	if t.closed.Swap(true) {
		return
	}
	for _, a := range t.agents {
		a.cleanup()
	}
	for _, a := range t.agents {
		a.queue.Wait()
		a.pingWG.Wait()
	}
	t.logger.Debug("tree.closed", "agents", len(t.agents))
}

func (t *Tree) roleOf(sender string) model.Role {
	if a, ok := t.Agent(sender); ok {
		return a.Role()
	}
	return model.RoleUser
}
