// Agent state machine and public surface.
//
// An agent processes one work item at a time through a preemptible queue:
// every Process call supersedes whatever the agent was doing. Replies
// travel to the parent through events, never through return values.
//
// Information Hiding:
// - Queue, timers and ping loops owned and drained by the agent
// - Status transitions and their side effects hidden
// - History storage keyed by (parent, agent) hidden behind the tree

package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ElectronicaGitHub/agented-io/internal/queue"
	"github.com/ElectronicaGitHub/agented-io/llm"
	"github.com/ElectronicaGitHub/agented-io/logging"
	"github.com/ElectronicaGitHub/agented-io/model"
	"github.com/ElectronicaGitHub/agented-io/storage"
	"github.com/ElectronicaGitHub/agented-io/tools"
)

// Mixin enriches the prompt of an agent before each request. Outputs of all
// mixins are joined with newlines into {{mixins_result}}.
type Mixin func(ctx context.Context, agentCtx model.Context) (string, error)

// Agent is one node of a Tree.
type Agent struct {
	id     string
	config Config
	tree   *Tree
	index  int
	parent int // index into the tree arena; -1 for the root

	children    []*Agent
	reflections []*Agent

	functions *tools.Registry
	executor  *tools.Executor
	mixins    []Mixin
	logger    logging.Logger

	// basePrompt has its static placeholders rendered.
	basePrompt string

	queue  *queue.Queue[model.WorkItem]
	events registry

	mu          sync.Mutex
	status      model.Status
	lastError   string
	flowLength  int
	ctx         model.Context
	splitPrompt llm.SplitPrompt
	lastItem    *model.WorkItem
	seen        []model.ReplyKey
	workTimer   *time.Timer
	timerGen    uint64
	pings       map[string]*pingLoop
	pingWG      sync.WaitGroup

	// submitted counts submissions; active is the submission the running
	// item belongs to. A failure only settles the agent while they match.
	submitted  uint64
	active     uint64
	cancelItem context.CancelCauseFunc
}

func newAgent(tree *Tree, cfg Config, index, parent int, fns *tools.Registry) *Agent {
	a := &Agent{
		id:        uuid.NewString(),
		config:    cfg,
		tree:      tree,
		index:     index,
		parent:    parent,
		functions: fns,
		logger:    logging.With(tree.logger, "agent", cfg.Name),
		status:    model.StatusIdle,
		ctx:       model.Context{},
		pings:     make(map[string]*pingLoop),
	}
	a.executor = tools.NewExecutor(tools.ExecutorConfig{
		Timeout:     cfg.FunctionsTimeout,
		MaxParallel: cfg.MaxParallelFunctions,
	}, a.logger)
	a.queue = queue.New[model.WorkItem](a.processItem, queue.WithErrorHandler(func(item model.WorkItem, err error) {
		a.fail(err)
	}))

	a.On(EventPing, a.answerPing)
	a.On(EventRequestLastResponse, a.answerLastResponse)
	return a
}

// ID returns the unique identity of the agent.
func (a *Agent) ID() string { return a.id }

// Name returns the agent's name.
func (a *Agent) Name() string { return a.config.Name }

// Role returns the agent's role.
func (a *Agent) Role() model.Role { return a.config.Role }

// Config returns the resolved configuration.
func (a *Agent) Config() Config { return a.config }

// Parent returns the parent agent, or nil for the root.
func (a *Agent) Parent() *Agent {
	if a.parent < 0 {
		return nil
	}
	return a.tree.agents[a.parent]
}

// Children returns the child agents, excluding reflections.
func (a *Agent) Children() []*Agent {
	return append([]*Agent(nil), a.children...)
}

// Reflections returns the reflection agents.
func (a *Agent) Reflections() []*Agent {
	return append([]*Agent(nil), a.reflections...)
}

// Status returns the current status.
func (a *Agent) Status() model.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Busy reports whether the agent has a work item running or queued.
func (a *Agent) Busy() bool { return a.queue.Busy() }

// LastError returns the message of the last failure.
func (a *Agent) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// FlowLength returns the number of passes since the last finished reply.
func (a *Agent) FlowLength() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flowLength
}

// Context returns a copy of the agent context.
func (a *Agent) Context() model.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx.Clone()
}

// SplitPrompt returns the prompt of the last request.
func (a *Agent) SplitPrompt() llm.SplitPrompt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.splitPrompt
}

// BasePrompt returns the prompt template with static placeholders filled.
func (a *Agent) BasePrompt() string { return a.basePrompt }

// On registers a listener for events emitted by this agent. The returned
// func removes it.
func (a *Agent) On(t EventType, fn Listener) func() {
	return a.events.on(t, fn)
}

// Emit delivers ev to this agent's listeners. Events originating here are
// also delivered to tree-level listeners.
func (a *Agent) Emit(ev Event) {
	if ev.Agent == "" {
		ev.Agent = a.Name()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	a.events.emit(ev)
	if ev.Agent == a.Name() {
		a.tree.events.emit(ev)
	}
}

// ProcessOption tags a work item.
type ProcessOption func(*model.WorkItem)

// WithType sets the response type that produced the item.
func WithType(t model.ResponseType) ProcessOption {
	return func(item *model.WorkItem) { item.Type = t }
}

// WithFunctionName records the function(s) whose results the item carries.
func WithFunctionName(name string) ProcessOption {
	return func(item *model.WorkItem) { item.FunctionName = name }
}

// WithOrigin marks the item as produced from a child reply.
func WithOrigin(key model.ReplyKey) ProcessOption {
	return func(item *model.WorkItem) { item.Origin = &key }
}

// Process supersedes the current work with a new item. It returns
// immediately; the outcome is reported through events.
func (a *Agent) Process(text, sender string, opts ...ProcessOption) {
	if a.tree.closed.Load() {
		return
	}
	item := model.WorkItem{
		Text:       text,
		Sender:     sender,
		SenderRole: a.tree.roleOf(sender),
		CreatedAt:  time.Now(),
		Type:       model.ResponseText,
	}
	for _, opt := range opts {
		opt(&item)
	}
	if item.Origin != nil {
		a.markSeen(*item.Origin)
	}

	a.logger.Debug("agent.process", "sender", sender, "type", item.Type, "function", item.FunctionName, "length", len(text))
	a.submit(item)
}

// RetryLastItem re-enqueues the last processed item, typically after ERROR.
func (a *Agent) RetryLastItem() error {
	a.mu.Lock()
	last := a.lastItem
	a.mu.Unlock()
	if last == nil {
		return ErrNothingToRetry
	}
	if a.tree.closed.Load() {
		return ErrTreeClosed
	}

	a.submit(*last)
	return nil
}

func (a *Agent) submit(item model.WorkItem) {
	a.mu.Lock()
	a.submitted++
	a.mu.Unlock()

	a.cleanup()
	a.setStatus(model.StatusIdle, "")
	a.queue.Enqueue(item)
}

// SetInitialMessages seeds the agent's history, marking every message as
// context. It does nothing when the history is not empty.
func (a *Agent) SetInitialMessages(ctx context.Context, msgs []model.Message) error {
	existing, err := a.history(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 || len(msgs) == 0 {
		return nil
	}
	seeded := make([]model.Message, len(msgs))
	for i, m := range msgs {
		m.ID = ""
		m.Contexted = true
		seeded[i] = m
	}
	return a.appendHistory(ctx, seeded...)
}

// SetContext replaces the agent context with a copy of c.
func (a *Agent) SetContext(c model.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = c.Clone()
}

// UpdateContext merges updates into the agent context.
func (a *Agent) UpdateContext(updates map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = a.ctx.Merge(updates)
}

// Messages returns the agent's history.
func (a *Agent) Messages(ctx context.Context) ([]model.Message, error) {
	return a.history(ctx)
}

// historyKey returns the parent half of the store key.
func (a *Agent) historyKey() string {
	if p := a.Parent(); p != nil {
		return p.Name()
	}
	return storage.RootParent
}

func (a *Agent) history(ctx context.Context) ([]model.Message, error) {
	return a.tree.store.Read(ctx, a.historyKey(), a.Name())
}

func (a *Agent) appendHistory(ctx context.Context, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := a.tree.store.Append(ctx, a.historyKey(), a.Name(), msgs...); err != nil {
		return err
	}
	a.Emit(Event{Type: EventMessagesUpdated, Parent: a.historyKey(), Messages: msgs})
	return nil
}

func (a *Agent) setStatus(s model.Status, errMsg string) {
	a.mu.Lock()
	prev := a.status
	a.status = s
	if errMsg != "" {
		a.lastError = errMsg
	}
	a.mu.Unlock()

	if prev != s {
		a.logger.Debug("agent.status.changed", "from", prev, "to", s)
	}
	a.Emit(Event{Type: EventStatusChanged, Status: s, PreviousStatus: prev, Error: errMsg})
}

// transition sets the status unless work was submitted after submission
// gen. It reports whether the status changed hands.
func (a *Agent) transition(gen uint64, s model.Status, errMsg string) bool {
	a.mu.Lock()
	if a.submitted != gen {
		a.mu.Unlock()
		return false
	}
	prev := a.status
	a.status = s
	if errMsg != "" {
		a.lastError = errMsg
	}
	a.mu.Unlock()

	if prev != s {
		a.logger.Debug("agent.status.changed", "from", prev, "to", s)
	}
	a.Emit(Event{Type: EventStatusChanged, Status: s, PreviousStatus: prev, Error: errMsg})
	return true
}

// fail moves the agent to ERROR, stops its timers, optionally records the
// message and notifies the parent. The failed item already left the queue,
// so anything queued since is newer work and stays; in that case the
// failure is only logged.
func (a *Agent) fail(err error) {
	msg := err.Error()
	a.logger.Error("agent.failed", "error", msg)

	var guard *LoopGuardError
	if errors.As(err, &guard) {
		a.mu.Lock()
		a.flowLength = 0
		a.mu.Unlock()
	}

	a.mu.Lock()
	gen := a.active
	a.mu.Unlock()
	if !a.transition(gen, model.StatusError, msg) {
		a.logger.Debug("agent.failed.superseded", "error", msg)
		return
	}
	a.stopWorkTimer()
	a.stopAllPings()

	if a.config.RecordErrors {
		rec := model.Message{
			Text:       msg,
			Sender:     a.Name(),
			SenderRole: a.Role(),
			CreatedAt:  time.Now(),
			Type:       model.ResponseText,
		}
		if err := a.appendHistory(context.Background(), rec); err != nil {
			a.logger.Warn("agent.history.failed", "error", err)
		}
	}

	a.Emit(Event{Type: EventPong, Status: model.StatusError, Error: msg})
}

// cleanup stops the work timer and every ping loop and clears the queue.
func (a *Agent) cleanup() {
	a.stopWorkTimer()
	a.stopAllPings()
	a.queue.Clear()
}

func (a *Agent) markSeen(key model.ReplyKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, key)
	if limit := 2 * a.config.HistoryWindow; limit > 0 && len(a.seen) > limit {
		a.seen = append([]model.ReplyKey(nil), a.seen[len(a.seen)-limit:]...)
	}
}
