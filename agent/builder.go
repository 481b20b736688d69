// Agent tree builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden
// - Static prompt rendering and parent/child wiring hidden

package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ElectronicaGitHub/agented-io/config"
	"github.com/ElectronicaGitHub/agented-io/logging"
	"github.com/ElectronicaGitHub/agented-io/model"
	"github.com/ElectronicaGitHub/agented-io/prompt"
	"github.com/ElectronicaGitHub/agented-io/storage"
	"github.com/ElectronicaGitHub/agented-io/tools"
)

// Builder provides fluent configuration for creating agent trees.
// Usage: agent.NewBuilder(schema).Backend(p).Build() - no stutter.
type Builder struct {
	schema    config.AgentSchema
	backend   Backend
	store     storage.MessageStore
	functions *tools.Registry
	settings  *config.AgentConfig
	logger    logging.Logger
	mixins    map[string][]Mixin
}

// NewBuilder creates a builder for the tree declared by schema.
func NewBuilder(schema config.AgentSchema) *Builder {
	return &Builder{
		schema: schema,
		mixins: make(map[string][]Mixin),
	}
}

// Backend sets the backend every agent sends its prompts to. Required.
func (b *Builder) Backend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// Store sets the message store. Defaults to an in-memory store.
func (b *Builder) Store(store storage.MessageStore) *Builder {
	b.store = store
	return b
}

// Functions sets the registry agents pick their functions from.
func (b *Builder) Functions(functions *tools.Registry) *Builder {
	b.functions = functions
	return b
}

// Settings sets the session-wide agent settings. Defaults to
// config.DefaultAgentConfig.
func (b *Builder) Settings(settings config.AgentConfig) *Builder {
	b.settings = &settings
	return b
}

// Logger sets the logger.
func (b *Builder) Logger(logger logging.Logger) *Builder {
	b.logger = logger
	return b
}

// Mixin adds a prompt mixin to the named agent.
func (b *Builder) Mixin(agentName string, mixin Mixin) *Builder {
	b.mixins[agentName] = append(b.mixins[agentName], mixin)
	return b
}

// Build creates the tree, wires every parent to its children and starts
// reflection agents marked cron_init_on_start.
func (b *Builder) Build() (*Tree, error) {
	if b.backend == nil {
		return nil, fmt.Errorf("agent tree %s: backend is required", b.schema.Name)
	}
	if b.schema.Name == "" {
		return nil, fmt.Errorf("agent tree: root agent has no name")
	}

	settings := config.DefaultAgentConfig()
	if b.settings != nil {
		settings = *b.settings
	}
	logger := b.logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	store := b.store
	if store == nil {
		store = storage.NewMemoryStore(settings.HistoryWindow)
	}
	functions := b.functions
	if functions == nil {
		functions = tools.NewRegistry()
	}

	t := &Tree{
		byName:  make(map[string]int),
		store:   store,
		backend: b.backend,
		logger:  logger,
	}
	if b.schema.Type == "" {
		b.schema.Type = string(model.RoleMain)
	}
	if _, err := b.add(t, b.schema, -1, settings, functions); err != nil {
		return nil, err
	}

	var unknown []string
	for name := range b.mixins {
		if _, ok := t.byName[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("mixins for unknown agents: %s", strings.Join(unknown, ", "))
	}

	for _, a := range t.agents {
		a.mixins = b.mixins[a.Name()]
		a.basePrompt = renderBasePrompt(a)
		for _, c := range a.children {
			a.wireChild(c)
		}
		for _, r := range a.reflections {
			a.wireChild(r)
		}
	}

	logger.Info("tree.built", "root", t.Root().Name(), "agents", len(t.agents))

	for _, a := range t.agents {
		if a.config.IsReflection() && a.config.CronInitOnStart {
			a.Process("", a.Name())
		}
	}
	return t, nil
}

// add appends the agent declared by schema and its descendants to the arena.
func (b *Builder) add(t *Tree, schema config.AgentSchema, parent int, settings config.AgentConfig, functions *tools.Registry) (*Agent, error) {
	if _, dup := t.byName[schema.Name]; dup {
		return nil, fmt.Errorf("duplicate agent name %q", schema.Name)
	}
	if schema.Name == UserSender {
		return nil, fmt.Errorf("agent name %q is reserved", schema.Name)
	}
	fns, err := functions.Subset(schema.Functions)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", schema.Name, err)
	}

	index := len(t.agents)
	a := newAgent(t, resolveConfig(schema, settings), index, parent, fns)
	t.agents = append(t.agents, a)
	t.byName[schema.Name] = index

	for _, cs := range schema.Children {
		if cs.Type == "" {
			cs.Type = string(model.RoleWorker)
		}
		child, err := b.add(t, cs, index, settings, functions)
		if err != nil {
			return nil, err
		}
		a.children = append(a.children, child)
	}
	for _, rs := range schema.Reflections {
		rs.Type = string(model.RoleReflection)
		r, err := b.add(t, rs, index, settings, functions)
		if err != nil {
			return nil, err
		}
		a.reflections = append(a.reflections, r)
	}
	return a, nil
}

// renderBasePrompt fills the static placeholders of the agent's template.
// Reflection agents describe their parent's capabilities.
func renderBasePrompt(a *Agent) string {
	vars := prompt.StaticVars{AgentName: a.Name()}
	if p := a.Parent(); p != nil {
		vars.ParentSpecialInstructions = p.config.SpecialInstructions
	}

	if a.config.IsReflection() && a.Parent() != nil {
		p := a.Parent()
		vars.Functions = functionSpecs(p.functions)
		vars.Children = childSpecs(p.children)
		vars.SpecialInstructions = prompt.JoinInstructions(p.config.SpecialInstructions, a.config.SpecialInstructions)
		return prompt.Render(prompt.Reflection(), vars.Vars())
	}

	vars.Functions = functionSpecs(a.functions)
	vars.Children = childSpecs(a.children)
	vars.SpecialInstructions = a.config.SpecialInstructions
	return prompt.Render(prompt.Decider(), vars.Vars())
}

func functionSpecs(r *tools.Registry) []prompt.FunctionSpec {
	metas := r.List()
	specs := make([]prompt.FunctionSpec, len(metas))
	for i, m := range metas {
		specs[i] = prompt.FunctionSpec{Name: m.Name, Description: m.Description, Params: m.ParamDocs()}
	}
	return specs
}

func childSpecs(children []*Agent) []prompt.ChildSpec {
	specs := make([]prompt.ChildSpec, len(children))
	for i, c := range children {
		specs[i] = prompt.ChildSpec{
			Name:      c.Name(),
			Prompt:    c.config.SpecialInstructions,
			Functions: functionSpecs(c.functions),
		}
	}
	return specs
}
