// Command execution for CLI commands.
//
// Information Hiding:
// - Session setup (settings, providers, store, tree) hidden
// - Waiting for a tree to settle hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ElectronicaGitHub/agented-io/agent"
	"github.com/ElectronicaGitHub/agented-io/config"
	"github.com/ElectronicaGitHub/agented-io/llm"
	"github.com/ElectronicaGitHub/agented-io/logging"
	"github.com/ElectronicaGitHub/agented-io/storage"
	"github.com/ElectronicaGitHub/agented-io/tools"
)

// settleCheck is how often an exchange re-checks whether the tree settled.
const settleCheck = 100 * time.Millisecond

// Options holds CLI execution options.
type Options struct {
	// Provider overrides LLM_PROVIDER.
	Provider string
	// DBPath enables the SQLite message store when set.
	DBPath    string
	LogLevel  string
	LogFormat string
	Verbose   bool
	// Timeout bounds one exchange; 0 means no limit.
	Timeout time.Duration
	// Out receives replies; defaults to stdout.
	Out io.Writer
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		LogLevel:  "warn",
		LogFormat: "text",
		Timeout:   5 * time.Minute,
	}
}

// Session is a built agent tree with the resources it owns.
type Session struct {
	Tree     *agent.Tree
	Settings config.Settings

	store  *storage.SqliteStore
	out    io.Writer
	logger logging.Logger
}

// NewSession loads the tree at treePath and wires it to every provider with
// an API key.
func NewSession(treePath string, opts Options) (*Session, error) {
	settings, err := loadSettings(opts.Provider)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{Level: level, Format: opts.LogFormat})

	schema, err := config.LoadTree(treePath)
	if err != nil {
		return nil, err
	}

	temperature := float32(settings.LLM.Temperature)
	providers := llm.AvailableFromEnv(llm.BuildOptions{
		Models:      settings.LLM.Models,
		MaxTokens:   settings.LLM.MaxTokens,
		Temperature: &temperature,
	})
	if len(providers) == 0 {
		return nil, errors.New("no provider configured: set at least one *_API_KEY")
	}
	defaultProvider := settings.LLM.Provider
	if _, ok := providers[defaultProvider]; !ok {
		names := sortedKeys(providers)
		logger.Warn("cli.provider.unavailable", "provider", defaultProvider, "using", names[0])
		defaultProvider = names[0]
	}

	// Set once the tree is built; the hook may fire from any goroutine.
	var built atomic.Pointer[agent.Tree]
	proc, err := llm.NewProcessor(providers, llm.ProcessorConfig{
		DefaultProvider: defaultProvider,
		Fallbacks:       settings.LLM.Substitutes,
		Timeout:         settings.LLM.ResultTimeout,
		StopStatuses:    settings.LLM.StopStatuses,
		LogPrompt:       settings.LLM.LogPrompt,
		LogResponse:     settings.LLM.LogResponse,
	}, llm.WithLogger(logger), llm.WithStatusHook(func(ev llm.StatusEvent) {
		if t := built.Load(); t != nil {
			t.ReportProviderStatus(ev)
		}
	}))
	if err != nil {
		return nil, err
	}

	functions, err := tools.WithDefaults()
	if err != nil {
		return nil, err
	}

	s := &Session{Settings: settings, out: opts.Out, logger: logger}
	if s.out == nil {
		s.out = os.Stdout
	}

	builder := agent.NewBuilder(schema).
		Backend(proc).
		Functions(functions).
		Settings(settings.Agent).
		Logger(logger)
	if opts.DBPath != "" {
		store, err := storage.OpenSqlite(opts.DBPath, settings.Agent.HistoryWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.store = store
		builder = builder.Store(store)
	}

	tree, err := builder.Build()
	if err != nil {
		s.closeStore()
		return nil, err
	}
	built.Store(tree)
	s.Tree = tree

	if opts.Verbose {
		traceEvents(tree, os.Stderr)
	}
	return s, nil
}

// Close stops the tree and closes the store.
func (s *Session) Close() {
	s.Tree.Close()
	s.closeStore()
}

func (s *Session) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("cli.store.close", "error", err)
	}
}

// Exchange sends text to the root agent, prints every reply of the root
// and returns once no agent has work left.
func (s *Session) Exchange(ctx context.Context, text string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	root := s.Tree.Root()
	replies := make(chan string, 16)
	failures := make(chan string, 4)
	poke := make(chan struct{}, 1)

	var done atomic.Bool
	notify := func(ch chan string, v string) {
		if done.Load() {
			return
		}
		select {
		case ch <- v:
		default:
		}
	}
	offReply := s.Tree.On(agent.EventMainResponse, func(ev agent.Event) {
		if ev.Agent == root.Name() {
			notify(replies, ev.Text)
		}
	})
	defer offReply()
	offFailure := s.Tree.On(agent.EventPong, func(ev agent.Event) {
		if ev.Agent == root.Name() && ev.Error != "" {
			notify(failures, ev.Error)
		}
	})
	defer offFailure()
	offStatus := s.Tree.On(agent.EventStatusChanged, func(agent.Event) {
		select {
		case poke <- struct{}{}:
		default:
		}
	})
	defer offStatus()
	// An emit already in progress may still call the listeners.
	defer done.Store(true)

	s.Tree.SendMessage(text, agent.UserSender)

	ticker := time.NewTicker(settleCheck)
	defer ticker.Stop()

	var failure string
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no reply from %s: %w", root.Name(), ctx.Err())
		case r := <-replies:
			fmt.Fprintf(s.out, "%s\n\n", r)
			continue
		case failure = <-failures:
		case <-poke:
		case <-ticker.C:
		}

		if !s.Tree.Idle() {
			continue
		}
		// Drain replies emitted just before the tree settled.
		for drained := false; !drained; {
			select {
			case r := <-replies:
				fmt.Fprintf(s.out, "%s\n\n", r)
			default:
				drained = true
			}
		}
		if failure != "" {
			return fmt.Errorf("%s failed: %s", root.Name(), failure)
		}
		return nil
	}
}

// Run executes a single exchange with the tree at treePath.
func Run(ctx context.Context, treePath, text string, opts Options) error {
	s, err := NewSession(treePath, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Exchange(ctx, text, opts.Timeout)
}

// Chat starts an interactive session with the tree at treePath.
func Chat(ctx context.Context, treePath string, in io.Reader, opts Options) error {
	s, err := NewSession(treePath, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(s.out, "Chatting with %s (type 'exit' to quit)\n\n", s.Tree.Root().Name())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := s.Exchange(ctx, line, opts.Timeout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return scanner.Err()
}

// ListProviders prints every supported provider with its model, whether
// its API key is set and its fallback chain.
func ListProviders(w io.Writer, opts Options) error {
	settings, err := loadSettings(opts.Provider)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Default provider: %s\n\n", settings.LLM.Provider)
	for _, name := range config.SupportedProviders() {
		status := "missing key"
		if _, err := config.APIKeyFor(name); err == nil {
			status = "ready"
		}
		fallbacks := strings.Join(settings.LLM.Substitutes[name], " -> ")
		if fallbacks == "" {
			fallbacks = "none"
		}
		fmt.Fprintf(w, "  %-10s %-28s %-12s fallback: %s\n", name, settings.LLM.Models[name], status, fallbacks)
	}
	return nil
}

func loadSettings(provider string) (config.Settings, error) {
	if provider != "" {
		return config.New(provider)
	}
	return config.FromEnv()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
