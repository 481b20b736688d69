// Verbose tracing of agent activity for CLI commands.
//
// Information Hiding:
// - Event formatting hidden
// - Which events are worth showing hidden

package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/ElectronicaGitHub/agented-io/agent"
)

const traceTextLimit = 200

// traceEvents prints status changes, intermediate responses and provider
// stop statuses of every agent in tree to w.
func traceEvents(tree *agent.Tree, w io.Writer) {
	var mu sync.Mutex
	write := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format, args...)
	}

	tree.On(agent.EventStatusChanged, func(ev agent.Event) {
		if ev.PreviousStatus == ev.Status {
			return
		}
		if ev.Error != "" {
			write("[%s] %s -> %s: %s\n", ev.Agent, ev.PreviousStatus, ev.Status, ev.Error)
			return
		}
		write("[%s] %s -> %s\n", ev.Agent, ev.PreviousStatus, ev.Status)
	})
	tree.On(agent.EventResponse, func(ev agent.Event) {
		write("[%s] %s\n", ev.Agent, truncate(ev.Text, traceTextLimit))
	})
	tree.On(agent.EventMainResponse, func(ev agent.Event) {
		if ev.Agent != tree.Root().Name() {
			write("[%s] reply: %s\n", ev.Agent, truncate(ev.Text, traceTextLimit))
		}
	})
	tree.On(agent.EventReflectionResponse, func(ev agent.Event) {
		write("[%s] reflection: %s\n", ev.Agent, truncate(ev.Text, traceTextLimit))
	})
	tree.On(agent.EventProviderStatus, func(ev agent.Event) {
		write("[llm] %s answered %d: %s\n", ev.Provider, ev.HTTPStatus, ev.Error)
	})
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
