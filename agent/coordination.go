// Parent/child coordination.
//
// A parent subscribes to the events of each child when the tree is built.
// Replies reach the parent either directly (main or reflection response)
// or later through a pong carrying the child's last reply; both carry the
// same (text, sender, createdAt) key so the second delivery is dropped.

package agent

import (
	"context"
	"strings"

	"github.com/ElectronicaGitHub/agented-io/model"
)

const (
	progressWorking = "Working on task..."
	progressReady   = "Ready"
)

// wireChild subscribes a to the protocol events of child.
func (a *Agent) wireChild(child *Agent) {
	child.On(EventMainResponse, func(ev Event) { a.handleChildReply(child, ev) })
	child.On(EventReflectionResponse, func(ev Event) { a.handleReflectionReply(child, ev) })
	child.On(EventResponse, func(ev Event) { a.Emit(ev) })
	child.On(EventPong, func(ev Event) { a.handlePong(child, ev) })
}

// handleChildReply re-processes a finished child reply. Children still
// WORKING are named in the text and pinged until they finish.
func (a *Agent) handleChildReply(child *Agent, ev Event) {
	key, ok := replyKey(child, ev)
	if !ok || a.alreadySeen(key) {
		return
	}

	a.stopPing(child.Name())

	var working []*Agent
	for _, c := range a.children {
		if c != child && c.Status() == model.StatusWorking {
			working = append(working, c)
		}
	}

	text := ev.Text
	if len(working) > 0 {
		names := make([]string, len(working))
		for i, c := range working {
			names[i] = c.Name()
		}
		text += "\nWaiting for response from: " + strings.Join(names, ", ")
	}

	a.Process(text, child.Name(), WithOrigin(key))
	for _, c := range working {
		a.startPing(c)
	}
}

func (a *Agent) handleReflectionReply(child *Agent, ev Event) {
	key, ok := replyKey(child, ev)
	if !ok || a.alreadySeen(key) {
		return
	}
	a.Process(ev.Text, child.Name(), WithOrigin(key))
}

// handlePong handles a child's answer to a ping or last-response request,
// and the error report every failing child sends.
func (a *Agent) handlePong(child *Agent, ev Event) {
	switch {
	case ev.Error != "":
		a.logger.Warn("agent.child.failed", "child", child.Name(), "error", ev.Error)
		a.Process(ev.Error, child.Name())

	case ev.Message != nil:
		key := ev.Message.Key()
		if a.alreadySeen(key) {
			a.logger.Debug("agent.child.reply.duplicate", "child", child.Name())
			return
		}
		a.Process(ev.Message.Text, child.Name(), WithOrigin(key))

	default:
		a.logger.Debug("agent.child.pong", "child", child.Name(), "status", ev.Status, "progress", ev.Text)
	}
}

// answerPing reports this agent's status to the pinging parent.
func (a *Agent) answerPing(ev Event) {
	status := a.Status()
	progress := progressReady
	if status == model.StatusWorking {
		progress = progressWorking
	}
	a.Emit(Event{Type: EventPong, Status: status, Text: progress})
}

// answerLastResponse sends the last reply this agent produced, if any.
func (a *Agent) answerLastResponse(ev Event) {
	msgs, err := a.history(context.Background())
	if err != nil {
		a.logger.Warn("agent.history.failed", "error", err)
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Sender == a.Name() && m.Type == model.ResponseText && m.Text != "" {
			a.Emit(Event{Type: EventPong, Status: a.Status(), Message: &m})
			return
		}
	}
}

// alreadySeen reports whether the reply identified by key was processed
// or is queued for processing.
func (a *Agent) alreadySeen(key model.ReplyKey) bool {
	a.mu.Lock()
	for _, k := range a.seen {
		if k.Matches(key) {
			a.mu.Unlock()
			return true
		}
	}
	a.mu.Unlock()

	msgs, err := a.history(context.Background())
	if err != nil {
		a.logger.Warn("agent.history.failed", "error", err)
		return false
	}
	for _, m := range msgs {
		if m.Key().Matches(key) || (m.Origin != nil && m.Origin.Matches(key)) {
			return true
		}
	}
	return false
}

func replyKey(child *Agent, ev Event) (model.ReplyKey, bool) {
	if ev.Message != nil {
		return ev.Message.Key(), true
	}
	if ev.Text == "" {
		return model.ReplyKey{}, false
	}
	return model.ReplyKey{Text: ev.Text, Sender: child.Name(), CreatedAt: ev.CreatedAt}, true
}
