// Response dispatcher.
//
// Information Hiding:
// - Action ordering and cohort assembly hidden
// - Delegation (history seeding, context copy) hidden
// - Terminal reply routing (main vs reflection) hidden

package agent

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/ElectronicaGitHub/agented-io/model"
	"github.com/ElectronicaGitHub/agented-io/tools"
)

// dispatchPlan collects what a reply asked for while its actions are
// walked in order.
type dispatchPlan struct {
	texts     []string
	calls     []tools.Invocation
	busy      []*Agent
	delegated bool
	missing   bool
}

// dispatch executes the actions of a validated reply. It ends by settling
// the status, then routing a terminal reply or re-queueing work on this
// agent.
func (a *Agent) dispatch(ctx context.Context, item model.WorkItem, d decision) error {
	resp := d.response
	var plan dispatchPlan

	for _, action := range resp.Actions {
		if ctx.Err() != nil {
			return nil
		}
		switch action.Type {
		case model.ResponseText:
			plan.texts = append(plan.texts, action.Text)
			a.Emit(Event{Type: EventResponse, Text: action.Text})
		case model.ResponseFunction:
			plan.calls = append(plan.calls, tools.Invocation{Name: action.FunctionName, Params: action.ParamsToPass})
		case model.ResponseAgent:
			if err := a.delegate(ctx, action, &plan); err != nil {
				return err
			}
		}
	}
	if ctx.Err() != nil {
		return nil
	}

	text := strings.Join(plan.texts, "\n")
	switch {
	case len(plan.calls) > 0:
		if err := a.recordIntermediate(ctx, text, resp, d.usage); err != nil {
			return err
		}
		return a.runCohort(ctx, plan.calls)

	case len(plan.busy) > 0:
		msg, err := a.reply(ctx, text, resp, d.usage)
		if err != nil {
			return err
		}
		a.settle(model.StatusWaitingOnChild)
		a.route(msg)
		for _, child := range plan.busy {
			a.startPing(child)
		}
		return nil

	case plan.missing:
		a.settle(model.StatusWaiting)
		a.Process(text, a.Name())
		return nil

	case resp.Finished:
		var msg *model.Message
		if text != "" {
			m, err := a.reply(ctx, text, resp, d.usage)
			if err != nil {
				return err
			}
			msg = &m
		}
		if plan.delegated {
			a.settle(model.StatusWaiting)
		} else {
			a.settle(model.StatusIdle)
		}
		if msg != nil {
			a.route(*msg)
		}
		return nil

	case plan.delegated:
		if err := a.recordIntermediate(ctx, text, resp, d.usage); err != nil {
			return err
		}
		a.settle(model.StatusWaiting)
		return nil

	default:
		a.logger.Debug("agent.continue", "item_type", item.Type, "length", len(text))
		a.settle(model.StatusWaiting)
		a.Process(text, a.Name())
		return nil
	}
}

// delegate hands an agent action to the named child. A busy child is not
// interrupted; the reply says so and the child is pinged until it is done.
func (a *Agent) delegate(ctx context.Context, action model.Action, plan *dispatchPlan) error {
	child := a.child(action.Name)
	if child == nil {
		a.logger.Warn("agent.child.missing", "child", action.Name)
		plan.texts = append(plan.texts, fmt.Sprintf("Agent %s not found", action.Name))
		plan.missing = true
		return nil
	}

	if child.Status() == model.StatusWorking {
		plan.texts = append(plan.texts, "Waiting for response from "+child.Name())
		plan.busy = append(plan.busy, child)
		return nil
	}

	history, err := a.history(ctx)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if err := child.SetInitialMessages(ctx, history); err != nil {
		return fmt.Errorf("failed to seed %s: %w", child.Name(), err)
	}
	child.SetContext(a.Context())

	a.logger.Debug("agent.delegate", "child", child.Name())
	child.Process(action.SpecialInstructions, a.Name())
	plan.delegated = true
	return nil
}

// runCohort executes the function calls of one reply and feeds the wrapped
// results back into this agent.
func (a *Agent) runCohort(ctx context.Context, calls []tools.Invocation) error {
	outcomes := a.executor.Run(ctx, a.functions, calls, a.Context())
	if ctx.Err() != nil {
		return nil
	}

	var commands []model.Command
	updates := make(map[string]any)
	names := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		names = append(names, o.Name)
		if o.Err != nil {
			continue
		}
		commands = append(commands, o.Result.Commands...)
		maps.Copy(updates, o.Result.ContextUpdates)
	}
	if len(updates) > 0 {
		a.UpdateContext(updates)
	}
	if len(commands) > 0 {
		cmd := model.Message{
			Sender:     a.Name(),
			SenderRole: a.Role(),
			CreatedAt:  time.Now(),
			Type:       model.ResponseCommand,
			Commands:   commands,
		}
		if err := a.appendHistory(ctx, cmd); err != nil {
			return fmt.Errorf("failed to record commands: %w", err)
		}
	}

	text := tools.Format(outcomes)
	typ := model.ResponseFunction
	if len(calls) > 1 {
		typ = model.ResponseMultipleFunctions
	}
	a.Emit(Event{Type: EventResponse, Text: text})

	a.settle(model.StatusWaiting)
	a.Process(text, a.Name(), WithType(typ), WithFunctionName(strings.Join(names, ", ")))
	return nil
}

// reply records a terminal reply and ends the flow.
func (a *Agent) reply(ctx context.Context, text string, resp model.UnifiedResponse, usage *model.Usage) (model.Message, error) {
	msg := model.Message{
		Text:        text,
		Sender:      a.Name(),
		SenderRole:  a.Role(),
		CreatedAt:   time.Now(),
		Type:        model.ResponseText,
		Explanation: resp.Explanation,
		Usage:       usage,
	}
	if err := a.appendHistory(ctx, msg); err != nil {
		return model.Message{}, fmt.Errorf("failed to record reply: %w", err)
	}

	a.mu.Lock()
	a.flowLength = 0
	a.mu.Unlock()
	return msg, nil
}

// route sends a terminal reply upward. It runs after the status settled so
// the parent sees this agent as no longer WORKING.
func (a *Agent) route(msg model.Message) {
	typ := EventMainResponse
	if a.config.IsReflection() {
		typ = EventReflectionResponse
	}
	a.Emit(Event{Type: typ, Text: msg.Text, Message: &msg})
}

func (a *Agent) recordIntermediate(ctx context.Context, text string, resp model.UnifiedResponse, usage *model.Usage) error {
	if text == "" {
		return nil
	}
	msg := model.Message{
		Text:        text,
		Sender:      a.Name(),
		SenderRole:  a.Role(),
		CreatedAt:   time.Now(),
		Type:        model.ResponseText,
		Explanation: resp.Explanation,
		Usage:       usage,
	}
	if err := a.appendHistory(ctx, msg); err != nil {
		return fmt.Errorf("failed to record response: %w", err)
	}
	return nil
}

// settle ends the current pass.
func (a *Agent) settle(s model.Status) {
	a.stopWorkTimer()
	a.setStatus(s, "")
}

func (a *Agent) child(name string) *Agent {
	for _, c := range a.children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}
