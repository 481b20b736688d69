package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ElectronicaGitHub/agented-io/internal/testutil"
	"github.com/ElectronicaGitHub/agented-io/llm"
	"github.com/ElectronicaGitHub/agented-io/model"
)

const delegationTree = `
name: main
prompt: You coordinate helpers.
children:
  - name: forecaster
    prompt: You know the forecast.
  - name: planner
    prompt: You plan trips.
`

func TestDelegationRoundTrip(t *testing.T) {
	mainProvider, mainProc := scripted("main-llm", testutil.Texts(
		delegateTo("forecaster", "Get the forecast for Paris"),
		finishedText("Forecast: sunny"),
	)...)
	childProvider, childProc := scripted("child-llm", testutil.Texts(finishedText("sunny"))...)

	tree := build(t, NewBuilder(parseSchema(t, delegationTree)).
		Backend(routedBackend{routes: map[string]*llm.Processor{"main": mainProc, "forecaster": childProc}}).
		Settings(testSettings()))
	rec := record(tree, EventMainResponse)
	tree.Root().SetContext(model.Context{"user_id": "42"})

	tree.SendMessage("Weather in Paris?", "")

	require.Eventually(t, func() bool {
		return len(rec.texts(EventMainResponse, "main")) == 1 && tree.Root().Status() == model.StatusIdle
	}, waitFor, tick)
	assert.Equal(t, []string{"sunny"}, rec.texts(EventMainResponse, "forecaster"))
	assert.Equal(t, []string{"Forecast: sunny"}, rec.texts(EventMainResponse, "main"))
	assert.Equal(t, 2, mainProvider.Calls())
	assert.Equal(t, 1, childProvider.Calls())

	forecaster, ok := tree.Agent("forecaster")
	require.True(t, ok)
	assert.Equal(t, "main", forecaster.Parent().Name())
	assert.Equal(t, model.StatusIdle, forecaster.Status())

	childMsgs := messages(t, forecaster)
	require.Len(t, childMsgs, 3)
	assert.True(t, childMsgs[0].Contexted, "child history not seeded from parent")
	assert.Equal(t, "Weather in Paris?", childMsgs[0].Text)
	assert.Equal(t, "Get the forecast for Paris", childMsgs[1].Text)
	assert.Equal(t, "main", childMsgs[1].Sender)
	assert.Equal(t, model.RoleMain, childMsgs[1].SenderRole)
	assert.Equal(t, "42", forecaster.Context().String("user_id"), "context not copied")
	assert.Equal(t, "Get the forecast for Paris", forecaster.Context().String(model.CtxInputText))

	rootMsgs := messages(t, tree.Root())
	require.Len(t, rootMsgs, 3)
	assert.Equal(t, "forecaster", rootMsgs[1].Sender)
	assert.Equal(t, model.RoleWorker, rootMsgs[1].SenderRole)
	require.NotNil(t, rootMsgs[1].Origin)
	assert.Equal(t, "sunny", rootMsgs[1].Origin.Text)

	prompts := mainProvider.Prompts()
	assert.Contains(t, prompts[1].NonCacheable, "Child Agents Status: forecaster: Status: IDLE")
	assert.Contains(t, prompts[1].NonCacheable, "planner: Status: IDLE Recent activity: No recent messages")
}

func TestBusyChildShortCircuits(t *testing.T) {
	mainProvider, mainProc := scripted("main-llm", testutil.Texts(
		delegateTo("forecaster", "slow task"),
		delegateTo("forecaster", "slow task again"),
		finishedText("forecaster said done"),
	)...)
	_, childProc := scripted("child-llm", testutil.Reply{Text: finishedText("done"), Delay: 300 * time.Millisecond})

	tree := build(t, NewBuilder(parseSchema(t, delegationTree)).
		Backend(routedBackend{routes: map[string]*llm.Processor{"main": mainProc, "forecaster": childProc}}).
		Settings(testSettings()))
	rec := record(tree, EventMainResponse, EventStatusChanged)

	forecaster, _ := tree.Agent("forecaster")
	root := tree.Root()

	tree.SendMessage("start", "")
	require.Eventually(t, func() bool {
		return forecaster.Status() == model.StatusWorking && root.Status() == model.StatusWaiting
	}, waitFor, tick)

	tree.SendMessage("are you done?", "")
	require.Eventually(t, func() bool { return root.Status() == model.StatusWaitingOnChild }, waitFor, tick)
	assert.Equal(t, []string{"Waiting for response from forecaster"}, rec.texts(EventMainResponse, "main"))

	require.Eventually(t, func() bool { return len(rec.texts(EventMainResponse, "main")) == 2 }, waitFor, tick)
	assert.Equal(t, "forecaster said done", rec.texts(EventMainResponse, "main")[1])

	// The ping loop asks for the last reply too; it must not be processed twice.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, mainProvider.Calls())
	assert.Contains(t, rec.statuses("main"), model.StatusWaitingOnChild)
}

func TestChildReplyWhileSiblingWorks(t *testing.T) {
	mainProvider, mainProc := scripted("main-llm", testutil.Texts(
		`{"actions": [
			{"type": "agent", "name": "forecaster", "specialInstructions": "forecast"},
			{"type": "agent", "name": "planner", "specialInstructions": "plan"}
		], "finished": false}`,
		finishedText("forecast ready"),
		finishedText("both done"),
	)...)
	_, forecastProc := scripted("forecast-llm", testutil.Reply{Text: finishedText("sunny"), Delay: 50 * time.Millisecond})
	_, plannerProc := scripted("planner-llm", testutil.Reply{Text: finishedText("planned"), Delay: 200 * time.Millisecond})

	tree := build(t, NewBuilder(parseSchema(t, delegationTree)).
		Backend(routedBackend{routes: map[string]*llm.Processor{
			"main":       mainProc,
			"forecaster": forecastProc,
			"planner":    plannerProc,
		}}).
		Settings(testSettings()))
	rec := record(tree, EventMainResponse)

	tree.SendMessage("forecast and plan", "")

	require.Eventually(t, func() bool {
		prompts := mainProvider.Prompts()
		return len(prompts) >= 2
	}, waitFor, tick)
	second := mainProvider.Prompts()[1]
	assert.Contains(t, second.NonCacheable, "sunny Waiting for response from: planner")

	require.Eventually(t, func() bool { return len(rec.texts(EventMainResponse, "main")) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"forecast ready", "both done"}, rec.texts(EventMainResponse, "main"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, mainProvider.Calls())
}

func TestPongDeduplication(t *testing.T) {
	mainProvider, mainProc := scripted("main-llm", testutil.Texts(finishedText("got it"))...)

	tree := build(t, NewBuilder(parseSchema(t, delegationTree)).
		Backend(mainProc).
		Settings(testSettings()))
	rec := record(tree, EventMainResponse)
	forecaster, _ := tree.Agent("forecaster")

	reply := model.Message{Text: "rain tomorrow", Sender: "forecaster", SenderRole: model.RoleWorker, CreatedAt: time.Now(), Type: model.ResponseText}
	forecaster.Emit(Event{Type: EventMainResponse, Text: reply.Text, Message: &reply})
	forecaster.Emit(Event{Type: EventPong, Status: model.StatusIdle, Message: &reply})

	require.Eventually(t, func() bool { return len(rec.texts(EventMainResponse, "main")) == 1 }, waitFor, tick)
	forecaster.Emit(Event{Type: EventPong, Status: model.StatusIdle, Message: &reply})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, mainProvider.Calls())

	later := reply
	later.CreatedAt = reply.CreatedAt.Add(time.Second)
	forecaster.Emit(Event{Type: EventPong, Status: model.StatusIdle, Message: &later})
	require.Eventually(t, func() bool { return mainProvider.Calls() == 2 }, waitFor, tick)
}

func TestChildFailureReachesParent(t *testing.T) {
	mainProvider, mainProc := scripted("main-llm", testutil.Texts(
		delegateTo("forecaster", "forecast"),
		finishedText("the forecaster is down"),
	)...)
	_, childProc := scripted("child-llm", testutil.Reply{Err: errors.New("upstream unavailable")})

	settings := testSettings()
	settings.MaxRetries = 1
	tree := build(t, NewBuilder(parseSchema(t, delegationTree)).
		Backend(routedBackend{routes: map[string]*llm.Processor{"main": mainProc, "forecaster": childProc}}).
		Settings(settings))
	rec := record(tree, EventMainResponse)

	tree.SendMessage("forecast please", "")

	require.Eventually(t, func() bool { return len(rec.texts(EventMainResponse, "main")) == 1 }, waitFor, tick)
	forecaster, _ := tree.Agent("forecaster")
	assert.Equal(t, model.StatusError, forecaster.Status())

	rootMsgs := messages(t, tree.Root())
	require.GreaterOrEqual(t, len(rootMsgs), 2)
	assert.Equal(t, "forecaster", rootMsgs[1].Sender)
	assert.Contains(t, rootMsgs[1].Text, "upstream unavailable")
	assert.Equal(t, 2, mainProvider.Calls())
}

func TestPingAnswers(t *testing.T) {
	_, proc := scripted("main-llm", testutil.Texts(finishedText("ok"))...)
	tree := build(t, NewBuilder(parseSchema(t, delegationTree)).
		Backend(proc).
		Settings(testSettings()))
	rec := record(tree, EventPong)
	forecaster, _ := tree.Agent("forecaster")

	forecaster.Emit(Event{Type: EventPing, Agent: "main", Sender: "main"})

	pongs := rec.find(EventPong)
	require.Len(t, pongs, 1)
	assert.Equal(t, "forecaster", pongs[0].Agent)
	assert.Equal(t, model.StatusIdle, pongs[0].Status)
	assert.Equal(t, "Ready", pongs[0].Text)

	// No reply yet: nothing to send back.
	forecaster.Emit(Event{Type: EventRequestLastResponse, Agent: "main", Sender: "main"})
	assert.Len(t, rec.find(EventPong), 1)
}

func TestReflectionRunsOnStart(t *testing.T) {
	mainProvider, mainProc := scripted("main-llm", testutil.Texts(finishedText("following the plan"))...)
	critic := testutil.NewScriptedProvider("critic-llm", testutil.Texts(finishedText("check the weather first"))...)

	tree := build(t, NewBuilder(parseSchema(t, `
name: main
prompt: You help travellers.
children:
  - name: forecaster
reflections:
  - name: critic
    prompt: Keep plans short.
    cron_init_on_start: true
`)).
		Backend(routedBackend{
			routes:   map[string]*llm.Processor{"main": mainProc},
			fallback: testutil.Processor(critic),
		}).
		Settings(testSettings()))
	root := tree.Root()

	require.Eventually(t, func() bool {
		return mainProvider.Calls() == 1 && root.Status() == model.StatusIdle
	}, waitFor, tick)
	assert.Equal(t, 1, critic.Calls())

	reflection, ok := tree.Agent("critic")
	require.True(t, ok)
	assert.Equal(t, model.RoleReflection, reflection.Role())
	assert.Len(t, root.Children(), 1)
	require.Len(t, root.Reflections(), 1)

	base := reflection.BasePrompt()
	assert.Contains(t, base, "You help travellers.")
	assert.Contains(t, base, "Keep plans short.")
	assert.Contains(t, base, `"name": "forecaster"`)

	rootMsgs := messages(t, root)
	require.Len(t, rootMsgs, 2)
	assert.Equal(t, "critic", rootMsgs[0].Sender)
	assert.Equal(t, "check the weather first", rootMsgs[0].Text)
	assert.Equal(t, model.RoleReflection, rootMsgs[0].SenderRole)
	assert.Equal(t, "following the plan", rootMsgs[1].Text)
}

func TestReflectionReplyEvent(t *testing.T) {
	mainProvider, mainProc := scripted("main-llm", testutil.Texts(finishedText("ok"))...)
	critic := testutil.NewScriptedProvider("critic-llm", testutil.Texts(finishedText("slow down"))...)

	tree := build(t, NewBuilder(parseSchema(t, `
name: main
reflections:
  - name: critic
`)).
		Backend(routedBackend{
			routes:   map[string]*llm.Processor{"main": mainProc},
			fallback: testutil.Processor(critic),
		}).
		Settings(testSettings()))
	rec := record(tree, EventReflectionResponse, EventMainResponse)

	reflection, _ := tree.Agent("critic")
	reflection.Process("review the plan", "main")

	require.Eventually(t, func() bool { return len(rec.texts(EventMainResponse, "main")) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"slow down"}, rec.texts(EventReflectionResponse, "critic"))
	assert.Empty(t, rec.texts(EventMainResponse, "critic"))
	assert.Equal(t, 1, mainProvider.Calls())
}

func TestNoPingLoopAfterClose(t *testing.T) {
	_, proc := scripted("primary", testutil.Texts(finishedText("ok"))...)
	tree, err := NewBuilder(parseSchema(t, delegationTree)).
		Backend(proc).
		Settings(testSettings()).
		Build()
	require.NoError(t, err)

	root := tree.Root()
	children := root.Children()
	require.NotEmpty(t, children)

	tree.Close()
	root.startPing(children[0])

	assert.False(t, root.pinging())
	assert.True(t, tree.Idle())
}
