// Agent timers: the work timer and the child ping loops.
//
// Information Hiding:
// - Timer generations so a stale timer never fires on new work
// - Ping goroutine lifecycle hidden

package agent

import (
	"time"

	"github.com/ElectronicaGitHub/agented-io/model"
)

type pingLoop struct {
	stop chan struct{}
}

// startWorkTimer arms the work timer, replacing any previous one.
func (a *Agent) startWorkTimer() {
	timeout := a.config.WorkTimeout
	if timeout <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.workTimer != nil {
		a.workTimer.Stop()
	}
	a.timerGen++
	gen := a.timerGen
	a.workTimer = time.AfterFunc(timeout, func() { a.onWorkTimeout(gen) })
}

func (a *Agent) stopWorkTimer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.workTimer != nil {
		a.workTimer.Stop()
		a.workTimer = nil
	}
	a.timerGen++
}

// onWorkTimeout moves a still WORKING agent to TIMEOUT and cancels its item
// with a *TimeoutError; the queue then reports the failure.
func (a *Agent) onWorkTimeout(gen uint64) {
	a.mu.Lock()
	current := gen == a.timerGen && a.status == model.StatusWorking && a.cancelItem != nil
	item := a.active
	cancel := a.cancelItem
	a.mu.Unlock()
	if !current {
		return
	}

	if !a.transition(item, model.StatusTimeout, "") {
		return
	}
	a.logger.Warn("agent.timeout", "after", a.config.WorkTimeout)
	a.stopAllPings()
	cancel(&TimeoutError{Agent: a.Name(), After: a.config.WorkTimeout})
}

// startPing polls child until it leaves WORKING, then asks for its last
// reply. At most one loop runs per child.
func (a *Agent) startPing(child *Agent) {
	interval := a.config.PingInterval
	if interval <= 0 {
		return
	}

	a.mu.Lock()
	// Checked under mu so Close either sees the loop in stopAllPings or the
	// loop is never started.
	if a.tree.closed.Load() {
		a.mu.Unlock()
		return
	}
	if _, ok := a.pings[child.Name()]; ok {
		a.mu.Unlock()
		return
	}
	loop := &pingLoop{stop: make(chan struct{})}
	a.pings[child.Name()] = loop
	a.pingWG.Add(1)
	a.mu.Unlock()

	go a.runPing(child, loop, interval)
}

func (a *Agent) runPing(child *Agent, loop *pingLoop, interval time.Duration) {
	defer a.pingWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-loop.stop:
			return
		case <-ticker.C:
			if child.Status() != model.StatusWorking {
				// The loop stays registered until the request was answered
				// so the tree does not look idle in between.
				child.Emit(Event{Type: EventRequestLastResponse, Agent: a.Name(), Sender: a.Name()})
				a.removePing(child.Name(), loop)
				return
			}
			child.Emit(Event{Type: EventPing, Agent: a.Name(), Sender: a.Name()})
		}
	}
}

// removePing forgets loop without stopping it.
func (a *Agent) removePing(name string, loop *pingLoop) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pings[name] == loop {
		delete(a.pings, name)
	}
}

func (a *Agent) pinging() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pings) > 0
}

func (a *Agent) stopPing(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if loop, ok := a.pings[name]; ok {
		close(loop.stop)
		delete(a.pings, name)
	}
}

func (a *Agent) stopAllPings() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, loop := range a.pings {
		close(loop.stop)
		delete(a.pings, name)
	}
}
