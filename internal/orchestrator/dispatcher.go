package orchestrator

import (
	"context"
	"sync"
)

// Dispatcher fans inbound events out to the orchestrator, one goroutine per
// event. The orchestrator serializes same-user events internally and lets a
// long generation poll run unlocked, so a /restart lands while its user's
// poll is still in flight; cross-user events proceed in parallel.
type Dispatcher struct {
	orch *Orchestrator
	wg   sync.WaitGroup
}

// NewDispatcher wraps the orchestrator for asynchronous event handling.
func NewDispatcher(orch *Orchestrator) *Dispatcher {
	return &Dispatcher{orch: orch}
}

// Dispatch handles the event asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.orch.Handle(ctx, ev)
	}()
}

// Wait blocks until all in-flight events have been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
