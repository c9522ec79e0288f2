package worker

// Trigger is an in-process queue-processing signal. Components that make
// jobs eligible (resume, reprocess) kick it; the daemon drains it and runs a
// batch. Kicks coalesce, so a burst of kicks results in at most one pending
// batch.
type Trigger struct {
	ch chan struct{}
}

// NewTrigger creates a trigger with a single pending slot.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Kick requests a queue-processing pass. Never blocks.
func (t *Trigger) Kick() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// C exposes the signal channel for the draining loop.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}
