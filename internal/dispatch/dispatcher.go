package dispatch

import (
	"runtime/debug"
	"sync"

	"inapppay/pkg/logging"
)

// Dispatcher runs submitted tasks one at a time, in submission order, on a
// single goroutine. Session and catalog state is only touched from tasks.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// New creates a dispatcher and starts its goroutine
func New() *Dispatcher {
	d := &Dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Submit queues fn. It never blocks and returns false once the dispatcher
// is closed.
func (d *Dispatcher) Submit(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.tasks = append(d.tasks, fn)
	d.cond.Signal()
	return true
}

// Sync blocks until every task submitted before the call has run.
// Must not be called from a task.
func (d *Dispatcher) Sync() {
	ch := make(chan struct{})
	if !d.Submit(func() { close(ch) }) {
		return
	}
	<-ch
}

// Close stops accepting tasks, drains the queue and waits for the goroutine
// to exit. Must not be called from a task.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.tasks) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.tasks) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.tasks[0]
		d.tasks[0] = nil
		d.tasks = d.tasks[1:]
		d.mu.Unlock()

		d.execute(fn)
	}
}

func (d *Dispatcher) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("dispatcher task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}
