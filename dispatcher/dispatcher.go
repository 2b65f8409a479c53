// Package dispatcher runs every script entry of the server on one goroutine.
package dispatcher

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
)

var (
	ErrClosed = errors.New("dispatcher is closed")
)

type TaskID uint64

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Dispatcher is a cooperative task loop. Tasks run one at a time, ordered by
// due time with ties in post order. Posting and cancelling is safe from any
// goroutine.
type Dispatcher struct {
	clock   Clock
	mu      sync.Mutex
	queue   queue
	pending map[TaskID]*task
	nextID  TaskID
	closed  bool
	started bool
	wake    chan struct{}
	done    chan struct{}
}

// New returns a dispatcher using clock, or the system clock if clock is nil.
func New(clock Clock) *Dispatcher {
	if clock == nil {
		clock = systemClock{}
	}
	return &Dispatcher{
		clock:   clock,
		pending: map[TaskID]*task{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Now() time.Time {
	return d.clock.Now()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// PostDelayed schedules f to run after delay. It returns 0 if the dispatcher
// is closed.
func (d *Dispatcher) PostDelayed(delay time.Duration, f func()) TaskID {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0
	}
	d.nextID++
	t := &task{
		id: d.nextID,
		at: d.clock.Now().Add(delay),
		f:  f,
	}
	d.pending[t.id] = t
	d.queue.push(t)
	d.mu.Unlock()
	d.signal()
	return t.id
}

func (d *Dispatcher) Post(f func()) TaskID {
	return d.PostDelayed(0, f)
}

// Cancel returns false if the task already ran, was cancelled, or never
// existed.
func (d *Dispatcher) Cancel(id TaskID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, found := d.pending[id]; !found {
		return false
	}
	delete(d.pending, id)
	return true
}

func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// first returns the first task not cancelled, dropping cancelled ones from
// the queue. Callers hold mu.
func (d *Dispatcher) first() (*task, bool) {
	for {
		top, found := d.queue.peek()
		if !found {
			return nil, false
		}
		if _, live := d.pending[top.id]; live {
			return top, true
		}
		d.queue.pop()
	}
}

func (d *Dispatcher) next(now time.Time) (*task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	top, found := d.first()
	if !found || top.at.After(now) {
		return nil, false
	}
	d.queue.pop()
	delete(d.pending, top.id)
	return top, true
}

func (d *Dispatcher) nextAt() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	top, found := d.first()
	if !found {
		return time.Time{}, false
	}
	return top.at, true
}

func (d *Dispatcher) run(t *task) {
	defer func() {
		if e := recover(); e != nil {
			log.Printf("task %v panicked: %v", t.id, e)
		}
	}()
	t.f()
}

// RunDue runs every task due now on the calling goroutine and returns how
// many ran.
func (d *Dispatcher) RunDue() int {
	count := 0
	now := d.clock.Now()
	for {
		t, found := d.next(now)
		if !found {
			return count
		}
		d.run(t)
		count++
	}
}

// Do runs f on the dispatcher and waits for it. It must not be called from a
// task.
func (d *Dispatcher) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if id := d.Post(func() {
		defer close(finished)
		f()
	}); id == 0 {
		return juicebridge.WithStack(ErrClosed)
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return juicebridge.WithStack(ctx.Err())
	}
}

// Start runs tasks until Close is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started || d.closed {
		d.mu.Unlock()
		return errors.New("dispatcher already started or closed")
	}
	d.started = true
	d.mu.Unlock()
	defer close(d.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return nil
		}

		d.RunDue()

		var timerC <-chan time.Time
		if at, found := d.nextAt(); found {
			if wait := at.Sub(d.clock.Now()); wait > 0 {
				timer.Reset(wait)
				timerC = timer.C
			} else {
				continue
			}
		}

		select {
		case <-timerC:
		case <-d.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-ctx.Done():
			return juicebridge.WithStack(ctx.Err())
		}
	}
}

// Close stops the loop and waits for Start to return. Tasks still queued are
// dropped.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.pending = map[TaskID]*task{}
	started := d.started
	d.mu.Unlock()
	if started {
		d.signal()
		<-d.done
	}
	return nil
}
