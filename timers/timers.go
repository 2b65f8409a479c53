// Package timers schedules script callbacks to run later on the dispatcher.
package timers

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge/dispatcher"
	"github.com/zond/juicebridge/faults"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/uid"
	"rogchap.com/v8go"
)

const (
	DefaultMinDelay = 100 * time.Millisecond
)

type EventID uint32

// Scheduler is the host task loop timers post to.
type Scheduler interface {
	Now() time.Time
	PostDelayed(delay time.Duration, f func()) dispatcher.TaskID
	Cancel(id dispatcher.TaskID) bool
}

// Policy decides what happens to captured wrappers of unstable types.
type Policy int

const (
	// PolicyWarn reports the capture and keeps the wrapper.
	PolicyWarn Policy = iota
	// PolicyRewrite reports the capture and replaces the wrapper with the
	// stable handle of its object when it has one.
	PolicyRewrite
)

func (p Policy) String() string {
	if p == PolicyRewrite {
		return "rewrite"
	}
	return "warn"
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "warn", "":
		return PolicyWarn, nil
	case "rewrite":
		return PolicyRewrite, nil
	}
	return PolicyWarn, errors.Errorf("unknown capture policy %q", s)
}

// Capture holds a callback and its arguments until it is released. Wrapped
// arguments are retained, so they outlive the call that scheduled them.
type Capture struct {
	Callback *v8go.Function
	Args     []*v8go.Value
	retained []*marshal.Wrapper
	released bool
}

func (c *Capture) Release() {
	if c.released {
		return
	}
	c.released = true
	for _, w := range c.retained {
		w.Drop()
	}
	c.retained = nil
}

type Event struct {
	ID      EventID
	Source  string
	Task    dispatcher.TaskID
	At      time.Time
	Capture *Capture
}

// Invoker runs a fired event.
type Invoker func(*Event)

type Options struct {
	MinDelay time.Duration
	Policy   Policy
}

type Timers struct {
	scheduler Scheduler
	marshaler *marshal.Marshaler
	sink      faults.Sink
	invoke    Invoker
	minDelay  time.Duration
	policy    Policy
	events    map[EventID]*Event
	next      EventID
}

func New(scheduler Scheduler, marshaler *marshal.Marshaler, sink faults.Sink, invoke Invoker, opts Options) *Timers {
	if opts.MinDelay <= 0 {
		opts.MinDelay = DefaultMinDelay
	}
	return &Timers{
		scheduler: scheduler,
		marshaler: marshaler,
		sink:      sink,
		invoke:    invoke,
		minDelay:  opts.MinDelay,
		policy:    opts.Policy,
		events:    map[EventID]*Event{},
	}
}

func (t *Timers) Policy() Policy {
	return t.policy
}

func (t *Timers) MinDelay() time.Duration {
	return t.minDelay
}

// capture retains the wrappers in args, and in the members of array and
// object arguments, until the returned Capture is released.
func (t *Timers) capture(source string, fn *v8go.Function, args []*v8go.Value) (*Capture, error) {
	c := &Capture{
		Callback: fn,
		Args:     make([]*v8go.Value, len(args)),
	}
	for i, arg := range args {
		val, wrapped, err := t.hold(c, source, fmt.Sprintf("argument %d", i), arg)
		if err != nil {
			c.Release()
			return nil, err
		}
		c.Args[i] = val
		if wrapped {
			continue
		}
		if err := t.holdMembers(c, source, i, arg); err != nil {
			c.Release()
			return nil, err
		}
	}
	return c, nil
}

// holdMembers holds the wrappers directly inside a plain object or array.
// Deeper nesting is not inspected.
func (t *Timers) holdMembers(c *Capture, source string, i int, val *v8go.Value) error {
	if val == nil || !val.IsObject() || val.IsFunction() {
		return nil
	}
	obj, err := val.AsObject()
	if err != nil {
		return errors.WithStack(err)
	}
	if obj.InternalFieldCount() != 0 {
		return nil
	}
	keys, err := t.keys(val)
	if err != nil {
		return err
	}
	for _, key := range keys {
		member, err := obj.Get(key)
		if err != nil {
			return errors.WithStack(err)
		}
		replacement, _, err := t.hold(c, source, fmt.Sprintf("argument %d member %q", i, key), member)
		if err != nil {
			return err
		}
		if replacement != member {
			if err := obj.Set(key, replacement); err != nil {
				return errors.WithStack(err)
			}
		}
	}
	return nil
}

// keys returns Object.keys(val).
func (t *Timers) keys(val *v8go.Value) ([]string, error) {
	ctor, err := t.marshaler.Context().Global().Get("Object")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ctorObj, err := ctor.AsObject()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	keysVal, err := ctorObj.Get("keys")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	keysFn, err := keysVal.AsFunction()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	list, err := keysFn.Call(ctor, val)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	listObj, err := list.AsObject()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	length, err := listObj.Get("length")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	result := make([]string, length.Uint32())
	for i := range result {
		key, err := listObj.GetIdx(uint32(i))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result[i] = key.String()
	}
	return result, nil
}

// hold retains the wrapper behind val, if there is one, and returns the value
// the callback gets in its place.
func (t *Timers) hold(c *Capture, source string, where string, val *v8go.Value) (*v8go.Value, bool, error) {
	w, found := t.marshaler.Unwrap(val)
	if !found {
		return val, false, nil
	}
	if t.marshaler.Types().Unstable(w.Type.ID) {
		f := faults.Fault{
			Kind:    faults.KindCapture,
			Source:  source,
			Message: fmt.Sprintf("%s is a %s that may be gone when the callback fires", where, w.Type.Name),
		}
		if t.policy == PolicyRewrite {
			if id, ok := uid.StableID(w.Object()); ok {
				replacement, err := t.marshaler.ToJS(nil, uint32(id))
				if err != nil {
					return nil, true, err
				}
				f.Message += fmt.Sprintf(", passing handle %v instead", id)
				t.sink.Report(f)
				return replacement, true, nil
			}
			f.Message += ", and it has no stable handle"
		}
		t.sink.Report(f)
	}
	w.Retain()
	c.retained = append(c.retained, w)
	return val, true, nil
}

// Schedule captures fn and args and posts them to run after delay, which is
// raised to the minimum delay if shorter.
func (t *Timers) Schedule(source string, fn *v8go.Function, delay time.Duration, args []*v8go.Value) (EventID, error) {
	if fn == nil {
		return 0, errors.New("no callback to schedule")
	}
	if delay < t.minDelay {
		delay = t.minDelay
	}
	c, err := t.capture(source, fn, args)
	if err != nil {
		return 0, err
	}
	t.next++
	ev := &Event{
		ID:      t.next,
		Source:  source,
		At:      t.scheduler.Now().Add(delay),
		Capture: c,
	}
	id := ev.ID
	ev.Task = t.scheduler.PostDelayed(delay, func() {
		t.fire(id)
	})
	if ev.Task == 0 {
		c.Release()
		return 0, errors.New("scheduler refused the callback")
	}
	t.events[id] = ev
	return id, nil
}

func (t *Timers) fire(id EventID) {
	ev, found := t.events[id]
	if !found {
		return
	}
	delete(t.events, id)
	defer ev.Capture.Release()
	t.invoke(ev)
}

// Cancel returns false for unknown or already fired events.
func (t *Timers) Cancel(id EventID) bool {
	ev, found := t.events[id]
	if !found {
		return false
	}
	delete(t.events, id)
	t.scheduler.Cancel(ev.Task)
	ev.Capture.Release()
	return true
}

// ReleaseAll cancels every pending event.
func (t *Timers) ReleaseAll() int {
	count := 0
	for id := range t.events {
		if t.Cancel(id) {
			count++
		}
	}
	return count
}

func (t *Timers) Len() int {
	return len(t.events)
}

// Pending returns the pending events ordered by id.
func (t *Timers) Pending() []Event {
	result := make([]Event, 0, len(t.events))
	for _, ev := range t.events {
		result = append(result, *ev)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
