// Package js hosts the script runtime: one V8 isolate shared by every
// script source, and the call machinery tying it to the host.
package js

import (
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/calls"
	"github.com/zond/juicebridge/events"
	"github.com/zond/juicebridge/faults"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/pools"
	"github.com/zond/juicebridge/timers"
	"github.com/zond/juicebridge/uid"
	"rogchap.com/v8go"
)

const (
	DefaultTimeout = 200 * time.Millisecond
)

var (
	ErrTimeout         = fmt.Errorf("Timeout")
	ErrNotInitialized  = errors.New("runtime is not initialized")
	ErrInitialized     = errors.New("runtime is already initialized")
	ErrStackExhausted  = errors.New("call context stack exhausted")
	ErrUnknownCallback = errors.New("unknown callback")
)

// Library installs bindings through a Registrar. Libraries are run again
// every time the runtime is initialized.
type Library func(reg *Registrar) error

type Options struct {
	// Timeout bounds every top level entry into script code.
	Timeout time.Duration
	Calls   calls.Options
	Timers  timers.Options
	// Console receives the output of the script log function. Nil means the
	// standard logger.
	Console io.Writer
}

// Runtime is not safe for concurrent use. Every method must be called from
// the goroutine running the host task loop.
type Runtime struct {
	opts      Options
	world     uid.World
	scheduler timers.Scheduler
	sink      faults.Sink
	libraries []Library

	iso        *v8go.Isolate
	vctx       *v8go.Context
	types      *marshal.Types
	classes    *marshal.Classes
	marshaler  *marshal.Marshaler
	registry   *uid.Registry
	stack      *calls.Stack
	events     *events.Registry
	timers     *timers.Timers
	pools      *pools.Set
	interfaces map[string]*Interface
}

func NewRuntime(world uid.World, scheduler timers.Scheduler, sink faults.Sink, opts Options) *Runtime {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Console == nil {
		opts.Console = log.Writer()
	}
	return &Runtime{
		opts:       opts,
		world:      world,
		scheduler:  scheduler,
		sink:       sink,
		interfaces: map[string]*Interface{},
	}
}

// Install adds lib to the libraries of the runtime, and runs it right away
// if the runtime is initialized.
func (r *Runtime) Install(lib Library) error {
	r.libraries = append(r.libraries, lib)
	if r.iso == nil {
		return nil
	}
	return lib(&Registrar{rt: r})
}

func (r *Runtime) Initialized() bool {
	return r.iso != nil
}

func (r *Runtime) Init() error {
	if r.iso != nil {
		return juicebridge.WithStack(ErrInitialized)
	}
	r.iso = v8go.NewIsolate()
	r.vctx = v8go.NewContext(r.iso)
	r.types = marshal.NewTypes()
	r.classes = marshal.NewClasses(r.types)
	r.marshaler = marshal.NewMarshaler(r.vctx, r.types, r.classes)
	r.registry = uid.New(r.world)
	r.stack = calls.New(r.opts.Calls)
	r.events = events.New()
	r.timers = timers.New(r.scheduler, r.marshaler, r.sink, r.fire, r.opts.Timers)
	r.pools = &pools.Set{}
	reg := &Registrar{rt: r}
	if err := reg.BindFunction("log", logFunc(r.opts.Console)); err != nil {
		return err
	}
	for _, lib := range r.libraries {
		if err := lib(reg); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the resources of every interface, then the isolate. The
// interfaces stay known, so ReInit can load them again.
func (r *Runtime) Close() {
	if r.iso == nil {
		return
	}
	for _, iface := range r.interfaces {
		r.OnReloadSource(iface.name)
		iface.loaded = false
	}
	r.stack.Unwind(0)
	r.timers.ReleaseAll()
	r.events.Reset()
	r.marshaler.Close()
	r.vctx.Close()
	r.iso.Dispose()
	r.iso = nil
	r.vctx = nil
}

// ReInit closes and initializes the runtime, then loads every known
// interface with the code it last loaded.
func (r *Runtime) ReInit() error {
	r.Close()
	if err := r.Init(); err != nil {
		return err
	}
	var errs []error
	for _, iface := range r.Interfaces() {
		if iface.code == "" {
			continue
		}
		if err := iface.Load(iface.code); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// OnReloadSource releases the pools and callbacks of source, and marks the
// contexts running its code invalid. It returns the number of released
// pool entries and callbacks.
func (r *Runtime) OnReloadSource(source string) int {
	if r.iso == nil {
		return 0
	}
	r.stack.Invalidate(source)
	if iface, found := r.interfaces[source]; found {
		iface.handlers = map[string]calls.CallbackID{}
	}
	return r.pools.ReleaseAll(source) + r.events.ReleaseSource(source)
}

// Interface returns the interface of source, creating it if needed.
func (r *Runtime) Interface(source string) *Interface {
	if iface, found := r.interfaces[source]; found {
		return iface
	}
	iface := &Interface{
		rt:       r,
		name:     source,
		handlers: map[string]calls.CallbackID{},
	}
	r.interfaces[source] = iface
	return iface
}

func (r *Runtime) Lookup(source string) (*Interface, bool) {
	iface, found := r.interfaces[source]
	return iface, found
}

// Interfaces returns every known interface ordered by name.
func (r *Runtime) Interfaces() []*Interface {
	result := make([]*Interface, 0, len(r.interfaces))
	for _, iface := range r.interfaces {
		result = append(result, iface)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].name < result[j].name
	})
	return result
}

func (r *Runtime) Context() *v8go.Context {
	return r.vctx
}

func (r *Runtime) Types() *marshal.Types {
	return r.types
}

func (r *Runtime) Marshaler() *marshal.Marshaler {
	return r.marshaler
}

func (r *Runtime) Stack() *calls.Stack {
	return r.stack
}

func (r *Runtime) Events() *events.Registry {
	return r.events
}

func (r *Runtime) Timers() *timers.Timers {
	return r.timers
}

func (r *Runtime) Pools() *pools.Set {
	return r.pools
}

type Stats struct {
	Interfaces int
	Loaded     int
	Callbacks  int
	Timers     int
	Wrappers   int
	Depth      int
}

func (r *Runtime) Stats() Stats {
	s := Stats{Interfaces: len(r.interfaces)}
	for _, iface := range r.interfaces {
		if iface.loaded {
			s.Loaded++
		}
	}
	if r.iso != nil {
		s.Callbacks = r.events.Len()
		s.Timers = r.timers.Len()
		s.Wrappers = r.marshaler.Live()
		s.Depth = r.stack.Depth()
	}
	return s
}

// fire runs a deferred callback as a fresh top level call.
func (r *Runtime) fire(ev *timers.Event) {
	inv := invocation{source: ev.Source, timer: true}
	if iface, found := r.interfaces[ev.Source]; found {
		inv.owner = iface
	}
	args := make([]v8go.Valuer, len(ev.Capture.Args))
	for i, arg := range ev.Capture.Args {
		args[i] = arg
	}
	r.protect(inv, func(*calls.Context) (*v8go.Value, error) {
		return ev.Capture.Callback.Call(r.vctx.Global(), args...)
	})
}

func logFunc(w io.Writer) Callback {
	return func(rc *RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		anyArgs := []any{fmt.Sprintf("[%s]", rc.Source())}
		for _, arg := range info.Args() {
			stringArg := arg.String()
			if stringArg == "[object Object]" {
				jsonArg, err := v8go.JSONStringify(rc.Context(), arg)
				if err == nil {
					stringArg = jsonArg
				}
			}
			anyArgs = append(anyArgs, stringArg)
		}
		log.New(w, "", 0).Println(anyArgs...)
		return nil
	}
}
