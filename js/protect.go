package js

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/juicebridge"
	"github.com/zond/juicebridge/calls"
	"github.com/zond/juicebridge/faults"
	"rogchap.com/v8go"
)

// invocation describes one entry into script code.
type invocation struct {
	source   string
	owner    calls.Owner
	callback calls.CallbackID
	timer    bool
}

func (r *Runtime) describe(inv invocation) string {
	if inv.callback != calls.NoCallback && r.events != nil {
		return r.events.Describe(inv.callback)
	}
	return inv.source
}

func (r *Runtime) report(kind faults.Kind, inv invocation, err error) {
	f := faults.FromError(kind, inv.source, err)
	if inv.callback != calls.NoCallback {
		f.Callback = r.events.Describe(inv.callback)
	}
	r.sink.Report(f)
}

type result struct {
	value *v8go.Value
	err   error
}

// withTimeout runs f on another goroutine while this one waits, and
// terminates script execution if f overruns. It always waits for f to
// return, so no script code is running when it returns.
func (r *Runtime) withTimeout(f func() (*v8go.Value, error)) (*v8go.Value, error) {
	results := make(chan result, 1)
	go func() {
		val, err := f()
		results <- result{value: val, err: err}
	}()

	timer := time.NewTimer(r.opts.Timeout)
	defer timer.Stop()
	select {
	case res := <-results:
		return res.value, juicebridge.WithStack(res.err)
	case <-timer.C:
		r.iso.TerminateExecution()
		<-results
		return nil, juicebridge.WithStack(ErrTimeout)
	}
}

// protect reserves a call context, runs f in it and converts the result.
// Faults are reported and returned, never panicked. The context is reset
// however f ends.
func (r *Runtime) protect(inv invocation, f func(ctx *calls.Context) (*v8go.Value, error)) (any, error) {
	if r.iso == nil {
		return nil, juicebridge.WithStack(ErrNotInitialized)
	}
	depth := r.stack.Depth()
	guard, ok := r.stack.Reserve(inv.source, inv.owner)
	if !ok {
		err := errors.Wrapf(ErrStackExhausted, "calling %s at depth %d", r.describe(inv), depth)
		r.report(faults.KindReentrancy, inv, err)
		return nil, err
	}
	defer guard.Release()
	ctx := guard.Context()
	ctx.Timer = inv.timer
	if inv.callback != calls.NoCallback {
		ctx.SetCallbackID(inv.callback)
	}

	run := func() (*v8go.Value, error) {
		return f(ctx)
	}
	var val *v8go.Value
	var err error
	if depth == 0 {
		val, err = r.withTimeout(run)
	} else {
		val, err = run()
	}

	if got := r.stack.Depth(); got != depth+1 {
		unwound := r.stack.Unwind(depth + 1)
		r.report(faults.KindStack, inv, fmt.Errorf("call context stack at depth %d after calling %s, want %d (released %d)", got, r.describe(inv), depth+1, unwound))
	}

	if err != nil {
		kind := faults.KindScript
		if errors.Is(err, ErrTimeout) {
			kind = faults.KindTimeout
		}
		r.report(kind, inv, err)
		return nil, err
	}
	res, err := r.marshaler.FromJS(val)
	if err != nil {
		r.report(faults.KindScript, inv, err)
		return nil, err
	}
	return res, nil
}
