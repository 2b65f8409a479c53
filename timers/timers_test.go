package timers

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/juicebridge/dispatcher"
	"github.com/zond/juicebridge/faults"
	"github.com/zond/juicebridge/marshal"
	"github.com/zond/juicebridge/uid"
	"rogchap.com/v8go"
)

type creature struct {
	id   uid.UID
	refs int
}

func (c *creature) Acquire()         { c.refs++ }
func (c *creature) Release()         { c.refs-- }
func (c *creature) IsRemoved() bool  { return false }
func (c *creature) EntityID() uid.UID { return c.id }

type effect struct{}

type sink struct {
	faults []faults.Fault
}

func (s *sink) Report(f faults.Fault) {
	s.faults = append(s.faults, f)
}

type fixture struct {
	clock     *dispatcher.ManualClock
	disp      *dispatcher.Dispatcher
	vctx      *v8go.Context
	marshaler *marshal.Marshaler
	sink      *sink
	timers    *Timers
	done      func()
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	types := marshal.NewTypes()
	for _, name := range []string{"Creature", "Effect"} {
		if _, err := types.Declare(name, ""); err != nil {
			t.Fatal(err)
		}
		if err := types.SetUnstable(name, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := marshal.Bind[*creature](types, "Creature"); err != nil {
		t.Fatal(err)
	}
	if err := marshal.Bind[*effect](types, "Effect"); err != nil {
		t.Fatal(err)
	}
	iso := v8go.NewIsolate()
	vctx := v8go.NewContext(iso)
	if _, err := vctx.RunScript(`
var fired = [];
function mk(name) {
	return function() {
		fired.push([name].concat(Array.prototype.slice.call(arguments)));
	};
}`, "timers.js"); err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		clock:     dispatcher.NewManualClock(time.Unix(0, 0)),
		vctx:      vctx,
		marshaler: marshal.NewMarshaler(vctx, types, marshal.NewClasses(types)),
		sink:      &sink{},
		done: func() {
			vctx.Close()
			iso.Dispose()
		},
	}
	f.disp = dispatcher.New(f.clock)
	f.timers = New(f.disp, f.marshaler, f.sink, func(ev *Event) {
		if _, err := ev.Capture.Callback.Call(vctx.Global(), toValuers(ev.Capture.Args)...); err != nil {
			t.Error(err)
		}
	}, opts)
	return f
}

func toValuers(args []*v8go.Value) []v8go.Valuer {
	result := make([]v8go.Valuer, len(args))
	for i, arg := range args {
		result[i] = arg
	}
	return result
}

func (f *fixture) callback(t *testing.T, name string) *v8go.Function {
	t.Helper()
	val, err := f.vctx.RunScript("mk('"+name+"')", "mk.js")
	if err != nil {
		t.Fatal(err)
	}
	fn, err := val.AsFunction()
	if err != nil {
		t.Fatal(err)
	}
	return fn
}

func (f *fixture) fired(t *testing.T) string {
	t.Helper()
	val, err := f.vctx.RunScript("JSON.stringify(fired)", "fired.js")
	if err != nil {
		t.Fatal(err)
	}
	return val.String()
}

func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.disp.RunDue()
}

func TestOrdering(t *testing.T) {
	f := newFixture(t, Options{MinDelay: time.Millisecond})
	defer f.done()
	for _, tc := range []struct {
		name  string
		delay time.Duration
	}{
		{"50", 50 * time.Millisecond},
		{"10a", 10 * time.Millisecond},
		{"10b", 10 * time.Millisecond},
		{"30", 30 * time.Millisecond},
	} {
		if _, err := f.timers.Schedule("a.js", f.callback(t, tc.name), tc.delay, nil); err != nil {
			t.Fatal(err)
		}
	}
	f.advance(time.Second)
	if diff := cmp.Diff(`[["10a"],["10b"],["30"],["50"]]`, f.fired(t)); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
	if f.timers.Len() != 0 {
		t.Errorf("got %v pending events, want 0", f.timers.Len())
	}
}

func TestMinDelay(t *testing.T) {
	f := newFixture(t, Options{})
	defer f.done()
	one, _ := v8go.NewValue(f.vctx.Isolate(), int32(1))
	if _, err := f.timers.Schedule("a.js", f.callback(t, "x"), 10*time.Millisecond, []*v8go.Value{one}); err != nil {
		t.Fatal(err)
	}
	f.advance(50 * time.Millisecond)
	if got := f.fired(t); got != "[]" {
		t.Errorf("fired before the minimum delay: %v", got)
	}
	f.advance(50 * time.Millisecond)
	if got := f.fired(t); got != `[["x",1]]` {
		t.Errorf("got %v", got)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t, Options{})
	defer f.done()
	id, err := f.timers.Schedule("a.js", f.callback(t, "x"), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	other, _ := f.timers.Schedule("a.js", f.callback(t, "y"), 0, nil)
	if !f.timers.Cancel(id) {
		t.Errorf("Cancel(%v) failed", id)
	}
	if f.timers.Cancel(id) {
		t.Errorf("cancelled %v twice", id)
	}
	f.advance(time.Second)
	if got := f.fired(t); got != `[["y"]]` {
		t.Errorf("got %v", got)
	}
	if f.timers.Cancel(other) {
		t.Errorf("cancelled a fired event")
	}
	if f.timers.Cancel(999) {
		t.Errorf("cancelled an unknown event")
	}
}

func TestCaptureRetains(t *testing.T) {
	f := newFixture(t, Options{})
	defer f.done()
	scope := &marshal.Scope{}
	c := &creature{id: uid.FirstEntity + 1}
	arg, err := marshal.Wrap(f.marshaler, scope, marshal.Own(c))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.timers.Schedule("a.js", f.callback(t, "x"), 0, []*v8go.Value{arg}); err != nil {
		t.Fatal(err)
	}
	scope.Reset()
	if c.refs != 1 {
		t.Errorf("captured wrapper released early, refs %v", c.refs)
	}
	if len(f.sink.faults) != 1 || f.sink.faults[0].Kind != faults.KindCapture {
		t.Errorf("unsafe capture not reported: %+v", f.sink.faults)
	}
	f.advance(time.Second)
	if c.refs != 0 {
		t.Errorf("capture not released after firing, refs %v", c.refs)
	}
	if f.marshaler.Live() != 0 {
		t.Errorf("got %v live wrappers", f.marshaler.Live())
	}
}

func TestRewritePolicy(t *testing.T) {
	f := newFixture(t, Options{Policy: PolicyRewrite})
	defer f.done()
	scope := &marshal.Scope{}
	c := &creature{id: uid.FirstEntity + 2}
	creatureArg, _ := marshal.Wrap(f.marshaler, scope, marshal.Own(c))
	effectArg, _ := marshal.WrapWeak(f.marshaler, scope, marshal.Observe(&effect{}))
	if _, err := f.timers.Schedule("a.js", f.callback(t, "x"), 0, []*v8go.Value{creatureArg, effectArg}); err != nil {
		t.Fatal(err)
	}
	scope.Reset()
	if c.refs != 0 {
		t.Errorf("rewritten argument still retained")
	}
	if len(f.sink.faults) != 2 {
		t.Errorf("got %v reports, want 2", len(f.sink.faults))
	}
	f.advance(time.Second)
	if got := f.fired(t); got != `[["x",268435458,{}]]` {
		t.Errorf("got %v", got)
	}
}

// nest returns [[a], {target: b}] built by the script.
func (f *fixture) nest(t *testing.T, a, b *v8go.Value) (*v8go.Value, *v8go.Value) {
	t.Helper()
	val, err := f.vctx.RunScript("(function(a, b) { return [[a], {target: b}]; })", "nest.js")
	if err != nil {
		t.Fatal(err)
	}
	fn, err := val.AsFunction()
	if err != nil {
		t.Fatal(err)
	}
	pair, err := fn.Call(f.vctx.Global(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := pair.AsObject()
	if err != nil {
		t.Fatal(err)
	}
	list, err := obj.GetIdx(0)
	if err != nil {
		t.Fatal(err)
	}
	dict, err := obj.GetIdx(1)
	if err != nil {
		t.Fatal(err)
	}
	return list, dict
}

func TestCaptureNested(t *testing.T) {
	for _, tc := range []struct {
		policy   Policy
		refs     int
		wantFire string
	}{
		{PolicyWarn, 1, ""},
		{PolicyRewrite, 0, `[["x",[268435459],{"target":268435460}]]`},
	} {
		t.Run(tc.policy.String(), func(t *testing.T) {
			f := newFixture(t, Options{Policy: tc.policy})
			defer f.done()
			scope := &marshal.Scope{}
			first := &creature{id: uid.FirstEntity + 3}
			second := &creature{id: uid.FirstEntity + 4}
			a, err := marshal.Wrap(f.marshaler, scope, marshal.Own(first))
			if err != nil {
				t.Fatal(err)
			}
			b, err := marshal.Wrap(f.marshaler, scope, marshal.Own(second))
			if err != nil {
				t.Fatal(err)
			}
			list, dict := f.nest(t, a, b)
			if _, err := f.timers.Schedule("a.js", f.callback(t, "x"), 0, []*v8go.Value{list, dict}); err != nil {
				t.Fatal(err)
			}
			scope.Reset()
			if first.refs != tc.refs || second.refs != tc.refs {
				t.Errorf("got refs %v and %v, want %v", first.refs, second.refs, tc.refs)
			}
			kinds := []faults.Kind{}
			for _, fault := range f.sink.faults {
				kinds = append(kinds, fault.Kind)
			}
			if diff := cmp.Diff([]faults.Kind{faults.KindCapture, faults.KindCapture}, kinds); diff != "" {
				t.Errorf("-want +got:\n%s", diff)
			}
			f.advance(time.Second)
			if first.refs != 0 || second.refs != 0 {
				t.Errorf("capture not released after firing, refs %v and %v", first.refs, second.refs)
			}
			if tc.wantFire != "" {
				if got := f.fired(t); got != tc.wantFire {
					t.Errorf("got %v, want %v", got, tc.wantFire)
				}
			}
		})
	}
}

func TestReleaseAll(t *testing.T) {
	f := newFixture(t, Options{})
	defer f.done()
	for _, name := range []string{"a", "b"} {
		f.timers.Schedule("a.js", f.callback(t, name), time.Second, nil)
	}
	if n := f.timers.ReleaseAll(); n != 2 {
		t.Errorf("got %v released, want 2", n)
	}
	if f.disp.Pending() != 0 {
		t.Errorf("dispatcher tasks not cancelled")
	}
	f.advance(time.Hour)
	if got := f.fired(t); got != "[]" {
		t.Errorf("got %v", got)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyWarn, "warn": PolicyWarn, "rewrite": PolicyRewrite} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("panic"); err == nil {
		t.Errorf("accepted an unknown policy")
	}
}
