package calls

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/juicebridge/uid"
)

type owner string

func (o owner) Name() string { return string(o) }

type thing struct {
	refs int
}

func (t *thing) Acquire()        { t.refs++ }
func (t *thing) Release()        { t.refs-- }
func (t *thing) IsRemoved() bool { return false }

type world struct{}

func (world) Entity(uid.UID) (uid.Thing, bool) { return nil, false }
func (world) Unique(uid.UID) (uid.Thing, bool) { return nil, false }
func (world) RemoveUnique(uid.UID)             {}

func TestCapacity(t *testing.T) {
	s := New(Options{Depth: 2})
	g1, ok := s.Reserve("a.js", owner("a"))
	if !ok {
		t.Fatal("first reserve failed")
	}
	g2, ok := s.Reserve("b.js", owner("b"))
	if !ok {
		t.Fatal("second reserve failed")
	}
	if _, ok := s.Reserve("c.js", owner("c")); ok {
		t.Errorf("reserved past capacity")
	}
	if cur, _ := s.Current(); cur != g2.Context() {
		t.Errorf("current is not the innermost context")
	}
	g2.Release()
	g2.Release()
	if s.Depth() != 1 {
		t.Errorf("got depth %v, want 1", s.Depth())
	}
	g1.Release()
	if _, found := s.Current(); found || s.Depth() != 0 {
		t.Errorf("stack not empty after releasing everything")
	}
}

func TestSetCallbackID(t *testing.T) {
	s := New(Options{})
	g, _ := s.Reserve("a.js", owner("a"))
	defer g.Release()
	ctx := g.Context()
	if !ctx.SetCallbackID(4) {
		t.Fatal("first SetCallbackID failed")
	}
	for _, id := range []CallbackID{5, 6} {
		if ctx.SetCallbackID(id) {
			t.Errorf("SetCallbackID(%v) succeeded on a context with a callback", id)
		}
	}
	if got := ctx.CallbackID(); got != 4 {
		t.Errorf("got %v, want the first callback id", got)
	}
}

func TestResetHygiene(t *testing.T) {
	s := New(Options{Depth: 1})
	reg := uid.New(world{})
	things := []*thing{{}, {}}
	for round := 0; round < 2; round++ {
		g, ok := s.Reserve("a.js", owner("a"))
		if !ok {
			t.Fatal("reserve failed")
		}
		ctx := g.Context()
		if ctx.Scratch.Len() != 0 || ctx.Results() != 0 || ctx.Scope.Len() != 0 {
			t.Fatalf("round %v: got a dirty context", round)
		}
		if ctx.CallbackID() != NoCallback || ctx.Timer || ctx.Invalid() {
			t.Fatalf("round %v: flags survived release", round)
		}
		for _, th := range things {
			reg.Assign(ctx.Scratch, th)
		}
		id := ctx.AddResult("pending")
		if got, found := ctx.Result(id); !found || got != "pending" {
			t.Errorf("got %v, %v", got, found)
		}
		ctx.AddResult(3)
		ctx.SetCallbackID(9)
		ctx.Timer = true
		s.Invalidate("a.js")
		g.Release()
	}
	got := []int{things[0].refs, things[1].refs}
	if diff := cmp.Diff([]int{0, 0}, got); diff != "" {
		t.Errorf("scratch references leaked (-want +got):\n%s", diff)
	}
}

func TestResults(t *testing.T) {
	s := New(Options{ResultLimit: 2})
	g, _ := s.Reserve("a.js", owner("a"))
	defer g.Release()
	ctx := g.Context()
	first := ctx.AddResult("a")
	second := ctx.AddResult("b")
	if first == second {
		t.Errorf("result ids collide")
	}
	if !ctx.RemoveResult(first) {
		t.Errorf("RemoveResult(%v) failed", first)
	}
	if ctx.RemoveResult(first) {
		t.Errorf("removed result %v twice", first)
	}
	ctx.AddResult("c")
	ctx.AddResult("d")
	if ctx.Results() > 2 {
		t.Errorf("got %v results, want at most 2", ctx.Results())
	}
}

func TestUnwind(t *testing.T) {
	s := New(Options{})
	outer, _ := s.Reserve("a.js", owner("a"))
	depth := s.Depth()
	s.Reserve("b.js", owner("b"))
	s.Reserve("b.js", owner("b"))
	if n := s.Unwind(depth); n != 2 {
		t.Errorf("got %v unwound, want 2", n)
	}
	if s.Depth() != depth {
		t.Errorf("got depth %v, want %v", s.Depth(), depth)
	}
	if cur, _ := s.Current(); cur != outer.Context() {
		t.Errorf("unwind removed the outer context")
	}
	outer.Release()
}

func TestInvalidate(t *testing.T) {
	s := New(Options{})
	a, _ := s.Reserve("a.js", owner("a"))
	b, _ := s.Reserve("b.js", owner("b"))
	if n := s.Invalidate("a.js"); n != 1 {
		t.Errorf("got %v invalidated, want 1", n)
	}
	if !a.Context().Invalid() || b.Context().Invalid() {
		t.Errorf("wrong contexts invalidated")
	}
	b.Release()
	a.Release()
}
