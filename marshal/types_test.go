package marshal

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type thing struct {
	name    string
	removed bool
	refs    int
}

func (t *thing) Acquire()        { t.refs++ }
func (t *thing) Release()        { t.refs-- }
func (t *thing) IsRemoved() bool { return t.removed }

type item struct {
	thing
	count int
}

type container struct {
	item
	capacity int
}

type creature struct {
	thing
	health int
}

func chain(t *testing.T) *Types {
	t.Helper()
	types := NewTypes()
	for _, decl := range [][2]string{
		{"Thing", ""},
		{"Item", "Thing"},
		{"Container", "Item"},
		{"Creature", "Thing"},
	} {
		if _, err := types.Declare(decl[0], decl[1]); err != nil {
			t.Fatal(err)
		}
	}
	if err := Bind[*thing](types, "Thing"); err != nil {
		t.Fatal(err)
	}
	if err := BindBase(types, "Item", func(i *item) *thing { return &i.thing }); err != nil {
		t.Fatal(err)
	}
	if err := BindBase(types, "Container", func(c *container) *item { return &c.item }); err != nil {
		t.Fatal(err)
	}
	if err := BindBase(types, "Creature", func(c *creature) *thing { return &c.thing }); err != nil {
		t.Fatal(err)
	}
	return types
}

func TestDeclare(t *testing.T) {
	types := chain(t)
	if _, err := types.Declare("Item", ""); !errors.Is(err, ErrDuplicateType) {
		t.Errorf("got %v, want ErrDuplicateType", err)
	}
	if _, err := types.Declare("Monster", "Npc"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("got %v, want ErrUnknownType", err)
	}
	c, _ := types.Named("Container")
	if c.Depth != 2 {
		t.Errorf("got depth %v, want 2", c.Depth)
	}
	if err := Bind[*item](types, "Creature"); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("got %v, want ErrAlreadyBound", err)
	}
	if err := BindBase(types, "Item", func(c *creature) *item { return nil }); err == nil {
		t.Errorf("wanted error binding with the wrong base")
	}
}

func TestIsA(t *testing.T) {
	types := chain(t)
	id := func(name string) TypeID {
		info, _ := types.Named(name)
		return info.ID
	}
	for _, tc := range []struct {
		have, want string
		isa        bool
	}{
		{"Container", "Container", true},
		{"Container", "Item", true},
		{"Container", "Thing", true},
		{"Item", "Container", false},
		{"Creature", "Item", false},
		{"Creature", "Thing", true},
		{"Thing", "Creature", false},
	} {
		if got := types.IsA(id(tc.have), id(tc.want)); got != tc.isa {
			t.Errorf("IsA(%v, %v) = %v, want %v", tc.have, tc.want, got, tc.isa)
		}
	}
	if types.IsA(NoType, id("Thing")) {
		t.Errorf("NoType is not a Thing")
	}
}

func TestDowncast(t *testing.T) {
	types := chain(t)
	c := &container{item: item{thing: thing{name: "bag"}, count: 1}, capacity: 8}
	info, found := types.Of(c)
	if !found {
		t.Fatal("container not bound")
	}
	gotItem, ok := Downcast[*item](types, info.ID, c)
	if !ok || gotItem != &c.item {
		t.Errorf("got %v, %v, want the embedded item", gotItem, ok)
	}
	gotThing, ok := Downcast[*thing](types, info.ID, c)
	if !ok || gotThing != &c.thing {
		t.Errorf("got %v, %v, want the embedded thing", gotThing, ok)
	}
	if _, ok := Downcast[*creature](types, info.ID, c); ok {
		t.Errorf("container downcast to creature")
	}
	cr := &creature{}
	crInfo, _ := types.Of(cr)
	if _, ok := Downcast[*item](types, crInfo.ID, cr); ok {
		t.Errorf("creature downcast to item")
	}
}

func TestUnstable(t *testing.T) {
	types := chain(t)
	if err := types.SetUnstable("Item", true); err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, name := range []string{"Thing", "Item", "Container", "Creature"} {
		info, _ := types.Named(name)
		got[name] = types.Unstable(info.ID)
	}
	want := map[string]bool{"Thing": false, "Item": true, "Container": true, "Creature": false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected instability (-want +got):\n%s", diff)
	}
}

func TestClassesWeak(t *testing.T) {
	types := chain(t)
	classes := NewClasses(types)
	info, _ := types.Named("Item")
	weak1, err := classes.Weak(info.ID)
	if err != nil {
		t.Fatal(err)
	}
	weak2, _ := classes.Weak(info.ID)
	if weak1 != weak2 {
		t.Errorf("weak class derived twice")
	}
	if weak1.Finalize != nil || !weak1.Weak {
		t.Errorf("weak class must not finalize")
	}
	if err := classes.Bind("Item", "getCount", nil); err != nil {
		t.Fatal(err)
	}
	if _, found := weak1.Methods["getCount"]; !found {
		t.Errorf("weak class does not share methods bound after derivation")
	}
	if err := classes.Bind("Thing", "getName", nil); err != nil {
		t.Fatal(err)
	}
	cinfo, _ := types.Named("Container")
	methods := classes.Methods(cinfo.ID)
	if _, found := methods["getName"]; !found {
		t.Errorf("container does not inherit getName")
	}
}

func TestScopeReset(t *testing.T) {
	types := chain(t)
	classes := NewClasses(types)
	info, _ := types.Named("Thing")
	owning, _ := classes.Class(info.ID)
	weak, _ := classes.Weak(info.ID)
	th := &thing{refs: 2}
	released := 0
	scope := &Scope{}
	strong := &Wrapper{Slot: 1, Type: info, class: owning, object: th, refs: 1, released: func(*Wrapper) { released++ }}
	observer := &Wrapper{Slot: 2, Type: info, class: weak, object: th, refs: 1, released: func(*Wrapper) { released++ }}
	scope.add(strong)
	scope.add(observer)
	strong.Retain()
	scope.Reset()
	if th.refs != 2 || strong.Finalized() {
		t.Errorf("retained wrapper finalized early")
	}
	if !observer.Finalized() {
		t.Errorf("observer not finalized")
	}
	strong.Drop()
	if th.refs != 1 || !strong.Finalized() {
		t.Errorf("got refs %v, finalized %v; want 1, true", th.refs, strong.Finalized())
	}
	if released != 2 {
		t.Errorf("got %v released slots, want 2", released)
	}
	strong.Drop()
	if th.refs != 1 {
		t.Errorf("double drop released twice")
	}
}

func TestErrorCodes(t *testing.T) {
	if got := ItemNotFound.Error(); got != "Item not found" {
		t.Errorf("got %q", got)
	}
	if got := ErrorCode(0).String(); got != "Unknown error" {
		t.Errorf("got %q", got)
	}
}
