package juicebridge

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWithStack(t *testing.T) {
	if WithStack(nil) != nil {
		t.Errorf("got non nil for nil")
	}
	err := WithStack(fmt.Errorf("boom"))
	if trace := StackTrace(err); !strings.Contains(trace, "TestWithStack") {
		t.Errorf("got %q, want a trace mentioning TestWithStack", trace)
	}
	if again := WithStack(err); again != err {
		t.Errorf("got %v, want the same error back", again)
	}
}

func TestSyncMap(t *testing.T) {
	m := NewSyncMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 3)
	got := map[string]int{}
	for k, v := range m.Each() {
		got[k] = v
	}
	if diff := cmp.Diff(map[string]int{"a": 3, "b": 2}, got); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
	m.Del("a")
	if _, found := m.Get("a"); found {
		t.Errorf("got a after Del")
	}
	if v, found := m.Get("b"); !found || v != 2 {
		t.Errorf("got %v, %v, want 2, true", v, found)
	}
	if m.Len() != 1 {
		t.Errorf("got %v, want 1", m.Len())
	}
}
