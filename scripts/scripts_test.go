package scripts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestParseImports(t *testing.T) {
	for _, tc := range []struct {
		name string
		code string
		want []string
	}{
		{"none", "var x = 1;", []string{}},
		{"single", "// @import /lib/util.js\nvar x = 1;", []string{"/lib/util.js"}},
		{"relative", "// @import ./util.js\n// @import ../b.js\n", []string{"./util.js", "../b.js"}},
		{"prose", "// note: @import is cool\n", []string{}},
		{"indented", "  // @import /lib/util.js\n", []string{}},
		{"trailing space", "// @import /lib/util.js   \n", []string{"/lib/util.js"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, parseImports(tc.code)); diff != "" {
				t.Errorf("parseImports() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	for _, tc := range [][3]string{
		{"actions/door.js", "/lib/util.js", "lib/util.js"},
		{"actions/door.js", "./keys.js", "actions/keys.js"},
		{"actions/door.js", "../lib/util.js", "lib/util.js"},
	} {
		if got := resolvePath(tc[0], tc[1]); got != tc[2] {
			t.Errorf("resolvePath(%q, %q) = %q, want %q", tc[0], tc[1], got, tc[2])
		}
	}
}

func TestLoadDiamond(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"lib/base.js":     "var base = 1;\n",
		"lib/a.js":        "// @import ./base.js\nvar a = base + 1;\n",
		"lib/b.js":        "// @import ./base.js\nvar b = base + 2;\n",
		"actions/door.js": "// @import /lib/a.js\n// @import /lib/b.js\nvar door = a + b;\n",
	})
	l := NewLibrary(dir)
	src, err := l.Load("actions/door.js")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(src.Code, "var base = 1;"); n != 1 {
		t.Errorf("base included %d times", n)
	}
	order := []int{
		strings.Index(src.Code, "var base ="),
		strings.Index(src.Code, "var a ="),
		strings.Index(src.Code, "var b ="),
		strings.Index(src.Code, "var door ="),
	}
	for i := 1; i < len(order); i++ {
		if order[i-1] < 0 || order[i-1] > order[i] {
			t.Fatalf("bad order %v in %q", order, src.Code)
		}
	}
	wantDeps := []string{"actions/door.js", "lib/a.js", "lib/base.js", "lib/b.js"}
	if diff := cmp.Diff(wantDeps, src.Deps); diff != "" {
		t.Errorf("Deps mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCircular(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.js": "// @import ./b.js\n",
		"b.js": "// @import ./a.js\n",
	})
	if _, err := NewLibrary(dir).Load("a.js"); !errors.Is(err, ErrCircularImport) {
		t.Errorf("got %v, want ErrCircularImport", err)
	}
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.js": "// @import ./gone.js\n",
	})
	if _, err := NewLibrary(dir).Load("a.js"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}

func TestNamesAndChanged(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"lib/util.js":     "var util = 1;\n",
		"actions/door.js": "// @import /lib/util.js\n",
		"talk.js":         "var talk = 1;\n",
		"README.md":       "not a script",
	})
	l := NewLibrary(dir)
	names, err := l.Names()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"actions/door.js", "talk.js"}, names); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	for _, name := range names {
		if _, err := l.Load(name); err != nil {
			t.Fatal(err)
		}
	}
	if changed := l.Changed(); len(changed) != 0 {
		t.Errorf("got %v changed right after load", changed)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "lib", "util.js"), later, later); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"actions/door.js"}, l.Changed()); diff != "" {
		t.Errorf("Changed() mismatch (-want +got):\n%s", diff)
	}
	if err := os.Remove(filepath.Join(dir, "talk.js")); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"actions/door.js", "talk.js"}, l.Changed()); diff != "" {
		t.Errorf("Changed() mismatch (-want +got):\n%s", diff)
	}
	l.Forget("talk.js")
	if diff := cmp.Diff([]string{"actions/door.js"}, l.Loaded()); diff != "" {
		t.Errorf("Loaded() mismatch (-want +got):\n%s", diff)
	}
}
