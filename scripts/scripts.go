// Package scripts reads script sources from a directory, resolving
// `// @import` directives and noticing when a loaded source changes.
package scripts

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zond/juicebridge"
)

// LibDir holds files that are only imported, never loaded as sources.
const LibDir = "lib"

type Source struct {
	Name string
	Code string
	// Deps lists the source itself and every file it imports.
	Deps  []string
	Mtime time.Time
}

type Library struct {
	dir    string
	loaded *juicebridge.SyncMap[string, *Source]
}

func NewLibrary(dir string) *Library {
	return &Library{
		dir:    dir,
		loaded: juicebridge.NewSyncMap[string, *Source](),
	}
}

func (l *Library) Dir() string {
	return l.dir
}

func (l *Library) read(name string) ([]byte, time.Time, error) {
	full := filepath.Join(l.dir, filepath.FromSlash(name))
	fi, err := os.Stat(full)
	if err != nil {
		return nil, time.Time{}, juicebridge.WithStack(err)
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return nil, time.Time{}, juicebridge.WithStack(err)
	}
	return b, fi.ModTime(), nil
}

// Names returns the slash separated names of all sources, sorted.
func (l *Library) Names() ([]string, error) {
	result := []string{}
	err := filepath.WalkDir(l.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == LibDir {
				return filepath.SkipDir
			}
			return nil
		}
		if path.Ext(rel) == ".js" {
			result = append(result, rel)
		}
		return nil
	})
	if err != nil {
		return nil, juicebridge.WithStack(err)
	}
	sort.Strings(result)
	return result, nil
}

// Load resolves the imports of name and remembers the result for Changed.
func (l *Library) Load(name string) (*Source, error) {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	r := &resolution{
		read:       l.read,
		inProgress: map[string]bool{},
		included:   map[string]bool{},
	}
	if err := r.resolve(name); err != nil {
		return nil, err
	}
	src := &Source{
		Name:  name,
		Code:  r.code.String(),
		Deps:  r.deps,
		Mtime: r.mtime,
	}
	l.loaded.Set(name, src)
	return src, nil
}

func (l *Library) Forget(name string) {
	l.loaded.Del(name)
}

func (l *Library) Loaded() []string {
	result := make([]string, 0, l.loaded.Len())
	for name := range l.loaded.Each() {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Changed returns the loaded sources of which some dependency was modified,
// or removed, since it was loaded.
func (l *Library) Changed() []string {
	result := []string{}
	for name, src := range l.loaded.Each() {
		for _, dep := range src.Deps {
			fi, err := os.Stat(filepath.Join(l.dir, filepath.FromSlash(dep)))
			if err != nil || fi.ModTime().After(src.Mtime) {
				result = append(result, name)
				break
			}
		}
	}
	sort.Strings(result)
	return result
}
