package scripts

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrCircularImport = errors.New("circular import")
)

// importPattern only matches directives starting the line, so prose like
// "// note: @import is cool" is left alone.
var importPattern = regexp.MustCompile(`(?m)^// @import\s+(\S+)\s*$`)

func parseImports(code string) []string {
	matches := importPattern.FindAllStringSubmatch(code, -1)
	result := make([]string, 0, len(matches))
	for _, match := range matches {
		result = append(result, match[1])
	}
	return result
}

func stripImports(code string) string {
	return importPattern.ReplaceAllString(code, "")
}

// resolvePath resolves imp relative to the directory of from. Paths starting
// with / are relative to the library root.
func resolvePath(from, imp string) string {
	if strings.HasPrefix(imp, "/") {
		return path.Clean(imp[1:])
	}
	return path.Clean(path.Join(path.Dir(from), imp))
}

type readFunc func(name string) ([]byte, time.Time, error)

type resolution struct {
	read       readFunc
	inProgress map[string]bool
	included   map[string]bool
	code       strings.Builder
	deps       []string
	mtime      time.Time
}

// resolve appends name and its imports to r.code depth first, so every file
// follows the files it imports and appears once.
func (r *resolution) resolve(name string) error {
	if r.inProgress[name] {
		return errors.Wrap(ErrCircularImport, name)
	}
	if r.included[name] {
		return nil
	}
	r.inProgress[name] = true
	defer delete(r.inProgress, name)

	b, mtime, err := r.read(name)
	if err != nil {
		return fmt.Errorf("loading %s: %w", name, err)
	}
	if mtime.After(r.mtime) {
		r.mtime = mtime
	}
	r.deps = append(r.deps, name)
	code := string(b)
	for _, imp := range parseImports(code) {
		if err := r.resolve(resolvePath(name, imp)); err != nil {
			return fmt.Errorf("in %s: %w", name, err)
		}
	}
	r.code.WriteString(stripImports(code))
	r.included[name] = true
	return nil
}
