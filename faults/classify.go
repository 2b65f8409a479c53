package faults

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"rogchap.com/v8go"
)

const (
	maxMessageLength = 256
)

// Location is where a fault happened. Empty File means unknown.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	switch {
	case l.File == "":
		return "(unknown)"
	case l.Line == 0:
		return l.File
	case l.Column == 0:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// parseJSLocation parses "file.js:10:5" and "file.js:10" from the right, so
// that colons in the file part survive.
func parseJSLocation(loc string) Location {
	if loc == "" {
		return Location{}
	}
	lastColon := strings.LastIndex(loc, ":")
	if lastColon == -1 {
		return Location{File: loc}
	}
	last, err := strconv.Atoi(loc[lastColon+1:])
	if err != nil {
		return Location{File: loc}
	}
	rest := loc[:lastColon]
	secondColon := strings.LastIndex(rest, ":")
	if secondColon == -1 {
		return Location{File: rest, Line: last}
	}
	between, err := strconv.Atoi(rest[secondColon+1:])
	if err != nil {
		return Location{File: rest, Line: last}
	}
	return Location{File: rest[:secondColon], Line: between, Column: last}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

var goLocationRE = regexp.MustCompile(`([^/\s]+\.go):(\d+)`)

func goLocation(err error) Location {
	var st stackTracer
	if !errors.As(err, &st) {
		return Location{}
	}
	frames := st.StackTrace()
	if len(frames) == 0 {
		return Location{}
	}
	if matches := goLocationRE.FindStringSubmatch(fmt.Sprintf("%+s:%d", frames[0], frames[0])); matches != nil {
		line, _ := strconv.Atoi(matches[2])
		return Location{File: matches[1], Line: line}
	}
	return Location{}
}

func truncate(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", "")
	runes := []rune(msg)
	if len(runes) > maxMessageLength {
		return string(runes[:maxMessageLength-3]) + "..."
	}
	return msg
}

// FromError builds a fault of kind from err, pulling message, location and
// stack out of script errors when err is one.
func FromError(kind Kind, source string, err error) Fault {
	f := Fault{
		Kind:   kind,
		Source: source,
	}
	var jsErr *v8go.JSError
	if errors.As(err, &jsErr) {
		f.Message = truncate(jsErr.Message)
		f.Location = parseJSLocation(jsErr.Location)
		f.Stack = jsErr.StackTrace
		return f
	}
	if err != nil {
		f.Message = truncate(err.Error())
		f.Location = goLocation(err)
		f.Stack = fmt.Sprintf("%+v", err)
	}
	return f
}
