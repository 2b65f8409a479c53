// Package lang renders counts and lists for console output.
package lang

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gertd/go-pluralize"
)

const (
	DefaultPattern   = "%s"
	DefaultSeparator = ","
	DefaultOperator  = "and"
)

var (
	client = pluralize.NewClient()
)

func Plural(word string) string {
	return client.Plural(word)
}

func Singular(word string) string {
	return client.Singular(word)
}

// Card returns count and word, pluralized unless count is one.
func Card(count int, word string) string {
	switch count {
	case 0:
		return "no " + Plural(word)
	case 1:
		return "1 " + Singular(word)
	}
	return fmt.Sprintf("%d %s", count, Plural(word))
}

func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

type Enumerator struct {
	Pattern   string
	Separator string
	Operator  string
}

func (e Enumerator) Do(elements ...string) string {
	pattern, separator, operator := DefaultPattern, DefaultSeparator, DefaultOperator
	if e.Pattern != "" {
		pattern = e.Pattern
	}
	if e.Separator != "" {
		separator = e.Separator
	}
	if e.Operator != "" {
		operator = e.Operator
	}
	res := &bytes.Buffer{}
	for idx, element := range elements {
		fmt.Fprintf(res, pattern, element)
		switch {
		case idx+2 < len(elements):
			fmt.Fprintf(res, "%s ", separator)
		case idx+2 == len(elements) && len(elements) > 2:
			fmt.Fprintf(res, "%s %s ", separator, operator)
		case idx+2 == len(elements):
			fmt.Fprintf(res, " %s ", operator)
		}
	}
	return strings.TrimSpace(res.String())
}
