// Package text turns catalog templates into chronicle lines.
// This package is PURE and must NOT import any infrastructure packages.
package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Context holds the values placeholders resolve against. Nested values
// are Context or map[string]any.
type Context map[string]any

var placeholder = regexp.MustCompile(`@([A-Za-z_]\w*(?:\.[A-Za-z_]\w*)*)`)

var upper = cases.Upper(language.Und)

// Personify replaces every @path.to.field placeholder with its value from
// ctx and capitalizes the result. Unknown paths are left untouched.
func Personify(template string, ctx Context) string {
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		v, ok := resolve(ctx, strings.Split(m[1:], "."))
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	})
	return Capitalize(out)
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return upper.String(string(r)) + s[size:]
}

func resolve(ctx map[string]any, path []string) (any, bool) {
	var cur any = ctx
	for _, key := range path {
		var m map[string]any
		switch node := cur.(type) {
		case Context:
			m = node
		case map[string]any:
			m = node
		default:
			return nil, false
		}
		next, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
