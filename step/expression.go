package step

import (
	"regexp"
	"strings"
)

// Cucumber-expression placeholders and the capture groups they compile to.
var placeholders = map[string]string{
	"{int}":    `(-?\d+)`,
	"{float}":  `(-?\d+(?:\.\d+)?)`,
	"{word}":   `(\S+)`,
	"{string}": `"([^"]*)"`,
	"{}":       `(.*)`,
}

var placeholderPattern = regexp.MustCompile(`\{(?:int|float|word|string)?\}`)

// compilePattern compiles a registered pattern to a regular expression.
//
// Patterns containing Cucumber-expression placeholders are treated as literal
// text around the placeholders and anchored at both ends. Everything else is
// compiled as a plain regular expression and matched unanchored, so authors
// anchor explicitly when they need exact matches.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if !placeholderPattern.MatchString(pattern) {
		return regexp.Compile(pattern)
	}

	var b strings.Builder
	b.WriteString("^")
	rest := pattern
	for {
		loc := placeholderPattern.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(regexp.QuoteMeta(rest))

			break
		}
		b.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		b.WriteString(placeholders[rest[loc[0]:loc[1]]])
		rest = rest[loc[1]:]
	}
	b.WriteString("$")

	return regexp.Compile(b.String())
}
