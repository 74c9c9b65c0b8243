package language

import (
	"fmt"
	"regexp"
	"strings"
)

// ParamKind classifies one inferred placeholder.
type ParamKind int

const (
	// ParamInt captures a whole number.
	ParamInt ParamKind = iota
	// ParamFloat captures a decimal number.
	ParamFloat
	// ParamString captures a double-quoted string, quotes stripped.
	ParamString
)

// Param is one inferred capture in a pattern.
type Param struct {
	// Name is a positional placeholder name: arg1, arg2, ...
	Name string
	Kind ParamKind
}

// Pattern is a step pattern inferred from literal step text.
//
// When the text contains values to capture, Source is a Cucumber expression
// ({int}, {float}, {string}). Literal text compiles to an anchored,
// meta-quoted regular expression instead, since plain text is registered as
// a regular expression.
type Pattern struct {
	Source string
	Params []Param
}

// Numbers are only lifted when they stand alone; digits embedded in a word
// ("user42") stay literal.
var inferPattern = regexp.MustCompile(`"[^"]*"|-?\b\d+\.\d+\b|-?\b\d+\b`)

// Infer builds a pattern from the text of an undefined step: quoted strings
// become {string}, decimal numbers {float}, and whole numbers {int}.
func Infer(text string) Pattern {
	var params []Param
	src := inferPattern.ReplaceAllStringFunc(text, func(m string) string {
		p := Param{Name: fmt.Sprintf("arg%d", len(params)+1)}
		switch {
		case strings.HasPrefix(m, `"`):
			p.Kind = ParamString
			params = append(params, p)

			return "{string}"
		case strings.Contains(m, "."):
			p.Kind = ParamFloat
			params = append(params, p)

			return "{float}"
		default:
			p.Kind = ParamInt
			params = append(params, p)

			return "{int}"
		}
	})

	if len(params) == 0 {
		return Pattern{Source: "^" + regexp.QuoteMeta(text) + "$"}
	}

	return Pattern{Source: src, Params: params}
}
