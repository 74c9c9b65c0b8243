// Package step matches scenario steps to registered handler functions.
//
// Handlers are registered per keyword kind (Given/When/Then) under a pattern:
// either a regular expression, matched unanchored against the step text, or a
// Cucumber expression — literal text with {int}, {float}, {word}, {string}
// placeholders — which is compiled to an anchored regular expression.
//
// Registration happens once, at program start, and panics on invalid input;
// resolution is read-only and safe for concurrent use by running scenarios.
package step

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/rlch/cuke"
)

// ErrPending marks a step definition that has not been implemented yet.
// Generated stubs return it; scenarios hitting one fail with this error.
var ErrPending = errors.New("step: definition pending")

// Registry holds step definitions and resolves step text against them.
type Registry struct {
	defs map[cuke.StepType][]*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[cuke.StepType][]*Definition)}
}

// Definition is one registered (pattern, handler) pair.
type Definition struct {
	// Type is the keyword kind the definition resolves against.
	Type cuke.StepType
	// Source is the pattern exactly as registered.
	Source string
	// Expr is the compiled form of Source.
	Expr *regexp.Regexp
	// Location is the registration call site, "file.go:line".
	Location string

	handler *handler
}

// String renders the definition as "Given /pattern/ (file.go:line)".
func (d *Definition) String() string {
	return fmt.Sprintf("%s /%s/ (%s)", d.Type, d.Source, d.Location)
}

// Given registers a handler for context steps.
func (r *Registry) Given(pattern string, fn any) *Registry {
	r.register(cuke.Given, pattern, fn, callerLocation(2))

	return r
}

// When registers a handler for action steps.
func (r *Registry) When(pattern string, fn any) *Registry {
	r.register(cuke.When, pattern, fn, callerLocation(2))

	return r
}

// Then registers a handler for outcome steps.
func (r *Registry) Then(pattern string, fn any) *Registry {
	r.register(cuke.Then, pattern, fn, callerLocation(2))

	return r
}

// Register registers a handler for an explicit keyword kind. It panics if the
// pattern does not compile or the handler signature is unsupported, since
// both are programming errors at startup.
func (r *Registry) Register(t cuke.StepType, pattern string, fn any) *Registry {
	r.register(t, pattern, fn, callerLocation(2))

	return r
}

func (r *Registry) register(t cuke.StepType, pattern string, fn any, location string) {
	expr, err := compilePattern(pattern)
	if err != nil {
		panic(fmt.Sprintf("cuke: invalid step pattern %q: %v", pattern, err))
	}
	h, err := newHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("cuke: invalid handler for step %q: %v", pattern, err))
	}
	if got, want := len(h.params), expr.NumSubexp(); got != want {
		panic(fmt.Sprintf("cuke: handler for step %q takes %d arguments, pattern has %d capture groups",
			pattern, got, want))
	}

	r.defs[t] = append(r.defs[t], &Definition{
		Type:     t,
		Source:   pattern,
		Expr:     expr,
		Location: location,
		handler:  h,
	})
}

// Definitions returns every registered definition in registration order,
// Given before When before Then.
func (r *Registry) Definitions() []*Definition {
	var out []*Definition
	for _, t := range []cuke.StepType{cuke.Given, cuke.When, cuke.Then} {
		out = append(out, r.defs[t]...)
	}

	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	return len(r.defs[cuke.Given]) + len(r.defs[cuke.When]) + len(r.defs[cuke.Then])
}

// =============================================================================
// Resolution
// =============================================================================

// Match is a successful resolution of a step to a single definition.
type Match struct {
	Definition *Definition

	// Captures holds the whole match at index 0 and capture groups after it,
	// in pattern order.
	Captures []string

	// Named maps named capture groups to their matched text.
	Named map[string]string
}

// Location returns the matched definition's registration site.
func (m *Match) Location() string { return m.Definition.Location }

// Resolve matches s against the definitions registered for its kind.
//
// Zero matches return (nil, nil): an unmatched step is not an error, callers
// report it as skipped. Exactly one match returns the captures. More than one
// returns *AmbiguousError listing every matching definition in a stable
// order, regardless of registration order.
func (r *Registry) Resolve(s *cuke.Step) (*Match, error) {
	var matched []*Definition
	for _, d := range r.defs[s.Type] {
		if d.Expr.MatchString(s.Text) {
			matched = append(matched, d)
		}
	}

	switch len(matched) {
	case 0:
		return nil, nil
	case 1:
		d := matched[0]
		captures := d.Expr.FindStringSubmatch(s.Text)
		named := make(map[string]string)
		for i, name := range d.Expr.SubexpNames() {
			if name != "" && i < len(captures) {
				named[name] = captures[i]
			}
		}

		return &Match{Definition: d, Captures: captures, Named: named}, nil
	default:
		return nil, newAmbiguousError(s.Text, matched)
	}
}

// AmbiguousError reports step text that matched more than one definition.
type AmbiguousError struct {
	// Text is the step text that matched.
	Text string
	// Candidates lists every matching definition, sorted by pattern then
	// location.
	Candidates []Candidate
}

// Candidate is one definition involved in an ambiguous match.
type Candidate struct {
	Pattern  string
	Location string
}

func newAmbiguousError(text string, defs []*Definition) *AmbiguousError {
	candidates := make([]Candidate, len(defs))
	for i, d := range defs {
		candidates[i] = Candidate{Pattern: d.Source, Location: d.Location}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Pattern != candidates[j].Pattern {
			return candidates[i].Pattern < candidates[j].Pattern
		}

		return candidates[i].Location < candidates[j].Location
	})

	return &AmbiguousError{Text: text, Candidates: candidates}
}

// Error implements error.
func (e *AmbiguousError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cuke: step %q matches %d definitions:", e.Text, len(e.Candidates))
	for _, c := range e.Candidates {
		fmt.Fprintf(&b, "\n\t/%s/ (%s)", c.Pattern, c.Location)
	}

	return b.String()
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}

	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
