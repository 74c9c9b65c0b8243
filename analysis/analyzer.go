// Package analysis provides static checks for feature files.
//
// An Analyzer parses a file and runs a set of rules over it: structural
// lints on the raw Gherkin document (duplicate names, empty scenarios, tag
// hygiene) and, when a step registry is supplied, step resolution checks on
// the expanded tree. Diagnostics carry positions for editor integration; the
// check command prints them and the language server publishes them.
package analysis

import (
	"regexp"
	"strconv"
	"strings"

	messages "github.com/cucumber/messages/go/v21"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/parser"
	"github.com/rlch/cuke/step"
)

// DiagnosticSeverity ranks a diagnostic. Values match the LSP encoding.
type DiagnosticSeverity int

const (
	// SeverityError marks findings that make a file unreliable to run.
	SeverityError DiagnosticSeverity = iota + 1
	// SeverityWarning marks findings that run but likely hide a mistake.
	SeverityWarning
	// SeverityInformation marks neutral notices.
	SeverityInformation
	// SeverityHint marks style-level findings.
	SeverityHint
)

// String returns the lowercase severity name.
func (s DiagnosticSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "hint"
	}

	return "unknown"
}

// Span is a source range. End equals Start when only a point is known.
type Span struct {
	Start cuke.Position
	End   cuke.Position
}

// spanAt returns a point span.
func spanAt(pos cuke.Position) Span {
	return Span{Start: pos, End: pos}
}

// Diagnostic is one finding in one file.
type Diagnostic struct {
	Span     Span
	Severity DiagnosticSeverity
	Message  string
	// Code is the rule name that produced the diagnostic.
	Code   string
	Source string
}

// AnalyzedFile is the result of analyzing a single feature file.
type AnalyzedFile struct {
	Path string

	// Doc is the raw Gherkin document; nil when parsing failed. Structural
	// rules walk this form because Scenario Outlines appear once here.
	Doc *messages.GherkinDocument

	// Feature is the expanded tree; nil when parsing failed or the file has
	// no feature. Step resolution rules walk this form because placeholders
	// are substituted.
	Feature *cuke.Feature

	// Registry is the step registry under analysis. Nil disables step rules.
	Registry *step.Registry

	Diagnostics []Diagnostic
	ParseError  error
}

// Analyzer runs rules over feature files.
type Analyzer struct {
	registry *step.Registry
	rules    []*Rule
}

// NewAnalyzer creates an analyzer with the default rules. registry may be
// nil, in which case step resolution rules are skipped.
func NewAnalyzer(registry *step.Registry) *Analyzer {
	return &Analyzer{
		registry: registry,
		rules:    DefaultRules(),
	}
}

// NewAnalyzerWithRules creates an analyzer with a custom rule set.
func NewAnalyzerWithRules(registry *step.Registry, rules []*Rule) *Analyzer {
	return &Analyzer{
		registry: registry,
		rules:    rules,
	}
}

// Analyze parses and analyzes one feature file. Parse failures become
// diagnostics; rules run only on files that parsed.
func (a *Analyzer) Analyze(path string, content []byte) *AnalyzedFile {
	result := &AnalyzedFile{
		Path:        path,
		Registry:    a.registry,
		Diagnostics: []Diagnostic{},
	}

	doc, err := parser.Document(path, content)
	if err != nil {
		result.ParseError = err
		result.Diagnostics = append(result.Diagnostics, parseErrorDiagnostics(err)...)

		return result
	}
	result.Doc = doc
	if doc.Feature != nil {
		result.Feature = parser.Convert(path, doc)
	}

	for _, rule := range a.rules {
		rule.Run(result)
	}

	return result
}

// Unused reports registered step definitions that no step in any of the
// analyzed files resolves to. Definition locations are in Go source, so the
// diagnostics carry no feature-file span.
func (a *Analyzer) Unused(files []*AnalyzedFile) []Diagnostic {
	if a.registry == nil {
		return nil
	}

	used := make(map[*step.Definition]bool)
	mark := func(s *cuke.Step) {
		for _, d := range a.registry.Definitions() {
			if d.Type == s.Type && d.Expr.MatchString(s.Text) {
				used[d] = true
			}
		}
	}
	for _, f := range files {
		if f.Feature == nil {
			continue
		}
		walkSteps(f.Feature, mark)
	}

	var out []Diagnostic
	for _, d := range a.registry.Definitions() {
		if !used[d] {
			out = append(out, Diagnostic{
				Severity: SeverityWarning,
				Message:  "step definition never matched: " + d.String(),
				Code:     "unused-step",
				Source:   "cuke",
			})
		}
	}

	return out
}

// walkSteps visits every step in the feature, backgrounds included.
func walkSteps(f *cuke.Feature, visit func(*cuke.Step)) {
	visitAll := func(steps []*cuke.Step) {
		for _, s := range steps {
			visit(s)
		}
	}

	if f.Background != nil {
		visitAll(f.Background.Steps)
	}
	for _, sc := range f.Scenarios {
		visitAll(sc.Steps)
	}
	for _, r := range f.Rules {
		if r.Background != nil {
			visitAll(r.Background.Steps)
		}
		for _, sc := range r.Scenarios {
			visitAll(sc.Steps)
		}
	}
}

// errLine matches one "(line:col): message" entry in a Gherkin parse error.
var errLine = regexp.MustCompile(`^\((\d+):(\d+)\): (.*)$`)

// parseErrorDiagnostics converts a parse error to diagnostics. The Gherkin
// parser reports all syntax errors in one composite error, one per line,
// each prefixed with its position.
func parseErrorDiagnostics(err error) []Diagnostic {
	msg := err.Error()
	if pe, ok := err.(*parser.ParseError); ok {
		msg = pe.Err.Error()
	}

	var out []Diagnostic
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d := Diagnostic{
			Severity: SeverityError,
			Message:  line,
			Code:     "parse-error",
			Source:   "cuke",
		}
		if m := errLine.FindStringSubmatch(line); m != nil {
			line, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			d.Span = spanAt(cuke.Position{Line: line, Col: col})
			d.Message = m[3]
		}
		out = append(out, d)
	}

	return out
}

// pos converts a Gherkin location to a tree position.
func pos(loc *messages.Location) cuke.Position {
	if loc == nil {
		return cuke.Position{}
	}

	return cuke.Position{Line: int(loc.Line), Col: int(loc.Column)}
}
