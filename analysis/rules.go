package analysis

import (
	"strconv"

	messages "github.com/cucumber/messages/go/v21"

	"github.com/rlch/cuke"
)

// Rule represents one static check.
// Inspired by the go/analysis.Analyzer pattern.
type Rule struct {
	// Name is a short identifier for the rule (used in diagnostic codes).
	Name string

	// Doc is a brief description of what the rule checks.
	Doc string

	// Severity is the default severity for diagnostics from this rule.
	Severity DiagnosticSeverity

	// Run executes the rule and appends any diagnostics to the file.
	Run func(f *AnalyzedFile)
}

// DefaultRules returns all built-in rules.
func DefaultRules() []*Rule {
	return []*Rule{
		// Error-level checks.
		duplicateScenarioRule,
		duplicateExampleColumnRule,
		undefinedStepRule,
		ambiguousStepRule,

		// Warning-level checks.
		emptyFeatureRule,
		duplicateTagRule,

		// Hint-level checks.
		emptyScenarioRule,
		redundantTagRule,
	}
}

// ----------------------------------------------------------------------------
// Rule: duplicate-scenario
// ----------------------------------------------------------------------------

var duplicateScenarioRule = &Rule{
	Name:     "duplicate-scenario",
	Doc:      "Reports scenarios that share a name within the same feature or rule.",
	Severity: SeverityError,
	Run:      checkDuplicateScenarios,
}

func checkDuplicateScenarios(f *AnalyzedFile) {
	if f.Doc == nil || f.Doc.Feature == nil {
		return
	}

	checkSiblings := func(scenarios []*messages.Scenario) {
		seen := make(map[string]*messages.Location)
		for _, sc := range scenarios {
			if sc.Name == "" {
				continue
			}
			if first, exists := seen[sc.Name]; exists {
				f.Diagnostics = append(f.Diagnostics, Diagnostic{
					Span:     spanAt(pos(sc.Location)),
					Severity: SeverityError,
					Message: "duplicate scenario name: " + sc.Name +
						" (first defined at line " + strconv.FormatInt(first.Line, 10) + ")",
					Code:   "duplicate-scenario",
					Source: "cuke",
				})
			} else {
				seen[sc.Name] = sc.Location
			}
		}
	}

	var top []*messages.Scenario
	for _, child := range f.Doc.Feature.Children {
		switch {
		case child.Scenario != nil:
			top = append(top, child.Scenario)
		case child.Rule != nil:
			var nested []*messages.Scenario
			for _, rc := range child.Rule.Children {
				if rc.Scenario != nil {
					nested = append(nested, rc.Scenario)
				}
			}
			checkSiblings(nested)
		}
	}
	checkSiblings(top)
}

// ----------------------------------------------------------------------------
// Rule: duplicate-example-column
// ----------------------------------------------------------------------------

var duplicateExampleColumnRule = &Rule{
	Name:     "duplicate-example-column",
	Doc:      "Reports examples tables whose header repeats a column name.",
	Severity: SeverityError,
	Run:      checkDuplicateExampleColumns,
}

func checkDuplicateExampleColumns(f *AnalyzedFile) {
	eachScenario(f, func(sc *messages.Scenario) {
		for _, ex := range sc.Examples {
			if ex.TableHeader == nil {
				continue
			}
			seen := make(map[string]bool)
			for _, cell := range ex.TableHeader.Cells {
				if seen[cell.Value] {
					f.Diagnostics = append(f.Diagnostics, Diagnostic{
						Span:     spanAt(pos(cell.Location)),
						Severity: SeverityError,
						Message:  "duplicate examples column: " + cell.Value,
						Code:     "duplicate-example-column",
						Source:   "cuke",
					})
				}
				seen[cell.Value] = true
			}
		}
	})
}

// ----------------------------------------------------------------------------
// Rule: undefined-step
// ----------------------------------------------------------------------------

var undefinedStepRule = &Rule{
	Name:     "undefined-step",
	Doc:      "Reports steps no registered definition matches.",
	Severity: SeverityError,
	Run:      checkUndefinedSteps,
}

func checkUndefinedSteps(f *AnalyzedFile) {
	if f.Feature == nil || f.Registry == nil {
		return
	}

	// Expanded outline rows can repeat a step verbatim; report each
	// position and text once.
	type key struct {
		pos  cuke.Position
		text string
	}
	seen := make(map[key]bool)

	walkSteps(f.Feature, func(s *cuke.Step) {
		match, err := f.Registry.Resolve(s)
		if err != nil || match != nil {
			return
		}
		k := key{pos: s.Pos, text: s.Text}
		if seen[k] {
			return
		}
		seen[k] = true
		f.Diagnostics = append(f.Diagnostics, Diagnostic{
			Span:     spanAt(s.Pos),
			Severity: SeverityError,
			Message:  "undefined step: " + s.String(),
			Code:     "undefined-step",
			Source:   "cuke",
		})
	})
}

// ----------------------------------------------------------------------------
// Rule: ambiguous-step
// ----------------------------------------------------------------------------

var ambiguousStepRule = &Rule{
	Name:     "ambiguous-step",
	Doc:      "Reports steps matched by more than one definition.",
	Severity: SeverityError,
	Run:      checkAmbiguousSteps,
}

func checkAmbiguousSteps(f *AnalyzedFile) {
	if f.Feature == nil || f.Registry == nil {
		return
	}

	type key struct {
		pos  cuke.Position
		text string
	}
	seen := make(map[key]bool)

	walkSteps(f.Feature, func(s *cuke.Step) {
		_, err := f.Registry.Resolve(s)
		if err == nil {
			return
		}
		k := key{pos: s.Pos, text: s.Text}
		if seen[k] {
			return
		}
		seen[k] = true
		f.Diagnostics = append(f.Diagnostics, Diagnostic{
			Span:     spanAt(s.Pos),
			Severity: SeverityError,
			Message:  err.Error(),
			Code:     "ambiguous-step",
			Source:   "cuke",
		})
	})
}

// ----------------------------------------------------------------------------
// Rule: empty-feature
// ----------------------------------------------------------------------------

var emptyFeatureRule = &Rule{
	Name:     "empty-feature",
	Doc:      "Reports features that declare no scenarios.",
	Severity: SeverityWarning,
	Run:      checkEmptyFeatures,
}

func checkEmptyFeatures(f *AnalyzedFile) {
	if f.Doc == nil || f.Doc.Feature == nil {
		return
	}

	count := 0
	eachScenario(f, func(*messages.Scenario) { count++ })
	if count > 0 {
		return
	}

	f.Diagnostics = append(f.Diagnostics, Diagnostic{
		Span:     spanAt(pos(f.Doc.Feature.Location)),
		Severity: SeverityWarning,
		Message:  "feature has no scenarios",
		Code:     "empty-feature",
		Source:   "cuke",
	})
}

// ----------------------------------------------------------------------------
// Rule: duplicate-tag
// ----------------------------------------------------------------------------

var duplicateTagRule = &Rule{
	Name:     "duplicate-tag",
	Doc:      "Reports a tag repeated on the same declaration.",
	Severity: SeverityWarning,
	Run:      checkDuplicateTags,
}

func checkDuplicateTags(f *AnalyzedFile) {
	if f.Doc == nil || f.Doc.Feature == nil {
		return
	}

	check := func(tags []*messages.Tag) {
		seen := make(map[string]bool)
		for _, t := range tags {
			if seen[t.Name] {
				f.Diagnostics = append(f.Diagnostics, Diagnostic{
					Span:     spanAt(pos(t.Location)),
					Severity: SeverityWarning,
					Message:  "duplicate tag: " + t.Name,
					Code:     "duplicate-tag",
					Source:   "cuke",
				})
			}
			seen[t.Name] = true
		}
	}

	check(f.Doc.Feature.Tags)
	for _, child := range f.Doc.Feature.Children {
		if child.Rule != nil {
			check(child.Rule.Tags)
		}
	}
	eachScenario(f, func(sc *messages.Scenario) {
		check(sc.Tags)
		for _, ex := range sc.Examples {
			check(ex.Tags)
		}
	})
}

// ----------------------------------------------------------------------------
// Rule: empty-scenario
// ----------------------------------------------------------------------------

var emptyScenarioRule = &Rule{
	Name:     "empty-scenario",
	Doc:      "Reports scenarios with no steps.",
	Severity: SeverityHint,
	Run:      checkEmptyScenarios,
}

func checkEmptyScenarios(f *AnalyzedFile) {
	eachScenario(f, func(sc *messages.Scenario) {
		if len(sc.Steps) > 0 {
			return
		}
		msg := "empty scenario"
		if sc.Name != "" {
			msg += ": " + sc.Name
		}
		f.Diagnostics = append(f.Diagnostics, Diagnostic{
			Span:     spanAt(pos(sc.Location)),
			Severity: SeverityHint,
			Message:  msg,
			Code:     "empty-scenario",
			Source:   "cuke",
		})
	})
}

// ----------------------------------------------------------------------------
// Rule: redundant-tag
// ----------------------------------------------------------------------------

var redundantTagRule = &Rule{
	Name:     "redundant-tag",
	Doc:      "Reports tags repeated on a declaration that already inherits them.",
	Severity: SeverityHint,
	Run:      checkRedundantTags,
}

func checkRedundantTags(f *AnalyzedFile) {
	if f.Doc == nil || f.Doc.Feature == nil {
		return
	}

	report := func(t *messages.Tag, from string) {
		f.Diagnostics = append(f.Diagnostics, Diagnostic{
			Span:     spanAt(pos(t.Location)),
			Severity: SeverityHint,
			Message:  "redundant tag: " + t.Name + " (already on the " + from + ")",
			Code:     "redundant-tag",
			Source:   "cuke",
		})
	}

	// inherited maps tag name to the kind of ancestor that declared it.
	check := func(tags []*messages.Tag, inherited map[string]string) {
		for _, t := range tags {
			if from, ok := inherited[t.Name]; ok {
				report(t, from)
			}
		}
	}
	extend := func(inherited map[string]string, tags []*messages.Tag, kind string) map[string]string {
		out := make(map[string]string, len(inherited)+len(tags))
		for k, v := range inherited {
			out[k] = v
		}
		for _, t := range tags {
			if _, ok := out[t.Name]; !ok {
				out[t.Name] = kind
			}
		}

		return out
	}

	checkScenario := func(sc *messages.Scenario, inherited map[string]string) {
		check(sc.Tags, inherited)
		fromScenario := extend(inherited, sc.Tags, "scenario")
		for _, ex := range sc.Examples {
			check(ex.Tags, fromScenario)
		}
	}

	fromFeature := extend(nil, f.Doc.Feature.Tags, "feature")
	for _, child := range f.Doc.Feature.Children {
		switch {
		case child.Scenario != nil:
			checkScenario(child.Scenario, fromFeature)
		case child.Rule != nil:
			check(child.Rule.Tags, fromFeature)
			fromRule := extend(fromFeature, child.Rule.Tags, "rule")
			for _, rc := range child.Rule.Children {
				if rc.Scenario != nil {
					checkScenario(rc.Scenario, fromRule)
				}
			}
		}
	}
}

// ----------------------------------------------------------------------------
// Shared walkers
// ----------------------------------------------------------------------------

// eachScenario visits every scenario in the raw document, rules included.
func eachScenario(f *AnalyzedFile, visit func(*messages.Scenario)) {
	if f.Doc == nil || f.Doc.Feature == nil {
		return
	}

	for _, child := range f.Doc.Feature.Children {
		switch {
		case child.Scenario != nil:
			visit(child.Scenario)
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Scenario != nil {
					visit(rc.Scenario)
				}
			}
		}
	}
}
