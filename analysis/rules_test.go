package analysis_test

import (
	"testing"

	"github.com/rlch/cuke/analysis"
	"github.com/rlch/cuke/step"
)

func TestRule_DuplicateScenario(t *testing.T) {
	t.Parallel()

	result := analyze(t, `Feature: billing

  Scenario: charge
    Given a step

  Scenario: charge
    Given a step
`)

	assertHasDiagnostic(t, result, "duplicate-scenario")
}

func TestRule_DuplicateScenarioScopedToRule(t *testing.T) {
	t.Parallel()

	// The same name under different rules is fine.
	result := analyze(t, `Feature: billing

  Rule: cards
    Scenario: declined
      Given a step

  Rule: transfers
    Scenario: declined
      Given a step
`)

	assertNoDiagnostic(t, result, "duplicate-scenario")
}

func TestRule_DuplicateScenarioUnnamed(t *testing.T) {
	t.Parallel()

	result := analyze(t, `Feature: billing

  Scenario:
    Given a step

  Scenario:
    Given a step
`)

	assertNoDiagnostic(t, result, "duplicate-scenario")
}

func TestRule_DuplicateExampleColumn(t *testing.T) {
	t.Parallel()

	result := analyze(t, `Feature: eating

  Scenario Outline: eat
    Given there are <start> cucumbers

    Examples:
      | start | start |
      | 1     | 2     |
`)

	assertHasDiagnostic(t, result, "duplicate-example-column")
}

func TestRule_UndefinedStep(t *testing.T) {
	t.Parallel()

	registry := step.NewRegistry().
		Given("^a known step$", func() error { return nil })

	result := analyzeWith(t, registry, `Feature: f

  Scenario: s
    Given a known step
    When something nobody registered
`)

	assertHasDiagnostic(t, result, "undefined-step")

	for _, d := range result.Diagnostics {
		if d.Code == "undefined-step" && d.Span.Start.Line != 5 {
			t.Errorf("undefined-step at line %d, want 5", d.Span.Start.Line)
		}
	}
}

func TestRule_UndefinedStepReportedOncePerOutline(t *testing.T) {
	t.Parallel()

	registry := step.NewRegistry()

	result := analyzeWith(t, registry, `Feature: f

  Scenario Outline: o
    Given a fixed step

    Examples:
      | n |
      | 1 |
      | 2 |
      | 3 |
`)

	count := 0
	for _, d := range result.Diagnostics {
		if d.Code == "undefined-step" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d undefined-step diagnostics, want 1", count)
	}
}

func TestRule_UndefinedStepSkippedWithoutRegistry(t *testing.T) {
	t.Parallel()

	result := analyze(t, `Feature: f

  Scenario: s
    Given anything at all
`)

	assertNoDiagnostic(t, result, "undefined-step")
}

func TestRule_AmbiguousStep(t *testing.T) {
	t.Parallel()

	registry := step.NewRegistry().
		Given("cucumbers", func() error { return nil }).
		Given("12 cucumbers", func() error { return nil })

	result := analyzeWith(t, registry, `Feature: f

  Scenario: s
    Given 12 cucumbers
`)

	assertHasDiagnostic(t, result, "ambiguous-step")
}

func TestRule_EmptyFeature(t *testing.T) {
	t.Parallel()

	result := analyze(t, `Feature: nothing here
`)

	assertHasDiagnostic(t, result, "empty-feature")
}

func TestRule_DuplicateTag(t *testing.T) {
	t.Parallel()

	result := analyze(t, `Feature: f

  @slow @slow
  Scenario: s
    Given a step
`)

	assertHasDiagnostic(t, result, "duplicate-tag")
}

func TestRule_EmptyScenario(t *testing.T) {
	t.Parallel()

	result := analyze(t, `Feature: f

  Scenario: nothing
`)

	assertHasDiagnostic(t, result, "empty-scenario")
}

func TestRule_RedundantTag(t *testing.T) {
	t.Parallel()

	result := analyze(t, `@billing
Feature: f

  @billing
  Scenario: s
    Given a step
`)

	assertHasDiagnostic(t, result, "redundant-tag")
}

func TestRule_RedundantTagDistinctTagsOk(t *testing.T) {
	t.Parallel()

	result := analyze(t, `@billing
Feature: f

  @slow
  Scenario: s
    Given a step
`)

	assertNoDiagnostic(t, result, "redundant-tag")
}

func TestAnalyzeParseError(t *testing.T) {
	t.Parallel()

	result := analyze(t, `Feature: broken

  Scenario: s
    Given a table:
      | a | b |
    misplaced text under a table
`)

	assertHasDiagnostic(t, result, "parse-error")

	if result.ParseError == nil {
		t.Error("ParseError not recorded")
	}
	for _, d := range result.Diagnostics {
		if d.Code == "parse-error" && d.Span.Start.Line == 0 {
			t.Errorf("parse-error diagnostic has no position: %s", d.Message)
		}
	}
}

func TestAnalyzeNoFeature(t *testing.T) {
	t.Parallel()

	result := analyze(t, "# only a comment\n")

	if len(result.Diagnostics) != 0 {
		t.Errorf("got %d diagnostics for a comment-only file, want 0", len(result.Diagnostics))
	}
}

func TestUnusedStepDefinitions(t *testing.T) {
	t.Parallel()

	registry := step.NewRegistry().
		Given("^a used step$", func() error { return nil }).
		Given("^a forgotten step$", func() error { return nil })

	analyzer := analysis.NewAnalyzer(registry)
	file := analyzer.Analyze("test.feature", []byte(`Feature: f

  Scenario: s
    Given a used step
`))

	diags := analyzer.Unused([]*analysis.AnalyzedFile{file})
	if len(diags) != 1 {
		t.Fatalf("got %d unused-step diagnostics, want 1", len(diags))
	}
	if diags[0].Code != "unused-step" {
		t.Errorf("code = %q, want %q", diags[0].Code, "unused-step")
	}
}

func analyze(t *testing.T, input string) *analysis.AnalyzedFile {
	t.Helper()

	analyzer := analysis.NewAnalyzer(nil)

	return analyzer.Analyze("test.feature", []byte(input))
}

func analyzeWith(t *testing.T, registry *step.Registry, input string) *analysis.AnalyzedFile {
	t.Helper()

	analyzer := analysis.NewAnalyzer(registry)

	return analyzer.Analyze("test.feature", []byte(input))
}

func assertHasDiagnostic(t *testing.T, result *analysis.AnalyzedFile, code string) {
	t.Helper()

	for _, d := range result.Diagnostics {
		if d.Code == code {
			return
		}
	}

	t.Errorf("expected diagnostic %q, got:", code)

	for _, d := range result.Diagnostics {
		t.Logf("  %s: %s", d.Code, d.Message)
	}
}

func assertNoDiagnostic(t *testing.T, result *analysis.AnalyzedFile, code string) {
	t.Helper()

	for _, d := range result.Diagnostics {
		if d.Code == code {
			t.Errorf("unexpected diagnostic %q: %s", code, d.Message)
		}
	}
}
