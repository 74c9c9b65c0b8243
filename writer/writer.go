// Package writer provides runner.Writer implementations for rendering runs:
// Pretty for styled human output, Dots for minimal progress, JSON for
// newline-delimited machine output, TUI for an animated live view, and
// Discard for silence.
package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/runner"
)

// =============================================================================
// Flattened events
// =============================================================================

// kind identifies the innermost moment of a normalized event.
type kind int

const (
	kindRunStarted kind = iota
	kindParsingFinished
	kindRunFinished
	kindFeatureStarted
	kindFeatureFinished
	kindRuleStarted
	kindRuleFinished
	kindScenarioStarted
	kindScenarioFinished
	kindHookStarted
	kindHookPassed
	kindHookFailed
	kindStepStarted
	kindStepPassed
	kindStepFailed
	kindStepSkipped
	kindLog
)

// String returns the kind's wire name.
func (k kind) String() string {
	switch k {
	case kindRunStarted:
		return "run_started"
	case kindParsingFinished:
		return "parsing_finished"
	case kindRunFinished:
		return "run_finished"
	case kindFeatureStarted:
		return "feature_started"
	case kindFeatureFinished:
		return "feature_finished"
	case kindRuleStarted:
		return "rule_started"
	case kindRuleFinished:
		return "rule_finished"
	case kindScenarioStarted:
		return "scenario_started"
	case kindScenarioFinished:
		return "scenario_finished"
	case kindHookStarted:
		return "hook_started"
	case kindHookPassed:
		return "hook_passed"
	case kindHookFailed:
		return "hook_failed"
	case kindStepStarted:
		return "step_started"
	case kindStepPassed:
		return "step_passed"
	case kindStepFailed:
		return "step_failed"
	case kindStepSkipped:
		return "step_skipped"
	case kindLog:
		return "log"
	}

	return "unknown"
}

// flat is one event unwrapped from its nested carriers, with the enclosing
// feature, rule and scenario attached. Every writer in this package renders
// from this record instead of re-walking the sum type.
type flat struct {
	kind kind
	time time.Time

	feature  *cuke.Feature
	rule     *cuke.Rule
	scenario *cuke.Scenario

	retries   *event.Retries
	willRetry bool

	hook       event.HookType
	step       *cuke.Step
	background bool
	captures   []string
	location   string

	text string
	err  error

	parsing event.ParsingFinished
}

// flatten unwraps ev into a flat record.
func flatten(ev event.Event) flat {
	switch e := ev.(type) {
	case event.RunStarted:
		return flat{kind: kindRunStarted, time: e.Time}
	case event.ParsingFinished:
		return flat{kind: kindParsingFinished, time: e.Time, parsing: e}
	case event.RunFinished:
		return flat{kind: kindRunFinished, time: e.Time}
	case event.Feature:
		f := flattenFeature(e.Event)
		f.feature = e.Feature

		return f
	}

	return flat{}
}

func flattenFeature(ev event.FeatureEvent) flat {
	switch e := ev.(type) {
	case event.FeatureStarted:
		return flat{kind: kindFeatureStarted, time: e.Time}
	case event.FeatureFinished:
		return flat{kind: kindFeatureFinished, time: e.Time}
	case event.Rule:
		f := flattenRule(e.Event)
		f.rule = e.Rule

		return f
	case event.Scenario:
		return flattenScenario(e)
	}

	return flat{}
}

func flattenRule(ev event.RuleEvent) flat {
	switch e := ev.(type) {
	case event.RuleStarted:
		return flat{kind: kindRuleStarted, time: e.Time}
	case event.RuleFinished:
		return flat{kind: kindRuleFinished, time: e.Time}
	case event.Scenario:
		return flattenScenario(e)
	}

	return flat{}
}

func flattenScenario(sc event.Scenario) flat {
	f := flat{scenario: sc.Scenario, retries: sc.Retries}

	switch e := sc.Event.(type) {
	case event.ScenarioStarted:
		f.kind = kindScenarioStarted
		f.time = e.Time
	case event.ScenarioFinished:
		f.kind = kindScenarioFinished
		f.time = e.Time
		f.willRetry = e.WillRetry
	case event.Hook:
		f.hook = e.Type
		f.applyHook(e.Event)
	case event.Background:
		f.background = true
		f.step = e.Step
		f.applyStep(e.Event)
	case event.Step:
		f.step = e.Step
		f.applyStep(e.Event)
	case event.Log:
		f.kind = kindLog
		f.time = e.Time
		f.text = e.Text
	}

	return f
}

func (f *flat) applyHook(ev event.HookEvent) {
	switch e := ev.(type) {
	case event.HookStarted:
		f.kind = kindHookStarted
		f.time = e.Time
	case event.HookPassed:
		f.kind = kindHookPassed
		f.time = e.Time
	case event.HookFailed:
		f.kind = kindHookFailed
		f.time = e.Time
		f.err = e.Err
	}
}

func (f *flat) applyStep(ev event.StepEvent) {
	switch e := ev.(type) {
	case event.StepStarted:
		f.kind = kindStepStarted
		f.time = e.Time
	case event.StepPassed:
		f.kind = kindStepPassed
		f.time = e.Time
		f.captures = e.Captures
		f.location = e.Location
	case event.StepFailed:
		f.kind = kindStepFailed
		f.time = e.Time
		f.captures = e.Captures
		f.location = e.Location
		f.err = e.Err
	case event.StepSkipped:
		f.kind = kindStepSkipped
		f.time = e.Time
	}
}

// =============================================================================
// Discard
// =============================================================================

// Discard drops every event. It keeps result accumulation running when no
// rendering is wanted, as in `cuke list`.
type Discard struct{}

// Event implements runner.Writer.
func (Discard) Event(context.Context, event.Event, *runner.Result) error { return nil }

// Err implements runner.Writer.
func (Discard) Err(error) error { return nil }

// =============================================================================
// Shared rendering helpers
// =============================================================================

// failurePath renders a failure's location in the tree as
// "feature / rule / scenario".
func failurePath(f *runner.Failure) string {
	parts := make([]string, 0, 3)
	parts = append(parts, f.Feature.Name)
	if f.Rule != nil {
		parts = append(parts, f.Rule.Name)
	}
	parts = append(parts, f.Scenario.Name)

	return strings.Join(parts, " / ")
}

// summaryCounts renders the scenario and step totals of an end-of-run line.
func summaryCounts(res *runner.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%d scenarios (%d passed, %d failed, %d skipped",
		res.Scenarios(), res.ScenariosPassed, res.ScenariosFailed, res.ScenariosSkipped)
	if res.ScenariosRetried > 0 {
		fmt.Fprintf(&b, ", %d retried", res.ScenariosRetried)
	}

	fmt.Fprintf(&b, "), %d steps (%d passed, %d failed, %d skipped",
		res.Steps(), res.StepsPassed, res.StepsFailed, res.StepsSkipped)
	if res.StepsRetried > 0 {
		fmt.Fprintf(&b, ", %d retried", res.StepsRetried)
	}
	b.WriteString(")")

	if res.HookErrors > 0 {
		fmt.Fprintf(&b, ", %d hook errors", res.HookErrors)
	}
	if res.ParseErrors > 0 {
		fmt.Fprintf(&b, ", %d parse errors", res.ParseErrors)
	}

	fmt.Fprintf(&b, " in %s", res.Elapsed().Round(time.Millisecond))

	return b.String()
}
