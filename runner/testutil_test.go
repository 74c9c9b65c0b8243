package runner

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/parser"
)

// mkFeature builds a feature node with a hand-assigned ID, the way the
// parser would number it.
func mkFeature(id int64, name string, scenarios ...*cuke.Scenario) *cuke.Feature {
	return &cuke.Feature{
		NodeMeta:  cuke.NodeMeta{ID: id},
		Keyword:   "Feature",
		Name:      name,
		Scenarios: scenarios,
	}
}

// mkRule builds a rule node with a hand-assigned ID.
func mkRule(id int64, name string, scenarios ...*cuke.Scenario) *cuke.Rule {
	return &cuke.Rule{
		NodeMeta:  cuke.NodeMeta{ID: id},
		Keyword:   "Rule",
		Name:      name,
		Scenarios: scenarios,
	}
}

// mkScenario builds a scenario node with a hand-assigned ID and optional tags.
func mkScenario(id int64, name string, tagNames ...string) *cuke.Scenario {
	sc := &cuke.Scenario{
		NodeMeta: cuke.NodeMeta{ID: id},
		Keyword:  "Scenario",
		Name:     name,
	}
	for _, n := range tagNames {
		sc.Tags = append(sc.Tags, cuke.Tag{Name: n})
	}

	return sc
}

// mustParse parses Gherkin source or fails the test.
func mustParse(t *testing.T, src string) *cuke.Feature {
	t.Helper()

	f, err := parser.Parse("test.feature", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	return f
}

// featureSeq turns parsed features into the source sequence Run consumes.
func featureSeq(features ...*cuke.Feature) iter.Seq2[*cuke.Feature, error] {
	return func(yield func(*cuke.Feature, error) bool) {
		for _, f := range features {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// =============================================================================
// Event labels
// =============================================================================

// eventLabel renders an event as a compact one-line label so tests can
// compare whole streams against an expected order.
func eventLabel(ev event.Event) string {
	switch e := ev.(type) {
	case event.RunStarted:
		return "run started"
	case event.ParsingFinished:
		return "parsing finished"
	case event.RunFinished:
		return "run finished"
	case event.Feature:
		switch fe := e.Event.(type) {
		case event.FeatureStarted:
			return "feature started " + e.Feature.Name
		case event.FeatureFinished:
			return "feature finished " + e.Feature.Name
		case event.Rule:
			switch re := fe.Event.(type) {
			case event.RuleStarted:
				return "rule started " + fe.Rule.Name
			case event.RuleFinished:
				return "rule finished " + fe.Rule.Name
			case event.Scenario:
				return scenarioLabel(re)
			}
		case event.Scenario:
			return scenarioLabel(fe)
		}
	}

	return fmt.Sprintf("%T", ev)
}

func scenarioLabel(e event.Scenario) string {
	name := e.Scenario.Name
	if e.Retries != nil && e.Retries.Current > 0 {
		name = fmt.Sprintf("%s retry %d", name, e.Retries.Current)
	}

	switch se := e.Event.(type) {
	case event.ScenarioStarted:
		return "scenario started " + name
	case event.ScenarioFinished:
		if se.WillRetry {
			return "scenario finished " + name + " (will retry)"
		}

		return "scenario finished " + name
	case event.Hook:
		return hookLabel(se)
	case event.Background:
		return "background " + stepLabel(se.Event) + " " + se.Step.Text
	case event.Step:
		return "step " + stepLabel(se.Event) + " " + se.Step.Text
	case event.Log:
		return "log " + se.Text
	}

	return fmt.Sprintf("%T", e.Event)
}

func hookLabel(e event.Hook) string {
	kind := strings.ToLower(e.Type.String())
	switch e.Event.(type) {
	case event.HookStarted:
		return kind + " hook started"
	case event.HookPassed:
		return kind + " hook passed"
	case event.HookFailed:
		return kind + " hook failed"
	}

	return fmt.Sprintf("%T", e.Event)
}

func stepLabel(e event.StepEvent) string {
	switch e.(type) {
	case event.StepStarted:
		return "started"
	case event.StepPassed:
		return "passed"
	case event.StepSkipped:
		return "skipped"
	case event.StepFailed:
		return "failed"
	}

	return fmt.Sprintf("%T", e)
}

// stepError extracts the failure from a StepFailed event at any nesting
// depth, nil for everything else.
func stepError(ev event.Event) error {
	fe, ok := ev.(event.Feature)
	if !ok {
		return nil
	}

	var sc event.Scenario
	switch e := fe.Event.(type) {
	case event.Scenario:
		sc = e
	case event.Rule:
		s, ok := e.Event.(event.Scenario)
		if !ok {
			return nil
		}
		sc = s
	default:
		return nil
	}

	switch se := sc.Event.(type) {
	case event.Step:
		if f, ok := se.Event.(event.StepFailed); ok {
			return f.Err
		}
	case event.Background:
		if f, ok := se.Event.(event.StepFailed); ok {
			return f.Err
		}
	}

	return nil
}

// =============================================================================
// Test writers
// =============================================================================

// captureWriter records the normalized stream as labels. ParsingFinished is
// dropped: its position depends on how fast the source drains relative to
// the workers.
type captureWriter struct {
	labels    []string
	stepErrs  []error
	parseErrs []error
}

func (w *captureWriter) Event(_ context.Context, ev event.Event, _ *Result) error {
	if _, ok := ev.(event.ParsingFinished); ok {
		return nil
	}

	w.labels = append(w.labels, eventLabel(ev))
	if err := stepError(ev); err != nil {
		w.stepErrs = append(w.stepErrs, err)
	}

	return nil
}

func (w *captureWriter) Err(err error) error {
	w.parseErrs = append(w.parseErrs, err)

	return nil
}

// writerFunc adapts bare functions to the Writer interface.
type writerFunc struct {
	event func(ctx context.Context, ev event.Event, res *Result) error
	err   func(err error) error
}

func (w writerFunc) Event(ctx context.Context, ev event.Event, res *Result) error {
	if w.event == nil {
		return nil
	}

	return w.event(ctx, ev, res)
}

func (w writerFunc) Err(err error) error {
	if w.err == nil {
		return nil
	}

	return w.err(err)
}
