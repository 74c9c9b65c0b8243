package writer

import (
	"errors"
	"testing"
	"time"

	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/runner"
)

func TestFlattenKinds(t *testing.T) {
	t.Parallel()

	feat := mkFeature(1, "billing", "billing.feature")
	rule := mkRule(2, 4, "refunds")
	sc := mkScenario(3, 6, "overdraft")
	step := mkStep("Given", "an empty account")

	tests := []struct {
		name string
		ev   event.Event
		want string
	}{
		{"run started", event.RunStarted{Time: time.Now()}, "run_started"},
		{"parsing finished", event.ParsingFinished{Features: 2}, "parsing_finished"},
		{"run finished", event.RunFinished{}, "run_finished"},
		{"feature started", event.WrapFeature(feat, event.FeatureStarted{}), "feature_started"},
		{"feature finished", event.WrapFeature(feat, event.FeatureFinished{}), "feature_finished"},
		{"rule started", event.WrapRule(feat, rule, event.RuleStarted{}), "rule_started"},
		{"rule finished", event.WrapRule(feat, rule, event.RuleFinished{}), "rule_finished"},
		{"scenario started", scEv(feat, nil, sc, nil, event.ScenarioStarted{}), "scenario_started"},
		{"scenario finished", scEv(feat, rule, sc, nil, event.ScenarioFinished{}), "scenario_finished"},
		{"hook failed", scEv(feat, nil, sc, nil, event.Hook{Type: event.HookAfter, Event: event.HookFailed{Err: errors.New("boom")}}), "hook_failed"},
		{"background step", scEv(feat, nil, sc, nil, event.Background{Step: step, Event: event.StepPassed{}}), "step_passed"},
		{"step skipped", scEv(feat, nil, sc, nil, event.Step{Step: step, Event: event.StepSkipped{}}), "step_skipped"},
		{"log", scEv(feat, nil, sc, nil, event.Log{Text: "hello"}), "log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := flatten(tt.ev)
			if got := f.kind.String(); got != tt.want {
				t.Errorf("kind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlattenCarriesContext(t *testing.T) {
	t.Parallel()

	feat := mkFeature(1, "billing", "billing.feature")
	rule := mkRule(2, 4, "refunds")
	sc := mkScenario(3, 6, "overdraft")
	step := mkStep("When", "I withdraw 50")
	retries := &event.Retries{Current: 1, Left: 2}

	f := flatten(scEv(feat, rule, sc, retries, event.Step{
		Step:  step,
		Event: event.StepFailed{Location: "steps.go:10", Err: errors.New("declined")},
	}))

	if f.feature != feat {
		t.Error("feature not carried through")
	}
	if f.rule != rule {
		t.Error("rule not carried through")
	}
	if f.scenario != sc {
		t.Error("scenario not carried through")
	}
	if f.retries != retries {
		t.Error("retries not carried through")
	}
	if f.step != step {
		t.Error("step not carried through")
	}
	if f.background {
		t.Error("background = true for a scenario step")
	}
	if f.location != "steps.go:10" {
		t.Errorf("location = %q, want %q", f.location, "steps.go:10")
	}
	if f.err == nil || f.err.Error() != "declined" {
		t.Errorf("err = %v, want declined", f.err)
	}

	bg := flatten(scEv(feat, nil, sc, nil, event.Background{Step: step, Event: event.StepStarted{}}))
	if !bg.background {
		t.Error("background = false for a background step")
	}

	hook := flatten(scEv(feat, nil, sc, nil, event.Hook{Type: event.HookBefore, Event: event.HookStarted{}}))
	if hook.hook != event.HookBefore {
		t.Errorf("hook = %v, want HookBefore", hook.hook)
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	feat := mkFeature(1, "billing", "billing.feature")
	sc := mkScenario(2, 3, "overdraft")

	var d Discard
	feed(t, d, runner.NewResult(),
		event.RunStarted{},
		scEv(feat, nil, sc, nil, event.ScenarioStarted{}),
		event.RunFinished{},
	)

	if err := d.Err(errors.New("oops")); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestFailurePath(t *testing.T) {
	t.Parallel()

	feat := mkFeature(1, "billing", "billing.feature")
	rule := mkRule(2, 4, "refunds")
	sc := mkScenario(3, 6, "double refund")

	withRule := failurePath(&runner.Failure{Feature: feat, Rule: rule, Scenario: sc})
	if want := "billing / refunds / double refund"; withRule != want {
		t.Errorf("failurePath = %q, want %q", withRule, want)
	}

	direct := failurePath(&runner.Failure{Feature: feat, Scenario: sc})
	if want := "billing / double refund"; direct != want {
		t.Errorf("failurePath = %q, want %q", direct, want)
	}
}
