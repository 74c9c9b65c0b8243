package event

import (
	"time"

	"github.com/rlch/cuke"
)

// WrapFeature nests fe under its feature carrier.
func WrapFeature(f *cuke.Feature, fe FeatureEvent) Event {
	return Feature{Feature: f, Event: fe}
}

// WrapRule nests re under its rule and feature carriers.
func WrapRule(f *cuke.Feature, r *cuke.Rule, re RuleEvent) Event {
	return Feature{Feature: f, Event: Rule{Rule: r, Event: re}}
}

// WrapScenario nests se under its scenario carrier and, when rule is non-nil,
// the enclosing rule carrier.
func WrapScenario(f *cuke.Feature, r *cuke.Rule, sc Scenario) Event {
	if r != nil {
		return Feature{Feature: f, Event: Rule{Rule: r, Event: sc}}
	}

	return Feature{Feature: f, Event: sc}
}

// TimeOf unwraps ev to its innermost moment and returns its timestamp. The
// zero time is returned for carriers with no timestamped leaf (which the
// runner never produces).
func TimeOf(ev Event) time.Time {
	switch e := ev.(type) {
	case RunStarted:
		return e.Time
	case ParsingFinished:
		return e.Time
	case RunFinished:
		return e.Time
	case Feature:
		return timeOfFeature(e.Event)
	}

	return time.Time{}
}

func timeOfFeature(ev FeatureEvent) time.Time {
	switch e := ev.(type) {
	case FeatureStarted:
		return e.Time
	case FeatureFinished:
		return e.Time
	case Rule:
		return timeOfRule(e.Event)
	case Scenario:
		return timeOfScenario(e.Event)
	}

	return time.Time{}
}

func timeOfRule(ev RuleEvent) time.Time {
	switch e := ev.(type) {
	case RuleStarted:
		return e.Time
	case RuleFinished:
		return e.Time
	case Scenario:
		return timeOfScenario(e.Event)
	}

	return time.Time{}
}

func timeOfScenario(ev ScenarioEvent) time.Time {
	switch e := ev.(type) {
	case ScenarioStarted:
		return e.Time
	case ScenarioFinished:
		return e.Time
	case Log:
		return e.Time
	case Hook:
		return timeOfHook(e.Event)
	case Background:
		return timeOfStep(e.Event)
	case Step:
		return timeOfStep(e.Event)
	}

	return time.Time{}
}

func timeOfHook(ev HookEvent) time.Time {
	switch e := ev.(type) {
	case HookStarted:
		return e.Time
	case HookPassed:
		return e.Time
	case HookFailed:
		return e.Time
	}

	return time.Time{}
}

func timeOfStep(ev StepEvent) time.Time {
	switch e := ev.(type) {
	case StepStarted:
		return e.Time
	case StepSkipped:
		return e.Time
	case StepPassed:
		return e.Time
	case StepFailed:
		return e.Time
	}

	return time.Time{}
}
