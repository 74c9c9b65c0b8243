// Package event defines the lifecycle events emitted while running features.
//
// Events form a closed, nested sum type mirroring the feature tree: a
// top-level Event either marks a run boundary or carries a FeatureEvent,
// which in turn either marks a feature boundary or carries a rule- or
// scenario-level event, down to individual steps and hooks. Each level is
// sealed by an unexported marker method, so a type switch over the named
// variants is exhaustive.
//
// Events are immutable once constructed. The runner produces them out of
// order under concurrency; its normalizer restores parse order before writers
// see them. Carrier types (Feature, Rule, Scenario, Background, Step, Hook)
// reference the shared tree nodes by pointer — node identity, not content, is
// what correlates events.
package event

import (
	"time"

	"github.com/rlch/cuke"
)

// =============================================================================
// Run level
// =============================================================================

// Event is a top-level lifecycle event: a run boundary or a feature carrier.
type Event interface{ isEvent() }

// RunStarted is emitted once, before any feature event.
type RunStarted struct {
	Time time.Time
}

// ParsingFinished is emitted when the feature source is exhausted. Scenarios
// may still be executing; it reports what the parser produced.
type ParsingFinished struct {
	Time      time.Time
	Features  int
	Rules     int
	Scenarios int
	Steps     int
	// Errors counts features that failed to parse. The failures themselves
	// reach the writer through its error channel, not as events.
	Errors int
}

// RunFinished is emitted once, after every feature has finished.
type RunFinished struct {
	Time time.Time
}

func (RunStarted) isEvent()      {}
func (ParsingFinished) isEvent() {}
func (RunFinished) isEvent()     {}
func (Feature) isEvent()         {}

// =============================================================================
// Feature level
// =============================================================================

// Feature carries a FeatureEvent for one feature.
type Feature struct {
	Feature *cuke.Feature
	Event   FeatureEvent
}

// FeatureEvent is a feature boundary or a nested rule/scenario carrier.
type FeatureEvent interface{ isFeatureEvent() }

// FeatureStarted is emitted before any event under the feature.
type FeatureStarted struct {
	Time time.Time
}

// FeatureFinished is emitted after every scenario and rule under the feature
// has finished.
type FeatureFinished struct {
	Time time.Time
}

func (FeatureStarted) isFeatureEvent()  {}
func (FeatureFinished) isFeatureEvent() {}
func (Rule) isFeatureEvent()            {}
func (Scenario) isFeatureEvent()        {}

// =============================================================================
// Rule level
// =============================================================================

// Rule carries a RuleEvent for one rule.
type Rule struct {
	Rule  *cuke.Rule
	Event RuleEvent
}

// RuleEvent is a rule boundary or a nested scenario carrier.
type RuleEvent interface{ isRuleEvent() }

// RuleStarted is emitted before any scenario event under the rule.
type RuleStarted struct {
	Time time.Time
}

// RuleFinished is emitted after every scenario under the rule has finished.
type RuleFinished struct {
	Time time.Time
}

func (RuleStarted) isRuleEvent()  {}
func (RuleFinished) isRuleEvent() {}
func (Scenario) isRuleEvent()     {}

// =============================================================================
// Scenario level
// =============================================================================

// Scenario carries a ScenarioEvent for one scenario attempt. It appears at
// feature level for direct scenarios and at rule level for rule scenarios.
type Scenario struct {
	Scenario *cuke.Scenario

	// AttemptID is unique per concurrently-live attempt; a retried scenario
	// gets a fresh id each attempt.
	AttemptID int64

	// Retries holds the attempt's retry counters, nil when the scenario has
	// no retry budget. Current is 0 for the first attempt.
	Retries *Retries

	Event ScenarioEvent
}

// ScenarioEvent is one moment in a scenario attempt's lifecycle.
type ScenarioEvent interface{ isScenarioEvent() }

// ScenarioStarted opens an attempt.
type ScenarioStarted struct {
	Time time.Time
}

// ScenarioFinished closes an attempt.
type ScenarioFinished struct {
	Time time.Time

	// WillRetry is true iff the attempt failed and a further attempt has
	// been scheduled. Consumers keeping per-scenario state (the normalizer,
	// result accumulation) hold the scenario open while it is set.
	WillRetry bool
}

// Hook reports progress of the before- or after-scenario hook.
type Hook struct {
	Type  HookType
	Event HookEvent
}

// Background reports progress of one background step within the attempt.
type Background struct {
	Step  *cuke.Step
	Event StepEvent
}

// Step reports progress of one scenario step within the attempt.
type Step struct {
	Step  *cuke.Step
	Event StepEvent
}

// Log carries output a step handler emitted through the scenario's logger.
type Log struct {
	Time time.Time
	Text string
}

func (ScenarioStarted) isScenarioEvent()  {}
func (ScenarioFinished) isScenarioEvent() {}
func (Hook) isScenarioEvent()             {}
func (Background) isScenarioEvent()       {}
func (Step) isScenarioEvent()             {}
func (Log) isScenarioEvent()              {}

// =============================================================================
// Hook level
// =============================================================================

// HookType distinguishes the before- and after-scenario hooks.
type HookType int

const (
	// HookBefore runs before a scenario's first step.
	HookBefore HookType = iota
	// HookAfter runs after a scenario's last step, regardless of outcome.
	HookAfter
)

// String returns "Before" or "After".
func (t HookType) String() string {
	if t == HookBefore {
		return "Before"
	}

	return "After"
}

// HookEvent is one moment in a hook invocation.
type HookEvent interface{ isHookEvent() }

// HookStarted opens a hook invocation.
type HookStarted struct {
	Time time.Time
}

// HookPassed reports a hook that returned without error.
type HookPassed struct {
	Time time.Time
}

// HookFailed reports a hook that returned an error or panicked.
type HookFailed struct {
	Time time.Time
	Err  error
}

func (HookStarted) isHookEvent() {}
func (HookPassed) isHookEvent()  {}
func (HookFailed) isHookEvent()  {}

// =============================================================================
// Step level
// =============================================================================

// StepEvent is one moment in a step's execution.
type StepEvent interface{ isStepEvent() }

// StepStarted opens a step execution.
type StepStarted struct {
	Time time.Time
}

// StepSkipped reports a step that was not executed: either no registered
// pattern matched it, or an earlier step in the attempt failed.
type StepSkipped struct {
	Time time.Time
}

// StepPassed reports a successfully executed step.
type StepPassed struct {
	Time time.Time

	// Captures holds the matched text: whole match at index 0, then
	// capture groups in pattern order.
	Captures []string

	// Location is the registration site of the matched handler, "file:line".
	Location string
}

// StepFailed reports a step whose handler returned an error or panicked, or
// whose text matched more than one registered pattern.
type StepFailed struct {
	Time     time.Time
	Captures []string
	Location string
	Err      error
}

func (StepStarted) isStepEvent() {}
func (StepSkipped) isStepEvent() {}
func (StepPassed) isStepEvent()  {}
func (StepFailed) isStepEvent()  {}
