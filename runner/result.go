package runner

import (
	"sync"
	"time"

	"github.com/rlch/cuke"
)

// Result accumulates run outcomes while normalized events stream through the
// writers. Counter fields are written by the runner's consumer goroutine;
// read them after Run returns, or through the locked helpers while the run
// is live.
//
// A retried scenario counts only its final attempt: step failures that were
// retried away surface as StepsRetried, not StepsFailed.
type Result struct {
	mu sync.RWMutex

	StartTime time.Time
	EndTime   time.Time

	// Features counts features that finished.
	Features int

	ScenariosPassed  int
	ScenariosFailed  int
	ScenariosSkipped int
	// ScenariosRetried counts scenarios that needed at least one retry,
	// whatever their final outcome.
	ScenariosRetried int

	StepsPassed  int
	StepsFailed  int
	StepsSkipped int
	// StepsRetried counts failed steps whose attempt was re-run.
	StepsRetried int

	ParseErrors int
	HookErrors  int

	// Failures preserves terminal scenario failures in emission order for
	// the end-of-run summary.
	Failures []*Failure
}

// Failure is one terminal scenario failure.
type Failure struct {
	Feature  *cuke.Feature
	Rule     *cuke.Rule
	Scenario *cuke.Scenario

	// Step is the failing step, nil when a hook failed instead.
	Step *cuke.Step

	Err error
}

// NewResult creates an initialized Result.
func NewResult() *Result {
	return &Result{StartTime: time.Now()}
}

// Finish marks the result as complete.
func (r *Result) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.EndTime = time.Now()
}

// Elapsed returns the total execution time.
func (r *Result) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}

	return r.EndTime.Sub(r.StartTime)
}

// Ok reports whether the run passed: no failed scenarios, no hook failures
// and no parse errors.
func (r *Result) Ok() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.ScenariosFailed == 0 && r.HookErrors == 0 && r.ParseErrors == 0
}

// Scenarios returns the total number of finished scenarios.
func (r *Result) Scenarios() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.ScenariosPassed + r.ScenariosFailed + r.ScenariosSkipped
}

// Steps returns the total number of finished steps.
func (r *Result) Steps() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.StepsPassed + r.StepsFailed + r.StepsSkipped
}

// addFeature records a finished feature.
func (r *Result) addFeature() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Features++
}

// addParseError records one feature file that failed to parse.
func (r *Result) addParseError() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ParseErrors++
}

// addRetriedAttempt folds a failed attempt that will run again: its step
// failures count as retried, not failed. first marks the scenario's first
// retry.
func (r *Result) addRetriedAttempt(failedSteps int, hookFailed, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.StepsRetried += failedSteps
	if hookFailed {
		r.HookErrors++
	}
	if first {
		r.ScenariosRetried++
	}
}

// addAttempt folds a scenario's final attempt into the totals.
func (r *Result) addAttempt(t attemptTally) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.StepsPassed += t.passed
	r.StepsFailed += t.failed
	r.StepsSkipped += t.skipped
	if t.hookErr != nil {
		r.HookErrors++
	}

	switch {
	case t.failed > 0 || t.hookErr != nil:
		r.ScenariosFailed++
		err := t.stepErr
		if err == nil {
			err = t.hookErr
		}
		r.Failures = append(r.Failures, &Failure{
			Feature:  t.feature,
			Rule:     t.rule,
			Scenario: t.scenario,
			Step:     t.failedStep,
			Err:      err,
		})
	case t.skipped > 0:
		r.ScenariosSkipped++
	default:
		r.ScenariosPassed++
	}
}
