package runner

import (
	"context"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
)

// Writer receives normalized events during a run.
//
// Writers run on the runner's single consumer goroutine: calls never overlap
// and events arrive in normalized order. Returning an error aborts the run;
// returning ErrStopRun (possibly wrapped) instead winds it down gracefully,
// letting in-flight scenarios finish.
type Writer interface {
	// Event is called for each normalized event. res reflects everything up
	// to and including it.
	Event(ctx context.Context, ev event.Event, res *Result) error

	// Err is called for out-of-band failures: feature files that failed to
	// parse.
	Err(err error) error
}

// MultiWriter fans out events to multiple writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a writer that dispatches to multiple writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Event dispatches to all writers, stopping on first error.
func (m *MultiWriter) Event(ctx context.Context, ev event.Event, res *Result) error {
	for _, w := range m.writers {
		if err := w.Event(ctx, ev, res); err != nil {
			return err
		}
	}

	return nil
}

// Err dispatches to all writers, stopping on first error.
func (m *MultiWriter) Err(err error) error {
	for _, w := range m.writers {
		if werr := w.Err(err); werr != nil {
			return werr
		}
	}

	return nil
}

// resultWriter folds the normalized stream into the shared Result. Because
// the normalizer keeps each scenario's attempts contiguous, a single
// in-progress tally is enough state.
type resultWriter struct {
	res      *Result
	tally    attemptTally
	retrying bool // between a WillRetry finish and the same scenario's final finish
}

// attemptTally is the in-progress accounting for one scenario attempt.
type attemptTally struct {
	feature  *cuke.Feature
	rule     *cuke.Rule
	scenario *cuke.Scenario

	passed, failed, skipped int

	failedStep *cuke.Step
	stepErr    error
	hookErr    error
}

// Event updates the result accumulator.
func (w *resultWriter) Event(_ context.Context, ev event.Event, _ *Result) error {
	switch e := ev.(type) {
	case event.RunFinished:
		w.res.Finish()
	case event.Feature:
		switch fe := e.Event.(type) {
		case event.FeatureFinished:
			w.res.addFeature()
		case event.Rule:
			if sc, ok := fe.Event.(event.Scenario); ok {
				w.scenario(e.Feature, fe.Rule, sc)
			}
		case event.Scenario:
			w.scenario(e.Feature, nil, fe)
		}
	}

	return nil
}

// Err counts a parse failure.
func (w *resultWriter) Err(error) error {
	w.res.addParseError()

	return nil
}

func (w *resultWriter) scenario(f *cuke.Feature, r *cuke.Rule, sc event.Scenario) {
	switch se := sc.Event.(type) {
	case event.ScenarioStarted:
		w.tally = attemptTally{feature: f, rule: r, scenario: sc.Scenario}
	case event.Hook:
		if hf, ok := se.Event.(event.HookFailed); ok && w.tally.hookErr == nil {
			w.tally.hookErr = hf.Err
		}
	case event.Background:
		w.step(se.Step, se.Event)
	case event.Step:
		w.step(se.Step, se.Event)
	case event.ScenarioFinished:
		if se.WillRetry {
			w.res.addRetriedAttempt(w.tally.failed, w.tally.hookErr != nil, !w.retrying)
			w.retrying = true

			return
		}
		w.res.addAttempt(w.tally)
		w.retrying = false
	}
}

func (w *resultWriter) step(s *cuke.Step, ev event.StepEvent) {
	switch e := ev.(type) {
	case event.StepPassed:
		w.tally.passed++
	case event.StepSkipped:
		w.tally.skipped++
	case event.StepFailed:
		w.tally.failed++
		if w.tally.stepErr == nil {
			w.tally.stepErr = e.Err
			w.tally.failedStep = s
		}
	}
}
