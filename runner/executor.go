package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/step"
)

// BeforeHook runs before each scenario attempt. The returned context is
// threaded through the attempt's step handlers; returning an error aborts
// the attempt's steps (the after-hook still runs).
type BeforeHook func(ctx context.Context, sc *cuke.Scenario) (context.Context, error)

// AfterHook runs after each scenario attempt, even when the before-hook
// failed. err is the attempt's first failure, nil when everything passed.
type AfterHook func(ctx context.Context, sc *cuke.Scenario, err error) error

// verdict classifies a finished attempt.
type verdict struct {
	failed    bool // a step or hook failed
	retryable bool // the failure came from a step and was not an ambiguous match
	skipped   bool // at least one step was skipped
}

// executor drives single scenario attempts through their lifecycle: before
// hook, background steps, scenario steps, after hook. Handler and hook
// panics are recovered here and converted into failures; nothing an attempt
// does may reach the dispatch loop.
type executor struct {
	registry *step.Registry
	before   BeforeHook
	after    AfterHook
	emit     func(event.Event)
}

// run executes one attempt of t's scenario and emits every lifecycle event
// between the attempt's Started and Finished markers, which the scheduler
// owns: Started must enter the stream in dispatch order, and Finished
// carries the retry decision made after run returns.
func (e *executor) run(ctx context.Context, t *task) verdict {
	var v verdict

	emit := func(ev event.ScenarioEvent) {
		e.emit(event.WrapScenario(t.feature, t.rule, t.carrier(ev)))
	}

	ctx = context.WithValue(ctx, logKey{}, func(text string) {
		emit(event.Log{Time: time.Now(), Text: text})
	})

	var hookErr, stepErr error
	if e.before != nil {
		ctx, hookErr = e.runHook(ctx, t.scenario, event.HookBefore, nil, emit)
	}

	// The first failure forces every later step to skipped: a failed
	// before-hook blocks them all, a failed step the ones after it.
	skip := hookErr != nil
	runSteps := func(steps []*cuke.Step, background bool) {
		for _, s := range steps {
			res := e.runStep(ctx, s, background, skip, emit)
			if res.ctx != nil {
				ctx = res.ctx
			}
			if res.err != nil && stepErr == nil {
				stepErr = res.err
				v.retryable = !res.ambiguous
				skip = true
			}
			if res.skipped {
				v.skipped = true
			}
		}
	}

	if bg := t.feature.Background; bg != nil {
		runSteps(bg.Steps, true)
	}
	if t.rule != nil && t.rule.Background != nil {
		runSteps(t.rule.Background.Steps, true)
	}
	runSteps(t.scenario.Steps, false)

	if e.after != nil {
		attemptErr := stepErr
		if attemptErr == nil {
			attemptErr = hookErr
		}
		if _, err := e.runHook(ctx, t.scenario, event.HookAfter, attemptErr, emit); err != nil && hookErr == nil {
			hookErr = err
		}
	}

	v.failed = stepErr != nil || hookErr != nil

	return v
}

// runHook invokes one hook with panic recovery, emitting its lifecycle
// events. attemptErr is handed to the after-hook.
func (e *executor) runHook(ctx context.Context, sc *cuke.Scenario, ht event.HookType, attemptErr error, emit func(event.ScenarioEvent)) (context.Context, error) {
	emit(event.Hook{Type: ht, Event: event.HookStarted{Time: time.Now()}})

	next, err := e.callHook(ctx, sc, ht, attemptErr)
	if err != nil {
		emit(event.Hook{Type: ht, Event: event.HookFailed{Time: time.Now(), Err: err}})

		return ctx, err
	}

	emit(event.Hook{Type: ht, Event: event.HookPassed{Time: time.Now()}})
	if next != nil {
		ctx = next
	}

	return ctx, nil
}

// callHook is the recovery boundary for hook panics.
func (e *executor) callHook(ctx context.Context, sc *cuke.Scenario, ht event.HookType, attemptErr error) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	if ht == event.HookBefore {
		return e.before(ctx, sc)
	}

	return nil, e.after(ctx, sc, attemptErr)
}

// stepResult carries one step's effect on the attempt.
type stepResult struct {
	ctx       context.Context // non-nil when the handler replaced the context
	err       error
	ambiguous bool
	skipped   bool
}

// runStep resolves and executes one background or scenario step. skip forces
// the step straight to Skipped (an earlier step or the before-hook already
// failed). Undefined steps are skipped and the attempt continues; an
// ambiguous match fails the attempt.
func (e *executor) runStep(ctx context.Context, s *cuke.Step, background, skip bool, emit func(event.ScenarioEvent)) stepResult {
	wrap := func(ev event.StepEvent) event.ScenarioEvent {
		if background {
			return event.Background{Step: s, Event: ev}
		}

		return event.Step{Step: s, Event: ev}
	}

	emit(wrap(event.StepStarted{Time: time.Now()}))

	if skip {
		emit(wrap(event.StepSkipped{Time: time.Now()}))

		return stepResult{skipped: true}
	}

	m, err := e.registry.Resolve(s)
	if err != nil {
		emit(wrap(event.StepFailed{Time: time.Now(), Err: err}))

		return stepResult{err: err, ambiguous: true}
	}
	if m == nil {
		emit(wrap(event.StepSkipped{Time: time.Now()}))

		return stepResult{skipped: true}
	}

	next, err := e.callStep(ctx, m, s)
	if err != nil {
		emit(wrap(event.StepFailed{Time: time.Now(), Captures: m.Captures, Location: m.Location(), Err: err}))

		return stepResult{err: err}
	}

	emit(wrap(event.StepPassed{Time: time.Now(), Captures: m.Captures, Location: m.Location()}))

	return stepResult{ctx: next}
}

// callStep is the recovery boundary for handler panics.
func (e *executor) callStep(ctx context.Context, m *step.Match, s *cuke.Step) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return m.Call(ctx, s)
}

type logKey struct{}

// Logf appends formatted text to the running scenario's event stream. It is
// safe to call from step handlers and hooks; outside an attempt it is a
// no-op.
func Logf(ctx context.Context, format string, args ...any) {
	if sink, ok := ctx.Value(logKey{}).(func(string)); ok {
		sink(fmt.Sprintf(format, args...))
	}
}
