// Package runner schedules and executes feature scenarios.
//
// A Runner pulls features from a source sequence, queues their scenarios and
// runs attempts concurrently under a worker budget, with Exclusive scenarios
// serialized against everything else. Failed attempts may be re-queued under
// a retry policy. Raw events flow through a normalizer that restores parse
// order before writers see them, so a run's output reads the same at any
// concurrency level.
package runner

import (
	"context"
	"errors"
	"iter"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/step"
	"github.com/rlch/cuke/tags"
)

// Runner executes feature scenarios against a step registry.
type Runner struct {
	registry    *step.Registry
	writers     []Writer
	classifier  Classifier
	concurrency int
	failFast    bool
	retryCount  int
	retryDelay  time.Duration
	retryFilter *tags.Expression
	tagFilter   *tags.Expression
	filter      cuke.ScenarioFilter
	before      BeforeHook
	after       AfterHook
	logger      *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSteps sets the step definition registry.
func WithSteps(reg *step.Registry) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithWriter adds a writer receiving normalized events. Writers are invoked
// in the order they were added.
func WithWriter(w Writer) Option {
	return func(r *Runner) {
		r.writers = append(r.writers, w)
	}
}

// WithConcurrency bounds how many Shared scenarios run at once. Zero or
// negative means unbounded.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		r.concurrency = n
	}
}

// WithFailFast stops scheduling new scenarios after the first terminal
// failure; scenarios already in flight still run to completion.
func WithFailFast(enabled bool) Option {
	return func(r *Runner) {
		r.failFast = enabled
	}
}

// WithRetries sets the default retry count for failing scenarios.
func WithRetries(n int) Option {
	return func(r *Runner) {
		r.retryCount = n
	}
}

// WithRetryDelay sets the wait between a failed attempt and its retry.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.retryDelay = d
	}
}

// WithRetryTagFilter restricts the default retries to scenarios whose tags
// satisfy the expression; scenarios carrying an explicit retry tag are
// retried regardless. Panics if the expression does not compile.
func WithRetryTagFilter(expr string) Option {
	return func(r *Runner) {
		if expr != "" {
			r.retryFilter = tags.MustCompile(expr)
		}
	}
}

// WithTagFilter runs only the scenarios whose effective tags satisfy the
// expression. Panics if the expression does not compile.
func WithTagFilter(expr string) Option {
	return func(r *Runner) {
		if expr != "" {
			r.tagFilter = tags.MustCompile(expr)
		}
	}
}

// WithFilter runs only the scenarios the predicate accepts.
func WithFilter(f cuke.ScenarioFilter) Option {
	return func(r *Runner) {
		r.filter = f
	}
}

// WithClassifier replaces the Shared/Exclusive classifier.
func WithClassifier(c Classifier) Option {
	return func(r *Runner) {
		r.classifier = c
	}
}

// WithBeforeHook runs h before every scenario attempt.
func WithBeforeHook(h BeforeHook) Option {
	return func(r *Runner) {
		r.before = h
	}
}

// WithAfterHook runs h after every scenario attempt.
func WithAfterHook(h AfterHook) Option {
	return func(r *Runner) {
		r.after = h
	}
}

// WithLogger sets the diagnostic logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{
		classifier: SerialClassifier("@serial"),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = step.NewRegistry()
	}

	return r
}

// Run executes every scenario from features and returns the accumulated
// result. The error reports infrastructure failures — a writer error or
// context cancellation — never test failures; those are on the Result.
func (r *Runner) Run(ctx context.Context, features iter.Seq2[*cuke.Feature, error]) (*Result, error) {
	if features == nil {
		features = func(func(*cuke.Feature, error) bool) {}
	}

	res := NewResult()
	writers := make([]Writer, 0, len(r.writers)+1)
	writers = append(writers, &resultWriter{res: res})
	writers = append(writers, r.writers...)

	s := &scheduler{
		runner:  r,
		queue:   newScenarioQueue(),
		tracker: newCompletionTracker(),
		result:  res,
		writer:  NewMultiWriter(writers...),
		raw:     make(chan raw, 64),
		done:    make(chan attemptDone),
		in:      make(chan *cuke.Feature),
		stopCh:  make(chan struct{}),
	}
	s.exec = &executor{registry: r.registry, before: r.before, after: r.after, emit: s.emit}

	if err := s.run(ctx, features); err != nil {
		return res, err
	}

	return res, ctx.Err()
}

// =============================================================================
// Scheduler
// =============================================================================

// raw is one item of the unordered event stream: an event, or a parse error
// passed through to writers.
type raw struct {
	ev  event.Event
	err error
}

// attemptDone is a worker's completion report to the dispatch loop.
type attemptDone struct {
	scenario  *cuke.Scenario
	failed    bool // terminal failure, not retried
	exclusive bool
}

// scheduler owns the dispatch loop: it admits features from the source,
// releases queued attempts as capacity allows, reacts to finished attempts
// and closes the run out. Dispatch state — running counts, the exclusive
// flag, attempt ids — is touched only by the loop goroutine; workers report
// back through the done channel and the queue.
type scheduler struct {
	runner  *Runner
	queue   *scenarioQueue
	tracker *completionTracker
	result  *Result
	writer  Writer
	exec    *executor

	raw    chan raw
	done   chan attemptDone
	in     chan *cuke.Feature
	stopCh chan struct{}

	stopping atomic.Bool

	running     int
	exclusive   bool
	nextAttempt int64
}

func (s *scheduler) run(ctx context.Context, features iter.Seq2[*cuke.Feature, error]) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.source(gctx, features)

		return nil
	})
	g.Go(func() error {
		return s.consume(gctx)
	})
	g.Go(func() error {
		s.loop(gctx)

		return nil
	})

	return g.Wait()
}

// stop requests a graceful wind-down: no new dispatch, in-flight attempts
// run to completion. Safe to call from any goroutine, once or many times.
func (s *scheduler) stop() {
	if !s.stopping.Swap(true) {
		close(s.stopCh)
	}
}

func (s *scheduler) emit(ev event.Event) {
	s.raw <- raw{ev: ev}
}

// source pumps the feature sequence into the dispatch loop, passing parse
// errors straight through to the writers. When the sequence is exhausted it
// reports what the parser produced.
func (s *scheduler) source(ctx context.Context, features iter.Seq2[*cuke.Feature, error]) {
	defer close(s.in)

	var counts event.ParsingFinished
	for f, err := range features {
		if err != nil {
			s.raw <- raw{err: err}
			counts.Errors++

			continue
		}

		select {
		case s.in <- f:
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}

		counts.Features++
		counts.Rules += len(f.Rules)
		counts.Scenarios += f.CountScenarios()
		counts.Steps += f.CountSteps()
	}

	counts.Time = time.Now()
	s.raw <- raw{ev: counts}
}

// consume is the single goroutine driving the normalizer and the writers.
// It always drains the raw channel to completion so producers never block;
// after a writer failure it keeps draining without forwarding.
func (s *scheduler) consume(ctx context.Context) error {
	var werr error
	fail := func(err error) {
		if err == nil {
			return
		}
		if werr == nil && !errors.Is(err, ErrStopRun) {
			werr = err
		}
		s.stop()
	}

	norm := newNormalizer(func(ev event.Event) {
		if werr != nil {
			return
		}
		fail(s.writer.Event(ctx, ev, s.result))
	})

	for item := range s.raw {
		if item.err != nil {
			if werr == nil {
				fail(s.writer.Err(item.err))
			}

			continue
		}
		norm.accept(item.ev)
	}

	return werr
}

// loop is the dispatch loop. It ends once nothing is running and either all
// work is done or a stop was requested, then flushes completion boundaries
// for whatever never ran and closes the event stream.
func (s *scheduler) loop(ctx context.Context) {
	s.emit(event.RunStarted{Time: time.Now()})

	in := s.in
	stopCh := s.stopCh
	ctxDone := ctx.Done()

	for {
		if s.stopping.Load() {
			in = nil
		} else {
			s.dispatch(ctx)
		}

		if s.completed(in == nil) {
			break
		}

		// A time-blocked retry at a lane head arms a wake-up; everything
		// else is event-driven.
		var timerC <-chan time.Time
		if !s.stopping.Load() {
			if wake, ok := s.queue.nextWake(time.Now()); ok {
				timerC = time.After(time.Until(wake))
			}
		}

		select {
		case f, ok := <-in:
			if !ok {
				in = nil

				continue
			}
			s.admit(f)
		case d := <-s.done:
			s.finish(d)
		case <-timerC:
		case <-stopCh:
			stopCh = nil
		case <-ctxDone:
			s.stop()
			ctxDone = nil
		}
	}

	now := time.Now()
	for _, ev := range s.tracker.drainRemaining(now) {
		s.emit(ev)
	}
	s.emit(event.RunFinished{Time: now})
	close(s.raw)
}

// completed reports whether the loop can end: nothing in flight, and either
// a stop was requested or the source is dry and the queue drained.
func (s *scheduler) completed(sourceDone bool) bool {
	if s.running > 0 {
		return false
	}
	if s.stopping.Load() {
		return true
	}

	return sourceDone && s.queue.isEmpty()
}

// admit registers and queues a feature's scenarios. Everything is registered
// with the tracker before anything is queued: an early finisher must never
// see a partially registered feature.
func (s *scheduler) admit(f *cuke.Feature) {
	policy := retryPolicy{
		count:  s.runner.retryCount,
		delay:  s.runner.retryDelay,
		filter: s.runner.retryFilter,
	}

	type admission struct {
		rule *cuke.Rule
		sc   *cuke.Scenario
	}
	var admitted []admission
	consider := func(rule *cuke.Rule, sc *cuke.Scenario) {
		if !s.allowed(f, sc) {
			return
		}
		s.tracker.registerScenario(f, rule)
		admitted = append(admitted, admission{rule: rule, sc: sc})
	}

	for _, sc := range f.Scenarios {
		consider(nil, sc)
	}
	for _, r := range f.Rules {
		for _, sc := range r.Scenarios {
			consider(r, sc)
		}
	}

	for _, a := range admitted {
		opts, ok := policy.optionsFor(a.sc)
		s.queue.insert(f, a.rule, a.sc, s.runner.classifier(f, a.sc), opts, ok)
	}

	s.runner.logger.Debug("admitted feature",
		zap.String("feature", f.Name),
		zap.Int("scenarios", len(admitted)))
}

func (s *scheduler) allowed(f *cuke.Feature, sc *cuke.Scenario) bool {
	if s.runner.tagFilter != nil && !s.runner.tagFilter.Match(cuke.TagNames(sc.Tags)) {
		return false
	}
	if s.runner.filter != nil && !s.runner.filter(f, sc) {
		return false
	}

	return true
}

// dispatch launches every attempt the queue will release right now.
func (s *scheduler) dispatch(ctx context.Context) {
	if s.exclusive {
		return
	}

	for _, t := range s.queue.takeRunnable(time.Now(), s.capacity(), s.running == 0) {
		s.launch(ctx, t)
	}
}

func (s *scheduler) capacity() int {
	if s.runner.concurrency <= 0 {
		return math.MaxInt
	}

	return s.runner.concurrency - s.running
}

// launch emits the attempt's opening boundary events in dispatch order —
// the normalizer relies on Started events entering the stream oldest-first —
// and hands the attempt to a worker.
func (s *scheduler) launch(ctx context.Context, t *task) {
	s.nextAttempt++
	t.attemptID = s.nextAttempt

	now := time.Now()
	for _, ev := range s.tracker.scenarioStarted(t.feature, t.rule, now) {
		s.emit(ev)
	}
	s.emit(event.WrapScenario(t.feature, t.rule, t.carrier(event.ScenarioStarted{Time: now})))

	s.running++
	if t.typ == Exclusive {
		s.exclusive = true
	}

	s.runner.logger.Debug("dispatching scenario",
		zap.String("scenario", t.scenario.Name),
		zap.Int64("attempt", t.attemptID),
		zap.Stringer("type", t.typ))

	go s.attempt(ctx, t)
}

// attempt is the worker body: run the lifecycle, settle the retry decision,
// file the completion. All failure handling happens at or below this frame.
func (s *scheduler) attempt(ctx context.Context, t *task) {
	v := s.exec.run(ctx, t)

	var (
		next      event.Retries
		delay     time.Duration
		willRetry bool
	)
	if v.failed && !s.stopping.Load() {
		next, delay, willRetry = shouldRetry(v, t.retries, t.opts, t.scenario)
	}

	s.emit(event.WrapScenario(t.feature, t.rule, t.carrier(event.ScenarioFinished{
		Time:      time.Now(),
		WillRetry: willRetry,
	})))

	if willRetry {
		var notBefore time.Time
		if delay > 0 {
			notBefore = time.Now().Add(delay)
		}
		s.queue.insertRetry(t, next, notBefore)
		s.runner.logger.Debug("retrying scenario",
			zap.String("scenario", t.scenario.Name),
			zap.Int("retry", next.Current),
			zap.Duration("delay", delay))
	} else {
		for _, ev := range s.tracker.scenarioFinished(t.feature, t.rule, false, time.Now()) {
			s.emit(ev)
		}
	}

	s.done <- attemptDone{
		scenario:  t.scenario,
		failed:    v.failed && !willRetry,
		exclusive: t.typ == Exclusive,
	}
}

// finish folds a worker's report back into dispatch state.
func (s *scheduler) finish(d attemptDone) {
	s.running--
	if d.exclusive {
		s.exclusive = false
	}
	if d.failed && s.runner.failFast && !s.stopping.Load() {
		s.runner.logger.Debug("stopping run after failure",
			zap.String("scenario", d.scenario.Name))
		s.stop()
	}
}
