package runner

import (
	"sync"
	"time"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
)

// ScenarioType classifies how a scenario shares the worker pool.
type ScenarioType int

const (
	// Shared scenarios run concurrently with other Shared scenarios, up to
	// the concurrency budget.
	Shared ScenarioType = iota

	// Exclusive scenarios run alone: dispatch waits until nothing else is
	// running, and nothing new starts until the scenario finishes.
	Exclusive
)

// String returns "shared" or "exclusive".
func (t ScenarioType) String() string {
	if t == Exclusive {
		return "exclusive"
	}

	return "shared"
}

// Classifier assigns a ScenarioType to a scenario before it is queued.
type Classifier func(f *cuke.Feature, sc *cuke.Scenario) ScenarioType

// SerialClassifier returns a Classifier that marks scenarios carrying the
// given tag Exclusive and everything else Shared. The runner defaults to
// SerialClassifier("@serial").
func SerialClassifier(tag string) Classifier {
	return func(_ *cuke.Feature, sc *cuke.Scenario) ScenarioType {
		if sc.HasTag(tag) {
			return Exclusive
		}

		return Shared
	}
}

// task is one dispatchable scenario attempt.
type task struct {
	feature  *cuke.Feature
	rule     *cuke.Rule // nil for feature-level scenarios
	scenario *cuke.Scenario
	typ      ScenarioType

	// retries is the attempt counter for the next dispatch; opts is the
	// scenario's resolved retry budget. hasRetries distinguishes "no retry
	// configuration" from an exhausted budget when stamping events.
	retries    event.Retries
	opts       RetryOptions
	hasRetries bool

	// notBefore delays a retried attempt; the zero time means runnable now.
	notBefore time.Time

	// seq orders dispatch across the whole queue; a retry re-enters at the
	// back with a fresh seq.
	seq uint64

	attemptID int64 // assigned at dispatch
}

// carrier wraps ev in t's scenario carrier, stamped with the attempt id and
// the attempt's retry counters.
func (t *task) carrier(ev event.ScenarioEvent) event.Scenario {
	sc := event.Scenario{Scenario: t.scenario, AttemptID: t.attemptID, Event: ev}
	if t.hasRetries {
		r := t.retries
		sc.Retries = &r
	}

	return sc
}

// scenarioQueue holds not-yet-dispatched scenario attempts grouped by their
// position in the feature tree: per feature, a lane of direct scenarios plus
// one lane per rule, each FIFO.
//
// Dispatch order is global arrival order over lane heads: takeRunnable only
// ever considers the head of each lane (FIFO within a lane) and releases
// runnable heads oldest-first. An Exclusive head acts as a barrier once it
// is the oldest candidate: nothing newer is released until it has run alone.
// A head whose notBefore lies in the future blocks its own lane but not the
// others.
type scenarioQueue struct {
	mu       sync.Mutex
	features []*featureLane
	index    map[int64]*featureLane
	seq      uint64
	size     int
}

type featureLane struct {
	feature *cuke.Feature
	direct  []*task
	rules   []*ruleLane
	ruleIdx map[int64]*ruleLane
}

type ruleLane struct {
	rule  *cuke.Rule
	items []*task
}

func newScenarioQueue() *scenarioQueue {
	return &scenarioQueue{index: make(map[int64]*featureLane)}
}

// insert queues a scenario for its first attempt.
func (q *scenarioQueue) insert(f *cuke.Feature, r *cuke.Rule, sc *cuke.Scenario, typ ScenarioType, opts RetryOptions, hasRetries bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.push(&task{
		feature:    f,
		rule:       r,
		scenario:   sc,
		typ:        typ,
		retries:    opts.Retries,
		opts:       opts,
		hasRetries: hasRetries,
	})
}

// insertRetry re-queues a failed scenario for another attempt. It is the
// only path by which a scenario reappears: the new task keeps its original
// feature and rule placement so completion accounting still attributes it
// correctly, but takes a fresh seq, re-entering dispatch order at the back.
func (q *scenarioQueue) insertRetry(t *task, retries event.Retries, notBefore time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.push(&task{
		feature:    t.feature,
		rule:       t.rule,
		scenario:   t.scenario,
		typ:        t.typ,
		retries:    retries,
		opts:       t.opts,
		hasRetries: t.hasRetries,
		notBefore:  notBefore,
	})
}

func (q *scenarioQueue) push(t *task) {
	q.seq++
	t.seq = q.seq

	lane := q.index[t.feature.ID]
	if lane == nil {
		lane = &featureLane{feature: t.feature, ruleIdx: make(map[int64]*ruleLane)}
		q.features = append(q.features, lane)
		q.index[t.feature.ID] = lane
	}

	if t.rule == nil {
		lane.direct = append(lane.direct, t)
	} else {
		rl := lane.ruleIdx[t.rule.ID]
		if rl == nil {
			rl = &ruleLane{rule: t.rule}
			lane.rules = append(lane.rules, rl)
			lane.ruleIdx[t.rule.ID] = rl
		}
		rl.items = append(rl.items, t)
	}

	q.size++
}

// takeRunnable removes and returns the attempts that may start now. capacity
// bounds how many Shared scenarios are released; exclusiveFree reports that
// nothing at all is running, the only state an Exclusive scenario may be
// released into, and then always by itself.
func (q *scenarioQueue) takeRunnable(now time.Time, capacity int, exclusiveFree bool) []*task {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*task
	for capacity > 0 {
		t := q.oldestRunnable(now)
		if t == nil {
			break
		}

		if t.typ == Exclusive {
			if len(out) == 0 && exclusiveFree {
				q.remove(t)

				return []*task{t}
			}
			// Barrier: nothing newer runs until the pool drains and the
			// exclusive head has had its turn.
			break
		}

		q.remove(t)
		out = append(out, t)
		capacity--
	}

	return out
}

// oldestRunnable returns the lane head with the smallest seq whose notBefore
// has elapsed, without removing it.
func (q *scenarioQueue) oldestRunnable(now time.Time) *task {
	var oldest *task
	consider := func(items []*task) {
		if len(items) == 0 {
			return
		}

		head := items[0]
		if !head.notBefore.IsZero() && head.notBefore.After(now) {
			return
		}
		if oldest == nil || head.seq < oldest.seq {
			oldest = head
		}
	}

	for _, lane := range q.features {
		consider(lane.direct)
		for _, rl := range lane.rules {
			consider(rl.items)
		}
	}

	return oldest
}

// remove pops t from the head of its lane.
func (q *scenarioQueue) remove(t *task) {
	lane := q.index[t.feature.ID]
	if t.rule == nil {
		lane.direct = lane.direct[1:]
	} else {
		rl := lane.ruleIdx[t.rule.ID]
		rl.items = rl.items[1:]
	}

	q.size--
}

// nextWake returns the earliest notBefore among time-blocked lane heads, so
// the dispatch loop can arm its retry timer. ok is false when no head is
// waiting on the clock.
func (q *scenarioQueue) nextWake(now time.Time) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var wake time.Time
	consider := func(items []*task) {
		if len(items) == 0 {
			return
		}

		head := items[0]
		if head.notBefore.IsZero() || !head.notBefore.After(now) {
			return
		}
		if wake.IsZero() || head.notBefore.Before(wake) {
			wake = head.notBefore
		}
	}

	for _, lane := range q.features {
		consider(lane.direct)
		for _, rl := range lane.rules {
			consider(rl.items)
		}
	}

	return wake, !wake.IsZero()
}

// isEmpty reports whether no attempts remain queued.
func (q *scenarioQueue) isEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.size == 0
}
