package runner

import (
	"sync"
	"time"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
)

// completionTracker detects Feature and Rule completion boundaries. It counts
// registered scenarios per scope and decrements as final attempts finish; the
// zero crossing produces the scope's Finished event exactly once. Crossing a
// boundary twice, or finishing more scenarios than were registered, is a
// programming error and panics.
//
// Every scenario of a feature must be registered before any of them is
// queued, so a fast early finisher cannot observe a partially registered
// scope and fire its boundary early.
type completionTracker struct {
	mu    sync.Mutex
	order []*featureProgress
	index map[int64]*featureProgress
}

type featureProgress struct {
	feature   *cuke.Feature
	remaining int // direct scenarios registered and not yet finally finished
	started   bool
	finished  bool
	rules     []*ruleProgress
	ruleIdx   map[int64]*ruleProgress
}

type ruleProgress struct {
	rule      *cuke.Rule
	remaining int
	started   bool
	finished  bool
}

func newCompletionTracker() *completionTracker {
	return &completionTracker{index: make(map[int64]*featureProgress)}
}

// registerScenario records one logical scenario under its scope. Retried
// attempts are not re-registered.
func (c *completionTracker) registerScenario(f *cuke.Feature, r *cuke.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp := c.progress(f)
	if r == nil {
		fp.remaining++

		return
	}

	rp := fp.ruleIdx[r.ID]
	if rp == nil {
		rp = &ruleProgress{rule: r}
		fp.rules = append(fp.rules, rp)
		fp.ruleIdx[r.ID] = rp
	}
	rp.remaining++
}

func (c *completionTracker) progress(f *cuke.Feature) *featureProgress {
	fp := c.index[f.ID]
	if fp == nil {
		fp = &featureProgress{feature: f, ruleIdx: make(map[int64]*ruleProgress)}
		c.order = append(c.order, fp)
		c.index[f.ID] = fp
	}

	return fp
}

// scenarioStarted returns the boundary events due before an attempt starts:
// FeatureStarted when this is the first attempt under the feature to run,
// then RuleStarted likewise. Later attempts get nothing.
func (c *completionTracker) scenarioStarted(f *cuke.Feature, r *cuke.Rule, now time.Time) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []event.Event
	fp := c.progress(f)
	if !fp.started {
		fp.started = true
		out = append(out, event.WrapFeature(f, event.FeatureStarted{Time: now}))
	}
	if r != nil {
		if rp := fp.ruleIdx[r.ID]; rp != nil && !rp.started {
			rp.started = true
			out = append(out, event.WrapRule(f, r, event.RuleStarted{Time: now}))
		}
	}

	return out
}

// scenarioFinished records the end of an attempt. A retried attempt does not
// decrement: only the scenario's final attempt, passed or exhausted, counts.
// The returned events are the RuleFinished and FeatureFinished boundaries
// this completion crossed, if any.
func (c *completionTracker) scenarioFinished(f *cuke.Feature, r *cuke.Rule, retried bool, now time.Time) []event.Event {
	if retried {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fp := c.index[f.ID]
	if fp == nil {
		panic("runner: scenario finished for unregistered feature")
	}

	var out []event.Event
	if r == nil {
		fp.remaining--
		if fp.remaining < 0 {
			panic("runner: feature finished more scenarios than registered")
		}
	} else {
		rp := fp.ruleIdx[r.ID]
		if rp == nil {
			panic("runner: scenario finished for unregistered rule")
		}
		rp.remaining--
		if rp.remaining < 0 {
			panic("runner: rule finished more scenarios than registered")
		}
		if rp.remaining == 0 {
			if rp.finished {
				panic("runner: rule finished twice")
			}
			rp.finished = true
			out = append(out, event.WrapRule(f, r, event.RuleFinished{Time: now}))
		}
	}

	if fp.drained() {
		if fp.finished {
			panic("runner: feature finished twice")
		}
		fp.finished = true
		out = append(out, event.WrapFeature(f, event.FeatureFinished{Time: now}))
	}

	return out
}

// drained reports whether every registered scenario under the feature,
// direct or through a rule, has finally finished.
func (fp *featureProgress) drained() bool {
	if fp.remaining > 0 {
		return false
	}
	for _, rp := range fp.rules {
		if !rp.finished {
			return false
		}
	}

	return true
}

// drainRemaining force-finishes every scope still open. It runs after the
// last in-flight attempt when the run stops early and scenarios were left
// undispatched; scopes that never started are opened and closed in one
// breath so every Finished is still preceded by a Started.
func (c *completionTracker) drainRemaining(now time.Time) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []event.Event
	for _, fp := range c.order {
		if fp.finished {
			continue
		}
		if !fp.started {
			fp.started = true
			out = append(out, event.WrapFeature(fp.feature, event.FeatureStarted{Time: now}))
		}
		for _, rp := range fp.rules {
			if rp.finished {
				continue
			}
			if !rp.started {
				rp.started = true
				out = append(out, event.WrapRule(fp.feature, rp.rule, event.RuleStarted{Time: now}))
			}
			rp.finished = true
			out = append(out, event.WrapRule(fp.feature, rp.rule, event.RuleFinished{Time: now}))
		}
		fp.finished = true
		out = append(out, event.WrapFeature(fp.feature, event.FeatureFinished{Time: now}))
	}

	return out
}
