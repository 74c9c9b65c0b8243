package runner

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
)

func labels(events []event.Event) []string {
	if len(events) == 0 {
		return nil
	}
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = eventLabel(ev)
	}

	return out
}

func TestTrackerBoundaries(t *testing.T) {
	t.Parallel()

	s1 := mkScenario(11, "s1")
	s2 := mkScenario(31, "s2")
	s3 := mkScenario(32, "s3")
	rule := mkRule(3, "grouping", s2, s3)
	f := mkFeature(1, "alpha", s1)
	f.Rules = []*cuke.Rule{rule}

	c := newCompletionTracker()
	c.registerScenario(f, nil)
	c.registerScenario(f, rule)
	c.registerScenario(f, rule)

	now := time.Now()

	got := labels(c.scenarioStarted(f, nil, now))
	if diff := cmp.Diff([]string{"feature started alpha"}, got); diff != "" {
		t.Errorf("first start mismatch (-want +got):\n%s", diff)
	}

	// Later attempts under an open scope produce no boundaries.
	if got := c.scenarioStarted(f, nil, now); len(got) != 0 {
		t.Errorf("second start = %v, want nothing", labels(got))
	}

	got = labels(c.scenarioStarted(f, rule, now))
	if diff := cmp.Diff([]string{"rule started grouping"}, got); diff != "" {
		t.Errorf("rule start mismatch (-want +got):\n%s", diff)
	}

	// The direct scenario finishing leaves the rule open, so no boundary.
	if got := c.scenarioFinished(f, nil, false, now); len(got) != 0 {
		t.Errorf("direct finish = %v, want nothing while the rule is open", labels(got))
	}
	if got := c.scenarioFinished(f, rule, false, now); len(got) != 0 {
		t.Errorf("first rule finish = %v, want nothing", labels(got))
	}

	// The last scenario crosses both boundaries, rule first.
	got = labels(c.scenarioFinished(f, rule, false, now))
	want := []string{"rule finished grouping", "feature finished alpha"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("final finish mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackerRetriedAttemptKeepsScopeOpen(t *testing.T) {
	t.Parallel()

	s1 := mkScenario(11, "s1")
	f := mkFeature(1, "alpha", s1)

	c := newCompletionTracker()
	c.registerScenario(f, nil)

	now := time.Now()
	c.scenarioStarted(f, nil, now)

	if got := c.scenarioFinished(f, nil, true, now); got != nil {
		t.Errorf("retried finish = %v, want nothing", labels(got))
	}

	got := labels(c.scenarioFinished(f, nil, false, now))
	if diff := cmp.Diff([]string{"feature finished alpha"}, got); diff != "" {
		t.Errorf("final finish mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackerDrainRemaining(t *testing.T) {
	t.Parallel()

	a1 := mkScenario(11, "a1")
	a2 := mkScenario(12, "a2")
	fa := mkFeature(1, "alpha", a1, a2)

	b1 := mkScenario(31, "b1")
	rule := mkRule(3, "grouping", b1)
	fb := mkFeature(2, "beta")
	fb.Rules = []*cuke.Rule{rule}

	c := newCompletionTracker()
	c.registerScenario(fa, nil)
	c.registerScenario(fa, nil)
	c.registerScenario(fb, rule)

	now := time.Now()
	c.scenarioStarted(fa, nil, now)
	c.scenarioFinished(fa, nil, false, now)
	// a2 never ran; beta never started at all.

	got := labels(c.drainRemaining(now))
	want := []string{
		"feature finished alpha",
		"feature started beta",
		"rule started grouping",
		"rule finished grouping",
		"feature finished beta",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("drainRemaining mismatch (-want +got):\n%s", diff)
	}

	// Draining twice produces nothing new.
	if got := c.drainRemaining(now); len(got) != 0 {
		t.Errorf("second drain = %v, want nothing", labels(got))
	}
}

func TestTrackerOverFinishPanics(t *testing.T) {
	t.Parallel()

	s1 := mkScenario(11, "s1")
	f := mkFeature(1, "alpha", s1)

	c := newCompletionTracker()
	c.registerScenario(f, nil)

	now := time.Now()
	c.scenarioStarted(f, nil, now)
	c.scenarioFinished(f, nil, false, now)

	defer func() {
		if recover() == nil {
			t.Error("finishing more scenarios than registered did not panic")
		}
	}()
	c.scenarioFinished(f, nil, false, now)
}
