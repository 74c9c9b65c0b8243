package runner

import (
	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
)

// normalizer is a reorder buffer between the raw event stream and the
// writers. Attempts finish out of order under concurrency; the normalizer
// re-emits their events as if every scenario had run sequentially in parse
// order.
//
// Ordering is structural, not clock-based. Features drain in the order they
// entered the stream, which is source order because the dispatch loop starts
// them oldest-first; within a feature, child scopes — scenarios and rules —
// drain in the order their first event arrived, which matches parse order
// for the same reason. All events of one attempt stay contiguous, and a
// retried scenario's slot stays open across attempts, so its retries drain
// back to back before any later sibling. A scope leaves the buffer only
// after its Finished boundary has been emitted.
//
// The normalizer is driven by the runner's single consumer goroutine and is
// not safe for concurrent use.
type normalizer struct {
	out      func(event.Event)
	features []*featureSlot
	index    map[int64]*featureSlot
	closed   map[int64]bool // fully drained features; late events are dropped
}

func newNormalizer(out func(event.Event)) *normalizer {
	return &normalizer{
		out:    out,
		index:  make(map[int64]*featureSlot),
		closed: make(map[int64]bool),
	}
}

// accept buffers or forwards one raw event, then emits everything the
// ordering now allows.
func (n *normalizer) accept(ev event.Event) {
	if _, ok := ev.(event.RunFinished); ok {
		n.flush()
		n.out(ev)

		return
	}

	fe, ok := ev.(event.Feature)
	if !ok {
		// Run-level events take no part in reordering.
		n.out(ev)

		return
	}

	if n.closed[fe.Feature.ID] {
		return
	}

	n.slot(fe.Feature).accept(fe)
	n.drain()
}

func (n *normalizer) slot(f *cuke.Feature) *featureSlot {
	s := n.index[f.ID]
	if s == nil {
		s = newFeatureSlot(f)
		n.features = append(n.features, s)
		n.index[f.ID] = s
	}

	return s
}

// drain emits from the head feature for as long as it makes progress,
// advancing whenever the head closes.
func (n *normalizer) drain() {
	for len(n.features) > 0 {
		head := n.features[0]
		head.drain(n.out)
		if !head.done {
			return
		}

		n.closed[head.feature.ID] = true
		delete(n.index, head.feature.ID)
		n.features = n.features[1:]
	}
}

// flush force-emits every buffered event in structural order. It runs at end
// of stream, where open scopes can no longer close on their own: under
// fail-fast a retry may sit queued but never dispatched, leaving its
// scenario slot open forever.
func (n *normalizer) flush() {
	for _, s := range n.features {
		s.flush(n.out)
		n.closed[s.feature.ID] = true
		delete(n.index, s.feature.ID)
	}
	n.features = nil
}

// =============================================================================
// Slots
// =============================================================================

// childSlot is one scenario or rule buffer nested in a feature slot.
type childSlot interface {
	// drain emits the slot's emittable prefix and reports whether the slot
	// has closed.
	drain(out func(event.Event)) bool

	// flush emits everything buffered regardless of closure.
	flush(out func(event.Event))
}

type childKey struct {
	rule bool
	id   int64
}

type childEntry struct {
	key  childKey
	slot childSlot
}

// featureSlot buffers one feature's events until the feature reaches the
// stream head.
type featureSlot struct {
	feature        *cuke.Feature
	started        *event.Event // pending FeatureStarted
	startedEmitted bool
	finished       *event.Event // pending FeatureFinished, held until children close
	children       []childEntry // first-event order
	index          map[childKey]childSlot
	done           bool
}

func newFeatureSlot(f *cuke.Feature) *featureSlot {
	return &featureSlot{feature: f, index: make(map[childKey]childSlot)}
}

func (s *featureSlot) accept(fe event.Feature) {
	switch e := fe.Event.(type) {
	case event.FeatureStarted:
		ev := event.Event(fe)
		s.started = &ev
	case event.FeatureFinished:
		ev := event.Event(fe)
		s.finished = &ev
	case event.Rule:
		s.rule(e.Rule.ID).accept(fe, e)
	case event.Scenario:
		s.scenario(e.Scenario.ID).append(fe, e)
	}
}

func (s *featureSlot) rule(id int64) *ruleSlot {
	key := childKey{rule: true, id: id}
	if c, ok := s.index[key]; ok {
		return c.(*ruleSlot)
	}

	c := &ruleSlot{index: make(map[int64]*scenarioSlot)}
	s.children = append(s.children, childEntry{key: key, slot: c})
	s.index[key] = c

	return c
}

func (s *featureSlot) scenario(id int64) *scenarioSlot {
	key := childKey{id: id}
	if c, ok := s.index[key]; ok {
		return c.(*scenarioSlot)
	}

	c := &scenarioSlot{}
	s.children = append(s.children, childEntry{key: key, slot: c})
	s.index[key] = c

	return c
}

// drain emits everything order allows: the Started boundary, then child
// slots front to back — each fully before the next — then the Finished
// boundary once every child has closed.
func (s *featureSlot) drain(out func(event.Event)) {
	if !s.startedEmitted {
		if s.started == nil {
			return
		}
		out(*s.started)
		s.startedEmitted = true
		s.started = nil
	}

	for len(s.children) > 0 {
		head := s.children[0]
		if !head.slot.drain(out) {
			return
		}
		delete(s.index, head.key)
		s.children = s.children[1:]
	}

	if s.finished != nil {
		out(*s.finished)
		s.finished = nil
		s.done = true
	}
}

func (s *featureSlot) flush(out func(event.Event)) {
	if s.started != nil {
		out(*s.started)
		s.started = nil
		s.startedEmitted = true
	}
	for _, c := range s.children {
		c.slot.flush(out)
	}
	s.children = nil
	if s.finished != nil {
		out(*s.finished)
		s.finished = nil
	}
	s.done = true
}

// ruleSlot buffers one rule's events: its boundaries plus a scenario slot
// per child, in first-event order.
type ruleSlot struct {
	started        *event.Event
	startedEmitted bool
	finished       *event.Event
	children       []*scenarioSlot
	order          []int64
	index          map[int64]*scenarioSlot
}

func (s *ruleSlot) accept(full event.Event, re event.Rule) {
	switch e := re.Event.(type) {
	case event.RuleStarted:
		s.started = &full
	case event.RuleFinished:
		s.finished = &full
	case event.Scenario:
		s.scenario(e.Scenario.ID).append(full, e)
	}
}

func (s *ruleSlot) scenario(id int64) *scenarioSlot {
	if c, ok := s.index[id]; ok {
		return c
	}

	c := &scenarioSlot{}
	s.children = append(s.children, c)
	s.order = append(s.order, id)
	s.index[id] = c

	return c
}

func (s *ruleSlot) drain(out func(event.Event)) bool {
	if !s.startedEmitted {
		if s.started == nil {
			return false
		}
		out(*s.started)
		s.startedEmitted = true
		s.started = nil
	}

	for len(s.children) > 0 {
		if !s.children[0].drain(out) {
			return false
		}
		delete(s.index, s.order[0])
		s.children = s.children[1:]
		s.order = s.order[1:]
	}

	if s.finished == nil {
		return false
	}
	out(*s.finished)
	s.finished = nil

	return true
}

func (s *ruleSlot) flush(out func(event.Event)) {
	if s.started != nil {
		out(*s.started)
		s.started = nil
		s.startedEmitted = true
	}
	for _, c := range s.children {
		c.flush(out)
	}
	s.children = nil
	if s.finished != nil {
		out(*s.finished)
		s.finished = nil
	}
}

// scenarioSlot buffers one scenario's events FIFO. The slot closes once its
// final ScenarioFinished — one with WillRetry unset — has been emitted;
// Finished markers of retried attempts keep it open so the next attempt
// drains contiguously after them.
type scenarioSlot struct {
	events    []event.Event
	finalSeen bool
}

func (s *scenarioSlot) append(full event.Event, sc event.Scenario) {
	if fin, ok := sc.Event.(event.ScenarioFinished); ok && !fin.WillRetry {
		s.finalSeen = true
	}
	s.events = append(s.events, full)
}

func (s *scenarioSlot) drain(out func(event.Event)) bool {
	for _, ev := range s.events {
		out(ev)
	}
	s.events = nil

	return s.finalSeen
}

func (s *scenarioSlot) flush(out func(event.Event)) {
	for _, ev := range s.events {
		out(ev)
	}
	s.events = nil
}
