package writer

import (
	"context"
	"regexp"
	"testing"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/runner"
)

// Tree builders with hand-assigned identities. Positions only matter where a
// test checks document ordering.

func mkFeature(id int64, name, path string) *cuke.Feature {
	return &cuke.Feature{
		NodeMeta: cuke.NodeMeta{ID: id, Pos: cuke.Position{Line: 1, Col: 1}},
		Keyword:  "Feature",
		Name:     name,
		Path:     path,
	}
}

func mkRule(id int64, line int, name string) *cuke.Rule {
	return &cuke.Rule{
		NodeMeta: cuke.NodeMeta{ID: id, Pos: cuke.Position{Line: line, Col: 3}},
		Keyword:  "Rule",
		Name:     name,
	}
}

func mkScenario(id int64, line int, name string) *cuke.Scenario {
	return &cuke.Scenario{
		NodeMeta: cuke.NodeMeta{ID: id, Pos: cuke.Position{Line: line, Col: 3}},
		Keyword:  "Scenario",
		Name:     name,
	}
}

func mkStep(keyword, text string) *cuke.Step {
	return &cuke.Step{
		Keyword: keyword,
		Text:    text,
	}
}

// scEv wraps a scenario-level event in its carriers.
func scEv(f *cuke.Feature, r *cuke.Rule, sc *cuke.Scenario, retries *event.Retries, se event.ScenarioEvent) event.Event {
	return event.WrapScenario(f, r, event.Scenario{
		Scenario: sc,
		Retries:  retries,
		Event:    se,
	})
}

// feed delivers events to a writer, failing the test on the first error.
func feed(t *testing.T, w runner.Writer, res *runner.Result, events ...event.Event) {
	t.Helper()

	for _, ev := range events {
		if err := w.Event(context.Background(), ev, res); err != nil {
			t.Fatalf("Event() error = %v", err)
		}
	}
}

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// plain strips color sequences so assertions hold under any terminal profile.
func plain(s string) string {
	return ansiSeq.ReplaceAllString(s, "")
}
