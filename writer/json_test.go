package writer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/runner"
)

// decodeLines splits NDJSON output into one decoded object per line.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	out := make([]map[string]any, len(lines))

	for i, line := range lines {
		if err := json.Unmarshal([]byte(line), &out[i]); err != nil {
			t.Fatalf("line %d invalid JSON: %v\n%s", i, err, line)
		}
	}

	return out
}

func TestJSONStepEvent(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	feat := mkFeature(1, "billing", "features/billing.feature")
	sc := mkScenario(2, 3, "charge")
	step := mkStep("Given", "a balance of 100")

	var buf bytes.Buffer
	j := NewJSON(&buf)
	res := runner.NewResult()

	feed(t, j, res, scEv(feat, nil, sc, &event.Retries{Current: 1, Left: 0}, event.Step{
		Step:  step,
		Event: event.StepPassed{Time: fixed, Location: "steps.go:42"},
	}))

	got := decodeLines(t, &buf)[0]

	if got["kind"] != "step_passed" {
		t.Errorf("kind = %v, want step_passed", got["kind"])
	}
	if got["feature"] != "billing" {
		t.Errorf("feature = %v, want billing", got["feature"])
	}
	if got["path"] != "features/billing.feature" {
		t.Errorf("path = %v, want features/billing.feature", got["path"])
	}
	if got["scenario"] != "charge" {
		t.Errorf("scenario = %v, want charge", got["scenario"])
	}
	if got["keyword"] != "Given" {
		t.Errorf("keyword = %v, want Given", got["keyword"])
	}
	if got["step"] != "a balance of 100" {
		t.Errorf("step = %v, want the step text", got["step"])
	}
	if got["location"] != "steps.go:42" {
		t.Errorf("location = %v, want steps.go:42", got["location"])
	}
	if got["attempt"] != float64(1) {
		t.Errorf("attempt = %v, want 1", got["attempt"])
	}
	if got["time"] != fixed.Format(time.RFC3339Nano) {
		t.Errorf("time = %v, want %v", got["time"], fixed.Format(time.RFC3339Nano))
	}
}

func TestJSONFailureAndRetry(t *testing.T) {
	t.Parallel()

	feat := mkFeature(1, "billing", "billing.feature")
	rule := mkRule(2, 4, "refunds")
	sc := mkScenario(3, 6, "flaky")
	step := mkStep("When", "it blips")

	var buf bytes.Buffer
	j := NewJSON(&buf)
	res := runner.NewResult()

	feed(t, j, res,
		scEv(feat, rule, sc, nil, event.Step{Step: step, Event: event.StepFailed{Err: errors.New("blip")}}),
		scEv(feat, rule, sc, nil, event.ScenarioFinished{WillRetry: true}),
	)

	got := decodeLines(t, &buf)

	if got[0]["kind"] != "step_failed" {
		t.Errorf("kind = %v, want step_failed", got[0]["kind"])
	}
	if got[0]["error"] != "blip" {
		t.Errorf("error = %v, want blip", got[0]["error"])
	}
	if got[0]["rule"] != "refunds" {
		t.Errorf("rule = %v, want refunds", got[0]["rule"])
	}

	if got[1]["kind"] != "scenario_finished" {
		t.Errorf("kind = %v, want scenario_finished", got[1]["kind"])
	}
	if got[1]["will_retry"] != true {
		t.Errorf("will_retry = %v, want true", got[1]["will_retry"])
	}
}

func TestJSONHookAndParsing(t *testing.T) {
	t.Parallel()

	feat := mkFeature(1, "billing", "billing.feature")
	sc := mkScenario(2, 3, "charge")

	var buf bytes.Buffer
	j := NewJSON(&buf)
	res := runner.NewResult()

	feed(t, j, res,
		event.ParsingFinished{Features: 2, Rules: 1, Scenarios: 5, Steps: 12, Errors: 1},
		scEv(feat, nil, sc, nil, event.Hook{Type: event.HookBefore, Event: event.HookFailed{Err: errors.New("no db")}}),
	)

	got := decodeLines(t, &buf)

	if got[0]["kind"] != "parsing_finished" {
		t.Errorf("kind = %v, want parsing_finished", got[0]["kind"])
	}
	if got[0]["features"] != float64(2) {
		t.Errorf("features = %v, want 2", got[0]["features"])
	}
	if got[0]["scenarios"] != float64(5) {
		t.Errorf("scenarios = %v, want 5", got[0]["scenarios"])
	}
	if got[0]["errors"] != float64(1) {
		t.Errorf("errors = %v, want 1", got[0]["errors"])
	}

	if got[1]["kind"] != "hook_failed" {
		t.Errorf("kind = %v, want hook_failed", got[1]["kind"])
	}
	if got[1]["hook"] != "before" {
		t.Errorf("hook = %v, want before", got[1]["hook"])
	}
	if got[1]["error"] != "no db" {
		t.Errorf("error = %v, want no db", got[1]["error"])
	}
}

func TestJSONSummary(t *testing.T) {
	t.Parallel()

	res := runner.NewResult()
	res.Features = 1
	res.ScenariosPassed = 1
	res.ScenariosFailed = 1
	res.StepsPassed = 4
	res.StepsFailed = 1
	res.Finish()

	var buf bytes.Buffer
	j := NewJSON(&buf)
	feed(t, j, res, event.RunFinished{Time: time.Now()})

	got := decodeLines(t, &buf)

	if len(got) != 2 {
		t.Fatalf("got %d lines, want run_finished plus summary", len(got))
	}

	if got[0]["kind"] != "run_finished" {
		t.Errorf("kind = %v, want run_finished", got[0]["kind"])
	}

	sum := got[1]
	if sum["kind"] != "summary" {
		t.Errorf("kind = %v, want summary", sum["kind"])
	}
	if sum["scenarios"] != float64(2) {
		t.Errorf("scenarios = %v, want 2", sum["scenarios"])
	}
	if sum["scenarios_failed"] != float64(1) {
		t.Errorf("scenarios_failed = %v, want 1", sum["scenarios_failed"])
	}
	if sum["steps"] != float64(5) {
		t.Errorf("steps = %v, want 5", sum["steps"])
	}
	if ok, isBool := sum["ok"].(bool); !isBool || ok {
		t.Errorf("ok = %v, want false", sum["ok"])
	}
}

func TestJSONParseError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	j := NewJSON(&buf)

	if err := j.Err(errors.New("bad.feature:3: unexpected token")); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	got := decodeLines(t, &buf)[0]

	if got["kind"] != "parse_error" {
		t.Errorf("kind = %v, want parse_error", got["kind"])
	}
	if got["error"] != "bad.feature:3: unexpected token" {
		t.Errorf("error = %v, want the parse failure", got["error"])
	}
}
