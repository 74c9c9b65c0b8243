package writer

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/runner"
)

// JSON streams newline-delimited JSON: one object per event, one per parse
// failure, and a closing summary object after run_finished.
type JSON struct {
	enc *json.Encoder
}

// NewJSON creates a JSON writer.
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

type jsonEvent struct {
	Time string `json:"time"`
	Kind string `json:"kind"`

	Feature string `json:"feature,omitempty"`
	Path    string `json:"path,omitempty"`
	Rule    string `json:"rule,omitempty"`

	Scenario  string `json:"scenario,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	WillRetry bool   `json:"will_retry,omitempty"`

	Hook       string `json:"hook,omitempty"`
	Background bool   `json:"background,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
	Step       string `json:"step,omitempty"`
	Location   string `json:"location,omitempty"`

	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`

	// parsing_finished counts.
	Features  int `json:"features,omitempty"`
	Rules     int `json:"rules,omitempty"`
	Scenarios int `json:"scenarios,omitempty"`
	Steps     int `json:"steps,omitempty"`
	Errors    int `json:"errors,omitempty"`
}

type jsonSummary struct {
	Kind             string  `json:"kind"`
	Features         int     `json:"features"`
	Scenarios        int     `json:"scenarios"`
	ScenariosPassed  int     `json:"scenarios_passed"`
	ScenariosFailed  int     `json:"scenarios_failed"`
	ScenariosSkipped int     `json:"scenarios_skipped"`
	ScenariosRetried int     `json:"scenarios_retried"`
	Steps            int     `json:"steps"`
	StepsPassed      int     `json:"steps_passed"`
	StepsFailed      int     `json:"steps_failed"`
	StepsSkipped     int     `json:"steps_skipped"`
	StepsRetried     int     `json:"steps_retried"`
	HookErrors       int     `json:"hook_errors"`
	ParseErrors      int     `json:"parse_errors"`
	Elapsed          float64 `json:"elapsed"`
	Ok               bool    `json:"ok"`
}

// Event encodes one event, plus the summary after the final one.
func (j *JSON) Event(_ context.Context, ev event.Event, res *runner.Result) error {
	f := flatten(ev)

	je := jsonEvent{
		Time: f.time.Format(time.RFC3339Nano),
		Kind: f.kind.String(),
	}

	if f.feature != nil {
		je.Feature = f.feature.Name
		je.Path = f.feature.Path
	}
	if f.rule != nil {
		je.Rule = f.rule.Name
	}
	if f.scenario != nil {
		je.Scenario = f.scenario.Name
	}
	if f.retries != nil {
		je.Attempt = f.retries.Current
	}
	je.WillRetry = f.willRetry

	switch f.kind {
	case kindHookStarted, kindHookPassed, kindHookFailed:
		je.Hook = strings.ToLower(f.hook.String())
	case kindParsingFinished:
		je.Features = f.parsing.Features
		je.Rules = f.parsing.Rules
		je.Scenarios = f.parsing.Scenarios
		je.Steps = f.parsing.Steps
		je.Errors = f.parsing.Errors
	}

	if f.step != nil {
		je.Background = f.background
		je.Keyword = f.step.Keyword
		je.Step = f.step.Text
		je.Location = f.location
	}
	if f.text != "" {
		je.Output = f.text
	}
	if f.err != nil {
		je.Error = f.err.Error()
	}

	if err := j.enc.Encode(je); err != nil {
		return err
	}

	if f.kind == kindRunFinished {
		return j.enc.Encode(jsonSummary{
			Kind:             "summary",
			Features:         res.Features,
			Scenarios:        res.Scenarios(),
			ScenariosPassed:  res.ScenariosPassed,
			ScenariosFailed:  res.ScenariosFailed,
			ScenariosSkipped: res.ScenariosSkipped,
			ScenariosRetried: res.ScenariosRetried,
			Steps:            res.Steps(),
			StepsPassed:      res.StepsPassed,
			StepsFailed:      res.StepsFailed,
			StepsSkipped:     res.StepsSkipped,
			StepsRetried:     res.StepsRetried,
			HookErrors:       res.HookErrors,
			ParseErrors:      res.ParseErrors,
			Elapsed:          res.Elapsed().Seconds(),
			Ok:               res.Ok(),
		})
	}

	return nil
}

// Err encodes a parse failure record.
func (j *JSON) Err(err error) error {
	return j.enc.Encode(jsonEvent{
		Time:  time.Now().Format(time.RFC3339Nano),
		Kind:  "parse_error",
		Error: err.Error(),
	})
}
