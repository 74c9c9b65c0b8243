package writer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/runner"
)

// Pretty renders a human-readable account of the run: feature and scenario
// headings, one line per step with its outcome, failure details inline, and
// an end-of-run summary. Because events arrive normalized, the output reads
// in document order whatever the concurrency.
type Pretty struct {
	w       io.Writer
	styles  *Styles
	started bool
}

// NewPretty creates a pretty writer.
func NewPretty(w io.Writer) *Pretty {
	return &Pretty{w: w, styles: DefaultStyles()}
}

// Event renders one event.
func (p *Pretty) Event(_ context.Context, ev event.Event, res *runner.Result) error {
	f := flatten(ev)

	switch f.kind {
	case kindFeatureStarted:
		if p.started {
			_, _ = fmt.Fprintln(p.w)
		}
		p.started = true

		heading := p.styles.Bold.Render(f.feature.String())
		_, _ = fmt.Fprintf(p.w, "%s  %s\n", heading, p.styles.Path.Render("# "+f.feature.Path))

	case kindRuleStarted:
		_, _ = fmt.Fprintf(p.w, "  %s\n", p.styles.Bold.Render(f.rule.String()))

	case kindScenarioStarted:
		name := p.styles.ScenarioName.Render(f.scenario.String())
		if f.retries != nil && f.retries.Current > 0 {
			name += p.styles.Running.Render(fmt.Sprintf(" (attempt %d)", f.retries.Current+1))
		}
		_, _ = fmt.Fprintf(p.w, "%s%s\n", p.indent(f), name)

	case kindScenarioFinished:
		if f.willRetry {
			_, _ = fmt.Fprintf(p.w, "%s  %s\n", p.indent(f), p.styles.Running.Render("retrying"))
		}

	case kindStepPassed:
		p.stepLine(f, p.styles.Pass, p.styles.SymbolPass)

	case kindStepFailed:
		p.stepLine(f, p.styles.Fail, p.styles.SymbolFail)
		_, _ = fmt.Fprintf(p.w, "%s    %s\n", p.indent(f), p.styles.Error.Render(f.err.Error()))

	case kindStepSkipped:
		p.stepLine(f, p.styles.Skip, p.styles.SymbolSkip)

	case kindHookFailed:
		msg := fmt.Sprintf("%s hook: %v", strings.ToLower(f.hook.String()), f.err)
		_, _ = fmt.Fprintf(p.w, "%s  %s\n", p.indent(f), p.styles.Error.Render(msg))

	case kindLog:
		_, _ = fmt.Fprintf(p.w, "%s    %s\n", p.indent(f), p.styles.Dim.Render(f.text))

	case kindRunFinished:
		p.summary(res)
	}

	return nil
}

// Err prints a parse failure.
func (p *Pretty) Err(err error) error {
	_, werr := fmt.Fprintf(p.w, "%s\n", p.styles.Error.Render(err.Error()))

	return werr
}

// indent returns the scenario-level indentation: scenarios sit under their
// feature, or one level deeper under a rule.
func (p *Pretty) indent(f flat) string {
	if f.rule != nil {
		return "    "
	}

	return "  "
}

func (p *Pretty) stepLine(f flat, style lipgloss.Style, symbol string) {
	in := p.indent(f)

	line := style.Render(symbol + " " + f.step.String())
	if f.location != "" {
		line += p.styles.Dim.Render("  # " + f.location)
	}
	_, _ = fmt.Fprintf(p.w, "%s  %s\n", in, line)

	if ds := f.step.DocString; ds != nil {
		_, _ = fmt.Fprintf(p.w, "%s    %s\n", in, p.styles.Dim.Render(`"""`))
		for _, l := range strings.Split(ds.Content, "\n") {
			_, _ = fmt.Fprintf(p.w, "%s    %s\n", in, p.styles.Dim.Render(l))
		}
		_, _ = fmt.Fprintf(p.w, "%s    %s\n", in, p.styles.Dim.Render(`"""`))
	}

	if tbl := f.step.Table; tbl != nil {
		for _, row := range tbl.Rows {
			_, _ = fmt.Fprintf(p.w, "%s    %s\n", in, p.styles.Dim.Render("| "+strings.Join(row, " | ")+" |"))
		}
	}
}

func (p *Pretty) summary(res *runner.Result) {
	_, _ = fmt.Fprintln(p.w)

	for _, fail := range res.Failures {
		_, _ = fmt.Fprintf(p.w, "%s %s\n", p.styles.Fail.Render(p.styles.SymbolFail), failurePath(fail))

		if fail.Step != nil {
			_, _ = fmt.Fprintf(p.w, "    %s\n", p.styles.Muted.Render(fail.Step.String()))
		}
		_, _ = fmt.Fprintf(p.w, "    %s\n", p.styles.Error.Render(fail.Err.Error()))
		_, _ = fmt.Fprintln(p.w)
	}

	status := p.styles.Pass.Render("PASS")
	if !res.Ok() {
		status = p.styles.Fail.Render("FAIL")
	}

	_, _ = fmt.Fprintf(p.w, "%s %s\n", status, summaryCounts(res))
}
