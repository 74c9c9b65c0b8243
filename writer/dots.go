package writer

import (
	"context"
	"fmt"
	"io"

	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/runner"
)

const lineWidth = 80

// Dots is the minimal progress writer: one rune per finished scenario, a
// digest of failures and a count line at the end. Retried attempts print
// nothing until the scenario's final attempt settles.
type Dots struct {
	w     io.Writer
	count int

	failed  bool
	skipped bool
}

// NewDots creates a dots writer.
func NewDots(w io.Writer) *Dots {
	return &Dots{w: w}
}

// Event tracks scenario outcomes and prints a rune per final attempt.
func (d *Dots) Event(_ context.Context, ev event.Event, res *runner.Result) error {
	f := flatten(ev)

	switch f.kind {
	case kindScenarioStarted:
		d.failed = false
		d.skipped = false

	case kindStepFailed, kindHookFailed:
		d.failed = true

	case kindStepSkipped:
		d.skipped = true

	case kindScenarioFinished:
		if f.willRetry {
			return nil
		}

		switch {
		case d.failed:
			return d.mark("F")
		case d.skipped:
			return d.mark("S")
		default:
			return d.mark(".")
		}

	case kindRunFinished:
		d.summary(res)
	}

	return nil
}

// Err marks a parse failure in the progress line.
func (d *Dots) Err(error) error {
	return d.mark("E")
}

func (d *Dots) mark(char string) error {
	_, err := fmt.Fprint(d.w, char)
	d.count++

	if d.count%lineWidth == 0 {
		_, _ = fmt.Fprintln(d.w)
	}

	return err
}

func (d *Dots) summary(res *runner.Result) {
	if d.count > 0 && d.count%lineWidth != 0 {
		_, _ = fmt.Fprintln(d.w)
	}

	_, _ = fmt.Fprintln(d.w)

	for _, f := range res.Failures {
		_, _ = fmt.Fprintf(d.w, "FAIL %s\n", failurePath(f))

		if f.Step != nil {
			_, _ = fmt.Fprintf(d.w, "  %s\n", f.Step.String())
		}
		_, _ = fmt.Fprintf(d.w, "  %v\n", f.Err)
		_, _ = fmt.Fprintln(d.w)
	}

	status := "PASS"
	if !res.Ok() {
		status = "FAIL"
	}

	_, _ = fmt.Fprintf(d.w, "%s %s\n", status, summaryCounts(res))
}
