package calc

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/runner"
	"github.com/rlch/cuke/step"
)

type calcKey struct{}

// Before seeds each scenario attempt with a fresh calculator. Wire it with
// runner.WithBeforeHook so attempts never share state.
func Before(ctx context.Context, _ *cuke.Scenario) (context.Context, error) {
	return context.WithValue(ctx, calcKey{}, New()), nil
}

func from(ctx context.Context) *Calculator {
	c, ok := ctx.Value(calcKey{}).(*Calculator)
	if !ok {
		panic("calc: scenario context is missing the calculator; wire calc.Before")
	}

	return c
}

// RegisterSteps binds the calculator vocabulary into reg.
func RegisterSteps(reg *step.Registry) {
	reg.Given("a calculator showing {float}", func(ctx context.Context, v float64) {
		from(ctx).Display = v
	})

	reg.When("I add {float} and {float}", func(ctx context.Context, a, b float64) {
		from(ctx).Add(a, b)
	})
	reg.When("I subtract {float} from {float}", func(ctx context.Context, b, a float64) {
		from(ctx).Subtract(a, b)
	})
	reg.When("I multiply {float} and {float}", func(ctx context.Context, a, b float64) {
		from(ctx).Multiply(a, b)
	})
	reg.When("I divide {float} by {float}", func(ctx context.Context, a, b float64) {
		from(ctx).Divide(a, b)
	})
	reg.When("I sum the following numbers:", func(ctx context.Context, t *cuke.Table) error {
		vs := make([]float64, 0, len(t.Rows))
		for _, row := range t.Rows {
			v, err := strconv.ParseFloat(row[0], 64)
			if err != nil {
				return fmt.Errorf("bad number %q: %w", row[0], err)
			}
			vs = append(vs, v)
		}
		from(ctx).Sum(vs)

		return nil
	})

	reg.When("I store the result", func(ctx context.Context) {
		from(ctx).Store()
	})
	reg.When("I recall memory", func(ctx context.Context) {
		from(ctx).Recall()
	})
	reg.When("I clear the display", func(ctx context.Context) {
		from(ctx).Clear()
	})

	reg.Then("the result is {float}", func(ctx context.Context, want float64) error {
		c := from(ctx)
		if err := c.Err(); err != nil {
			return err
		}
		if c.Display != want {
			return fmt.Errorf("display shows %v, want %v", c.Display, want)
		}

		return nil
	})
	reg.Then("the calculation fails with {string}", func(ctx context.Context, want string) error {
		err := from(ctx).Err()
		if err == nil {
			return fmt.Errorf("calculation succeeded, want failure %q", want)
		}
		if err.Error() != want {
			return fmt.Errorf("calculation failed with %q, want %q", err, want)
		}
		runner.Logf(ctx, "observed expected failure: %v", err)

		return nil
	})
}
