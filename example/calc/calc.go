// Package calc is the example suite: a pocket calculator exercised by the
// feature files under features/.
package calc

import "errors"

// ErrDivisionByZero is returned by Divide when the divisor is zero.
var ErrDivisionByZero = errors.New("division by zero")

// Calculator holds a display value, one memory slot and the last error.
type Calculator struct {
	Display float64
	Memory  float64

	err error
}

func New() *Calculator {
	return &Calculator{}
}

func (c *Calculator) Add(a, b float64)      { c.Display = a + b }
func (c *Calculator) Subtract(a, b float64) { c.Display = a - b }
func (c *Calculator) Multiply(a, b float64) { c.Display = a * b }

// Divide sets the display to a/b, or records ErrDivisionByZero.
func (c *Calculator) Divide(a, b float64) {
	if b == 0 {
		c.err = ErrDivisionByZero

		return
	}
	c.Display = a / b
}

// Sum accumulates vs onto the display.
func (c *Calculator) Sum(vs []float64) {
	for _, v := range vs {
		c.Display += v
	}
}

// Store copies the display into memory.
func (c *Calculator) Store() { c.Memory = c.Display }

// Recall copies memory back onto the display.
func (c *Calculator) Recall() { c.Display = c.Memory }

// Clear resets the display and the error state. Memory is kept.
func (c *Calculator) Clear() {
	c.Display = 0
	c.err = nil
}

// Err returns the last recorded calculation error.
func (c *Calculator) Err() error { return c.err }
