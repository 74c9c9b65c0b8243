package step

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/rlch/cuke"
)

var (
	ctxType       = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType       = reflect.TypeOf((*error)(nil)).Elem()
	docStringType = reflect.TypeOf((*cuke.DocString)(nil))
	tableType     = reflect.TypeOf((*cuke.Table)(nil))
)

// handler wraps a registered step function with its validated shape.
//
// Supported signatures: an optional leading context.Context, one parameter
// per capture group (string, int, int64, or float64), and an optional
// trailing *cuke.DocString or *cuke.Table receiving the step's argument.
// Returns may be empty, error, or (context.Context, error).
type handler struct {
	fn       reflect.Value
	hasCtx   bool
	params   []reflect.Type
	trailing reflect.Type
	returns  int
}

func newHandler(fn any) (*handler, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %T", fn)
	}
	t := v.Type()

	h := &handler{fn: v, returns: t.NumOut()}

	switch t.NumOut() {
	case 0:
	case 1:
		if !t.Out(0).Implements(errType) {
			return nil, fmt.Errorf("single return value must be error, got %s", t.Out(0))
		}
	case 2:
		if t.Out(0) != ctxType {
			return nil, fmt.Errorf("first of two return values must be context.Context, got %s", t.Out(0))
		}
		if !t.Out(1).Implements(errType) {
			return nil, fmt.Errorf("second of two return values must be error, got %s", t.Out(1))
		}
	default:
		return nil, fmt.Errorf("too many return values (%d)", t.NumOut())
	}

	in := 0
	if t.NumIn() > 0 && t.In(0) == ctxType {
		h.hasCtx = true
		in = 1
	}
	for ; in < t.NumIn(); in++ {
		pt := t.In(in)
		if pt == docStringType || pt == tableType {
			if in != t.NumIn()-1 {
				return nil, fmt.Errorf("%s parameter must be last", pt)
			}
			h.trailing = pt

			continue
		}
		switch pt.Kind() {
		case reflect.String, reflect.Int, reflect.Int64, reflect.Float64:
			h.params = append(h.params, pt)
		default:
			return nil, fmt.Errorf("unsupported parameter type %s", pt)
		}
	}

	return h, nil
}

// Call invokes the matched handler with the step's captures and argument.
// The returned context replaces ctx for the rest of the scenario when the
// handler returns one; otherwise ctx is passed through unchanged.
//
// Call does not recover panics: the executor owns the recovery boundary so
// that a panicking handler is reported exactly like a failing one.
func (m *Match) Call(ctx context.Context, s *cuke.Step) (context.Context, error) {
	h := m.Definition.handler
	captures := m.Captures[1:]

	args := make([]reflect.Value, 0, len(h.params)+2)
	if h.hasCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	for i, pt := range h.params {
		arg, err := convertCapture(captures[i], pt)
		if err != nil {
			return ctx, fmt.Errorf("argument %d of %s: %w", i, m.Definition, err)
		}
		args = append(args, arg)
	}

	switch h.trailing {
	case docStringType:
		if s.DocString == nil {
			return ctx, fmt.Errorf("%s expects a doc string, step has none", m.Definition)
		}
		args = append(args, reflect.ValueOf(s.DocString))
	case tableType:
		if s.Table == nil {
			return ctx, fmt.Errorf("%s expects a table, step has none", m.Definition)
		}
		args = append(args, reflect.ValueOf(s.Table))
	}

	out := h.fn.Call(args)

	switch h.returns {
	case 0:
		return ctx, nil
	case 1:
		return ctx, asError(out[0])
	default:
		next := ctx
		if c, ok := out[0].Interface().(context.Context); ok && c != nil {
			next = c
		}

		return next, asError(out[1])
	}
}

func convertCapture(raw string, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(raw), nil
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to int", raw)
		}

		return reflect.ValueOf(n), nil
	case reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to int64", raw)
		}

		return reflect.ValueOf(n), nil
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to float64", raw)
		}

		return reflect.ValueOf(f), nil
	}

	return reflect.Value{}, fmt.Errorf("unsupported parameter type %s", t)
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}

	return v.Interface().(error)
}
