package parser

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/rlch/cuke"
)

// ErrNoFeature is returned for files that parse but declare no feature.
var ErrNoFeature = errors.New("parser: no feature found")

// ParseError wraps a failure to parse one feature file. Parse errors are
// per-file: the runner forwards them to the writer and carries on with the
// remaining features.
type ParseError struct {
	Path string
	Err  error
}

// Error implements error.
func (e *ParseError) Error() string { return e.Path + ": " + e.Err.Error() }

// Unwrap returns the underlying parser failure.
func (e *ParseError) Unwrap() error { return e.Err }

var errPosition = regexp.MustCompile(`\((\d+):(\d+)\)`)

// Positions extracts the "(line:col)" markers the Gherkin parser embeds in
// its error messages, for diagnostics that need locations. The result may be
// empty (e.g. for I/O failures).
func (e *ParseError) Positions() []cuke.Position {
	var out []cuke.Position
	for _, m := range errPosition.FindAllStringSubmatch(e.Err.Error(), -1) {
		line, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		out = append(out, cuke.Position{Line: line, Col: col})
	}

	return out
}
