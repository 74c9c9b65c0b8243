package lsp

import (
	"context"
	"strings"

	messages "github.com/cucumber/messages/go/v21"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// FoldingRanges handles textDocument/foldingRange requests. Features, rules,
// backgrounds, scenarios, examples blocks, step arguments, and comment runs
// fold. Ranges come from the raw Gherkin document so Scenario Outlines fold
// as written, not per expanded instance.
func (s *Server) FoldingRanges(_ context.Context, params *protocol.FoldingRangeParams) ([]protocol.FoldingRange, error) {
	defer s.traceHandler("FoldingRanges")()
	s.logger.Debug("FoldingRanges", zap.String("uri", string(params.TextDocument.URI)))

	doc, ok := s.getDocument(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	af := doc.analysisWithDoc()
	if af == nil {
		return nil, nil
	}

	// The analysis may be one valid parse behind the buffer; out-of-range
	// lines are dropped by validFoldingRange.
	lineCount := uint32(len(splitLines(doc.Content)))

	var ranges []protocol.FoldingRange
	if af.Doc.Feature != nil {
		ranges = append(ranges, featureFoldingRanges(af.Doc.Feature, lineCount)...)
	}
	ranges = append(ranges, commentFoldingRanges(af.Doc.Comments, lineCount)...)

	return ranges, nil
}

// featureFoldingRanges folds the feature and every block beneath it.
func featureFoldingRanges(f *messages.Feature, lineCount uint32) []protocol.FoldingRange {
	var ranges []protocol.FoldingRange
	if r, ok := validFoldingRange(f.Location.Line-1, featureEndLine(f)-1, lineCount, protocol.RegionFoldingRange); ok {
		ranges = append(ranges, r)
	}

	for _, child := range f.Children {
		switch {
		case child.Background != nil:
			ranges = append(ranges, backgroundFoldingRanges(child.Background, lineCount)...)
		case child.Rule != nil:
			ranges = append(ranges, ruleFoldingRanges(child.Rule, lineCount)...)
		case child.Scenario != nil:
			ranges = append(ranges, scenarioFoldingRanges(child.Scenario, lineCount)...)
		}
	}

	return ranges
}

func ruleFoldingRanges(rule *messages.Rule, lineCount uint32) []protocol.FoldingRange {
	var ranges []protocol.FoldingRange
	if r, ok := validFoldingRange(rule.Location.Line-1, ruleEndLine(rule)-1, lineCount, protocol.RegionFoldingRange); ok {
		ranges = append(ranges, r)
	}

	for _, child := range rule.Children {
		switch {
		case child.Background != nil:
			ranges = append(ranges, backgroundFoldingRanges(child.Background, lineCount)...)
		case child.Scenario != nil:
			ranges = append(ranges, scenarioFoldingRanges(child.Scenario, lineCount)...)
		}
	}

	return ranges
}

func backgroundFoldingRanges(b *messages.Background, lineCount uint32) []protocol.FoldingRange {
	var ranges []protocol.FoldingRange
	if r, ok := validFoldingRange(b.Location.Line-1, backgroundEndLine(b)-1, lineCount, protocol.RegionFoldingRange); ok {
		ranges = append(ranges, r)
	}
	ranges = append(ranges, stepArgumentFoldingRanges(b.Steps, lineCount)...)

	return ranges
}

func scenarioFoldingRanges(sc *messages.Scenario, lineCount uint32) []protocol.FoldingRange {
	var ranges []protocol.FoldingRange
	if r, ok := validFoldingRange(sc.Location.Line-1, scenarioEndLine(sc)-1, lineCount, protocol.RegionFoldingRange); ok {
		ranges = append(ranges, r)
	}
	ranges = append(ranges, stepArgumentFoldingRanges(sc.Steps, lineCount)...)

	for _, ex := range sc.Examples {
		if r, ok := validFoldingRange(ex.Location.Line-1, examplesEndLine(ex)-1, lineCount, protocol.RegionFoldingRange); ok {
			ranges = append(ranges, r)
		}
	}

	return ranges
}

// stepArgumentFoldingRanges folds a step together with its data table or doc
// string, so collapsing hides the argument under the step line.
func stepArgumentFoldingRanges(steps []*messages.Step, lineCount uint32) []protocol.FoldingRange {
	var ranges []protocol.FoldingRange
	for _, st := range steps {
		if st.DataTable == nil && st.DocString == nil {
			continue
		}
		if r, ok := validFoldingRange(st.Location.Line-1, stepEndLine(st)-1, lineCount, protocol.RegionFoldingRange); ok {
			ranges = append(ranges, r)
		}
	}

	return ranges
}

// commentFoldingRanges folds each run of consecutive comment lines.
func commentFoldingRanges(comments []*messages.Comment, lineCount uint32) []protocol.FoldingRange {
	var ranges []protocol.FoldingRange

	var start, prev int64 = -1, -1
	flush := func() {
		if start < 0 {
			return
		}
		if r, ok := validFoldingRange(start-1, prev-1, lineCount, protocol.CommentFoldingRange); ok {
			ranges = append(ranges, r)
		}
		start = -1
	}

	for _, c := range comments {
		line := c.Location.Line
		if start < 0 {
			start, prev = line, line

			continue
		}
		if line != prev+1 {
			flush()
			start = line
		}
		prev = line
	}
	flush()

	return ranges
}

// =============================================================================
// End lines
// =============================================================================

// The Gherkin document model only records where nodes start, so block ends
// are the deepest line any of their content occupies.

func featureEndLine(f *messages.Feature) int64 {
	end := f.Location.Line
	for _, child := range f.Children {
		var e int64
		switch {
		case child.Background != nil:
			e = backgroundEndLine(child.Background)
		case child.Rule != nil:
			e = ruleEndLine(child.Rule)
		case child.Scenario != nil:
			e = scenarioEndLine(child.Scenario)
		}
		if e > end {
			end = e
		}
	}

	return end
}

func ruleEndLine(rule *messages.Rule) int64 {
	end := rule.Location.Line
	for _, child := range rule.Children {
		var e int64
		switch {
		case child.Background != nil:
			e = backgroundEndLine(child.Background)
		case child.Scenario != nil:
			e = scenarioEndLine(child.Scenario)
		}
		if e > end {
			end = e
		}
	}

	return end
}

func backgroundEndLine(b *messages.Background) int64 {
	return stepsEndLine(b.Steps, b.Location.Line)
}

func scenarioEndLine(sc *messages.Scenario) int64 {
	end := stepsEndLine(sc.Steps, sc.Location.Line)
	for _, ex := range sc.Examples {
		if e := examplesEndLine(ex); e > end {
			end = e
		}
	}

	return end
}

func examplesEndLine(ex *messages.Examples) int64 {
	end := ex.Location.Line
	if ex.TableHeader != nil {
		end = ex.TableHeader.Location.Line
	}
	if n := len(ex.TableBody); n > 0 {
		end = ex.TableBody[n-1].Location.Line
	}

	return end
}

func stepsEndLine(steps []*messages.Step, fallback int64) int64 {
	end := fallback
	for _, st := range steps {
		if e := stepEndLine(st); e > end {
			end = e
		}
	}

	return end
}

func stepEndLine(st *messages.Step) int64 {
	end := st.Location.Line
	if st.DocString != nil {
		end = docStringEndLine(st.DocString)
	}
	if t := st.DataTable; t != nil && len(t.Rows) > 0 {
		end = t.Rows[len(t.Rows)-1].Location.Line
	}

	return end
}

// docStringEndLine returns the line of the closing delimiter.
func docStringEndLine(ds *messages.DocString) int64 {
	if ds.Content == "" {
		return ds.Location.Line + 1
	}

	return ds.Location.Line + int64(len(strings.Split(ds.Content, "\n"))) + 1
}

// validFoldingRange creates a folding range only when the line numbers are
// sane. Positions degraded by a stale analysis or a parse error are dropped
// rather than folded wrongly.
func validFoldingRange(startLine, endLine int64, lineCount uint32, kind protocol.FoldingRangeKind) (protocol.FoldingRange, bool) {
	if startLine < 0 || endLine < 0 {
		return protocol.FoldingRange{}, false
	}

	start := uint32(startLine)
	end := uint32(endLine)
	if start > lineCount || end > lineCount {
		return protocol.FoldingRange{}, false
	}

	// A fold must span at least two lines.
	if end <= start {
		return protocol.FoldingRange{}, false
	}

	return protocol.FoldingRange{
		StartLine: start,
		EndLine:   end,
		Kind:      kind,
	}, true
}

// splitLines splits content into lines without the trailing newline creating
// a phantom empty line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
