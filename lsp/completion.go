package lsp

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/rlch/cuke"
)

// Completion handles textDocument/completion requests. What gets offered is
// decided from the text alone, so completion keeps working while the buffer
// does not parse.
func (s *Server) Completion(_ context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	defer s.traceHandler("Completion")()
	s.logger.Debug("Completion",
		zap.String("uri", string(params.TextDocument.URI)),
		zap.Uint32("line", params.Position.Line),
		zap.Uint32("character", params.Position.Character))

	doc, ok := s.getDocument(params.TextDocument.URI)
	if !ok {
		return nil, nil //nolint:nilnil
	}

	cc := buildCompletionContext(doc.Content, params.Position)
	s.logger.Debug("Completion context",
		zap.String("kind", string(cc.Kind)),
		zap.String("prefix", cc.Prefix))

	var items []protocol.CompletionItem
	switch cc.Kind {
	case CompletionKindNone:
	case CompletionKindKeyword:
		items = completeKeywords(cc)
	case CompletionKindStep:
		items = s.completeSteps(cc)
	}

	if cc.Prefix != "" {
		items = filterByPrefix(items, cc.Prefix)
	}

	return &protocol.CompletionList{
		IsIncomplete: false,
		Items:        items,
	}, nil
}

// CompletionKind indicates what kind of completion a position expects.
type CompletionKind string

const (
	CompletionKindNone    CompletionKind = "none"
	CompletionKindKeyword CompletionKind = "keyword"
	CompletionKindStep    CompletionKind = "step"
)

// CompletionContext holds where completion was triggered.
type CompletionContext struct {
	Kind   CompletionKind
	Prefix string // text being typed, used for filtering

	// StepType is the registration kind the typed keyword resolves to.
	// Conjunctions inherit it from the preceding explicit step. Valid only
	// when HasStepType is set; an And with no predecessor offers every kind.
	StepType    cuke.StepType
	HasStepType bool

	structure docContext
}

// docContext is the structural region the cursor sits in, derived by
// scanning the lines above it.
type docContext int

const (
	ctxTop      docContext = iota // before any Feature line
	ctxFeature                    // inside a feature, before its first scenario
	ctxRule                       // inside a rule, before its first scenario
	ctxBody                       // inside a scenario or background body
	ctxOutline                    // inside a Scenario Outline body
	ctxExamples                   // after an Examples header
)

// buildCompletionContext classifies the cursor position. The scan is purely
// textual: the line prefix picks between keyword and step completion, and the
// lines above determine which keywords are legal.
func buildCompletionContext(content string, pos protocol.Position) *CompletionContext {
	cc := &CompletionContext{Kind: CompletionKindNone}

	lines := strings.Split(content, "\n")
	if int(pos.Line) >= len(lines) {
		return cc
	}
	lineText := lines[pos.Line]
	col := min(int(pos.Character), len(lineText))
	before := strings.TrimLeft(lineText[:col], " \t")

	cc.structure = scanStructure(lines[:pos.Line])

	if kw, rest, ok := splitStepPrefix(before); ok {
		cc.Kind = CompletionKindStep
		cc.Prefix = rest
		cc.StepType, cc.HasStepType = resolveStepType(kw, lines[:pos.Line])

		return cc
	}

	if before == "" || keywordPrefixMatch(before, cc.structure) {
		cc.Kind = CompletionKindKeyword
		cc.Prefix = before
	}

	return cc
}

// stepKeywords are the keywords that introduce a step, conjunctions included.
var stepKeywords = []string{"Given", "When", "Then", "And", "But", "*"}

// splitStepPrefix reports whether text starts with a step keyword followed by
// a space, returning the keyword and the step text typed so far.
func splitStepPrefix(text string) (keyword, rest string, ok bool) {
	for _, kw := range stepKeywords {
		if strings.HasPrefix(text, kw+" ") {
			return kw, strings.TrimLeft(text[len(kw)+1:], " "), true
		}
	}

	return "", "", false
}

// resolveStepType maps a step keyword to its registration kind. Conjunctions
// walk the preceding lines for the nearest explicit keyword, stopping at the
// enclosing block header.
func resolveStepType(keyword string, above []string) (cuke.StepType, bool) {
	switch keyword {
	case "Given":
		return cuke.Given, true
	case "When":
		return cuke.When, true
	case "Then":
		return cuke.Then, true
	}

	for i := len(above) - 1; i >= 0; i-- {
		t := strings.TrimSpace(above[i])
		switch {
		case strings.HasPrefix(t, "Given "):
			return cuke.Given, true
		case strings.HasPrefix(t, "When "):
			return cuke.When, true
		case strings.HasPrefix(t, "Then "):
			return cuke.Then, true
		case blockKeyword(t) != "":
			return 0, false
		}
	}

	return 0, false
}

// blockKeyword returns the structural keyword a line opens, or "".
func blockKeyword(line string) string {
	for _, kw := range []string{
		"Feature:", "Rule:", "Background:",
		"Scenario Outline:", "Scenario Template:", "Scenario:", "Example:",
		"Examples:", "Scenarios:",
	} {
		if strings.HasPrefix(line, kw) {
			return kw
		}
	}

	return ""
}

// scanStructure derives the structural region from the lines above the
// cursor. Tag and comment lines do not change the region.
func scanStructure(lines []string) docContext {
	ctx := ctxTop
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") || strings.HasPrefix(t, "@") {
			continue
		}
		switch blockKeyword(t) {
		case "Feature:":
			ctx = ctxFeature
		case "Rule:":
			ctx = ctxRule
		case "Background:", "Scenario:", "Example:":
			ctx = ctxBody
		case "Scenario Outline:", "Scenario Template:":
			ctx = ctxOutline
		case "Examples:", "Scenarios:":
			ctx = ctxExamples
		}
	}

	return ctx
}

// keywordPrefixMatch reports whether text is a prefix of a keyword that is
// legal in the region. This keeps multi-word keywords ("Scenario Outline:")
// completing after their first space.
func keywordPrefixMatch(text string, ctx docContext) bool {
	for _, kw := range keywordsFor(ctx) {
		if strings.HasPrefix(strings.ToLower(kw.label), strings.ToLower(text)) {
			return true
		}
	}

	return false
}

// keywordItem is a completable keyword with an optional snippet body.
type keywordItem struct {
	label   string
	snippet string
}

// keywordsFor returns the keywords legal in a structural region. Scenario
// starters stay available inside a body since a new scenario may always
// follow.
func keywordsFor(ctx docContext) []keywordItem {
	feature := keywordItem{"Feature:", "Feature: ${1:name}"}
	background := keywordItem{label: "Background:"}
	rule := keywordItem{"Rule:", "Rule: ${1:name}"}
	scenario := keywordItem{"Scenario:", "Scenario: ${1:name}"}
	outline := keywordItem{"Scenario Outline:", "Scenario Outline: ${1:name}"}
	example := keywordItem{"Example:", "Example: ${1:name}"}
	examples := keywordItem{"Examples:", "Examples:\n  | ${1:header} |\n  | ${2:value} |"}

	steps := make([]keywordItem, 0, len(stepKeywords))
	for _, kw := range stepKeywords {
		steps = append(steps, keywordItem{label: kw + " "})
	}

	switch ctx {
	case ctxTop:
		return []keywordItem{feature}
	case ctxFeature:
		return []keywordItem{background, scenario, outline, example, rule}
	case ctxRule:
		return []keywordItem{background, scenario, outline, example, rule}
	case ctxBody:
		return append(steps, scenario, outline, example, rule)
	case ctxOutline:
		return append(steps, examples, scenario, outline, example, rule)
	case ctxExamples:
		return []keywordItem{examples, scenario, outline, example, rule}
	}

	return nil
}

// completeKeywords returns keyword completions for the cursor's region.
func completeKeywords(cc *CompletionContext) []protocol.CompletionItem {
	keywords := keywordsFor(cc.structure)

	items := make([]protocol.CompletionItem, 0, len(keywords))
	for _, kw := range keywords {
		item := protocol.CompletionItem{
			Label: strings.TrimSpace(kw.label),
			Kind:  protocol.CompletionItemKindKeyword,
		}
		if kw.snippet != "" {
			item.InsertText = kw.snippet
			item.InsertTextFormat = protocol.InsertTextFormatSnippet
		} else {
			item.InsertText = kw.label
		}
		items = append(items, item)
	}

	return items
}

// completeSteps returns registered step definitions matching the typed
// keyword's kind. Without a registry there is nothing to offer.
func (s *Server) completeSteps(cc *CompletionContext) []protocol.CompletionItem {
	if s.registry == nil {
		return nil
	}

	var items []protocol.CompletionItem
	for _, d := range s.registry.Definitions() {
		if cc.HasStepType && d.Type != cc.StepType {
			continue
		}
		label := displayPattern(d.Source)
		item := protocol.CompletionItem{
			Label:  label,
			Kind:   protocol.CompletionItemKindFunction,
			Detail: d.Location,
		}
		if snippet, ok := patternSnippet(label); ok {
			item.InsertText = snippet
			item.InsertTextFormat = protocol.InsertTextFormatSnippet
		} else {
			item.InsertText = label
		}
		items = append(items, item)
	}

	// Definitions iterate in registration-map order; sort for stable lists.
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	return items
}

// displayPattern strips regex anchors so definitions registered as regular
// expressions read like step text.
func displayPattern(source string) string {
	return strings.TrimSuffix(strings.TrimPrefix(source, "^"), "$")
}

// patternSnippet rewrites Cucumber expression placeholders as snippet tab
// stops, so accepting a completion leaves the cursor on the first value.
func patternSnippet(pattern string) (string, bool) {
	replacements := []struct{ placeholder, hint string }{
		{"{int}", "int"},
		{"{float}", "float"},
		{"{word}", "word"},
		{"{string}", "string"},
		{"{}", "value"},
	}

	var b strings.Builder
	n := 0
	rest := pattern
	for rest != "" {
		idx := -1
		var hit struct{ placeholder, hint string }
		for _, r := range replacements {
			if i := strings.Index(rest, r.placeholder); i >= 0 && (idx < 0 || i < idx) {
				idx, hit = i, r
			}
		}
		if idx < 0 {
			b.WriteString(rest)

			break
		}
		n++
		b.WriteString(rest[:idx])
		stop := "${" + strconv.Itoa(n) + ":" + hit.hint + "}"
		if hit.placeholder == "{string}" {
			stop = `"` + stop + `"`
		}
		b.WriteString(stop)
		rest = rest[idx+len(hit.placeholder):]
	}

	return b.String(), n > 0
}

// filterByPrefix filters completion items by a case-insensitive label prefix.
func filterByPrefix(items []protocol.CompletionItem, prefix string) []protocol.CompletionItem {
	prefix = strings.ToLower(prefix)
	filtered := make([]protocol.CompletionItem, 0, len(items))
	for _, item := range items {
		if strings.HasPrefix(strings.ToLower(item.Label), prefix) {
			filtered = append(filtered, item)
		}
	}

	return filtered
}
