// Package parser turns Gherkin feature files into the cuke tree.
//
// Parsing proper is delegated to the Cucumber reference parser
// (cucumber/gherkin); this package converts its document model, expands
// Scenario Outlines into concrete scenarios, resolves And/But/* keywords to
// their registration kinds, merges inherited tags, and assigns the identity
// ids the runner keys its maps and ordering on.
package parser

import (
	"bytes"
	"os"
	"strings"
	"sync/atomic"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/rlch/cuke"
)

// nodeIDs assigns process-unique identity ids across all parses.
var nodeIDs atomic.Int64

func nextID() int64 { return nodeIDs.Add(1) }

// ParseFile reads and parses one feature file.
func ParseFile(path string) (*cuke.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return Parse(path, data)
}

// Parse parses feature source. path is recorded on the feature and in any
// *ParseError; it is not read.
func Parse(path string, src []byte) (*cuke.Feature, error) {
	doc, err := Document(path, src)
	if err != nil {
		return nil, err
	}
	if doc.Feature == nil {
		return nil, &ParseError{Path: path, Err: ErrNoFeature}
	}

	return Convert(path, doc), nil
}

// Convert builds the cuke tree from an already-parsed document. The document
// must hold a feature.
func Convert(path string, doc *messages.GherkinDocument) *cuke.Feature {
	c := &converter{path: path}

	return c.feature(doc)
}

// Document parses feature source into the raw Gherkin document without
// converting it. The formatter works on this form so Scenario Outlines are
// not expanded. A document may hold comments and no feature.
func Document(path string, src []byte) (*messages.GherkinDocument, error) {
	ids := &messages.Incrementing{}
	doc, err := gherkin.ParseGherkinDocument(bytes.NewReader(src), ids.NewId)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return doc, nil
}

// converter carries per-file conversion state.
type converter struct {
	path string

	// lastType tracks the preceding step's resolved kind so conjunctions
	// ("And", "But", "*") inherit it.
	lastType cuke.StepType
}

func (c *converter) feature(doc *messages.GherkinDocument) *cuke.Feature {
	src := doc.Feature

	f := &cuke.Feature{
		NodeMeta:    meta(src.Location),
		Path:        c.path,
		Language:    src.Language,
		Keyword:     src.Keyword,
		Name:        src.Name,
		Description: trimDescription(src.Description),
		Tags:        convertTags(src.Tags),
	}
	for _, comment := range doc.Comments {
		f.Comments = append(f.Comments, cuke.Comment{
			Pos:  position(comment.Location),
			Text: strings.TrimSpace(comment.Text),
		})
	}

	for _, child := range src.Children {
		switch {
		case child.Background != nil:
			f.Background = c.background(child.Background)
		case child.Rule != nil:
			f.Rules = append(f.Rules, c.rule(child.Rule, f.Tags))
		case child.Scenario != nil:
			f.Scenarios = append(f.Scenarios, c.scenarios(child.Scenario, f.Tags)...)
		}
	}

	return f
}

func (c *converter) rule(src *messages.Rule, inherited []cuke.Tag) *cuke.Rule {
	r := &cuke.Rule{
		NodeMeta:    meta(src.Location),
		Keyword:     src.Keyword,
		Name:        src.Name,
		Description: trimDescription(src.Description),
		Tags:        convertTags(src.Tags),
	}
	effective := mergeTags(inherited, r.Tags)
	for _, child := range src.Children {
		switch {
		case child.Background != nil:
			r.Background = c.background(child.Background)
		case child.Scenario != nil:
			r.Scenarios = append(r.Scenarios, c.scenarios(child.Scenario, effective)...)
		}
	}

	return r
}

func (c *converter) background(src *messages.Background) *cuke.Background {
	b := &cuke.Background{
		NodeMeta:    meta(src.Location),
		Keyword:     src.Keyword,
		Name:        src.Name,
		Description: trimDescription(src.Description),
	}
	c.lastType = cuke.Given
	for _, s := range src.Steps {
		b.Steps = append(b.Steps, c.step(s, nil, nil))
	}

	return b
}

// scenarios converts one source scenario into its executable instances: the
// scenario itself, or one instance per examples row when examples are
// present. Expanded instances take the row's location so they order correctly
// among their siblings, and substitute <param> placeholders in the name, step
// text, doc strings, and table cells.
func (c *converter) scenarios(src *messages.Scenario, inherited []cuke.Tag) []*cuke.Scenario {
	own := mergeTags(inherited, convertTags(src.Tags))

	if len(src.Examples) == 0 {
		s := &cuke.Scenario{
			NodeMeta:    meta(src.Location),
			Keyword:     src.Keyword,
			Name:        src.Name,
			Description: trimDescription(src.Description),
			Tags:        own,
		}
		c.lastType = cuke.Given
		for _, st := range src.Steps {
			s.Steps = append(s.Steps, c.step(st, nil, nil))
		}

		return []*cuke.Scenario{s}
	}

	var out []*cuke.Scenario
	for _, examples := range src.Examples {
		if examples.TableHeader == nil {
			continue
		}
		params := cellValues(examples.TableHeader)
		tags := mergeTags(own, convertTags(examples.Tags))
		for _, row := range examples.TableBody {
			values := cellValues(row)
			s := &cuke.Scenario{
				NodeMeta:    cuke.NodeMeta{ID: nextID(), Pos: position(row.Location)},
				Keyword:     src.Keyword,
				Name:        substitute(src.Name, params, values),
				Description: trimDescription(src.Description),
				Tags:        tags,
			}
			c.lastType = cuke.Given
			for _, st := range src.Steps {
				s.Steps = append(s.Steps, c.step(st, params, values))
			}
			out = append(out, s)
		}
	}

	return out
}

func (c *converter) step(src *messages.Step, params, values []string) *cuke.Step {
	s := &cuke.Step{
		NodeMeta: meta(src.Location),
		Keyword:  strings.TrimSpace(src.Keyword),
		Type:     c.stepType(src.KeywordType),
		Text:     substitute(src.Text, params, values),
	}
	c.lastType = s.Type

	if src.DocString != nil {
		s.DocString = &cuke.DocString{
			Pos:       position(src.DocString.Location),
			MediaType: src.DocString.MediaType,
			Content:   substitute(src.DocString.Content, params, values),
		}
	}
	if src.DataTable != nil {
		t := &cuke.Table{Pos: position(src.DataTable.Location)}
		for _, row := range src.DataTable.Rows {
			cells := cellValues(row)
			for i, cell := range cells {
				cells[i] = substitute(cell, params, values)
			}
			t.Rows = append(t.Rows, cells)
		}
		s.Table = t
	}

	return s
}

// stepType maps the dialect-independent keyword type onto the registration
// kind, letting conjunctions inherit from the preceding step.
func (c *converter) stepType(kt messages.StepKeywordType) cuke.StepType {
	switch kt {
	case messages.StepKeywordType_CONTEXT:
		return cuke.Given
	case messages.StepKeywordType_ACTION:
		return cuke.When
	case messages.StepKeywordType_OUTCOME:
		return cuke.Then
	default:
		return c.lastType
	}
}

// =============================================================================
// Conversion helpers
// =============================================================================

func meta(loc *messages.Location) cuke.NodeMeta {
	return cuke.NodeMeta{ID: nextID(), Pos: position(loc)}
}

func position(loc *messages.Location) cuke.Position {
	if loc == nil {
		return cuke.Position{}
	}

	return cuke.Position{Line: int(loc.Line), Col: int(loc.Column)}
}

func convertTags(src []*messages.Tag) []cuke.Tag {
	if len(src) == 0 {
		return nil
	}
	out := make([]cuke.Tag, len(src))
	for i, t := range src {
		out[i] = cuke.Tag{Name: t.Name, Pos: position(t.Location)}
	}

	return out
}

// mergeTags appends own onto inherited, dropping duplicate names. The first
// occurrence keeps its position.
func mergeTags(inherited, own []cuke.Tag) []cuke.Tag {
	if len(inherited) == 0 && len(own) == 0 {
		return nil
	}
	out := make([]cuke.Tag, 0, len(inherited)+len(own))
	seen := make(map[string]bool, len(inherited)+len(own))
	for _, t := range append(append([]cuke.Tag{}, inherited...), own...) {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		out = append(out, t)
	}

	return out
}

func cellValues(row *messages.TableRow) []string {
	cells := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		cells[i] = c.Value
	}

	return cells
}

// substitute replaces <param> placeholders with the matching row values.
// Unknown placeholders are left untouched.
func substitute(text string, params, values []string) string {
	if len(params) == 0 || !strings.Contains(text, "<") {
		return text
	}
	for i, p := range params {
		if i >= len(values) {
			break
		}
		text = strings.ReplaceAll(text, "<"+p+">", values[i])
	}

	return text
}

func trimDescription(d string) string {
	return strings.TrimSpace(d)
}
