// Package cuke is a behavior-driven test engine for Gherkin feature files.
//
// Feature files are parsed into the tree modelled here (Feature → Rule →
// Scenario → Step), matched against a registry of step functions, and
// executed by the runner package, which emits an ordered stream of lifecycle
// events for the writer package to render.
package cuke

import (
	"fmt"
	"strings"
)

// =============================================================================
// Common embedded types for tree nodes
// =============================================================================

// Position is a 1-based location in a feature file.
type Position struct {
	Line int
	Col  int
}

// String renders the position as "line:col".
func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Before reports whether p precedes other in document order.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}

	return p.Col < other.Col
}

// NodeMeta carries the identity and source location common to all tree nodes.
//
// ID is assigned by the parser, depth-first, unique within a run. It is the
// comparison key for every map and ordering decision in the runner: two nodes
// are the same node iff their IDs are equal, regardless of content. Trees are
// immutable after parsing, so nodes can be shared freely across goroutines.
type NodeMeta struct {
	ID  int64
	Pos Position
}

// Node is the interface implemented by all tree nodes.
type Node interface {
	// NodeID returns the parser-assigned identity of the node.
	NodeID() int64
	// Position returns the node's location in its source file.
	Position() Position
}

// NodeID implements Node.
func (n *NodeMeta) NodeID() int64 { return n.ID }

// Position implements Node.
func (n *NodeMeta) Position() Position { return n.Pos }

// =============================================================================
// Tree nodes
// =============================================================================

// Feature is the root of one parsed feature file.
//
// Scenarios holds the scenarios declared directly under the feature; Rules
// holds rule blocks with their own scenarios. Source order interleaves the
// two, so consumers that need document order (the runner's normalizer, the
// formatter) merge both slices by position.
type Feature struct {
	NodeMeta

	// Path is the file the feature was parsed from, as given to the parser.
	Path string
	// Language is the dialect tag from the "# language:" header ("en" default).
	Language string

	Keyword     string
	Name        string
	Description string
	Tags        []Tag

	Background *Background
	Rules      []*Rule
	Scenarios  []*Scenario

	// Comments holds every comment line in the file, in document order.
	// They take no part in execution; the formatter re-emits them.
	Comments []Comment
}

// String returns "Feature: Name" using the source keyword.
func (f *Feature) String() string { return f.Keyword + ": " + f.Name }

// Comment is one "# ..." line from a feature file.
type Comment struct {
	Pos  Position
	Text string
}

// HasTag reports whether the feature declares the named tag.
func (f *Feature) HasTag(name string) bool { return hasTag(f.Tags, name) }

// CountScenarios returns the number of scenarios in the feature, including
// those nested under rules.
func (f *Feature) CountScenarios() int {
	n := len(f.Scenarios)
	for _, r := range f.Rules {
		n += len(r.Scenarios)
	}

	return n
}

// CountSteps returns the number of steps across all scenarios, including
// those nested under rules. Background steps are not counted.
func (f *Feature) CountSteps() int {
	n := 0
	for _, s := range f.Scenarios {
		n += len(s.Steps)
	}
	for _, r := range f.Rules {
		for _, s := range r.Scenarios {
			n += len(s.Steps)
		}
	}

	return n
}

// Rule groups related scenarios under a feature.
type Rule struct {
	NodeMeta

	Keyword     string
	Name        string
	Description string
	Tags        []Tag

	Background *Background
	Scenarios  []*Scenario
}

// String returns "Rule: Name" using the source keyword.
func (r *Rule) String() string { return r.Keyword + ": " + r.Name }

// Background is a shared preamble of steps run before every scenario in its
// feature or rule.
type Background struct {
	NodeMeta

	Keyword     string
	Name        string
	Description string

	Steps []*Step
}

// Scenario is a single executable example.
//
// Scenario Outlines are expanded by the parser: each Examples row yields one
// Scenario with placeholders substituted and Pos set to the row's location,
// so expanded instances order correctly among their siblings. Tags holds the
// effective tag set — own tags merged with those inherited from the feature,
// enclosing rule, and examples group.
type Scenario struct {
	NodeMeta

	Keyword     string
	Name        string
	Description string
	Tags        []Tag

	Steps []*Step
}

// String returns "Scenario: Name" using the source keyword.
func (s *Scenario) String() string { return s.Keyword + ": " + s.Name }

// HasTag reports whether the scenario's effective tag set contains name.
func (s *Scenario) HasTag(name string) bool { return hasTag(s.Tags, name) }

// Step is one Given/When/Then line, optionally carrying a doc string or data
// table argument.
type Step struct {
	NodeMeta

	// Keyword is the verbatim source keyword ("Given", "And", "*", …).
	Keyword string
	// Type is the resolved registration kind: conjunctions ("And", "But",
	// "*") inherit the preceding step's type.
	Type StepType
	Text string

	DocString *DocString
	Table     *Table
}

// String returns the step as written, e.g. "Given a hungry cat".
func (s *Step) String() string { return s.Keyword + " " + s.Text }

// =============================================================================
// Step arguments
// =============================================================================

// DocString is a fenced multi-line string argument attached to a step.
type DocString struct {
	Pos       Position
	MediaType string
	Content   string
}

// Table is a data-table argument attached to a step.
type Table struct {
	Pos  Position
	Rows [][]string
}

// Width returns the number of columns in the table's first row, or 0 for an
// empty table.
func (t *Table) Width() int {
	if len(t.Rows) == 0 {
		return 0
	}

	return len(t.Rows[0])
}

// Maps interprets the first row as a header and returns one map per remaining
// row, keyed by header cell.
func (t *Table) Maps() []map[string]string {
	if len(t.Rows) < 2 {
		return nil
	}
	header := t.Rows[0]
	out := make([]map[string]string, 0, len(t.Rows)-1)
	for _, row := range t.Rows[1:] {
		m := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				m[h] = row[i]
			}
		}
		out = append(out, m)
	}

	return out
}

// =============================================================================
// Step types and tags
// =============================================================================

// StepType is the registration kind a step resolves against.
type StepType int

const (
	// Given establishes context.
	Given StepType = iota
	// When performs an action.
	When
	// Then asserts an outcome.
	Then
)

// String returns the canonical English keyword for the type.
func (t StepType) String() string {
	switch t {
	case Given:
		return "Given"
	case When:
		return "When"
	case Then:
		return "Then"
	}

	return fmt.Sprintf("StepType(%d)", int(t))
}

// Tag is a single "@name" annotation.
type Tag struct {
	Name string
	Pos  Position
}

// TagNames extracts the names from a tag list.
func TagNames(tags []Tag) []string {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}

	return names
}

func hasTag(tags []Tag, name string) bool {
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	for _, t := range tags {
		if t.Name == name {
			return true
		}
	}

	return false
}
