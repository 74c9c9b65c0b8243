// Package tags compiles Cucumber tag expressions into predicates.
//
// A tag expression selects scenarios by their tags with "and", "or", "not",
// and parentheses:
//
//	@smoke
//	@smoke and not @wip
//	(@fast or @smoke) and not (@wip or @broken)
//
// Operators bind tightest-first: not, and, or.
package tags

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Expression is a compiled tag expression.
type Expression struct {
	root   *Expr
	source string
}

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `\b(?:and|or|not)\b`},
	{Name: "Tag", Pattern: `@[^\s()]+`},
	{Name: "Paren", Pattern: `[()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var exprParser = participle.MustBuild[Expr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
)

// Compile parses src into an Expression.
func Compile(src string) (*Expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("tags: empty expression")
	}
	root, err := exprParser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("tags: invalid expression %q: %w", src, err)
	}

	return &Expression{root: root, source: src}, nil
}

// MustCompile is Compile for expressions known valid at program start; it
// panics on error.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}

	return e
}

// Match evaluates the expression against a tag set. Names may be given with
// or without the "@" prefix. A nil Expression matches everything.
func (e *Expression) Match(names []string) bool {
	if e == nil {
		return true
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if !strings.HasPrefix(n, "@") {
			n = "@" + n
		}
		set[n] = true
	}

	return e.root.eval(set)
}

// String returns the source the expression was compiled from.
func (e *Expression) String() string { return e.source }

// =============================================================================
// Grammar
// =============================================================================

// Expr is the root grammar node: or-chains of and-chains.
type Expr struct {
	First *AndExpr   `parser:"@@"`
	Rest  []*AndExpr `parser:"('or' @@)*"`
}

func (e *Expr) eval(set map[string]bool) bool {
	if e.First.eval(set) {
		return true
	}
	for _, a := range e.Rest {
		if a.eval(set) {
			return true
		}
	}

	return false
}

// AndExpr is a chain of negatable terms joined by "and".
type AndExpr struct {
	First *NotExpr   `parser:"@@"`
	Rest  []*NotExpr `parser:"('and' @@)*"`
}

func (a *AndExpr) eval(set map[string]bool) bool {
	if !a.First.eval(set) {
		return false
	}
	for _, n := range a.Rest {
		if !n.eval(set) {
			return false
		}
	}

	return true
}

// NotExpr is an optionally negated term.
type NotExpr struct {
	Not  *NotExpr `parser:"  'not' @@"`
	Term *Term    `parser:"| @@"`
}

func (n *NotExpr) eval(set map[string]bool) bool {
	if n.Not != nil {
		return !n.Not.eval(set)
	}

	return n.Term.eval(set)
}

// Term is a tag literal or a parenthesized subexpression.
type Term struct {
	Tag  *string `parser:"  @Tag"`
	Expr *Expr   `parser:"| '(' @@ ')'"`
}

func (t *Term) eval(set map[string]bool) bool {
	if t.Tag != nil {
		return set[*t.Tag]
	}

	return t.Expr.eval(set)
}
