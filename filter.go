package cuke

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ScenarioFilter is a predicate deciding whether a scenario is selected for a
// run. A nil filter selects everything.
type ScenarioFilter func(f *Feature, s *Scenario) bool

// CompileFilter compiles a filter expression into a ScenarioFilter.
//
// The expression language is expr-lang over the following environment:
//
//	feature   string        feature name
//	path      string        feature file path
//	scenario  string        scenario name
//	keyword   string        scenario keyword ("Scenario", "Scenario Outline")
//	tags      []string      effective tag names, "@" included
//	hasTag(name) bool       tag membership, "@" optional
//
// Examples:
//
//	hasTag("smoke") && feature contains "auth"
//	scenario startsWith "Login" || "@fast" in tags
func CompileFilter(src string) (ScenarioFilter, error) {
	program, err := expr.Compile(src,
		expr.Env(filterEnv(&Feature{}, &Scenario{})),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("cuke: invalid filter %q: %w", src, err)
	}

	return func(f *Feature, s *Scenario) bool {
		ok, err := runFilter(program, f, s)
		if err != nil {
			// Runtime errors (e.g. a nil comparison) mean the scenario
			// cannot be meaningfully selected; treat as not matching.
			return false
		}

		return ok
	}, nil
}

func runFilter(program *vm.Program, f *Feature, s *Scenario) (bool, error) {
	out, err := expr.Run(program, filterEnv(f, s))
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("cuke: filter returned %T, want bool", out)
	}

	return ok, nil
}

func filterEnv(f *Feature, s *Scenario) map[string]any {
	return map[string]any{
		"feature":  f.Name,
		"path":     f.Path,
		"scenario": s.Name,
		"keyword":  s.Keyword,
		"tags":     TagNames(s.Tags),
		"hasTag":   func(name string) bool { return s.HasTag(name) },
	}
}
