// Package language renders step-definition stubs for undefined steps.
//
// Each target language implements the Language interface; the check command
// uses the registered implementation to print ready-to-paste definitions for
// steps that no registered pattern matches.
package language

import (
	"github.com/rlch/cuke"
)

// Step is one undefined step to generate a definition stub for.
type Step struct {
	// Type is the registration kind the step resolved to.
	Type cuke.StepType

	// Text is the step text as written, placeholders substituted.
	Text string

	// DocString and Table report whether the step carries an argument, so
	// the stub can accept it.
	DocString bool
	Table     bool
}

// GenerateContext provides information needed for stub generation.
type GenerateContext struct {
	// Steps are the undefined steps, in first-seen order.
	Steps []Step

	// PackageName is the package/module name for generated code.
	// If empty, the language infers it from OutputDir.
	PackageName string

	// OutputDir is the directory the generated file is meant for.
	OutputDir string
}

// Language represents a target language for stub generation.
type Language interface {
	// Name returns the language identifier (e.g., "go").
	Name() string

	// InferPackageName determines the appropriate package/module name for a
	// directory, using the language's own conventions.
	InferPackageName(dir string) (string, error)

	// Generate produces source files from the given context.
	// Returns a map of filename to content.
	Generate(ctx *GenerateContext) (map[string][]byte, error)
}

// Registration for language discovery.
var languages = make(map[string]Language)

// Register registers a language by name.
func Register(lang Language) {
	languages[lang.Name()] = lang
}

// Get returns a language by name, or nil if not registered.
func Get(name string) Language { //nolint:ireturn
	return languages[name]
}

// RegisteredLanguages returns the names of all registered languages.
func RegisteredLanguages() []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}

	return names
}
