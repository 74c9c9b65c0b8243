// Package golang renders Go step-definition stubs.
//
// For each undefined step the generator emits one function with typed
// parameters inferred from the step text, plus a RegisterSteps function
// wiring every stub into a step.Registry. The output is a complete file the
// user drops next to their tests and fills in; stub bodies return
// step.ErrPending until then.
package golang

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/rlch/cuke/language"
)

// GoLanguage implements language.Language for Go stub generation.
type GoLanguage struct{}

// New creates a new Go stub generator.
func New() *GoLanguage {
	return &GoLanguage{}
}

// Name returns "go".
func (g *GoLanguage) Name() string {
	return "go"
}

// InferPackageName determines the Go package name for a directory.
func (g *GoLanguage) InferPackageName(dir string) (string, error) {
	return InferPackageName(dir)
}

// Generate produces steps_test.go with one stub per undefined step.
func (g *GoLanguage) Generate(ctx *language.GenerateContext) (map[string][]byte, error) {
	packageName := ctx.PackageName
	if packageName == "" {
		var err error
		packageName, err = g.InferPackageName(ctx.OutputDir)
		if err != nil {
			packageName = SanitizePackageName(filepath.Base(ctx.OutputDir))
		}
	}

	gen := &generator{pkg: packageName, steps: ctx.Steps}

	return gen.generate()
}

// generator holds state during stub generation.
type generator struct {
	pkg   string
	steps []language.Step
}

// stub is one rendered step definition.
type stub struct {
	method  string
	pattern string
	name    string
	params  []string
}

func (g *generator) generate() (map[string][]byte, error) {
	if len(g.steps) == 0 {
		return map[string][]byte{}, nil
	}

	stubs := make([]stub, 0, len(g.steps))
	taken := make(map[string]bool)
	seen := make(map[string]bool)
	usesCuke := false

	for _, s := range g.steps {
		p := language.Infer(s.Text)

		// Steps differing only in captured values infer the same pattern
		// and need a single definition.
		patternKey := s.Type.String() + "\x00" + p.Source
		if seen[patternKey] {
			continue
		}
		seen[patternKey] = true

		base := identifier(p.Source)
		name := base
		for i := 2; taken[name]; i++ {
			name = fmt.Sprintf("%s%d", base, i)
		}
		taken[name] = true

		st := stub{
			method:  s.Type.String(),
			pattern: p.Source,
			name:    name,
		}
		for _, param := range p.Params {
			st.params = append(st.params, param.Name+" "+goType(param.Kind))
		}
		if s.DocString {
			st.params = append(st.params, "doc *cuke.DocString")
			usesCuke = true
		}
		if s.Table {
			st.params = append(st.params, "table *cuke.Table")
			usesCuke = true
		}
		stubs = append(stubs, st)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "package %s\n\n", g.pkg)
	b.WriteString("import (\n")
	if usesCuke {
		b.WriteString("\t\"github.com/rlch/cuke\"\n")
	}
	b.WriteString("\t\"github.com/rlch/cuke/step\"\n")
	b.WriteString(")\n\n")

	b.WriteString("// RegisterSteps registers a definition for every generated stub.\n")
	b.WriteString("func RegisterSteps(r *step.Registry) {\n")
	for _, s := range stubs {
		fmt.Fprintf(&b, "\tr.%s(%s, %s)\n", s.method, quotePattern(s.pattern), s.name)
	}
	b.WriteString("}\n")

	for _, s := range stubs {
		fmt.Fprintf(&b, "\nfunc %s(%s) error {\n\treturn step.ErrPending\n}\n",
			s.name, strings.Join(s.params, ", "))
	}

	return map[string][]byte{"steps_test.go": b.Bytes()}, nil
}

// goType maps an inferred parameter kind to its Go type.
func goType(kind language.ParamKind) string {
	switch kind {
	case language.ParamInt:
		return "int"
	case language.ParamFloat:
		return "float64"
	case language.ParamString:
		return "string"
	}

	return "string"
}

// quotePattern renders a pattern as a Go string literal, raw when possible.
func quotePattern(pattern string) string {
	if !strings.ContainsAny(pattern, "`\n") {
		return "`" + pattern + "`"
	}

	return strconv.Quote(pattern)
}

var placeholderMarker = strings.NewReplacer(
	"{int}", " ", "{float}", " ", "{word}", " ", "{string}", " ", "{}", " ",
)

// identifier derives a camelCase function name from a pattern, dropping
// placeholders and punctuation: "I have {int} cucumbers" becomes
// "iHaveCucumbers".
func identifier(pattern string) string {
	pattern = placeholderMarker.Replace(pattern)

	words := strings.FieldsFunc(pattern, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(strings.ToLower(w))

			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}

	name := b.String()
	switch {
	case name == "":
		return "undefinedStep"
	case unicode.IsDigit(rune(name[0])):
		return "step" + name
	case IsKeyword(name):
		return name + "Step"
	}

	return name
}

//nolint:gochecknoinits // Registration pattern requires init.
func init() {
	language.Register(New())
}
