package golang

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/language"
)

func TestGoLanguageName(t *testing.T) {
	t.Parallel()

	lang := New()
	assert.Equal(t, "go", lang.Name())
}

func TestLanguageRegistry(t *testing.T) {
	t.Parallel()

	// Go language should be auto-registered via init()
	lang := language.Get("go")
	require.NotNil(t, lang)
	assert.Equal(t, "go", lang.Name())

	assert.Nil(t, language.Get("nonexistent"))

	names := language.RegisteredLanguages()
	assert.Contains(t, names, "go")
}

func TestGenerateStubs(t *testing.T) {
	t.Parallel()

	lang := New()
	files, err := lang.Generate(&language.GenerateContext{
		PackageName: "billing",
		Steps: []language.Step{
			{Type: cuke.Given, Text: "I have 12 cucumbers"},
			{Type: cuke.When, Text: `I am called "ana"`},
			{Type: cuke.Then, Text: "these totals", Table: true},
			{Type: cuke.Then, Text: "this payload", DocString: true},
		},
	})
	require.NoError(t, err)
	require.Contains(t, files, "steps_test.go")

	got := string(files["steps_test.go"])

	assert.Contains(t, got, "package billing\n")
	assert.Contains(t, got, `"github.com/rlch/cuke"`)
	assert.Contains(t, got, `"github.com/rlch/cuke/step"`)

	assert.Contains(t, got, "func RegisterSteps(r *step.Registry) {")
	assert.Contains(t, got, "r.Given(`I have {int} cucumbers`, iHaveCucumbers)")
	assert.Contains(t, got, "r.When(`I am called {string}`, iAmCalled)")
	assert.Contains(t, got, "r.Then(`^these totals$`, theseTotals)")
	assert.Contains(t, got, "r.Then(`^this payload$`, thisPayload)")

	assert.Contains(t, got, "func iHaveCucumbers(arg1 int) error {")
	assert.Contains(t, got, "func iAmCalled(arg1 string) error {")
	assert.Contains(t, got, "func theseTotals(table *cuke.Table) error {")
	assert.Contains(t, got, "func thisPayload(doc *cuke.DocString) error {")
	assert.Contains(t, got, "return step.ErrPending")
}

func TestGenerateOmitsCukeImportWithoutArguments(t *testing.T) {
	t.Parallel()

	lang := New()
	files, err := lang.Generate(&language.GenerateContext{
		PackageName: "plain",
		Steps:       []language.Step{{Type: cuke.Given, Text: "a step"}},
	})
	require.NoError(t, err)

	got := string(files["steps_test.go"])
	assert.NotContains(t, got, `"github.com/rlch/cuke"`+"\n")
	assert.Contains(t, got, `"github.com/rlch/cuke/step"`)
}

func TestGenerateCollapsesValueVariants(t *testing.T) {
	t.Parallel()

	lang := New()
	files, err := lang.Generate(&language.GenerateContext{
		PackageName: "dedup",
		Steps: []language.Step{
			{Type: cuke.Given, Text: "I wait 1 seconds"},
			{Type: cuke.Given, Text: "I wait 30 seconds"},
		},
	})
	require.NoError(t, err)

	got := string(files["steps_test.go"])
	assert.Equal(t, 1, strings.Count(got, "r.Given(`I wait {int} seconds`"))
	assert.Equal(t, 1, strings.Count(got, "func iWaitSeconds("))
}

func TestGenerateRenamesCollidingStubs(t *testing.T) {
	t.Parallel()

	lang := New()
	files, err := lang.Generate(&language.GenerateContext{
		PackageName: "clash",
		Steps: []language.Step{
			{Type: cuke.Given, Text: "I wait"},
			{Type: cuke.Given, Text: "I wait!"},
		},
	})
	require.NoError(t, err)

	got := string(files["steps_test.go"])
	assert.Contains(t, got, "func iWait() error {")
	assert.Contains(t, got, "func iWait2() error {")
}

func TestGenerateEmpty(t *testing.T) {
	t.Parallel()

	lang := New()
	files, err := lang.Generate(&language.GenerateContext{PackageName: "p"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestInferPackageName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "steps.go"), []byte("package billing\n"), 0o600)
	require.NoError(t, err)

	name, err := InferPackageName(dir)
	require.NoError(t, err)
	assert.Equal(t, "billing", name)
}

func TestInferPackageNameFallsBackToDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "my-steps")
	require.NoError(t, os.Mkdir(dir, 0o750))

	name, err := InferPackageName(dir)
	require.NoError(t, err)
	assert.Equal(t, "mysteps", name)
}

func TestSanitizePackageName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"my-package", "mypackage"},
		{"My.Package", "mypackage"},
		{"123start", "pkg123start"},
		{"type", "typepkg"},
		{"", "pkg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizePackageName(tt.in), "input %q", tt.in)
	}
}
