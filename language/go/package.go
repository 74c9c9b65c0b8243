package golang

import (
	"go/build"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// InferPackageName determines the Go package name for a directory.
//
// Strategies, in order: go/build.ImportDir (respects build tags),
// a package-clause-only parse of any .go file (catches files hidden by
// build tags), and finally the sanitized directory name.
func InferPackageName(dir string) (string, error) {
	if pkg, err := build.ImportDir(dir, 0); err == nil && pkg.Name != "" {
		return pkg.Name, nil
	}

	if name := parseAnyPackageClause(dir); name != "" {
		return name, nil
	}

	return SanitizePackageName(filepath.Base(dir)), nil
}

// SanitizePackageName converts a string to a valid Go package name:
// invalid characters are dropped, letters lowercased, and a "pkg" prefix or
// suffix added when the result would start with a digit, be empty, or be a
// keyword.
func SanitizePackageName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		}
	}

	result := b.String()
	if result == "" || unicode.IsDigit(rune(result[0])) {
		result = "pkg" + result
	}
	if IsKeyword(result) {
		result = result + "pkg"
	}

	return result
}

// IsKeyword returns true if name is a Go keyword.
func IsKeyword(name string) bool {
	return token.Lookup(name).IsKeyword()
}

// parseAnyPackageClause extracts the package name from any non-test .go
// file in dir. Returns empty if none parses.
func parseAnyPackageClause(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	fset := token.NewFileSet()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}

		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.PackageClauseOnly)
		if err != nil {
			continue
		}
		if f.Name != nil && f.Name.Name != "" {
			return f.Name.Name
		}
	}

	return ""
}
