package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/analysis"
	"github.com/rlch/cuke/language"
	"github.com/rlch/cuke/parser"

	// Register stub generators.
	_ "github.com/rlch/cuke/language/go"
)

// Check command errors.
var ErrUnknownLanguage = errors.New("unknown language")

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Lint feature files",
		ArgsUsage: "[files or directories...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "snippets",
				Usage: "print step-definition stubs for the steps found",
			},
			&cli.StringFlag{
				Name:    "lang",
				Aliases: []string{"l"},
				Usage:   "stub language (go)",
				Value:   "go",
			},
			&cli.StringFlag{
				Name:    "package",
				Aliases: []string{"p"},
				Usage:   "package name for generated stubs (default: inferred from the working directory)",
			},
		},
		Action: runCheck,
	}
}

func runCheck(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths, err := parser.Discover(featureRoots(cmd.Args().Slice(), cfg)...)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return ErrNoFeatureFiles
	}

	analyzer := analysis.NewAnalyzer(nil)

	var (
		files     []*analysis.AnalyzedFile
		hasErrors bool
	)

	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // G304: file path from user input is expected
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		result := analyzer.Analyze(path, data)
		files = append(files, result)

		for _, diag := range result.Diagnostics {
			if diag.Severity == analysis.SeverityError {
				hasErrors = true
			}

			loc := fmt.Sprintf("%s: ", path)
			if diag.Span.Start.Line > 0 {
				loc = fmt.Sprintf("%s:%d:%d: ", path, diag.Span.Start.Line, diag.Span.Start.Col)
			}
			fmt.Fprintf(os.Stderr, "%s%s: %s\n", loc, diag.Severity, diag.Message)
		}
	}

	if hasErrors {
		return ErrDiagnosticErrors
	}

	if cmd.Bool("snippets") {
		return printSnippets(files, cmd.String("lang"), cmd.String("package"))
	}

	return nil
}

// printSnippets renders step-definition stubs for every step in the analyzed
// files. The standalone binary has no registry to resolve against, so every
// step is a candidate; steps sharing an inferred pattern collapse to one
// stub.
func printSnippets(files []*analysis.AnalyzedFile, langName, pkg string) error {
	lang := language.Get(langName)
	if lang == nil {
		return fmt.Errorf("%w: %s (available: %v)", ErrUnknownLanguage, langName, language.RegisteredLanguages())
	}

	var steps []language.Step

	seen := make(map[string]bool)
	for _, f := range files {
		if f.Feature == nil {
			continue
		}
		walkSteps(f.Feature, func(st *cuke.Step) {
			key := st.Type.String() + "\x00" + st.Text
			if seen[key] {
				return
			}
			seen[key] = true

			steps = append(steps, language.Step{
				Type:      st.Type,
				Text:      st.Text,
				DocString: st.DocString != nil,
				Table:     st.Table != nil,
			})
		})
	}

	out, err := lang.Generate(&language.GenerateContext{
		Steps:       steps,
		PackageName: pkg,
		OutputDir:   ".",
	})
	if err != nil {
		return err
	}

	for _, content := range out {
		if _, err := os.Stdout.Write(content); err != nil {
			return err
		}
	}

	return nil
}

// walkSteps visits every step in the feature: backgrounds, scenarios, and
// both again under each rule.
func walkSteps(f *cuke.Feature, visit func(*cuke.Step)) {
	if f.Background != nil {
		for _, st := range f.Background.Steps {
			visit(st)
		}
	}
	for _, s := range f.Scenarios {
		for _, st := range s.Steps {
			visit(st)
		}
	}
	for _, r := range f.Rules {
		if r.Background != nil {
			for _, st := range r.Background.Steps {
				visit(st)
			}
		}
		for _, s := range r.Scenarios {
			for _, st := range s.Steps {
				visit(st)
			}
		}
	}
}
