package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/parser"
	"github.com/rlch/cuke/tags"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List the scenarios a run would select",
		ArgsUsage: "[files or directories...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "tags",
				Aliases: []string{"t"},
				Usage:   `tag expression, e.g. "@smoke and not @wip"`,
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: `metadata filter, e.g. 'hasTag("smoke")'`,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "output as JSON",
			},
		},
		Action: runList,
	}
}

// listedScenario is one inventory row. Scenario Outlines appear expanded, one
// row per example, located at the example row's line.
type listedScenario struct {
	Path     string   `json:"path"`
	Line     int      `json:"line"`
	Feature  string   `json:"feature"`
	Keyword  string   `json:"keyword"`
	Scenario string   `json:"scenario"`
	Tags     []string `json:"tags,omitempty"`
}

func runList(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if v := cmd.String("tags"); v != "" {
		cfg.Tags = v
	}
	if v := cmd.String("filter"); v != "" {
		cfg.Filter = v
	}

	var tagExpr *tags.Expression
	if cfg.Tags != "" {
		tagExpr, err = tags.Compile(cfg.Tags)
		if err != nil {
			return fmt.Errorf("invalid tag expression %q: %w", cfg.Tags, err)
		}
	}

	var filter cuke.ScenarioFilter
	if cfg.Filter != "" {
		filter, err = cuke.CompileFilter(cfg.Filter)
		if err != nil {
			return fmt.Errorf("invalid filter expression %q: %w", cfg.Filter, err)
		}
	}

	var (
		rows      []listedScenario
		parseErrs int
		found     bool
	)

	for f, err := range parser.Features(featureRoots(cmd.Args().Slice(), cfg)...) {
		if err != nil {
			parseErrs++
			fmt.Fprintln(os.Stderr, err)

			continue
		}
		found = true

		collect := func(s *cuke.Scenario) {
			names := cuke.TagNames(s.Tags)
			if tagExpr != nil && !tagExpr.Match(names) {
				return
			}
			if filter != nil && !filter(f, s) {
				return
			}

			rows = append(rows, listedScenario{
				Path:     f.Path,
				Line:     s.Pos.Line,
				Feature:  f.Name,
				Keyword:  s.Keyword,
				Scenario: s.Name,
				Tags:     names,
			})
		}
		for _, s := range f.Scenarios {
			collect(s)
		}
		for _, r := range f.Rules {
			for _, s := range r.Scenarios {
				collect(s)
			}
		}
	}

	if !found && parseErrs == 0 {
		return ErrNoFeatureFiles
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return err
		}
	} else {
		for _, row := range rows {
			line := fmt.Sprintf("%s:%d: %s: %s", row.Path, row.Line, row.Keyword, row.Scenario)
			if len(row.Tags) > 0 {
				line += " " + strings.Join(row.Tags, " ")
			}
			fmt.Println(line)
		}
		fmt.Fprintf(os.Stderr, "%d scenarios\n", len(rows))
	}

	if parseErrs > 0 {
		return ErrDiagnosticErrors
	}

	return nil
}
