package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/parser"
)

func fmtCommand() *cli.Command {
	return &cli.Command{
		Name:      "fmt",
		Usage:     "Format feature files",
		ArgsUsage: "[files or directories...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "check",
				Usage: "report files that are not formatted and exit nonzero, changing nothing",
			},
		},
		Action: runFmt,
	}
}

func runFmt(ctx context.Context, cmd *cli.Command) error {
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

	checkOnly := cmd.Bool("check")

	var dirty, failed int

	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // G304: file path from user input is expected
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		// Formatting works on the raw document so Scenario Outlines stay
		// collapsed. Files that do not parse are reported and left alone.
		doc, err := parser.Document(path, data)
		if err != nil {
			failed++
			fmt.Fprintln(os.Stderr, err)

			continue
		}

		formatted := cuke.Format(doc)
		if formatted == string(data) {
			continue
		}
		dirty++

		if checkOnly {
			fmt.Println(path)

			continue
		}

		if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil { //nolint:gosec // G306: feature files are sources, not secrets
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Printf("formatted %s\n", path)
	}

	if failed > 0 {
		return ErrDiagnosticErrors
	}
	if checkOnly && dirty > 0 {
		return cli.Exit("", 1)
	}

	return nil
}
