package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rlch/cuke"
)

// Errors shared by the feature-file commands.
var (
	ErrNoFeatureFiles   = errors.New("no .feature files found")
	ErrDiagnosticErrors = errors.New("feature files contain errors")
)

func main() {
	app := &cli.Command{
		Name:  "cuke",
		Usage: "Run, lint and format Gherkin feature files",
		Commands: []*cli.Command{
			runCommand(),
			checkCommand(),
			listCommand(),
			fmtCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the nearest .cuke.yaml, walking up from the working
// directory. A missing file yields the zero config; a malformed one is an
// error.
func loadConfig() (*cuke.Config, error) {
	cfg, err := cuke.LoadConfig(".")
	if errors.Is(err, cuke.ErrConfigNotFound) {
		return &cuke.Config{}, nil
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// featureRoots resolves where to look for feature files: positional arguments
// win, then the config file's paths, then ./features when it exists, then the
// working directory.
func featureRoots(args []string, cfg *cuke.Config) []string {
	if len(args) > 0 {
		return args
	}
	if len(cfg.Paths) > 0 {
		return cfg.Paths
	}
	if info, err := os.Stat("features"); err == nil && info.IsDir() {
		return []string{"features"}
	}

	return []string{"."}
}
