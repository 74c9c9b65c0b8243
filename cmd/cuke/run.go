package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/parser"
	"github.com/rlch/cuke/runner"
	"github.com/rlch/cuke/tags"
	"github.com/rlch/cuke/writer"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run feature scenarios",
		ArgsUsage: "[files or directories...]",
		Description: "Drives the selected feature files through the scheduler. " +
			"The standalone binary carries no step definitions, so every step " +
			"reports as skipped; embed the runner in your test suite to execute them.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"c"},
				Usage:   "scenarios running at once (0 = unbounded)",
			},
			&cli.BoolFlag{
				Name:  "fail-fast",
				Usage: "stop scheduling new scenarios after the first failure",
			},
			&cli.StringFlag{
				Name:    "tags",
				Aliases: []string{"t"},
				Usage:   `tag expression, e.g. "@smoke and not @wip"`,
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: `metadata filter, e.g. 'hasTag("smoke") && feature contains "auth"'`,
			},
			&cli.IntFlag{
				Name:  "retry",
				Usage: "extra attempts for failing scenarios",
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "wait between attempts",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output format: pretty, dots, json or tui",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "shorthand for --format json",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "shorthand for --format pretty",
			},
		},
		Action: runRun,
	}
}

func runRun(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cfg, cmd)

	paths, err := parser.Discover(featureRoots(cmd.Args().Slice(), cfg)...)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return ErrNoFeatureFiles
	}

	// Parse upfront: the TUI writer needs the full tree before the run
	// starts. Parse failures stay in source order and are replayed through
	// the run, so they count on the result and reach the writer as errors.
	type parsedFile struct {
		feature *cuke.Feature
		err     error
	}

	parsed := make([]parsedFile, 0, len(paths))
	features := make([]*cuke.Feature, 0, len(paths))
	for _, path := range paths {
		f, err := parser.ParseFile(path)
		parsed = append(parsed, parsedFile{feature: f, err: err})
		if err == nil {
			features = append(features, f)
		}
	}

	out, tui, err := buildWriter(runFormat(cfg, cmd), features)
	if err != nil {
		return err
	}
	if tui != nil {
		if err := tui.Start(); err != nil {
			return fmt.Errorf("starting TUI: %w", err)
		}
		defer tui.Stop()
	}

	opts, err := runnerOptions(cfg, out)
	if err != nil {
		return err
	}

	result, err := runner.New(opts...).Run(ctx, func(yield func(*cuke.Feature, error) bool) {
		for _, p := range parsed {
			if !yield(p.feature, p.err) {
				return
			}
		}
	})
	if err != nil {
		return err
	}

	if !result.Ok() {
		return cli.Exit("", 1)
	}

	return nil
}

// applyRunFlags overlays command-line flags onto the loaded config.
func applyRunFlags(cfg *cuke.Config, cmd *cli.Command) {
	if v := int(cmd.Int("concurrency")); v > 0 {
		cfg.Concurrency = v
	}
	if cmd.Bool("fail-fast") {
		cfg.FailFast = true
	}
	if v := cmd.String("tags"); v != "" {
		cfg.Tags = v
	}
	if v := cmd.String("filter"); v != "" {
		cfg.Filter = v
	}
	if v := int(cmd.Int("retry")); v > 0 {
		cfg.Retry.Count = v
	}
	if v := cmd.Duration("retry-delay"); v > 0 {
		cfg.Retry.Delay = cuke.Duration(v)
	}
}

// runFormat picks the output format: flags beat config; without either, TTYs
// get the live view and pipes get dots.
func runFormat(cfg *cuke.Config, cmd *cli.Command) string {
	format := cfg.Format
	if v := cmd.String("format"); v != "" {
		format = v
	}
	if cmd.Bool("verbose") {
		format = "pretty"
	}
	if cmd.Bool("json") {
		format = "json"
	}
	if format != "" {
		return format
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return "tui"
	}

	return "dots"
}

// buildWriter constructs the writer for the chosen format. The TUI writer is
// returned separately because it needs Start before the run and Stop when a
// run aborts early.
func buildWriter(format string, features []*cuke.Feature) (runner.Writer, *writer.TUI, error) {
	switch format {
	case "pretty":
		return writer.NewPretty(os.Stdout), nil, nil
	case "dots":
		return writer.NewDots(os.Stdout), nil, nil
	case "json":
		return writer.NewJSON(os.Stdout), nil, nil
	case "tui":
		t := writer.NewTUI(os.Stdout, os.Stderr, features)

		return t, t, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", cuke.ErrUnknownFormat, format)
}

// runnerOptions translates config into runner options, validating the tag and
// filter expressions up front so a typo is a clean CLI error instead of a
// panic.
func runnerOptions(cfg *cuke.Config, out runner.Writer) ([]runner.Option, error) {
	opts := []runner.Option{
		runner.WithWriter(out),
		runner.WithConcurrency(cfg.Concurrency),
		runner.WithFailFast(cfg.FailFast),
		runner.WithRetries(cfg.Retry.Count),
		runner.WithRetryDelay(time.Duration(cfg.Retry.Delay)),
	}

	if cfg.Tags != "" {
		if _, err := tags.Compile(cfg.Tags); err != nil {
			return nil, fmt.Errorf("invalid tag expression %q: %w", cfg.Tags, err)
		}
		opts = append(opts, runner.WithTagFilter(cfg.Tags))
	}
	if cfg.Retry.TagFilter != "" {
		if _, err := tags.Compile(cfg.Retry.TagFilter); err != nil {
			return nil, fmt.Errorf("invalid retry tag expression %q: %w", cfg.Retry.TagFilter, err)
		}
		opts = append(opts, runner.WithRetryTagFilter(cfg.Retry.TagFilter))
	}
	if cfg.Filter != "" {
		f, err := cuke.CompileFilter(cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("invalid filter expression %q: %w", cfg.Filter, err)
		}
		opts = append(opts, runner.WithFilter(f))
	}
	if cfg.SerialTag != "" {
		opts = append(opts, runner.WithClassifier(runner.SerialClassifier(cfg.SerialTag)))
	}

	return opts, nil
}
