package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/twinfer/stdf-plugin/internal/config"
	"github.com/twinfer/stdf-plugin/internal/input"
	"github.com/twinfer/stdf-plugin/internal/output"
	"github.com/twinfer/stdf-plugin/pkg/extract"
	"github.com/twinfer/stdf-plugin/pkg/stdf"
)

type rootFlags struct {
	configPath   string
	outputDir    string
	filter       string
	orphanPolicy string
	limitPolicy  string
	decodeAhead  int
	verbose      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "stdf-extract [flags] <file-or-glob>...",
		Short: "Extract wide parametric tables from STDF V4 files",
		Long: `stdf-extract decodes STDF V4 files (plain, .gz or .zst) and writes,
for each input, a wide per-part CSV, a test limits CSV and a run
metadata JSON next to the input or into --out.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&flags.outputDir, "out", "o", "", "output directory (default: alongside each input)")
	cmd.Flags().StringVar(&flags.filter, "filter", "", "row filter expression, e.g. 'passed && site == 2'")
	cmd.Flags().StringVar(&flags.orphanPolicy, "orphan-policy", "", "bucket|drop (default bucket)")
	cmd.Flags().StringVar(&flags.limitPolicy, "limit-policy", "", "first-wins|last-wins (default first-wins)")
	cmd.Flags().IntVar(&flags.decodeAhead, "decode-ahead", 0, "decode-ahead channel depth (0 disables)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func runExtract(cmd *cobra.Command, flags *rootFlags, args []string) error {
	cfg := &config.Config{}
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// Command-line flags override the config file.
	if flags.outputDir != "" {
		cfg.OutputDir = flags.outputDir
	}
	if flags.filter != "" {
		cfg.Filter = flags.filter
	}
	if flags.orphanPolicy != "" {
		cfg.OrphanPolicy = flags.orphanPolicy
	}
	if flags.limitPolicy != "" {
		cfg.LimitPolicy = flags.limitPolicy
	}
	if flags.decodeAhead != 0 {
		cfg.DecodeAhead = flags.decodeAhead
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	files, err := input.Discover(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files matched %v", args)
	}

	policies := cfg.Policies()
	for _, path := range files {
		logger.Info("extracting", "file", path)
		opts := []stdf.Option{
			stdf.WithLogger(logger),
			stdf.WithOrphanPolicy(policies.Orphan),
			stdf.WithLimitPolicy(policies.Limit),
		}
		if cfg.Filter != "" {
			opts = append(opts, stdf.WithRowFilter(cfg.Filter))
		}
		if cfg.DecodeAhead > 0 {
			opts = append(opts, stdf.WithDecodeAhead(cfg.DecodeAhead))
		}

		res, err := stdf.ExtractFile(cmd.Context(), path, opts...)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", path, err)
		}
		if err := writeOutputs(path, cfg.OutputDir, res); err != nil {
			return err
		}
		logger.Info("extracted", "file", path,
			"parts", len(res.Rows), "tests", len(res.Columns),
			"anomalies", len(res.Metadata.Diagnostics))
	}
	return nil
}

// writeOutputs writes <base>.csv, <base>-limits.csv and <base>-meta.json.
func writeOutputs(inputPath, outputDir string, res *extract.Result) error {
	if outputDir == "" {
		outputDir = filepath.Dir(inputPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	base := filepath.Join(outputDir, input.BaseName(inputPath))

	writers := []struct {
		path  string
		write func(*os.File) error
	}{
		{base + ".csv", func(f *os.File) error { return output.WriteWideCSV(f, res) }},
		{base + "-limits.csv", func(f *os.File) error { return output.WriteLimitsCSV(f, res) }},
		{base + "-meta.json", func(f *os.File) error { return output.WriteMetadataJSON(f, res) }},
	}
	for _, w := range writers {
		f, err := os.Create(w.path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", w.path, err)
		}
		if err := w.write(f); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", w.path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", w.path, err)
		}
	}
	return nil
}
