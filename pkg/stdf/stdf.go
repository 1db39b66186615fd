// Package stdf is the high-level API for extracting wide parametric
// tables from STDF V4 files.
//
// Basic usage:
//
//	res, err := stdf.ExtractFile(ctx, "lot2.stdf.gz")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(res.Rows), "parts,", len(res.Columns), "tests")
//
// Options tune anomaly policies, logging, decode-ahead and row
// filtering:
//
//	res, err := stdf.ExtractFile(ctx, path,
//	    stdf.WithLimitPolicy(extract.LimitLastWins),
//	    stdf.WithRowFilter(`passed && values["Vcc"] > 3.1`),
//	)
package stdf

import (
	"context"
	"log/slog"

	"github.com/twinfer/stdf-plugin/internal/input"
	"github.com/twinfer/stdf-plugin/internal/rowfilter"
	"github.com/twinfer/stdf-plugin/pkg/extract"
)

// options holds configuration for an extraction.
type options struct {
	logger      *slog.Logger
	policies    extract.Policies
	decodeAhead int
	filter      string
	filename    string
}

// Option is a function that configures extraction options.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOrphanPolicy sets the handling of results without an open part.
func WithOrphanPolicy(p extract.OrphanPolicy) Option {
	return func(o *options) {
		o.policies.Orphan = p
	}
}

// WithLimitPolicy sets the handling of conflicting limit definitions.
func WithLimitPolicy(p extract.LimitPolicy) Option {
	return func(o *options) {
		o.policies.Limit = p
	}
}

// WithDecodeAhead lets framing and record decoding run ahead of the
// assembler on a bounded channel of the given depth.
func WithDecodeAhead(depth int) Option {
	return func(o *options) {
		o.decodeAhead = depth
	}
}

// WithRowFilter keeps only rows matching the expression, e.g.
// `passed && site == 2`.
func WithRowFilter(expr string) Option {
	return func(o *options) {
		o.filter = expr
	}
}

// WithFilename records a source name in the run metadata. ExtractFile
// sets it automatically.
func WithFilename(name string) Option {
	return func(o *options) {
		o.filename = name
	}
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}

// Extract runs the full pipeline over a complete STDF buffer.
func Extract(ctx context.Context, data []byte, opts ...Option) (*extract.Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	res, err := extract.Run(ctx, data, extract.Config{
		Logger:      o.logger,
		Policies:    o.policies,
		Filename:    o.filename,
		DecodeAhead: o.decodeAhead,
	})
	if err != nil {
		return nil, err
	}

	if o.filter != "" {
		filter, err := rowfilter.Compile(o.filter)
		if err != nil {
			return nil, err
		}
		res.Rows, err = filter.Apply(res.Rows)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ExtractFile reads path (plain, gzip or zstd) and extracts it.
func ExtractFile(ctx context.Context, path string, opts ...Option) (*extract.Result, error) {
	data, err := input.ReadFile(path)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithFilename(input.BaseName(path))}, opts...)
	return Extract(ctx, data, opts...)
}
