package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/twinfer/stdf-plugin/pkg/stdfv4"
)

// Config configures one pipeline run.
type Config struct {
	Logger   *slog.Logger
	Policies Policies
	Filename string // recorded in RunMetadata, not opened here
	// DecodeAhead > 0 runs framing and record decoding ahead of the
	// assembler on a bounded channel of that depth. Events are consumed
	// in the exact order they were produced either way.
	DecodeAhead int
}

// Run decodes a complete STDF buffer through the
// frame → decode → interpret → assemble pipeline and returns the
// assembled result. Framing and truncation errors abort the run with
// no partial output; recovered anomalies end up in
// Result.Metadata.Diagnostics.
func Run(ctx context.Context, data []byte, cfg Config) (*Result, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	order, err := stdfv4.DetectOrder(data)
	if err != nil {
		return nil, err
	}
	log.Debug("starting extraction", "bytes", len(data), "byte_order", order.String())

	asm := NewAssembler(cfg.Policies, log)
	agg := NewAggregator()
	apply := func(events []Event) {
		for _, ev := range events {
			asm.Apply(ev)
			agg.Apply(ev)
		}
	}

	if cfg.DecodeAhead > 0 {
		err = runDecodeAhead(ctx, data, order, cfg.DecodeAhead, apply)
	} else {
		err = runSynchronous(ctx, data, order, apply)
	}
	if err != nil {
		return nil, err
	}

	rows, columns, limits, diags := asm.Finish()
	meta := agg.Finish(cfg.Filename, asm.LimitsByName(), diags)
	log.Debug("extraction finished", "rows", len(rows), "columns", len(columns), "diagnostics", len(diags))

	return &Result{Rows: rows, Columns: columns, Limits: limits, Metadata: meta}, nil
}

func runSynchronous(ctx context.Context, data []byte, order stdfv4.ByteOrder, apply func([]Event)) error {
	framer := stdfv4.NewFramer(data, order)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, err := nextEvents(framer, order)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		apply(events)
	}
}

// runDecodeAhead overlaps framing/decoding with assembly. A single
// bounded channel preserves event order end to end.
func runDecodeAhead(ctx context.Context, data []byte, order stdfv4.ByteOrder, depth int, apply func([]Event)) error {
	group, ctx := errgroup.WithContext(ctx)
	ch := make(chan []Event, depth)

	group.Go(func() error {
		defer close(ch)
		framer := stdfv4.NewFramer(data, order)
		for {
			events, err := nextEvents(framer, order)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case ch <- events:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	group.Go(func() error {
		for events := range ch {
			if err := ctx.Err(); err != nil {
				return err
			}
			apply(events)
		}
		return nil
	})

	return group.Wait()
}

func nextEvents(framer *stdfv4.Framer, order stdfv4.ByteOrder) ([]Event, error) {
	raw, err := framer.Next()
	if err != nil {
		return nil, err
	}
	rec, err := stdfv4.DecodeRecord(raw, order)
	if err != nil {
		return nil, fmt.Errorf("record at offset %d: %w", raw.Offset, err)
	}
	return Interpret(rec), nil
}
