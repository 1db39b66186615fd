package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/twinfer/stdf-plugin/internal/input"
	"github.com/twinfer/stdf-plugin/pkg/extract"
	"github.com/twinfer/stdf-plugin/pkg/stdf"
)

// StdfProcessor is a Benthos processor that turns binary STDF messages
// into structured wide-table output.
type StdfProcessor struct {
	config     StdfConfig
	logger     *service.Logger
	mExtracted *service.MetricCounter
	mParts     *service.MetricCounter
	mAnomalies *service.MetricCounter
	mErrors    *service.MetricCounter
}

// StdfConfig contains configuration parameters for the STDF processor.
type StdfConfig struct {
	OrphanPolicy string `json:"orphan_policy" yaml:"orphan_policy"`
	LimitPolicy  string `json:"limit_policy" yaml:"limit_policy"`
	Filter       string `json:"filter" yaml:"filter"`
}

func init() {
	// Register the processor with Benthos
	err := service.RegisterProcessor(
		"stdf",
		stdfProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newStdfProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

// stdfProcessorConfig returns a config spec for an stdf processor.
func stdfProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Decodes binary STDF V4 test data into a wide per-part table with limits and run metadata.").
		Description("This processor parses a complete STDF byte stream (plain, gzip or zstd compressed) and emits a structured message holding the wide parametric table, the test limits table and the run metadata summary.").
		Field(service.NewStringField("orphan_policy").
			Description("How to handle test results arriving with no open part: bucket them into a synthetic unknown part, or drop them.").
			LintRule(`root = if !["bucket", "drop"].contains(this) { "must be bucket or drop" }`).
			Default("bucket")).
		Field(service.NewStringField("limit_policy").
			Description("Which definition wins when a test's limits are redefined with different values.").
			LintRule(`root = if !["first-wins", "last-wins"].contains(this) { "must be first-wins or last-wins" }`).
			Default("first-wins")).
		Field(service.NewStringField("filter").
			Description("Optional row filter expression; only matching parts are emitted.").
			Example(`passed && site == 2`).
			Default("")).
		Version("0.1.0")
}

// newStdfProcessorFromConfig creates a new StdfProcessor from a parsed config.
func newStdfProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*StdfProcessor, error) {
	orphanPolicy, err := conf.FieldString("orphan_policy")
	if err != nil {
		return nil, err
	}
	limitPolicy, err := conf.FieldString("limit_policy")
	if err != nil {
		return nil, err
	}
	filter, err := conf.FieldString("filter")
	if err != nil {
		return nil, err
	}

	config := StdfConfig{
		OrphanPolicy: orphanPolicy,
		LimitPolicy:  limitPolicy,
		Filter:       filter,
	}

	metrics := mgr.Metrics()
	return &StdfProcessor{
		config:     config,
		logger:     mgr.Logger(),
		mExtracted: metrics.NewCounter("stdf_extracted_files"),
		mParts:     metrics.NewCounter("stdf_extracted_parts"),
		mAnomalies: metrics.NewCounter("stdf_recovered_anomalies"),
		mErrors:    metrics.NewCounter("stdf_processing_errors"),
	}, nil
}

// Process decodes one binary STDF message into its structured form.
func (p *StdfProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	p.logger.Debug("Decoding STDF data")

	binData, err := msg.AsBytes()
	if err != nil {
		p.logger.Errorf("Failed to get binary data from message: %v", err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to get binary data from message: %w", err))
		return service.MessageBatch{msg}, nil
	}
	if len(binData) == 0 {
		p.logger.Warn("Empty binary data provided")
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("empty binary data provided"))
		return service.MessageBatch{msg}, nil
	}

	data, err := input.Decompress(binData)
	if err != nil {
		p.logger.Errorf("Failed to decompress message: %v", err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to decompress message: %w", err))
		return service.MessageBatch{msg}, nil
	}

	opts := p.extractOptions()
	res, err := stdf.Extract(ctx, data, opts...)
	if err != nil {
		p.logger.Errorf("Failed to extract STDF data of size %d bytes: %v", len(data), err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to extract STDF data of size %d bytes: %w", len(data), err))
		return service.MessageBatch{msg}, nil
	}

	structured, err := resultToStructured(res)
	if err != nil {
		p.mErrors.Incr(1)
		msg.SetError(err)
		return service.MessageBatch{msg}, nil
	}

	p.logger.Debugf("Extracted %d parts across %d tests", len(res.Rows), len(res.Columns))
	p.mExtracted.Incr(1)
	p.mParts.Incr(int64(len(res.Rows)))
	p.mAnomalies.Incr(int64(len(res.Metadata.Diagnostics)))

	newMsg := service.NewMessage(nil)
	newMsg.SetStructured(structured)

	// Copy metadata from original message
	msg.MetaWalk(func(key, value string) error {
		newMsg.MetaSet(key, value)
		return nil
	})

	return service.MessageBatch{newMsg}, nil
}

func (p *StdfProcessor) extractOptions() []stdf.Option {
	var opts []stdf.Option
	if p.config.OrphanPolicy == "drop" {
		opts = append(opts, stdf.WithOrphanPolicy(extract.OrphanDrop))
	}
	if p.config.LimitPolicy == "last-wins" {
		opts = append(opts, stdf.WithLimitPolicy(extract.LimitLastWins))
	}
	if p.config.Filter != "" {
		opts = append(opts, stdf.WithRowFilter(p.config.Filter))
	}
	return opts
}

// resultToStructured converts an extraction result to the generic
// map/slice form Benthos structured messages use.
func resultToStructured(res *extract.Result) (any, error) {
	payload := struct {
		Columns  []string             `json:"columns"`
		Parts    []extract.WideRow    `json:"parts"`
		Limits   []extract.TestLimits `json:"limits"`
		Metadata extract.RunMetadata  `json:"metadata"`
	}{
		Columns:  res.Columns,
		Parts:    res.Rows,
		Limits:   res.Limits,
		Metadata: res.Metadata,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling extraction result: %w", err)
	}
	var structured any
	if err := json.Unmarshal(raw, &structured); err != nil {
		return nil, fmt.Errorf("structuring extraction result: %w", err)
	}
	return structured, nil
}

// Close the processor resources.
func (p *StdfProcessor) Close(ctx context.Context) error {
	return nil
}

func main() {
	service.RunCLI(context.Background())
}
