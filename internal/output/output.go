// Package output renders an extraction result to its persisted forms:
// the wide parametric CSV, the limits CSV and the metadata JSON.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/twinfer/stdf-plugin/pkg/extract"
)

// wideIdentityHeader is the fixed column prefix of the wide table; the
// test-name columns follow in first-seen order.
var wideIdentityHeader = []string{
	"head", "site", "seq", "part_id", "x", "y",
	"hard_bin", "hard_bin_name", "soft_bin", "soft_bin_name",
	"num_test", "test_time_ms", "retested", "incomplete", "passed",
	"started_at",
}

// WriteWideCSV writes one row per completed part. Absent values
// serialize as empty cells.
func WriteWideCSV(w io.Writer, res *extract.Result) error {
	cw := csv.NewWriter(w)

	header := append(append([]string{}, wideIdentityHeader...), res.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing wide table header: %w", err)
	}

	startedAt := formatTime(res.Metadata.StartedAt)
	for _, row := range res.Rows {
		record := make([]string, 0, len(header))
		record = append(record,
			strconv.Itoa(int(row.Head)),
			strconv.Itoa(int(row.Site)),
			strconv.Itoa(row.Seq),
			row.PartID,
			formatI16(row.X),
			formatI16(row.Y),
			formatU16(row.HardBin),
			binName(res.Metadata.HardBins, row.HardBin),
			formatU16(row.SoftBin),
			binName(res.Metadata.SoftBins, row.SoftBin),
			formatU16(row.NumTest),
			formatU32(row.TestTime),
			formatBool(row.Retested),
			formatBool(row.Incomplete),
			formatBoolPtr(row.Passed),
			startedAt,
		)
		for _, col := range res.Columns {
			if v, ok := row.Values[col]; ok {
				record = append(record, formatFloat(v))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing wide table row %d: %w", row.Seq, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteLimitsCSV writes one row per test with limit metadata, in the
// wide table's column order.
func WriteLimitsCSV(w io.Writer, res *extract.Result) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"test_num", "test_name", "units", "lo_limit", "hi_limit", "job_name", "job_rev"}); err != nil {
		return fmt.Errorf("writing limits header: %w", err)
	}
	for _, l := range res.Limits {
		record := []string{
			strconv.FormatUint(uint64(l.TestNum), 10),
			l.Name,
			l.Units,
			formatFloatPtr(l.Lo),
			formatFloatPtr(l.Hi),
			res.Metadata.JobName,
			res.Metadata.JobRev,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing limits row for %q: %w", l.Name, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteMetadataJSON writes the run metadata summary.
func WriteMetadataJSON(w io.Writer, res *extract.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Metadata); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatI16(v *int16) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(int(*v))
}

func formatU16(v *uint16) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatU32(v *uint32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func formatBoolPtr(v *bool) string {
	if v == nil {
		return ""
	}
	return formatBool(*v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func binName(bins map[uint16]extract.BinInfo, num *uint16) string {
	if num == nil {
		return ""
	}
	return bins[*num].Name
}
