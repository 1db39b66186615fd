package extract

import (
	"time"
)

// WaferGeometry is the WCR die/wafer dimension summary.
type WaferGeometry struct {
	Size      *float64 `json:"size,omitempty"`
	DieHeight *float64 `json:"die_height,omitempty"`
	DieWidth  *float64 `json:"die_width,omitempty"`
}

// BinInfo names one hardware or software bin.
type BinInfo struct {
	Name     string `json:"name,omitempty"`
	PassFail string `json:"pass_fail,omitempty"`
	Count    uint32 `json:"count"`
}

// RunMetadata is the immutable per-run summary: file/lot/program
// scalars, bin names, wafer info, the limits table snapshot, and every
// recovered anomaly.
type RunMetadata struct {
	Filename    string         `json:"filename,omitempty"`
	CPUType     uint8          `json:"cpu_type"`
	StdfVersion uint8          `json:"stdf_version"`
	SetupAt     *time.Time     `json:"setup_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	StationNum  uint8          `json:"station_num"`
	ModeCode    string         `json:"mode_code,omitempty"`
	LotID       string         `json:"lot_id,omitempty"`
	PartType    string         `json:"part_type,omitempty"`
	NodeName    string         `json:"node_name,omitempty"`
	TesterType  string         `json:"tester_type,omitempty"`
	JobName     string         `json:"job_name,omitempty"`
	JobRev      string         `json:"job_rev,omitempty"`
	SublotID    string         `json:"sublot_id,omitempty"`
	Operator    string         `json:"operator,omitempty"`
	ExecType    string         `json:"exec_type,omitempty"`
	ExecVer     string         `json:"exec_ver,omitempty"`
	TestCode    string         `json:"test_code,omitempty"`
	TestTemp    string         `json:"test_temp,omitempty"`
	FacilityID  string         `json:"facility_id,omitempty"`
	FlowID      string         `json:"flow_id,omitempty"`
	Disposition string         `json:"disposition,omitempty"`
	WaferID     string         `json:"wafer_id,omitempty"`
	Wafer       *WaferGeometry `json:"wafer,omitempty"`

	HardBins map[uint16]BinInfo `json:"hard_bins,omitempty"`
	SoftBins map[uint16]BinInfo `json:"soft_bins,omitempty"`

	Limits      map[string]TestLimits `json:"limits"`
	Diagnostics []Diagnostic          `json:"diagnostics"`
}

// Aggregator accumulates metadata events into a RunMetadata. It holds
// no logic beyond accumulation; the limits snapshot and diagnostics
// come from the assembler at Finish.
type Aggregator struct {
	meta RunMetadata
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{meta: RunMetadata{
		HardBins: make(map[uint16]BinInfo),
		SoftBins: make(map[uint16]BinInfo),
	}}
}

// Apply folds one metadata-bearing event; all other events are ignored.
func (g *Aggregator) Apply(ev Event) {
	switch e := ev.(type) {
	case FileAttrEvent:
		g.meta.CPUType = e.CPUType
		g.meta.StdfVersion = e.StdfVersion
	case FileHeaderEvent:
		g.meta.SetupAt = epoch(e.SetupAt)
		g.meta.StartedAt = epoch(e.StartedAt)
		g.meta.StationNum = e.StationNum
		g.meta.ModeCode = e.ModeCode
		g.meta.LotID = e.LotID
		g.meta.PartType = e.PartType
		g.meta.NodeName = e.NodeName
		g.meta.TesterType = e.TesterType
		g.meta.JobName = e.JobName
		g.meta.JobRev = e.JobRev
		g.meta.SublotID = e.SublotID
		g.meta.Operator = e.Operator
		g.meta.ExecType = e.ExecType
		g.meta.ExecVer = e.ExecVer
		g.meta.TestCode = e.TestCode
		g.meta.TestTemp = e.TestTemp
		g.meta.FacilityID = e.FacilityID
		g.meta.FlowID = e.FlowID
	case RunCloseEvent:
		g.meta.FinishedAt = epoch(e.FinishedAt)
		g.meta.Disposition = e.Disposition
	case WaferInfoEvent:
		g.meta.WaferID = e.WaferID
	case WaferGeometryEvent:
		g.meta.Wafer = &WaferGeometry{Size: e.Size, DieHeight: e.DieHeight, DieWidth: e.DieWidth}
	case BinDefinitionEvent:
		info := BinInfo{Name: e.Name, PassFail: e.PassFail, Count: e.Count}
		if e.Hard {
			g.meta.HardBins[e.Num] = info
		} else {
			g.meta.SoftBins[e.Num] = info
		}
	}
}

// Finish seals the metadata with the assembler's limits snapshot and
// accumulated diagnostics.
func (g *Aggregator) Finish(filename string, limits map[string]TestLimits, diags []Diagnostic) RunMetadata {
	meta := g.meta
	meta.Filename = filename
	meta.Limits = limits
	if diags == nil {
		diags = []Diagnostic{}
	}
	meta.Diagnostics = diags
	if len(meta.HardBins) == 0 {
		meta.HardBins = nil
	}
	if len(meta.SoftBins) == 0 {
		meta.SoftBins = nil
	}
	return meta
}

func epoch(s uint32) *time.Time {
	if s == 0 {
		return nil
	}
	t := time.Unix(int64(s), 0).UTC()
	return &t
}
