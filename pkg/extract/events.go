// Package extract turns a decoded STDF record stream into a wide
// per-part table, a test limits table and a run metadata summary.
package extract

import (
	"fmt"
	"math"

	"github.com/twinfer/stdf-plugin/pkg/stdfv4"
)

// Event is one domain event derived from a decoded record. The
// interpreter is a pure mapping: records that model no event are
// dropped, and no state is carried between records.
type Event interface {
	event()
}

// FileAttrEvent carries the FAR attributes of the file itself.
type FileAttrEvent struct {
	CPUType     uint8
	StdfVersion uint8
}

// FileHeaderEvent carries the MIR lot/program/tester identity scalars.
type FileHeaderEvent struct {
	SetupAt    uint32 // epoch seconds
	StartedAt  uint32 // epoch seconds
	StationNum uint8
	ModeCode   string
	LotID      string
	PartType   string
	NodeName   string
	TesterType string
	JobName    string
	JobRev     string
	SublotID   string
	Operator   string
	ExecType   string
	ExecVer    string
	TestCode   string
	TestTemp   string
	FacilityID string
	FlowID     string
}

// RunCloseEvent carries the MRR end-of-run scalars.
type RunCloseEvent struct {
	FinishedAt  uint32 // epoch seconds
	Disposition string
	UserDesc    string
	ExcDesc     string
}

// PartStartEvent opens a part on a (head, site) position.
type PartStartEvent struct {
	Head uint8
	Site uint8
}

// PartResultEvent is one test outcome on the part currently open on
// (head, site). Value is nil when the tester flagged the measurement
// invalid or recorded the format's not-a-number sentinel; Passed is nil
// when the record carries no pass/fail disposition.
type PartResultEvent struct {
	Head     uint8
	Site     uint8
	TestNum  uint32
	TestName string
	Value    *float64
	Passed   *bool
}

// LimitDefinitionEvent declares the limits and units of one test.
type LimitDefinitionEvent struct {
	TestNum  uint32
	TestName string
	Units    string
	LoLimit  *float64
	HiLimit  *float64
}

// PartEndEvent closes the part open on (head, site).
type PartEndEvent struct {
	Head     uint8
	Site     uint8
	NumTest  uint16
	HardBin  uint16
	SoftBin  *uint16
	X        *int16
	Y        *int16
	TestTime *uint32 // elapsed milliseconds
	PartID   string
	Passed   *bool
	Retested bool
}

// WaferInfoEvent carries the WIR wafer identity.
type WaferInfoEvent struct {
	WaferID   string
	StartedAt uint32
}

// WaferGeometryEvent carries the WCR wafer dimensions.
type WaferGeometryEvent struct {
	Size      *float64
	DieHeight *float64
	DieWidth  *float64
}

// BinDefinitionEvent names one hardware or software bin.
type BinDefinitionEvent struct {
	Hard     bool
	Num      uint16
	Count    uint32
	PassFail string
	Name     string
}

// SequenceMarkerEvent marks a BPS/EPS program section boundary.
type SequenceMarkerEvent struct {
	Name string
	End  bool
}

func (FileAttrEvent) event()        {}
func (FileHeaderEvent) event()      {}
func (RunCloseEvent) event()        {}
func (PartStartEvent) event()       {}
func (PartResultEvent) event()      {}
func (LimitDefinitionEvent) event() {}
func (PartEndEvent) event()         {}
func (WaferInfoEvent) event()       {}
func (WaferGeometryEvent) event()   {}
func (BinDefinitionEvent) event()   {}
func (SequenceMarkerEvent) event()  {}

// PRR PART_FLG bits.
const (
	partFlagRetestID  = 0x01
	partFlagRetestXY  = 0x02
	partFlagFailed    = 0x08
	partFlagNoPF      = 0x10
	coordSentinel     = -32768
	softBinSentinel   = 0xFFFF
)

// PTR/MPR TEST_FLG bits.
const (
	testFlagResultInvalid = 0x02
	testFlagNoPF          = 0x40
	testFlagFailed        = 0x80
)

// PTR/MPR OPT_FLAG bits gating limit validity.
const (
	optFlagLoLimitInvalid = 0x10
	optFlagHiLimitInvalid = 0x20
	optFlagNoLoLimit      = 0x40
	optFlagNoHiLimit      = 0x80
)

// Interpret maps one decoded record to its domain events. PTR and MPR
// both normalize into PartResultEvent (plus a LimitDefinitionEvent when
// the record carries limit fields); records with no modeled event yield
// nil.
func Interpret(rec stdfv4.Record) []Event {
	switch r := rec.(type) {
	case *stdfv4.FAR:
		return []Event{FileAttrEvent{CPUType: r.CPUType, StdfVersion: r.StdfVer}}
	case *stdfv4.MIR:
		return []Event{FileHeaderEvent{
			SetupAt:    r.SetupT,
			StartedAt:  r.StartT,
			StationNum: r.StatNum,
			ModeCode:   r.ModeCod,
			LotID:      r.LotID,
			PartType:   r.PartTyp,
			NodeName:   r.NodeNam,
			TesterType: r.TstrTyp,
			JobName:    r.JobNam,
			JobRev:     strOrEmpty(r.JobRev),
			SublotID:   strOrEmpty(r.SblotID),
			Operator:   strOrEmpty(r.OperNam),
			ExecType:   strOrEmpty(r.ExecTyp),
			ExecVer:    strOrEmpty(r.ExecVer),
			TestCode:   strOrEmpty(r.TestCod),
			TestTemp:   strOrEmpty(r.TstTemp),
			FacilityID: strOrEmpty(r.FacilID),
			FlowID:     strOrEmpty(r.FlowID),
		}}
	case *stdfv4.MRR:
		return []Event{RunCloseEvent{
			FinishedAt:  r.FinishT,
			Disposition: strOrEmpty(r.DispCod),
			UserDesc:    strOrEmpty(r.UsrDesc),
			ExcDesc:     strOrEmpty(r.ExcDesc),
		}}
	case *stdfv4.PIR:
		return []Event{PartStartEvent{Head: r.HeadNum, Site: r.SiteNum}}
	case *stdfv4.PRR:
		return []Event{interpretPRR(r)}
	case *stdfv4.PTR:
		return interpretPTR(r)
	case *stdfv4.MPR:
		return interpretMPR(r)
	case *stdfv4.WIR:
		return []Event{WaferInfoEvent{WaferID: strOrEmpty(r.WaferID), StartedAt: r.StartT}}
	case *stdfv4.WCR:
		return []Event{WaferGeometryEvent{
			Size:      f32to64(r.WafrSiz),
			DieHeight: f32to64(r.DieHt),
			DieWidth:  f32to64(r.DieWid),
		}}
	case *stdfv4.HBR:
		return []Event{BinDefinitionEvent{Hard: true, Num: r.HbinNum, Count: r.HbinCnt, PassFail: strOrEmpty(r.HbinPF), Name: strOrEmpty(r.HbinNam)}}
	case *stdfv4.SBR:
		return []Event{BinDefinitionEvent{Hard: false, Num: r.SbinNum, Count: r.SbinCnt, PassFail: strOrEmpty(r.SbinPF), Name: strOrEmpty(r.SbinNam)}}
	case *stdfv4.BPS:
		return []Event{SequenceMarkerEvent{Name: strOrEmpty(r.SeqName)}}
	case *stdfv4.EPS:
		return []Event{SequenceMarkerEvent{End: true}}
	default:
		// TSR, SDR, PCR, ATR, DTR, FTR, WRR and Opaque records carry
		// nothing the wide table or metadata model.
		return nil
	}
}

func interpretPRR(r *stdfv4.PRR) PartEndEvent {
	ev := PartEndEvent{
		Head:     r.HeadNum,
		Site:     r.SiteNum,
		NumTest:  r.NumTest,
		HardBin:  r.HardBin,
		PartID:   strOrEmpty(r.PartID),
		Retested: r.PartFlg&(partFlagRetestID|partFlagRetestXY) != 0,
	}
	if r.PartFlg&partFlagNoPF == 0 {
		passed := r.PartFlg&partFlagFailed == 0
		ev.Passed = &passed
	}
	if r.SoftBin != nil && *r.SoftBin != softBinSentinel {
		ev.SoftBin = r.SoftBin
	}
	if r.XCoord != nil && *r.XCoord != coordSentinel {
		ev.X = r.XCoord
	}
	if r.YCoord != nil && *r.YCoord != coordSentinel {
		ev.Y = r.YCoord
	}
	if r.TestT != nil && *r.TestT != 0 {
		ev.TestTime = r.TestT
	}
	return ev
}

func interpretPTR(r *stdfv4.PTR) []Event {
	result := PartResultEvent{
		Head:     r.HeadNum,
		Site:     r.SiteNum,
		TestNum:  r.TestNum,
		TestName: strOrEmpty(r.TestTxt),
		Value:    resultValue(r.TestFlg, float64(r.Result)),
		Passed:   resultPassed(r.TestFlg),
	}
	events := []Event{result}
	if def, ok := limitsOf(r.TestNum, result.TestName, r.OptFlag, r.LoLimit, r.HiLimit, r.Units); ok {
		events = append(events, def)
	}
	return events
}

func interpretMPR(r *stdfv4.MPR) []Event {
	name := strOrEmpty(r.TestTxt)
	passed := resultPassed(r.TestFlg)

	var events []Event
	for i, v := range r.RtnRslt {
		ev := PartResultEvent{
			Head:     r.HeadNum,
			Site:     r.SiteNum,
			TestNum:  r.TestNum,
			TestName: name,
			Value:    resultValue(r.TestFlg, float64(v)),
			Passed:   passed,
		}
		// Pin-indexed results each get their own column so a vector
		// measurement does not collapse into one cell.
		if len(r.RtnRslt) > 1 {
			pin := i
			if i < len(r.RtnIndx) {
				pin = int(r.RtnIndx[i])
			}
			ev.TestName = fmt.Sprintf("%s#%d", name, pin)
		}
		events = append(events, ev)
	}
	if def, ok := limitsOf(r.TestNum, name, r.OptFlag, r.LoLimit, r.HiLimit, r.Units); ok {
		events = append(events, def)
	}
	return events
}

func limitsOf(num uint32, name string, optFlag *uint8, lo, hi *float32, units *string) (LimitDefinitionEvent, bool) {
	def := LimitDefinitionEvent{TestNum: num, TestName: name, Units: strOrEmpty(units)}
	if optFlag != nil {
		if *optFlag&(optFlagNoLoLimit|optFlagLoLimitInvalid) == 0 {
			def.LoLimit = f32to64(lo)
		}
		if *optFlag&(optFlagNoHiLimit|optFlagHiLimitInvalid) == 0 {
			def.HiLimit = f32to64(hi)
		}
	}
	if def.LoLimit == nil && def.HiLimit == nil && def.Units == "" {
		return LimitDefinitionEvent{}, false
	}
	return def, true
}

func resultValue(testFlg uint8, v float64) *float64 {
	if testFlg&testFlagResultInvalid != 0 || math.IsNaN(v) {
		return nil
	}
	return &v
}

func resultPassed(testFlg uint8) *bool {
	if testFlg&testFlagNoPF != 0 {
		return nil
	}
	passed := testFlg&testFlagFailed == 0
	return &passed
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func f32to64(f *float32) *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
