package extract

import (
	"fmt"
	"log/slog"
)

// OrphanPolicy decides what happens to a test result that arrives with
// no open part on its (head, site) position. The format does not define
// this case, so it is an explicit choice rather than a hidden default.
type OrphanPolicy uint8

const (
	// OrphanBucket attaches orphan results to a synthetic unknown-part
	// row emitted at end of stream.
	OrphanBucket OrphanPolicy = iota
	// OrphanDrop discards orphan results, keeping only the diagnostic.
	OrphanDrop
)

// LimitPolicy decides which definition wins when a test's limits are
// redefined with different values.
type LimitPolicy uint8

const (
	LimitFirstWins LimitPolicy = iota
	LimitLastWins
)

// Policies bundles the assembler's anomaly-handling choices.
type Policies struct {
	Orphan OrphanPolicy
	Limit  LimitPolicy
}

// DiagnosticKind tags one recovered anomaly.
type DiagnosticKind string

const (
	DiagOrphanResult   DiagnosticKind = "orphan_result"
	DiagLimitConflict  DiagnosticKind = "limit_conflict"
	DiagIncompleteUnit DiagnosticKind = "incomplete_unit"
)

// Diagnostic is one recovered, non-fatal anomaly.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
}

// PartKey identifies the (head, site) position a part is tested on.
// Only one part can be open per position at a time.
type PartKey struct {
	Head uint8
	Site uint8
}

// WideRow is one completed part: identity, disposition and one value
// per test the part executed. Rows are immutable once emitted; absent
// tests are simply missing from Values.
type WideRow struct {
	Head       uint8              `json:"head"`
	Site       uint8              `json:"site"`
	Seq        int                `json:"seq"` // 1-based order of part starts in the file
	PartID     string             `json:"part_id,omitempty"`
	X          *int16             `json:"x,omitempty"`
	Y          *int16             `json:"y,omitempty"`
	HardBin    *uint16            `json:"hard_bin,omitempty"`
	SoftBin    *uint16            `json:"soft_bin,omitempty"`
	NumTest    *uint16            `json:"num_test,omitempty"`
	TestTime   *uint32            `json:"test_time_ms,omitempty"`
	Passed     *bool              `json:"passed,omitempty"`
	Retested   bool               `json:"retested,omitempty"`
	Incomplete bool               `json:"incomplete,omitempty"` // open at end of stream, force-closed
	Orphan     bool               `json:"orphan,omitempty"`     // synthetic unknown-part bucket
	Values     map[string]float64 `json:"values"`
}

// TestLimits is one limits-table entry.
type TestLimits struct {
	TestNum uint32   `json:"test_num"`
	Name    string   `json:"name"`
	Units   string   `json:"units,omitempty"`
	Lo      *float64 `json:"lo,omitempty"`
	Hi      *float64 `json:"hi,omitempty"`
}

// Result is the assembled output of one run.
type Result struct {
	Rows     []WideRow
	Columns  []string // test-name columns in first-seen order
	Limits   []TestLimits
	Metadata RunMetadata
}

type openPart struct {
	row WideRow
}

// Assembler folds the event stream into wide rows. It is the single
// writer of the column registry and the limits table; per-part state
// lives only between a PartStartEvent and its PartEndEvent.
type Assembler struct {
	log      *slog.Logger
	policy   Policies
	colNames []string
	colIndex map[string]int
	nameOf   map[uint32]string // test_number -> first bound column name
	limits   map[string]TestLimits
	open     map[PartKey]*openPart
	order    []PartKey // open-order for deterministic force-close
	unknown  *openPart
	rows     []WideRow
	diags    []Diagnostic
	seq      int
}

// NewAssembler returns an Assembler with the given anomaly policies.
// A nil logger falls back to slog.Default().
func NewAssembler(policy Policies, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		log:      log,
		policy:   policy,
		colIndex: make(map[string]int),
		nameOf:   make(map[uint32]string),
		limits:   make(map[string]TestLimits),
		open:     make(map[PartKey]*openPart),
	}
}

// Apply folds one event into the assembler's state. Events the
// assembler does not model are ignored; the aggregator handles those.
func (a *Assembler) Apply(ev Event) {
	switch e := ev.(type) {
	case PartStartEvent:
		a.applyStart(e)
	case PartResultEvent:
		a.applyResult(e)
	case LimitDefinitionEvent:
		a.applyLimits(e)
	case PartEndEvent:
		a.applyEnd(e)
	}
}

func (a *Assembler) applyStart(e PartStartEvent) {
	key := PartKey{e.Head, e.Site}
	if prev, ok := a.open[key]; ok {
		// A second part opened on a busy position implies the previous
		// one never closed.
		a.log.Warn("part reopened before close", "head", e.Head, "site", e.Site)
		prev.row.Incomplete = true
		a.emit(prev.row)
		a.diagf(DiagIncompleteUnit, "part on head %d site %d replaced before close", e.Head, e.Site)
		a.dropOpen(key)
	}
	a.seq++
	a.open[key] = &openPart{row: WideRow{
		Head:   e.Head,
		Site:   e.Site,
		Seq:    a.seq,
		Values: make(map[string]float64),
	}}
	a.order = append(a.order, key)
}

func (a *Assembler) applyResult(e PartResultEvent) {
	name := a.columnFor(e.TestNum, e.TestName)
	part, ok := a.open[PartKey{e.Head, e.Site}]
	if !ok {
		a.diagf(DiagOrphanResult, "result for test %q on head %d site %d with no open part", name, e.Head, e.Site)
		a.log.Warn("orphan test result", "test", name, "head", e.Head, "site", e.Site)
		if a.policy.Orphan == OrphanDrop {
			return
		}
		part = a.unknownBucket()
	}
	if e.Value != nil {
		part.row.Values[name] = *e.Value
	}
}

func (a *Assembler) applyLimits(e LimitDefinitionEvent) {
	name := a.columnFor(e.TestNum, e.TestName)
	incoming := TestLimits{TestNum: e.TestNum, Name: name, Units: e.Units, Lo: e.LoLimit, Hi: e.HiLimit}
	stored, ok := a.limits[name]
	if !ok {
		a.limits[name] = incoming
		return
	}
	if limitsEqual(stored, incoming) {
		return
	}
	a.diagf(DiagLimitConflict, "conflicting limits for test %q: kept %s, saw %s", name, formatLimits(stored), formatLimits(incoming))
	a.log.Warn("limit conflict", "test", name)
	if a.policy.Limit == LimitLastWins {
		a.limits[name] = incoming
	}
}

func (a *Assembler) applyEnd(e PartEndEvent) {
	key := PartKey{e.Head, e.Site}
	part, ok := a.open[key]
	if !ok {
		a.diagf(DiagOrphanResult, "part-end on head %d site %d with no open part", e.Head, e.Site)
		a.log.Warn("part-end without part-start", "head", e.Head, "site", e.Site)
		a.seq++
		part = &openPart{row: WideRow{Head: e.Head, Site: e.Site, Seq: a.seq, Values: make(map[string]float64)}}
	} else {
		a.dropOpen(key)
	}

	row := part.row
	row.PartID = e.PartID
	row.X = e.X
	row.Y = e.Y
	hard := e.HardBin
	row.HardBin = &hard
	row.SoftBin = e.SoftBin
	numTest := e.NumTest
	row.NumTest = &numTest
	row.TestTime = e.TestTime
	row.Passed = e.Passed
	row.Retested = e.Retested
	a.emit(row)
}

// Finish force-closes any part still open, flushes the unknown-part
// bucket, and returns rows, columns and limits. The assembler must not
// be used afterwards.
func (a *Assembler) Finish() ([]WideRow, []string, []TestLimits, []Diagnostic) {
	for _, key := range a.order {
		part, ok := a.open[key]
		if !ok {
			continue
		}
		a.diagf(DiagIncompleteUnit, "part on head %d site %d still open at end of stream", key.Head, key.Site)
		a.log.Warn("force-closing incomplete part", "head", key.Head, "site", key.Site)
		part.row.Incomplete = true
		a.emit(part.row)
		delete(a.open, key)
	}
	if a.unknown != nil {
		a.emit(a.unknown.row)
	}

	limits := make([]TestLimits, 0, len(a.limits))
	for _, name := range a.colNames {
		if l, ok := a.limits[name]; ok {
			limits = append(limits, l)
		}
	}
	return a.rows, a.colNames, limits, a.diags
}

// LimitsByName exposes the limits table read-only for the aggregator.
func (a *Assembler) LimitsByName() map[string]TestLimits {
	out := make(map[string]TestLimits, len(a.limits))
	for k, v := range a.limits {
		out[k] = v
	}
	return out
}

// columnFor binds a test number to its column name on first sight and
// appends the column in first-seen order. Later events for the same
// number reuse the bound name even if their own text differs.
func (a *Assembler) columnFor(num uint32, name string) string {
	if bound, ok := a.nameOf[num]; ok {
		return bound
	}
	if name == "" {
		name = fmt.Sprintf("TEST_%d", num)
	}
	a.nameOf[num] = name
	if _, ok := a.colIndex[name]; !ok {
		a.colIndex[name] = len(a.colNames)
		a.colNames = append(a.colNames, name)
	}
	return name
}

func (a *Assembler) unknownBucket() *openPart {
	if a.unknown == nil {
		a.unknown = &openPart{row: WideRow{
			PartID: "(unknown)",
			Orphan: true,
			Values: make(map[string]float64),
		}}
	}
	return a.unknown
}

func (a *Assembler) emit(row WideRow) {
	a.rows = append(a.rows, row)
}

func (a *Assembler) dropOpen(key PartKey) {
	delete(a.open, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

func (a *Assembler) diagf(kind DiagnosticKind, format string, args ...any) {
	a.diags = append(a.diags, Diagnostic{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

func limitsEqual(a, b TestLimits) bool {
	return a.Units == b.Units && f64Equal(a.Lo, b.Lo) && f64Equal(a.Hi, b.Hi)
}

func f64Equal(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func formatLimits(l TestLimits) string {
	f := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%g", *v)
	}
	return fmt.Sprintf("[%s, %s] %s", f(l.Lo), f(l.Hi), l.Units)
}
