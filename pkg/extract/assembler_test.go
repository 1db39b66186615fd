package extract

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/stdf-plugin/testutil"
)

func newTestAssembler(policy Policies) *Assembler {
	return NewAssembler(policy, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func result(head, site uint8, num uint32, name string, v float64) PartResultEvent {
	return PartResultEvent{Head: head, Site: site, TestNum: num, TestName: name, Value: &v}
}

func TestAssembler_InterleavedSites(t *testing.T) {
	a := newTestAssembler(Policies{})

	a.Apply(PartStartEvent{Head: 1, Site: 1})
	a.Apply(PartStartEvent{Head: 1, Site: 2})
	a.Apply(result(1, 2, 100, "Vcc", 3.2))
	a.Apply(result(1, 1, 100, "Vcc", 3.3))
	a.Apply(result(1, 1, 200, "Iout", 0.5))
	a.Apply(PartEndEvent{Head: 1, Site: 2, HardBin: 1, PartID: "B1"})
	a.Apply(PartEndEvent{Head: 1, Site: 1, HardBin: 1, PartID: "A1"})

	rows, columns, _, diags := a.Finish()
	require.Len(t, rows, 2)
	assert.Empty(t, diags)

	// Column order is first sighting, independent of row order.
	assert.Equal(t, []string{"Vcc", "Iout"}, columns)

	// Rows emit in close order; Seq reflects open order.
	assert.Equal(t, "B1", rows[0].PartID)
	assert.Equal(t, 2, rows[0].Seq)
	assert.Equal(t, map[string]float64{"Vcc": 3.2}, rows[0].Values)
	assert.Equal(t, "A1", rows[1].PartID)
	assert.Equal(t, 1, rows[1].Seq)
	assert.Equal(t, map[string]float64{"Vcc": 3.3, "Iout": 0.5}, rows[1].Values)
}

func TestAssembler_ColumnNameBindsOnFirstSight(t *testing.T) {
	a := newTestAssembler(Policies{})
	a.Apply(PartStartEvent{Head: 1, Site: 1})
	a.Apply(result(1, 1, 100, "Vcc", 3.3))
	// Later sighting of the same test number with different text still
	// lands in the bound column.
	a.Apply(result(1, 1, 100, "Vcc_renamed", 3.4))
	a.Apply(result(1, 1, 300, "", 1.0))
	a.Apply(PartEndEvent{Head: 1, Site: 1, HardBin: 1})

	rows, columns, _, _ := a.Finish()
	assert.Equal(t, []string{"Vcc", "TEST_300"}, columns)
	assert.Equal(t, 3.4, rows[0].Values["Vcc"])
}

func TestAssembler_NilValueLeavesCellMissing(t *testing.T) {
	a := newTestAssembler(Policies{})
	a.Apply(PartStartEvent{Head: 1, Site: 1})
	a.Apply(PartResultEvent{Head: 1, Site: 1, TestNum: 100, TestName: "Vcc"})
	a.Apply(PartEndEvent{Head: 1, Site: 1, HardBin: 1})

	rows, columns, _, _ := a.Finish()
	// The column exists, the cell does not.
	assert.Equal(t, []string{"Vcc"}, columns)
	assert.Empty(t, rows[0].Values)
}

func TestAssembler_OrphanBucket(t *testing.T) {
	a := newTestAssembler(Policies{Orphan: OrphanBucket})
	a.Apply(result(1, 1, 100, "Vcc", 3.3))

	rows, _, _, diags := a.Finish()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Orphan)
	assert.Equal(t, "(unknown)", rows[0].PartID)
	assert.Equal(t, 3.3, rows[0].Values["Vcc"])
	require.Len(t, diags, 1)
	assert.Equal(t, DiagOrphanResult, diags[0].Kind)
}

func TestAssembler_OrphanDrop(t *testing.T) {
	a := newTestAssembler(Policies{Orphan: OrphanDrop})
	a.Apply(result(1, 1, 100, "Vcc", 3.3))

	rows, _, _, diags := a.Finish()
	assert.Empty(t, rows)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagOrphanResult, diags[0].Kind)
}

func TestAssembler_LimitConflict(t *testing.T) {
	first := LimitDefinitionEvent{TestNum: 100, TestName: "Vcc", Units: "V", LoLimit: testutil.Ptr(1.0)}
	second := LimitDefinitionEvent{TestNum: 100, TestName: "Vcc", Units: "V", LoLimit: testutil.Ptr(2.0)}

	a := newTestAssembler(Policies{Limit: LimitFirstWins})
	a.Apply(first)
	a.Apply(second)
	_, _, limits, diags := a.Finish()
	require.Len(t, limits, 1)
	assert.Equal(t, 1.0, *limits[0].Lo)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagLimitConflict, diags[0].Kind)

	a = newTestAssembler(Policies{Limit: LimitLastWins})
	a.Apply(first)
	a.Apply(second)
	_, _, limits, _ = a.Finish()
	assert.Equal(t, 2.0, *limits[0].Lo)
}

func TestAssembler_IdenticalRedefinitionIsNotAConflict(t *testing.T) {
	def := LimitDefinitionEvent{TestNum: 100, TestName: "Vcc", Units: "V", LoLimit: testutil.Ptr(1.0), HiLimit: testutil.Ptr(5.0)}
	a := newTestAssembler(Policies{})
	a.Apply(def)
	a.Apply(def)

	_, _, limits, diags := a.Finish()
	require.Len(t, limits, 1)
	assert.Empty(t, diags)
}

func TestAssembler_ForceClosesOpenParts(t *testing.T) {
	a := newTestAssembler(Policies{})
	a.Apply(PartStartEvent{Head: 1, Site: 1})
	a.Apply(PartStartEvent{Head: 1, Site: 2})
	a.Apply(result(1, 1, 100, "Vcc", 3.3))

	rows, _, _, diags := a.Finish()
	require.Len(t, rows, 2)
	// Force-close follows open order.
	assert.Equal(t, uint8(1), rows[0].Site)
	assert.True(t, rows[0].Incomplete)
	assert.Equal(t, 3.3, rows[0].Values["Vcc"])
	assert.True(t, rows[1].Incomplete)
	require.Len(t, diags, 2)
	assert.Equal(t, DiagIncompleteUnit, diags[0].Kind)
}

func TestAssembler_ReopenedPositionClosesPredecessor(t *testing.T) {
	a := newTestAssembler(Policies{})
	a.Apply(PartStartEvent{Head: 1, Site: 1})
	a.Apply(result(1, 1, 100, "Vcc", 3.1))
	a.Apply(PartStartEvent{Head: 1, Site: 1}) // same position, no PRR in between
	a.Apply(result(1, 1, 100, "Vcc", 3.2))
	a.Apply(PartEndEvent{Head: 1, Site: 1, HardBin: 1, PartID: "P2"})

	rows, _, _, diags := a.Finish()
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Incomplete)
	assert.Equal(t, 3.1, rows[0].Values["Vcc"])
	assert.Equal(t, "P2", rows[1].PartID)
	assert.False(t, rows[1].Incomplete)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagIncompleteUnit, diags[0].Kind)
}

func TestAssembler_PartEndWithoutStart(t *testing.T) {
	a := newTestAssembler(Policies{})
	a.Apply(PartEndEvent{Head: 2, Site: 3, HardBin: 1, PartID: "stray"})

	rows, _, _, diags := a.Finish()
	require.Len(t, rows, 1)
	assert.Equal(t, "stray", rows[0].PartID)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagOrphanResult, diags[0].Kind)
}

func TestAssembler_LimitsFollowColumnOrder(t *testing.T) {
	a := newTestAssembler(Policies{})
	a.Apply(LimitDefinitionEvent{TestNum: 200, TestName: "Iout", Units: "A", HiLimit: testutil.Ptr(1.0)})
	a.Apply(LimitDefinitionEvent{TestNum: 100, TestName: "Vcc", Units: "V", LoLimit: testutil.Ptr(1.0)})

	_, columns, limits, _ := a.Finish()
	assert.Equal(t, []string{"Iout", "Vcc"}, columns)
	require.Len(t, limits, 2)
	assert.Equal(t, "Iout", limits[0].Name)
	assert.Equal(t, "Vcc", limits[1].Name)
}
