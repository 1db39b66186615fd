package extract

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/stdf-plugin/pkg/stdfv4"
	"github.com/twinfer/stdf-plugin/testutil"
)

func quietConfig() Config {
	return Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestRun_SampleLot(t *testing.T) {
	cfg := quietConfig()
	cfg.Filename = "lot42"
	res, err := Run(context.Background(), testutil.SampleLot(t), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"Vcc", "Iout"}, res.Columns)
	require.Len(t, res.Rows, 2)

	p1 := res.Rows[0]
	assert.Equal(t, "P1", p1.PartID)
	assert.Equal(t, 1, p1.Seq)
	require.NotNil(t, p1.Passed)
	assert.True(t, *p1.Passed)
	assert.InDelta(t, 3.3, p1.Values["Vcc"], 1e-6)
	assert.InDelta(t, 0.5, p1.Values["Iout"], 1e-6)

	p2 := res.Rows[1]
	assert.Equal(t, "P2", p2.PartID)
	require.NotNil(t, p2.Passed)
	assert.False(t, *p2.Passed)
	require.NotNil(t, p2.SoftBin)
	assert.Equal(t, uint16(7), *p2.SoftBin)

	require.Len(t, res.Limits, 2)
	assert.Equal(t, "Vcc", res.Limits[0].Name)
	assert.Equal(t, "V", res.Limits[0].Units)

	meta := res.Metadata
	assert.Equal(t, "lot42", meta.Filename)
	assert.Equal(t, "LOT42", meta.LotID)
	assert.Equal(t, "final_test", meta.JobName)
	assert.Equal(t, "1.2", meta.JobRev)
	require.NotNil(t, meta.StartedAt)
	require.NotNil(t, meta.FinishedAt)
	assert.Empty(t, meta.Diagnostics)
	assert.Contains(t, meta.Limits, "Vcc")
}

func TestRun_TestWithoutLimitsGetsColumnButNoLimitsRow(t *testing.T) {
	vcc := testutil.SamplePTR(1, 1, 10, "Vcc", 3.3, true)
	vcc.LoLimit = testutil.Ptr(float32(3.0))
	vcc.HiLimit = testutil.Ptr(float32(3.6))
	iout := &stdfv4.PTR{
		TestNum: 20, HeadNum: 1, SiteNum: 1, Result: 1.2,
		TestTxt: testutil.Ptr("Iout"),
	}
	data := testutil.MustEncode(t, stdfv4.LittleEndian,
		testutil.SampleFAR(),
		testutil.SampleMIR(),
		&stdfv4.PIR{HeadNum: 1, SiteNum: 1},
		vcc, iout,
		testutil.SamplePRR(1, 1, "P1", 1),
		&stdfv4.MRR{FinishT: 1700003600},
	)
	res, err := Run(context.Background(), data, quietConfig())
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"Vcc", "Iout"}, res.Columns)
	assert.InDelta(t, 1.2, res.Rows[0].Values["Iout"], 1e-6)

	require.Len(t, res.Limits, 1)
	assert.Equal(t, "Vcc", res.Limits[0].Name)
	assert.InDelta(t, 3.0, *res.Limits[0].Lo, 1e-6)
	assert.InDelta(t, 3.6, *res.Limits[0].Hi, 1e-6)
}

func TestRun_WaferAndBinMetadata(t *testing.T) {
	data := testutil.MustEncode(t, stdfv4.LittleEndian,
		testutil.SampleFAR(),
		testutil.SampleMIR(),
		&stdfv4.WIR{HeadNum: 1, SiteGrp: 255, StartT: 1700000200, WaferID: testutil.Ptr("W01")},
		&stdfv4.WCR{
			WafrSiz: testutil.Ptr(float32(200)),
			DieHt:   testutil.Ptr(float32(5)),
			DieWid:  testutil.Ptr(float32(5)),
		},
		&stdfv4.HBR{HbinNum: 1, HbinCnt: 95, HbinPF: testutil.Ptr("P"), HbinNam: testutil.Ptr("GOOD")},
		&stdfv4.SBR{SbinNum: 7, SbinCnt: 5, SbinPF: testutil.Ptr("F"), SbinNam: testutil.Ptr("IDDQ_FAIL")},
		&stdfv4.MRR{FinishT: 1700003600},
	)
	res, err := Run(context.Background(), data, quietConfig())
	require.NoError(t, err)

	meta := res.Metadata
	assert.Equal(t, "W01", meta.WaferID)
	require.NotNil(t, meta.Wafer)
	assert.Equal(t, 200.0, *meta.Wafer.Size)
	assert.Equal(t, "GOOD", meta.HardBins[1].Name)
	assert.Equal(t, "IDDQ_FAIL", meta.SoftBins[7].Name)
	assert.Equal(t, uint32(5), meta.SoftBins[7].Count)
}

func TestRun_TruncatedFileYieldsNoOutput(t *testing.T) {
	data := testutil.SampleLot(t)
	// A final header declaring 20 payload bytes with only 5 present.
	data = append(data, 20, 0, 15, 10, 1, 2, 3, 4, 5)

	res, err := Run(context.Background(), data, quietConfig())
	assert.Nil(t, res)
	var ferr *stdfv4.FormatError
	require.ErrorAs(t, err, &ferr)
}

func TestRun_NotAnSTDFFile(t *testing.T) {
	_, err := Run(context.Background(), []byte("not stdf at all"), quietConfig())
	var ferr *stdfv4.FormatError
	require.ErrorAs(t, err, &ferr)
}

func TestRun_DecodeAheadMatchesSynchronous(t *testing.T) {
	data := testutil.SampleLot(t)

	sync, err := Run(context.Background(), data, quietConfig())
	require.NoError(t, err)

	cfg := quietConfig()
	cfg.DecodeAhead = 4
	ahead, err := Run(context.Background(), data, cfg)
	require.NoError(t, err)

	if diff := cmp.Diff(sync, ahead); diff != "" {
		t.Fatalf("decode-ahead result differs (-sync +ahead):\n%s", diff)
	}
}

func TestRun_IsRepeatable(t *testing.T) {
	data := testutil.SampleLot(t)

	first, err := Run(context.Background(), data, quietConfig())
	require.NoError(t, err)
	second, err := Run(context.Background(), data, quietConfig())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second run differs (-first +second):\n%s", diff)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testutil.SampleLot(t), quietConfig())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_IncompleteUnitDiagnostic(t *testing.T) {
	// PIR without a closing PRR.
	data := testutil.MustEncode(t, stdfv4.LittleEndian,
		testutil.SampleFAR(),
		testutil.SampleMIR(),
		&stdfv4.PIR{HeadNum: 1, SiteNum: 1},
		testutil.SamplePTR(1, 1, 100, "Vcc", 3.3, true),
	)
	res, err := Run(context.Background(), data, quietConfig())
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].Incomplete)
	require.Len(t, res.Metadata.Diagnostics, 1)
	assert.Equal(t, DiagIncompleteUnit, res.Metadata.Diagnostics[0].Kind)
}

func TestRun_OrphanPolicyDrop(t *testing.T) {
	// A PTR before any PIR.
	data := testutil.MustEncode(t, stdfv4.LittleEndian,
		testutil.SampleFAR(),
		testutil.SampleMIR(),
		testutil.SamplePTR(1, 1, 100, "Vcc", 3.3, true),
		&stdfv4.MRR{FinishT: 1700003600},
	)

	cfg := quietConfig()
	cfg.Policies = Policies{Orphan: OrphanDrop}
	res, err := Run(context.Background(), data, cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	require.Len(t, res.Metadata.Diagnostics, 1)

	res, err = Run(context.Background(), data, quietConfig())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].Orphan)
}
