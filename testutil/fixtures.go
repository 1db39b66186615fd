// Package testutil provides shared fixtures for tests: pointer
// helpers and canonical STDF record streams built through the real
// encoder, so every test consumes bytes the codec itself produced.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/twinfer/stdf-plugin/pkg/stdfv4"
)

// Ptr returns a pointer to v, for filling optional record fields.
func Ptr[T any](v T) *T { return &v }

// MustEncode frames records into a byte stream and fails the test on
// any encoding error.
func MustEncode(t *testing.T, order stdfv4.ByteOrder, recs ...stdfv4.Record) []byte {
	t.Helper()
	data, err := stdfv4.EncodeStream(order, recs...)
	require.NoError(t, err)
	return data
}

// SampleFAR is a little-endian x86 FAR.
func SampleFAR() *stdfv4.FAR {
	return &stdfv4.FAR{CPUType: 2, StdfVer: 4}
}

// SampleMIR carries the lot identity used across fixture files.
func SampleMIR() *stdfv4.MIR {
	return &stdfv4.MIR{
		SetupT:  1700000000,
		StartT:  1700000100,
		StatNum: 1,
		ModeCod: "P",
		RtstCod: " ",
		ProtCod: " ",
		BurnTim: 65535,
		CmodCod: " ",
		LotID:   "LOT42",
		PartTyp: "PART-A",
		NodeNam: "tester01",
		TstrTyp: "J750",
		JobNam:  "final_test",
		JobRev:  Ptr("1.2"),
	}
}

// SamplePTR builds a valid parametric result with limits.
func SamplePTR(head, site uint8, num uint32, name string, value float32, passed bool) *stdfv4.PTR {
	flg := uint8(0)
	if !passed {
		flg = 0x80
	}
	return &stdfv4.PTR{
		TestNum: num,
		HeadNum: head,
		SiteNum: site,
		TestFlg: flg,
		Result:  value,
		TestTxt: Ptr(name),
		AlarmID: Ptr(""),
		OptFlag: Ptr(uint8(0)),
		ResScal: Ptr(int8(0)),
		LlmScal: Ptr(int8(0)),
		HlmScal: Ptr(int8(0)),
		LoLimit: Ptr(float32(1.0)),
		HiLimit: Ptr(float32(5.0)),
		Units:   Ptr("V"),
	}
}

// SamplePRR closes a passing part with the given id.
func SamplePRR(head, site uint8, partID string, softBin uint16) *stdfv4.PRR {
	return &stdfv4.PRR{
		HeadNum: head,
		SiteNum: site,
		NumTest: 2,
		HardBin: 1,
		SoftBin: Ptr(softBin),
		XCoord:  Ptr(int16(3)),
		YCoord:  Ptr(int16(-2)),
		TestT:   Ptr(uint32(1500)),
		PartID:  Ptr(partID),
	}
}

// SampleLot encodes a complete two-part run: FAR, MIR, two PIR/PTR/PRR
// groups and an MRR. Part 1 passes both tests, part 2 fails the first.
func SampleLot(t *testing.T) []byte {
	t.Helper()
	return MustEncode(t, stdfv4.LittleEndian,
		SampleFAR(),
		SampleMIR(),
		&stdfv4.PIR{HeadNum: 1, SiteNum: 1},
		SamplePTR(1, 1, 100, "Vcc", 3.3, true),
		SamplePTR(1, 1, 200, "Iout", 0.5, true),
		SamplePRR(1, 1, "P1", 1),
		&stdfv4.PIR{HeadNum: 1, SiteNum: 1},
		SamplePTR(1, 1, 100, "Vcc", 2.1, false),
		SamplePTR(1, 1, 200, "Iout", 0.4, true),
		&stdfv4.PRR{
			HeadNum: 1, SiteNum: 1, PartFlg: 0x08, NumTest: 2, HardBin: 5,
			SoftBin: Ptr(uint16(7)), XCoord: Ptr(int16(4)), YCoord: Ptr(int16(-2)),
			TestT: Ptr(uint32(1800)), PartID: Ptr("P2"),
		},
		&stdfv4.MRR{FinishT: 1700003600, DispCod: Ptr(" ")},
	)
}
