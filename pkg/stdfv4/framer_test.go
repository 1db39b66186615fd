package stdfv4

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramer_SplitsRecords(t *testing.T) {
	data := []byte{
		2, 0, 0, 10, 2, 4, // FAR
		0, 0, 5, 10, // PIR with empty payload (not valid STDF, but legal framing)
		3, 0, 50, 30, 2, 'h', 'i', // DTR "hi"
	}
	f := NewFramer(data, LittleEndian)

	r1, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), r1.Typ)
	assert.Equal(t, uint8(10), r1.Sub)
	assert.Equal(t, int64(0), r1.Offset)
	assert.Equal(t, []byte{2, 4}, r1.Payload)

	r2, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, uint8(5), r2.Typ)
	assert.Equal(t, int64(6), r2.Offset)
	assert.Empty(t, r2.Payload)

	r3, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, uint8(50), r3.Typ)
	assert.Equal(t, uint8(30), r3.Sub)
	assert.Equal(t, int64(10), r3.Offset)

	_, err = f.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFramer_BigEndianLength(t *testing.T) {
	data := []byte{0, 2, 0, 10, 1, 4}
	f := NewFramer(data, BigEndian)

	rec, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 4}, rec.Payload)

	_, err = f.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFramer_TruncatedHeader(t *testing.T) {
	data := []byte{
		2, 0, 0, 10, 2, 4,
		3, 0, // header cut off after the length field
	}
	f := NewFramer(data, LittleEndian)

	_, err := f.Next()
	require.NoError(t, err)

	_, err = f.Next()
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, int64(6), ferr.Offset)
}

func TestFramer_DeclaredLengthOverrunsBuffer(t *testing.T) {
	// The header declares 20 payload bytes; only 5 remain.
	data := []byte{20, 0, 15, 10, 1, 2, 3, 4, 5}
	f := NewFramer(data, LittleEndian)

	_, err := f.Next()
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, int64(0), ferr.Offset)
	assert.Contains(t, ferr.Error(), "overruns")
}

func TestDetectOrder(t *testing.T) {
	le, err := DetectOrder([]byte{2, 0, 0, 10, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, LittleEndian, le)

	be, err := DetectOrder([]byte{0, 2, 0, 10, 1, 4})
	require.NoError(t, err)
	assert.Equal(t, BigEndian, be)
}

func TestDetectOrder_Rejects(t *testing.T) {
	var ferr *FormatError

	_, err := DetectOrder([]byte{2, 0, 0})
	require.ErrorAs(t, err, &ferr)

	_, err = DetectOrder([]byte{2, 0, 1, 10, 2, 4})
	require.ErrorAs(t, err, &ferr)

	_, err = DetectOrder([]byte{9, 9, 0, 10, 2, 4})
	require.ErrorAs(t, err, &ferr)
}
