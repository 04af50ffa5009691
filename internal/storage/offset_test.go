package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOffsetDerivesDataSize(t *testing.T) {
	off, err := NewOffset(3, 100, 150, 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), off.LogicalIndex)
	assert.Equal(t, uint64(100), off.Start)
	assert.Equal(t, uint64(50), off.DataSize)
	assert.Equal(t, uint64(1), off.SegmentIndex)
}

func TestNewOffsetRejectsInvalidRange(t *testing.T) {
	_, err := NewOffset(0, 10, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = NewOffset(0, 20, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestOffsetRoundTripsThroughBytes(t *testing.T) {
	off, err := NewOffset(7, 200, 264, 2)
	require.NoError(t, err)

	back, err := OffsetFromBytes(off.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, off, back)
}

func TestOffsetFromBytesRejectsWrongLength(t *testing.T) {
	_, err := OffsetFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}
