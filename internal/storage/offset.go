package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidRange is returned when an Offset is constructed with start >= end.
var ErrInvalidRange = errors.New("storage: start must be less than end")

// offsetSize is the fixed on-disk width of one Offset: four uint64 fields.
const offsetSize = 4 * 8

// Offset is a fixed-size descriptor locating one record within a partition's
// byte stream. Its wire representation is four consecutive uint64 fields in
// native byte order: a fixed-stride binary layout rather than a
// variable-length encoding, so that the N-th indices record always lives
// at N * (8 + offsetSize).
type Offset struct {
	LogicalIndex  uint64
	Start         uint64
	DataSize      uint64
	SegmentIndex  uint64
}

// NewOffset validates end > start and derives DataSize = end - start.
func NewOffset(index, start, end, segmentIndex uint64) (Offset, error) {
	if start >= end {
		return Offset{}, fmt.Errorf("%w: start (%d) end (%d)", ErrInvalidRange, start, end)
	}

	return Offset{
		LogicalIndex: index,
		Start:        start,
		DataSize:     end - start,
		SegmentIndex: segmentIndex,
	}, nil
}

// AsBytes serializes the Offset to its fixed-width native-endian form.
func (o Offset) AsBytes() []byte {
	buf := make([]byte, offsetSize)
	binary.NativeEndian.PutUint64(buf[0:8], o.LogicalIndex)
	binary.NativeEndian.PutUint64(buf[8:16], o.Start)
	binary.NativeEndian.PutUint64(buf[16:24], o.DataSize)
	binary.NativeEndian.PutUint64(buf[24:32], o.SegmentIndex)
	return buf
}

// OffsetFromBytes reconstructs an Offset from its fixed-width serialized
// form. buf must be exactly offsetSize bytes.
func OffsetFromBytes(buf []byte) (Offset, error) {
	if len(buf) != offsetSize {
		return Offset{}, fmt.Errorf("storage: offset record must be %d bytes, got %d", offsetSize, len(buf))
	}

	return Offset{
		LogicalIndex: binary.NativeEndian.Uint64(buf[0:8]),
		Start:        binary.NativeEndian.Uint64(buf[8:16]),
		DataSize:     binary.NativeEndian.Uint64(buf[16:24]),
		SegmentIndex: binary.NativeEndian.Uint64(buf[24:32]),
	}, nil
}
