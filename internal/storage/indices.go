package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIndexCorruption is returned when an indices segment holds a partial or
// unreadable stride that is not explainable as a crash-orphaned tail on the
// most recent segment.
var ErrIndexCorruption = errors.New("storage: index corruption")

// indexStride is the fixed width of one indices record: an 8-byte logical
// index followed by a serialized Offset.
const indexStride = 8 + offsetSize

// Indices is the in-memory logical-index -> Offset map, mirrored to the
// Indices segment family. It reconstructs itself from disk on startup by
// replaying each indices segment in order as fixed-stride records.
type Indices struct {
	mu         sync.Mutex
	data       map[uint64]Offset
	length     uint64
	totalBytes uint64
}

// LoadIndices reconstructs Indices by replaying every indices segment
// tracked by segMgr, in sequence order, as (index uint64, Offset) pairs of
// fixed stride indexStride.
func LoadIndices(dir *Directory, segMgr *SegmentationManager) (*Indices, error) {
	idx := &Indices{data: make(map[uint64]Offset)}

	lastSeq := segMgr.GetLastSegmentCount(DataTypeIndices)

	for seq := 0; seq <= lastSeq; seq++ {
		seg, err := segMgr.GetSegmentByIndex(DataTypeIndices, seq)
		if err != nil {
			return nil, err
		}

		isLastSegment := seq == lastSeq

		if err := idx.replaySegment(seg, isLastSegment); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

func (idx *Indices) replaySegment(seg *Segment, isLastSegment bool) error {
	length, err := seg.Length()
	if err != nil {
		return err
	}

	var pos int64
	buf := make([]byte, indexStride)

	for pos < length {
		remaining := length - pos
		if remaining < indexStride {
			if !isLastSegment {
				return fmt.Errorf("%w: short stride in sealed segment at byte %d", ErrIndexCorruption, pos)
			}
			// Crash-orphaned partial stride on the active segment: truncate
			// and stop, per the append algorithm's best-effort recovery.
			return seg.Truncate(pos)
		}

		if err := seg.ReadAt(buf, pos); err != nil {
			if isLastSegment && errors.Is(err, io.EOF) {
				return seg.Truncate(pos)
			}
			return fmt.Errorf("%w: %v", ErrIndexCorruption, err)
		}

		index := binary.NativeEndian.Uint64(buf[0:8])
		offset, err := OffsetFromBytes(buf[8:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIndexCorruption, err)
		}

		idx.mu.Lock()
		idx.data[index] = offset
		idx.length++
		idx.totalBytes += offset.DataSize
		idx.mu.Unlock()

		pos += indexStride
	}

	return nil
}

// Insert records a new logical index -> Offset mapping and bumps the
// length/total-bytes counters. Called by the write queue after a payload
// append succeeds.
func (idx *Indices) Insert(offset Offset) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.data[offset.LogicalIndex] = offset
	idx.length++
	idx.totalBytes += offset.DataSize
}

// Snapshot returns the current length and total byte count, taken
// atomically, for constructing the next Offset to append.
func (idx *Indices) Snapshot() (length, totalBytes uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.length, idx.totalBytes
}

// Get returns the Offset recorded for a logical index, if any.
func (idx *Indices) Get(index uint64) (Offset, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	o, ok := idx.data[index]
	return o, ok
}

// Len returns the number of records ever appended.
func (idx *Indices) Len() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.length
}
