package storage

import (
	"fmt"
	"sync"
)

// SegmentationManager tracks the dense, monotonically increasing sequence
// of segments per data type and rotates the active segment when it reaches
// MaxSegmentSize. The last element of each sequence is always the active
// (writable) segment; every earlier segment is sealed.
type SegmentationManager struct {
	mu       sync.Mutex
	dir      *Directory
	segments map[DataType][]*Segment
	onSeal   func(*Segment)
}

// NewSegmentationManager creates segment 0 for both data types. onSeal, if
// non-nil, is invoked (outside the manager's lock) whenever a partition
// segment is sealed by rotation, handing it to a compactor.
func NewSegmentationManager(dir *Directory, onSeal func(*Segment)) (*SegmentationManager, error) {
	m := &SegmentationManager{
		dir:      dir,
		segments: make(map[DataType][]*Segment, 2),
		onSeal:   onSeal,
	}

	for _, dt := range []DataType{DataTypePartition, DataTypeIndices} {
		seg, err := NewSegment(dir, dt, 0)
		if err != nil {
			return nil, fmt.Errorf("storage: segmentation manager init %s: %w", dt, err)
		}
		m.segments[dt] = []*Segment{seg}
	}

	return m, nil
}

// GetLatestSegment returns the active segment for dataType, rotating to a
// freshly created segment first if the current active segment has reached
// MaxSegmentSize. Rotation always happens before the caller's append, so a
// record is never split across segments.
func (m *SegmentationManager) GetLatestSegment(dataType DataType) (*Segment, error) {
	m.mu.Lock()

	segs := m.segments[dataType]
	active := segs[len(segs)-1]

	length, err := active.Length()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	if length < MaxSegmentSize {
		m.mu.Unlock()
		return active, nil
	}

	active.Seal()

	next, err := NewSegment(m.dir, dataType, len(segs))
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("storage: rotate %s segment: %w", dataType, err)
	}

	m.segments[dataType] = append(segs, next)
	m.mu.Unlock()

	if dataType == DataTypePartition && m.onSeal != nil {
		m.onSeal(active)
	}

	return next, nil
}

// GetSegmentByIndex returns random access to a sealed or active segment by
// its sequence number, for reads.
func (m *SegmentationManager) GetSegmentByIndex(dataType DataType, seq int) (*Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	segs := m.segments[dataType]
	if seq < 0 || seq >= len(segs) {
		return nil, fmt.Errorf("storage: no %s segment with sequence %d", dataType, seq)
	}
	return segs[seq], nil
}

// GetLastSegmentCount returns len(sequence) - 1: the sequence number of the
// active segment for dataType.
func (m *SegmentationManager) GetLastSegmentCount(dataType DataType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.segments[dataType]) - 1
}

// Close releases every open segment handle.
func (m *SegmentationManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, segs := range m.segments {
		for _, seg := range segs {
			if err := seg.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
