package storage

import (
	"fmt"
	"os"
	"sync"
)

// MaxSegmentSize is the size cap (in bytes) of one segment file before
// rotation.
const MaxSegmentSize int64 = 4_000_000_000

// Segment is one append-only file backing either a partition's payload
// bytes or its indices entries. Bytes written to a segment are never
// rewritten; the only mutating operation from outside the storage engine
// is an append performed through the write queue.
type Segment struct {
	mu       sync.Mutex
	file     *os.File
	dataType DataType
	seq      int
	sealed   bool
}

// NewSegment opens (or creates) the backing file for (dataType, seq).
func NewSegment(dir *Directory, dataType DataType, seq int) (*Segment, error) {
	f, err := dir.OpenReadWriteCreate(dataType, seq)
	if err != nil {
		return nil, err
	}

	return &Segment{file: f, dataType: dataType, seq: seq}, nil
}

// Sequence returns this segment's 0-based sequence number.
func (s *Segment) Sequence() int {
	return s.seq
}

// Sealed reports whether this segment has been rotated out of active use.
func (s *Segment) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// Seal marks the segment immutable. It is invoked by the segmentation
// manager, never concurrently with an in-flight append: the write queue is
// the single writer and always holds the segmentation manager's lock across
// the size check that precedes a seal.
func (s *Segment) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

// Length returns the segment's current on-disk length.
func (s *Segment) Length() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("storage: stat segment %s/%d: %w", s.dataType, s.seq, err)
	}
	return info.Size(), nil
}

// Append writes buf at the end of the segment. It is only ever called by
// the write queue's single goroutine for the active segment.
func (s *Segment) Append(buf []byte) error {
	if _, err := s.file.Seek(0, os.SEEK_END); err != nil {
		return fmt.Errorf("storage: seek segment %s/%d: %w", s.dataType, s.seq, err)
	}
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("storage: append segment %s/%d: %w", s.dataType, s.seq, err)
	}
	return nil
}

// ReadAt reads exactly len(buf) bytes starting at the given offset.
func (s *Segment) ReadAt(buf []byte, start int64) error {
	if _, err := s.file.ReadAt(buf, start); err != nil {
		return fmt.Errorf("storage: read segment %s/%d at %d: %w", s.dataType, s.seq, start, err)
	}
	return nil
}

// Close releases the segment's file handle.
func (s *Segment) Close() error {
	return s.file.Close()
}

// Truncate truncates the segment's backing file to size bytes. Used by
// indices reconstruction to discard an orphaned partial stride left by a
// crash between the payload append and the indices append.
func (s *Segment) Truncate(size int64) error {
	if err := s.file.Truncate(size); err != nil {
		return fmt.Errorf("storage: truncate segment %s/%d to %d: %w", s.dataType, s.seq, size, err)
	}
	return nil
}
