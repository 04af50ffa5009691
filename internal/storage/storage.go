package storage

import (
	"errors"
	"fmt"
)

// MaxBufferSize is the largest payload Storage.Set accepts, in bytes.
const MaxBufferSize = 4096

// ErrPayloadTooLarge is returned when Set is called with a payload larger
// than MaxBufferSize.
var ErrPayloadTooLarge = errors.New("storage: payload exceeds maximum buffer size")

// ErrQueueClosed is returned when Set is called after the write queue has
// exited, e.g. following an earlier IoError.
var ErrQueueClosed = errors.New("storage: write queue is closed")

// Storage is the public facade over one partition replica's append-only,
// segmented, offset-indexed log: Directory + Indices + SegmentationManager
// + WriteQueue, plus an optional background compactor.
type Storage struct {
	Directory *Directory

	indices *Indices
	segMgr  *SegmentationManager

	writeQueue   *WriteQueue
	writeCh      chan writeRequest
	segmentCh    chan *Segment
	compaction   bool

	closed bool
}

// New builds a Storage for the named replica. maxQueue bounds the write
// (and, if compaction is true, the sealed-segment) channel depth. The
// returned Storage owns the producer end of both channels and has already
// spawned the write-queue goroutine (and the compactor goroutine, if
// requested).
func New(title string, maxQueue int, compaction bool) (*Storage, error) {
	dir, err := NewDirectory(title)
	if err != nil {
		return nil, fmt.Errorf("storage: new (directory): %w", err)
	}

	segmentCh := make(chan *Segment, maxQueue)

	var onSeal func(*Segment)
	if compaction {
		onSeal = func(seg *Segment) {
			select {
			case segmentCh <- seg:
			default:
				// Compactor is behind; sealed segments stay on disk either
				// way, so dropping the notification never loses data.
			}
		}
	}

	segMgr, err := NewSegmentationManager(dir, onSeal)
	if err != nil {
		return nil, fmt.Errorf("storage: new (segmentation manager): %w", err)
	}

	indices, err := LoadIndices(dir, segMgr)
	if err != nil {
		return nil, fmt.Errorf("storage: new (indices): %w", err)
	}

	writeCh := make(chan writeRequest, maxQueue)

	s := &Storage{
		Directory:  dir,
		indices:    indices,
		segMgr:     segMgr,
		writeCh:    writeCh,
		segmentCh:  segmentCh,
		compaction: compaction,
	}

	s.writeQueue = newWriteQueue(segMgr, indices, writeCh)
	go s.writeQueue.Run()

	if compaction {
		compactor := NewCompactor(segmentCh)
		go compactor.Run()
	}

	return s, nil
}

// Set enqueues data onto the write channel, blocking if the queue is full.
// It fails PayloadTooLarge before enqueuing, and QueueClosed if the
// consumer has already exited.
func (s *Storage) Set(data []byte) error {
	if len(data) > MaxBufferSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), MaxBufferSize)
	}

	result := make(chan writeResult, 1)

	select {
	case s.writeCh <- writeRequest{payload: data, result: result}:
	case <-s.writeQueue.Done():
		return ErrQueueClosed
	}

	select {
	case r := <-result:
		return r.err
	case <-s.writeQueue.Done():
		return ErrQueueClosed
	}
}

// Get performs an O(1) index lookup, then seeks and reads the record's
// bytes from the appropriate partition segment. It returns (nil, false)
// when index is out of bounds, rather than an error.
func (s *Storage) Get(index uint64) ([]byte, bool, error) {
	offset, ok := s.indices.Get(index)
	if !ok {
		return nil, false, nil
	}

	seg, err := s.segMgr.GetSegmentByIndex(DataTypePartition, int(offset.SegmentIndex))
	if err != nil {
		return nil, false, err
	}

	buf := make([]byte, offset.DataSize)
	if err := seg.ReadAt(buf, int64(offset.Start)); err != nil {
		return nil, false, fmt.Errorf("storage: get(%d): %w", index, err)
	}

	return buf, true, nil
}

// Len returns the number of records ever successfully appended.
func (s *Storage) Len() uint64 {
	return s.indices.Len()
}

// Close stops accepting writes, waits for the write queue to write every
// request already queued, and releases all segment file handles; callers
// should ensure Set calls have returned first.
func (s *Storage) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	close(s.writeCh)
	<-s.writeQueue.Done()
	close(s.segmentCh)

	return s.segMgr.Close()
}
