package storage

import (
	"encoding/binary"
)

// writeRequest is one pending append: the payload to persist, and a channel
// the caller waits on for the resulting Offset or an error.
type writeRequest struct {
	payload []byte
	result  chan<- writeResult
}

type writeResult struct {
	offset Offset
	err    error
}

// WriteQueue is the storage engine's single writer. It drains a bounded
// channel of append requests and is the only goroutine that ever appends to
// a replica's active partition segment: two producers writing concurrently
// are serialized by the channel, never by file locks.
type WriteQueue struct {
	segMgr  *SegmentationManager
	indices *Indices
	queue   <-chan writeRequest
	done    chan struct{}
	errc    chan error
}

// newWriteQueue constructs the queue; call Run in its own goroutine.
func newWriteQueue(segMgr *SegmentationManager, indices *Indices, queue <-chan writeRequest) *WriteQueue {
	return &WriteQueue{
		segMgr:  segMgr,
		indices: indices,
		queue:   queue,
		done:    make(chan struct{}),
		errc:    make(chan error, 1),
	}
}

// Run drains the queue until it is closed or an append fails. On failure it
// reports the error on errc and exits; it does not retry.
func (w *WriteQueue) Run() {
	defer close(w.done)

	for req := range w.queue {
		offset, err := w.append(req.payload)
		req.result <- writeResult{offset: offset, err: err}
		if err != nil {
			w.errc <- err
			return
		}
	}
}

// append writes payload to the active partition segment, then records and
// mirrors the resulting Offset to the indices segment.
func (w *WriteQueue) append(payload []byte) (Offset, error) {
	partitionSeg, err := w.segMgr.GetLatestSegment(DataTypePartition)
	if err != nil {
		return Offset{}, err
	}

	if err := partitionSeg.Append(payload); err != nil {
		return Offset{}, err
	}

	length, totalBytes := w.indices.Snapshot()

	offset, err := NewOffset(length, totalBytes, totalBytes+uint64(len(payload)), uint64(w.segMgr.GetLastSegmentCount(DataTypePartition)))
	if err != nil {
		return Offset{}, err
	}

	w.indices.Insert(offset)

	indexBytes := make([]byte, 8)
	binary.NativeEndian.PutUint64(indexBytes, length)

	indicesSeg, err := w.segMgr.GetLatestSegment(DataTypeIndices)
	if err != nil {
		return Offset{}, err
	}

	if err := indicesSeg.Append(append(indexBytes, offset.AsBytes()...)); err != nil {
		return Offset{}, err
	}

	return offset, nil
}

// Err reports the error that caused the write queue to exit, once it has.
func (w *WriteQueue) Err() <-chan error {
	return w.errc
}

// Done is closed when the write queue goroutine has exited.
func (w *WriteQueue) Done() <-chan struct{} {
	return w.done
}
