package storage

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Compactor consumes sealed partition segments off a channel and writes a
// compressed sibling file next to each. Compaction is additive, never
// destructive: the sealed segment is left exactly as it was, so a crash
// mid-compaction can never lose committed data.
type Compactor struct {
	queue <-chan *Segment
}

// NewCompactor wires a Compactor to the sealed-segment channel.
func NewCompactor(queue <-chan *Segment) *Compactor {
	return &Compactor{queue: queue}
}

// Run drains the queue until it is closed.
func (c *Compactor) Run() {
	for seg := range c.queue {
		if err := compress(seg); err != nil {
			slog.Warn("compactor: failed to compress sealed segment", "segment", seg.seq, "error", err)
		}
	}
}

func compress(seg *Segment) error {
	length, err := seg.Length()
	if err != nil {
		return err
	}

	src := make([]byte, length)
	if err := seg.ReadAt(src, 0); err != nil {
		return err
	}

	dstPath := fmt.Sprintf("%s.cz", seg.file.Name())
	dst, err := os.OpenFile(dstPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("compactor: create %s: %w", dstPath, err)
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst)
	if err != nil {
		return fmt.Errorf("compactor: new encoder: %w", err)
	}

	if _, err := io.Copy(enc, bytes.NewReader(src)); err != nil {
		enc.Close()
		return fmt.Errorf("compactor: compress %s: %w", dstPath, err)
	}

	return enc.Close()
}
