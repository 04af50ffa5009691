package cli

import (
	"bufio"
	"io"
)

// Processor reads one raw command line at a time off an input stream.
type Processor struct {
	scanner *bufio.Scanner
}

// NewProcessor wraps r (typically os.Stdin) for line-at-a-time reading.
func NewProcessor(r io.Reader) *Processor {
	return &Processor{scanner: bufio.NewScanner(r)}
}

// ReadCommand blocks for the next line and parses it. It returns io.EOF
// when the input stream is exhausted.
func (p *Processor) ReadCommand() (Command, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return Command{}, err
		}
		return Command{}, io.EOF
	}
	return ParseCommand(p.scanner.Text())
}
