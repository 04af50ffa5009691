package cli

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorReadsCommandsLineAtATime(t *testing.T) {
	p := NewProcessor(strings.NewReader("CREATE TOPIC orders\nLIST\n"))

	first, err := p.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, Create, first.Name)

	second, err := p.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, List, second.Name)

	_, err = p.ReadCommand()
	assert.ErrorIs(t, err, io.EOF)
}
