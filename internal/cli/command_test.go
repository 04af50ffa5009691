package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandCreateTopic(t *testing.T) {
	cmd, err := ParseCommand("CREATE TOPIC orders")
	require.NoError(t, err)
	assert.Equal(t, Create, cmd.Name)
	assert.Equal(t, []string{"TOPIC", "orders"}, cmd.Arguments)
}

func TestParseCommandIsCaseInsensitiveOnName(t *testing.T) {
	cmd, err := ParseCommand("list")
	require.NoError(t, err)
	assert.Equal(t, List, cmd.Name)
}

func TestParseCommandRejectsEmptyLine(t *testing.T) {
	_, err := ParseCommand("   ")
	assert.ErrorIs(t, err, ErrUnrecognizedCommand)
}

func TestParseCommandRejectsUnknownWord(t *testing.T) {
	_, err := ParseCommand("DROP TOPIC orders")
	assert.ErrorIs(t, err, ErrUnrecognizedCommand)
}
