// Package cli implements the observer's interactive command prompt.
package cli

import (
	"errors"
	"strings"
)

// Name identifies which operation a Command requests.
type Name int

const (
	Create Name = iota
	List
)

// ErrUnrecognizedCommand is returned for any command word not in the
// recognized set.
var ErrUnrecognizedCommand = errors.New("cli: unrecognized command")

// Command is one parsed line of operator input: a command name plus its
// whitespace-separated arguments.
type Command struct {
	Name      Name
	Arguments []string
}

// ParseCommand splits raw on whitespace and classifies the first token.
func ParseCommand(raw string) (Command, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{}, ErrUnrecognizedCommand
	}

	var name Name
	switch strings.ToUpper(fields[0]) {
	case "CREATE":
		name = Create
	case "LIST":
		name = List
	default:
		return Command{}, ErrUnrecognizedCommand
	}

	return Command{Name: name, Arguments: fields[1:]}, nil
}
