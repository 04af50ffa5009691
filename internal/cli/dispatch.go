package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nyx-project/nyxkit/internal/distribution"
)

// ErrBadArguments is returned when a command's argument list doesn't match
// what its name requires.
var ErrBadArguments = errors.New("cli: wrong number of arguments for command")

// Dispatch executes one parsed Command against the observer's distribution
// manager and returns operator-facing output.
func Dispatch(mgr *distribution.Manager, cmd Command) (string, error) {
	switch cmd.Name {
	case Create:
		return dispatchCreate(mgr, cmd.Arguments)
	case List:
		return dispatchList(mgr)
	default:
		return "", ErrUnrecognizedCommand
	}
}

func dispatchCreate(mgr *distribution.Manager, args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("%w: CREATE TOPIC <name> | CREATE PARTITION <topic>", ErrBadArguments)
	}

	switch args[0] {
	case "TOPIC":
		name, err := mgr.CreateTopic(args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("created topic %q", name), nil

	case "PARTITION":
		id, err := mgr.CreatePartition(args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("created partition %s", id), nil

	default:
		return "", fmt.Errorf("%w: unknown CREATE target %q", ErrBadArguments, args[0])
	}
}

func dispatchList(mgr *distribution.Manager) (string, error) {
	metadata := mgr.ClusterMetadata()
	out, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cli: marshal cluster metadata: %w", err)
	}
	return string(out), nil
}
