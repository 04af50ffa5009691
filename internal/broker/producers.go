package broker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/nyx-project/nyxkit/internal/wire"
)

// ErrUnknownReplica is returned when a producer addresses a replica this
// broker does not host.
var ErrUnknownReplica = errors.New("broker: unknown replica")

// Serve accepts producer connections on listener until it is closed or
// returns an error, handling each on its own goroutine.
func (r *Runtime) Serve(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("broker: accept: %w", err)
		}
		go r.handleProducer(conn)
	}
}

func (r *Runtime) handleProducer(conn net.Conn) {
	defer conn.Close()

	reader := wire.NewReader(conn)
	synced := wire.NewSyncedConn(conn)

	for {
		env, err := reader.ReadOne()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("broker: producer connection error", "addr", conn.RemoteAddr(), "error", err)
			}
			return
		}

		if err := r.handleProducerMessage(synced, env); err != nil {
			slog.Warn("broker: failed to handle producer message", "kind", env.Kind, "error", err)
		}
	}
}

func (r *Runtime) handleProducerMessage(conn wire.Conn, env wire.Envelope) error {
	switch env.Kind {
	case wire.KindRequestClusterMetadata:
		var bc wire.Broadcast
		return bc.To(conn, wire.KindClusterMetadata, wire.ClusterMetadata{Metadata: r.ClusterMetadata()})

	case wire.KindProducerWantsToConnect:
		msg, err := env.DecodeProducerWantsToConnect()
		if err != nil {
			return err
		}
		slog.Info("broker: producer wants to connect", "topic", msg.Topic)
		return nil

	case wire.KindProducerMessage:
		msg, err := env.DecodeProducerMessage()
		if err != nil {
			return err
		}
		replica, ok := r.Replica(msg.ReplicaID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownReplica, msg.ReplicaID)
		}
		return replica.Set([]byte(msg.Payload))

	default:
		slog.Debug("broker: ignoring unhandled producer message kind", "kind", env.Kind)
		return nil
	}
}
