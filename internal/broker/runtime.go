// Package broker implements the data-plane process: it hosts partition
// replicas, reacts to placement commands from the observer, and serves
// producer connections.
package broker

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/nyx-project/nyxkit/internal/storage"
	"github.com/nyx-project/nyxkit/internal/wire"
)

// MaxQueueDepth bounds each hosted replica's write queue.
const MaxQueueDepth = 256

// Runtime hosts zero or more partition replicas and maintains the
// connection back to the observer.
type Runtime struct {
	id   string
	addr string

	mu       sync.RWMutex
	replicas map[string]*storage.Storage
	metadata wire.Metadata

	observerMu sync.Mutex
	observer   *wire.SyncedConn
}

// NewRuntime creates a broker runtime identified by id that advertises addr
// to the observer.
func NewRuntime(id, addr string) *Runtime {
	return &Runtime{
		id:       id,
		addr:     addr,
		replicas: make(map[string]*storage.Storage),
	}
}

// ID returns the broker's identity, stable across reconnects.
func (r *Runtime) ID() string { return r.id }

// ConnectObserver performs the broker → observer handshake over conn, then
// spawns a background goroutine dispatching every subsequent frame to
// HandleMessage until the connection is lost.
func (r *Runtime) ConnectObserver(conn net.Conn) error {
	var bc wire.Broadcast
	synced := wire.NewSyncedConn(conn)

	if err := bc.To(synced, wire.KindBrokerConnectionDetails, wire.BrokerConnectionDetails{
		ID:   r.id,
		Addr: r.addr,
	}); err != nil {
		return fmt.Errorf("broker: handshake: %w", err)
	}

	r.observerMu.Lock()
	r.observer = synced
	r.observerMu.Unlock()

	reader := wire.NewReader(conn)
	go func() {
		for {
			env, err := reader.ReadOne()
			if err != nil {
				slog.Warn("broker: lost connection to observer", "error", err)
				return
			}
			if err := r.HandleMessage(env); err != nil {
				slog.Warn("broker: failed to handle observer message", "kind", env.Kind, "error", err)
			}
		}
	}()

	return nil
}

// HandleMessage dispatches one decoded frame from the observer.
func (r *Runtime) HandleMessage(env wire.Envelope) error {
	switch env.Kind {
	case wire.KindCreatePartition:
		msg, err := env.DecodeCreatePartition()
		if err != nil {
			return err
		}
		return r.handleCreatePartition(msg)
	case wire.KindClusterMetadata:
		msg, err := env.DecodeClusterMetadata()
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.metadata = msg.Metadata
		r.mu.Unlock()
		return nil
	default:
		slog.Debug("broker: ignoring unhandled message kind", "kind", env.Kind)
		return nil
	}
}

func (r *Runtime) handleCreatePartition(msg wire.CreatePartition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.replicas[msg.ReplicaID]; exists {
		return nil
	}

	replica, err := storage.New(msg.ReplicaID, MaxQueueDepth, true)
	if err != nil {
		return fmt.Errorf("broker: create partition %s (replica %s): %w", msg.ID, msg.ReplicaID, err)
	}

	r.replicas[msg.ReplicaID] = replica
	slog.Info("broker: hosting replica", "partition", msg.ID, "replica", msg.ReplicaID, "topic", msg.Topic.Name)
	return nil
}

// ClusterMetadata returns the broker's last-known cluster metadata snapshot.
func (r *Runtime) ClusterMetadata() wire.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metadata
}

// Replica looks up a hosted replica by its replica id.
func (r *Runtime) Replica(replicaID string) (*storage.Storage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.replicas[replicaID]
	return s, ok
}

// Close shuts down every hosted replica.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, s := range r.replicas {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("broker: close replica %s: %w", id, err)
		}
	}
	return firstErr
}
