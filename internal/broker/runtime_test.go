package broker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyx-project/nyxkit/internal/wire"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	rt := NewRuntime(uuid.NewString(), "localhost:9000")
	t.Cleanup(func() { require.NoError(t, rt.Close()) })
	return rt
}

func TestHandleCreatePartitionHostsAReplica(t *testing.T) {
	rt := newTestRuntime(t)

	msg := wire.CreatePartition{
		ID:        uuid.NewString(),
		ReplicaID: uuid.NewString(),
		Topic:     wire.TopicRef{Name: "orders", PartitionCount: 1},
	}

	require.NoError(t, rt.handleCreatePartition(msg))

	replica, ok := rt.Replica(msg.ReplicaID)
	require.True(t, ok)
	assert.NotNil(t, replica)
}

func TestHandleCreatePartitionIsIdempotent(t *testing.T) {
	rt := newTestRuntime(t)

	msg := wire.CreatePartition{ID: uuid.NewString(), ReplicaID: uuid.NewString(), Topic: wire.TopicRef{Name: "orders"}}

	require.NoError(t, rt.handleCreatePartition(msg))
	first, _ := rt.Replica(msg.ReplicaID)

	require.NoError(t, rt.handleCreatePartition(msg))
	second, _ := rt.Replica(msg.ReplicaID)

	assert.Same(t, first, second)
}

func TestHandleMessageUpdatesClusterMetadata(t *testing.T) {
	rt := newTestRuntime(t)

	metadata := wire.Metadata{Topics: []wire.Topic{{Name: "orders", PartitionCount: 1}}}
	env, err := wire.Encode(wire.KindClusterMetadata, wire.ClusterMetadata{Metadata: metadata})
	require.NoError(t, err)

	require.NoError(t, rt.HandleMessage(env))
	assert.Equal(t, metadata, rt.ClusterMetadata())
}

func TestHandleMessageDispatchesCreatePartition(t *testing.T) {
	rt := newTestRuntime(t)

	msg := wire.CreatePartition{ID: uuid.NewString(), ReplicaID: uuid.NewString(), Topic: wire.TopicRef{Name: "orders"}}
	env, err := wire.Encode(wire.KindCreatePartition, msg)
	require.NoError(t, err)

	require.NoError(t, rt.HandleMessage(env))

	_, ok := rt.Replica(msg.ReplicaID)
	assert.True(t, ok)
}

func TestHandleMessageIgnoresUnknownKind(t *testing.T) {
	rt := newTestRuntime(t)

	env := wire.Envelope{Kind: wire.Kind("Something"), Payload: []byte(`{}`)}
	assert.NoError(t, rt.HandleMessage(env))
}
