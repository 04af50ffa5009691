package broker

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyx-project/nyxkit/internal/wire"
)

func TestHandleProducerMessageRequestClusterMetadataRepliesWithSnapshot(t *testing.T) {
	rt := newTestRuntime(t)

	env, err := wire.Encode(wire.KindRequestClusterMetadata, wire.RequestClusterMetadata{})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, rt.handleProducerMessage(&out, env))

	reader := wire.NewReader(&out)
	reply, err := reader.ReadOne()
	require.NoError(t, err)
	assert.Equal(t, wire.KindClusterMetadata, reply.Kind)
}

func TestHandleProducerMessageWantsToConnectIsInformational(t *testing.T) {
	rt := newTestRuntime(t)

	env, err := wire.Encode(wire.KindProducerWantsToConnect, wire.ProducerWantsToConnect{Topic: "orders"})
	require.NoError(t, err)

	var out bytes.Buffer
	assert.NoError(t, rt.handleProducerMessage(&out, env))
	assert.Zero(t, out.Len())
}

func TestHandleProducerMessageStoresRecordOnHostedReplica(t *testing.T) {
	rt := newTestRuntime(t)

	create := wire.CreatePartition{ID: uuid.NewString(), ReplicaID: uuid.NewString(), Topic: wire.TopicRef{Name: "orders"}}
	require.NoError(t, rt.handleCreatePartition(create))

	payload, err := json.Marshal(map[string]any{"value": "hello"})
	require.NoError(t, err)

	env, err := wire.Encode(wire.KindProducerMessage, wire.ProducerMessage{ReplicaID: create.ReplicaID, Payload: payload})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, rt.handleProducerMessage(&out, env))

	replica, ok := rt.Replica(create.ReplicaID)
	require.True(t, ok)
	assert.Equal(t, uint64(1), replica.Len())
}

func TestHandleProducerMessageUnknownReplicaFails(t *testing.T) {
	rt := newTestRuntime(t)

	payload, err := json.Marshal(map[string]any{"value": "hello"})
	require.NoError(t, err)

	env, err := wire.Encode(wire.KindProducerMessage, wire.ProducerMessage{ReplicaID: uuid.NewString(), Payload: payload})
	require.NoError(t, err)

	var out bytes.Buffer
	err = rt.handleProducerMessage(&out, env)
	assert.ErrorIs(t, err, ErrUnknownReplica)
}
