package distribution

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyx-project/nyxkit/internal/config"
	"github.com/nyx-project/nyxkit/internal/wire"
)

func newTestConfig(t *testing.T, replicaFactor int) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nyx.conf")
	contents := fmt.Sprintf("replica_factor=%d\nthrottle=1000\n", replicaFactor)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func newTestManager(t *testing.T, replicaFactor int) *Manager {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	mgr, err := New(newTestConfig(t, replicaFactor), "")
	require.NoError(t, err)
	return mgr
}

// fakeBroker simulates a broker process: it completes the handshake over a
// net.Pipe and keeps draining frames the observer sends back.
type fakeBroker struct {
	conn     net.Conn
	received chan wire.Envelope
}

func connectFakeBroker(t *testing.T, mgr *Manager, id, addr string) *fakeBroker {
	t.Helper()

	brokerConn, observerConn := net.Pipe()
	fb := &fakeBroker{conn: brokerConn, received: make(chan wire.Envelope, 32)}

	go func() {
		reader := wire.NewReader(brokerConn)
		for {
			env, err := reader.ReadOne()
			if err != nil {
				close(fb.received)
				return
			}
			fb.received <- env
		}
	}()

	go func() {
		var bc wire.Broadcast
		_ = bc.To(wire.NewSyncedConn(brokerConn), wire.KindBrokerConnectionDetails, wire.BrokerConnectionDetails{ID: id, Addr: addr})
	}()

	_, err := mgr.ConnectBroker(observerConn)
	require.NoError(t, err)

	t.Cleanup(func() { brokerConn.Close() })

	return fb
}

// expectCreatePartition waits for the next CreatePartition frame, skipping
// any ClusterMetadata broadcasts interleaved ahead of it.
func (fb *fakeBroker) expectCreatePartition(t *testing.T, timeout time.Duration) wire.CreatePartition {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case env, ok := <-fb.received:
			if !ok {
				t.Fatal("broker connection closed before a CreatePartition frame arrived")
			}
			if env.Kind != wire.KindCreatePartition {
				continue
			}
			msg, err := env.DecodeCreatePartition()
			require.NoError(t, err)
			return msg
		case <-deadline:
			t.Fatal("timed out waiting for a CreatePartition frame")
		}
	}
}

func TestConnectBrokerHandshakeBroadcastsMetadata(t *testing.T) {
	mgr := newTestManager(t, 1)
	fb := connectFakeBroker(t, mgr, "b1", "localhost:9000")

	select {
	case env := <-fb.received:
		assert.Equal(t, wire.KindClusterMetadata, env.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ClusterMetadata broadcast")
	}
}

func TestCreateTopicRequiresAnUpBroker(t *testing.T) {
	mgr := newTestManager(t, 1)

	_, err := mgr.CreateTopic("orders")
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestCreateTopicRejectsDuplicateName(t *testing.T) {
	mgr := newTestManager(t, 1)
	connectFakeBroker(t, mgr, "b1", "localhost:9000")

	_, err := mgr.CreateTopic("orders")
	require.NoError(t, err)

	_, err = mgr.CreateTopic("orders")
	assert.ErrorIs(t, err, ErrTopicExists)
}

func TestTwoBrokerPlacementWithReplicaFactorTwo(t *testing.T) {
	mgr := newTestManager(t, 2)

	b1 := connectFakeBroker(t, mgr, "b1", "localhost:9001")
	b2 := connectFakeBroker(t, mgr, "b2", "localhost:9002")

	_, err := mgr.CreateTopic("t")
	require.NoError(t, err)

	partitionID, err := mgr.CreatePartition("t")
	require.NoError(t, err)
	assert.NotEmpty(t, partitionID)

	created1 := b1.expectCreatePartition(t, time.Second)
	created2 := b2.expectCreatePartition(t, time.Second)

	assert.Equal(t, partitionID, created1.ID)
	assert.Equal(t, partitionID, created2.ID)
	assert.NotEqual(t, created1.ReplicaID, created2.ReplicaID)

	mgr.mu.Lock()
	assert.Empty(t, mgr.pending)
	mgr.mu.Unlock()
}

func TestDeferredReplicationWhenUnderReplicaFactor(t *testing.T) {
	mgr := newTestManager(t, 2)

	b1 := connectFakeBroker(t, mgr, "b1", "localhost:9001")

	_, err := mgr.CreateTopic("t")
	require.NoError(t, err)

	partitionID, err := mgr.CreatePartition("t")
	require.NoError(t, err)

	created1 := b1.expectCreatePartition(t, time.Second)
	assert.Equal(t, partitionID, created1.ID)

	mgr.mu.Lock()
	require.Len(t, mgr.pending, 1)
	assert.Equal(t, 1, mgr.pending[0].remaining)
	mgr.mu.Unlock()

	b2 := connectFakeBroker(t, mgr, "b2", "localhost:9002")

	created2 := b2.expectCreatePartition(t, time.Second)
	assert.Equal(t, partitionID, created2.ID)

	mgr.mu.Lock()
	assert.Empty(t, mgr.pending)
	mgr.mu.Unlock()
}

func TestCreatePartitionRequiresKnownTopic(t *testing.T) {
	mgr := newTestManager(t, 1)
	connectFakeBroker(t, mgr, "b1", "localhost:9001")

	_, err := mgr.CreatePartition("missing")
	assert.ErrorIs(t, err, ErrUnknownTopic)
}
