package distribution

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nyx-project/nyxkit/internal/clusterfile"
	"github.com/nyx-project/nyxkit/internal/config"
	"github.com/nyx-project/nyxkit/internal/wire"
)

// ClusterFile is the filename a cluster metadata snapshot is persisted
// under, scoped per observer instance by clusterfile.DirManager.
const ClusterFile = "cluster.json"

// ErrNoBrokers is returned when an operation needs at least one registered
// broker and none are available.
var ErrNoBrokers = errors.New("distribution: no brokers have been found, please make sure at least one broker is connected")

// ErrTopicExists is returned by CreateTopic for a name already in use.
var ErrTopicExists = errors.New("distribution: topic already exists")

// ErrUnknownTopic is returned when a named topic can't be located.
var ErrUnknownTopic = errors.New("distribution: topic doesn't exist")

// Manager is the observer's control-plane state: connected brokers, known
// topics, pending replication work, and the set of follower observers kept
// in sync via cluster metadata broadcast.
type Manager struct {
	mu      sync.Mutex
	brokers []*Broker
	topics  []*Topic

	pending []pendingReplica

	followers   []*wire.SyncedConn
	followersMu sync.Mutex

	clusterDir *clusterfile.DirManager
	cfg        *config.Config
}

// New builds a Manager scoped to an optional named instance (used to keep
// separate cluster files for separate observer processes on one host), and
// restores any previously persisted cluster state.
func New(cfg *config.Config, name string) (*Manager, error) {
	subdir := "observer"
	if name != "" {
		subdir = "observer/" + name
	}
	dir := clusterfile.WithDir(subdir)

	m := &Manager{clusterDir: dir, cfg: cfg}

	var metadata wire.Metadata
	if err := dir.Open(ClusterFile, &metadata); err != nil {
		slog.Info("distribution: no prior cluster state found, starting fresh", "error", err)
	} else {
		m.loadClusterState(metadata)
	}

	return m, nil
}

func (m *Manager) loadClusterState(metadata wire.Metadata) {
	topicsByName := make(map[string]*Topic, len(metadata.Topics))
	for _, t := range metadata.Topics {
		topic := &Topic{Name: t.Name, PartitionCount: t.PartitionCount}
		topicsByName[t.Name] = topic
		m.topics = append(m.topics, topic)
	}

	for _, b := range metadata.Brokers {
		broker := &Broker{ID: b.ID, Addr: b.Addr, Status: wire.StatusDown}
		for _, p := range b.Partitions {
			topic, ok := topicsByName[p.Topic.Name]
			if !ok {
				// A broker's own partitions must belong to a known topic;
				// a mismatch here means the persisted cluster file is
				// inconsistent.
				slog.Error("distribution: dropping partition referencing unknown topic", "topic", p.Topic.Name, "partition", p.ID)
				continue
			}
			broker.Partitions = append(broker.Partitions, &Partition{
				ID:              p.ID,
				ReplicaID:       p.ReplicaID,
				Topic:           topic,
				PartitionNumber: p.PartitionNumber,
				ReplicaCount:    p.ReplicaCount,
				Role:            p.Role,
				Status:          wire.StatusDown,
			})
		}
		m.brokers = append(m.brokers, broker)
	}
}

// ClusterMetadata returns the current cluster state as a wire snapshot.
func (m *Manager) ClusterMetadata() wire.Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clusterMetadataLocked()
}

func (m *Manager) clusterMetadataLocked() wire.Metadata {
	brokers := make([]wire.BrokerDetails, len(m.brokers))
	for i, b := range m.brokers {
		brokers[i] = b.Snapshot()
	}
	topics := make([]wire.Topic, len(m.topics))
	for i, t := range m.topics {
		topics[i] = t.Snapshot()
	}
	return wire.Metadata{Brokers: brokers, Topics: topics}
}

func (m *Manager) saveClusterStateLocked() error {
	return m.clusterDir.Save(ClusterFile, m.clusterMetadataLocked())
}

// RegisterFollower adds a follower observer's connection to the broadcast
// fan-out list, so it receives every future cluster metadata update.
func (m *Manager) RegisterFollower(conn net.Conn) {
	m.followersMu.Lock()
	defer m.followersMu.Unlock()
	m.followers = append(m.followers, wire.NewSyncedConn(conn))
}

// ConnectBroker performs the handshake on a newly accepted broker
// connection, registers (or restores) the broker, replicates any pending
// partitions onto it if it is newly registered, and broadcasts the
// resulting cluster state. It returns the broker's id.
func (m *Manager) ConnectBroker(conn net.Conn) (string, error) {
	reader := wire.NewReader(conn)
	env, err := reader.ReadOne()
	if err != nil {
		return "", fmt.Errorf("distribution: connect broker: %w", err)
	}
	return m.connectBrokerWithEnvelope(conn, reader, env)
}

// Accept handles a freshly accepted connection whose role isn't known yet:
// a broker announcing itself with BrokerConnectionDetails, or a follower
// observer bootstrapping with RequestClusterMetadata. Any other first frame
// is a handshake failure.
func (m *Manager) Accept(conn net.Conn) error {
	reader := wire.NewReader(conn)
	env, err := reader.ReadOne()
	if err != nil {
		return fmt.Errorf("distribution: accept: %w", err)
	}

	switch env.Kind {
	case wire.KindBrokerConnectionDetails:
		_, err := m.connectBrokerWithEnvelope(conn, reader, env)
		return err
	case wire.KindRequestClusterMetadata:
		m.RegisterFollower(conn)
		var bc wire.Broadcast
		return bc.To(wire.NewSyncedConn(conn), wire.KindClusterMetadata, wire.ClusterMetadata{Metadata: m.ClusterMetadata()})
	default:
		return fmt.Errorf("%w: first frame was %s", wire.ErrHandshakeRejected, env.Kind)
	}
}

func (m *Manager) connectBrokerWithEnvelope(conn net.Conn, reader *wire.Reader, env wire.Envelope) (string, error) {
	details, err := env.DecodeBrokerConnectionDetails()
	if err != nil {
		return "", fmt.Errorf("%w: %v", wire.ErrHandshakeRejected, err)
	}

	synced := wire.NewSyncedConn(conn)

	m.mu.Lock()
	var broker *Broker
	for _, b := range m.brokers {
		if b.ID == details.ID {
			broker = b
			break
		}
	}
	isNew := broker == nil
	if isNew {
		broker = &Broker{ID: details.ID, Addr: details.Addr, Conn: synced, Status: wire.StatusUp}
	} else {
		broker.Restore(synced, details.Addr)
	}
	m.mu.Unlock()

	m.spawnBrokerReader(broker, reader)

	if isNew {
		if err := m.replicatePendingPartitionsOnce(broker); err != nil {
			return "", err
		}
		m.mu.Lock()
		m.brokers = append(m.brokers, broker)
		m.mu.Unlock()
	}

	if err := m.broadcastClusterMetadata(); err != nil {
		return "", err
	}

	return broker.ID, nil
}

func (m *Manager) broadcastClusterMetadata() error {
	m.mu.Lock()
	metadata := m.clusterMetadataLocked()
	if err := m.saveClusterStateLocked(); err != nil {
		m.mu.Unlock()
		return err
	}

	var brokerConns []wire.Conn
	for _, b := range m.brokers {
		b.mu.Lock()
		if b.Conn != nil {
			brokerConns = append(brokerConns, b.Conn)
		}
		b.mu.Unlock()
	}
	m.mu.Unlock()

	m.followersMu.Lock()
	var followerConns []wire.Conn
	for _, f := range m.followers {
		followerConns = append(followerConns, f)
	}
	m.followersMu.Unlock()

	var bc wire.Broadcast
	payload := wire.ClusterMetadata{Metadata: metadata}
	if err := bc.All(followerConns, wire.KindClusterMetadata, payload); err != nil {
		return fmt.Errorf("distribution: broadcast to followers: %w", err)
	}
	if err := bc.All(brokerConns, wire.KindClusterMetadata, payload); err != nil {
		return fmt.Errorf("distribution: broadcast to brokers: %w", err)
	}
	return nil
}

// CreateTopic registers a new, partition-less topic. At least one Up broker
// must be present.
func (m *Manager) CreateTopic(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	upBrokers := 0
	for _, b := range m.brokers {
		if b.Status == wire.StatusUp {
			upBrokers++
		}
	}
	if upBrokers == 0 {
		return "", ErrNoBrokers
	}

	for _, t := range m.topics {
		if t.Name == name {
			return "", fmt.Errorf("%w: %s", ErrTopicExists, name)
		}
	}

	m.topics = append(m.topics, NewTopic(name))
	return name, nil
}

// CreatePartition adds one new partition to a topic, placing replica_factor
// replicas across the least-loaded brokers (queuing any shortfall as
// pending replication), then broadcasts the resulting cluster state.
func (m *Manager) CreatePartition(topicName string) (string, error) {
	m.mu.Lock()

	if len(m.brokers) == 0 {
		m.mu.Unlock()
		return "", ErrNoBrokers
	}

	var topic *Topic
	for _, t := range m.topics {
		if t.Name == topicName {
			topic = t
			break
		}
	}
	if topic == nil {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topicName)
	}

	replicaFactor, ok := m.cfg.GetNumber("replica_factor")
	if !ok {
		m.mu.Unlock()
		return "", errors.New("distribution: replica_factor is not defined in the config, action aborted")
	}
	m.mu.Unlock()

	partitionNumber := topic.NextPartitionNumber()
	partition := &Partition{
		ID:              uuid.NewString(),
		Topic:           topic,
		PartitionNumber: partitionNumber,
		Role:            wire.RoleFollower,
		Status:          wire.StatusPendingCreation,
	}

	if err := m.replicatePartitionOnto(replicaFactor, partition); err != nil {
		return "", err
	}

	if err := m.broadcastClusterMetadata(); err != nil {
		return "", err
	}

	return partition.ID, nil
}

// replicatePartitionOnto and its helpers below only ever hold m.mu across
// bookkeeping on m.brokers/m.pending, never across a broadcastCreatePartition
// call: brokers list locking must never span I/O on a broker's stream.
func (m *Manager) replicatePartitionOnto(replicaFactor int, partition *Partition) error {
	upBrokers := m.upBrokerCount()

	futureReplicationsNeeded := replicaFactor - upBrokers
	if futureReplicationsNeeded > 0 {
		replica := replicatePartition(partition, upBrokers)
		m.mu.Lock()
		m.pending = append(m.pending, pendingReplica{remaining: futureReplicationsNeeded, partition: replica})
		m.mu.Unlock()
	} else {
		futureReplicationsNeeded = 0
	}

	currentMaxReplications := replicaFactor - futureReplicationsNeeded

	for replicaCount := 1; replicaCount <= currentMaxReplications; replicaCount++ {
		broker, err := m.leastDistributedBroker(partition)
		if err != nil {
			return err
		}
		replica := replicatePartition(partition, replicaCount)
		if err := broadcastCreatePartition(broker, replica); err != nil {
			return err
		}
		broker.AddPartition(replica)
	}

	return nil
}

func (m *Manager) upBrokerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, b := range m.brokers {
		if b.Status == wire.StatusUp {
			n++
		}
	}
	return n
}

func (m *Manager) leastDistributedBroker(partition *Partition) (*Broker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.brokers) == 0 {
		return nil, errors.New("distribution: at least 1 registered broker is expected in the system")
	}

	var least *Broker
	for _, b := range m.brokers {
		if b.HostsPartition(partition.ID) {
			continue
		}
		if least == nil || b.PartitionCount() < least.PartitionCount() {
			least = b
		}
	}
	if least == nil {
		return nil, fmt.Errorf("distribution: every registered broker already hosts a replica of partition %s", partition.ID)
	}
	return least, nil
}

// replicatePendingPartitionsOnce runs when broker newly joins the cluster:
// every entry in the pending-replication queue gets one additional replica
// placed on broker, in reverse insertion order.
func (m *Manager) replicatePendingPartitionsOnce(broker *Broker) error {
	m.mu.Lock()
	count := len(m.pending)
	m.mu.Unlock()

	for i := count - 1; i >= 0; i-- {
		m.mu.Lock()
		if i >= len(m.pending) {
			m.mu.Unlock()
			continue
		}
		pr := &m.pending[i]
		replica := replicatePartition(pr.partition, pr.partition.ReplicaCount+1)
		m.mu.Unlock()

		if err := broadcastCreatePartition(broker, replica); err != nil {
			return err
		}
		broker.AddPartition(replica)

		m.mu.Lock()
		pr.partition.ReplicaCount++
		pr.remaining--
		m.mu.Unlock()
	}

	m.mu.Lock()
	kept := m.pending[:0]
	for _, pr := range m.pending {
		if pr.remaining > 0 {
			kept = append(kept, pr)
		}
	}
	m.pending = kept
	m.mu.Unlock()

	return nil
}

// replicatePartition derives one concrete replica from a logical partition
// (or an earlier replica of it): every replica of the same partition shares
// ID, but each copy gets its own unique ReplicaID, the way a broker tells
// its hosted copies apart on the wire.
func replicatePartition(partition *Partition, replicaCount int) *Partition {
	replica := *partition
	replica.ReplicaID = uuid.NewString()
	replica.ReplicaCount = replicaCount
	return &replica
}

func broadcastCreatePartition(broker *Broker, replica *Partition) error {
	broker.mu.Lock()
	conn := broker.Conn
	broker.mu.Unlock()

	if conn == nil {
		slog.Warn("distribution: ignoring replicate on broker with no active connection", "broker", broker.ID)
		return nil
	}

	var bc wire.Broadcast
	payload := wire.CreatePartition{
		ID:              replica.ID,
		ReplicaID:       replica.ReplicaID,
		Topic:           wire.TopicRef(replica.Topic.Snapshot()),
		PartitionNumber: replica.PartitionNumber,
		ReplicaCount:    replica.ReplicaCount,
	}
	if err := bc.To(conn, wire.KindCreatePartition, payload); err != nil {
		return fmt.Errorf("distribution: replicate partition %s to broker %s: %w", replica.ID, broker.ID, err)
	}

	replica.Status = wire.StatusUp
	return nil
}

// spawnBrokerReader starts a background goroutine consuming frames off a
// broker's connection until it disconnects, retrying transient read errors
// with a throttle drawn from config.
func (m *Manager) spawnBrokerReader(broker *Broker, reader *wire.Reader) {
	throttle, ok := m.cfg.GetNumber("throttle")
	if !ok {
		throttle = 1000
	}

	go func() {
		for {
			_, err := reader.ReadOne()
			if err == nil {
				continue
			}

			if errors.Is(err, io.EOF) {
				m.handleBrokerDisconnect(broker)
				return
			}

			slog.Warn("distribution: broker read error, retrying", "broker", broker.ID, "error", err, "throttle_ms", throttle)
			time.Sleep(time.Duration(throttle) * time.Millisecond)
		}
	}()
}

func (m *Manager) handleBrokerDisconnect(broker *Broker) {
	slog.Info("distribution: broker disconnected", "broker", broker.ID)
	broker.Disconnect()
}
