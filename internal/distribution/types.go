// Package distribution implements the observer's control-plane state: the
// broker and topic registry, replica placement, and cluster metadata
// broadcast.
package distribution

import (
	"sync"

	"github.com/nyx-project/nyxkit/internal/wire"
)

// Topic is a mutable, shared topic record: every Partition that belongs to
// it holds a pointer to the same Topic.
type Topic struct {
	mu             sync.Mutex
	Name           string
	PartitionCount int
}

// NewTopic creates a topic with zero partitions.
func NewTopic(name string) *Topic {
	return &Topic{Name: name}
}

// NextPartitionNumber increments and returns the topic's partition count.
func (t *Topic) NextPartitionNumber() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.PartitionCount++
	return t.PartitionCount
}

// Snapshot returns a value copy suitable for wire transport.
func (t *Topic) Snapshot() wire.Topic {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wire.Topic{Name: t.Name, PartitionCount: t.PartitionCount}
}

// Partition is one replica of one partition of one topic, as tracked by the
// observer.
type Partition struct {
	ID              string
	ReplicaID       string
	Topic           *Topic
	PartitionNumber int
	ReplicaCount    int
	Role            wire.Role
	Status          wire.Status
}

// Snapshot returns a value copy suitable for wire transport.
func (p *Partition) Snapshot() wire.PartitionDetails {
	return wire.PartitionDetails{
		ID:              p.ID,
		ReplicaID:       p.ReplicaID,
		Topic:           p.Topic.Snapshot(),
		PartitionNumber: p.PartitionNumber,
		ReplicaCount:    p.ReplicaCount,
		Role:            p.Role,
		Status:          p.Status,
	}
}

// Broker is one connected (or previously connected, now Down) broker
// process, with the partition replicas it hosts.
type Broker struct {
	mu         sync.Mutex
	ID         string
	Addr       string
	Conn       *wire.SyncedConn
	Partitions []*Partition
	Status     wire.Status
}

// Restore marks a previously Down broker Up again on a fresh connection,
// and brings all of its hosted partitions back Up with it.
func (b *Broker) Restore(conn *wire.SyncedConn, addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = wire.StatusUp
	b.Addr = addr
	b.Conn = conn
	for _, p := range b.Partitions {
		p.Status = wire.StatusUp
	}
}

// Disconnect marks the broker and all of its hosted partitions Down.
func (b *Broker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = wire.StatusDown
	b.Conn = nil
	for _, p := range b.Partitions {
		p.Status = wire.StatusDown
	}
}

// AddPartition appends a replica to the broker's hosted set.
func (b *Broker) AddPartition(p *Partition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Partitions = append(b.Partitions, p)
}

// PartitionCount returns the number of replicas currently hosted.
func (b *Broker) PartitionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Partitions)
}

// HostsPartition reports whether the broker already hosts a replica of the
// given partition id, the placement algorithm's tie-break exclusion.
func (b *Broker) HostsPartition(partitionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.Partitions {
		if p.ID == partitionID {
			return true
		}
	}
	return false
}

// Snapshot returns a value copy suitable for wire transport.
func (b *Broker) Snapshot() wire.BrokerDetails {
	b.mu.Lock()
	defer b.mu.Unlock()
	partitions := make([]wire.PartitionDetails, len(b.Partitions))
	for i, p := range b.Partitions {
		partitions[i] = p.Snapshot()
	}
	return wire.BrokerDetails{
		ID:         b.ID,
		Addr:       b.Addr,
		Status:     b.Status,
		Partitions: partitions,
	}
}

// pendingReplica is a partition still waiting on enough brokers to join the
// cluster to reach its target replica factor.
type pendingReplica struct {
	remaining int
	partition *Partition
}
