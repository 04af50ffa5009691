package wire

// Status is a broker's or partition replica's liveness/lifecycle state.
type Status string

const (
	StatusPendingCreation Status = "PendingCreation"
	StatusUp              Status = "Up"
	StatusDown            Status = "Down"
)

// Role distinguishes a partition replica's leader/follower position.
type Role string

const (
	RoleLeader   Role = "Leader"
	RoleFollower Role = "Follower"
)

// Topic is a named, partition-counted unit within the cluster.
type Topic struct {
	Name           string `json:"name"`
	PartitionCount int    `json:"partition_count"`
}

// PartitionDetails is one partition replica as carried in a cluster
// metadata snapshot.
type PartitionDetails struct {
	ID              string `json:"id"`
	ReplicaID       string `json:"replica_id"`
	Topic           Topic  `json:"topic"`
	PartitionNumber int    `json:"partition_number"`
	ReplicaCount    int    `json:"replica_count"`
	Role            Role   `json:"role"`
	Status          Status `json:"status"`
}

// BrokerDetails is one broker as carried in a cluster metadata snapshot.
type BrokerDetails struct {
	ID         string             `json:"id"`
	Addr       string             `json:"addr"`
	Status     Status             `json:"status"`
	Partitions []PartitionDetails `json:"partitions"`
}

// Metadata is the full cluster snapshot: every broker (with its hosted
// partitions) and every topic, serialized as JSON for persistence and
// transport.
type Metadata struct {
	Brokers []BrokerDetails `json:"brokers"`
	Topics  []Topic         `json:"topics"`
}
