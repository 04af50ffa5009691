// Package wire implements Nyx's transport framing: newline-delimited JSON
// messages exchanged between producers, brokers, and the observer.
package wire

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the tagged-union Message variants by name on the wire.
type Kind string

const (
	KindBrokerConnectionDetails Kind = "BrokerConnectionDetails"
	KindCreatePartition         Kind = "CreatePartition"
	KindClusterMetadata         Kind = "ClusterMetadata"
	KindRequestClusterMetadata  Kind = "RequestClusterMetadata"
	KindProducerWantsToConnect  Kind = "ProducerWantsToConnect"
	KindProducerMessage         Kind = "ProducerMessage"
)

// Envelope is the on-the-wire shape: a discriminator plus a raw payload
// whose shape depends on Kind. One envelope, newline-terminated, is one
// frame.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// BrokerConnectionDetails is the broker -> observer handshake payload.
type BrokerConnectionDetails struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// TopicRef is the {name, partition_count} shape embedded in CreatePartition.
type TopicRef struct {
	Name           string `json:"name"`
	PartitionCount int    `json:"partition_count"`
}

// CreatePartition is the observer -> broker placement command.
type CreatePartition struct {
	ID              string   `json:"id"`
	ReplicaID       string   `json:"replica_id"`
	Topic           TopicRef `json:"topic"`
	PartitionNumber int      `json:"partition_number"`
	ReplicaCount    int      `json:"replica_count"`
}

// ClusterMetadata carries a full metadata snapshot, broadcast by the
// observer to brokers and follower observers.
type ClusterMetadata struct {
	Metadata Metadata `json:"metadata"`
}

// RequestClusterMetadata is a producer -> broker request for the cluster
// metadata snapshot.
type RequestClusterMetadata struct{}

// ProducerWantsToConnect is an informational producer -> broker message.
type ProducerWantsToConnect struct {
	Topic string `json:"topic"`
}

// ProducerMessage carries one record from a producer to the broker hosting
// the target replica.
type ProducerMessage struct {
	ReplicaID string          `json:"replica_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode wraps a typed payload in an Envelope for transmission.
func Encode(kind Kind, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: encode %s: %w", kind, err)
	}
	return Envelope{Kind: kind, Payload: raw}, nil
}

// DecodeBrokerConnectionDetails unwraps the payload of a
// BrokerConnectionDetails envelope.
func (e Envelope) DecodeBrokerConnectionDetails() (BrokerConnectionDetails, error) {
	var v BrokerConnectionDetails
	err := e.decode(KindBrokerConnectionDetails, &v)
	return v, err
}

// DecodeCreatePartition unwraps the payload of a CreatePartition envelope.
func (e Envelope) DecodeCreatePartition() (CreatePartition, error) {
	var v CreatePartition
	err := e.decode(KindCreatePartition, &v)
	return v, err
}

// DecodeClusterMetadata unwraps the payload of a ClusterMetadata envelope.
func (e Envelope) DecodeClusterMetadata() (ClusterMetadata, error) {
	var v ClusterMetadata
	err := e.decode(KindClusterMetadata, &v)
	return v, err
}

// DecodeProducerWantsToConnect unwraps a ProducerWantsToConnect envelope.
func (e Envelope) DecodeProducerWantsToConnect() (ProducerWantsToConnect, error) {
	var v ProducerWantsToConnect
	err := e.decode(KindProducerWantsToConnect, &v)
	return v, err
}

// DecodeProducerMessage unwraps a ProducerMessage envelope.
func (e Envelope) DecodeProducerMessage() (ProducerMessage, error) {
	var v ProducerMessage
	err := e.decode(KindProducerMessage, &v)
	return v, err
}

func (e Envelope) decode(want Kind, v any) error {
	if e.Kind != want {
		return fmt.Errorf("wire: expected %s, got %s", want, e.Kind)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("wire: decode %s: %w", want, err)
	}
	return nil
}
