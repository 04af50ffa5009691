// Command producer sends records to a Nyx broker, either once (test mode)
// or continuously while reporting throughput (production mode).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/nyx-project/nyxkit/internal/wire"
)

func main() {
	cmd := &cli.Command{
		Name:  "producer",
		Usage: "send records to a Nyx broker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "brokers", Required: true, Usage: "comma-separated broker addresses"},
			&cli.StringFlag{Name: "topic", Required: true, Usage: "topic to produce to"},
			&cli.StringFlag{Name: "mode", Value: "test", Usage: "test (send one record) or production (send continuously)"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("producer: exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	brokers := strings.Split(cmd.String("brokers"), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return fmt.Errorf("producer: at least one broker address is required")
	}
	topic := cmd.String("topic")

	conn, err := net.Dial("tcp", strings.TrimSpace(brokers[0]))
	if err != nil {
		return fmt.Errorf("producer: connect to broker: %w", err)
	}
	defer conn.Close()

	synced := wire.NewSyncedConn(conn)
	reader := wire.NewReader(conn)
	var bc wire.Broadcast

	if err := bc.To(synced, wire.KindProducerWantsToConnect, wire.ProducerWantsToConnect{Topic: topic}); err != nil {
		return fmt.Errorf("producer: announce topic: %w", err)
	}

	if err := bc.To(synced, wire.KindRequestClusterMetadata, wire.RequestClusterMetadata{}); err != nil {
		return fmt.Errorf("producer: request cluster metadata: %w", err)
	}

	env, err := reader.ReadOne()
	if err != nil {
		return fmt.Errorf("producer: read cluster metadata: %w", err)
	}
	metadata, err := env.DecodeClusterMetadata()
	if err != nil {
		return fmt.Errorf("producer: decode cluster metadata: %w", err)
	}

	replicaID, err := leaderReplicaFor(metadata.Metadata, topic)
	if err != nil {
		return err
	}

	switch cmd.String("mode") {
	case "test":
		return sendOnce(synced, replicaID)
	case "production":
		return sendContinuously(ctx, synced, replicaID)
	default:
		return fmt.Errorf("producer: unrecognized mode %q, want test or production", cmd.String("mode"))
	}
}

func leaderReplicaFor(metadata wire.Metadata, topic string) (string, error) {
	for _, b := range metadata.Brokers {
		for _, p := range b.Partitions {
			if p.Topic.Name == topic {
				return p.ReplicaID, nil
			}
		}
	}
	return "", fmt.Errorf("producer: no partition replica found for topic %q", topic)
}

func sendOnce(conn wire.Conn, replicaID string) error {
	var bc wire.Broadcast
	payload, err := json.Marshal(map[string]any{"sent_at": time.Now().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("producer: marshal payload: %w", err)
	}
	if err := bc.To(conn, wire.KindProducerMessage, wire.ProducerMessage{ReplicaID: replicaID, Payload: payload}); err != nil {
		return fmt.Errorf("producer: send message: %w", err)
	}
	fmt.Println("sent 1 record")
	return nil
}

func sendContinuously(ctx context.Context, conn wire.Conn, replicaID string) error {
	bar := progressbar.Default(-1, "producing")
	defer bar.Close()

	var bc wire.Broadcast
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			payload, err := json.Marshal(map[string]any{"sent_at": time.Now().Format(time.RFC3339Nano)})
			if err != nil {
				return fmt.Errorf("producer: marshal payload: %w", err)
			}
			if err := bc.To(conn, wire.KindProducerMessage, wire.ProducerMessage{ReplicaID: replicaID, Payload: payload}); err != nil {
				return fmt.Errorf("producer: send message: %w", err)
			}
			bar.Add(1)
		}
	}
}
