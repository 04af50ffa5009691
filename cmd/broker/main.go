// Command broker runs Nyx's data-plane process: it connects to the
// observer, hosts whatever partition replicas it is told to, and serves
// producer connections.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/nyx-project/nyxkit/internal/broker"
)

func main() {
	cmd := &cli.Command{
		Name:      "broker",
		Usage:     "run Nyx's data-plane process",
		ArgsUsage: "<observer-address>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: ":0", Usage: "address to listen on for producers"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("broker: exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	observerAddr := cmd.Args().First()
	if observerAddr == "" {
		return fmt.Errorf("broker: an observer address is required")
	}

	listener, err := net.Listen("tcp", cmd.String("listen"))
	if err != nil {
		return fmt.Errorf("broker: listen: %w", err)
	}
	defer listener.Close()

	rt := broker.NewRuntime(uuid.NewString(), listener.Addr().String())
	defer rt.Close()

	conn, err := dialWithBackoff(ctx, observerAddr)
	if err != nil {
		return fmt.Errorf("broker: connect to observer: %w", err)
	}

	if err := rt.ConnectObserver(conn); err != nil {
		return fmt.Errorf("broker: handshake with observer: %w", err)
	}

	slog.Info("broker: ready", "id", rt.ID(), "listen", listener.Addr(), "observer", observerAddr)

	return rt.Serve(listener)
}

// dialWithBackoff retries the observer connection with an incrementing
// sleep: 1000ms initially, +1500ms per failed attempt.
func dialWithBackoff(ctx context.Context, addr string) (net.Conn, error) {
	sleep := 1000 * time.Millisecond

	for {
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}

		slog.Info("broker: waiting for observer", "addr", addr, "retry_in", sleep)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}

		sleep += 1500 * time.Millisecond
	}
}
