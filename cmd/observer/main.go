// Command observer runs Nyx's control-plane process: it accepts broker and
// follower-observer connections, places partition replicas across brokers,
// and serves an interactive command prompt on stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	nyxcli "github.com/nyx-project/nyxkit/internal/cli"
	"github.com/nyx-project/nyxkit/internal/config"
	"github.com/nyx-project/nyxkit/internal/distribution"
	"github.com/nyx-project/nyxkit/internal/wire"
)

func main() {
	cmd := &cli.Command{
		Name:  "observer",
		Usage: "run Nyx's control-plane process",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: ":7000", Usage: "address to listen on for brokers and followers"},
			&cli.StringFlag{Name: "config", Value: "nyx.conf", Usage: "path to the key=value config file"},
			&cli.StringFlag{Name: "name", Value: "", Usage: "instance name, to keep separate cluster state for multiple observers on one host"},
		},
		ArgsUsage: "[peer-observer-hosts]",
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("observer: exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("observer: load config: %w", err)
	}

	mgr, err := distribution.New(cfg, cmd.String("name"))
	if err != nil {
		return fmt.Errorf("observer: build distribution manager: %w", err)
	}

	listener, err := net.Listen("tcp", cmd.String("listen"))
	if err != nil {
		return fmt.Errorf("observer: listen: %w", err)
	}
	defer listener.Close()

	slog.Info("observer: listening", "addr", listener.Addr())

	go acceptLoop(listener, mgr)

	for _, host := range parseHosts(cmd.Args().First()) {
		go connectFollower(host, mgr)
	}

	return runPrompt(mgr)
}

func parseHosts(hosts string) []string {
	return strings.Fields(hosts)
}

func acceptLoop(listener net.Listener, mgr *distribution.Manager) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			slog.Error("observer: accept failed", "error", err)
			return
		}
		go func() {
			if err := mgr.Accept(conn); err != nil {
				slog.Warn("observer: rejected connection", "remote", conn.RemoteAddr(), "error", err)
				conn.Close()
			}
		}()
	}
}

// connectFollower dials a peer observer and registers with it as a
// metadata-only follower, the supplemented counterpart to an incoming
// RequestClusterMetadata handshake handled by Manager.Accept.
func connectFollower(host string, mgr *distribution.Manager) {
	conn, err := net.Dial("tcp", host)
	if err != nil {
		slog.Warn("observer: could not reach peer observer", "host", host, "error", err)
		return
	}

	var bc wire.Broadcast
	if err := bc.To(wire.NewSyncedConn(conn), wire.KindRequestClusterMetadata, wire.RequestClusterMetadata{}); err != nil {
		slog.Warn("observer: follower handshake failed", "host", host, "error", err)
		conn.Close()
		return
	}

	reader := wire.NewReader(conn)
	env, err := reader.ReadOne()
	if err != nil {
		slog.Warn("observer: no metadata from peer observer", "host", host, "error", err)
		conn.Close()
		return
	}

	metadata, err := env.DecodeClusterMetadata()
	if err != nil {
		slog.Warn("observer: malformed metadata from peer observer", "host", host, "error", err)
		conn.Close()
		return
	}

	slog.Info("observer: attached as follower", "host", host, "brokers", len(metadata.Metadata.Brokers))
}

func runPrompt(mgr *distribution.Manager) error {
	processor := nyxcli.NewProcessor(bufio.NewReader(os.Stdin))

	for {
		cmd, err := processor.ReadCommand()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("observer: read command: %w", err)
		}

		output, err := nyxcli.Dispatch(mgr, cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			continue
		}
		fmt.Println(output)
	}
}
