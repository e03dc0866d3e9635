// cmd/client/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/go-dogfight/pkg/breaker"
	"github.com/opd-ai/go-dogfight/pkg/config"
	"github.com/opd-ai/go-dogfight/pkg/entity"
	"github.com/opd-ai/go-dogfight/pkg/logging"
	"github.com/opd-ai/go-dogfight/pkg/network"
)

func main() {
	cfg := config.DefaultConfig()
	if err := config.ApplyEnvironmentOverrides(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	serverAddr := flag.String("addr", cfg.Network.ServerAddress, "Server address")
	name := flag.String("name", "pilot", "Client name")
	fighterID := flag.String("id", "", "Fighter ID to command")
	heading := flag.Int("heading", -1, "Desired heading to set")
	spawn := flag.String("spawn", "", "Spawn the fighter with heading,speed,x,y")
	states := flag.Int("states", 0, "Number of state updates to print before exiting")
	flag.Parse()

	logger := logging.NewLoggerWithLevel(cfg.Logging.Level)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	brk := breaker.New("dial", cfg.Breaker, logger, breaker.WithRetry(3, 500*time.Millisecond))
	client := network.NewClient(cfg.Network, brk, logger)
	if err := client.Connect(ctx, *serverAddr, *name); err != nil {
		logger.Error(ctx, "Failed to connect to server", err, "address", *serverAddr)
		os.Exit(1)
	}
	defer client.Close()

	if err := sendCommands(ctx, client, *fighterID, *spawn, *heading); err != nil {
		logger.Error(ctx, "Command failed", err, "fighter_id", *fighterID)
		os.Exit(1)
	}

	printStates(ctx, client, *states)
}

func sendCommands(ctx context.Context, client *network.Client, id, spawn string, heading int) error {
	if id == "" {
		if spawn != "" || heading >= 0 {
			return fmt.Errorf("-id is required with -spawn or -heading")
		}
		return nil
	}

	if spawn != "" {
		var h, s, x, y int
		if _, err := fmt.Sscanf(spawn, "%d,%d,%d,%d", &h, &s, &x, &y); err != nil {
			return fmt.Errorf("parse -spawn %q: %w", spawn, err)
		}
		ok, err := client.Spawn(ctx, id, h, s, x, y)
		if err != nil {
			return err
		}
		fmt.Printf("spawn %s: %s\n", id, verdict(ok))
	}

	if heading >= 0 {
		ok, err := client.SetHeading(ctx, id, heading)
		if err != nil {
			return err
		}
		fmt.Printf("set heading %s to %d: %s\n", id, heading, verdict(ok))
	}
	return nil
}

func verdict(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

func printStates(ctx context.Context, client *network.Client, n int) {
	for i := 0; i < n; i++ {
		select {
		case snap, ok := <-client.States():
			if !ok {
				return
			}
			printSnapshot(snap)
		case <-ctx.Done():
			return
		}
	}
}

func printSnapshot(snap *entity.Snapshot) {
	fmt.Printf("tick %d (%d fighters)\n", snap.Tick, len(snap.Fighters))
	for _, f := range snap.Fighters {
		fmt.Printf("  %-16s heading %3d -> %3d  speed %4d  at (%d, %d)\n",
			f.ID, f.CurrentHeading, f.DesiredHeading, f.CurrentSpeed, f.X, f.Y)
	}
}
