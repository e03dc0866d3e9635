package network

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-dogfight/pkg/physics"
)

// stalledPeer accepts one client, answers its hello and then never reads
// from the connection again.
func stalledPeer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		if _, _, err := ReadMessage(conn); err == nil {
			WriteMessage(conn, WelcomeResponse, Welcome{ClientID: "client-1", Limits: physics.DefaultLimits()})
		}
		accepted <- conn
	}()

	t.Cleanup(func() {
		if conn, ok := <-accepted; ok {
			conn.Close()
		}
	})
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

// With no write timeout a write to a peer that stopped reading blocks
// forever; Close must still return and release that writer.
func TestClient_CloseWithStalledPeer(t *testing.T) {
	cfg := testNetworkConfig()
	cfg.ReadTimeout = 0
	cfg.WriteTimeout = 0

	c := NewClient(cfg, nil, nil)
	require.NoError(t, c.Connect(context.Background(), stalledPeer(t), "pilot"))

	var writes atomic.Int64
	writerDone := make(chan error, 1)
	big := SetHeadingMessage{FighterID: strings.Repeat("x", 60000)}
	go func() {
		for {
			if err := c.write(SetHeadingRequest, big); err != nil {
				writerDone <- err
				return
			}
			writes.Add(1)
		}
	}()

	// The writer is stuck once the socket buffers are full and the count
	// stops moving.
	require.Eventually(t, func() bool {
		n := writes.Load()
		time.Sleep(100 * time.Millisecond)
		return n > 0 && writes.Load() == n
	}, 10*time.Second, 10*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked behind a stalled write")
	}

	select {
	case err := <-writerDone:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked writer was not released")
	}
	assert.NoError(t, c.Err(), "a requested close is not a connection error")
}

func TestClient_CloseTwice(t *testing.T) {
	cfg := testNetworkConfig()
	_, srv := startTestServer(t, cfg)

	c := NewClient(cfg, nil, nil)
	require.NoError(t, c.Connect(context.Background(), srv.Addr().String(), "pilot"))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}
