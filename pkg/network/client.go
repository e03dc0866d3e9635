// pkg/network/client.go
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-dogfight/pkg/breaker"
	"github.com/opd-ai/go-dogfight/pkg/config"
	"github.com/opd-ai/go-dogfight/pkg/entity"
	"github.com/opd-ai/go-dogfight/pkg/logging"
	"github.com/opd-ai/go-dogfight/pkg/physics"
)

const (
	stateBufferSize   = 16
	disconnectTimeout = time.Second
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	// ErrCommandRefused is returned when the server refused a command
	// before it reached the simulation.
	ErrCommandRefused = errors.New("command refused")
)

// Client is a connection to a dogfight server.
type Client struct {
	cfg     config.NetworkConfig
	breaker *breaker.Service
	logger  *logging.Logger

	conn      net.Conn
	writeMu   sync.Mutex
	clientID  string
	limits    physics.Limits
	connected atomic.Bool

	nextRequest atomic.Uint64
	pendingMu   sync.Mutex
	pending     map[uint64]chan CommandResultMessage
	pings       map[uint64]chan PingMessage

	states    chan *entity.Snapshot
	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
	errMu     sync.Mutex
	err       error
	wg        sync.WaitGroup
}

// NewClient creates an unconnected client. A nil breaker disables retries.
func NewClient(cfg config.NetworkConfig, brk *breaker.Service, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		cfg:     cfg,
		breaker: brk,
		logger:  logger,
		pending: make(map[uint64]chan CommandResultMessage),
		pings:   make(map[uint64]chan PingMessage),
		states:  make(chan *entity.Snapshot, stateBufferSize),
		done:    make(chan struct{}),
	}
}

// Connect dials address and performs the handshake. With a breaker the
// attempt is retried and guarded by the circuit.
func (c *Client) Connect(ctx context.Context, address, name string) error {
	if !c.connected.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}

	op := func() error { return c.dial(ctx, address, name) }
	var err error
	if c.breaker != nil {
		err = c.breaker.ExecuteWithRetry(ctx, op)
	} else {
		err = op()
	}
	if err != nil {
		c.connected.Store(false)
		return err
	}

	c.wg.Add(1)
	go c.readLoop()
	if interval := c.pingInterval(); interval > 0 {
		c.wg.Add(1)
		go c.pingLoop(interval)
	}

	c.logger.Info(ctx, "connected to server", "address", address, "client_id", c.clientID)
	return nil
}

func (c *Client) dial(ctx context.Context, address, name string) error {
	dialer := net.Dialer{Timeout: c.cfg.ReadTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	if err := c.handshake(conn, name); err != nil {
		conn.Close()
		return err
	}
	c.conn = conn
	return nil
}

func (c *Client) handshake(conn net.Conn, name string) error {
	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := WriteMessage(conn, HelloRequest, Hello{Name: name}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	if c.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	msgType, data, err := ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	conn.SetDeadline(time.Time{})

	switch msgType {
	case WelcomeResponse:
		var welcome Welcome
		if err := json.Unmarshal(data, &welcome); err != nil {
			return fmt.Errorf("parse welcome: %w", err)
		}
		c.clientID = welcome.ClientID
		c.limits = welcome.Limits
		return nil
	case ErrorResponse:
		var msg ErrorMessage
		json.Unmarshal(data, &msg)
		return fmt.Errorf("server rejected connection: %s", msg.Error)
	default:
		return fmt.Errorf("expected %s, got %s", WelcomeResponse, msgType)
	}
}

func (c *Client) pingInterval() time.Duration {
	return c.cfg.ReadTimeout / 3
}

// ClientID returns the ID assigned by the server.
func (c *Client) ClientID() string {
	return c.clientID
}

// Limits returns the arena limits announced by the server.
func (c *Client) Limits() physics.Limits {
	return c.limits
}

// States delivers state updates. Updates are dropped while the buffer is
// full. The channel is closed when the connection ends.
func (c *Client) States() <-chan *entity.Snapshot {
	return c.states
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// SetHeading asks for a new desired heading. It returns the engine's
// verdict once the command has been applied.
func (c *Client) SetHeading(ctx context.Context, fighterID string, heading int) (bool, error) {
	id := c.nextRequest.Add(1)
	return c.command(ctx, id, SetHeadingRequest, SetHeadingMessage{
		RequestID: id,
		FighterID: fighterID,
		Heading:   heading,
	})
}

// SetInertial replaces the full inertial state of an existing fighter.
func (c *Client) SetInertial(ctx context.Context, fighterID string, heading, speed, x, y int) (bool, error) {
	return c.inertial(ctx, SetInertialRequest, fighterID, heading, speed, x, y)
}

// Spawn registers a new fighter with the given inertial state.
func (c *Client) Spawn(ctx context.Context, fighterID string, heading, speed, x, y int) (bool, error) {
	return c.inertial(ctx, SpawnRequest, fighterID, heading, speed, x, y)
}

func (c *Client) inertial(ctx context.Context, msgType MessageType, fighterID string, heading, speed, x, y int) (bool, error) {
	id := c.nextRequest.Add(1)
	return c.command(ctx, id, msgType, InertialMessage{
		RequestID: id,
		FighterID: fighterID,
		Heading:   heading,
		Speed:     speed,
		X:         x,
		Y:         y,
	})
}

func (c *Client) command(ctx context.Context, id uint64, msgType MessageType, msg interface{}) (bool, error) {
	if !c.connected.Load() {
		return false, ErrNotConnected
	}

	result := make(chan CommandResultMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = result
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(msgType, msg); err != nil {
		return false, err
	}

	select {
	case res := <-result:
		if res.Error != "" {
			return false, fmt.Errorf("%w: %s", ErrCommandRefused, res.Error)
		}
		return res.Accepted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.done:
		return false, ErrNotConnected
	}
}

// Ping measures the round trip to the server.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	if !c.connected.Load() {
		return 0, ErrNotConnected
	}

	id := c.nextRequest.Add(1)
	reply := make(chan PingMessage, 1)
	c.pendingMu.Lock()
	c.pings[id] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pings, id)
		c.pendingMu.Unlock()
	}()

	sent := time.Now()
	if err := c.write(PingRequest, PingMessage{RequestID: id, Sent: sent}); err != nil {
		return 0, err
	}

	select {
	case <-reply:
		return time.Since(sent), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, ErrNotConnected
	}
}

func (c *Client) write(msgType MessageType, msg interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	if c.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := WriteMessage(c.conn, msgType, msg); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}

// readLoop handles incoming messages from the server
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.states)

	for {
		msgType, data, err := ReadMessage(c.conn)
		if err != nil {
			c.shutdown(err)
			return
		}

		switch msgType {
		case StateUpdate:
			c.handleStateUpdate(data)
		case CommandResult:
			c.handleCommandResult(data)
		case PingResponse:
			c.handlePingResponse(data)
		case ErrorResponse:
			var msg ErrorMessage
			if json.Unmarshal(data, &msg) == nil {
				c.logger.Warn(context.Background(), "server reported error", "error", msg.Error)
			}
		case DisconnectNotification:
			c.shutdown(errDisconnect)
			return
		default:
			// Ignore unknown message types
		}
	}
}

func (c *Client) handleStateUpdate(data []byte) {
	snap, err := entity.UnmarshalSnapshot(data)
	if err != nil {
		c.logger.Debug(context.Background(), "invalid state update", "error", err.Error())
		return
	}

	select {
	case c.states <- snap:
	default:
		// Channel full, drop the state
	}
}

func (c *Client) handleCommandResult(data []byte) {
	var res CommandResultMessage
	if err := json.Unmarshal(data, &res); err != nil {
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[res.RequestID]
	c.pendingMu.Unlock()
	if ok {
		ch <- res
	}
}

func (c *Client) handlePingResponse(data []byte) {
	var ping PingMessage
	if err := json.Unmarshal(data, &ping); err != nil {
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pings[ping.RequestID]
	c.pendingMu.Unlock()
	if ok {
		ch <- ping
	}
}

// pingLoop keeps the connection inside the server's read timeout.
func (c *Client) pingLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			latency, err := c.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Debug(ctx, "ping failed", "error", err.Error())
				continue
			}
			c.logger.Debug(ctx, "ping", "latency", latency.String())
		case <-c.done:
			return
		}
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		if !errors.Is(err, errDisconnect) && !c.closing.Load() {
			c.err = err
		}
		c.errMu.Unlock()

		// closing the socket first unblocks a writer stuck on a peer
		// that stopped reading
		c.conn.Close()
		c.writeMu.Lock()
		close(c.done)
		c.writeMu.Unlock()
	})
}

// notifyDisconnect tells the server we are leaving. It is skipped when
// another write holds the connection, and never waits longer than
// disconnectTimeout on the socket.
func (c *Client) notifyDisconnect() {
	if !c.writeMu.TryLock() {
		return
	}
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return
	default:
	}
	c.conn.SetWriteDeadline(time.Now().Add(disconnectTimeout))
	WriteMessage(c.conn, DisconnectNotification, struct{}{})
}

// Close notifies the server, closes the connection and waits for the
// background goroutines to exit.
func (c *Client) Close() error {
	if !c.connected.Load() {
		return nil
	}

	c.closing.Store(true)
	c.notifyDisconnect()
	c.shutdown(errDisconnect)
	c.wg.Wait()
	return nil
}
