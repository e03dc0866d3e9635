// pkg/network/server.go
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

	"github.com/opd-ai/go-dogfight/pkg/config"
	"github.com/opd-ai/go-dogfight/pkg/engine"
	"github.com/opd-ai/go-dogfight/pkg/event"
	"github.com/opd-ai/go-dogfight/pkg/logging"
	"github.com/opd-ai/go-dogfight/pkg/validation"
)

// outboundQueueSize is the number of frames buffered per client before
// state updates start being dropped.
const outboundQueueSize = 64

var (
	ErrServerRunning = errors.New("server already started")
	ErrServerFull    = errors.New("server full")
	errDisconnect    = errors.New("client requested disconnect")
)

// Server accepts TCP clients, forwards their commands to the engine and
// streams snapshots back to them.
type Server struct {
	engine    *engine.Engine
	cfg       config.NetworkConfig
	logger    *logging.Logger
	validator *validation.MessageValidator

	listener    net.Listener
	clients     map[string]*clientConn
	clientsLock sync.RWMutex
	nextClient  atomic.Uint64
	tickSub     *event.Subscription

	// set while state updates are too large to frame; cleared by the next
	// update that fits
	oversize atomic.Bool

	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// clientConn is one connected client.
type clientConn struct {
	id   string
	name string
	conn net.Conn

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// enqueue queues a frame, waiting while the client is alive.
func (c *clientConn) enqueue(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	case <-c.done:
		return false
	}
}

// offer queues a frame only if there is room.
func (c *clientConn) offer(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// NewServer creates a server for the given engine.
func NewServer(e *engine.Engine, cfg config.NetworkConfig, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.TicksPerState <= 0 {
		cfg.TicksPerState = 1
	}
	return &Server{
		engine:    e,
		cfg:       cfg,
		logger:    logger,
		validator: validation.NewMessageValidator(cfg.CommandsPerSecond, time.Second),
		clients:   make(map[string]*clientConn),
		done:      make(chan struct{}),
	}
}

// Start listens on address and begins accepting clients. An address with
// port 0 picks a free port; Addr reports it.
func (s *Server) Start(address string) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerRunning
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.tickSub = s.engine.EventBus.Subscribe(event.TickCompleted, s.broadcastState)

	s.wg.Add(1)
	go s.acceptConnections()

	s.logger.Info(context.Background(), "dogfight server started", "address", listener.Addr().String())
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of clients that completed the handshake.
func (s *Server) ClientCount() int {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	return len(s.clients)
}

// Stop disconnects every client and waits for all connection goroutines.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		if s.tickSub != nil {
			s.tickSub.Cancel()
		}

		s.clientsLock.RLock()
		for _, c := range s.clients {
			c.close()
		}
		s.clientsLock.RUnlock()

		s.wg.Wait()
		s.validator.Close()
		s.logger.Info(context.Background(), "dogfight server stopped")
	})
}

func (s *Server) stopping() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// acceptConnections accepts new client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping() {
				return
			}
			s.logger.Error(context.Background(), "error accepting connection", err)
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) reject(conn net.Conn, reason string) {
	s.setWriteDeadline(conn)
	WriteMessage(conn, ErrorResponse, ErrorMessage{Error: reason})
	conn.Close()
}

func (s *Server) setWriteDeadline(conn net.Conn) {
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
}

func (s *Server) setReadDeadline(conn net.Conn) {
	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

// handleConnection runs the handshake and then the read loop of a client.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	ctx := logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID())
	client, err := s.handshake(ctx, conn)
	if err != nil {
		s.logger.Warn(ctx, "handshake failed", "remote", conn.RemoteAddr().String(), "error", err.Error())
		s.reject(conn, err.Error())
		return
	}

	s.addClient(ctx, client)
	defer s.removeClient(ctx, client)

	s.wg.Add(1)
	go s.writeLoop(client)

	if err := s.readLoop(ctx, client); err != nil && !errors.Is(err, errDisconnect) && !s.stopping() {
		s.logger.Debug(ctx, "client read loop ended", "client_id", client.id, "error", err.Error())
	}
}

func (s *Server) handshake(ctx context.Context, conn net.Conn) (*clientConn, error) {
	s.setReadDeadline(conn)
	msgType, data, err := ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if msgType != HelloRequest {
		return nil, fmt.Errorf("expected %s, got %s", HelloRequest, msgType)
	}

	var hello Hello
	if err := json.Unmarshal(data, &hello); err != nil {
		return nil, fmt.Errorf("parse hello: %w", err)
	}
	name, err := validation.ValidateClientName(hello.Name)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxClients > 0 && s.ClientCount() >= s.cfg.MaxClients {
		return nil, ErrServerFull
	}

	client := &clientConn{
		id:   fmt.Sprintf("client-%d", s.nextClient.Add(1)),
		name: name,
		conn: conn,
		out:  make(chan []byte, outboundQueueSize),
		done: make(chan struct{}),
	}

	welcome := Welcome{
		ClientID: client.id,
		Tick:     s.engine.CurrentTick(),
		Limits:   s.engine.Limits(),
	}
	s.setWriteDeadline(conn)
	if err := WriteMessage(conn, WelcomeResponse, welcome); err != nil {
		return nil, fmt.Errorf("send welcome: %w", err)
	}

	s.logger.Info(ctx, "client connected", "client_id", client.id, "name", client.name)
	return client, nil
}

func (s *Server) addClient(ctx context.Context, c *clientConn) {
	s.clientsLock.Lock()
	s.clients[c.id] = c
	s.clientsLock.Unlock()
	if s.stopping() {
		c.close()
	}

	s.engine.EventBus.Publish(event.NewLifecycleEvent(event.ClientConnected, s, s.engine.CurrentTick(), c.id))
}

func (s *Server) removeClient(ctx context.Context, c *clientConn) {
	c.close()

	s.clientsLock.Lock()
	delete(s.clients, c.id)
	s.clientsLock.Unlock()

	s.validator.Forget(c.id)
	s.logger.Info(ctx, "client disconnected", "client_id", c.id)
	s.engine.EventBus.Publish(event.NewLifecycleEvent(event.ClientLeft, s, s.engine.CurrentTick(), c.id))
}

// writeLoop is the only writer to a client's connection after the
// handshake.
func (s *Server) writeLoop(c *clientConn) {
	defer s.wg.Done()
	for {
		select {
		case frame := <-c.out:
			s.setWriteDeadline(c.conn)
			if _, err := c.conn.Write(frame); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *clientConn) error {
	for {
		s.setReadDeadline(c.conn)
		msgType, data, err := ReadMessage(c.conn)
		if err != nil {
			return err
		}
		if err := s.handleMessage(ctx, c, msgType, data); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, c *clientConn, msgType MessageType, data []byte) error {
	switch msgType {
	case DisconnectNotification:
		return errDisconnect

	case PingRequest:
		var ping PingMessage
		if err := json.Unmarshal(data, &ping); err != nil {
			s.sendError(c, "invalid ping")
			return nil
		}
		s.send(c, PingResponse, ping)
		return nil

	case SetHeadingRequest, SetInertialRequest, SpawnRequest:
		s.handleCommand(ctx, c, msgType, data)
		return nil

	default:
		s.sendError(c, fmt.Sprintf("unexpected message type %s", msgType))
		return nil
	}
}

func (s *Server) handleCommand(ctx context.Context, c *clientConn, msgType MessageType, data []byte) {
	kind, _ := commandKindFor(msgType)

	var header requestHeader
	refuse := func(reason string) {
		s.logger.Debug(ctx, "command refused", "client_id", c.id, "kind", kind.String(), "reason", reason)
		s.send(c, CommandResult, CommandResultMessage{
			RequestID: header.RequestID,
			FighterID: header.FighterID,
			Kind:      kind.String(),
			Error:     reason,
		})
	}

	if err := s.validator.ValidateMessage(data, c.id); err != nil {
		refuse(err.Error())
		return
	}

	// valid JSON can still carry the wrong field types
	if err := json.Unmarshal(data, &header); err != nil {
		refuse(fmt.Sprintf("malformed %s payload: %v", msgType, err))
		return
	}

	cmd, err := decodeCommand(msgType, data)
	if err != nil {
		refuse(err.Error())
		return
	}

	if err := validation.ValidateFighterID(cmd.FighterID); err != nil {
		refuse(err.Error())
		return
	}

	result := s.engine.Submit(cmd)
	s.wg.Add(1)
	go s.awaitResult(c, header.RequestID, cmd, result)
}

// awaitResult forwards the engine's verdict on a command once the next
// tick has applied it.
func (s *Server) awaitResult(c *clientConn, requestID uint64, cmd engine.Command, result <-chan bool) {
	defer s.wg.Done()

	msg := CommandResultMessage{
		RequestID: requestID,
		FighterID: cmd.FighterID,
		Kind:      cmd.Kind.String(),
	}

	var timeout <-chan time.Time
	if s.cfg.CommandTimeout > 0 {
		timer := time.NewTimer(s.cfg.CommandTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ok := <-result:
		msg.Accepted = ok
	case <-timeout:
		msg.Error = "command timed out"
	case <-c.done:
		return
	case <-s.done:
		return
	}
	s.send(c, CommandResult, msg)
}

func (s *Server) send(c *clientConn, msgType MessageType, msg interface{}) {
	frame, err := EncodeMessage(msgType, msg)
	if err != nil {
		s.logger.Error(context.Background(), "failed to encode message", err, "type", msgType.String())
		return
	}
	c.enqueue(frame)
}

func (s *Server) sendError(c *clientConn, reason string) {
	s.send(c, ErrorResponse, ErrorMessage{Error: reason})
}

// broadcastState sends the tick's snapshot to every client, every
// TicksPerState ticks. Clients whose queue is full miss the update.
func (s *Server) broadcastState(ev event.Event) {
	te, ok := ev.(*event.TickEvent)
	if !ok || te.Snapshot == nil {
		return
	}
	if te.Tick%uint64(s.cfg.TicksPerState) != 0 {
		return
	}

	frame, err := EncodeMessage(StateUpdate, te.Snapshot)
	if errors.Is(err, ErrMessageTooLarge) {
		s.reportOversize(te, err)
		return
	}
	if err != nil {
		s.logger.Error(context.Background(), "failed to encode state update", err,
			"tick", te.Tick,
			"fighters", len(te.Snapshot.Fighters),
		)
		return
	}
	s.oversize.Store(false)

	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	for _, c := range s.clients {
		if !c.offer(frame) {
			s.logger.Debug(context.Background(), "dropped state update", "client_id", c.id, "tick", te.Tick)
		}
	}
}

// reportOversize tells every connected client, once per oversize episode,
// that state updates are suspended because the snapshot no longer fits in
// a frame.
func (s *Server) reportOversize(te *event.TickEvent, err error) {
	if !s.oversize.CompareAndSwap(false, true) {
		return
	}
	s.logger.Error(context.Background(), "state updates suspended", err,
		"tick", te.Tick,
		"fighters", len(te.Snapshot.Fighters),
		"max_frame", MaxFrameSize,
	)

	notice, encErr := EncodeMessage(ErrorResponse, ErrorMessage{
		Error: fmt.Sprintf("state update for tick %d exceeds %d bytes, updates suspended", te.Tick, MaxFrameSize),
	})
	if encErr != nil {
		return
	}

	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	for _, c := range s.clients {
		c.offer(notice)
	}
}
