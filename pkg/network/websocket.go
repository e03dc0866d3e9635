// pkg/network/websocket.go
package network

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-dogfight/pkg/config"
	"github.com/opd-ai/go-dogfight/pkg/engine"
	"github.com/opd-ai/go-dogfight/pkg/event"
	"github.com/opd-ai/go-dogfight/pkg/logging"
)

// Feed streams snapshots to read-only websocket viewers. Each message is
// one JSON-encoded snapshot.
type Feed struct {
	engine   *engine.Engine
	logger   *logging.Logger
	upgrader websocket.Upgrader

	writeTimeout time.Duration
	every        uint64

	mu      sync.Mutex
	viewers map[*viewer]struct{}
	closed  bool
	sub     *event.Subscription
}

type viewer struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (v *viewer) close() {
	v.once.Do(func() {
		close(v.done)
		v.conn.Close()
	})
}

// NewFeed creates a feed and subscribes it to tick completions.
func NewFeed(e *engine.Engine, cfg config.NetworkConfig, logger *logging.Logger) *Feed {
	if logger == nil {
		logger = logging.Discard()
	}
	every := uint64(1)
	if cfg.TicksPerState > 0 {
		every = uint64(cfg.TicksPerState)
	}

	f := &Feed{
		engine: e,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		writeTimeout: cfg.WriteTimeout,
		every:        every,
		viewers:      make(map[*viewer]struct{}),
	}
	f.sub = e.EventBus.Subscribe(event.TickCompleted, f.broadcast)
	return f
}

// ServeHTTP upgrades the request and streams snapshots until the viewer
// goes away.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn(r.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}

	initial, err := f.engine.Snapshot().Marshal()
	if err != nil {
		f.logger.Error(r.Context(), "failed to encode initial snapshot", err)
		conn.Close()
		return
	}
	f.setWriteDeadline(conn)
	if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
		conn.Close()
		return
	}

	v := &viewer{
		conn: conn,
		out:  make(chan []byte, outboundQueueSize),
		done: make(chan struct{}),
	}
	if !f.add(v) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
		conn.Close()
		return
	}
	defer f.remove(v)

	f.logger.Debug(r.Context(), "viewer connected", "remote", r.RemoteAddr)
	go f.writeLoop(v)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) setWriteDeadline(conn *websocket.Conn) {
	if f.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
	}
}

func (f *Feed) writeLoop(v *viewer) {
	for {
		select {
		case data := <-v.out:
			f.setWriteDeadline(v.conn)
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				v.close()
				return
			}
		case <-v.done:
			return
		}
	}
}

func (f *Feed) add(v *viewer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.viewers[v] = struct{}{}
	return true
}

func (f *Feed) remove(v *viewer) {
	v.close()
	f.mu.Lock()
	delete(f.viewers, v)
	f.mu.Unlock()
}

func (f *Feed) broadcast(ev event.Event) {
	te, ok := ev.(*event.TickEvent)
	if !ok || te.Snapshot == nil || te.Tick%f.every != 0 {
		return
	}

	data, err := te.Snapshot.Marshal()
	if err != nil {
		f.logger.Error(context.Background(), "failed to encode snapshot", err, "tick", te.Tick)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for v := range f.viewers {
		select {
		case v.out <- data:
		default:
		}
	}
}

// ViewerCount returns the number of connected viewers.
func (f *Feed) ViewerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.viewers)
}

// Close unsubscribes the feed and disconnects every viewer.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	viewers := make([]*viewer, 0, len(f.viewers))
	for v := range f.viewers {
		viewers = append(viewers, v)
	}
	f.mu.Unlock()

	f.sub.Cancel()
	for _, v := range viewers {
		v.close()
	}
}
