// Package bridge pushes session notifications to WebSocket subscribers.
// Each fired signal becomes one JSON event carrying the event name and a
// snapshot of the session's connection and resource states, taken on the
// session's owning goroutine when the signal fired.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tonimelisma/ion-go/internal/session"
)

// Defaults for Options.
const (
	DefaultSendQueue    = 32
	DefaultWriteTimeout = 5 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// EventSnapshot is the event name of the message sent to a client right
// after it connects.
const EventSnapshot = "Snapshot"

// Snapshot is the observable session state at the time of an event.
type Snapshot struct {
	Connected  bool              `json:"connected"`
	Connecting bool              `json:"connecting"`
	Resuming   bool              `json:"resuming"`
	Resources  map[string]string `json:"resources"`
}

// SnapshotOf reads s. It must run on the session's owning goroutine.
func SnapshotOf(s *session.Session) Snapshot {
	kinds := []session.Kind{
		session.KindProfile,
		session.KindAssetList,
		session.KindTokenList,
		session.KindAssetAccessToken,
	}

	res := make(map[string]string, len(kinds))
	for _, k := range kinds {
		res[k.String()] = s.Status(k).String()
	}

	return Snapshot{
		Connected:  s.IsConnected(),
		Connecting: s.IsConnecting(),
		Resuming:   s.IsResuming(),
		Resources:  res,
	}
}

// Event is one message on the wire.
type Event struct {
	Seq   uint64    `json:"seq"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
	State Snapshot  `json:"state"`
}

// Options configures a Bridge.
type Options struct {
	// OriginPatterns lists allowed cross-origin hosts, as in
	// websocket.AcceptOptions.
	OriginPatterns []string
	SendQueue      int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

type client struct {
	id   uint64
	send chan Event
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Bridge fans session events out to connected WebSocket clients. Publish
// never blocks: a client whose queue is full is disconnected.
type Bridge struct {
	logger *slog.Logger
	opts   Options

	mu      sync.Mutex
	clients map[uint64]*client
	nextID  uint64
	seq     uint64
	last    Snapshot
}

// New creates a Bridge with no clients.
func New(logger *slog.Logger, opts Options) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.SendQueue <= 0 {
		opts.SendQueue = DefaultSendQueue
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}

	return &Bridge{
		logger:  logger,
		opts:    opts,
		clients: make(map[uint64]*client),
	}
}

// Attach subscribes to every signal in hub. snapshot is called on the
// owning goroutine at each fire. The returned function detaches.
func (b *Bridge) Attach(hub *session.Hub, snapshot func() Snapshot) func() {
	b.mu.Lock()
	b.last = snapshot()
	b.mu.Unlock()

	subs := make([]session.Subscription, 0, len(hub.All()))

	for _, sig := range hub.All() {
		name := sig.Name()
		subs = append(subs, sig.Subscribe(func() { b.Publish(name, snapshot()) }))
	}

	return func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
}

// Publish sends an event to every client.
func (b *Bridge) Publish(name string, state Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.last = state

	ev := Event{Seq: b.seq, Event: name, At: time.Now().UTC(), State: state}

	for id, c := range b.clients {
		select {
		case c.send <- ev:
		default:
			b.logger.Warn("bridge client too slow, disconnecting", slog.Uint64("client_id", id))
			delete(b.clients, id)
			c.close()
		}
	}
}

// Clients returns the number of connected clients.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.clients)
}

// register adds a client and queues the current snapshot as its first event.
func (b *Bridge) register() *client {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	c := &client{
		id:   b.nextID,
		send: make(chan Event, b.opts.SendQueue),
		done: make(chan struct{}),
	}
	c.send <- Event{Seq: b.seq, Event: EventSnapshot, At: time.Now().UTC(), State: b.last}
	b.clients[c.id] = c

	return c
}

func (b *Bridge) unregister(c *client) {
	b.mu.Lock()
	delete(b.clients, c.id)
	b.mu.Unlock()

	c.close()
}

// ServeHTTP upgrades the request and streams events until the client goes
// away, the request context ends, or the client falls behind.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.opts.OriginPatterns,
	})
	if err != nil {
		b.logger.Warn("bridge accept failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	c := b.register()
	defer b.unregister(c)

	b.logger.Info("bridge client connected",
		slog.Uint64("client_id", c.id),
		slog.String("remote", r.RemoteAddr),
	)

	// Clients only listen; CloseRead discards anything they send and
	// cancels ctx when they close.
	ctx := conn.CloseRead(r.Context())

	ping := time.NewTicker(b.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bridge client disconnected", slog.Uint64("client_id", c.id))
			return
		case <-c.done:
			_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
			return
		case ev := <-c.send:
			if err := b.write(ctx, conn, ev); err != nil {
				b.logger.Info("bridge write failed",
					slog.Uint64("client_id", c.id),
					slog.String("error", err.Error()),
				)

				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, b.opts.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()

			if err != nil {
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (b *Bridge) write(parent context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(parent, b.opts.WriteTimeout)
	defer cancel()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bridge: encode event: %w", err)
	}

	return conn.Write(ctx, websocket.MessageText, data)
}
