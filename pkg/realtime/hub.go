package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"placeme/pkg/logger"
	"placeme/pkg/models"
	"placeme/pkg/store"
)

var (
	metricEventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placeme_realtime_events_published_total",
		Help: "Change events accepted onto the fan-out queue.",
	})
	metricEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placeme_realtime_events_dropped_total",
		Help: "Change events dropped because the fan-out queue was full.",
	})
	metricClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "placeme_realtime_clients",
		Help: "Connected websocket subscribers.",
	})
)

// Hub owns all live subscribers and fans queued change events out to the
// ones the event concerns. Slow subscribers are disconnected rather than
// allowed to stall the loop.
type Hub struct {
	queue      *EventQueue
	sendBuffer int
	maxPayload int64

	mu     sync.RWMutex
	byUser map[string]map[*Client]struct{}
}

// NewHub creates a hub with the given queue capacity, per-subscriber send
// buffer and maximum inbound frame size.
func NewHub(queueCapacity, sendBuffer int, maxPayload int64) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	if maxPayload <= 0 {
		maxPayload = 64 * 1024
	}
	return &Hub{
		queue:      NewEventQueue(queueCapacity),
		sendBuffer: sendBuffer,
		maxPayload: maxPayload,
		byUser:     map[string]map[*Client]struct{}{},
	}
}

// Publish enqueues a message change event for fan-out. It never blocks the
// caller; when the queue is full the event is dropped and counted.
func (h *Hub) Publish(eventType string, m models.Message) {
	mm := m
	h.enqueue(Event{Type: eventType, NewRow: &mm})
}

// PublishPresence enqueues an online-status change for a user.
func (h *Hub) PublishPresence(userID string, online bool) {
	o := online
	h.enqueue(Event{Type: "PRESENCE", UserID: userID, Online: &o})
}

func (h *Hub) enqueue(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("event_marshal_failed", "type", ev.Type, "error", err)
		return
	}
	if !h.queue.TryEnqueue(payload) {
		metricEventsDropped.Inc()
		logger.Warn("event_dropped_queue_full", "type", ev.Type)
		return
	}
	metricEventsPublished.Inc()
}

// Run consumes the event queue until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	logger.Info("realtime_hub_started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("realtime_hub_stopped")
			return
		case buf := <-h.queue.Dequeue():
			payload := append([]byte(nil), buf.B...)
			h.queue.Release(buf)
			h.dispatch(payload)
		}
	}
}

// dispatch routes one serialized event to the subscribers it concerns:
// both parties of a direct message, every member of a channel, or everyone
// for presence changes.
func (h *Hub) dispatch(payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Error("event_unmarshal_failed", "error", err)
		return
	}
	switch {
	case ev.Type == "PRESENCE":
		h.mu.RLock()
		for u := range h.byUser {
			h.deliverLocked(u, payload)
		}
		h.mu.RUnlock()
	case ev.NewRow == nil:
		return
	case ev.NewRow.Direct():
		h.mu.RLock()
		h.deliverLocked(ev.NewRow.Sender, payload)
		if ev.NewRow.Receiver != ev.NewRow.Sender {
			h.deliverLocked(ev.NewRow.Receiver, payload)
		}
		h.mu.RUnlock()
	default:
		ch, err := store.GetChannel(ev.NewRow.Channel)
		if err != nil {
			logger.Warn("dispatch_unknown_channel", "channel", ev.NewRow.Channel)
			return
		}
		h.mu.RLock()
		for _, member := range ch.Members {
			h.deliverLocked(member, payload)
		}
		h.mu.RUnlock()
	}
}

// deliverLocked pushes payload to every connection of one user. Full send
// buffers mark the client for removal; removal happens outside the read
// lock via a goroutine to avoid deadlocking on h.mu.
func (h *Hub) deliverLocked(userID string, payload []byte) {
	for c := range h.byUser[userID] {
		select {
		case c.send <- payload:
		default:
			logger.Warn("subscriber_too_slow", "user", userID)
			go h.remove(c)
		}
	}
}

// add registers a client and reports whether this is the user's first live
// connection.
func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byUser[c.userID]
	if !ok {
		set = map[*Client]struct{}{}
		h.byUser[c.userID] = set
	}
	first := len(set) == 0
	set[c] = struct{}{}
	metricClients.Inc()
	return first
}

// remove unregisters a client, closing its send channel exactly once, and
// publishes an offline presence change when it was the user's last
// connection.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	set, ok := h.byUser[c.userID]
	if ok {
		if _, present := set[c]; !present {
			h.mu.Unlock()
			return
		}
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
		metricClients.Dec()
	}
	last := ok && len(set) == 0
	h.mu.Unlock()
	if !ok {
		return
	}
	close(c.send)
	logger.Info("subscriber_disconnected", "user", c.userID)
	if last {
		h.PublishPresence(c.userID, false)
	}
}

// Online reports whether the user has at least one live connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// OnlineIDs returns every user with a live connection.
func (h *Hub) OnlineIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byUser))
	for u := range h.byUser {
		out = append(out, u)
	}
	return out
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.byUser {
		n += len(set)
	}
	return n
}

// QueueStats exposes the fan-out queue counters for the admin surface.
func (h *Hub) QueueStats() (enqueued, dequeued, dropped uint64) {
	return h.queue.Stats()
}

// ServeWS upgrades an authenticated request to a websocket subscription
// for userID and starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return &SubscriptionError{Status: "upgrade", Err: err}
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, h.sendBuffer), userID: userID}
	first := h.add(c)
	go c.writePump()
	go c.readPump()
	logger.Info("subscriber_connected", "user", userID)
	if first {
		h.PublishPresence(userID, true)
	}
	return nil
}
