// subscriber.go implements the subscriber plane's backpressure model
// (§4.F "Subscriber plane (backpressure)"): a bounded outbound queue per
// client, a lagging flag with hysteresis, an adaptive batch size, and a
// deterministic-order broadcast. The websocket transport in ws.go is a
// thin layer on top of this, kept separate so the backpressure policy
// itself is testable without a real connection.
package marketdata

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/acceptx/exchange-core/metrics"
)

// ErrTooManySubscriptions is returned by Subscribe once a client has
// reached WsConfig.MaxSubscriptionsPerClient.
var ErrTooManySubscriptions = errors.New("marketdata: too many subscriptions for client")

// Message is one outbound item queued for a client: the channel it was
// published on and an opaque, already-serializable payload (a
// FullSnapshot, a []Delta batch, a Trade, or a Candle).
type Message struct {
	Channel string
	Payload any
}

// Client holds one subscriber's state (§4.F "Per-client state tracks
// subscribed channels, last sequence sent per channel, whether the
// initial snapshot has been sent, last pong timestamp, and a rate-limit
// window counter").
type Client struct {
	ID string

	mu               sync.Mutex
	queue            []Message
	capacity         int
	dropPolicy       DropPolicy
	lagging          bool
	subscriptions    map[string]Channel
	lastSequenceSent map[string]uint64
	snapshotSent     map[string]bool
	lastPong         time.Time

	// Limiter enforces WsConfig's sliding-window rate limit; constructed
	// by the caller via rate.NewLimiter(rate.Every(window/maxMessages),
	// maxMessages) and exposed here so ws.go can call Allow() per inbound
	// message.
	Limiter *rate.Limiter
}

func newClient(id string, cfg BackpressureConfig, limiter *rate.Limiter) *Client {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultBackpressureConfig().QueueCapacity
	}
	return &Client{
		ID:               id,
		capacity:         capacity,
		dropPolicy:       cfg.DropPolicy,
		subscriptions:    make(map[string]Channel),
		lastSequenceSent: make(map[string]uint64),
		snapshotSent:     make(map[string]bool),
		lastPong:         time.Now(),
		Limiter:          limiter,
	}
}

// Subscribe adds a channel to the client's subscription set, enforcing
// max (WsConfig.MaxSubscriptionsPerClient; 0 means unlimited).
func (c *Client) Subscribe(ch Channel, max int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ch.String()
	if _, ok := c.subscriptions[key]; ok {
		return nil
	}
	if max > 0 && len(c.subscriptions) >= max {
		return ErrTooManySubscriptions
	}
	c.subscriptions[key] = ch
	return nil
}

// Unsubscribe removes a channel from the client's subscription set.
func (c *Client) Unsubscribe(ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, ch.String())
}

// Subscriptions returns the client's currently subscribed channels.
func (c *Client) Subscriptions() []Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Channel, 0, len(c.subscriptions))
	for _, ch := range c.subscriptions {
		out = append(out, ch)
	}
	return out
}

func (c *Client) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// MarkSnapshotSent records that channel's initial snapshot has been
// delivered.
func (c *Client) MarkSnapshotSent(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshotSent[channel] = true
}

// SnapshotSent reports whether channel's initial snapshot was already
// delivered to this client.
func (c *Client) SnapshotSent(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotSent[channel]
}

// LastSequenceSent returns the last delta sequence delivered on channel.
func (c *Client) LastSequenceSent(channel string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSequenceSent[channel]
}

// SetLastSequenceSent records the last delta sequence delivered on
// channel.
func (c *Client) SetLastSequenceSent(channel string, sequence uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSequenceSent[channel] = sequence
}

// Pong records a heartbeat pong, clearing the stale-timeout clock.
func (c *Client) Pong(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = now
}

// Stale reports whether the client has not ponged within timeout of now
// (§7 "Stale client (no pong)").
func (c *Client) Stale(now time.Time, timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastPong) > timeout
}

// Lagging reports whether the client's queue is currently considered
// behind (§4.F "A lagging flag is set when queue >= capacity and cleared
// below 50%").
func (c *Client) Lagging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lagging
}

func (c *Client) updateLaggingLocked() {
	switch {
	case len(c.queue) >= c.capacity:
		c.lagging = true
	case len(c.queue) < c.capacity/2:
		c.lagging = false
	}
}

// enqueue appends msg to the client's outbound queue, applying the
// configured drop policy on overflow. It returns true if the client must
// be disconnected (DropPolicyDisconnect on a full queue).
func (c *Client) enqueue(msg Message) (disconnect bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) >= c.capacity {
		switch c.dropPolicy {
		case DropPolicyDisconnect:
			return true
		case DropPolicyDropOldest:
			c.queue = c.queue[1:]
		}
	}
	c.queue = append(c.queue, msg)
	c.updateLaggingLocked()
	return false
}

// Drain removes and returns up to n queued messages (0 or negative means
// "all").
func (c *Client) Drain(n int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.queue) {
		n = len(c.queue)
	}
	out := c.queue[:n]
	c.queue = c.queue[n:]
	c.updateLaggingLocked()
	return out
}

// QueueLen reports the current outbound queue depth.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Registry is the client registry: it owns every connected client's
// state and is the only mutator of subscriber queues (§5 "Subscriber
// queues are owned by the client registry, mutated only by the
// projector").
type Registry struct {
	cfg BackpressureConfig

	mu      sync.Mutex
	clients map[string]*Client
	order   []string // registration order: the deterministic broadcast order
}

// NewRegistry creates an empty client registry.
func NewRegistry(cfg BackpressureConfig) *Registry {
	return &Registry{cfg: cfg, clients: make(map[string]*Client)}
}

// Register adds a new client (its ID is expected to be a
// google/uuid-generated string, minted by the ws transport) and returns
// its state handle.
func (r *Registry) Register(id string, limiter *rate.Limiter) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := newClient(id, r.cfg, limiter)
	r.clients[id] = c
	r.order = append(r.order, id)
	metrics.MarketDataSubscribersConnected.Inc()
	return c
}

// Unregister removes a client from the registry.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return
	}
	delete(r.clients, id)
	for i, cid := range r.order {
		if cid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	metrics.MarketDataSubscribersConnected.Dec()
}

// Get returns a registered client by ID.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Broadcast enqueues msg to every client currently subscribed to
// channel, visiting clients in deterministic (registration) order and
// enqueuing concurrently via errgroup, and returns the IDs of clients
// that must be disconnected for backpressure overflow (§5 "Broadcast
// visits clients in deterministic order; clients to disconnect are
// returned as a list").
func (r *Registry) Broadcast(channel string, msg Message) []string {
	r.mu.Lock()
	ids := append([]string(nil), r.order...)
	clients := make([]*Client, len(ids))
	for i, id := range ids {
		clients[i] = r.clients[id]
	}
	r.mu.Unlock()

	disconnect := make([]bool, len(ids))
	var g errgroup.Group
	for i, c := range clients {
		i, c := i, c
		if c == nil || !c.isSubscribed(channel) {
			continue
		}
		g.Go(func() error {
			if c.enqueue(msg) {
				disconnect[i] = true
				metrics.MarketDataBackpressureIncidents.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for i, d := range disconnect {
		if d {
			out = append(out, ids[i])
		}
	}
	return out
}

// AdaptiveBatchSize returns the stressed batch size once the number of
// lagging clients reaches AdaptiveBatchThreshold, and the normal batch
// size otherwise (§4.F "An adaptive batch size switches to a 'stressed'
// value when the count of lagging clients crosses a threshold").
func (r *Registry) AdaptiveBatchSize() int {
	r.mu.Lock()
	ids := append([]string(nil), r.order...)
	clients := make([]*Client, len(ids))
	for i, id := range ids {
		clients[i] = r.clients[id]
	}
	r.mu.Unlock()

	lagging := 0
	for _, c := range clients {
		if c != nil && c.Lagging() {
			lagging++
		}
	}
	threshold := r.cfg.AdaptiveBatchThreshold
	if threshold <= 0 {
		threshold = DefaultBackpressureConfig().AdaptiveBatchThreshold
	}
	if lagging >= threshold {
		return r.cfg.StressedBatchSize
	}
	return r.cfg.NormalBatchSize
}

// StaleClients returns the IDs of clients that have not ponged within
// timeout of now, in deterministic order.
func (r *Registry) StaleClients(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	ids := append([]string(nil), r.order...)
	clients := make([]*Client, len(ids))
	for i, id := range ids {
		clients[i] = r.clients[id]
	}
	r.mu.Unlock()

	var stale []string
	for i, c := range clients {
		if c != nil && c.Stale(now, timeout) {
			stale = append(stale, ids[i])
		}
	}
	return stale
}
