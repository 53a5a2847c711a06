// ws.go is the subscriber plane's websocket transport: it upgrades
// incoming connections, assigns a client ID, parses subscribe/unsubscribe
// requests, enforces the per-client rate limit, and pumps queued
// messages out at the registry's current adaptive batch size. Grounded
// on jinterlante1206-AleutianLocal's orchestrator websocket handler's
// Upgrader/ReadJSON/WriteJSON/uuid idiom, adapted from its single-request
// RPC shape into this spec's subscribe-then-stream shape.
package marketdata

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/acceptx/exchange-core/log"
)

// wsRequest is the client subscription message (§6 "Client subscription
// message").
type wsRequest struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// wsResponse is the server's reply to a subscription message.
type wsResponse struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
}

// Server is the websocket subscriber transport for one market-data
// projector set. It owns the client registry and upgrades HTTP
// connections into registered, streaming clients.
type Server struct {
	cfg      WsConfig
	registry *Registry
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer creates a websocket transport backed by a fresh client
// registry.
func NewServer(cfg WsConfig, bp BackpressureConfig) *Server {
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(bp),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: log.Default().Module("marketdata.ws"),
	}
}

// Registry exposes the underlying client registry, so the projector's
// broadcast loop can publish to it directly.
func (s *Server) Registry() *Registry { return s.registry }

// newLimiter builds the sliding-window rate limiter WsConfig describes:
// rate_limit_max_messages per rate_limit_window.
func (s *Server) newLimiter() *rate.Limiter {
	window := s.cfg.RateLimitWindow
	if window <= 0 {
		window = DefaultWsConfig().RateLimitWindow
	}
	max := s.cfg.RateLimitMaxMessages
	if max <= 0 {
		max = DefaultWsConfig().RateLimitMaxMessages
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(max)), max)
}

// ServeConn upgrades r into a websocket connection, registers a new
// client (ID minted by google/uuid), and runs its read loop until the
// connection closes. It is typically invoked from an http.HandlerFunc
// wired up by cmd/exchange-core.
func (s *Server) ServeConn(w http.ResponseWriter, r *http.Request) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	id := uuid.New().String()
	client := s.registry.Register(id, s.newLimiter())
	defer s.registry.Unregister(id)

	stale := s.cfg.StaleTimeout
	if stale <= 0 {
		stale = DefaultWsConfig().StaleTimeout
	}
	conn.SetReadDeadline(time.Now().Add(stale))
	conn.SetPongHandler(func(string) error {
		client.Pong(time.Now())
		conn.SetReadDeadline(time.Now().Add(stale))
		return nil
	})

	s.logger.Info("client connected", "client_id", id)
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			s.logger.Info("client disconnected", "client_id", id, "error", err)
			return err
		}
		if !client.Limiter.Allow() {
			_ = conn.WriteJSON(wsResponse{Action: req.Action, Channels: req.Channels, Success: false, Error: "rate limit exceeded"})
			continue
		}
		resp := s.handleRequest(client, req)
		if err := conn.WriteJSON(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(client *Client, req wsRequest) wsResponse {
	max := s.cfg.MaxSubscriptionsPerClient
	if max <= 0 {
		max = DefaultWsConfig().MaxSubscriptionsPerClient
	}
	switch req.Action {
	case "subscribe":
		for _, raw := range req.Channels {
			ch, err := ParseChannel(raw)
			if err != nil {
				return wsResponse{Action: req.Action, Channels: req.Channels, Success: false, Error: err.Error()}
			}
			if err := client.Subscribe(ch, max); err != nil {
				return wsResponse{Action: req.Action, Channels: req.Channels, Success: false, Error: err.Error()}
			}
		}
		return wsResponse{Action: req.Action, Channels: req.Channels, Success: true}
	case "unsubscribe":
		for _, raw := range req.Channels {
			ch, err := ParseChannel(raw)
			if err != nil {
				continue
			}
			client.Unsubscribe(ch)
		}
		return wsResponse{Action: req.Action, Channels: req.Channels, Success: true}
	default:
		return wsResponse{Action: req.Action, Channels: req.Channels, Success: false, Error: "unknown action"}
	}
}

// WritePump drains one batch of at most the registry's current adaptive
// batch size from client's outbound queue and writes each message as
// JSON; messages beyond that batch stay queued for the next call. It is meant to be called on a ticker or immediately after a
// Broadcast, from a goroutine separate from ServeConn's read loop (the
// teacher's handler pairs a read goroutine with a dedicated write pump
// for exactly this reason: gorilla/websocket connections are not safe
// for concurrent writes from multiple goroutines, but are safe for one
// reader and one writer running concurrently).
func (s *Server) WritePump(conn *websocket.Conn, client *Client) error {
	batchSize := s.registry.AdaptiveBatchSize()
	for _, msg := range client.Drain(batchSize) {
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

// Heartbeat sends a ping to conn; callers drive this from a
// time.Ticker at WsConfig.HeartbeatInterval.
func (s *Server) Heartbeat(conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.PingMessage, nil)
}
