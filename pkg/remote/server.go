// Package remote hosts the steering API for a running shell: a
// loopback HTTP server with a WebSocket event stream, inject/cancel
// endpoints, Prometheus metrics, and an optional NATS bridge. Attached
// clients observe the same telemetry the shell publishes internally.
package remote

import (
	"context"
	"encoding/json"
	stdliberrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	terrors "github.com/odvcencio/tern/pkg/errors"
	"github.com/odvcencio/tern/pkg/logging"
	"github.com/odvcencio/tern/pkg/telemetry"
)

// Config controls the remote server behavior.
type Config struct {
	Bind          string
	Token         string
	RequireToken  bool
	AllowExternal bool
	PublicMetrics bool
}

// Controller is the slice of the shell that remote clients may drive.
type Controller interface {
	// Snapshot describes the current session for attach handshakes.
	Snapshot() Snapshot
	// InjectInput submits a line as if the user had typed it.
	InjectInput(text string) error
	// CancelActive requests cancellation of the in-flight message.
	CancelActive() error
}

// Snapshot is the session state sent to newly attached clients.
type Snapshot struct {
	SessionID    string    `json:"sessionId"`
	Backend      string    `json:"backend"`
	Mode         string    `json:"mode,omitempty"`
	QueueDepth   int       `json:"queueDepth"`
	MessageCount int       `json:"messageCount"`
	TotalTokens  int       `json:"totalTokens"`
	Workspace    string    `json:"workspace,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
}

// Server hosts the JSON/HTTP + WebSocket steering API.
type Server struct {
	cfg        Config
	controller Controller
	hub        *Hub
	telemetry  *telemetry.Hub
	logger     *logging.Logger
	httpServer *http.Server

	eventConnLimiter *connLimiter
	steerLimiter     *injectLimiter
}

// NewServer constructs a server around the provided controller.
func NewServer(cfg Config, controller Controller, telemetryHub *telemetry.Hub) *Server {
	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1:7433"
	}
	return &Server{
		cfg:              cfg,
		controller:       controller,
		hub:              NewHub(),
		telemetry:        telemetryHub,
		eventConnLimiter: newConnLimiter(maxEventClients),
		steerLimiter:     newInjectLimiter(rate.Every(100*time.Millisecond), 5),
	}
}

// SetLogger attaches a structured logger. Safe to leave unset.
func (s *Server) SetLogger(logger *logging.Logger) {
	s.logger = logger
}

// Hub exposes the event hub so bridges can be attached.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.validateStartupConfig(); err != nil {
		return err
	}

	router := s.routes()
	s.httpServer = &http.Server{
		Addr:              s.cfg.Bind,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	if s.telemetry != nil {
		ch, cancel := s.telemetry.Subscribe()
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-ch:
					if !ok {
						return
					}
					s.broadcast(event)
				}
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logInfo("listen", "remote API listening", map[string]any{"bind": s.cfg.Bind})
		if err := s.httpServer.ListenAndServe(); err != nil && !stdliberrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return terrors.Wrap(err, terrors.ErrCodeRemoteBind, "remote server failed").
			WithContext("bind", s.cfg.Bind)
	}
}

func (s *Server) validateStartupConfig() error {
	if !isLoopbackBindAddress(s.cfg.Bind) {
		if !s.cfg.AllowExternal {
			return terrors.New(terrors.ErrCodeRemoteBind,
				fmt.Sprintf("refusing to bind remote API to %q (set remote.allow_external to permit non-loopback binds)", s.cfg.Bind))
		}
		if s.cfg.RequireToken && strings.TrimSpace(s.cfg.Token) == "" {
			return terrors.New(terrors.ErrCodeRemoteAuth,
				"remote.require_token is set but no token is configured")
		}
	}
	return nil
}

func (s *Server) routes() *chi.Mux {
	router := chi.NewRouter()

	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", s.handleMetrics)

	api := chi.NewRouter()
	api.Get("/session", s.handleSession)
	api.Get("/events", s.handleEvents)
	api.Post("/input", s.handleInjectInput)
	api.Post("/cancel", s.handleCancel)

	router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Mount("/", api)
	})

	return router
}

// authMiddleware requires authentication and short-circuits if unauthorized.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			respondError(w, http.StatusUnauthorized, stdliberrors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized validates the request token. Query-parameter tokens are
// only honored on loopback binds; they leak into proxy logs otherwise.
func (s *Server) authorized(r *http.Request) bool {
	token, fromQuery := extractBearerToken(r)
	if fromQuery && !isLoopbackBindAddress(s.cfg.Bind) {
		token = ""
	}
	if token != "" {
		return s.cfg.Token != "" && token == s.cfg.Token
	}
	return !s.cfg.RequireToken
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		respondError(w, http.StatusServiceUnavailable, stdliberrors.New("shell not attached"))
		return
	}
	respondJSON(w, s.controller.Snapshot())
}

type injectRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleInjectInput(w http.ResponseWriter, r *http.Request) {
	if !s.steerLimiter.Allow(remoteHost(r)) {
		respondError(w, http.StatusTooManyRequests, stdliberrors.New("rate limited"))
		return
	}

	var req injectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxInjectBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	input := strings.TrimSpace(req.Input)
	if input == "" {
		respondError(w, http.StatusBadRequest, stdliberrors.New("input is empty"))
		return
	}
	if s.controller == nil {
		respondError(w, http.StatusServiceUnavailable, stdliberrors.New("shell not attached"))
		return
	}

	if err := s.controller.InjectInput(input); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	metricInputInjected.Inc()
	s.publish(telemetry.EventRemoteInjected, map[string]any{"length": len(input)})
	s.logInfo("inject", "input injected remotely", map[string]any{"length": len(input), "remote": remoteHost(r)})
	respondJSON(w, map[string]string{"status": "queued"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.steerLimiter.Allow(remoteHost(r)) {
		respondError(w, http.StatusTooManyRequests, stdliberrors.New("rate limited"))
		return
	}
	if s.controller == nil {
		respondError(w, http.StatusServiceUnavailable, stdliberrors.New("shell not attached"))
		return
	}

	if err := s.controller.CancelActive(); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	metricCancelRequests.Inc()
	s.publish(telemetry.EventCancelRequested, map[string]any{"source": "remote"})
	respondJSON(w, map[string]string{"status": "requested"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventConnLimiter != nil && !s.eventConnLimiter.Acquire() {
		respondError(w, http.StatusTooManyRequests, stdliberrors.New("too many connections"))
		return
	}
	defer func() {
		if s.eventConnLimiter != nil {
			s.eventConnLimiter.Release()
		}
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logWarn("ws_accept", "websocket accept failed", map[string]any{"error": err.Error()})
		return
	}
	conn.SetReadLimit(maxWSReadBytes)

	filter := eventFilter(r.URL.Query().Get("types"))

	client := s.hub.register(conn, filter)
	metricClientsConnected.Inc()
	defer metricClientsConnected.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	startWSPing(ctx, conn)

	go func() {
		defer cancel()
		s.readClient(ctx, client)
	}()

	go func() {
		defer cancel()
		_ = client.writeLoop(ctx)
	}()

	if s.controller != nil {
		client.enqueue(Event{
			Type:      "server.welcome",
			Payload:   s.controller.Snapshot(),
			Timestamp: time.Now(),
		})
	}
	s.publish(telemetry.EventRemoteAttached, map[string]any{"remote": remoteHost(r)})

	<-ctx.Done()
	s.hub.removeClient(client)
	client.close(websocket.StatusNormalClosure, "shutdown")
	s.publish(telemetry.EventRemoteDetached, map[string]any{"remote": remoteHost(r)})
}

// eventFilter builds a type-prefix filter from a comma-separated list.
// Empty means all events.
func eventFilter(raw string) func(Event) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var prefixes []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	if len(prefixes) == 0 {
		return nil
	}
	return func(event Event) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(event.Type, p) {
				return true
			}
		}
		return false
	}
}

func (s *Server) readClient(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			c.enqueue(Event{Type: "server.pong", Timestamp: time.Now()})
		}
	}
}

func (s *Server) broadcast(event telemetry.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.hub.Broadcast(Event{
		Type:      string(event.Type),
		SessionID: event.SessionID,
		Payload:   event,
		Timestamp: event.Timestamp,
	})
}

func (s *Server) publish(eventType telemetry.EventType, data map[string]any) {
	if s.telemetry == nil {
		return
	}
	s.telemetry.Publish(telemetry.Event{Type: eventType, Data: data})
}

func (s *Server) logInfo(eventType, msg string, details map[string]any) {
	if s.logger == nil {
		return
	}
	_ = s.logger.Info(logging.CategoryRemote, eventType, msg, details)
}

func (s *Server) logWarn(eventType, msg string, details map[string]any) {
	if s.logger == nil {
		return
	}
	_ = s.logger.Warn(logging.CategoryRemote, eventType, msg, details)
}

// extractBearerToken extracts a bearer token from Authorization header or query param.
func extractBearerToken(r *http.Request) (token string, fromQuery bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):]), false
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	return "", false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isLoopbackBindAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	switch strings.ToLower(host) {
	case "localhost":
		return true
	case "0.0.0.0", "::":
		return false
	default:
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ip.IsLoopback()
	}
}
