package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/inboxhub/realtime/internal/config"
	"github.com/inboxhub/realtime/internal/event"
	"github.com/inboxhub/realtime/internal/realtime"
	"github.com/inboxhub/realtime/internal/sysstats"
)

const maxControlMessageSize = 64 << 10

var errAuthRejected = errors.New("deferred auth rejected")

// Hub is the part of realtime.Hub the server needs.
type Hub interface {
	Register(id string, conn realtime.Conn, filter *event.Filter, authenticated bool) error
	OnConnectionClose(id string)
	Authenticate(id, tenantID, userID string) bool
	Filter(id string) (*event.Filter, bool)
	SetFilter(id string, filter *event.Filter) bool
	Touch(id string)
	Broadcast(e event.Event)
	Stats() realtime.Stats
}

type Server struct {
	config         *config.Config
	hub            Hub
	log            zerolog.Logger
	sampler        *sysstats.Sampler
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	active         atomic.Int64
	newID          func() string
}

func NewServer(cfg *config.Config, hub Hub, sampler *sysstats.Sampler, log zerolog.Logger) *Server {
	s := &Server{
		config:         cfg,
		hub:            hub,
		log:            log.With().Str("component", "ws").Logger(),
		sampler:        sampler,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		newID:          uuid.NewString,
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
}

// Handler returns the routed mux wrapped with security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

// ActiveConnections returns the number of open websocket connections.
func (s *Server) ActiveConnections() int { return int(s.active.Load()) }

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	principal, authenticated, ok := s.resolvePrincipal(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	filter, err := filterFromQuery(r.URL.Query(), principal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.reserveSlot() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.active.Add(-1)
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade failed")
		return
	}

	id := s.newID()
	conn := newConn(wsConn, s.config.Realtime.MaxBuffered)
	if err := s.hub.Register(id, conn, filter, authenticated); err != nil {
		s.active.Add(-1)
		s.log.Error().Err(err).Str("session", id).Msg("register session")
		conn.Close()
		return
	}

	s.log.Info().
		Str("session", id).
		Str("remote", r.RemoteAddr).
		Str("tenant", filter.TenantID).
		Bool("authenticated", authenticated).
		Msg("client connected")
	if err := conn.Write(encodeServerMessage(MsgSubscribed, subscribedPayload(id, filter, authenticated))); err != nil {
		s.closeSession(id, conn, err)
		return
	}

	go s.readLoop(id, wsConn, conn, authenticated)
}

// reserveSlot claims a connection slot before the upgrade. Callers give it
// back through closeSession or s.active.Add(-1).
func (s *Server) reserveSlot() bool {
	n := s.active.Add(1)
	if limit := s.config.Server.MaxConnections; limit > 0 && n > int64(limit) {
		s.active.Add(-1)
		return false
	}
	return true
}

func (s *Server) closeSession(id string, conn *Conn, err error) {
	s.hub.OnConnectionClose(id)
	conn.Close()
	s.active.Add(-1)
	ev := s.log.Info().Str("session", id)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("client disconnected")
}

func (s *Server) readLoop(id string, wsConn *websocket.Conn, conn *Conn, authenticated bool) {
	var cause error
	defer func() { s.closeSession(id, conn, cause) }()

	wsConn.SetReadLimit(maxControlMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rc := s.config.Realtime
	limiter := rate.NewLimiter(rate.Limit(rc.ControlRate), max(rc.ControlBurst, 1))

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		wsConn.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			if cause = conn.Write(encodeServerMessage(MsgError, ErrorPayload{Message: "rate limited"})); cause != nil {
				return
			}
			continue
		}
		if cause = s.handleControl(id, conn, data, &authenticated); cause != nil {
			return
		}
	}
}

// handleControl applies one client control message. A non-nil error ends the
// session.
func (s *Server) handleControl(id string, conn *Conn, data []byte, authenticated *bool) error {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return conn.Write(encodeServerMessage(MsgError, ErrorPayload{Message: "malformed message"}))
	}

	switch msg.Action {
	case ActionPing:
		s.hub.Touch(id)
		return conn.Write(encodeServerMessage(MsgPong, nil))
	case ActionSubscribe:
		return s.handleSubscribe(id, conn, msg, *authenticated)
	case ActionAuth:
		if *authenticated {
			return conn.Write(encodeServerMessage(MsgAuthenticated, nil))
		}
		p, ok := s.config.Auth.Principal(msg.Token)
		if !ok || !s.hub.Authenticate(id, p.TenantID, p.UserID) {
			s.log.Warn().Str("session", id).Msg("deferred auth rejected")
			if err := conn.Write(encodeServerMessage(MsgError, ErrorPayload{Message: "unauthorized"})); err != nil {
				return err
			}
			return errAuthRejected
		}
		*authenticated = true
		return conn.Write(encodeServerMessage(MsgAuthenticated, nil))
	default:
		return conn.Write(encodeServerMessage(MsgError, ErrorPayload{Message: fmt.Sprintf("unknown action %q", msg.Action)}))
	}
}

func (s *Server) handleSubscribe(id string, conn *Conn, msg ControlMessage, authenticated bool) error {
	types, err := parseTypes(msg.Types)
	if err != nil {
		return conn.Write(encodeServerMessage(MsgError, ErrorPayload{Message: err.Error()}))
	}
	current, ok := s.hub.Filter(id)
	if !ok {
		return realtime.ErrConnClosed
	}
	next := event.NewFilter(current.TenantID, current.UserID, types, msg.Conversations)
	s.hub.SetFilter(id, next)
	return conn.Write(encodeServerMessage(MsgSubscribed, subscribedPayload(id, next, authenticated)))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorizeAdmin(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	e, err := req.toEvent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.hub.Broadcast(e)
	w.WriteHeader(http.StatusAccepted)
}

func (req IngestRequest) toEvent() (event.Event, error) {
	typ, err := event.ParseType(req.Type)
	if err != nil {
		return event.Event{}, err
	}
	var prio event.Priority
	if err := prio.UnmarshalText([]byte(req.Priority)); err != nil {
		return event.Event{}, err
	}
	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}
	return event.Event{
		Type:           typ,
		Data:           data,
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Priority:       prio,
		Batchable:      req.Batchable,
	}, nil
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	realtime.Stats
	Connections int                `json:"connections"`
	Process     *sysstats.Snapshot `json:"process,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAdmin(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	resp := StatsResponse{
		Stats:       s.hub.Stats(),
		Connections: s.ActiveConnections(),
	}
	if s.sampler != nil {
		snap, err := s.sampler.Sample(r.Context())
		if err != nil {
			s.log.Debug().Err(err).Msg("process stats unavailable")
		} else {
			resp.Process = &snap
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// resolvePrincipal decides who a websocket client is. ok is false when the
// request must be rejected.
func (s *Server) resolvePrincipal(r *http.Request) (p config.TokenConfig, authenticated, ok bool) {
	q := r.URL.Query()
	if s.config.Auth.Open() {
		return config.TokenConfig{TenantID: q.Get("tenantId"), UserID: q.Get("userId")}, true, true
	}

	token := tokenFrom(r)
	if token == "" {
		return config.TokenConfig{}, false, s.config.Auth.AllowDeferred
	}
	p, found := s.config.Auth.Principal(token)
	if !found {
		return config.TokenConfig{}, false, false
	}
	return p, true, true
}

func (s *Server) authorizeAdmin(r *http.Request) bool {
	if s.config.Server.AdminToken == "" {
		return true
	}
	return tokenFrom(r) == s.config.Server.AdminToken
}

func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t := r.Header.Get("X-Realtime-Token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func filterFromQuery(q url.Values, p config.TokenConfig) (*event.Filter, error) {
	types, err := parseTypes(splitList(q.Get("types")))
	if err != nil {
		return nil, err
	}
	return event.NewFilter(p.TenantID, p.UserID, types, splitList(q.Get("conversations"))), nil
}

func parseTypes(names []string) ([]event.Type, error) {
	types := make([]event.Type, 0, len(names))
	for _, n := range names {
		t, err := event.ParseType(n)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func subscribedPayload(id string, f *event.Filter, authenticated bool) SubscribedPayload {
	types := make([]string, 0, f.TypeCount())
	for _, t := range f.Types() {
		types = append(types, string(t))
	}
	return SubscribedPayload{
		SessionID:     id,
		Types:         types,
		Conversations: f.Conversations(),
		Authenticated: authenticated,
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}

	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler, log zerolog.Logger) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
