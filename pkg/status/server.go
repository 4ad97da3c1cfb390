// Package status serves the live state of the sculpture over HTTP and a
// JSON-RPC 2.0 websocket: hand positions, safety state and the report of
// every finished epoch.
package status

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"clockception-go/pkg/axis"
	"clockception-go/pkg/log"
	"clockception-go/pkg/safety"
	"clockception-go/pkg/scheduler"
)

// Source is the sculpture as seen by status clients. Implementations must
// be safe for concurrent use.
type Source interface {
	Snapshots() []axis.Snapshot
	SafetyStatus() safety.Status
	LastEpoch() *scheduler.EpochReport
	EmergencyStop(msg string) error
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on (e.g., ":7125").
	Addr string
	// Source answers status queries.
	Source Source
	// BroadcastInterval is the period of notify_status_update to
	// subscribed clients. Zero selects one second.
	BroadcastInterval time.Duration
}

// Server is the status API server.
type Server struct {
	src      Source
	addr     string
	interval time.Duration
	logger   *log.Logger

	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader

	clientMu sync.RWMutex
	clients  map[int64]*wsClient
	nextID   int64

	running   atomic.Bool
	startTime time.Time
	stop      chan struct{}
	listener  net.Listener
}

// New creates a status server.
func New(cfg Config) *Server {
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = time.Second
	}
	s := &Server{
		src:       cfg.Source,
		addr:      cfg.Addr,
		interval:  cfg.BroadcastInterval,
		logger:    log.GetLogger("status"),
		clients:   make(map[int64]*wsClient),
		startTime: time.Now(),
		stop:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/websocket", s.handleWebSocket)
	s.mux.HandleFunc("/jsonrpc", s.handleJSONRPC)
	s.mux.HandleFunc("/sculpture/status", s.handleStatus)
	s.mux.HandleFunc("/sculpture/axes", s.handleAxes)
	s.mux.HandleFunc("/sculpture/emergency_stop", s.handleEmergencyStop)
	return s
}

// Handler returns the HTTP handler with CORS headers applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.Handler()}
	s.running.Store(true)
	s.logger.Info("status server listening on %s", ln.Addr())

	go s.broadcastLoop()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Stop closes every websocket client and the listener.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	close(s.stop)

	s.clientMu.Lock()
	for _, c := range s.clients {
		c.Close()
	}
	s.clients = make(map[int64]*wsClient)
	s.clientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return len(s.clients)
}

// EpochFinished pushes notify_epoch_finished to every client.
func (s *Server) EpochFinished(r *scheduler.EpochReport, err error) {
	params := map[string]any{"report": r}
	if err != nil {
		params["error"] = err.Error()
	}
	s.broadcast(notification{JSONRPC: "2.0", Method: "notify_epoch_finished", Params: []any{params}}, false)
}

// Shutdown pushes notify_shutdown to every client. Its signature matches
// safety.Manager.OnShutdown.
func (s *Server) Shutdown(reason safety.ShutdownReason, msg string) {
	s.broadcast(notification{
		JSONRPC: "2.0",
		Method:  "notify_shutdown",
		Params:  []any{map[string]any{"reason": string(reason), "message": msg}},
	}, false)
}

var _ scheduler.Observer = (*Server)(nil)

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.broadcastStatus()
		}
	}
}

func (s *Server) broadcastStatus() {
	eventtime := time.Since(s.startTime).Seconds()
	s.broadcast(notification{
		JSONRPC: "2.0",
		Method:  "notify_status_update",
		Params:  []any{s.statusObject(), eventtime},
	}, true)
}

func (s *Server) broadcast(msg any, subscribedOnly bool) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	for _, c := range s.clients {
		if subscribedOnly && !c.subscribed.Load() {
			continue
		}
		c.Send(msg)
	}
}

func (s *Server) statusObject() map[string]any {
	return map[string]any{
		"axes":       s.src.Snapshots(),
		"safety":     s.src.SafetyStatus(),
		"last_epoch": s.src.LastEpoch(),
	}
}

// JSON-RPC 2.0 structures

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeServerError    = -32000
)

func (s *Server) dispatch(req rpcRequest, c *wsClient) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "server.info":
		resp.Result = map[string]any{
			"uptime":          time.Since(s.startTime).Seconds(),
			"websocket_count": s.ClientCount(),
		}
	case "sculpture.status":
		resp.Result = s.statusObject()
	case "sculpture.axes":
		resp.Result = s.src.Snapshots()
	case "sculpture.last_epoch":
		resp.Result = s.src.LastEpoch()
	case "sculpture.subscribe":
		if c == nil {
			resp.Error = &rpcError{codeServerError, "subscribe requires a websocket"}
			break
		}
		c.subscribed.Store(true)
		resp.Result = s.statusObject()
	case "sculpture.emergency_stop":
		var p struct {
			Message string `json:"message"`
		}
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params, &p)
		}
		if p.Message == "" {
			p.Message = "requested over status api"
		}
		if err := s.src.EmergencyStop(p.Message); err != nil {
			resp.Error = &rpcError{codeServerError, err.Error()}
			break
		}
		resp.Result = "ok"
	default:
		resp.Error = &rpcError{codeMethodNotFound, "method not found: " + req.Method}
	}
	return resp
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{codeParseError, "Parse error"}})
		return
	}
	writeJSON(w, s.dispatch(req, nil))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"result": s.statusObject()})
}

func (s *Server) handleAxes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"result": s.src.Snapshots()})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.src.EmergencyStop("requested over status api"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"result": "ok"})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
