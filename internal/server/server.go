package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/coolmuscle-steer/internal/coolmuscle"
	"github.com/shaunagostinho/coolmuscle-steer/internal/logger"
)

// Actuator is the read-only view of the controller the monitor polls.
type Actuator interface {
	Snapshot() (coolmuscle.Sample, error)
}

// Server polls the actuator and broadcasts samples to WebSocket clients.
// It never issues motion commands.
type Server struct {
	cfg    *Config
	act    Actuator
	actMu  sync.Locker // shared with every other caller of act
	webFS  fs.FS
	logger *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	lastMu sync.RWMutex
	last   *coolmuscle.Sample
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a new Server. actMu must be held by anyone else driving act.
func New(cfg *Config, act Actuator, actMu sync.Locker, webFS fs.FS) *Server {
	return &Server{
		cfg:   cfg,
		act:   act,
		actMu: actMu,
		webFS: webFS,
		logger: logger.New(logger.Config{
			Enabled:    cfg.Trace.Enabled,
			Path:       cfg.Trace.Path,
			IntervalMs: cfg.Trace.Interval,
		}),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/state", s.handleState)
	return mux
}

// Run starts the HTTP server and the polling loop.
func (s *Server) Run(ctx context.Context) error {
	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Monitor.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Monitor.ListenAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", n)

	// Send the latest sample so the page renders immediately
	if last := s.Last(); last != nil {
		if data, err := json.Marshal(last); err == nil {
			client.send <- data
		}
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive only; incoming messages are ignored)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	data, err := s.cfg.ToJSON()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	last := s.Last()
	if last == nil {
		http.Error(w, "no sample yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(last)
}

// ToggleTrace flips CSV tracing and persists the new setting so it
// survives a restart. The trace is switched even if saving fails.
func (s *Server) ToggleTrace() (bool, error) {
	on := !s.logger.IsEnabled()
	s.logger.SetEnabled(on)
	s.cfg.SetTraceEnabled(on)
	log.Printf("[server] trace enabled=%v", on)
	if err := s.cfg.Save(); err != nil {
		return on, fmt.Errorf("save config: %w", err)
	}
	return on, nil
}

// Last returns the most recent sample, or nil before the first poll.
func (s *Server) Last() *coolmuscle.Sample {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}

// pollLoop samples the actuator at the configured rate until ctx ends.
func (s *Server) pollLoop(ctx context.Context) {
	hz := s.cfg.Monitor.PollHz
	if hz <= 0 {
		hz = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Close()
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll takes one sample, records it and broadcasts it.
func (s *Server) poll() {
	s.actMu.Lock()
	sample, err := s.act.Snapshot()
	s.actMu.Unlock()
	if err != nil {
		log.Printf("[server] position query failed: %v", err)
	}

	s.lastMu.Lock()
	s.last = &sample
	s.lastMu.Unlock()

	s.logger.Record(sample)
	s.broadcast(sample)
}

func (s *Server) broadcast(sample coolmuscle.Sample) {
	data, err := json.Marshal(sample)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
