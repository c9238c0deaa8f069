// Package web provides the HTTP status and control server for the
// operant-box daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/sweeney/operant-box/internal/status"
)

// Command is a session request made over HTTP.
type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
)

// Server serves the status page and queues session commands. Handlers never
// touch the session directly; the control loop drains the command channel.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commands   chan<- Command
}

// New creates a Server that reads state from tracker and sends session
// commands on commands. metrics, if non-nil, is served at /metrics.
func New(addr string, tracker *status.Tracker, commands chan<- Command, metrics http.Handler) *Server {
	s := &Server{tracker: tracker, commands: commands}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/session/start", s.handleCommand(CommandStart))
	mux.HandleFunc("/session/stop", s.handleCommand(CommandStop))
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// CommandResponse is the body returned by the session endpoints.
type CommandResponse struct {
	Command  Command `json:"command"`
	Accepted bool    `json:"accepted"`
	Error    string  `json:"error,omitempty"`
}

func (s *Server) handleCommand(cmd Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := CommandResponse{Command: cmd}
		code := http.StatusAccepted
		select {
		case s.commands <- cmd:
			resp.Accepted = true
		default:
			resp.Error = "command queue full"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}
