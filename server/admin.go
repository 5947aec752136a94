// Package server provides the HTTP and WebSocket surface of the jukebox
// daemon: mode switching, tag provisioning in admin mode and an event feed
// for monitoring tools.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/grandcat/zeroconf"
)

// Mode names the daemon's operating mode.
type Mode string

const (
	ModeStarting Mode = "starting"
	ModeJukebox  Mode = "jukebox"
	ModeAdmin    Mode = "admin"
)

// ErrNotAdminMode is returned by tag operations outside admin mode, where the
// jukebox loop owns the reader.
var ErrNotAdminMode = errors.New("tag access requires admin mode")

// Agent is the daemon controlled by this server.
type Agent interface {
	CurrentMode() Mode
	SetMode(mode Mode) error
	// ReadTag reads the playback request document from the present tag.
	// Only valid in admin mode.
	ReadTag(ctx context.Context) (string, error)
	// WriteTag stores a playback request document on the present tag.
	// Only valid in admin mode.
	WriteTag(ctx context.Context, request string) error
}

// mDNS service discovery constants.
var (
	MDNSServiceType = "_rustberry._tcp"
	MDNSDomain      = "local."
)

// Config holds the server configuration.
type Config struct {
	Port int
	// DeviceName labels the mDNS advertisement. Empty disables mDNS.
	DeviceName string
}

// Server manages the admin HTTP endpoints and the WebSocket event feed.
type Server struct {
	config     Config
	agent      Agent
	events     *EventFeed
	httpServer *http.Server
	mdnsServer *zeroconf.Server
}

// New creates a new server instance for the given agent.
func New(config Config, agent Agent) *Server {
	return &Server{
		config: config,
		agent:  agent,
		events: NewEventFeed(),
	}
}

// Events returns the feed the daemon publishes watcher events to.
func (s *Server) Events() *EventFeed {
	return s.events
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/mode", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.writeJSON(w, map[string]any{"mode": s.agent.CurrentMode()})
	})
	mux.HandleFunc("/mode-jukebox", s.handleSetMode(ModeJukebox))
	mux.HandleFunc("/mode-admin", s.handleSetMode(ModeAdmin))
	mux.HandleFunc("/admin/rfid-tag", s.handleTag)
	mux.HandleFunc("/events", s.events.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, map[string]any{
			"status":    "ok",
			"mode":      s.agent.CurrentMode(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	return mux
}

// Start binds the HTTP server and registers the mDNS service. It returns once
// the listener is running.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.routes(),
	}

	go func() {
		log.Printf("Admin server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Admin server error: %v", err)
		}
	}()

	if s.config.DeviceName != "" {
		if err := s.startMDNS(); err != nil {
			log.Printf("Warning: failed to register mDNS service: %v", err)
		}
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		log.Println("mDNS service stopped")
	}
	s.events.CloseAll()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		s.httpServer = nil
	}
}

func (s *Server) handleSetMode(mode Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		log.Printf("Mode switch requested: %s", mode)
		if err := s.agent.SetMode(mode); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// handleTag serves tag provisioning: GET reads the request document from the
// present tag, PUT writes a new one.
func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		request, err := s.agent.ReadTag(r.Context())
		if err != nil {
			s.tagError(w, err)
			return
		}
		s.writeJSON(w, map[string]any{"request": request})
	case http.MethodPut:
		var body struct {
			Request string `json:"request"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if body.Request == "" {
			http.Error(w, "Missing request document", http.StatusBadRequest)
			return
		}
		if err := s.agent.WriteTag(r.Context(), body.Request); err != nil {
			s.tagError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) tagError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotAdminMode) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// startMDNS registers the daemon for auto-discovery on the local network.
func (s *Server) startMDNS() error {
	txtRecords := []string{
		"version=1.0",
		"events=/events",
	}
	server, err := zeroconf.Register(s.config.DeviceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	s.mdnsServer = server
	log.Printf("mDNS service registered: %s on port %d", s.config.DeviceName, s.config.Port)
	return nil
}
