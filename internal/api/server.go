package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tvbridge/internal/bridge"
	"tvbridge/internal/controls"
	"tvbridge/internal/tvoverlay"

	"go.uber.org/zap"
)

// Server provides the HTTP API in front of the bridge operations
type Server struct {
	service *bridge.Service
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(service *bridge.Service, logger *zap.Logger, port int) *Server {
	s := &Server{
		service: service,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/devices/", s.handleDeviceTest)
	mux.HandleFunc("/api/notify", s.handleNotify)
	mux.HandleFunc("/api/notify_fixed", s.handleNotifyFixed)
	mux.HandleFunc("/api/clear_fixed", s.handleClearFixed)
	mux.HandleFunc("/api/clear_notifications", s.handleClearNotifications)
	mux.HandleFunc("/api/controls", s.handleControls)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// respondJSON writes a JSON response with the given status
func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// decode reads a JSON request body. An empty body is accepted and leaves
// the target struct zeroed so the operation's own validation reports what
// is missing.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

// writeOutcome maps an operation result onto an HTTP response: validation
// failures are 400, unresolvable targets 404, unreachable devices 502, and
// everything the device itself answered is a 200 carrying the ok flag.
func (s *Server) writeOutcome(w http.ResponseWriter, ok bool, err error) {
	if err == nil {
		s.respondJSON(w, http.StatusOK, map[string]bool{"ok": ok})
		return
	}

	var validationErr *bridge.ValidationError
	var connErr *tvoverlay.ConnectionError
	switch {
	case errors.As(err, &validationErr):
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": validationErr.Reason})
	case errors.Is(err, bridge.ErrNoDevice):
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "no matching device"})
	case errors.As(err, &connErr):
		s.respondJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"devices": len(s.service.Devices()),
	})
}

// handleDevices lists the configured devices with their persisted state
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.respondJSON(w, http.StatusOK, s.service.Devices())

	s.logger.Debug("Device list served", zap.String("remote_addr", r.RemoteAddr))
}

// handleDeviceTest checks whether a configured device answers its API.
// Routed as POST /api/devices/{key}/test.
func (s *Server) handleDeviceTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	key, action, found := strings.Cut(rest, "/")
	if !found || key == "" || action != "test" {
		http.NotFound(w, r)
		return
	}

	ok, err := s.service.TestDevice(r.Context(), key)
	s.writeOutcome(w, ok, err)
}

// handleNotify sends a transient notification
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params bridge.NotifyParams
	if !s.decode(w, r, &params) {
		return
	}

	ok, err := s.service.Notify(r.Context(), params)
	s.writeOutcome(w, ok, err)
}

// handleNotifyFixed creates or updates a fixed notification
func (s *Server) handleNotifyFixed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params bridge.FixedParams
	if !s.decode(w, r, &params) {
		return
	}

	ok, err := s.service.NotifyFixed(r.Context(), params)
	s.writeOutcome(w, ok, err)
}

// handleClearFixed dismisses a fixed notification by ID
func (s *Server) handleClearFixed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params bridge.ClearFixedParams
	if !s.decode(w, r, &params) {
		return
	}

	ok, err := s.service.ClearFixed(r.Context(), params)
	s.writeOutcome(w, ok, err)
}

// handleClearNotifications dismisses the on-screen notification
func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var target bridge.Target
	if !s.decode(w, r, &target) {
		return
	}

	ok, err := s.service.ClearNotifications(r.Context(), target)
	s.writeOutcome(w, ok, err)
}

// ControlDescription documents one control for API consumers
type ControlDescription struct {
	Key     string   `json:"key"`
	Kind    string   `json:"kind"`
	Min     int      `json:"min"`
	Max     int      `json:"max"`
	Options []string `json:"options,omitempty"`
	Local   bool     `json:"local,omitempty"`
}

// handleControls lists the control table on GET and applies a control
// value on POST
func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		descriptions := make([]ControlDescription, 0, len(controls.All))
		for _, c := range controls.All {
			descriptions = append(descriptions, ControlDescription{
				Key:     c.Key,
				Kind:    string(c.Kind),
				Min:     c.Min,
				Max:     c.Max,
				Options: c.Options,
				Local:   !c.DeviceBacked(),
			})
		}
		s.respondJSON(w, http.StatusOK, descriptions)

	case http.MethodPost:
		var params bridge.ControlParams
		if !s.decode(w, r, &params) {
			return
		}

		ok, err := s.service.ApplyControl(r.Context(), params)
		s.writeOutcome(w, ok, err)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	// Only handle requests to the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoints := []Endpoint{
		{
			Path:        "/",
			Method:      "GET",
			Description: "This sitemap - lists all available API endpoints",
		},
		{
			Path:        "/health",
			Method:      "GET",
			Description: "Health check endpoint - returns status and device count",
		},
		{
			Path:        "/api/devices",
			Method:      "GET",
			Description: "List configured devices with their fixed notifications and preferences",
		},
		{
			Path:        "/api/devices/{key}/test",
			Method:      "POST",
			Description: "Check whether a configured device answers its API",
		},
		{
			Path:        "/api/notify",
			Method:      "POST",
			Description: "Send a transient notification to a device",
		},
		{
			Path:        "/api/notify_fixed",
			Method:      "POST",
			Description: "Create or update a fixed notification on a device",
		},
		{
			Path:        "/api/clear_fixed",
			Method:      "POST",
			Description: "Dismiss a fixed notification by id",
		},
		{
			Path:        "/api/clear_notifications",
			Method:      "POST",
			Description: "Clear the on-screen notification on a device",
		},
		{
			Path:        "/api/controls",
			Method:      "GET",
			Description: "List the available device controls",
		},
		{
			Path:        "/api/controls",
			Method:      "POST",
			Description: "Apply a control value to a device",
		},
	}

	// Browsers get HTML, everything else a terminal-friendly listing
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")
	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}

	// Return 404 status code (for automation compatibility) but with helpful body
	w.WriteHeader(http.StatusNotFound)

	if preferHTML {
		// HTML format for browsers
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>TV Bridge API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        h2 { color: #569cd6; margin-top: 30px; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
        a { color: #569cd6; text-decoration: none; }
        a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1>TV Bridge API</h1>
    <p>Welcome! This API sends notifications to TvOverlay devices and adjusts their settings.</p>
    <h2>Available Endpoints</h2>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, `    <h2>Examples</h2>
    <div class="endpoint">
        <div>Send a notification:</div>
        <div class="description">curl -X POST -d '{"device_id": "living_room", "title": "Hi"}' http://localhost:8423/api/notify</div>
    </div>
    <div class="endpoint">
        <div>List devices:</div>
        <div class="description">curl <a href="/api/devices">http://localhost:8423/api/devices</a></div>
    </div>
</body>
</html>
`)
	} else {
		// Plain text format for terminal
		fmt.Fprintf(w, "TV Bridge API\n")
		fmt.Fprintf(w, "=============\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-10s %-30s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExamples:\n\n")
		fmt.Fprintf(w, "  Send a notification:\n")
		fmt.Fprintf(w, "    curl -X POST -d '{\"device_id\": \"living_room\", \"title\": \"Hi\"}' http://localhost:8423/api/notify\n\n")
		fmt.Fprintf(w, "  List devices:\n")
		fmt.Fprintf(w, "    curl http://localhost:8423/api/devices\n\n")
		fmt.Fprintf(w, "  Health check:\n")
		fmt.Fprintf(w, "    curl http://localhost:8423/health\n\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
