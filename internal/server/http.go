package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	jsonwriter "github.com/dgellow/rest-api-import/internal/json"
	"github.com/dgellow/rest-api-import/internal/log"
)

// HTTPServer runs the admin service. It knows the public settings URL so
// operators can find the page from the startup and shutdown logs.
type HTTPServer struct {
	server      *http.Server
	settingsURL string

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServer creates a server for handler on addr
func NewHTTPServer(handler http.Handler, addr, settingsURL string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		settingsURL: settingsURL,
	}
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string `json:"status"`
	Linked *bool  `json:"linked,omitempty"`
}

// HealthHandler reports whether the token store answers. With a nil
// LinkStatus it only reports liveness.
type HealthHandler struct {
	status LinkStatus
}

// NewHealthHandler creates a health handler backed by status
func NewHealthHandler(status LinkStatus) *HealthHandler {
	return &HealthHandler{status: status}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		_ = jsonwriter.Write(w, HealthResponse{Status: "ok"})
		return
	}

	linked, err := h.status.IsLinked(r.Context())
	if err != nil {
		log.LogWarnWithFields("health", "Token store unreachable", map[string]any{
			"error": err.Error(),
		})
		_ = jsonwriter.WriteResponse(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	_ = jsonwriter.Write(w, HealthResponse{Status: "ok", Linked: &linked})
}

// Addr returns the bound address once Start is listening, or nil
func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Start blocks serving requests until Stop is called
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	log.LogInfoWithFields("http", "Settings page available", map[string]any{
		"addr":        ln.Addr().String(),
		"settingsURL": h.settingsURL,
	})

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop waits for in-flight link callbacks to finish, up to ctx's deadline
func (h *HTTPServer) Stop(ctx context.Context) error {
	log.LogInfoWithFields("http", "Settings page going offline", map[string]any{
		"settingsURL": h.settingsURL,
	})
	if deadline, ok := ctx.Deadline(); ok {
		log.LogDebug("Draining settings requests for up to %s", time.Until(deadline).Round(time.Millisecond))
	}

	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{
		"settingsURL": h.settingsURL,
	})
	return nil
}
