package core

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hookscope/hookscope/internal/auth"
	"github.com/hookscope/hookscope/internal/capture"
	"github.com/hookscope/hookscope/internal/live"
	"github.com/hookscope/hookscope/internal/storage"
)

// Bodies of inbound captures are recorded up to this many bytes.
const captureBodyLimit = 1 << 20

// Server is the main HTTP server for hookscope
type Server struct {
	config  *Config
	store   *storage.Store
	capture *capture.Service
	live    *live.Handler
	oauth   *auth.OAuth
	router  chi.Router
}

// NewServer creates a new server instance
func NewServer(cfg *Config, store *storage.Store, captureSvc *capture.Service, liveHandler *live.Handler, oauth *auth.OAuth) *Server {
	s := &Server{
		config:  cfg,
		store:   store,
		capture: captureSvc,
		live:    liveHandler,
		oauth:   oauth,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(Recovery)
	r.Use(RequestLogger)
	r.Use(SecurityHeaders)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// Login flow (only mounted when a provider is configured)
	if s.oauth != nil {
		r.Get("/auth/login", s.oauth.HandleLogin)
		r.Get("/auth/callback", s.oauth.HandleCallback)
		r.Get("/auth/logout", s.handleLogout)
	}

	r.Route("/api/endpoints", func(r chi.Router) {
		// The capture route accepts any method from any sender; it is
		// deliberately outside the auth, timeout and rate-limit layers.
		r.Handle("/{id}/capture", http.HandlerFunc(s.handleCapture))

		// Management API for the viewer UI
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			rateLimiter := NewRateLimiter(100, time.Minute)
			r.Use(rateLimiter.Limit)
			r.Use(auth.Middleware(s.config.JWTSecret))

			r.Post("/", s.handleCreateEndpoint)
			r.Get("/", s.handleListEndpoints)
			r.Get("/{id}", s.handleGetEndpoint)
			r.Delete("/{id}", s.handleDeleteEndpoint)
			r.Get("/{id}/requests", s.handleListRequests)
		})
	})

	// Live delivery WebSocket, one connection per viewer per endpoint
	r.Get("/ws/endpoints/{id}", s.handleLiveWS)

	// Serve the viewer frontend in combined deployments
	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}

	s.router = r
}

// Health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: "1.0.0",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

type createEndpointRequest struct {
	Name string `json:"name"`
}

// endpointResponse is an endpoint plus its derived capture URL.
type endpointResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) endpointResponse(e *storage.Endpoint) endpointResponse {
	return endpointResponse{
		ID:        e.ID,
		Name:      e.Name,
		URL:       s.config.CaptureURL(e.ID),
		CreatedAt: e.CreatedAt,
	}
}

func (s *Server) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Endpoint name is required")
		return
	}

	endpoint, err := s.store.CreateEndpoint(r.Context(), auth.UserID(r), req.Name)
	if err != nil {
		log.Printf("Failed to create endpoint: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create endpoint")
		return
	}

	writeJSON(w, http.StatusCreated, s.endpointResponse(endpoint))
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := s.store.ListEndpoints(r.Context(), auth.UserID(r))
	if err != nil {
		log.Printf("Failed to list endpoints: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list endpoints")
		return
	}

	responses := make([]endpointResponse, 0, len(endpoints))
	for i := range endpoints {
		responses = append(responses, s.endpointResponse(&endpoints[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": responses})
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	endpoint, err := s.store.GetEndpoint(r.Context(), auth.UserID(r), id)
	if err != nil {
		s.writeStorageError(w, err, "Failed to get endpoint")
		return
	}

	writeJSON(w, http.StatusOK, s.endpointResponse(endpoint))
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteEndpoint(r.Context(), auth.UserID(r), id); err != nil {
		s.writeStorageError(w, err, "Failed to delete endpoint")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleCapture accepts any method, headers and body, records the request and
// returns the stored record. A missing endpoint is the sender's mistake (404),
// never a server error.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(io.LimitReader(r.Body, captureBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	request, err := s.capture.Capture(r.Context(), id, r.Method, r.Header, string(body))
	if err != nil {
		s.writeStorageError(w, err, "Failed to record request")
		return
	}

	writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Ownership gate before exposing captured data.
	if _, err := s.store.GetEndpoint(r.Context(), auth.UserID(r), id); err != nil {
		s.writeStorageError(w, err, "Failed to get endpoint")
		return
	}

	requests, err := s.store.ListCapturedRequests(r.Context(), id)
	if err != nil {
		log.Printf("Failed to list captured requests for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to list requests")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (s *Server) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.live.ServeEndpoint(w, r, id)
}

func (s *Server) writeStorageError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, storage.ErrEndpointNotFound) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
		return
	}
	log.Printf("%s: %v", message, err)
	writeError(w, http.StatusInternalServerError, message)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
