package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	serviceName    = "heart-disease-api"
	serviceVersion = "1.0.0"
)

// Server exposes the prediction service over HTTP.
type Server struct {
	service *Service
	server  *http.Server
}

// NewServer wires the HTTP routes for the prediction service.
func NewServer(service *Service, port int) *Server {
	s := &Server{service: service}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/predict", s.handlePredict).Methods("POST")
	r.HandleFunc("/model/info", s.handleModelInfo).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests and blocks until the server stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting prediction server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the route handler, useful for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"status":  "healthy",
		"version": serviceVersion,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.service.State()

	status := http.StatusOK
	label := "healthy"
	if state == StateUnavailable {
		status = http.StatusServiceUnavailable
		label = "unhealthy"
	}

	writeJSON(w, status, map[string]any{
		"status":              label,
		"state":               state.String(),
		"model_loaded":        s.service.ModelLoaded(),
		"preprocessor_loaded": s.service.PreprocessorLoaded(),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var patient PatientFeatures
	if err := json.NewDecoder(r.Body).Decode(&patient); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := s.service.Predict(r.Context(), patient)
	if err != nil {
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Error())
		case errors.Is(err, ErrServiceUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			log.Error().Err(err).Msg("Prediction failed")
			writeError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if !s.service.ModelLoaded() {
		writeError(w, http.StatusServiceUnavailable, "no model is loaded")
		return
	}

	info := s.service.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"model":      s.service.ModelName(),
		"type":       info.Type,
		"trained_at": info.TrainedAt,
		"features":   info.Features,
		"state":      s.service.State().String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
