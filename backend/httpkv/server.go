package httpkv

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/arqcache/qcache/internal/qlog"
	"github.com/arqcache/qcache/storage"
)

// Server exposes an underlying storage.Backend over HTTP. It is itself
// just a thin translation layer; all actual storage semantics come from
// the wrapped backend.
type Server struct {
	backend  storage.Backend
	verifier storage.VerificationReporter
	limiter  *rate.Limiter
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithRateLimit caps the server's accepted request rate using a token
// bucket (requests per second, with the given burst), the same shape the
// retrieved corpus's API gateway middleware applies ahead of its plugin
// handlers. A request over the limit gets 429 Too Many Requests rather
// than queuing.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewServer wraps backend for remote access. If backend also implements
// storage.VerificationReporter, POSTed verification reports are forwarded
// to it; otherwise they are logged and discarded.
func NewServer(backend storage.Backend, opts ...ServerOption) *Server {
	s := &Server{backend: backend}
	if v, ok := backend.(storage.VerificationReporter); ok {
		s.verifier = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the mux.Router serving this backend's wire protocol.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	if s.limiter != nil {
		r.Use(s.rateLimitMiddleware)
	}
	r.HandleFunc("/v1/entries/{key}", s.handleGetEntry).Methods(http.MethodGet)
	r.HandleFunc("/v1/entries/{key}", s.handlePutEntry).Methods(http.MethodPut)
	r.HandleFunc("/v1/entries/{key}", s.handleDeleteEntry).Methods(http.MethodDelete)
	r.HandleFunc("/v1/tags/{tag}", s.handleGetTag).Methods(http.MethodGet)
	r.HandleFunc("/v1/tags/{tag}", s.handlePutTag).Methods(http.MethodPut)
	r.HandleFunc("/v1/clear", s.handleClear).Methods(http.MethodPost)
	r.HandleFunc("/v1/verify", s.handleVerify).Methods(http.MethodPost)
	return r
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	e, err := s.backend.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	wire, err := encodeEntry(e)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, wire)
}

func (s *Server) handlePutEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var wire wireEntry
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := decodeEntry(wire)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.backend.Set(r.Context(), key, e); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := s.backend.Delete(r.Context(), key); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	ts, err := s.backend.GetTagInvalidation(r.Context(), tag)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tagTimestamp{Timestamp: ts})
}

func (s *Server) handlePutTag(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	var body tagTimestamp
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.backend.SetTagInvalidation(r.Context(), tag, body.Timestamp); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Clear(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body verificationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report := storage.VerificationReport{
		Key:        body.Key,
		IsStale:    body.IsStale,
		CachedHash: body.CachedHash,
		FreshHash:  body.FreshHash,
		Timestamp:  body.Timestamp,
	}
	if s.verifier == nil {
		qlog.Debug("httpkv: verification report for %s received, no underlying reporter wired", body.Key)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.verifier.ReportVerification(r.Context(), report); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
