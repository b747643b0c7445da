// Package api exposes the ingestion gateway over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hjagadishkumar/alfalfa-yield/internal/aggregate"
	"github.com/hjagadishkumar/alfalfa-yield/internal/wire"
	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the per-request id in both directions
const RequestIDHeader = "X-Request-ID"

// multipart framing allowance on top of the slot payloads
const formOverheadBytes = 1 << 20

// Submitter is the gateway as seen by the HTTP layer
type Submitter interface {
	SubmitSingleFile(ctx context.Context, payload []byte, filename string) (models.Metrics, error)
	SubmitMultiFile(ctx context.Context, slots map[string]models.FilePart) (*models.PredictionResult, error)
	MaxSlotBytes() int64
}

// Server routes HTTP requests to the gateway
type Server struct {
	gateway Submitter
	router  *mux.Router
	logger  zerolog.Logger
}

// NewServer builds the router for the upload API
func NewServer(gateway Submitter) *Server {
	s := &Server{
		gateway: gateway,
		router:  mux.NewRouter(),
		logger:  log.With().Str("component", "api").Logger(),
	}

	s.router.Use(s.requestContext)
	s.router.HandleFunc(wire.UploadPath, s.handleUpload).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	maxSlot := s.gateway.MaxSlotBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxSlot*int64(len(models.CanonicalSlots))+formOverheadBytes)

	files, err := wire.Decode(r, maxSlot)
	if err != nil {
		logger.Info().Err(err).Msg("Unreadable upload body")
		var perr *models.Error
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &perr):
			writeError(w, err)
		case errors.As(err, &tooBig):
			writeError(w, models.Wrap(models.KindPayloadTooLarge, err, "upload exceeds %d bytes", tooBig.Limit))
		default:
			writeErrorStatus(w, http.StatusBadRequest, "BadRequest", "expected a multipart/form-data body: "+err.Error())
		}
		return
	}

	if isSingleFile(files) {
		s.handleSingleFile(w, r, files)
		return
	}

	slots := make(map[string]models.FilePart, len(files))
	for _, f := range files {
		if _, dup := slots[f.Field]; dup {
			writeError(w, models.NewError(models.KindUnknownSlot, "slot %q given more than once", f.Field))
			return
		}
		slots[f.Field] = models.FilePart{Filename: f.Filename, Payload: f.Payload}
	}

	result, err := s.gateway.SubmitMultiFile(r.Context(), slots)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := aggregate.Serialize(result)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, data)
}

func (s *Server) handleSingleFile(w http.ResponseWriter, r *http.Request, files []wire.FormFile) {
	if len(files) != 1 {
		writeError(w, models.NewError(models.KindUnknownSlot,
			"a single-file upload carries exactly one part named %q", models.SingleFileField))
		return
	}

	metrics, err := s.gateway.SubmitSingleFile(r.Context(), files[0].Payload, files[0].Filename)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := aggregate.SerializeMetrics(metrics)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, data)
}

func isSingleFile(files []wire.FormFile) bool {
	for _, f := range files {
		if f.Field == models.SingleFileField {
			return true
		}
	}
	return false
}

// requestContext tags each request with an id and a logger carrying it
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := log.With().Str("request_id", id).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
