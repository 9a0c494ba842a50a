// Package api provides the HTTP endpoints of the strategy service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
	"github.com/mpapenbr/racestrategy-service-go/pkg/service"
	"github.com/mpapenbr/racestrategy-service-go/version"
)

// Subscriber provides live pipeline results
type Subscriber interface {
	Subscribe(ctx context.Context, session string) <-chan *pipeline.Result
}

type Health struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	DemoMode        bool   `json:"demo_mode"`
	FastMode        bool   `json:"fast_mode"`
	TelemetrySource string `json:"telemetry_source,omitempty"`
}

type EnrichedRequest struct {
	Enriched model.EnrichedRecord `json:"enriched" validate:"required"`
	Context  *model.RaceContext   `json:"race_context,omitempty"`
}

type StrategiesRequest struct {
	Telemetry []model.EnrichedRecord `json:"enriched_telemetry,omitempty" validate:"omitempty,dive"`
	Context   *model.RaceContext     `json:"race_context,omitempty"`
	Rank      bool                   `json:"rank"`
}

type (
	Option  func(*Handler)
	Handler struct {
		svc      *service.Service
		events   Subscriber
		health   Health
		validate *validator.Validate
		tracer   trace.Tracer
		l        *log.Logger
	}
)

func WithSubscriber(s Subscriber) Option {
	return func(h *Handler) {
		h.events = s
	}
}

func WithDemoMode(demo bool) Option {
	return func(h *Handler) {
		h.health.DemoMode = demo
	}
}

func WithFastMode(fast bool) Option {
	return func(h *Handler) {
		h.health.FastMode = fast
	}
}

func WithTelemetrySource(url string) Option {
	return func(h *Handler) {
		h.health.TelemetrySource = url
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handler) {
		h.tracer = tracer
	}
}

func WithLogger(l *log.Logger) Option {
	return func(h *Handler) {
		h.l = l
	}
}

func New(svc *service.Service, opts ...Option) *Handler {
	ret := &Handler{
		svc:      svc,
		health:   Health{Status: "ok", Version: version.Version},
		validate: newValidator(),
		tracer:   otel.Tracer("rss.api"),
		l:        log.Default().Named("api"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Router returns the routes of the service
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.traced)
	r.Get("/healthz", h.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", h.handleSessions)
		if h.events != nil {
			r.Get("/events", h.handleEvents)
		}
		r.Route("/sessions/{session}", func(r chi.Router) {
			r.Post("/telemetry", h.handleRawTelemetry)
			r.Post("/enriched", h.handleEnriched)
			r.Post("/strategies", h.handleStrategies)
			r.Get("/buffer", h.handleBuffer)
			r.Get("/state", h.handleState)
			r.Post("/reset", h.handleReset)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": h.svc.Sessions()})
}

func (h *Handler) handleRawTelemetry(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	if err := decode(w, r, &raw); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.IngestRaw(r.Context(), chi.URLParam(r, "session"), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleEnriched(w http.ResponseWriter, r *http.Request) {
	var req EnrichedRequest
	if err := h.decodeValid(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res := h.svc.IngestEnriched(r.Context(), chi.URLParam(r, "session"), req.Enriched, req.Context)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleStrategies(w http.ResponseWriter, r *http.Request) {
	var req StrategiesRequest
	if r.ContentLength != 0 {
		if err := h.decodeValid(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	res, err := h.svc.Generate(r.Context(), &service.GenerateRequest{
		Session:   chi.URLParam(r, "session"),
		Telemetry: req.Telemetry,
		Context:   req.Context,
		Rank:      req.Rank,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleBuffer(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		var err error
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			h.writeError(w, r, fmt.Errorf("%w: limit must be a non-negative number", errBadRequest))
			return
		}
	}
	writeJSON(w, http.StatusOK, h.svc.BufferInfo(chi.URLParam(r, "session"), limit))
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.State(chi.URLParam(r, "session")))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	h.svc.Reset(session)
	writeJSON(w, http.StatusOK, map[string]string{"session": session, "status": "reset"})
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decode(w, r, dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %w", errBadRequest, err)
	}
	return nil
}

// newValidator reports fields by their json names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
