package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"riskd/internal/reqctx"
	"riskd/internal/scorer"
	"riskd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Handle(ctx context.Context, raw any) (types.ScoringResult, error)
	Ready(ctx context.Context) (types.ReadyResponse, bool)
	Mode() scorer.Mode
}

type handlers struct {
	svc  Service
	opts Options
}

// NewMux builds the HTTP router.
func NewMux(svc Service, opts Options) http.Handler {
	opts = opts.withDefaults()
	h := &handlers{svc: svc, opts: opts}

	r := chi.NewRouter()
	r.Use(reqctx.Middleware(opts.Logger))
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(MetricsMiddleware)
	r.Use(recoverer)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(privateNetworkAccess)
	r.Use(corsHandler(opts))
	r.Use(middleware.Compress(5, "application/json"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, "NotFound", "not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed", "")
	})

	r.Get("/", h.root)
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Post("/api/predict", h.predict)

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

// root godoc
// @Summary      Service banner
// @Tags         ops
// @Produce      json
// @Success      200  {object}  types.RootResponse
// @Router       / [get]
func (h *handlers) root(w http.ResponseWriter, r *http.Request) {
	resp := types.RootResponse{Service: h.opts.ServiceName, Status: "running"}
	if h.opts.FrontendURL != "*" {
		resp.Frontend = h.opts.FrontendURL
	}
	writeJSON(w, http.StatusOK, resp)
}

// healthz godoc
// @Summary      Liveness probe
// @Tags         ops
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Router       /healthz [get]
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}

// readyz godoc
// @Summary      Readiness probe
// @Description  In remote mode the scoring service is probed with a short timeout.
// @Tags         ops
// @Produce      json
// @Success      200  {object}  types.ReadyResponse
// @Failure      503  {object}  types.ReadyResponse
// @Router       /readyz [get]
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.svc.Ready(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// predict godoc
// @Summary      Score heart-disease risk
// @Description  Accepts a single record, a batch of records, a feature matrix, or an
// @Description  already canonical {"input": ...} / {"values": ...} object.
// @Tags         scoring
// @Accept       json
// @Produce      json
// @Param        X-Request-ID  header    string  false  "Correlation identifier"
// @Success      200  {object}  types.ScoringResult
// @Failure      400  {object}  types.ErrorResponse
// @Failure      413  {object}  types.ErrorResponse
// @Failure      415  {object}  types.ErrorResponse
// @Failure      422  {object}  types.ErrorResponse
// @Failure      500  {object}  types.ErrorResponse
// @Failure      502  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Failure      504  {object}  types.ErrorResponse
// @Router       /api/predict [post]
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		writeJSONError(w, r, http.StatusUnsupportedMediaType, kindUnsupportedType, "Content-Type must be application/json", "")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	raw, err := decodeBody(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, kindPayloadTooLarge,
				"request body too large", fmt.Sprintf("limit is %d bytes", mbe.Limit))
			return
		}
		writeJSONError(w, r, http.StatusBadRequest, kindBadRequest, "invalid JSON body", err.Error())
		return
	}

	logger := zerolog.Ctx(r.Context())
	res, err := h.svc.Handle(scoringContext(r), raw)
	if err != nil {
		status := writeFailure(w, r, err)
		logger.Warn().Int("status", status).Str("kind", string(scorer.KindOf(err))).Err(err).Msg("prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// isJSONContentType accepts application/json and +json media types, with
// any parameters and in any case.
func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// decodeBody reads exactly one JSON value. Numbers are kept as json.Number
// so they reach the scorer unchanged.
func decodeBody(body io.Reader) (any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty body")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}
