package http

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/query"
	"github.com/kjstillabower/weather-dashboard/internal/recent"
	"github.com/kjstillabower/weather-dashboard/internal/render"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// HealthConfig holds optional dependency probes for the health handler.
type HealthConfig struct {
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
	// StoragePing, when set, checks the recent-searches backend.
	StoragePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService   *service.WeatherService
	fetcher          query.Fetcher
	storage          recent.Storage
	capacity         int
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. fetcher is what the dashboard uses to
// reach the weather endpoint, normally an HTTP fetcher pointed at this server.
func NewHandler(
	weatherService *service.WeatherService,
	fetcher query.Fetcher,
	storage recent.Storage,
	capacity int,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		weatherService: weatherService,
		fetcher:        fetcher,
		storage:        storage,
		capacity:       capacity,
		healthConfig:   healthConfig,
		logger:         logger,
	}
}

// GetWeather handles GET /weather/{city}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	observability.RecordWeatherQuery(city)

	result, err := h.weatherService.GetWeather(r.Context(), city)
	if err != nil {
		if errors.Is(err, client.ErrCityNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "City not found"})
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Dashboard handles GET /: the page with empty result and recent regions.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ensureSession(w, r)
	h.writePage(w, r, render.PageData{})
}

// Search handles POST /search. The form field city is passed through as
// entered. With fragment=1 only the #result region is returned.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORM", "malformed form body")
		return
	}
	city := r.PostFormValue("city")
	logger := h.requestLogger(r)

	store := h.storeFor(w, r, logger)
	state := query.NewHandler(h.dashboardFetcher(), store, logger).Submit(r.Context(), city)
	region, err := render.Weather(state)
	if err != nil {
		h.renderFailed(w, r, err)
		return
	}
	if r.FormValue("fragment") == "1" {
		writeHTML(w, region)
		return
	}
	h.writePage(w, r, render.PageData{City: city, Result: region})
}

// Recent handles GET /recent. With fragment=1 only the #recentSearches
// region is returned.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	list, _ := h.storeFor(w, r, logger).List(r.Context())
	region, err := render.Recent(list)
	if err != nil {
		h.renderFailed(w, r, err)
		return
	}
	if r.URL.Query().Get("fragment") == "1" {
		writeHTML(w, region)
		return
	}
	h.writePage(w, r, render.PageData{Recent: region})
}

func (h *Handler) storeFor(w http.ResponseWriter, r *http.Request, logger *zap.Logger) *recent.Store {
	return recent.NewStore(h.storage, recent.SessionKey(ensureSession(w, r)), h.capacity, logger)
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, data render.PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.Page(w, data); err != nil {
		h.requestLogger(r).Error("page render failed", zap.Error(err))
	}
}

func (h *Handler) renderFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.requestLogger(r).Error("render failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	if logger := observability.LoggerFrom(r.Context()); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return zap.NewNop()
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status && h.logger != nil {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "api_key_invalid" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil {
		if h.healthConfig.CachePing != nil {
			checks["cache"] = probe(r.Context(), h.healthConfig.CachePing)
		}
		if h.healthConfig.StoragePing != nil {
			checks["recentStorage"] = probe(r.Context(), h.healthConfig.StoragePing)
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-dashboard",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down, then upstream
// credentials. Dependency probes are reported but do not change the status.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.weatherService.ValidateUpstream(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func probe(ctx context.Context, ping func(context.Context) error) string {
	if ping(ctx) == nil {
		return "healthy"
	}
	return "unhealthy"
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, fragment template.HTML) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(fragment))
}

// writeError writes an error response with code, message and the request
// correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes 503 for upstream failures other than an unknown city.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	if logger := observability.LoggerFrom(r.Context()); logger != nil {
		logger.Debug("upstream error", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	}
}
