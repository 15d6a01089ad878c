// Package query turns a submitted city into a render state: it calls the
// weather endpoint, classifies the outcome and records successful searches.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// RenderKind is the outcome class of a query.
type RenderKind string

const (
	KindSuccess  RenderKind = "success"
	KindNotFound RenderKind = "not_found"
	KindError    RenderKind = "error"
)

// RenderState is what the result region shows for one submission.
// Result is set only for KindSuccess.
type RenderState struct {
	Kind      RenderKind
	Submitted string
	Result    *models.WeatherResult
}

// Resolve classifies a fetch outcome. A transport error, or a 2xx body that is
// not a weather object naming a city (including null), is KindError; any
// non-2xx status is KindNotFound.
func Resolve(city string, status int, body []byte, err error) RenderState {
	state := RenderState{Kind: KindError, Submitted: city}
	if err != nil {
		return state
	}
	if status < 200 || status > 299 {
		state.Kind = KindNotFound
		return state
	}
	var result *models.WeatherResult
	if jsonErr := json.Unmarshal(body, &result); jsonErr != nil || result == nil || result.City == "" {
		return state
	}
	state.Kind = KindSuccess
	state.Result = result
	return state
}

// Fetcher retrieves the raw weather endpoint response for a city.
type Fetcher interface {
	Fetch(ctx context.Context, city string) (status int, body []byte, err error)
}

// Recorder persists a successfully queried city.
type Recorder interface {
	Record(ctx context.Context, city string) error
}

// HTTPFetcher calls GET {BaseURL}/weather/{city}.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher returns a fetcher with a plain http.Client: no timeout and
// no retries, so a hung endpoint surfaces only through ctx.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{BaseURL: strings.TrimRight(baseURL, "/"), Client: &http.Client{}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, city string) (int, []byte, error) {
	endpoint := f.BaseURL + "/weather/" + url.PathEscape(city)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if id := observability.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("get weather: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// Handler runs one submission end to end.
type Handler struct {
	fetcher  Fetcher
	recorder Recorder
	logger   *zap.Logger
}

// NewHandler wires a fetcher and recorder. recorder and logger may be nil.
func NewHandler(fetcher Fetcher, recorder Recorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{fetcher: fetcher, recorder: recorder, logger: logger}
}

// Submit fetches weather for city and returns the render state. Only a
// success records the city, exactly as entered.
func (h *Handler) Submit(ctx context.Context, city string) RenderState {
	status, body, err := h.fetcher.Fetch(ctx, city)
	state := Resolve(city, status, body, err)
	observability.DashboardRendersTotal.WithLabelValues(string(state.Kind)).Inc()

	switch state.Kind {
	case KindSuccess:
		if h.recorder != nil {
			if recErr := h.recorder.Record(ctx, city); recErr != nil {
				h.logger.Warn("record recent search failed", zap.String("city", city), zap.Error(recErr))
			}
		}
	case KindNotFound:
		h.logger.Info("city not found", zap.String("city", city), zap.Int("status", status))
	case KindError:
		h.logger.Warn("weather query failed", zap.String("city", city), zap.Int("status", status), zap.Error(err))
	}
	return state
}
