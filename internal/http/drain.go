package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/query"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// serviceFetcher answers dashboard queries in-process with the status and
// body GET /weather/{city} would have produced. Search switches to it once
// shutdown starts, since the listener the HTTP fetcher dials is closed while
// in-flight requests drain.
type serviceFetcher struct {
	svc *service.WeatherService
}

func (f serviceFetcher) Fetch(ctx context.Context, city string) (int, []byte, error) {
	// An empty path segment never matches /weather/{city}.
	if city == "" {
		return http.StatusNotFound, []byte("404 page not found\n"), nil
	}
	observability.RecordWeatherQuery(city)

	result, err := f.svc.GetWeather(ctx, city)
	if errors.Is(err, client.ErrCityNotFound) {
		return http.StatusNotFound, []byte(`{"detail":"City not found"}`), nil
	}
	if err != nil {
		return http.StatusServiceUnavailable, nil, nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, body, nil
}

// dashboardFetcher picks the fetcher for one /search request.
func (h *Handler) dashboardFetcher() query.Fetcher {
	if lifecycle.IsShuttingDown() && h.weatherService != nil {
		return serviceFetcher{svc: h.weatherService}
	}
	return h.fetcher
}
