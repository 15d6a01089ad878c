package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/recent"
)

// While draining, the self-call listener is gone; search must still answer
// from the service in-process.
func TestHandler_SearchWhileShuttingDown(t *testing.T) {
	t.Cleanup(func() { lifecycle.SetShuttingDown(false) })
	closed := stubFetcher{err: errors.New("dial tcp: connection refused")}

	tests := []struct {
		name         string
		shuttingDown bool
		client       *mockWeatherClient
		wantText     string
		wantRecent   string
	}{
		{"draining success", true, &mockWeatherClient{weather: models.WeatherResult{City: "London", Temperature: 15, Description: "Cloudy"}}, "Weather in London", "<h3>Recent Searches:</h3><ul><li>London</li></ul>"},
		{"draining unknown city", true, &mockWeatherClient{err: client.ErrCityNotFound}, "City not found. Please try again.", "<p>No recent searches.</p>"},
		{"draining upstream down", true, &mockWeatherClient{err: client.ErrUpstreamFailure}, "City not found. Please try again.", "<p>No recent searches.</p>"},
		{"serving uses self-call", false, &mockWeatherClient{weather: models.WeatherResult{City: "London"}}, "Error fetching weather data. Please try later.", "<p>No recent searches.</p>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lifecycle.SetShuttingDown(tc.shuttingDown)
			h := newTestHandler(tc.client, closed, recent.NewMemoryStorage())

			w := serve(h, searchRequest("London", "6f1c2a3e-1111-4222-8333-944445555666"))
			if got := document(t, w.Body.String()).Find("#result").Text(); !strings.Contains(got, tc.wantText) {
				t.Errorf("#result = %q, want %q", got, tc.wantText)
			}

			req := httptest.NewRequest(http.MethodGet, "/recent?fragment=1", nil)
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "6f1c2a3e-1111-4222-8333-944445555666"})
			if got := serve(h, req).Body.String(); got != tc.wantRecent {
				t.Errorf("recent = %q, want %q", got, tc.wantRecent)
			}
		})
	}
}

func TestServiceFetcher_EmptyCityIsNotFound(t *testing.T) {
	h := newTestHandler(&mockWeatherClient{}, stubFetcher{}, recent.NewMemoryStorage())
	status, _, err := serviceFetcher{svc: h.weatherService}.Fetch(context.Background(), "")
	if err != nil || status != http.StatusNotFound {
		t.Errorf("Fetch(\"\") = %d, %v; want 404, nil", status, err)
	}
}
