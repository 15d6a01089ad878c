package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

type mockWeatherClient struct {
	weather     models.WeatherResult
	err         error
	validateErr error
	calls       int
	lastCity    string
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.WeatherResult, error) {
	m.calls++
	m.lastCity = city
	return m.weather, m.err
}

func (m *mockWeatherClient) ValidateAPIKey(ctx context.Context) error {
	return m.validateErr
}

type mockCache struct {
	data   map[string]models.WeatherResult
	getErr error
	setErr error
}

func (m *mockCache) Get(ctx context.Context, key string) (models.WeatherResult, bool, error) {
	if m.getErr != nil {
		return models.WeatherResult{}, false, m.getErr
	}
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value models.WeatherResult, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.data == nil {
		m.data = make(map[string]models.WeatherResult)
	}
	m.data[key] = value
	return nil
}

func TestNormalizeCity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" London ", "london"},
		{"london", "london"},
		{"LoNdOn", "london"},
		{"  New York  ", "new york"},
	}
	for _, tc := range tests {
		if got := normalizeCity(tc.in); got != tc.want {
			t.Errorf("normalizeCity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestWeatherService_GetWeather_CacheHit verifies a cached entry is served
// without an upstream call.
func TestWeatherService_GetWeather_CacheHit(t *testing.T) {
	cached := models.WeatherResult{City: "London", Temperature: 15, Description: "Cloudy"}
	mc := &mockWeatherClient{}
	svc := NewWeatherService(mc, &mockCache{data: map[string]models.WeatherResult{"london": cached}}, Options{})

	got, err := svc.GetWeather(context.Background(), "London")
	if err != nil {
		t.Fatalf("GetWeather() error = %v, want nil", err)
	}
	if got != cached {
		t.Errorf("GetWeather() = %+v, want %+v", got, cached)
	}
	if mc.calls != 0 {
		t.Errorf("upstream calls = %d, want 0", mc.calls)
	}
}

func TestWeatherService_GetWeather_CacheMiss_UpstreamSuccess(t *testing.T) {
	upstream := models.WeatherResult{City: "Paris", Temperature: 18.3, Description: "Sunny"}
	mc := &mockWeatherClient{weather: upstream}
	cache := &mockCache{}
	svc := NewWeatherService(mc, cache, Options{TTL: time.Hour})

	got, err := svc.GetWeather(context.Background(), " Paris ")
	if err != nil {
		t.Fatalf("GetWeather() error = %v, want nil", err)
	}
	if got != upstream {
		t.Errorf("GetWeather() = %+v, want %+v", got, upstream)
	}
	if mc.lastCity != "Paris" {
		t.Errorf("upstream city = %q, want trimmed original case", mc.lastCity)
	}
	if _, ok := cache.data["paris"]; !ok {
		t.Error("cache was not populated under the normalized key")
	}
}

func TestWeatherService_GetWeather_NotFoundWrapsSentinel(t *testing.T) {
	svc := NewWeatherService(&mockWeatherClient{err: client.ErrCityNotFound}, &mockCache{}, Options{})

	_, err := svc.GetWeather(context.Background(), "Atlantis")
	if !errors.Is(err, client.ErrCityNotFound) {
		t.Errorf("GetWeather() error = %v, want ErrCityNotFound", err)
	}
}

func TestWeatherService_GetWeather_UpstreamFailureNotCached(t *testing.T) {
	cache := &mockCache{}
	svc := NewWeatherService(&mockWeatherClient{err: errors.New("upstream error")}, cache, Options{})

	if _, err := svc.GetWeather(context.Background(), "Rome"); err == nil {
		t.Fatal("GetWeather() error = nil, want error")
	}
	if len(cache.data) != 0 {
		t.Errorf("cache populated on failure: %v", cache.data)
	}
}

// TestWeatherService_GetWeather_CacheErrorsDegradeToUpstream verifies cache
// failures are logged and the lookup still succeeds.
func TestWeatherService_GetWeather_CacheErrorsDegradeToUpstream(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))

	upstream := models.WeatherResult{City: "Oslo", Temperature: 2}
	svc := NewWeatherService(&mockWeatherClient{weather: upstream}, &mockCache{getErr: errors.New("timeout"), setErr: errors.New("timeout")}, Options{})

	got, err := svc.GetWeather(ctx, "Oslo")
	if err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	if got != upstream {
		t.Errorf("GetWeather() = %+v", got)
	}
	if logs.FilterMessage("cache get failed").Len() != 1 || logs.FilterMessage("cache set failed").Len() != 1 {
		t.Errorf("expected cache get and set warnings, got %d logs", logs.Len())
	}
}

func TestWeatherService_GetWeather_WithCoalescing(t *testing.T) {
	upstream := models.WeatherResult{City: "Lima", Temperature: 19}
	mc := &mockWeatherClient{weather: upstream}
	svc := NewWeatherService(mc, &mockCache{}, Options{CoalesceTimeout: time.Second})

	got, err := svc.GetWeather(context.Background(), "Lima")
	if err != nil || got != upstream {
		t.Fatalf("GetWeather() = %+v, %v", got, err)
	}
}

func TestWeatherService_ValidateUpstream(t *testing.T) {
	bad := errors.New("invalid key")
	svc := NewWeatherService(&mockWeatherClient{validateErr: bad}, &mockCache{}, Options{})
	if err := svc.ValidateUpstream(context.Background()); !errors.Is(err, bad) {
		t.Errorf("ValidateUpstream() = %v, want %v", err, bad)
	}
}
