package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves them.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	val := models.WeatherResult{City: "London", Temperature: 15, Description: "Cloudy"}
	if err := c.Set(ctx, "london", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "london")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != val {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

func TestInMemoryCache_Get_Miss(t *testing.T) {
	_, ok, err := NewInMemoryCache().Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies expired entries miss and are removed.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "london", models.WeatherResult{City: "London"}, time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "london"); ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if _, present := c.data["london"]; present {
		t.Error("expired entry should be deleted from cache")
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{time.Hour, 3600},
		{90 * time.Second, 90},
		{0, 3600},
		{60 * 24 * time.Hour, 3600},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestEscapeKey(t *testing.T) {
	if got := escapeKey("new york"); got != "weather:new_york" {
		t.Errorf("escapeKey() = %q", got)
	}
}
