package http

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/query"
	"github.com/kjstillabower/weather-dashboard/internal/recent"
	"github.com/kjstillabower/weather-dashboard/internal/service"
)

// fakeWeatherAPI answers like current.json: London is known, anything else
// is error code 1006.
func fakeWeatherAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") != "London" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":1006,"message":"No matching location found."}}`))
			return
		}
		_, _ = w.Write([]byte(`{"location":{"name":"London"},"current":{"temp_c":15.0,"condition":{"text":"Cloudy"}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestDashboard_EndToEnd drives the page through a real server whose query
// handler calls back into its own /weather endpoint.
func TestDashboard_EndToEnd(t *testing.T) {
	upstream := fakeWeatherAPI(t)
	wc, err := client.NewWeatherAPIClient("test-api-key-123", upstream.URL, time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	svc := service.NewWeatherService(wc, cache.NewInMemoryCache(), service.Options{TTL: time.Hour})

	srv := httptest.NewUnstartedServer(nil)
	base := "http://" + srv.Listener.Addr().String()
	h := NewHandler(svc, query.NewHTTPFetcher(base), recent.NewMemoryStorage(), recent.DefaultCapacity, nil, zap.NewNop())
	srv.Config.Handler = NewRouter(h, zap.NewNop(), RouterOptions{RequestTimeout: 5 * time.Second})
	srv.Start()
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	browser := &http.Client{Jar: jar}

	search := func(city string) *goquery.Document {
		resp, err := browser.PostForm(srv.URL+"/search", url.Values{"city": {city}})
		if err != nil {
			t.Fatalf("search %s: %v", city, err)
		}
		defer resp.Body.Close()
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return doc
	}

	if got := search("London").Find("#result h2").Text(); got != "Weather in London" {
		t.Errorf("London heading = %q", got)
	}
	if got := search("Atlantis").Find("#result").Text(); !strings.Contains(got, "City not found. Please try again.") {
		t.Errorf("Atlantis result = %q", got)
	}

	resp, err := browser.Get(srv.URL + "/recent")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var items []string
	doc.Find("#recentSearches li").Each(func(_ int, s *goquery.Selection) { items = append(items, s.Text()) })
	if strings.Join(items, ",") != "London" {
		t.Errorf("recent = %v, want [London]", items)
	}
}
