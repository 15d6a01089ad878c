package query

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-dashboard/internal/recent"
)

type stubFetcher struct {
	status int
	body   []byte
	err    error
	cities []string
}

func (s *stubFetcher) Fetch(ctx context.Context, city string) (int, []byte, error) {
	s.cities = append(s.cities, city)
	return s.status, s.body, s.err
}

type failingRecorder struct{}

func (failingRecorder) Record(ctx context.Context, city string) error {
	return errors.New("storage full")
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		err    error
		want   RenderKind
	}{
		{"success", 200, `{"city":"London","temperature":15,"description":"Cloudy"}`, nil, KindSuccess},
		{"not found", 404, `{"detail":"City not found"}`, nil, KindNotFound},
		{"server error is not found", 500, "oops", nil, KindNotFound},
		{"transport error", 0, "", errors.New("connection refused"), KindError},
		{"bad json", 200, "not json", nil, KindError},
		{"empty body", 200, "", nil, KindError},
		{"null body", 200, "null", nil, KindError},
		{"empty object", 200, "{}", nil, KindError},
		{"array body", 200, `["London"]`, nil, KindError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve("X", tc.status, []byte(tc.body), tc.err)
			if got.Kind != tc.want {
				t.Errorf("Kind = %q, want %q", got.Kind, tc.want)
			}
			if got.Submitted != "X" {
				t.Errorf("Submitted = %q, want X", got.Submitted)
			}
			if (got.Result != nil) != (tc.want == KindSuccess) {
				t.Errorf("Result = %v for kind %q", got.Result, got.Kind)
			}
		})
	}
}

func TestResolve_Fields(t *testing.T) {
	got := Resolve("london", 200, []byte(`{"city":"London","temperature":15.5,"description":"Cloudy"}`), nil)
	if got.Result.City != "London" || got.Result.Temperature != 15.5 || got.Result.Description != "Cloudy" {
		t.Errorf("Result = %+v", got.Result)
	}
}

func newStore() *recent.Store {
	return recent.NewStore(recent.NewMemoryStorage(), recent.DefaultKey, recent.DefaultCapacity, nil)
}

func list(t *testing.T, s *recent.Store) []string {
	t.Helper()
	l, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	return l
}

func TestSubmit_SuccessRecordsCity(t *testing.T) {
	store := newStore()
	f := &stubFetcher{status: 200, body: []byte(`{"city":"London","temperature":15,"description":"Cloudy"}`)}
	h := NewHandler(f, store, nil)

	state := h.Submit(context.Background(), "London")
	if state.Kind != KindSuccess {
		t.Fatalf("Kind = %q, want success", state.Kind)
	}
	if got := list(t, store); !reflect.DeepEqual(got, []string{"London"}) {
		t.Errorf("recent = %v, want [London]", got)
	}
}

func TestSubmit_RecordsSubmittedNotReturnedCity(t *testing.T) {
	store := newStore()
	f := &stubFetcher{status: 200, body: []byte(`{"city":"London","temperature":15,"description":"Cloudy"}`)}
	NewHandler(f, store, nil).Submit(context.Background(), "london")

	if got := list(t, store); !reflect.DeepEqual(got, []string{"london"}) {
		t.Errorf("recent = %v, want [london]", got)
	}
}

func TestSubmit_NotFoundLeavesStore(t *testing.T) {
	store := newStore()
	if err := store.Record(context.Background(), "Rome"); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(&stubFetcher{status: 404, body: []byte(`{"detail":"City not found"}`)}, store, nil)

	if state := h.Submit(context.Background(), "Atlantis"); state.Kind != KindNotFound {
		t.Fatalf("Kind = %q, want not_found", state.Kind)
	}
	if got := list(t, store); !reflect.DeepEqual(got, []string{"Rome"}) {
		t.Errorf("recent = %v, want [Rome]", got)
	}
}

func TestSubmit_TransportErrorLeavesStore(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := newStore()
	h := NewHandler(&stubFetcher{err: errors.New("network down")}, store, zap.New(core))

	if state := h.Submit(context.Background(), "Paris"); state.Kind != KindError {
		t.Fatalf("Kind = %q, want error", state.Kind)
	}
	if got := list(t, store); len(got) != 0 {
		t.Errorf("recent = %v, want empty", got)
	}
	if logs.FilterMessage("weather query failed").Len() != 1 {
		t.Errorf("expected one failure log, got %d", logs.Len())
	}
}

func TestSubmit_RecorderFailureKeepsSuccess(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := &stubFetcher{status: 200, body: []byte(`{"city":"Oslo","temperature":2,"description":"Snow"}`)}
	h := NewHandler(f, failingRecorder{}, zap.New(core))

	state := h.Submit(context.Background(), "Oslo")
	if state.Kind != KindSuccess || state.Result == nil {
		t.Fatalf("state = %+v, want success", state)
	}
	if logs.FilterMessage("record recent search failed").Len() != 1 {
		t.Errorf("expected recorder failure log")
	}
}

func TestSubmit_PassesCityVerbatim(t *testing.T) {
	f := &stubFetcher{status: 404}
	NewHandler(f, nil, nil).Submit(context.Background(), "  San José ")
	if len(f.cities) != 1 || f.cities[0] != "  San José " {
		t.Errorf("fetched cities = %q", f.cities)
	}
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"City not found"}`))
	}))
	defer srv.Close()

	status, body, err := NewHTTPFetcher(srv.URL+"/").Fetch(context.Background(), "New York")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if string(body) != `{"detail":"City not found"}` {
		t.Errorf("body = %s", body)
	}
	if gotPath != "/weather/New%20York" {
		t.Errorf("path = %q, want /weather/New%%20York", gotPath)
	}
}

func TestHTTPFetcher_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, _, err := NewHTTPFetcher(url).Fetch(context.Background(), "Paris"); err == nil {
		t.Fatal("Fetch() error = nil, want transport error")
	}
}

func TestSubmit_NullBodyLeavesStore(t *testing.T) {
	store := newStore()
	h := NewHandler(&stubFetcher{status: 200, body: []byte("null")}, store, nil)

	if state := h.Submit(context.Background(), "London"); state.Kind != KindError {
		t.Fatalf("Kind = %q, want error", state.Kind)
	}
	if got := list(t, store); len(got) != 0 {
		t.Errorf("recent = %v, want empty", got)
	}
}
