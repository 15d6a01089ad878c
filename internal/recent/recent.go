package recent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

const (
	// DefaultKey is the storage slot holding the serialized list.
	DefaultKey = "recentSearches"
	// DefaultCapacity is the maximum number of cities kept.
	DefaultCapacity = 5
)

// SessionKey returns the storage slot for a browser session. An empty
// session id maps to the shared DefaultKey slot.
func SessionKey(sessionID string) string {
	if sessionID == "" {
		return DefaultKey
	}
	return DefaultKey + ":" + sessionID
}

// Append returns list with city added at the end. If city is already present
// (exact match) the list is returned unchanged. Oldest entries are dropped
// until len <= capacity. The input slice is never modified.
func Append(list []string, city string, capacity int) []string {
	if contains(list, city) {
		return list
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	out = append(out, city)
	if capacity > 0 && len(out) > capacity {
		out = out[len(out)-capacity:]
	}
	return out
}

func contains(list []string, city string) bool {
	for _, c := range list {
		if c == city {
			return true
		}
	}
	return false
}

// Decode parses a stored list. Empty or malformed input yields an empty list.
func Decode(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return []string{}
	}
	return list
}

// Encode serializes list as a JSON array of strings.
func Encode(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}

// Store is the recent-searches list bound to one storage slot.
// Record is a plain read-modify-write; concurrent Record calls on the same
// slot can lose an append.
type Store struct {
	storage  Storage
	key      string
	capacity int
	logger   *zap.Logger
}

// NewStore returns a Store over the given slot. capacity <= 0 uses DefaultCapacity.
// logger may be nil.
func NewStore(storage Storage, key string, capacity int, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{storage: storage, key: key, capacity: capacity, logger: logger}
}

// Key returns the storage slot name.
func (s *Store) Key() string {
	return s.key
}

// Record appends city to the list and persists the whole list.
// A city already present is a no-op and nothing is written.
func (s *Store) Record(ctx context.Context, city string) error {
	current := s.load(ctx)
	if contains(current, city) {
		observability.RecentSearchesTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	raw, err := Encode(Append(current, city, s.capacity))
	if err != nil {
		return fmt.Errorf("encode recent searches: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, raw); err != nil {
		observability.RecentSearchesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("write recent searches: %w", err)
	}
	observability.RecentSearchesTotal.WithLabelValues("recorded").Inc()
	return nil
}

// List returns the stored cities in insertion order. It never fails on a
// missing or corrupt slot; storage errors are logged and read as empty.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.load(ctx), nil
}

func (s *Store) load(ctx context.Context) []string {
	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("recent searches read failed", zap.String("key", s.key), zap.Error(err))
		}
		return []string{}
	}
	if !ok {
		return []string{}
	}
	return Decode(raw)
}
