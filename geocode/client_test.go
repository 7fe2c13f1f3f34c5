package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlace struct {
	id      string
	name    string
	address string
}

func placesBody(places ...fakePlace) map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(places))
	for _, p := range places {
		out = append(out, map[string]interface{}{
			"id":               p.id,
			"displayName":      map[string]string{"text": p.name},
			"formattedAddress": p.address,
			"location":         map[string]float64{"latitude": 33.67, "longitude": -117.74},
		})
	}
	return map[string]interface{}{"places": out}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:           server.URL,
		APIKey:            "test-key",
		RequestsPerMinute: 600000,
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
	}, nil)
	return client, server
}

func TestSearchSingleStrongMatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fieldMask, r.Header.Get("X-Goog-FieldMask"))
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		json.NewEncoder(w).Encode(placesBody(fakePlace{"p1", "Toyota Sports Performance Center", "555 N Nash St"}))
	})

	result, err := client.Search(context.Background(), "Toyota Sports Performance Center", Region{})
	require.NoError(t, err)
	assert.InDelta(t, 95, result.Confidence, 1e-9)
	assert.True(t, result.AutoSaveEligible)
	require.Len(t, result.Places, 1)
	assert.Equal(t, "p1", result.Places[0].PlaceID)
}

func TestSearchSponsorSuffixedDisplayName(t *testing.T) {
	// Single result whose display name carries a sponsor suffix: similarity
	// lands in the 0.70-0.85 band, confidence 80, still auto-save eligible.
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(placesBody(fakePlace{"p2", "Great Park Ice & FivePoint Arena", "888 Ridge Valley"}))
	})

	result, err := client.Search(context.Background(), "Great Park Ice", Region{})
	require.NoError(t, err)
	assert.InDelta(t, 80, result.Confidence, 1e-9)
	assert.True(t, result.AutoSaveEligible)
}

func TestSearchAmbiguousCardinality(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(placesBody(
			fakePlace{"p1", "Anaheim Ice", "300 W Lincoln Ave"},
			fakePlace{"p2", "Anaheim Ice Center", "123 Elsewhere"},
		))
	})

	result, err := client.Search(context.Background(), "Anaheim ICE", Region{})
	require.NoError(t, err)
	assert.InDelta(t, 75, result.Confidence, 1e-9)
	assert.False(t, result.AutoSaveEligible, "multiple results never auto-save")
	require.Len(t, result.Places, 2)
	assert.Equal(t, "p1", result.Places[0].PlaceID, "ranked by name similarity")
}

func TestSearchWeakMatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(placesBody(fakePlace{"p9", "Completely Different Bowling Alley", "1 Pin Ln"}))
	})

	result, err := client.Search(context.Background(), "Yorba Linda ICE", Region{})
	require.NoError(t, err)
	assert.InDelta(t, 40, result.Confidence, 1e-9)
	assert.False(t, result.AutoSaveEligible)
}

func TestSearchZeroResults(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{})
	})

	result, err := client.Search(context.Background(), "Ghost Rink", Region{})
	require.NoError(t, err)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, result.Places)
	assert.False(t, result.Unavailable)
}

func TestSearchRetriesRateLimit(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(placesBody(fakePlace{"p1", "Lakewood ICE", "3975 Pixie Ave"}))
	})

	result, err := client.Search(context.Background(), "Lakewood ICE", Region{})
	require.NoError(t, err)
	assert.InDelta(t, 95, result.Confidence, 1e-9)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchExhaustedRetries(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	result, err := client.Search(context.Background(), "Lakewood ICE", Region{})
	require.NoError(t, err, "exhausted retries yield a flagged result, not an error")
	assert.True(t, result.Unavailable)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSearchFatalNotRetried(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Search(context.Background(), "Lakewood ICE", Region{})
	assert.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearchCachesResults(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(placesBody(fakePlace{"p1", "Lakewood ICE", "3975 Pixie Ave"}))
	})

	ctx := context.Background()
	_, err := client.Search(ctx, "Lakewood ICE", Region{})
	require.NoError(t, err)
	// Different raw spelling, same normalized key.
	_, err = client.Search(ctx, "LAKEWOOD ice", Region{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	hits, misses, size := client.CacheStats()
	assert.Equal(t, int64(1), hits, "second spelling is served from cache")
	assert.Equal(t, int64(1), misses, "only the first lookup misses")
	assert.Equal(t, 1, size)
}
