package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"venueatlas/normalization"
)

// ErrFatal marks non-retryable API failures: bad requests and auth problems.
// These propagate immediately so misconfiguration is visible.
var ErrFatal = errors.New("geocoding request rejected")

// The backing place-search API bills by returned attribute, so every request
// declares the minimal field mask.
const fieldMask = "places.id,places.displayName,places.formattedAddress,places.location"

// Region biases the place search toward the league's geography.
type Region struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Place is one candidate returned by the search.
type Place struct {
	PlaceID          string  `json:"place_id"`
	DisplayName      string  `json:"display_name"`
	FormattedAddress string  `json:"formatted_address"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	NameSimilarity   float64 `json:"name_similarity"`
}

// Result carries the candidates plus the derived confidence score (0-100).
// The API exposes no native confidence, so it is computed here from result
// cardinality and name similarity.
type Result struct {
	Places           []Place `json:"places"`
	Confidence       float64 `json:"confidence"`
	AutoSaveEligible bool    `json:"auto_save_eligible"`
	Unavailable      bool    `json:"unavailable"` // retries exhausted; needs manual entry
}

// Config for the client. Zero values fall back to sensible defaults.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	CacheTTL          time.Duration
}

// Client wraps the external place-search API with rate limiting, bounded
// exponential backoff and a process-local TTL cache.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *resultCache
	log     *logrus.Entry
}

// NewClient builds a geocoding client.
func NewClient(cfg Config, log *logrus.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		cache:   newResultCache(cfg.CacheTTL),
		log:     log.WithField("component", "geocode"),
	}
}

type searchRequest struct {
	TextQuery      string        `json:"textQuery"`
	MaxResultCount int           `json:"maxResultCount"`
	LocationBias   *locationBias `json:"locationBias,omitempty"`
}

type locationBias struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchResponse struct {
	Places []struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		Location         latLng `json:"location"`
	} `json:"places"`
}

// Search queries the place-search API for a venue name. Transient failures
// (rate limit, server errors) are retried with exponential backoff; when
// retries are exhausted the caller gets a confidence-0 result rather than an
// error, so the originating alias is flagged for manual entry instead of
// silently dropped. Fatal failures return ErrFatal.
func (c *Client) Search(ctx context.Context, venueName string, bias Region) (*Result, error) {
	key := normalization.Normalize(venueName).Normalized
	if cached, ok := c.cache.get(key); ok {
		return cached, nil
	}

	body, err := c.search(ctx, venueName, bias)
	if err != nil {
		if errors.Is(err, ErrFatal) || ctx.Err() != nil {
			return nil, err
		}
		c.log.WithError(err).WithField("venue", venueName).Warn("geocoding unavailable after retries")
		return &Result{Confidence: 0, Unavailable: true}, nil
	}

	result := c.score(venueName, body)
	c.cache.set(key, result)
	return result, nil
}

func (c *Client) search(ctx context.Context, venueName string, bias Region) (*searchResponse, error) {
	payload := searchRequest{
		TextQuery:      venueName,
		MaxResultCount: 5,
	}
	if bias.RadiusMeters > 0 {
		payload.LocationBias = &locationBias{
			Circle: circle{
				Center: latLng{Latitude: bias.Latitude, Longitude: bias.Longitude},
				Radius: bias.RadiusMeters,
			},
		}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	var lastErr error
	delay := c.cfg.InitialDelay

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.doRequest(ctx, encoded)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, ErrFatal) {
			return nil, err
		}
		if attempt < c.cfg.MaxAttempts {
			c.log.WithError(err).Warnf("geocode attempt %d/%d failed, retrying in %v",
				attempt, c.cfg.MaxAttempts, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay = time.Duration(float64(delay) * 2.0)
			if delay > c.cfg.MaxDelay {
				delay = c.cfg.MaxDelay
			}
		}
	}

	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("transient geocode failure: status %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", ErrFatal, resp.StatusCode, string(raw))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	return &parsed, nil
}

// CacheStats reports cache effectiveness for the monitoring surface.
func (c *Client) CacheStats() (hits, misses int64, size int) {
	return c.cache.stats()
}

// score derives the heuristic confidence from result cardinality and name
// similarity between the query and each returned display name.
func (c *Client) score(venueName string, resp *searchResponse) *Result {
	query := normalization.Normalize(venueName).Normalized

	result := &Result{Places: make([]Place, 0, len(resp.Places))}
	for _, p := range resp.Places {
		display := normalization.Normalize(p.DisplayName.Text).Normalized
		result.Places = append(result.Places, Place{
			PlaceID:          p.ID,
			DisplayName:      p.DisplayName.Text,
			FormattedAddress: p.FormattedAddress,
			Latitude:         p.Location.Latitude,
			Longitude:        p.Location.Longitude,
			NameSimilarity:   normalization.NameSimilarity(query, display),
		})
	}
	sort.SliceStable(result.Places, func(i, j int) bool {
		return result.Places[i].NameSimilarity > result.Places[j].NameSimilarity
	})

	if len(result.Places) == 0 {
		result.Confidence = 0
		return result
	}

	top := result.Places[0].NameSimilarity
	switch {
	case len(result.Places) == 1 && top >= 0.85:
		result.Confidence = 95
		result.AutoSaveEligible = true
	case len(result.Places) == 1 && top >= 0.70:
		result.Confidence = 80
		result.AutoSaveEligible = true
	case top >= 0.85:
		// Good top match but ambiguous cardinality: review required.
		result.Confidence = 75
	default:
		result.Confidence = 40
	}
	return result
}
