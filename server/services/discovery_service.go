package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"venueatlas/database"
	"venueatlas/geocode"
	"venueatlas/normalization"
)

// Geocoder is the slice of the geocoding client discovery depends on.
type Geocoder interface {
	Search(ctx context.Context, venueName string, bias geocode.Region) (*geocode.Result, error)
}

// DiscoveryConfig tunes the pipeline.
type DiscoveryConfig struct {
	Bias       geocode.Region
	BatchSize  int
	BatchDelay time.Duration
	// AutoCreate is the geocode confidence (0-100) above which a
	// single-candidate result creates the venue and alias without review.
	AutoCreate float64
}

// DiscoverySummary reports what happened to one batch of raw names.
type DiscoverySummary struct {
	AutoResolved int `json:"auto_resolved"`
	AutoCreated  int `json:"auto_created"`
	Queued       int `json:"queued"`
	Skipped      int `json:"skipped"`
}

// DiscoveryService consumes raw venue-name strings from scraped schedules:
// resolve first, geocode what the catalog cannot answer, then auto-create or
// enqueue for review.
type DiscoveryService struct {
	store    *database.VenueStore
	resolver *ResolverService
	geocoder Geocoder
	dedup    DedupCache
	cfg      DiscoveryConfig
	log      *logrus.Entry
}

// NewDiscoveryService wires the pipeline.
func NewDiscoveryService(store *database.VenueStore, resolver *ResolverService, geocoder Geocoder, dedup DedupCache, cfg DiscoveryConfig, log *logrus.Logger) *DiscoveryService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DiscoveryService{
		store:    store,
		resolver: resolver,
		geocoder: geocoder,
		dedup:    dedup,
		cfg:      cfg,
		log:      log.WithField("component", "discovery"),
	}
}

type discoveryItem struct {
	raw      string
	norm     string
	internal []database.ReviewCandidate
}

// Discover processes one batch of raw names. Names that resolve outright are
// already known; the rest go through geocoding in rate-friendly batches.
func (ds *DiscoveryService) Discover(ctx context.Context, names []string, source string) (*DiscoverySummary, error) {
	summary := &DiscoverySummary{}

	pending := make([]discoveryItem, 0, len(names))
	seenInRun := make(map[string]bool)

	for _, raw := range names {
		norm := normalization.Normalize(raw).Normalized
		if norm == "" || seenInRun[norm] {
			summary.Skipped++
			continue
		}
		seenInRun[norm] = true

		resolution, err := ds.resolver.Resolve(ctx, raw)
		if err != nil {
			return nil, err
		}
		if resolution.Status == StatusResolved {
			summary.AutoResolved++
			continue
		}

		already, err := ds.dedup.Seen(ctx, norm)
		if err == nil && already {
			summary.Skipped++
			continue
		}

		pending = append(pending, discoveryItem{
			raw:      raw,
			norm:     norm,
			internal: ds.internalCandidates(ctx, resolution),
		})
	}

	for start := 0; start < len(pending); start += ds.cfg.BatchSize {
		if start > 0 && ds.cfg.BatchDelay > 0 {
			select {
			case <-time.After(ds.cfg.BatchDelay):
			case <-ctx.Done():
				return summary, ctx.Err()
			}
		}
		end := start + ds.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		for _, item := range pending[start:end] {
			if err := ds.processItem(ctx, item, source, summary); err != nil {
				return summary, err
			}
		}
	}

	return summary, nil
}

func (ds *DiscoveryService) processItem(ctx context.Context, item discoveryItem, source string, summary *DiscoverySummary) error {
	result, err := ds.geocoder.Search(ctx, item.raw, ds.cfg.Bias)
	if err != nil {
		// Fatal geocode failures (bad key, bad request) must surface, not
		// drain silently into the queue.
		return err
	}

	if !result.Unavailable && result.AutoSaveEligible &&
		result.Confidence >= ds.cfg.AutoCreate && len(result.Places) == 1 {
		if err := ds.autoCreate(ctx, item, result.Places[0], source); err != nil {
			return err
		}
		summary.AutoCreated++
		_ = ds.dedup.Mark(ctx, item.norm)
		return nil
	}

	candidates := ds.mergeCandidates(ctx, item, result)
	entry := &database.ReviewEntry{
		RawText:        item.raw,
		NormalizedText: item.norm,
		Source:         source,
		Candidates:     candidates,
	}
	queued, err := ds.store.EnqueueReview(ctx, entry)
	if err != nil {
		return err
	}
	if queued {
		summary.Queued++
	} else {
		summary.Skipped++
	}
	_ = ds.dedup.Mark(ctx, item.norm)
	return nil
}

// autoCreate upserts the venue from the geocoded place and attaches the raw
// name as an alias. Keyed on place id first so respellings of the same
// facility converge on one venue row.
func (ds *DiscoveryService) autoCreate(ctx context.Context, item discoveryItem, place geocode.Place, source string) error {
	venue, err := ds.store.FindVenueByPlaceID(ctx, place.PlaceID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}
	if venue == nil {
		venue = &database.Venue{
			CanonicalName:  place.DisplayName,
			NormalizedName: normalization.Normalize(place.DisplayName).Normalized,
			Address:        place.FormattedAddress,
			Latitude:       &place.Latitude,
			Longitude:      &place.Longitude,
			PlaceID:        &place.PlaceID,
		}
		if _, err := ds.store.UpsertVenue(ctx, venue); err != nil {
			return err
		}
		ds.log.WithFields(logrus.Fields{
			"venue": venue.CanonicalName,
			"place": place.PlaceID,
		}).Info("venue auto-created from geocode result")
	}

	_, err = ds.store.InsertAlias(ctx, &database.VenueAlias{
		VenueID:         venue.ID,
		AliasText:       item.raw,
		NormalizedAlias: item.norm,
		Source:          source,
	})
	return err
}

func (ds *DiscoveryService) internalCandidates(ctx context.Context, resolution *Resolution) []database.ReviewCandidate {
	out := []database.ReviewCandidate{}
	switch resolution.Status {
	case StatusLowConfidence:
		// The resolution carries id and address only; reviewers need the
		// canonical name on the card.
		name := ""
		if venue, err := ds.store.GetVenue(ctx, resolution.VenueID); err == nil {
			name = venue.CanonicalName
		}
		out = append(out, database.ReviewCandidate{
			VenueID:    resolution.VenueID,
			Name:       name,
			Address:    resolution.Address,
			Confidence: resolution.Confidence * 100,
			Origin:     "store",
		})
	case StatusAmbiguous:
		for _, c := range resolution.Candidates {
			out = append(out, database.ReviewCandidate{
				VenueID:    c.VenueID,
				Name:       c.Name,
				Address:    c.Address,
				Confidence: c.Confidence * 100,
				Origin:     "store",
			})
		}
	}
	return out
}

// mergeCandidates combines internal and geocoded suggestions, drops venues a
// reviewer already rejected for this alias, and keeps the top three.
func (ds *DiscoveryService) mergeCandidates(ctx context.Context, item discoveryItem, result *geocode.Result) []database.ReviewCandidate {
	rejected, err := ds.store.ListRejectedVenueIDs(ctx, item.norm)
	if err != nil {
		ds.log.WithError(err).Warn("rejection lookup failed; keeping all candidates")
		rejected = map[string]bool{}
	}

	merged := make([]database.ReviewCandidate, 0, len(item.internal)+len(result.Places))
	for _, c := range item.internal {
		if !rejected[c.VenueID] {
			merged = append(merged, c)
		}
	}
	for _, p := range result.Places {
		merged = append(merged, database.ReviewCandidate{
			PlaceID:    p.PlaceID,
			Name:       p.DisplayName,
			Address:    p.FormattedAddress,
			Confidence: p.NameSimilarity * 100,
			Origin:     "geocode",
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	if len(merged) > 3 {
		merged = merged[:3]
	}
	return merged
}
