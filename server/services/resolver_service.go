package services

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"venueatlas/database"
	"venueatlas/normalization"
)

// ResolutionStatus discriminates the three outcomes of a resolve call.
// Structural outcomes are result variants, not errors.
type ResolutionStatus string

const (
	StatusResolved      ResolutionStatus = "resolved"
	StatusLowConfidence ResolutionStatus = "low_confidence"
	StatusAmbiguous     ResolutionStatus = "ambiguous"
)

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Candidate is one ranked alternative in an ambiguous resolution.
type Candidate struct {
	VenueID    string  `json:"venue_id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Confidence float64 `json:"confidence"`
}

// Resolution is the complete decision for one raw venue name.
type Resolution struct {
	Status         ResolutionStatus `json:"status"`
	VenueID        string           `json:"venue_id,omitempty"`
	Address        string           `json:"address,omitempty"`
	Coordinates    *Coordinates     `json:"coordinates,omitempty"`
	PlaceID        string           `json:"place_id,omitempty"`
	Confidence     float64          `json:"confidence,omitempty"`
	Candidates     []Candidate      `json:"candidates,omitempty"`
	NormalizedText string           `json:"normalized_text"`
	RinkIdentifier string           `json:"rink_identifier,omitempty"`
	YearContext    string           `json:"year_context,omitempty"`
}

// ResolverConfig holds the tier boundaries. These are tunables, not truths;
// see the thresholds discussion in DESIGN.md.
type ResolverConfig struct {
	AutoThreshold   float64
	ReviewThreshold float64
	TieEpsilon      float64
}

// ResolverService turns raw venue names into resolution decisions against
// the venue store. It is read-only and never touches the network, so
// concurrent resolves are independent and safe.
type ResolverService struct {
	store *database.VenueStore
	cfg   ResolverConfig
	log   *logrus.Entry
}

// NewResolverService builds a resolver over the given store.
func NewResolverService(store *database.VenueStore, cfg ResolverConfig, log *logrus.Logger) *ResolverService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ResolverService{
		store: store,
		cfg:   cfg,
		log:   log.WithField("component", "resolver"),
	}
}

type scoredVenue struct {
	venueID string
	score   float64
}

// Resolve normalizes the input, ranks every stored name by trigram
// similarity times alias weight, and applies the tiered confidence policy.
// Deterministic for a fixed store state: no randomness, no time dependence.
func (rs *ResolverService) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	norm := normalization.Normalize(raw)
	resolution := &Resolution{
		Status:         StatusAmbiguous,
		NormalizedText: norm.Normalized,
		RinkIdentifier: norm.RinkIdentifier,
		YearContext:    norm.YearContext,
	}
	if norm.Normalized == "" {
		resolution.Candidates = []Candidate{}
		return resolution, nil
	}

	entries, err := rs.store.ListNameEntries(ctx)
	if err != nil {
		return nil, err
	}

	ranked := rankCandidates(entries, norm.Normalized)
	if len(ranked) == 0 {
		// Not found: an empty candidate list tells the caller to fall back
		// to the discovery pipeline. Never fabricate a match.
		resolution.Candidates = []Candidate{}
		return resolution, nil
	}

	top := ranked[0].score
	tied := len(ranked) > 1 && ranked[0].score-ranked[1].score < rs.cfg.TieEpsilon

	switch {
	case !tied && top >= rs.cfg.AutoThreshold:
		return rs.resolved(ctx, resolution, ranked[0], StatusResolved)
	case !tied && top >= rs.cfg.ReviewThreshold:
		return rs.resolved(ctx, resolution, ranked[0], StatusLowConfidence)
	default:
		if err := rs.fillCandidates(ctx, resolution, ranked); err != nil {
			return nil, err
		}
		return resolution, nil
	}
}

// rankCandidates scores every name entry against the normalized query,
// keeps the best score per venue and sorts descending. Venue id breaks ties
// so the ordering is stable across calls.
func rankCandidates(entries []database.NameEntry, query string) []scoredVenue {
	best := make(map[string]float64)
	for _, entry := range entries {
		similarity := normalization.TrigramSimilarity(entry.Text, query)
		if similarity <= 0 {
			continue
		}
		score := similarity * entry.Weight
		if score > 1 {
			score = 1
		}
		if score > best[entry.VenueID] {
			best[entry.VenueID] = score
		}
	}

	ranked := make([]scoredVenue, 0, len(best))
	for id, score := range best {
		ranked = append(ranked, scoredVenue{venueID: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].venueID < ranked[j].venueID
	})
	return ranked
}

func (rs *ResolverService) resolved(ctx context.Context, resolution *Resolution, winner scoredVenue, status ResolutionStatus) (*Resolution, error) {
	venue, err := rs.store.GetVenue(ctx, winner.venueID)
	if err != nil {
		return nil, err
	}

	resolution.Status = status
	resolution.VenueID = venue.ID
	resolution.Address = venue.FullAddress()
	resolution.Confidence = winner.score
	if venue.Latitude != nil && venue.Longitude != nil {
		resolution.Coordinates = &Coordinates{Latitude: *venue.Latitude, Longitude: *venue.Longitude}
	}
	if venue.PlaceID != nil {
		resolution.PlaceID = *venue.PlaceID
	}
	return resolution, nil
}

func (rs *ResolverService) fillCandidates(ctx context.Context, resolution *Resolution, ranked []scoredVenue) error {
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	resolution.Candidates = make([]Candidate, 0, len(ranked))
	for _, sv := range ranked {
		venue, err := rs.store.GetVenue(ctx, sv.venueID)
		if err != nil {
			return err
		}
		resolution.Candidates = append(resolution.Candidates, Candidate{
			VenueID:    venue.ID,
			Name:       venue.CanonicalName,
			Address:    venue.FullAddress(),
			Confidence: sv.score,
		})
	}
	return nil
}
