package database

import (
	"time"
)

// Venue is the canonical record for a physical facility. Venues are never
// hard-deleted: historical aliases must continue to resolve.
type Venue struct {
	ID             string     `db:"id" json:"id"`
	CanonicalName  string     `db:"canonical_name" json:"canonical_name"`
	NormalizedName string     `db:"normalized_name" json:"normalized_name"`
	Address        string     `db:"address" json:"address"`
	City           string     `db:"city" json:"city"`
	State          string     `db:"state" json:"state"`
	PostalCode     string     `db:"postal_code" json:"postal_code"`
	Latitude       *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64   `db:"longitude" json:"longitude,omitempty"`
	PlaceID        *string    `db:"place_id" json:"place_id,omitempty"`
	Metadata       *string    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// FullAddress renders the postal components into a single display line.
func (v *Venue) FullAddress() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{v.Address, v.City, v.State, v.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// VenueAlias is an alternate spelling observed for a venue. The pair
// (venue_id, normalized_alias) is unique; the same normalized text may point
// at different venues only through distinct rows.
type VenueAlias struct {
	ID               string    `db:"id" json:"id"`
	VenueID          string    `db:"venue_id" json:"venue_id"`
	AliasText        string    `db:"alias_text" json:"alias_text"`
	NormalizedAlias  string    `db:"normalized_alias" json:"normalized_alias"`
	Source           string    `db:"source" json:"source"`
	ConfidenceWeight float64   `db:"confidence_weight" json:"confidence_weight"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ReviewStatus is the review-queue state machine. pending is the only
// non-terminal state.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending"
	ReviewApproved   ReviewStatus = "approved"
	ReviewRejected   ReviewStatus = "rejected"
	ReviewCreatedNew ReviewStatus = "created_new"
)

// Terminal reports whether no further transition is accepted.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewApproved || s == ReviewRejected || s == ReviewCreatedNew
}

// ReviewCandidate is one ranked suggestion attached to a queue entry.
// Confidence is on the 0-100 scale regardless of origin.
type ReviewCandidate struct {
	VenueID    string  `json:"venue_id,omitempty"`
	PlaceID    string  `json:"place_id,omitempty"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Confidence float64 `json:"confidence"`
	Origin     string  `json:"origin"` // "store" or "geocode"
}

// ReviewEntry is an alias awaiting human adjudication. It carries only
// scraped venue strings and system-computed candidates, never user content.
type ReviewEntry struct {
	ID             string       `db:"id" json:"id"`
	RawText        string       `db:"raw_text" json:"raw_text"`
	NormalizedText string       `db:"normalized_text" json:"normalized_text"`
	CandidatesJSON string       `db:"candidates" json:"-"`
	TopConfidence  float64      `db:"top_confidence" json:"top_confidence"`
	Source         string       `db:"source" json:"source"`
	Status         ReviewStatus `db:"status" json:"status"`
	ChosenVenueID  *string      `db:"chosen_venue_id" json:"chosen_venue_id,omitempty"`
	AutoApproved   bool         `db:"auto_approved" json:"auto_approved"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
	ResolvedAt     *time.Time   `db:"resolved_at" json:"resolved_at,omitempty"`

	Candidates []ReviewCandidate `db:"-" json:"candidates"`
}

// NameEntry is one searchable normalized name: either a venue's canonical
// name (weight 1.0) or an alias with its own confidence weight.
type NameEntry struct {
	VenueID string  `db:"venue_id"`
	Text    string  `db:"text"`
	Weight  float64 `db:"weight"`
}

// ReviewFilter narrows ListReviewEntries.
type ReviewFilter struct {
	Status        ReviewStatus
	Source        string
	MinConfidence float64
	MaxAge        time.Duration
	Limit         int
}
