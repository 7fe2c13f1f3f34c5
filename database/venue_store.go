package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrUnavailable wraps driver-level failures so callers can treat them
	// as retryable without inspecting engine error strings.
	ErrUnavailable = errors.New("venue store unavailable")

	// ErrNotFound is returned when a venue or review entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTerminalState is returned when a review transition is attempted
	// out of a terminal state.
	ErrTerminalState = errors.New("review entry already finalized")
)

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// VenueStore is the persistent catalog of venues, aliases and review-queue
// entries. All write paths are single-row idempotent upserts keyed on the
// natural uniqueness constraints, so concurrent discovery runs and admin
// actions can race safely.
type VenueStore struct {
	db *sqlx.DB
}

// Open opens (creating if needed) a SQLite-backed store at path.
func Open(path string) (*VenueStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if err := db.Ping(); err != nil {
		return nil, wrapUnavailable(err)
	}
	return &VenueStore{db: db}, nil
}

// NewWithDB wraps an existing connection; used by tests with an in-memory
// database.
func NewWithDB(db *sqlx.DB) *VenueStore {
	return &VenueStore{db: db}
}

// Close releases the underlying connection pool.
func (s *VenueStore) Close() error {
	return s.db.Close()
}

// UpsertVenue inserts a venue keyed on canonical_name, or refreshes the
// address/coordinate fields of the existing row. normalized_name is always
// written by the caller from the canonical name, never hand-edited.
// Returns true when a new row was created.
func (s *VenueStore) UpsertVenue(ctx context.Context, v *Venue) (bool, error) {
	now := time.Now().UTC()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO venues
			(id, canonical_name, normalized_name, address, city, state, postal_code,
			 latitude, longitude, place_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(canonical_name) DO UPDATE SET
			normalized_name = excluded.normalized_name,
			address     = excluded.address,
			city        = excluded.city,
			state       = excluded.state,
			postal_code = excluded.postal_code,
			latitude    = COALESCE(excluded.latitude, venues.latitude),
			longitude   = COALESCE(excluded.longitude, venues.longitude),
			place_id    = COALESCE(excluded.place_id, venues.place_id),
			metadata    = COALESCE(excluded.metadata, venues.metadata),
			updated_at  = excluded.updated_at`,
		v.ID, v.CanonicalName, v.NormalizedName, v.Address, v.City, v.State,
		v.PostalCode, v.Latitude, v.Longitude, v.PlaceID, v.Metadata, now, now)
	if err != nil {
		return false, wrapUnavailable(err)
	}

	// The upsert keeps the existing id on conflict; re-read it so callers
	// always hold the canonical row.
	existing, err := s.FindVenueByCanonicalName(ctx, v.CanonicalName)
	if err != nil {
		return false, err
	}
	created := existing.ID == v.ID
	*v = *existing
	return created, nil
}

// GetVenue fetches a venue by id.
func (s *VenueStore) GetVenue(ctx context.Context, id string) (*Venue, error) {
	var v Venue
	err := s.db.GetContext(ctx, &v, `SELECT * FROM venues WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("venue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return &v, nil
}

// FindVenueByCanonicalName fetches a venue by its unique canonical name.
func (s *VenueStore) FindVenueByCanonicalName(ctx context.Context, name string) (*Venue, error) {
	var v Venue
	err := s.db.GetContext(ctx, &v, `SELECT * FROM venues WHERE canonical_name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("venue %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return &v, nil
}

// FindVenueByPlaceID fetches a venue by its external place identifier.
func (s *VenueStore) FindVenueByPlaceID(ctx context.Context, placeID string) (*Venue, error) {
	var v Venue
	err := s.db.GetContext(ctx, &v, `SELECT * FROM venues WHERE place_id = ?`, placeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("place %q: %w", placeID, ErrNotFound)
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return &v, nil
}

// InsertAlias idempotently attaches an alias to a venue. A duplicate
// (venue_id, normalized_alias) pair is a no-op, not an error. Returns true
// when a new row was inserted.
func (s *VenueStore) InsertAlias(ctx context.Context, a *VenueAlias) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ConfidenceWeight == 0 {
		a.ConfidenceWeight = 1.0
	}
	a.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO venue_aliases
			(id, venue_id, alias_text, normalized_alias, source, confidence_weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(venue_id, normalized_alias) DO NOTHING`,
		a.ID, a.VenueID, a.AliasText, a.NormalizedAlias, a.Source, a.ConfidenceWeight, a.CreatedAt)
	if err != nil {
		return false, wrapUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapUnavailable(err)
	}
	return n > 0, nil
}

// ListNameEntries returns every searchable normalized name: canonical venue
// names at weight 1.0 plus all aliases at their own weights. The resolver
// scores these in-process.
func (s *VenueStore) ListNameEntries(ctx context.Context) ([]NameEntry, error) {
	entries := []NameEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id AS venue_id, normalized_name AS text, 1.0 AS weight FROM venues
		UNION ALL
		SELECT venue_id, normalized_alias AS text, confidence_weight AS weight FROM venue_aliases`)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return entries, nil
}

// CountVenues returns the number of venue rows.
func (s *VenueStore) CountVenues(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM venues`); err != nil {
		return 0, wrapUnavailable(err)
	}
	return n, nil
}

// CountAliases returns the number of alias rows.
func (s *VenueStore) CountAliases(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM venue_aliases`); err != nil {
		return 0, wrapUnavailable(err)
	}
	return n, nil
}

// EnqueueReview creates a pending review entry unless one already exists for
// the same normalized text. Concurrent discovery runs racing on the same
// alias leave exactly one pending entry. Returns true when queued.
func (s *VenueStore) EnqueueReview(ctx context.Context, e *ReviewEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Status = ReviewPending
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	raw, err := json.Marshal(e.Candidates)
	if err != nil {
		return false, fmt.Errorf("encode candidates: %w", err)
	}
	e.CandidatesJSON = string(raw)
	e.TopConfidence = 0
	if len(e.Candidates) > 0 {
		e.TopConfidence = e.Candidates[0].Confidence
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO review_queue
			(id, raw_text, normalized_text, candidates, top_confidence, source,
			 status, auto_approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?)`,
		e.ID, e.RawText, e.NormalizedText, e.CandidatesJSON, e.TopConfidence,
		e.Source, now, now)
	if err != nil {
		return false, wrapUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapUnavailable(err)
	}
	return n > 0, nil
}

// GetReviewEntry fetches a queue entry with decoded candidates.
func (s *VenueStore) GetReviewEntry(ctx context.Context, id string) (*ReviewEntry, error) {
	var e ReviewEntry
	err := s.db.GetContext(ctx, &e, `SELECT * FROM review_queue WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if err := json.Unmarshal([]byte(e.CandidatesJSON), &e.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates for %s: %w", id, err)
	}
	return &e, nil
}

// FindPendingReviewByNormalizedText returns the active entry for a
// normalized alias, if any.
func (s *VenueStore) FindPendingReviewByNormalizedText(ctx context.Context, normalized string) (*ReviewEntry, error) {
	var e ReviewEntry
	err := s.db.GetContext(ctx, &e,
		`SELECT * FROM review_queue WHERE normalized_text = ? AND status = 'pending'`, normalized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending entry %q: %w", normalized, ErrNotFound)
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if err := json.Unmarshal([]byte(e.CandidatesJSON), &e.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return &e, nil
}

// ListReviewEntries returns queue entries matching the filter, newest first.
func (s *VenueStore) ListReviewEntries(ctx context.Context, f ReviewFilter) ([]*ReviewEntry, error) {
	query := `SELECT * FROM review_queue WHERE 1=1`
	args := []interface{}{}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	if f.MinConfidence > 0 {
		query += ` AND top_confidence >= ?`
		args = append(args, f.MinConfidence)
	}
	if f.MaxAge > 0 {
		query += ` AND created_at >= ?`
		args = append(args, time.Now().UTC().Add(-f.MaxAge))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	entries := []*ReviewEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, wrapUnavailable(err)
	}
	for _, e := range entries {
		if err := json.Unmarshal([]byte(e.CandidatesJSON), &e.Candidates); err != nil {
			return nil, fmt.Errorf("decode candidates for %s: %w", e.ID, err)
		}
	}
	return entries, nil
}

// TransitionReview moves a pending entry to a terminal state. The guard is a
// conditional single-row update, so two racing reviewers cannot both win.
// Retrying the identical transition is a no-op success; a conflicting
// transition out of a terminal state returns ErrTerminalState.
func (s *VenueStore) TransitionReview(ctx context.Context, id string, to ReviewStatus, chosenVenueID *string, autoApproved bool) error {
	if !to.Terminal() {
		return fmt.Errorf("invalid target status %q", to)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE review_queue
		SET status = ?, chosen_venue_id = ?, auto_approved = ?,
		    updated_at = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(to), chosenVenueID, autoApproved, now, now, id)
	if err != nil {
		return wrapUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapUnavailable(err)
	}
	if n > 0 {
		return nil
	}

	entry, err := s.GetReviewEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status == to && equalChoice(entry.ChosenVenueID, chosenVenueID) {
		// Duplicated approval/rejection request (network retry). Already done.
		return nil
	}
	return fmt.Errorf("entry %s is %s: %w", id, entry.Status, ErrTerminalState)
}

func equalChoice(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// RecordRejection remembers that a specific (alias, venue) pairing was judged
// invalid, so the candidate is not re-suggested. The alias text itself is
// kept. Duplicate rejections are no-ops.
func (s *VenueStore) RecordRejection(ctx context.Context, normalizedAlias, venueID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alias_rejections (id, normalized_alias, venue_id, rejected_at)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), normalizedAlias, venueID, time.Now().UTC())
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// ListRejectedVenueIDs returns the venues previously rejected for an alias.
func (s *VenueStore) ListRejectedVenueIDs(ctx context.Context, normalizedAlias string) (map[string]bool, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids,
		`SELECT venue_id FROM alias_rejections WHERE normalized_alias = ?`, normalizedAlias)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	rejected := make(map[string]bool, len(ids))
	for _, id := range ids {
		rejected[id] = true
	}
	return rejected, nil
}
