package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mietwatch/mietwatch/internal/learn"
	"github.com/mietwatch/mietwatch/internal/listing"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	provider      TEXT NOT NULL,
	external_id   TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	price         INTEGER NOT NULL,
	location      TEXT NOT NULL,
	district      TEXT NOT NULL DEFAULT '',
	surface       REAL,
	rooms         REAL,
	type          TEXT NOT NULL,
	furnished     INTEGER NOT NULL DEFAULT 0,
	images        TEXT NOT NULL DEFAULT '[]',
	source_url    TEXT NOT NULL,
	lat           REAL,
	lng           REAL,
	first_seen_at TIMESTAMP NOT NULL,
	last_seen_at  TIMESTAMP NOT NULL,
	active        INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_listings_identity
	ON listings(provider, external_id) WHERE external_id != '';
CREATE INDEX IF NOT EXISTS idx_listings_hash ON listings(content_hash);
CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen_at);

CREATE TABLE IF NOT EXISTS site_profiles (
	host       TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	profile    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLite implements ListingStore and learn.Store on a single database
// file, so listings and learned patterns survive between runs.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path. ":memory:" gives
// an in-memory database for tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer at a time; a single pooled connection also
	// keeps ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	// Production pragmas: WAL for concurrent readers, a busy timeout so
	// writers queue instead of failing.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// Upsert implements ListingStore. Lookup order: (provider, external id)
// first, content hash second. Updates preserve first_seen_at and keep
// last_seen_at monotonic.
func (s *SQLite) Upsert(ctx context.Context, rec *listing.Record) (Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	id, err := s.findExisting(ctx, tx, rec)
	if err != nil {
		return "", err
	}

	var outcome Outcome
	if id == 0 {
		outcome = OutcomeInserted
		err = s.insert(ctx, tx, rec)
	} else {
		outcome = OutcomeUpdated
		err = s.update(ctx, tx, id, rec)
	}
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit upsert: %w", err)
	}
	return outcome, nil
}

func (s *SQLite) findExisting(ctx context.Context, tx *sql.Tx, rec *listing.Record) (int64, error) {
	var id int64

	if rec.ExternalID != "" {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM listings WHERE provider = ? AND external_id = ?`,
			rec.Provider, rec.ExternalID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("lookup by identity: %w", err)
		}
	}

	err := tx.QueryRowContext(ctx,
		`SELECT id FROM listings WHERE content_hash = ?`,
		rec.ContentHash,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup by hash: %w", err)
	}
	return 0, nil
}

func (s *SQLite) insert(ctx context.Context, tx *sql.Tx, rec *listing.Record) error {
	images, err := json.Marshal(rec.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (
			provider, external_id, content_hash, title, description, price,
			location, district, surface, rooms, type, furnished, images,
			source_url, lat, lng, first_seen_at, last_seen_at, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		rec.Provider, rec.ExternalID, rec.ContentHash, rec.Title, rec.Description,
		rec.Price, rec.Location, rec.District, rec.Surface, rec.Rooms,
		string(rec.Type), boolToInt(rec.Furnished), string(images),
		rec.SourceURL, rec.Lat, rec.Lng, rec.FirstSeenAt, rec.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *SQLite) update(ctx context.Context, tx *sql.Tx, id int64, rec *listing.Record) error {
	images, err := json.Marshal(rec.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}

	// A row first matched by content hash upgrades to stable identity
	// once the record carries a derivable external id. The identity
	// lookup already ran, so the backfill cannot collide.
	_, err = tx.ExecContext(ctx, `
		UPDATE listings SET
			external_id = CASE WHEN external_id = '' THEN ? ELSE external_id END,
			provider = CASE WHEN provider = '' THEN ? ELSE provider END,
			content_hash = ?, title = ?, description = ?, price = ?,
			location = ?, district = ?, surface = ?, rooms = ?, type = ?,
			furnished = ?, images = ?, source_url = ?, lat = ?, lng = ?,
			last_seen_at = MAX(last_seen_at, ?), active = 1
		WHERE id = ?`,
		rec.ExternalID, rec.Provider,
		rec.ContentHash, rec.Title, rec.Description, rec.Price,
		rec.Location, rec.District, rec.Surface, rec.Rooms, string(rec.Type),
		boolToInt(rec.Furnished), string(images), rec.SourceURL, rec.Lat, rec.Lng,
		rec.LastSeenAt, id,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	return nil
}

// MarkInactiveNotSeenSince implements ListingStore.
func (s *SQLite) MarkInactiveNotSeenSince(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET active = 0 WHERE active = 1 AND last_seen_at < ?`,
		threshold,
	)
	if err != nil {
		return 0, fmt.Errorf("mark inactive: %w", err)
	}
	return res.RowsAffected()
}

// CountActive returns the number of active listings, for reporting.
func (s *SQLite) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE active = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return n, nil
}

// LoadProfiles implements learn.Store.
func (s *SQLite) LoadProfiles(ctx context.Context) (map[string]*learn.SiteProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT host, profile FROM site_profiles`)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]*learn.SiteProfile)
	for rows.Next() {
		var host, raw string
		if err := rows.Scan(&host, &raw); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		var p learn.SiteProfile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode profile for %s: %w", host, err)
		}
		profiles[host] = &p
	}
	return profiles, rows.Err()
}

// SaveProfile implements learn.Store.
func (s *SQLite) SaveProfile(ctx context.Context, p *learn.SiteProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile for %s: %w", p.Host, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO site_profiles (host, provider, profile, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			provider = excluded.provider,
			profile = excluded.profile,
			updated_at = excluded.updated_at`,
		p.Host, p.Provider, string(raw), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save profile for %s: %w", p.Host, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
