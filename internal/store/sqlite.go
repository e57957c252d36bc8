package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listings/internal/model"
)

// sqliteTimeLayout matches the strftime format used for created_at.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id         TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
	kind       TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	offer      INTEGER NOT NULL DEFAULT 0,
	doc        TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_listings_kind ON listings(kind);
CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id);
CREATE INDEX IF NOT EXISTS idx_listings_created_at ON listings(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateListing(ctx context.Context, l *model.Listing) (string, error) {
	doc, err := json.Marshal(l.Fields())
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal listing")
	}

	var id, created string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO listings (kind, owner_id, offer, doc) VALUES (?, ?, ?, ?) RETURNING id, created_at`,
		string(l.Kind), l.OwnerID, l.Offer, string(doc),
	).Scan(&id, &created)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert listing")
	}

	// The row is committed; an odd created_at must not report a failure.
	l.ID = id
	l.CreatedAt = insertedAt(created)
	return id, nil
}

// insertedAt parses the created_at returned by an insert, falling back to
// the local clock.
func insertedAt(created string) time.Time {
	ts, err := time.Parse(sqliteTimeLayout, created)
	if err != nil {
		zap.L().Warn("sqlite: unparsable created_at", zap.String("created_at", created), zap.Error(err))
		return time.Now().UTC()
	}
	return ts
}

func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, doc, created_at FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get listing %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.OfferOnly {
		where = append(where, "offer = 1")
	}

	query := `SELECT id, doc, created_at FROM listings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list listings")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (*model.Listing, error) {
	var id, doc, created string
	if err := row.Scan(&id, &doc, &created); err != nil {
		return nil, err
	}
	l, err := decodeListing(id, []byte(doc))
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(sqliteTimeLayout, created)
	if err != nil {
		return nil, eris.Wrapf(err, "parse created_at %q", created)
	}
	l.CreatedAt = ts
	return l, nil
}

// decodeListing rebuilds a listing from the JSON document column.
func decodeListing(id string, doc []byte) (*model.Listing, error) {
	var l model.Listing
	if err := json.Unmarshal(doc, &l); err != nil {
		return nil, eris.Wrapf(err, "decode listing %s", id)
	}
	l.ID = id
	return &l, nil
}
