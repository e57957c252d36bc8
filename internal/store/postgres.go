package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listings/internal/model"
)

// pgxPool is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool. Listings are stored as a
// JSONB document plus the columns used for filtering.
type PostgresStore struct {
	pool    pgxPool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	kind       TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	offer      BOOLEAN NOT NULL DEFAULT false,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_kind ON listings(kind);
CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id);
CREATE INDEX IF NOT EXISTS idx_listings_created_at ON listings(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateListing(ctx context.Context, l *model.Listing) (string, error) {
	doc, err := json.Marshal(l.Fields())
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal listing")
	}

	var (
		id      string
		created time.Time
	)
	err = s.pool.QueryRow(ctx,
		`INSERT INTO listings (kind, owner_id, offer, doc) VALUES ($1, $2, $3, $4) RETURNING id::text, created_at`,
		string(l.Kind), l.OwnerID, l.Offer, doc,
	).Scan(&id, &created)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert listing")
	}

	l.ID = id
	l.CreatedAt = created.UTC()
	return id, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	// Ids are UUIDs; anything else cannot exist and would fail the cast.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var (
		doc     []byte
		created time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT doc, created_at FROM listings WHERE id = $1`, id,
	).Scan(&doc, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get listing %s", id)
	}

	l, err := decodeListing(id, doc)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get listing")
	}
	l.CreatedAt = created.UTC()
	return l, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	query := `SELECT id::text, doc, created_at FROM listings WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.OwnerID != "" {
		query += fmt.Sprintf(` AND owner_id = $%d`, argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.OfferOnly {
		query += ` AND offer`
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list listings")
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		var (
			id      string
			doc     []byte
			created time.Time
		)
		if err := rows.Scan(&id, &doc, &created); err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		l, err := decodeListing(id, doc)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list listings")
		}
		l.CreatedAt = created.UTC()
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listings")
}
