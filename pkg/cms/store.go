package cms

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/paddockdb/paddock/pkg/log"
)

// Store is the catalog (CMS) over PostgreSQL. It owns the instances table
// and its health-check and event side tables in the paddock_cms schema.
//
// Every method is safe to call repeatedly with the same arguments: the
// orchestration runtime delivers activity work at least once, so each
// write is keyed by a primary or natural key and converges instead of
// duplicating.
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// Open connects to the catalog database. maxConns <= 0 selects the
// default pool size of 10.
func Open(databaseURL string, maxConns int) (*Store, error) {
	db, err := sqlx.Connect("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to catalog database: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db), nil
}

// New wraps an existing database handle. Tests pass a sqlmock-backed one.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:     db,
		logger: log.WithComponent("cms"),
	}
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
