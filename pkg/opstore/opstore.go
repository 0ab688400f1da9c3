// Package opstore is the Vault's operational audit trail: an append-only
// log of mount attempts and query volume, plus a reserved key-value
// store for future trusted-publisher keys. It holds no shard graph data
// (that stays in Parquet/DuckDB under pkg/graphstore) and is entirely
// optional: a nil *Store means the Vault simply does not record history.
package opstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/BigBirdReturns/axm-core/pkg/circuitbreaker"
)

// MountEvent is one append-only row recording a mount attempt.
type MountEvent struct {
	bun.BaseModel `bun:"table:mount_events,alias:me"`

	ID         string    `bun:"id,pk"`
	ShardID    string    `bun:"shard_id,notnull"`
	ShardPath  string    `bun:"shard_path,notnull"`
	TrustLevel string    `bun:"trust_level,notnull"`
	Error      string    `bun:"error"`
	OccurredAt time.Time `bun:"occurred_at,notnull"`
}

// QueryEvent is one append-only row recording a query against a mounted
// shard, feeding historical statistics.
type QueryEvent struct {
	bun.BaseModel `bun:"table:query_events,alias:qe"`

	ID          string        `bun:"id,pk"`
	Kind        string        `bun:"kind,notnull"`
	Term        string        `bun:"term"`
	ResultCount int           `bun:"result_count,notnull"`
	Duration    time.Duration `bun:"duration_ns,notnull"`
	OccurredAt  time.Time     `bun:"occurred_at,notnull"`
}

// TrustedPublisherKey reserves a home for a future signature-verification
// extension. Unused by verify_shard today.
type TrustedPublisherKey struct {
	bun.BaseModel `bun:"table:trusted_publisher_keys,alias:tpk"`

	PublisherID string `bun:"publisher_id,pk"`
	Key         string `bun:"key,notnull"`
}

// Store is the operational store handle. Remote dialects (MySQL,
// PostgreSQL) are wrapped with a circuit breaker so a transient outage
// in a shared backend does not stall every Vault operation behind it;
// SQLite, being local, is not wrapped.
type Store struct {
	db     *bun.DB
	typ    Type
	remote *circuitbreaker.CircuitBreaker
}

// Open opens storeURL (scheme selects the dialect: sqlite://, postgres://,
// mysql://) and ensures the operational schema exists.
func Open(ctx context.Context, storeURL string, poolCfg *PoolConfig) (*Store, error) {
	sdb, typ, err := openSQL(storeURL, poolCfg)
	if err != nil {
		return nil, err
	}

	var dialect bun.Dialect

	switch typ {
	case TypeSQLite:
		dialect = sqlitedialect.New()
	case TypePostgreSQL:
		dialect = pgdialect.New()
	case TypeMySQL:
		dialect = mysqldialect.New()
	case TypeUnknown:
		fallthrough
	default:
		return nil, ErrUnsupportedDriver
	}

	db := bun.NewDB(sdb, dialect)

	s := &Store{db: db, typ: typ}
	if typ != TypeSQLite {
		s.remote = circuitbreaker.New(circuitbreaker.DefaultThreshold, circuitbreaker.DefaultTimeout)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	models := []any{
		(*MountEvent)(nil),
		(*QueryEvent)(nil),
		(*TrustedPublisherKey)(nil),
	}

	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("opstore: migrate: %w", err)
		}
	}

	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// withBreaker runs fn, recording the outcome against the circuit breaker
// for remote dialects; local SQLite runs fn unconditionally.
func (s *Store) withBreaker(ctx context.Context, fn func(context.Context) error) error {
	if s.remote == nil {
		return fn(ctx)
	}

	if !s.remote.AllowRequest() {
		return errors.New("opstore: remote backend circuit open, request dropped")
	}

	err := fn(ctx)
	if err != nil {
		s.remote.RecordFailure()
	} else {
		s.remote.RecordSuccess()
	}

	return err
}

// RecordMount appends a mount-attempt event. mountErr may be nil for a
// successful mount.
func (s *Store) RecordMount(ctx context.Context, shardID, shardPath, trustLevel string, mountErr error) error {
	if s == nil {
		return nil
	}

	errText := ""
	if mountErr != nil {
		errText = mountErr.Error()
	}

	ev := &MountEvent{
		ID:         uuid.NewString(),
		ShardID:    shardID,
		ShardPath:  shardPath,
		TrustLevel: trustLevel,
		Error:      errText,
		OccurredAt: time.Now().UTC(),
	}

	err := s.withBreaker(ctx, func(ctx context.Context) error {
		_, err := s.db.NewInsert().Model(ev).Exec(ctx)

		return err
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("shard_id", shardID).Msg("opstore: failed to record mount event")
	}

	return err
}

// RecordQuery appends a query-audit event.
func (s *Store) RecordQuery(ctx context.Context, kind, term string, resultCount int, duration time.Duration) error {
	if s == nil {
		return nil
	}

	ev := &QueryEvent{
		ID:          uuid.NewString(),
		Kind:        kind,
		Term:        term,
		ResultCount: resultCount,
		Duration:    duration,
		OccurredAt:  time.Now().UTC(),
	}

	err := s.withBreaker(ctx, func(ctx context.Context) error {
		_, err := s.db.NewInsert().Model(ev).Exec(ctx)

		return err
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("kind", kind).Msg("opstore: failed to record query event")
	}

	return err
}

// GetTrustedPublisherKey looks up a reserved trusted-publisher key.
// Returns ("", false, nil) if no key is stored for publisherID.
func (s *Store) GetTrustedPublisherKey(ctx context.Context, publisherID string) (string, bool, error) {
	if s == nil {
		return "", false, nil
	}

	var rec TrustedPublisherKey

	err := s.withBreaker(ctx, func(ctx context.Context) error {
		return s.db.NewSelect().Model(&rec).Where("publisher_id = ?", publisherID).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("opstore: get trusted publisher key: %w", err)
	}

	return rec.Key, true, nil
}

// SetTrustedPublisherKey stores or replaces the trusted key for
// publisherID.
func (s *Store) SetTrustedPublisherKey(ctx context.Context, publisherID, key string) error {
	if s == nil {
		return nil
	}

	rec := &TrustedPublisherKey{PublisherID: publisherID, Key: key}

	return s.withBreaker(ctx, func(ctx context.Context) error {
		_, err := s.db.NewInsert().
			Model(rec).
			On("CONFLICT (publisher_id) DO UPDATE").
			Set("key = EXCLUDED.key").
			Exec(ctx)

		return err
	})
}
