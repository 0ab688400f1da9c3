// Package graphstore binds a shard's four Parquet tables as read-only
// views in an embedded relational engine and translates high-level
// queries into the canonical claim-reconstruction join.
package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb/v2" // registers the "duckdb" database/sql driver
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

const otelPackageName = "github.com/BigBirdReturns/axm-core/pkg/graphstore"

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// VerifiedClaim is the wire-stable shape returned by every claim-listing
// operation. Missing provenance is represented by empty strings and -1,
// never by omitting the claim.
type VerifiedClaim struct {
	ClaimID    string
	Subject    string
	SubjectID  string
	Predicate  string
	Object     string
	ObjectID   string
	ObjectType string
	Tier       int
	Evidence   string
	SourceHash string
	ByteStart  int
	ByteEnd    int
}

// QueryOptions controls two of the three claim-listing surfaces
// (substring search and full listing; the entity neighborhood takes no
// options).
//
// IncludeOrphanClaims is accepted and threaded through for forward
// compatibility but is currently a documented no-op: the canonical join
// always surfaces claims without provenance rather than filtering them,
// because the scenario this engine is validated against expects a
// claim with no provenance row to appear in get_all_claims with default
// options. See DESIGN.md for the resolution of this open question.
type QueryOptions struct {
	MaxTier             *int
	Limit               *int
	IncludeOrphanClaims bool
}

// Store binds the four views and serves queries against them. All
// access to the underlying engine handle is serialized by mu: one
// query in flight at a time, matching the concurrency model's "shared
// engine handle" requirement.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// canonicalJoin is shared by query, get_all_claims, and
// get_claims_for_entity. object/object_id projection and missing
// provenance defaults are expressed directly in the SELECT list so
// every caller gets identical semantics.
const canonicalJoin = `
SELECT
  c.claim_id,
  subj.label AS subject,
  c.subject AS subject_id,
  c.predicate,
  CASE WHEN c.object_type = 'entity' THEN obj.label ELSE c.object END AS object,
  CASE WHEN c.object_type = 'entity' THEN c.object ELSE '' END AS object_id,
  c.object_type,
  c.tier,
  COALESCE(s.text, '') AS evidence,
  COALESCE(p.source_hash, '') AS source_hash,
  COALESCE(p.byte_start, -1) AS byte_start,
  COALESCE(p.byte_end, -1) AS byte_end
FROM claims c
JOIN entities subj ON c.subject = subj.entity_id
LEFT JOIN entities obj ON c.object = obj.entity_id AND c.object_type = 'entity'
LEFT JOIN provenance p ON c.claim_id = p.claim_id
LEFT JOIN spans s
  ON p.source_hash = s.source_hash
  AND p.byte_start = s.byte_start
  AND p.byte_end = s.byte_end
`

// Open creates a fresh in-memory DuckDB connection and binds the four
// Parquet files under root as zero-copy views. Re-mount (a fresh Open on
// a new root) replaces any prior binding because each Open returns a new
// engine handle; the caller (pkg/vault) is responsible for closing the
// previous one before swapping it in.
func Open(ctx context.Context, root string) (*Store, error) {
	ctx, span := tracer.Start(ctx, "graphstore.Open")
	defer span.End()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, vaulterr.NewDatabaseError(err.Error())
	}

	views := map[string]string{
		"claims":     filepath.Join(root, "graph", "claims.parquet"),
		"entities":   filepath.Join(root, "graph", "entities.parquet"),
		"provenance": filepath.Join(root, "graph", "provenance.parquet"),
		"spans":      filepath.Join(root, "evidence", "spans.parquet"),
	}

	for name, path := range views {
		stmt := fmt.Sprintf(
			`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s')`,
			name, strings.ReplaceAll(path, "'", "''"),
		)

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()

			return nil, vaulterr.NewDatabaseError(fmt.Sprintf("binding view %s: %v", name, err))
		}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying engine handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// buildFilter renders the shared max_tier predicate and the LIMIT clause
// (defaultLimit unless opts.Limit is set) for a given options struct.
func buildFilter(opts QueryOptions, defaultLimit int) (whereExtra string, limitClause string) {
	if opts.MaxTier != nil {
		whereExtra = fmt.Sprintf(" AND c.tier <= %d", *opts.MaxTier)
	}

	limit := defaultLimit
	if opts.Limit != nil {
		limit = *opts.Limit
	}

	limitClause = fmt.Sprintf(" LIMIT %d", limit)

	return whereExtra, limitClause
}

// Query implements substring search: claims whose subject label,
// object (label or literal), or predicate contains term
// case-insensitively.
func (s *Store) Query(ctx context.Context, term string, opts QueryOptions) ([]VerifiedClaim, error) {
	ctx, span := tracer.Start(ctx, "graphstore.Query", trace.WithAttributes(attribute.String("term", term)))
	defer span.End()

	whereExtra, limitClause := buildFilter(opts, 20)

	needle := strings.ToLower(strings.ReplaceAll(term, "'", "''"))

	sqlText := canonicalJoin + fmt.Sprintf(`
WHERE (
  LOWER(subj.label) LIKE '%%%s%%'
  OR LOWER(CASE WHEN c.object_type = 'entity' THEN obj.label ELSE c.object END) LIKE '%%%s%%'
  OR LOWER(c.predicate) LIKE '%%%s%%'
)%s
ORDER BY c.tier ASC, c.claim_id ASC%s`, needle, needle, needle, whereExtra, limitClause)

	return s.run(ctx, sqlText)
}

// GetAllClaims implements the full listing surface.
func (s *Store) GetAllClaims(ctx context.Context, opts QueryOptions) ([]VerifiedClaim, error) {
	ctx, span := tracer.Start(ctx, "graphstore.GetAllClaims")
	defer span.End()

	whereExtra, limitClause := buildFilter(opts, 100)

	where := ""
	if whereExtra != "" {
		where = "WHERE " + strings.TrimPrefix(whereExtra, " AND ")
	}

	sqlText := canonicalJoin + fmt.Sprintf(`
%s
ORDER BY c.tier ASC, c.claim_id ASC%s`, where, limitClause)

	return s.run(ctx, sqlText)
}

// GetClaimsForEntity implements the entity neighborhood surface:
// every claim where subject = entityID or (object_type = 'entity' and
// object = entityID). No limit.
func (s *Store) GetClaimsForEntity(ctx context.Context, entityID string) ([]VerifiedClaim, error) {
	ctx, span := tracer.Start(ctx, "graphstore.GetClaimsForEntity",
		trace.WithAttributes(attribute.String("entity_id", entityID)))
	defer span.End()

	id := strings.ReplaceAll(entityID, "'", "''")

	sqlText := canonicalJoin + fmt.Sprintf(`
WHERE c.subject = '%s' OR (c.object_type = 'entity' AND c.object = '%s')
ORDER BY c.tier ASC, c.claim_id ASC`, id, id)

	return s.run(ctx, sqlText)
}

// Record is one heterogeneous row returned by ExecuteSQL. Values are
// promoted in order integer -> float -> string -> null.
type Record map[string]any

// ExecuteSQL evaluates arbitrary read-only SQL against the four bound
// views and returns rows as heterogeneous records.
//
// execute_sql trusts its input by design: this engine targets local,
// embedded use against a read-only dataset. A host that exposes it over
// a network must add its own sandboxing and parameter binding (see
// DESIGN.md).
func (s *Store) ExecuteSQL(ctx context.Context, query string) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "graphstore.ExecuteSQL")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, vaulterr.NewDatabaseError(err.Error())
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, vaulterr.NewDatabaseError(err.Error())
	}

	var out []Record

	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))

		for i := range raw {
			ptrs[i] = &raw[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, vaulterr.NewDatabaseError(err.Error())
		}

		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col] = promote(raw[i])
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, vaulterr.NewDatabaseError(err.Error())
	}

	return out, nil
}

// promote normalizes a driver value into int64, float64, string, or nil.
func promote(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int64, float64, string:
		return t
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// run executes sqlText under the canonical join shape and scans rows
// into VerifiedClaim, serializing access to the engine handle.
func (s *Store) run(ctx context.Context, sqlText string) ([]VerifiedClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	zerolog.Ctx(ctx).Trace().Str("sql", sqlText).Msg("graphstore: executing query")

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, vaulterr.NewDatabaseError(err.Error())
	}
	defer rows.Close()

	var claims []VerifiedClaim

	for rows.Next() {
		var c VerifiedClaim

		if err := rows.Scan(
			&c.ClaimID, &c.Subject, &c.SubjectID, &c.Predicate,
			&c.Object, &c.ObjectID, &c.ObjectType, &c.Tier,
			&c.Evidence, &c.SourceHash, &c.ByteStart, &c.ByteEnd,
		); err != nil {
			return nil, vaulterr.NewDatabaseError(err.Error())
		}

		claims = append(claims, c)
	}

	if err := rows.Err(); err != nil {
		return nil, vaulterr.NewDatabaseError(err.Error())
	}

	// Engine-level ORDER BY already guarantees determinism; this sort is
	// a defensive no-op that protects the invariant if a future surface
	// composes results from more than one query.
	sort.SliceStable(claims, func(i, j int) bool {
		if claims[i].Tier != claims[j].Tier {
			return claims[i].Tier < claims[j].Tier
		}

		return claims[i].ClaimID < claims[j].ClaimID
	})

	return claims, nil
}
