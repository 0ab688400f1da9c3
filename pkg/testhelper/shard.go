// Package testhelper builds fixture AXM Genesis shards on disk for use
// by pkg/vault and pkg/graphstore tests: a manifest, four Parquet
// tables, content files, and a placeholder signature, written under a
// fresh t.TempDir() with a correctly computed Merkle root.
package testhelper

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/marcboeker/go-duckdb/v2" // registers the "duckdb" database/sql driver
	"github.com/stretchr/testify/require"

	"github.com/BigBirdReturns/axm-core/pkg/merkle"
)

// Entity is one fixture row for graph/entities.parquet.
type Entity struct {
	EntityID string
	Label    string
}

// Claim is one fixture row for graph/claims.parquet.
type Claim struct {
	ClaimID    string
	Subject    string
	Predicate  string
	Object     string
	ObjectType string
	Tier       int
}

// Provenance is one fixture row for graph/provenance.parquet.
type Provenance struct {
	ClaimID    string
	SourceHash string
	ByteStart  int
	ByteEnd    int
}

// Span is one fixture row for evidence/spans.parquet.
type Span struct {
	SourceHash string
	ByteStart  int
	ByteEnd    int
	Text       string
}

// Source is one fixture content document, written under content/ and
// declared in the manifest's sources list.
type Source struct {
	Hash string
	Text string
}

// Shard describes the full fixture graph to build.
type Shard struct {
	ShardID       string
	Entities      []Entity
	Claims        []Claim
	Provenance    []Provenance
	Spans         []Span
	Sources       []Source
	PublisherID   string
	PublisherName string
}

// BuildFixtureShard writes a complete, self-consistent AXM Genesis shard
// under a fresh temporary directory and returns its root path. The
// manifest's merkle_root is computed from the actual written tree, so
// VerifyShard succeeds against the returned path unmodified.
func BuildFixtureShard(t testing.TB, s Shard) string {
	t.Helper()

	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "graph"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "evidence"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "content"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sig"), 0o755))

	writeContent(t, root, s.Sources)
	writeParquetTables(t, root, s)

	require.NoError(t, os.WriteFile(filepath.Join(root, "sig", "publisher.sig"), []byte("opaque"), 0o644))

	// manifest.json does not exist on disk yet, so it is trivially excluded
	// from this computation without relying on merkle's own skip rule.
	rootHash, err := merkle.ComputeRoot(context.Background(), root)
	require.NoError(t, err)

	writeManifest(t, root, s, fmt.Sprintf("%x", rootHash))

	return root
}

func writeContent(t testing.TB, root string, sources []Source) {
	t.Helper()

	for _, src := range sources {
		path := filepath.Join(root, "content", src.Hash+".txt")
		require.NoError(t, os.WriteFile(path, []byte(src.Text), 0o644))
	}
}

func writeManifest(t testing.TB, root string, s Shard, merkleRootHex string) {
	t.Helper()

	manifest := map[string]any{
		"spec_version": "1.0",
		"shard_id":     s.ShardID,
		"metadata": map[string]any{
			"title":      "fixture shard",
			"namespace":  "test",
			"created_at": "2026-01-01T00:00:00Z",
		},
		"publisher": map[string]any{
			"id":   s.PublisherID,
			"name": s.PublisherName,
		},
		"license": map[string]any{
			"spdx": "CC0-1.0",
		},
		"integrity": map[string]any{
			"merkle_root": merkleRootHex,
		},
		"statistics": map[string]any{
			"entities": len(s.Entities),
			"claims":   len(s.Claims),
		},
		"sources": sourcesToManifest(s.Sources),
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), raw, 0o644))
}

func sourcesToManifest(sources []Source) []map[string]string {
	out := make([]map[string]string, 0, len(sources))

	for _, src := range sources {
		out = append(out, map[string]string{
			"path": "content/" + src.Hash + ".txt",
			"hash": src.Hash,
		})
	}

	return out
}

// writeParquetTables loads each fixture table into a scratch in-memory
// DuckDB connection and writes it out with COPY ... TO ... (FORMAT
// PARQUET), the same engine pkg/graphstore reads back with
// read_parquet, so fixtures exercise the real Parquet codec rather
// than a hand-rolled substitute.
func writeParquetTables(t testing.TB, root string, s Shard) {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	ctx := context.Background()

	exec := func(query string, args ...any) {
		_, err := db.ExecContext(ctx, query, args...)
		require.NoError(t, err)
	}

	exec(`CREATE TABLE entities (entity_id VARCHAR, label VARCHAR)`)

	for _, e := range s.Entities {
		exec(`INSERT INTO entities VALUES (?, ?)`, e.EntityID, e.Label)
	}

	exec(`CREATE TABLE claims (
		claim_id VARCHAR, subject VARCHAR, predicate VARCHAR,
		object VARCHAR, object_type VARCHAR, tier INTEGER
	)`)

	for _, c := range s.Claims {
		exec(`INSERT INTO claims VALUES (?, ?, ?, ?, ?, ?)`,
			c.ClaimID, c.Subject, c.Predicate, c.Object, c.ObjectType, c.Tier)
	}

	exec(`CREATE TABLE provenance (
		claim_id VARCHAR, source_hash VARCHAR, byte_start INTEGER, byte_end INTEGER
	)`)

	for _, p := range s.Provenance {
		exec(`INSERT INTO provenance VALUES (?, ?, ?, ?)`, p.ClaimID, p.SourceHash, p.ByteStart, p.ByteEnd)
	}

	exec(`CREATE TABLE spans (
		source_hash VARCHAR, byte_start INTEGER, byte_end INTEGER, text VARCHAR
	)`)

	for _, sp := range s.Spans {
		exec(`INSERT INTO spans VALUES (?, ?, ?, ?)`, sp.SourceHash, sp.ByteStart, sp.ByteEnd, sp.Text)
	}

	copyTo := func(table, path string) {
		stmt := fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, path)
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	copyTo("entities", filepath.Join(root, "graph", "entities.parquet"))
	copyTo("claims", filepath.Join(root, "graph", "claims.parquet"))
	copyTo("provenance", filepath.Join(root, "graph", "provenance.parquet"))
	copyTo("spans", filepath.Join(root, "evidence", "spans.parquet"))
}
