// Package vault implements the Vault state machine: the top-level,
// thread-safe orchestrator that coordinates Unmounted/Mounted
// transitions and serves every public read operation.
package vault

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/BigBirdReturns/axm-core/pkg/content"
	"github.com/BigBirdReturns/axm-core/pkg/graphstore"
	"github.com/BigBirdReturns/axm-core/pkg/layout"
	"github.com/BigBirdReturns/axm-core/pkg/lock"
	"github.com/BigBirdReturns/axm-core/pkg/manifest"
	"github.com/BigBirdReturns/axm-core/pkg/merkle"
	"github.com/BigBirdReturns/axm-core/pkg/metrics"
	"github.com/BigBirdReturns/axm-core/pkg/opstore"
	"github.com/BigBirdReturns/axm-core/pkg/provenance"
	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

const otelPackageName = "github.com/BigBirdReturns/axm-core/pkg/vault"

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// stateKey is the single fixed key the RWLocker guards; the Vault has
// exactly one mounted-state record, so there is no need for per-key
// striping.
const stateKey = "vault-state"

const defaultLockTTL = 5 * time.Minute

// VerificationState is the supplemented two-flag verification record
// recovered from the original architecture (see DESIGN.md). Mount
// populates it by running the same Merkle check as VerifyShard; it is
// additive detail surfaced through GetStatistics and does not change
// verify_shard's TrustLevel-only contract.
type VerificationState struct {
	SignatureValid *bool
	MerkleValid    *bool
	TrustLevel     manifest.TrustLevel
}

// Statistics is the record returned by GetStatistics.
type Statistics struct {
	EntityCount       int64
	ClaimCount        int64
	ClaimsByTier      map[int]int64
	ProvenanceCount   int64
	SpanCount         int64
	DistinctPredicate int64

	MerkleVerified    *bool
	SignatureVerified *bool
}

// mountedState bundles the five pieces of guarded state: the engine
// handle, the mount flag (implicit in whether the other fields are
// populated), metadata, shard path, and content map.
type mountedState struct {
	store      *graphstore.Store
	metadata   *manifest.Metadata
	shardPath  string
	contentMap content.Map
	verify     VerificationState
}

// Vault is the public, thread-safe API surface. rw guards all five
// pieces of mounted state together; they are mutated only by Mount and
// Unmount. ops is optional: a nil ops skips history recording entirely,
// so the core contract never depends on it.
type Vault struct {
	rw lock.RWLocker

	state *mountedState // nil when Unmounted

	ops *opstore.Store
}

// New constructs an unmounted Vault. ops may be nil.
func New(rw lock.RWLocker, ops *opstore.Store) *Vault {
	return &Vault{rw: rw, ops: ops}
}

// Mount validates the shard's layout, parses its manifest, binds the
// four Parquet views, and builds the content map, making the shard
// queryable. If the Vault is already mounted, per DESIGN.md's resolution
// of the re-mount-atomicity open question (option b), it fully unmounts
// first so a failed second mount never leaves stale views paired with
// fresh metadata.
func (v *Vault) Mount(ctx context.Context, path string) (*manifest.Metadata, error) {
	ctx, span := tracer.Start(ctx, "vault.Mount")
	defer span.End()

	logger := zerolog.Ctx(ctx)

	if err := v.rw.Lock(ctx, stateKey, defaultLockTTL); err != nil {
		return nil, fmt.Errorf("vault: acquiring mount lock: %w", err)
	}
	defer func() { _ = v.rw.Unlock(ctx, stateKey) }()

	if v.state != nil {
		if err := v.unmountLocked(ctx); err != nil {
			return nil, err
		}
	}

	md, cm, store, err := v.mountPipeline(ctx, path)

	var verify VerificationState

	if err == nil {
		trustLevel, verifyErr := verifyMerkleRoot(ctx, path, md.MerkleRoot)
		merkleValid := verifyErr == nil
		md.TrustLevel = trustLevel
		verify = VerificationState{MerkleValid: &merkleValid, TrustLevel: trustLevel}

		metrics.RecordVerification(ctx, string(trustLevel))
	}

	shardID := ""
	if md != nil {
		shardID = md.ShardID
	}

	result := "success"
	if err != nil {
		result = "failure"
	}

	metrics.RecordMount(ctx, result)

	if v.ops != nil {
		trustLevel := string(manifest.TrustUnverified)
		if md != nil {
			trustLevel = string(md.TrustLevel)
		}

		_ = v.ops.RecordMount(ctx, shardID, path, trustLevel, err)
	}

	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("vault: mount failed")

		return nil, err
	}

	v.state = &mountedState{
		store:      store,
		metadata:   md,
		shardPath:  path,
		contentMap: cm,
		verify:     verify,
	}

	metrics.RecordMounted(ctx, 1)

	return md, nil
}

// mountPipeline runs layout validation, manifest parsing, view binding,
// and content map construction without mutating v.state; on any failure
// it cleans up partial resources so the Vault's rollback guarantee
// holds.
func (v *Vault) mountPipeline(
	ctx context.Context,
	path string,
) (*manifest.Metadata, content.Map, *graphstore.Store, error) {
	if err := layout.Validate(ctx, path); err != nil {
		return nil, nil, nil, err
	}

	raw, err := os.ReadFile(path + "/manifest.json")
	if err != nil {
		return nil, nil, nil, vaulterr.NewInvalidManifest(err.Error())
	}

	md, err := manifest.Parse(ctx, raw)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := graphstore.Open(ctx, path)
	if err != nil {
		return nil, nil, nil, err
	}

	cm := content.Build(ctx, path, md.Sources)

	return md, cm, store, nil
}

// Unmount drops the four views and clears metadata, shard path, and
// content map.
func (v *Vault) Unmount(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "vault.Unmount")
	defer span.End()

	if err := v.rw.Lock(ctx, stateKey, defaultLockTTL); err != nil {
		return fmt.Errorf("vault: acquiring unmount lock: %w", err)
	}
	defer func() { _ = v.rw.Unlock(ctx, stateKey) }()

	return v.unmountLocked(ctx)
}

func (v *Vault) unmountLocked(ctx context.Context) error {
	if v.state == nil {
		return nil
	}

	if err := v.state.store.Close(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("vault: error closing graph store during unmount")
	}

	v.state = nil

	metrics.RecordMounted(ctx, -1)

	return nil
}

// IsMounted reports whether the Vault currently holds a mounted shard.
func (v *Vault) IsMounted(ctx context.Context) bool {
	_ = v.rw.RLock(ctx, stateKey, defaultLockTTL)
	defer func() { _ = v.rw.RUnlock(ctx, stateKey) }()

	return v.state != nil
}

// GetMetadata returns the current metadata, or nil if Unmounted.
func (v *Vault) GetMetadata(ctx context.Context) *manifest.Metadata {
	_ = v.rw.RLock(ctx, stateKey, defaultLockTTL)
	defer func() { _ = v.rw.RUnlock(ctx, stateKey) }()

	if v.state == nil {
		return nil
	}

	md := *v.state.metadata

	return &md
}

// GetShardPath returns the mounted path, or "" with ok=false if
// Unmounted.
func (v *Vault) GetShardPath(ctx context.Context) (string, bool) {
	_ = v.rw.RLock(ctx, stateKey, defaultLockTTL)
	defer func() { _ = v.rw.RUnlock(ctx, stateKey) }()

	if v.state == nil {
		return "", false
	}

	return v.state.shardPath, true
}

// withMountedRead acquires a read lock, checks the mount guard, and
// invokes fn with the locked state; every read operation routes through
// this so NotMounted is returned iff IsMounted is false.
func (v *Vault) withMountedRead(ctx context.Context, fn func(*mountedState) error) error {
	if err := v.rw.RLock(ctx, stateKey, defaultLockTTL); err != nil {
		return fmt.Errorf("vault: acquiring read lock: %w", err)
	}
	defer func() { _ = v.rw.RUnlock(ctx, stateKey) }()

	if v.state == nil {
		return vaulterr.ErrNotMounted
	}

	return fn(v.state)
}

// Query implements the substring search surface.
func (v *Vault) Query(ctx context.Context, term string, opts graphstore.QueryOptions) ([]graphstore.VerifiedClaim, error) {
	ctx, span := tracer.Start(ctx, "vault.Query")
	defer span.End()

	start := time.Now()

	var claims []graphstore.VerifiedClaim

	err := v.withMountedRead(ctx, func(s *mountedState) error {
		var err error

		claims, err = s.store.Query(ctx, term, opts)

		return err
	})

	v.recordQuery(ctx, "query", term, claims, time.Since(start))

	return claims, err
}

// GetAllClaims implements the full listing surface.
func (v *Vault) GetAllClaims(ctx context.Context, opts graphstore.QueryOptions) ([]graphstore.VerifiedClaim, error) {
	ctx, span := tracer.Start(ctx, "vault.GetAllClaims")
	defer span.End()

	start := time.Now()

	var claims []graphstore.VerifiedClaim

	err := v.withMountedRead(ctx, func(s *mountedState) error {
		var err error

		claims, err = s.store.GetAllClaims(ctx, opts)

		return err
	})

	v.recordQuery(ctx, "get_all_claims", "", claims, time.Since(start))

	return claims, err
}

// GetClaimsForEntity implements the entity neighborhood surface.
func (v *Vault) GetClaimsForEntity(ctx context.Context, entityID string) ([]graphstore.VerifiedClaim, error) {
	ctx, span := tracer.Start(ctx, "vault.GetClaimsForEntity")
	defer span.End()

	start := time.Now()

	var claims []graphstore.VerifiedClaim

	err := v.withMountedRead(ctx, func(s *mountedState) error {
		var err error

		claims, err = s.store.GetClaimsForEntity(ctx, entityID)

		return err
	})

	v.recordQuery(ctx, "get_claims_for_entity", entityID, claims, time.Since(start))

	return claims, err
}

// ExecuteSQL implements the raw SQL passthrough surface.
func (v *Vault) ExecuteSQL(ctx context.Context, sqlText string) ([]graphstore.Record, error) {
	ctx, span := tracer.Start(ctx, "vault.ExecuteSQL")
	defer span.End()

	var records []graphstore.Record

	err := v.withMountedRead(ctx, func(s *mountedState) error {
		var err error

		records, err = s.store.ExecuteSQL(ctx, sqlText)

		return err
	})

	return records, err
}

func (v *Vault) recordQuery(ctx context.Context, kind, term string, claims []graphstore.VerifiedClaim, dur time.Duration) {
	metrics.RecordQuery(ctx, kind, dur)

	if v.ops != nil {
		_ = v.ops.RecordQuery(ctx, kind, term, len(claims), dur)
	}
}

// GetContentSlice implements the provenance resolver's slice lookup.
func (v *Vault) GetContentSlice(ctx context.Context, sourceHash string, byteStart, byteEnd int) (string, error) {
	ctx, span := tracer.Start(ctx, "vault.GetContentSlice")
	defer span.End()

	var slice string

	err := v.withMountedRead(ctx, func(s *mountedState) error {
		r := provenance.New(s.contentMap, os.ReadFile)

		var err error

		slice, err = r.GetContentSlice(ctx, sourceHash, byteStart, byteEnd)

		return err
	})

	return slice, err
}

// VerifySpan implements the provenance resolver's claim-evidence check.
func (v *Vault) VerifySpan(ctx context.Context, claim provenance.Claim) (bool, error) {
	ctx, span := tracer.Start(ctx, "vault.VerifySpan")
	defer span.End()

	var ok bool

	err := v.withMountedRead(ctx, func(s *mountedState) error {
		r := provenance.New(s.contentMap, os.ReadFile)

		var err error

		ok, err = r.VerifySpan(ctx, claim)

		return err
	})

	return ok, err
}

// GetStatistics returns live tallies plus the supplemented
// signature/merkle verification flags.
func (v *Vault) GetStatistics(ctx context.Context) (*Statistics, error) {
	ctx, span := tracer.Start(ctx, "vault.GetStatistics")
	defer span.End()

	var stats *Statistics

	err := v.withMountedRead(ctx, func(s *mountedState) error {
		rows, err := s.store.ExecuteSQL(ctx, statisticsQuery)
		if err != nil {
			return err
		}

		stats = tallyStatistics(rows)
		stats.MerkleVerified = s.verify.MerkleValid
		stats.SignatureVerified = s.verify.SignatureValid

		return nil
	})

	return stats, err
}

const statisticsQuery = `
SELECT
  (SELECT COUNT(*) FROM entities) AS entity_count,
  (SELECT COUNT(*) FROM claims) AS claim_count,
  (SELECT COUNT(*) FROM claims WHERE tier = 0) AS tier0,
  (SELECT COUNT(*) FROM claims WHERE tier = 1) AS tier1,
  (SELECT COUNT(*) FROM claims WHERE tier >= 2) AS tier2plus,
  (SELECT COUNT(*) FROM provenance) AS provenance_count,
  (SELECT COUNT(*) FROM spans) AS span_count,
  (SELECT COUNT(DISTINCT predicate) FROM claims) AS distinct_predicate
`

func tallyStatistics(rows []graphstore.Record) *Statistics {
	s := &Statistics{ClaimsByTier: map[int]int64{0: 0, 1: 0, 2: 0}}

	if len(rows) == 0 {
		return s
	}

	row := rows[0]

	s.EntityCount = asInt64(row["entity_count"])
	s.ClaimCount = asInt64(row["claim_count"])
	s.ClaimsByTier[0] = asInt64(row["tier0"])
	s.ClaimsByTier[1] = asInt64(row["tier1"])
	s.ClaimsByTier[2] = asInt64(row["tier2plus"])
	s.ProvenanceCount = asInt64(row["provenance_count"])
	s.SpanCount = asInt64(row["span_count"])
	s.DistinctPredicate = asInt64(row["distinct_predicate"])

	return s
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}

// VerifyShard computes the shard's Merkle root and compares it against
// the manifest's declared root; it is static and does not require a
// mount. Signature verification is reserved for a future extension: on
// Merkle success alone this returns SignatureOnly.
func VerifyShard(ctx context.Context, shardPath string) (manifest.TrustLevel, error) {
	ctx, span := tracer.Start(ctx, "vault.VerifyShard")
	defer span.End()

	raw, err := os.ReadFile(shardPath + "/manifest.json")
	if err != nil {
		return manifest.TrustFailed, vaulterr.NewInvalidManifest(err.Error())
	}

	md, err := manifest.Parse(ctx, raw)
	if err != nil {
		return manifest.TrustFailed, err
	}

	trustLevel, err := verifyMerkleRoot(ctx, shardPath, md.MerkleRoot)

	metrics.RecordVerification(ctx, string(trustLevel))

	return trustLevel, err
}

// verifyMerkleRoot computes shardPath's actual Merkle root and compares it
// against declaredRoot, the root recorded in the manifest. It backs both
// VerifyShard and Mount's verification step, so the two never disagree on
// what counts as a match.
func verifyMerkleRoot(ctx context.Context, shardPath, declaredRoot string) (manifest.TrustLevel, error) {
	if declaredRoot == "" {
		return manifest.TrustFailed, vaulterr.NewVerificationError("non-empty manifest root", "")
	}

	actual, err := merkle.ComputeRoot(ctx, shardPath)
	if err != nil {
		return manifest.TrustFailed, err
	}

	actualHex := fmt.Sprintf("%x", actual)

	if actualHex != declaredRoot {
		return manifest.TrustFailed, vaulterr.NewVerificationError(declaredRoot, actualHex)
	}

	return manifest.TrustSignatureOnly, nil
}
