package graphstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigBirdReturns/axm-core/pkg/graphstore"
	"github.com/BigBirdReturns/axm-core/pkg/testhelper"
)

func fixtureShard(t *testing.T) testhelper.Shard {
	t.Helper()

	return testhelper.Shard{
		ShardID: "shard-fixture",
		Entities: []testhelper.Entity{
			{EntityID: "e1", Label: "Alan Turing"},
			{EntityID: "e2", Label: "Cambridge University"},
		},
		Claims: []testhelper.Claim{
			{ClaimID: "c1", Subject: "e1", Predicate: "studied_at", Object: "e2", ObjectType: "entity", Tier: 0},
			{ClaimID: "c2", Subject: "e1", Predicate: "born_in", Object: "1912", ObjectType: "literal", Tier: 1},
			{ClaimID: "c3", Subject: "e1", Predicate: "nationality", Object: "British", ObjectType: "literal", Tier: 2},
		},
		Provenance: []testhelper.Provenance{
			{ClaimID: "c1", SourceHash: "src-1", ByteStart: 0, ByteEnd: 19},
			{ClaimID: "c2", SourceHash: "src-1", ByteStart: 41, ByteEnd: 53},
			// c3 has no provenance row: an orphan claim.
		},
		Spans: []testhelper.Span{
			{SourceHash: "src-1", ByteStart: 0, ByteEnd: 19, Text: "Alan Turing studied"},
			{SourceHash: "src-1", ByteStart: 41, ByteEnd: 53, Text: "born in 1912"},
		},
		Sources: []testhelper.Source{
			{Hash: "src-1", Text: "Alan Turing studied at Cambridge. He was born in 1912 in London."},
		},
		PublisherID:   "pub-1",
		PublisherName: "Test Publisher",
	}
}

func openFixture(t *testing.T) *graphstore.Store {
	t.Helper()

	root := testhelper.BuildFixtureShard(t, fixtureShard(t))

	store, err := graphstore.Open(context.Background(), root)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestGetAllClaims_OrphanClaimSurfacesWithEmptyProvenance(t *testing.T) {
	t.Parallel()

	store := openFixture(t)

	claims, err := store.GetAllClaims(context.Background(), graphstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, claims, 3)

	var orphan *graphstore.VerifiedClaim

	for i := range claims {
		if claims[i].ClaimID == "c3" {
			orphan = &claims[i]
		}
	}

	require.NotNil(t, orphan, "orphan claim c3 must still be returned with default options")
	assert.Empty(t, orphan.SourceHash)
	assert.Equal(t, -1, orphan.ByteStart)
	assert.Equal(t, -1, orphan.ByteEnd)
	assert.Empty(t, orphan.Evidence)
}

func TestGetAllClaims_OrderedByTierThenClaimID(t *testing.T) {
	t.Parallel()

	store := openFixture(t)

	claims, err := store.GetAllClaims(context.Background(), graphstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, claims, 3)

	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{claims[0].ClaimID, claims[1].ClaimID, claims[2].ClaimID})
	assert.Equal(t, []int{0, 1, 2}, []int{claims[0].Tier, claims[1].Tier, claims[2].Tier})
}

func TestGetAllClaims_MaxTierFilter(t *testing.T) {
	t.Parallel()

	store := openFixture(t)

	maxTier := 0
	claims, err := store.GetAllClaims(context.Background(), graphstore.QueryOptions{MaxTier: &maxTier})
	require.NoError(t, err)

	require.Len(t, claims, 1)
	assert.Equal(t, "c1", claims[0].ClaimID)
}

func TestGetAllClaims_LimitOverride(t *testing.T) {
	t.Parallel()

	store := openFixture(t)

	limit := 1
	claims, err := store.GetAllClaims(context.Background(), graphstore.QueryOptions{Limit: &limit})
	require.NoError(t, err)

	assert.Len(t, claims, 1)
}

func TestQuery_EntityLabelJoinForObjectType(t *testing.T) {
	t.Parallel()

	store := openFixture(t)

	claims, err := store.Query(context.Background(), "cambridge", graphstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, claims, 1)

	assert.Equal(t, "c1", claims[0].ClaimID)
	assert.Equal(t, "Cambridge University", claims[0].Object)
	assert.Equal(t, "e2", claims[0].ObjectID)
}

func TestQuery_LiteralObjectUntouchedByEntityJoin(t *testing.T) {
	t.Parallel()

	store := openFixture(t)

	claims, err := store.Query(context.Background(), "1912", graphstore.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, claims, 1)

	assert.Equal(t, "1912", claims[0].Object)
	assert.Empty(t, claims[0].ObjectID)
}

func TestGetClaimsForEntity_ObjectSide(t *testing.T) {
	t.Parallel()

	store := openFixture(t)

	claims, err := store.GetClaimsForEntity(context.Background(), "e2")
	require.NoError(t, err)
	require.Len(t, claims, 1)

	assert.Equal(t, "c1", claims[0].ClaimID)
}

func TestExecuteSQL_ReturnsHeterogeneousRecords(t *testing.T) {
	t.Parallel()

	store := openFixture(t)

	rows, err := store.ExecuteSQL(context.Background(), "SELECT COUNT(*) AS n FROM claims")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, int64(3), rows[0]["n"])
}
