package merkle_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigBirdReturns/axm-core/pkg/merkle"
	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

func writeTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "graph"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sig"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), []byte(`{"shard_id":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "graph", "claims.parquet"), []byte("claims-data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "graph", "entities.parquet"), []byte("entities-data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sig", "publisher.sig"), []byte("signature-bytes"), 0o644))

	return root
}

func TestComputeRoot_IsDeterministic(t *testing.T) {
	t.Parallel()

	root := writeTree(t)

	first, err := merkle.ComputeRoot(context.Background(), root)
	require.NoError(t, err)

	second, err := merkle.ComputeRoot(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeRoot_SensitiveToContentChange(t *testing.T) {
	t.Parallel()

	root := writeTree(t)

	before, err := merkle.ComputeRoot(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "graph", "claims.parquet"), []byte("mutated-data"), 0o644))

	after, err := merkle.ComputeRoot(context.Background(), root)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestComputeRoot_IgnoresManifestAndSig(t *testing.T) {
	t.Parallel()

	root := writeTree(t)

	before, err := merkle.ComputeRoot(context.Background(), root)
	require.NoError(t, err)

	// Changing manifest.json and sig/* must not affect the root: they are
	// excluded leaves.
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), []byte(`{"shard_id":"changed"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sig", "publisher.sig"), []byte("different-signature"), 0o644))

	after, err := merkle.ComputeRoot(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestComputeRoot_EmptyTreeFails(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), []byte(`{}`), 0o644))

	_, err := merkle.ComputeRoot(context.Background(), root)

	assert.ErrorIs(t, err, vaulterr.ErrVerificationError)
}

func TestComputeRoot_OrderIndependentOfWalkOrder(t *testing.T) {
	t.Parallel()

	rootA := t.TempDir()
	rootB := t.TempDir()

	for i := range 5 {
		name := fmt.Sprintf("file-%d.dat", i)
		data := []byte(fmt.Sprintf("payload-%d", i))

		require.NoError(t, os.WriteFile(filepath.Join(rootA, name), data, 0o644))
		// Write the same files into rootB in reverse creation order. WalkDir
		// visits them in lexicographic order either way, so this checks that
		// creation order does not affect the root.
		require.NoError(t, os.WriteFile(filepath.Join(rootB, fmt.Sprintf("file-%d.dat", 4-i)), []byte(fmt.Sprintf("payload-%d", 4-i)), 0o644))
	}

	rootHashA, err := merkle.ComputeRoot(context.Background(), rootA)
	require.NoError(t, err)

	rootHashB, err := merkle.ComputeRoot(context.Background(), rootB)
	require.NoError(t, err)

	assert.Equal(t, rootHashA, rootHashB)
}
