package layout_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigBirdReturns/axm-core/pkg/layout"
	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

func writeRequiredFiles(t *testing.T, root string) {
	t.Helper()

	for _, rel := range layout.RequiredFiles {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}
}

func TestValidate_CompleteShard(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeRequiredFiles(t, root)

	assert.NoError(t, layout.Validate(context.Background(), root))
}

func TestValidate_MissingRoot(t *testing.T) {
	t.Parallel()

	err := layout.Validate(context.Background(), filepath.Join(t.TempDir(), "nope"))

	assert.ErrorIs(t, err, vaulterr.ErrShardNotFound)
}

func TestValidate_MissingRequiredFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeRequiredFiles(t, root)
	require.NoError(t, os.Remove(filepath.Join(root, "graph", "claims.parquet")))

	err := layout.Validate(context.Background(), root)

	assert.ErrorIs(t, err, vaulterr.ErrMissingFile)
}
