package content_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigBirdReturns/axm-core/pkg/content"
	"github.com/BigBirdReturns/axm-core/pkg/manifest"
)

func TestBuild_OmitsMissingSourcesAndKeepsPresentOnes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "content"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "content", "present.txt"), []byte("hello"), 0o644))

	sources := []manifest.Source{
		{Path: "content/present.txt", Hash: "hash-present"},
		{Path: "content/missing.txt", Hash: "hash-missing"},
	}

	m := content.Build(context.Background(), root, sources)

	path, ok := m.Path("hash-present")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "content", "present.txt"), path)

	_, ok = m.Path("hash-missing")
	assert.False(t, ok)
}

func TestBuild_EmptySources(t *testing.T) {
	t.Parallel()

	m := content.Build(context.Background(), t.TempDir(), nil)

	assert.Empty(t, m)
}
