package vaulterr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

func TestShardNotFoundError_Unwrap(t *testing.T) {
	t.Parallel()

	err := vaulterr.NewShardNotFound("/shards/missing")

	assert.ErrorIs(t, err, vaulterr.ErrShardNotFound)
	assert.Contains(t, err.Error(), "/shards/missing")

	var typed *vaulterr.ShardNotFoundError

	assert.True(t, errors.As(err, &typed))
	assert.Equal(t, "/shards/missing", typed.Path)
}

func TestMissingFileError_Unwrap(t *testing.T) {
	t.Parallel()

	err := vaulterr.NewMissingFile("graph/claims.parquet")

	assert.ErrorIs(t, err, vaulterr.ErrMissingFile)
	assert.Contains(t, err.Error(), "graph/claims.parquet")

	var typed *vaulterr.MissingFileError

	assert.True(t, errors.As(err, &typed))
	assert.Equal(t, "graph/claims.parquet", typed.RelPath)
}

func TestByteRangeErrorDetail_Message(t *testing.T) {
	t.Parallel()

	err := vaulterr.NewByteRangeError(10, 5)

	assert.ErrorIs(t, err, vaulterr.ErrByteRangeError)
	assert.Contains(t, err.Error(), "[10, 5)")
}

func TestVerificationErrorDetail_CarriesBothRoots(t *testing.T) {
	t.Parallel()

	err := vaulterr.NewVerificationError("aaaa", "bbbb")

	var typed *vaulterr.VerificationErrorDetail

	assert.True(t, errors.As(err, &typed))
	assert.Equal(t, "aaaa", typed.Expected)
	assert.Equal(t, "bbbb", typed.Actual)
	assert.ErrorIs(t, err, vaulterr.ErrVerificationError)
}
