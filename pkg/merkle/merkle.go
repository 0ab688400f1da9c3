// Package merkle computes and verifies the Merkle root of a shard tree
// under a canonical exclusion, ordering, and reduction scheme.
package merkle

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"

	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

const otelPackageName = "github.com/BigBirdReturns/axm-core/pkg/merkle"

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// leafSeparator is the domain tag inserted between a leaf's relative
// path bytes and its file bytes.
const leafSeparator = 0x00

// excludedManifest is the one top-level file never treated as a leaf.
const excludedManifest = "manifest.json"

// excludedSigPrefix marks the directory whose contents are opaque to the
// Vault core and never treated as leaves.
const excludedSigPrefix = "sig/"

// leaf pairs a canonicalized, slash-normalized relative path with its
// Blake3 leaf hash.
type leaf struct {
	relPath string
	hash    [32]byte
}

// ComputeRoot walks root recursively, hashes every included regular
// file as a domain-tagged Blake3 leaf, sorts leaves lexicographically by
// relative path, and reduces pairwise (duplicating the odd trailing
// node) until a single root hash remains.
//
// An empty leaf set is a verification failure.
func ComputeRoot(ctx context.Context, root string) ([32]byte, error) {
	_, span := tracer.Start(ctx, "merkle.ComputeRoot")
	defer span.End()

	var leaves []leaf

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		if rel == excludedManifest || strings.HasPrefix(rel, excludedSigPrefix) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		leaves = append(leaves, leaf{relPath: rel, hash: leafHash(rel, data)})

		return nil
	})
	if walkErr != nil {
		return [32]byte{}, vaulterr.NewDatabaseError(walkErr.Error())
	}

	if len(leaves) == 0 {
		return [32]byte{}, vaulterr.NewVerificationError("non-empty leaf set", "empty leaf set")
	}

	sort.Slice(leaves, func(i, j int) bool { return leaves[i].relPath < leaves[j].relPath })

	level := make([][32]byte, len(leaves))
	for i, l := range leaves {
		level[i] = l.hash
	}

	return reduce(level), nil
}

// leafHash computes Blake3(relPath || 0x00 || data).
func leafHash(relPath string, data []byte) [32]byte {
	h := blake3.New()
	_, _ = h.Write([]byte(relPath))
	_, _ = h.Write([]byte{leafSeparator})
	_, _ = h.Write(data)

	var out [32]byte

	copy(out[:], h.Sum(nil))

	return out
}

// reduce pairwise-hashes level until one node remains, duplicating the
// last node whenever the level has an odd count.
func reduce(level [][32]byte) [32]byte {
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)

		for i := 0; i < len(level); i += 2 {
			left := level[i]

			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}

			h := blake3.New()
			_, _ = h.Write(left[:])
			_, _ = h.Write(right[:])

			var sum [32]byte

			copy(sum[:], h.Sum(nil))

			next = append(next, sum)
		}

		level = next
	}

	return level[0]
}
