// Package layout validates that a shard directory on disk carries the
// minimum set of required files before the rest of the mount pipeline
// touches it.
package layout

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"

	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

const otelPackageName = "github.com/BigBirdReturns/axm-core/pkg/layout"

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// RequiredFiles lists the five paths, relative to the shard root, that
// must exist for a mount to proceed. content/ and sig/ directory
// presence is not enforced here; they may be empty or absent entirely.
//
//nolint:gochecknoglobals
var RequiredFiles = []string{
	"manifest.json",
	filepath.Join("graph", "claims.parquet"),
	filepath.Join("graph", "entities.parquet"),
	filepath.Join("graph", "provenance.parquet"),
	filepath.Join("evidence", "spans.parquet"),
}

// Validate checks that root exists and is a directory, then checks each
// of RequiredFiles in order, failing with MissingFile on the first
// absent one.
func Validate(ctx context.Context, root string) error {
	_, span := tracer.Start(ctx, "layout.Validate")
	defer span.End()

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return vaulterr.NewShardNotFound(root)
	}

	for _, rel := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			return vaulterr.NewMissingFile(rel)
		}
	}

	return nil
}
