// Package content builds and serves the source-hash to absolute-path map
// used by the provenance resolver.
package content

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/BigBirdReturns/axm-core/pkg/manifest"
)

const otelPackageName = "github.com/BigBirdReturns/axm-core/pkg/content"

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// Map is hash -> absolute path for every source document whose declared
// file was actually found under the shard root at mount time. Sources
// whose file is absent are silently omitted; a lookup miss later
// surfaces as ContentNotFound localized to that claim, not the mount.
type Map map[string]string

// Build constructs the content map for root from the manifest's declared
// sources.
func Build(ctx context.Context, root string, sources []manifest.Source) Map {
	_, span := tracer.Start(ctx, "content.Build")
	defer span.End()

	logger := zerolog.Ctx(ctx)

	m := make(Map, len(sources))

	for _, src := range sources {
		abs := filepath.Join(root, src.Path)

		if _, err := os.Stat(abs); err != nil {
			logger.Debug().Str("path", src.Path).Msg("content: declared source file not found, omitting")

			continue
		}

		m[src.Hash] = abs
	}

	return m
}

// Path returns the absolute path for hash and whether it was found.
func (m Map) Path(hash string) (string, bool) {
	p, ok := m[hash]

	return p, ok
}
