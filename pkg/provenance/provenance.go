// Package provenance resolves (source_hash, byte_start, byte_end)
// triples to exact UTF-8 substrings of the original source documents,
// and checks claimed evidence against the source.
package provenance

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel"

	"github.com/BigBirdReturns/axm-core/pkg/content"
	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

const otelPackageName = "github.com/BigBirdReturns/axm-core/pkg/provenance"

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// fileReader abstracts reading a content file's full bytes, so tests can
// substitute an in-memory map instead of touching disk.
type fileReader func(path string) ([]byte, error)

// Resolver looks up content files through a content.Map and slices them
// on demand; it caches nothing across calls (callers that need hot
// slices should cache at their own boundary, per the Vault's resource
// policy).
type Resolver struct {
	contentMap content.Map
	readFile   fileReader
}

// New builds a Resolver bound to contentMap, reading files through
// readFile.
func New(contentMap content.Map, readFile fileReader) *Resolver {
	return &Resolver{contentMap: contentMap, readFile: readFile}
}

// GetContentSlice looks up sourceHash in the content map, reads the
// file's bytes, validates the half-open range [byteStart, byteEnd), and
// decodes it as UTF-8.
func (r *Resolver) GetContentSlice(ctx context.Context, sourceHash string, byteStart, byteEnd int) (string, error) {
	_, span := tracer.Start(ctx, "provenance.GetContentSlice")
	defer span.End()

	path, ok := r.contentMap.Path(sourceHash)
	if !ok {
		return "", vaulterr.NewContentNotFound(sourceHash)
	}

	data, err := r.readFile(path)
	if err != nil {
		return "", vaulterr.NewContentNotFound(err.Error())
	}

	if byteStart < 0 || byteStart > byteEnd || byteEnd > len(data) {
		return "", vaulterr.NewByteRangeError(byteStart, byteEnd)
	}

	slice := data[byteStart:byteEnd]
	if !utf8.Valid(slice) {
		return "", vaulterr.NewUtf8Error("byte range does not fall on UTF-8 codepoint boundaries")
	}

	return string(slice), nil
}

// Claim is the minimal view VerifySpan needs: the provenance triple plus
// the evidence text the claim carries.
type Claim struct {
	SourceHash string
	ByteStart  int
	ByteEnd    int
	Evidence   string
}

// VerifySpan resolves claim's source slice and compares it byte-for-byte
// against claim.Evidence. A claim with no provenance (empty source hash
// or negative start) returns false with no error: that is a successful
// "nothing to verify" result, not a failure.
func (r *Resolver) VerifySpan(ctx context.Context, claim Claim) (bool, error) {
	_, span := tracer.Start(ctx, "provenance.VerifySpan")
	defer span.End()

	if claim.SourceHash == "" || claim.ByteStart < 0 {
		return false, nil
	}

	slice, err := r.GetContentSlice(ctx, claim.SourceHash, claim.ByteStart, claim.ByteEnd)
	if err != nil {
		return false, err
	}

	return slice == claim.Evidence, nil
}
