// Package manifest parses and validates an AXM Genesis shard's
// manifest.json into a typed metadata record.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"

	"github.com/BigBirdReturns/axm-core/pkg/vaulterr"
)

const otelPackageName = "github.com/BigBirdReturns/axm-core/pkg/manifest"

//nolint:gochecknoglobals
var tracer = otel.Tracer(otelPackageName)

// schemaURL is a synthetic identifier used only to register the in-memory
// schema resource with the compiler; nothing is fetched over the network.
const schemaURL = "https://axm.internal/schema/manifest.schema.json"

// jsonSchema describes the minimal structural shape a manifest.json must
// satisfy before field extraction proceeds. It intentionally allows
// additional, unknown top-level and nested fields for forward
// compatibility, and does not require any field to be present: the
// reader tolerates missing optional fields by defaulting them,
// deferring the "is this actually usable" judgment to downstream
// components (Merkle verification rejects an empty root; mount does
// not).
const jsonSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"spec_version": {"type": "string"},
		"shard_id": {"type": "string"},
		"metadata": {
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"namespace": {"type": "string"},
				"created_at": {"type": "string"}
			}
		},
		"publisher": {
			"type": "object",
			"properties": {
				"id": {"type": "string"},
				"name": {"type": "string"}
			}
		},
		"license": {
			"type": "object",
			"properties": {
				"spdx": {"type": "string"}
			}
		},
		"integrity": {
			"type": "object",
			"properties": {
				"merkle_root": {"type": "string"}
			}
		},
		"statistics": {
			"type": "object",
			"properties": {
				"entities": {"type": "integer"},
				"claims": {"type": "integer"}
			}
		},
		"sources": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"path": {"type": "string"},
					"hash": {"type": "string"}
				}
			}
		}
	}
}`

//nolint:gochecknoglobals
var compiledSchema *jsonschema.Schema

//nolint:gochecknoinits
func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	if err := c.AddResource(schemaURL, strings.NewReader(jsonSchema)); err != nil {
		panic(fmt.Sprintf("manifest: failed to load embedded schema: %v", err))
	}

	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("manifest: failed to compile embedded schema: %v", err))
	}

	compiledSchema = compiled
}

// TrustLevel is the caller-facing result of a shard integrity/authenticity
// check.
type TrustLevel string

const (
	// TrustUnverified means no verification has run yet.
	TrustUnverified TrustLevel = "Unverified"
	// TrustSignatureOnly means the Merkle root matched but no signature
	// was checked against a trusted publisher key.
	TrustSignatureOnly TrustLevel = "SignatureOnly"
	// TrustVerified means both Merkle integrity and signature
	// authenticity were confirmed.
	TrustVerified TrustLevel = "Verified"
	// TrustFailed means a verification attempt ran and rejected the
	// shard.
	TrustFailed TrustLevel = "Failed"
)

// Source describes one declared source document: its path relative to
// the shard root (under content/) and the hex digest of its bytes.
type Source struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Metadata is the typed record produced by parsing manifest.json, with
// TrustLevel initialized to Unverified until verify_shard runs.
type Metadata struct {
	SpecVersion string
	ShardID     string

	Title     string
	Namespace string
	CreatedAt time.Time

	PublisherID   string
	PublisherName string

	LicenseSPDX string

	MerkleRoot string

	StatEntities int64
	StatClaims   int64

	Sources []Source

	TrustLevel TrustLevel
}

type rawManifest struct {
	SpecVersion string `json:"spec_version"`
	ShardID     string `json:"shard_id"`
	Metadata    struct {
		Title     string `json:"title"`
		Namespace string `json:"namespace"`
		CreatedAt string `json:"created_at"`
	} `json:"metadata"`
	Publisher struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"publisher"`
	License struct {
		SPDX string `json:"spdx"`
	} `json:"license"`
	Integrity struct {
		MerkleRoot string `json:"merkle_root"`
	} `json:"integrity"`
	Statistics struct {
		Entities int64 `json:"entities"`
		Claims   int64 `json:"claims"`
	} `json:"statistics"`
	Sources []Source `json:"sources"`
}

// Parse validates raw against the manifest schema, then decodes it into a
// Metadata record. Unknown fields are ignored. Missing optional fields
// default to their zero value; created_at that fails RFC 3339 parsing is
// left as the zero time rather than failing the parse, since it is
// advisory metadata, not a structural requirement.
func Parse(ctx context.Context, raw []byte) (*Metadata, error) {
	ctx, span := tracer.Start(ctx, "manifest.Parse")
	defer span.End()

	logger := zerolog.Ctx(ctx)

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		logger.Debug().Err(err).Msg("manifest: invalid JSON")

		return nil, vaulterr.NewInvalidManifest(fmt.Sprintf("invalid JSON: %v", err))
	}

	if err := compiledSchema.Validate(generic); err != nil {
		logger.Debug().Err(err).Msg("manifest: schema validation failed")

		return nil, vaulterr.NewInvalidManifest(fmt.Sprintf("schema validation failed: %v", err))
	}

	var rm rawManifest
	if err := json.Unmarshal(raw, &rm); err != nil {
		return nil, vaulterr.NewInvalidManifest(fmt.Sprintf("field decode failed: %v", err))
	}

	createdAt, err := time.Parse(time.RFC3339, rm.Metadata.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}

	return &Metadata{
		SpecVersion:   rm.SpecVersion,
		ShardID:       rm.ShardID,
		Title:         rm.Metadata.Title,
		Namespace:     rm.Metadata.Namespace,
		CreatedAt:     createdAt,
		PublisherID:   rm.Publisher.ID,
		PublisherName: rm.Publisher.Name,
		LicenseSPDX:   rm.License.SPDX,
		MerkleRoot:    rm.Integrity.MerkleRoot,
		StatEntities:  rm.Statistics.Entities,
		StatClaims:    rm.Statistics.Claims,
		Sources:       rm.Sources,
		TrustLevel:    TrustUnverified,
	}, nil
}
