// Package schema loads docdef schema bundles and validates payloads against
// them. Bundles are externally governed; the engine only needs a validation
// contract and a stable bundle hash for drift detection.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaNotFound indicates a schema ref is not part of the loaded bundle.
var ErrSchemaNotFound = errors.New("schema not found in bundle")

// ValidationError carries the per-field detail of a failed schema
// validation. The execution stays where it was so the caller can correct
// the payload and resubmit.
type ValidationError struct {
	SchemaRef string
	Details   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload failed validation against schema %s: %s", e.SchemaRef, strings.Join(e.Details, "; "))
}

// Registry holds one loaded schema bundle: a mapping from schema ref to a
// compiled JSON schema, plus the bundle hash stamped into context state.
type Registry struct {
	schemas    map[string]*gojsonschema.Schema
	bundleHash string
}

// NewRegistry compiles a bundle from raw schema documents keyed by ref. The
// bundle hash is a sha256 over refs and schema bytes in ref order, so the
// same bundle always hashes the same regardless of map iteration.
func NewRegistry(rawSchemas map[string][]byte) (*Registry, error) {
	registry := &Registry{schemas: make(map[string]*gojsonschema.Schema, len(rawSchemas))}

	refs := make([]string, 0, len(rawSchemas))
	for ref := range rawSchemas {
		refs = append(refs, ref)
	}

	sort.Strings(refs)

	hash := sha256.New()

	for _, ref := range refs {
		raw := rawSchemas[ref]

		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", ref, err)
		}

		registry.schemas[ref] = compiled

		hash.Write([]byte(ref))
		hash.Write([]byte{0})
		hash.Write(raw)
	}

	registry.bundleHash = hex.EncodeToString(hash.Sum(nil))

	return registry, nil
}

// BundleHash returns the hash of the loaded schema bundle.
func (r *Registry) BundleHash() string {
	return r.bundleHash
}

// Has reports whether the bundle contains the given schema ref.
func (r *Registry) Has(schemaRef string) bool {
	_, ok := r.schemas[schemaRef]

	return ok
}

// Validate checks a payload against the schema named by ref. A failed
// validation returns a ValidationError listing every violation.
func (r *Registry) Validate(schemaRef string, payload map[string]any) error {
	compiled, ok := r.schemas[schemaRef]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSchemaNotFound, schemaRef)
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("failed to validate against schema %s: %w", schemaRef, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return &ValidationError{SchemaRef: schemaRef, Details: details}
	}

	return nil
}
