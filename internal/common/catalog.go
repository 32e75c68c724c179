package common

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/armada/internal/models"
)

// Catalog is the declarative job-type catalog loaded at startup.
// Specs are immutable after load; iteration happens in sorted type order so
// the controller visits types deterministically.
type Catalog struct {
	specs map[string]models.JobTypeSpec
	order []string
}

// catalogFile matches the on-disk document: {"jobs": {"<type_id>": {...}}}.
// Parsed with YAML, which accepts the JSON form of the same document.
type catalogFile struct {
	Jobs map[string]models.JobTypeSpec `yaml:"jobs"`
}

// LoadCatalog reads the catalog file, expands ${VAR} references from the
// process environment (unset variables expand to empty), validates each
// entry, and returns the resulting catalog. Entries that fail validation are
// dropped with a warning so a single bad entry cannot disable every type.
// A missing or empty catalog is valid and yields a quiescent controller.
func LoadCatalog(path string, logger arbor.ILogger) (*Catalog, error) {
	catalog := &Catalog{specs: map[string]models.JobTypeSpec{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("path", path).Msg("Job catalog not found, controller will be quiescent")
			return catalog, nil
		}
		return nil, fmt.Errorf("failed to read job catalog %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var file catalogFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse job catalog %s: %w", path, err)
	}

	validate := validator.New()
	for typeID, spec := range file.Jobs {
		spec.TypeID = typeID
		if err := validate.Struct(spec); err != nil {
			logger.Warn().
				Str("type", typeID).
				Err(err).
				Msg("Dropping invalid job catalog entry")
			continue
		}
		catalog.specs[typeID] = spec
		catalog.order = append(catalog.order, typeID)
	}
	sort.Strings(catalog.order)

	logger.Info().
		Int("types", len(catalog.order)).
		Strs("type_ids", catalog.order).
		Msg("Job catalog loaded")

	return catalog, nil
}

// NewCatalog builds a catalog directly from specs. Used by tests.
func NewCatalog(specs ...models.JobTypeSpec) *Catalog {
	catalog := &Catalog{specs: map[string]models.JobTypeSpec{}}
	for _, spec := range specs {
		catalog.specs[spec.TypeID] = spec
		catalog.order = append(catalog.order, spec.TypeID)
	}
	sort.Strings(catalog.order)
	return catalog
}

// TypeIDs returns type identifiers in stable sorted order.
func (c *Catalog) TypeIDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// Spec returns the spec for a type identifier.
func (c *Catalog) Spec(typeID string) (models.JobTypeSpec, bool) {
	spec, ok := c.specs[typeID]
	return spec, ok
}

// Len returns the number of declared job types.
func (c *Catalog) Len() int {
	return len(c.order)
}
