package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/guillermoBallester/dqmon/internal/core/port"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML catalog file and returns its expanded check
// definitions. When validator is non-nil every generated query must pass it.
func LoadFromFile(path string, validator port.QueryValidator) (domain.Catalog, []domain.CheckDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data, validator)
}

// Parse decodes catalog YAML. Unknown keys are rejected so typos in a
// catalog edit surface at startup instead of silently disabling a check.
func Parse(data []byte, validator port.QueryValidator) (domain.Catalog, []domain.CheckDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cat domain.Catalog
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return domain.Catalog{}, nil, fmt.Errorf("parsing catalog YAML: %w", err)
	}
	if len(cat.Checks) == 0 {
		return domain.Catalog{}, nil, fmt.Errorf("validating catalog: no checks defined")
	}

	defs, err := Build(cat, validator)
	if err != nil {
		return domain.Catalog{}, nil, err
	}
	return cat, defs, nil
}

// Build expands a catalog and runs the optional query guard over it.
func Build(cat domain.Catalog, validator port.QueryValidator) ([]domain.CheckDefinition, error) {
	defs, err := cat.Build()
	if err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}
	if validator == nil {
		return defs, nil
	}
	for _, def := range defs {
		if err := validator.Validate(def.Query); err != nil {
			return nil, fmt.Errorf("validating catalog: check %q: %w", def.Name, err)
		}
	}
	return defs, nil
}
