// Package catalog reads the reference crop and farm catalog used to seed
// the warehouse dimensions.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/agriflow/pkg/core"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Default returns the built-in catalog.
func Default() core.DimensionCatalog {
	c, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path returns Default.
func Load(path string) (core.DimensionCatalog, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return core.DimensionCatalog{}, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	c, err := Parse(f)
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(r io.Reader) (core.DimensionCatalog, error) {
	var c core.DimensionCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return c, Validate(c)
}

// Validate checks that every entry has its key and name, and that keys are unique.
func Validate(c core.DimensionCatalog) error {
	var errs []error

	crops := make(map[string]bool, len(c.Crops))
	for i, crop := range c.Crops {
		code := strings.TrimSpace(crop.Code)
		switch {
		case code == "":
			errs = append(errs, fmt.Errorf("crops[%d]: code is required", i))
		case crops[code]:
			errs = append(errs, fmt.Errorf("crops[%d]: duplicate code %q", i, code))
		}
		if strings.TrimSpace(crop.Name) == "" {
			errs = append(errs, fmt.Errorf("crops[%d]: name is required", i))
		}
		crops[code] = true
	}

	farms := make(map[string]bool, len(c.Farms))
	for i, farm := range c.Farms {
		id := strings.TrimSpace(farm.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("farms[%d]: id is required", i))
		case farms[id]:
			errs = append(errs, fmt.Errorf("farms[%d]: duplicate id %q", i, id))
		}
		if strings.TrimSpace(farm.Name) == "" {
			errs = append(errs, fmt.Errorf("farms[%d]: name is required", i))
		}
		farms[id] = true
	}

	return errors.Join(errs...)
}
