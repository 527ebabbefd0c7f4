package agent

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// profileFile is the on-disk shape of the profile catalog.
type profileFile struct {
	Agents []Profile `yaml:"agents"`
}

// LoadCatalog reads a YAML profile catalog from path. A missing file is not
// an error: operators that never configure budgets get an empty catalog and
// every agent is treated as unbounded.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCatalog(nil), nil
		}
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}

	for i, p := range f.Agents {
		if p.Name == "" {
			return nil, fmt.Errorf("profiles %s: agent %d has no name", path, i)
		}
		if p.BudgetUSD != nil && *p.BudgetUSD < 0 {
			return nil, fmt.Errorf("profiles %s: agent %q has negative budget", path, p.Name)
		}
	}

	return NewCatalog(f.Agents), nil
}
