// Package agent defines the static agent profile catalog: per-agent budget
// ceilings, concurrency limits, and capability flags supplied by operators.
package agent

// Profile describes one known agent. Profiles are configuration, not state:
// the telemetry core reads them to join budgets onto cost summaries and to
// answer the read-only profile listing.
type Profile struct {
	Name           string   `json:"name" yaml:"name"`
	Description    string   `json:"description,omitempty" yaml:"description,omitempty"`
	BudgetUSD      *float64 `json:"budget_usd,omitempty" yaml:"budget_usd,omitempty"`
	MaxConcurrency int      `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Catalog is an immutable set of profiles keyed by agent name. Build one
// with NewCatalog; lookups on a nil Catalog behave as an empty catalog.
type Catalog struct {
	byName map[string]Profile
	order  []string
}

// NewCatalog builds a catalog from the given profiles. Later duplicates of
// the same name replace earlier ones.
func NewCatalog(profiles []Profile) *Catalog {
	c := &Catalog{byName: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if _, seen := c.byName[p.Name]; !seen {
			c.order = append(c.order, p.Name)
		}
		c.byName[p.Name] = p
	}
	return c
}

// Budget returns the configured budget ceiling for the named agent, or nil
// when the agent is unknown or unbounded.
func (c *Catalog) Budget(name string) *float64 {
	if c == nil {
		return nil
	}
	p, ok := c.byName[name]
	if !ok {
		return nil
	}
	return p.BudgetUSD
}

// Profiles returns all profiles in declaration order.
func (c *Catalog) Profiles() []Profile {
	if c == nil {
		return nil
	}
	out := make([]Profile, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// Len returns the number of profiles in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byName)
}
