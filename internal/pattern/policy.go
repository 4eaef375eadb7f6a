package pattern

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/intent-core/internal/config"
)

// Policy is the optional YAML provider policy. It exists so tier order,
// per-query costs, and the fallback list can be retuned without a
// deploy; anything it leaves unset falls through to the static config.
type Policy struct {
	MaxCostUSD float64          `yaml:"max_cost_usd"`
	Fallbacks  []string         `yaml:"fallback_templates"`
	Providers  []ProviderPolicy `yaml:"providers"`
}

// ProviderPolicy overrides one provider's placement in the waterfall.
type ProviderPolicy struct {
	Name         string  `yaml:"name"`
	Tier         *int    `yaml:"tier,omitempty"`
	CostPerQuery float64 `yaml:"cost_per_query,omitempty"`
	Disabled     bool    `yaml:"disabled,omitempty"`
}

// LoadPolicy reads a provider policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pattern: read policy %s", path)
	}

	// The file nests everything under a top-level "pattern" key so the
	// same file can later hold policy for other subsystems.
	var wrapper struct {
		Pattern Policy `yaml:"pattern"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "pattern: parse policy %s", path)
	}

	pol := &wrapper.Pattern
	for _, tmpl := range pol.Fallbacks {
		if !ValidTemplate(tmpl) {
			return nil, eris.Errorf("pattern: policy fallback template %q is invalid", tmpl)
		}
	}
	return pol, nil
}

// Apply merges the policy into the configured provider list: disabled
// providers are dropped, tier and cost overrides are applied, and
// providers the policy does not mention pass through unchanged.
func (p *Policy) Apply(cfgs []config.ProviderConfig) []config.ProviderConfig {
	byName := make(map[string]ProviderPolicy, len(p.Providers))
	for _, pp := range p.Providers {
		byName[pp.Name] = pp
	}

	out := make([]config.ProviderConfig, 0, len(cfgs))
	for _, pc := range cfgs {
		pp, ok := byName[pc.Name]
		if !ok {
			out = append(out, pc)
			continue
		}
		if pp.Disabled {
			continue
		}
		if pp.Tier != nil {
			pc.Tier = *pp.Tier
		}
		if pp.CostPerQuery > 0 {
			pc.CostPerQuery = pp.CostPerQuery
		}
		out = append(out, pc)
	}
	return out
}
