package pattern

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intent-core/internal/config"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writePolicy(t, `
pattern:
  max_cost_usd: 0.50
  fallback_templates:
    - "{f}{last}"
    - "{first}"
  providers:
    - name: lowcost
      tier: 1
      cost_per_query: 0.02
    - name: legacy
      disabled: true
`)

	pol, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.50, pol.MaxCostUSD, 1e-9)
	assert.Equal(t, []string{"{f}{last}", "{first}"}, pol.Fallbacks)
	require.Len(t, pol.Providers, 2)
	require.NotNil(t, pol.Providers[0].Tier)
	assert.Equal(t, 1, *pol.Providers[0].Tier)
	assert.True(t, pol.Providers[1].Disabled)
}

func TestLoadPolicy_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadPolicy(writePolicy(t, "pattern: ["))
		assert.Error(t, err)
	})

	t.Run("invalid fallback template", func(t *testing.T) {
		_, err := LoadPolicy(writePolicy(t, `
pattern:
  fallback_templates:
    - "no placeholders here"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fallback template")
	})
}

func TestPolicyApply(t *testing.T) {
	tier2 := 2
	pol := &Policy{
		Providers: []ProviderPolicy{
			{Name: "lowcost", Tier: &tier2, CostPerQuery: 0.05},
			{Name: "legacy", Disabled: true},
		},
	}

	cfgs := []config.ProviderConfig{
		{Name: "lowcost", Tier: 1, CostPerQuery: 0.01},
		{Name: "legacy", Tier: 1, CostPerQuery: 0.01},
		{Name: "premium", Tier: 2, CostPerQuery: 0.25},
	}

	out := pol.Apply(cfgs)
	require.Len(t, out, 2)

	assert.Equal(t, "lowcost", out[0].Name)
	assert.Equal(t, 2, out[0].Tier)
	assert.InDelta(t, 0.05, out[0].CostPerQuery, 1e-9)

	// Providers the policy does not mention pass through untouched.
	assert.Equal(t, "premium", out[1].Name)
	assert.InDelta(t, 0.25, out[1].CostPerQuery, 1e-9)
}
