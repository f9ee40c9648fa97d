package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tracegate/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultConfigRules(t *testing.T) {
	cfg := DefaultConfig()

	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "SOC_efficiency", cfg.Rules[0].Purpose)
	assert.Equal(t, "soc_salary_access", cfg.Rules[0].ApprovalKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigEmptyPathUsesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 1)

	writeFile(t, filepath.Join(home, ".tracegate", "policy.yaml"), "rules: []\n")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Rules)
}

func TestLoadConfigCustomRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeFile(t, path, `
rules:
  - id: finance.deny
    purpose: "*"
    resource_pattern: "*ledger*"
    decision: deny
    reason: ledger blocked
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "finance.deny", cfg.Rules[0].ID)
	assert.Equal(t, "ledger blocked", cfg.Rules[0].Reason)
}

func TestLoadConfigEmptyDocumentKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeFile(t, path, "# nothing here\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writeFile(t, path, "rules: [{{")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalidRules(t *testing.T) {
	cases := map[string]string{
		"unknown decision":     "rules:\n  - purpose: x\n    decision: maybe\n",
		"missing purpose":      "rules:\n  - decision: deny\n",
		"approval without key": "rules:\n  - purpose: x\n    decision: require_approval\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.yaml")
			writeFile(t, path, doc)

			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidArgument))
		})
	}
}

func TestLoadConfigWithHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")

	_, emptyHash, err := LoadConfigWithHash(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", emptyHash)

	writeFile(t, path, DefaultConfigYAML())
	cfg, hash, err := LoadConfigWithHash(path)
	require.NoError(t, err)
	assert.NotEqual(t, emptyHash, hash)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestDefaultConfigYAMLRoundTrips(t *testing.T) {
	cfg, err := ParseConfig([]byte(DefaultConfigYAML()))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestMatchRule(t *testing.T) {
	cases := []struct {
		pattern, purpose, resource string
		rulePurpose                string
		want                       bool
	}{
		{"*salary*", "SOC_efficiency", "/data/HR/Salary.csv", "SOC_efficiency", true},
		{"*salary*", "other", "/data/salary.csv", "SOC_efficiency", false},
		{"*salary*", "soc_efficiency", "salary", "SOC_efficiency", false},
		{"*salary*", "SOC_EFFICIENCY", "salary", "SOC_efficiency", false},
		{"*.csv", "x", "/tmp/a.CSV", "*", true},
		{"*.csv", "x", "/tmp/a.csv.bak", "*", false},
		{"/etc/*", "x", "/etc/passwd", "*", true},
		{"/etc/*", "x", "/var/etc/passwd", "*", false},
		{"ledger", "x", "LEDGER", "*", true},
		{"", "x", "anything", "*", true},
		{"*", "x", "anything", "*", true},
	}
	for _, tc := range cases {
		rule := Rule{Purpose: tc.rulePurpose, ResourcePattern: tc.pattern, Decision: "deny"}
		assert.Equal(t, tc.want, matchRule(rule, tc.purpose, tc.resource), "%s vs %s", tc.pattern, tc.resource)
	}
}

func TestRulePolicyID(t *testing.T) {
	assert.Equal(t, "purpose.SOC_efficiency.salary", rulePolicyID(Rule{Purpose: "SOC_efficiency", ResourcePattern: "*salary*"}))
	assert.Equal(t, "purpose.x.csv", rulePolicyID(Rule{Purpose: "x", ResourcePattern: "*.csv"}))
	assert.Equal(t, "purpose.x.all", rulePolicyID(Rule{Purpose: "x", ResourcePattern: "*"}))
	assert.Equal(t, "custom", rulePolicyID(Rule{ID: "custom", Purpose: "x"}))
}
