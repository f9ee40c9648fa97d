package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/tracegate/internal/audit"
	"github.com/ppiankov/tracegate/internal/logging"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/session"
)

// setupCLI points every global flag at a fresh home directory.
func setupCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	flagPolicy = filepath.Join(home, "policy.yaml")
	flagDenylist = filepath.Join(home, "denylist.yaml")
	flagApprovals = filepath.Join(home, "approvals")
	flagPurpose = "general"
	flagActor = nil
	flagAuditLog = ""
	logger = logging.Nop()
	collector = nil

	t.Cleanup(func() {
		flagPolicy, flagDenylist, flagApprovals, flagAuditLog = "", "", "", ""
		flagPurpose = "general"
		evalAction, explainAction = actionFlags{}, actionFlags{}
		readRecords, replayStrict = false, false
		policyForce, denylistForce = false, false
	})
	return home
}

func newTestCmd(stdin string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	return cmd, out
}

func requireExit(t *testing.T, err error, code int) {
	t.Helper()
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, code, ee.Code)
}

func decodeDecision(t *testing.T, out *bytes.Buffer) model.PolicyResult {
	t.Helper()
	var r model.PolicyResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	return r
}

func TestEvalAllow(t *testing.T) {
	setupCLI(t)
	evalAction = actionFlags{tool: "file_read", resource: "/data/report.csv"}

	cmd, out := newTestCmd("")
	require.NoError(t, runEval(cmd, nil))

	r := decodeDecision(t, out)
	assert.Equal(t, model.Allow, r.Decision())
	assert.Equal(t, policy.PolicyAllow, r.PolicyID)
}

func TestEvalPurposeRuleExitsBlocked(t *testing.T) {
	setupCLI(t)
	flagPurpose = "SOC_efficiency"
	evalAction = actionFlags{
		tool:     "hr_api",
		resource: "hr/salary_bands",
		meta:     map[string]string{"sensitivity": "high", "tags": "HR;PII"},
	}

	cmd, out := newTestCmd("")
	requireExit(t, runEval(cmd, nil), ExitBlocked)

	r := decodeDecision(t, out)
	assert.Equal(t, model.RequireApproval, r.Decision())
	assert.Equal(t, "soc_salary_access", r.ApprovalKey())
}

func TestEvalActionFromStdin(t *testing.T) {
	setupCLI(t)
	evalAction = actionFlags{file: "-"}

	cmd, out := newTestCmd(`{"tool":"file_read","resource":"~/.ssh/id_rsa"}`)
	requireExit(t, runEval(cmd, nil), ExitBlocked)
	assert.Equal(t, policy.PolicyDenylist, decodeDecision(t, out).PolicyID)
}

func TestEvalNeedsToolOrResource(t *testing.T) {
	setupCLI(t)
	evalAction = actionFlags{}

	cmd, _ := newTestCmd("")
	assert.ErrorIs(t, runEval(cmd, nil), model.ErrInvalidArgument)
}

func TestEvalCorruptPolicyIsAnError(t *testing.T) {
	home := setupCLI(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "policy.yaml"), []byte("rules: [{purpose: x, decision: maybe}]"), 0o644))
	evalAction = actionFlags{tool: "file_read", resource: "/data/report.csv"}

	cmd, _ := newTestCmd("")
	err := runEval(cmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestExplainText(t *testing.T) {
	setupCLI(t)
	explainAction = actionFlags{tool: "file_read", resource: "/data/report.csv", meta: map[string]string{"rows": "5000"}}
	explainFormat = "text"

	cmd, out := newTestCmd("")
	require.NoError(t, runExplain(cmd, nil))

	text := out.String()
	assert.Contains(t, text, "1. Denylist   no match")
	assert.Contains(t, text, "2. Rules      no match")
	assert.Contains(t, text, "3. Risk       6 = sensitivity 1 + volume 3 + egress 0 + new source 2")
	assert.Contains(t, text, "Decision:  allow_with_redaction")
}

func TestPolicyInitAndValidate(t *testing.T) {
	home := setupCLI(t)

	cmd, out := newTestCmd("")
	require.NoError(t, policyInitCmd.RunE(cmd, nil))
	assert.FileExists(t, filepath.Join(home, "policy.yaml"))

	assert.ErrorContains(t, policyInitCmd.RunE(cmd, nil), "already exists")

	out.Reset()
	require.NoError(t, policyValidateCmd.RunE(cmd, nil))
	assert.Equal(t, "OK: 1 rules\n", out.String())

	bad := filepath.Join(home, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - purpose: x\n    decision: require_approval\n"), 0o644))
	requireExit(t, policyValidateCmd.RunE(cmd, []string{bad}), 1)
}

func TestDenylistAddBlocksFollowingEval(t *testing.T) {
	setupCLI(t)

	cmd, out := newTestCmd("")
	require.NoError(t, denylistAddCmd.RunE(cmd, []string{"urls", "internal.example/admin"}))
	assert.Contains(t, out.String(), "Added urls pattern")

	out.Reset()
	require.NoError(t, denylistValidateCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "OK:")

	evalAction = actionFlags{tool: "http_get", resource: "https://internal.example/admin/users"}
	cmd, out = newTestCmd("")
	requireExit(t, runEval(cmd, nil), ExitBlocked)
	assert.Equal(t, policy.PolicyDenylist, decodeDecision(t, out).PolicyID)
}

func TestDenylistAddRejectsUnknownCategory(t *testing.T) {
	setupCLI(t)
	cmd, _ := newTestCmd("")
	assert.ErrorIs(t, denylistAddCmd.RunE(cmd, []string{"hosts", "x"}), model.ErrInvalidArgument)
}

func TestCheckScenarios(t *testing.T) {
	home := setupCLI(t)
	dir := filepath.Join(home, "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.yaml"), []byte(`
name: salary needs approval
purpose: SOC_efficiency
cases:
  - action: {tool: hr_api, resource: hr/salary_bands}
    expect: require_approval
    approval_key: soc_salary_access
  - action: {tool: file_read, resource: ~/.ssh/id_rsa}
    expect: deny
`), 0o644))

	checkScenario = filepath.Join(dir, "*.yaml")
	checkFormat = "text"
	cmd, out := newTestCmd("")
	require.NoError(t, runCheck(cmd, nil))
	assert.Contains(t, out.String(), "PASS  salary needs approval (2/2)")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong
cases:
  - action: {tool: file_read, resource: /data/report.csv}
    expect: deny
`), 0o644))
	out.Reset()
	requireExit(t, runCheck(cmd, nil), 1)
	assert.Contains(t, out.String(), "FAIL  wrong (0/1)")
}

func TestReadWithApprovalFlow(t *testing.T) {
	home := setupCLI(t)
	flagPurpose = "SOC_efficiency"
	path := filepath.Join(home, "salary_bands.txt")
	require.NoError(t, os.WriteFile(path, []byte("band A: 100k\n"), 0o600))

	cmd, out := newTestCmd("")
	requireExit(t, runRead(cmd, []string{path}), ExitBlocked)
	assert.Empty(t, out.String())

	require.NoError(t, runPending(cmd, nil))
	assert.Contains(t, out.String(), "soc_salary_access")
	assert.Contains(t, out.String(), "pending")

	out.Reset()
	require.NoError(t, runApprove(cmd, []string{"soc_salary_access"}))
	assert.Equal(t, "Approved \"soc_salary_access\" (one-time use)\n", out.String())

	out.Reset()
	require.NoError(t, runRead(cmd, []string{path}))
	assert.Equal(t, "band A: 100k\n", out.String())

	out.Reset()
	requireExit(t, runRead(cmd, []string{path}), ExitBlocked)
}

func TestDenyKeepsBlocking(t *testing.T) {
	home := setupCLI(t)
	flagPurpose = "SOC_efficiency"
	path := filepath.Join(home, "salary.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	cmd, out := newTestCmd("")
	requireExit(t, runRead(cmd, []string{path}), ExitBlocked)
	require.NoError(t, runDeny(cmd, []string{"soc_salary_access"}))
	assert.Contains(t, out.String(), "Denied")

	requireExit(t, runRead(cmd, []string{path}), ExitBlocked)

	out.Reset()
	pendingClear = true
	t.Cleanup(func() { pendingClear = false })
	require.NoError(t, runPending(cmd, nil))
	pendingClear = false

	out.Reset()
	require.NoError(t, runPending(cmd, nil))
	assert.Equal(t, "No pending approvals.\n", out.String())
}

func TestAuditLogVerifyTimelineAndReplay(t *testing.T) {
	home := setupCLI(t)
	logPath := filepath.Join(home, "audit.jsonl")
	notes := filepath.Join(home, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello\n"), 0o600))

	flagAuditLog = logPath
	cmd, out := newTestCmd("")
	require.NoError(t, runRead(cmd, []string{notes}))
	flagAuditLog = ""

	out.Reset()
	require.NoError(t, runAuditVerify(cmd, []string{logPath}))
	assert.Equal(t, "OK: 1 entries verified\n", out.String())

	entries, err := audit.ReadEntries(logPath, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	out.Reset()
	timelineFormat = "text"
	require.NoError(t, runAuditTimeline(cmd, []string{logPath, entries[0].TraceID}))
	assert.Contains(t, out.String(), "Trace: "+entries[0].TraceID)
	assert.Contains(t, out.String(), "Summary: 1 events | 1 allow")

	out.Reset()
	replayFormat = "text"
	require.NoError(t, runReplay(cmd, []string{logPath}))
	assert.Contains(t, out.String(), "All decisions reproduced.")

	require.NoError(t, os.WriteFile(filepath.Join(home, "policy.yaml"), []byte(`
rules:
  - purpose: general
    resource_pattern: "*notes*"
    decision: deny
`), 0o644))
	replayStrict = true
	out.Reset()
	requireExit(t, runReplay(cmd, []string{logPath}), 1)
	assert.Contains(t, out.String(), "allow -> deny")
}

func TestAuditVerifyDetectsTamper(t *testing.T) {
	home := setupCLI(t)
	logPath := filepath.Join(home, "audit.jsonl")
	notes := filepath.Join(home, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello\n"), 0o600))

	flagAuditLog = logPath
	cmd, _ := newTestCmd("")
	require.NoError(t, runRead(cmd, []string{notes, notes}))
	flagAuditLog = ""

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"allow"`, `"deny"`, 1)
	require.NoError(t, os.WriteFile(logPath, []byte(tampered), 0o600))

	requireExit(t, runAuditVerify(cmd, []string{logPath}), 1)
}

func TestServeLines(t *testing.T) {
	setupCLI(t)
	engine, _, err := loadEngine()
	require.NoError(t, err)
	sess := session.New(engine, session.WithPurpose("general"))

	in := strings.Join([]string{
		`{"id":"1","op":"decide","action":{"tool":"file_read","resource":"/data/a.txt"}}`,
		`{"id":"2","op":"enforce","action":{"tool":"file_read","resource":"~/.ssh/id_rsa"},"data":"secret"}`,
		`{"id":"3","op":"check"}`,
		``,
		`not json`,
		`{"id":"5","op":"snapshot"}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, serveLines(context.Background(), sess, strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)

	var resps []map[string]any
	for _, l := range lines {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		resps = append(resps, m)
	}

	assert.Equal(t, true, resps[0]["ok"])
	assert.Equal(t, "allow", resps[0]["result"].(map[string]any)["decision"])
	assert.NotEmpty(t, resps[0]["span_id"])

	assert.Equal(t, true, resps[1]["blocked"])
	assert.NotContains(t, resps[1], "data")
	assert.Equal(t, policy.PolicyDenylist, resps[1]["result"].(map[string]any)["policy_id"])

	assert.Contains(t, resps[2]["error"], "needs an action")
	assert.Contains(t, resps[3]["error"], "parse request")

	snap := resps[4]["snapshot"].(map[string]any)
	assert.Len(t, snap["events"], 2)
}

func TestServeLinesEnforceRedacts(t *testing.T) {
	setupCLI(t)
	engine, _, err := loadEngine()
	require.NoError(t, err)
	sess := session.New(engine)

	in := `{"op":"enforce","action":{"tool":"hr_api","resource":"hr/people","result_meta":{"sensitivity":"high"}},"data":{"team":"Eng","email":"alice@corp.example"}}`

	var out bytes.Buffer
	require.NoError(t, serveLines(context.Background(), sess, strings.NewReader(in), &out))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "allow_with_redaction", resp["result"].(map[string]any)["decision"])
	data := resp["data"].(map[string]any)
	assert.Equal(t, "Eng", data["team"])
	assert.NotEqual(t, "alice@corp.example", data["email"])
}

func TestDemoSOCBlocksSalary(t *testing.T) {
	setupCLI(t)
	cmd, out := newTestCmd("")
	require.NoError(t, runSOCDemo(cmd, nil))
	assert.Contains(t, out.String(), "hr_salary_bands.csv    BLOCKED  (require_approval)")
	assert.Contains(t, out.String(), "PASS: salary access blocked.")
}

func TestVersionAndSchema(t *testing.T) {
	setupCLI(t)
	cmd, out := newTestCmd("")
	require.NoError(t, versionCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), `"name": "tracegate"`)

	out.Reset()
	require.NoError(t, schemaCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "decision\n")

	out.Reset()
	require.NoError(t, schemaCmd.RunE(cmd, []string{"decision"}))
	assert.Contains(t, out.String(), "require_approval")
}

func TestExitFor(t *testing.T) {
	assert.NoError(t, exitFor(model.Allow))
	assert.NoError(t, exitFor(model.AllowWithRedaction))
	requireExit(t, exitFor(model.Deny), ExitBlocked)
	requireExit(t, exitFor(model.RequireApproval), ExitBlocked)
}

func TestPolicyDiff(t *testing.T) {
	home := setupCLI(t)
	oldPath := filepath.Join(home, "old.yaml")
	newPath := filepath.Join(home, "new.yaml")
	require.NoError(t, os.WriteFile(oldPath, []byte(policy.DefaultConfigYAML()), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte(`
rules:
  - purpose: SOC_efficiency
    resource_pattern: "*salary*"
    decision: deny
`), 0o644))
	diffFormat = "text"

	cmd, out := newTestCmd("")
	require.NoError(t, runPolicyDiff(cmd, []string{oldPath, oldPath}))
	assert.Contains(t, out.String(), "No changes detected.")

	out.Reset()
	requireExit(t, runPolicyDiff(cmd, []string{oldPath, newPath}), 1)
	assert.Contains(t, out.String(), "~ purpose=SOC_efficiency resource=*salary* -> deny (was: require_approval)  (stricter)")
}
