package cmdguard

import (
	"strings"

	"github.com/ppiankov/tracegate/internal/model"
)

// Tool is the action tool name for guarded commands. It routes the action to
// the denylist command patterns.
const Tool = "shell_exec"

// BuildAction maps a command invocation to an Action.
func BuildAction(name string, args []string) *model.Action {
	fullCommand := name
	if len(args) > 0 {
		fullCommand = name + " " + strings.Join(args, " ")
	}

	sensitivity, tags := classifyCommand(fullCommand)
	egress := model.EgressInternal
	if isNetworkCommand(fullCommand) {
		egress = model.EgressExternal
	}

	return &model.Action{
		Tool:      Tool,
		Resource:  fullCommand,
		Operation: "execute",
		Params:    map[string]any{"name": name, "args": append([]string{}, args...)},
		RawMeta: map[string]any{
			"sensitivity": string(sensitivity),
			"tags":        tags,
			"egress":      string(egress),
		},
	}
}

// classifyCommand returns sensitivity level and tags for a command line.
func classifyCommand(cmd string) (model.Sensitivity, []string) {
	lower := strings.ToLower(cmd)

	destructive := []string{"rm -rf", "dd if=", "mkfs", "chmod -r 777", "> /dev/sd", ":(){ :|:& };:"}
	for _, p := range destructive {
		if strings.Contains(lower, p) {
			return model.SensHigh, []string{"destructive"}
		}
	}

	credential := []string{"sudo", "passwd", "ssh-keygen", "chpasswd"}
	for _, p := range credential {
		if strings.Contains(lower, p) {
			return model.SensHigh, []string{"credential"}
		}
	}

	if isNetworkCommand(lower) {
		return model.SensMedium, []string{"network"}
	}

	vcsWrite := []string{"git push", "git commit", "git rebase", "git reset"}
	for _, p := range vcsWrite {
		if strings.Contains(lower, p) {
			return model.SensMedium, []string{"vcs_write"}
		}
	}

	return model.SensLow, []string{}
}

var networkTools = []string{"curl", "wget", "nc", "telnet", "ssh", "scp", "sftp"}

func isNetworkCommand(cmd string) bool {
	for _, f := range strings.Fields(strings.ToLower(cmd)) {
		for _, t := range networkTools {
			if f == t {
				return true
			}
		}
	}
	return false
}
