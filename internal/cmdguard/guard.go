// Package cmdguard runs shell commands through policy. A command is executed
// only when its action is allowed, and its stdout is enforced like any other
// payload before the caller sees it.
package cmdguard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/session"
)

// Result captures a guarded subprocess run.
type Result struct {
	Stdout          string         `json:"stdout"`
	Stderr          string         `json:"stderr"`
	ExitCode        int            `json:"exit_code"`
	Decision        model.Decision `json:"decision"`
	SecretsRedacted int            `json:"secrets_redacted,omitempty"`
}

// Guard evaluates policy and executes allowed commands within one session.
type Guard struct {
	sess *session.Session
}

// New creates a Guard over sess.
func New(sess *session.Session) *Guard {
	return &Guard{sess: sess}
}

// Run evaluates policy for the command, executes it if allowed, and returns
// the enforced output. A blocked command returns *enforce.EnforcementError.
// A non-zero exit is reported in Result, not as an error.
func (g *Guard) Run(ctx context.Context, name string, args []string, stdin io.Reader) (*Result, error) {
	action := BuildAction(name, args)
	res := &Result{}

	out, result, err := g.sess.Run(ctx, action, func(ctx context.Context) (any, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if stdin != nil {
			cmd.Stdin = stdin
		}

		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, err
			}
			res.ExitCode = exitErr.ExitCode()
		}
		res.Stderr = stderr.String()
		return stdout.String(), nil
	})
	if err != nil {
		return nil, err
	}

	stdout, _ := out.(string)
	res.Stdout, res.SecretsRedacted = ScanOutputFull(stdout)
	res.Decision = result.Decision()
	return res, nil
}

// Check evaluates policy without executing or recording.
func (g *Guard) Check(name string, args []string) model.PolicyResult {
	return g.sess.Check(BuildAction(name, args))
}
