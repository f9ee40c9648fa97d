package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/tracer"
)

// actionFlags describes one action on the command line.
type actionFlags struct {
	tool      string
	resource  string
	operation string
	meta      map[string]string
	file      string
	state     string
}

func (f *actionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tool, "tool", "", "Tool name (e.g. file_read, shell_exec, http_get)")
	cmd.Flags().StringVar(&f.resource, "resource", "", "Resource being accessed")
	cmd.Flags().StringVar(&f.operation, "operation", "", "Operation (e.g. read, execute)")
	cmd.Flags().StringToStringVar(&f.meta, "meta", nil, "Result metadata (sensitivity=high,rows=50,egress=external,tags=PII;HR)")
	cmd.Flags().StringVar(&f.file, "action", "", "Read the action as JSON from this file (- for stdin)")
	cmd.Flags().StringVar(&f.state, "state", "", "Trace state or snapshot JSON to evaluate against (default: fresh trace)")
}

// build returns the action and the trace state to evaluate it in.
func (f *actionFlags) build(stdin io.Reader) (*model.Action, *model.TraceState, error) {
	action, err := f.action(stdin)
	if err != nil {
		return nil, nil, err
	}
	if action.Tool == "" && action.Resource == "" {
		return nil, nil, fmt.Errorf("%w: --tool or --resource is required", model.ErrInvalidArgument)
	}

	state := model.NewTraceState(tracer.NewTraceID())
	if f.state != "" {
		state, err = readState(f.state)
		if err != nil {
			return nil, nil, err
		}
	}
	return action, state, nil
}

func (f *actionFlags) action(stdin io.Reader) (*model.Action, error) {
	if f.file != "" {
		data, err := readInput(f.file, stdin)
		if err != nil {
			return nil, err
		}
		var a model.Action
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("%w: parse action: %v", model.ErrInvalidArgument, err)
		}
		return &a, nil
	}

	a := &model.Action{Tool: f.tool, Resource: f.resource, Operation: f.operation}
	if len(f.meta) > 0 {
		a.RawMeta = make(map[string]any, len(f.meta))
		for k, v := range f.meta {
			if k == "tags" {
				tags := []any{}
				for _, t := range strings.Split(v, ";") {
					if t = strings.TrimSpace(t); t != "" {
						tags = append(tags, t)
					}
				}
				a.RawMeta[k] = tags
				continue
			}
			a.RawMeta[k] = v
		}
	}
	return a, nil
}

// readState accepts a bare trace state or a full snapshot.
func readState(path string) (*model.TraceState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var snap tracer.Snapshot
	if err := json.Unmarshal(data, &snap); err == nil && snap.TraceState.TraceID != "" {
		return &snap.TraceState, nil
	}

	state := model.NewTraceState("")
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: parse state: %v", model.ErrInvalidArgument, err)
	}
	return state, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
