package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/enforce"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/session"
)

const maxRequestLine = 16 << 20

func init() {
	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Serve one trace over JSON lines on stdin/stdout",
	Long: "Reads one JSON request per line and writes one JSON response per line.\n" +
		"All requests share a trace, so risk accumulates across them.\n\n" +
		"Operations:\n" +
		"  check     evaluate an action without recording it\n" +
		"  decide    evaluate and record an action\n" +
		"  enforce   evaluate, record, and apply the decision to data\n" +
		"  snapshot  return trace state and events",
	RunE: runSession,
}

// sessionRequest is one line of input.
type sessionRequest struct {
	ID     string        `json:"id,omitempty"`
	Op     string        `json:"op"`
	Action *model.Action `json:"action,omitempty"`
	Data   any           `json:"data,omitempty"`
	Parent string        `json:"parent_span_id,omitempty"`
}

// sessionResponse is one line of output.
type sessionResponse struct {
	ID      string              `json:"id,omitempty"`
	OK      bool                `json:"ok"`
	Result  *model.PolicyResult `json:"result,omitempty"`
	SpanID  string              `json:"span_id,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Blocked bool                `json:"blocked,omitempty"`
	Error   string              `json:"error,omitempty"`
	State   any                 `json:"snapshot,omitempty"`
}

func runSession(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("tracegate session")
	if err != nil {
		return err
	}
	defer rt.Close()

	loop := func(ctx context.Context) error {
		return serveLines(ctx, rt.sess, cmd.InOrStdin(), cmd.OutOrStdout())
	}
	err = serve(context.Background(), rt.engine, loop)
	if ferr := rt.sess.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// serveLines answers requests from r until EOF or ctx is cancelled.
func serveLines(ctx context.Context, sess *session.Session, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read requests: %w", err)
					}
				default:
				}
				return nil
			}
			if len(line) == 0 {
				continue
			}
			if err := enc.Encode(handleRequest(ctx, sess, line)); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

func handleRequest(ctx context.Context, sess *session.Session, line []byte) sessionResponse {
	var req sessionRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return sessionResponse{Error: fmt.Sprintf("%v: parse request: %v", model.ErrInvalidArgument, err)}
	}
	resp := sessionResponse{ID: req.ID}

	if req.Op != "snapshot" && req.Action == nil {
		resp.Error = fmt.Sprintf("%v: op %q needs an action", model.ErrInvalidArgument, req.Op)
		return resp
	}
	if req.Parent != "" {
		ctx = session.ContextWithSpan(ctx, req.Parent)
	}

	switch req.Op {
	case "check":
		result := sess.Check(req.Action)
		resp.OK, resp.Result = true, &result

	case "decide":
		result, ev := sess.Decide(ctx, req.Action)
		resp.OK, resp.Result, resp.SpanID = true, &result, ev.SpanID
		resp.Blocked = result.Decision().Blocking()

	case "enforce":
		data := req.Data
		out, result, err := sess.Run(ctx, req.Action, func(context.Context) (any, error) {
			return data, nil
		})
		resp.Result = &result
		if err != nil {
			if _, ok := enforce.AsEnforcementError(err); ok {
				resp.OK, resp.Blocked = true, true
				return resp
			}
			resp.Error = err.Error()
			return resp
		}
		resp.OK, resp.Data = true, out

	case "snapshot":
		resp.OK, resp.State = true, sess.Snapshot()

	default:
		resp.Error = fmt.Sprintf("%v: unknown op %q", model.ErrInvalidArgument, req.Op)
	}
	return resp
}
