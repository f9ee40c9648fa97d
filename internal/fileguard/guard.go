// Package fileguard guards file reads with policy. Callers read through a
// Guard instead of the os package; nothing global is replaced.
package fileguard

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/session"
)

// ErrClosed is returned by a Guard used after its scope ended.
var ErrClosed = errors.New("file guard closed")

// FS is the file access a Guard wraps.
type FS interface {
	ReadFile(name string) ([]byte, error)
	Stat(name string) (fs.FileInfo, error)
}

// OSFS reads from the local filesystem.
type OSFS struct{}

func (OSFS) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// Guard performs policy-checked reads within one session.
type Guard struct {
	sess   *session.Session
	fsys   FS
	closed atomic.Bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithFS replaces the filesystem, mainly for tests.
func WithFS(fsys FS) Option {
	return func(g *Guard) { g.fsys = fsys }
}

// New creates a Guard over sess.
func New(sess *session.Session, opts ...Option) *Guard {
	g := &Guard{sess: sess, fsys: OSFS{}}
	for _, o := range opts {
		o(g)
	}
	return g
}

// With runs fn with a Guard scoped to its call. When fn returns the guard is
// closed and the session's audit sink is flushed, whatever fn returned.
func With(sess *session.Session, fn func(g *Guard) error, opts ...Option) (err error) {
	g := New(sess, opts...)
	defer func() {
		if cerr := g.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(g)
}

// Close ends the guard's scope.
func (g *Guard) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	return g.sess.Flush()
}

// Action builds the file_read action for path.
func (g *Guard) Action(path string) *model.Action {
	sens, tags := Classify(path)
	size := 0
	if info, err := g.fsys.Stat(path); err == nil && !info.IsDir() {
		size = int(info.Size())
	}
	return &model.Action{
		Tool:      "file_read",
		Resource:  path,
		Operation: "read",
		Params:    map[string]any{"path": path},
		RawMeta: map[string]any{
			"sensitivity": string(sens),
			"tags":        tags,
			"bytes":       size,
			"rows":        0,
			"egress":      string(model.EgressInternal),
			"destination": "localhost",
		},
	}
}

// ReadText reads path as text. Redaction applies directive patterns and
// rewrite applies the text rewriter.
func (g *Guard) ReadText(ctx context.Context, path string) (string, error) {
	out, err := g.read(ctx, g.Action(path), func(data []byte) (any, error) {
		return string(data), nil
	})
	if err != nil {
		return "", err
	}
	s, _ := out.(string)
	return s, nil
}

// ReadFile is ReadText returning bytes.
func (g *Guard) ReadFile(ctx context.Context, path string) ([]byte, error) {
	s, err := g.ReadText(ctx, path)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// ReadRecords reads a .csv or .json file as records so redaction can mask
// fields by key.
func (g *Guard) ReadRecords(ctx context.Context, path string) ([]map[string]any, error) {
	out, err := g.read(ctx, g.Action(path), func(data []byte) (any, error) {
		return parseRecords(path, data)
	})
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case []map[string]any:
		return v, nil
	case string:
		return nil, fmt.Errorf("records of %s were withheld: %q", path, v)
	default:
		return nil, fmt.Errorf("unexpected payload type %T", out)
	}
}

func (g *Guard) read(ctx context.Context, action *model.Action, decode func([]byte) (any, error)) (any, error) {
	if g.closed.Load() {
		return nil, ErrClosed
	}
	return g.sess.Intercept(ctx, action, func(context.Context) (any, error) {
		data, err := g.fsys.ReadFile(action.Resource)
		if err != nil {
			return nil, err
		}
		return decode(data)
	})
}

func parseRecords(path string, raw []byte) ([]map[string]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(rows) == 0 {
			return []map[string]any{}, nil
		}
		header := rows[0]
		records := make([]map[string]any, 0, len(rows)-1)
		for _, row := range rows[1:] {
			rec := make(map[string]any, len(header))
			for i, col := range header {
				if i < len(row) {
					rec[col] = row[i]
				}
			}
			records = append(records, rec)
		}
		return records, nil

	case ".json":
		var records []map[string]any
		if err := json.Unmarshal(raw, &records); err == nil {
			return records, nil
		}
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return []map[string]any{single}, nil

	default:
		return nil, fmt.Errorf("%w: %s is not .csv or .json", model.ErrInvalidArgument, path)
	}
}
