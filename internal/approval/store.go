// Package approval is a file-backed store for out-of-band approval of
// require_approval decisions, keyed by approval key.
package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/tracegate/internal/model"
)

// ErrNotFound is returned for keys with no approval record.
var ErrNotFound = errors.New("approval not found")

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could escape the store directory.
func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: approval key must not be empty", model.ErrInvalidArgument)
	case strings.Contains(key, ".."):
		return fmt.Errorf("%w: approval key must not contain '..'", model.ErrInvalidArgument)
	case !validKey.MatchString(key):
		return fmt.Errorf("%w: approval key %q may only contain alphanumerics, dash, underscore and dot", model.ErrInvalidArgument, key)
	}
	return nil
}

// Status represents the state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
)

// Approval is a single approval record.
type Approval struct {
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	Reason     string     `json:"reason"`
	PolicyID   string     `json:"policy_id"`
	Tool       string     `json:"tool,omitempty"`
	Resource   string     `json:"resource"`
	TraceID    string     `json:"trace_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Request describes a blocked operation awaiting approval.
type Request struct {
	Key      string
	Reason   string
	PolicyID string
	Tool     string
	Resource string
	TraceID  string
}

// Store manages approval files on disk, one JSON file per key.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a Store backed by dir. An empty dir means DefaultDir().
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &Store{dir: dir, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DefaultDir returns ~/.tracegate/approvals.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "tracegate-approvals")
	}
	return filepath.Join(home, ".tracegate", "approvals")
}

// Request files a pending approval. An existing pending, approved or denied
// record is left alone; a consumed or expired one is reopened.
func (s *Store) Request(r Request) error {
	if err := validateKey(r.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a, err := s.read(r.Key); err == nil {
		if a.Status != StatusConsumed && s.effective(a) != StatusExpired {
			return nil
		}
	}

	return s.writeAtomic(Approval{
		Key:       r.Key,
		Status:    StatusPending,
		Reason:    r.Reason,
		PolicyID:  r.PolicyID,
		Tool:      r.Tool,
		Resource:  r.Resource,
		TraceID:   r.TraceID,
		CreatedAt: s.now(),
	})
}

// Approve marks an approval as approved. With duration > 0 the approval is
// reusable until it expires; with 0 it is consumed on first use. Approving
// a key nobody requested creates the record.
func (s *Store) Approve(key string, duration time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a, err := s.read(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		a = &Approval{Key: key, CreatedAt: now}
	}

	a.Status = StatusApproved
	a.ResolvedAt = &now
	a.ExpiresAt = nil
	if duration > 0 {
		exp := now.Add(duration)
		a.ExpiresAt = &exp
	}
	return s.writeAtomic(*a)
}

// Deny marks an approval as denied.
func (s *Store) Deny(key string) error {
	return s.resolve(key, StatusDenied)
}

// Consume marks an approval as used.
func (s *Store) Consume(key string) error {
	return s.resolve(key, StatusConsumed)
}

func (s *Store) resolve(key string, status Status) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return err
	}
	if a.Status == StatusConsumed && status == StatusConsumed {
		return fmt.Errorf("approval %q already consumed", key)
	}

	now := s.now()
	a.Status = status
	a.ResolvedAt = &now
	return s.writeAtomic(*a)
}

// Check returns the current status of an approval, reporting StatusExpired
// for an approval past its deadline.
func (s *Store) Check(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return "", err
	}
	return s.effective(a), nil
}

// Use reports whether key is currently approved and, for a one-time
// approval, consumes it in the same step.
func (s *Store) Use(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.effective(a) != StatusApproved {
		return false, nil
	}
	if a.ExpiresAt == nil {
		now := s.now()
		a.Status = StatusConsumed
		a.ResolvedAt = &now
		if err := s.writeAtomic(*a); err != nil {
			return false, err
		}
	}
	return true, nil
}

// List returns all approvals sorted by creation time.
func (s *Store) List() ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list approvals: %w", err)
	}

	var approvals []Approval
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		a.Status = s.effective(a)
		approvals = append(approvals, *a)
	}

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].CreatedAt.Before(approvals[j].CreatedAt)
	})
	return approvals, nil
}

// Cleanup removes all approval files in the store.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) effective(a *Approval) Status {
	if a.Status == StatusApproved && a.ExpiresAt != nil && s.now().After(*a.ExpiresAt) {
		return StatusExpired
	}
	return a.Status
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Approval, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read approval %q: %w", key, err)
	}

	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode approval %q: %w", key, err)
	}
	return &a, nil
}

func (s *Store) writeAtomic(a Approval) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode approval: %w", err)
	}

	path := s.path(a.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write approval: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write approval: %w", err)
	}
	return nil
}
