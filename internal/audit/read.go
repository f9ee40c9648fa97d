package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/tracegate/internal/tracer"
)

// Filter selects entries when reading a log. Zero fields match everything.
type Filter struct {
	TraceID string
	From    time.Time
	To      time.Time
}

func (f Filter) match(e Entry) bool {
	if f.TraceID != "" && e.TraceID != f.TraceID {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(tracer.TimeFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// ReadEntries returns the entries matching filter in log order. Malformed
// lines are skipped; use Verify to detect them.
func ReadEntries(path string, filter Filter) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if filter.match(e) {
			out = append(out, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return out, nil
}

// ReadEvents returns the tracer events of every entry matching filter.
func ReadEvents(path string, filter Filter) ([]tracer.Event, error) {
	entries, err := ReadEntries(path, filter)
	if err != nil {
		return nil, err
	}
	events := make([]tracer.Event, len(entries))
	for i, e := range entries {
		events[i] = e.Event
	}
	return events, nil
}

// Summary holds decision counts over a set of entries.
type Summary struct {
	Total          int    `json:"total"`
	AllowCount     int    `json:"allow_count"`
	RedactCount    int    `json:"redact_count"`
	RewriteCount   int    `json:"rewrite_count"`
	ApprovalCount  int    `json:"approval_count"`
	DenyCount      int    `json:"deny_count"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// Summarize counts decisions in entries.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		s.Total++
		switch e.DecisionResult() {
		case "allow":
			s.AllowCount++
		case "allow_with_redaction":
			s.RedactCount++
		case "rewrite_output":
			s.RewriteCount++
		case "require_approval":
			s.ApprovalCount++
		case "deny":
			s.DenyCount++
		}
		if s.FirstTimestamp == "" {
			s.FirstTimestamp = e.Timestamp
		}
		s.LastTimestamp = e.Timestamp
	}
	return s
}
