package audit

import "github.com/ppiankov/tracegate/internal/tracer"

// Entry is one line in the hash-chained JSONL audit log: a tracer event plus
// the chain link. Map-valued event fields marshal with sorted keys, so a line
// hashes the same however it was built.
type Entry struct {
	tracer.Event
	PolicyHash string `json:"policy_hash,omitempty"`
	PrevHash   string `json:"prev_hash"`
}
