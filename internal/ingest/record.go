// Package ingest loads raw conversation records into the detailed store.
// Records are validated, keyed, and upserted; re-running an input never
// duplicates rows.
package ingest

import (
	"fmt"
	"time"

	"github.com/zeebo/xxh3"

	"callsync/internal/schema"
)

// RawMessage is one utterance as read from the input.
type RawMessage struct {
	Seq  int    `json:"seq"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// RawRecord is one conversation as read from the input. SourceFile and Seq
// are stamped by the reader, not carried in the line itself.
type RawRecord struct {
	CallID       string         `json:"call_id"`
	SourceFile   string         `json:"-"`
	Seq          int64          `json:"-"`
	OperatorID   *int64         `json:"operator_id"`
	SubscriberID *int64         `json:"subscriber_id"`
	ExpertID     *int64         `json:"expert_id"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      time.Time      `json:"ended_at"`
	Messages     []RawMessage   `json:"messages"`
	Features     map[string]any `json:"features"`
}

// NaturalKey returns the record's call ID: the explicit one when present,
// otherwise a stable hash of its source position. The derived form makes
// re-ingesting the same file idempotent without coordination.
func (r RawRecord) NaturalKey() string {
	if r.CallID != "" {
		return r.CallID
	}
	h := xxh3.HashString(fmt.Sprintf("%s\x00%d", r.SourceFile, r.Seq))
	return fmt.Sprintf("call-%016x", h)
}

// ValidationError reports a record the pipeline refused. The record is
// skipped; the batch continues.
type ValidationError struct {
	CallID string
	Field  string
	Msg    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %q: field %s: %s", e.CallID, e.Field, e.Msg)
}

// validate checks the required fields before any store write.
func validate(r RawRecord) error {
	key := r.NaturalKey()
	if r.CallID == "" && r.SourceFile == "" {
		return &ValidationError{CallID: key, Field: "call_id", Msg: "no explicit id and no source position to derive one"}
	}
	if r.StartedAt.IsZero() {
		return &ValidationError{CallID: key, Field: "started_at", Msg: "required"}
	}
	if r.EndedAt.IsZero() {
		return &ValidationError{CallID: key, Field: "ended_at", Msg: "required"}
	}
	if r.EndedAt.Before(r.StartedAt) {
		return &ValidationError{CallID: key, Field: "ended_at", Msg: "precedes started_at"}
	}
	seen := make(map[int]int, len(r.Messages))
	for i, m := range r.Messages {
		if m.Role != schema.RoleExpert && m.Role != schema.RoleSubscriber {
			return &ValidationError{
				CallID: key,
				Field:  fmt.Sprintf("messages[%d].role", i),
				Msg:    fmt.Sprintf("unknown role %q", m.Role),
			}
		}
		if m.Seq != 0 {
			if j, dup := seen[m.Seq]; dup {
				return &ValidationError{
					CallID: key,
					Field:  fmt.Sprintf("messages[%d].seq", i),
					Msg:    fmt.Sprintf("duplicate seq %d (also messages[%d])", m.Seq, j),
				}
			}
			seen[m.Seq] = i
		}
	}
	return nil
}
