// Package transform flattens a detailed-store call, its messages, and its
// extracted-feature payload into one analytic row. Flatten is pure: no I/O,
// no clock, same inputs always produce the same row and the same warnings.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"callsync/internal/schema"
)

// Warning records a payload path that could not be read as documented. The
// row still carries the documented default for that field; warnings are for
// operators, never for control flow.
type Warning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	return w.Path + ": " + w.Reason
}

// Flatten builds the analytic projection of one call. Missing or malformed
// payload paths yield the field's zero default plus one Warning each.
// LoadedAt is left zero; the writer stamps it.
func Flatten(call schema.Call, messages []schema.CallMessage, payload map[string]any) (schema.AnalyticsRow, []Warning) {
	f := flattener{payload: payload}

	row := schema.AnalyticsRow{
		CallID:        call.CallID,
		SubscriberID:  call.SubscriberID,
		ExpertID:      call.ExpertID,
		CallTimestamp: call.StartedAt,
	}

	secs := int64(call.Duration().Seconds())
	if secs < 0 {
		f.warn("duration", "ended_at precedes started_at")
		secs = 0
	}
	row.DurationSeconds = secs

	row.MessageCount = len(messages)
	for _, m := range messages {
		switch m.Role {
		case schema.RoleExpert:
			row.ExpertMessages++
		case schema.RoleSubscriber:
			row.SubscriberMessages++
		}
	}

	row.SentimentExpert = f.sentiment(PathSentimentExpert)
	row.SentimentSubscriber = f.sentiment(PathSentimentSubscriber)
	row.BadWordsExpert = f.boolAt(PathBadWordsExpert)
	row.BadWordsSubscriber = f.boolAt(PathBadWordsSubscriber)
	row.StartGreeting = f.boolAt(PathStartGreeting)
	row.EndGreeting = f.boolAt(PathEndGreeting)
	row.Summary = f.stringAt(PathSummaryText)
	row.Category = f.stringAt(PathSummaryCategory)
	row.Subcategory = f.stringAt(PathSummarySubcategory)

	row.Features = f.encode()

	return row, f.warnings
}

type flattener struct {
	payload  map[string]any
	warnings []Warning
}

func (f *flattener) warn(path, reason string) {
	f.warnings = append(f.warnings, Warning{Path: path, Reason: reason})
}

func (f *flattener) stringAt(path string) string {
	v, ok := lookup(f.payload, path)
	if !ok {
		f.warn(path, "missing")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.warn(path, fmt.Sprintf("expected string, got %T", v))
		return ""
	}
	return s
}

// boolAt accepts JSON booleans and the string forms "true"/"false", which
// some upstream extractors emit.
func (f *flattener) boolAt(path string) bool {
	v, ok := lookup(f.payload, path)
	if !ok {
		f.warn(path, "missing")
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(t) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	f.warn(path, fmt.Sprintf("expected bool, got %T(%v)", v, v))
	return false
}

func (f *flattener) sentiment(path string) string {
	v, ok := lookup(f.payload, path)
	if !ok {
		f.warn(path, "missing")
		return schema.SentimentUnknown
	}
	s, ok := v.(string)
	if !ok {
		f.warn(path, fmt.Sprintf("expected string, got %T", v))
		return schema.SentimentUnknown
	}
	switch strings.ToLower(s) {
	case schema.SentimentPositive:
		return schema.SentimentPositive
	case schema.SentimentNeutral:
		return schema.SentimentNeutral
	case schema.SentimentNegative:
		return schema.SentimentNegative
	}
	f.warn(path, fmt.Sprintf("unrecognized sentiment class %q", s))
	return schema.SentimentUnknown
}

// encode serializes the full payload for the analytic features column so ad
// hoc queries can reach paths the flattener does not project.
func (f *flattener) encode() string {
	if f.payload == nil {
		return "{}"
	}
	b, err := json.Marshal(f.payload)
	if err != nil {
		f.warn("features", "payload not serializable: "+err.Error())
		return "{}"
	}
	return string(b)
}
