package transform

import (
	"testing"
	"time"

	"callsync/internal/schema"
)

func fullPayload() map[string]any {
	return map[string]any{
		"sentiment_analysis": map[string]any{
			"expert":     map[string]any{"class": "Positive"},
			"subscriber": map[string]any{"class": "negative"},
		},
		"bad_words": map[string]any{
			"expert":     map[string]any{"class": false},
			"subscriber": map[string]any{"class": true},
		},
		"start_greeting": map[string]any{"present": true},
		"end_greeting":   map[string]any{"present": "false"},
		"summary": map[string]any{
			"text":        "subscriber asked about a refund",
			"category":    "billing",
			"subcategory": "refunds",
		},
	}
}

func testCall() schema.Call {
	sub, exp := int64(7), int64(12)
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return schema.Call{
		CallID:       "c-1",
		SubscriberID: &sub,
		ExpertID:     &exp,
		StartedAt:    start,
		EndedAt:      start.Add(95 * time.Second),
	}
}

func TestFlatten_Complete(t *testing.T) {
	t.Parallel()

	msgs := []schema.CallMessage{
		{CallID: "c-1", Seq: 1, Role: schema.RoleExpert, Text: "hello"},
		{CallID: "c-1", Seq: 2, Role: schema.RoleSubscriber, Text: "hi"},
		{CallID: "c-1", Seq: 3, Role: schema.RoleExpert, Text: "bye"},
	}

	row, warns := Flatten(testCall(), msgs, fullPayload())
	if len(warns) != 0 {
		t.Fatalf("warnings = %v, want none", warns)
	}
	if row.CallID != "c-1" || row.DurationSeconds != 95 {
		t.Fatalf("row = %+v", row)
	}
	if row.MessageCount != 3 || row.ExpertMessages != 2 || row.SubscriberMessages != 1 {
		t.Fatalf("message counts = %d/%d/%d", row.MessageCount, row.ExpertMessages, row.SubscriberMessages)
	}
	if row.SentimentExpert != schema.SentimentPositive {
		t.Fatalf("sentiment_expert = %q, want case-folded positive", row.SentimentExpert)
	}
	if row.SentimentSubscriber != schema.SentimentNegative {
		t.Fatalf("sentiment_subscriber = %q", row.SentimentSubscriber)
	}
	if row.BadWordsExpert || !row.BadWordsSubscriber {
		t.Fatalf("bad words = %v/%v", row.BadWordsExpert, row.BadWordsSubscriber)
	}
	if !row.StartGreeting || row.EndGreeting {
		t.Fatalf("greetings = %v/%v (string bool coercion)", row.StartGreeting, row.EndGreeting)
	}
	if row.Category != "billing" || row.Subcategory != "refunds" {
		t.Fatalf("category = %q/%q", row.Category, row.Subcategory)
	}
	if row.Features == "" || row.Features == "{}" {
		t.Fatalf("features = %q, want full payload", row.Features)
	}
	if !row.LoadedAt.IsZero() {
		t.Fatalf("loaded_at = %v, want zero (writer stamps it)", row.LoadedAt)
	}
}

func TestFlatten_MissingAndMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   map[string]any
		wantWarns int
		check     func(t *testing.T, row schema.AnalyticsRow)
	}{
		{
			name:      "empty payload defaults every field",
			payload:   map[string]any{},
			wantWarns: 9,
			check: func(t *testing.T, row schema.AnalyticsRow) {
				if row.SentimentExpert != schema.SentimentUnknown || row.SentimentSubscriber != schema.SentimentUnknown {
					t.Fatalf("sentiments = %q/%q", row.SentimentExpert, row.SentimentSubscriber)
				}
				if row.BadWordsExpert || row.StartGreeting || row.EndGreeting {
					t.Fatal("bool fields not defaulted to false")
				}
				if row.Summary != "" || row.Category != "" {
					t.Fatalf("text fields = %q/%q", row.Summary, row.Category)
				}
			},
		},
		{
			name:      "nil payload",
			payload:   nil,
			wantWarns: 9,
			check: func(t *testing.T, row schema.AnalyticsRow) {
				if row.Features != "{}" {
					t.Fatalf("features = %q", row.Features)
				}
			},
		},
		{
			name: "wrong types warn and default",
			payload: func() map[string]any {
				p := fullPayload()
				p["start_greeting"] = map[string]any{"present": 1.0}
				p["summary"].(map[string]any)["text"] = 42.0
				return p
			}(),
			wantWarns: 2,
			check: func(t *testing.T, row schema.AnalyticsRow) {
				if row.StartGreeting {
					t.Fatal("numeric present coerced to true")
				}
				if row.Summary != "" {
					t.Fatalf("summary = %q", row.Summary)
				}
				if row.Category != "billing" {
					t.Fatalf("sibling field lost: category = %q", row.Category)
				}
			},
		},
		{
			name: "unrecognized sentiment maps to unknown",
			payload: func() map[string]any {
				p := fullPayload()
				p["sentiment_analysis"].(map[string]any)["expert"] = map[string]any{"class": "ecstatic"}
				return p
			}(),
			wantWarns: 1,
			check: func(t *testing.T, row schema.AnalyticsRow) {
				if row.SentimentExpert != schema.SentimentUnknown {
					t.Fatalf("sentiment = %q", row.SentimentExpert)
				}
			},
		},
		{
			name: "intermediate non-object",
			payload: func() map[string]any {
				p := fullPayload()
				p["bad_words"] = "yes"
				return p
			}(),
			wantWarns: 2,
			check: func(t *testing.T, row schema.AnalyticsRow) {
				if row.BadWordsExpert || row.BadWordsSubscriber {
					t.Fatal("bad words not defaulted")
				}
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			row, warns := Flatten(testCall(), nil, tc.payload)
			if len(warns) != tc.wantWarns {
				t.Fatalf("warnings = %v (%d), want %d", warns, len(warns), tc.wantWarns)
			}
			tc.check(t, row)
		})
	}
}

func TestFlatten_NegativeDurationClamped(t *testing.T) {
	t.Parallel()

	c := testCall()
	c.EndedAt = c.StartedAt.Add(-time.Minute)
	row, warns := Flatten(c, nil, fullPayload())
	if row.DurationSeconds != 0 {
		t.Fatalf("duration = %d, want 0", row.DurationSeconds)
	}
	if len(warns) != 1 || warns[0].Path != "duration" {
		t.Fatalf("warnings = %v", warns)
	}
}

func TestFlatten_Deterministic(t *testing.T) {
	t.Parallel()

	c := testCall()
	msgs := []schema.CallMessage{{CallID: "c-1", Seq: 1, Role: schema.RoleExpert, Text: "x"}}
	r1, w1 := Flatten(c, msgs, fullPayload())
	r2, w2 := Flatten(c, msgs, fullPayload())
	if r1 != r2 {
		t.Fatalf("rows differ:\n%+v\n%+v", r1, r2)
	}
	if len(w1) != len(w2) {
		t.Fatalf("warning counts differ: %d vs %d", len(w1), len(w2))
	}
}
