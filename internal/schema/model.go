package schema

import "time"

// Roles carried by call messages.
const (
	RoleExpert     = "Expert"
	RoleSubscriber = "Subscriber"
)

// Sentiment classes for the analytic store's enum-typed columns. Any input
// outside this set maps to SentimentUnknown at transform time.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentUnknown  = "unknown"
)

// Call is one conversation in the detailed store. It owns its messages and
// features; deleting a call removes both.
type Call struct {
	CallID       string    `db:"call_id"`
	SourceFile   string    `db:"source_file"`
	SourceSeq    int64     `db:"source_seq"`
	OperatorID   *int64    `db:"operator_id"`
	SubscriberID *int64    `db:"subscriber_id"`
	ExpertID     *int64    `db:"expert_id"`
	StartedAt    time.Time `db:"started_at"`
	EndedAt      time.Time `db:"ended_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Duration is the call length derived from its timestamps.
func (c Call) Duration() time.Duration {
	return c.EndedAt.Sub(c.StartedAt)
}

// CallMessage is one role-tagged utterance within a call.
type CallMessage struct {
	CallID string `db:"call_id"`
	Seq    int    `db:"seq"`
	Role   string `db:"role"`
	Text   string `db:"text"`
}

// CallFeatures is the raw extracted-feature document attached to a call.
// The payload is stored as JSONB and never interpreted by the detailed store.
type CallFeatures struct {
	CallID    string         `db:"call_id"`
	Features  map[string]any `db:"features"`
	CreatedAt time.Time      `db:"created_at"`
}

// AnalyticsRow is the flattened, query-optimized projection of one call.
// Exactly one row per synced call; re-syncing replaces, never duplicates.
type AnalyticsRow struct {
	CallID              string    `db:"call_id"`
	SubscriberID        *int64    `db:"subscriber_id"`
	ExpertID            *int64    `db:"expert_id"`
	CallTimestamp       time.Time `db:"call_timestamp"`
	DurationSeconds     int64     `db:"duration_seconds"`
	MessageCount        int       `db:"message_count"`
	ExpertMessages      int       `db:"expert_messages"`
	SubscriberMessages  int       `db:"subscriber_messages"`
	SentimentExpert     string    `db:"sentiment_expert"`
	SentimentSubscriber string    `db:"sentiment_subscriber"`
	BadWordsExpert      bool      `db:"bad_words_expert"`
	BadWordsSubscriber  bool      `db:"bad_words_subscriber"`
	StartGreeting       bool      `db:"start_greeting"`
	EndGreeting         bool      `db:"end_greeting"`
	Category            string    `db:"category"`
	Subcategory         string    `db:"subcategory"`
	Summary             string    `db:"summary"`
	Features            string    `db:"features"` // original payload, JSON-encoded
	LoadedAt            time.Time `db:"loaded_at"`
}
