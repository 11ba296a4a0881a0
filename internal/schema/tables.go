package schema

// Static table definitions for both stores. These mirror the external DDL
// (see the storage backends); they are configuration data, never derived at
// runtime.

const (
	// Detailed store (Postgres).
	TableCalls        = "calls"
	TableCallMessages = "call_messages"
	TableCallFeatures = "call_features"

	// Analytic store (ClickHouse).
	TableCallAnalytics = "call_analytics"
)

// Default returns the registry with the four tables both pipelines operate on.
func Default() *Registry {
	r, err := NewRegistry(
		Table{
			Name:  TableCalls,
			Store: StoreDetailed,
			Columns: []Column{
				{Name: "call_id", Type: TypeText},
				{Name: "source_file", Type: TypeText, Nullable: true},
				{Name: "source_seq", Type: TypeInteger, Nullable: true},
				{Name: "operator_id", Type: TypeInteger, Nullable: true},
				{Name: "subscriber_id", Type: TypeInteger, Nullable: true},
				{Name: "expert_id", Type: TypeInteger, Nullable: true},
				{Name: "started_at", Type: TypeTimestamp},
				{Name: "ended_at", Type: TypeTimestamp},
				{Name: "created_at", Type: TypeTimestamp},
				{Name: "updated_at", Type: TypeTimestamp},
			},
		},
		Table{
			Name:  TableCallMessages,
			Store: StoreDetailed,
			Columns: []Column{
				{Name: "call_id", Type: TypeText},
				{Name: "seq", Type: TypeInteger},
				{Name: "role", Type: TypeText},
				{Name: "text", Type: TypeText},
			},
		},
		Table{
			Name:  TableCallFeatures,
			Store: StoreDetailed,
			Columns: []Column{
				{Name: "call_id", Type: TypeText},
				{Name: "features", Type: TypeJSON},
				{Name: "created_at", Type: TypeTimestamp},
			},
		},
		Table{
			Name:  TableCallAnalytics,
			Store: StoreAnalytic,
			Columns: []Column{
				{Name: "call_id", Type: TypeText},
				{Name: "subscriber_id", Type: TypeInteger, Nullable: true},
				{Name: "expert_id", Type: TypeInteger, Nullable: true},
				{Name: "call_timestamp", Type: TypeTimestamp},
				{Name: "duration_seconds", Type: TypeInteger},
				{Name: "message_count", Type: TypeInteger},
				{Name: "expert_messages", Type: TypeInteger},
				{Name: "subscriber_messages", Type: TypeInteger},
				{Name: "sentiment_expert", Type: TypeText},
				{Name: "sentiment_subscriber", Type: TypeText},
				{Name: "bad_words_expert", Type: TypeBool},
				{Name: "bad_words_subscriber", Type: TypeBool},
				{Name: "start_greeting", Type: TypeBool},
				{Name: "end_greeting", Type: TypeBool},
				{Name: "category", Type: TypeText},
				{Name: "subcategory", Type: TypeText},
				{Name: "summary", Type: TypeText},
				{Name: "features", Type: TypeJSON},
				{Name: "loaded_at", Type: TypeTimestamp},
			},
		},
	)
	if err != nil {
		// The static definitions above are compile-time constants; a failure
		// here is a programming error.
		panic(err)
	}
	return r
}
