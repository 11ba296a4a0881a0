package transform

import "strings"

// Documented paths into the extracted-feature payload. The flattener reads
// exactly these; anything else in the payload rides along untouched in the
// features column.
const (
	PathSentimentExpert     = "sentiment_analysis.expert.class"
	PathSentimentSubscriber = "sentiment_analysis.subscriber.class"
	PathBadWordsExpert      = "bad_words.expert.class"
	PathBadWordsSubscriber  = "bad_words.subscriber.class"
	PathStartGreeting       = "start_greeting.present"
	PathEndGreeting         = "end_greeting.present"
	PathSummaryText         = "summary.text"
	PathSummaryCategory     = "summary.category"
	PathSummarySubcategory  = "summary.subcategory"
)

// lookup walks a dotted path through nested JSON objects. The second return
// is false when any segment is absent or an intermediate value is not an
// object.
func lookup(doc map[string]any, path string) (any, bool) {
	cur := any(doc)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
