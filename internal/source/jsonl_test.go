package source

import (
	"strings"
	"testing"

	"golang.org/x/text/unicode/norm"

	"callsync/internal/schema"
)

const sampleJSONL = `{"call_id":"c-1","started_at":"2025-04-02T09:00:00Z","ended_at":"2025-04-02T09:02:00Z","messages":[{"seq":1,"role":"Expert","text":"hello"}],"features":{"summary":{"text":"greeting"}}}

{"call_id":"c-2","started_at":"2025-04-02T10:00:00Z","ended_at":"2025-04-02T10:01:00Z","messages":[]}
not json at all
{"started_at":"2025-04-02T11:00:00Z","ended_at":"2025-04-02T11:05:00Z"}
`

func TestReadJSONL(t *testing.T) {
	t.Parallel()

	var rejected []int
	recs, err := ReadJSONL(strings.NewReader(sampleJSONL), "export.jsonl", func(line int, err error) {
		rejected = append(rejected, line)
	})
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}

	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	if len(rejected) != 1 || rejected[0] != 4 {
		t.Fatalf("rejected lines = %v, want [4]", rejected)
	}

	r0 := recs[0]
	if r0.CallID != "c-1" || r0.SourceFile != "export.jsonl" || r0.Seq != 1 {
		t.Fatalf("record[0] = %+v", r0)
	}
	if len(r0.Messages) != 1 || r0.Messages[0].Role != schema.RoleExpert {
		t.Fatalf("messages = %v", r0.Messages)
	}
	if r0.Features["summary"] == nil {
		t.Fatalf("features = %v", r0.Features)
	}

	// Blank lines are skipped but still count toward line numbers.
	if recs[1].Seq != 3 {
		t.Fatalf("record[1].Seq = %d, want 3", recs[1].Seq)
	}

	// Records without an explicit id still come through; keying is the
	// ingest pipeline's job.
	if recs[2].CallID != "" || recs[2].Seq != 5 {
		t.Fatalf("record[2] = %+v", recs[2])
	}
}

func TestReadJSONL_NormalizesText(t *testing.T) {
	t.Parallel()

	// "é" as 'e' + combining acute accent (NFD form).
	decomposed := "café"
	line := `{"call_id":"c-1","started_at":"2025-04-02T09:00:00Z","ended_at":"2025-04-02T09:01:00Z","messages":[{"seq":1,"role":"Subscriber","text":"` + decomposed + `"}]}`

	recs, err := ReadJSONL(strings.NewReader(line), "x.jsonl", nil)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	got := recs[0].Messages[0].Text
	if got != "café" {
		t.Fatalf("text = %q, want composed form", got)
	}
	if !norm.NFC.IsNormalString(got) {
		t.Fatalf("text %q not in NFC", got)
	}
}

func TestReadJSONL_EmptyInput(t *testing.T) {
	t.Parallel()

	recs, err := ReadJSONL(strings.NewReader(""), "empty.jsonl", nil)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("records = %v", recs)
	}
}
