// Package source reads conversation records from JSONL input, one record per
// line. Parsing is fail-soft: a malformed line is reported through the reject
// callback and reading continues, so one bad export line never sinks a file.
package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"callsync/internal/ingest"
)

// Lines beyond this size are a sign of a broken export, not a conversation.
const maxLineBytes = 16 * 1024 * 1024

// ReadJSONL decodes records from r. sourceFile names the input for natural
// keys and provenance; the 1-based line number becomes the record's Seq.
// reject may be nil. The returned error covers the stream itself (read
// failures, oversized lines), never individual records.
func ReadJSONL(r io.Reader, sourceFile string, reject func(line int, err error)) ([]ingest.RawRecord, error) {
	if reject == nil {
		reject = func(int, error) {}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out []ingest.RawRecord
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var rec ingest.RawRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			reject(line, fmt.Errorf("decode: %w", err))
			continue
		}

		rec.SourceFile = sourceFile
		rec.Seq = int64(line)
		for i := range rec.Messages {
			rec.Messages[i].Text = normalize(rec.Messages[i].Text)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read %s: %w", sourceFile, err)
	}
	return out, nil
}

// normalize puts transcript text into NFC so equal utterances compare equal
// regardless of how the upstream encoder composed its accents.
func normalize(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}
