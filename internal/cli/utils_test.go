package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{" JSON ", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	page := 3
	answer := &models.ChatAnswer{
		Answer:  "Revenue was $4M.",
		Sources: []models.Source{{ID: "abc", Title: "q3.pdf", Page: &page, Snippet: "Revenue: $4M"}},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, answer, OutputJSON); err != nil {
		t.Fatalf("WriteAnswer(json): %v", err)
	}
	var decoded models.ChatAnswer
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Answer != answer.Answer || len(decoded.Sources) != 1 || *decoded.Sources[0].Page != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteAnswer_JSON_emptySources(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, models.NewChatAnswer("none"), OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"sources": []`) {
		t.Errorf("empty sources should encode as []:\n%s", buf.String())
	}
}

func TestWriteAnswer_text(t *testing.T) {
	page := 0
	answer := &models.ChatAnswer{
		Answer: "Costs fell 5%.",
		Sources: []models.Source{
			{ID: "id1", Title: "annual.pdf", Page: &page, Snippet: strings.Repeat("x", 300)},
			{ID: "id2", Title: "PDF"},
		},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, answer, OutputText); err != nil {
		t.Fatalf("WriteAnswer(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Costs fell 5%.", "Sources (2)", "[1] annual.pdf (chunk 0)", "ID: id1", "[2] PDF\n", strings.Repeat("x", 200) + "..."} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteAnswer_textNoSources(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteAnswer(&buf, models.NewChatAnswer("No relevant context found in index for your question."), OutputText)
	if strings.Contains(buf.String(), "Sources") {
		t.Errorf("no sources section expected:\n%s", buf.String())
	}
}

func TestWriteIndexResult(t *testing.T) {
	res := &models.IndexResult{Source: "q3.pdf", Chunks: 5, Upserted: 4, Skipped: 1}
	var buf bytes.Buffer
	if err := WriteIndexResult(&buf, res, OutputText); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "Indexed q3.pdf: 5 chunks, 4 upserted, 1 skipped\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	buf.Reset()
	if err := WriteIndexResult(&buf, res, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.IndexResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded != *res {
		t.Errorf("decoded %+v, err %v", decoded, err)
	}
}

func TestWriteIngests(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteIngests(&buf, nil, OutputText)
	if !strings.Contains(buf.String(), "No reports ingested yet.") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	_ = WriteIngests(&buf, nil, OutputJSON)
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty JSON list expected, got %q", buf.String())
	}

	buf.Reset()
	recs := []*models.IngestRecord{{Source: "q3.pdf", Chunks: 4, Upserted: 4, IngestedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}}
	_ = WriteIngests(&buf, recs, OutputText)
	if !strings.Contains(buf.String(), "q3.pdf") || !strings.Contains(buf.String(), "4 chunks") {
		t.Errorf("got %q", buf.String())
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateWords(tt.s, tt.maxWords); got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}
