// Package cli formats kotae results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const snippetPreview = 200

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (use text or json)", s)
}

// WriteAnswer writes an answer and its sources to w in the given format.
func WriteAnswer(w io.Writer, answer *models.ChatAnswer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n", answer.Answer)
	if len(answer.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nSources (%d):\n", len(answer.Sources))
	for i, src := range answer.Sources {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		if src.Page != nil {
			fmt.Fprintf(w, "[%d] %s (chunk %d)\n", i+1, src.Title, *src.Page)
		} else {
			fmt.Fprintf(w, "[%d] %s\n", i+1, src.Title)
		}
		fmt.Fprintf(w, "ID: %s\n", src.ID)
		if src.Snippet != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(src.Snippet, snippetPreview))
		}
	}
	fmt.Fprintln(w)
	return nil
}

// WriteIndexResult writes the outcome of one ingest.
func WriteIndexResult(w io.Writer, result *models.IndexResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "Indexed %s: %d chunks, %d upserted, %d skipped\n",
		result.Source, result.Chunks, result.Upserted, result.Skipped)
	return nil
}

// WriteIngests writes ledger entries, newest first.
func WriteIngests(w io.Writer, records []*models.IngestRecord, format OutputFormat) error {
	if format == OutputJSON {
		if records == nil {
			records = []*models.IngestRecord{}
		}
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No reports ingested yet.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s  %-40s %4d chunks  %4d upserted  %4d skipped\n",
			r.IngestedAt.Local().Format("2006-01-02 15:04"), TruncateWords(r.Source, 6), r.Chunks, r.Upserted, r.Skipped)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
