package executor

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ternarybob/scribo/internal/models"
)

// formatExtensions maps output format names to file extensions. The set
// matches the sanitizer's allow-list; unknown names are skipped with a
// warning rather than failing the item.
var formatExtensions = map[string]string{
	"text":     ".txt",
	"markdown": ".md",
	"csv":      ".csv",
	"jsonl":    ".jsonl",
}

// writeOutputs renders the transcript in each requested format into dir
func writeOutputs(dir string, item models.CatalogItem, transcript *models.Transcript, formats []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, format := range formats {
		ext, ok := formatExtensions[format]
		if !ok {
			continue
		}
		content, err := renderTranscript(format, item, transcript)
		if err != nil {
			return fmt.Errorf("failed to render %s output: %w", format, err)
		}
		path := filepath.Join(dir, item.ID+ext)
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

func renderTranscript(format string, item models.CatalogItem, transcript *models.Transcript) ([]byte, error) {
	switch format {
	case "text":
		return renderText(transcript), nil
	case "markdown":
		return renderMarkdown(item, transcript), nil
	case "csv":
		return renderCSV(transcript)
	case "jsonl":
		return renderJSONL(transcript)
	}
	return nil, fmt.Errorf("unknown output format: %s", format)
}

func renderText(transcript *models.Transcript) []byte {
	return []byte(transcript.Text + "\n")
}

func renderMarkdown(item models.CatalogItem, transcript *models.Transcript) []byte {
	var buf bytes.Buffer
	title := item.Title
	if title == "" {
		title = item.ID
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	if transcript.Language != "" {
		fmt.Fprintf(&buf, "Language: %s\n\n", transcript.Language)
	}
	if len(transcript.Segments) == 0 {
		buf.WriteString(transcript.Text)
		buf.WriteString("\n")
		return buf.Bytes()
	}
	for _, segment := range transcript.Segments {
		fmt.Fprintf(&buf, "**[%s]** %s\n\n", formatTimestamp(segment.Start), segment.Text)
	}
	return buf.Bytes()
}

func renderCSV(transcript *models.Transcript) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"start", "end", "text"}); err != nil {
		return nil, err
	}
	for _, segment := range transcript.Segments {
		row := []string{
			strconv.FormatFloat(segment.Start.Seconds(), 'f', 2, 64),
			strconv.FormatFloat(segment.End.Seconds(), 'f', 2, 64),
			segment.Text,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func renderJSONL(transcript *models.Transcript) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, segment := range transcript.Segments {
		if err := enc.Encode(segment); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func formatTimestamp(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
