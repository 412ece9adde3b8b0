package runs

import (
	"strings"

	"github.com/ternarybob/scribo/internal/models"
)

// knownFormats are the transcript output formats a request may ask for
var knownFormats = map[string]struct{}{
	"text":     {},
	"markdown": {},
	"csv":      {},
	"jsonl":    {},
}

// SanitizeOverrides reduces raw request overrides to the allow-listed
// transcription settings. Everything else is dropped, so a request can never
// smuggle credentials, endpoints, or paths into the executor. Returns nil
// when nothing usable remains.
func SanitizeOverrides(raw map[string]interface{}) *models.TranscribeOptions {
	if len(raw) == 0 {
		return nil
	}

	opts := &models.TranscribeOptions{}
	used := false

	if lang, ok := raw["language"].(string); ok {
		lang = strings.TrimSpace(lang)
		if lang != "" && len(lang) <= 16 {
			opts.Language = lang
			used = true
		}
	}

	if rawFormats, ok := raw["formats"].([]interface{}); ok {
		for _, rf := range rawFormats {
			format, ok := rf.(string)
			if !ok {
				continue
			}
			format = strings.ToLower(strings.TrimSpace(format))
			if _, known := knownFormats[format]; known {
				opts.Formats = append(opts.Formats, format)
				used = true
			}
		}
	}

	if !used {
		return nil
	}
	return opts
}
