package extract

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/use-agent/dataflow/models"
)

// ParseRecords decodes a model reply into records. It strips Markdown code
// fences and accepts a single object as a one-element list. Numeric strings
// are read as numbers; a field that still does not fit (including a metrics
// object of the wrong shape) is dropped, not fatal.
func ParseRecords(reply, platform string) ([]models.CanonicalRecord, error) {
	body := []byte(StripFences(reply))
	if len(body) == 0 {
		return nil, models.NewError(models.ErrCodeMalformedExtraction, "model returned an empty reply", nil)
	}
	if body[0] == '{' {
		body = append(append([]byte{'['}, body...), ']')
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, models.NewError(models.ErrCodeMalformedExtraction, "model reply is not a JSON array or object", err)
	}
	if len(items) == 0 {
		return nil, models.NewError(models.ErrCodeMalformedExtraction, "model returned no records", nil)
	}

	records := make([]models.CanonicalRecord, 0, len(items))
	for i, item := range items {
		rec, err := models.DecodeRecord(item, platform)
		if err != nil {
			var dropped []string
			rec, dropped, err = salvageRecord(item, platform)
			if err != nil {
				return nil, models.NewError(models.ErrCodeMalformedExtraction, "record is not a JSON object", err)
			}
			if len(dropped) > 0 {
				slog.Warn("dropping record fields that do not fit the canonical shape",
					"platform", platform, "index", i, "fields", dropped)
			}
		}
		if rec.Tags == nil {
			rec.Tags = []string{}
		}
		if rec.History == nil {
			rec.History = []models.DailyMetric{}
		}
		records = append(records, rec)
	}
	return records, nil
}

// StripFences removes a surrounding ```json ... ``` (or bare ```) fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json", "JSON", ...).
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
