package extract

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/use-agent/dataflow/models"
)

// salvageRecord decodes one record field by field. A field whose value does
// not fit the canonical shape is retried with numeric strings ("29.9",
// "1,200") read as numbers, and dropped if it still does not fit. Only a
// non-object item is an error.
func salvageRecord(item json.RawMessage, platform string) (models.CanonicalRecord, []string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return models.CanonicalRecord{}, nil, err
	}

	var dropped []string
	for k, v := range fields {
		if k == "platformMetrics" || fits(k, v) {
			continue
		}
		if c, ok := coerceNumbers(v); ok && fits(k, c) {
			fields[k] = c
			continue
		}
		delete(fields, k)
		dropped = append(dropped, k)
	}

	rec, err := decodeFields(fields, platform)
	if err != nil {
		if c, ok := coerceNumbers(fields["platformMetrics"]); ok {
			fields["platformMetrics"] = c
			rec, err = decodeFields(fields, platform)
		}
	}
	if err != nil {
		delete(fields, "platformMetrics")
		dropped = append(dropped, "platformMetrics")
		rec, err = decodeFields(fields, platform)
	}
	return rec, dropped, err
}

func decodeFields(fields map[string]json.RawMessage, platform string) (models.CanonicalRecord, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return models.CanonicalRecord{}, err
	}
	return models.DecodeRecord(body, platform)
}

// fits reports whether key: v decodes into a CanonicalRecord on its own.
func fits(key string, v json.RawMessage) bool {
	body, err := json.Marshal(map[string]json.RawMessage{key: v})
	if err != nil {
		return false
	}
	var rec models.CanonicalRecord
	return json.Unmarshal(body, &rec) == nil
}

// coerceNumbers rewrites numeric strings at any depth of v into numbers.
// ok is false when nothing changed.
func coerceNumbers(v json.RawMessage) (json.RawMessage, bool) {
	if len(v) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return nil, false
	}
	changed := false
	x = coerce(x, &changed)
	if !changed {
		return nil, false
	}
	out, err := json.Marshal(x)
	if err != nil {
		return nil, false
	}
	return out, true
}

func coerce(x any, changed *bool) any {
	switch t := x.(type) {
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			*changed = true
			return f
		}
	case []any:
		for i := range t {
			t[i] = coerce(t[i], changed)
		}
	case map[string]any:
		for k := range t {
			t[k] = coerce(t[k], changed)
		}
	}
	return x
}
