// Package transform shapes raw API payloads into the document uploaded as
// processed_data.json.
package transform

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/savaki/data-pipeline/internal/models"
)

// envelopeKeys are the top-level fields unwrapped when they hold the record array.
var envelopeKeys = []string{"data", "results", "items", "records"}

// Document is the processed output.
type Document struct {
	RecordCount int              `json:"record_count"`
	Fields      []string         `json:"fields"`
	Records     []map[string]any `json:"records"`
	Checksum    string           `json:"checksum"`
}

// Process parses payload as JSON, normalises its records and returns the
// encoded Document. The same input always yields the same bytes.
func Process(payload models.Payload) (models.Payload, error) {
	doc, err := Normalize(payload)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode processed document: %w", err)
	}
	return data, nil
}

// Normalize is Process without the final encoding step.
func Normalize(payload models.Payload) (Document, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Document{}, fmt.Errorf("failed to parse payload: empty input")
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return Document{}, fmt.Errorf("failed to parse payload: %w", err)
	}
	if decoder.More() {
		return Document{}, fmt.Errorf("failed to parse payload: trailing data after JSON value")
	}

	items, err := unwrap(raw)
	if err != nil {
		return Document{}, err
	}

	records := make([]map[string]any, 0, len(items))
	fieldSet := map[string]struct{}{}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return Document{}, fmt.Errorf("record %d: expected JSON object, got %s", i, kind(item))
		}
		record := normalizeObject(obj)
		for k := range record {
			fieldSet[k] = struct{}{}
		}
		records = append(records, record)
	}

	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	canonical, err := json.Marshal(records)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode records: %w", err)
	}
	sum := sha256.Sum256(canonical)

	return Document{
		RecordCount: len(records),
		Fields:      fields,
		Records:     records,
		Checksum:    "sha256:" + hex.EncodeToString(sum[:]),
	}, nil
}

func unwrap(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range envelopeKeys {
			if items, ok := v[key].([]any); ok {
				return items, nil
			}
		}
		return []any{v}, nil
	default:
		return nil, fmt.Errorf("failed to parse payload: expected JSON object or array, got %s", kind(raw))
	}
}

func normalizeObject(obj map[string]any) map[string]any {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// keys that collide after normalisation keep the first value in sorted order
	out := make(map[string]any, len(obj))
	for _, k := range keys {
		v := obj[k]
		if v == nil {
			continue
		}
		key := SnakeCase(k)
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return normalizeObject(t)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return v
	}
}

// SnakeCase converts keys such as "userId", "User Name" or "HTTPStatus" to
// "user_id", "user_name" and "http_status".
func SnakeCase(s string) string {
	runes := []rune(strings.TrimSpace(s))
	var b strings.Builder
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && needsBreak(runes, i) {
				writeUnderscore(&b)
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			writeUnderscore(&b)
		}
	}
	return strings.Trim(b.String(), "_")
}

// needsBreak reports whether the upper-case rune at i starts a new word.
func needsBreak(runes []rune, i int) bool {
	prev := runes[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	if unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
		return true
	}
	return false
}

func writeUnderscore(b *strings.Builder) {
	if s := b.String(); s != "" && !strings.HasSuffix(s, "_") {
		b.WriteByte('_')
	}
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
