package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/data-pipeline/internal/models"
)

const samplePayload = `{
  "data": [
    {"userId": 1, "Full Name": "  Ada Lovelace ", "email": null, "address": {"zipCode": "12345 "}},
    {"userId": 2, "Full Name": "Alan Turing", "tags": ["  math", null, "logic"]}
  ],
  "page": 1
}`

func TestProcessIsDeterministic(t *testing.T) {
	first, err := Process(models.Payload(samplePayload))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Process(models.Payload(samplePayload))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestProcessNormalizesRecords(t *testing.T) {
	out, err := Process(models.Payload(samplePayload))
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(out, &doc))

	assert.Equal(t, 2, doc.RecordCount)
	assert.Equal(t, []string{"address", "full_name", "tags", "user_id"}, doc.Fields)
	require.Len(t, doc.Records, 2)

	first := doc.Records[0]
	assert.Equal(t, "Ada Lovelace", first["full_name"])
	assert.NotContains(t, first, "email")
	assert.Equal(t, map[string]any{"zip_code": "12345"}, first["address"])

	second := doc.Records[1]
	assert.Equal(t, []any{"math", "logic"}, second["tags"])
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, doc.Checksum)
}

func TestProcessEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{name: "bare array", payload: `[{"a":1},{"a":2},{"a":3}]`, want: 3},
		{name: "data", payload: `{"data":[{"a":1}]}`, want: 1},
		{name: "results", payload: `{"results":[{"a":1},{"a":2}]}`, want: 2},
		{name: "items", payload: `{"items":[]}`, want: 0},
		{name: "records", payload: `{"records":[{"a":1}]}`, want: 1},
		{name: "single object", payload: `{"a":1,"b":"x"}`, want: 1},
		{name: "data not an array", payload: `{"data":{"a":1}}`, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Normalize(models.Payload(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.RecordCount)
			assert.Len(t, doc.Records, tt.want)
		})
	}
}

func TestProcessRejectsInvalidPayloads(t *testing.T) {
	tests := map[string]string{
		"empty":            ``,
		"whitespace":       "  \n",
		"not json":         `hello world`,
		"scalar":           `42`,
		"array of scalars": `[1, 2, 3]`,
		"trailing data":    `{"a":1} {"b":2}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Process(models.Payload(payload))
			assert.Error(t, err)
		})
	}
}

func TestProcessPreservesNumbers(t *testing.T) {
	out, err := Process(models.Payload(`[{"amount": 12345678901234567890, "ratio": 0.10}]`))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"amount":12345678901234567890`)
	assert.Contains(t, string(out), `"ratio":0.10`)
}

func TestProcessCollidingKeys(t *testing.T) {
	doc, err := Normalize(models.Payload(`{"userId": 1, "user_id": 2}`))
	require.NoError(t, err)
	require.Len(t, doc.Records, 1)
	assert.Len(t, doc.Records[0], 1)
	assert.Contains(t, doc.Records[0], "user_id")
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"userId":       "user_id",
		"UserID":       "user_id",
		"HTTPStatus":   "http_status",
		"Full Name":    "full_name",
		"already_good": "already_good",
		"kebab-case":   "kebab_case",
		"  padded  ":   "padded",
		"v2Endpoint":   "v2_endpoint",
		"__x__":        "x",
	}

	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}
