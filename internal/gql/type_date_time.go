package gql

import (
	"fmt"
	"time"
)

// DateTime is the DateTime scalar. Values are always rendered in UTC.
type DateTime struct {
	time.Time
}

func (DateTime) ImplementsGraphQLType(name string) bool {
	return name == "DateTime"
}

// UnmarshalGraphQL accepts RFC3339 strings, with or without fractional seconds
func (t *DateTime) UnmarshalGraphQL(input interface{}) error {
	switch input := input.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, input)
		if err != nil {
			return fmt.Errorf("failed to parse DateTime %q: %w", input, err)
		}
		t.Time = parsed.UTC()
		return nil
	case time.Time:
		t.Time = input.UTC()
		return nil
	default:
		return fmt.Errorf("invalid DateTime type: %T", input)
	}
}

func (t DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

func newDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC()}
}

// newOptionalDateTime returns nil for the zero time
func newOptionalDateTime(t time.Time) *DateTime {
	if t.IsZero() {
		return nil
	}
	dt := newDateTime(t)
	return &dt
}

// newDateTimeFromUnix converts the epoch seconds stored on run records
func newDateTimeFromUnix(sec int64) DateTime {
	return newDateTime(time.Unix(sec, 0))
}

func newDateTimeFromUnixPtr(sec *int64) *DateTime {
	if sec == nil {
		return nil
	}
	dt := newDateTimeFromUnix(*sec)
	return &dt
}
