package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Instant is an optional point in time. The zero value is unset.
//
// On the JSON boundary it accepts RFC 3339 strings and unix millisecond numbers,
// which is how the clinic's document store writes timestamps.
type Instant struct {
	t     time.Time
	valid bool
}

// At returns a set Instant for t.
func At(t time.Time) Instant {
	return Instant{t: t, valid: true}
}

// FromUnixMilli returns a set Instant for a unix millisecond timestamp.
func FromUnixMilli(ms int64) Instant {
	return At(time.UnixMilli(ms).UTC())
}

// IsSet reports whether the instant carries a value.
func (i Instant) IsSet() bool {
	return i.valid
}

// Time returns the instant, or the zero time when unset.
func (i Instant) Time() time.Time {
	return i.t
}

// Or returns the instant if set, otherwise fallback.
func (i Instant) Or(fallback time.Time) time.Time {
	if i.valid {
		return i.t
	}
	return fallback
}

// MarshalJSON writes RFC 3339 with millisecond precision, or null when unset.
func (i Instant) MarshalJSON() ([]byte, error) {
	if !i.valid {
		return []byte("null"), nil
	}
	return json.Marshal(i.t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// UnmarshalJSON accepts null, an RFC 3339 string or a unix millisecond number.
func (i *Instant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = Instant{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*i = Instant{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("instant: %w", err)
		}
		*i = At(t)
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("instant: invalid timestamp %s", data)
	}
	if math.IsNaN(ms) || ms >= math.MaxInt64 || ms < math.MinInt64 {
		return fmt.Errorf("instant: timestamp %s out of range", data)
	}
	*i = FromUnixMilli(int64(ms))
	return nil
}
