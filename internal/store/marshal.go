package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/roach88/lattice/internal/model"
)

// Timestamps are stored as unix nanoseconds so optimistic-concurrency
// comparisons are exact. Zero times are stored as 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// next_run_time is REAL unix seconds, the format external schedulers use.
func toSeconds(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return float64(t.UnixNano()) / 1e9
}

func fromSeconds(f sql.NullFloat64) time.Time {
	if !f.Valid {
		return time.Time{}
	}
	sec, frac := math.Modf(f.Float64)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3).UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeAttrs serialises the full record for the attrs column.
func encodeAttrs(e model.Entity) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", model.NewSerializationError(e.Meta().ID, err)
	}
	return string(data), nil
}

func decodeAttrs(data string, e model.Entity) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), e); err != nil {
		return model.NewSerializationError(e.Meta().ID, err)
	}
	return nil
}

// fieldArg converts a model.Field value pointer to a driver argument.
func fieldArg(v any) (any, error) {
	switch p := v.(type) {
	case *string:
		return *p, nil
	case *int:
		return int64(*p), nil
	case *int64:
		return *p, nil
	case *bool:
		return *p, nil
	case *time.Time:
		return toNanos(*p), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", v)
	}
}

// fieldDest returns a scan destination for a model.Field value pointer and
// a function that copies the scanned value into the field.
func fieldDest(v any) (any, func(), error) {
	switch p := v.(type) {
	case *string:
		var ns sql.NullString
		return &ns, func() { *p = ns.String }, nil
	case *int:
		var n sql.NullInt64
		return &n, func() { *p = int(n.Int64) }, nil
	case *int64:
		var n sql.NullInt64
		return &n, func() { *p = n.Int64 }, nil
	case *bool:
		var b sql.NullBool
		return &b, func() { *p = b.Bool }, nil
	case *time.Time:
		var n sql.NullInt64
		return &n, func() { *p = fromNanos(n.Int64) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported column type %T", v)
	}
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func quoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = quote(id)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
