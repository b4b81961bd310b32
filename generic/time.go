package generic

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day (every ledger in this system is day-granular)
// =============================================================================

// DateLayout is the persisted and wire format of a Date.
const DateLayout = "2006-01-02"

type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date { return NewDate(t.Year(), t.Month(), t.Day()) }

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// MustParseDate panics on malformed input. Tests and fixtures only.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) IsZero() bool   { return d.Time.IsZero() }
func (d Date) String() string { return d.Time.Format(DateLayout) }

// =============================================================================
// PERIOD - Inclusive date range used by attendance reports and payroll
// =============================================================================

type Period struct {
	From Date
	To   Date
}

// Contains returns true if d is within [From, To].
func (p Period) Contains(d Date) bool {
	return !d.Before(p.From) && !d.After(p.To)
}

// Validate rejects periods whose end precedes their start.
func (p Period) Validate(op string) error {
	if p.From.IsZero() || p.To.IsZero() {
		return &ValidationError{Op: op, Field: "period", Reason: "both ends are required"}
	}
	if p.To.Before(p.From) {
		return &ValidationError{Op: op, Field: "period", Value: p.String(), Reason: "end before start"}
	}
	return nil
}

func (p Period) String() string {
	return "[" + p.From.String() + ", " + p.To.String() + "]"
}

// =============================================================================
// SQL MAPPING - Dates persist as YYYY-MM-DD text
// =============================================================================

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		return d.parseInto(v)
	case []byte:
		return d.parseInto(string(v))
	case time.Time:
		*d = DateOf(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) parseInto(s string) error {
	if s == "" {
		*d = Date{}
		return nil
	}
	// Tolerate full timestamps written by older tools.
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return "", nil
	}
	return d.String(), nil
}
