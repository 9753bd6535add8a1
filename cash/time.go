package cash

import (
	"time"
)

// =============================================================================
// BUSINESS DATE - Day-granular date a till and its counts belong to
// =============================================================================

const dateLayout = "2006-01-02"

type BusinessDate struct {
	Time time.Time
}

// Constructors
func NewBusinessDate(year int, month time.Month, day int) BusinessDate {
	return BusinessDate{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func BusinessDateOf(t time.Time) BusinessDate {
	return NewBusinessDate(t.Year(), t.Month(), t.Day())
}

func Today() BusinessDate { return BusinessDateOf(time.Now()) }

func ParseBusinessDate(s string) (BusinessDate, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return BusinessDate{}, &ValidationError{Field: "date", Value: s, Reason: "expected YYYY-MM-DD"}
	}
	return BusinessDateOf(t), nil
}

// Comparison
func (d BusinessDate) Equal(other BusinessDate) bool { return d.Time.Equal(other.Time) }

// Arithmetic
func (d BusinessDate) AddDays(n int) BusinessDate { return BusinessDate{Time: d.Time.AddDate(0, 0, n)} }

func (d BusinessDate) String() string { return d.Time.Format(dateLayout) }
