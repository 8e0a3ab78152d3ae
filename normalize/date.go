package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidDate is returned when a string cannot be read as a meeting date.
var ErrInvalidDate = errors.New("normalize: invalid meeting date")

// Date is a calendar day identifying a meeting. Its ISO form is the
// meeting identifier; the other renderings match filename conventions.
type Date struct {
	Year  int
	Month int
	Day   int
}

// NewDate validates and builds a Date.
func NewDate(year, month, day int) (Date, error) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, month, day)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// ISO renders YYYY-MM-DD.
func (d Date) ISO() string { return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day) }

// Dotted renders MM.DD.YYYY, the agenda filename style.
func (d Date) Dotted() string { return fmt.Sprintf("%02d.%02d.%04d", d.Month, d.Day, d.Year) }

// Underscore renders MM_DD_YYYY, the ordinance and transcript filename suffix.
func (d Date) Underscore() string { return fmt.Sprintf("%02d_%02d_%04d", d.Month, d.Day, d.Year) }

// Dashed renders MM-DD-YYYY.
func (d Date) Dashed() string { return fmt.Sprintf("%02d-%02d-%04d", d.Month, d.Day, d.Year) }

func (d Date) String() string { return d.ISO() }

// MarshalText encodes the date in ISO form.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.ISO()), nil
}

// UnmarshalText accepts any form MeetingDate understands.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := MeetingDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var (
	isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	usDateRe  = regexp.MustCompile(`^(\d{1,2})[._\-/](\d{1,2})[._\-/](\d{4})$`)
)

// MeetingDate parses the month-first spellings used in filenames and
// configuration ("01.09.2024", "1.9.2024", "01_09_2024", "01-09-2024",
// "1/9/2024") as well as ISO "2024-01-09".
func MeetingDate(raw string) (Date, error) {
	if m := isoDateRe.FindStringSubmatch(raw); m != nil {
		return NewDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := usDateRe.FindStringSubmatch(raw); m != nil {
		return NewDate(atoi(m[3]), atoi(m[1]), atoi(m[2]))
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
