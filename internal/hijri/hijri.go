// Package hijri converts Gregorian dates to the arithmetical Islamic calendar.
//
// The conversion uses the tabular (civil) calendar: 1 Muharram 1 AH is
// Julian Day Number 1948440 (16 July 622 Julian, 19 July 622 proleptic
// Gregorian) and years 2, 5, 7, 10, 13, 16, 18, 21, 24, 26 and 29 of every
// 30-year cycle are leap years. Months alternate 30 and 29 days, with the
// last month gaining a day in leap years. The result never depends on
// observation or location, so repeated runs always agree.
package hijri

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDate is returned for dates the converter cannot represent.
var ErrInvalidDate = errors.New("invalid date")

const (
	epochJDN = 1948440 // 1 Muharram 1 AH
	maxYear  = 9999
)

// Date is a day in the Islamic calendar.
type Date struct {
	Year  int
	Month int // 1-12
	Day   int // 1-30
}

// MonthIndex numbers lunar months continuously, so consecutive months differ by one.
func (d Date) MonthIndex() int {
	return d.Year*12 + d.Month - 1
}

// SameMonth reports whether both dates fall in the same lunar month.
func (d Date) SameMonth(o Date) bool {
	return d.Year == o.Year && d.Month == o.Month
}

func (d Date) String() string {
	return fmt.Sprintf("%d %s %d AH", d.Day, MonthName(d.Month), d.Year)
}

var monthNames = [12]string{
	"Muharram", "Safar", "Rabi al-Awwal", "Rabi al-Thani",
	"Jumada al-Ula", "Jumada al-Akhirah", "Rajab", "Shaban",
	"Ramadan", "Shawwal", "Dhu al-Qadah", "Dhu al-Hijjah",
}

// MonthName returns the transliterated name of a lunar month.
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return fmt.Sprintf("month %d", m)
	}
	return monthNames[m-1]
}

// FromGregorian converts the calendar date of t (in t's own location).
func FromGregorian(t time.Time) (Date, error) {
	if t.IsZero() {
		return Date{}, fmt.Errorf("%w: zero time", ErrInvalidDate)
	}
	y, m, d := t.Date()
	if y > maxYear {
		return Date{}, fmt.Errorf("%w: year %d out of range", ErrInvalidDate, y)
	}
	jdn := gregorianToJDN(y, int(m), d)
	if jdn < epochJDN {
		return Date{}, fmt.Errorf("%w: %s precedes the Hijri epoch", ErrInvalidDate, t.Format(time.DateOnly))
	}
	return fromJDN(jdn), nil
}

// ToGregorian returns midnight UTC of the Gregorian day matching d.
func ToGregorian(d Date) (time.Time, error) {
	if d.Year < 1 || d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > monthLength(d.Year, d.Month) {
		return time.Time{}, fmt.Errorf("%w: %d-%02d-%02d AH", ErrInvalidDate, d.Year, d.Month, d.Day)
	}
	y, m, day := jdnToGregorian(toJDN(d))
	return time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC), nil
}

// ParseGregorian accepts ISO-8601 dates (2006-01-02) and the dotted form
// used on bank statements (02.01.2006).
func ParseGregorian(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, "02.01.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			if _, err := FromGregorian(t); err != nil {
				return time.Time{}, err
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func isLeap(year int) bool {
	return (14+11*year)%30 < 11
}

func monthLength(year, month int) int {
	if month == 12 && isLeap(year) {
		return 30
	}
	if month%2 == 1 {
		return 30
	}
	return 29
}

func toJDN(d Date) int {
	return d.Day + (59*(d.Month-1)+1)/2 + (d.Year-1)*354 + (3+11*d.Year)/30 + epochJDN - 1
}

func fromJDN(jdn int) Date {
	year := (30*(jdn-epochJDN) + 10646) / 10631
	month := ceilDiv((jdn-(29+toJDN(Date{Year: year, Month: 1, Day: 1})))*2, 59) + 1
	if month > 12 {
		month = 12
	}
	day := jdn - toJDN(Date{Year: year, Month: month, Day: 1}) + 1
	return Date{Year: year, Month: month, Day: day}
}

func gregorianToJDN(y, m, d int) int {
	a := (14 - m) / 12
	yy := y + 4800 - a
	mm := m + 12*a - 3
	return d + (153*mm+2)/5 + 365*yy + yy/4 - yy/100 + yy/400 - 32045
}

func jdnToGregorian(jdn int) (int, int, int) {
	a := jdn + 32044
	b := (4*a + 3) / 146097
	c := a - 146097*b/4
	d := (4*c + 3) / 1461
	e := c - 1461*d/4
	m := (5*e + 2) / 153
	return 100*b + d - 4800 + m/10, m + 3 - 12*(m/10), e - (153*m+2)/5 + 1
}

// ceilDiv rounds towards positive infinity; b must be positive.
func ceilDiv(a, b int) int {
	if a > 0 {
		return (a + b - 1) / b
	}
	return a / b
}
