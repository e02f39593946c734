package imgdate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnparsableDate is returned when a date text cannot be understood.
var ErrUnparsableDate = errors.New("could not understand date")

// A DateParser resolves free-form date text relative to now.
type DateParser interface {
	Parse(text string, now time.Time) (time.Time, error)
}

// layouts are tried before natural language rules. yearless layouts are
// resolved to the most recent matching date.
var (
	layouts = []string{
		"2006-01-02",
		"2006:01:02",
		"2006/01/02",
		"2006.01.02",
		"20060102",
		"01/02/2006",
		"Jan 2 2006",
		"Jan 2, 2006",
		"January 2 2006",
		"January 2, 2006",
		"2 Jan 2006",
		"2 January 2006",
		"Jan 2006",
		"January 2006",
		DateLayout,
	}
	yearlessLayouts = []string{
		"Jan 2",
		"January 2",
		"2 Jan",
		"2 January",
		"01/02",
	}
)

var holidays = map[string]struct {
	month time.Month
	day   int
}{
	"new year":       {time.January, 1},
	"new year's":     {time.January, 1},
	"new year's day": {time.January, 1},
	"valentine":      {time.February, 14},
	"valentine's":    {time.February, 14},
	"halloween":      {time.October, 31},
	"christmas eve":  {time.December, 24},
	"christmas":      {time.December, 25},
	"new year's eve": {time.December, 31},
}

var (
	holidayPattern = regexp.MustCompile(`^([a-z' ]+?)(?:\s+day)?(?:\s+(\d{4}))?$`)
	futurePattern  = regexp.MustCompile(`(?i)\b(in|next|tomorrow|after|later|from now)\b`)
	weekdayPattern = regexp.MustCompile(`(?i)\b(mon|tues?|wed(nes)?|thu(rs)?|fri|sat(ur)?|sun)(day)?\b`)
	yearPattern    = regexp.MustCompile(`\b\d{4}\b`)
)

// NaturalDateParser understands numeric and month-name dates, a few
// holidays and English relative expressions such as "yesterday" or
// "2 months ago". Dates without a year are taken from the past.
type NaturalDateParser struct {
	w *when.Parser
}

var _ DateParser = (*NaturalDateParser)(nil)

// NewDateParser returns a NaturalDateParser.
func NewDateParser() *NaturalDateParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &NaturalDateParser{w}
}

// Parse implements DateParser.
func (p *NaturalDateParser) Parse(text string, now time.Time) (time.Time, error) {
	s := strings.Join(strings.Fields(text), " ")
	if s == "" {
		return time.Time{}, ErrUnparsableDate
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return lastOccurrence(t.Month(), t.Day(), now), nil
		}
	}
	if t, ok := holiday(strings.ToLower(s), now); ok {
		return t, nil
	}

	r, err := p.w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnparsableDate, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsableDate, text)
	}
	t := r.Time
	if t.After(now) && !futurePattern.MatchString(s) && !yearPattern.MatchString(s) {
		if weekdayPattern.MatchString(s) && t.Sub(now) <= 7*24*time.Hour {
			t = t.AddDate(0, 0, -7)
		} else {
			t = past(t, now)
		}
	}
	return t, nil
}

// lastOccurrence returns the latest date on or before now falling on the
// given month and day.
func lastOccurrence(m time.Month, day int, now time.Time) time.Time {
	for y := now.Year(); ; y-- {
		if t := time.Date(y, m, day, 0, 0, 0, 0, now.Location()); t.Day() == day && !t.After(now) {
			return t
		}
	}
}

// past moves a date after now back by whole years, skipping years in which
// its day does not exist.
func past(t, now time.Time) time.Time {
	for y := t.Year() - 1; t.After(now); y-- {
		if d := time.Date(y, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()); d.Day() == t.Day() {
			t = d
		}
	}
	return t
}

func holiday(s string, now time.Time) (time.Time, bool) {
	m := holidayPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	h, ok := holidays[strings.TrimSpace(m[1])]
	if !ok {
		return time.Time{}, false
	}
	if m[2] != "" {
		year, _ := strconv.Atoi(m[2])
		return time.Date(year, h.month, h.day, 0, 0, 0, 0, now.Location()), true
	}
	return past(time.Date(now.Year(), h.month, h.day, 0, 0, 0, 0, now.Location()), now), true
}
