package offset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/klokku/outlook-calendar/internal/utils"
	"github.com/klokku/outlook-calendar/pkg/calendar"
)

// DefaultMarker prefixes an offset directive written into the event text,
// e.g. "Dentist !!-30" is reached 30 minutes before the event starts.
const DefaultMarker = "!!"

// Result is an event with its offset applied. Offset is signed and relative
// to the event start, a zero Offset is never reached.
type Result struct {
	Event   *calendar.Event
	Offset  time.Duration
	Reached bool
}

// Calculator works either with a fixed lead time or with a marker that
// introduces a per-event directive in the description.
type Calculator struct {
	clock     utils.Clock
	leadTime  time.Duration
	marker    string
	directive *regexp.Regexp
}

// NewCalculator reads the configured offset. A value that parses as a
// duration ("00:15:00", "01:30", "15" minutes or "15m") is a lead time,
// anything else is used as the directive marker.
func NewCalculator(offset string, clock utils.Clock) *Calculator {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	offset = strings.TrimSpace(offset)
	if offset == "" {
		offset = DefaultMarker
	}
	if d, err := ParseDuration(offset); err == nil {
		if d < 0 {
			d = -d
		}
		return &Calculator{clock: clock, leadTime: d}
	}
	return &Calculator{
		clock:     clock,
		marker:    offset,
		directive: regexp.MustCompile(regexp.QuoteMeta(offset) + `([+-]?[0-9]{1,2}(?::[0-9]{1,2})?)`),
	}
}

// Apply strips an offset directive from the event description and returns
// the event with its signed offset.
func (c *Calculator) Apply(event calendar.Event) (calendar.Event, time.Duration) {
	if c.directive == nil {
		return event, -c.leadTime
	}
	loc := c.directive.FindStringSubmatchIndex(event.Description)
	if loc == nil {
		return event, 0
	}
	d, err := ParseDuration(event.Description[loc[2]:loc[3]])
	if err != nil {
		return event, 0
	}
	event.Description = strings.TrimSpace(event.Description[:loc[0]] + event.Description[loc[1]:])
	return event, d
}

// Evaluate applies the offset to event against the current time. A nil event
// is never reached.
func (c *Calculator) Evaluate(event *calendar.Event) Result {
	if event == nil {
		return Result{}
	}
	applied, d := c.Apply(*event)
	return Result{
		Event:   &applied,
		Offset:  d,
		Reached: IsReached(applied.Start, d, c.clock.Now()),
	}
}

func IsReached(start time.Time, offset time.Duration, now time.Time) bool {
	if offset == 0 || start.IsZero() {
		return false
	}
	return !now.Before(start.Add(offset))
}

// ParseDuration accepts HH:MM:SS, HH:MM, a plain number of minutes or a Go
// duration string. A leading sign applies to the whole value.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}

	sign := time.Duration(1)
	unsigned := value
	switch value[0] {
	case '-':
		sign = -1
		unsigned = value[1:]
	case '+':
		unsigned = value[1:]
	}

	parts := strings.Split(unsigned, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	numbers := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		numbers[i] = n
	}

	var d time.Duration
	switch len(numbers) {
	case 1:
		d = time.Duration(numbers[0]) * time.Minute
	case 2:
		d = time.Duration(numbers[0])*time.Hour + time.Duration(numbers[1])*time.Minute
	case 3:
		d = time.Duration(numbers[0])*time.Hour + time.Duration(numbers[1])*time.Minute + time.Duration(numbers[2])*time.Second
	}
	return sign * d, nil
}
