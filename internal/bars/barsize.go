package bars

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the time unit of a bar size.
type Unit int

const (
	Second Unit = iota + 1
	Minute
	Hour
	Day
	Week
	Month
)

func (u Unit) String() string {
	switch u {
	case Second:
		return "second"
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	}
	return "unknown"
}

// units maps singular unit names and the peer's abbreviations to a Unit.
var units = map[string]Unit{
	"sec":    Second,
	"second": Second,
	"min":    Minute,
	"minute": Minute,
	"hour":   Hour,
	"day":    Day,
	"week":   Week,
	"month":  Month,
}

// BarSize is a parsed bar bucket width such as "1 hour" or "5 mins".
type BarSize struct {
	Quantity int
	Unit     Unit
}

// ParseBarSize parses "N unit". Plural and abbreviated units are accepted
// ("secs", "mins", "hours").
func ParseBarSize(s string) (BarSize, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return BarSize{}, fmt.Errorf("%w: %q", ErrUnsupportedBarSize, s)
	}

	n, err := strconv.Atoi(parts[0])
	if err != nil || n <= 0 {
		return BarSize{}, fmt.Errorf("%w: %q", ErrUnsupportedBarSize, s)
	}

	name := strings.ToLower(parts[1])
	unit, ok := units[name]
	if !ok {
		unit, ok = units[strings.TrimSuffix(name, "s")]
	}
	if !ok {
		return BarSize{}, fmt.Errorf("%w: unit %q", ErrUnsupportedBarSize, parts[1])
	}

	return BarSize{Quantity: n, Unit: unit}, nil
}

// Next returns the timestamp one bar after t.
func (b BarSize) Next(t time.Time) time.Time {
	n := b.Quantity
	switch b.Unit {
	case Second:
		return t.Add(time.Duration(n) * time.Second)
	case Minute:
		return t.Add(time.Duration(n) * time.Minute)
	case Hour:
		return t.Add(time.Duration(n) * time.Hour)
	case Day:
		return t.AddDate(0, 0, n)
	case Week:
		return t.AddDate(0, 0, 7*n)
	case Month:
		return t.AddDate(0, n, 0)
	}
	return t
}

func (b BarSize) String() string {
	unit := b.Unit.String()
	if b.Quantity != 1 {
		unit += "s"
	}
	return strconv.Itoa(b.Quantity) + " " + unit
}
