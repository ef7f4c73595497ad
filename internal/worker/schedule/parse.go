package schedule

import (
	"fmt"
	"strings"
	"time"
)

// DateOrder selects which ambiguous date convention is tried first
type DateOrder string

const (
	DayFirst   DateOrder = "day_first"
	MonthFirst DateOrder = "month_first"
)

var dayFirstLayouts = []string{
	"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02.01.2006", "2.1.2006",
	"02/01/06", "2/1/06",
}

var monthFirstLayouts = []string{
	"01/02/2006", "1/2/2006", "01-02-2006", "1-2-2006", "01.02.2006", "1.2.2006",
	"01/02/06", "1/2/06",
}

// unambiguous layouts are tried after both numeric orders
var namedLayouts = []string{
	"2006-01-02", "2006/01/02",
	"2 Jan 2006", "02 Jan 2006", "2 January 2006", "January 2, 2006", "Jan 2, 2006",
	"Monday, 2 January 2006", "Mon, 2 Jan 2006",
}

var timeLayouts = []string{
	"15:04", "15:04:05", "3:04 PM", "3:04PM", "03:04 PM", "3:04:05 PM", "3 PM", "3PM",
}

// Parser turns operator-typed date and time text into an instant in a fixed location
type Parser struct {
	location *time.Location
	order    DateOrder
}

// NewParser creates a parser for the given location and preferred date order
func NewParser(location *time.Location, order DateOrder) *Parser {
	if location == nil {
		location = time.UTC
	}
	if order != MonthFirst {
		order = DayFirst
	}
	return &Parser{location: location, order: order}
}

// Parse combines a date cell and a time cell into one instant.
// Both date orders are tried; the preferred one wins when a value is valid in both.
func (p *Parser) Parse(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.ToUpper(strings.TrimSpace(clock))

	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("date %q and time %q are both required", date, clock)
	}

	d, err := p.parseDate(date)
	if err != nil {
		return time.Time{}, err
	}

	tod, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), tod.Second(), 0, p.location), nil
}

func (p *Parser) parseDate(value string) (time.Time, error) {
	first, second := dayFirstLayouts, monthFirstLayouts
	if p.order == MonthFirst {
		first, second = second, first
	}

	for _, group := range [][]string{first, second, namedLayouts} {
		for _, layout := range group {
			if t, err := time.ParseInLocation(layout, value, p.location); err == nil {
				return t, nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

func parseClock(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", value)
}
