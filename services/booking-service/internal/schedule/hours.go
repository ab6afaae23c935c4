package schedule

import (
	"strings"
	"time"
)

// Lunch is a daily break that splits an open day into two blocks.
type Lunch struct {
	Enabled bool
	Start   Clock
	End     Clock
}

// DayHours is one weekday's opening interval [Start, End) in local time.
type DayHours struct {
	Closed bool
	Start  Clock
	End    Clock
	Lunch  Lunch
}

// Block is a contiguous open interval [Start, End) of local time on one date.
type Block struct {
	Start Clock
	End   Clock
}

// WeeklyScheduleConfig holds a clinic's opening hours. Days is indexed by time.Weekday.
type WeeklyScheduleConfig struct {
	Days        [7]DayHours
	ClosedDates map[Date]string
}

// NewWeeklySchedule builds the common clinic shape: the same hours Monday to
// Friday, an optional Saturday (nil means closed) and a Sunday that either
// follows the weekday hours or is closed. Lunch applies to the weekday hours
// only; a Saturday break must be set on the Saturday value itself.
func NewWeeklySchedule(weekdays DayHours, saturday *DayHours, sundayClosed bool, lunch Lunch) WeeklyScheduleConfig {
	weekdays.Lunch = lunch
	var cfg WeeklyScheduleConfig
	for d := time.Monday; d <= time.Friday; d++ {
		cfg.Days[d] = weekdays
	}
	if saturday != nil {
		cfg.Days[time.Saturday] = *saturday
	} else {
		cfg.Days[time.Saturday] = DayHours{Closed: true}
	}
	if sundayClosed {
		cfg.Days[time.Sunday] = DayHours{Closed: true}
	} else {
		cfg.Days[time.Sunday] = weekdays
	}
	return cfg
}

// Close marks date as closed for the given reason.
func (c *WeeklyScheduleConfig) Close(date Date, reason string) {
	if c.ClosedDates == nil {
		c.ClosedDates = map[Date]string{}
	}
	c.ClosedDates[date] = reason
}

// ClosedOn reports whether date is an explicit closed date, and why.
func (c WeeklyScheduleConfig) ClosedOn(date Date) (string, bool) {
	reason, ok := c.ClosedDates[date]
	return reason, ok
}

func (c WeeklyScheduleConfig) Validate() error {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if err := c.Days[d].validate(dayField(d)); err != nil {
			return err
		}
	}
	for date := range c.ClosedDates {
		if DateOf(time.Date(date.Year, date.Month, date.Day, 12, 0, 0, 0, time.UTC)) != date {
			return configErr("closed_dates", "invalid date %s", date)
		}
	}
	return nil
}

// Blocks resolves the open local-time blocks for date, in order. A closed
// date or closed weekday yields no blocks and no error.
func (c WeeklyScheduleConfig) Blocks(date Date) ([]Block, error) {
	if _, closed := c.ClosedOn(date); closed {
		return nil, nil
	}
	wd := date.Weekday()
	day := c.Days[wd]
	if day.Closed {
		return nil, nil
	}
	if err := day.validate(dayField(wd)); err != nil {
		return nil, err
	}
	if !day.Lunch.Enabled {
		return []Block{{Start: day.Start, End: day.End}}, nil
	}

	blocks := make([]Block, 0, 2)
	if day.Start < day.Lunch.Start {
		blocks = append(blocks, Block{Start: day.Start, End: day.Lunch.Start})
	}
	if day.Lunch.End < day.End {
		blocks = append(blocks, Block{Start: day.Lunch.End, End: day.End})
	}
	return blocks, nil
}

func (h DayHours) validate(field string) error {
	if h.Closed {
		return nil
	}
	if !h.Start.valid() || !h.End.valid() {
		return configErr(field, "hours %s-%s out of range", h.Start, h.End)
	}
	if h.End <= h.Start {
		return configErr(field, "end %s must be after start %s", h.End, h.Start)
	}
	if !h.Lunch.Enabled {
		return nil
	}
	l := h.Lunch
	if l.End <= l.Start {
		return configErr(field+".lunch", "end %s must be after start %s", l.End, l.Start)
	}
	if l.Start < h.Start || l.End > h.End {
		return configErr(field+".lunch", "%s-%s lies outside opening hours %s-%s", l.Start, l.End, h.Start, h.End)
	}
	if l.Start == h.Start && l.End == h.End {
		return configErr(field+".lunch", "covers the whole day")
	}
	return nil
}

func dayField(d time.Weekday) string {
	return "hours." + strings.ToLower(d.String())
}
