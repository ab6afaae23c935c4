package schedule

import (
	"time"
)

const (
	DefaultTimezone       = "Asia/Kolkata"
	DefaultSlotWidth      = 15 * time.Minute
	DefaultBuffer         = 5 * time.Minute
	DefaultMaxAdvanceDays = 7
)

// SlotPolicy is the clinic-wide slot grid.
type SlotPolicy struct {
	SlotWidth time.Duration
	// Buffer is the gap the generator leaves between consecutive slots.
	Buffer time.Duration
	// MaxAdvanceDays limits how far ahead a date may be booked. Zero means no limit.
	MaxAdvanceDays int
}

func DefaultSlotPolicy() SlotPolicy {
	return SlotPolicy{
		SlotWidth:      DefaultSlotWidth,
		Buffer:         DefaultBuffer,
		MaxAdvanceDays: DefaultMaxAdvanceDays,
	}
}

func (p SlotPolicy) Validate() error {
	if p.SlotWidth <= 0 {
		return configErr("policy.slot_minutes", "must be positive")
	}
	if p.SlotWidth%time.Minute != 0 {
		return configErr("policy.slot_minutes", "must be whole minutes")
	}
	if p.Buffer < 0 {
		return configErr("policy.buffer_minutes", "must not be negative")
	}
	if p.MaxAdvanceDays < 0 {
		return configErr("policy.max_advance_days", "must not be negative")
	}
	return nil
}

// Step is the distance between consecutive generated slot starts.
func (p SlotPolicy) Step() time.Duration { return p.SlotWidth + p.Buffer }

// ServiceSpec describes one bookable service.
type ServiceSpec struct {
	ID           string
	Name         string
	Duration     time.Duration
	BeforeBuffer time.Duration
	AfterBuffer  time.Duration
}

func (s ServiceSpec) Validate() error {
	field := "services." + s.ID
	if s.ID == "" {
		return configErr("services", "service id is required")
	}
	if s.Duration <= 0 {
		return configErr(field+".duration_minutes", "must be positive")
	}
	if s.BeforeBuffer < 0 || s.AfterBuffer < 0 {
		return configErr(field, "buffers must not be negative")
	}
	return nil
}

// RequiredSlots is the number of base slots the service spans, rounded up.
func (s ServiceSpec) RequiredSlots(width time.Duration) int {
	if width <= 0 || s.Duration <= 0 {
		return 0
	}
	n := s.Duration / width
	if s.Duration%width != 0 {
		n++
	}
	return int(n)
}

// ReservedDuration is the slot-aligned length actually held for the service.
func (s ServiceSpec) ReservedDuration(width time.Duration) time.Duration {
	return time.Duration(s.RequiredSlots(width)) * width
}

func (s ServiceSpec) HasBuffers() bool {
	return s.BeforeBuffer > 0 || s.AfterBuffer > 0
}

// Clinic is the validated, typed configuration of one clinic.
type Clinic struct {
	ID       string
	Name     string
	Location *time.Location
	Hours    WeeklyScheduleConfig
	Policy   SlotPolicy
}

// LoadLocation resolves an IANA zone name; blank means DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, configErr("timezone", "unknown time zone %q", name)
	}
	return loc, nil
}

func (c Clinic) Validate() error {
	if c.ID == "" {
		return configErr("clinic.id", "is required")
	}
	if c.Location == nil {
		return configErr("clinic."+c.ID+".timezone", "is required")
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	return c.Hours.Validate()
}

// Today is the clinic-local calendar date at instant now.
func (c Clinic) Today(now time.Time) Date {
	return DateOf(now.In(c.Location))
}

// LocalDate is the clinic-local calendar date of instant t.
func (c Clinic) LocalDate(t time.Time) Date {
	return DateOf(t.In(c.Location))
}

// Bookable reports whether date lies between today and the advance horizon.
func (c Clinic) Bookable(date Date, now time.Time) bool {
	today := c.Today(now)
	if date.Before(today) {
		return false
	}
	if c.Policy.MaxAdvanceDays > 0 && today.DaysUntil(date) > c.Policy.MaxAdvanceDays {
		return false
	}
	return true
}
