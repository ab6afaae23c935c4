package reference

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"github.com/spf13/viper"
)

type fileConfig struct {
	Clinics []fileClinic `mapstructure:"clinics"`
}

type fileClinic struct {
	ID       string        `mapstructure:"id"`
	Name     string        `mapstructure:"name"`
	Timezone string        `mapstructure:"timezone"`
	Hours    fileHours     `mapstructure:"hours"`
	Policy   filePolicy    `mapstructure:"policy"`
	Doctors  []fileDoctor  `mapstructure:"doctors"`
	Services []fileService `mapstructure:"services"`
}

type fileHours struct {
	Weekdays     fileDay            `mapstructure:"weekdays"`
	Saturday     *fileDay           `mapstructure:"saturday"`
	SundayClosed *bool              `mapstructure:"sunday_closed"`
	Lunch        *fileRange         `mapstructure:"lunch"`
	Days         map[string]fileDay `mapstructure:"days"`
	ClosedDates  []fileClosedDate   `mapstructure:"closed_dates"`
}

type fileDay struct {
	Closed bool       `mapstructure:"closed"`
	Start  string     `mapstructure:"start"`
	End    string     `mapstructure:"end"`
	Lunch  *fileRange `mapstructure:"lunch"`
}

type fileRange struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

type fileClosedDate struct {
	// YAML may hand an unquoted date over as a time.Time.
	Date   any    `mapstructure:"date"`
	Reason string `mapstructure:"reason"`
}

type filePolicy struct {
	SlotMinutes    int  `mapstructure:"slot_minutes"`
	BufferMinutes  *int `mapstructure:"buffer_minutes"`
	MaxAdvanceDays *int `mapstructure:"max_advance_days"`
}

type fileDoctor struct {
	ID             string `mapstructure:"id"`
	Name           string `mapstructure:"name"`
	Specialization string `mapstructure:"specialization"`
	Active         *bool  `mapstructure:"active"`
}

type fileService struct {
	ID                  string `mapstructure:"id"`
	Name                string `mapstructure:"name"`
	DurationMinutes     int    `mapstructure:"duration_minutes"`
	BeforeBufferMinutes int    `mapstructure:"before_buffer_minutes"`
	AfterBufferMinutes  int    `mapstructure:"after_buffer_minutes"`
}

// LoadFile reads a clinic reference file (YAML, JSON or TOML, by extension).
func LoadFile(path string) (*Static, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}
	return decode(v)
}

// Load reads a clinic reference document of the given format ("yaml", "json", ...).
func Load(r io.Reader, format string) (*Static, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read reference data: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Static, error) {
	var raw fileConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decode reference data: %w", err)
	}
	if len(raw.Clinics) == 0 {
		return nil, &schedule.ConfigError{Field: "clinics", Reason: "at least one clinic is required"}
	}

	var (
		clinics  []schedule.Clinic
		doctors  []Doctor
		services = map[string][]schedule.ServiceSpec{}
	)
	for _, fc := range raw.Clinics {
		c, err := fc.clinic()
		if err != nil {
			return nil, err
		}
		clinics = append(clinics, c)
		for _, fd := range fc.Doctors {
			active := fd.Active == nil || *fd.Active
			doctors = append(doctors, Doctor{ID: fd.ID, ClinicID: fc.ID, Name: fd.Name, Specialization: fd.Specialization, Active: active})
		}
		specs := make([]schedule.ServiceSpec, 0, len(fc.Services))
		for _, fs := range fc.Services {
			specs = append(specs, schedule.ServiceSpec{
				ID:           fs.ID,
				Name:         fs.Name,
				Duration:     minutes(fs.DurationMinutes),
				BeforeBuffer: minutes(fs.BeforeBufferMinutes),
				AfterBuffer:  minutes(fs.AfterBufferMinutes),
			})
		}
		services[fc.ID] = specs
	}
	return NewStatic(clinics, doctors, services)
}

func (fc fileClinic) clinic() (schedule.Clinic, error) {
	field := "clinics." + fc.ID
	loc, err := schedule.LoadLocation(fc.Timezone)
	if err != nil {
		return schedule.Clinic{}, err
	}

	weekdays, err := fc.Hours.Weekdays.dayHours(field + ".hours.weekdays")
	if err != nil {
		return schedule.Clinic{}, err
	}
	var saturday *schedule.DayHours
	if fc.Hours.Saturday != nil {
		sat, err := fc.Hours.Saturday.dayHours(field + ".hours.saturday")
		if err != nil {
			return schedule.Clinic{}, err
		}
		saturday = &sat
	}
	var lunch schedule.Lunch
	if fc.Hours.Lunch != nil {
		if lunch, err = fc.Hours.Lunch.lunch(field + ".hours.lunch"); err != nil {
			return schedule.Clinic{}, err
		}
	}
	sundayClosed := fc.Hours.SundayClosed == nil || *fc.Hours.SundayClosed
	hours := schedule.NewWeeklySchedule(weekdays, saturday, sundayClosed, lunch)

	for name, fd := range fc.Hours.Days {
		wd, ok := parseWeekday(name)
		if !ok {
			return schedule.Clinic{}, &schedule.ConfigError{Field: field + ".hours.days", Reason: fmt.Sprintf("unknown weekday %q", name)}
		}
		day, err := fd.dayHours(field + ".hours.days." + name)
		if err != nil {
			return schedule.Clinic{}, err
		}
		hours.Days[wd] = day
	}
	for _, cd := range fc.Hours.ClosedDates {
		date, err := closedDate(cd.Date)
		if err != nil {
			return schedule.Clinic{}, &schedule.ConfigError{Field: field + ".hours.closed_dates", Reason: err.Error()}
		}
		hours.Close(date, cd.Reason)
	}

	policy := schedule.DefaultSlotPolicy()
	if fc.Policy.SlotMinutes != 0 {
		policy.SlotWidth = minutes(fc.Policy.SlotMinutes)
	}
	if fc.Policy.BufferMinutes != nil {
		policy.Buffer = minutes(*fc.Policy.BufferMinutes)
	}
	if fc.Policy.MaxAdvanceDays != nil {
		policy.MaxAdvanceDays = *fc.Policy.MaxAdvanceDays
	}

	return schedule.Clinic{ID: fc.ID, Name: fc.Name, Location: loc, Hours: hours, Policy: policy}, nil
}

func (fd fileDay) dayHours(field string) (schedule.DayHours, error) {
	if fd.Closed {
		return schedule.DayHours{Closed: true}, nil
	}
	start, err := schedule.ParseClock(fd.Start)
	if err != nil {
		return schedule.DayHours{}, &schedule.ConfigError{Field: field + ".start", Reason: err.Error()}
	}
	end, err := schedule.ParseClock(fd.End)
	if err != nil {
		return schedule.DayHours{}, &schedule.ConfigError{Field: field + ".end", Reason: err.Error()}
	}
	day := schedule.DayHours{Start: start, End: end}
	if fd.Lunch != nil {
		if day.Lunch, err = fd.Lunch.lunch(field + ".lunch"); err != nil {
			return schedule.DayHours{}, err
		}
	}
	return day, nil
}

func (fr fileRange) lunch(field string) (schedule.Lunch, error) {
	start, err := schedule.ParseClock(fr.Start)
	if err != nil {
		return schedule.Lunch{}, &schedule.ConfigError{Field: field + ".start", Reason: err.Error()}
	}
	end, err := schedule.ParseClock(fr.End)
	if err != nil {
		return schedule.Lunch{}, &schedule.ConfigError{Field: field + ".end", Reason: err.Error()}
	}
	return schedule.Lunch{Enabled: true, Start: start, End: end}, nil
}

func closedDate(v any) (schedule.Date, error) {
	switch d := v.(type) {
	case string:
		return schedule.ParseDate(d)
	case time.Time:
		return schedule.DateOf(d), nil
	default:
		return schedule.Date{}, fmt.Errorf("invalid date %v", v)
	}
}

func parseWeekday(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, true
		}
	}
	return 0, false
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }
