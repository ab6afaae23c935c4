package reference

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
)

// Static is an in-memory Catalog built from already-typed records.
type Static struct {
	clinics  map[string]schedule.Clinic
	doctors  map[string]Doctor
	services map[string]map[string]schedule.ServiceSpec
}

// NewStatic validates every record and indexes it. services is keyed by clinic id.
func NewStatic(clinics []schedule.Clinic, doctors []Doctor, services map[string][]schedule.ServiceSpec) (*Static, error) {
	s := &Static{
		clinics:  map[string]schedule.Clinic{},
		doctors:  map[string]Doctor{},
		services: map[string]map[string]schedule.ServiceSpec{},
	}
	for _, c := range clinics {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("clinic %q: %w", c.ID, err)
		}
		if _, dup := s.clinics[c.ID]; dup {
			return nil, &schedule.ConfigError{Field: "clinics", Reason: fmt.Sprintf("duplicate clinic id %q", c.ID)}
		}
		s.clinics[c.ID] = c
	}
	for _, d := range doctors {
		if strings.TrimSpace(d.ID) == "" {
			return nil, &schedule.ConfigError{Field: "doctors", Reason: "doctor id is required"}
		}
		if _, ok := s.clinics[d.ClinicID]; !ok {
			return nil, &schedule.ConfigError{Field: "doctors." + d.ID, Reason: fmt.Sprintf("unknown clinic %q", d.ClinicID)}
		}
		if _, dup := s.doctors[d.ID]; dup {
			return nil, &schedule.ConfigError{Field: "doctors", Reason: fmt.Sprintf("duplicate doctor id %q", d.ID)}
		}
		s.doctors[d.ID] = d
	}
	for clinicID, specs := range services {
		if _, ok := s.clinics[clinicID]; !ok {
			return nil, &schedule.ConfigError{Field: "services", Reason: fmt.Sprintf("unknown clinic %q", clinicID)}
		}
		byID := map[string]schedule.ServiceSpec{}
		for _, spec := range specs {
			if err := spec.Validate(); err != nil {
				return nil, fmt.Errorf("clinic %q: %w", clinicID, err)
			}
			byID[spec.ID] = spec
		}
		s.services[clinicID] = byID
	}
	return s, nil
}

func (s *Static) Clinic(_ context.Context, id string) (schedule.Clinic, error) {
	c, ok := s.clinics[id]
	if !ok {
		return schedule.Clinic{}, &NotFoundError{Kind: "clinic", ID: id}
	}
	return c, nil
}

// ClinicIDs returns every clinic id, sorted.
func (s *Static) ClinicIDs() []string {
	ids := make([]string, 0, len(s.clinics))
	for id := range s.clinics {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Static) Doctor(_ context.Context, id string) (Doctor, error) {
	d, ok := s.doctors[id]
	if !ok {
		return Doctor{}, &NotFoundError{Kind: "doctor", ID: id}
	}
	return d, nil
}

func (s *Static) Doctors(_ context.Context, clinicID string) ([]Doctor, error) {
	if _, ok := s.clinics[clinicID]; !ok {
		return nil, &NotFoundError{Kind: "clinic", ID: clinicID}
	}
	var out []Doctor
	for _, d := range s.doctors {
		if d.ClinicID == clinicID && d.Active {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b Doctor) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Static) Service(_ context.Context, clinicID, serviceID string) (schedule.ServiceSpec, error) {
	spec, ok := s.services[clinicID][serviceID]
	if !ok {
		return schedule.ServiceSpec{}, &NotFoundError{Kind: "service", ID: serviceID}
	}
	return spec, nil
}
