package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/platform/validate"
)

// ErrInvalid marks a rejected doctor record.
var ErrInvalid = errors.New("invalid doctor")

const (
	defaultOpeningHour = 10
	defaultClosingHour = 21
)

type Service struct {
	doctors DoctorRepository
	clinic  *time.Location
}

// NewService returns a directory whose doctors without a timezone use clinic.
func NewService(doctors DoctorRepository, clinic *time.Location) *Service {
	if clinic == nil {
		clinic = time.UTC
	}
	return &Service{doctors: doctors, clinic: clinic}
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	if d.Name == "" || d.Speciality == "" {
		return fmt.Errorf("%w: name and speciality are required", ErrInvalid)
	}
	if err := validate.Email(d.Email); err != nil {
		return fmt.Errorf("%w: email %q", ErrInvalid, d.Email)
	}
	if d.Fees.IsNegative() {
		return fmt.Errorf("%w: fees must not be negative", ErrInvalid)
	}
	if d.OpeningHour == 0 && d.ClosingHour == 0 {
		d.OpeningHour, d.ClosingHour = defaultOpeningHour, defaultClosingHour
	}
	if d.OpeningHour < 0 || d.ClosingHour > 24 || d.OpeningHour >= d.ClosingHour {
		return fmt.Errorf("%w: working hours %d-%d", ErrInvalid, d.OpeningHour, d.ClosingHour)
	}
	if d.Timezone != "" {
		if _, err := time.LoadLocation(d.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q", ErrInvalid, d.Timezone)
		}
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, speciality string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, strings.TrimSpace(speciality), limit, offset)
}

// SetAvailability toggles whether the doctor accepts new bookings. Existing
// appointments are untouched.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Doctor, error) {
	return s.doctors.SetAvailability(ctx, id, available)
}

// Location resolves the doctor's timezone, falling back to the clinic zone.
func (s *Service) Location(d *Doctor) *time.Location {
	if d.Timezone == "" {
		return s.clinic
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return s.clinic
	}
	return loc
}
