package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	// Reserve inserts a pending appointment. It fails with ErrSlotTaken when a
	// non-cancelled appointment already holds (DoctorID, SlotDate, SlotTime).
	// The check and the insert are one atomic step.
	Reserve(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus is a compare-and-set: it succeeds only while the stored
	// status is still from, otherwise ErrInvalidState.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	// SetPrescription overwrites the prescription unless the appointment is
	// cancelled (ErrInvalidState).
	SetPrescription(ctx context.Context, id uuid.UUID, text string) (*Appointment, error)
	// ReservedSlots projects the doctor's non-cancelled appointments on the
	// given date keys (all dates when empty).
	ReservedSlots(ctx context.Context, doctorID uuid.UUID, dateKeys []string) (ReservationIndex, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}
