package scheduling

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the single lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// PaymentMethod records how the patient intends to pay. Informational only.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	DoctorID      uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	SlotDate      string          `db:"slot_date" json:"slot_date"`
	SlotTime      string          `db:"slot_time" json:"slot_time"`
	SlotStart     time.Time       `db:"slot_start" json:"slot_start"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"payment_method"`
	Status        Status          `db:"status" json:"status"`
	Prescription  *string         `db:"prescription" json:"prescription,omitempty"`
	VersionID     int             `db:"version_id" json:"version_id"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Key returns the reservation key the appointment holds.
func (a *Appointment) Key() SlotKey {
	return SlotKey{Date: a.SlotDate, Time: a.SlotTime}
}

// HoldsSlot reports whether the appointment counts against the doctor's
// reservation index.
func (a *Appointment) HoldsSlot() bool {
	return a.Status != StatusCancelled
}

// PrescriptionText returns the prescription or "".
func (a *Appointment) PrescriptionText() string {
	if a.Prescription == nil {
		return ""
	}
	return *a.Prescription
}

// ReserveRequest carries the inputs of a reservation.
type ReserveRequest struct {
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	SlotDate      string
	SlotTime      string
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
}

// Actor is the verified identity performing an operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)
