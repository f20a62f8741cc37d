package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/docbook/docbook/internal/platform/events"
)

// DoctorPolicy is what the booking core needs to know about a doctor.
type DoctorPolicy struct {
	ID        uuid.UUID
	Name      string
	Available bool
	Fees      decimal.Decimal
	Hours     WorkingHours
}

// DoctorDirectory resolves doctors. Implementations return ErrNotFound for
// unknown IDs.
type DoctorDirectory interface {
	BookingPolicy(ctx context.Context, doctorID uuid.UUID) (*DoctorPolicy, error)
}

type Service struct {
	doctors    DoctorDirectory
	appts      AppointmentRepository
	events     events.Publisher
	logger     zerolog.Logger
	now        func() time.Time
	windowDays int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWindowDays sets how many days the slot grid covers.
func WithWindowDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

// WithPublisher sets the lifecycle event sink.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(doctors DoctorDirectory, appts AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		doctors:    doctors,
		appts:      appts,
		events:     events.Discard{},
		logger:     zerolog.Nop(),
		now:        time.Now,
		windowDays: DefaultWindowDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Slot grid --

// SlotGrid returns the doctor's bookable slots for the current window with
// every reserved slot removed. The result is advisory: Reserve re-checks.
func (s *Service) SlotGrid(ctx context.Context, doctorID uuid.UUID) ([]DayAvailability, error) {
	policy, err := s.doctors.BookingPolicy(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	grid := GenerateGrid(s.now(), policy.Hours, s.windowDays)
	reserved, err := s.appts.ReservedSlots(ctx, doctorID, dateKeys(grid))
	if err != nil {
		return nil, fmt.Errorf("load reserved slots: %w", err)
	}
	return Filter(grid, reserved), nil
}

func dateKeys(grid []DayGrid) []string {
	keys := make([]string, len(grid))
	for i, d := range grid {
		keys[i] = d.DateKey()
	}
	return keys
}

// -- Reservation --

// Reserve books (SlotDate, SlotTime) with the doctor for the patient. Losing
// a race for the slot yields ErrSlotTaken.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	switch req.PaymentMethod {
	case "":
		req.PaymentMethod = PaymentCash
	case PaymentCash, PaymentOnline:
	default:
		return nil, fmt.Errorf("%w: payment method %q", ErrInvalidInput, req.PaymentMethod)
	}
	if _, _, _, err := ParseDateKey(req.SlotDate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	policy, err := s.doctors.BookingPolicy(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !policy.Available {
		return nil, ErrDoctorUnavailable
	}

	slot, ok := Contains(GenerateGrid(s.now(), policy.Hours, s.windowDays), req.SlotDate, req.SlotTime)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", req.SlotDate, req.SlotTime, ErrInvalidSlot)
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = policy.Fees
	}
	a := &Appointment{
		DoctorID:      req.DoctorID,
		PatientID:     req.PatientID,
		SlotDate:      slot.DateKey,
		SlotTime:      slot.TimeKey,
		SlotStart:     slot.Start,
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
	}

	log := s.logger.With().
		Str("doctor_id", req.DoctorID.String()).
		Str("slot_date", slot.DateKey).
		Str("slot_time", slot.TimeKey).
		Logger()

	if err := s.appts.Reserve(ctx, a); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			log.Debug().Str("patient_id", req.PatientID.String()).Msg("slot taken")
		}
		return nil, err
	}
	log.Info().Str("appointment_id", a.ID.String()).Msg("appointment reserved")
	s.publish(ctx, events.AppointmentBooked, a)
	return a, nil
}

// -- Lifecycle --

// Complete marks a pending appointment completed. The slot stays held.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, actor, TransitionComplete, events.AppointmentCompleted)
}

// Cancel marks a pending appointment cancelled, which releases its slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, actor, TransitionCancel, events.AppointmentCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, actor Actor, tr Transition, eventType string) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(a, actor, tr); err != nil {
		return nil, err
	}
	to, err := Next(a.Status, tr)
	if err != nil {
		return nil, err
	}
	updated, err := s.appts.UpdateStatus(ctx, id, a.Status, to)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("actor_id", actor.ID.String()).
		Str("transition", string(tr)).
		Str("status", string(updated.Status)).
		Msg("appointment transitioned")
	s.publish(ctx, eventType, updated)
	return updated, nil
}

// SetPrescription attaches text to a pending or completed appointment.
// Setting the text it already has changes nothing.
func (s *Service) SetPrescription(ctx context.Context, id uuid.UUID, text string, actor Actor) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(a, actor, TransitionSetPrescription); err != nil {
		return nil, err
	}
	if _, err := Next(a.Status, TransitionSetPrescription); err != nil {
		return nil, err
	}
	if a.Prescription != nil && *a.Prescription == text {
		return a, nil
	}
	updated, err := s.appts.SetPrescription(ctx, id, text)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.AppointmentPrescriptionUpdated, updated)
	return updated, nil
}

// -- Queries --

// GetAppointment returns an appointment the actor may see.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(a, actor) {
		return nil, ErrUnauthorized
	}
	return a, nil
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByPatient(ctx, patientID, limit, offset)
}

// Doctor exposes the directory entry behind an appointment.
func (s *Service) Doctor(ctx context.Context, doctorID uuid.UUID) (*DoctorPolicy, error) {
	return s.doctors.BookingPolicy(ctx, doctorID)
}

// publish notifies the doctor's and the patient's topics. Delivery failures
// are logged; the state change has already committed.
func (s *Service) publish(ctx context.Context, eventType string, a *Appointment) {
	data, err := json.Marshal(a)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal appointment event")
		return
	}
	ts := s.now()
	for _, topic := range []string{events.DoctorTopic(a.DoctorID), events.PatientTopic(a.PatientID)} {
		evt := events.Event{
			Type:       eventType,
			Topic:      topic,
			ResourceID: a.ID.String(),
			Timestamp:  ts,
			Data:       data,
		}
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Warn().Err(err).Str("type", eventType).Str("topic", topic).Msg("publish event")
		}
	}
}
