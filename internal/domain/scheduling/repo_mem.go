package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps appointments in process. The reservation index is updated
// under the same mutex as the appointment map, so the two never diverge.
// It serves development mode and tests; it gives no guarantees across
// processes.
type MemoryRepo struct {
	mu       sync.RWMutex
	appts    map[uuid.UUID]*Appointment
	reserved map[uuid.UUID]ReservationIndex // doctor ID -> live index
	now      func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		appts:    make(map[uuid.UUID]*Appointment),
		reserved: make(map[uuid.UUID]ReservationIndex),
		now:      time.Now,
	}
}

func (m *MemoryRepo) Reserve(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.reserved[a.DoctorID]
	if idx.Has(a.SlotDate, a.SlotTime) {
		return fmt.Errorf("%s %s: %w", a.SlotDate, a.SlotTime, ErrSlotTaken)
	}
	if idx == nil {
		idx = ReservationIndex{}
		m.reserved[a.DoctorID] = idx
	}

	now := m.now()
	a.ID = uuid.New()
	a.Status = StatusPending
	a.VersionID = 1
	a.CreatedAt = now
	a.UpdatedAt = now

	stored := *a
	m.appts[a.ID] = &stored
	idx.add(a.SlotDate, a.SlotTime)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAppointment(a), nil
}

func (m *MemoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, fmt.Errorf("appointment is %s: %w", a.Status, ErrInvalidState)
	}
	a.Status = to
	a.VersionID++
	a.UpdatedAt = m.now()
	if !a.HoldsSlot() {
		m.reserved[a.DoctorID].remove(a.SlotDate, a.SlotTime)
	}
	return copyAppointment(a), nil
}

func (m *MemoryRepo) SetPrescription(_ context.Context, id uuid.UUID, text string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status == StatusCancelled {
		return nil, fmt.Errorf("appointment is %s: %w", a.Status, ErrInvalidState)
	}
	a.Prescription = &text
	a.VersionID++
	a.UpdatedAt = m.now()
	return copyAppointment(a), nil
}

func (m *MemoryRepo) ReservedSlots(_ context.Context, doctorID uuid.UUID, dateKeys []string) (ReservationIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.reserved[doctorID]
	if len(dateKeys) == 0 {
		return idx.Clone(), nil
	}
	out := ReservationIndex{}
	for _, date := range dateKeys {
		for tm := range idx[date] {
			out.add(date, tm)
		}
	}
	return out, nil
}

func (m *MemoryRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return m.list(func(a *Appointment) bool { return a.DoctorID == doctorID }, limit, offset)
}

func (m *MemoryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return m.list(func(a *Appointment) bool { return a.PatientID == patientID }, limit, offset)
}

func (m *MemoryRepo) list(match func(*Appointment) bool, limit, offset int) ([]*Appointment, int, error) {
	m.mu.RLock()
	var all []*Appointment
	for _, a := range m.appts {
		if match(a) {
			all = append(all, copyAppointment(a))
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func copyAppointment(a *Appointment) *Appointment {
	cp := *a
	if a.Prescription != nil {
		p := *a.Prescription
		cp.Prescription = &p
	}
	return &cp
}
