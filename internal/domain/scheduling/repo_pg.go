package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docbook/docbook/internal/platform/db"
)

// activeSlotConstraint is the partial unique index that enforces one
// non-cancelled appointment per doctor/date/time.
const activeSlotConstraint = "appointment_active_slot_uq"

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, doctor_id, patient_id, slot_date, slot_time, slot_start,
	amount, payment_method, status, prescription, version_id, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.SlotDate, &a.SlotTime, &a.SlotStart,
		&a.Amount, &a.PaymentMethod, &a.Status, &a.Prescription, &a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Reserve(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Status = StatusPending
	a.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, slot_date, slot_time, slot_start,
			amount, payment_method, status, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientID, a.SlotDate, a.SlotTime, a.SlotStart,
		a.Amount, a.PaymentMethod, a.Status, a.VersionID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == db.UniqueViolation && pgErr.ConstraintName == activeSlotConstraint {
			return fmt.Errorf("%s %s: %w", a.SlotDate, a.SlotTime, ErrSlotTaken)
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET status = $3, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+apptCols, id, from, to))
	if errors.Is(err, ErrNotFound) {
		return nil, r.missOrConflict(ctx, id)
	}
	return a, err
}

func (r *appointmentRepoPG) SetPrescription(ctx context.Context, id uuid.UUID, text string) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET prescription = $2, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND status <> 'cancelled'
		RETURNING `+apptCols, id, text))
	if errors.Is(err, ErrNotFound) {
		return nil, r.missOrConflict(ctx, id)
	}
	return a, err
}

// missOrConflict tells a missing row apart from a failed status guard.
func (r *appointmentRepoPG) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var status Status
	err := r.conn(ctx).QueryRow(ctx, `SELECT status FROM appointment WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("appointment is %s: %w", status, ErrInvalidState)
}

func (r *appointmentRepoPG) ReservedSlots(ctx context.Context, doctorID uuid.UUID, dateKeys []string) (ReservationIndex, error) {
	query := `SELECT slot_date, slot_time FROM appointment WHERE doctor_id = $1 AND status <> 'cancelled'`
	args := []interface{}{doctorID}
	if len(dateKeys) > 0 {
		query += ` AND slot_date = ANY($2)`
		args = append(args, dateKeys)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	idx := ReservationIndex{}
	for rows.Next() {
		var date, tm string
		if err := rows.Scan(&date, &tm); err != nil {
			return nil, err
		}
		idx.add(date, tm)
	}
	return idx, rows.Err()
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, "doctor_id", doctorID, limit, offset)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, "patient_id", patientID, limit, offset)
}

func (r *appointmentRepoPG) list(ctx context.Context, column string, id uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment WHERE `+column+` = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
