package scheduling

import "fmt"

// Transition names a lifecycle operation.
type Transition string

const (
	TransitionComplete        Transition = "complete"
	TransitionCancel          Transition = "cancel"
	TransitionSetPrescription Transition = "set_prescription"
)

// Next returns the status reached by applying tr to from, or ErrInvalidState.
// Completed and cancelled are terminal; a prescription may be attached to a
// pending or completed appointment and leaves the status unchanged.
func Next(from Status, tr Transition) (Status, error) {
	switch tr {
	case TransitionComplete:
		if from == StatusPending {
			return StatusCompleted, nil
		}
	case TransitionCancel:
		if from == StatusPending {
			return StatusCancelled, nil
		}
	case TransitionSetPrescription:
		if from == StatusPending || from == StatusCompleted {
			return from, nil
		}
	default:
		return from, fmt.Errorf("unknown transition %q", tr)
	}
	return from, fmt.Errorf("%s from %s: %w", tr, from, ErrInvalidState)
}

// Authorize checks that actor may apply tr to a.
//   - patients may only cancel their own appointments
//   - doctors may act on appointments in their own queue
//   - admins may do anything
func Authorize(a *Appointment, actor Actor, tr Transition) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor:
		if actor.ID == a.DoctorID {
			return nil
		}
	case RolePatient:
		if tr == TransitionCancel && actor.ID == a.PatientID {
			return nil
		}
	}
	return ErrUnauthorized
}

// CanView reports whether actor may read a.
func CanView(a *Appointment, actor Actor) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleDoctor:
		return actor.ID == a.DoctorID
	case RolePatient:
		return actor.ID == a.PatientID
	}
	return false
}
