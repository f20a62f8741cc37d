package scheduling

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	// ErrSlotTaken is the expected outcome of losing a reservation race.
	// Callers re-fetch availability and pick another slot.
	ErrSlotTaken = errors.New("slot is already booked")
	// ErrInvalidState means the transition is not allowed from the current status.
	ErrInvalidState = errors.New("appointment is not in a state that allows this operation")
	ErrNotFound     = errors.New("not found")
	// ErrUnauthorized means the caller does not own or administer the appointment.
	ErrUnauthorized      = errors.New("caller is not allowed to access this appointment")
	ErrInvalidSlot       = errors.New("slot is not offered by the doctor's current grid")
	ErrDoctorUnavailable = errors.New("doctor is not accepting appointments")
	ErrInvalidInput      = errors.New("invalid input")
)

// httpError maps service errors onto HTTP responses.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrInvalidState), errors.Is(err, ErrDoctorUnavailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
