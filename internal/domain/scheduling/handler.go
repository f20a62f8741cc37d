package scheduling

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/validate"
	"github.com/docbook/docbook/pkg/pagination"
)

type Handler struct {
	svc      *Service
	currency string
}

func NewHandler(svc *Service, currency string) *Handler {
	return &Handler{svc: svc, currency: currency}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors/:id/slots", h.GetSlotGrid)

	api.POST("/appointments", h.Reserve, auth.RequireRole(auth.RolePatient))
	api.GET("/appointments/:id", h.GetAppointment, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	api.GET("/appointments/:id/prescription.pdf", h.GetPrescriptionSlip, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	api.POST("/appointments/:id/cancel", h.Cancel, auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	api.POST("/appointments/:id/complete", h.Complete, auth.RequireRole(auth.RoleDoctor))
	api.PUT("/appointments/:id/prescription", h.SetPrescription, auth.RequireRole(auth.RoleDoctor))

	api.GET("/me/appointments", h.ListMine, auth.RequireRole(auth.RolePatient))
	api.GET("/doctor/appointments", h.ListDoctorQueue, auth.RequireRole(auth.RoleDoctor))
}

// ReserveRequestBody is the booking payload. PatientID is only honoured for
// admins booking on a patient's behalf.
type ReserveRequestBody struct {
	DoctorID      uuid.UUID       `json:"doctor_id" validate:"required"`
	SlotDate      string          `json:"slot_date" validate:"required,max=16"`
	SlotTime      string          `json:"slot_time" validate:"required,max=16"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=cash online"`
	PatientID     *uuid.UUID      `json:"patient_id,omitempty"`
}

type prescriptionBody struct {
	Prescription string `json:"prescription" validate:"max=10000"`
}

// SlotGridResponse lists the open slots of each day in the window.
type SlotGridResponse struct {
	DoctorID uuid.UUID         `json:"doctor_id"`
	Days     []DayAvailability `json:"days"`
}

func actorFrom(c echo.Context) (Actor, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return Actor{ID: id.UserID, Role: id.Role}, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Slot grid --

func (h *Handler) GetSlotGrid(c echo.Context) error {
	doctorID, err := parseID(c)
	if err != nil {
		return err
	}
	days, err := h.svc.SlotGrid(c.Request().Context(), doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, SlotGridResponse{DoctorID: doctorID, Days: days})
}

// -- Reservation --

func (h *Handler) Reserve(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body ReserveRequestBody
	if err := validate.BindAndValidate(c, &body); err != nil {
		return err
	}

	patientID := actor.ID
	switch {
	case actor.Role == RoleAdmin:
		if body.PatientID == nil || *body.PatientID == uuid.Nil {
			return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required when booking on behalf of a patient")
		}
		patientID = *body.PatientID
	case body.PatientID != nil && *body.PatientID != actor.ID:
		return echo.NewHTTPError(http.StatusForbidden, "cannot book for another patient")
	}

	a, err := h.svc.Reserve(c.Request().Context(), ReserveRequest{
		DoctorID:      body.DoctorID,
		PatientID:     patientID,
		SlotDate:      body.SlotDate,
		SlotTime:      body.SlotTime,
		Amount:        body.Amount,
		PaymentMethod: PaymentMethod(body.PaymentMethod),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

// -- Lifecycle --

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.Cancel)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, h.svc.Complete)
}

func (h *Handler) transition(c echo.Context, op func(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error)) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := op(c.Request().Context(), id, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetPrescription(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body prescriptionBody
	if err := validate.BindAndValidate(c, &body); err != nil {
		return err
	}
	a, err := h.svc.SetPrescription(c.Request().Context(), id, body.Prescription, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- Queries --

func (h *Handler) GetAppointment(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetPrescriptionSlip(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.GetAppointment(ctx, id, actor)
	if err != nil {
		return httpError(err)
	}
	in := SlipInput{Appointment: a, DoctorName: a.DoctorID.String(), Currency: h.currency}
	if d, err := h.svc.Doctor(ctx, a.DoctorID); err == nil {
		in.DoctorName = d.Name
		in.Location = d.Hours.Location
	}
	pdf, err := PrescriptionSlip(in)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="prescription-`+a.ID.String()+`.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

func (h *Handler) ListMine(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), actor.ID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page(items, total, pg, c))
}

// ListDoctorQueue lists the calling doctor's appointments, newest first.
// Admins pass ?doctor_id= to inspect any doctor.
func (h *Handler) ListDoctorQueue(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	doctorID := actor.ID
	if raw := c.QueryParam("doctor_id"); raw != "" && actor.Role == RoleAdmin {
		doctorID, err = uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDoctor(c.Request().Context(), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page(items, total, pg, c))
}

func page(items []*Appointment, total int, pg pagination.Params, c echo.Context) *pagination.Response {
	if items == nil {
		items = []*Appointment{}
	}
	return pagination.NewResponse(items, total, pg, c.Request().URL.Path)
}
