package directory

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/validate"
	"github.com/docbook/docbook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/doctors", h.CreateDoctor)
	admin.PATCH("/doctors/:id/availability", h.SetAvailability)
}

// CreateDoctorRequest is the admin provisioning payload.
type CreateDoctorRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Email       string          `json:"email" validate:"required,email"`
	Speciality  string          `json:"speciality" validate:"required,max=100"`
	Degree      string          `json:"degree" validate:"max=100"`
	Experience  string          `json:"experience" validate:"max=50"`
	About       string          `json:"about"`
	Fees        decimal.Decimal `json:"fees"`
	Address     Address         `json:"address"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	Available   *bool           `json:"available"`
	OpeningHour int             `json:"opening_hour" validate:"gte=0,lte=23"`
	ClosingHour int             `json:"closing_hour" validate:"gte=0,lte=24"`
	Timezone    string          `json:"timezone" validate:"max=64"`
}

func (r CreateDoctorRequest) doctor() *Doctor {
	d := &Doctor{
		Name:        r.Name,
		Email:       r.Email,
		Speciality:  r.Speciality,
		Degree:      r.Degree,
		Experience:  r.Experience,
		About:       r.About,
		Fees:        r.Fees,
		Address:     r.Address,
		ImageURL:    r.ImageURL,
		Available:   true,
		OpeningHour: r.OpeningHour,
		ClosingHour: r.ClosingHour,
		Timezone:    r.Timezone,
	}
	if r.Available != nil {
		d.Available = *r.Available
	}
	return d
}

type availabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req CreateDoctorRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	d := req.doctor()
	if err := h.svc.CreateDoctor(c.Request().Context(), d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	speciality := c.QueryParam("speciality")
	items, total, err := h.svc.ListDoctors(c.Request().Context(), speciality, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Doctor{}
	}
	base := c.Request().URL.Path
	if speciality != "" {
		base += "?speciality=" + url.QueryEscape(speciality)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, base))
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req availabilityRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := h.svc.SetAvailability(c.Request().Context(), id, *req.Available)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}
