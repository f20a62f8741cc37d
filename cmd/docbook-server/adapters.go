package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/domain/directory"
	"github.com/docbook/docbook/internal/domain/scheduling"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/events"
)

// bookingDirectory adapts the doctor directory to scheduling.DoctorDirectory,
// keeping the two domain packages free of imports on each other.
type bookingDirectory struct {
	svc *directory.Service
}

func (b bookingDirectory) BookingPolicy(ctx context.Context, doctorID uuid.UUID) (*scheduling.DoctorPolicy, error) {
	d, err := b.svc.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("doctor %s: %w", doctorID, scheduling.ErrNotFound)
		}
		return nil, err
	}
	return &scheduling.DoctorPolicy{
		ID:        d.ID,
		Name:      d.Name,
		Available: d.Available,
		Fees:      d.Fees,
		Hours: scheduling.WorkingHours{
			Open:     d.OpeningHour,
			Close:    d.ClosingHour,
			Location: b.svc.Location(d),
		},
	}, nil
}

// topicPolicy scopes websocket subscriptions to the caller's own queue.
// Patients follow their bookings and doctors their schedule; admins may pass
// any topics in ?topics=a,b and subscribe to anything later.
func topicPolicy(c echo.Context) ([]string, func(string) bool, error) {
	id, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	switch id.Role {
	case auth.RolePatient:
		own := events.PatientTopic(id.UserID)
		return []string{own}, func(t string) bool { return t == own }, nil
	case auth.RoleDoctor:
		own := events.DoctorTopic(id.UserID)
		return []string{own}, func(t string) bool { return t == own }, nil
	case auth.RoleAdmin:
		var topics []string
		for _, t := range strings.Split(c.QueryParam("topics"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
		return topics, nil, nil
	}
	return nil, nil, echo.NewHTTPError(http.StatusForbidden, "unknown role")
}
