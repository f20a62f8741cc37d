package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/platform/auth"
)

// AuditEntry records who changed which booking resource and how it ended.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	Role       string
	Action     string
	Resource   string
	ResourceID string
	Method     string
	Path       string
	IPAddress  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every state-changing request under /api/v1/ after it completes.
// Reads are not audited; the request logger already covers them.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				RequestID:  requestID(c),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				StatusCode: c.Response().Status,
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}
			if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
				entry.UserID = id.UserID.String()
				entry.Role = id.Role
			}
			entry.Resource, entry.ResourceID, entry.Action = describeRoute(req.Method, req.URL.Path)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("booking_change")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, "/api/v1/") {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// describeRoute derives resource, resource ID and action from an API path.
//
//	POST  /api/v1/appointments                     -> appointments, "", create
//	POST  /api/v1/appointments/<id>/cancel         -> appointments, <id>, cancel
//	PUT   /api/v1/appointments/<id>/prescription   -> appointments, <id>, prescription
//	PATCH /api/v1/admin/doctors/<id>/availability  -> doctors, <id>, availability
func describeRoute(method, path string) (resource, id, action string) {
	segs := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segs) > 0 && segs[0] == "admin" {
		segs = segs[1:]
	}
	if len(segs) == 0 || segs[0] == "" {
		return "unknown", "", methodAction(method)
	}
	resource = segs[0]
	if len(segs) > 1 {
		id = segs[1]
	}
	if len(segs) > 2 {
		return resource, id, segs[2]
	}
	return resource, id, methodAction(method)
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}
