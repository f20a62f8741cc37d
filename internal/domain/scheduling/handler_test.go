package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/internal/platform/validate"
	"github.com/docbook/docbook/pkg/pagination"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *fixture) {
	f := newFixture(t)
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(f.svc, "$"), e, f
}

func newRequest(method, target, body string, who *auth.Identity) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if who != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *who))
	}
	return req
}

func withID(c echo.Context, id uuid.UUID) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	return c
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_GetSlotGrid(t *testing.T) {
	h, e, f := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := withID(e.NewContext(newRequest(http.MethodGet, "/", "", nil), rec), f.doctorID)

	if err := h.GetSlotGrid(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var resp SlotGridResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Days) != DefaultWindowDays {
		t.Fatalf("expected %d days, got %d", DefaultWindowDays, len(resp.Days))
	}
	if resp.Days[0].Slots[0].TimeKey != "03:00 PM" {
		t.Errorf("expected first slot 03:00 PM, got %s", resp.Days[0].Slots[0].TimeKey)
	}
	if resp.Days[0].Weekday != "FRI" {
		t.Errorf("expected FRI, got %s", resp.Days[0].Weekday)
	}
}

func TestHandler_GetSlotGrid_UnknownDoctor(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c := withID(e.NewContext(newRequest(http.MethodGet, "/", "", nil), httptest.NewRecorder()), uuid.New())
	expectHTTPError(t, h.GetSlotGrid(c), http.StatusNotFound)
}

func TestHandler_Reserve(t *testing.T) {
	h, e, f := newTestHandler(t)
	patient := auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}

	body := `{"doctor_id":"` + f.doctorID.String() + `","slot_date":"8_2_2025","slot_time":"10:00 AM","payment_method":"online"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/api/v1/appointments", body, &patient), rec)

	if err := h.Reserve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.PatientID != patient.UserID {
		t.Errorf("expected patient %s, got %s", patient.UserID, a.PatientID)
	}
	if a.PaymentMethod != PaymentOnline {
		t.Errorf("expected online, got %s", a.PaymentMethod)
	}
	if a.Amount.String() != "50" {
		t.Errorf("expected amount 50, got %s", a.Amount)
	}

	// Same slot again is a conflict.
	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodPost, "/api/v1/appointments", body, &patient), rec)
	expectHTTPError(t, h.Reserve(c), http.StatusConflict)
}

func TestHandler_Reserve_Validation(t *testing.T) {
	h, e, f := newTestHandler(t)
	patient := auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing slot", `{"doctor_id":"` + f.doctorID.String() + `"}`, http.StatusBadRequest},
		{"bad payment method", `{"doctor_id":"` + f.doctorID.String() + `","slot_date":"8_2_2025","slot_time":"10:00 AM","payment_method":"card"}`, http.StatusBadRequest},
		{"off grid", `{"doctor_id":"` + f.doctorID.String() + `","slot_date":"8_2_2025","slot_time":"10:10 AM"}`, http.StatusBadRequest},
		{"unknown doctor", `{"doctor_id":"` + uuid.NewString() + `","slot_date":"8_2_2025","slot_time":"10:00 AM"}`, http.StatusNotFound},
		{"other patient", `{"doctor_id":"` + f.doctorID.String() + `","slot_date":"8_2_2025","slot_time":"10:00 AM","patient_id":"` + uuid.NewString() + `"}`, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(newRequest(http.MethodPost, "/", tt.body, &patient), httptest.NewRecorder())
			expectHTTPError(t, h.Reserve(c), tt.code)
		})
	}
}

func TestHandler_Reserve_AdminOnBehalf(t *testing.T) {
	h, e, f := newTestHandler(t)
	admin := auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}
	patientID := uuid.New()

	body := `{"doctor_id":"` + f.doctorID.String() + `","slot_date":"8_2_2025","slot_time":"10:00 AM","patient_id":"` + patientID.String() + `"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", body, &admin), rec)
	if err := h.Reserve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.PatientID != patientID {
		t.Errorf("expected booking for %s, got %s", patientID, a.PatientID)
	}
}

func TestHandler_Reserve_AdminNeedsPatient(t *testing.T) {
	h, e, f := newTestHandler(t)
	admin := auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}

	body := `{"doctor_id":"` + f.doctorID.String() + `","slot_date":"8_2_2025","slot_time":"10:00 AM"}`
	c := e.NewContext(newRequest(http.MethodPost, "/", body, &admin), httptest.NewRecorder())
	expectHTTPError(t, h.Reserve(c), http.StatusBadRequest)

	if _, total, _ := f.svc.ListForPatient(context.Background(), admin.UserID, 10, 0); total != 0 {
		t.Errorf("expected no appointment booked for the admin, got %d", total)
	}
}

func TestHandler_Reserve_NoIdentity(t *testing.T) {
	h, e, _ := newTestHandler(t)
	c := e.NewContext(newRequest(http.MethodPost, "/", `{}`, nil), httptest.NewRecorder())
	expectHTTPError(t, h.Reserve(c), http.StatusUnauthorized)
}

func TestHandler_Lifecycle(t *testing.T) {
	h, e, f := newTestHandler(t)
	patientID := uuid.New()
	a := f.reserve(t, patientID, "8_2_2025", "10:00 AM")
	doctor := auth.Identity{UserID: f.doctorID, Role: auth.RoleDoctor}
	patient := auth.Identity{UserID: patientID, Role: auth.RolePatient}

	// Patients cannot complete.
	c := withID(e.NewContext(newRequest(http.MethodPost, "/", "", &patient), httptest.NewRecorder()), a.ID)
	expectHTTPError(t, h.Complete(c), http.StatusForbidden)

	rec := httptest.NewRecorder()
	c = withID(e.NewContext(newRequest(http.MethodPost, "/", "", &doctor), rec), a.ID)
	if err := h.Complete(c); err != nil {
		t.Fatalf("complete: %v", err)
	}
	var got Appointment
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}

	// Completed appointments cannot be cancelled.
	c = withID(e.NewContext(newRequest(http.MethodPost, "/", "", &patient), httptest.NewRecorder()), a.ID)
	expectHTTPError(t, h.Cancel(c), http.StatusConflict)

	rec = httptest.NewRecorder()
	c = withID(e.NewContext(newRequest(http.MethodPut, "/", `{"prescription":"Amoxicillin 250mg"}`, &doctor), rec), a.ID)
	if err := h.SetPrescription(c); err != nil {
		t.Fatalf("set prescription: %v", err)
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.PrescriptionText() != "Amoxicillin 250mg" {
		t.Errorf("unexpected prescription %q", got.PrescriptionText())
	}

	// An empty body clears the text.
	rec = httptest.NewRecorder()
	c = withID(e.NewContext(newRequest(http.MethodPut, "/", `{"prescription":""}`, &doctor), rec), a.ID)
	if err := h.SetPrescription(c); err != nil {
		t.Fatalf("clear prescription: %v", err)
	}
	got = Appointment{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.PrescriptionText() != "" {
		t.Errorf("expected cleared prescription, got %q", got.PrescriptionText())
	}

	long := `{"prescription":"` + strings.Repeat("x", 10001) + `"}`
	c = withID(e.NewContext(newRequest(http.MethodPut, "/", long, &doctor), httptest.NewRecorder()), a.ID)
	expectHTTPError(t, h.SetPrescription(c), http.StatusBadRequest)
}

func TestHandler_Cancel_InvalidID(t *testing.T) {
	h, e, _ := newTestHandler(t)
	patient := auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}
	c := e.NewContext(newRequest(http.MethodPost, "/", "", &patient), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	expectHTTPError(t, h.Cancel(c), http.StatusBadRequest)
}

func TestHandler_GetAppointment_Visibility(t *testing.T) {
	h, e, f := newTestHandler(t)
	patientID := uuid.New()
	a := f.reserve(t, patientID, "8_2_2025", "10:00 AM")

	owner := auth.Identity{UserID: patientID, Role: auth.RolePatient}
	rec := httptest.NewRecorder()
	if err := h.GetAppointment(withID(e.NewContext(newRequest(http.MethodGet, "/", "", &owner), rec), a.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	stranger := auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}
	c := withID(e.NewContext(newRequest(http.MethodGet, "/", "", &stranger), httptest.NewRecorder()), a.ID)
	expectHTTPError(t, h.GetAppointment(c), http.StatusForbidden)
}

func TestHandler_PrescriptionSlip(t *testing.T) {
	h, e, f := newTestHandler(t)
	patientID := uuid.New()
	a := f.reserve(t, patientID, "8_2_2025", "10:00 AM")
	owner := auth.Identity{UserID: patientID, Role: auth.RolePatient}

	// No prescription yet.
	c := withID(e.NewContext(newRequest(http.MethodGet, "/", "", &owner), httptest.NewRecorder()), a.ID)
	expectHTTPError(t, h.GetPrescriptionSlip(c), http.StatusNotFound)

	if _, err := f.svc.SetPrescription(context.Background(), a.ID, "Cetirizine 10mg at night", f.doctor); err != nil {
		t.Fatalf("set prescription: %v", err)
	}
	rec := httptest.NewRecorder()
	c = withID(e.NewContext(newRequest(http.MethodGet, "/", "", &owner), rec), a.ID)
	if err := h.GetPrescriptionSlip(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("response is not a PDF")
	}
}

func TestHandler_ListMine(t *testing.T) {
	h, e, f := newTestHandler(t)
	patientID := uuid.New()
	f.reserve(t, patientID, "8_2_2025", "10:00 AM")
	f.reserve(t, uuid.New(), "8_2_2025", "10:30 AM")
	me := auth.Identity{UserID: patientID, Role: auth.RolePatient}

	rec := httptest.NewRecorder()
	if err := h.ListMine(e.NewContext(newRequest(http.MethodGet, "/api/v1/me/appointments", "", &me), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 appointment, got %d", resp.Total)
	}
}

func TestHandler_ListDoctorQueue(t *testing.T) {
	h, e, f := newTestHandler(t)
	f.reserve(t, uuid.New(), "8_2_2025", "10:00 AM")
	f.reserve(t, uuid.New(), "8_2_2025", "10:30 AM")

	doctor := auth.Identity{UserID: f.doctorID, Role: auth.RoleDoctor}
	rec := httptest.NewRecorder()
	if err := h.ListDoctorQueue(e.NewContext(newRequest(http.MethodGet, "/api/v1/doctor/appointments?limit=1", "", &doctor), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 || !resp.HasMore {
		t.Errorf("expected 2 total with more pages, got %+v", resp)
	}

	// Another doctor sees an empty queue; doctor_id is ignored for non-admins.
	other := auth.Identity{UserID: uuid.New(), Role: auth.RoleDoctor}
	rec = httptest.NewRecorder()
	target := "/api/v1/doctor/appointments?doctor_id=" + f.doctorID.String()
	if err := h.ListDoctorQueue(e.NewContext(newRequest(http.MethodGet, target, "", &other), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 0 {
		t.Errorf("expected empty queue, got %d", resp.Total)
	}

	admin := auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin}
	rec = httptest.NewRecorder()
	if err := h.ListDoctorQueue(e.NewContext(newRequest(http.MethodGet, target, "", &admin), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("expected admin to see 2, got %d", resp.Total)
	}
}
