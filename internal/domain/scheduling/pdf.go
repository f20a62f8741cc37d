package scheduling

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// SlipInput is what a prescription slip prints.
type SlipInput struct {
	Appointment *Appointment
	DoctorName  string
	Currency    string
	Location    *time.Location // doctor's zone; the slot date prints in it
}

func (in SlipInput) slotDate() string {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	return in.Appointment.SlotStart.In(loc).Format("Mon, 2 Jan 2006")
}

// PrescriptionSlip renders the appointment and its prescription as a
// one-page A4 PDF.
func PrescriptionSlip(in SlipInput) ([]byte, error) {
	a := in.Appointment
	if a.Prescription == nil {
		return nil, fmt.Errorf("prescription: %w", ErrNotFound)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Prescription "+a.ID.String(), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(95, 111, 255)
	pdf.CellFormat(0, 10, "Prescription", "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	row := func(label, value string) {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(45, 9, label, "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 9, tr(value), "1", 1, "", false, 0, "")
	}
	row("Appointment", a.ID.String())
	row("Doctor", in.DoctorName)
	row("Patient", a.PatientID.String())
	row("Date", in.slotDate())
	row("Time", a.SlotTime)
	row("Status", string(a.Status))
	row("Fee", in.Currency+a.Amount.StringFixed(2)+" ("+string(a.PaymentMethod)+")")

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Rx", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 6, tr(*a.Prescription), "1", "L", false)

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, "Issued "+a.UpdatedAt.Format("2 Jan 2006 15:04 MST"), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render prescription pdf: %w", err)
	}
	return buf.Bytes(), nil
}
