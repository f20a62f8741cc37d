// Package events fans appointment lifecycle events out to interested
// clients. A Hub delivers to local websocket subscribers; a RedisBridge
// relays events between server instances so every hub sees every event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the booking core.
const (
	AppointmentBooked              = "appointment.booked"
	AppointmentCancelled           = "appointment.cancelled"
	AppointmentCompleted           = "appointment.completed"
	AppointmentPrescriptionUpdated = "appointment.prescription_updated"
)

// Event is a lifecycle notification. Data carries the post-state of the
// appointment as JSON.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	ResourceID string          `json:"resourceId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Publisher delivers events to subscribers of Event.Topic.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// DoctorTopic is the topic carrying events for one doctor's queue.
func DoctorTopic(id uuid.UUID) string { return "doctor:" + id.String() }

// PatientTopic is the topic carrying events for one patient's bookings.
func PatientTopic(id uuid.UUID) string { return "patient:" + id.String() }

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
