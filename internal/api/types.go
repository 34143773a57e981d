package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id,omitempty"` // defaults to the caller
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type BlockSlotRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type AvailabilityRequest struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type AvailabilityTimesRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// MutationEnvelope carries one tagged schedule mutation.
type MutationEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type AppointmentResponse struct {
	ID        uuid.UUID  `json:"id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	Date      string     `json:"date"`
	Time      string     `json:"time"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type AvailabilityResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	DayOfWeek string    `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CancelResponse struct {
	Appointment          AppointmentResponse `json:"appointment"`
	NotificationFailures int                 `json:"notification_failures"`
}

// AvailabilityChangeResponse tells the doctor what their change cancelled.
type AvailabilityChangeResponse struct {
	Availability              AvailabilityResponse  `json:"availability"`
	CancelledAppointmentCount int                   `json:"cancelled_appointment_count"`
	CancelledAppointments     []AppointmentResponse `json:"cancelled_appointments"`
	NotificationFailures      int                   `json:"notification_failures"`
}

type NotificationResponse struct {
	ID        uuid.UUID         `json:"id"`
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	LinkURL   string            `json:"link_url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	IsRead    bool              `json:"is_read"`
}

type MutationResponse struct {
	Type   string `json:"type"`
	Result any    `json:"result"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Date:      a.Date.String(),
		Time:      a.Time.String(),
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []scheduling.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

func toAvailabilityResponse(a *scheduling.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		DayOfWeek: string(a.DayOfWeek),
		StartTime: a.StartTime.String(),
		EndTime:   a.EndTime.String(),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAvailabilityChangeResponse(c *scheduling.AvailabilityChange) AvailabilityChangeResponse {
	return AvailabilityChangeResponse{
		Availability:              toAvailabilityResponse(c.Availability),
		CancelledAppointmentCount: c.CancelledCount(),
		CancelledAppointments:     toAppointmentResponses(c.Cancelled),
		NotificationFailures:      len(c.NotificationFailures),
	}
}

func toCancelResponse(c *scheduling.CancelResult) CancelResponse {
	return CancelResponse{
		Appointment:          toAppointmentResponse(c.Appointment),
		NotificationFailures: len(c.NotificationFailures),
	}
}

func toNotificationResponse(n scheduling.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      string(n.Type),
		Message:   n.Message,
		LinkURL:   n.LinkURL,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
		IsRead:    n.IsRead,
	}
}
