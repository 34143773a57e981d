package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusBlocked   AppointmentStatus = "blocked"
)

// Terminal reports whether no further transition is allowed from s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Identity is the caller as resolved by the identity collaborator. It is
// trusted verbatim.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

type User struct {
	ID          uuid.UUID
	DisplayName string
	Role        Role
	CreatedAt   time.Time
}

// Availability is a recurring weekly window [StartTime, EndTime) on DayOfWeek.
type Availability struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	DayOfWeek DayOfWeek
	StartTime TimeOfDay
	EndTime   TimeOfDay
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Availability) Contains(t TimeOfDay) bool {
	return t >= a.StartTime && t < a.EndTime
}

func (a Availability) Overlaps(start, end TimeOfDay) bool {
	return start < a.EndTime && a.StartTime < end
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID *uuid.UUID // nil for blocked slots
	Date      Date
	Time      TimeOfDay
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type NotificationType string

const (
	NotificationCancelledByPatient NotificationType = "APPOINTMENT_CANCELLED_BY_PATIENT"
	NotificationCancelledByDoctor  NotificationType = "APPOINTMENT_CANCELLED_BY_DOCTOR"
	NotificationBooked             NotificationType = "APPOINTMENT_BOOKED"
)

type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      NotificationType
	Message   string
	LinkURL   string
	Metadata  map[string]string
	CreatedAt time.Time
	IsRead    bool
}

// NotificationFailure records a notification that could not be written.
// It never fails the operation that produced it.
type NotificationFailure struct {
	UserID        uuid.UUID
	AppointmentID uuid.UUID
	Type          NotificationType
	Err           error
}

type CancelResult struct {
	Appointment          *Appointment
	NotificationFailures []NotificationFailure
}

// AvailabilityChange is returned by availability updates and deletes. Cancelled
// lists the appointments cancelled as a side effect so the doctor can be told.
type AvailabilityChange struct {
	Availability         *Availability
	Cancelled            []Appointment
	NotificationFailures []NotificationFailure
}

func (c AvailabilityChange) CancelledCount() int {
	return len(c.Cancelled)
}
