package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// LockMode selects how WithScheduleTx holds a doctor's schedule lock.
// Bookings share it; availability changes take it exclusively.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	ListAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Availability, error)
	ListAvailabilityByDay(ctx context.Context, doctorID uuid.UUID, day DayOfWeek) ([]Availability, error)
	InsertAvailability(ctx context.Context, a Availability) (*Availability, error)
	UpdateAvailabilityTimes(ctx context.Context, id uuid.UUID, start, end TimeOfDay) (*Availability, error)
	TouchAvailability(ctx context.Context, id uuid.UUID) (*Availability, error)
	DeleteAvailability(ctx context.Context, id uuid.UUID) (*Availability, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// InsertAppointment is the conditional insert: it fails with ErrSlotTaken
	// when a non-cancelled appointment already holds (doctor, date, time).
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)

	// UpdateAppointmentStatus moves id to `to` only if its current status is one
	// of `from`. It returns ErrAppointmentNotFound when no row matched.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error)

	// For cascading cancellation
	FindBookedInTimeRange(ctx context.Context, doctorID uuid.UUID, start, end TimeOfDay, from Date) ([]Appointment, error)
	BulkCancel(ctx context.Context, ids []uuid.UUID) ([]Appointment, error)

	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to Date) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, from, to Date) ([]Appointment, error)

	// Completion worker
	FindBookedBefore(ctx context.Context, date Date, t TimeOfDay) ([]Appointment, error)

	InsertNotification(ctx context.Context, n Notification) (*Notification, error)
	ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error)

	// WithScheduleTx runs fn in one transaction holding doctorID's schedule lock.
	// fn must use the Repository it is given.
	WithScheduleTx(ctx context.Context, doctorID uuid.UUID, mode LockMode, fn func(tx Repository) error) error
}
