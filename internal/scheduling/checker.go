package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Party is the side of an appointment an actor stands on.
type Party int

const (
	PartyPatient Party = iota + 1
	PartyDoctor
)

// Checker validates mutations against availability, existing state and the
// acting identity. It holds no state besides the clinic clock.
type Checker struct {
	loc *time.Location
	now func() time.Time
}

func NewChecker(loc *time.Location, now func() time.Time) *Checker {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Checker{loc: loc, now: now}
}

// Today is the current date in the clinic's time zone.
func (c *Checker) Today() Date {
	return DateOf(c.now().In(c.loc))
}

// Now is the current date and wall-clock time in the clinic's time zone.
func (c *Checker) Now() (Date, TimeOfDay) {
	t := c.now().In(c.loc)
	return DateOf(t), TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// CheckSlot validates the shape of a requested slot.
func (c *Checker) CheckSlot(date Date, t TimeOfDay) error {
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if !t.Valid() {
		return fmt.Errorf("%w: time %d is not a valid time of day", ErrInvalidInput, int(t))
	}
	if date.Before(c.Today()) {
		return ErrPastDate
	}
	return nil
}

// FindWindow returns the doctor's window on date's weekday that contains t.
func (c *Checker) FindWindow(ctx context.Context, repo Repository, doctorID uuid.UUID, date Date, t TimeOfDay) (*Availability, error) {
	windows, err := repo.ListAvailabilityByDay(ctx, doctorID, DayOf(date.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	for i := range windows {
		if windows[i].Contains(t) {
			return &windows[i], nil
		}
	}
	return nil, ErrNoAvailability
}

func CheckRange(start, end TimeOfDay) error {
	if !start.Valid() || !end.Valid() {
		return fmt.Errorf("%w: times must fall within one day", ErrInvalidInput)
	}
	if start >= end {
		return ErrInvalidRange
	}
	return nil
}

// CheckOverlap rejects a candidate [start, end) that overlaps any window in
// existing other than the one identified by self.
func CheckOverlap(existing []Availability, self uuid.UUID, start, end TimeOfDay) error {
	for _, w := range existing {
		if w.ID == self {
			continue
		}
		if w.Overlaps(start, end) {
			return fmt.Errorf("%w: %s %s-%s", ErrOverlappingWindow, w.DayOfWeek, w.StartTime, w.EndTime)
		}
	}
	return nil
}

// AuthorizeBooking allows a patient to book only for themselves.
func AuthorizeBooking(id Identity, patientID uuid.UUID) error {
	if id.Role != RolePatient || id.UserID != patientID {
		return ErrForbidden
	}
	return nil
}

// AuthorizeDoctor allows a doctor to act only on their own schedule.
func AuthorizeDoctor(id Identity, doctorID uuid.UUID) error {
	if id.UserID == uuid.Nil || id.UserID != doctorID {
		return ErrForbidden
	}
	return nil
}

// AuthorizeCancel returns which side of the appointment the requester is on.
func AuthorizeCancel(id Identity, appt *Appointment) (Party, error) {
	switch {
	case id.UserID == uuid.Nil:
		return 0, ErrForbidden
	case appt.PatientID != nil && *appt.PatientID == id.UserID:
		return PartyPatient, nil
	case appt.DoctorID == id.UserID:
		return PartyDoctor, nil
	default:
		return 0, ErrForbidden
	}
}

// AuthorizeRead allows both parties and admins to read an appointment.
func AuthorizeRead(id Identity, appt *Appointment) error {
	if id.Role == RoleAdmin {
		return nil
	}
	_, err := AuthorizeCancel(id, appt)
	return err
}
