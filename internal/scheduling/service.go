package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

const (
	defaultListWindowDays    = 90
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	checker *Checker
	cascade Cascade
	emitter *Emitter
	log     zerolog.Logger
}

type serviceOptions struct {
	loc *time.Location
	now func() time.Time
	pub Publisher
}

type Option func(*serviceOptions)

// WithLocation sets the clinic time zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(o *serviceOptions) { o.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithPublisher signals the delivery layer after each notification insert.
func WithPublisher(pub Publisher) Option {
	return func(o *serviceOptions) { o.pub = pub }
}

func NewService(repo Repository, locker redisclient.Locker, logger zerolog.Logger, opts ...Option) *Service {
	o := serviceOptions{loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	emitter := NewEmitter(repo, o.pub, logger)
	emitter.now = o.now

	return &Service{
		repo:    repo,
		locker:  locker,
		checker: NewChecker(o.loc, o.now),
		emitter: emitter,
		log:     logger,
	}
}

// Execute dispatches one schedule mutation to its operation.
func (s *Service) Execute(ctx context.Context, id Identity, req Request) (any, error) {
	switch r := req.(type) {
	case BookRequest:
		return s.BookAppointment(ctx, id, r)
	case BlockRequest:
		return s.BlockSlot(ctx, id, r)
	case CancelRequest:
		return s.CancelAppointment(ctx, id, r)
	case AvailabilityUpsert:
		return s.CreateOrUpdateAvailability(ctx, id, r)
	case AvailabilityUpdate:
		return s.UpdateAvailability(ctx, id, r)
	case AvailabilityDelete:
		return s.DeleteAvailability(ctx, id, r)
	default:
		return nil, fmt.Errorf("%w: unsupported request %T", ErrInvalidInput, req)
	}
}

// BookAppointment books (doctor, date, time) for the calling patient.
// Concurrent races for one slot are decided by the store's conditional insert;
// the Redis slot lock only turns early contention away.
func (s *Service) BookAppointment(ctx context.Context, id Identity, req BookRequest) (*Appointment, error) {
	if err := AuthorizeBooking(id, req.PatientID); err != nil {
		return nil, err
	}

	patientID := req.PatientID
	appt, err := s.reserve(ctx, req.DoctorID, &patientID, req.Date, req.Time, StatusBooked)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("patient_id", patientID.String()).
		Str("date", appt.Date.String()).
		Str("time", appt.Time.String()).
		Msg("appointment booked")

	s.emitter.NotifyAll(ctx, []Event{{
		Recipient:   appt.DoctorID,
		Type:        NotificationBooked,
		Appointment: *appt,
		Actor:       s.lookupUser(ctx, patientID),
	}})

	return appt, nil
}

// BlockSlot takes a slot off the doctor's own calendar. Blocked slots follow
// the same window and uniqueness rules as bookings.
func (s *Service) BlockSlot(ctx context.Context, id Identity, req BlockRequest) (*Appointment, error) {
	if err := AuthorizeDoctor(id, req.DoctorID); err != nil {
		return nil, err
	}

	appt, err := s.reserve(ctx, req.DoctorID, nil, req.Date, req.Time, StatusBlocked)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Msg("slot blocked")

	return appt, nil
}

func (s *Service) reserve(ctx context.Context, doctorID uuid.UUID, patientID *uuid.UUID, date Date, t TimeOfDay, status AppointmentStatus) (*Appointment, error) {
	if err := s.checker.CheckSlot(date, t); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, doctorID, RoleDoctor); err != nil {
		return nil, err
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, slotKey(doctorID, date, t), func(lockCtx context.Context) error {
		return s.repo.WithScheduleTx(lockCtx, doctorID, LockShared, func(tx Repository) error {
			if _, err := s.checker.FindWindow(lockCtx, tx, doctorID, date, t); err != nil {
				return err
			}

			appt, err := tx.InsertAppointment(lockCtx, Appointment{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				PatientID: patientID,
				Date:      date,
				Time:      t,
				Status:    status,
			})
			if err != nil {
				return err
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: slot is currently being booked", ErrSlotTaken)
		}
		return nil, err
	}

	return created, nil
}

// CancelAppointment cancels on behalf of either party and notifies the other.
// Cancelling twice is an explicit ErrInvalidState, not a no-op.
func (s *Service) CancelAppointment(ctx context.Context, id Identity, req CancelRequest) (*CancelResult, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	party, err := AuthorizeCancel(id, appt)
	if err != nil {
		return nil, err
	}

	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is already %s", ErrInvalidState, appt.Status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusCancelled, StatusBooked, StatusBlocked)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed state concurrently", ErrInvalidState)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("requester_id", id.UserID.String()).
		Msg("appointment cancelled")

	result := &CancelResult{Appointment: updated}
	if ev, ok := s.counterpartEvent(ctx, party, id, *updated); ok {
		result.NotificationFailures = s.emitter.NotifyAll(ctx, []Event{ev})
	}
	return result, nil
}

func (s *Service) counterpartEvent(ctx context.Context, party Party, id Identity, appt Appointment) (Event, bool) {
	switch party {
	case PartyPatient:
		return Event{
			Recipient:   appt.DoctorID,
			Type:        NotificationCancelledByPatient,
			Appointment: appt,
			Actor:       s.lookupUser(ctx, id.UserID),
		}, true
	case PartyDoctor:
		if appt.PatientID == nil {
			return Event{}, false
		}
		return Event{
			Recipient:   *appt.PatientID,
			Type:        NotificationCancelledByDoctor,
			Appointment: appt,
			Actor:       s.lookupUser(ctx, id.UserID),
		}, true
	default:
		return Event{}, false
	}
}

// CreateOrUpdateAvailability upserts a window keyed on (doctor, day, start, end).
// An identical window is returned as is; any other overlap is rejected.
func (s *Service) CreateOrUpdateAvailability(ctx context.Context, id Identity, req AvailabilityUpsert) (*Availability, error) {
	if err := AuthorizeDoctor(id, req.DoctorID); err != nil {
		return nil, err
	}
	if !req.DayOfWeek.Valid() {
		return nil, fmt.Errorf("%w: unknown day_of_week %q", ErrInvalidInput, req.DayOfWeek)
	}
	if err := CheckRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	var saved *Availability

	err := s.repo.WithScheduleTx(ctx, req.DoctorID, LockExclusive, func(tx Repository) error {
		windows, err := tx.ListAvailabilityByDay(ctx, req.DoctorID, req.DayOfWeek)
		if err != nil {
			return fmt.Errorf("load availability: %w", err)
		}

		for _, w := range windows {
			if w.StartTime == req.StartTime && w.EndTime == req.EndTime {
				saved, err = tx.TouchAvailability(ctx, w.ID)
				return err
			}
		}

		if err := CheckOverlap(windows, uuid.Nil, req.StartTime, req.EndTime); err != nil {
			return err
		}

		saved, err = tx.InsertAvailability(ctx, Availability{
			ID:        uuid.New(),
			DoctorID:  req.DoctorID,
			DayOfWeek: req.DayOfWeek,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("availability_id", saved.ID.String()).
		Str("doctor_id", saved.DoctorID.String()).
		Str("day_of_week", string(saved.DayOfWeek)).
		Msg("availability saved")

	return saved, nil
}

// UpdateAvailability changes a window's bounds. Booked appointments the new
// bounds no longer cover are cancelled in the same transaction.
func (s *Service) UpdateAvailability(ctx context.Context, id Identity, req AvailabilityUpdate) (*AvailabilityChange, error) {
	current, err := s.repo.GetAvailabilityByID(ctx, req.AvailabilityID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if err := AuthorizeDoctor(id, current.DoctorID); err != nil {
		return nil, err
	}
	if err := CheckRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	change := &AvailabilityChange{}
	var before Availability

	err = s.repo.WithScheduleTx(ctx, current.DoctorID, LockExclusive, func(tx Repository) error {
		locked, err := tx.GetAvailabilityByID(ctx, req.AvailabilityID)
		if err != nil {
			return fmt.Errorf("reload availability: %w", err)
		}
		before = *locked

		windows, err := tx.ListAvailabilityByDay(ctx, before.DoctorID, before.DayOfWeek)
		if err != nil {
			return fmt.Errorf("load availability: %w", err)
		}
		if err := CheckOverlap(windows, before.ID, req.StartTime, req.EndTime); err != nil {
			return err
		}

		after := before
		after.StartTime = req.StartTime
		after.EndTime = req.EndTime

		orphaned, err := s.cascade.Orphaned(ctx, tx, before, after, s.checker.Today())
		if err != nil {
			return err
		}
		cancelled, err := s.cascade.CancelAll(ctx, tx, orphaned)
		if err != nil {
			return err
		}

		updated, err := tx.UpdateAvailabilityTimes(ctx, before.ID, req.StartTime, req.EndTime)
		if err != nil {
			return fmt.Errorf("update availability: %w", err)
		}

		change.Availability = updated
		change.Cancelled = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("availability_id", change.Availability.ID.String()).
		Int("cancelled", change.CancelledCount()).
		Msg("availability updated")

	change.NotificationFailures = s.notifyCascade(ctx, before, change.Cancelled)
	return change, nil
}

// DeleteAvailability cancels every future booked appointment inside the window
// and then removes it. A failed cancellation aborts the delete.
func (s *Service) DeleteAvailability(ctx context.Context, id Identity, req AvailabilityDelete) (*AvailabilityChange, error) {
	current, err := s.repo.GetAvailabilityByID(ctx, req.AvailabilityID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if err := AuthorizeDoctor(id, current.DoctorID); err != nil {
		return nil, err
	}

	change := &AvailabilityChange{}

	err = s.repo.WithScheduleTx(ctx, current.DoctorID, LockExclusive, func(tx Repository) error {
		window, err := tx.GetAvailabilityByID(ctx, req.AvailabilityID)
		if err != nil {
			return fmt.Errorf("reload availability: %w", err)
		}

		affected, err := s.cascade.Affected(ctx, tx, *window, s.checker.Today())
		if err != nil {
			return err
		}
		cancelled, err := s.cascade.CancelAll(ctx, tx, affected)
		if err != nil {
			return err
		}

		deleted, err := tx.DeleteAvailability(ctx, window.ID)
		if err != nil {
			return fmt.Errorf("delete availability: %w", err)
		}

		change.Availability = deleted
		change.Cancelled = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("availability_id", change.Availability.ID.String()).
		Int("cancelled", change.CancelledCount()).
		Msg("availability deleted")

	change.NotificationFailures = s.notifyCascade(ctx, *change.Availability, change.Cancelled)
	return change, nil
}

func (s *Service) notifyCascade(ctx context.Context, window Availability, cancelled []Appointment) []NotificationFailure {
	if len(cancelled) == 0 {
		return nil
	}

	doctor := s.lookupUser(ctx, window.DoctorID)
	events := lo.FilterMap(cancelled, func(a Appointment, _ int) (Event, bool) {
		if a.PatientID == nil {
			return Event{}, false
		}
		return Event{
			Recipient:   *a.PatientID,
			Type:        NotificationCancelledByDoctor,
			Appointment: a,
			Actor:       doctor,
			Window:      &window,
		}, true
	})
	return s.emitter.NotifyAll(ctx, events)
}

func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	windows, err := s.repo.ListAvailabilityByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return windows, nil
}

func (s *Service) GetAppointment(ctx context.Context, id Identity, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if err := AuthorizeRead(id, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// ListAppointments returns the caller's own schedule between from and to
// inclusive. Zero bounds default to today and ninety days after from.
func (s *Service) ListAppointments(ctx context.Context, id Identity, from, to Date) ([]Appointment, error) {
	if from.IsZero() {
		from = s.checker.Today()
	}
	if to.IsZero() {
		to = from.AddDays(defaultListWindowDays)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to must not be before from", ErrInvalidInput)
	}

	var (
		appts []Appointment
		err   error
	)
	switch id.Role {
	case RoleDoctor:
		appts, err = s.repo.ListAppointmentsByDoctor(ctx, id.UserID, from, to)
	case RolePatient:
		appts, err = s.repo.ListAppointmentsByPatient(ctx, id.UserID, from, to)
	default:
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// ListNotifications returns the caller's notifications unread first.
func (s *Service) ListNotifications(ctx context.Context, id Identity, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	ns, err := s.repo.ListNotificationsByUser(ctx, id.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return ns, nil
}

// CompletePastAppointments marks booked appointments whose time has passed as
// completed. It is intended to be called by the worker periodically.
func (s *Service) CompletePastAppointments(ctx context.Context) (int, error) {
	date, now := s.checker.Now()

	candidates, err := s.repo.FindBookedBefore(ctx, date, now)
	if err != nil {
		return 0, fmt.Errorf("find past booked appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusCompleted, StatusBooked)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to complete appointment")
			}
			continue
		}
		completed++
	}

	return completed, nil
}

func (s *Service) requireRole(ctx context.Context, userID uuid.UUID, role Role) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load %s %s: %w", role, userID, err)
	}
	if u.Role != role {
		return fmt.Errorf("%s %s: %w", role, userID, ErrUserNotFound)
	}
	return nil
}

// lookupUser resolves a display name for messages. A miss is logged, not fatal.
func (s *Service) lookupUser(ctx context.Context, id uuid.UUID) *User {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", id.String()).Msg("could not resolve user for notification")
		return nil
	}
	return u
}

func slotKey(doctorID uuid.UUID, date Date, t TimeOfDay) string {
	return fmt.Sprintf("%s:%s:%s", doctorID, date, t)
}
