package scheduling

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository. Exclusive schedule transactions
// snapshot state and restore it when fn fails; shared ones only ever write in
// their final statement so they need no rollback.
type memRepo struct {
	txMu sync.RWMutex

	mu            sync.Mutex
	users         map[uuid.UUID]User
	windows       map[uuid.UUID]Availability
	appointments  map[uuid.UUID]Appointment
	notifications []Notification
	clock         time.Time

	bulkCancelErr   error
	notificationErr func(n Notification) error
	bulkCancelCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        make(map[uuid.UUID]User),
		windows:      make(map[uuid.UUID]Availability),
		appointments: make(map[uuid.UUID]Appointment),
		clock:        time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memRepo) addUser(role Role, name string) User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := User{ID: uuid.New(), DisplayName: name, Role: role, CreatedAt: r.tick()}
	r.users[u.ID] = u
	return u
}

func (r *memRepo) addWindow(doctorID uuid.UUID, day DayOfWeek, start, end TimeOfDay) Availability {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.tick()
	a := Availability{ID: uuid.New(), DoctorID: doctorID, DayOfWeek: day, StartTime: start, EndTime: end, CreatedAt: now, UpdatedAt: now}
	r.windows[a.ID] = a
	return a
}

func (r *memRepo) appointment(id uuid.UUID) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appointments[id]
}

func (r *memRepo) notificationsFor(userID uuid.UUID) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (r *memRepo) allNotifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.notifications)
}

func (r *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *memRepo) GetAvailabilityByID(_ context.Context, id uuid.UUID) (*Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.windows[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	return &a, nil
}

func (r *memRepo) ListAvailabilityByDoctor(_ context.Context, doctorID uuid.UUID) ([]Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Availability
	for _, a := range r.windows {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := (out[i].DayOfWeek.Weekday()+6)%7, (out[j].DayOfWeek.Weekday()+6)%7
		if wi != wj {
			return wi < wj
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *memRepo) ListAvailabilityByDay(ctx context.Context, doctorID uuid.UUID, day DayOfWeek) ([]Availability, error) {
	all, _ := r.ListAvailabilityByDoctor(ctx, doctorID)
	var out []Availability
	for _, a := range all {
		if a.DayOfWeek == day {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) InsertAvailability(_ context.Context, a Availability) (*Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.windows {
		if w.DoctorID == a.DoctorID && w.DayOfWeek == a.DayOfWeek && w.StartTime == a.StartTime && w.EndTime == a.EndTime {
			return nil, errors.New("duplicate availability")
		}
	}
	now := r.tick()
	a.CreatedAt, a.UpdatedAt = now, now
	r.windows[a.ID] = a
	return &a, nil
}

func (r *memRepo) UpdateAvailabilityTimes(_ context.Context, id uuid.UUID, start, end TimeOfDay) (*Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.windows[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	a.StartTime, a.EndTime, a.UpdatedAt = start, end, r.tick()
	r.windows[id] = a
	return &a, nil
}

func (r *memRepo) TouchAvailability(_ context.Context, id uuid.UUID) (*Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.windows[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	a.UpdatedAt = r.tick()
	r.windows[id] = a
	return &a, nil
}

func (r *memRepo) DeleteAvailability(_ context.Context, id uuid.UUID) (*Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.windows[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	delete(r.windows, id)
	return &a, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[a.DoctorID]; !ok {
		return nil, ErrUserNotFound
	}
	if a.PatientID != nil {
		if _, ok := r.users[*a.PatientID]; !ok {
			return nil, ErrUserNotFound
		}
	}
	for _, existing := range r.appointments {
		if existing.DoctorID == a.DoctorID && existing.Date == a.Date && existing.Time == a.Time &&
			existing.Status != StatusCancelled {
			return nil, ErrSlotTaken
		}
	}

	now := r.tick()
	a.CreatedAt, a.UpdatedAt = now, now
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || !slices.Contains(from, a.Status) {
		return nil, ErrAppointmentNotFound
	}
	a.Status, a.UpdatedAt = to, r.tick()
	r.appointments[id] = a
	return &a, nil
}

func (r *memRepo) FindBookedInTimeRange(_ context.Context, doctorID uuid.UUID, start, end TimeOfDay, from Date) ([]Appointment, error) {
	return r.filterAppointments(func(a Appointment) bool {
		return a.DoctorID == doctorID && a.Status == StatusBooked &&
			a.Time >= start && a.Time < end && !a.Date.Before(from)
	}), nil
}

func (r *memRepo) BulkCancel(_ context.Context, ids []uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulkCancelCalls++
	if r.bulkCancelErr != nil {
		return nil, r.bulkCancelErr
	}

	var out []Appointment
	now := r.tick()
	for _, id := range ids {
		a, ok := r.appointments[id]
		if !ok || a.Status != StatusBooked {
			continue
		}
		a.Status, a.UpdatedAt = StatusCancelled, now
		r.appointments[id] = a
		out = append(out, a)
	}
	return out, nil
}

func (r *memRepo) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, from, to Date) ([]Appointment, error) {
	return r.filterAppointments(func(a Appointment) bool {
		return a.DoctorID == doctorID && !a.Date.Before(from) && !a.Date.After(to)
	}), nil
}

func (r *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, from, to Date) ([]Appointment, error) {
	return r.filterAppointments(func(a Appointment) bool {
		return a.PatientID != nil && *a.PatientID == patientID && !a.Date.Before(from) && !a.Date.After(to)
	}), nil
}

func (r *memRepo) FindBookedBefore(_ context.Context, date Date, t TimeOfDay) ([]Appointment, error) {
	return r.filterAppointments(func(a Appointment) bool {
		return a.Status == StatusBooked && (a.Date.Before(date) || (a.Date == date && a.Time < t))
	}), nil
}

func (r *memRepo) filterAppointments(keep func(Appointment) bool) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (r *memRepo) InsertNotification(_ context.Context, n Notification) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.notificationErr != nil {
		if err := r.notificationErr(n); err != nil {
			return nil, err
		}
	}
	n.Metadata = maps.Clone(n.Metadata)
	r.notifications = append(r.notifications, n)
	return &n, nil
}

func (r *memRepo) ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	out := r.notificationsFor(userID)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsRead != out[j].IsRead {
			return !out[i].IsRead
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) WithScheduleTx(_ context.Context, _ uuid.UUID, mode LockMode, fn func(tx Repository) error) error {
	if mode == LockShared {
		r.txMu.RLock()
		defer r.txMu.RUnlock()
		return fn(r)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	windows := maps.Clone(r.windows)
	appointments := maps.Clone(r.appointments)
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.windows = windows
		r.appointments = appointments
		r.mu.Unlock()
		return err
	}
	return nil
}

// fakeLocker runs fn directly, or fails every call with err.
type fakeLocker struct {
	err  error
	mu   sync.Mutex
	keys []string
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, slotKey)
	l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return p.err
}
