package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher signals the external delivery layer that a notification row exists.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Event is one state change to report to the counterpart of an appointment.
type Event struct {
	Recipient   uuid.UUID
	Type        NotificationType
	Appointment Appointment
	// Actor is the party whose action caused the event. May be nil when the
	// actor could not be resolved.
	Actor *User
	// Window is set when the cancellation was caused by an availability change.
	Window *Availability
}

// Emitter writes notification records. It never reads prior notifications and
// never pushes to clients.
type Emitter struct {
	repo Repository
	pub  Publisher
	log  zerolog.Logger
	now  func() time.Time
}

func NewEmitter(repo Repository, pub Publisher, logger zerolog.Logger) *Emitter {
	return &Emitter{repo: repo, pub: pub, log: logger, now: time.Now}
}

// Emit writes a pre-rendered n for its recipient. Duplicate calls produce
// duplicate rows.
func (e *Emitter) Emit(ctx context.Context, n Notification) (*Notification, error) {
	if _, err := e.recipient(ctx, n.UserID); err != nil {
		return nil, err
	}
	return e.insert(ctx, n)
}

// Notify renders ev for its recipient and writes it.
func (e *Emitter) Notify(ctx context.Context, ev Event) error {
	recipient, err := e.recipient(ctx, ev.Recipient)
	if err != nil {
		return err
	}

	metadata := map[string]string{
		"appointment_id": ev.Appointment.ID.String(),
		"date":           ev.Appointment.Date.String(),
		"time":           ev.Appointment.Time.String(),
	}
	if ev.Actor != nil {
		metadata["counterpart_id"] = ev.Actor.ID.String()
	}
	if ev.Window != nil {
		metadata["availability_id"] = ev.Window.ID.String()
	}

	_, err = e.insert(ctx, Notification{
		UserID:   recipient.ID,
		Type:     ev.Type,
		Message:  renderMessage(ev),
		LinkURL:  scheduleLink(recipient, ev.Appointment),
		Metadata: metadata,
	})
	return err
}

// NotifyAll emits every event independently. Failures are logged and returned;
// they never stop the remaining events.
func (e *Emitter) NotifyAll(ctx context.Context, events []Event) []NotificationFailure {
	var failures []NotificationFailure
	for _, ev := range events {
		if err := e.Notify(ctx, ev); err != nil {
			e.log.Warn().
				Err(err).
				Str("user_id", ev.Recipient.String()).
				Str("appointment_id", ev.Appointment.ID.String()).
				Str("type", string(ev.Type)).
				Msg("notification not written")
			failures = append(failures, NotificationFailure{
				UserID:        ev.Recipient,
				AppointmentID: ev.Appointment.ID,
				Type:          ev.Type,
				Err:           err,
			})
		}
	}
	return failures
}

func (e *Emitter) recipient(ctx context.Context, userID uuid.UUID) (*User, error) {
	u, err := e.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipient %s: %w", userID, err)
	}
	return u, nil
}

func (e *Emitter) insert(ctx context.Context, n Notification) (*Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = e.now()
	}
	n.IsRead = false

	saved, err := e.repo.InsertNotification(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	e.publish(ctx, saved)
	return saved, nil
}

func (e *Emitter) publish(ctx context.Context, n *Notification) {
	if e.pub == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"id":      n.ID.String(),
		"user_id": n.UserID.String(),
		"type":    string(n.Type),
	})
	if err != nil {
		e.log.Error().Err(err).Msg("marshal notification signal")
		return
	}
	if err := e.pub.Publish(ctx, NotificationChannel(n.UserID), payload); err != nil {
		e.log.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("publish notification signal")
	}
}

// NotificationChannel is the pub/sub channel the delivery layer subscribes to
// for one recipient.
func NotificationChannel(userID uuid.UUID) string {
	return "notifications:" + userID.String()
}

func renderMessage(ev Event) string {
	when := fmt.Sprintf("%s at %s", ev.Appointment.Date.In(time.UTC).Format("Mon, Jan 2 2006"), ev.Appointment.Time)

	switch ev.Type {
	case NotificationBooked:
		return fmt.Sprintf("%s booked an appointment with you on %s.", actorName(ev.Actor, "A patient"), when)
	case NotificationCancelledByPatient:
		return fmt.Sprintf("%s cancelled their appointment on %s.", actorName(ev.Actor, "A patient"), when)
	case NotificationCancelledByDoctor:
		doctor := "Your doctor"
		if ev.Actor != nil && ev.Actor.DisplayName != "" {
			doctor = "Dr. " + ev.Actor.DisplayName
		}
		if ev.Window != nil {
			return fmt.Sprintf("%s changed their availability on %ss. Your appointment on %s has been cancelled.",
				doctor, titleDay(ev.Window.DayOfWeek), when)
		}
		return fmt.Sprintf("%s cancelled your appointment on %s.", doctor, when)
	default:
		return fmt.Sprintf("Your appointment on %s was updated.", when)
	}
}

func actorName(u *User, fallback string) string {
	if u == nil || u.DisplayName == "" {
		return fallback
	}
	return u.DisplayName
}

func titleDay(d DayOfWeek) string {
	return d.Weekday().String()
}

// scheduleLink deep-links the recipient to the view where the change shows up.
// Admin recipients are routed inside the embedded admin panel.
func scheduleLink(recipient *User, appt Appointment) string {
	switch recipient.Role {
	case RoleDoctor:
		return "/doctor/schedule?date=" + appt.Date.String()
	case RoleAdmin:
		return "admin:appointments"
	default:
		return "/appointments/" + appt.ID.String()
	}
}
