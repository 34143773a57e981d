package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	db   querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, db: pool}
}

var _ Repository = (*PgRepository)(nil)

const (
	availabilityColumns = `id, doctor_id, day_of_week, start_time, end_time, created_at, updated_at`
	appointmentColumns  = `id, doctor_id, patient_id, appointment_date, appointment_time, status, created_at, updated_at`
	notificationColumns = `id, user_id, type, message, link_url, metadata, created_at, is_read`
)

// Helpers

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Second/time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Second/time.Microsecond))
}

func pgDate(d Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func fromPgDate(d pgtype.Date) Date {
	return DateOf(d.Time.UTC())
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(&u.ID, &u.DisplayName, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	var start, end pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.DayOfWeek,
		&start,
		&end,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, err
	}

	a.StartTime = fromPgTime(start)
	a.EndTime = fromPgTime(end)
	return &a, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var patientID *uuid.UUID
	var date pgtype.Date
	var at pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&patientID,
		&date,
		&at,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.PatientID = patientID
	a.Date = fromPgDate(date)
	a.Time = fromPgTime(at)
	return &a, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var link *string

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Message,
		&link,
		&n.Metadata,
		&n.CreatedAt,
		&n.IsRead,
	)
	if err != nil {
		return nil, err
	}

	if link != nil {
		n.LinkURL = *link
	}
	return &n, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, display_name, role, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE id = $1
	`, id)
	return scanAvailability(row)
}

func (r *PgRepository) ListAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE doctor_id = $1
		ORDER BY array_position(ARRAY['monday','tuesday','wednesday','thursday','friday','saturday','sunday'], day_of_week),
		         start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAvailability)
}

func (r *PgRepository) ListAvailabilityByDay(ctx context.Context, doctorID uuid.UUID, day DayOfWeek) ([]Availability, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE doctor_id = $1
		  AND day_of_week = $2
		ORDER BY start_time
	`, doctorID, string(day))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAvailability)
}

func (r *PgRepository) InsertAvailability(ctx context.Context, a Availability) (*Availability, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO availability (id, doctor_id, day_of_week, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+availabilityColumns,
		a.ID, a.DoctorID, string(a.DayOfWeek), pgTime(a.StartTime), pgTime(a.EndTime))

	saved, err := scanAvailability(row)
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return nil, fmt.Errorf("doctor %s: %w", a.DoctorID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("insert availability: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) UpdateAvailabilityTimes(ctx context.Context, id uuid.UUID, start, end TimeOfDay) (*Availability, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE availability
		SET start_time = $2,
		    end_time = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+availabilityColumns,
		id, pgTime(start), pgTime(end))
	return scanAvailability(row)
}

func (r *PgRepository) TouchAvailability(ctx context.Context, id uuid.UUID) (*Availability, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE availability
		SET updated_at = now()
		WHERE id = $1
		RETURNING `+availabilityColumns, id)
	return scanAvailability(row)
}

func (r *PgRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) (*Availability, error) {
	row := r.db.QueryRow(ctx, `
		DELETE FROM availability
		WHERE id = $1
		RETURNING `+availabilityColumns, id)
	return scanAvailability(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// InsertAppointment relies on appointments_active_slot_idx, a unique index over
// (doctor_id, appointment_date, appointment_time) for non-cancelled rows.
func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, appointment_date, appointment_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, pgDate(a.Date), pgTime(a.Time), string(a.Status))

	saved, err := scanAppointment(row)
	if err != nil {
		switch {
		case isPgCode(err, pgUniqueViolation):
			return nil, ErrSlotTaken
		case isPgCode(err, pgForeignKeyViolation):
			return nil, fmt.Errorf("appointment party: %w", ErrUserNotFound)
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, string(to), allowed)

	return scanAppointment(row)
}

func (r *PgRepository) FindBookedInTimeRange(ctx context.Context, doctorID uuid.UUID, start, end TimeOfDay, from Date) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'booked'
		  AND appointment_time >= $2
		  AND appointment_time < $3
		  AND appointment_date >= $4
		ORDER BY appointment_date, appointment_time
	`, doctorID, pgTime(start), pgTime(end), pgDate(from))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) BulkCancel(ctx context.Context, ids []uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = ANY($1)
		  AND status = 'booked'
		RETURNING `+appointmentColumns, ids)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to Date) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, appointment_time
	`, doctorID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, from, to Date) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, appointment_time
	`, patientID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) FindBookedBefore(ctx context.Context, date Date, t TimeOfDay) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'booked'
		  AND (appointment_date < $1
		       OR (appointment_date = $1 AND appointment_time < $2))
		ORDER BY appointment_date, appointment_time
		LIMIT 1000
	`, pgDate(date), pgTime(t))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) InsertNotification(ctx context.Context, n Notification) (*Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Metadata == nil {
		n.Metadata = map[string]string{}
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, message, link_url, metadata, created_at, is_read)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, COALESCE($7, now()), false)
		RETURNING `+notificationColumns,
		n.ID, n.UserID, string(n.Type), n.Message, n.LinkURL, n.Metadata, nullableTime(n.CreatedAt))

	saved, err := scanNotification(row)
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return nil, fmt.Errorf("recipient %s: %w", n.UserID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) ListNotificationsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY is_read ASC, created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanNotification)
}

// WithScheduleTx takes a transaction-scoped advisory lock keyed on the doctor.
// Called on a repository that is already inside a transaction, it takes the
// lock in that transaction instead of opening a new one.
func (r *PgRepository) WithScheduleTx(ctx context.Context, doctorID uuid.UUID, mode LockMode, fn func(tx Repository) error) error {
	lockSQL := `SELECT pg_advisory_xact_lock_shared(hashtextextended($1, 0))`
	if mode == LockExclusive {
		lockSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	}
	lockKey := "schedule:" + doctorID.String()

	if r.pool == nil {
		if _, err := r.db.Exec(ctx, lockSQL, lockKey); err != nil {
			return fmt.Errorf("acquire schedule lock: %w", err)
		}
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, lockSQL, lockKey); err != nil {
		return fmt.Errorf("acquire schedule lock: %w", err)
	}

	if err := fn(&PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schedule tx: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
