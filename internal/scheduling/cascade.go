package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Cascade finds and cancels the booked appointments that lose their
// enabling window when a doctor removes or shrinks it.
type Cascade struct{}

// Affected returns the booked appointments on or after from that fall inside
// window: same doctor, time in [start, end) and a date on the window's weekday.
func (Cascade) Affected(ctx context.Context, repo Repository, window Availability, from Date) ([]Appointment, error) {
	candidates, err := repo.FindBookedInTimeRange(ctx, window.DoctorID, window.StartTime, window.EndTime, from)
	if err != nil {
		return nil, fmt.Errorf("find booked appointments: %w", err)
	}

	weekday := window.DayOfWeek.Weekday()
	return lo.Filter(candidates, func(a Appointment, _ int) bool {
		return a.Date.Weekday() == weekday && window.Contains(a.Time)
	}), nil
}

// Orphaned returns the appointments inside before that the narrower after no
// longer covers.
func (c Cascade) Orphaned(ctx context.Context, repo Repository, before, after Availability, from Date) ([]Appointment, error) {
	affected, err := c.Affected(ctx, repo, before, from)
	if err != nil {
		return nil, err
	}
	return lo.Reject(affected, func(a Appointment, _ int) bool {
		return after.Contains(a.Time)
	}), nil
}

// CancelAll moves every appointment in appts to cancelled in one statement.
// Appointments that changed state concurrently are left out of the result.
func (Cascade) CancelAll(ctx context.Context, repo Repository, appts []Appointment) ([]Appointment, error) {
	if len(appts) == 0 {
		return nil, nil
	}
	ids := lo.Map(appts, func(a Appointment, _ int) uuid.UUID { return a.ID })
	cancelled, err := repo.BulkCancel(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("bulk cancel %d appointments: %w", len(ids), err)
	}
	return cancelled, nil
}
