package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrInvalidRange      = errors.New("start_time must be before end_time")
	ErrNoAvailability    = errors.New("no availability window covers the requested time")
	ErrSlotTaken         = errors.New("slot already taken")
	ErrOverlappingWindow = errors.New("availability window overlaps an existing window")
	ErrPastDate          = errors.New("date must be today or later")
	ErrInvalidInput      = errors.New("invalid input")
)

var (
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrAvailabilityNotFound = fmt.Errorf("availability %w", ErrNotFound)
	ErrAppointmentNotFound  = fmt.Errorf("appointment %w", ErrNotFound)
)
