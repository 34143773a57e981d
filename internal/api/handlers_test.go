package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

var testSecret = []byte("test-secret")

type mockService struct {
	ExecuteFn           func(ctx context.Context, id scheduling.Identity, req scheduling.Request) (any, error)
	BookFn              func(ctx context.Context, id scheduling.Identity, req scheduling.BookRequest) (*scheduling.Appointment, error)
	BlockFn             func(ctx context.Context, id scheduling.Identity, req scheduling.BlockRequest) (*scheduling.Appointment, error)
	CancelFn            func(ctx context.Context, id scheduling.Identity, req scheduling.CancelRequest) (*scheduling.CancelResult, error)
	UpsertFn            func(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityUpsert) (*scheduling.Availability, error)
	UpdateFn            func(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityUpdate) (*scheduling.AvailabilityChange, error)
	DeleteFn            func(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityDelete) (*scheduling.AvailabilityChange, error)
	ListAvailabilityFn  func(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Availability, error)
	GetAppointmentFn    func(ctx context.Context, id scheduling.Identity, appointmentID uuid.UUID) (*scheduling.Appointment, error)
	ListAppointmentsFn  func(ctx context.Context, id scheduling.Identity, from, to scheduling.Date) ([]scheduling.Appointment, error)
	ListNotificationsFn func(ctx context.Context, id scheduling.Identity, limit int) ([]scheduling.Notification, error)
}

func (m *mockService) Execute(ctx context.Context, id scheduling.Identity, req scheduling.Request) (any, error) {
	return m.ExecuteFn(ctx, id, req)
}

func (m *mockService) BookAppointment(ctx context.Context, id scheduling.Identity, req scheduling.BookRequest) (*scheduling.Appointment, error) {
	return m.BookFn(ctx, id, req)
}

func (m *mockService) BlockSlot(ctx context.Context, id scheduling.Identity, req scheduling.BlockRequest) (*scheduling.Appointment, error) {
	return m.BlockFn(ctx, id, req)
}

func (m *mockService) CancelAppointment(ctx context.Context, id scheduling.Identity, req scheduling.CancelRequest) (*scheduling.CancelResult, error) {
	return m.CancelFn(ctx, id, req)
}

func (m *mockService) CreateOrUpdateAvailability(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityUpsert) (*scheduling.Availability, error) {
	return m.UpsertFn(ctx, id, req)
}

func (m *mockService) UpdateAvailability(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityUpdate) (*scheduling.AvailabilityChange, error) {
	return m.UpdateFn(ctx, id, req)
}

func (m *mockService) DeleteAvailability(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityDelete) (*scheduling.AvailabilityChange, error) {
	return m.DeleteFn(ctx, id, req)
}

func (m *mockService) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Availability, error) {
	return m.ListAvailabilityFn(ctx, doctorID)
}

func (m *mockService) GetAppointment(ctx context.Context, id scheduling.Identity, appointmentID uuid.UUID) (*scheduling.Appointment, error) {
	return m.GetAppointmentFn(ctx, id, appointmentID)
}

func (m *mockService) ListAppointments(ctx context.Context, id scheduling.Identity, from, to scheduling.Date) ([]scheduling.Appointment, error) {
	return m.ListAppointmentsFn(ctx, id, from, to)
}

func (m *mockService) ListNotifications(ctx context.Context, id scheduling.Identity, limit int) ([]scheduling.Notification, error) {
	return m.ListNotificationsFn(ctx, id, limit)
}

func newTestRouter(svc ScheduleService, limiter *RateLimiter) http.Handler {
	return NewRouter(RouterConfig{
		Service:  svc,
		Verifier: auth.NewVerifier(testSecret, "test"),
		Limiter:  limiter,
		Logger:   zerolog.Nop(),
		Env:      "test",
		Version:  "v0",
	})
}

func tokenFor(t *testing.T, id scheduling.Identity) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, "test", id, time.Hour)
	require.NoError(t, err)
	return tok
}

func doRequest(t *testing.T, h http.Handler, method, path string, id *scheduling.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if id != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *id))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestBookAppointment_Created(t *testing.T) {
	patient := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RolePatient}
	doctorID := uuid.New()

	svc := &mockService{
		BookFn: func(_ context.Context, id scheduling.Identity, req scheduling.BookRequest) (*scheduling.Appointment, error) {
			assert.Equal(t, patient, id)
			assert.Equal(t, patient.UserID, req.PatientID, "patient defaults to the caller")
			assert.Equal(t, doctorID, req.DoctorID)
			assert.Equal(t, "2030-01-07", req.Date.String())
			assert.Equal(t, scheduling.NewTimeOfDay(9, 30), req.Time)

			pid := req.PatientID
			return &scheduling.Appointment{
				ID:        uuid.New(),
				DoctorID:  req.DoctorID,
				PatientID: &pid,
				Date:      req.Date,
				Time:      req.Time,
				Status:    scheduling.StatusBooked,
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/appointments", &patient, BookAppointmentRequest{
		DoctorID: doctorID.String(),
		Date:     "2030-01-07",
		Time:     "09:30",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "booked", resp.Status)
	assert.Equal(t, "09:30", resp.Time)
	assert.Equal(t, "2030-01-07", resp.Date)
}

func TestBookAppointment_BadInput(t *testing.T) {
	patient := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RolePatient}
	svc := &mockService{}
	h := newTestRouter(svc, nil)

	tests := []struct {
		name string
		body BookAppointmentRequest
		code string
	}{
		{"bad doctor", BookAppointmentRequest{DoctorID: "nope", Date: "2030-01-07", Time: "09:00"}, "invalid_doctor_id"},
		{"bad patient", BookAppointmentRequest{DoctorID: uuid.NewString(), PatientID: "x", Date: "2030-01-07", Time: "09:00"}, "invalid_patient_id"},
		{"bad date", BookAppointmentRequest{DoctorID: uuid.NewString(), Date: "07/01/2030", Time: "09:00"}, "invalid_date"},
		{"bad time", BookAppointmentRequest{DoctorID: uuid.NewString(), Date: "2030-01-07", Time: "25:00"}, "invalid_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/appointments", &patient, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestRequiresBearerToken(t *testing.T) {
	rec := doRequest(t, newTestRouter(&mockService{}, nil), http.MethodGet, "/appointments", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Error)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{scheduling.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{fmt.Errorf("%w: slot is currently being booked", scheduling.ErrSlotTaken), http.StatusConflict, "slot_taken"},
		{scheduling.ErrNoAvailability, http.StatusConflict, "no_availability"},
		{scheduling.ErrForbidden, http.StatusForbidden, "forbidden"},
		{scheduling.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{scheduling.ErrInvalidRange, http.StatusUnprocessableEntity, "invalid_range"},
		{scheduling.ErrOverlappingWindow, http.StatusConflict, "overlapping_window"},
		{scheduling.ErrPastDate, http.StatusUnprocessableEntity, "past_date"},
		{scheduling.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("load doctor: %w", scheduling.ErrUserNotFound), http.StatusNotFound, "user_not_found"},
		{scheduling.ErrAvailabilityNotFound, http.StatusNotFound, "availability_not_found"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	patient := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RolePatient}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &mockService{
				BookFn: func(context.Context, scheduling.Identity, scheduling.BookRequest) (*scheduling.Appointment, error) {
					return nil, tt.err
				},
			}
			rec := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/appointments", &patient, BookAppointmentRequest{
				DoctorID: uuid.NewString(),
				Date:     "2030-01-07",
				Time:     "09:00",
			})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
		})
	}
}

func TestCancelAppointment_ReportsNotificationFailures(t *testing.T) {
	doctor := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RoleDoctor}
	apptID := uuid.New()

	svc := &mockService{
		CancelFn: func(_ context.Context, _ scheduling.Identity, req scheduling.CancelRequest) (*scheduling.CancelResult, error) {
			assert.Equal(t, apptID, req.AppointmentID)
			return &scheduling.CancelResult{
				Appointment:          &scheduling.Appointment{ID: apptID, DoctorID: doctor.UserID, Status: scheduling.StatusCancelled},
				NotificationFailures: []scheduling.NotificationFailure{{Err: errors.New("boom")}},
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/appointments/"+apptID.String()+"/cancel", &doctor, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Appointment.Status)
	assert.Equal(t, 1, resp.NotificationFailures)
}

func TestDeleteAvailability_ReturnsCancelledCount(t *testing.T) {
	doctor := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RoleDoctor}
	windowID := uuid.New()

	svc := &mockService{
		DeleteFn: func(_ context.Context, _ scheduling.Identity, req scheduling.AvailabilityDelete) (*scheduling.AvailabilityChange, error) {
			return &scheduling.AvailabilityChange{
				Availability: &scheduling.Availability{
					ID:        req.AvailabilityID,
					DoctorID:  doctor.UserID,
					DayOfWeek: scheduling.Monday,
					StartTime: scheduling.NewTimeOfDay(9, 0),
					EndTime:   scheduling.NewTimeOfDay(12, 0),
				},
				Cancelled: []scheduling.Appointment{
					{ID: uuid.New(), Status: scheduling.StatusCancelled},
					{ID: uuid.New(), Status: scheduling.StatusCancelled},
				},
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc, nil), http.MethodDelete, "/availability/"+windowID.String(), &doctor, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AvailabilityChangeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.CancelledAppointmentCount)
	assert.Len(t, resp.CancelledAppointments, 2)
	assert.Equal(t, windowID, resp.Availability.ID)
	assert.Equal(t, "09:00", resp.Availability.StartTime)
}

func TestUpsertAvailability_ParsesDayAndTimes(t *testing.T) {
	doctor := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RoleDoctor}

	svc := &mockService{
		UpsertFn: func(_ context.Context, _ scheduling.Identity, req scheduling.AvailabilityUpsert) (*scheduling.Availability, error) {
			assert.Equal(t, doctor.UserID, req.DoctorID)
			assert.Equal(t, scheduling.Wednesday, req.DayOfWeek)
			return &scheduling.Availability{
				ID:        uuid.New(),
				DoctorID:  req.DoctorID,
				DayOfWeek: req.DayOfWeek,
				StartTime: req.StartTime,
				EndTime:   req.EndTime,
			}, nil
		},
	}

	path := "/doctors/" + doctor.UserID.String() + "/availability"
	rec := doRequest(t, newTestRouter(svc, nil), http.MethodPut, path, &doctor, AvailabilityRequest{
		DayOfWeek: "Wednesday",
		StartTime: "13:00",
		EndTime:   "17:00",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "wednesday", resp.DayOfWeek)
	assert.Equal(t, "17:00", resp.EndTime)
}

func TestMutationEnvelope_Dispatch(t *testing.T) {
	patient := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RolePatient}
	apptID := uuid.New()

	var got scheduling.Request
	svc := &mockService{
		ExecuteFn: func(_ context.Context, _ scheduling.Identity, req scheduling.Request) (any, error) {
			got = req
			return &scheduling.CancelResult{
				Appointment: &scheduling.Appointment{ID: apptID, Status: scheduling.StatusCancelled},
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/schedule/mutations", &patient, map[string]any{
		"type": "cancel",
		"data": map[string]string{"appointment_id": apptID.String()},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scheduling.CancelRequest{AppointmentID: apptID}, got)

	var resp struct {
		Type   string         `json:"type"`
		Result CancelResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancel", resp.Type)
	assert.Equal(t, apptID, resp.Result.Appointment.ID)
}

func TestMutationEnvelope_BookDefaultsPatient(t *testing.T) {
	patient := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RolePatient}
	doctorID := uuid.New()

	var got scheduling.Request
	svc := &mockService{
		ExecuteFn: func(_ context.Context, _ scheduling.Identity, req scheduling.Request) (any, error) {
			got = req
			return &scheduling.Appointment{ID: uuid.New(), Status: scheduling.StatusBooked}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/schedule/mutations", &patient, map[string]any{
		"type": "book",
		"data": map[string]string{"doctor_id": doctorID.String(), "date": "2030-01-07", "time": "10:00"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	book, ok := got.(scheduling.BookRequest)
	require.True(t, ok)
	assert.Equal(t, patient.UserID, book.PatientID)
	assert.Equal(t, doctorID, book.DoctorID)
	assert.Equal(t, scheduling.NewTimeOfDay(10, 0), book.Time)
}

func TestMutationEnvelope_Rejects(t *testing.T) {
	patient := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RolePatient}
	h := newTestRouter(&mockService{}, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown type", map[string]any{"type": "reschedule", "data": map[string]string{}}},
		{"missing data", map[string]any{"type": "cancel"}},
		{"bad field", map[string]any{"type": "cancel", "data": map[string]string{"appointment_id": "nope"}}},
		{"bad time", map[string]any{"type": "availability_update", "data": map[string]string{
			"availability_id": uuid.NewString(), "start_time": "9am", "end_time": "10:00",
		}}},
		{"book without time", map[string]any{"type": "book", "data": map[string]string{
			"doctor_id": uuid.NewString(), "date": "2030-01-07",
		}}},
		{"block without date", map[string]any{"type": "block", "data": map[string]string{
			"doctor_id": uuid.NewString(), "time": "09:00",
		}}},
		{"upsert without start", map[string]any{"type": "availability_upsert", "data": map[string]string{
			"doctor_id": uuid.NewString(), "day_of_week": "monday", "end_time": "12:00",
		}}},
		{"update with null end", map[string]any{"type": "availability_update", "data": map[string]any{
			"availability_id": uuid.NewString(), "start_time": "09:00", "end_time": nil,
		}}},
		{"delete without id", map[string]any{"type": "availability_delete", "data": map[string]string{}}},
		{"data not an object", map[string]any{"type": "cancel", "data": []string{"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/schedule/mutations", &patient, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_mutation", decodeError(t, rec).Error)
		})
	}
}

func TestDecodeMutation_RequiresTimes(t *testing.T) {
	doctorID := uuid.NewString()

	_, err := decodeMutation(MutationEnvelope{
		Type: scheduling.KindAvailabilityUpsert,
		Data: json.RawMessage(`{"doctor_id":"` + doctorID + `","day_of_week":"monday","end_time":"12:00"}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_time is required")

	req, err := decodeMutation(MutationEnvelope{
		Type: scheduling.KindAvailabilityUpsert,
		Data: json.RawMessage(`{"doctor_id":"` + doctorID + `","day_of_week":"monday","start_time":"00:00","end_time":"12:00"}`),
	})
	require.NoError(t, err, "an explicit midnight start is still accepted")
	assert.Equal(t, scheduling.TimeOfDay(0), req.(scheduling.AvailabilityUpsert).StartTime)

	_, err = decodeMutation(MutationEnvelope{
		Type: scheduling.KindBook,
		Data: json.RawMessage(`{"doctor_id":"` + doctorID + `","date":"2030-01-07"}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time is required")
}

func TestListNotifications_Limit(t *testing.T) {
	patient := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RolePatient}

	svc := &mockService{
		ListNotificationsFn: func(_ context.Context, id scheduling.Identity, limit int) ([]scheduling.Notification, error) {
			assert.Equal(t, 5, limit)
			return []scheduling.Notification{{
				ID:      uuid.New(),
				UserID:  id.UserID,
				Type:    scheduling.NotificationCancelledByDoctor,
				Message: "Dr. Grey cancelled your appointment.",
			}}, nil
		},
	}
	h := newTestRouter(svc, nil)

	rec := doRequest(t, h, http.MethodGet, "/notifications?limit=5", &patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []NotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, string(scheduling.NotificationCancelledByDoctor), resp[0].Type)

	rec = doRequest(t, h, http.MethodGet, "/notifications?limit=-1", &patient, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAppointments_ParsesRange(t *testing.T) {
	doctor := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RoleDoctor}

	svc := &mockService{
		ListAppointmentsFn: func(_ context.Context, _ scheduling.Identity, from, to scheduling.Date) ([]scheduling.Appointment, error) {
			assert.Equal(t, "2030-01-01", from.String())
			assert.True(t, to.IsZero())
			return nil, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc, nil), http.MethodGet, "/appointments?from=2030-01-01", &doctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRateLimiter_RejectsBurst(t *testing.T) {
	doctor := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RoleDoctor}
	svc := &mockService{
		BlockFn: func(_ context.Context, _ scheduling.Identity, req scheduling.BlockRequest) (*scheduling.Appointment, error) {
			return &scheduling.Appointment{ID: uuid.New(), DoctorID: req.DoctorID, Status: scheduling.StatusBlocked}, nil
		},
	}

	limiter := NewRateLimiter(0.001, 2)
	h := newTestRouter(svc, limiter)
	path := "/doctors/" + doctor.UserID.String() + "/blocks"
	body := BlockSlotRequest{Date: "2030-01-07", Time: "09:00"}

	assert.Equal(t, http.StatusCreated, doRequest(t, h, http.MethodPost, path, &doctor, body).Code)
	assert.Equal(t, http.StatusCreated, doRequest(t, h, http.MethodPost, path, &doctor, body).Code)

	rec := doRequest(t, h, http.MethodPost, path, &doctor, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Error)

	other := scheduling.Identity{UserID: uuid.New(), Role: scheduling.RoleDoctor}
	otherPath := "/doctors/" + other.UserID.String() + "/blocks"
	assert.Equal(t, http.StatusCreated, doRequest(t, h, http.MethodPost, otherPath, &other, body).Code,
		"limits are tracked per user")
}

func TestRateLimiter_EvictsIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	now = now.Add(time.Hour)
	assert.True(t, rl.Allow("b"))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "a")
	assert.Contains(t, rl.limiters, "b")
}

func TestHealth(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name     string
		postgres Pinger
		redis    Pinger
		status   int
		want     string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
		{"not configured", nil, nil, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Postgres: tt.postgres, Redis: tt.redis, Logger: zerolog.Nop()})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Status)
		})
	}

	rec := httptest.NewRecorder()
	NewRouter(RouterConfig{Logger: zerolog.Nop()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := NewRouter(RouterConfig{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
