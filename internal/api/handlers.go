package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

func bookAppointmentHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		patientID := id.UserID
		if req.PatientID != "" {
			patientID, err = uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		}

		date, t, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		appt, err := svc.BookAppointment(r.Context(), id, scheduling.BookRequest{
			DoctorID:  doctorID,
			PatientID: patientID,
			Date:      date,
			Time:      t,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func blockSlotHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		doctorID, ok := uuidParam(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		var req BlockSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, t, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		appt, err := svc.BlockSlot(r.Context(), id, scheduling.BlockRequest{DoctorID: doctorID, Date: date, Time: t})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		apptID, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		result, err := svc.CancelAppointment(r.Context(), id, scheduling.CancelRequest{AppointmentID: apptID})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toCancelResponse(result))
	}
}

func getAppointmentHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		apptID, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id, apptID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var from, to scheduling.Date
		var err error
		if v := r.URL.Query().Get("from"); v != "" {
			if from, err = scheduling.ParseDate(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
		}
		if v := r.URL.Query().Get("to"); v != "" {
			if to, err = scheduling.ParseDate(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
		}

		appts, err := svc.ListAppointments(r.Context(), id, from, to)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func listAvailabilityHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		windows, err := svc.ListAvailability(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]AvailabilityResponse, 0, len(windows))
		for i := range windows {
			resp = append(resp, toAvailabilityResponse(&windows[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func upsertAvailabilityHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		doctorID, ok := uuidParam(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		var req AvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		day, err := scheduling.ParseDayOfWeek(req.DayOfWeek)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day_of_week", "day_of_week must be a weekday name")
			return
		}
		start, end, ok := parseTimes(w, req.StartTime, req.EndTime)
		if !ok {
			return
		}

		saved, err := svc.CreateOrUpdateAvailability(r.Context(), id, scheduling.AvailabilityUpsert{
			DoctorID:  doctorID,
			DayOfWeek: day,
			StartTime: start,
			EndTime:   end,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(saved))
	}
}

func updateAvailabilityHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		availabilityID, ok := uuidParam(w, r, "id", "invalid_availability_id")
		if !ok {
			return
		}

		var req AvailabilityTimesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		start, end, ok := parseTimes(w, req.StartTime, req.EndTime)
		if !ok {
			return
		}

		change, err := svc.UpdateAvailability(r.Context(), id, scheduling.AvailabilityUpdate{
			AvailabilityID: availabilityID,
			StartTime:      start,
			EndTime:        end,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityChangeResponse(change))
	}
}

func deleteAvailabilityHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}
		availabilityID, ok := uuidParam(w, r, "id", "invalid_availability_id")
		if !ok {
			return
		}

		change, err := svc.DeleteAvailability(r.Context(), id, scheduling.AvailabilityDelete{AvailabilityID: availabilityID})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityChangeResponse(change))
	}
}

// mutationHandler accepts any schedule mutation as a tagged envelope and
// dispatches it through the service.
func mutationHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		var env MutationEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		req, err := decodeMutation(env)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_mutation", err.Error())
			return
		}
		if book, isBook := req.(scheduling.BookRequest); isBook && book.PatientID == uuid.Nil {
			book.PatientID = id.UserID
			req = book
		}

		result, err := svc.Execute(r.Context(), id, req)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MutationResponse{Type: req.Kind(), Result: renderResult(result)})
	}
}

func decodeMutation(env MutationEnvelope) (scheduling.Request, error) {
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("data is required")
	}

	var (
		req scheduling.Request
		err error
	)
	switch env.Type {
	case scheduling.KindBook:
		req, err = decodeAs[scheduling.BookRequest](env.Data, "doctor_id", "date", "time")
	case scheduling.KindBlock:
		req, err = decodeAs[scheduling.BlockRequest](env.Data, "doctor_id", "date", "time")
	case scheduling.KindCancel:
		req, err = decodeAs[scheduling.CancelRequest](env.Data, "appointment_id")
	case scheduling.KindAvailabilityUpsert:
		req, err = decodeAs[scheduling.AvailabilityUpsert](env.Data, "doctor_id", "day_of_week", "start_time", "end_time")
	case scheduling.KindAvailabilityUpdate:
		req, err = decodeAs[scheduling.AvailabilityUpdate](env.Data, "availability_id", "start_time", "end_time")
	case scheduling.KindAvailabilityDelete:
		req, err = decodeAs[scheduling.AvailabilityDelete](env.Data, "availability_id")
	default:
		return nil, fmt.Errorf("unknown mutation type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return req, nil
}

// decodeAs decodes data into the variant T. Every key in required must be
// present and non-null: a zero TimeOfDay is midnight, so absence cannot be
// detected after decoding.
func decodeAs[T scheduling.Request](data json.RawMessage, required ...string) (scheduling.Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for _, key := range required {
		raw, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, fmt.Errorf("%s is required", key)
		}
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func renderResult(result any) any {
	switch v := result.(type) {
	case *scheduling.Appointment:
		return toAppointmentResponse(v)
	case *scheduling.Availability:
		return toAvailabilityResponse(v)
	case *scheduling.AvailabilityChange:
		return toAvailabilityChangeResponse(v)
	case *scheduling.CancelResult:
		return toCancelResponse(v)
	default:
		return v
	}
}

func listNotificationsHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r)
		if !ok {
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		ns, err := svc.ListNotifications(r.Context(), id, limit)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]NotificationResponse, 0, len(ns))
		for _, n := range ns {
			resp = append(resp, toNotificationResponse(n))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func identity(w http.ResponseWriter, r *http.Request) (scheduling.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
	}
	return id, ok
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	v, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return v, true
}

func parseSlot(w http.ResponseWriter, rawDate, rawTime string) (scheduling.Date, scheduling.TimeOfDay, bool) {
	date, err := scheduling.ParseDate(rawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return scheduling.Date{}, 0, false
	}
	t, err := scheduling.ParseTimeOfDay(rawTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
		return scheduling.Date{}, 0, false
	}
	return date, t, true
}

func parseTimes(w http.ResponseWriter, rawStart, rawEnd string) (scheduling.TimeOfDay, scheduling.TimeOfDay, bool) {
	start, err := scheduling.ParseTimeOfDay(rawStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
		return 0, 0, false
	}
	end, err := scheduling.ParseTimeOfDay(rawEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
		return 0, 0, false
	}
	return start, end, true
}
