package scheduling

import "github.com/google/uuid"

// Request is one schedule mutation. The set of variants is closed.
type Request interface {
	Kind() string
	isRequest()
}

type BookRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      Date      `json:"date"`
	Time      TimeOfDay `json:"time"`
}

// BlockRequest reserves a slot on the doctor's own calendar with no patient.
type BlockRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     Date      `json:"date"`
	Time     TimeOfDay `json:"time"`
}

type CancelRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

type AvailabilityUpsert struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	DayOfWeek DayOfWeek `json:"day_of_week"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
}

type AvailabilityUpdate struct {
	AvailabilityID uuid.UUID `json:"availability_id"`
	StartTime      TimeOfDay `json:"start_time"`
	EndTime        TimeOfDay `json:"end_time"`
}

type AvailabilityDelete struct {
	AvailabilityID uuid.UUID `json:"availability_id"`
}

const (
	KindBook               = "book"
	KindBlock              = "block"
	KindCancel             = "cancel"
	KindAvailabilityUpsert = "availability_upsert"
	KindAvailabilityUpdate = "availability_update"
	KindAvailabilityDelete = "availability_delete"
)

func (BookRequest) Kind() string        { return KindBook }
func (BlockRequest) Kind() string       { return KindBlock }
func (CancelRequest) Kind() string      { return KindCancel }
func (AvailabilityUpsert) Kind() string { return KindAvailabilityUpsert }
func (AvailabilityUpdate) Kind() string { return KindAvailabilityUpdate }
func (AvailabilityDelete) Kind() string { return KindAvailabilityDelete }

func (BookRequest) isRequest()        {}
func (BlockRequest) isRequest()       {}
func (CancelRequest) isRequest()      {}
func (AvailabilityUpsert) isRequest() {}
func (AvailabilityUpdate) isRequest() {}
func (AvailabilityDelete) isRequest() {}
