package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Appointment is a scheduled clinical encounter. Billing reads it to
// validate that a consultation fee may be attached and to seed the
// patient/doctor display fields on first bill creation.
type Appointment struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	PatientID    uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID     uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientName  string            `db:"patient_name" json:"patient_name"`
	PatientEmail string            `db:"patient_email" json:"patient_email"`
	DoctorName   string            `db:"doctor_name" json:"doctor_name"`
	ScheduledAt  time.Time         `db:"scheduled_at" json:"scheduled_at"`
	Reason       string            `db:"reason" json:"reason,omitempty"`
	Status       AppointmentStatus `db:"status" json:"status"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

type CreateAppointmentRequest struct {
	PatientID   uuid.UUID `json:"patient_id" binding:"required"`
	DoctorID    uuid.UUID `json:"doctor_id" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Reason      string    `json:"reason" binding:"max=1000"`
}
