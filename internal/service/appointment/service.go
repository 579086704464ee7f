// Package appointment manages the encounters bills attach to.
package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/repository"
	apperrors "github.com/medicore/hospital-api/pkg/errors"
)

type Service struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
}

func NewService(appointments repository.AppointmentRepository, users repository.UserRepository) *Service {
	return &Service{appointments: appointments, users: users}
}

// Create schedules an appointment, denormalizing patient and doctor
// display fields so billing reads never need a user join.
func (s *Service) Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	patient, err := s.users.Get(ctx, req.PatientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("patient", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if patient.Role != model.RolePatient {
		return nil, apperrors.BadRequest("target user is not a patient", nil)
	}

	doctor, err := s.users.Get(ctx, req.DoctorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("doctor", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if doctor.Role != model.RoleDoctor {
		return nil, apperrors.BadRequest("target user is not a doctor", nil)
	}

	apt := &model.Appointment{
		PatientID:    patient.ID,
		DoctorID:     doctor.ID,
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		DoctorName:   doctor.Name,
		ScheduledAt:  req.ScheduledAt,
		Reason:       req.Reason,
		Status:       model.AppointmentStatusScheduled,
	}
	if err := s.appointments.Create(ctx, apt); err != nil {
		return nil, apperrors.Internal(err)
	}
	return apt, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("appointment", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return apt, nil
}

func (s *Service) ListForDoctor(ctx context.Context, actor model.Principal, status *model.AppointmentStatus) ([]*model.Appointment, error) {
	if status != nil && !status.Valid() {
		return nil, apperrors.BadRequest("invalid appointment status", nil)
	}
	appointments, err := s.appointments.ListByDoctor(ctx, actor.ID, status)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return appointments, nil
}

// Complete marks the doctor's own appointment as completed, which makes
// it eligible for a consultation fee.
func (s *Service) Complete(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.DoctorID != actor.ID {
		return nil, apperrors.Forbidden("appointment is not assigned to this doctor")
	}
	if apt.Status == model.AppointmentStatusCancelled {
		return nil, apperrors.BadRequest("cancelled appointments cannot be completed", nil)
	}

	apt.Status = model.AppointmentStatusCompleted
	if err := s.appointments.Update(ctx, apt); err != nil {
		return nil, apperrors.Internal(err)
	}
	return apt, nil
}
