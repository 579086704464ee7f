package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medicore/hospital-api/internal/model"
)

// Sentinel errors returned by all repository implementations.
var (
	ErrNotFound = errors.New("not found")

	// ErrStaleVersion is returned when a mutating persist loses the
	// optimistic-concurrency check: the row's version no longer matches
	// the one the caller read.
	ErrStaleVersion = errors.New("stale version")
)

type (
	// BillingRepository persists the bill aggregate. Update is
	// compare-and-swap on the version column.
	BillingRepository interface {
		Create(ctx context.Context, bill *model.Bill) error
		Get(ctx context.Context, id uuid.UUID) (*model.Bill, error)
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Bill, error)
		Update(ctx context.Context, bill *model.Bill) error
		ListByStatuses(ctx context.Context, statuses []model.BillStatus) ([]*model.Bill, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Bill, error)
		ListDoctorBillingAppointments(ctx context.Context, doctorID uuid.UUID) ([]*model.DoctorBillingAppointment, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		ListByDoctor(ctx context.Context, doctorID uuid.UUID, status *model.AppointmentStatus) ([]*model.Appointment, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)
	}

	OutboxRepository interface {
		Enqueue(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	}
)
