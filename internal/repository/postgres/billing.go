package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/repository"
)

const billColumns = `
	id, appointment_id, patient_id, doctor_id,
	patient_name, patient_email, doctor_name,
	consultation_fee, hospital_charges, totals,
	status, finalized_by, finalized_at, payment,
	version, created_at, updated_at
`

func (r *billingRepository) Create(ctx context.Context, bill *model.Bill) error {
	query := `
		INSERT INTO bills (
			id, appointment_id, patient_id, doctor_id,
			patient_name, patient_email, doctor_name,
			consultation_fee, hospital_charges, totals,
			status, finalized_by, finalized_at, payment,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	bill.Version = 1
	bill.CreatedAt = time.Now()
	bill.UpdatedAt = bill.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		bill.ID,
		bill.AppointmentID,
		bill.PatientID,
		bill.DoctorID,
		bill.PatientName,
		bill.PatientEmail,
		bill.DoctorName,
		bill.Consultation,
		bill.Charges,
		bill.Totals,
		bill.Status,
		bill.FinalizedBy,
		bill.FinalizedAt,
		bill.Payment,
		bill.Version,
		bill.CreatedAt,
		bill.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bill: %w", err)
	}
	return nil
}

func (r *billingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1`

	var bill model.Bill
	err := r.db.GetContext(ctx, &bill, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return &bill, nil
}

func (r *billingRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE appointment_id = $1`

	var bill model.Bill
	err := r.db.GetContext(ctx, &bill, query, appointmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill by appointment: %w", err)
	}
	return &bill, nil
}

// Update persists the bill with a compare-and-swap on version. A zero
// rows-affected result means the row was either deleted or modified since
// it was read; both surface as ErrStaleVersion.
func (r *billingRepository) Update(ctx context.Context, bill *model.Bill) error {
	query := `
		UPDATE bills
		SET doctor_id = $1, doctor_name = $2,
			consultation_fee = $3, hospital_charges = $4, totals = $5,
			status = $6, finalized_by = $7, finalized_at = $8, payment = $9,
			version = version + 1, updated_at = $10
		WHERE id = $11 AND version = $12
	`
	bill.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		bill.DoctorID,
		bill.DoctorName,
		bill.Consultation,
		bill.Charges,
		bill.Totals,
		bill.Status,
		bill.FinalizedBy,
		bill.FinalizedAt,
		bill.Payment,
		bill.UpdatedAt,
		bill.ID,
		bill.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrStaleVersion
	}

	bill.Version++
	return nil
}

func (r *billingRepository) ListByStatuses(ctx context.Context, statuses []model.BillStatus) ([]*model.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE status = ANY($1) ORDER BY created_at DESC`

	raw := make([]string, len(statuses))
	for i, s := range statuses {
		raw[i] = string(s)
	}

	var bills []*model.Bill
	err := r.db.SelectContext(ctx, &bills, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	return bills, nil
}

func (r *billingRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE patient_id = $1 ORDER BY created_at DESC`

	var bills []*model.Bill
	err := r.db.SelectContext(ctx, &bills, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patient bills: %w", err)
	}
	return bills, nil
}

func (r *billingRepository) ListDoctorBillingAppointments(ctx context.Context, doctorID uuid.UUID) ([]*model.DoctorBillingAppointment, error) {
	query := `
		SELECT a.id AS appointment_id, a.patient_id, a.patient_name,
			   a.patient_email, a.scheduled_at,
			   b.id AS bill_id, b.status AS bill_status,
			   b.consultation_fee AS bill_fee
		FROM appointments a
		LEFT JOIN bills b ON b.appointment_id = a.id
		WHERE a.doctor_id = $1 AND a.status = $2
		ORDER BY a.scheduled_at DESC
	`
	var rows []*model.DoctorBillingAppointment
	err := r.db.SelectContext(ctx, &rows, query, doctorID, model.AppointmentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list doctor billing appointments: %w", err)
	}
	return rows, nil
}
