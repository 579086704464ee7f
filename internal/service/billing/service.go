package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/medicore/hospital-api/internal/email"
	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/repository"
	apperrors "github.com/medicore/hospital-api/pkg/errors"
	"github.com/medicore/hospital-api/pkg/logger"
	"github.com/medicore/hospital-api/pkg/metrics"
)

// Service owns the bill aggregate and its lifecycle. Every mutation is
// role-checked by the caller's principal, guarded against the finalize
// lock, recomputes totals and persists with a version check.
type Service struct {
	bills        repository.BillingRepository
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	outbox       repository.OutboxRepository
	notifier     email.Service
	metrics      *metrics.Metrics
	logger       *logger.Logger
	validate     *validator.Validate
}

func NewService(
	bills repository.BillingRepository,
	appointments repository.AppointmentRepository,
	users repository.UserRepository,
	outbox repository.OutboxRepository,
	notifier email.Service,
	m *metrics.Metrics,
	l *logger.Logger,
) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	if l == nil {
		l = logger.NewLogger(nil)
	}
	return &Service{
		bills:        bills,
		appointments: appointments,
		users:        users,
		outbox:       outbox,
		notifier:     notifier,
		metrics:      m,
		logger:       l,
		validate:     v,
	}
}

// SetHospitalCharges replaces the admin-owned charge sub-document of the
// appointment's bill, creating the bill if none exists yet. Omitted
// collections clear previously stored items. The returned bool reports
// whether a new bill was created.
func (s *Service) SetHospitalCharges(ctx context.Context, actor model.Principal, req *model.SetHospitalChargesRequest) (*model.Bill, bool, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, false, apperrors.BadRequest("invalid hospital charges payload", err)
	}
	if err := normalizeMedicines(req.Medicines); err != nil {
		return nil, false, err
	}

	apt, err := s.appointments.Get(ctx, req.AppointmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.NotFound("appointment", err)
	}
	if err != nil {
		return nil, false, apperrors.Internal(err)
	}

	now := time.Now()

	bill, err := s.bills.GetByAppointment(ctx, req.AppointmentID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		bill = newBillFromAppointment(apt)
		bill.Charges = chargesFromRequest(req)
		bill.Charges.AddedBy = &actor.ID
		bill.Charges.AddedAt = &now
		bill.Charges.LastUpdatedBy = &actor.ID
		bill.Charges.LastUpdatedAt = &now
		bill.RecomputeTotals()

		if err := s.bills.Create(ctx, bill); err != nil {
			return nil, false, apperrors.Internal(err)
		}
		s.countBillCreated()
		s.countChargeMutation("hospital_charges")
		s.emitEvent(ctx, model.EventBillCreated, bill)
		return bill, true, nil

	case err != nil:
		return nil, false, apperrors.Internal(err)
	}

	if bill.Locked() {
		s.countLockRejection()
		return nil, false, apperrors.Locked("bill is locked and can no longer accept charge changes")
	}

	replacement := chargesFromRequest(req)
	if bill.Charges.AddedBy != nil {
		replacement.AddedBy = bill.Charges.AddedBy
		replacement.AddedAt = bill.Charges.AddedAt
	} else {
		replacement.AddedBy = &actor.ID
		replacement.AddedAt = &now
	}
	replacement.LastUpdatedBy = &actor.ID
	replacement.LastUpdatedAt = &now

	bill.Charges = replacement
	bill.Status = model.BillStatusPending
	bill.RecomputeTotals()

	if err := s.persist(ctx, bill); err != nil {
		return nil, false, err
	}
	s.countChargeMutation("hospital_charges")
	s.emitEvent(ctx, model.EventChargesUpdated, bill)
	return bill, false, nil
}

// SetConsultationFee attaches or updates the doctor-owned fee on the
// appointment's bill. The appointment must be completed and assigned to
// the calling doctor.
func (s *Service) SetConsultationFee(ctx context.Context, actor model.Principal, req *model.SetConsultationFeeRequest) (*model.Bill, bool, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, false, apperrors.BadRequest("invalid consultation fee payload", err)
	}
	amount := *req.Amount

	apt, err := s.appointments.Get(ctx, req.AppointmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.NotFound("appointment", err)
	}
	if err != nil {
		return nil, false, apperrors.Internal(err)
	}

	if apt.DoctorID != actor.ID {
		return nil, false, apperrors.Forbidden("appointment is not assigned to this doctor")
	}
	if apt.Status != model.AppointmentStatusCompleted {
		return nil, false, apperrors.BadRequest("consultation fee can only be set on completed appointments", nil)
	}

	now := time.Now()

	bill, err := s.bills.GetByAppointment(ctx, req.AppointmentID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		bill = newBillFromAppointment(apt)
		bill.Consultation = model.ConsultationFee{
			Amount:  amount,
			AddedBy: &actor.ID,
			AddedAt: &now,
			Notes:   req.Notes,
		}
		bill.RecomputeTotals()

		if err := s.bills.Create(ctx, bill); err != nil {
			return nil, false, apperrors.Internal(err)
		}
		s.countBillCreated()
		s.countChargeMutation("consultation_fee")
		s.emitEvent(ctx, model.EventBillCreated, bill)
		return bill, true, nil

	case err != nil:
		return nil, false, apperrors.Internal(err)
	}

	if bill.Locked() {
		s.countLockRejection()
		return nil, false, apperrors.Locked("bill is locked and can no longer accept charge changes")
	}

	bill.Consultation.Amount = amount
	bill.Consultation.LastUpdatedAt = &now
	if bill.Consultation.AddedBy == nil {
		bill.Consultation.AddedBy = &actor.ID
		bill.Consultation.AddedAt = &now
	}
	if req.Notes != "" {
		bill.Consultation.Notes = req.Notes
	}
	if bill.DoctorID == nil {
		bill.DoctorID = &apt.DoctorID
		bill.DoctorName = apt.DoctorName
	}
	bill.Status = model.BillStatusPending
	bill.RecomputeTotals()

	if err := s.persist(ctx, bill); err != nil {
		return nil, false, err
	}
	s.countChargeMutation("consultation_fee")
	s.emitEvent(ctx, model.EventFeeUpdated, bill)
	return bill, false, nil
}

// Finalize locks the bill against further charge edits. The transition is
// one-way; there is no unlock operation.
func (s *Service) Finalize(ctx context.Context, actor model.Principal, billID uuid.UUID) (*model.Bill, error) {
	bill, err := s.bills.Get(ctx, billID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("bill", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	switch bill.Status {
	case model.BillStatusFinalized, model.BillStatusPaid:
		return nil, apperrors.Conflict("bill is already finalized")
	case model.BillStatusCancelled:
		return nil, apperrors.Conflict("cancelled bills cannot be finalized")
	}

	now := time.Now()
	bill.Status = model.BillStatusFinalized
	bill.FinalizedBy = &actor.ID
	bill.FinalizedAt = &now
	bill.RecomputeTotals()

	if err := s.persist(ctx, bill); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.BillsFinalized.Inc()
	}
	s.emitEvent(ctx, model.EventBillFinalized, bill)
	s.notifyFinalized(ctx, bill)
	return bill, nil
}

// CreateManualBill creates a standalone bill with no appointment link.
// Doctors always bill as themselves; the doctor identity in the request
// is honored only for admins.
func (s *Service) CreateManualBill(ctx context.Context, actor model.Principal, req *model.CreateManualBillRequest) (*model.Bill, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.BadRequest("invalid manual bill payload", err)
	}

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

	doctorID := req.DoctorID
	doctorName := req.DoctorName
	if actor.Role == model.RoleDoctor {
		id := actor.ID
		doctorID = &id
		doctorName = actor.Name
	}

	now := time.Now()
	bill := &model.Bill{
		PatientID:    req.PatientID,
		DoctorID:     doctorID,
		PatientName:  req.PatientName,
		PatientEmail: req.PatientEmail,
		DoctorName:   doctorName,
		Status:       model.BillStatusDraft,
		Payment:      model.PaymentInfo{Status: model.PaymentStatusUnpaid},
	}
	if req.ConsultationFee > 0 || req.Notes != "" {
		bill.Consultation = model.ConsultationFee{
			Amount:  req.ConsultationFee,
			AddedBy: &actor.ID,
			AddedAt: &now,
			Notes:   req.Notes,
		}
	}
	bill.RecomputeTotals()

	if err := s.bills.Create(ctx, bill); err != nil {
		return nil, apperrors.Internal(err)
	}
	s.countBillCreated()
	s.emitEvent(ctx, model.EventBillCreated, bill)
	return bill, nil
}

// GetBill fetches one bill with ownership checks: patients see only their
// own bills, doctors only bills on their own encounters, admins all.
func (s *Service) GetBill(ctx context.Context, actor model.Principal, billID uuid.UUID) (*model.Bill, error) {
	bill, err := s.bills.Get(ctx, billID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("bill", err)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	switch actor.Role {
	case model.RoleAdmin:
	case model.RolePatient:
		if bill.PatientID != actor.ID {
			return nil, apperrors.Forbidden("patients may only view their own bills")
		}
	case model.RoleDoctor:
		if bill.DoctorID == nil || *bill.DoctorID != actor.ID {
			return nil, apperrors.Forbidden("doctors may only view bills for their own appointments")
		}
	default:
		return nil, apperrors.Forbidden("role is not allowed to view bills")
	}
	return bill, nil
}

// ListPending returns bills awaiting billing review, newest first, with
// seeded demo patients filtered out.
func (s *Service) ListPending(ctx context.Context) ([]*model.Bill, error) {
	bills, err := s.bills.ListByStatuses(ctx, []model.BillStatus{model.BillStatusDraft, model.BillStatusPending})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return filterDemoBills(bills), nil
}

// ListAll returns all bills, optionally restricted to one status, with
// seeded demo patients filtered out.
func (s *Service) ListAll(ctx context.Context, status *model.BillStatus) ([]*model.Bill, error) {
	statuses := []model.BillStatus{
		model.BillStatusDraft,
		model.BillStatusPending,
		model.BillStatusFinalized,
		model.BillStatusPaid,
		model.BillStatusCancelled,
	}
	if status != nil {
		if !status.Valid() {
			return nil, apperrors.BadRequest(fmt.Sprintf("invalid bill status %q", *status), nil)
		}
		statuses = []model.BillStatus{*status}
	}

	bills, err := s.bills.ListByStatuses(ctx, statuses)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return filterDemoBills(bills), nil
}

// ListForPatient returns the calling patient's full billing history. No
// demo filtering here: patients see everything of their own.
func (s *Service) ListForPatient(ctx context.Context, actor model.Principal) ([]*model.Bill, error) {
	bills, err := s.bills.ListByPatient(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return bills, nil
}

// DoctorBillingAppointments returns the caller's completed appointments
// joined with any existing bill, flagging which fees are set and which
// bills are still editable.
func (s *Service) DoctorBillingAppointments(ctx context.Context, actor model.Principal) ([]*model.DoctorBillingAppointment, error) {
	rows, err := s.bills.ListDoctorBillingAppointments(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	out := rows[:0]
	for _, row := range rows {
		if IsDemoIdentity(row.PatientName, row.PatientEmail) {
			continue
		}
		row.FeeAdded = row.Fee.AddedAt != nil || row.Fee.Amount > 0
		row.CanEdit = row.BillStatus == nil || !row.BillStatus.Locked()
		out = append(out, row)
	}
	return out, nil
}

// AvailablePatients lists patient principals a manual bill can target.
func (s *Service) AvailablePatients(ctx context.Context) ([]*model.User, error) {
	patients, err := s.users.ListByRole(ctx, model.RolePatient)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return patients, nil
}

// persist runs the compare-and-swap update and maps a lost race to the
// conflict error callers retry on.
func (s *Service) persist(ctx context.Context, bill *model.Bill) error {
	err := s.bills.Update(ctx, bill)
	if errors.Is(err, repository.ErrStaleVersion) {
		if s.metrics != nil {
			s.metrics.StaleWrites.Inc()
		}
		return apperrors.StaleVersion(err)
	}
	if err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func newBillFromAppointment(apt *model.Appointment) *model.Bill {
	aptID := apt.ID
	doctorID := apt.DoctorID
	return &model.Bill{
		AppointmentID: &aptID,
		PatientID:     apt.PatientID,
		DoctorID:      &doctorID,
		PatientName:   apt.PatientName,
		PatientEmail:  apt.PatientEmail,
		DoctorName:    apt.DoctorName,
		Status:        model.BillStatusPending,
		Payment:       model.PaymentInfo{Status: model.PaymentStatusUnpaid},
	}
}

func chargesFromRequest(req *model.SetHospitalChargesRequest) model.HospitalCharges {
	return model.HospitalCharges{
		LabTests:    req.LabTests,
		Scans:       req.Scans,
		Medicines:   req.Medicines,
		BedCharges:  req.BedCharges,
		ServiceFees: req.ServiceFees,
	}
}

// normalizeMedicines derives a zero amount from quantity and unit price
// and rejects a supplied amount that disagrees with them. Amounts are
// compared in whole cents; quantity x unit price is not representable
// exactly in binary floating point for most decimal prices.
func normalizeMedicines(medicines []model.MedicineItem) error {
	for i := range medicines {
		m := &medicines[i]
		expected := float64(m.Quantity) * m.UnitPrice
		if m.Amount == 0 {
			m.Amount = expected
			continue
		}
		if math.Round(m.Amount*100) != math.Round(expected*100) {
			return apperrors.BadRequest(
				fmt.Sprintf("medicine %q amount %.2f does not match quantity x unit price %.2f", m.Name, m.Amount, expected),
				nil,
			)
		}
	}
	return nil
}

type billEvent struct {
	BillID        uuid.UUID  `json:"bill_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	PatientID     uuid.UUID  `json:"patient_id"`
	Status        string     `json:"status"`
	GrandTotal    float64    `json:"grand_total"`
}

func (s *Service) emitEvent(ctx context.Context, eventType string, bill *model.Bill) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(billEvent{
		BillID:        bill.ID,
		AppointmentID: bill.AppointmentID,
		PatientID:     bill.PatientID,
		Status:        string(bill.Status),
		GrandTotal:    bill.Totals.GrandTotal,
	})
	if err != nil {
		s.logger.Error(err, "failed to marshal billing event", "event_type", eventType)
		return
	}
	event := &model.OutboxEvent{EventType: eventType, Payload: payload}
	if err := s.outbox.Enqueue(ctx, event); err != nil {
		s.logger.Error(err, "failed to enqueue billing event", "event_type", eventType)
	}
}

func (s *Service) notifyFinalized(ctx context.Context, bill *model.Bill) {
	if s.notifier == nil || bill.PatientEmail == "" {
		return
	}
	if err := s.notifier.SendBillFinalized(ctx, bill.PatientEmail, bill.PatientName, bill); err != nil {
		s.logger.Error(err, "failed to send bill finalized notice", "bill_id", bill.ID.String())
	}
}

func (s *Service) countBillCreated() {
	if s.metrics != nil {
		s.metrics.BillsCreated.Inc()
	}
}

func (s *Service) countChargeMutation(kind string) {
	if s.metrics != nil {
		s.metrics.ChargeMutations.WithLabelValues(kind).Inc()
	}
}

func (s *Service) countLockRejection() {
	if s.metrics != nil {
		s.metrics.LockRejections.Inc()
	}
}
