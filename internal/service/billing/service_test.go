package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/repository"
	"github.com/medicore/hospital-api/internal/repository/memory"
	apperrors "github.com/medicore/hospital-api/pkg/errors"
)

type fixture struct {
	store   *memory.Store
	service *Service
	admin   model.Principal
	doctor  model.Principal
	patient model.Principal
	apt     *model.Appointment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store.Bills(), store.Appointments(), store.Users(), store.Outbox(), nil, nil, nil)

	ctx := context.Background()
	admin := seedUser(t, store, "Grace Admin", "grace@hospital.org", model.RoleAdmin)
	doctor := seedUser(t, store, "Dr. Chen", "chen@hospital.org", model.RoleDoctor)
	patient := seedUser(t, store, "Alice Carter", "alice@example.com", model.RolePatient)

	apt := &model.Appointment{
		PatientID:    patient.ID,
		DoctorID:     doctor.ID,
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		DoctorName:   doctor.Name,
		ScheduledAt:  time.Now().Add(-time.Hour),
		Status:       model.AppointmentStatusCompleted,
	}
	require.NoError(t, store.Appointments().Create(ctx, apt))

	return &fixture{store: store, service: svc, admin: admin, doctor: doctor, patient: patient, apt: apt}
}

func seedUser(t *testing.T, store *memory.Store, name, email string, role model.Role) model.Principal {
	t.Helper()
	user := &model.User{Name: name, Email: email, Role: role, Status: "active"}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return model.Principal{ID: user.ID, Role: role, Name: name, Email: email}
}

func (f *fixture) seedAppointment(t *testing.T, patient model.Principal, status model.AppointmentStatus) *model.Appointment {
	t.Helper()
	apt := &model.Appointment{
		PatientID:    patient.ID,
		DoctorID:     f.doctor.ID,
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		DoctorName:   f.doctor.Name,
		ScheduledAt:  time.Now().Add(-time.Hour),
		Status:       status,
	}
	require.NoError(t, f.store.Appointments().Create(context.Background(), apt))
	return apt
}

func requireAppCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func chargesRequest(aptID uuid.UUID) *model.SetHospitalChargesRequest {
	return &model.SetHospitalChargesRequest{
		AppointmentID: aptID,
		LabTests:      []model.ChargeItem{{Name: "CBC", Amount: 120}},
		Scans:         []model.ChargeItem{{Name: "MRI", Amount: 800}},
		BedCharges:    model.BedCharge{Days: 2, RatePerDay: 150, Amount: 300},
	}
}

func feeRequest(aptID uuid.UUID, amount float64) *model.SetConsultationFeeRequest {
	return &model.SetConsultationFeeRequest{AppointmentID: aptID, Amount: &amount}
}

func TestSetHospitalChargesCreatesBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bill, created, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, model.BillStatusPending, bill.Status)
	assert.Equal(t, f.patient.ID, bill.PatientID)
	require.NotNil(t, bill.DoctorID)
	assert.Equal(t, f.doctor.ID, *bill.DoctorID)
	assert.Equal(t, 1220.0, bill.Totals.HospitalChargesTotal)
	assert.Equal(t, 1220.0, bill.Totals.GrandTotal)
	require.NotNil(t, bill.Charges.AddedBy)
	assert.Equal(t, f.admin.ID, *bill.Charges.AddedBy)
}

func TestSetHospitalChargesReplacesSubDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)

	// Second call omits scans and bed charges: they must be cleared.
	bill, created, err := f.service.SetHospitalCharges(ctx, f.admin, &model.SetHospitalChargesRequest{
		AppointmentID: f.apt.ID,
		LabTests:      []model.ChargeItem{{Name: "CBC", Amount: 120}},
	})
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, bill.ID)
	assert.Empty(t, bill.Charges.Scans)
	assert.Equal(t, 0.0, bill.Charges.BedCharges.Amount)
	assert.Equal(t, 120.0, bill.Totals.GrandTotal)
	// First-write provenance survives the replacement.
	require.NotNil(t, bill.Charges.AddedAt)
	assert.Equal(t, first.Charges.AddedAt.Unix(), bill.Charges.AddedAt.Unix())
}

func TestSetHospitalChargesUnknownAppointment(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.service.SetHospitalCharges(context.Background(), f.admin, chargesRequest(uuid.New()))
	requireAppCode(t, err, apperrors.ErrNotFound)
}

func TestSetHospitalChargesRejectedWhenLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bill, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)
	_, err = f.service.Finalize(ctx, f.admin, bill.ID)
	require.NoError(t, err)

	_, _, err = f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	requireAppCode(t, err, apperrors.ErrLocked)
}

func TestMedicineAmountDerivedFromQuantity(t *testing.T) {
	f := newFixture(t)

	bill, _, err := f.service.SetHospitalCharges(context.Background(), f.admin, &model.SetHospitalChargesRequest{
		AppointmentID: f.apt.ID,
		Medicines:     []model.MedicineItem{{Name: "Amoxicillin", Quantity: 3, UnitPrice: 25}},
	})
	require.NoError(t, err)

	require.Len(t, bill.Charges.Medicines, 1)
	assert.Equal(t, 75.0, bill.Charges.Medicines[0].Amount)
	assert.Equal(t, 75.0, bill.Totals.Medicines)
}

func TestMedicineAmountMismatchRejected(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.service.SetHospitalCharges(context.Background(), f.admin, &model.SetHospitalChargesRequest{
		AppointmentID: f.apt.ID,
		Medicines:     []model.MedicineItem{{Name: "Amoxicillin", Quantity: 3, UnitPrice: 25, Amount: 70}},
	})
	requireAppCode(t, err, apperrors.ErrBadRequest)
}

func TestMedicineAmountFractionalPriceAccepted(t *testing.T) {
	f := newFixture(t)

	// 3 x 25.10 is 75.30000000000001 in binary floating point; the
	// decimally correct 75.30 must still pass the consistency check.
	bill, _, err := f.service.SetHospitalCharges(context.Background(), f.admin, &model.SetHospitalChargesRequest{
		AppointmentID: f.apt.ID,
		Medicines:     []model.MedicineItem{{Name: "Ibuprofen", Quantity: 3, UnitPrice: 25.10, Amount: 75.30}},
	})
	require.NoError(t, err)
	require.Len(t, bill.Charges.Medicines, 1)
	assert.InDelta(t, 75.30, bill.Totals.Medicines, 0.001)

	// A whole-cent discrepancy is still rejected.
	_, _, err = f.service.SetHospitalCharges(context.Background(), f.admin, &model.SetHospitalChargesRequest{
		AppointmentID: f.apt.ID,
		Medicines:     []model.MedicineItem{{Name: "Ibuprofen", Quantity: 3, UnitPrice: 25.10, Amount: 75.31}},
	})
	requireAppCode(t, err, apperrors.ErrBadRequest)
}

func TestSetConsultationFeeCreatesBill(t *testing.T) {
	f := newFixture(t)

	bill, created, err := f.service.SetConsultationFee(context.Background(), f.doctor, feeRequest(f.apt.ID, 500))
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, model.BillStatusPending, bill.Status)
	assert.Equal(t, 500.0, bill.Consultation.Amount)
	assert.Equal(t, 500.0, bill.Totals.GrandTotal)
	require.NotNil(t, bill.Consultation.AddedBy)
	assert.Equal(t, f.doctor.ID, *bill.Consultation.AddedBy)
}

func TestSetConsultationFeeUpdatePreservesProvenance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.service.SetConsultationFee(ctx, f.doctor, &model.SetConsultationFeeRequest{
		AppointmentID: f.apt.ID,
		Amount:        floatPtr(500),
		Notes:         "initial consult",
	})
	require.NoError(t, err)

	bill, created, err := f.service.SetConsultationFee(ctx, f.doctor, feeRequest(f.apt.ID, 650))
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, 650.0, bill.Consultation.Amount)
	assert.Equal(t, "initial consult", bill.Consultation.Notes)
	require.NotNil(t, bill.Consultation.AddedAt)
	assert.Equal(t, first.Consultation.AddedAt.Unix(), bill.Consultation.AddedAt.Unix())
	assert.NotNil(t, bill.Consultation.LastUpdatedAt)
}

func TestFeeAndChargesShareOneBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	charged, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)
	assert.Equal(t, 0.0, charged.Totals.ConsultationFee)

	bill, created, err := f.service.SetConsultationFee(ctx, f.doctor, feeRequest(f.apt.ID, 500))
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, charged.ID, bill.ID)
	assert.Equal(t, model.BillStatusPending, bill.Status)
	assert.Equal(t, 500.0, bill.Totals.ConsultationFee)
	assert.Equal(t, charged.Totals.GrandTotal+500, bill.Totals.GrandTotal)
	// Admin charges are untouched by the doctor's write.
	assert.Equal(t, charged.Totals.HospitalChargesTotal, bill.Totals.HospitalChargesTotal)
}

func TestSetConsultationFeeWrongDoctor(t *testing.T) {
	f := newFixture(t)
	other := seedUser(t, f.store, "Dr. Patel", "patel@hospital.org", model.RoleDoctor)

	_, _, err := f.service.SetConsultationFee(context.Background(), other, feeRequest(f.apt.ID, 500))
	requireAppCode(t, err, apperrors.ErrForbidden)
}

func TestSetConsultationFeeRequiresCompletedAppointment(t *testing.T) {
	f := newFixture(t)
	scheduled := f.seedAppointment(t, f.patient, model.AppointmentStatusScheduled)

	_, _, err := f.service.SetConsultationFee(context.Background(), f.doctor, feeRequest(scheduled.ID, 500))
	requireAppCode(t, err, apperrors.ErrBadRequest)
}

func TestChargeMutationResetsStatusToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manual, err := f.service.CreateManualBill(ctx, f.admin, &model.CreateManualBillRequest{
		PatientID:    f.patient.ID,
		PatientName:  f.patient.Name,
		PatientEmail: f.patient.Email,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BillStatusDraft, manual.Status)
}

func TestFinalizeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bill, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)

	finalized, err := f.service.Finalize(ctx, f.admin, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BillStatusFinalized, finalized.Status)
	require.NotNil(t, finalized.FinalizedBy)
	assert.Equal(t, f.admin.ID, *finalized.FinalizedBy)
	assert.NotNil(t, finalized.FinalizedAt)

	// Redundant finalize is a conflict, not a lock rejection.
	_, err = f.service.Finalize(ctx, f.admin, bill.ID)
	requireAppCode(t, err, apperrors.ErrConflict)

	// Doctor fee edits are locked out too.
	_, _, err = f.service.SetConsultationFee(ctx, f.doctor, feeRequest(f.apt.ID, 500))
	requireAppCode(t, err, apperrors.ErrLocked)
}

func TestFinalizeUnknownBill(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Finalize(context.Background(), f.admin, uuid.New())
	requireAppCode(t, err, apperrors.ErrNotFound)
}

func TestCreateManualBillDoctorBillsAsSelf(t *testing.T) {
	f := newFixture(t)
	otherDoctor := uuid.New()

	bill, err := f.service.CreateManualBill(context.Background(), f.doctor, &model.CreateManualBillRequest{
		PatientID:       f.patient.ID,
		PatientName:     f.patient.Name,
		PatientEmail:    f.patient.Email,
		DoctorID:        &otherDoctor,
		DoctorName:      "Someone Else",
		ConsultationFee: 350,
	})
	require.NoError(t, err)

	require.NotNil(t, bill.DoctorID)
	assert.Equal(t, f.doctor.ID, *bill.DoctorID)
	assert.Equal(t, f.doctor.Name, bill.DoctorName)
	assert.Nil(t, bill.AppointmentID)
	assert.Equal(t, 350.0, bill.Totals.GrandTotal)
	assert.Equal(t, model.PaymentStatusUnpaid, bill.Payment.Status)
}

func TestCreateManualBillRejectsNonPatientTarget(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateManualBill(context.Background(), f.admin, &model.CreateManualBillRequest{
		PatientID:    f.doctor.ID,
		PatientName:  f.doctor.Name,
		PatientEmail: "chen@hospital.org",
	})
	requireAppCode(t, err, apperrors.ErrBadRequest)
}

func TestGetBillOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bill, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)

	_, err = f.service.GetBill(ctx, f.admin, bill.ID)
	require.NoError(t, err)

	_, err = f.service.GetBill(ctx, f.patient, bill.ID)
	require.NoError(t, err)

	_, err = f.service.GetBill(ctx, f.doctor, bill.ID)
	require.NoError(t, err)

	stranger := seedUser(t, f.store, "Mallory", "mallory@example.com", model.RolePatient)
	_, err = f.service.GetBill(ctx, stranger, bill.ID)
	requireAppCode(t, err, apperrors.ErrForbidden)

	otherDoctor := seedUser(t, f.store, "Dr. Patel", "patel@hospital.org", model.RoleDoctor)
	_, err = f.service.GetBill(ctx, otherDoctor, bill.ID)
	requireAppCode(t, err, apperrors.ErrForbidden)
}

func TestListPendingFiltersDemoPatients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)

	demoPatient := seedUser(t, f.store, "Demo Patient", "demo@example.com", model.RolePatient)
	demoApt := f.seedAppointment(t, demoPatient, model.AppointmentStatusCompleted)
	_, _, err = f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(demoApt.ID))
	require.NoError(t, err)

	bills, err := f.service.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, f.patient.Name, bills[0].PatientName)
}

func TestListAllWithStatusFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bill, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)
	_, err = f.service.Finalize(ctx, f.admin, bill.ID)
	require.NoError(t, err)

	finalized := model.BillStatusFinalized
	bills, err := f.service.ListAll(ctx, &finalized)
	require.NoError(t, err)
	assert.Len(t, bills, 1)

	pending := model.BillStatusPending
	bills, err = f.service.ListAll(ctx, &pending)
	require.NoError(t, err)
	assert.Empty(t, bills)

	bogus := model.BillStatus("archived")
	_, err = f.service.ListAll(ctx, &bogus)
	requireAppCode(t, err, apperrors.ErrBadRequest)
}

func TestListForPatientKeepsDemoBills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	demoPatient := seedUser(t, f.store, "Test Patient", "tester@example.com", model.RolePatient)
	demoApt := f.seedAppointment(t, demoPatient, model.AppointmentStatusCompleted)
	_, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(demoApt.ID))
	require.NoError(t, err)

	bills, err := f.service.ListForPatient(ctx, demoPatient)
	require.NoError(t, err)
	assert.Len(t, bills, 1)
}

func TestDoctorBillingAppointmentsFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One completed appointment without a bill, one with a finalized bill.
	second := seedUser(t, f.store, "Brian Ortiz", "brian@example.com", model.RolePatient)
	secondApt := f.seedAppointment(t, second, model.AppointmentStatusCompleted)

	bill, _, err := f.service.SetConsultationFee(ctx, f.doctor, feeRequest(secondApt.ID, 400))
	require.NoError(t, err)
	_, err = f.service.Finalize(ctx, f.admin, bill.ID)
	require.NoError(t, err)

	rows, err := f.service.DoctorBillingAppointments(ctx, f.doctor)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byPatient := make(map[string]*model.DoctorBillingAppointment, len(rows))
	for _, row := range rows {
		byPatient[row.PatientName] = row
	}

	unbilled := byPatient[f.patient.Name]
	require.NotNil(t, unbilled)
	assert.False(t, unbilled.FeeAdded)
	assert.True(t, unbilled.CanEdit)
	assert.Nil(t, unbilled.BillID)

	billed := byPatient[second.Name]
	require.NotNil(t, billed)
	assert.True(t, billed.FeeAdded)
	assert.False(t, billed.CanEdit)
	assert.Equal(t, 400.0, billed.Fee.Amount)
}

// staleOnceBills makes the next Update lose the version race, as if
// another writer committed between this request's read and write.
type staleOnceBills struct {
	repository.BillingRepository
	fired bool
}

func (s *staleOnceBills) Update(ctx context.Context, bill *model.Bill) error {
	if !s.fired {
		s.fired = true
		return repository.ErrStaleVersion
	}
	return s.BillingRepository.Update(ctx, bill)
}

func TestChargeWriteLosingRaceReturnsStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)

	bills := &staleOnceBills{BillingRepository: f.store.Bills()}
	svc := NewService(bills, f.store.Appointments(), f.store.Users(), f.store.Outbox(), nil, nil, nil)

	_, _, err = svc.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	requireAppCode(t, err, apperrors.ErrStaleVersion)

	// The retry after a refetch goes through.
	bill, created, err := svc.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, model.BillStatusPending, bill.Status)
}

func TestMutationsEnqueueOutboxEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bill, _, err := f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)
	_, _, err = f.service.SetHospitalCharges(ctx, f.admin, chargesRequest(f.apt.ID))
	require.NoError(t, err)
	_, err = f.service.Finalize(ctx, f.admin, bill.ID)
	require.NoError(t, err)

	events, err := f.store.Outbox().GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	types := make([]string, len(events))
	for i, event := range events {
		types[i] = event.EventType
	}
	assert.ElementsMatch(t, []string{
		model.EventBillCreated,
		model.EventChargesUpdated,
		model.EventBillFinalized,
	}, types)
}

func floatPtr(v float64) *float64 { return &v }
