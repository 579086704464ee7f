package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BillStatus string

const (
	BillStatusDraft     BillStatus = "draft"
	BillStatusPending   BillStatus = "pending"
	BillStatusFinalized BillStatus = "finalized"
	BillStatusPaid      BillStatus = "paid"
	BillStatusCancelled BillStatus = "cancelled"
)

// Locked reports whether the status blocks further charge mutations.
func (s BillStatus) Locked() bool {
	switch s {
	case BillStatusFinalized, BillStatusPaid, BillStatusCancelled:
		return true
	}
	return false
}

func (s BillStatus) Valid() bool {
	switch s {
	case BillStatusDraft, BillStatusPending, BillStatusFinalized, BillStatusPaid, BillStatusCancelled:
		return true
	}
	return false
}

type ChargeItem struct {
	Name   string  `json:"name" binding:"required"`
	Amount float64 `json:"amount" binding:"gte=0"`
	Notes  string  `json:"notes,omitempty"`
}

type MedicineItem struct {
	Name      string  `json:"name" binding:"required"`
	Quantity  int     `json:"quantity" binding:"gte=0"`
	UnitPrice float64 `json:"unit_price" binding:"gte=0"`
	Amount    float64 `json:"amount" binding:"gte=0"`
	Notes     string  `json:"notes,omitempty"`
}

type BedCharge struct {
	Days       int     `json:"days" binding:"gte=0"`
	RatePerDay float64 `json:"rate_per_day" binding:"gte=0"`
	Amount     float64 `json:"amount" binding:"gte=0"`
	RoomType   string  `json:"room_type,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

type ServiceFee struct {
	Description string  `json:"description" binding:"required"`
	Amount      float64 `json:"amount" binding:"gte=0"`
	Notes       string  `json:"notes,omitempty"`
}

// ConsultationFee is the doctor-owned charge for the clinical visit itself.
type ConsultationFee struct {
	Amount        float64    `json:"amount"`
	AddedBy       *uuid.UUID `json:"added_by,omitempty"`
	AddedAt       *time.Time `json:"added_at,omitempty"`
	LastUpdatedAt *time.Time `json:"last_updated_at,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// HospitalCharges is the admin-owned sub-document of itemized charges.
// Mutations replace the whole sub-document; an omitted collection clears
// any previously stored items.
type HospitalCharges struct {
	LabTests      []ChargeItem   `json:"lab_tests,omitempty"`
	Scans         []ChargeItem   `json:"scans,omitempty"`
	Medicines     []MedicineItem `json:"medicines,omitempty"`
	BedCharges    BedCharge      `json:"bed_charges"`
	ServiceFees   []ServiceFee   `json:"service_fees,omitempty"`
	AddedBy       *uuid.UUID     `json:"added_by,omitempty"`
	AddedAt       *time.Time     `json:"added_at,omitempty"`
	LastUpdatedBy *uuid.UUID     `json:"last_updated_by,omitempty"`
	LastUpdatedAt *time.Time     `json:"last_updated_at,omitempty"`
}

// BillTotals is derived state. It is recomputed from line items on every
// persist and is never settable by a caller.
type BillTotals struct {
	ConsultationFee      float64 `json:"consultation_fee"`
	LabTests             float64 `json:"lab_tests"`
	Scans                float64 `json:"scans"`
	Medicines            float64 `json:"medicines"`
	BedCharges           float64 `json:"bed_charges"`
	ServiceFees          float64 `json:"service_fees"`
	HospitalChargesTotal float64 `json:"hospital_charges_total"`
	GrandTotal           float64 `json:"grand_total"`
}

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// PaymentInfo is recorded as supplied; nothing here is validated against
// the grand total and no operation transitions a bill to paid.
type PaymentInfo struct {
	Status     PaymentStatus `json:"status"`
	PaidAmount float64       `json:"paid_amount"`
	PaidAt     *time.Time    `json:"paid_at,omitempty"`
	Method     string        `json:"method,omitempty"`
	Notes      string        `json:"notes,omitempty"`
}

// Bill is the aggregate combining a doctor's consultation fee and an
// admin's itemized hospital charges for one appointment, or a standalone
// manual charge. Display fields are captured at creation time and not
// re-synced if the source identity later changes.
type Bill struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AppointmentID *uuid.UUID      `db:"appointment_id" json:"appointment_id,omitempty"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID      *uuid.UUID      `db:"doctor_id" json:"doctor_id,omitempty"`
	PatientName   string          `db:"patient_name" json:"patient_name"`
	PatientEmail  string          `db:"patient_email" json:"patient_email"`
	DoctorName    string          `db:"doctor_name" json:"doctor_name,omitempty"`
	Consultation  ConsultationFee `db:"consultation_fee" json:"consultation_fee"`
	Charges       HospitalCharges `db:"hospital_charges" json:"hospital_charges"`
	Totals        BillTotals      `db:"totals" json:"totals"`
	Status        BillStatus      `db:"status" json:"status"`
	FinalizedBy   *uuid.UUID      `db:"finalized_by" json:"finalized_by,omitempty"`
	FinalizedAt   *time.Time      `db:"finalized_at" json:"finalized_at,omitempty"`
	Payment       PaymentInfo     `db:"payment" json:"payment"`
	Version       int64           `db:"version" json:"version"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Locked reports whether charge mutations on this bill must be rejected.
func (b *Bill) Locked() bool {
	return b.Status.Locked()
}

// RecomputeTotals rebuilds the derived totals from the current line items.
// Must be called before every persist that touches charges or the fee.
func (b *Bill) RecomputeTotals() {
	t := BillTotals{ConsultationFee: b.Consultation.Amount}
	for _, item := range b.Charges.LabTests {
		t.LabTests += item.Amount
	}
	for _, item := range b.Charges.Scans {
		t.Scans += item.Amount
	}
	for _, item := range b.Charges.Medicines {
		t.Medicines += item.Amount
	}
	t.BedCharges = b.Charges.BedCharges.Amount
	for _, fee := range b.Charges.ServiceFees {
		t.ServiceFees += fee.Amount
	}
	t.HospitalChargesTotal = t.LabTests + t.Scans + t.Medicines + t.BedCharges + t.ServiceFees
	t.GrandTotal = t.ConsultationFee + t.HospitalChargesTotal
	b.Totals = t
}

// JSONB plumbing for the aggregate sub-documents.

func jsonbValue(v interface{}) (driver.Value, error) {
	return json.Marshal(v)
}

func jsonbScan(src, dst interface{}) error {
	switch data := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(data, dst)
	case string:
		return json.Unmarshal([]byte(data), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

func (f ConsultationFee) Value() (driver.Value, error) { return jsonbValue(f) }
func (f *ConsultationFee) Scan(src interface{}) error  { return jsonbScan(src, f) }

func (c HospitalCharges) Value() (driver.Value, error) { return jsonbValue(c) }
func (c *HospitalCharges) Scan(src interface{}) error  { return jsonbScan(src, c) }

func (t BillTotals) Value() (driver.Value, error) { return jsonbValue(t) }
func (t *BillTotals) Scan(src interface{}) error  { return jsonbScan(src, t) }

func (p PaymentInfo) Value() (driver.Value, error) { return jsonbValue(p) }
func (p *PaymentInfo) Scan(src interface{}) error  { return jsonbScan(src, p) }

type SetHospitalChargesRequest struct {
	AppointmentID uuid.UUID      `json:"appointment_id" binding:"required"`
	LabTests      []ChargeItem   `json:"lab_tests" binding:"omitempty,dive"`
	Scans         []ChargeItem   `json:"scans" binding:"omitempty,dive"`
	Medicines     []MedicineItem `json:"medicines" binding:"omitempty,dive"`
	BedCharges    BedCharge      `json:"bed_charges"`
	ServiceFees   []ServiceFee   `json:"service_fees" binding:"omitempty,dive"`
}

type SetConsultationFeeRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" binding:"required"`
	Amount        *float64  `json:"amount" binding:"required,gte=0"`
	Notes         string    `json:"notes"`
}

type CreateManualBillRequest struct {
	PatientID       uuid.UUID  `json:"patient_id" binding:"required"`
	PatientName     string     `json:"patient_name" binding:"required"`
	PatientEmail    string     `json:"patient_email" binding:"required,email"`
	DoctorID        *uuid.UUID `json:"doctor_id"`
	DoctorName      string     `json:"doctor_name"`
	ConsultationFee float64    `json:"consultation_fee" binding:"gte=0"`
	Notes           string     `json:"notes"`
}

// DoctorBillingAppointment is the denormalized view a doctor sees when
// picking which completed encounters still need a consultation fee.
type DoctorBillingAppointment struct {
	AppointmentID uuid.UUID       `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	PatientName   string          `db:"patient_name" json:"patient_name"`
	PatientEmail  string          `db:"patient_email" json:"patient_email"`
	ScheduledAt   time.Time       `db:"scheduled_at" json:"scheduled_at"`
	BillID        *uuid.UUID      `db:"bill_id" json:"bill_id,omitempty"`
	BillStatus    *BillStatus     `db:"bill_status" json:"bill_status,omitempty"`
	Fee           ConsultationFee `db:"bill_fee" json:"consultation_fee"`
	FeeAdded      bool            `db:"-" json:"fee_added"`
	CanEdit       bool            `db:"-" json:"can_edit"`
}
