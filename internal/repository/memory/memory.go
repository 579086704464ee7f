// Package memory provides map-backed repository implementations used by
// tests and local development. Semantics mirror the postgres package,
// including the compare-and-swap version check on bill updates.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/repository"
)

type Store struct {
	mu           sync.RWMutex
	bills        map[uuid.UUID]*model.Bill
	appointments map[uuid.UUID]*model.Appointment
	users        map[uuid.UUID]*model.User
	events       map[uuid.UUID]*model.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		bills:        make(map[uuid.UUID]*model.Bill),
		appointments: make(map[uuid.UUID]*model.Appointment),
		users:        make(map[uuid.UUID]*model.User),
		events:       make(map[uuid.UUID]*model.OutboxEvent),
	}
}

func (s *Store) Bills() repository.BillingRepository            { return &billingRepo{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepo{s} }
func (s *Store) Users() repository.UserRepository               { return &userRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository            { return &outboxRepo{s} }

// cloneBill isolates stored state from caller mutations.
func cloneBill(b *model.Bill) *model.Bill {
	data, _ := json.Marshal(b)
	var out model.Bill
	_ = json.Unmarshal(data, &out)
	return &out
}

type billingRepo struct{ s *Store }

func (r *billingRepo) Create(_ context.Context, bill *model.Bill) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	bill.Version = 1
	bill.CreatedAt = time.Now()
	bill.UpdatedAt = bill.CreatedAt
	r.s.bills[bill.ID] = cloneBill(bill)
	return nil
}

func (r *billingRepo) Get(_ context.Context, id uuid.UUID) (*model.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	bill, ok := r.s.bills[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneBill(bill), nil
}

func (r *billingRepo) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*model.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, bill := range r.s.bills {
		if bill.AppointmentID != nil && *bill.AppointmentID == appointmentID {
			return cloneBill(bill), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *billingRepo) Update(_ context.Context, bill *model.Bill) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.bills[bill.ID]
	if !ok || current.Version != bill.Version {
		return repository.ErrStaleVersion
	}
	bill.Version++
	bill.UpdatedAt = time.Now()
	r.s.bills[bill.ID] = cloneBill(bill)
	return nil
}

func (r *billingRepo) ListByStatuses(_ context.Context, statuses []model.BillStatus) ([]*model.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var bills []*model.Bill
	for _, bill := range r.s.bills {
		for _, status := range statuses {
			if bill.Status == status {
				bills = append(bills, cloneBill(bill))
				break
			}
		}
	}
	sort.Slice(bills, func(i, j int) bool { return bills[i].CreatedAt.After(bills[j].CreatedAt) })
	return bills, nil
}

func (r *billingRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var bills []*model.Bill
	for _, bill := range r.s.bills {
		if bill.PatientID == patientID {
			bills = append(bills, cloneBill(bill))
		}
	}
	sort.Slice(bills, func(i, j int) bool { return bills[i].CreatedAt.After(bills[j].CreatedAt) })
	return bills, nil
}

func (r *billingRepo) ListDoctorBillingAppointments(_ context.Context, doctorID uuid.UUID) ([]*model.DoctorBillingAppointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rows []*model.DoctorBillingAppointment
	for _, apt := range r.s.appointments {
		if apt.DoctorID != doctorID || apt.Status != model.AppointmentStatusCompleted {
			continue
		}
		row := &model.DoctorBillingAppointment{
			AppointmentID: apt.ID,
			PatientID:     apt.PatientID,
			PatientName:   apt.PatientName,
			PatientEmail:  apt.PatientEmail,
			ScheduledAt:   apt.ScheduledAt,
		}
		for _, bill := range r.s.bills {
			if bill.AppointmentID != nil && *bill.AppointmentID == apt.ID {
				id := bill.ID
				status := bill.Status
				row.BillID = &id
				row.BillStatus = &status
				row.Fee = bill.Consultation
				break
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ScheduledAt.After(rows[j].ScheduledAt) })
	return rows, nil
}

type appointmentRepo struct{ s *Store }

func (r *appointmentRepo) Create(_ context.Context, apt *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	apt.CreatedAt = time.Now()
	apt.UpdatedAt = apt.CreatedAt
	copied := *apt
	r.s.appointments[apt.ID] = &copied
	return nil
}

func (r *appointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	apt, ok := r.s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *apt
	return &copied, nil
}

func (r *appointmentRepo) Update(_ context.Context, apt *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.appointments[apt.ID]; !ok {
		return repository.ErrNotFound
	}
	apt.UpdatedAt = time.Now()
	copied := *apt
	r.s.appointments[apt.ID] = &copied
	return nil
}

func (r *appointmentRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, status *model.AppointmentStatus) ([]*model.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var appointments []*model.Appointment
	for _, apt := range r.s.appointments {
		if apt.DoctorID != doctorID {
			continue
		}
		if status != nil && apt.Status != *status {
			continue
		}
		copied := *apt
		appointments = append(appointments, &copied)
	}
	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].ScheduledAt.After(appointments[j].ScheduledAt)
	})
	return appointments, nil
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	r.s.users[user.ID] = &copied
	return nil
}

func (r *userRepo) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) ListByRole(_ context.Context, role model.Role) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var users []*model.User
	for _, user := range r.s.users {
		if user.Role == role {
			copied := *user
			users = append(users, &copied)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) Enqueue(_ context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	copied := *event
	r.s.events[event.ID] = &copied
	return nil
}

func (r *outboxRepo) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var events []*model.OutboxEvent
	for _, event := range r.s.events {
		if event.Status == model.OutboxStatusPending {
			copied := *event
			events = append(events, &copied)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *outboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	event, ok := r.s.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	event.Status = model.OutboxStatusProcessed
	event.ProcessedAt = &now
	return nil
}

func (r *outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	event, ok := r.s.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	event.Status = model.OutboxStatusFailed
	event.Error = &errMsg
	return nil
}
