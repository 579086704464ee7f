package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/repository"
)

func TestBillUpdateVersionCheck(t *testing.T) {
	store := NewStore()
	bills := store.Bills()
	ctx := context.Background()

	bill := &model.Bill{PatientName: "Alice", Status: model.BillStatusPending}
	require.NoError(t, bills.Create(ctx, bill))
	assert.Equal(t, int64(1), bill.Version)

	// Two readers grab the same version.
	first, err := bills.Get(ctx, bill.ID)
	require.NoError(t, err)
	second, err := bills.Get(ctx, bill.ID)
	require.NoError(t, err)

	first.PatientName = "Alice Carter"
	require.NoError(t, bills.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	// The slower writer loses.
	second.PatientName = "Someone Else"
	err = bills.Update(ctx, second)
	assert.ErrorIs(t, err, repository.ErrStaleVersion)

	stored, err := bills.Get(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Carter", stored.PatientName)
	assert.Equal(t, int64(2), stored.Version)
}

func TestBillClonesIsolateCallers(t *testing.T) {
	store := NewStore()
	bills := store.Bills()
	ctx := context.Background()

	bill := &model.Bill{
		PatientName: "Alice",
		Status:      model.BillStatusPending,
		Charges: model.HospitalCharges{
			LabTests: []model.ChargeItem{{Name: "CBC", Amount: 120}},
		},
	}
	require.NoError(t, bills.Create(ctx, bill))

	fetched, err := bills.Get(ctx, bill.ID)
	require.NoError(t, err)
	fetched.Charges.LabTests[0].Amount = 999

	again, err := bills.Get(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.0, again.Charges.LabTests[0].Amount)
}

func TestGetByAppointment(t *testing.T) {
	store := NewStore()
	bills := store.Bills()
	ctx := context.Background()

	_, err := bills.GetByAppointment(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
