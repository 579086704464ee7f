package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medicore/hospital-api/internal/model"
)

func TestIsDemoIdentity(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{"Alice Carter", "alice@example.com", false},
		{"Demo Patient", "demo1@example.com", true},
		{"Bob", "bob.test@example.com", true},
		{"Dummy Account", "x@example.com", true},
		{"TEST USER", "upper@example.com", true},
		{"Ernesto", "ernesto@hospital.org", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDemoIdentity(tt.name, tt.email), "%s / %s", tt.name, tt.email)
	}
}

func TestFilterDemoBills(t *testing.T) {
	bills := []*model.Bill{
		{PatientName: "Alice Carter", PatientEmail: "alice@example.com"},
		{PatientName: "Demo Patient", PatientEmail: "demo@example.com"},
		{PatientName: "Bob", PatientEmail: "bob+test@example.com"},
	}

	filtered := filterDemoBills(bills)

	assert.Len(t, filtered, 1)
	assert.Equal(t, "Alice Carter", filtered[0].PatientName)
}
