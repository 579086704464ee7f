package billing

import (
	"strings"

	"github.com/medicore/hospital-api/internal/model"
)

// Seeded demo accounts share these markers in their name or email. They
// are hidden from staff-facing lists but never from a patient's own view.
var demoMarkers = []string{"demo", "test", "dummy"}

// IsDemoIdentity reports whether a name/email pair belongs to seeded
// demo data.
func IsDemoIdentity(name, email string) bool {
	name = strings.ToLower(name)
	email = strings.ToLower(email)
	for _, marker := range demoMarkers {
		if strings.Contains(name, marker) || strings.Contains(email, marker) {
			return true
		}
	}
	return false
}

func filterDemoBills(bills []*model.Bill) []*model.Bill {
	out := bills[:0]
	for _, bill := range bills {
		if IsDemoIdentity(bill.PatientName, bill.PatientEmail) {
			continue
		}
		out = append(out, bill)
	}
	return out
}
