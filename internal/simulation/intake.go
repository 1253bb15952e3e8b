package simulation

import (
	"time"

	"github.com/vnykmshr/patientflow/internal/generator"
	"github.com/vnykmshr/patientflow/internal/patient"
)

// Intake returns n patients with sequential ids starting at 1, the default
// priority and a generated symptom list.
func Intake(n int, source generator.Source, now time.Time) []*patient.Patient {
	patients := make([]*patient.Patient, 0, n)
	for i := 1; i <= n; i++ {
		patients = append(patients, patient.New(i, source.Symptoms(), now))
	}
	return patients
}
