// Package generator produces the synthetic content of the simulation: intake
// symptoms, triage levels, diagnosis payloads, doctor and bed handles, and
// randomized stage delays.
package generator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/vnykmshr/patientflow/internal/patient"
)

var (
	symptoms    = []string{"Fever", "Pain", "Cough", "Dizziness", "Fracture"}
	conditions  = []string{"Flu", "Fracture", "Appendicitis", "COVID-19", "Migraine"}
	treatments  = []string{"Medication", "Surgery", "Observation", "Therapy"}
	specialties = []string{"General", "Emergency", "Surgery"}
	wards       = []string{"General", "Intensive", "Recovery"}
)

// Source supplies randomized domain values. Implementations must be safe for
// concurrent use.
type Source interface {
	Symptoms() []string
	Priority() patient.Priority
	Diagnosis(elapsed time.Duration) patient.Diagnosis
	Doctor() patient.Doctor
	Bed() patient.Bed
	Between(r Range) time.Duration
}

// Random is a Source backed by a seeded pseudo-random generator.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a Source seeded with seed. A zero seed uses the current time.
func NewRandom(seed int64) *Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Fork returns an independent Random seeded from r, for workers that must not
// share generator state.
func (r *Random) Fork() *Random {
	r.mu.Lock()
	seed := r.rng.Int63() | 1
	r.mu.Unlock()
	return NewRandom(seed)
}

// Symptoms returns a single-symptom intake list.
func (r *Random) Symptoms() []string {
	return []string{r.pick(symptoms)}
}

// Priority returns a triage level chosen uniformly among the four levels.
func (r *Random) Priority() patient.Priority {
	r.mu.Lock()
	defer r.mu.Unlock()
	return patient.Priorities[r.rng.Intn(len(patient.Priorities))]
}

// Diagnosis returns a payload with severity in [1, 10].
func (r *Random) Diagnosis(elapsed time.Duration) patient.Diagnosis {
	r.mu.Lock()
	defer r.mu.Unlock()
	return patient.Diagnosis{
		Condition: conditions[r.rng.Intn(len(conditions))],
		Severity:  1 + r.rng.Intn(10),
		Treatment: treatments[r.rng.Intn(len(treatments))],
		Duration:  elapsed,
	}
}

// Doctor returns a doctor handle with an id in [1000, 9999].
func (r *Random) Doctor() patient.Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return patient.Doctor{
		ID:         1000 + r.rng.Intn(9000),
		Speciality: specialties[r.rng.Intn(len(specialties))],
	}
}

// Bed returns a bed handle with an id in [100, 999].
func (r *Random) Bed() patient.Bed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return patient.Bed{
		ID:   100 + r.rng.Intn(900),
		Ward: wards[r.rng.Intn(len(wards))],
	}
}

// Between returns a duration drawn uniformly from rng.
func (r *Random) Between(rng Range) time.Duration {
	if rng.Max <= rng.Min {
		return rng.Min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return rng.Min + time.Duration(r.rng.Int63n(int64(rng.Max-rng.Min)))
}

func (r *Random) pick(values []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return values[r.rng.Intn(len(values))]
}
