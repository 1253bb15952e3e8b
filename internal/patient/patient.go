// Package patient defines the patient record that flows through the pipeline
// and the linear status machine that every stage advances.
package patient

import (
	"errors"
	"fmt"
	"time"
)

// Priority is the triage level assigned at registration. Lower values are more urgent.
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low
)

// Priorities lists every level from most to least urgent.
var Priorities = []Priority{Critical, High, Medium, Low}

func (p Priority) String() string {
	switch p {
	case Critical:
		return "CRITICAL"
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	case Low:
		return "LOW"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Status is a point in the pipeline. Records only ever move to the next status.
type Status int

const (
	WaitingRegistration Status = iota
	Registered
	WaitingDiagnosis
	Diagnosed
	WaitingResource
	InTreatment
	ReadyForDischarge
	Discharged
)

var statusNames = [...]string{
	"WAITING_REGISTRATION",
	"REGISTERED",
	"WAITING_DIAGNOSIS",
	"DIAGNOSED",
	"WAITING_RESOURCE",
	"IN_TREATMENT",
	"READY_FOR_DISCHARGE",
	"DISCHARGED",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ErrInvalidTransition is returned when a stage tries to move a record
// anywhere other than the status immediately after its current one.
var ErrInvalidTransition = errors.New("patient: invalid status transition")

// TransitionError describes a rejected status change.
type TransitionError struct {
	PatientID int
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("patient %d: cannot move from %s to %s", e.PatientID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Diagnosis is the payload produced by the diagnosis stage.
type Diagnosis struct {
	Condition string        `json:"condition"`
	Severity  int           `json:"severity"`
	Treatment string        `json:"recommended_treatment"`
	Duration  time.Duration `json:"processing_time"`
}

// Doctor is the handle for an acquired doctor unit.
type Doctor struct {
	ID         int    `json:"id"`
	Speciality string `json:"speciality"`
}

// Bed is the handle for an acquired bed unit.
type Bed struct {
	ID   int    `json:"id"`
	Ward string `json:"ward"`
}

// Assignment records the resources held by a patient in treatment.
// A nil handle means that resource was never acquired.
type Assignment struct {
	Doctor     *Doctor   `json:"doctor,omitempty"`
	Bed        *Bed      `json:"bed,omitempty"`
	AssignedAt time.Time `json:"assignment_time,omitempty"`
}

// Transition is one entry of a record's status history.
type Transition struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// Patient is a single simulated patient. Exactly one stage owns a record at a time;
// ownership passes with the record when it is put on the next queue.
type Patient struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Symptoms     []string     `json:"symptoms"`
	Priority     Priority     `json:"priority"`
	Status       Status       `json:"status"`
	RegisteredAt time.Time    `json:"registration_time"`
	Diagnosis    *Diagnosis   `json:"diagnosis,omitempty"`
	Assignment   Assignment   `json:"assigned_resources"`
	History      []Transition `json:"history"`
}

// New creates a record waiting for registration with the default MEDIUM
// priority. now is the registration timestamp, so system time includes the
// wait for a registration worker and the registration itself.
func New(id int, symptoms []string, now time.Time) *Patient {
	return &Patient{
		ID:           id,
		Name:         fmt.Sprintf("Patient_%d", id),
		Symptoms:     symptoms,
		Priority:     Medium,
		Status:       WaitingRegistration,
		RegisteredAt: now,
		History:      []Transition{{Status: WaitingRegistration, At: now}},
	}
}

// Advance moves the record to status to, which must directly follow the current status.
func (p *Patient) Advance(to Status, at time.Time) error {
	if p.Status >= Discharged || to != p.Status+1 {
		return &TransitionError{PatientID: p.ID, From: p.Status, To: to}
	}
	p.Status = to
	p.History = append(p.History, Transition{Status: to, At: at})
	return nil
}

// SystemTime returns the time elapsed between registration and now.
func (p *Patient) SystemTime(now time.Time) time.Duration {
	return now.Sub(p.RegisteredAt)
}

// Clone returns a deep copy of the record.
func (p *Patient) Clone() *Patient {
	c := *p
	c.Symptoms = append([]string(nil), p.Symptoms...)
	c.History = append([]Transition(nil), p.History...)
	if p.Diagnosis != nil {
		d := *p.Diagnosis
		c.Diagnosis = &d
	}
	if p.Assignment.Doctor != nil {
		d := *p.Assignment.Doctor
		c.Assignment.Doctor = &d
	}
	if p.Assignment.Bed != nil {
		b := *p.Assignment.Bed
		c.Assignment.Bed = &b
	}
	return &c
}

func (p *Patient) String() string {
	return fmt.Sprintf("Patient %d (%s): %s, priority %s", p.ID, p.Name, p.Status, p.Priority)
}
