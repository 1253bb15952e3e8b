// Package ipc defines the messages exchanged with diagnosis workers. Records
// cross the boundary as encoded bytes, so a worker never shares memory with the
// stage that sent or receives the record.
package ipc

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/vnykmshr/patientflow/internal/patient"
)

// Kind tags a work-queue message.
type Kind int

const (
	// Work carries an encoded record to diagnose.
	Work Kind = iota
	// Stop tells the receiving worker to exit its loop.
	Stop
)

func (k Kind) String() string {
	switch k {
	case Work:
		return "work"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is an item on the diagnosis queue.
type Message struct {
	Kind      Kind
	PatientID int
	Priority  patient.Priority
	Payload   []byte
}

// NewWork encodes p into a Work message.
func NewWork(p *patient.Patient) (Message, error) {
	payload, err := Encode(p)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: Work, PatientID: p.ID, Priority: p.Priority, Payload: payload}, nil
}

// NewStop returns a stop message.
func NewStop() Message {
	return Message{Kind: Stop}
}

// ByPriority orders work by triage level and places stop messages after all work.
func ByPriority(a, b Message) bool {
	if a.Kind != b.Kind {
		return a.Kind == Work
	}
	return a.Priority < b.Priority
}

// Outcome is the single result a diagnosis worker emits for every work item.
type Outcome struct {
	PatientID int
	Payload   []byte
	Error     string
}

// Diagnosed encodes a successfully diagnosed record.
func Diagnosed(p *patient.Patient) (Outcome, error) {
	payload, err := Encode(p)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{PatientID: p.ID, Payload: payload}, nil
}

// Lost reports that the record with id could not be diagnosed.
func Lost(id int, cause error) Outcome {
	msg := "unknown failure"
	if cause != nil {
		msg = cause.Error()
	}
	return Outcome{PatientID: id, Error: msg}
}

// OK reports whether the outcome carries a record.
func (o Outcome) OK() bool {
	return o.Error == ""
}

// Err returns the failure carried by a lost outcome, or nil.
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	return errors.New(o.Error)
}

// Patient decodes the record carried by a diagnosed outcome.
func (o Outcome) Patient() (*patient.Patient, error) {
	if !o.OK() {
		return nil, fmt.Errorf("ipc: outcome for patient %d carries no record: %s", o.PatientID, o.Error)
	}
	return Decode(o.Payload)
}

// Encode serializes a record for transfer.
func Encode(p *patient.Patient) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("ipc: encode patient %d: %w", p.ID, err)
	}
	return data, nil
}

// Decode rebuilds a record from Encode output.
func Decode(data []byte) (*patient.Patient, error) {
	var p patient.Patient
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ipc: decode patient: %w", err)
	}
	return &p, nil
}
