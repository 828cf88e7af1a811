package domain

import "time"

// Step is a position in the registration conversation.
type Step string

const (
	StepName    Step = "name"
	StepNIK     Step = "nik"
	StepAddress Step = "address"
	StepPhone   Step = "phone"
	StepConfirm Step = "confirm"
)

// RegistrationForm holds the fields collected so far.
type RegistrationForm struct {
	Name    string `json:"name,omitempty"`
	NIK     string `json:"nik,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// RegistrationSession is an in-progress registration for one sender. While a
// session is open every message from that sender belongs to it.
type RegistrationSession struct {
	Sender    string           `json:"sender"`
	Step      Step             `json:"step"`
	Program   string           `json:"program"`
	Collected RegistrationForm `json:"collected"`
	StartedAt time.Time        `json:"startedAt"`
	// RecordID is fixed when the session reaches the confirm step so a
	// repeated confirmation writes the same record.
	RecordID string `json:"recordId,omitempty"`
}
