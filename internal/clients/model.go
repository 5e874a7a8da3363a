// Package clients stores pet owners and their emergency abuse counters.
package clients

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a client does not exist.
var ErrNotFound = errors.New("clients: client not found")

// Client is a pet owner known to a clinic, keyed by phone.
type Client struct {
	ID                  string    `json:"id"`
	ClinicID            string    `json:"clinic_id"`
	Phone               string    `json:"phone"`
	Name                string    `json:"name,omitempty"`
	FalseEmergencyCount int       `json:"false_emergency_count"`
	FalseAlarmCount     int       `json:"false_alarm_count"`
	AccessRevoked       bool      `json:"emergency_access_revoked"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
