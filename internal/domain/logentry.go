package domain

import "time"

// Outcome is the aggregate result of a broadcast attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// LogEntry is an immutable audit record of one broadcast attempt,
// keyed by the initiating account's email.
type LogEntry struct {
	Email     string    `json:"-"`
	Message   string    `json:"message"`
	Numbers   []string  `json:"numbers"`
	Outcome   Outcome   `json:"status"`
	CreatedAt time.Time `json:"timestamp"`
}
