package models

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
)

// AttemptOutcome is the result of a single login strategy.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeNoMatch AttemptOutcome = "no-match"
	OutcomeError   AttemptOutcome = "error"
)

// Login strategy names as they appear in traces.
const (
	StrategyProcedure    = "call procedure"
	StrategyPlainTable   = "select by login+password"
	StrategyHashTable    = "select by login then compare hash"
	StrategyPasswordOnly = "password-only override"
)

// LoginAttempt is one step of an authentication sequence.
type LoginAttempt struct {
	Strategy string         `json:"strategy"`
	Outcome  AttemptOutcome `json:"outcome"`
	Detail   map[string]any `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}

// LoginTrace is the ordered, append-only record of login attempts for a session.
type LoginTrace struct {
	mu       sync.Mutex
	attempts []LoginAttempt
}

// NewLoginTrace creates an empty trace.
func NewLoginTrace() *LoginTrace {
	return &LoginTrace{}
}

// Append records an attempt. Credential-like detail keys are masked before storage.
func (t *LoginTrace) Append(strategy string, outcome AttemptOutcome, detail map[string]any) LoginAttempt {
	attempt := LoginAttempt{
		Strategy: strategy,
		Outcome:  outcome,
		Detail:   logging.MaskDetail(detail),
		At:       time.Now().UTC(),
	}
	t.mu.Lock()
	t.attempts = append(t.attempts, attempt)
	t.mu.Unlock()
	return attempt
}

// Attempts returns a copy of the recorded attempts in order.
func (t *LoginTrace) Attempts() []LoginAttempt {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LoginAttempt, len(t.attempts))
	copy(out, t.attempts)
	return out
}

// Len returns the number of recorded attempts.
func (t *LoginTrace) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.attempts)
}

// Succeeded reports whether the last attempt was a success.
func (t *LoginTrace) Succeeded() bool {
	attempts := t.Attempts()
	return len(attempts) > 0 && attempts[len(attempts)-1].Outcome == OutcomeSuccess
}

// UsedStrategy reports whether any attempt used the given strategy.
func (t *LoginTrace) UsedStrategy(strategy string) bool {
	for _, a := range t.Attempts() {
		if a.Strategy == strategy {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the trace as its ordered attempt list.
func (t *LoginTrace) MarshalJSON() ([]byte, error) {
	attempts := t.Attempts()
	if attempts == nil {
		attempts = []LoginAttempt{}
	}
	return json.Marshal(attempts)
}

// OperatorIdentity is the authenticated operator. It is the actor for every write.
type OperatorIdentity struct {
	UserID string `json:"user_id"`
	Login  string `json:"login"`
	Source string `json:"source"`
}
