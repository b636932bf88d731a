package proctor

import (
	"fmt"
	"strings"
	"sync"
)

// Escalation is what happens once violations exceed IntegrityPolicy.MaxViolations.
type Escalation string

const (
	// EscalateNone keeps re-entering the pause/acknowledge cycle.
	EscalateNone Escalation = "none"
	// EscalateForfeit forfeits the session on the first violation past the limit.
	EscalateForfeit Escalation = "forfeit"
)

// ParseEscalation accepts "none" and "forfeit" (case-insensitive).
func ParseEscalation(s string) (Escalation, error) {
	switch Escalation(strings.ToLower(strings.TrimSpace(s))) {
	case "", EscalateNone:
		return EscalateNone, nil
	case EscalateForfeit:
		return EscalateForfeit, nil
	}
	return "", fmt.Errorf("unknown integrity escalation %q", s)
}

// IntegrityPolicy bounds repeated violations. MaxViolations <= 0 means unlimited.
type IntegrityPolicy struct {
	MaxViolations int
	Escalation    Escalation
}

// DefaultIntegrityPolicy is unlimited violations with no escalation.
var DefaultIntegrityPolicy = IntegrityPolicy{Escalation: EscalateNone}

func (p IntegrityPolicy) exceeded(count int) bool {
	return p.Escalation == EscalateForfeit && p.MaxViolations > 0 && count > p.MaxViolations
}

// Monitor watches the integrity source while the session is live.
type Monitor struct {
	source     IntegritySource
	policy     IntegrityPolicy
	detachFn   func()
	violations int
}

func newMonitor(source IntegritySource, policy IntegrityPolicy) *Monitor {
	return &Monitor{source: source, policy: policy}
}

func (m *Monitor) attach(handle func(Signal)) {
	if m.detachFn != nil {
		return
	}
	m.detachFn = m.source.Subscribe(handle)
}

func (m *Monitor) detach() {
	if m.detachFn != nil {
		m.detachFn()
		m.detachFn = nil
	}
}

func (m *Monitor) attached() bool { return m.detachFn != nil }

// record counts a violation and reports whether the policy escalates.
func (m *Monitor) record(sig Signal) (IntegrityViolation, bool) {
	m.violations++
	v := IntegrityViolation{Signal: sig, Count: m.violations}
	return v, m.policy.exceeded(m.violations)
}

// SignalFeed is an IntegritySource fed by Emit, for transports that receive
// environment signals as messages.
type SignalFeed struct {
	mu     sync.Mutex
	handle func(Signal)
}

// Subscribe attaches handle until the returned function is called.
func (f *SignalFeed) Subscribe(handle func(Signal)) func() {
	f.mu.Lock()
	f.handle = handle
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handle = nil
		f.mu.Unlock()
	}
}

// Emit delivers sig to the subscriber. It reports false when detached.
func (f *SignalFeed) Emit(sig Signal) bool {
	f.mu.Lock()
	handle := f.handle
	f.mu.Unlock()
	if handle == nil {
		return false
	}
	handle(sig)
	return true
}

// Attached reports whether a subscriber is listening.
func (f *SignalFeed) Attached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle != nil
}
