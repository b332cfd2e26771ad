// Package alarms tracks per-subsystem health for status reporting.
package alarms

import "sync"

type Severity int

const (
	Clear Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Clear:
		return "clear"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Well-known alarm names.
const (
	Sensors = "sensors"
)

// Registry holds the current severity per named alarm. The zero value is
// not usable; call NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	states map[string]Severity
}

func NewRegistry() *Registry {
	return &Registry{states: make(map[string]Severity)}
}

// Set records the severity of an alarm. Setting Clear removes it from the
// snapshot.
func (r *Registry) Set(name string, sev Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sev == Clear {
		delete(r.states, name)
		return
	}
	r.states[name] = sev
}

func (r *Registry) ClearAlarm(name string) { r.Set(name, Clear) }

// Get returns the current severity of an alarm; unknown names are Clear.
func (r *Registry) Get(name string) Severity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[name]
}

// Snapshot returns a copy of all raised alarms.
func (r *Registry) Snapshot() map[string]Severity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Severity, len(r.states))
	for k, v := range r.states {
		out[k] = v
	}
	return out
}
