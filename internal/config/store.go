package config

import "sync"

// Store holds the live configuration and notifies subscribers when it
// changes. Subscribers get a no-argument callback and are expected to
// re-read the full state via Get; this keeps notification delivery trivial
// and the reader always consistent.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	subs []func()
}

func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Subscribe registers a change callback. Callbacks run synchronously on the
// updater's goroutine, so they must be quick and must not call Update.
func (s *Store) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Update validates, swaps in the new configuration, and notifies all
// subscribers.
func (s *Store) Update(cfg Config) error {
	if err := DefaultAndValidate(&cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
	return nil
}
