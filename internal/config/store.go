package config

import "sync"

// Store holds the active configuration and notifies subscribers when it is
// replaced. Replacement is atomic: readers either see the old value or the
// new one, never a mix.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	subs []chan Config
}

// NewStore creates a store seeded with the given configuration.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Current returns the active configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace validates and installs a new configuration, then notifies every
// subscriber. A subscriber that is not draining its channel misses the
// update rather than blocking the replacement.
func (s *Store) Replace(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	subs := make([]chan Config, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- cfg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives every configuration installed
// after the call.
func (s *Store) Subscribe() <-chan Config {
	ch := make(chan Config, 4)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}
