package signal

import (
	"sync"
	"time"
)

// Store holds every pending interaction, keyed by (chat, current stage
// token). One mutex with short critical sections is the whole concurrency
// story: the event loop reads and writes during dispatch, the admission
// gateway inserts fresh entries, nothing else touches it. Entries are lost on
// restart; an in-flight signal then behaves as permanently declined.
type Store struct {
	mu    sync.Mutex
	items map[Key]Pending
}

func NewStore() *Store {
	return &Store{items: make(map[Key]Pending)}
}

func (s *Store) Put(key Key, p Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = p
}

func (s *Store) Get(key Key) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[key]
	return p, ok
}

// Remove deletes the entry and reports whether it existed.
func (s *Store) Remove(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	return true
}

// Move re-keys an interaction in one locked step: advancing a stage is a
// move, not a copy, so stale state can never complete a signal twice. Returns
// false when the old key is already gone.
func (s *Store) Move(oldKey, newKey Key, p Pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[oldKey]; !ok {
		return false
	}
	delete(s.items, oldKey)
	s.items[newKey] = p
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// SweptEntry is an interaction evicted by Sweep, returned so the caller can
// retract its messages.
type SweptEntry struct {
	Key     Key
	Pending Pending
}

// Sweep evicts entries created before cutoff and returns them. Callers that
// never sweep get the base behavior: a recipient can complete a signal
// arbitrarily late.
func (s *Store) Sweep(cutoff time.Time) []SweptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []SweptEntry
	for key, p := range s.items {
		if p.CreatedAt.Before(cutoff) {
			swept = append(swept, SweptEntry{Key: key, Pending: p})
			delete(s.items, key)
		}
	}
	return swept
}
