// Package state provides the shared transactional store that every core
// component (bank, ledger, transmuter, oracle, vault, markets) mutates
// through. A top-level operation takes the write lock, records undo entries
// for each mutation into a journal, and either commits the whole journal or
// reverts it, so concurrent callers never observe a half-applied split, join,
// or redemption. The journal/snapshot/revert mechanism follows the shape of
// go-ethereum's StateDB journal.
//
// Locking discipline: only top-level entry points call Update or View. Code
// running inside an Update must reach other components through their
// non-locking internals, never through another Update, or it will deadlock.
package state

import "sync"

// Store is the shared lock + undo journal. Construct with New.
type Store struct {
	mu      sync.RWMutex
	journal []func()
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Record appends an undo closure for a mutation just applied. Must only be
// called while the write lock is held, i.e. from inside an Update.
func (s *Store) Record(undo func()) {
	s.journal = append(s.journal, undo)
}

// Update runs fn as one atomic unit of work under the write lock. On error
// every mutation fn recorded is undone, newest first, and the error is
// returned unchanged. On success the journal is discarded: committed entries
// can never be reverted again.
func (s *Store) Update(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		for i := len(s.journal) - 1; i >= 0; i-- {
			s.journal[i]()
		}
		s.journal = s.journal[:0]
		return err
	}
	s.journal = s.journal[:0]
	return nil
}

// View runs fn under the read lock. fn must not mutate store-managed state.
func (s *Store) View(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}
