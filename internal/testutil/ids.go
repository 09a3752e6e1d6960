package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out predictable snapshot ids for store tests.
//
// The first call to Next returns "snap-00000001". Use it wherever the store
// would otherwise mint a UUIDv7, so golden output does not depend on time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu  sync.Mutex
	seq int64
}

// NewSequentialIDs creates a generator starting at 0.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Next increments the sequence and returns its id.
func (s *SequentialIDs) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("snap-%08d", s.seq)
}

// Current returns the last sequence number handed out.
func (s *SequentialIDs) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset restarts the sequence. After Reset, Next returns "snap-00000001".
func (s *SequentialIDs) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}
