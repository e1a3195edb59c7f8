package particle

import "sync"

// Synchronizer is the scoped mutual-exclusion contract between the
// dispatcher's workers and whatever owns the state their callbacks mutate.
//
// The dispatcher brackets every callback delivery with Enter/Exit, so a
// callback may freely read-modify-write state that is otherwise owned by the
// control loop, provided the loop acquires the same scope for its own
// mutations. Callers must NOT hold the scope while submitting a call: failed
// pre-checks deliver the callback synchronously, and that delivery enters
// the scope.
type Synchronizer interface {
	Enter()
	Exit()
}

// LoopSync is the single coarse lock shared by the control loop and the
// dispatcher's workers. One critical section per callback replaces
// per-field locking.
//
// The scope is not reentrant; nesting Enter on the same goroutine deadlocks.
type LoopSync struct {
	mu sync.Mutex
}

// NewLoopSync creates a LoopSync.
func NewLoopSync() *LoopSync {
	return &LoopSync{}
}

// Enter acquires the scope, excluding the control loop (and any other
// scope holder) until Exit.
func (s *LoopSync) Enter() {
	s.mu.Lock()
}

// Exit releases the scope. Every Enter must be paired with an Exit on all
// paths, including panics; prefer Do where possible.
func (s *LoopSync) Exit() {
	s.mu.Unlock()
}

// Do runs fn inside the scope, guaranteeing Exit even if fn panics.
func (s *LoopSync) Do(fn func()) {
	s.Enter()
	defer s.Exit()
	fn()
}
