package progress

import "sync"

// Snapshot is a point-in-time view of everything the application layer
// needs to render: the connection axis, the job axis, and whether a
// cancel has been requested locally (which is not the same thing as the
// server having confirmed cancellation).
type Snapshot struct {
	Conn            ConnState
	Job             State
	CancelRequested bool
}

// Store holds the tracked state for one job. Writes come from a single
// goroutine (the tracker's event loop); the mutex exists so other
// goroutines can take consistent snapshots.
type Store struct {
	mu              sync.RWMutex
	conn            ConnState
	job             State
	cancelRequested bool
	log             []Message

	updates chan Snapshot
}

// NewStore creates a store for a not-yet-connected job.
func NewStore() *Store {
	return &Store{
		conn:    ConnDisconnected,
		job:     NewState(),
		updates: make(chan Snapshot, 64),
	}
}

// Apply folds a decoded message into the job state, appends it to the
// message log, and returns the resulting state.
func (s *Store) Apply(m Message) State {
	s.mu.Lock()
	s.job = Reduce(s.job, m)
	s.log = append(s.log, m)
	next := s.job
	s.mu.Unlock()
	s.notify()
	return next
}

// SetConnState records a connection state transition.
func (s *Store) SetConnState(cs ConnState) {
	s.mu.Lock()
	changed := s.conn != cs
	s.conn = cs
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// SetCancelRequested marks that a cancel was requested locally.
func (s *Store) SetCancelRequested() {
	s.mu.Lock()
	changed := !s.cancelRequested
	s.cancelRequested = true
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Snapshot returns a consistent view of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Conn: s.conn, Job: s.job, CancelRequested: s.cancelRequested}
}

// Messages returns a copy of the ordered log of received messages.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.log))
	copy(out, s.log)
	return out
}

// Updates delivers a snapshot after every state change. Sends never
// block: if the consumer falls behind, intermediate snapshots are
// dropped and only later ones are delivered.
func (s *Store) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Store) notify() {
	select {
	case s.updates <- s.Snapshot():
	default:
	}
}
