package audit

import "sync"

var _ Sink = (*MemorySink)(nil)

// MemorySink keeps events in memory. Used in tests and as a fallback when
// no durable sink is configured.
type MemorySink struct {
	events []Event
	lock   sync.Mutex
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(event Event) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.lock.Lock()
	defer s.lock.Unlock()
	snapshot := make([]Event, len(s.events))
	copy(snapshot, s.events)
	return snapshot
}
