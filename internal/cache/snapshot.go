package cache

// Snapshot is the exact state of one key at a point in time.
type Snapshot struct {
	Key     Key
	Value   any
	Present bool
}

func (s *Store) Snapshot(key Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Key: key}
	if e, ok := s.entries.Peek(key); ok && e.present {
		snap.Value, snap.Present = e.value, true
	}
	return snap
}

// Restore puts the snapshot back verbatim, removing the key if it was
// absent when the snapshot was taken.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	change := s.putLocked(snap.Key, snap.Value, snap.Present)
	s.mu.Unlock()

	s.notify(change)
}
