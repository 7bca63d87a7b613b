package stock

import "sync"

// lockSet hands out one mutex per item id. Entries are reference counted
// and dropped once nobody holds or waits on them, so the map stays as small
// as the number of items currently being committed.
type lockSet struct {
	mu    sync.Mutex
	locks map[ItemID]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[ItemID]*itemLock)}
}

// Lock blocks until id's lock is held and returns the release function.
func (s *lockSet) Lock(id ItemID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &itemLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *lockSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
