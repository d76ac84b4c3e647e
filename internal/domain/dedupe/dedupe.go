// Package dedupe provides key sets used to collapse duplicates: distinct
// repost event IDs within one aggregation run and in-flight refresh keys.
package dedupe

import (
	"container/list"
	"sync"
)

// Set records keys so that each one is acted on at most once.
type Set interface {
	// SeenAndRecord reports whether key was already present and records it
	// if it was not. The check and the insert are atomic.
	SeenAndRecord(key string) bool

	// Unrecord forgets key so it can be recorded again.
	Unrecord(key string)

	Size() int
}

type set struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // oldest at front, only used when bounded
	maxSize int
}

// NewSet creates an empty set. It is unbounded unless WithMaxSize is given.
func NewSet(opts ...Option) Set {
	s := &set{seen: make(map[string]*list.Element)}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxSize > 0 {
		s.order = list.New()
	}
	return s
}

func (s *set) SeenAndRecord(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return true
	}
	if s.order == nil {
		s.seen[key] = nil
		return false
	}
	if len(s.seen) >= s.maxSize {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.seen, oldest.Value.(string))
	}
	s.seen[key] = s.order.PushBack(key)
	return false
}

func (s *set) Unrecord(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.seen[key]
	if !ok {
		return
	}
	delete(s.seen, key)
	if el != nil {
		s.order.Remove(el)
	}
}

func (s *set) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
