package reactive

import "errors"

// ErrAlreadyDestroyed is returned by a Destroyer that is called more than once.
// A second call almost always means a listener was tracked twice and one copy leaked.
var ErrAlreadyDestroyed = errors.New("reactive: destroyer called twice (listener leak)")

// Destroyer removes exactly one subscription.
type Destroyer func() error

type subscription[T any] struct {
	cb      func(T) error
	once    bool
	removed bool
}

// Event is an ordered set of subscribers. Emit runs them one after another in
// registration order; a subscriber finishes (including anything it triggers
// synchronously) before the next one starts.
//
// Event is not safe for concurrent use. Sim state lives on a single goroutine.
type Event[T any] struct {
	subs []*subscription[T]
}

func (e *Event[T]) On(cb func(T) error) Destroyer {
	return e.add(cb, false)
}

// Once subscribes cb for the next emission only.
func (e *Event[T]) Once(cb func(T) error) Destroyer {
	return e.add(cb, true)
}

func (e *Event[T]) add(cb func(T) error, once bool) Destroyer {
	s := &subscription[T]{cb: cb, once: once}
	e.subs = append(e.subs, s)
	called := false
	return func() error {
		if called {
			return ErrAlreadyDestroyed
		}
		called = true
		e.remove(s)
		return nil
	}
}

func (e *Event[T]) remove(s *subscription[T]) {
	if s.removed {
		return
	}
	s.removed = true
	for i, cur := range e.subs {
		if cur == s {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Clear drops every subscriber. Outstanding destroyers stay valid and
// return nil on their first call.
func (e *Event[T]) Clear() {
	for _, s := range e.subs {
		s.removed = true
	}
	e.subs = nil
}

func (e *Event[T]) Len() int { return len(e.subs) }

// Emit calls every subscriber registered at the time of the call. Subscribers
// removed by an earlier subscriber during the same emission are skipped.
// The first subscriber error aborts the emission and is returned.
func (e *Event[T]) Emit(v T) error {
	if len(e.subs) == 0 {
		return nil
	}
	snapshot := make([]*subscription[T], len(e.subs))
	copy(snapshot, e.subs)
	for _, s := range snapshot {
		if s.removed {
			continue
		}
		if s.once {
			e.remove(s)
		}
		if err := s.cb(v); err != nil {
			return err
		}
	}
	return nil
}
