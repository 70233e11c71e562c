package molecule

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription ties one consumer to a cached molecule instance. Releasing
// it decrements the instance's reference count; releasing twice is a no-op.
type Subscription struct {
	id       string
	injector *Injector
	entry    *entry
	released atomic.Bool
}

func newSubscription(inj *Injector, e *entry) *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		injector: inj,
		entry:    e,
	}
}

// ID returns the subscription's unique identifier
func (s *Subscription) ID() string {
	return s.id
}

// Released reports whether Release has been called
func (s *Subscription) Released() bool {
	return s.released.Load()
}

// Release decrements the reference count of the entry this subscription
// holds. Only the first call has any effect.
func (s *Subscription) Release() error {
	if s == nil {
		return nil
	}
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	s.injector.releaseEntry(s.entry)
	return nil
}
