// Package guard serializes access to a collection: any number of readers
// or one writer at a time.
package guard

import (
	"sync"
)

// Guard is a reader/writer lock with scoped helpers. It is not reentrant:
// a function run under DoWrite must not call DoRead or DoWrite on the
// same Guard. The zero value is ready to use.
type Guard struct {
	mu sync.RWMutex
}

func New() *Guard {
	return &Guard{}
}

// DoRead runs do holding the shared lock. The lock is released even if do
// panics.
func (g *Guard) DoRead(do func() error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return do()
}

// DoWrite runs do holding the exclusive lock.
func (g *Guard) DoWrite(do func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return do()
}

// Read is DoRead for functions that produce a value.
func Read[R any](g *Guard, do func() (R, error)) (r R, err error) {
	err = g.DoRead(func() error {
		r, err = do()
		return err
	})
	return r, err
}

// Write is DoWrite for functions that produce a value.
func Write[R any](g *Guard, do func() (R, error)) (r R, err error) {
	err = g.DoWrite(func() error {
		r, err = do()
		return err
	})
	return r, err
}
