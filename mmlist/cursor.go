package mmlist

import (
	"slices"
)

import (
	"github.com/timtadh/offheap/errors"
	"github.com/timtadh/offheap/guard"
)

// Cursor walks a list in either direction. It sits between two elements:
// Next returns the one after it and Prev the one before it. It is not a
// snapshot: every step takes the list's guard and checks the current
// length. Remove and Set act on the position of the element Next or Prev
// returned last, not on the first element equal to it.
//
// A Cursor is used by one goroutine at a time.
type Cursor[V any] struct {
	l    *List[V]
	pos  int
	last int
}

func (l *List[V]) Cursor() *Cursor[V] {
	return &Cursor[V]{l: l, last: -1}
}

// CursorAt returns a cursor whose first Next returns element i. i may be
// the size of the list, leaving the cursor at the end.
func (l *List[V]) CursorAt(i int) (*Cursor[V], error) {
	err := l.guard.DoRead(func() error {
		if i < 0 || i > len(l.handles) {
			return errors.OutOfRange(i, len(l.handles))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Cursor[V]{l: l, pos: i, last: -1}, nil
}

// Next returns the next element. ok is false once the cursor has passed
// the end of the list.
func (c *Cursor[V]) Next() (item V, ok bool, err error) {
	err = c.l.guard.DoRead(func() error {
		if c.pos >= len(c.l.handles) {
			return nil
		}
		item, err = c.l.get(c.l.handles[c.pos])
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil || !ok {
		return item, false, err
	}
	c.last = c.pos
	c.pos++
	return item, true, nil
}

// Prev returns the previous element and moves the cursor back over it. ok
// is false at the front of the list.
func (c *Cursor[V]) Prev() (item V, ok bool, err error) {
	err = c.l.guard.DoRead(func() error {
		if c.pos > len(c.l.handles) {
			c.pos = len(c.l.handles)
		}
		if c.pos <= 0 {
			return nil
		}
		item, err = c.l.get(c.l.handles[c.pos-1])
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil || !ok {
		return item, false, err
	}
	c.pos--
	c.last = c.pos
	return item, true, nil
}

func (c *Cursor[V]) HasNext() bool {
	var has bool
	c.l.guard.DoRead(func() error {
		has = c.pos < len(c.l.handles)
		return nil
	})
	return has
}

func (c *Cursor[V]) HasPrev() bool {
	var has bool
	c.l.guard.DoRead(func() error {
		has = c.pos > 0 && len(c.l.handles) > 0
		return nil
	})
	return has
}

// NextIndex is the position of the element Next would return.
func (c *Cursor[V]) NextIndex() int {
	return c.pos
}

// PrevIndex is the position of the element Prev would return, or -1 at
// the front.
func (c *Cursor[V]) PrevIndex() int {
	return c.pos - 1
}

// Index is the position of the element Next or Prev returned last, or -1.
func (c *Cursor[V]) Index() int {
	return c.last
}

// Add inserts value at the cursor, before the element Next would return.
// A following Next is not affected and a following Prev returns value.
// Remove and Set need another Next or Prev first.
func (c *Cursor[V]) Add(value V) error {
	return c.l.guard.DoWrite(func() error {
		if c.pos > len(c.l.handles) {
			return errors.OutOfRange(c.pos, len(c.l.handles))
		}
		h, err := c.l.create(value)
		if err != nil {
			return err
		}
		c.l.handles = slices.Insert(c.l.handles, c.pos, h)
		c.pos++
		c.last = -1
		return nil
	})
}

// Remove deletes the element Next or Prev returned last. The cursor stays
// between the same neighbours.
func (c *Cursor[V]) Remove() (V, error) {
	return guard.Write(c.l.guard, func() (V, error) {
		if err := c.current(); err != nil {
			var zero V
			return zero, err
		}
		item, err := c.l.removeAt(c.last)
		if err != nil {
			return item, err
		}
		c.pos = c.last
		c.last = -1
		return item, nil
	})
}

// Set replaces the element Next or Prev returned last and returns the old
// value.
func (c *Cursor[V]) Set(value V) (V, error) {
	return guard.Write(c.l.guard, func() (V, error) {
		if err := c.current(); err != nil {
			var zero V
			return zero, err
		}
		return c.l.set(c.last, value)
	})
}

func (c *Cursor[V]) current() error {
	if c.last < 0 {
		return errors.Errorf("cursor has no current element")
	}
	return c.l.check(c.last)
}
