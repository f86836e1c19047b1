// Package mmlist is an ordered list whose elements are stored off heap.
//
// Every element is encoded into its own storage record keyed by a handle.
// Handles come from a counter that only goes up (Clear does not reset it),
// so a handle is never reused. The order of the list is the order of a
// slice of handles kept on the heap, independent of the handle values.
package mmlist

import (
	"reflect"
	"slices"
)

import (
	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

import (
	"github.com/timtadh/offheap"
	"github.com/timtadh/offheap/config"
	"github.com/timtadh/offheap/converter"
	"github.com/timtadh/offheap/errors"
	"github.com/timtadh/offheap/guard"
	"github.com/timtadh/offheap/storage"
)

var _ offheap.Sequence[int] = (*List[int])(nil)

// List is safe for concurrent use. Reads share the list's guard, every
// mutation holds it exclusively for the whole call.
type List[V any] struct {
	guard   *guard.Guard
	engine  *storage.Engine[uint64]
	conv    converter.Converter[V]
	equal   func(a, b V) bool
	hash    func(V) uint64
	handles []uint64
	next    uint64
	logger  log.Logger
}

type Option[V any] func(*List[V])

// WithConverter replaces the default Graph codec.
func WithConverter[V any](conv converter.Converter[V]) Option[V] {
	return func(l *List[V]) {
		l.conv = conv
	}
}

// WithEqual replaces reflect.DeepEqual as the element equality used by
// Remove, Contains, IndexOf and Equal. Hash still reads the encoded bytes,
// so an equality looser than byte equality needs a matching WithHash.
func WithEqual[V any](equal func(a, b V) bool) Option[V] {
	return func(l *List[V]) {
		l.equal = equal
	}
}

// WithHash makes Hash decode every element and fold hash(element) in
// place of the hash of its encoding. Elements equal under WithEqual must
// hash the same.
func WithHash[V any](hash func(V) uint64) Option[V] {
	return func(l *List[V]) {
		l.hash = hash
	}
}

func New[V any](cfg *config.Config, opts ...Option[V]) (*List[V], error) {
	engine, err := storage.New[uint64](cfg)
	if err != nil {
		return nil, err
	}
	l := &List[V]{
		guard:   guard.New(),
		engine:  engine,
		conv:    converter.Default[V](),
		equal:   func(a, b V) bool { return reflect.DeepEqual(a, b) },
		handles: make([]uint64, 0, cfg.InitialCapacity),
		logger:  log.With(cfg.GetLogger(), "component", "mmlist", "collection", cfg.Name),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// FromSlice builds a list holding items in order.
func FromSlice[V any](cfg *config.Config, items []V, opts ...Option[V]) (*List[V], error) {
	l, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := l.AppendAll(items); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *List[V]) Size() int {
	var size int
	l.guard.DoRead(func() error {
		size = len(l.handles)
		return nil
	})
	return size
}

func (l *List[V]) IsEmpty() bool {
	return l.Size() == 0
}

func (l *List[V]) Append(value V) error {
	return l.guard.DoWrite(func() error {
		h, err := l.create(value)
		if err != nil {
			return err
		}
		l.handles = append(l.handles, h)
		return nil
	})
}

// Insert puts value at position i, 0 <= i <= Size(), shifting the
// elements after it. It costs O(Size()).
func (l *List[V]) Insert(i int, value V) error {
	return l.guard.DoWrite(func() error {
		if i < 0 || i > len(l.handles) {
			return errors.OutOfRange(i, len(l.handles))
		}
		h, err := l.create(value)
		if err != nil {
			return err
		}
		l.handles = slices.Insert(l.handles, i, h)
		return nil
	})
}

func (l *List[V]) Get(i int) (V, error) {
	return guard.Read(l.guard, func() (V, error) {
		if err := l.check(i); err != nil {
			var zero V
			return zero, err
		}
		return l.get(l.handles[i])
	})
}

// Set replaces the element at i and returns the one it replaced. The
// replacement gets a fresh handle; the old record is deleted only after
// the new one is written.
func (l *List[V]) Set(i int, value V) (V, error) {
	return guard.Write(l.guard, func() (old V, err error) {
		if err := l.check(i); err != nil {
			return old, err
		}
		return l.set(i, value)
	})
}

func (l *List[V]) RemoveAt(i int) (V, error) {
	return guard.Write(l.guard, func() (V, error) {
		if err := l.check(i); err != nil {
			var zero V
			return zero, err
		}
		return l.removeAt(i)
	})
}

// Pop removes and returns the last element.
func (l *List[V]) Pop() (V, error) {
	return guard.Write(l.guard, func() (V, error) {
		if len(l.handles) == 0 {
			var zero V
			return zero, errors.OutOfRange(0, 0)
		}
		return l.removeAt(len(l.handles) - 1)
	})
}

// Remove deletes EVERY element equal to value, not only the first, and
// reports whether any was removed.
func (l *List[V]) Remove(value V) (bool, error) {
	return guard.Write(l.guard, func() (bool, error) {
		return l.removeWhere(func(item V) bool {
			return l.equal(item, value)
		})
	})
}

// RemoveAll deletes every element equal to one of values.
func (l *List[V]) RemoveAll(values []V) (bool, error) {
	return guard.Write(l.guard, func() (bool, error) {
		return l.removeWhere(func(item V) bool {
			return l.in(item, values)
		})
	})
}

// RetainAll deletes every element not equal to one of values.
func (l *List[V]) RetainAll(values []V) (bool, error) {
	return guard.Write(l.guard, func() (bool, error) {
		return l.removeWhere(func(item V) bool {
			return !l.in(item, values)
		})
	})
}

func (l *List[V]) Contains(value V) (bool, error) {
	i, err := l.IndexOf(value)
	return i >= 0, err
}

func (l *List[V]) ContainsAll(values []V) (bool, error) {
	return guard.Read(l.guard, func() (bool, error) {
		for _, v := range values {
			i, err := l.indexOf(v, false)
			if err != nil {
				return false, err
			}
			if i < 0 {
				return false, nil
			}
		}
		return true, nil
	})
}

// IndexOf is the position of the first element equal to value or -1.
func (l *List[V]) IndexOf(value V) (int, error) {
	return guard.Read(l.guard, func() (int, error) {
		return l.indexOf(value, false)
	})
}

func (l *List[V]) LastIndexOf(value V) (int, error) {
	return guard.Read(l.guard, func() (int, error) {
		return l.indexOf(value, true)
	})
}

// Slice decodes the elements in [from, to) into a new slice. Changes to
// the list do not show up in it.
func (l *List[V]) Slice(from, to int) ([]V, error) {
	return guard.Read(l.guard, func() ([]V, error) {
		if from < 0 || from > len(l.handles) {
			return nil, errors.OutOfRange(from, len(l.handles))
		}
		if to < from || to > len(l.handles) {
			return nil, errors.OutOfRange(to, len(l.handles))
		}
		return l.slice(from, to)
	})
}

func (l *List[V]) ToSlice() ([]V, error) {
	return guard.Read(l.guard, func() ([]V, error) {
		return l.slice(0, len(l.handles))
	})
}

// AppendAll appends items in order. Every item is encoded before the
// first one is stored, so a codec failure appends nothing.
func (l *List[V]) AppendAll(items []V) error {
	return l.guard.DoWrite(func() error {
		hs, err := l.createAll(items)
		l.handles = append(l.handles, hs...)
		return err
	})
}

// InsertAll inserts items in order starting at position i.
func (l *List[V]) InsertAll(i int, items []V) error {
	return l.guard.DoWrite(func() error {
		if i < 0 || i > len(l.handles) {
			return errors.OutOfRange(i, len(l.handles))
		}
		hs, err := l.createAll(items)
		l.handles = slices.Insert(l.handles, i, hs...)
		return err
	})
}

func (l *List[V]) Swap(i, j int) error {
	return l.guard.DoWrite(func() error {
		if err := l.check(i); err != nil {
			return err
		}
		if err := l.check(j); err != nil {
			return err
		}
		l.handles[i], l.handles[j] = l.handles[j], l.handles[i]
		return nil
	})
}

// Clear drops every element and shrinks the storage back to its initial
// size. The handle counter keeps counting.
func (l *List[V]) Clear() error {
	return l.guard.DoWrite(func() error {
		dropped := len(l.handles)
		l.handles = make([]uint64, 0, cap(l.handles))
		level.Debug(l.logger).Log("msg", "list cleared", "dropped", dropped, "next", l.next)
		return l.engine.Clear()
	})
}

// Close releases the storage. The list is unusable afterwards.
func (l *List[V]) Close() error {
	return l.guard.DoWrite(func() error {
		l.handles = nil
		return l.engine.Close()
	})
}

// Stats reports on the storage behind the list.
func (l *List[V]) Stats() storage.Stats {
	var s storage.Stats
	l.guard.DoRead(func() error {
		s = l.engine.Stats()
		return nil
	})
	return s
}

// Equal reports whether o holds equal elements in the same order.
func (l *List[V]) Equal(o *List[V]) (bool, error) {
	if l == o {
		return true, nil
	}
	theirs, err := o.ToSlice()
	if err != nil {
		return false, err
	}
	return guard.Read(l.guard, func() (bool, error) {
		if len(l.handles) != len(theirs) {
			return false, nil
		}
		for i, h := range l.handles {
			mine, err := l.get(h)
			if err != nil {
				return false, err
			}
			if !l.equal(mine, theirs[i]) {
				return false, nil
			}
		}
		return true, nil
	})
}

// Hash folds the hashes of the encoded elements in order, starting from 1
// with h = 31*h + hash(element). A null element hashes to 0. Lists which
// are Equal hash the same as long as their equal elements also encode to
// the same bytes, or the list was built WithHash.
func (l *List[V]) Hash() (uint64, error) {
	return guard.Read(l.guard, func() (uint64, error) {
		h := uint64(1)
		for _, handle := range l.handles {
			data, err := l.read(handle)
			if err != nil {
				return 0, err
			}
			var eh uint64
			switch {
			case data == nil:
			case l.hash != nil:
				item, err := l.conv.Decode(data)
				if err != nil {
					return 0, err
				}
				eh = l.hash(item)
			default:
				eh = xxhash.Sum64(data)
			}
			h = 31*h + eh
		}
		return h, nil
	})
}

// Items iterates the list front to back. It checks the current length at
// every step, so it sees elements appended while it runs.
func (l *List[V]) Items() (offheap.ItemIterator[V], error) {
	c := l.Cursor()
	var it offheap.ItemIterator[V]
	it = func() (V, error, offheap.ItemIterator[V]) {
		item, ok, err := c.Next()
		if err != nil || !ok {
			return item, err, nil
		}
		return item, nil, it
	}
	return it, nil
}

func (l *List[V]) check(i int) error {
	if i < 0 || i >= len(l.handles) {
		return errors.OutOfRange(i, len(l.handles))
	}
	return nil
}

// create stores value under a fresh handle.
func (l *List[V]) create(value V) (uint64, error) {
	data, err := l.conv.Encode(value)
	if err != nil {
		return 0, err
	}
	return l.store(data)
}

func (l *List[V]) store(data []byte) (uint64, error) {
	h := l.next
	l.next++
	if err := l.engine.Create(h, data); err != nil {
		return 0, err
	}
	return h, nil
}

// createAll returns the handles of the items it stored, which on an
// allocation failure are the items before the failing one.
func (l *List[V]) createAll(items []V) ([]uint64, error) {
	encoded := make([][]byte, 0, len(items))
	for _, item := range items {
		data, err := l.conv.Encode(item)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, data)
	}
	hs := make([]uint64, 0, len(items))
	for _, data := range encoded {
		h, err := l.store(data)
		if err != nil {
			return hs, err
		}
		hs = append(hs, h)
	}
	return hs, nil
}

func (l *List[V]) read(h uint64) ([]byte, error) {
	data, has, err := l.engine.Read(h)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Errorf("list handle %d has no record", h)
	}
	return data, nil
}

func (l *List[V]) get(h uint64) (V, error) {
	data, err := l.read(h)
	if err != nil {
		var zero V
		return zero, err
	}
	return l.conv.Decode(data)
}

func (l *List[V]) set(i int, value V) (old V, err error) {
	prev := l.handles[i]
	old, err = l.get(prev)
	if err != nil {
		return old, err
	}
	h, err := l.create(value)
	if err != nil {
		var zero V
		return zero, err
	}
	l.handles[i] = h
	if _, _, err := l.engine.Delete(prev); err != nil {
		return old, err
	}
	return old, nil
}

func (l *List[V]) removeAt(i int) (V, error) {
	h := l.handles[i]
	item, err := l.get(h)
	if err != nil {
		return item, err
	}
	if _, _, err := l.engine.Delete(h); err != nil {
		return item, err
	}
	l.handles = slices.Delete(l.handles, i, i+1)
	return item, nil
}

// removeWhere deletes the elements matching where and compacts the handle
// slice in one pass.
func (l *List[V]) removeWhere(where func(V) bool) (bool, error) {
	kept := l.handles[:0]
	removed := false
	for j, h := range l.handles {
		item, err := l.get(h)
		if err == nil && where(item) {
			_, _, err = l.engine.Delete(h)
			if err == nil {
				removed = true
				continue
			}
		}
		if err != nil {
			kept = append(kept, l.handles[j:]...)
			l.handles = kept
			return removed, err
		}
		kept = append(kept, h)
	}
	l.handles = kept
	return removed, nil
}

func (l *List[V]) in(item V, values []V) bool {
	for _, v := range values {
		if l.equal(item, v) {
			return true
		}
	}
	return false
}

func (l *List[V]) indexOf(value V, last bool) (int, error) {
	n := len(l.handles)
	for k := 0; k < n; k++ {
		i := k
		if last {
			i = n - 1 - k
		}
		item, err := l.get(l.handles[i])
		if err != nil {
			return -1, err
		}
		if l.equal(item, value) {
			return i, nil
		}
	}
	return -1, nil
}

func (l *List[V]) slice(from, to int) ([]V, error) {
	items := make([]V, 0, to-from)
	for _, h := range l.handles[from:to] {
		item, err := l.get(h)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
