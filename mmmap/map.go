// Package mmmap is a map whose values are stored off heap, one storage
// record per key.
//
// The map keeps the set of its keys on the heap. A key is in the set
// exactly when the engine holds a record for it: Put adds the key and
// Remove and Clear drop it.
package mmmap

import (
	"reflect"
)

import (
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

var _ offheap.Associative[string, int] = (*Map[string, int])(nil)

// Map is safe for concurrent use.
type Map[K comparable, V any] struct {
	guard  *guard.Guard
	engine *storage.Engine[K]
	conv   converter.Converter[V]
	equal  func(a, b V) bool
	keys   map[K]struct{}
	logger log.Logger
}

type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

type Option[V any] func(*options[V])

type options[V any] struct {
	conv  converter.Converter[V]
	equal func(a, b V) bool
}

func WithConverter[V any](conv converter.Converter[V]) Option[V] {
	return func(o *options[V]) {
		o.conv = conv
	}
}

// WithEqual replaces reflect.DeepEqual in ContainsValue.
func WithEqual[V any](equal func(a, b V) bool) Option[V] {
	return func(o *options[V]) {
		o.equal = equal
	}
}

func New[K comparable, V any](cfg *config.Config, opts ...Option[V]) (*Map[K, V], error) {
	engine, err := storage.New[K](cfg)
	if err != nil {
		return nil, err
	}
	o := options[V]{
		conv:  converter.Default[V](),
		equal: func(a, b V) bool { return reflect.DeepEqual(a, b) },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Map[K, V]{
		guard:  guard.New(),
		engine: engine,
		conv:   o.conv,
		equal:  o.equal,
		keys:   make(map[K]struct{}, cfg.InitialCapacity),
		logger: log.With(cfg.GetLogger(), "component", "mmmap", "collection", cfg.Name),
	}, nil
}

func (m *Map[K, V]) Size() int {
	var size int
	m.guard.DoRead(func() error {
		size = len(m.keys)
		return nil
	})
	return size
}

func (m *Map[K, V]) IsEmpty() bool {
	return m.Size() == 0
}

// Put stores value under key, replacing any previous value.
func (m *Map[K, V]) Put(key K, value V) error {
	return m.guard.DoWrite(func() error {
		return m.put(key, value)
	})
}

// PutAll puts every entry while holding the map exclusively once. On an
// error the entries put before it stay.
func (m *Map[K, V]) PutAll(entries map[K]V) error {
	return m.guard.DoWrite(func() error {
		for k, v := range entries {
			if err := m.put(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Merge puts every entry of other into m.
func (m *Map[K, V]) Merge(other *Map[K, V]) error {
	if other == m {
		return nil
	}
	entries, err := other.Entries()
	if err != nil {
		return err
	}
	return m.guard.DoWrite(func() error {
		for _, e := range entries {
			if err := m.put(e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Map[K, V]) Get(key K) (value V, has bool, err error) {
	err = m.guard.DoRead(func() error {
		value, has, err = m.get(key)
		return err
	})
	return value, has, err
}

func (m *Map[K, V]) Has(key K) bool {
	var has bool
	m.guard.DoRead(func() error {
		_, has = m.keys[key]
		return nil
	})
	return has
}

// Remove deletes key and returns the value it held. It does nothing when
// key is not in the map.
func (m *Map[K, V]) Remove(key K) (value V, has bool, err error) {
	err = m.guard.DoWrite(func() error {
		if _, has = m.keys[key]; !has {
			return nil
		}
		data, ok, err := m.engine.Delete(key)
		if err != nil {
			return err
		}
		delete(m.keys, key)
		if !ok {
			return errors.Errorf("map key %v had no record", key)
		}
		value, err = m.conv.Decode(data)
		return err
	})
	return value, has, err
}

func (m *Map[K, V]) ContainsValue(value V) (bool, error) {
	return guard.Read(m.guard, func() (bool, error) {
		for k := range m.keys {
			v, _, err := m.get(k)
			if err != nil {
				return false, err
			}
			if m.equal(v, value) {
				return true, nil
			}
		}
		return false, nil
	})
}

// Keys returns a snapshot of the keys in no particular order.
func (m *Map[K, V]) Keys() []K {
	keys, _ := guard.Read(m.guard, func() ([]K, error) {
		return m.snapshot(), nil
	})
	return keys
}

// Values decodes a snapshot of the values in no particular order.
func (m *Map[K, V]) Values() ([]V, error) {
	return guard.Read(m.guard, func() ([]V, error) {
		values := make([]V, 0, len(m.keys))
		for k := range m.keys {
			v, _, err := m.get(k)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	})
}

func (m *Map[K, V]) Entries() ([]Entry[K, V], error) {
	return guard.Read(m.guard, func() ([]Entry[K, V], error) {
		entries := make([]Entry[K, V], 0, len(m.keys))
		for k := range m.keys {
			v, _, err := m.get(k)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry[K, V]{Key: k, Value: v})
		}
		return entries, nil
	})
}

// Iterate walks a snapshot of the keys taken when it is called. Each step
// reads the current value; keys removed in the meantime are skipped.
func (m *Map[K, V]) Iterate() (offheap.Iterator[K, V], error) {
	keys := m.Keys()
	var kvi offheap.Iterator[K, V]
	kvi = func() (key K, value V, err error, _ offheap.Iterator[K, V]) {
		for len(keys) > 0 {
			key, keys = keys[0], keys[1:]
			var has bool
			value, has, err = m.Get(key)
			if err != nil {
				return key, value, err, nil
			}
			if has {
				return key, value, nil, kvi
			}
		}
		return key, value, nil, nil
	}
	return kvi, nil
}

// Clear drops every entry and shrinks the storage back to its initial
// size.
func (m *Map[K, V]) Clear() error {
	return m.guard.DoWrite(func() error {
		dropped := len(m.keys)
		m.keys = make(map[K]struct{}, len(m.keys))
		level.Debug(m.logger).Log("msg", "map cleared", "dropped", dropped)
		return m.engine.Clear()
	})
}

// Close releases the storage. The map is unusable afterwards.
func (m *Map[K, V]) Close() error {
	return m.guard.DoWrite(func() error {
		m.keys = nil
		return m.engine.Close()
	})
}

func (m *Map[K, V]) Stats() storage.Stats {
	var s storage.Stats
	m.guard.DoRead(func() error {
		s = m.engine.Stats()
		return nil
	})
	return s
}

func (m *Map[K, V]) put(key K, value V) error {
	data, err := m.conv.Encode(value)
	if err != nil {
		return err
	}
	if err := m.engine.Create(key, data); err != nil {
		return err
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *Map[K, V]) get(key K) (value V, has bool, err error) {
	if _, has := m.keys[key]; !has {
		return value, false, nil
	}
	data, has, err := m.engine.Read(key)
	if err != nil {
		return value, false, err
	}
	if !has {
		return value, false, errors.Errorf("map key %v has no record", key)
	}
	value, err = m.conv.Decode(data)
	if err != nil {
		return value, false, err
	}
	return value, true, nil
}

func (m *Map[K, V]) snapshot() []K {
	keys := make([]K, 0, len(m.keys))
	for k := range m.keys {
		keys = append(keys, k)
	}
	return keys
}
