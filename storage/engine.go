package storage

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

import (
	"github.com/timtadh/offheap/config"
	"github.com/timtadh/offheap/errors"
	"github.com/timtadh/offheap/fmap"
	"github.com/timtadh/offheap/varchar"
)

// null is the index entry of a record whose payload is the null marker.
// It never names a run since runs are aligned.
const null = ^uint64(0)

// Engine is a keyed store of byte records. The payloads live in an
// anonymous mapping outside of the Go heap; only the key index is on
// the heap. An Engine has no locking of its own: Read, Has, Size, Do and
// Stats may run concurrently with each other, everything else needs
// exclusive access.
type Engine[K comparable] struct {
	region   *fmap.Region
	varchar  *varchar.Varchar
	index    map[K]uint64
	capacity int
	initial  uint64
	logger   log.Logger
	metrics  *Metrics
}

type Stats struct {
	varchar.Stats
	Records int
}

func New[K comparable](cfg *config.Config) (*Engine[K], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	region, err := fmap.Anonymous(uint64(cfg.RegionSize))
	if err != nil {
		return nil, err
	}
	region.Limit(uint64(cfg.MaxRegionSize))
	metrics, err := NewMetrics(cfg.Name, cfg.Registerer)
	if err != nil {
		region.Close()
		return nil, errors.Wrap(errors.ConstructionError, err, "could not register the storage metrics")
	}
	e := &Engine[K]{
		region:   region,
		varchar:  varchar.New(region),
		index:    make(map[K]uint64, cfg.InitialCapacity),
		capacity: cfg.InitialCapacity,
		initial:  region.Size(),
		logger:   log.With(cfg.GetLogger(), "component", "storage", "collection", cfg.Name),
		metrics:  metrics,
	}
	e.observe()
	return e, nil
}

// Size is the number of live records.
func (e *Engine[K]) Size() int {
	return len(e.index)
}

func (e *Engine[K]) Has(key K) bool {
	_, has := e.index[key]
	return has
}

// Create inserts or overwrites the record at key. A nil value stores the
// null marker. When the existing run is too small a new run is written
// before the old one is freed, so a failed allocation leaves the previous
// record as it was.
func (e *Engine[K]) Create(key K, value []byte) error {
	old, has := e.index[key]
	if value == nil {
		e.index[key] = null
		if has && old != null {
			if err := e.varchar.Free(old); err != nil {
				return err
			}
		}
		e.observe()
		return nil
	}
	if has && old != null {
		ok, err := e.varchar.Realloc(old, len(value))
		if err != nil {
			return err
		}
		if ok {
			err = e.write(old, value)
			e.observe()
			return err
		}
	}
	a, err := e.alloc(len(value))
	if err != nil {
		return err
	}
	if err := e.write(a, value); err != nil {
		e.varchar.Free(a)
		return err
	}
	e.index[key] = a
	if has && old != null {
		if err := e.varchar.Free(old); err != nil {
			return err
		}
	}
	e.observe()
	return nil
}

// Read returns a copy of the payload at key. The payload of a null
// record is nil; an empty record is an empty, non nil, slice.
func (e *Engine[K]) Read(key K) (value []byte, has bool, err error) {
	a, has := e.index[key]
	if !has {
		return nil, false, nil
	}
	value, err = e.read(a)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes the record at key and returns its payload. Its run goes
// back to the free list.
func (e *Engine[K]) Delete(key K) (value []byte, has bool, err error) {
	a, has := e.index[key]
	if !has {
		return nil, false, nil
	}
	value, err = e.read(a)
	if err != nil {
		return nil, false, err
	}
	if a != null {
		if err := e.varchar.Free(a); err != nil {
			return nil, false, err
		}
	}
	delete(e.index, key)
	e.observe()
	return value, true, nil
}

// Clear drops every record and shrinks the region back to its initial
// size. The records are gone even when the shrink fails.
func (e *Engine[K]) Clear() error {
	before := e.region.Size()
	e.index = make(map[K]uint64, e.capacity)
	err := e.varchar.Reset(e.initial)
	if err != nil {
		level.Error(e.logger).Log("msg", "could not shrink the region", "err", err)
	} else if after := e.region.Size(); after < before {
		e.metrics.shrinks.Inc()
		level.Debug(e.logger).Log("msg", "region shrunk", "from", before, "to", after)
	}
	e.observe()
	return err
}

// Do calls do for every record. value is only valid inside do and do
// must not modify the engine.
func (e *Engine[K]) Do(do func(key K, value []byte) error) error {
	for k, a := range e.index {
		if a == null {
			if err := do(k, nil); err != nil {
				return err
			}
			continue
		}
		err := e.varchar.Do(a, func(value []byte) error {
			return do(k, value)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine[K]) Stats() Stats {
	return Stats{
		Stats:   e.varchar.Stats(),
		Records: len(e.index),
	}
}

// Close unmaps the region and unregisters the metrics. The engine is
// unusable afterwards.
func (e *Engine[K]) Close() error {
	e.index = nil
	e.metrics.Unregister()
	return e.region.Close()
}

func (e *Engine[K]) alloc(length int) (uint64, error) {
	before := e.region.Size()
	a, err := e.varchar.Alloc(length)
	if err != nil {
		e.metrics.allocFailures.Inc()
		level.Error(e.logger).Log("msg", "could not allocate a record", "length", length, "region", before, "err", err)
		return 0, err
	}
	if after := e.region.Size(); after > before {
		e.metrics.grows.Inc()
		level.Debug(e.logger).Log("msg", "region grew", "from", before, "to", after, "records", len(e.index))
	}
	return a, nil
}

func (e *Engine[K]) write(a uint64, value []byte) error {
	return e.varchar.Do(a, func(data []byte) error {
		copy(data, value)
		return nil
	})
}

func (e *Engine[K]) read(a uint64) (value []byte, err error) {
	if a == null {
		return nil, nil
	}
	err = e.varchar.Do(a, func(data []byte) error {
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (e *Engine[K]) observe() {
	e.metrics.observe(len(e.index), e.varchar.Stats())
}
