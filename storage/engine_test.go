package storage

import "testing"

import (
	"bytes"
	"fmt"
	"math/rand"
	"runtime/debug"
	"strings"
	"sync"
)

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

import (
	"github.com/timtadh/offheap/config"
	"github.com/timtadh/offheap/errors"
	"github.com/timtadh/offheap/fmap"
)

type T testing.T

func (t *T) assert(msg string, oks ...bool) {
	for _, ok := range oks {
		if !ok {
			t.Log("\n" + string(debug.Stack()))
			t.Error(msg)
			t.Fatal("assert failed")
		}
	}
}

func (t *T) assert_nil(errors ...error) {
	for _, err := range errors {
		if err != nil {
			t.Log("\n" + string(debug.Stack()))
			t.Fatal(err)
		}
	}
}

func (t *T) rand_bytes(length int) []byte {
	b := make([]byte, length)
	_, err := rand.Read(b)
	t.assert_nil(err)
	return b
}

func (t *T) engine(cfg *config.Config) (*Engine[uint64], func()) {
	e, err := New[uint64](cfg)
	t.assert_nil(err)
	return e, func() {
		t.assert_nil(e.Close())
	}
}

func (t *T) read(e *Engine[uint64], key uint64) []byte {
	v, has, err := e.Read(key)
	t.assert_nil(err)
	t.assert(fmt.Sprintf("has %d", key), has)
	return v
}

func TestNewValidates(x *testing.T) {
	t := (*T)(x)
	_, err := New[string](config.New(0, 4096))
	t.assert("capacity < 1", errors.Is(err, errors.ErrConstruction))
	_, err = New[string](config.New(10, 0))
	t.assert("region < 1", errors.Is(err, errors.ErrConstruction))
}

func TestCreateRead(x *testing.T) {
	t := (*T)(x)
	e, clean := t.engine(config.New(10, 4096))
	defer clean()
	t.assert_nil(e.Create(1, []byte("hello")))
	t.assert("size == 1", e.Size() == 1)
	t.assert("hello", bytes.Equal(t.read(e, 1), []byte("hello")))
	_, has, err := e.Read(2)
	t.assert_nil(err)
	t.assert("absent", !has)
}

func TestReadCopies(x *testing.T) {
	t := (*T)(x)
	e, clean := t.engine(config.New(10, 4096))
	defer clean()
	t.assert_nil(e.Create(1, []byte("hello")))
	v := t.read(e, 1)
	v[0] = 'j'
	t.assert("unchanged", bytes.Equal(t.read(e, 1), []byte("hello")))
}

func TestNullAndEmpty(x *testing.T) {
	t := (*T)(x)
	e, clean := t.engine(config.New(10, 4096))
	defer clean()
	t.assert_nil(e.Create(1, nil))
	t.assert_nil(e.Create(2, []byte{}))
	t.assert("size == 2", e.Size() == 2)
	n := t.read(e, 1)
	t.assert("null is nil", n == nil)
	em := t.read(e, 2)
	t.assert("empty is not nil", em != nil, len(em) == 0)
	v, has, err := e.Delete(1)
	t.assert_nil(err)
	t.assert("deleted null", has, v == nil)
	t.assert("size == 1", e.Size() == 1)
}

func TestUpsert(x *testing.T) {
	t := (*T)(x)
	e, clean := t.engine(config.New(10, 4096))
	defer clean()
	t.assert_nil(e.Create(1, []byte("a fairly long first value")))
	t.assert_nil(e.Create(1, []byte("short")))
	t.assert("short", bytes.Equal(t.read(e, 1), []byte("short")))
	long := t.rand_bytes(3000)
	t.assert_nil(e.Create(1, long))
	t.assert("long", bytes.Equal(t.read(e, 1), long))
	t.assert_nil(e.Create(1, nil))
	t.assert("null", t.read(e, 1) == nil)
	t.assert_nil(e.Create(1, []byte("back")))
	t.assert("back", bytes.Equal(t.read(e, 1), []byte("back")))
	t.assert("size == 1", e.Size() == 1)
	s := e.Stats()
	t.assert(fmt.Sprintf("one live run, %v", s), s.UsedBytes == 24)
}

func TestDelete(x *testing.T) {
	t := (*T)(x)
	e, clean := t.engine(config.New(10, 4096))
	defer clean()
	values := make(map[uint64][]byte)
	for i := uint64(0); i < 100; i++ {
		values[i] = t.rand_bytes(rand.Intn(200))
		t.assert_nil(e.Create(i, values[i]))
	}
	for i := uint64(0); i < 100; i += 3 {
		v, has, err := e.Delete(i)
		t.assert_nil(err)
		t.assert("had", has)
		t.assert("prior value", bytes.Equal(v, values[i]))
		delete(values, i)
	}
	_, has, err := e.Delete(0)
	t.assert_nil(err)
	t.assert("already gone", !has)
	t.assert("size", e.Size() == len(values))
	for k, v := range values {
		t.assert("survivor", bytes.Equal(t.read(e, k), v))
	}
}

func TestDeleteReusesSpace(x *testing.T) {
	t := (*T)(x)
	e, clean := t.engine(config.New(10, 64*1024))
	defer clean()
	for round := 0; round < 50; round++ {
		for i := uint64(0); i < 100; i++ {
			t.assert_nil(e.Create(i, t.rand_bytes(100)))
		}
		for i := uint64(0); i < 100; i++ {
			_, _, err := e.Delete(i)
			t.assert_nil(err)
		}
	}
	t.assert("never grew", e.Stats().RegionSize == 64*1024)
}

func TestElasticGrowth(x *testing.T) {
	t := (*T)(x)
	cfg := config.New(100, 4096)
	e, clean := t.engine(cfg)
	defer clean()
	values := make([][]byte, 0, 1000)
	for i := 0; i < 10*cfg.InitialCapacity; i++ {
		v := t.rand_bytes(rand.Intn(300))
		values = append(values, v)
		t.assert_nil(e.Create(uint64(i), v))
	}
	t.assert("grew", e.Stats().RegionSize > 4096)
	for i, v := range values {
		t.assert("readable", bytes.Equal(t.read(e, uint64(i)), v))
	}
}

func TestAllocationFailure(x *testing.T) {
	t := (*T)(x)
	cfg := config.New(10, int(fmap.PageSize()))
	cfg.MaxRegionSize = int(fmap.PageSize())
	e, clean := t.engine(cfg)
	defer clean()
	keep := []byte("committed")
	t.assert_nil(e.Create(1, keep))
	err := e.Create(2, t.rand_bytes(int(fmap.PageSize())))
	t.assert("allocation error", errors.Is(err, errors.ErrAllocation))
	err = e.Create(1, t.rand_bytes(int(fmap.PageSize())))
	t.assert("allocation error on overwrite", errors.Is(err, errors.ErrAllocation))
	t.assert("size == 1", e.Size() == 1)
	t.assert("old record intact", bytes.Equal(t.read(e, 1), keep))
	t.assert("no half record", !e.Has(2))
}

func TestClear(x *testing.T) {
	t := (*T)(x)
	e, clean := t.engine(config.New(10, 4096))
	defer clean()
	initial := e.Stats().RegionSize
	for i := uint64(0); i < 500; i++ {
		t.assert_nil(e.Create(i, t.rand_bytes(64)))
	}
	t.assert("grew", e.Stats().RegionSize > initial)
	t.assert_nil(e.Clear())
	t.assert("empty", e.Size() == 0)
	t.assert("shrank", e.Stats().RegionSize == initial)
	t.assert_nil(e.Create(7, []byte("again")))
	t.assert("again", bytes.Equal(t.read(e, 7), []byte("again")))
	t.assert("size == 1", e.Size() == 1)
}

func TestDo(x *testing.T) {
	t := (*T)(x)
	e, err := New[string](config.New(10, 4096))
	t.assert_nil(err)
	defer e.Close()
	t.assert_nil(e.Create("a", []byte("1")))
	t.assert_nil(e.Create("b", nil))
	seen := make(map[string]string)
	t.assert_nil(e.Do(func(k string, v []byte) error {
		if v == nil {
			seen[k] = "<nil>"
		} else {
			seen[k] = string(v)
		}
		return nil
	}))
	t.assert("seen", len(seen) == 2, seen["a"] == "1", seen["b"] == "<nil>")
	stop := fmt.Errorf("stop")
	t.assert("stops", e.Do(func(string, []byte) error { return stop }) == stop)
}

var engineMetrics = []string{
	"offheap_storage_records",
	"offheap_storage_region_bytes",
	"offheap_storage_free_bytes",
	"offheap_storage_region_grows_total",
	"offheap_storage_region_shrinks_total",
	"offheap_storage_allocation_failures_total",
}

func TestMetricsPartialRegistration(x *testing.T) {
	t := (*T)(x)
	reg := prometheus.NewRegistry()
	taken := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "offheap_storage_free_bytes",
		Help:        "Bytes of the backing region not held by a record.",
		ConstLabels: prometheus.Labels{"collection": "part"},
	})
	t.assert_nil(reg.Register(taken))

	live := config.New(10, 4096)
	live.Name = "live"
	live.Registerer = reg
	e, err := New[uint64](live)
	t.assert_nil(err)
	defer e.Close()

	part := config.New(10, 4096)
	part.Name = "part"
	part.Registerer = reg
	_, err = New[uint64](part)
	t.assert("conflict", errors.Is(err, errors.ErrConstruction))

	// only the taken gauge is left for the failed collection
	n, err := testutil.GatherAndCount(reg, engineMetrics...)
	t.assert_nil(err)
	t.assert("series", n == len(engineMetrics)+1)
	_, err = New[uint64](part)
	t.assert("still conflicts", errors.Is(err, errors.ErrConstruction))
	reg.Unregister(taken)
	p, err := New[uint64](part)
	t.assert_nil(err)
	defer p.Close()
	n, err = testutil.GatherAndCount(reg, engineMetrics...)
	t.assert_nil(err)
	t.assert("both collections", n == 2*len(engineMetrics))
}

func TestMetricsAndLogging(x *testing.T) {
	t := (*T)(x)
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	cfg := config.New(10, 4096)
	cfg.Name = "test"
	cfg.Registerer = reg
	cfg.Logger = log.NewLogfmtLogger(&buf)
	e, err := New[uint64](cfg)
	t.assert_nil(err)
	for i := uint64(0); i < 100; i++ {
		t.assert_nil(e.Create(i, t.rand_bytes(100)))
	}
	t.assert("records", testutil.ToFloat64(e.metrics.records) == 100)
	t.assert("grows", testutil.ToFloat64(e.metrics.grows) > 0)
	t.assert("region", testutil.ToFloat64(e.metrics.regionBytes) == float64(e.Stats().RegionSize))
	t.assert("logged growth", strings.Contains(buf.String(), "region grew"))
	t.assert_nil(e.Clear())
	t.assert("shrinks", testutil.ToFloat64(e.metrics.shrinks) == 1)

	_, err = New[uint64](cfg)
	t.assert("duplicate registration", errors.Is(err, errors.ErrConstruction))

	n, err := testutil.GatherAndCount(reg, engineMetrics...)
	t.assert_nil(err)
	t.assert("registered", n == len(engineMetrics))
	t.assert_nil(e.Create(1000, t.rand_bytes(10)))
	t.assert("still observed", testutil.ToFloat64(e.metrics.records) == 1)
	n, err = testutil.GatherAndCount(reg, "offheap_storage_records")
	t.assert_nil(err)
	t.assert("records registered", n == 1)
	t.assert_nil(e.Close())
	n, err = testutil.GatherAndCount(reg, "offheap_storage_records")
	t.assert_nil(err)
	t.assert("unregistered", n == 0)
}

func TestConcurrentReads(x *testing.T) {
	t := (*T)(x)
	e, clean := t.engine(config.New(10, 4096))
	defer clean()
	values := make([][]byte, 100)
	for i := range values {
		values[i] = t.rand_bytes(rand.Intn(100))
		t.assert_nil(e.Create(uint64(i), values[i]))
	}
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range values {
				v, has, err := e.Read(uint64(i))
				if err == nil && (!has || !bytes.Equal(v, values[i])) {
					err = fmt.Errorf("bad read of %d", i)
				}
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.assert_nil(err)
	}
	t.assert("nothing pinned", e.region.Outstanding() == 0)
	t.assert_nil(e.Create(1000, t.rand_bytes(8192)))
}
