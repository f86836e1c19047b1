package fmap

import (
	"sync/atomic"
	"unsafe"
)

import (
	"golang.org/x/sys/unix"
)

import (
	"github.com/timtadh/offheap/errors"
)

type Region struct {
	mmap        []byte
	limit       uint64
	outstanding atomic.Int64 // total outstanding pointers, pinned by concurrent readers
	closed      bool
}

// PageSize is the granularity of every mapping.
func PageSize() uint64 {
	return uint64(unix.Getpagesize())
}

func roundPages(size uint64) uint64 {
	pg := PageSize()
	if size == 0 {
		return pg
	}
	return (size + pg - 1) / pg * pg
}

func do_map(size uint64) ([]byte, error) {
	if size > uint64(int(^uint(0)>>1)) {
		return nil, errors.Allocationf("cannot map %d bytes", size)
	}
	mmap, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(errors.AllocationError, err, "mmap of %d bytes failed", size)
	}
	return mmap, nil
}

// Anonymous maps a new zeroed region of at least size bytes. The size is
// rounded up to a whole number of pages.
func Anonymous(size uint64) (*Region, error) {
	mmap, err := do_map(roundPages(size))
	if err != nil {
		return nil, err
	}
	return &Region{mmap: mmap}, nil
}

// Limit caps the size Resize may grow the region to. Zero removes the
// cap. The limit is rounded up to whole pages.
func (self *Region) Limit(max uint64) {
	if max == 0 {
		self.limit = 0
		return
	}
	self.limit = roundPages(max)
}

// MaxSize is the current limit, zero when unlimited.
func (self *Region) MaxSize() uint64 {
	return self.limit
}

func (self *Region) Size() uint64 {
	return uint64(len(self.mmap))
}

func (self *Region) Outstanding() int {
	return int(self.outstanding.Load())
}

// Resize remaps the region to size bytes (rounded up to pages) and keeps
// the common prefix of the old contents. On failure the old mapping is
// untouched.
func (self *Region) Resize(size uint64) error {
	if self.closed {
		return errors.Errorf("region is closed")
	}
	if n := self.outstanding.Load(); n > 0 {
		return errors.Errorf("cannot resize the region while there are %d outstanding pointers", n)
	}
	size = roundPages(size)
	if size == self.Size() {
		return nil
	}
	if self.limit > 0 && size > self.limit {
		return errors.Allocationf("region of %d bytes would exceed the limit of %d bytes", size, self.limit)
	}
	mmap, err := do_map(size)
	if err != nil {
		return err
	}
	copy(mmap, self.mmap)
	old := self.mmap
	self.mmap = mmap
	if err := unix.Munmap(old); err != nil {
		return errors.Wrap(errors.InternalError, err, "munmap of the old region failed")
	}
	return nil
}

func (self *Region) Do(offset, length uint64, do func([]byte) error) error {
	bytes, err := self.Get(offset, length)
	if err != nil {
		return err
	}
	defer self.Release(bytes)
	return do(bytes)
}

// Get pins and returns region[offset:offset+length]. The slice must be
// given back with Release before the region can be resized.
func (self *Region) Get(offset, length uint64) ([]byte, error) {
	if self.closed {
		return nil, errors.Errorf("region is closed")
	}
	if offset+length < offset || offset+length > self.Size() {
		return nil, errors.Errorf("Get outside of the region, (%d) %d + %d > %d", offset+length, offset, length, self.Size())
	}
	self.outstanding.Add(1)
	return self.mmap[offset : offset+length : offset+length], nil
}

func (self *Region) Release(bytes []byte) error {
	if !self.contains(bytes) {
		return errors.Errorf("Tried to release a slice that was not in this mapping")
	}
	if self.outstanding.Add(-1) < 0 {
		self.outstanding.Add(1)
		return errors.Errorf("Tried to release with no outstanding pointers (double release?)")
	}
	return nil
}

func (self *Region) contains(bytes []byte) bool {
	if len(self.mmap) == 0 {
		return false
	}
	start := uintptr(unsafe.Pointer(unsafe.SliceData(self.mmap)))
	end := start + uintptr(len(self.mmap))
	p := uintptr(unsafe.Pointer(unsafe.SliceData(bytes)))
	return p >= start && p+uintptr(len(bytes)) <= end
}

func (self *Region) Close() error {
	if self.closed {
		return nil
	}
	if self.outstanding.Load() > 0 {
		return errors.Errorf("Tried to close region when there were outstanding pointers")
	}
	if err := unix.Munmap(self.mmap); err != nil {
		return errors.Wrap(errors.InternalError, err, "munmap failed")
	}
	self.mmap = nil
	self.closed = true
	return nil
}
