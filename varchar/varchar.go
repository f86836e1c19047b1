package varchar

import (
	"reflect"
	"sort"
)

import (
	"github.com/timtadh/offheap/consts"
	"github.com/timtadh/offheap/errors"
	"github.com/timtadh/offheap/fmap"
	"github.com/timtadh/offheap/slice"
)

// Varchar allocates variable length runs of bytes inside a Region. Each
// run starts with a varRun header laid over the mapped bytes. Free space
// is tracked as an offset ordered list of extents so neighbouring frees
// can be coalesced; space past the high-water mark (end) is untouched.
type Varchar struct {
	region *fmap.Region
	free   []extent
	freed  uint64
	end    uint64
}

type extent struct {
	offset uint64
	size   uint64
}

type varRun struct {
	flags  consts.Flag
	_      [3]uint8
	length uint32
	size   uint64
}

const varRunSize = 16

const mAX_UINT32 uint32 = 0xffffffff

// a free extent smaller than this is left attached to the run it was
// split from
const minChunk = varRunSize + consts.ALIGN

type Stats struct {
	RegionSize  uint64
	HighWater   uint64
	UsedBytes   uint64
	FreeBytes   uint64
	FreeExtents int
}

func init() {
	var vr varRun
	vr_size := reflect.TypeOf(vr).Size()
	if vr_size != varRunSize {
		panic("the varRun was an unexpected size")
	}
}

func assert_len(bytes []byte, length int) {
	if length > len(bytes) {
		panic(errors.Errorf("Expected byte slice to be at least %v bytes long but was %v", length, len(bytes)))
	}
}

func asRun(backing []byte) *varRun {
	assert_len(backing, varRunSize)
	back := slice.AsSlice(&backing)
	if !back.Aligned(consts.ALIGN) {
		panic(errors.Errorf("unaligned run header"))
	}
	return (*varRun)(back.Array)
}

func (vr *varRun) Init(length uint32, size uint64) {
	vr.flags = consts.VARCHAR_RUN
	vr.length = length
	vr.size = size
}

// New makes an allocator owning every byte of the region.
func New(region *fmap.Region) *Varchar {
	return &Varchar{region: region}
}

func (v *Varchar) Region() *fmap.Region {
	return v.region
}

// Alloc reserves a run able to hold length bytes and returns its
// address. Free space is reused first fit; only when nothing fits is the
// region grown, to double its size or to fit the run if that is larger.
func (v *Varchar) Alloc(length int) (a uint64, err error) {
	if length < 0 || uint64(length) > uint64(mAX_UINT32) {
		return 0, errors.Allocationf("cannot allocate a run of %d bytes", length)
	}
	need := consts.AlignUp(varRunSize + uint64(length))
	a, size, found := v.firstFit(need)
	if !found {
		a, err = v.bump(need)
		if err != nil {
			return 0, err
		}
		size = need
	}
	err = v.region.Do(a, varRunSize, func(bytes []byte) error {
		asRun(bytes).Init(uint32(length), size)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return a, nil
}

func (v *Varchar) firstFit(need uint64) (a, size uint64, found bool) {
	for i := range v.free {
		e := &v.free[i]
		if e.size < need {
			continue
		}
		a = e.offset
		if e.size-need >= minChunk {
			e.offset += need
			e.size -= need
			v.freed -= need
			return a, need, true
		}
		size = e.size
		v.freed -= size
		v.free = append(v.free[:i], v.free[i+1:]...)
		return a, size, true
	}
	return 0, 0, false
}

func (v *Varchar) bump(need uint64) (uint64, error) {
	if v.end+need > v.region.Size() {
		if err := v.grow(v.end + need); err != nil {
			return 0, err
		}
	}
	a := v.end
	v.end += need
	return a, nil
}

func (v *Varchar) grow(atLeast uint64) error {
	size := v.region.Size() * 2
	if size < atLeast {
		size = atLeast
	}
	if max := v.region.MaxSize(); max > 0 && size > max && atLeast <= max {
		size = max
	}
	return v.region.Resize(size)
}

// Free returns the run at a to the free list, merging it with any free
// neighbours. A free extent ending at the high-water mark lowers it.
func (v *Varchar) Free(a uint64) error {
	var size uint64
	err := v.doRun(a, func(run *varRun) error {
		size = run.size
		run.flags = consts.VARCHAR_FREE
		run.length = 0
		return nil
	})
	if err != nil {
		return err
	}
	i := sort.Search(len(v.free), func(i int) bool {
		return v.free[i].offset > a
	})
	v.free = append(v.free, extent{})
	copy(v.free[i+1:], v.free[i:])
	v.free[i] = extent{offset: a, size: size}
	v.freed += size
	if i+1 < len(v.free) && v.free[i].offset+v.free[i].size == v.free[i+1].offset {
		v.free[i].size += v.free[i+1].size
		v.free = append(v.free[:i+1], v.free[i+2:]...)
	}
	if i > 0 && v.free[i-1].offset+v.free[i-1].size == v.free[i].offset {
		v.free[i-1].size += v.free[i].size
		v.free = append(v.free[:i], v.free[i+1:]...)
	}
	if n := len(v.free); n > 0 && v.free[n-1].offset+v.free[n-1].size == v.end {
		v.end = v.free[n-1].offset
		v.freed -= v.free[n-1].size
		v.free = v.free[:n-1]
	}
	return nil
}

// Do calls do with the length bytes of the run at a. The slice is only
// valid inside do.
func (v *Varchar) Do(a uint64, do func(bytes []byte) error) error {
	var length uint32
	err := v.doRun(a, func(run *varRun) error {
		length = run.length
		return nil
	})
	if err != nil {
		return err
	}
	return v.region.Do(a+varRunSize, uint64(length), do)
}

// Length of the run at a.
func (v *Varchar) Length(a uint64) (length int, err error) {
	err = v.doRun(a, func(run *varRun) error {
		length = int(run.length)
		return nil
	})
	return length, err
}

// Realloc changes the length of the run at a in place when its chunk is
// big enough. It reports false, changing nothing, when it is not.
func (v *Varchar) Realloc(a uint64, length int) (ok bool, err error) {
	if length < 0 || uint64(length) > uint64(mAX_UINT32) {
		return false, nil
	}
	err = v.doRun(a, func(run *varRun) error {
		if consts.AlignUp(varRunSize+uint64(length)) > run.size {
			return nil
		}
		run.length = uint32(length)
		ok = true
		return nil
	})
	return ok, err
}

// Reset forgets every run and remaps the region at size bytes. The runs
// are forgotten even when the remap fails; the region then keeps its
// current size.
func (v *Varchar) Reset(size uint64) error {
	v.free = v.free[:0]
	v.freed = 0
	v.end = 0
	return v.region.Resize(size)
}

func (v *Varchar) Stats() Stats {
	size := v.region.Size()
	return Stats{
		RegionSize:  size,
		HighWater:   v.end,
		UsedBytes:   v.end - v.freed,
		FreeBytes:   v.freed + (size - v.end),
		FreeExtents: len(v.free),
	}
}

func (v *Varchar) doRun(a uint64, do func(*varRun) error) error {
	if a%consts.ALIGN != 0 || a+varRunSize > v.end {
		return errors.Errorf("bad run address %d (high water %d)", a, v.end)
	}
	return v.region.Do(a, varRunSize, func(bytes []byte) error {
		flags := consts.AsFlag(bytes)
		if flags&consts.VARCHAR_RUN != 0 {
			return do(asRun(bytes))
		} else if flags&consts.VARCHAR_FREE != 0 {
			return errors.Errorf("run at %d was already freed", a)
		} else {
			return errors.Errorf("Unknown block type, %v at %v", flags, a)
		}
	})
}
