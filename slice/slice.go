package slice

import (
	"unsafe"
)

// Slice is the runtime layout of a slice header. It lets a header
// struct be laid directly over mapped bytes.
type Slice struct {
	Array unsafe.Pointer
	Len   int
	Cap   int
}

func AsSlice(bytes *[]byte) *Slice {
	return (*Slice)(unsafe.Pointer(bytes))
}

func (ss *Slice) AsBytes() *[]byte {
	return (*[]byte)(unsafe.Pointer(ss))
}

// At returns the address of the byte at offset within the slice.
func (ss *Slice) At(offset int) unsafe.Pointer {
	if offset < 0 || offset > ss.Len {
		panic("slice offset out of range")
	}
	return unsafe.Add(ss.Array, offset)
}

// Sub is bytes[offset:offset+length] without bounds elision surprises,
// capacity is clipped to the length.
func (ss *Slice) Sub(offset, length int) []byte {
	if offset < 0 || length < 0 || offset+length > ss.Len {
		panic("slice sub range out of range")
	}
	return unsafe.Slice((*byte)(ss.At(offset)), length)
}

// Aligned reports whether the first byte of the slice is aligned to n,
// which must be a power of two.
func (ss *Slice) Aligned(n uintptr) bool {
	return uintptr(ss.Array)&(n-1) == 0
}
