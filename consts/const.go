package consts

type Flag uint8

const (
	KB = 1024
	MB = 1024 * KB
)

// Defaults used when a collection is built without explicit sizes.
const (
	DefaultCapacity   = 100
	DefaultRegionSize = 1 * MB
)

// Chunks in a region are aligned to ALIGN bytes so their headers can be
// overlaid on the mapped memory.
const ALIGN = 8

const (
	VARCHAR_RUN Flag = 1 << iota
	VARCHAR_FREE
)

func AsFlag(bytes []byte) Flag {
	return Flag(bytes[0])
}

// AlignUp rounds n up to the next multiple of ALIGN.
func AlignUp(n uint64) uint64 {
	return (n + ALIGN - 1) &^ (ALIGN - 1)
}
