package config

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

import (
	"github.com/timtadh/offheap/consts"
	"github.com/timtadh/offheap/errors"
)

// Config carries the construction parameters shared by the storage
// engine and the collections built on it.
type Config struct {
	// InitialCapacity is the anticipated record count. It sizes the key
	// index and the position index; it is not a limit.
	InitialCapacity int
	// RegionSize is the initial size in bytes of the backing region. The
	// region grows past it on demand and shrinks back to it on Clear.
	RegionSize int
	// MaxRegionSize caps growth. Zero means unlimited.
	MaxRegionSize int
	// Name labels the metrics of this instance.
	Name string

	Logger     log.Logger
	Registerer prometheus.Registerer
}

func New(capacity, regionSize int) *Config {
	return &Config{
		InitialCapacity: capacity,
		RegionSize:      regionSize,
		Logger:          log.NewNopLogger(),
	}
}

// Default is 100 records in a 1MB region.
func Default() *Config {
	return New(consts.DefaultCapacity, consts.DefaultRegionSize)
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Constructionf("nil config")
	}
	if c.InitialCapacity < 1 {
		return errors.Constructionf("initial capacity must be >= 1, got %d", c.InitialCapacity)
	}
	if c.RegionSize < 1 {
		return errors.Constructionf("region size must be >= 1, got %d", c.RegionSize)
	}
	if c.MaxRegionSize < 0 {
		return errors.Constructionf("max region size must be >= 0, got %d", c.MaxRegionSize)
	}
	if c.MaxRegionSize > 0 && c.MaxRegionSize < c.RegionSize {
		return errors.Constructionf("max region size %d is smaller than the region size %d", c.MaxRegionSize, c.RegionSize)
	}
	return nil
}

// GetLogger never returns nil.
func (c *Config) GetLogger() log.Logger {
	if c.Logger == nil {
		return log.NewNopLogger()
	}
	return c.Logger
}
