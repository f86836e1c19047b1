package main

import (
	"math/rand"
)

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"
)

import (
	"github.com/timtadh/offheap/config"
	"github.com/timtadh/offheap/converter"
	"github.com/timtadh/offheap/mmlist"
)

func List(logger log.Logger, cfg *config.Config, w Workload, report func() error) error {
	l, err := mmlist.New(cfg, mmlist.WithConverter[[]byte](converter.Bytes{}))
	if err != nil {
		return err
	}
	defer l.Close()

	var eg errgroup.Group
	for i := 0; i < w.Workers; i++ {
		worker := i
		eg.Go(func() error {
			for j := 0; j < w.Ops; j++ {
				if err := l.Append(value(worker, w.ValueSize)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "appended", "size", l.Size(), "region", l.Stats().RegionSize)

	for i := 0; i < w.Workers; i++ {
		eg.Go(func() error {
			size := l.Size()
			for j := 0; j < w.Ops; j++ {
				if _, err := l.Get(rand.Intn(size)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i := 0; i < w.Workers; i++ {
		worker := i
		eg.Go(func() error {
			_, err := l.Remove(value(worker, w.ValueSize))
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "removed", "size", l.Size(), "free", l.Stats().FreeBytes)
	return report()
}

// value is the payload worker writes: size copies of a byte naming it.
func value(worker, size int) []byte {
	v := make([]byte, size)
	for i := range v {
		v[i] = byte(worker)
	}
	return v
}
