package main

import (
	"fmt"
)

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"
)

import (
	"github.com/timtadh/offheap/config"
	"github.com/timtadh/offheap/mmmap"
)

type record struct {
	Worker int
	Op     int
	Data   []byte
}

func Map(logger log.Logger, cfg *config.Config, w Workload, report func() error) error {
	m, err := mmmap.New[string, *record](cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	key := func(worker, op int) string {
		return fmt.Sprintf("%d/%d", worker, op)
	}

	var eg errgroup.Group
	for i := 0; i < w.Workers; i++ {
		worker := i
		eg.Go(func() error {
			for j := 0; j < w.Ops; j++ {
				r := &record{Worker: worker, Op: j, Data: value(worker, w.ValueSize)}
				if err := m.Put(key(worker, j), r); err != nil {
					return err
				}
			}
			for j := 0; j < w.Ops; j++ {
				r, has, err := m.Get(key(worker, j))
				if err != nil {
					return err
				}
				if !has || r.Worker != worker || r.Op != j {
					return fmt.Errorf("read back the wrong record for %v", key(worker, j))
				}
			}
			for j := 0; j < w.Ops; j += 2 {
				if _, _, err := m.Remove(key(worker, j)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "populated", "size", m.Size(), "region", m.Stats().RegionSize)
	if err := m.Clear(); err != nil {
		return err
	}
	return report()
}
