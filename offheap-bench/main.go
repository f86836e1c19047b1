package main

/* Tim Henderson (tadh@case.edu)
*
* Copyright (c) 2015, Tim Henderson, Case Western Reserve University
* Cleveland, Ohio 44106. All Rights Reserved.
*
* This library is free software; you can redistribute it and/or modify
* it under the terms of the GNU General Public License as published by
* the Free Software Foundation; either version 3 of the License, or (at
* your option) any later version.
*
* This library is distributed in the hope that it will be useful, but
* WITHOUT ANY WARRANTY; without even the implied warranty of
* MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
* General Public License for more details.
*
* You should have received a copy of the GNU General Public License
* along with this library; if not, write to the Free Software
* Foundation, Inc.,
*   51 Franklin Street, Fifth Floor,
*   Boston, MA  02110-1301
*   USA
 */

import (
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"time"
)

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/timtadh/getopt"
)

import (
	"github.com/timtadh/offheap/config"
)

var ErrorCodes map[string]int = map[string]int{
	"usage":   0,
	"version": 2,
	"opts":    3,
	"badint":  5,
	"badfile": 7,
	"run":     8,
}

var UsageMessage string = "offheap-bench --help"
var ExtendedMessage string = `
offheap-bench -- drive an off heap collection with concurrent workers and
                 print the storage metrics it produced

There is a subcommand for each collection.

Global Options
  -h, --help                view this message
  --collections             list the collections which can be driven
  -o, --metrics=<path>      where to write the metrics (default stdout)
  -v, --verbose             log region growth and other debug events
  -w, --workers=<int>       number of concurrent workers (default 4)
  -n, --ops=<int>           operations per worker (default 10000)
  --capacity=<int>          initial record capacity (default 100)
  --region-size=<int>       initial region size in bytes (default 1MB)
  --max-region-size=<int>   refuse to grow past this many bytes (default
                            unbounded)
  --value-size=<int>        bytes per value (default 64)

list

  $ offheap-bench -w 8 -n 100000 list

  Every worker appends its values, then reads back random positions,
  then removes every value it wrote.

map

  $ offheap-bench -w 8 -n 100000 map

  Every worker puts its own keys, reads them back and removes half of
  them, then the whole map is cleared.
`

func Usage(code int) {
	fmt.Fprintln(os.Stderr, UsageMessage)
	if code == 0 {
		fmt.Fprintln(os.Stdout, ExtendedMessage)
		code = ErrorCodes["usage"]
	} else {
		fmt.Fprintln(os.Stderr, "Try -h or --help for help")
	}
	os.Exit(code)
}

func ParseInt(str string) int {
	i, err := strconv.Atoi(str)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing '%v' expected an int\n", str)
		Usage(ErrorCodes["badint"])
	}
	return i
}

func AssertFile(fname string) string {
	fname = path.Clean(fname)
	fi, err := os.Stat(fname)
	if err != nil && os.IsNotExist(err) {
		return fname
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		Usage(ErrorCodes["badfile"])
	} else if fi.IsDir() {
		fmt.Fprintf(os.Stderr, "Passed in file was a directory, %s\n", fname)
		Usage(ErrorCodes["badfile"])
	}
	return fname
}

// Workload is the shape of a benchmark run.
type Workload struct {
	Workers   int
	Ops       int
	ValueSize int
}

// a bench calls report once the workload is done, before it closes the
// collection and its metrics go away.
type bench func(logger log.Logger, cfg *config.Config, w Workload, report func() error) error

func main() {
	args, optargs, err := getopt.GetOpt(
		os.Args[1:],
		"ho:vw:n:",
		[]string{
			"help", "collections", "metrics=", "verbose", "workers=", "ops=",
			"capacity=", "region-size=", "max-region-size=", "value-size=",
		},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		Usage(ErrorCodes["opts"])
	}

	benches := map[string]bench{
		"list": List,
		"map":  Map,
	}

	cfg := config.Default()
	w := Workload{Workers: 4, Ops: 10000, ValueSize: 64}
	metricsPath := ""
	verbose := false
	for _, oa := range optargs {
		switch oa.Opt() {
		case "-h", "--help":
			Usage(0)
		case "-o", "--metrics":
			metricsPath = AssertFile(oa.Arg())
		case "-v", "--verbose":
			verbose = true
		case "-w", "--workers":
			w.Workers = ParseInt(oa.Arg())
		case "-n", "--ops":
			w.Ops = ParseInt(oa.Arg())
		case "--capacity":
			cfg.InitialCapacity = ParseInt(oa.Arg())
		case "--region-size":
			cfg.RegionSize = ParseInt(oa.Arg())
		case "--max-region-size":
			cfg.MaxRegionSize = ParseInt(oa.Arg())
		case "--value-size":
			w.ValueSize = ParseInt(oa.Arg())
		case "--collections":
			fmt.Fprintf(os.Stderr, "Collections\n")
			for name := range benches {
				fmt.Fprintf(os.Stderr, "  %v\n", name)
			}
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown flag '%v'\n", oa.Opt())
			Usage(ErrorCodes["opts"])
		}
	}

	if len(args) <= 0 {
		fmt.Fprintln(os.Stderr, "Must supply a collection name, try --help")
		Usage(ErrorCodes["opts"])
	}

	run, has := benches[args[0]]
	if !has {
		fmt.Fprintf(os.Stderr, "Collection '%v' not supported. Try --collections to see them.\n", args[0])
		Usage(ErrorCodes["opts"])
	}

	if w.Workers < 1 || w.Ops < 1 || w.ValueSize < 0 {
		fmt.Fprintln(os.Stderr, "workers and ops must be positive and value-size not negative")
		Usage(ErrorCodes["opts"])
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	reg := prometheus.NewRegistry()
	cfg.Name = args[0]
	cfg.Logger = logger
	cfg.Registerer = reg

	var fout io.WriteCloser
	if metricsPath == "" {
		fout = os.Stdout
	} else {
		fout, err = os.Create(metricsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			Usage(ErrorCodes["badfile"])
		}
	}
	defer fout.Close()

	start := time.Now()
	report := func() error {
		level.Info(logger).Log(
			"msg", "benchmark done", "collection", args[0],
			"workers", w.Workers, "ops", w.Workers*w.Ops, "elapsed", time.Since(start))
		return WriteMetrics(fout, reg)
	}
	if err := run(logger, cfg, w, report); err != nil {
		level.Error(logger).Log("msg", "benchmark failed", "collection", args[0], "err", err)
		fout.Close()
		os.Exit(ErrorCodes["run"])
	}
}

// WriteMetrics writes everything gathered from g in the Prometheus text
// exposition format.
func WriteMetrics(out io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(out, expfmt.FmtText)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
