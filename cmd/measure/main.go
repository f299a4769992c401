// SPDX-License-Identifier: Apache-2.0

// Command measure times inserting (mode "query") or merging (mode "merge")
// a stream of values read from stdin into one of four sketch kinds, and
// prints a five-line report to stdout.
//
// Usage:
//
//	measure [--flags F] [--len L] [-cache addr] <mode> <algo> <datatype> <m> <n>
//
// mode is "query" or "merge". algo is one of "hyperloglog",
// "hyperloglogzstd", "hyperlogloglog", "hashonly". datatype is one of
// "uint64", "str", "jr". --flags is only valid (and meaningful) with algo
// hyperlogloglog; --len is only valid with datatype str; hashonly does not
// support mode merge or datatype jr.
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mkarppa/hyperlogloglog/hyperloglog"
	"github.com/mkarppa/hyperlogloglog/hyperlogloglog"
	"github.com/mkarppa/hyperlogloglog/hyperlogzstd"
	"github.com/mkarppa/hyperlogloglog/resultcache"
	"github.com/mkarppa/hyperlogloglog/xhash"
)

type jrPair struct {
	j, r uint64
}

// hasher reproduces the "hashonly" measurement algorithm: it runs the
// exact hash-and-mix chain every other algorithm uses, discarding the
// result, so a benchmark can isolate hashing cost from sketch bookkeeping.
type hasher struct {
	logM uint
	last uint64
}

func newHasher(m uint) *hasher {
	return &hasher{logM: log2(m)}
}

func (h *hasher) Add(item any) error {
	switch v := item.(type) {
	case string:
		h.last = xhash.Jhash(xhash.Xhash(v), h.logM)
	case uint64:
		h.last = xhash.Jhash(xhash.Xhash(v), h.logM)
	default:
		return fmt.Errorf("hasher: unsupported item type %T", item)
	}
	return nil
}

func (h *hasher) AddJr(uint64, uint64) {
	panic("hasher: addJr is an unsupported operation")
}

func log2(m uint) uint {
	l := uint(0)
	for (uint(1) << l) < m {
		l++
	}
	return l
}

func main() {
	flagsName := flag.String("flags", "default", "compression flags (hyperlogloglog only): default, appendonly, increaseonly, appendincreaseonly, bottom")
	length := flag.Uint("len", 0, "length of strings to read (datatype str only)")
	cacheAddr := flag.String("cache", "", "optional redis address to memoize reports")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [--flags F] [--len L] [-cache addr] <mode> <algo> <datatype> <m> <n>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 5 {
		flag.Usage()
		os.Exit(1)
	}
	mode, algo, dt := args[0], args[1], args[2]
	m, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		log.Fatalf("invalid m %q: %v", args[3], err)
	}
	n, err := strconv.ParseUint(args[4], 10, 64)
	if err != nil {
		log.Fatalf("invalid n %q: %v", args[4], err)
	}

	switch mode {
	case "query", "merge":
	default:
		log.Fatalf("unknown mode %q: must be query or merge", mode)
	}
	switch algo {
	case "hyperloglog", "hyperloglogzstd", "hyperlogloglog", "hashonly":
	default:
		log.Fatalf("unknown algorithm %q", algo)
	}
	switch dt {
	case "uint64", "str", "jr":
	default:
		log.Fatalf("unknown datatype %q", dt)
	}

	if mode == "merge" && algo == "hashonly" {
		log.Fatalf("hashonly does not support merging")
	}
	if algo == "hashonly" && dt == "jr" {
		log.Fatalf("hashonly does not support jr datatype")
	}
	if m == 0 || m&(m-1) != 0 {
		log.Fatalf("m must be a power of two")
	}
	flagsSet := isFlagSet("flags")
	if flagsSet && algo != "hyperlogloglog" {
		log.Fatalf("flags are only supported for hyperlogloglog")
	}
	lenSet := isFlagSet("len")
	if dt == "str" && !lenSet {
		log.Fatalf("len must be set if datatype is string")
	}
	if dt != "str" && lenSet {
		log.Fatalf("len must not be set if datatype is not string")
	}

	flags, err := parseFlagsName(*flagsName)
	if err != nil {
		log.Fatal(err)
	}

	var cache *resultcache.Cache
	var cacheKey resultcache.Key
	if *cacheAddr != "" {
		cache = resultcache.New(*cacheAddr)
		defer cache.Close()
		cacheKey = resultcache.Key{
			Mode: mode, Algo: algo, DataType: dt,
			M: uint(m), N: n, Flags: *flagsName, Len: *length,
		}
		if report, err := cache.Get(context.Background(), cacheKey); err == nil {
			fmt.Print(report)
			return
		}
	}

	var out strings.Builder
	runMeasurement(&out, mode, algo, dt, uint(m), n, uint(*length), flags)
	fmt.Print(out.String())

	if cache != nil {
		if err := cache.Set(context.Background(), cacheKey, out.String()); err != nil {
			log.Printf("resultcache: failed to store report: %v", err)
		}
	}
}

func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func parseFlagsName(name string) (hyperlogloglog.Flags, error) {
	switch name {
	case "default":
		return hyperlogloglog.CompressDefault, nil
	case "appendonly":
		return hyperlogloglog.CompressWhenAppend, nil
	case "increaseonly":
		return hyperlogloglog.CompressTypeIncrease, nil
	case "appendincreaseonly":
		return hyperlogloglog.CompressWhenAppend | hyperlogloglog.CompressTypeIncrease, nil
	case "bottom":
		return hyperlogloglog.CompressBottom, nil
	default:
		return 0, fmt.Errorf("unknown flags value %q", name)
	}
}

func report(w io.Writer, seconds, estimate float64, bitsize uint, compressCount, rebaseCount int) {
	fmt.Fprintf(w, "time %g\n", seconds)
	fmt.Fprintf(w, "estimate %f\n", estimate)
	fmt.Fprintf(w, "bitsize %d\n", bitsize)
	fmt.Fprintf(w, "compressCount %d\n", compressCount)
	fmt.Fprintf(w, "rebaseCount %d\n", rebaseCount)
}

func readUint64s(r io.Reader, n uint64) []uint64 {
	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		log.Fatalf("reading uint64 data: %v", err)
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(buf[i*8:])
	}
	return out
}

func readStrings(r io.Reader, n uint64, length uint) []string {
	buf := make([]byte, uint64(length)*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		log.Fatalf("reading str data: %v", err)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = string(buf[uint64(i)*uint64(length) : uint64(i+1)*uint64(length)])
	}
	return out
}

func readJrs(r io.Reader, n uint64) []jrPair {
	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		log.Fatalf("reading jr data: %v", err)
	}
	out := make([]jrPair, n)
	for i := range out {
		out[i].j = uint64(binary.BigEndian.Uint32(buf[i*8:]))
		out[i].r = uint64(binary.BigEndian.Uint32(buf[i*8+4:]))
	}
	return out
}

func runMeasurement(w io.Writer, mode, algo, dt string, m uint, n uint64, length uint, flags hyperlogloglog.Flags) {
	stdin := bufio.NewReader(os.Stdin)

	switch algo {
	case "hyperloglog":
		construct := func() (*hyperloglog.HyperLogLog, error) { return hyperloglog.New(m) }
		runHyperLogLogLike(w, mode, dt, stdin, n, length, construct,
			func(h *hyperloglog.HyperLogLog, item any) { h.Add(item) },
			func(h *hyperloglog.HyperLogLog, j, r uint64) { h.AddJr(j, r) },
			func(a, b *hyperloglog.HyperLogLog) (*hyperloglog.HyperLogLog, error) { return a.Merge(b) },
			func(h *hyperloglog.HyperLogLog) float64 { return h.Estimate() },
			func(h *hyperloglog.HyperLogLog) uint { return h.BitSize() },
			func(h *hyperloglog.HyperLogLog) (int, int) { return 0, 0 },
		)
	case "hyperloglogzstd":
		construct := func() (*hyperlogzstd.HyperLogLogZstd, error) { return hyperlogzstd.New(m) }
		runHyperLogLogLike(w, mode, dt, stdin, n, length, construct,
			func(h *hyperlogzstd.HyperLogLogZstd, item any) { h.Add(item) },
			func(h *hyperlogzstd.HyperLogLogZstd, j, r uint64) { h.AddJr(j, r) },
			func(a, b *hyperlogzstd.HyperLogLogZstd) (*hyperlogzstd.HyperLogLogZstd, error) { return a.Merge(b) },
			func(h *hyperlogzstd.HyperLogLogZstd) float64 { return h.Estimate() },
			func(h *hyperlogzstd.HyperLogLogZstd) uint { return h.BitSize() },
			func(h *hyperlogzstd.HyperLogLogZstd) (int, int) { return 0, 0 },
		)
	case "hyperlogloglog":
		construct := func() (*hyperlogloglog.HyperLogLogLog, error) {
			return hyperlogloglog.New(m, hyperlogloglog.DefaultMBits, flags)
		}
		runHyperLogLogLike(w, mode, dt, stdin, n, length, construct,
			func(h *hyperlogloglog.HyperLogLogLog, item any) { h.Add(item) },
			func(h *hyperlogloglog.HyperLogLogLog, j, r uint64) { h.AddJr(j, r) },
			func(a, b *hyperlogloglog.HyperLogLogLog) (*hyperlogloglog.HyperLogLogLog, error) { return a.Merge(b) },
			func(h *hyperlogloglog.HyperLogLogLog) float64 { return h.Estimate() },
			func(h *hyperlogloglog.HyperLogLogLog) uint { return h.BitSize() },
			func(h *hyperlogloglog.HyperLogLogLog) (int, int) { return h.GetCompressCount(), h.GetRebaseCount() },
		)
	case "hashonly":
		runHashOnly(w, dt, stdin, n, length, m)
	}
}

// runHyperLogLogLike drives the query or merge timing loop for any of the
// three estimator types, which all share the same Add/AddJr/Merge/Estimate/
// BitSize shape but are otherwise unrelated Go types.
func runHyperLogLogLike[S any](
	w io.Writer, mode, dt string, stdin io.Reader, n uint64, length uint,
	construct func() (*S, error),
	add func(*S, any),
	addJr func(*S, uint64, uint64),
	merge func(*S, *S) (*S, error),
	estimate func(*S) float64,
	bitsize func(*S) uint,
	counts func(*S) (int, int),
) {
	switch mode {
	case "query":
		h, err := construct()
		if err != nil {
			log.Fatalf("construct: %v", err)
		}
		start := time.Now()
		feedN(dt, stdin, n, length, func(item any) { add(h, item) }, func(j, r uint64) { addJr(h, j, r) })
		seconds := time.Since(start).Seconds()
		cc, rc := counts(h)
		report(w, seconds, estimate(h), bitsize(h), cc, rc)
	case "merge":
		h1, err := construct()
		if err != nil {
			log.Fatalf("construct: %v", err)
		}
		h2, err := construct()
		if err != nil {
			log.Fatalf("construct: %v", err)
		}
		n1 := n / 2
		feedN(dt, stdin, n1, length, func(item any) { add(h1, item) }, func(j, r uint64) { addJr(h1, j, r) })
		feedN(dt, stdin, n-n1, length, func(item any) { add(h2, item) }, func(j, r uint64) { addJr(h2, j, r) })
		start := time.Now()
		merged, err := merge(h1, h2)
		if err != nil {
			log.Fatalf("merge: %v", err)
		}
		seconds := time.Since(start).Seconds()
		cc, rc := counts(merged)
		report(w, seconds, estimate(merged), bitsize(merged), cc, rc)
	}
}

func feedN(dt string, r io.Reader, n uint64, length uint, add func(any), addJr func(j, r uint64)) {
	switch dt {
	case "uint64":
		for _, x := range readUint64s(r, n) {
			add(x)
		}
	case "str":
		for _, s := range readStrings(r, n, length) {
			add(s)
		}
	case "jr":
		for _, p := range readJrs(r, n) {
			addJr(p.j, p.r)
		}
	}
}

func runHashOnly(w io.Writer, dt string, stdin io.Reader, n uint64, length, m uint) {
	h := newHasher(m)
	start := time.Now()
	switch dt {
	case "uint64":
		for _, x := range readUint64s(stdin, n) {
			h.Add(x)
		}
	case "str":
		for _, s := range readStrings(stdin, n, length) {
			h.Add(s)
		}
	}
	seconds := time.Since(start).Seconds()
	report(w, seconds, 0, 0, 0, 0)
}
