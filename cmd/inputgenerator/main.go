// SPDX-License-Identifier: Apache-2.0

// Command inputgenerator writes a stream of random test data to stdout, in
// whichever of three wire formats cmd/measure's readUint64s, readStrings and
// readJrs expect: raw
// big-endian uint64s, raw alphanumeric string bytes, or big-endian
// (j,r) uint32 pairs.
//
// Usage:
//
//	inputgenerator [-m M] [--len L] <n> <dt> <seed>
//
// dt is one of "uint64", "str", "jr". -m is required (and only valid) for
// dt=jr; --len is required (and only valid) for dt=str.
package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
)

const alphanumerics = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func main() {
	m := flag.Uint("m", 0, "number of registers (required, and only valid, for datatype jr)")
	length := flag.Uint("len", 0, "length of strings to create (required, and only valid, for datatype str)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-m M] [--len L] <n> <dt> <seed>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 3 {
		flag.Usage()
		os.Exit(1)
	}
	var n uint64
	if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil {
		log.Fatalf("invalid n %q: %v", args[0], err)
	}
	dt := args[1]
	var seed uint32
	if _, err := fmt.Sscanf(args[2], "%d", &seed); err != nil {
		log.Fatalf("invalid seed %q: %v", args[2], err)
	}

	mSet := isFlagSet("m")
	lenSet := isFlagSet("len")

	switch dt {
	case "uint64", "str", "jr":
	default:
		log.Fatalf("unknown datatype %q: must be one of uint64, str, jr", dt)
	}
	if mSet && dt != "jr" {
		log.Fatalf("-m can be used only in conjunction with datatype jr")
	}
	if !mSet && dt == "jr" {
		log.Fatalf("datatype jr requires -m")
	}
	if lenSet && dt != "str" {
		log.Fatalf("--len can be used only in conjunction with datatype str")
	}
	if !lenSet && dt == "str" {
		log.Fatalf("datatype str requires --len")
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	switch dt {
	case "uint64":
		generateUint64(w, rng, n)
	case "str":
		generateStr(w, rng, n, *length)
	case "jr":
		generateJr(w, rng, n, *m)
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

func generateUint64(w *bufio.Writer, rng *rand.Rand, n uint64) {
	buf := make([]byte, 8)
	for i := uint64(0); i < n; i++ {
		binary.BigEndian.PutUint64(buf, rng.Uint64())
		if _, err := w.Write(buf); err != nil {
			log.Fatalf("write: %v", err)
		}
	}
}

func generateStr(w *bufio.Writer, rng *rand.Rand, n uint64, length uint) {
	buf := make([]byte, length)
	for i := uint64(0); i < n; i++ {
		for j := range buf {
			buf[j] = alphanumerics[rng.Intn(len(alphanumerics))]
		}
		if _, err := w.Write(buf); err != nil {
			log.Fatalf("write: %v", err)
		}
	}
}

func generateJr(w *bufio.Writer, rng *rand.Rand, n uint64, m uint) {
	buf := make([]byte, 8)
	for i := uint64(0); i < n; i++ {
		j := uint32(rng.Intn(int(m)))
		u := rng.Float64()
		r := uint32(math.Ceil(-math.Log2(1 - u)))
		binary.BigEndian.PutUint32(buf[0:4], j)
		binary.BigEndian.PutUint32(buf[4:8], r)
		if _, err := w.Write(buf); err != nil {
			log.Fatalf("write: %v", err)
		}
	}
}
