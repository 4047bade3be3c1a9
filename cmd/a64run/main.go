// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A64run boots the simulated kernel on the terminal.
//
// Usage:
//
//	a64run [-cpus n] [-trace] [-fs disk.txtar] [-cpuprofile file]
//
// Standard input becomes console input; type ctrl-\ to halt the
// machine.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"runtime/pprof"

	"golang.org/x/term"

	"a64unix/kern"
)

var (
	ncpu       = flag.Int("cpus", 2, "number of simulated cpus")
	trace      = flag.Bool("trace", false, "trace system calls")
	fsfile     = flag.String("fs", "", "boot from txtar disk `file` instead of the embedded one")
	cpuprofile = flag.String("cpuprofile", "", "write cpuprofile to `file`")
)

func main() {
	log.SetPrefix("a64run: ")
	log.SetFlags(0)
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	archive := kern.FS
	if *fsfile != "" {
		data, err := os.ReadFile(*fsfile)
		if err != nil {
			log.Fatal(err)
		}
		archive = data
	}

	k, err := kern.NewKernel(archive, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	k.Trace = *trace

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		log.Fatal(err)
	}
	fixup := func() { term.Restore(int(os.Stdin.Fd()), oldState) }
	defer fixup()

	k.Start(*ncpu)

	buf := make([]byte, 100)
	for {
		n, err := os.Stdin.Read(buf)
		for _, c := range buf[:n] {
			if c == 0x1c { // ctrl-\
				k.Halt()
				pprof.StopCPUProfile()
				fixup()
				os.Exit(0)
			}
		}
		if n > 0 {
			k.Input(buf[:n])
		}
		if err == io.EOF {
			k.Input([]byte{0o004})
		} else if err != nil {
			fixup()
			log.Fatalf("reading stdin: %v", err)
		}
	}
}
