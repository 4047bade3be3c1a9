// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A64disk converts between a directory tree and the txtar disk
// format used by the kern package and related commands.
//
// Usage:
//
//	a64disk [-o out.txtar] [-x] dir
//
// The -o flag specifies the name of the output file to write
// (default standard output).
//
// The -x flag inverts the operation: dir is now a txtar disk, and
// -o is the name of a directory to write the files into
// (default _fs).
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/txtar"
)

var (
	outfile = flag.String("o", "", "write output txtar to `file` (default standard output)")
	xflag   = flag.Bool("x", false, "extract txtar disk")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: a64disk [-o out.txtar] [-x] dir\n")
	os.Exit(2)
}

func main() {
	log.SetPrefix("a64disk: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
	}

	if *xflag {
		extract(flag.Arg(0))
		return
	}
	pack(flag.Arg(0))
}

func pack(dir string) {
	ar := &txtar.Archive{
		Comment: []byte("Root filesystem packed from " + dir + ".\n"),
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		ar.Files = append(ar.Files, txtar.File{
			Name: filepath.ToSlash(rel),
			Data: data,
		})
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	out := txtar.Format(ar)
	if *outfile == "" {
		os.Stdout.Write(out)
		return
	}
	if err := os.WriteFile(*outfile, out, 0o666); err != nil {
		log.Fatal(err)
	}
}

func extract(file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatal(err)
	}
	dir := *outfile
	if dir == "" {
		dir = "_fs"
	}
	for _, f := range txtar.Parse(data).Files {
		name, _, _ := strings.Cut(f.Name, " ") // drop type=/major=/minor= attrs
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(dst, f.Data, 0o666); err != nil {
			log.Fatal(err)
		}
	}
}
