// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aarch64

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// AsmText assembles a multi-line program as it would appear loaded at
// address org. Each line is an instruction in Asm syntax, a "name:"
// label, or one of the directives .asciz, .quad, and .align.
// Labels may be used wherever Asm accepts a constant.
func AsmText(org uint64, text string) ([]byte, error) {
	type line struct {
		num  int
		text string
		addr uint64
	}
	var lines []line
	labels := make(map[string]uint64)

	// First pass: strip comments, record label addresses, compute layout.
	addr := org
	for i, raw := range strings.Split(text, "\n") {
		t := raw
		if j := strings.Index(t, "//"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if name, ok := strings.CutSuffix(t, ":"); ok {
			if _, dup := labels[name]; dup {
				return nil, fmt.Errorf("asm line %d: duplicate label %q", i+1, name)
			}
			labels[name] = addr
			continue
		}
		lines = append(lines, line{i + 1, t, addr})
		switch op, args := parseAsm(t); op {
		case ".asciz":
			s, err := strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(t, ".asciz")))
			if err != nil {
				return nil, fmt.Errorf("asm line %d: %v", i+1, err)
			}
			addr += uint64(len(s)) + 1
		case ".quad":
			addr += 8
		case ".align":
			n := uint64(1) << parseConst(args, 0)
			addr = (addr + n - 1) &^ (n - 1)
		default:
			addr += 4
		}
	}

	// Second pass: emit code with labels resolved.
	resolve := func(arg string) string {
		if v, ok := labels[arg]; ok {
			return strconv.FormatUint(v, 10)
		}
		return arg
	}
	out := make([]byte, 0, addr-org)
	for _, ln := range lines {
		op, args := parseAsm(ln.text)
		switch op {
		case ".asciz":
			s, _ := strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(ln.text, ".asciz")))
			out = append(out, s...)
			out = append(out, 0)
		case ".quad":
			out = binary.LittleEndian.AppendUint64(out, mustConst(resolve(args[0])))
		case ".align":
			n := uint64(1) << parseConst(args, 0)
			for (org+uint64(len(out)))%n != 0 {
				out = append(out, 0)
			}
		default:
			for i, a := range args {
				args[i] = resolve(a)
			}
			code, err := Asm(ln.addr, op+" "+strings.Join(args, ", "))
			if err != nil {
				return nil, fmt.Errorf("asm line %d: %v", ln.num, err)
			}
			out = binary.LittleEndian.AppendUint32(out, code)
		}
	}
	return out, nil
}

func mustConst(arg string) uint64 {
	n, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid constant %q", arg))
	}
	return n
}
