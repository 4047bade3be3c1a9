// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aarch64

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Asm assembles a single instruction as it would appear at address pc.
func Asm(pc uint64, text string) (code uint32, err error) {
	defer func() {
		if e := recover(); e != nil {
			if _, ok := e.(runtime.Error); ok {
				panic(e)
			}
			err = fmt.Errorf("asm %q: %v", text, e)
		}
	}()

	op, args := parseAsm(text)
	switch op {
	case "nop":
		return instNOP, nil

	case "svc":
		n := parseConst(args, 0)
		if n != n&0xFFFF {
			panic("svc number out of range")
		}
		return instSVC | uint32(n)<<5, nil

	case "movz", "movn", "movk":
		rd := parseReg(args[0])
		imm := parseConst(args, 1)
		var hw uint64
		if len(args) == 3 {
			// The shift "lsl N" has no comma inside it, so it arrives
			// as one field; split it into "lsl" and N.
			args = append(args[:2:2], strings.Fields(args[2])...)
		}
		if len(args) == 4 {
			if args[2] != "lsl" {
				panic("invalid move-wide shift")
			}
			sh := parseConst(args, 3)
			if sh%16 != 0 || sh > 48 {
				panic("invalid move-wide shift")
			}
			hw = sh / 16
		} else if len(args) != 2 {
			panic("invalid argument count")
		}
		if imm != imm&0xFFFF {
			panic("move-wide immediate out of range")
		}
		base := map[string]uint32{"movz": instMOVZ, "movn": instMOVN, "movk": instMOVK}[op]
		return base | uint32(hw)<<21 | uint32(imm)<<5 | uint32(rd), nil

	case "mov":
		// mov xd, xm is an alias for orr xd, xzr, xm;
		// mov xd, imm for movz.
		rd := parseReg(args[0])
		if rm, ok := tryReg(args[1]); ok {
			return instORR | uint32(rm)<<16 | 31<<5 | uint32(rd), nil
		}
		imm := parseConst(args, 1)
		if imm != imm&0xFFFF {
			panic("mov immediate out of range")
		}
		return instMOVZ | uint32(imm)<<5 | uint32(rd), nil

	case "add", "sub":
		rd := parseReg(args[0])
		rn := parseReg(args[1])
		imm := parseConst(args, 2)
		if imm != imm&0xFFF {
			panic("add/sub immediate out of range")
		}
		base := uint32(instADDI)
		if op == "sub" {
			base = instSUBI
		}
		return base | uint32(imm)<<10 | uint32(rn)<<5 | uint32(rd), nil

	case "ldr", "str", "ldrb", "strb":
		rt := parseReg(args[0])
		rn, off := parseMem(args[1:])
		scale := uint64(8)
		base := map[string]uint32{"ldr": instLDR, "str": instSTR, "ldrb": instLDRB, "strb": instSTRB}[op]
		if op == "ldrb" || op == "strb" {
			scale = 1
		}
		if off%scale != 0 || off/scale != off/scale&0xFFF {
			panic("load/store offset out of range")
		}
		return base | uint32(off/scale)<<10 | uint32(rn)<<5 | uint32(rt), nil

	case "adr":
		rd := parseReg(args[0])
		d := int64(parseConst(args, 1)) - int64(pc)
		if d != sext(uint64(d), 21) {
			panic("adr target out of range")
		}
		return instADR | uint32(d&3)<<29 | uint32(d>>2&0x7FFFF)<<5 | uint32(rd), nil

	case "b", "bl":
		d := (int64(parseConst(args, 0)) - int64(pc)) / 4
		if d != sext(uint64(d), 26) {
			panic("branch target out of range")
		}
		base := uint32(instB)
		if op == "bl" {
			base = instBL
		}
		return base | uint32(d)&0x03FFFFFF, nil

	case "cbz", "cbnz":
		rt := parseReg(args[0])
		d := (int64(parseConst(args, 1)) - int64(pc)) / 4
		if d != sext(uint64(d), 19) {
			panic("branch target out of range")
		}
		base := uint32(instCBZ)
		if op == "cbnz" {
			base = instCBNZ
		}
		return base | uint32(d&0x7FFFF)<<5 | uint32(rt), nil

	case "ret":
		rn := RegNum(30)
		if len(args) == 1 {
			rn = parseReg(args[0])
		}
		return instRET | uint32(rn)<<5, nil
	}
	panic("unknown instruction")
}

func parseAsm(text string) (op string, args []string) {
	text = strings.TrimSpace(text)
	op, rest, _ := strings.Cut(text, " ")
	for _, f := range strings.Split(rest, ",") {
		if f = strings.TrimSpace(f); f != "" {
			args = append(args, f)
		}
	}
	return op, args
}

func tryReg(arg string) (RegNum, bool) {
	switch arg {
	case "xzr", "wzr":
		return ZR, true
	case "lr":
		return LR, true
	}
	if len(arg) >= 2 && (arg[0] == 'x' || arg[0] == 'w') {
		n, err := strconv.Atoi(arg[1:])
		if err == nil && 0 <= n && n <= 30 {
			return RegNum(n), true
		}
	}
	return 0, false
}

func parseReg(arg string) RegNum {
	r, ok := tryReg(arg)
	if !ok {
		panic("invalid register")
	}
	return r
}

func parseConst(args []string, i int) uint64 {
	if i >= len(args) {
		panic("missing operand")
	}
	if n, err := strconv.ParseUint(args[i], 0, 64); err == nil {
		return n
	}
	if n, err := strconv.ParseInt(args[i], 0, 64); err == nil {
		return uint64(n)
	}
	panic("invalid constant")
}

// parseMem parses a [xN] or [xN, off] operand, already split on commas.
func parseMem(args []string) (RegNum, uint64) {
	if len(args) == 0 || !strings.HasPrefix(args[0], "[") {
		panic("invalid memory operand")
	}
	if len(args) == 1 {
		arg := strings.TrimSuffix(strings.TrimPrefix(args[0], "["), "]")
		if arg == "sp" {
			return 31, 0
		}
		return parseReg(arg), 0
	}
	base := strings.TrimPrefix(args[0], "[")
	off := strings.TrimSuffix(args[1], "]")
	rn := RegNum(31)
	if base != "sp" {
		rn = parseReg(base)
	}
	return rn, parseConst([]string{off}, 0)
}
