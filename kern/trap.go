// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"fmt"
	"os"

	"a64unix/aarch64"
)

// userMem adapts the current page table to the emulated CPU's
// memory bus. Unmapped addresses fault; there is no kernel mapping
// visible from user mode.
type userMem struct {
	p *Proc
}

func (m userMem) pgdir() *pagedir { return m.p.cpu.pgdir }

func (m userMem) ReadB(addr uint64) (uint8, error) {
	var b [1]byte
	if !m.pgdir().copyin(b[:], addr) {
		return 0, aarch64.ErrMem
	}
	return b[0], nil
}

func (m userMem) ReadW(addr uint64) (uint32, error) {
	var b [4]byte
	if !m.pgdir().copyin(b[:], addr) {
		return 0, aarch64.ErrMem
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m userMem) ReadX(addr uint64) (uint64, error) {
	var b [8]byte
	if !m.pgdir().copyin(b[:], addr) {
		return 0, aarch64.ErrMem
	}
	v := uint64(0)
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

func (m userMem) WriteB(addr uint64, val uint8) error {
	if !m.pgdir().copyout(addr, []byte{val}) {
		return aarch64.ErrMem
	}
	return nil
}

func (m userMem) WriteW(addr uint64, val uint32) error {
	b := []byte{byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24)}
	if !m.pgdir().copyout(addr, b) {
		return aarch64.ErrMem
	}
	return nil
}

func (m userMem) WriteX(addr uint64, val uint64) error {
	var b [8]byte
	for i := range b {
		b[i] = byte(val >> (8 * i))
	}
	if !m.pgdir().copyout(addr, b[:]) {
		return aarch64.ErrMem
	}
	return nil
}

// usertrapret returns to user mode and runs the process there until
// it dies. Each pass executes at most one timer quantum of user
// instructions, then handles whatever stopped execution: a system
// call, a fault, or quantum expiry (the timer interrupt).
// It never returns.
func (p *Proc) usertrapret() {
	ucpu := &aarch64.CPU{Mem: userMem{p}}
	for {
		copy(ucpu.X[:31], p.tf.X[:])
		ucpu.SP = p.tf.SP
		ucpu.PC = p.tf.ELR

		err := ucpu.Step(QUANTUM)

		copy(p.tf.X[:], ucpu.X[:31])
		p.tf.SP = ucpu.SP
		p.tf.ELR = ucpu.PC

		switch err {
		case nil:
			// Timer interrupt: give up the CPU.
			p.yield()
		case aarch64.ErrSVC:
			p.syscall1(p.tf)
		default:
			if p.kern.Trace {
				fmt.Fprintf(os.Stderr, "[pid %d] user fault %v pc=%#x\n", p.pid, err, ucpu.PC)
			}
			p.setKilled()
		}

		if p.isKilled() {
			p.exit(-1)
		}
	}
}
