// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"runtime"
	"sync/atomic"
)

// A spinlock is a mutual-exclusion lock held by a CPU, not a process:
// a lock acquired on one CPU may be released from the same CPU by a
// different kernel path, which is exactly what happens across swtch.
//
// On hardware, acquire would also disable interrupts on the holding
// CPU. Here interrupts are modeled by the instruction quantum in
// usertrapret, which never fires while kernel code runs, so the
// off/on bookkeeping survives only as the nesting count that sched
// uses to detect a context switch attempted with extra locks held.
type spinlock struct {
	locked atomic.Bool
	cpu    atomic.Pointer[cpu] // the cpu holding the lock
	name   string              // for debugging
}

func (lk *spinlock) init(name string) {
	lk.name = name
}

func (lk *spinlock) acquire(c *cpu) {
	c.noff++
	if lk.holding(c) {
		panic("acquire " + lk.name)
	}
	for !lk.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
	lk.cpu.Store(c)
}

func (lk *spinlock) release(c *cpu) {
	if !lk.holding(c) {
		panic("release " + lk.name)
	}
	lk.cpu.Store(nil)
	lk.locked.Store(false)
	c.noff--
}

// holding reports whether this CPU holds the lock.
func (lk *spinlock) holding(c *cpu) bool {
	return lk.locked.Load() && lk.cpu.Load() == c
}
