// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import "runtime"

// A context stands in for the saved callee-saved registers of a
// suspended kernel thread. Each kernel thread is a goroutine parked
// on its context's channel; swtch is the register save/restore:
// it resumes the target thread and parks the caller.
type context struct {
	ch chan ctl
}

type ctl uint8

const (
	ctlRun  ctl = iota // resume the parked thread
	ctlFree            // the process slot was freed; unwind
)

// newContext returns a context that, when first switched into,
// begins executing entry. This is how a freshly allocated process
// starts life in forkret with its lock held.
func newContext(entry func()) *context {
	ctx := &context{ch: make(chan ctl)}
	go func() {
		if <-ctx.ch == ctlFree {
			return
		}
		entry()
		panic("swtch: context entry returned")
	}()
	return ctx
}

// schedContext returns a context for a scheduler loop. The calling
// goroutine itself parks on it during swtch; no new thread is started.
func schedContext() *context {
	return &context{ch: make(chan ctl)}
}

// swtch saves the current thread in old and resumes new.
// It returns when some other thread switches back into old.
// If the process owning old is freed while parked, the thread
// unwinds instead of returning.
func swtch(old, new *context) {
	new.ch <- ctlRun
	if <-old.ch == ctlFree {
		runtime.Goexit()
	}
}

// free unparks the thread suspended in ctx, telling it to unwind.
// It blocks until that thread receives, so a thread must be parked
// on ctx. Called from freeProc for slots that died suspended.
func (ctx *context) free() {
	ctx.ch <- ctlFree
}
