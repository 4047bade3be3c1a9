// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

/*
 * Per-CPU process scheduler.
 * Each CPU runs scheduler() after setting itself up.
 * The loop never returns (until the machine halts). It:
 *  - chooses a RUNNABLE process
 *  - swtches into it
 *  - eventually that process transfers control back via swtch
 */
func scheduler(c *cpu) {
	k := c.kern
	c.proc = nil

	for !k.halted.Load() {
		for i := range k.procs {
			p := &k.procs[i]
			p.lock.acquire(c)
			if p.state != RUNNABLE {
				p.lock.release(c)
				continue
			}

			// Switch to chosen process. It is the process's job to
			// release its lock and then reacquire it before jumping
			// back to us.
			c.proc = p
			p.cpu = c
			p.uvmSwitch()
			p.state = RUNNING

			swtch(c.scheduler, p.context)

			// Process is done running for now. It should have
			// changed its state before coming back.
			c.proc = nil
			p.lock.release(c)
		}
		idle()
	}
}

// sched enters the scheduler. The caller must hold exactly p.lock
// and must have changed p.state.
func (p *Proc) sched() {
	c := p.cpu
	if !p.lock.holding(c) {
		panic("sched: process not locked")
	}
	if c.noff != 1 {
		panic("sched: locks held")
	}
	if p.state == RUNNING {
		panic("sched: process running")
	}
	swtch(p.context, c.scheduler)
}

// yield gives up the CPU for one scheduling round.
func (p *Proc) yield() {
	p.lock.acquire(p.cpu)
	p.state = RUNNABLE
	p.sched()
	p.lock.release(p.cpu)
}

// forkret is the first thing a new process runs, scheduled for the
// first time via a swtch into the context that allocProc built.
func (p *Proc) forkret() {
	// Still holding p.lock from scheduler.
	p.lock.release(p.cpu)

	// Some initialization must run in the context of a regular
	// process (it may sleep), and so cannot run during boot.
	p.kern.fsinit.Do(func() {
		p.iinit(ROOTDEV)
		p.initlog(ROOTDEV)
	})

	p.usertrapret()
}

// sleep atomically releases lk and suspends the process on wchan,
// then reacquires lk when awakened. Callers must re-check their
// condition: another process may run between wakeup and here.
func (p *Proc) sleep(wchan any, lk *spinlock) {
	// Must acquire p.lock in order to change p.state and then call
	// sched. Once we hold p.lock we are guaranteed not to miss any
	// wakeup (wakeup locks p.lock), so it is safe to release lk.
	p.lock.acquire(p.cpu)
	lk.release(p.cpu)

	// Go to sleep.
	p.wchan = wchan
	p.state = SLEEPING
	p.sched()

	// Tidy up. The process may have been rescheduled onto a
	// different CPU, so p.cpu is reloaded after sched.
	p.wchan = nil

	// Reacquire original lock.
	p.lock.release(p.cpu)
	lk.acquire(p.cpu)
}

// wakeup wakes all processes sleeping on wchan, except the caller.
// Must be called without any p.lock.
func (p *Proc) wakeup(wchan any) {
	p.kern.wakeupAll(p.cpu, p, wchan)
}

func (k *Kernel) wakeupAll(c *cpu, self *Proc, wchan any) {
	for i := range k.procs {
		p := &k.procs[i]
		if p == self {
			continue
		}
		p.lock.acquire(c)
		if p.state == SLEEPING && p.wchan == wchan {
			p.state = RUNNABLE
		}
		p.lock.release(c)
	}
}
