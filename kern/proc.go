// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"fmt"
	"os"
)

// A Proc is one slot in the fixed process table.
type Proc struct {
	lock spinlock

	// lock must be held when using these:
	state  procstate
	wchan  any  // sleep channel, identity only, never dereferenced
	killed bool // has been told to die
	xstate int  // exit status, valid in ZOMBIE

	// waitLock must be held when using this:
	parent *Proc

	// private to the process while it runs:
	kern    *Kernel
	cpu     *cpu          // cpu currently running this process
	pid     int           // 0 means the slot is free
	kstack  *page         // kernel stack page
	sz      uint64        // user memory is [0, sz)
	pgdir   *pagedir      // user page table
	tf      *trapframe    // user registers, saved at the top of kstack
	context *context      // kernel thread, suspended between runs
	ofile   [NOFILE]*file // open files
	cwd     *inode        // current directory
	name    string        // debugging
	Error   Errno         // last file-system error, for tracing
}

// A trapframe is the user-mode register snapshot taken at kernel entry.
type trapframe struct {
	X    [31]uint64 // x0..x30
	SP   uint64     // sp_el0
	SPSR uint64     // spsr_el1
	ELR  uint64     // elr_el1; user pc
}

type procstate int32

const (
	UNUSED procstate = iota
	EMBRYO
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

func (s procstate) String() string {
	switch s {
	case UNUSED:
		return "unused"
	case EMBRYO:
		return "embryo"
	case SLEEPING:
		return "sleeping"
	case RUNNABLE:
		return "runnable"
	case RUNNING:
		return "running"
	case ZOMBIE:
		return "zombie"
	}
	return fmt.Sprintf("procstate(%d)", int32(s))
}

// A cpu is the per-CPU state: the process it is running, if any, and
// the scheduler context that is the other end of every swtch on this
// CPU.
type cpu struct {
	id        int
	kern      *Kernel
	proc      *Proc    // process running on this cpu, or nil
	scheduler *context // swtch here to enter the scheduler loop
	pgdir     *pagedir // active user page table (TTBR0)
	noff      int      // depth of spinlock nesting
}

// procInit readies the process table for use.
func (k *Kernel) procInit() {
	k.waitLock.init("wait_lock")
	k.pidLock.init("pid_lock")
	k.nextPID = 1
	for i := range k.procs {
		k.procs[i].lock.init("proc_lock")
		k.procs[i].kern = k
	}
}

func (k *Kernel) pidNext(c *cpu) int {
	k.pidLock.acquire(c)
	pid := k.nextPID
	k.nextPID++
	k.pidLock.release(c)
	return pid
}

// freeProc returns a slot and everything hanging off it to the free
// pool. p.lock must be held.
func (k *Kernel) freeProc(c *cpu, p *Proc) {
	if p.context != nil {
		p.context.free()
		p.context = nil
	}
	p.wchan = nil
	p.killed = false
	p.xstate = 0
	p.pid = 0
	p.parent = nil
	if p.kstack != nil {
		k.kfree(c, p.kstack)
		p.kstack = nil
	}
	p.sz = 0
	if p.pgdir != nil {
		k.vmFree(c, p.pgdir, 4)
		p.pgdir = nil
	}
	p.tf = nil
	for i := range p.ofile {
		p.ofile[i] = nil
	}
	p.cwd = nil
	p.name = ""
	p.state = UNUSED
}

// allocProc looks through the process table for an UNUSED slot.
// If found, it changes the state to EMBRYO, initializes what a
// process needs to run in the kernel, and returns with the slot's
// lock held. Otherwise it returns nil.
func (k *Kernel) allocProc(c *cpu) *Proc {
	for i := range k.procs {
		p := &k.procs[i]
		p.lock.acquire(c)
		if p.state != UNUSED {
			p.lock.release(c)
			continue
		}

		p.pid = k.pidNext(c)

		// Allocate kernel stack.
		if p.kstack = k.kalloc(c); p.kstack == nil {
			k.freeProc(c, p)
			p.lock.release(c)
			return nil
		}

		// The trapframe lives at the top of the kernel stack; below
		// it, the initial context, set up so that the first swtch
		// into this slot begins executing forkret.
		p.tf = &trapframe{}
		p.context = newContext(p.forkret)

		p.state = EMBRYO
		return p
	}
	return nil
}

// userInit sets up the first user process (used once, during boot).
// The trapframe is arranged so that the first return to user mode
// runs the embedded bootstrap at address zero.
func (k *Kernel) userInit() {
	c := &k.cpus[0]
	p := k.allocProc(c)
	if p == nil {
		panic("userInit: process failed to allocate")
	}
	k.initProc = p
	p.cpu = c // boot identity until first scheduled

	if p.pgdir = k.pgdirInit(c); p.pgdir == nil {
		panic("userInit: page table failed to allocate")
	}
	p.sz = PGSIZE
	k.uvmInit(c, p.pgdir, k.initcode)

	p.tf.X[30] = 0   // initcode start address
	p.tf.SP = PGSIZE // user stack pointer
	p.tf.SPSR = 0    // program status register
	p.tf.ELR = 0     // exception link register

	p.name = "initproc"
	p.cwd = p.namei("/")
	p.state = RUNNABLE
	p.lock.release(c)
}

// growproc grows (or shrinks) the current process's memory by n
// bytes. Returns 0 on success, -1 on failure.
func (p *Proc) growproc(n int) int {
	k := p.kern
	c := p.cpu
	sz := p.sz
	if n > 0 {
		if sz = k.uvmAlloc(c, p.pgdir, sz, sz+uint64(n)); sz == 0 {
			return -1
		}
	} else if n < 0 {
		if sz = k.uvmDealloc(c, p.pgdir, sz, sz-uint64(-n)); sz == 0 {
			return -1
		}
	}
	p.sz = sz
	p.uvmSwitch()
	return 0
}

// fork creates a new process copying p as the parent.
// Returns the child's pid, or -1 on failure.
func (p *Proc) fork() int {
	k := p.kern
	c := p.cpu

	np := k.allocProc(c)
	if np == nil {
		return -1
	}

	// Copy user memory from parent to child.
	if np.pgdir = k.pgdirInit(c); np.pgdir == nil || k.uvmCopy(c, p.pgdir, np.pgdir, p.sz) < 0 {
		k.freeProc(c, np)
		np.lock.release(c)
		return -1
	}
	np.sz = p.sz

	// Copy saved user registers.
	*np.tf = *p.tf

	// Cause fork to return 0 in the child.
	np.tf.X[0] = 0

	// Increment reference counts on open file descriptors.
	for i, f := range p.ofile {
		if f != nil {
			np.ofile[i] = p.fileDup(f)
		}
	}
	np.cwd = p.idup(p.cwd)

	np.name = p.name
	pid := np.pid

	np.lock.release(c)

	k.waitLock.acquire(c)
	np.parent = p
	k.waitLock.release(c)

	np.lock.acquire(c)
	np.state = RUNNABLE
	np.lock.release(c)

	return pid
}

// reparent passes p's abandoned children to the init process.
// Caller must hold waitLock.
func (k *Kernel) reparent(c *cpu, p *Proc) {
	for i := range k.procs {
		pc := &k.procs[i]
		if pc.parent == p {
			pc.parent = k.initProc
			k.wakeupAll(c, p, k.initProc)
		}
	}
}

// exit terminates the current process; it does not return. The
// process stays a zombie until its parent calls wait.
func (p *Proc) exit(status int) {
	k := p.kern

	if p == k.initProc {
		panic("exit: initproc exiting")
	}

	for fd, f := range p.ofile {
		if f != nil {
			p.fileClose(f)
			p.ofile[fd] = nil
		}
	}

	p.beginOp()
	p.iput(p.cwd)
	p.endOp()
	p.cwd = nil

	c := p.cpu
	k.waitLock.acquire(c)

	// Give any children to init, and wake the parent's wait.
	k.reparent(c, p)
	k.wakeupAll(c, p, p.parent)

	p.lock.acquire(c)
	p.xstate = status
	p.state = ZOMBIE

	k.waitLock.release(c)

	// Jump into the scheduler, never to return.
	p.sched()
	panic("exit: zombie returned")
}

// wait waits for a child process to exit, frees its slot, and
// returns its pid. Returns -1 if this process has no children.
func (p *Proc) wait() int {
	k := p.kern
	k.waitLock.acquire(p.cpu)

	for {
		havekids := false
		for i := range k.procs {
			np := &k.procs[i]
			if np.parent != p {
				continue
			}
			havekids = true
			np.lock.acquire(p.cpu)
			if np.state == ZOMBIE {
				pid := np.pid
				k.freeProc(p.cpu, np)
				np.lock.release(p.cpu)
				k.waitLock.release(p.cpu)
				return pid
			}
			np.lock.release(p.cpu)
		}

		// No point waiting if we don't have any children.
		if !havekids || p.isKilled() {
			k.waitLock.release(p.cpu)
			return -1
		}

		// Wait for children to exit.
		p.sleep(p, &k.waitLock)
	}
}

// Kill requests termination of the process with the given pid.
// The victim won't die until it next crosses a trap boundary.
func (k *Kernel) Kill(pid int) int {
	k.intr.Lock()
	defer k.intr.Unlock()
	c := &k.intr.cpu
	for i := range k.procs {
		p := &k.procs[i]
		p.lock.acquire(c)
		if p.pid == pid && p.state != UNUSED {
			p.killed = true
			if p.state == SLEEPING {
				p.state = RUNNABLE
			}
			p.lock.release(c)
			return 0
		}
		p.lock.release(c)
	}
	return -1
}

func (p *Proc) setKilled() {
	p.lock.acquire(p.cpu)
	p.killed = true
	p.lock.release(p.cpu)
}

func (p *Proc) isKilled() bool {
	p.lock.acquire(p.cpu)
	k := p.killed
	p.lock.release(p.cpu)
	return k
}

// procDump prints a process listing to standard error. For
// debugging; no locks, to avoid wedging a stuck machine further.
func (k *Kernel) procDump() {
	for i := range k.procs {
		p := &k.procs[i]
		if p.state == UNUSED {
			continue
		}
		fmt.Fprintf(os.Stderr, "[%s] %d (%s)\n", p.state, p.pid, p.name)
	}
}
