// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	_ "embed"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"a64unix/aarch64"
)

//go:embed disk.txtar
var FS []byte

// A Kernel is one simulated machine: CPUs, physical memory, the
// process table, and the attached disk and console.
type Kernel struct {
	cpus  [NCPU]cpu
	procs [NPROC]Proc
	ncpu  int

	pidLock spinlock
	nextPID int

	waitLock spinlock
	initProc *Proc

	kmem   kmem
	ftable ftable
	disk   *Disk
	log    oplog
	cons   console
	devsw  [NDEV]devsw

	initcode []byte
	fsinit   sync.Once
	halted   atomic.Bool
	done     sync.WaitGroup

	// intr is the interrupt context: the lock-owner identity for
	// kernel entries that arrive from outside any CPU (console
	// input, Kill). The mutex keeps those entries serial.
	intr struct {
		sync.Mutex
		cpu cpu
	}

	Trace bool
}

// NewKernel builds a machine around the given root-filesystem
// archive, with console output attached to out. The returned kernel
// has its first user process ready; Start sets the CPUs running.
func NewKernel(archive []byte, out io.Writer) (*Kernel, error) {
	k := &Kernel{}
	for i := range k.cpus {
		k.cpus[i].id = i
		k.cpus[i].kern = k
		k.cpus[i].scheduler = schedContext()
	}
	k.intr.cpu.id = -1
	k.intr.cpu.kern = k

	k.kallocInit()
	k.fileInit()
	k.consoleInit(out)

	d, err := newDisk(archive)
	if err != nil {
		return nil, err
	}
	k.disk = d
	if err := k.installInit(); err != nil {
		return nil, err
	}

	code, err := aarch64.AsmText(0, initcodeAsm)
	if err != nil {
		return nil, fmt.Errorf("assembling initcode: %v", err)
	}
	k.initcode = code

	k.procInit()
	k.userInit()
	return k, nil
}

// Start runs scheduler loops on ncpu CPUs.
func (k *Kernel) Start(ncpu int) {
	if ncpu < 1 || ncpu > NCPU {
		panic("Start: bad cpu count")
	}
	k.ncpu = ncpu
	k.done.Add(ncpu)
	for i := 0; i < ncpu; i++ {
		c := &k.cpus[i]
		go func() {
			defer k.done.Done()
			scheduler(c)
		}()
	}
}

// Halt stops the scheduler loops and waits for them to park. A real
// machine would run forever; simulations and tests need an off
// switch. Suspended processes stay suspended.
func (k *Kernel) Halt() {
	k.halted.Store(true)
	k.done.Wait()
}

// idle is what a CPU does on a sweep with nothing runnable.
func idle() {
	runtime.Gosched()
}

// installInit assembles the init program and installs it as /init
// on the disk, the last step of making the filesystem bootable.
func (k *Kernel) installInit() error {
	prog, err := aarch64.AsmText(0, initAsm)
	if err != nil {
		return fmt.Errorf("assembling init: %v", err)
	}
	ip, err := k.disk.install("/init", T_FILE)
	if err != nil {
		return err
	}
	ip.data = aoutImage(prog, 0, uint64(len(prog)))
	return nil
}

// initcodeAsm is the user bootstrap copied to address 0 of the
// first process: exec /init, and exit if that ever fails.
// System calls take the number in x8 and arguments in x1..x4.
const initcodeAsm = `
start:
	movz x8, 221		// execve
	adr x1, path
	adr x2, argv
	svc 0
	movz x8, 93		// exit
	movz x1, 1
	svc 0
exit:
	b exit
path:
	.asciz "/init"
	.align 3
argv:
	.quad path
	.quad 0
`

// initAsm is the init program: open the console, announce boot,
// then loop forever reaping orphans.
const initAsm = `
start:
	movz x8, 56		// openat(AT_FDCWD, "/dev/console", O_RDWR)
	movn x1, 99
	adr x2, console
	movz x3, 2
	svc 0
	movz x8, 23		// dup(0), stdout
	movz x1, 0
	svc 0
	movz x8, 66		// writev(1, iov, 1)
	movz x1, 1
	adr x2, iov
	movz x3, 1
	svc 0
loop:
	movz x8, 260		// wait4(-1, 0, 0, 0)
	movn x1, 0
	movz x2, 0
	movz x3, 0
	movz x4, 0
	svc 0
	add x0, x0, 1		// -1 means no children; yield and retry
	cbnz x0, loop
	movz x8, 124		// sched_yield
	svc 0
	b loop
console:
	.asciz "/dev/console"
banner:
	.asciz "init: starting\n"
	.align 3
iov:
	.quad banner
	.quad 15
`
