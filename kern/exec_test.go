// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"strings"
	"testing"

	"a64unix/aarch64"
)

// startUserProc hand-builds a process running the given flat image
// at address zero, as a child of init so the init loop reaps it.
func startUserProc(t *testing.T, k *Kernel, tc *cpu, name, text string) *Proc {
	t.Helper()
	prog, err := aarch64.AsmText(0, text)
	if err != nil {
		t.Fatal(err)
	}
	p := k.allocProc(tc)
	if p == nil {
		t.Fatal("out of slots")
	}
	p.cpu = tc
	if p.pgdir = k.pgdirInit(tc); p.pgdir == nil {
		t.Fatal("out of memory")
	}
	sz := k.uvmAlloc(tc, p.pgdir, 0, pgRoundUp(uint64(len(prog)))+PGSIZE)
	if sz == 0 || !p.pgdir.copyout(0, prog) {
		t.Fatal("loading program failed")
	}
	p.sz = sz
	p.tf.ELR = 0
	p.tf.SP = sz
	p.cwd = p.namei("/")
	p.name = name
	p.lock.release(tc)

	k.waitLock.acquire(tc)
	p.parent = k.initProc
	k.waitLock.release(tc)

	p.lock.acquire(tc)
	p.state = RUNNABLE
	p.lock.release(tc)
	return p
}

// forkProg opens the console, forks, and writes "c" from the child
// (which exits with status 7) and then "p" from the parent once its
// wait has reaped the child.
const forkProg = `
start:
	movz x8, 56		// openat(AT_FDCWD, "/dev/console", O_RDWR)
	movn x1, 99
	adr x2, console
	movz x3, 2
	svc 0
	movz x8, 220		// clone(SIGCHLD, 0)
	movz x1, 17
	movz x2, 0
	svc 0
	cbz x0, child
	movz x8, 260		// wait4(-1, 0, 0, 0)
	movn x1, 0
	movz x2, 0
	movz x3, 0
	movz x4, 0
	svc 0
	movz x8, 66		// writev(0, piov, 1)
	movz x1, 0
	adr x2, piov
	movz x3, 1
	svc 0
	movz x8, 93		// exit(0)
	movz x1, 0
	svc 0
child:
	movz x8, 66		// writev(0, ciov, 1)
	movz x1, 0
	adr x2, ciov
	movz x3, 1
	svc 0
	movz x8, 93		// exit(7)
	movz x1, 7
	svc 0
console:
	.asciz "/dev/console"
	.align 3
piov:
	.quad pmsg
	.quad 1
ciov:
	.quad cmsg
	.quad 1
pmsg:
	.asciz "p"
cmsg:
	.asciz "c"
`

func TestForkReturnsTwice(t *testing.T) {
	k, buf := bootKernel(t)
	tc := testCPU(k)
	p := startUserProc(t, k, tc, "forker", forkProg)

	k.Start(2)
	defer k.Halt()

	// The init banner can interleave, so check order, not adjacency.
	waitFor(t, "fork output", func() bool {
		out := buf.String()
		return strings.Contains(out, "c") && strings.Contains(out, "p")
	})
	if out := buf.String(); strings.Index(out, "c") > strings.Index(out, "p") {
		t.Errorf("parent wrote before child exited: %q", out)
	}

	// The parent's wait reaped the child; init reaps the parent.
	waitFor(t, "forker reaped", func() bool {
		st, _ := procState(tc, p)
		return st == UNUSED
	})
}

// echoProg reads up to 16 console bytes and writes them back.
const echoProg = `
start:
	movz x8, 56		// openat(AT_FDCWD, "/dev/console", O_RDWR)
	movn x1, 99
	adr x2, console
	movz x3, 2
	svc 0
	movz x8, 63		// read(0, buf, 16)
	movz x1, 0
	adr x2, buf
	movz x3, 16
	svc 0
	adr x4, riov		// riov[1] = bytes read
	str x0, [x4, 8]
	movz x8, 66		// writev(0, riov, 1)
	movz x1, 0
	adr x2, riov
	movz x3, 1
	svc 0
	movz x8, 93		// exit(0)
	movz x1, 0
	svc 0
console:
	.asciz "/dev/console"
	.align 3
riov:
	.quad buf
	.quad 0
buf:
	.quad 0
	.quad 0
`

func TestConsoleEcho(t *testing.T) {
	k, buf := bootKernel(t)
	tc := testCPU(k)
	p := startUserProc(t, k, tc, "echo", echoProg)

	k.Start(2)
	defer k.Halt()

	waitFor(t, "echo asleep in read", func() bool {
		st, _ := procState(tc, p)
		return st == SLEEPING
	})
	k.Input([]byte("hi"))
	waitFor(t, "echoed input", func() bool {
		return strings.Contains(buf.String(), "hi")
	})
}

// brkProg grows the address space by a page and stores through the
// new memory, proving the old break address came back in x0.
const brkProg = `
start:
	movz x8, 214		// brk(4096)
	movz x1, 0x1000
	svc 0
	mov x5, x0		// old size
	movz x8, 56		// openat console
	movn x1, 99
	adr x2, console
	movz x3, 2
	svc 0
	strb w5, [x5]		// store at the old break: now mapped
	ldrb w6, [x5]
	movz x8, 66		// writev(0, iov, 1)
	movz x1, 0
	adr x2, iov
	movz x3, 1
	svc 0
	movz x8, 93		// exit(0)
	movz x1, 0
	svc 0
console:
	.asciz "/dev/console"
msg:
	.asciz "grown\n"
	.align 3
iov:
	.quad msg
	.quad 6
`

func TestBrkGrowsMemory(t *testing.T) {
	k, buf := bootKernel(t)
	tc := testCPU(k)
	startUserProc(t, k, tc, "brk", brkProg)

	k.Start(2)
	defer k.Halt()

	waitFor(t, "brk program output", func() bool {
		return strings.Contains(buf.String(), "grown\n")
	})
}

// faultProg dereferences unmapped memory; the kernel kills the
// process rather than letting it wander.
const faultProg = `
start:
	movz x1, 0x4000, lsl 16
	ldr x2, [x1]
	b start
`

func TestFaultKillsProcess(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := startUserProc(t, k, tc, "faulter", faultProg)

	k.Start(2)
	defer k.Halt()

	waitFor(t, "faulter killed and reaped", func() bool {
		st, _ := procState(tc, p)
		return st == UNUSED
	})
}

func TestExecErrors(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)

	got := make(chan int64, 2)
	startKernProc(k, tc, "execfail", nil, func(p *Proc) {
		got <- p.exec("/no/such/file", nil)
		got <- p.exec("/etc/motd", nil) // not an executable
	})

	k.Start(1)
	defer k.Halt()

	for i := 0; i < 2; i++ {
		waitFor(t, "exec result", func() bool { return len(got) > i })
	}
	if r := <-got; r != -1 {
		t.Errorf("exec of missing file = %d, want -1", r)
	}
	if r := <-got; r != -1 {
		t.Errorf("exec of non-executable = %d, want -1", r)
	}
}

func TestExecRunsProgram(t *testing.T) {
	k, buf := bootKernel(t)
	tc := testCPU(k)

	// Install a hello program on the disk, then exec it from a
	// process the way sys_exec would.
	prog, err := aarch64.AsmText(0, `
start:
	movz x8, 56		// openat console
	movn x1, 99
	adr x2, console
	movz x3, 2
	svc 0
	movz x8, 66		// writev(0, iov, 1)
	movz x1, 0
	adr x2, iov
	movz x3, 1
	svc 0
	movz x8, 93		// exit(0)
	movz x1, 0
	svc 0
console:
	.asciz "/dev/console"
msg:
	.asciz "hello from exec\n"
	.align 3
iov:
	.quad msg
	.quad 16
`)
	if err != nil {
		t.Fatal(err)
	}
	ip, err := k.disk.install("/bin/hello", T_FILE)
	if err != nil {
		t.Fatal(err)
	}
	ip.data = aoutImage(prog, 0, uint64(len(prog)))

	startKernProc(k, tc, "execer", nil, func(p *Proc) {
		if p.exec("/bin/hello", []string{"hello"}) < 0 {
			panic("exec failed")
		}
		p.usertrapret()
	})

	k.Start(2)
	defer k.Halt()

	waitFor(t, "exec output", func() bool {
		return strings.Contains(buf.String(), "hello from exec\n")
	})
}
