// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"fmt"
	"os"
)

/*
 * User code makes a system call with SVC.
 * System call number in x8, arguments in x1..x4,
 * return value in x0.
 */

// System call numbers, following the standard arm64 table.
const (
	SYS_dup             = 23
	SYS_ioctl           = 29
	SYS_mknodat         = 33
	SYS_mkdirat         = 34
	SYS_chdir           = 49
	SYS_openat          = 56
	SYS_close           = 57
	SYS_read            = 63
	SYS_writev          = 66
	SYS_newfstatat      = 79
	SYS_fstat           = 80
	SYS_exit            = 93
	SYS_exit_group      = 94
	SYS_set_tid_address = 96
	SYS_sched_yield     = 124
	SYS_rt_sigprocmask  = 135
	SYS_gettid          = 178
	SYS_brk             = 214
	SYS_clone           = 220
	SYS_execve          = 221
	SYS_wait4           = 260
)

type sysentry struct {
	name string
	impl func(*Proc) int64
}

var sysent [SYS_wait4 + 1]sysentry

func init() {
	sysent[SYS_set_tid_address] = sysentry{"set_tid_address", sysGettid}
	sysent[SYS_gettid] = sysentry{"gettid", sysGettid}
	sysent[SYS_ioctl] = sysentry{"ioctl", sysIoctl}
	sysent[SYS_rt_sigprocmask] = sysentry{"rt_sigprocmask", sysSigprocmask}
	sysent[SYS_brk] = sysentry{"brk", sysBrk}
	sysent[SYS_execve] = sysentry{"execve", sysExec}
	sysent[SYS_sched_yield] = sysentry{"sched_yield", sysYield}
	sysent[SYS_clone] = sysentry{"clone", sysClone}
	sysent[SYS_wait4] = sysentry{"wait4", sysWait4}
	// exit_group should kill every thread in the thread group;
	// with one thread per process they are the same call.
	sysent[SYS_exit_group] = sysentry{"exit_group", sysExit}
	sysent[SYS_exit] = sysentry{"exit", sysExit}
	sysent[SYS_dup] = sysentry{"dup", sysDup}
	sysent[SYS_chdir] = sysentry{"chdir", sysChdir}
	sysent[SYS_fstat] = sysentry{"fstat", sysFstat}
	sysent[SYS_newfstatat] = sysentry{"newfstatat", sysFstatat}
	sysent[SYS_mkdirat] = sysentry{"mkdirat", sysMkdirat}
	sysent[SYS_mknodat] = sysentry{"mknodat", sysMknodat}
	sysent[SYS_openat] = sysentry{"openat", sysOpenat}
	sysent[SYS_writev] = sysentry{"writev", sysWritev}
	sysent[SYS_read] = sysentry{"read", sysRead}
	sysent[SYS_close] = sysentry{"close", sysClose}
}

// syscall1 dispatches the system call recorded in tf and stores the
// result in tf's x0. Unknown numbers fail with -1 rather than
// wedging the process.
func (p *Proc) syscall1(tf *trapframe) int64 {
	p.tf = tf
	sysno := tf.X[8]

	if sysno < uint64(len(sysent)) && sysent[sysno].impl != nil {
		if p.kern.Trace {
			fmt.Fprintf(os.Stderr, "[pid %d] %s(%#x, %#x, %#x, %#x)\n",
				p.pid, sysent[sysno].name, tf.X[1], tf.X[2], tf.X[3], tf.X[4])
		}
		p.Error = 0
		r := sysent[sysno].impl(p)
		tf.X[0] = uint64(r)
		return r
	}

	if p.kern.Trace {
		fmt.Fprintf(os.Stderr, "[pid %d] unknown syscall %d\n", p.pid, sysno)
	}
	tf.X[0] = ^uint64(0)
	return -1
}

// argint fetches the n'th system call argument.
// Asking for an argument that does not exist is a kernel bug.
func (p *Proc) argint(n int) uint64 {
	if n < 0 || n > 3 {
		panic("argint: too many system call parameters")
	}
	return p.tf.X[1+n]
}

// fetchint reads the 8 bytes at addr in the current process's
// memory. User memory is mapped while the kernel runs on the
// process's behalf, so after the bounds check this is a plain load.
func (p *Proc) fetchint(addr uint64) (int64, bool) {
	if addr >= p.sz || addr+8 > p.sz {
		p.Error = EFAULT
		return 0, false
	}
	var b [8]byte
	if !p.pgdir.copyin(b[:], addr) {
		panic("fetchint: unmapped user address below sz")
	}
	v := uint64(0)
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return int64(v), true
}

// fetchstr reads the NUL-terminated string at addr, failing if no
// NUL appears before the end of the address space.
func (p *Proc) fetchstr(addr uint64) (string, bool) {
	if addr >= p.sz {
		p.Error = EFAULT
		return "", false
	}
	var s []byte
	for a := addr; a < p.sz; a++ {
		var b [1]byte
		if !p.pgdir.copyin(b[:], a) {
			panic("fetchstr: unmapped user address below sz")
		}
		if b[0] == 0 {
			return string(s), true
		}
		s = append(s, b[0])
	}
	p.Error = EFAULT
	return "", false
}

// argptr fetches the n'th argument as a pointer to a block of size
// bytes, checking that the block lies within the address space.
func (p *Proc) argptr(n int, size uint64) (uint64, bool) {
	i := p.argint(n)
	if i >= p.sz || i+size > p.sz {
		p.Error = EFAULT
		return 0, false
	}
	return i, true
}

// argstr fetches the n'th argument as a string.
func (p *Proc) argstr(n int) (string, bool) {
	return p.fetchstr(p.argint(n))
}
