// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import "testing"

// makeUserProc hand-builds an unscheduled process with npages of
// user memory, for exercising the argument-fetch layer directly.
func makeUserProc(t *testing.T, k *Kernel, tc *cpu, npages int) *Proc {
	t.Helper()
	p := k.allocProc(tc)
	if p == nil {
		t.Fatal("out of slots")
	}
	p.cpu = tc
	if p.pgdir = k.pgdirInit(tc); p.pgdir == nil {
		t.Fatal("out of memory")
	}
	sz := k.uvmAlloc(tc, p.pgdir, 0, uint64(npages)*PGSIZE)
	if sz == 0 {
		t.Fatal("out of memory")
	}
	p.sz = sz
	p.lock.release(tc)
	t.Cleanup(func() {
		p.lock.acquire(tc)
		k.freeProc(tc, p)
		p.lock.release(tc)
	})
	return p
}

func TestSyscallUnknown(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := makeUserProc(t, k, tc, 1)

	for _, sysno := range []uint64{999, 50, 0} {
		tf := p.tf
		tf.X[8] = sysno
		tf.X[0] = 12345
		if r := p.syscall1(tf); r != -1 {
			t.Errorf("syscall1(%d) = %d, want -1", sysno, r)
		}
		if tf.X[0] != ^uint64(0) {
			t.Errorf("syscall1(%d) left x0 = %#x, want -1", sysno, tf.X[0])
		}
	}
}

func TestSyscallGettid(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := makeUserProc(t, k, tc, 1)

	for _, sysno := range []uint64{SYS_gettid, SYS_set_tid_address} {
		p.tf.X[8] = sysno
		if r := p.syscall1(p.tf); r != int64(p.pid) {
			t.Errorf("syscall1(%d) = %d, want pid %d", sysno, r, p.pid)
		}
	}
}

func TestArgint(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := makeUserProc(t, k, tc, 1)

	p.tf.X[1], p.tf.X[2], p.tf.X[3], p.tf.X[4] = 11, 22, 33, 44
	for n, want := range []uint64{11, 22, 33, 44} {
		if got := p.argint(n); got != want {
			t.Errorf("argint(%d) = %d, want %d", n, got, want)
		}
	}

	for _, n := range []int{4, -1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("argint(%d) did not panic", n)
				}
			}()
			p.argint(n)
		}()
	}
}

func TestFetchint(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := makeUserProc(t, k, tc, 1)

	p.pgdir.copyout(16, []byte{0xEF, 0xBE, 0xAD, 0xDE, 0, 0, 0, 0})
	if v, ok := p.fetchint(16); !ok || v != 0xDEADBEEF {
		t.Errorf("fetchint(16) = %#x, %v, want 0xDEADBEEF, true", v, ok)
	}
	if _, ok := p.fetchint(p.sz - 4); ok {
		t.Error("fetchint straddling sz succeeded")
	}
	if _, ok := p.fetchint(p.sz + 8); ok {
		t.Error("fetchint beyond sz succeeded")
	}
}

func TestFetchstr(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := makeUserProc(t, k, tc, 1)

	p.pgdir.copyout(0, []byte("hello\x00"))
	if s, ok := p.fetchstr(0); !ok || s != "hello" {
		t.Errorf("fetchstr(0) = %q, %v, want hello, true", s, ok)
	}

	// A page of 'A' with no terminator anywhere before sz.
	for va := uint64(0); va < p.sz; va++ {
		p.pgdir.copyout(va, []byte{'A'})
	}
	if _, ok := p.fetchstr(8); ok {
		t.Error("fetchstr with no NUL before sz succeeded")
	}
	if _, ok := p.fetchstr(p.sz); ok {
		t.Error("fetchstr at sz succeeded")
	}
}

func TestArgptrArgstr(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := makeUserProc(t, k, tc, 1)

	p.pgdir.copyout(64, []byte("file\x00"))
	p.tf.X[1] = 64
	if s, ok := p.argstr(0); !ok || s != "file" {
		t.Errorf("argstr(0) = %q, %v, want file, true", s, ok)
	}
	if addr, ok := p.argptr(0, 16); !ok || addr != 64 {
		t.Errorf("argptr(0, 16) = %d, %v, want 64, true", addr, ok)
	}
	p.tf.X[1] = p.sz - 8
	if _, ok := p.argptr(0, 16); ok {
		t.Error("argptr crossing sz succeeded")
	}
}

func TestCloneRestricted(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := makeUserProc(t, k, tc, 1)
	p.cwd = p.namei("/")

	p.tf.X[1] = 0 // flags != SIGCHLD
	p.tf.X[2] = 0
	if r := sysClone(p); r != -1 {
		t.Errorf("clone(0, 0) = %d, want -1", r)
	}

	p.tf.X[1] = cloneSIGCHLD
	r := sysClone(p)
	if r <= 0 {
		t.Fatalf("clone(17, 0) = %d, want child pid", r)
	}
	for i := range k.procs {
		np := &k.procs[i]
		if np.pid == int(r) {
			np.lock.acquire(tc)
			if np.state != RUNNABLE {
				t.Errorf("child state = %v, want runnable", np.state)
			}
			k.freeProc(tc, np)
			np.lock.release(tc)
		}
	}
}

func TestWait4Restricted(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := makeUserProc(t, k, tc, 1)

	bad := [][4]uint64{
		{7, 0, 0, 0},           // specific pid
		{^uint64(0), 64, 0, 0}, // wstatus pointer
		{^uint64(0), 0, 1, 0},  // WNOHANG
		{^uint64(0), 0, 0, 64}, // rusage
	}
	for _, args := range bad {
		p.tf.X[1], p.tf.X[2], p.tf.X[3], p.tf.X[4] = args[0], args[1], args[2], args[3]
		if r := sysWait4(p); r != -1 {
			t.Errorf("wait4(%v) = %d, want -1", args, r)
		}
	}
}
