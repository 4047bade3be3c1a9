// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"encoding/binary"
	"testing"
)

// fsProc returns an unscheduled process suitable for poking at the
// filesystem from the test goroutine.
func fsProc(t *testing.T, k *Kernel, tc *cpu) *Proc {
	t.Helper()
	p := k.allocProc(tc)
	if p == nil {
		t.Fatal("out of slots")
	}
	p.cpu = tc
	p.cwd = p.namei("/")
	p.lock.release(tc)
	t.Cleanup(func() {
		p.iput(p.cwd)
		p.cwd = nil
		p.lock.acquire(tc)
		k.freeProc(tc, p)
		p.lock.release(tc)
	})
	return p
}

var disktab = []struct {
	name  string
	typ   int16
	major int16
	minor int16
}{
	{"/", T_DIR, 0, 0},
	{"/.", T_DIR, 0, 0},
	{"/..", T_DIR, 0, 0},
	{"/dev", T_DIR, 0, 0},
	{"/dev/console", T_DEV, CONSOLE, 1},
	{"/etc/motd", T_FILE, 0, 0},
	{"/init", T_FILE, 0, 0},
	{"init", T_FILE, 0, 0}, // relative to cwd /
}

func TestDiskTable(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := fsProc(t, k, tc)

	for _, tab := range disktab {
		p.Error = 0
		ip := p.namei(tab.name)
		if ip == nil {
			t.Errorf("namei %s: %v", tab.name, p.Error)
			continue
		}
		var st stat
		stati(ip, &st)
		if ip.typ != tab.typ || ip.major != tab.major || ip.minor != tab.minor {
			t.Errorf("%s: have type %d %d,%d, want %d %d,%d",
				tab.name, ip.typ, ip.major, ip.minor, tab.typ, tab.major, tab.minor)
		}
		if st.Ino != uint32(ip.inum) || st.Type != ip.typ {
			t.Errorf("%s: stat does not match inode", tab.name)
		}
		p.iput(ip)
	}

	if ip := p.namei("/no/such/file"); ip != nil {
		t.Error("namei of missing path succeeded")
	} else if p.Error != ENOENT {
		t.Errorf("namei error = %v, want ENOENT", p.Error)
	}
}

func TestMotd(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := fsProc(t, k, tc)

	ip := p.namei("/etc/motd")
	if ip == nil {
		t.Fatalf("namei: %v", p.Error)
	}
	defer p.iput(ip)
	if string(ip.data) != "Welcome to a64unix.\n" {
		t.Errorf("motd = %q", ip.data)
	}
}

func TestInitBinary(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := fsProc(t, k, tc)

	ip := p.namei("/init")
	if ip == nil {
		t.Fatalf("namei: %v", p.Error)
	}
	defer p.iput(ip)
	hdr, image, ok := parseAout(ip.data)
	if !ok {
		t.Fatal("/init is not an executable")
	}
	if hdr.entry != 0 || hdr.memsz != uint64(len(image)) {
		t.Errorf("bad header: entry=%d memsz=%d len=%d", hdr.entry, hdr.memsz, len(image))
	}
}

func TestInodeRefcounts(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := fsProc(t, k, tc)

	ip := p.namei("/etc/motd")
	if ip == nil {
		t.Fatalf("namei: %v", p.Error)
	}
	if ip.ref != 1 {
		t.Errorf("ref after namei = %d, want 1", ip.ref)
	}
	p.idup(ip)
	if ip.ref != 2 {
		t.Errorf("ref after idup = %d, want 2", ip.ref)
	}
	p.iput(ip)
	p.iput(ip)
	if ip.ref != 0 {
		t.Errorf("ref after iput = %d, want 0", ip.ref)
	}
}

func TestFileRefcounts(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := fsProc(t, k, tc)

	f := p.fileAlloc()
	if f == nil {
		t.Fatal("fileAlloc failed")
	}
	f.typ = FD_INODE
	f.readable = true
	f.ip = p.namei("/etc/motd")

	p.fileDup(f)
	if f.ref != 2 {
		t.Errorf("ref after dup = %d, want 2", f.ref)
	}
	p.fileClose(f)
	if f.ref != 1 || f.typ != FD_INODE {
		t.Errorf("first close: ref=%d typ=%d", f.ref, f.typ)
	}
	p.fileClose(f)
	if f.ref != 0 || f.typ != FD_NONE {
		t.Errorf("last close: ref=%d typ=%d", f.ref, f.typ)
	}
}

func TestFileReadPropagatesErrors(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := fsProc(t, k, tc)

	f := p.fileAlloc()
	f.typ = FD_INODE
	f.readable = true
	f.ip = p.namei("/etc/motd")
	defer p.fileClose(f)

	buf := make([]byte, 7)
	if r := p.fileRead(f, buf); r != 7 || string(buf) != "Welcome" {
		t.Errorf("fileRead = %d %q", r, buf)
	}

	// readi fails on a bad offset, and fileRead passes the raw
	// result through unchanged.
	f.off = len(f.ip.data) + 10
	if r := p.fileRead(f, buf); r != -1 {
		t.Errorf("fileRead past EOF = %d, want -1", r)
	}
	f.off = len(f.ip.data)
	if r := p.fileRead(f, buf); r != 0 {
		t.Errorf("fileRead at EOF = %d, want 0", r)
	}
}

func TestFileWriteGrows(t *testing.T) {
	k, _ := bootKernel(t)
	tc := testCPU(k)
	p := fsProc(t, k, tc)

	ip := p.ialloc(T_FILE)
	if ip == nil {
		t.Fatal("ialloc failed")
	}
	ip.nlink = 1
	f := p.fileAlloc()
	f.typ = FD_INODE
	f.writable = true
	f.ip = ip

	msg := []byte("transaction test")
	if r := p.fileWrite(f, msg); r != len(msg) {
		t.Fatalf("fileWrite = %d, want %d", r, len(msg))
	}
	if r := p.fileWrite(f, msg); r != len(msg) {
		t.Fatalf("second fileWrite = %d, want %d", r, len(msg))
	}
	if len(ip.data) != 2*len(msg) {
		t.Errorf("file size = %d, want %d", len(ip.data), 2*len(msg))
	}
	ip.nlink = 0
	p.fileClose(f) // drops the last ref; inode is freed
	if k.disk.inodes[ip.inum] != nil {
		t.Error("unlinked inode not freed on last close")
	}
}

func TestDirents(t *testing.T) {
	dp := &inode{typ: T_DIR}
	dirlink(dp, "alpha", 3)
	dirlink(dp, "beta", 4)
	if len(dp.data)%direntSize != 0 {
		t.Fatalf("dir data size %d not a multiple of %d", len(dp.data), direntSize)
	}
	if got := dirlookup(dp, "alpha"); got != 3 {
		t.Errorf("dirlookup alpha = %d, want 3", got)
	}
	if got := dirlookup(dp, "beta"); got != 4 {
		t.Errorf("dirlookup beta = %d, want 4", got)
	}
	if got := dirlookup(dp, "gamma"); got != 0 {
		t.Errorf("dirlookup gamma = %d, want 0", got)
	}

	// Deleting an entry frees its slot for reuse.
	binary.LittleEndian.PutUint16(dp.data, 0)
	if got := dirlookup(dp, "alpha"); got != 0 {
		t.Errorf("dirlookup deleted alpha = %d, want 0", got)
	}
	dirlink(dp, "gamma", 5)
	if len(dp.data) != 2*direntSize {
		t.Errorf("dir grew to %d entries, want slot reuse", len(dp.data)/direntSize)
	}
}

func TestStatEncoding(t *testing.T) {
	st := stat{Dev: 1, Ino: 7, Type: T_FILE, Nlink: 2, Size: 512}
	b := st.encode()
	if len(b) != statSize {
		t.Fatalf("len = %d, want %d", len(b), statSize)
	}
	if binary.LittleEndian.Uint32(b) != 1 ||
		binary.LittleEndian.Uint32(b[4:]) != 7 ||
		binary.LittleEndian.Uint16(b[8:]) != T_FILE ||
		binary.LittleEndian.Uint16(b[10:]) != 2 ||
		binary.LittleEndian.Uint64(b[16:]) != 512 {
		t.Errorf("bad encoding % x", b)
	}
}
