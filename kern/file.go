// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
 * File descriptors
 */

package kern

type filetype int

const (
	FD_NONE filetype = iota
	FD_INODE
)

type file struct {
	typ      filetype
	ref      int
	readable bool
	writable bool
	ip       *inode
	off      int
}

// devsw is a device switch entry: read/write handlers indexed by
// major device number.
type devsw struct {
	read  func(p *Proc, dst []byte) int
	write func(p *Proc, src []byte) int
}

type ftable struct {
	lock spinlock
	file [NFILE]file
}

func (k *Kernel) fileInit() {
	k.ftable.lock.init("ftable")
}

// fileAlloc allocates a file structure.
func (p *Proc) fileAlloc() *file {
	ft := &p.kern.ftable
	ft.lock.acquire(p.cpu)
	defer ft.lock.release(p.cpu)
	for i := range ft.file {
		f := &ft.file[i]
		if f.ref == 0 {
			f.ref = 1
			return f
		}
	}
	p.Error = ENFILE
	return nil
}

// fileDup increments the reference count for file f.
func (p *Proc) fileDup(f *file) *file {
	ft := &p.kern.ftable
	ft.lock.acquire(p.cpu)
	if f.ref < 1 {
		panic("fileDup: invalid file")
	}
	f.ref++
	ft.lock.release(p.cpu)
	return f
}

// fileClose drops a reference to file f,
// closing it when the count reaches zero.
func (p *Proc) fileClose(f *file) {
	ft := &p.kern.ftable
	ft.lock.acquire(p.cpu)
	if f.ref < 1 {
		panic("fileClose: invalid file")
	}
	f.ref--
	if f.ref > 0 {
		ft.lock.release(p.cpu)
		return
	}
	ff := *f
	f.typ = FD_NONE
	f.ip = nil
	ft.lock.release(p.cpu)

	if ff.typ == FD_INODE {
		p.beginOp()
		p.iput(ff.ip)
		p.endOp()
	} else {
		panic("fileClose: unsupported type")
	}
}

// fileStat gets metadata about file f.
func (p *Proc) fileStat(f *file, st *stat) int {
	if f.typ == FD_INODE {
		p.ilock(f.ip)
		stati(f.ip, st)
		p.iunlock(f.ip)
		return 0
	}
	return -1
}

// fileRead reads from file f into dst. The raw readi result is
// returned unchanged, including errors.
func (p *Proc) fileRead(f *file, dst []byte) int {
	if !f.readable {
		return -1
	}
	if f.typ == FD_INODE {
		p.ilock(f.ip)
		r := p.readi(f.ip, dst, f.off)
		if r > 0 {
			f.off += r
		}
		p.iunlock(f.ip)
		return r
	}
	panic("fileRead: unsupported type")
}

// fileWrite writes src to file f.
func (p *Proc) fileWrite(f *file, src []byte) int {
	if !f.writable {
		return -1
	}
	if f.typ == FD_INODE {
		// Write a few blocks at a time, so a single huge write
		// cannot hold a log transaction open indefinitely.
		max := 4096
		i := 0
		n := len(src)
		for i < n {
			n1 := n - i
			if n1 > max {
				n1 = max
			}

			p.beginOp()
			p.ilock(f.ip)
			r := p.writei(f.ip, src[i:i+n1], f.off)
			if r > 0 {
				f.off += r
			}
			p.iunlock(f.ip)
			p.endOp()

			if r < 0 {
				break
			}
			if r != n1 {
				panic("fileWrite: partial data written")
			}
			i += r
		}
		if i == n {
			return n
		}
		return -1
	}
	panic("fileWrite: unsupported type")
}
