// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

const (
	O_RDONLY = 0x000
	O_WRONLY = 0x001
	O_RDWR   = 0x002
	O_CREATE = 0x040
	O_TRUNC  = 0x200
)

const atFDCWD = -100

// argfd fetches the n'th argument as a file descriptor,
// returning the open file it refers to.
func (p *Proc) argfd(n int) (int, *file) {
	fd := int(int64(p.argint(n)))
	if fd < 0 || fd >= NOFILE || p.ofile[fd] == nil {
		p.Error = EBADF
		return -1, nil
	}
	return fd, p.ofile[fd]
}

// fdalloc allocates a file descriptor for the given file.
func (p *Proc) fdalloc(f *file) int {
	for fd, of := range p.ofile {
		if of == nil {
			p.ofile[fd] = f
			return fd
		}
	}
	p.Error = EMFILE
	return -1
}

// argdirfd checks the directory-fd argument of the *at calls.
// Only AT_FDCWD is supported; paths resolve relative to the cwd.
func (p *Proc) argdirfd(n int) bool {
	return int64(p.argint(n)) == atFDCWD
}

// create makes a new inode named by path. On success the new inode
// is returned locked. Caller must be inside a transaction.
func (p *Proc) create(path string, typ int16, major, minor int16) *inode {
	dp, name := p.nameiparent(path)
	if dp == nil {
		return nil
	}
	p.ilock(dp)

	if inum := dirlookup(dp, name); inum != 0 {
		ip := p.iget(dp.dev, inum)
		p.iunlockput(dp)
		p.ilock(ip)
		if typ == T_FILE && ip.typ == T_FILE {
			return ip
		}
		p.Error = EEXIST
		p.iunlockput(ip)
		return nil
	}

	ip := p.ialloc(typ)
	if ip == nil {
		p.iunlockput(dp)
		return nil
	}
	p.ilock(ip)
	ip.major = major
	ip.minor = minor
	ip.nlink = 1

	if typ == T_DIR {
		// Create . and .. entries; .. refers to dp, so dp gains a link.
		dp.nlink++
		dirlink(ip, ".", ip.inum)
		dirlink(ip, "..", dp.inum)
	}
	dirlink(dp, name, ip.inum)
	p.iunlockput(dp)
	return ip
}

func sysDup(p *Proc) int64 {
	_, f := p.argfd(0)
	if f == nil {
		return -1
	}
	fd := p.fdalloc(f)
	if fd < 0 {
		return -1
	}
	p.fileDup(f)
	return int64(fd)
}

func sysChdir(p *Proc) int64 {
	path, ok := p.argstr(0)
	if !ok {
		return -1
	}
	p.beginOp()
	ip := p.namei(path)
	if ip == nil {
		p.endOp()
		return -1
	}
	p.ilock(ip)
	if ip.typ != T_DIR {
		p.Error = ENOTDIR
		p.iunlockput(ip)
		p.endOp()
		return -1
	}
	p.iunlock(ip)
	p.iput(p.cwd)
	p.endOp()
	p.cwd = ip
	return 0
}

func sysFstat(p *Proc) int64 {
	_, f := p.argfd(0)
	addr, ok := p.argptr(1, statSize)
	if f == nil || !ok {
		return -1
	}
	var st stat
	if p.fileStat(f, &st) < 0 {
		return -1
	}
	if !p.pgdir.copyout(addr, st.encode()) {
		return -1
	}
	return 0
}

func sysFstatat(p *Proc) int64 {
	if !p.argdirfd(0) {
		return -1
	}
	path, ok := p.argstr(1)
	addr, ok2 := p.argptr(2, statSize)
	if !ok || !ok2 {
		return -1
	}
	ip := p.namei(path)
	if ip == nil {
		return -1
	}
	var st stat
	p.ilock(ip)
	stati(ip, &st)
	p.iunlockput(ip)
	if !p.pgdir.copyout(addr, st.encode()) {
		return -1
	}
	return 0
}

func sysMkdirat(p *Proc) int64 {
	if !p.argdirfd(0) {
		return -1
	}
	path, ok := p.argstr(1)
	if !ok {
		return -1
	}
	p.beginOp()
	ip := p.create(path, T_DIR, 0, 0)
	if ip == nil {
		p.endOp()
		return -1
	}
	p.iunlockput(ip)
	p.endOp()
	return 0
}

func sysMknodat(p *Proc) int64 {
	if !p.argdirfd(0) {
		return -1
	}
	path, ok := p.argstr(1)
	if !ok {
		return -1
	}
	major := int16(p.argint(2))
	minor := int16(p.argint(3))
	p.beginOp()
	ip := p.create(path, T_DEV, major, minor)
	if ip == nil {
		p.endOp()
		return -1
	}
	p.iunlockput(ip)
	p.endOp()
	return 0
}

func sysOpenat(p *Proc) int64 {
	if !p.argdirfd(0) {
		return -1
	}
	path, ok := p.argstr(1)
	if !ok {
		return -1
	}
	omode := int(int64(p.argint(2)))

	p.beginOp()
	var ip *inode
	if omode&O_CREATE != 0 {
		ip = p.create(path, T_FILE, 0, 0)
		if ip == nil {
			p.endOp()
			return -1
		}
	} else {
		if ip = p.namei(path); ip == nil {
			p.endOp()
			return -1
		}
		p.ilock(ip)
		if ip.typ == T_DIR && omode != O_RDONLY {
			p.Error = EISDIR
			p.iunlockput(ip)
			p.endOp()
			return -1
		}
	}
	if ip.typ == T_DEV && (ip.major < 0 || ip.major >= NDEV) {
		p.Error = ENODEV
		p.iunlockput(ip)
		p.endOp()
		return -1
	}

	f := p.fileAlloc()
	var fd int
	if f != nil {
		fd = p.fdalloc(f)
		if fd < 0 {
			p.fileClose(f)
		}
	}
	if f == nil || fd < 0 {
		p.iunlockput(ip)
		p.endOp()
		return -1
	}

	if omode&O_TRUNC != 0 && ip.typ == T_FILE {
		ip.data = nil
	}

	f.typ = FD_INODE
	f.ip = ip
	f.off = 0
	f.readable = omode&O_WRONLY == 0
	f.writable = omode&O_WRONLY != 0 || omode&O_RDWR != 0

	p.iunlock(ip)
	p.endOp()
	return int64(fd)
}

func sysWritev(p *Proc) int64 {
	_, f := p.argfd(0)
	uiov := p.argint(1)
	iovcnt := int(int64(p.argint(2)))
	if f == nil || iovcnt < 0 {
		return -1
	}
	total := int64(0)
	for i := 0; i < iovcnt; i++ {
		base, ok := p.fetchint(uiov + 16*uint64(i))
		n, ok2 := p.fetchint(uiov + 16*uint64(i) + 8)
		if !ok || !ok2 || n < 0 {
			return -1
		}
		if n == 0 {
			continue
		}
		addr, ok := p.checkrange(uint64(base), uint64(n))
		if !ok {
			return -1
		}
		buf := make([]byte, n)
		if !p.pgdir.copyin(buf, addr) {
			return -1
		}
		r := p.fileWrite(f, buf)
		if r < 0 {
			return -1
		}
		total += int64(r)
		if r < int(n) {
			break
		}
	}
	return total
}

func sysRead(p *Proc) int64 {
	_, f := p.argfd(0)
	if f == nil {
		return -1
	}
	n := int64(p.argint(2))
	if n < 0 {
		return -1
	}
	addr, ok := p.argptr(1, uint64(n))
	if !ok {
		return -1
	}
	buf := make([]byte, n)
	r := p.fileRead(f, buf)
	if r > 0 && !p.pgdir.copyout(addr, buf[:r]) {
		return -1
	}
	return int64(r)
}

func sysClose(p *Proc) int64 {
	fd, f := p.argfd(0)
	if f == nil {
		return -1
	}
	p.ofile[fd] = nil
	p.fileClose(f)
	return 0
}

// checkrange validates that [addr, addr+size) lies in user memory.
func (p *Proc) checkrange(addr, size uint64) (uint64, bool) {
	if addr >= p.sz || addr+size > p.sz {
		p.Error = EFAULT
		return 0, false
	}
	return addr, true
}
