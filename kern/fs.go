// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/tools/txtar"
)

const (
	T_DIR  = 1
	T_FILE = 2
	T_DEV  = 3
)

const maxInodes = 1 << 12

// An inode is one file on the in-memory disk. File content lives in
// data; directories store direntSize-byte entries there.
type inode struct {
	dev  int
	inum int
	ref  int // in-core references, guarded by the disk lock
	lock sleeplock

	typ   int16
	major int16
	minor int16
	nlink int16
	data  []byte
}

// A Disk is the in-memory root filesystem, built from a txtar
// archive at boot.
type Disk struct {
	lock   spinlock
	inodes []*inode // index = inum; 0 unused
}

const rootIno = 1

// A dirent is one directory entry: a 2-byte inum followed by a
// NUL-padded name.
const direntSize = 2 + DIRSIZ

type stat struct {
	Dev   int32
	Ino   uint32
	Type  int16
	Nlink int16
	Size  uint64
}

const statSize = 24

// encode lays a stat out the way user code reads it: dev, ino,
// type, nlink, 4 bytes of padding, then the 8-byte size.
func (st *stat) encode() []byte {
	b := make([]byte, statSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(st.Dev))
	binary.LittleEndian.PutUint32(b[4:], st.Ino)
	binary.LittleEndian.PutUint16(b[8:], uint16(st.Type))
	binary.LittleEndian.PutUint16(b[10:], uint16(st.Nlink))
	binary.LittleEndian.PutUint64(b[16:], st.Size)
	return b
}

// newDisk builds a filesystem from a txtar archive. Each archive
// file is "path [type=N] [major=N] [minor=N]" with the file content
// as data; parent directories are created as needed.
func newDisk(archive []byte) (*Disk, error) {
	d := &Disk{}
	d.lock.init("disk")
	root := &inode{dev: ROOTDEV, inum: rootIno, ref: 1, typ: T_DIR, nlink: 1}
	root.lock.init("inode")
	d.inodes = []*inode{nil, root}
	dirlink(root, ".", rootIno)
	dirlink(root, "..", rootIno)

	for _, file := range txtar.Parse(archive).Files {
		f := strings.Fields(file.Name)
		name := f[0]
		typ := int16(T_FILE)
		var major, minor int16
		for _, arg := range f[1:] {
			k, v, ok := strings.Cut(arg, "=")
			if !ok {
				return nil, fmt.Errorf("invalid txtar k=v: %s", arg)
			}
			i, err := strconv.ParseInt(v, 0, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid txtar k=v: %s", arg)
			}
			switch k {
			default:
				return nil, fmt.Errorf("invalid txtar k=v: %s", arg)
			case "type":
				typ = int16(i)
			case "major":
				major = int16(i)
			case "minor":
				minor = int16(i)
			}
		}
		ip, err := d.install(name, typ)
		if err != nil {
			return nil, err
		}
		ip.major = major
		ip.minor = minor
		if typ == T_FILE {
			ip.data = bytes.Clone(file.Data)
		}
	}
	return d, nil
}

// install creates path on a disk under construction, making parent
// directories as needed. Boot-time only: no locking.
func (d *Disk) install(path string, typ int16) (*inode, error) {
	dp := d.inodes[rootIno]
	elems := strings.Split(strings.Trim(path, "/"), "/")
	for i, elem := range elems {
		if elem == "" || len(elem) > DIRSIZ {
			return nil, fmt.Errorf("bad path element %q in %q", elem, path)
		}
		last := i == len(elems)-1
		if inum := dirlookup(dp, elem); inum != 0 {
			if last {
				return nil, fmt.Errorf("%s: already exists", path)
			}
			dp = d.inodes[inum]
			continue
		}
		want := typ
		if !last {
			want = T_DIR
		}
		ip := d.rawAlloc(want)
		dirlink(dp, elem, ip.inum)
		ip.nlink = 1
		if want == T_DIR {
			dirlink(ip, ".", ip.inum)
			dirlink(ip, "..", dp.inum)
			dp.nlink++
		}
		if last {
			return ip, nil
		}
		dp = ip
	}
	return nil, fmt.Errorf("bad path %q", path)
}

func (d *Disk) rawAlloc(typ int16) *inode {
	ip := &inode{dev: ROOTDEV, inum: len(d.inodes), typ: typ}
	ip.lock.init("inode")
	d.inodes = append(d.inodes, ip)
	return ip
}

// iinit readies the on-disk filesystem. The in-memory disk needs no
// recovery; this is the hook forkret runs once scheduling works.
func (p *Proc) iinit(dev int) {
	if p.kern.disk == nil {
		panic("iinit: no disk")
	}
}

// ialloc allocates a fresh inode on the disk.
func (p *Proc) ialloc(typ int16) *inode {
	d := p.kern.disk
	d.lock.acquire(p.cpu)
	defer d.lock.release(p.cpu)
	for i := 1; i < len(d.inodes); i++ {
		if d.inodes[i] == nil {
			ip := &inode{dev: ROOTDEV, inum: i, ref: 1, typ: typ}
			ip.lock.init("inode")
			d.inodes[i] = ip
			return ip
		}
	}
	if len(d.inodes) >= maxInodes {
		p.Error = ENOSPC
		return nil
	}
	ip := &inode{dev: ROOTDEV, inum: len(d.inodes), ref: 1, typ: typ}
	ip.lock.init("inode")
	d.inodes = append(d.inodes, ip)
	return ip
}

// iget returns an in-core reference to the numbered inode.
func (p *Proc) iget(dev, inum int) *inode {
	d := p.kern.disk
	d.lock.acquire(p.cpu)
	defer d.lock.release(p.cpu)
	if inum <= 0 || inum >= len(d.inodes) || d.inodes[inum] == nil {
		p.Error = ENOENT
		return nil
	}
	ip := d.inodes[inum]
	ip.ref++
	return ip
}

// idup increments the reference count on ip.
func (p *Proc) idup(ip *inode) *inode {
	d := p.kern.disk
	d.lock.acquire(p.cpu)
	ip.ref++
	d.lock.release(p.cpu)
	return ip
}

// iput drops a reference to ip. If that was the last reference and
// the inode has no links, the inode is freed.
func (p *Proc) iput(ip *inode) {
	if ip == nil {
		return
	}
	d := p.kern.disk
	d.lock.acquire(p.cpu)
	ip.ref--
	if ip.ref == 0 && ip.nlink == 0 {
		d.inodes[ip.inum] = nil
		ip.data = nil
	}
	d.lock.release(p.cpu)
}

func (p *Proc) ilock(ip *inode) {
	if ip == nil {
		panic("ilock")
	}
	p.acquireSleep(&ip.lock)
}

func (p *Proc) iunlock(ip *inode) {
	if ip == nil || !p.holdingSleep(&ip.lock) {
		panic("iunlock")
	}
	p.releaseSleep(&ip.lock)
}

func (p *Proc) iunlockput(ip *inode) {
	p.iunlock(ip)
	p.iput(ip)
}

// stati copies ip's metadata into st.
func stati(ip *inode, st *stat) {
	st.Dev = int32(ip.dev)
	st.Ino = uint32(ip.inum)
	st.Type = ip.typ
	st.Nlink = ip.nlink
	st.Size = uint64(len(ip.data))
}

// readi reads up to len(dst) bytes from ip at off.
// Returns the byte count, or -1 on error.
func (p *Proc) readi(ip *inode, dst []byte, off int) int {
	if ip.typ == T_DEV {
		if ip.major < 0 || ip.major >= NDEV || p.kern.devsw[ip.major].read == nil {
			return -1
		}
		return p.kern.devsw[ip.major].read(p, dst)
	}
	if off < 0 || off > len(ip.data) {
		return -1
	}
	return copy(dst, ip.data[off:])
}

// writei writes len(src) bytes to ip at off, growing the file if
// needed. Returns the byte count, or -1 on error.
func (p *Proc) writei(ip *inode, src []byte, off int) int {
	if ip.typ == T_DEV {
		if ip.major < 0 || ip.major >= NDEV || p.kern.devsw[ip.major].write == nil {
			return -1
		}
		return p.kern.devsw[ip.major].write(p, src)
	}
	if off < 0 || off > len(ip.data) || off+len(src) > MAXFILE {
		return -1
	}
	if need := off + len(src); need > len(ip.data) {
		ip.data = append(ip.data, make([]byte, need-len(ip.data))...)
	}
	return copy(ip.data[off:], src)
}

// dirlookup looks for a name in a directory and returns its inode
// number, or 0. Caller must hold dp's lock (or be boot-time setup).
func dirlookup(dp *inode, name string) int {
	for off := 0; off+direntSize <= len(dp.data); off += direntSize {
		ent := dp.data[off : off+direntSize]
		inum := int(binary.LittleEndian.Uint16(ent))
		if inum == 0 {
			continue
		}
		if entName(ent) == name {
			return inum
		}
	}
	return 0
}

// dirlink adds a name for inum to a directory, reusing a freed slot
// if one exists. Caller must hold dp's lock (or be boot-time setup).
func dirlink(dp *inode, name string, inum int) {
	ent := make([]byte, direntSize)
	binary.LittleEndian.PutUint16(ent, uint16(inum))
	copy(ent[2:], name)
	for off := 0; off+direntSize <= len(dp.data); off += direntSize {
		if binary.LittleEndian.Uint16(dp.data[off:]) == 0 {
			copy(dp.data[off:], ent)
			return
		}
	}
	dp.data = append(dp.data, ent...)
}

func entName(ent []byte) string {
	name := ent[2:direntSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return string(name)
}

// skipelem splits the first path element from path.
func skipelem(path string) (elem, rest string, ok bool) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", "", false
	}
	elem, rest, _ = strings.Cut(path, "/")
	if len(elem) > DIRSIZ {
		elem = elem[:DIRSIZ]
	}
	return elem, rest, true
}

// namex walks a path from the root or cwd. If parent is set it
// stops one element early, returning the directory and final name.
func (p *Proc) namex(path string, parent bool) (*inode, string) {
	var ip *inode
	if strings.HasPrefix(path, "/") {
		ip = p.iget(ROOTDEV, rootIno)
	} else {
		ip = p.idup(p.cwd)
	}
	for {
		elem, rest, ok := skipelem(path)
		if !ok {
			break
		}
		p.ilock(ip)
		if ip.typ != T_DIR {
			p.Error = ENOTDIR
			p.iunlockput(ip)
			return nil, ""
		}
		if parent && rest == "" {
			p.iunlock(ip)
			return ip, elem
		}
		inum := dirlookup(ip, elem)
		if inum == 0 {
			p.Error = ENOENT
			p.iunlockput(ip)
			return nil, ""
		}
		next := p.iget(ip.dev, inum)
		p.iunlockput(ip)
		ip = next
		path = rest
	}
	if parent {
		p.iput(ip)
		p.Error = ENOENT
		return nil, ""
	}
	return ip, ""
}

// namei resolves a path to an inode reference, or nil.
func (p *Proc) namei(path string) *inode {
	ip, _ := p.namex(path, false)
	return ip
}

// nameiparent resolves a path to its parent directory and final
// path element.
func (p *Proc) nameiparent(path string) (*inode, string) {
	return p.namex(path, true)
}
