// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"encoding/binary"
	"strings"
)

// Executables are a flat image behind a small header:
// magic, entry point, and total memory size. The image is loaded at
// virtual address 0; one page of stack is added above memsz.
const aoutMagic = 0x4B343641 // "A64K"

const aoutHdrSize = 24

type aoutHdr struct {
	entry uint64
	memsz uint64
}

func parseAout(data []byte) (aoutHdr, []byte, bool) {
	var h aoutHdr
	if len(data) < aoutHdrSize || binary.LittleEndian.Uint32(data) != aoutMagic {
		return h, nil, false
	}
	h.entry = binary.LittleEndian.Uint64(data[8:])
	h.memsz = binary.LittleEndian.Uint64(data[16:])
	image := data[aoutHdrSize:]
	if h.memsz < uint64(len(image)) || h.memsz > USERTOP || h.entry >= h.memsz {
		return h, nil, false
	}
	return h, image, true
}

// aoutImage wraps a flat binary in an executable header.
func aoutImage(prog []byte, entry, memsz uint64) []byte {
	b := make([]byte, aoutHdrSize, aoutHdrSize+len(prog))
	binary.LittleEndian.PutUint32(b, aoutMagic)
	binary.LittleEndian.PutUint64(b[8:], entry)
	binary.LittleEndian.PutUint64(b[16:], memsz)
	return append(b, prog...)
}

// exec replaces the current process image with the named program.
// On success it returns argc, delivered to the new image in x0,
// with the argv array's address in x1.
func (p *Proc) exec(path string, argv []string) int64 {
	k := p.kern
	c := p.cpu

	p.beginOp()
	ip := p.namei(path)
	if ip == nil {
		p.endOp()
		return -1
	}
	p.ilock(ip)
	if ip.typ != T_FILE {
		p.Error = EACCES
		p.iunlockput(ip)
		p.endOp()
		return -1
	}
	hdr, image, ok := parseAout(ip.data)
	if !ok {
		p.Error = ENOEXEC
		p.iunlockput(ip)
		p.endOp()
		return -1
	}

	// Build the new address space: the image at 0, then one page of
	// stack above it.
	pd := k.pgdirInit(c)
	if pd == nil {
		p.iunlockput(ip)
		p.endOp()
		return -1
	}
	sz := k.uvmAlloc(c, pd, 0, pgRoundUp(hdr.memsz)+PGSIZE)
	if sz == 0 || !pd.copyout(0, image) {
		k.vmFree(c, pd, 4)
		p.iunlockput(ip)
		p.endOp()
		return -1
	}
	p.iunlockput(ip)
	p.endOp()

	// Push argument strings, then the argv array, onto the stack.
	sp := sz
	uargv := make([]uint64, 0, len(argv)+1)
	for i := len(argv) - 1; i >= 0; i-- {
		sp -= uint64(len(argv[i])) + 1
		sp &^= 7
		if sp < sz-PGSIZE || !pd.copyout(sp, append([]byte(argv[i]), 0)) {
			k.vmFree(c, pd, 4)
			return -1
		}
		uargv = append(uargv, sp)
	}
	sp -= uint64(len(argv)+1) * 8
	if sp < sz-PGSIZE {
		k.vmFree(c, pd, 4)
		return -1
	}
	b := make([]byte, 0, (len(argv)+1)*8)
	for i := len(argv) - 1; i >= 0; i-- {
		b = binary.LittleEndian.AppendUint64(b, uargv[i])
	}
	b = binary.LittleEndian.AppendUint64(b, 0)
	if !pd.copyout(sp, b) {
		k.vmFree(c, pd, 4)
		return -1
	}

	// Commit to the new image.
	p.name = path[strings.LastIndex(path, "/")+1:]
	old := p.pgdir
	p.pgdir = pd
	p.sz = sz
	*p.tf = trapframe{}
	p.tf.ELR = hdr.entry
	p.tf.SP = sp
	p.tf.X[1] = sp // argv
	k.vmFree(c, old, 4)
	p.uvmSwitch()

	return int64(len(argv))
}
