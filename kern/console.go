// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import "io"

// The console is the CONSOLE major device: output goes to a
// caller-supplied writer, input arrives via Kernel.Input and is
// buffered until a process reads it.
type console struct {
	lock spinlock
	out  io.Writer
	buf  [128]byte // input ring buffer
	r    uint      // read index
	w    uint      // write index
}

func (k *Kernel) consoleInit(out io.Writer) {
	k.cons.lock.init("cons")
	k.cons.out = out
	k.devsw[CONSOLE].read = consoleRead
	k.devsw[CONSOLE].write = consoleWrite
}

// Input delivers input bytes to the console, waking any reader.
// It is the simulated keyboard interrupt.
func (k *Kernel) Input(b []byte) {
	k.intr.Lock()
	c := &k.intr.cpu
	cons := &k.cons
	cons.lock.acquire(c)
	for _, ch := range b {
		if cons.w-cons.r < uint(len(cons.buf)) {
			cons.buf[cons.w%uint(len(cons.buf))] = ch
			cons.w++
		}
	}
	cons.lock.release(c)
	k.wakeupAll(c, nil, &cons.r)
	k.intr.Unlock()
}

func consoleRead(p *Proc, dst []byte) int {
	cons := &p.kern.cons
	cons.lock.acquire(p.cpu)
	for cons.r == cons.w {
		if p.isKilled() {
			cons.lock.release(p.cpu)
			return -1
		}
		p.sleep(&cons.r, &cons.lock)
	}
	n := 0
	for n < len(dst) && cons.r != cons.w {
		dst[n] = cons.buf[cons.r%uint(len(cons.buf))]
		cons.r++
		n++
	}
	cons.lock.release(p.cpu)
	return n
}

func consoleWrite(p *Proc, src []byte) int {
	cons := &p.kern.cons
	n, err := cons.out.Write(src)
	if err != nil {
		return -1
	}
	return n
}
