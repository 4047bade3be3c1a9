// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

func sysExec(p *Proc) int64 {
	path, ok := p.argstr(0)
	if !ok {
		return -1
	}
	uargv := p.argint(1)

	var argv []string
	for i := 0; ; i++ {
		if i >= MAXARG {
			p.Error = E2BIG
			return -1
		}
		uarg, ok := p.fetchint(uargv + 8*uint64(i))
		if !ok {
			return -1
		}
		if uarg == 0 {
			break
		}
		s, ok := p.fetchstr(uint64(uarg))
		if !ok {
			return -1
		}
		argv = append(argv, s)
	}
	return p.exec(path, argv)
}

func sysYield(p *Proc) int64 {
	p.yield()
	return 0
}

func sysBrk(p *Proc) int64 {
	n := int64(p.argint(0))
	addr := p.sz
	if p.growproc(int(n)) < 0 {
		return -1
	}
	return int64(addr)
}

const cloneSIGCHLD = 17

func sysClone(p *Proc) int64 {
	flags := p.argint(0)
	p.argint(1) // childstk, ignored
	if flags != cloneSIGCHLD {
		// Anything fancier than a plain fork is unsupported.
		return -1
	}
	return int64(p.fork())
}

func sysWait4(p *Proc) int64 {
	pid := int64(p.argint(0))
	wstatus := p.argint(1)
	opt := p.argint(2)
	rusage := p.argint(3)

	// Only the "wait for any child" form is supported.
	if pid != -1 || wstatus != 0 || opt != 0 || rusage != 0 {
		return -1
	}
	return int64(p.wait())
}

func sysExit(p *Proc) int64 {
	p.exit(int(int64(p.argint(0))))
	panic("sysExit: exit returned")
}

func sysGettid(p *Proc) int64 {
	return int64(p.pid)
}

func sysIoctl(p *Proc) int64 {
	return 0
}

func sysSigprocmask(p *Proc) int64 {
	return 0
}
