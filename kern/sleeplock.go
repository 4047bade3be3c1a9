// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

// A sleeplock is a long-term lock: a process that finds it taken
// sleeps instead of spinning, so it is safe to hold across
// operations that themselves sleep. Used for inode locks.
type sleeplock struct {
	lk     spinlock
	locked bool
	pid    int // holder, for debugging
}

func (sl *sleeplock) init(name string) {
	sl.lk.init(name)
}

func (p *Proc) acquireSleep(sl *sleeplock) {
	sl.lk.acquire(p.cpu)
	for sl.locked {
		p.sleep(sl, &sl.lk)
	}
	sl.locked = true
	sl.pid = p.pid
	sl.lk.release(p.cpu)
}

func (p *Proc) releaseSleep(sl *sleeplock) {
	sl.lk.acquire(p.cpu)
	sl.locked = false
	sl.pid = 0
	sl.lk.release(p.cpu)
	p.wakeup(sl)
}

func (p *Proc) holdingSleep(sl *sleeplock) bool {
	sl.lk.acquire(p.cpu)
	h := sl.locked && sl.pid == p.pid
	sl.lk.release(p.cpu)
	return h
}
