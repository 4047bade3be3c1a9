// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

// A page is one frame of simulated physical memory.
type page [PGSIZE]byte

// kmem is the physical page allocator: a fixed arena of NPAGE frames
// and a free list. Kernel stacks, page-table nodes, and user memory
// all come from here, so exhaustion is shared across all three.
type kmem struct {
	lock     spinlock
	freelist []*page
	arena    []page
}

func (k *Kernel) kallocInit() {
	k.kmem.lock.init("kmem")
	k.kmem.arena = make([]page, NPAGE)
	k.kmem.freelist = make([]*page, 0, NPAGE)
	for i := range k.kmem.arena {
		k.kmem.freelist = append(k.kmem.freelist, &k.kmem.arena[i])
	}
}

// kalloc allocates one zeroed page, or nil if memory is exhausted.
func (k *Kernel) kalloc(c *cpu) *page {
	k.kmem.lock.acquire(c)
	n := len(k.kmem.freelist)
	if n == 0 {
		k.kmem.lock.release(c)
		return nil
	}
	pg := k.kmem.freelist[n-1]
	k.kmem.freelist = k.kmem.freelist[:n-1]
	k.kmem.lock.release(c)
	*pg = page{}
	return pg
}

func (k *Kernel) kfree(c *cpu, pg *page) {
	k.kmem.lock.acquire(c)
	k.kmem.freelist = append(k.kmem.freelist, pg)
	k.kmem.lock.release(c)
}

// freePages reports the number of free frames.
func (k *Kernel) freePages(c *cpu) int {
	k.kmem.lock.acquire(c)
	n := len(k.kmem.freelist)
	k.kmem.lock.release(c)
	return n
}
