// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

// A pagedir is a user address space: a 4-level page table mapping
// virtual addresses [0, sz) onto frames from the physical arena.
// Table nodes charge a frame apiece, like the real thing, so page
// tables and data pages compete for the same memory.
type pagedir struct {
	root *ptable
}

type ptable struct {
	pg    *page        // backing frame, for accounting
	sub   [512]*ptable // levels 4..2
	frame [512]*page   // level 1 (leaf) entries
}

// index extracts the 9-bit table index for the given level;
// level 4 is the root, level 1 the leaf.
func index(va uint64, level int) int {
	return int(va >> (12 + 9*(level-1)) & 511)
}

func (k *Kernel) newPtable(c *cpu) *ptable {
	pg := k.kalloc(c)
	if pg == nil {
		return nil
	}
	return &ptable{pg: pg}
}

// pgdirInit allocates an empty user page table,
// or returns nil if out of memory.
func (k *Kernel) pgdirInit(c *cpu) *pagedir {
	t := k.newPtable(c)
	if t == nil {
		return nil
	}
	return &pagedir{root: t}
}

// walk returns the leaf slot for va, allocating intermediate tables
// if alloc is set. Returns nil if va is unmapped (or on allocation
// failure).
func (k *Kernel) walk(c *cpu, pd *pagedir, va uint64, alloc bool) **page {
	if va >= USERTOP {
		return nil
	}
	t := pd.root
	for level := 4; level > 1; level-- {
		next := t.sub[index(va, level)]
		if next == nil {
			if !alloc {
				return nil
			}
			if next = k.newPtable(c); next == nil {
				return nil
			}
			t.sub[index(va, level)] = next
		}
		t = next
	}
	return &t.frame[index(va, 1)]
}

// lookup returns the frame mapped at va, or nil.
func (pd *pagedir) lookup(va uint64) *page {
	t := pd.root
	for level := 4; level > 1; level-- {
		if t = t.sub[index(va, level)]; t == nil {
			return nil
		}
	}
	return t.frame[index(va, 1)]
}

// uvmInit writes the boot image into the first page of an empty
// page table. Used only for the initcode, which must fit in a page.
func (k *Kernel) uvmInit(c *cpu, pd *pagedir, src []byte) {
	if len(src) > PGSIZE {
		panic("uvmInit: more than a page")
	}
	slot := k.walk(c, pd, 0, true)
	if slot == nil || *slot != nil {
		panic("uvmInit: bad page table")
	}
	pg := k.kalloc(c)
	if pg == nil {
		panic("uvmInit: out of memory")
	}
	copy(pg[:], src)
	*slot = pg
}

// uvmAlloc grows an address space from oldsz to newsz, allocating
// and mapping zeroed frames. Returns the new size, or 0 on failure
// with the original mappings intact.
func (k *Kernel) uvmAlloc(c *cpu, pd *pagedir, oldsz, newsz uint64) uint64 {
	if newsz < oldsz {
		return oldsz
	}
	if newsz > USERTOP {
		return 0
	}
	for va := pgRoundUp(oldsz); va < newsz; va += PGSIZE {
		slot := k.walk(c, pd, va, true)
		var pg *page
		if slot != nil {
			pg = k.kalloc(c)
		}
		if slot == nil || pg == nil {
			k.uvmDealloc(c, pd, va, oldsz)
			return 0
		}
		*slot = pg
	}
	return newsz
}

// uvmDealloc shrinks an address space from oldsz to newsz, freeing
// the frames beyond newsz. Returns the new size.
func (k *Kernel) uvmDealloc(c *cpu, pd *pagedir, oldsz, newsz uint64) uint64 {
	if newsz >= oldsz {
		return oldsz
	}
	for va := pgRoundUp(newsz); va < oldsz; va += PGSIZE {
		if slot := k.walk(c, pd, va, false); slot != nil && *slot != nil {
			k.kfree(c, *slot)
			*slot = nil
		}
	}
	return newsz
}

// uvmCopy copies a parent's address space into an empty child page
// table. Returns 0 on success, -1 on failure; on failure the caller
// frees the child's whole page table.
func (k *Kernel) uvmCopy(c *cpu, src, dst *pagedir, sz uint64) int {
	for va := uint64(0); va < sz; va += PGSIZE {
		from := src.lookup(va)
		if from == nil {
			panic("uvmCopy: page not present")
		}
		slot := k.walk(c, dst, va, true)
		var pg *page
		if slot != nil {
			pg = k.kalloc(c)
		}
		if slot == nil || pg == nil {
			return -1
		}
		*pg = *from
		*slot = pg
	}
	return 0
}

// uvmSwitch makes p's page table the active one on its CPU,
// the moral equivalent of loading TTBR0.
func (p *Proc) uvmSwitch() {
	p.cpu.pgdir = p.pgdir
}

// vmFree releases a page table and every frame it maps.
// levels is the height of the tree being freed.
func (k *Kernel) vmFree(c *cpu, pd *pagedir, levels int) {
	k.freeTable(c, pd.root, levels)
	pd.root = nil
}

func (k *Kernel) freeTable(c *cpu, t *ptable, level int) {
	if t == nil {
		return
	}
	if level > 1 {
		for _, sub := range t.sub {
			k.freeTable(c, sub, level-1)
		}
	} else {
		for _, pg := range t.frame {
			if pg != nil {
				k.kfree(c, pg)
			}
		}
	}
	k.kfree(c, t.pg)
}

func pgRoundUp(v uint64) uint64 {
	return (v + PGSIZE - 1) &^ (PGSIZE - 1)
}

// copyin copies len(dst) bytes out of user memory at va.
// It reports whether the whole range was mapped.
func (pd *pagedir) copyin(dst []byte, va uint64) bool {
	for len(dst) > 0 {
		pg := pd.lookup(va)
		if pg == nil {
			return false
		}
		off := va % PGSIZE
		n := copy(dst, pg[off:])
		dst = dst[n:]
		va += uint64(n)
	}
	return true
}

// copyout copies src into user memory at va.
// It reports whether the whole range was mapped.
func (pd *pagedir) copyout(va uint64, src []byte) bool {
	for len(src) > 0 {
		pg := pd.lookup(va)
		if pg == nil {
			return false
		}
		off := va % PGSIZE
		n := copy(pg[off:], src)
		src = src[n:]
		va += uint64(n)
	}
	return true
}
