// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

/*
 * tunable variables
 */
const (
	NPROC   = 64      /* max number of processes */
	NCPU    = 8       /* max number of CPUs */
	NOFILE  = 16      /* open files per process */
	NFILE   = 100     /* open files per system */
	NDEV    = 10      /* maximum major device number */
	NPAGE   = 2048    /* pages of simulated physical memory */
	MAXARG  = 32      /* max exec arguments */
	ROOTDEV = 1       /* device number of root disk */
	MAXFILE = 1 << 20 /* largest file size in bytes */
	DIRSIZ  = 14      /* max length of a directory entry name */
	QUANTUM = 100     /* user instructions per timer tick */
	MAXOPS  = 3       /* max concurrent filesystem operations */
	PGSIZE  = 4096    /* bytes per page */
	USERTOP = 1 << 30 /* max user address space size */
)

/*
 * device majors
 */
const (
	CONSOLE = 1
)
