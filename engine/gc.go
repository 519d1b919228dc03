package engine

import "github.com/pehrs/cowfs"

// garbageCollect implements the mark/sweep pass of spec.md §4.7. It marks
// every block reachable from a live version's chain with a positive
// refcount, sweeps unmarked blocks back into the free list in maximal
// runs, and finishes with a coalesce. This is the only path that
// recovers blocks the write path's failure handler released without
// re-listing (SPEC_FULL.md §4).
func garbageCollect(bt *blockTable, alloc *allocator, free *freeList, inodes *inodeTable) {
	live := make([]bool, bt.len())

	for i := range inodes.inodes {
		ino := &inodes.inodes[i]
		if !ino.InUse {
			continue
		}
		for _, ver := range ino.History {
			markChain(bt, live, ver.BlockIndex)
		}
	}
	live[0] = true // block 0 is permanently reserved, never swept

	// The free list is rebuilt from scratch here (spec.md §4.7): this is
	// the only path that recovers blocks the write path's failure
	// handler, or rollback, released without re-listing them, and
	// leaving stale entries in place would double-list blocks that were
	// already free before this pass.
	free.head = nil

	start := -1
	for i := 0; i <= len(live); i++ {
		freeHere := i < len(live) && !live[i]
		if freeHere && start == -1 {
			start = i
			continue
		}
		if !freeHere && start != -1 {
			for j := start; j < i; j++ {
				alloc.freeBlock(cowfs.BlockIndex(j))
			}
			free.add(cowfs.BlockIndex(start), i-start)
			start = -1
		}
	}

	free.coalesce()
}

func markChain(bt *blockTable, live []bool, head cowfs.BlockIndex) {
	for i := head; bt.valid(i); {
		b := bt.get(i)
		if b.Refcount == 0 {
			return
		}
		live[i] = true
		i = b.Next
	}
}
