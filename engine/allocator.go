package engine

import "github.com/pehrs/cowfs"

// allocator is the thin layer between the block table and the free-list
// manager described in spec.md §4.2: it turns free runs into individual
// initialised blocks and back.
type allocator struct {
	blocks *blockTable
	free   *freeList
}

func newAllocator(blocks *blockTable, free *freeList) *allocator {
	return &allocator{blocks: blocks, free: free}
}

// allocateBlock finds a best-fit run of length 1, shrinks or removes it,
// and initialises the chosen block. Refcount is left at 0: callers
// increment it in bulk once a whole chain has been built
// (incrementChainRefs), matching the original write path's ordering.
func (a *allocator) allocateBlock() (cowfs.BlockIndex, error) {
	run := a.free.bestFit(1)
	if run == nil {
		return cowfs.NilBlock, ErrOutOfSpace
	}

	idx := run.start
	if run.count > 1 {
		run.start++
		run.count--
	} else {
		a.free.remove(run)
	}

	b := a.blocks.get(idx)
	b.InUse = true
	b.Next = cowfs.NilBlock
	b.Refcount = 0

	return idx, nil
}

// freeBlock clears a block's header and payload. It intentionally does
// not return the block to the free list: per spec.md §4.2/§9, only the
// garbage collector re-lists blocks released this way. The write path's
// partial-allocation rollback relies on that being true.
func (a *allocator) freeBlock(i cowfs.BlockIndex) {
	if !a.blocks.valid(i) {
		return
	}
	a.blocks.get(i).reset()
}

// incrementChainRefs walks the chain from head, incrementing Refcount on
// every block. Used once per version, right after the chain is built.
func (a *allocator) incrementChainRefs(head cowfs.BlockIndex) {
	for i := head; a.blocks.valid(i); {
		b := a.blocks.get(i)
		b.Refcount++
		i = b.Next
	}
}

// decrementChainRefs walks the chain from head, decrementing Refcount on
// every block; any block whose count reaches zero is freed. The next
// pointer is captured before the block is reset, since reset clears it
// (spec.md §9: "capture next before zeroing the block").
func (a *allocator) decrementChainRefs(head cowfs.BlockIndex) {
	i := head
	for a.blocks.valid(i) {
		b := a.blocks.get(i)
		next := b.Next

		if b.Refcount > 0 {
			b.Refcount--
		}
		if b.Refcount == 0 {
			a.freeBlock(i)
			i = next
			continue
		}

		// Still referenced by another version's chain; stop here per
		// spec.md §4.6 step 4 (the sharing invariant this assumes is
		// weak in this design, see SPEC_FULL.md §3.8).
		break
	}
}
