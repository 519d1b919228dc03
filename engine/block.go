package engine

import "github.com/pehrs/cowfs"

// block is one entry of the block table. If InUse is false then Refcount
// is 0 and Next is cowfs.NilBlock.
type block struct {
	InUse    bool
	Next     cowfs.BlockIndex
	Refcount uint32
	Data     [cowfs.BlockSize]byte
}

// blockTable is the fixed-size array of data blocks backing every chain
// in the store. Index 0 is reserved: it is marked InUse forever and is
// never handed out by the allocator, so cowfs.NilBlock is unambiguous as
// an end-of-chain marker (SPEC_FULL.md §4).
type blockTable struct {
	blocks []block
}

func newBlockTable(totalBlocks int) *blockTable {
	bt := &blockTable{blocks: make([]block, totalBlocks)}
	if totalBlocks > 0 {
		bt.blocks[0].InUse = true
	}
	return bt
}

func (bt *blockTable) len() int {
	return len(bt.blocks)
}

func (bt *blockTable) valid(i cowfs.BlockIndex) bool {
	return i != cowfs.NilBlock && int(i) < len(bt.blocks)
}

func (bt *blockTable) get(i cowfs.BlockIndex) *block {
	return &bt.blocks[i]
}

// used reports the number of blocks currently marked in use, including
// the permanently reserved block 0.
func (bt *blockTable) used() int {
	n := 0
	for i := range bt.blocks {
		if bt.blocks[i].InUse {
			n++
		}
	}
	return n
}

// reset clears a block back to its unused state: no owner, no chain
// pointer, no refcount, zeroed payload. It does not add the block back
// to the free list; see allocator.freeBlock.
func (b *block) reset() {
	b.InUse = false
	b.Next = cowfs.NilBlock
	b.Refcount = 0
	for i := range b.Data {
		b.Data[i] = 0
	}
}
