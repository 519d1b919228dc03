package engine

import "github.com/pehrs/cowfs"

// VersionInfo is an immutable record of one write. It is owned by its
// inode's history and never mutated after being appended.
type VersionInfo struct {
	VersionNumber uint32
	Timestamp     string
	Size          int
	BlockIndex    cowfs.BlockIndex
	DeltaStart    int
	DeltaSize     int
	PrevVersion   uint32
}

// inode is a per-file metadata record. If InUse is false every other
// field is zero/empty.
type inode struct {
	InUse        bool
	Filename     string
	FirstBlock   cowfs.BlockIndex
	Size         int
	VersionCount uint32
	History      []VersionInfo
}

func (ino *inode) reset() {
	ino.InUse = false
	ino.Filename = ""
	ino.FirstBlock = cowfs.NilBlock
	ino.Size = 0
	ino.VersionCount = 0
	ino.History = nil
}

// inodeTable is the fixed-size array of file metadata records.
type inodeTable struct {
	inodes [cowfs.MaxFiles]inode
}

func newInodeTable() *inodeTable {
	it := &inodeTable{}
	for i := range it.inodes {
		it.inodes[i].reset()
	}
	return it
}

// findByName performs the linear scan over in-use entries that both
// create (duplicate check) and open (lookup) share, matching
// find_inode in the original source (SPEC_FULL.md §3.11).
func (it *inodeTable) findByName(name string) (int, bool) {
	for i := range it.inodes {
		if it.inodes[i].InUse && it.inodes[i].Filename == name {
			return i, true
		}
	}
	return -1, false
}

// firstFree returns the index of the first unused inode slot, or -1.
func (it *inodeTable) firstFree() int {
	for i := range it.inodes {
		if !it.inodes[i].InUse {
			return i
		}
	}
	return -1
}

func (it *inodeTable) get(i int) *inode {
	return &it.inodes[i]
}

func (it *inodeTable) names() []string {
	var out []string
	for i := range it.inodes {
		if it.inodes[i].InUse {
			out = append(out, it.inodes[i].Filename)
		}
	}
	return out
}
