package engine

import "github.com/pehrs/cowfs"

// FileDescriptor gives POSIX-like handle semantics over an inode: a mode,
// a cursor position, and a validity flag. If Valid is false, Inode is
// meaningless.
type FileDescriptor struct {
	Inode    int
	Mode     cowfs.Mode
	Position int
	Valid    bool
}

// descriptorTable allocates and tracks open descriptors by index, the
// same double-indirection the original source uses: closing one
// descriptor never disturbs another descriptor bound to the same inode
// (SPEC_FULL.md §3.11).
type descriptorTable struct {
	descriptors []FileDescriptor
}

func newDescriptorTable(maxOpen int) *descriptorTable {
	return &descriptorTable{descriptors: make([]FileDescriptor, maxOpen)}
}

func (dt *descriptorTable) allocate(inode int, mode cowfs.Mode) (int, bool) {
	for i := range dt.descriptors {
		if !dt.descriptors[i].Valid {
			dt.descriptors[i] = FileDescriptor{
				Inode:    inode,
				Mode:     mode,
				Position: 0,
				Valid:    true,
			}
			return i, true
		}
	}
	return -1, false
}

func (dt *descriptorTable) get(fd int) (*FileDescriptor, bool) {
	if fd < 0 || fd >= len(dt.descriptors) || !dt.descriptors[fd].Valid {
		return nil, false
	}
	return &dt.descriptors[fd], true
}

func (dt *descriptorTable) close(fd int) bool {
	if fd < 0 || fd >= len(dt.descriptors) || !dt.descriptors[fd].Valid {
		return false
	}
	dt.descriptors[fd].Valid = false
	return true
}
