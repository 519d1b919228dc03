package engine

import "github.com/pehrs/cowfs"

// versionHistory returns a copy of ino's history in ascending version
// order, which is how it is always stored (spec.md invariant 1).
func versionHistory(ino *inode) []VersionInfo {
	out := make([]VersionInfo, len(ino.History))
	copy(out, ino.History)
	return out
}

// rollbackToVersion implements spec.md §4.6: prune every version after v,
// releasing the discarded chains' exclusive blocks, and rewind the inode
// (and descriptor position) to the target version.
func rollbackToVersion(alloc *allocator, ino *inode, fd *FileDescriptor, v uint32) error {
	if v < 1 || v > ino.VersionCount {
		return ErrVersionOutOfRange
	}

	var target *VersionInfo
	kept := make([]VersionInfo, 0, v)
	discarded := make([]VersionInfo, 0, len(ino.History))

	for i := range ino.History {
		entry := ino.History[i]
		if entry.VersionNumber <= v {
			kept = append(kept, entry)
			if entry.VersionNumber == v {
				target = &kept[len(kept)-1]
			}
			continue
		}
		discarded = append(discarded, entry)
	}
	if target == nil {
		return ErrVersionOutOfRange
	}
	targetSize, targetBlock := target.Size, target.BlockIndex

	for _, entry := range discarded {
		alloc.decrementChainRefs(entry.BlockIndex)
	}

	ino.History = kept
	ino.FirstBlock = targetBlock
	ino.Size = targetSize
	ino.VersionCount = v

	if fd.Mode == cowfs.ModeWrite {
		fd.Position = targetSize
	} else {
		fd.Position = 0
	}

	return nil
}
