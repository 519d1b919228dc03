package engine

import "github.com/pehrs/cowfs"

// cowWrite implements the copy-on-write write path of spec.md §4.4. now
// supplies the timestamp for the new VersionInfo (see SPEC_FULL.md §3.11
// for why it is injectable).
func cowWrite(bt *blockTable, alloc *allocator, ino *inode, fd *FileDescriptor, buf []byte, now func() string) (int, error) {
	n := len(buf)
	if n == 0 {
		return 0, nil
	}

	var delta struct{ start, size int }

	if ino.VersionCount == 0 || ino.Size == 0 {
		delta.start, delta.size = 0, n
	} else {
		oldSize := ino.Size
		old := make([]byte, oldSize)

		savedPos := fd.Position
		fd.Position = 0
		read, err := readChain(bt, ino, fd, old)
		fd.Position = savedPos
		if err != nil {
			return 0, err
		}
		if read < oldSize {
			return 0, ErrShortRead
		}

		delta.start, delta.size = detectDelta(old, buf)
	}

	if delta.size == 0 {
		fd.Position = n
		return n, nil
	}

	blocksNeeded := (n + cowfs.BlockSize - 1) / cowfs.BlockSize
	if blocksNeeded == 0 {
		blocksNeeded = 1
	}

	var head, tail cowfs.BlockIndex
	built := make([]cowfs.BlockIndex, 0, blocksNeeded)

	for i := 0; i < blocksNeeded; i++ {
		idx, err := alloc.allocateBlock()
		if err != nil {
			for _, b := range built {
				alloc.freeBlock(b)
			}
			return 0, err
		}
		built = append(built, idx)

		start := i * cowfs.BlockSize
		end := start + cowfs.BlockSize
		if end > n {
			end = n
		}
		copy(bt.get(idx).Data[:], buf[start:end])

		if i == 0 {
			head = idx
		} else {
			bt.get(tail).Next = idx
		}
		tail = idx
	}
	bt.get(tail).Next = cowfs.NilBlock

	ver := VersionInfo{
		VersionNumber: ino.VersionCount + 1,
		Timestamp:     now(),
		Size:          n,
		BlockIndex:    head,
		DeltaStart:    delta.start,
		DeltaSize:     delta.size,
		PrevVersion:   ino.VersionCount,
	}

	alloc.incrementChainRefs(head)

	ino.History = append(ino.History, ver)
	ino.FirstBlock = head
	ino.Size = n
	ino.VersionCount++

	fd.Position = n
	return n, nil
}
