package engine

import "github.com/pehrs/cowfs"

// readChain walks ino's current chain starting at ino.FirstBlock,
// honouring the descriptor's position and the inode's logical size, and
// copies up to len(buf) bytes into buf. It is spec.md §4.5 verbatim.
func readChain(bt *blockTable, ino *inode, fd *FileDescriptor, buf []byte) (int, error) {
	if ino.Size == 0 {
		return 0, nil
	}
	if !bt.valid(ino.FirstBlock) || !bt.get(ino.FirstBlock).InUse {
		return 0, ErrCorruptChain
	}

	avail := ino.Size - fd.Position
	if avail < 0 {
		avail = 0
	}
	toRead := len(buf)
	if avail < toRead {
		toRead = avail
	}
	if toRead == 0 {
		return 0, nil
	}

	skip := fd.Position / cowfs.BlockSize
	offset := fd.Position % cowfs.BlockSize

	cur := ino.FirstBlock
	for s := 0; s < skip; s++ {
		if !bt.valid(cur) {
			return 0, ErrCorruptChain
		}
		b := bt.get(cur)
		if !b.InUse {
			return 0, ErrCorruptChain
		}
		cur = b.Next
	}

	written := 0
	for written < toRead {
		if !bt.valid(cur) {
			return written, ErrCorruptChain
		}
		b := bt.get(cur)
		if !b.InUse {
			return written, ErrCorruptChain
		}

		chunk := toRead - written
		if max := cowfs.BlockSize - offset; chunk > max {
			chunk = max
		}
		copy(buf[written:written+chunk], b.Data[offset:offset+chunk])
		written += chunk
		offset = 0
		cur = b.Next
	}

	fd.Position += written
	return written, nil
}
