// Package engine implements the single-volume, single-writer,
// copy-on-write block store described in SPEC_FULL.md: a fixed-size
// block table, a best-fit free-list allocator, an inode table carrying
// full version history per file, and a descriptor table giving
// POSIX-like handle semantics over it.
package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pehrs/cowfs"
)

const maxOpenDescriptors = cowfs.MaxFiles

// FileSystem is the facade over the whole engine: it owns the inode
// table, block table and free list exclusively, and is the only thing
// descriptors ever reach through.
type FileSystem struct {
	store    cowfs.ReadWriterAt
	diskSize int64

	totalBlocks int
	blocks      *blockTable
	free        *freeList
	alloc       *allocator
	inodes      *inodeTable
	descriptors *descriptorTable

	now    func() string
	closed bool
}

// NewFileSystem wraps store (any cowfs.ReadWriterAt) as a filesystem of
// diskSize bytes. If the first inode record can be read from store, the
// inode and block tables are loaded as-is (no header is validated);
// otherwise fresh tables are formatted in memory, and nothing is written
// to store until Shutdown. Version history does not round-trip an
// existing store — see SPEC_FULL.md §4.
func NewFileSystem(store cowfs.ReadWriterAt, diskSize int64) (*FileSystem, error) {
	totalBlocks := int(diskSize / cowfs.BlockSize)

	fsys := &FileSystem{
		store:       store,
		diskSize:    diskSize,
		totalBlocks: totalBlocks,
		blocks:      newBlockTable(totalBlocks),
		free:        newFreeList(),
		inodes:      newInodeTable(),
		descriptors: newDescriptorTable(maxOpenDescriptors),
		now:         defaultTimestamp,
	}
	fsys.alloc = newAllocator(fsys.blocks, fsys.free)

	loaded, err := fsys.tryLoad()
	if err != nil {
		return nil, err
	}
	if !loaded {
		fsys.format()
	}

	return fsys, nil
}

// OpenFile is the *os.File-backed convenience constructor: it opens path,
// creating it (and formatting it) if it does not already exist.
func OpenFile(path string, diskSize int64) (*FileSystem, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return NewFileSystem(f, diskSize)
}

func defaultTimestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// SetClock overrides the function used to stamp new versions; it exists
// for deterministic tests (SPEC_FULL.md §3.11).
func (fsys *FileSystem) SetClock(now func() time.Time) {
	fsys.now = func() string {
		return now().Format("2006-01-02 15:04:05")
	}
}

// String renders the same summary the original constructor used to print
// to stdout, for callers that want to log it (SPEC_FULL.md §3.11).
func (fsys *FileSystem) String() string {
	return fmt.Sprintf("engine.FileSystem{blocks=%d blockSize=%d maxFiles=%d}",
		fsys.totalBlocks, cowfs.BlockSize, cowfs.MaxFiles)
}

func (fsys *FileSystem) format() {
	fsys.free.seed(cowfs.BlockIndex(1), fsys.totalBlocks-1)
}

// Create allocates a fresh inode for name and opens it in WRITE mode at
// position 0.
func (fsys *FileSystem) Create(name string) (int, error) {
	if err := fsys.checkOpen(); err != nil {
		return -1, err
	}
	if len(name) > cowfs.MaxFilenameLen-1 {
		return -1, ErrFilenameTooLong
	}
	if _, ok := fsys.inodes.findByName(name); ok {
		return -1, ErrFileExists
	}

	idx := fsys.inodes.firstFree()
	if idx == -1 {
		return -1, ErrNoFreeInode
	}

	ino := fsys.inodes.get(idx)
	ino.reset()
	ino.InUse = true
	ino.Filename = name

	fd, ok := fsys.descriptors.allocate(idx, cowfs.ModeWrite)
	if !ok {
		ino.reset()
		return -1, ErrNoFreeDescriptor
	}
	return fd, nil
}

// Open locates name and returns a descriptor bound to it, positioned at
// 0 regardless of mode.
func (fsys *FileSystem) Open(name string, mode cowfs.Mode) (int, error) {
	if err := fsys.checkOpen(); err != nil {
		return -1, err
	}
	idx, ok := fsys.inodes.findByName(name)
	if !ok {
		return -1, ErrFileNotFound
	}

	fd, ok := fsys.descriptors.allocate(idx, mode)
	if !ok {
		return -1, ErrNoFreeDescriptor
	}
	return fd, nil
}

// Close invalidates fd. It does not affect the inode it was bound to,
// nor any other descriptor bound to the same inode.
func (fsys *FileSystem) Close(fd int) error {
	if err := fsys.checkOpen(); err != nil {
		return err
	}
	if !fsys.descriptors.close(fd) {
		return ErrInvalidDescriptor
	}
	return nil
}

// Read implements spec.md §4.5.
func (fsys *FileSystem) Read(fd int, buf []byte) (int, error) {
	if err := fsys.checkOpen(); err != nil {
		return 0, err
	}
	desc, ok := fsys.descriptors.get(fd)
	if !ok {
		return 0, ErrInvalidDescriptor
	}
	ino := fsys.inodes.get(desc.Inode)
	return readChain(fsys.blocks, ino, desc, buf)
}

// Write implements spec.md §4.4.
func (fsys *FileSystem) Write(fd int, buf []byte) (int, error) {
	if err := fsys.checkOpen(); err != nil {
		return 0, err
	}
	desc, ok := fsys.descriptors.get(fd)
	if !ok {
		return 0, ErrInvalidDescriptor
	}
	if desc.Mode != cowfs.ModeWrite {
		return 0, ErrWrongMode
	}
	if len(buf) == 0 {
		return 0, nil
	}
	ino := fsys.inodes.get(desc.Inode)
	return cowWrite(fsys.blocks, fsys.alloc, ino, desc, buf, fsys.now)
}

// ListFiles appends the filename of every in-use inode to out and
// returns the extended slice.
func (fsys *FileSystem) ListFiles(out []string) []string {
	return append(out, fsys.inodes.names()...)
}

// GetFileSize returns the current logical size of the file fd is bound
// to, or -1 if fd is invalid.
func (fsys *FileSystem) GetFileSize(fd int) int {
	desc, ok := fsys.descriptors.get(fd)
	if !ok {
		return -1
	}
	return fsys.inodes.get(desc.Inode).Size
}

// GetVersionCount returns the number of versions recorded for the file
// fd is bound to, or 0 if fd is invalid.
func (fsys *FileSystem) GetVersionCount(fd int) uint32 {
	desc, ok := fsys.descriptors.get(fd)
	if !ok {
		return 0
	}
	return fsys.inodes.get(desc.Inode).VersionCount
}

// GetVersionHistory returns the ordered version history for the file fd
// is bound to; an invalid fd yields an empty (nil) list.
func (fsys *FileSystem) GetVersionHistory(fd int) []VersionInfo {
	desc, ok := fsys.descriptors.get(fd)
	if !ok {
		return nil
	}
	return versionHistory(fsys.inodes.get(desc.Inode))
}

// FileStatus is a snapshot of the projection get_file_status exposes.
type FileStatus struct {
	Filename     string
	Size         int
	VersionCount uint32
	Mode         cowfs.Mode
	Position     int
}

// GetFileStatus projects the descriptor and its bound inode into a
// FileStatus, or false if fd is invalid.
func (fsys *FileSystem) GetFileStatus(fd int) (FileStatus, bool) {
	desc, ok := fsys.descriptors.get(fd)
	if !ok {
		return FileStatus{}, false
	}
	ino := fsys.inodes.get(desc.Inode)
	return FileStatus{
		Filename:     ino.Filename,
		Size:         ino.Size,
		VersionCount: ino.VersionCount,
		Mode:         desc.Mode,
		Position:     desc.Position,
	}, true
}

// GetTotalMemoryUsage returns BlockSize * the number of in-use blocks,
// spec.md invariant 5.
func (fsys *FileSystem) GetTotalMemoryUsage() int {
	return cowfs.BlockSize * fsys.blocks.used()
}

// RollbackToVersion implements spec.md §4.6.
func (fsys *FileSystem) RollbackToVersion(fd int, v uint32) error {
	if err := fsys.checkOpen(); err != nil {
		return err
	}
	desc, ok := fsys.descriptors.get(fd)
	if !ok {
		return ErrInvalidDescriptor
	}
	ino := fsys.inodes.get(desc.Inode)
	return rollbackToVersion(fsys.alloc, ino, desc, v)
}

// RevertToVersion is reserved but unimplemented in the source system
// this store is modeled on; it always fails (SPEC_FULL.md §4).
func (fsys *FileSystem) RevertToVersion(fd int, v uint32) error {
	return ErrUnimplemented
}

// GarbageCollect implements spec.md §4.7.
func (fsys *FileSystem) GarbageCollect() {
	garbageCollect(fsys.blocks, fsys.alloc, fsys.free, fsys.inodes)
}

func (fsys *FileSystem) checkOpen() error {
	if fsys.closed {
		return ErrClosed
	}
	return nil
}

// onDiskInode mirrors the persisted inode record of spec.md §6: it omits
// History, which does not round-trip a restart.
type onDiskInode struct {
	InUse        bool
	Filename     [cowfs.MaxFilenameLen]byte
	FirstBlock   uint32
	Size         uint64
	VersionCount uint32
}

// onDiskBlockHeader mirrors the persisted block record's fixed header;
// the payload follows immediately after in the stream.
type onDiskBlockHeader struct {
	InUse    bool
	Next     uint32
	Refcount uint32
}

// Shutdown flushes the inode and block tables back to the backing store
// and marks the facade unusable for further operations. It is distinct
// from Close(fd), which only invalidates one descriptor; this mirrors
// the original's separate destructor and per-file close operation
// (SPEC_FULL.md §3.10).
func (fsys *FileSystem) Shutdown() error {
	if fsys.closed {
		return nil
	}
	if err := fsys.flushInodes(); err != nil {
		return err
	}
	if err := fsys.flushBlocks(); err != nil {
		return err
	}
	fsys.closed = true
	return nil
}

func (fsys *FileSystem) flushInodes() error {
	off := int64(0)
	for i := range fsys.inodes.inodes {
		ino := &fsys.inodes.inodes[i]
		rec := onDiskInode{
			InUse:        ino.InUse,
			FirstBlock:   uint32(ino.FirstBlock),
			Size:         uint64(ino.Size),
			VersionCount: ino.VersionCount,
		}
		copy(rec.Filename[:], ino.Filename)

		buf := make([]byte, onDiskInodeSize)
		encodeInode(buf, &rec)
		if _, err := fsys.store.WriteAt(buf, off); err != nil {
			return err
		}
		off += onDiskInodeSize
	}
	return nil
}

func (fsys *FileSystem) flushBlocks() error {
	off := int64(cowfs.MaxFiles) * onDiskInodeSize
	for i := range fsys.blocks.blocks {
		b := &fsys.blocks.blocks[i]
		hdr := onDiskBlockHeader{InUse: b.InUse, Next: uint32(b.Next), Refcount: b.Refcount}

		buf := make([]byte, onDiskBlockHeaderSize+cowfs.BlockSize)
		encodeBlockHeader(buf, &hdr)
		copy(buf[onDiskBlockHeaderSize:], b.Data[:])

		if _, err := fsys.store.WriteAt(buf, off); err != nil {
			return err
		}
		off += int64(len(buf))
	}
	return nil
}

// tryLoad attempts to read a previously formatted header from the store.
// It reports (false, nil) when the first inode record cannot be read
// because the store ends (io.EOF), which is treated the same as "no
// backing file existed yet" in the original. A store that holds the first
// record but ends before the rest of the layout is reported as an error.
func (fsys *FileSystem) tryLoad() (bool, error) {
	probe := make([]byte, onDiskInodeSize)
	_, err := fsys.store.ReadAt(probe, 0)
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}

	off := int64(0)
	for i := range fsys.inodes.inodes {
		buf := make([]byte, onDiskInodeSize)
		if _, err := fsys.store.ReadAt(buf, off); err != nil {
			return false, err
		}
		rec := decodeInode(buf)

		ino := &fsys.inodes.inodes[i]
		ino.InUse = rec.InUse
		ino.Filename = cStringFromBytes(rec.Filename[:])
		ino.FirstBlock = cowfs.BlockIndex(rec.FirstBlock)
		ino.Size = int(rec.Size)
		ino.VersionCount = rec.VersionCount
		ino.History = nil
		if ino.InUse && ino.VersionCount > 0 {
			// History is not persisted (SPEC_FULL.md §4): synthesize a
			// single entry summarising the current head so
			// GetVersionHistory/RollbackToVersion still see a
			// consistent, dense history for the loaded state.
			ino.History = []VersionInfo{{
				VersionNumber: 1,
				Size:          ino.Size,
				BlockIndex:    ino.FirstBlock,
				DeltaSize:     ino.Size,
			}}
			ino.VersionCount = 1
		}

		off += onDiskInodeSize
	}

	for i := range fsys.blocks.blocks {
		buf := make([]byte, onDiskBlockHeaderSize+cowfs.BlockSize)
		if _, err := fsys.store.ReadAt(buf, off); err != nil {
			return false, err
		}
		hdr := decodeBlockHeader(buf)

		b := &fsys.blocks.blocks[i]
		b.InUse = hdr.InUse
		b.Next = cowfs.BlockIndex(hdr.Next)
		b.Refcount = hdr.Refcount
		copy(b.Data[:], buf[onDiskBlockHeaderSize:])

		off += int64(len(buf))
	}

	fsys.rebuildFreeList()

	return true, nil
}

// rebuildFreeList treats every unused block, other than the reserved
// block 0, as free on load; this mirrors what GarbageCollect would
// produce from the persisted in-use flags.
func (fsys *FileSystem) rebuildFreeList() {
	start := -1
	for i := 0; i <= fsys.blocks.len(); i++ {
		freeHere := i > 0 && i < fsys.blocks.len() && !fsys.blocks.blocks[i].InUse
		if freeHere && start == -1 {
			start = i
			continue
		}
		if !freeHere && start != -1 {
			fsys.free.add(cowfs.BlockIndex(start), i-start)
			start = -1
		}
	}
}

const onDiskInodeSize = 1 + cowfs.MaxFilenameLen + 4 + 8 + 4
const onDiskBlockHeaderSize = 1 + 4 + 4

func encodeInode(buf []byte, rec *onDiskInode) {
	buf[0] = boolByte(rec.InUse)
	copy(buf[1:1+cowfs.MaxFilenameLen], rec.Filename[:])
	off := 1 + cowfs.MaxFilenameLen
	binary.LittleEndian.PutUint32(buf[off:], rec.FirstBlock)
	binary.LittleEndian.PutUint64(buf[off+4:], rec.Size)
	binary.LittleEndian.PutUint32(buf[off+12:], rec.VersionCount)
}

func decodeInode(buf []byte) onDiskInode {
	var rec onDiskInode
	rec.InUse = buf[0] != 0
	copy(rec.Filename[:], buf[1:1+cowfs.MaxFilenameLen])
	off := 1 + cowfs.MaxFilenameLen
	rec.FirstBlock = binary.LittleEndian.Uint32(buf[off:])
	rec.Size = binary.LittleEndian.Uint64(buf[off+4:])
	rec.VersionCount = binary.LittleEndian.Uint32(buf[off+12:])
	return rec
}

func encodeBlockHeader(buf []byte, hdr *onDiskBlockHeader) {
	buf[0] = boolByte(hdr.InUse)
	binary.LittleEndian.PutUint32(buf[1:], hdr.Next)
	binary.LittleEndian.PutUint32(buf[5:], hdr.Refcount)
}

func decodeBlockHeader(buf []byte) onDiskBlockHeader {
	var hdr onDiskBlockHeader
	hdr.InUse = buf[0] != 0
	hdr.Next = binary.LittleEndian.Uint32(buf[1:])
	hdr.Refcount = binary.LittleEndian.Uint32(buf[5:])
	return hdr
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func cStringFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

