package engine

import "errors"

// Sentinel errors returned by the engine. The original source signals
// every failure with an out-of-band int/bool return; this is the same
// policy expressed through Go's error channel instead: nothing is
// retried internally. A write that fails with ErrOutOfSpace frees the
// blocks it had already allocated but leaves them off the free list until
// the next GarbageCollect (see the write path notes in SPEC_FULL.md §4).
var (
	ErrFilenameTooLong   = errors.New("engine: filename too long")
	ErrFileExists        = errors.New("engine: file already exists")
	ErrFileNotFound      = errors.New("engine: file not found")
	ErrNoFreeInode       = errors.New("engine: no free inode available")
	ErrNoFreeDescriptor  = errors.New("engine: no free descriptor available")
	ErrInvalidDescriptor = errors.New("engine: invalid file descriptor")
	ErrWrongMode         = errors.New("engine: descriptor not opened for writing")
	ErrOutOfSpace        = errors.New("engine: allocator out of space")
	ErrCorruptChain      = errors.New("engine: block chain is corrupt")
	ErrVersionOutOfRange = errors.New("engine: version number out of range")
	ErrUnimplemented     = errors.New("engine: operation not implemented")
	ErrShortRead         = errors.New("engine: short read of previous version")
	ErrClosed            = errors.New("engine: filesystem is closed")
)
