package engine

import (
	"testing"
	"time"

	"github.com/pehrs/cowfs"
	"github.com/stretchr/testify/require"
)

const testDiskSize = 64 * 1024 // 64 KiB => 16 blocks

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	fsys, err := NewFileSystem(&memStore{}, testDiskSize)
	require.NoError(t, err)
	fsys.SetClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	return fsys
}

func TestScenario1_CreateWriteReadBack(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("a.txt")
	r.NoError(err)

	n, err := fsys.Write(fd, []byte("hello"))
	r.NoError(err)
	r.Equal(5, n)
	r.NoError(fsys.Close(fd))

	fd, err = fsys.Open("a.txt", cowfs.ModeRead)
	r.NoError(err)

	buf := make([]byte, 5)
	n, err = fsys.Read(fd, buf)
	r.NoError(err)
	r.Equal(5, n)
	r.Equal("hello", string(buf))
	r.Equal(uint32(1), fsys.GetVersionCount(fd))
}

func TestScenario2_IdenticalRewriteNoNewVersion(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("a.txt")
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hello"))
	r.NoError(err)

	n, err := fsys.Write(fd, []byte("hello"))
	r.NoError(err)
	r.Equal(5, n)
	r.Equal(uint32(1), fsys.GetVersionCount(fd))
}

func TestScenario3_AppendDelta(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("a.txt")
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hello"))
	r.NoError(err)

	n, err := fsys.Write(fd, []byte("hello world"))
	r.NoError(err)
	r.Equal(11, n)
	r.Equal(uint32(2), fsys.GetVersionCount(fd))

	hist := fsys.GetVersionHistory(fd)
	r.Len(hist, 2)
	r.Equal(5, hist[1].DeltaStart)
	r.Equal(6, hist[1].DeltaSize)

	buf := make([]byte, 11)
	fd2, err := fsys.Open("a.txt", cowfs.ModeRead)
	r.NoError(err)
	n, err = fsys.Read(fd2, buf)
	r.NoError(err)
	r.Equal(11, n)
	r.Equal("hello world", string(buf))
}

func TestScenario4_MiddleEditThenRollback(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("a.txt")
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hello"))
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hello world"))
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hellX world"))
	r.NoError(err)
	r.Equal(uint32(3), fsys.GetVersionCount(fd))

	hist := fsys.GetVersionHistory(fd)
	r.Equal(4, hist[2].DeltaStart)
	r.Equal(1, hist[2].DeltaSize)

	r.NoError(fsys.RollbackToVersion(fd, 1))
	r.Equal(uint32(1), fsys.GetVersionCount(fd))
	r.Equal(5, fsys.GetFileSize(fd))

	// Rollback leaves a WRITE descriptor positioned at the target size, so
	// read the rolled-back content through a fresh READ descriptor.
	fdR, err := fsys.Open("a.txt", cowfs.ModeRead)
	r.NoError(err)
	buf := make([]byte, 5)
	n, err := fsys.Read(fdR, buf)
	r.NoError(err)
	r.Equal(5, n)
	r.Equal("hello", string(buf))
}

func TestScenario6_TwoFilesListed(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fdA, err := fsys.Create("a")
	r.NoError(err)
	_, err = fsys.Write(fdA, []byte("contents of a"))
	r.NoError(err)
	r.NoError(fsys.Close(fdA))

	fdB, err := fsys.Create("b")
	r.NoError(err)
	_, err = fsys.Write(fdB, []byte("contents of b, longer"))
	r.NoError(err)
	r.NoError(fsys.Close(fdB))

	names := fsys.ListFiles(nil)
	r.ElementsMatch([]string{"a", "b"}, names)

	fdA, err = fsys.Open("a", cowfs.ModeRead)
	r.NoError(err)
	bufA := make([]byte, len("contents of a"))
	_, err = fsys.Read(fdA, bufA)
	r.NoError(err)
	r.Equal("contents of a", string(bufA))

	fdB, err = fsys.Open("b", cowfs.ModeRead)
	r.NoError(err)
	bufB := make([]byte, len("contents of b, longer"))
	_, err = fsys.Read(fdB, bufB)
	r.NoError(err)
	r.Equal("contents of b, longer", string(bufB))
}

func TestCreateCloseOpenReadYieldsZeroBytes(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("empty.txt")
	r.NoError(err)
	r.NoError(fsys.Close(fd))

	fd, err = fsys.Open("empty.txt", cowfs.ModeRead)
	r.NoError(err)

	buf := make([]byte, 10)
	n, err := fsys.Read(fd, buf)
	r.NoError(err)
	r.Equal(0, n)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	_, err := fsys.Create("dup")
	r.NoError(err)

	_, err = fsys.Create("dup")
	r.ErrorIs(err, ErrFileExists)
}

func TestCreateNameTooLong(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	name := make([]byte, cowfs.MaxFilenameLen)
	for i := range name {
		name[i] = 'x'
	}

	_, err := fsys.Create(string(name))
	r.ErrorIs(err, ErrFilenameTooLong)
}

func TestWriteWrongModeFails(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("a")
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hi"))
	r.NoError(err)
	r.NoError(fsys.Close(fd))

	fd, err = fsys.Open("a", cowfs.ModeRead)
	r.NoError(err)

	_, err = fsys.Write(fd, []byte("nope"))
	r.ErrorIs(err, ErrWrongMode)
}

func TestInvalidDescriptor(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	_, err := fsys.Read(999, make([]byte, 1))
	r.ErrorIs(err, ErrInvalidDescriptor)

	_, err = fsys.Write(999, []byte("x"))
	r.ErrorIs(err, ErrInvalidDescriptor)

	err = fsys.Close(999)
	r.ErrorIs(err, ErrInvalidDescriptor)
}

func TestRevertToVersionAlwaysFails(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("a")
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hi"))
	r.NoError(err)

	err = fsys.RevertToVersion(fd, 1)
	r.ErrorIs(err, ErrUnimplemented)
}

func TestRollbackVersionOutOfRange(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("a")
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hi"))
	r.NoError(err)

	err = fsys.RollbackToVersion(fd, 0)
	r.ErrorIs(err, ErrVersionOutOfRange)

	err = fsys.RollbackToVersion(fd, 5)
	r.ErrorIs(err, ErrVersionOutOfRange)
}

func TestTotalMemoryUsageAccountsForReservedBlockZero(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	// Block 0 is permanently reserved and counted as in use.
	r.Equal(cowfs.BlockSize, fsys.GetTotalMemoryUsage())

	fd, err := fsys.Create("a")
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hello"))
	r.NoError(err)

	r.Equal(2*cowfs.BlockSize, fsys.GetTotalMemoryUsage())
}

func TestFillDiskThenGCRecoversSpace(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}

	fd, err := fsys.Create("big")
	r.NoError(err)

	writes := 0
	for {
		_, err := fsys.Write(fd, payload)
		if err != nil {
			r.ErrorIs(err, ErrOutOfSpace)
			break
		}
		writes++
		payload[0]++ // force a fresh delta each time so a new version is made
	}
	r.Greater(writes, 0)

	r.NoError(fsys.RollbackToVersion(fd, 1))
	fsys.GarbageCollect()

	_, err = fsys.Write(fd, payload)
	r.NoError(err)
}

func TestGetFileStatusProjection(t *testing.T) {
	r := require.New(t)
	fsys := newTestFS(t)

	fd, err := fsys.Create("a")
	r.NoError(err)
	_, err = fsys.Write(fd, []byte("hello"))
	r.NoError(err)

	status, ok := fsys.GetFileStatus(fd)
	r.True(ok)
	r.Equal("a", status.Filename)
	r.Equal(5, status.Size)
	r.Equal(uint32(1), status.VersionCount)
	r.Equal(cowfs.ModeWrite, status.Mode)
}
