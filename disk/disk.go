// Package disk implements [vfs.FS] using the real filesystem.
//
// Every type is a single-field wrapper around the corresponding [os] value
// and every method is a pure passthrough with identical behavior and error
// semantics. The package adds no caching, no buffering beyond the OS's own,
// no retries, and no path normalization; errors are surfaced exactly as the
// [os] package reports them.
//
// This implementation is Unix-only.
package disk

import (
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/calvinalkan/vfs"
)

// Default mode bits for created files and directories (before umask),
// matching [os.Create] and [os.Mkdir] callers' conventional values.
const (
	defaultFileMode = 0o666
	defaultDirMode  = 0o777
)

// FS implements [vfs.FS] by calling [os] package functions.
//
// FS is a stateless, copyable capability value; the zero value is ready to
// use and safe to share across goroutines.
type FS struct{}

// New returns a disk-backed [FS].
func New() FS {
	return FS{}
}

// A passthrough wrapper for [os.Stat].
func (FS) Metadata(path string) (vfs.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return &Metadata{info: info}, nil
}

// ReadDir opens a directory stream for path.
//
// The directory handle is opened eagerly; iteration happens lazily, one
// batch of dirents per [ReadDir.Next] call, in whatever order the OS
// yields them.
func (FS) ReadDir(path string) (vfs.ReadDir, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_DIRECTORY, 0)
	if err != nil {
		return nil, err
	}

	return &ReadDir{dir: path, f: f}, nil
}

// A passthrough wrapper for [os.Rename].
func (FS) Rename(from, to string) error {
	return os.Rename(from, to)
}

// RemoveDir removes the empty directory at path via rmdir(2).
//
// Unlike [os.Remove], which unlinks files too, RemoveDir fails if path is
// not a directory.
func (FS) RemoveDir(path string) error {
	if err := syscall.Rmdir(path); err != nil {
		return &os.PathError{Op: "remove", Path: path, Err: err}
	}

	return nil
}

// A passthrough wrapper for [os.RemoveAll].
//
// Not atomic: a failure mid-recursion leaves already-removed descendants
// deleted.
func (FS) RemoveDirAll(path string) error {
	return os.RemoveAll(path)
}

// RemoveFile removes the file at path via unlink(2).
//
// Unlike [os.Remove], which falls back to rmdir, RemoveFile fails if path
// is a directory.
func (FS) RemoveFile(path string) error {
	if err := syscall.Unlink(path); err != nil {
		return &os.PathError{Op: "remove", Path: path, Err: err}
	}

	return nil
}

// NewOpenOptions returns a fresh open builder with all flags unset.
func (FS) NewOpenOptions() vfs.OpenOptions {
	return &OpenOptions{mode: defaultFileMode}
}

// NewDirBuilder returns a fresh directory builder with recursive unset.
func (FS) NewDirBuilder() vfs.DirBuilder {
	return &DirBuilder{mode: defaultDirMode}
}

// OpenOptions accumulates open(2) flags and terminates in [OpenOptions.Open].
type OpenOptions struct {
	read      bool
	write     bool
	append    bool
	truncate  bool
	create    bool
	createNew bool
	mode      iofs.FileMode
}

func (o *OpenOptions) Read(read bool) vfs.OpenOptions {
	o.read = read

	return o
}

func (o *OpenOptions) Write(write bool) vfs.OpenOptions {
	o.write = write

	return o
}

func (o *OpenOptions) Append(appendTo bool) vfs.OpenOptions {
	o.append = appendTo

	return o
}

func (o *OpenOptions) Truncate(truncate bool) vfs.OpenOptions {
	o.truncate = truncate

	return o
}

func (o *OpenOptions) Create(create bool) vfs.OpenOptions {
	o.create = create

	return o
}

func (o *OpenOptions) CreateNew(createNew bool) vfs.OpenOptions {
	o.createNew = createNew

	return o
}

func (o *OpenOptions) Mode(mode iofs.FileMode) vfs.OpenOptions {
	o.mode = mode

	return o
}

// Open performs the open syscall with the accumulated flags. See
// [os.OpenFile]. The builder is not consumed and may be reused.
func (o *OpenOptions) Open(path string) (vfs.File, error) {
	f, err := os.OpenFile(path, o.flag(), o.mode)
	if err != nil {
		return nil, err
	}

	return &File{inner: f}, nil
}

// flag converts the accumulated booleans to an [os.OpenFile] flag word.
func (o *OpenOptions) flag() int {
	var flag int

	switch {
	case o.read && (o.write || o.append):
		flag = os.O_RDWR
	case o.write || o.append:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}

	if o.append {
		flag |= os.O_APPEND
	}

	if o.truncate {
		flag |= os.O_TRUNC
	}

	if o.create {
		flag |= os.O_CREATE
	}

	if o.createNew {
		flag |= os.O_CREATE | os.O_EXCL
	}

	return flag
}

// DirBuilder accumulates mkdir options and terminates in [DirBuilder.Create].
type DirBuilder struct {
	recursive bool
	mode      iofs.FileMode
}

func (b *DirBuilder) Recursive(recursive bool) vfs.DirBuilder {
	b.recursive = recursive

	return b
}

func (b *DirBuilder) Mode(mode iofs.FileMode) vfs.DirBuilder {
	b.mode = mode

	return b
}

// Create creates the directory at path. With recursive set it behaves like
// [os.MkdirAll] (no error if path already exists); otherwise like
// [os.Mkdir].
func (b *DirBuilder) Create(path string) error {
	if b.recursive {
		return os.MkdirAll(path, b.mode)
	}

	return os.Mkdir(path, b.mode)
}

// File is a single-field wrapper around an open [os.File].
type File struct {
	inner *os.File
}

// A passthrough wrapper for [os.File.Read].
func (f *File) Read(p []byte) (int, error) {
	return f.inner.Read(p)
}

// A passthrough wrapper for [os.File.Write].
func (f *File) Write(p []byte) (int, error) {
	return f.inner.Write(p)
}

// A passthrough wrapper for [os.File.Seek].
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.inner.Seek(offset, whence)
}

// A passthrough wrapper for [os.File.Close].
func (f *File) Close() error {
	return f.inner.Close()
}

// Metadata stats the open descriptor. See [os.File.Stat].
// The result reflects current on-disk state, not a snapshot from open time.
func (f *File) Metadata() (vfs.Metadata, error) {
	info, err := f.inner.Stat()
	if err != nil {
		return nil, err
	}

	return &Metadata{info: info}, nil
}

// Flush is a no-op: write(2) is already synchronous to the kernel buffer
// and the disk backend adds no userspace buffering. Flush is intentionally
// NOT an fsync durability guarantee; use [os.File.Sync] semantics at a
// higher layer if durability is required.
func (f *File) Flush() error {
	return nil
}

// ReadDir is a single-field wrapper around an open directory handle.
type ReadDir struct {
	dir string
	f   *os.File
}

// Next returns the next directory entry, or (nil, io.EOF) at end of stream.
//
// A non-EOF error reports a single failed entry and does not invalidate the
// stream; the caller may keep calling Next.
func (r *ReadDir) Next() (vfs.DirEntry, error) {
	ents, err := r.f.ReadDir(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, err
	}

	return &DirEntry{dir: r.dir, entry: ents[0]}, nil
}

// Close releases the directory handle.
func (r *ReadDir) Close() error {
	return r.f.Close()
}

// DirEntry is a single-field wrapper around an [os.DirEntry], plus the
// directory path it was listed from.
type DirEntry struct {
	dir   string
	entry os.DirEntry
}

// Path returns the listing directory joined with the entry name.
func (d *DirEntry) Path() string {
	return filepath.Join(d.dir, d.entry.Name())
}

// Name returns the bare entry name.
func (d *DirEntry) Name() string {
	return d.entry.Name()
}

// FileType returns the entry's type bits as recorded at listing time.
// See [os.DirEntry.Type].
func (d *DirEntry) FileType() vfs.FileType {
	return FileType{mode: d.entry.Type()}
}

// Metadata performs a fresh lstat of the entry. See [os.Lstat].
//
// The result is not guaranteed consistent with listing-time state; the
// entry may have changed on disk since it was listed.
func (d *DirEntry) Metadata() (vfs.Metadata, error) {
	info, err := os.Lstat(d.Path())
	if err != nil {
		return nil, err
	}

	return &Metadata{info: info}, nil
}

// Metadata is a single-field wrapper around an [os.FileInfo] snapshot.
type Metadata struct {
	info os.FileInfo
}

// A passthrough wrapper for [os.FileInfo.IsDir].
func (m *Metadata) IsDir() bool {
	return m.info.IsDir()
}

// IsFile reports whether the snapshot describes a regular file.
func (m *Metadata) IsFile() bool {
	return m.info.Mode().IsRegular()
}

// A passthrough wrapper for [os.FileInfo.Size].
func (m *Metadata) Len() int64 {
	return m.info.Size()
}

// Permissions returns the snapshot's mode bits as a mutable in-memory
// [vfs.Permissions]. Mutations are not persisted unless the caller applies
// them back via [os.Chmod].
func (m *Metadata) Permissions() vfs.Permissions {
	return &Permissions{mode: m.info.Mode()}
}

// FileType returns the snapshot's type classification.
func (m *Metadata) FileType() vfs.FileType {
	return FileType{mode: m.info.Mode()}
}

// Permissions is a single-field wrapper around mode bits.
type Permissions struct {
	mode iofs.FileMode
}

// Readonly reports whether all write bits are clear.
func (p *Permissions) Readonly() bool {
	return p.mode.Perm()&0o222 == 0
}

// SetReadonly clears (true) or sets (false) the write bits on the
// in-memory copy only.
func (p *Permissions) SetReadonly(readonly bool) {
	if readonly {
		p.mode &^= 0o222
	} else {
		p.mode |= 0o222
	}
}

// Mode returns the raw mode bits, uninterpreted.
func (p *Permissions) Mode() iofs.FileMode {
	return p.mode
}

// FileType is a single-field wrapper around mode type bits.
type FileType struct {
	mode iofs.FileMode
}

// IsDir reports whether the type bits describe a directory.
func (t FileType) IsDir() bool {
	return t.mode.IsDir()
}

// IsFile reports whether the type bits describe a regular file.
func (t FileType) IsFile() bool {
	return t.mode.IsRegular()
}

// Compile-time interface checks.
var (
	_ vfs.FS          = FS{}
	_ vfs.OpenOptions = (*OpenOptions)(nil)
	_ vfs.DirBuilder  = (*DirBuilder)(nil)
	_ vfs.File        = (*File)(nil)
	_ vfs.ReadDir     = (*ReadDir)(nil)
	_ vfs.DirEntry    = (*DirEntry)(nil)
	_ vfs.Metadata    = (*Metadata)(nil)
	_ vfs.Permissions = (*Permissions)(nil)
	_ vfs.FileType    = FileType{}
)
