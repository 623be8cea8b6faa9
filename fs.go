// Package vfs defines a filesystem capability interface whose methods mirror
// the [os] package, together with the builder and wrapper types those methods
// produce.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files
//   - [OpenOptions]: builder describing how to open a file
//   - [DirBuilder]: builder describing how to create a directory
//   - [ReadDir]: lazy, single-pass stream of directory entries
//
// The production implementation lives in the disk package and forwards every
// call 1:1 to the [os] package. Code written against [FS] does not know which
// backend it is talking to, so tests can substitute a wrapped or instrumented
// filesystem (see the vfstest package) without touching the code under test.
//
// Example usage:
//
//	var fsys vfs.FS = disk.New()
//
//	f, err := fsys.NewOpenOptions().Read(true).Open("config.json")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	// Works with all stdlib io functions:
//	data, _ := io.ReadAll(f)
package vfs

import (
	"io"
	iofs "io/fs"
)

// FS is a capability for performing filesystem operations.
//
// Implementations must be stateless value types that are safe to share and
// copy across goroutines: every method is an independent, synchronous call
// against the backing store with no state retained between calls.
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths used by the standard library io/fs package. Errors
// are whatever the backend reports; the disk backend surfaces [os] errors
// unchanged, so [iofs.ErrNotExist], [iofs.ErrExist], [iofs.ErrPermission]
// and friends work with [errors.Is] exactly as they do against [os] itself.
type FS interface {
	// Metadata queries a path's status. See [os.Stat].
	// Returns [iofs.ErrNotExist] (wrapped) if no entry exists at path.
	Metadata(path string) (Metadata, error)

	// ReadDir opens a directory listing stream. See [os.File.ReadDir].
	// Fails if path is not a directory or is inaccessible. The returned
	// stream is lazy, single-pass, and not restartable.
	ReadDir(path string) (ReadDir, error)

	// Rename renames/moves an entry. See [os.Rename].
	// Atomic on the same filesystem; cross-device renames may fail.
	Rename(from, to string) error

	// RemoveDir removes an empty directory. Fails if the directory is
	// non-empty or missing.
	RemoveDir(path string) error

	// RemoveDirAll recursively removes a directory tree. See [os.RemoveAll].
	// Not atomic: a failure mid-recursion leaves the descendants removed so
	// far deleted. This partial state is a caller-visible hazard inherited
	// from the OS, not something the backend rolls back.
	RemoveDirAll(path string) error

	// RemoveFile removes a single file entry. Fails if the entry is missing
	// or is a directory.
	RemoveFile(path string) error

	// NewOpenOptions returns a fresh open builder with all flags unset.
	NewOpenOptions() OpenOptions

	// NewDirBuilder returns a fresh directory builder with recursive=false
	// and the backend's default mode.
	NewDirBuilder() DirBuilder
}

// OpenOptions is a builder describing how to open a file.
//
// Each setter mutates the builder in place and returns the same builder, so
// calls chain:
//
//	f, err := fsys.NewOpenOptions().Write(true).CreateNew(true).Open(path)
//
// Open is terminal but does not consume or reset the builder; a configured
// builder may be reused for multiple opens. Builders are single-owner values
// and are not safe for concurrent mutation.
type OpenOptions interface {
	// Read sets the option for read access.
	Read(read bool) OpenOptions

	// Write sets the option for write access.
	Write(write bool) OpenOptions

	// Append sets the option so every write lands at end of file.
	Append(append bool) OpenOptions

	// Truncate sets the option to truncate an existing file on open.
	Truncate(truncate bool) OpenOptions

	// Create sets the option to create the file if it does not exist.
	Create(create bool) OpenOptions

	// CreateNew sets the option to create a new file, failing with an
	// exists error if the path already has an entry.
	CreateNew(createNew bool) OpenOptions

	// Mode sets the permission bits a created file receives (before umask).
	// The bits are raw OS mode bits, passed through uninterpreted.
	Mode(mode iofs.FileMode) OpenOptions

	// Open performs the open with the accumulated flags. The error is
	// whatever the backend reports: a not-exist error when Create is false
	// and the file is absent, an exists error when CreateNew is true and
	// the file is present, a permission error, and so on.
	Open(path string) (File, error)
}

// DirBuilder is a builder describing how to create a directory.
//
// Setters chain like [OpenOptions] setters. Create is terminal: with
// recursive set it creates all missing ancestors as well as the target and
// succeeds if the target already exists (like [os.MkdirAll]); without it,
// Create fails with an exists error if the target exists or a not-exist
// error if an ancestor is missing (like [os.Mkdir]).
type DirBuilder interface {
	// Recursive sets whether missing ancestor directories are created too.
	Recursive(recursive bool) DirBuilder

	// Mode sets the permission bits created directories receive.
	Mode(mode iofs.FileMode) DirBuilder

	// Create creates the directory at path with the accumulated options.
	Create(path string) error
}

// File is an open file handle.
//
// Read fills the buffer and may return fewer bytes than requested; it
// reports io.EOF at end of stream. Write may write fewer bytes than
// requested; callers loop to guarantee a full write. Seek follows standard
// [io.Seeker] whence semantics.
//
// A File's descriptor is not safe for unsynchronized concurrent use when
// position-dependent operations are mixed (seek then read/write); callers
// sharing a File must serialize externally. Close releases the descriptor.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Metadata stats the open descriptor, reflecting current on-disk state
	// rather than a snapshot from open time. See [os.File.Stat].
	Metadata() (Metadata, error)

	// Flush flushes any buffering the backend adds on top of the OS.
	// The disk backend buffers nothing, so its Flush is a no-op; it is
	// NOT a durability (fsync) guarantee.
	Flush() error
}

// ReadDir is a lazy, single-pass stream of directory entries.
//
// Next yields one entry per call and reports [io.EOF] when the OS signals
// end of stream. An entry may independently fail (for example a concurrently
// deleted entry) without terminating the stream; the caller decides whether
// to continue after a non-EOF error. Ordering is whatever the OS directory
// stream yields. The stream is not restartable; Close releases the
// underlying directory handle.
type ReadDir interface {
	// Next returns the next entry, or (nil, io.EOF) at end of stream.
	Next() (DirEntry, error)

	// Close releases the directory handle. The stream cannot be used after.
	Close() error
}

// DirEntry is one entry discovered while iterating a directory.
type DirEntry interface {
	// Path returns the entry's path: the ReadDir argument joined with the
	// entry's name.
	Path() string

	// Name returns the bare file name of the entry.
	Name() string

	// FileType returns the entry's type as recorded at listing time.
	// Unlike Metadata it cannot fail: the type bits come from the
	// directory read itself.
	FileType() FileType

	// Metadata performs a fresh stat of the entry. It is not guaranteed
	// consistent with listing-time state; the entry may have changed on
	// disk between listing and querying.
	Metadata() (Metadata, error)
}

// Metadata is an immutable snapshot of an entry's stat information.
type Metadata interface {
	// IsDir reports whether the entry is a directory.
	IsDir() bool

	// IsFile reports whether the entry is a regular file.
	IsFile() bool

	// Len returns the entry's size in bytes.
	Len() int64

	// Permissions returns the entry's permission bits at snapshot time.
	Permissions() Permissions

	// FileType returns the entry's type classification.
	FileType() FileType
}

// Permissions is a mutable in-memory permission-bits value.
//
// SetReadonly mutates only the in-memory copy; nothing is persisted until
// the caller applies the bits back through the OS permission-set call. The
// backends never auto-apply.
type Permissions interface {
	// Readonly reports whether the write bits are all clear.
	Readonly() bool

	// SetReadonly clears (true) or sets (false) the write bits on the
	// in-memory copy.
	SetReadonly(readonly bool)

	// Mode returns the raw mode bits, uninterpreted.
	Mode() iofs.FileMode
}

// FileType classifies a directory entry or file.
type FileType interface {
	// IsDir reports whether the type is a directory.
	IsDir() bool

	// IsFile reports whether the type is a regular file.
	IsFile() bool
}
