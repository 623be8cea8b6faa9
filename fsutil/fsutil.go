// Package fsutil provides convenience helpers on top of a [vfs.FS].
//
// The helpers compose the capability's primitive operations (open builders,
// metadata queries, renames) into the whole-file and directory idioms most
// callers actually want, without the backend needing to know about them.
package fsutil

import (
	"bytes"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"strconv"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/vfs"
	"github.com/calvinalkan/vfs/disk"
)

// ReadFile reads the entire file at path into memory.
// For large files, prefer opening with [vfs.FS.NewOpenOptions] and
// streaming reads.
func ReadFile(fsys vfs.FS, path string) ([]byte, error) {
	f, err := fsys.NewOpenOptions().Read(true).Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// WriteFile writes data to the file at path, creating it with perm (before
// umask) if it does not exist and truncating it if it does.
//
// WriteFile is not atomic or durable: an error or crash can leave a
// partially written file. Use [WriteFileAtomic] for critical data.
func WriteFile(fsys vfs.FS, path string, data []byte, perm iofs.FileMode) error {
	f, err := fsys.NewOpenOptions().
		Write(true).
		Create(true).
		Truncate(true).
		Mode(perm).
		Open(path)
	if err != nil {
		return err
	}

	err = writeAll(f, data)
	if err != nil {
		f.Close()

		return err
	}

	if err := f.Flush(); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}

// WriteFileAtomic writes data to path atomically via a temp file + rename,
// so readers never observe a partial write.
//
// On the disk backend it delegates to [atomic.WriteFile], which also syncs
// the temp file before renaming. Other backends get the same temp+rename
// sequence expressed through the capability, with whatever atomicity the
// backend's Rename provides.
func WriteFileAtomic(fsys vfs.FS, path string, data []byte, perm iofs.FileMode) error {
	if _, ok := fsys.(disk.FS); ok {
		existed, err := Exists(fsys, path)
		if err != nil {
			return err
		}

		if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
			return err
		}

		// atomic.WriteFile copies an existing file's mode onto the
		// replacement but leaves a fresh file with the temp file's 0600;
		// apply perm so a create ends up with the same bits the generic
		// path below sets.
		if !existed {
			return os.Chmod(path, perm)
		}

		return nil
	}

	tmp := path + ".tmp"

	for i := 0; ; i++ {
		f, err := fsys.NewOpenOptions().
			Write(true).
			CreateNew(true).
			Mode(perm).
			Open(tmp)
		if err == nil {
			return commitAtomic(fsys, f, tmp, path, data)
		}

		if !errors.Is(err, iofs.ErrExist) || i >= 10 {
			return err
		}

		// Temp name taken, likely by a concurrent writer. Pick another.
		tmp = path + ".tmp" + strconv.Itoa(i)
	}
}

// commitAtomic writes data to the open temp file and renames it over path.
// The temp file is removed best-effort on failure.
func commitAtomic(fsys vfs.FS, f vfs.File, tmp, path string, data []byte) error {
	err := writeAll(f, data)
	if err == nil {
		err = f.Flush()
	}

	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		err = fsys.Rename(tmp, path)
	}

	if err != nil {
		_ = fsys.RemoveFile(tmp)

		return err
	}

	return nil
}

// Exists reports whether an entry exists at path.
// Returns (false, nil) if not found, (false, err) on other errors.
func Exists(fsys vfs.FS, path string) (bool, error) {
	_, err := fsys.Metadata(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// MkdirAll creates the directory at path along with any missing ancestors,
// each with perm (before umask). No error if path already exists.
func MkdirAll(fsys vfs.FS, path string, perm iofs.FileMode) error {
	return fsys.NewDirBuilder().Recursive(true).Mode(perm).Create(path)
}

// RemoveAll removes path and everything under it. See [vfs.FS.RemoveDirAll];
// the alias exists so call sites composing fsutil helpers don't switch
// receivers for the one destructive operation.
func RemoveAll(fsys vfs.FS, path string) error {
	return fsys.RemoveDirAll(path)
}

// ReadDirAll drains a directory stream into a slice, in stream order.
//
// A per-entry error aborts the drain and is returned alongside the entries
// collected so far; callers that want to skip bad entries should iterate
// [vfs.ReadDir] directly.
func ReadDirAll(fsys vfs.FS, path string) ([]vfs.DirEntry, error) {
	stream, err := fsys.ReadDir(path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var entries []vfs.DirEntry

	for {
		entry, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return entries, err
		}

		entries = append(entries, entry)
	}
}

// writeAll loops until all of data is written, since a single Write may
// write fewer bytes than requested.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}

		data = data[n:]
	}

	return nil
}
