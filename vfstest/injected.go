// Package vfstest provides testing wrappers around a [vfs.FS].
//
// The main types are:
//   - [Chaos]: decorator that injects random, reality-consistent failures
//   - [Strict]: decorator that records an operation trace and fails the
//     test on any non-injected filesystem error
//
// Neither type is a filesystem backend: both forward every operation to the
// wrapped [vfs.FS] and only intercept results.
package vfstest

import (
	"errors"
	iofs "io/fs"
	"sync"
)

// InjectedError marks an error as intentionally injected by [Chaos].
//
// It wraps the underlying error so errors.Is/As continue to work.
//
// Note: For errno-style errors, [Chaos] returns a plain *fs.PathError with a
// syscall.Errno in PathError.Err so os.IsNotExist/os.IsPermission keep
// working. Those injected *fs.PathError values are tracked separately so
// IsInjected can still distinguish injected vs real OS errors in tests.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by
// [Chaos]. Returns false if err is nil.
func IsInjected(err error) bool {
	if err == nil {
		return false
	}

	var injected *InjectedError
	if errors.As(err, &injected) {
		return true
	}

	var pathErr *iofs.PathError
	if errors.As(err, &pathErr) {
		_, ok := injectedPathErrors.Load(pathErr)

		return ok
	}

	return false
}

// --- Private api ---

var injectedPathErrors sync.Map // map[*fs.PathError]struct{}

// markInjectedPathError registers a PathError as injected.
func markInjectedPathError(err *iofs.PathError) {
	injectedPathErrors.Store(err, struct{}{})
}
