package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/vfs/disk"
)

// =============================================================================
// fsutil Tests
//
// All helpers run against the disk backend in a temp directory. We're NOT
// re-testing the adapter's passthrough behavior (disk package does that).
// We ARE testing the composition the helpers add on top of the capability.
// =============================================================================

// -----------------------------------------------------------------------------
// ReadFile / WriteFile Tests
// -----------------------------------------------------------------------------

// TestWriteFile_ReadFile_RoundTrips verifies a write is readable back
// through the capability.
func TestWriteFile_ReadFile_RoundTrips(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")

	if err := WriteFile(fsys, path, []byte("round trip"), 0o644); err != nil {
		t.Fatalf("WriteFile err=%v, want=nil", err)
	}

	data, err := ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("ReadFile err=%v, want=nil", err)
	}

	if got, want := string(data), "round trip"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

// TestWriteFile_TruncatesExistingContent verifies WriteFile replaces, not
// appends.
func TestWriteFile_TruncatesExistingContent(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")

	if err := WriteFile(fsys, path, []byte("a much longer first value"), 0o644); err != nil {
		t.Fatalf("first WriteFile err=%v, want=nil", err)
	}

	if err := WriteFile(fsys, path, []byte("short"), 0o644); err != nil {
		t.Fatalf("second WriteFile err=%v, want=nil", err)
	}

	data, _ := os.ReadFile(path)
	if got, want := string(data), "short"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

// TestReadFile_PropagatesNotExist verifies the helper surfaces the
// backend's error untouched.
func TestReadFile_PropagatesNotExist(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()

	_, err := ReadFile(fsys, filepath.Join(dir, "missing"))

	if got, want := errors.Is(err, os.ErrNotExist), true; got != want {
		t.Fatalf("errors.Is(err, ErrNotExist)=%v, want=%v (err=%v)", got, want, err)
	}
}

// -----------------------------------------------------------------------------
// WriteFileAtomic Tests
// -----------------------------------------------------------------------------

// TestWriteFileAtomic_CreatesFile verifies basic atomic write creates file.
func TestWriteFileAtomic_CreatesFile(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	err := WriteFileAtomic(fsys, path, []byte("hello"), 0o644)

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("WriteFileAtomic err=%v, want=%v", got, want)
	}

	data, err := os.ReadFile(path)
	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("ReadFile err=%v, want=%v", got, want)
	}

	if got, want := string(data), "hello"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

// TestWriteFileAtomic_OverwritesExisting verifies atomic write overwrites.
func TestWriteFileAtomic_OverwritesExisting(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	WriteFileAtomic(fsys, path, []byte("first"), 0o644)

	err := WriteFileAtomic(fsys, path, []byte("second"), 0o644)

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("WriteFileAtomic err=%v, want=%v", got, want)
	}

	data, _ := os.ReadFile(path)
	if got, want := string(data), "second"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

// TestWriteFileAtomic_NoTempFileLeftOnSuccess verifies no .tmp files are
// left behind after a successful write.
func TestWriteFileAtomic_NoTempFileLeftOnSuccess(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	WriteFileAtomic(fsys, path, []byte("hello"), 0o644)

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp*"))
	if got, want := len(matches), 0; got != want {
		t.Fatalf("tempFileCount=%d, want=%d (found: %v)", got, want, matches)
	}
}

// TestWriteFileAtomic_AppliesPermToNewFile verifies that a freshly created
// file carries the requested mode bits, not the temp file's restrictive
// default.
func TestWriteFileAtomic_AppliesPermToNewFile(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.txt")

	if err := WriteFileAtomic(fsys, path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic err=%v, want=nil", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat err=%v, want=nil", err)
	}

	if got, want := info.Mode().Perm(), os.FileMode(0o644); got != want {
		t.Fatalf("mode=%v, want=%v", got, want)
	}
}

// TestWriteFileAtomic_PreservesModeOfExistingFile verifies that replacing
// an existing file keeps its current mode rather than resetting it to perm.
func TestWriteFileAtomic_PreservesModeOfExistingFile(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.txt")

	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := WriteFileAtomic(fsys, path, []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic err=%v, want=nil", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat err=%v, want=nil", err)
	}

	if got, want := info.Mode().Perm(), os.FileMode(0o600); got != want {
		t.Fatalf("mode=%v, want=%v", got, want)
	}
}

// TestWriteFileAtomic_ConcurrentWritesSafe verifies concurrent atomic
// writes don't corrupt each other - each write is atomic.
func TestWriteFileAtomic_ConcurrentWritesSafe(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	var wg sync.WaitGroup

	writers := 10
	writesPerWriter := 20

	for i := range writers {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			for range writesPerWriter {
				content := []byte("writer-" + string(rune('A'+id)) + "-write")
				WriteFileAtomic(fsys, path, content, 0o644)
			}
		}(i)
	}

	wg.Wait()

	data, err := os.ReadFile(path)
	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("ReadFile err=%v, want=%v", got, want)
	}

	// Content should start with "writer-" (not be corrupted/mixed).
	if got, want := len(data) >= 7 && string(data[:7]) == "writer-", true; got != want {
		t.Fatalf("content corrupted: got %q", data)
	}
}

// -----------------------------------------------------------------------------
// Exists / MkdirAll / ReadDirAll Tests
// -----------------------------------------------------------------------------

// TestExists_ReturnsFalseForNonExistent verifies that Exists returns
// (false, nil) for missing entries - not an error.
func TestExists_ReturnsFalseForNonExistent(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()

	exists, err := Exists(fsys, filepath.Join(dir, "does-not-exist.txt"))

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if got, want := exists, false; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

// TestExists_ReturnsTrueForFileAndDirectory verifies the positive cases.
func TestExists_ReturnsTrueForFileAndDirectory(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "exists.txt")

	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	for _, p := range []string{path, dir} {
		exists, err := Exists(fsys, p)

		if got, want := err, error(nil); !errors.Is(got, want) {
			t.Fatalf("Exists(%s) err=%v, want=%v", p, got, want)
		}

		if got, want := exists, true; got != want {
			t.Fatalf("Exists(%s)=%v, want=%v", p, got, want)
		}
	}
}

// TestMkdirAll_CreatesNestedDirectories verifies ancestor creation and
// idempotence.
func TestMkdirAll_CreatesNestedDirectories(t *testing.T) {
	fsys := disk.New()
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "c")

	if err := MkdirAll(fsys, target, 0o755); err != nil {
		t.Fatalf("MkdirAll err=%v, want=nil", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("Stat err=%v, want=nil", err)
	}

	if got, want := info.IsDir(), true; got != want {
		t.Fatalf("IsDir=%v, want=%v", got, want)
	}

	if err := MkdirAll(fsys, target, 0o755); err != nil {
		t.Fatalf("second MkdirAll err=%v, want=nil", err)
	}
}

// TestRemoveAll_DeletesNestedTree verifies the alias tears down a whole
// subtree through the capability.
func TestRemoveAll_DeletesNestedTree(t *testing.T) {
	fsys := disk.New()
	root := t.TempDir()
	target := filepath.Join(root, "tree")

	if err := os.MkdirAll(filepath.Join(target, "a", "b"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(target, "a", "b", "leaf.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := RemoveAll(fsys, target); err != nil {
		t.Fatalf("RemoveAll err=%v, want=nil", err)
	}

	if _, err := os.Stat(target); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Stat err=%v, want=ErrNotExist", err)
	}
}

// TestReadDirAll_CollectsEveryEntry verifies the drain helper returns the
// full listing.
func TestReadDirAll_CollectsEveryEntry(t *testing.T) {
	fsys := disk.New()
	dir := t.TempDir()

	want := []string{"alpha", "beta", "gamma"}
	for _, name := range want {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	entries, err := ReadDirAll(fsys, dir)
	if err != nil {
		t.Fatalf("ReadDirAll err=%v, want=nil", err)
	}

	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, e.Name())
	}

	sort.Strings(got)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("listing mismatch (-want +got):\n%s", diff)
	}
}
