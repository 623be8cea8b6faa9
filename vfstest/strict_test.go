package vfstest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/vfs/disk"
)

// =============================================================================
// Fake test builder
// =============================================================================

// fatalSentinel unwinds the stack after recorderTB.Fatalf, the way a real
// testing.T would stop the test goroutine.
type fatalSentinel struct{}

type recorderTB struct {
	failed   bool
	fatals   []string
	logs     []string
	cleanups []func()
}

func (r *recorderTB) Helper()           {}
func (r *recorderTB) Cleanup(f func())  { r.cleanups = append(r.cleanups, f) }
func (r *recorderTB) Failed() bool      { return r.failed }
func (r *recorderTB) Logf(format string, args ...any) {
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

func (r *recorderTB) Fatalf(format string, args ...any) {
	r.failed = true
	r.fatals = append(r.fatals, fmt.Sprintf(format, args...))
	panic(fatalSentinel{})
}

func (r *recorderTB) runCleanups() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
}

// expectFatal runs fn and swallows the sentinel panic raised by Fatalf.
func expectFatal(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(fatalSentinel); !ok {
				panic(r)
			}
		}
	}()

	fn()
}

// =============================================================================
// Tests
// =============================================================================

func Test_Strict_Passes_Through_Successful_Operations(t *testing.T) {
	dir := t.TempDir()
	strict := NewStrict(t, StrictOptions{FS: disk.New()})

	path := filepath.Join(dir, "file.txt")

	f, err := strict.NewOpenOptions().Write(true).CreateNew(true).Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	meta, err := strict.Metadata(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if got, want := meta.Len(), int64(5); got != want {
		t.Fatalf("len = %d, want %d", got, want)
	}
}

func Test_Strict_Fails_The_Test_On_Real_Filesystem_Errors(t *testing.T) {
	dir := t.TempDir()

	tb := &recorderTB{}
	strict := NewStrict(tb, StrictOptions{FS: disk.New()})

	expectFatal(func() {
		_, _ = strict.Metadata(filepath.Join(dir, "missing"))
	})

	if got, want := len(tb.fatals), 1; got != want {
		t.Fatalf("fatals = %d, want %d", got, want)
	}

	if !strings.Contains(tb.fatals[0], "underlying filesystem error") {
		t.Fatalf("unexpected fatal message: %q", tb.fatals[0])
	}
}

func Test_Strict_Does_Not_Fail_The_Test_On_Injected_Errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present.txt")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	chaos := NewChaos(disk.New(), 42, ChaosConfig{MetadataFailRate: 1.0})
	chaos.SetMode(ChaosModeInject)

	tb := &recorderTB{}
	strict := NewStrict(tb, StrictOptions{FS: chaos})

	_, err := strict.Metadata(path)
	if err == nil {
		t.Fatal("expected an injected error")
	}

	if len(tb.fatals) != 0 {
		t.Fatalf("injected error must not fail the test, got Fatalf: %q", tb.fatals)
	}
}

func Test_Strict_Does_Not_Treat_EOF_As_Fatal(t *testing.T) {
	dir := t.TempDir()

	tb := &recorderTB{}
	strict := NewStrict(tb, StrictOptions{FS: disk.New()})

	stream, err := strict.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}

	if _, err := stream.Next(); err != io.EOF {
		t.Fatalf("next on empty dir = %v, want io.EOF", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(tb.fatals) != 0 {
		t.Fatalf("EOF must not fail the test, got Fatalf: %q", tb.fatals)
	}
}

func Test_Strict_Trace_Records_Ops_In_Order(t *testing.T) {
	dir := t.TempDir()
	strict := NewStrict(t, StrictOptions{FS: disk.New()})

	path := filepath.Join(dir, "file.txt")

	f, err := strict.NewOpenOptions().Write(true).CreateNew(true).Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := f.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := strict.Metadata(path); err != nil {
		t.Fatalf("stat: %v", err)
	}

	trace := strict.Trace()

	ops := []string{"open", "file.write", "file.close", "stat"}

	last := -1

	for _, op := range ops {
		idx := strings.Index(trace, op)
		if idx < 0 {
			t.Fatalf("trace missing op %q:\n%s", op, trace)
		}

		if idx <= last {
			t.Fatalf("trace ops out of order (%q):\n%s", op, trace)
		}

		last = idx
	}
}

func Test_Strict_Trace_Is_Bounded_To_TraceCapacity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	capacity := 3
	strict := NewStrict(t, StrictOptions{FS: disk.New(), TraceCapacity: &capacity})

	for range 10 {
		if _, err := strict.Metadata(path); err != nil {
			t.Fatalf("stat: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(strict.Trace()), "\n")
	if got, want := len(lines), capacity; got != want {
		t.Fatalf("trace lines = %d, want %d:\n%s", got, want, strict.Trace())
	}
}

func Test_Strict_Trace_Is_Disabled_At_Capacity_Zero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	capacity := 0
	strict := NewStrict(t, StrictOptions{FS: disk.New(), TraceCapacity: &capacity})

	if _, err := strict.Metadata(path); err != nil {
		t.Fatalf("stat: %v", err)
	}

	if got := strict.Trace(); got != "" {
		t.Fatalf("trace should be empty when disabled, got:\n%s", got)
	}
}

func Test_Strict_Cleanup_Logs_Trace_Only_When_The_Test_Fails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	// Passing test: no trace in the log.
	tb := &recorderTB{}
	strict := NewStrict(tb, StrictOptions{FS: disk.New()})

	if _, err := strict.Metadata(path); err != nil {
		t.Fatalf("stat: %v", err)
	}

	tb.runCleanups()

	if len(tb.logs) != 0 {
		t.Fatalf("passing test must not log the trace, got: %q", tb.logs)
	}

	// Failing test: trace is logged.
	tb = &recorderTB{}
	strict = NewStrict(tb, StrictOptions{FS: disk.New()})

	expectFatal(func() {
		_, _ = strict.Metadata(filepath.Join(dir, "missing"))
	})

	tb.runCleanups()

	if len(tb.logs) != 1 {
		t.Fatalf("failing test must log the trace once, got: %q", tb.logs)
	}

	if !strings.Contains(tb.logs[0], "stat") {
		t.Fatalf("logged trace missing the failed op:\n%s", tb.logs[0])
	}
}
