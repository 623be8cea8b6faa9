package vfstest

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"strconv"
	"strings"
	"sync"

	"github.com/calvinalkan/vfs"
)

// TestBuilder is the subset of [testing.T] used by [Strict].
//
// This keeps [Strict] usable from tests in other packages without
// depending on _test.go files.
type TestBuilder interface {
	// [testing.T.Helper]
	Helper()
	// [testing.T.Cleanup]
	Cleanup(func())
	// [testing.T.Failed]
	Failed() bool
	// [testing.T.Logf]
	Logf(format string, args ...any)
	// [testing.T.Fatalf]
	Fatalf(format string, args ...any)
}

// Strict wraps a [vfs.FS] for tests:
//   - Records a bounded trace of recent filesystem operations
//   - Fails the test on any non-injected (real) filesystem error
//
// Use it to detect unexpected environment/OS failures while running [Chaos].
type Strict struct {
	tb    TestBuilder
	fsys  vfs.FS
	trace *traceLog
}

// StrictOptions configures a [Strict].
type StrictOptions struct {
	// FS is the underlying filesystem to wrap.
	FS vfs.FS
	// TraceCapacity is the max number of operations to keep in the trace log.
	// Defaults to 200. Set to a pointer to 0 to disable tracing.
	TraceCapacity *int
}

// NewStrict creates a new [Strict] wrapping the given [vfs.FS].
//
// On test failure, logs the trace of recent operations via tb.Cleanup.
func NewStrict(tb TestBuilder, opts StrictOptions) *Strict {
	tb.Helper()

	s := &Strict{
		tb:    tb,
		fsys:  opts.FS,
		trace: newTraceLog(opts.TraceCapacity),
	}

	tb.Cleanup(func() {
		if tb.Failed() {
			if trace := s.Trace(); trace != "" {
				tb.Logf("fs trace:\n%s", trace)
			}
		}
	})

	return s
}

// Trace returns a formatted string of recent filesystem operations.
func (s *Strict) Trace() string {
	return s.trace.String()
}

func (s *Strict) Metadata(path string) (vfs.Metadata, error) {
	s.tb.Helper()
	meta, err := s.fsys.Metadata(path)

	return meta, s.wrap("stat", path, err)
}

func (s *Strict) ReadDir(path string) (vfs.ReadDir, error) {
	s.tb.Helper()

	stream, err := s.fsys.ReadDir(path)
	if err := s.wrap("readdir", path, err); err != nil {
		return nil, err
	}

	return &strictReadDir{tb: s.tb, stream: stream, trace: s.trace, path: path}, nil
}

func (s *Strict) Rename(from, to string) error {
	s.tb.Helper()

	return s.wrap("rename", from, s.fsys.Rename(from, to), attr("dest", to))
}

func (s *Strict) RemoveDir(path string) error {
	s.tb.Helper()

	return s.wrap("rmdir", path, s.fsys.RemoveDir(path))
}

func (s *Strict) RemoveDirAll(path string) error {
	s.tb.Helper()

	return s.wrap("rmall", path, s.fsys.RemoveDirAll(path))
}

func (s *Strict) RemoveFile(path string) error {
	s.tb.Helper()

	return s.wrap("unlink", path, s.fsys.RemoveFile(path))
}

func (s *Strict) NewOpenOptions() vfs.OpenOptions {
	return &strictOpenOptions{strict: s, opts: s.fsys.NewOpenOptions()}
}

func (s *Strict) NewDirBuilder() vfs.DirBuilder {
	return &strictDirBuilder{strict: s, builder: s.fsys.NewDirBuilder()}
}

// wrap traces the operation and fatals on real (non-injected) errors.
func (s *Strict) wrap(op, path string, err error, attrs ...kv) error {
	s.tb.Helper()

	s.trace.add(op, path, err, attrs...)

	if err != nil && !IsInjected(err) && !errors.Is(err, io.EOF) {
		trace := s.Trace()
		if trace != "" {
			trace = "\n" + trace
		}

		s.tb.Fatalf("strict: underlying filesystem error: %v%s", err, trace)
	}

	return err
}

// strictOpenOptions forwards setters and intercepts Open.
type strictOpenOptions struct {
	strict *Strict
	opts   vfs.OpenOptions
}

func (o *strictOpenOptions) Read(read bool) vfs.OpenOptions {
	o.opts.Read(read)

	return o
}

func (o *strictOpenOptions) Write(write bool) vfs.OpenOptions {
	o.opts.Write(write)

	return o
}

func (o *strictOpenOptions) Append(appendTo bool) vfs.OpenOptions {
	o.opts.Append(appendTo)

	return o
}

func (o *strictOpenOptions) Truncate(truncate bool) vfs.OpenOptions {
	o.opts.Truncate(truncate)

	return o
}

func (o *strictOpenOptions) Create(create bool) vfs.OpenOptions {
	o.opts.Create(create)

	return o
}

func (o *strictOpenOptions) CreateNew(createNew bool) vfs.OpenOptions {
	o.opts.CreateNew(createNew)

	return o
}

func (o *strictOpenOptions) Mode(mode iofs.FileMode) vfs.OpenOptions {
	o.opts.Mode(mode)

	return o
}

func (o *strictOpenOptions) Open(path string) (vfs.File, error) {
	o.strict.tb.Helper()

	f, err := o.opts.Open(path)
	if err := o.strict.wrap("open", path, err); err != nil {
		return nil, err
	}

	return &strictFile{tb: o.strict.tb, f: f, trace: o.strict.trace, path: path}, nil
}

// strictDirBuilder forwards setters and intercepts Create.
type strictDirBuilder struct {
	strict  *Strict
	builder vfs.DirBuilder
}

func (b *strictDirBuilder) Recursive(recursive bool) vfs.DirBuilder {
	b.builder.Recursive(recursive)

	return b
}

func (b *strictDirBuilder) Mode(mode iofs.FileMode) vfs.DirBuilder {
	b.builder.Mode(mode)

	return b
}

func (b *strictDirBuilder) Create(path string) error {
	b.strict.tb.Helper()

	return b.strict.wrap("mkdir", path, b.builder.Create(path))
}

// kv is a key-value pair for trace context.
type kv struct {
	k string
	v string
}

func attr(k, v string) kv {
	return kv{k: k, v: v}
}

// traceEvent records a single filesystem operation.
type traceEvent struct {
	seq      uint64
	op       string
	path     string
	err      error
	injected bool
	attrs    []kv
}

func (e traceEvent) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "#%d %s", e.seq, e.op)

	if e.path != "" {
		fmt.Fprintf(&b, " path=%q", e.path)
	}

	for _, a := range e.attrs {
		fmt.Fprintf(&b, " %s=%s", a.k, a.v)
	}

	if e.err == nil {
		b.WriteString(" ok")

		return b.String()
	}

	fmt.Fprintf(&b, " err=%v injected=%t", e.err, e.injected)

	return b.String()
}

// traceLog is a bounded circular buffer of [traceEvent].
type traceLog struct {
	mu       sync.Mutex
	capacity int
	events   []traceEvent
	next     int
	full     bool
	seq      uint64
}

func newTraceLog(capacity *int) *traceLog {
	limit := 200
	if capacity != nil {
		limit = *capacity
	}

	return &traceLog{
		capacity: limit,
		events:   make([]traceEvent, 0, limit),
	}
}

func (t *traceLog) add(op, path string, err error, attrs ...kv) {
	if t.capacity == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++

	event := traceEvent{
		seq:      t.seq,
		op:       op,
		path:     path,
		err:      err,
		injected: IsInjected(err),
		attrs:    attrs,
	}

	if len(t.events) < t.capacity {
		t.events = append(t.events, event)

		return
	}

	t.events[t.next] = event
	t.next = (t.next + 1) % t.capacity
	t.full = true
}

func (t *traceLog) snapshot() []traceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		return append([]traceEvent(nil), t.events...)
	}

	out := make([]traceEvent, 0, len(t.events))
	out = append(out, t.events[t.next:]...)
	out = append(out, t.events[:t.next]...)

	return out
}

func (t *traceLog) String() string {
	events := t.snapshot()
	if len(events) == 0 {
		return ""
	}

	var b strings.Builder

	for i, e := range events {
		if i > 0 {
			b.WriteByte('\n')
		}

		b.WriteString(e.String())
	}

	return b.String()
}

// strictFile wraps a [vfs.File] to trace and validate errors.
type strictFile struct {
	tb    TestBuilder
	f     vfs.File
	trace *traceLog
	path  string
}

func (sf *strictFile) wrap(op string, err error, attrs ...kv) error {
	sf.tb.Helper()
	sf.trace.add(op, sf.path, err, attrs...)

	if err != nil && !IsInjected(err) && !errors.Is(err, io.EOF) {
		trace := sf.trace.String()
		if trace != "" {
			trace = "\n" + trace
		}

		sf.tb.Fatalf("strict: unexpected real fs error: %v%s", err, trace)
	}

	return err
}

func (sf *strictFile) Read(p []byte) (int, error) {
	sf.tb.Helper()
	n, err := sf.f.Read(p)

	return n, sf.wrap("file.read", err, attr("n", strconv.Itoa(n)))
}

func (sf *strictFile) Write(p []byte) (int, error) {
	sf.tb.Helper()
	n, err := sf.f.Write(p)

	return n, sf.wrap("file.write", err, attr("n", strconv.Itoa(n)))
}

func (sf *strictFile) Seek(offset int64, whence int) (int64, error) {
	sf.tb.Helper()
	pos, err := sf.f.Seek(offset, whence)

	return pos, sf.wrap("file.seek", err,
		attr("offset", strconv.FormatInt(offset, 10)),
		attr("whence", strconv.Itoa(whence)),
		attr("pos", strconv.FormatInt(pos, 10)))
}

func (sf *strictFile) Close() error {
	sf.tb.Helper()

	return sf.wrap("file.close", sf.f.Close())
}

func (sf *strictFile) Metadata() (vfs.Metadata, error) {
	sf.tb.Helper()
	meta, err := sf.f.Metadata()

	return meta, sf.wrap("file.stat", err)
}

func (sf *strictFile) Flush() error {
	sf.tb.Helper()

	return sf.wrap("file.flush", sf.f.Flush())
}

// strictReadDir wraps a [vfs.ReadDir] to trace and validate errors.
type strictReadDir struct {
	tb     TestBuilder
	stream vfs.ReadDir
	trace  *traceLog
	path   string
}

func (sd *strictReadDir) Next() (vfs.DirEntry, error) {
	sd.tb.Helper()

	entry, err := sd.stream.Next()

	name := ""
	if entry != nil {
		name = entry.Name()
	}

	sd.trace.add("dir.next", sd.path, err, attr("name", name))

	if err != nil && !IsInjected(err) && !errors.Is(err, io.EOF) {
		sd.tb.Fatalf("strict: unexpected real fs error: %v\n%s", err, sd.trace.String())
	}

	return entry, err
}

func (sd *strictReadDir) Close() error {
	sd.tb.Helper()

	err := sd.stream.Close()
	sd.trace.add("dir.close", sd.path, err)

	if err != nil && !IsInjected(err) {
		sd.tb.Fatalf("strict: unexpected real fs error: %v\n%s", err, sd.trace.String())
	}

	return err
}

// Interface compliance.
var (
	_ vfs.FS          = (*Strict)(nil)
	_ vfs.OpenOptions = (*strictOpenOptions)(nil)
	_ vfs.DirBuilder  = (*strictDirBuilder)(nil)
	_ vfs.File        = (*strictFile)(nil)
	_ vfs.ReadDir     = (*strictReadDir)(nil)
)
