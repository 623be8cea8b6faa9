package vfstest

import (
	"errors"
	"io"
	iofs "io/fs"
	"math/rand"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/calvinalkan/vfs"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
type ChaosConfig struct {
	// Metadata faults
	MetadataFailRate float64 // Fail Metadata queries (path and open-handle)

	// Open faults
	OpenFailRate float64 // Fail OpenOptions.Open

	// Read faults
	ReadFailRate    float64 // Fail file reads entirely
	PartialReadRate float64 // Return truncated data on reads

	// Write faults
	WriteFailRate    float64 // Fail file writes entirely
	PartialWriteRate float64 // Write partial data then fail (simulates crash)

	// Directory faults
	ReadDirFailRate     float64 // Fail opening a directory stream
	ReadDirTruncateRate float64 // End a stream early (lost entries)
	MkdirFailRate       float64 // Fail DirBuilder.Create

	// Mutation faults
	RemoveFailRate float64 // Fail RemoveFile/RemoveDir/RemoveDirAll
	RenameFailRate float64 // Fail Rename
}

// DefaultChaosConfig returns a config with reasonable fault rates for testing.
func DefaultChaosConfig() ChaosConfig {
	return ChaosConfig{
		MetadataFailRate:    0.01,
		OpenFailRate:        0.02,
		ReadFailRate:        0.02,
		PartialReadRate:     0.02,
		WriteFailRate:       0.02,
		PartialWriteRate:    0.03,
		ReadDirFailRate:     0.02,
		ReadDirTruncateRate: 0.02,
		MkdirFailRate:       0.02,
		RemoveFailRate:      0.02,
		RenameFailRate:      0.02,
	}
}

// PathState tracks the fault state of a path for consistent error injection.
type PathState int

const (
	// PathNormal means no persistent fault - errors are transient.
	// This is the zero value, so untracked paths are normal.
	PathNormal PathState = iota
	// PathIOError is sticky - the path has a "bad sector" and always returns EIO.
	PathIOError
	// PathReadOnly is sticky for writes - filesystem is read-only, returns EROFS.
	PathReadOnly
	// PathNoPermission is semi-sticky - operations return EACCES 80% of the time.
	PathNoPermission
)

// ChaosMode controls how Chaos behaves.
type ChaosMode uint8

const (
	// ChaosModePassthrough behaves like the wrapped FS. It ignores fault
	// rates and sticky path state. Sticky state is not cleared; it is
	// simply not consulted while in this mode.
	ChaosModePassthrough ChaosMode = iota

	// ChaosModeInject enables fault-rate injection and sticky path state.
	ChaosModeInject

	// ChaosModeStickyOnly applies only sticky path state. Fault rates are
	// disabled.
	ChaosModeStickyOnly
)

// Chaos wraps a [vfs.FS] and injects random failures for testing.
//
// Errors are state-aware: once a path gets EIO (bad sector), it stays
// broken. Errors are also reality-aware: ENOENT is only returned if the
// entry really doesn't exist on the wrapped filesystem.
//
// All injected errors are real OS errors (syscall.Errno wrapped in
// fs.PathError) so they behave identically to real filesystem errors. Code
// using errors.Is() will work correctly. Use [IsInjected] to tell injected
// failures apart from real ones.
//
// Use [Chaos.SetMode] to control behavior.
// Use [Chaos.Stats] to inspect how many faults were injected.
type Chaos struct {
	fsys   vfs.FS
	rng    *rand.Rand
	config ChaosConfig
	mode   atomic.Uint32

	// Path state tracking for consistent errors
	mu         sync.RWMutex
	pathStates map[string]PathState

	// Counters for testing verification
	metadataFails    atomic.Int64
	openFails        atomic.Int64
	readFails        atomic.Int64
	partialReads     atomic.Int64
	writeFails       atomic.Int64
	partialWrites    atomic.Int64
	readDirFails     atomic.Int64
	truncatedStreams atomic.Int64
	mkdirFails       atomic.Int64
	removeFails      atomic.Int64
	renameFails      atomic.Int64
}

// NewChaos creates a new Chaos filesystem wrapping the given [vfs.FS].
// The seed controls random fault injection for reproducibility.
func NewChaos(fsys vfs.FS, seed int64, config ChaosConfig) *Chaos {
	return &Chaos{
		fsys:       fsys,
		rng:        rand.New(rand.NewSource(seed)),
		config:     config,
		pathStates: make(map[string]PathState),
	}
}

// SetMode updates Chaos behavior. Safe to call concurrently with
// filesystem operations.
//
// Switching modes never clears sticky path state; moving to
// [ChaosModePassthrough] only stops consulting it.
//
// The zero value (and default for a new [Chaos]) is [ChaosModePassthrough].
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	MetadataFails    int64
	OpenFails        int64
	ReadFails        int64
	PartialReads     int64
	WriteFails       int64
	PartialWrites    int64
	ReadDirFails     int64
	TruncatedStreams int64
	MkdirFails       int64
	RemoveFails      int64
	RenameFails      int64
}

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		MetadataFails:    c.metadataFails.Load(),
		OpenFails:        c.openFails.Load(),
		ReadFails:        c.readFails.Load(),
		PartialReads:     c.partialReads.Load(),
		WriteFails:       c.writeFails.Load(),
		PartialWrites:    c.partialWrites.Load(),
		ReadDirFails:     c.readDirFails.Load(),
		TruncatedStreams: c.truncatedStreams.Load(),
		MkdirFails:       c.mkdirFails.Load(),
		RemoveFails:      c.removeFails.Load(),
		RenameFails:      c.renameFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.MetadataFails + s.OpenFails + s.ReadFails + s.PartialReads +
		s.WriteFails + s.PartialWrites + s.ReadDirFails +
		s.TruncatedStreams + s.MkdirFails + s.RemoveFails + s.RenameFails
}

// PathState returns the current fault state for a path (for testing).
func (c *Chaos) PathState(path string) PathState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pathStates[path]
}

// ResetAllPathStates clears all fault states (for testing).
func (c *Chaos) ResetAllPathStates() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pathStates = make(map[string]PathState)
}

// --- FS operations ---

func (c *Chaos) Metadata(path string) (vfs.Metadata, error) {
	if errno, ok := c.maybeFail("stat", path, c.config.MetadataFailRate); ok {
		c.metadataFails.Add(1)

		return nil, pathError("stat", path, errno)
	}

	return c.fsys.Metadata(path)
}

func (c *Chaos) ReadDir(path string) (vfs.ReadDir, error) {
	if errno, ok := c.maybeFail("readdir", path, c.config.ReadDirFailRate); ok {
		c.readDirFails.Add(1)

		return nil, pathError("readdir", path, errno)
	}

	stream, err := c.fsys.ReadDir(path)
	if err != nil {
		return nil, err
	}

	return &chaosReadDir{stream: stream, chaos: c, path: path}, nil
}

func (c *Chaos) Rename(from, to string) error {
	if errno, ok := c.maybeFail("rename", from, c.config.RenameFailRate); ok {
		c.renameFails.Add(1)

		return pathError("rename", from, errno)
	}

	return c.fsys.Rename(from, to)
}

func (c *Chaos) RemoveDir(path string) error {
	if errno, ok := c.maybeFail("remove", path, c.config.RemoveFailRate); ok {
		c.removeFails.Add(1)

		return pathError("remove", path, errno)
	}

	return c.fsys.RemoveDir(path)
}

func (c *Chaos) RemoveDirAll(path string) error {
	if errno, ok := c.maybeFail("remove", path, c.config.RemoveFailRate); ok {
		c.removeFails.Add(1)

		return pathError("remove", path, errno)
	}

	return c.fsys.RemoveDirAll(path)
}

func (c *Chaos) RemoveFile(path string) error {
	if errno, ok := c.maybeFail("remove", path, c.config.RemoveFailRate); ok {
		c.removeFails.Add(1)

		return pathError("remove", path, errno)
	}

	return c.fsys.RemoveFile(path)
}

func (c *Chaos) NewOpenOptions() vfs.OpenOptions {
	return &chaosOpenOptions{opts: c.fsys.NewOpenOptions(), chaos: c}
}

func (c *Chaos) NewDirBuilder() vfs.DirBuilder {
	return &chaosDirBuilder{builder: c.fsys.NewDirBuilder(), chaos: c}
}

// --- Fault decision machinery ---

// maybeFail decides whether op on path should fail right now, combining
// sticky path state with the configured fault rate. It returns the errno to
// inject and whether to inject at all.
func (c *Chaos) maybeFail(op, path string, rate float64) (syscall.Errno, bool) {
	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModePassthrough {
		return 0, false
	}

	state := c.getState(path)

	// Semi-sticky permissions: 80% still denied, 20% "recovered".
	if state == PathNoPermission {
		if c.randFloat() < 0.8 {
			return syscall.EACCES, true
		}

		c.setState(path, PathNormal)
		state = PathNormal
	}

	// Sticky EIO - always fail.
	if state == PathIOError {
		return syscall.EIO, true
	}

	// Sticky read-only filesystem - writes fail, reads pass.
	if state == PathReadOnly && isWriteOp(op) {
		return syscall.EROFS, true
	}

	if !c.should(mode, rate) {
		return 0, false
	}

	errno, err := c.pickError(op, path)
	if err != nil {
		// The reality probe itself failed; don't fabricate on a guess.
		return 0, false
	}

	return errno, true
}

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(mode ChaosMode, rate float64) bool {
	if mode != ChaosModeInject {
		return false
	}

	return c.randFloat() < rate
}

// randFloat returns a random float64 in [0.0, 1.0) (thread-safe).
func (c *Chaos) randFloat() float64 {
	c.mu.Lock()
	result := c.rng.Float64()
	c.mu.Unlock()

	return result
}

// randIntn returns a random int in [0, n) (thread-safe).
func (c *Chaos) randIntn(n int) int {
	c.mu.Lock()
	result := c.rng.Intn(n)
	c.mu.Unlock()

	return result
}

func (c *Chaos) getState(path string) PathState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.pathStates[path]
}

func (c *Chaos) setState(path string, state PathState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state == PathNormal {
		delete(c.pathStates, path)
	} else {
		c.pathStates[path] = state
	}
}

// errToState converts an error to a path state for tracking.
func errToState(err syscall.Errno) PathState {
	switch err {
	case syscall.EIO:
		return PathIOError // Sticky - bad sector
	case syscall.EROFS:
		return PathReadOnly // Sticky for writes
	case syscall.EACCES, syscall.EPERM:
		return PathNoPermission // Semi-sticky
	default:
		return PathNormal // Transient
	}
}

// isWriteOp returns true if the operation modifies the filesystem.
func isWriteOp(op string) bool {
	switch op {
	case "write", "open-write", "mkdir", "remove", "rename":
		return true
	}

	return false
}

// pathError creates an *fs.PathError with the given operation, path, and
// errno. This matches what the real OS returns, so errors.Is() works
// correctly.
func pathError(op, path string, errno syscall.Errno) error {
	pe := &iofs.PathError{Op: op, Path: path, Err: errno}
	markInjectedPathError(pe)

	return pe
}

// exists probes the wrapped filesystem so injected errors stay consistent
// with reality.
func (c *Chaos) exists(path string) (bool, error) {
	_, err := c.fsys.Metadata(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// pickError selects an error valid for the operation given the real state
// of the path, then records any sticky consequence.
func (c *Chaos) pickError(op, path string) (syscall.Errno, error) {
	var realExists bool

	switch op {
	case "open", "open-write", "remove", "rename", "stat", "readdir":
		exists, err := c.exists(path)
		if err != nil {
			return 0, err
		}

		realExists = exists
	}

	var valid []syscall.Errno

	switch op {
	case "open":
		if realExists {
			// Entry exists - can't return ENOENT.
			valid = []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE}
		} else {
			valid = []syscall.Errno{syscall.ENOENT, syscall.EACCES, syscall.EIO, syscall.EMFILE}
		}

	case "open-write", "write", "mkdir":
		valid = []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS}

	case "read":
		// Reading from an open file - can't get ENOENT (already opened).
		valid = []syscall.Errno{syscall.EIO, syscall.EINTR}

	case "remove":
		if realExists {
			valid = []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.EBUSY, syscall.EPERM}
		} else {
			// Can only return ENOENT if the entry really doesn't exist.
			valid = []syscall.Errno{syscall.ENOENT}
		}

	case "rename":
		if realExists {
			valid = []syscall.Errno{syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EXDEV, syscall.EROFS}
		} else {
			valid = []syscall.Errno{syscall.ENOENT, syscall.EIO}
		}

	case "stat", "readdir":
		if realExists {
			valid = []syscall.Errno{syscall.EACCES, syscall.EIO}
		} else {
			valid = []syscall.Errno{syscall.ENOENT, syscall.EACCES, syscall.EIO}
		}

	default:
		valid = []syscall.Errno{syscall.EIO}
	}

	errno := valid[c.randIntn(len(valid))]
	c.setState(path, errToState(errno))

	return errno, nil
}

// --- Wrapped builders ---

// chaosOpenOptions forwards to the wrapped builder while tracking whether
// the accumulated flags describe a write open, so sticky EROFS state can
// apply to writes only.
type chaosOpenOptions struct {
	opts     vfs.OpenOptions
	chaos    *Chaos
	writeBit bool
}

func (o *chaosOpenOptions) Read(read bool) vfs.OpenOptions {
	o.opts.Read(read)

	return o
}

func (o *chaosOpenOptions) Write(write bool) vfs.OpenOptions {
	o.opts.Write(write)
	o.writeBit = write

	return o
}

func (o *chaosOpenOptions) Append(appendTo bool) vfs.OpenOptions {
	o.opts.Append(appendTo)

	if appendTo {
		o.writeBit = true
	}

	return o
}

func (o *chaosOpenOptions) Truncate(truncate bool) vfs.OpenOptions {
	o.opts.Truncate(truncate)

	return o
}

func (o *chaosOpenOptions) Create(create bool) vfs.OpenOptions {
	o.opts.Create(create)

	if create {
		o.writeBit = true
	}

	return o
}

func (o *chaosOpenOptions) CreateNew(createNew bool) vfs.OpenOptions {
	o.opts.CreateNew(createNew)

	if createNew {
		o.writeBit = true
	}

	return o
}

func (o *chaosOpenOptions) Mode(mode iofs.FileMode) vfs.OpenOptions {
	o.opts.Mode(mode)

	return o
}

func (o *chaosOpenOptions) Open(path string) (vfs.File, error) {
	op := "open"
	if o.writeBit {
		op = "open-write"
	}

	if errno, ok := o.chaos.maybeFail(op, path, o.chaos.config.OpenFailRate); ok {
		o.chaos.openFails.Add(1)

		return nil, pathError("open", path, errno)
	}

	f, err := o.opts.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: o.chaos, path: path}, nil
}

// chaosDirBuilder forwards to the wrapped builder and injects on Create.
type chaosDirBuilder struct {
	builder vfs.DirBuilder
	chaos   *Chaos
}

func (b *chaosDirBuilder) Recursive(recursive bool) vfs.DirBuilder {
	b.builder.Recursive(recursive)

	return b
}

func (b *chaosDirBuilder) Mode(mode iofs.FileMode) vfs.DirBuilder {
	b.builder.Mode(mode)

	return b
}

func (b *chaosDirBuilder) Create(path string) error {
	if errno, ok := b.chaos.maybeFail("mkdir", path, b.chaos.config.MkdirFailRate); ok {
		b.chaos.mkdirFails.Add(1)

		return pathError("mkdir", path, errno)
	}

	return b.builder.Create(path)
}

// --- Wrapped file ---

type chaosFile struct {
	f     vfs.File
	chaos *Chaos
	path  string
}

func (cf *chaosFile) Read(p []byte) (int, error) {
	c := cf.chaos

	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModeInject && c.should(mode, c.config.ReadFailRate) {
		errno, err := c.pickError("read", cf.path)
		if err == nil {
			c.readFails.Add(1)

			return 0, pathError("read", cf.path, errno)
		}
	}

	if mode == ChaosModeInject && len(p) > 1 && c.should(mode, c.config.PartialReadRate) {
		c.partialReads.Add(1)

		// Short read: legal per io.Reader, but exercises callers that
		// forget to loop.
		return cf.f.Read(p[:1+c.randIntn(len(p)-1)])
	}

	return cf.f.Read(p)
}

func (cf *chaosFile) Write(p []byte) (int, error) {
	c := cf.chaos

	mode := ChaosMode(c.mode.Load())
	if mode != ChaosModePassthrough {
		if state := c.getState(cf.path); state == PathIOError {
			c.writeFails.Add(1)

			return 0, pathError("write", cf.path, syscall.EIO)
		} else if state == PathReadOnly {
			c.writeFails.Add(1)

			return 0, pathError("write", cf.path, syscall.EROFS)
		}
	}

	if mode == ChaosModeInject && c.should(mode, c.config.WriteFailRate) {
		errno, err := c.pickError("write", cf.path)
		if err == nil {
			c.writeFails.Add(1)

			return 0, pathError("write", cf.path, errno)
		}
	}

	if mode == ChaosModeInject && len(p) > 1 && c.should(mode, c.config.PartialWriteRate) {
		c.partialWrites.Add(1)

		// Write a prefix, then report failure: simulates running out of
		// space or crashing mid-write.
		n, err := cf.f.Write(p[:1+c.randIntn(len(p)-1)])
		if err != nil {
			return n, err
		}

		return n, pathError("write", cf.path, syscall.ENOSPC)
	}

	return cf.f.Write(p)
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	return cf.f.Seek(offset, whence)
}

func (cf *chaosFile) Close() error {
	return cf.f.Close()
}

func (cf *chaosFile) Flush() error {
	return cf.f.Flush()
}

func (cf *chaosFile) Metadata() (vfs.Metadata, error) {
	c := cf.chaos

	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModeInject && c.should(mode, c.config.MetadataFailRate) {
		c.metadataFails.Add(1)

		return nil, pathError("stat", cf.path, syscall.EIO)
	}

	return cf.f.Metadata()
}

// --- Wrapped directory stream ---

type chaosReadDir struct {
	stream    vfs.ReadDir
	chaos     *Chaos
	path      string
	truncated bool
}

func (cd *chaosReadDir) Next() (vfs.DirEntry, error) {
	if cd.truncated {
		return nil, io.EOF
	}

	c := cd.chaos

	mode := ChaosMode(c.mode.Load())
	if mode == ChaosModeInject && c.should(mode, c.config.ReadDirTruncateRate) {
		c.truncatedStreams.Add(1)
		cd.truncated = true

		// Early end-of-stream: entries silently lost, as seen on
		// concurrently mutated directories.
		return nil, io.EOF
	}

	return cd.stream.Next()
}

func (cd *chaosReadDir) Close() error {
	return cd.stream.Close()
}

// Compile-time interface checks.
var (
	_ vfs.FS          = (*Chaos)(nil)
	_ vfs.OpenOptions = (*chaosOpenOptions)(nil)
	_ vfs.DirBuilder  = (*chaosDirBuilder)(nil)
	_ vfs.File        = (*chaosFile)(nil)
	_ vfs.ReadDir     = (*chaosReadDir)(nil)
)
