package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/vfs"
	"github.com/calvinalkan/vfs/fsutil"
	"github.com/calvinalkan/vfs/vfstest"
)

// Shell is the interactive command loop.
type Shell struct {
	fsys     vfs.FS
	injector *vfstest.Chaos // nil unless --chaos
	cwd      string
	prompt   string
	history  string
	liner    *liner.State
}

// historyFile returns the path to the history file.
func (s *Shell) historyFile() string {
	if s.history != "" {
		return s.history
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".vsh_history")
}

// Run starts the REPL loop.
func (s *Shell) Run() error {
	// Set up liner for readline-style input
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	// Configure liner
	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	// Load history
	if f, err := os.Open(s.historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("vsh - filesystem shell (root=%s)\n", s.cwd)

	if s.injector != nil {
		fmt.Println("Fault injection is ON. Type 'stats' to see counters.")
	}

	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt(s.prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Add to history
		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			s.saveHistory()

			return nil

		case "help", "?":
			s.printHelp()

		case "ls", "list":
			s.cmdLs(args)

		case "stat":
			s.cmdStat(args)

		case "cat":
			s.cmdCat(args)

		case "write":
			s.cmdWrite(args)

		case "append":
			s.cmdAppend(args)

		case "touch":
			s.cmdTouch(args)

		case "mkdir":
			s.cmdMkdir(args)

		case "mv", "rename":
			s.cmdMv(args)

		case "rm":
			s.cmdRm(args)

		case "rmdir":
			s.cmdRmdir(args)

		case "rmall":
			s.cmdRmall(args)

		case "cp", "copy":
			s.cmdCp(args)

		case "cd":
			s.cmdCd(args)

		case "pwd":
			fmt.Println(s.cwd)

		case "stats":
			s.cmdStats()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	s.saveHistory()

	return nil
}

// saveHistory persists command history to disk.
func (s *Shell) saveHistory() {
	if path := s.historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

// completer provides tab completion for commands.
func (s *Shell) completer(line string) []string {
	commands := []string{
		"ls", "list", "stat", "cat",
		"write", "append", "touch",
		"mkdir", "mv", "rename",
		"rm", "rmdir", "rmall",
		"cp", "copy", "cd", "pwd",
		"stats", "clear", "cls",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (s *Shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  ls [path]               List directory entries")
	fmt.Println("  stat <path>             Show metadata for a path")
	fmt.Println("  cat <path>              Print file contents")
	fmt.Println("  write <path> <text>     Overwrite a file atomically")
	fmt.Println("  append <path> <text>    Append to a file")
	fmt.Println("  touch <path>            Create an empty file (fails if it exists)")
	fmt.Println("  mkdir [-p] <path>       Create a directory (-p creates parents)")
	fmt.Println("  mv <from> <to>          Rename a file or directory")
	fmt.Println("  rm <path>               Remove a file")
	fmt.Println("  rmdir <path>            Remove an empty directory")
	fmt.Println("  rmall <path>            Remove a directory tree")
	fmt.Println("  cp <from> <to>          Copy a file")
	fmt.Println("  cd <path>               Change the working directory")
	fmt.Println("  pwd                     Print the working directory")
	fmt.Println("  stats                   Show fault injector counters (with --chaos)")
	fmt.Println("  help                    Show this help")
	fmt.Println("  exit / quit / q         Exit")
}

// resolve turns a user-supplied path into an absolute one relative to cwd.
func (s *Shell) resolve(arg string) string {
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg)
	}

	return filepath.Clean(filepath.Join(s.cwd, arg))
}

func (s *Shell) cmdLs(args []string) {
	path := s.cwd
	if len(args) >= 1 {
		path = s.resolve(args[0])
	}

	stream, err := s.fsys.ReadDir(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}
	defer stream.Close()

	count := 0

	for {
		entry, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			fmt.Printf("Error reading entry: %v\n", err)

			return
		}

		meta, err := entry.Metadata()
		if err != nil {
			fmt.Printf("%s  (stat failed: %v)\n", entry.Name(), err)

			count++

			continue
		}

		fmt.Println(formatEntry(entry.Name(), meta))

		count++
	}

	if count == 0 {
		fmt.Println("(empty)")
	}
}

// formatEntry renders one ls line: kind, mode, size, name.
func formatEntry(name string, meta vfs.Metadata) string {
	kind := "-"
	if meta.IsDir() {
		kind = "d"
	}

	return fmt.Sprintf("%s %s %8d  %s", kind, meta.Permissions().Mode().Perm(), meta.Len(), name)
}

func (s *Shell) cmdStat(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: stat <path>")

		return
	}

	path := s.resolve(args[0])

	meta, err := s.fsys.Metadata(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	kind := "other"

	switch {
	case meta.FileType().IsDir():
		kind = "directory"
	case meta.FileType().IsFile():
		kind = "file"
	}

	fmt.Printf("Path:      %s\n", path)
	fmt.Printf("Type:      %s\n", kind)
	fmt.Printf("Size:      %d bytes\n", meta.Len())
	fmt.Printf("Mode:      %s\n", meta.Permissions().Mode().Perm())
	fmt.Printf("Readonly:  %v\n", meta.Permissions().Readonly())
}

func (s *Shell) cmdCat(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: cat <path>")

		return
	}

	data, err := fsutil.ReadFile(s.fsys, s.resolve(args[0]))
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	os.Stdout.Write(data)

	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Println()
	}
}

func (s *Shell) cmdWrite(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: write <path> <text>")

		return
	}

	path := s.resolve(args[0])
	data := []byte(strings.Join(args[1:], " ") + "\n")

	err := fsutil.WriteFileAtomic(s.fsys, path, data, 0o644)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: wrote %d bytes to %s\n", len(data), path)
}

func (s *Shell) cmdAppend(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: append <path> <text>")

		return
	}

	path := s.resolve(args[0])
	data := []byte(strings.Join(args[1:], " ") + "\n")

	f, err := s.fsys.NewOpenOptions().Append(true).Create(true).Open(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}
	defer f.Close()

	n, err := f.Write(data)
	if err != nil {
		fmt.Printf("Error after %d bytes: %v\n", n, err)

		return
	}

	fmt.Printf("OK: appended %d bytes to %s\n", n, path)
}

func (s *Shell) cmdTouch(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: touch <path>")

		return
	}

	path := s.resolve(args[0])

	f, err := s.fsys.NewOpenOptions().Write(true).CreateNew(true).Open(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if err := f.Close(); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: created %s\n", path)
}

func (s *Shell) cmdMkdir(args []string) {
	recursive := false

	if len(args) >= 1 && args[0] == "-p" {
		recursive = true
		args = args[1:]
	}

	if len(args) < 1 {
		fmt.Println("Usage: mkdir [-p] <path>")

		return
	}

	path := s.resolve(args[0])

	err := s.fsys.NewDirBuilder().Recursive(recursive).Create(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: created %s\n", path)
}

func (s *Shell) cmdMv(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: mv <from> <to>")

		return
	}

	from, to := s.resolve(args[0]), s.resolve(args[1])

	err := s.fsys.Rename(from, to)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: %s -> %s\n", from, to)
}

func (s *Shell) cmdRm(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: rm <path>")

		return
	}

	path := s.resolve(args[0])

	err := s.fsys.RemoveFile(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: removed %s\n", path)
}

func (s *Shell) cmdRmdir(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: rmdir <path>")

		return
	}

	path := s.resolve(args[0])

	err := s.fsys.RemoveDir(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: removed %s\n", path)
}

func (s *Shell) cmdRmall(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: rmall <path>")

		return
	}

	path := s.resolve(args[0])

	answer, err := s.liner.Prompt(fmt.Sprintf("Remove %s and everything under it? (yes/no): ", path))
	if err != nil {
		fmt.Println("Cancelled.")

		return
	}

	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer != "yes" && answer != "y" {
		fmt.Println("Cancelled.")

		return
	}

	err = s.fsys.RemoveDirAll(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: removed %s\n", path)
}

func (s *Shell) cmdCp(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: cp <from> <to>")

		return
	}

	from, to := s.resolve(args[0]), s.resolve(args[1])

	data, err := fsutil.ReadFile(s.fsys, from)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	err = fsutil.WriteFile(s.fsys, to, data, 0o644)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: copied %d bytes %s -> %s\n", len(data), from, to)
}

func (s *Shell) cmdCd(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: cd <path>")

		return
	}

	path := s.resolve(args[0])

	meta, err := s.fsys.Metadata(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if !meta.IsDir() {
		fmt.Printf("Error: %s is not a directory\n", path)

		return
	}

	s.cwd = path
}

func (s *Shell) cmdStats() {
	if s.injector == nil {
		fmt.Println("Fault injection is off (start with --chaos).")

		return
	}

	stats := s.injector.Stats()

	fmt.Printf("Fault injector (total=%d):\n", s.injector.TotalFaults())
	fmt.Printf("  Metadata:       %d\n", stats.MetadataFails)
	fmt.Printf("  Open:           %d\n", stats.OpenFails)
	fmt.Printf("  Read:           %d (partial: %d)\n", stats.ReadFails, stats.PartialReads)
	fmt.Printf("  Write:          %d (partial: %d)\n", stats.WriteFails, stats.PartialWrites)
	fmt.Printf("  ReadDir:        %d (truncated: %d)\n", stats.ReadDirFails, stats.TruncatedStreams)
	fmt.Printf("  Mkdir:          %d\n", stats.MkdirFails)
	fmt.Printf("  Remove:         %d\n", stats.RemoveFails)
	fmt.Printf("  Rename:         %d\n", stats.RenameFails)
}
