// vsh is an interactive shell over a vfs filesystem.
//
// Usage:
//
//	vsh [flags] [root-dir]
//
// Flags:
//
//	-r, --root         Root directory to operate in (default: config or ".")
//	-c, --config       Explicit config file (JSONC, default: .vsh.json)
//	    --history      History file path
//	    --chaos        Wrap the disk backend in a fault injector
//	    --seed         Fault injector seed (default: 1)
//	    --fail-rate    Uniform failure rate for all injected ops (default: 0.05)
//
// Commands (in REPL):
//
//	ls [path]               List directory entries
//	stat <path>             Show metadata for a path
//	cat <path>              Print file contents
//	write <path> <text>     Overwrite a file atomically
//	append <path> <text>    Append to a file
//	touch <path>            Create an empty file (fails if it exists)
//	mkdir [-p] <path>       Create a directory
//	mv <from> <to>          Rename a file or directory
//	rm <path>               Remove a file
//	rmdir <path>            Remove an empty directory
//	rmall <path>            Remove a directory tree
//	cp <from> <to>          Copy a file
//	cd <path>               Change the working directory
//	pwd                     Print the working directory
//	stats                   Show fault injector counters (with --chaos)
//	help                    Show this help
//	exit / quit / q         Exit
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/vfs"
	"github.com/calvinalkan/vfs/disk"
	"github.com/calvinalkan/vfs/vfstest"
)

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("vsh", flag.ContinueOnError)

	root := fs.StringP("root", "r", "", "root directory to operate in")
	configPath := fs.StringP("config", "c", "", "explicit config file")
	history := fs.String("history", "", "history file path")
	chaos := fs.Bool("chaos", false, "wrap the disk backend in a fault injector")
	seed := fs.Int64("seed", 1, "fault injector seed")
	failRate := fs.Float64("fail-rate", 0.05, "uniform failure rate for injected ops")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vsh [flags] [root-dir]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}

		return err
	}

	// A positional root argument wins over --root.
	if fs.NArg() > 0 {
		*root = fs.Arg(0)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfg, _, err := LoadConfig(workDir, *configPath, Config{
		Root:        *root,
		HistoryFile: *history,
	}, *root != "", os.Environ())
	if err != nil {
		return err
	}

	rootAbs := cfg.Root
	if !filepath.IsAbs(rootAbs) {
		rootAbs = filepath.Join(workDir, rootAbs)
	}

	rootAbs = filepath.Clean(rootAbs)

	var fsys vfs.FS = disk.New()

	var injector *vfstest.Chaos

	if *chaos {
		injector = vfstest.NewChaos(fsys, *seed, uniformChaosConfig(*failRate))
		injector.SetMode(vfstest.ChaosModeInject)
		fsys = injector
	}

	if meta, err := fsys.Metadata(rootAbs); err != nil {
		return fmt.Errorf("root directory %s: %w", rootAbs, err)
	} else if !meta.IsDir() {
		return fmt.Errorf("root %s is not a directory", rootAbs)
	}

	sh := &Shell{
		fsys:     fsys,
		injector: injector,
		cwd:      rootAbs,
		prompt:   cfg.Prompt,
		history:  cfg.HistoryFile,
	}

	return sh.Run()
}

// uniformChaosConfig applies one rate to every fallible operation.
func uniformChaosConfig(rate float64) vfstest.ChaosConfig {
	return vfstest.ChaosConfig{
		MetadataFailRate:    rate,
		OpenFailRate:        rate,
		ReadFailRate:        rate,
		WriteFailRate:       rate,
		ReadDirFailRate:     rate,
		ReadDirTruncateRate: rate,
		MkdirFailRate:       rate,
		RemoveFailRate:      rate,
		RenameFailRate:      rate,
	}
}
