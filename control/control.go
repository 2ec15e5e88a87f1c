// Package control parses the add-file / add-dir control-channel command
// surface (§6), the same pflag-based repeated-flag convention the teacher
// uses for its CLI (cmd/ + fs/config/configflags), applied here to an
// external operator channel instead of process argv.
package control

import (
	"fmt"
	"io"

	"github.com/flowcap/ingest"
	"github.com/spf13/pflag"
)

// expectedPositional bounds an add-file/add-dir invocation to exactly one trailing
// path-or-uri positional argument.
const expectedPositional = 1

// Command is one parsed add-file/add-dir invocation, ready to hand to
// Worker.Submit once its URI is resolved.
type Command struct {
	URI     string
	Flags   ingest.Flags
	Actions *ingest.ActionSet
}

// ParseAddFile parses an "add-file" invocation's argument vector.
func ParseAddFile(args []string) (Command, error) {
	return parse("add-file", args, false)
}

// ParseAddDir parses an "add-dir" invocation's argument vector.
func ParseAddDir(args []string) (Command, error) {
	return parse("add-dir", args, true)
}

func parse(name string, args []string, dirCmd bool) (Command, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	del := fs.Bool("delete", false, "remove the source file once fully ingested")
	fs.Bool("nodelete", false, "explicitly do not remove the source file")
	skip := fs.Bool("skip", false, "skip files already recorded as ingested")
	fs.Bool("noskip", false, "explicitly do not skip already-ingested files")
	var ops []string
	fs.StringArrayVar(&ops, "op", nil, "field=value action, may repeat up to ingest.MaxActions times")

	var monitor, recursive *bool
	if dirCmd {
		monitor = fs.Bool("monitor", false, "poll the directory for newly-arrived files")
		fs.Bool("nomonitor", false, "explicitly do not poll for new files")
		recursive = fs.Bool("recursive", false, "expand nested directories")
		fs.Bool("norecursive", false, "explicitly do not expand nested directories")
	}

	if err := fs.Parse(args); err != nil {
		return Command{}, ingest.NewError(ingest.OpParseFailure, "", false, err)
	}

	rest := fs.Args()
	if len(rest) != expectedPositional {
		return Command{}, ingest.NewError(ingest.OpParseFailure, "", false,
			fmt.Errorf("%s: expected exactly one path-or-uri argument, got %d", name, len(rest)))
	}

	actions, err := ingest.ParseActionSet(ops)
	if err != nil {
		return Command{}, err
	}

	var flags ingest.Flags
	if *del {
		flags = flags.With(ingest.DeleteAfter)
	}
	if *skip {
		flags = flags.With(ingest.SkipProcessed)
	}
	if dirCmd {
		flags = flags.With(ingest.DirHint)
		if *monitor {
			flags = flags.With(ingest.Monitor)
		}
		if *recursive {
			flags = flags.With(ingest.Recursive)
		}
	}

	return Command{URI: rest[0], Flags: flags, Actions: actions}, nil
}
