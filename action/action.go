package action

import (
	"context"
	"fmt"
	"strings"

	set "github.com/deckarep/golang-set/v2"
	"github.com/m-manu/sshpath/fs"
	"github.com/m-manu/sshpath/remote"
)

// Action is one tree operation, ready to perform or to print as an equivalent shell command
type Action interface {
	// UnixCommand must generate a unix command
	UnixCommand() string
	// Perform must perform the actual action
	Perform(ctx context.Context) error
	// Uniqueness should define a string that's unique with an action
	Uniqueness() string
	String() string
}

// Event reports one completed step of a tree operation
type Event struct {
	Op   string
	Path string
	Size int64
}

// Options tunes Copy, Move and RemoveRecursive.
type Options struct {
	// Parallelism bounds how many siblings of one directory are processed at once.
	// 1 or less means strictly sequential.
	Parallelism int
	// Exclude holds base names that Copy skips. Move and RemoveRecursive ignore it.
	Exclude set.Set[string]
	// PreserveTimes copies modification times to the destination
	PreserveTimes bool
	// Progress, if set, is called after every completed step. It may be called concurrently.
	Progress func(Event)
}

func (o Options) excluded(name string) bool {
	return o.Exclude != nil && o.Exclude.Contains(name)
}

func (o Options) report(op, path string, size int64) {
	if o.Progress != nil {
		o.Progress(Event{Op: op, Path: path, Size: size})
	}
}

// OpError names the entry a tree operation failed on.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

const cmdSeparator = "\u0001"

func escape(path string) string {
	escaped := path
	escaped = strings.ReplaceAll(escaped, "\\", "\\\\") // This replace should be first
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	escaped = strings.ReplaceAll(escaped, "!", "\\!")
	escaped = strings.ReplaceAll(escaped, "`", "\\`")
	escaped = strings.ReplaceAll(escaped, "$", "\\$")
	return escaped
}

// scpArg renders an endpoint the way scp addresses it
func scpArg(e fs.Endpoint) string {
	if rp, ok := e.(fs.RemotePath); ok {
		return fmt.Sprintf(`"%s:%s"`, escape(rp.Connection().Location().SSHSpec()), escape(quoted(rp)))
	}
	return fmt.Sprintf(`"%s"`, escape(e.String()))
}

// sshCommand renders a command run on rp's host
func sshCommand(rp fs.RemotePath, tokens ...string) string {
	return fmt.Sprintf(`ssh %s "%s"`, sshTarget(rp), escape(strings.Join(tokens, " ")))
}

func sshTarget(rp fs.RemotePath) string {
	loc := rp.Connection().Location()
	if loc.Port != 0 && loc.Port != 22 {
		return fmt.Sprintf("-p %d %s", loc.Port, loc.SSHSpec())
	}
	return loc.SSHSpec()
}

func quoted(rp fs.RemotePath) string {
	return remote.Quote(rp.Path())
}

// scpPortFlag returns "-P N" when a remote endpoint uses a non-default port
func scpPortFlag(endpoints ...fs.Endpoint) string {
	for _, e := range endpoints {
		if rp, ok := e.(fs.RemotePath); ok {
			if port := rp.Connection().Location().Port; port != 0 && port != 22 {
				return fmt.Sprintf(" -P %d", port)
			}
		}
	}
	return ""
}
