package remote

import (
	"errors"
	"fmt"
	"strings"
)

// sshConnectFailure is the exit status ssh reserves for its own failures
const sshConnectFailure = 255

// ErrEmptyOutput is wrapped by a CommandError when a command that must print something didn't
var ErrEmptyOutput = errors.New("remote command produced no output")

// ErrTransferStalled is wrapped by a CommandError when a streamed transfer moved no data for
// a whole timeout period
var ErrTransferStalled = errors.New("transfer stalled")

// ConnectionError means the remote command channel could not be established. ssh reports its
// own failures with exit status 255, and so any exit 255 is taken to be one: a remote command
// that itself exits with 255 is reported as a ConnectionError too. Matching stderr can't tell
// them apart, since messages such as "Host key verification failed." carry no common prefix.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("couldn't connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CommandError means the remote command ran but failed: non-zero exit, timeout, or output
// that the caller required and didn't get.
type CommandError struct {
	Target   string
	Command  []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "remote command %q on %s failed", strings.Join(e.Command, " "), e.Target)
	if e.ExitCode > 0 {
		fmt.Fprintf(&sb, " with exit code %d", e.ExitCode)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		sb.WriteString(": ")
		sb.WriteString(msg)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
