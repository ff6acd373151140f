package remote

import (
	"context"
	"io"
)

// Command is one remote invocation. Args are remote command tokens, already shell-quoted;
// they are joined with spaces and interpreted by the remote shell.
type Command struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner is the execution layer underneath a Connection. Implementations must isolate calls
// from each other: concurrent Run calls share no buffers.
//
// A Run that reaches the remote side and fails returns an error with an ExitCode() int method
// (*exec.ExitError does). Any other error means the remote side was never reached.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

type exitCoder interface {
	ExitCode() int
}

// sshRunner runs commands through the system ssh binary
type sshRunner struct {
	binary  string
	loc     Location
	keyPath string
}

func (r sshRunner) Run(ctx context.Context, cmd Command) error {
	c := SSHCommand(ctx, r.binary, r.loc, r.keyPath, cmd.Args...)
	c.Stdin = cmd.Stdin
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr
	return c.Run()
}
