package remote

import (
	"context"
	"fmt"
	"os/exec"
)

const defaultSSHBinary = "ssh"

// SSHArgs builds the command-line arguments for the system ssh binary, up to and including
// the destination. Remote command tokens are appended by the caller.
func SSHArgs(loc Location, explicitKeyPath string) []string {
	args := make([]string, 0, 10)
	if loc.Port != 0 {
		args = append(args, "-p", fmt.Sprintf("%d", loc.Port))
	}
	if explicitKeyPath != "" {
		args = append(args, "-i", explicitKeyPath)
	}
	// Never prompt: authentication belongs to the agent or ssh config
	args = append(args, "-o", "BatchMode=yes")
	// Disable pseudo-terminal allocation for non-interactive use
	args = append(args, "-T")
	args = append(args, loc.SSHSpec())
	return args
}

// SSHCommand creates an exec.Cmd that runs the given remote command tokens via system ssh.
// ssh joins the tokens with spaces and hands the result to the remote shell, so tokens
// must already be shell-quoted.
func SSHCommand(ctx context.Context, binary string, loc Location, explicitKeyPath string, tokens ...string) *exec.Cmd {
	args := SSHArgs(loc, explicitKeyPath)
	args = append(args, tokens...)
	return exec.CommandContext(ctx, binary, args...)
}

// SSHSubsystemCommand creates an exec.Cmd that invokes an SSH subsystem (e.g. sftp).
func SSHSubsystemCommand(binary string, loc Location, explicitKeyPath string, subsystem string) *exec.Cmd {
	args := make([]string, 0, 10)
	if loc.Port != 0 {
		args = append(args, "-p", fmt.Sprintf("%d", loc.Port))
	}
	if explicitKeyPath != "" {
		args = append(args, "-i", explicitKeyPath)
	}
	args = append(args, "-o", "BatchMode=yes")
	args = append(args, "-s", loc.SSHSpec(), subsystem)
	return exec.Command(binary, args...)
}
