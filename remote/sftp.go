package remote

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/m-manu/sshpath/fmte"
	"github.com/pkg/sftp"
)

// sftpSession is one ssh process running the sftp subsystem, shared by every stream of a Connection
type sftpSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	client *sftp.Client
}

func dialSFTP(binary string, loc Location, keyPath string) (*sftpSession, error) {
	sshCmd := SSHSubsystemCommand(binary, loc, keyPath, "sftp")
	sshStdin, err := sshCmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("SFTP stdin pipe failed: %w", err)
	}
	sshStdout, err := sshCmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("SFTP stdout pipe failed: %w", err)
	}
	if err := sshCmd.Start(); err != nil {
		return nil, fmt.Errorf("SFTP ssh command failed: %w", err)
	}
	client, err := sftp.NewClientPipe(sshStdout, sshStdin)
	if err != nil {
		_ = sshCmd.Process.Kill()
		_ = sshCmd.Wait()
		return nil, fmt.Errorf("SFTP connection failed: %w", err)
	}
	return &sftpSession{cmd: sshCmd, stdin: sshStdin, client: client}, nil
}

func (s *sftpSession) close() error {
	err := s.client.Close()
	_ = s.stdin.Close()
	_ = s.cmd.Wait()
	return err
}

// sftpClient returns the connection's sftp session, dialing it on first use
func (c *Connection) sftpClient() (*sftp.Client, error) {
	c.sftpMx.Lock()
	defer c.sftpMx.Unlock()
	if c.sftp != nil {
		return c.sftp.client, nil
	}
	fmte.Tracef("[%s] opening sftp session\n", c)
	session, err := dialSFTP(c.binary, c.loc, c.keyPath)
	if err != nil {
		return nil, &ConnectionError{Target: c.String(), Err: err}
	}
	c.sftp = session
	return session.client, nil
}
