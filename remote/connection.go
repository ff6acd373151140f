package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/m-manu/sshpath/fmte"
)

// Connection describes one remote host: who to log in as, where, and how commands are run.
// Its identity never changes after construction; use a new Connection for another host.
// A Connection is safe for concurrent use.
type Connection struct {
	loc       Location
	keyPath   string
	binary    string
	timeout   time.Duration
	runner    Runner
	serialize bool
	useSFTP   bool
	listing   ListingProtocol
	cache     StatCachePolicy
	now       func() time.Time

	slot chan struct{} // one token, held across Execute calls when serialize is set

	sftpMx sync.Mutex
	sftp   *sftpSession
}

// Configure builds a Connection for [user@]host. An empty user leaves the choice to ssh.
func Configure(user, host string, opts ...Option) *Connection {
	return NewConnection(Location{IsRemote: true, User: user, Host: host, Path: "/"}, opts...)
}

// NewConnection builds a Connection for the host named by a parsed remote Location.
// The Location's path is not part of the connection.
func NewConnection(loc Location, opts ...Option) *Connection {
	c := &Connection{
		loc:     Location{IsRemote: true, User: loc.User, Host: loc.Host, Port: loc.Port, Path: "/"},
		binary:  defaultSSHBinary,
		timeout: DefaultTimeout,
		listing: ListingShell,
		cache:   CacheForever,
		now:     time.Now,
		slot:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = sshRunner{binary: c.binary, loc: c.loc, keyPath: c.keyPath}
	}
	return c
}

// User returns the login name, possibly empty
func (c *Connection) User() string {
	return c.loc.User
}

// Host returns the host name
func (c *Connection) Host() string {
	return c.loc.Host
}

// Location returns the connection's address with "/" as path
func (c *Connection) Location() Location {
	return c.loc
}

// Listing returns the configured directory listing protocol
func (c *Connection) Listing() ListingProtocol {
	return c.listing
}

// StatCache returns the attribute reuse policy
func (c *Connection) StatCache() StatCachePolicy {
	return c.cache
}

// Now returns the current time per the connection's clock
func (c *Connection) Now() time.Time {
	return c.now()
}

// SameIdentity reports whether both connections address the same login on the same host
func (c *Connection) SameIdentity(other *Connection) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.loc.User == other.loc.User && c.loc.Host == other.loc.Host &&
		c.loc.SSHAddr() == other.loc.SSHAddr()
}

// String returns "user@host" or "host" (with ":port" when not 22)
func (c *Connection) String() string {
	if c.loc.Port != 0 && c.loc.Port != 22 {
		return fmt.Sprintf("%s:%d", c.loc.SSHSpec(), c.loc.Port)
	}
	return c.loc.SSHSpec()
}

// Execute runs a remote command and returns its output lines in order, without trailing
// blank lines. No output gives an empty slice.
func (c *Connection) Execute(ctx context.Context, tokens ...string) ([]string, error) {
	out, err := c.ExecuteRaw(ctx, tokens...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// ExecuteRequired is Execute for commands that must print at least one line.
func (c *Connection) ExecuteRequired(ctx context.Context, tokens ...string) ([]string, error) {
	lines, err := c.Execute(ctx, tokens...)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &CommandError{Target: c.String(), Command: tokens, Err: ErrEmptyOutput}
	}
	return lines, nil
}

// ExecuteRaw runs a remote command and returns its standard output untouched.
func (c *Connection) ExecuteRaw(ctx context.Context, tokens ...string) ([]byte, error) {
	if len(tokens) == 0 {
		return nil, &CommandError{Target: c.String(), ExitCode: -1, Err: errors.New("empty command")}
	}
	// waiting for the slot doesn't count against the call's own timeout
	if c.serialize {
		select {
		case c.slot <- struct{}{}:
			defer func() { <-c.slot }()
		case <-ctx.Done():
			return nil, &CommandError{Target: c.String(), Command: tokens, ExitCode: -1, Err: ctx.Err()}
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	fmte.Tracef("[%s] %s\n", c, strings.Join(tokens, " "))
	var stdout, stderr bytes.Buffer
	err := c.runner.Run(ctx, Command{Args: tokens, Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		return nil, c.classify(ctx, tokens, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

// classify turns a Runner error into a ConnectionError or CommandError
func (c *Connection) classify(ctx context.Context, tokens []string, stderr string, err error) error {
	if ctx.Err() != nil {
		return &CommandError{Target: c.String(), Command: tokens, ExitCode: -1, Stderr: stderr, Err: context.Cause(ctx)}
	}
	var coder exitCoder
	if !errors.As(err, &coder) {
		return &ConnectionError{Target: c.String(), Err: err}
	}
	if coder.ExitCode() == sshConnectFailure {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = err.Error()
		}
		return &ConnectionError{Target: c.String(), Err: errors.New(msg)}
	}
	return &CommandError{Target: c.String(), Command: tokens, ExitCode: coder.ExitCode(), Stderr: stderr, Err: err}
}

// Close releases the sftp session, if one was opened
func (c *Connection) Close() error {
	c.sftpMx.Lock()
	defer c.sftpMx.Unlock()
	if c.sftp == nil {
		return nil
	}
	err := c.sftp.close()
	c.sftp = nil
	return err
}

// splitLines splits command output into lines, dropping trailing lines that are empty.
// Lines holding only whitespace are kept: they may be names.
func splitLines(out []byte) []string {
	lines := strings.Split(string(out), "\n")
	for len(lines) > 0 {
		last := lines[len(lines)-1]
		if last != "" && last != "\r" {
			break
		}
		lines = lines[:len(lines)-1]
	}
	return lines
}

var _ io.Closer = (*Connection)(nil)
