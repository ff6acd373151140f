package remote

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/m-manu/sshpath/fmte"
)

// Quote shell-quotes one argument for the remote shell
func Quote(s string) string {
	return shellquote.Join(s)
}

// Open streams the contents of a remote file. The stream ends with an error if the remote
// read fails, or with ErrTransferStalled if no data arrives for the connection's timeout.
// Closing the reader early abandons the transfer.
func (c *Connection) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if c.useSFTP {
		client, err := c.sftpClient()
		if err != nil {
			return nil, err
		}
		return client.Open(path)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	idle := newIdleTimer(c.timeout, cancel)
	pr, pw := io.Pipe()
	tokens := []string{"cat", "--", Quote(path)}
	fmte.Tracef("[%s] %s\n", c, strings.Join(tokens, " "))
	go func() {
		var stderr strings.Builder
		err := c.runner.Run(ctx, Command{Args: tokens, Stdout: pw, Stderr: &stderr})
		idle.stop()
		if err != nil {
			err = c.classify(ctx, tokens, stderr.String(), err)
		}
		_ = pw.CloseWithError(err)
	}()
	return &readStream{PipeReader: pr, cancel: cancel, idle: idle}, nil
}

// Create streams data into a remote file, truncating it if it exists. The remote side's
// outcome is reported by Close. Like Open, a transfer that makes no progress for the
// connection's timeout is abandoned with ErrTransferStalled.
func (c *Connection) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if c.useSFTP {
		client, err := c.sftpClient()
		if err != nil {
			return nil, err
		}
		return client.Create(path)
	}
	ctx, cancel := context.WithCancelCause(ctx)
	idle := newIdleTimer(c.timeout, cancel)
	pr, pw := io.Pipe()
	tokens := []string{"cat", ">", Quote(path)}
	fmte.Tracef("[%s] %s\n", c, strings.Join(tokens, " "))
	done := make(chan error, 1)
	go func() {
		var stderr strings.Builder
		err := c.runner.Run(ctx, Command{Args: tokens, Stdin: pr, Stderr: &stderr})
		idle.stop()
		if err != nil {
			err = c.classify(ctx, tokens, stderr.String(), err)
			_ = pr.CloseWithError(err)
		} else {
			_ = pr.Close()
		}
		cancel(nil)
		done <- err
	}()
	return &writeStream{PipeWriter: pw, done: done, idle: idle}, nil
}

// idleTimer cancels a transfer once it has gone a whole period without progress.
// A zero period never fires.
type idleTimer struct {
	period  time.Duration
	mx      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newIdleTimer(period time.Duration, cancel context.CancelCauseFunc) *idleTimer {
	t := &idleTimer{period: period}
	if period > 0 {
		t.timer = time.AfterFunc(period, func() { cancel(ErrTransferStalled) })
	}
	return t
}

func (t *idleTimer) kick() {
	if t.timer == nil {
		return
	}
	t.mx.Lock()
	defer t.mx.Unlock()
	if !t.stopped {
		t.timer.Reset(t.period)
	}
}

func (t *idleTimer) stop() {
	if t.timer == nil {
		return
	}
	t.mx.Lock()
	defer t.mx.Unlock()
	t.stopped = true
	t.timer.Stop()
}

type readStream struct {
	*io.PipeReader
	cancel context.CancelCauseFunc
	idle   *idleTimer
}

func (r *readStream) Read(p []byte) (int, error) {
	n, err := r.PipeReader.Read(p)
	if n > 0 {
		r.idle.kick()
	}
	return n, err
}

func (r *readStream) Close() error {
	r.idle.stop()
	r.cancel(nil)
	return r.PipeReader.Close()
}

type writeStream struct {
	*io.PipeWriter
	idle   *idleTimer
	done   chan error
	closed bool
	err    error
}

func (w *writeStream) Write(p []byte) (int, error) {
	n, err := w.PipeWriter.Write(p)
	if n > 0 {
		w.idle.kick()
	}
	return n, err
}

func (w *writeStream) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	_ = w.PipeWriter.Close()
	w.err = <-w.done
	return w.err
}
