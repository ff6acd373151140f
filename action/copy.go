package action

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/m-manu/sshpath/fs"
)

// ErrIntoItself is wrapped by the OpError of a copy or move whose destination lies inside its source
var ErrIntoItself = errors.New("destination is the source or inside it")

// Copy copies src to dst. A file is streamed in one transfer. A directory is created at dst
// first and then filled, child by child. The first failure stops the copy and is returned as
// an *OpError naming the entry; whatever was already copied stays in place.
func Copy(ctx context.Context, src, dst fs.Endpoint, opts Options) error {
	route, err := Classify(src, dst)
	if err != nil {
		return err
	}
	if err := checkNotInside(route, src, dst, "copy"); err != nil {
		return err
	}
	return copyTree(ctx, src, dst, opts)
}

// checkNotInside refuses a same-host dst that is src itself or lies below it: listing src
// would pick up what was just created there and never finish.
func checkNotInside(route Route, src, dst fs.Endpoint, op string) error {
	if route != RemoteToRemoteSameHost {
		return nil
	}
	s, d := src.(fs.RemotePath).Path(), dst.(fs.RemotePath).Path()
	prefix := s
	if prefix != "/" {
		prefix += "/"
	}
	if d == s || strings.HasPrefix(d, prefix) {
		return &OpError{Op: op, Path: src.String(), Err: ErrIntoItself}
	}
	return nil
}

func copyTree(ctx context.Context, src, dst fs.Endpoint, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := src.Info(ctx)
	if err != nil {
		return &OpError{Op: "stat", Path: src.String(), Err: err}
	}
	switch {
	case info.IsRegular():
		return copyFile(ctx, src, dst, info, opts)
	case info.IsDir():
		if err := dst.Mkdir(ctx); err != nil {
			return &OpError{Op: "mkdir", Path: dst.String(), Err: err}
		}
		opts.report("mkdir", dst.String(), 0)
		children, err := src.List(ctx)
		if err != nil {
			return &OpError{Op: "list", Path: src.String(), Err: err}
		}
		err = forEach(ctx, opts.Parallelism, children, func(ctx context.Context, child fs.Endpoint) error {
			if opts.excluded(child.Name()) {
				return nil
			}
			target, err := dst.Child(child.Name())
			if err != nil {
				return &OpError{Op: "join", Path: dst.String(), Err: err}
			}
			return copyTree(ctx, child, target, opts)
		})
		if err != nil {
			return err
		}
		if opts.PreserveTimes {
			return PropagateTimestampAction{Destination: dst, ModTime: info.ModTime}.Perform(ctx)
		}
		return nil
	default:
		return &OpError{Op: "copy", Path: src.String(),
			Err: &fs.UnsupportedOperationError{Op: "copying a " + info.Type.String()}}
	}
}

func copyFile(ctx context.Context, src, dst fs.Endpoint, info fs.FileInfo, opts Options) error {
	r, err := src.Open(ctx)
	if err != nil {
		return &OpError{Op: "open", Path: src.String(), Err: err}
	}
	defer r.Close()

	// An unreadable source must not leave an empty destination behind
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil && !errors.Is(err, io.EOF) {
		return &OpError{Op: "read", Path: src.String(), Err: err}
	}

	w, err := dst.Create(ctx)
	if err != nil {
		return &OpError{Op: "create", Path: dst.String(), Err: err}
	}
	n, err := io.Copy(w, br)
	if err != nil {
		_ = w.Close()
		return &OpError{Op: "copy", Path: src.String(), Err: err}
	}
	if err := w.Close(); err != nil {
		return &OpError{Op: "write", Path: dst.String(), Err: err}
	}
	if opts.PreserveTimes {
		if err := (PropagateTimestampAction{Destination: dst, ModTime: info.ModTime}).Perform(ctx); err != nil {
			return err
		}
	}
	opts.report("copy", src.String(), n)
	return nil
}

// CopyAction copies a file or tree
type CopyAction struct {
	Source      fs.Endpoint
	Destination fs.Endpoint
	Options     Options
}

func (a CopyAction) UnixCommand() string {
	route, err := Classify(a.Source, a.Destination)
	if err != nil {
		return fmt.Sprintf(`cp -r "%s" "%s"`, escape(a.Source.String()), escape(a.Destination.String()))
	}
	if route == RemoteToRemoteSameHost {
		src, dst := a.Source.(fs.RemotePath), a.Destination.(fs.RemotePath)
		return sshCommand(src, "cp", "-r", "--", quoted(src), quoted(dst))
	}
	flags := "-r"
	if a.Options.PreserveTimes {
		flags += "p"
	}
	if route == RemoteToRemoteCrossHost {
		flags += " -3"
	}
	flags += scpPortFlag(a.Source, a.Destination)
	return fmt.Sprintf("scp %s %s %s", flags, scpArg(a.Source), scpArg(a.Destination))
}

func (a CopyAction) Perform(ctx context.Context) error {
	return Copy(ctx, a.Source, a.Destination, a.Options)
}

// Uniqueness is keyed on destination: one source can serve multiple copies
func (a CopyAction) Uniqueness() string {
	return "cp" + cmdSeparator + a.Destination.String()
}

func (a CopyAction) String() string {
	return fmt.Sprintf(`copy "%s" to "%s"`, a.Source, a.Destination)
}
