package action

import (
	"context"
	"fmt"

	"github.com/m-manu/sshpath/fs"
)

// RemoveRecursive deletes p and everything below it, children first. A directory is only
// removed once all of its entries are gone. The first failure stops the removal.
func RemoveRecursive(ctx context.Context, p fs.Endpoint, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := p.Info(ctx)
	if err != nil {
		return &OpError{Op: "stat", Path: p.String(), Err: err}
	}
	if !info.IsDir() {
		if err := p.Unlink(ctx); err != nil {
			return &OpError{Op: "unlink", Path: p.String(), Err: err}
		}
		opts.report("unlink", p.String(), info.Size)
		return nil
	}
	children, err := p.List(ctx)
	if err != nil {
		return &OpError{Op: "list", Path: p.String(), Err: err}
	}
	err = forEach(ctx, opts.Parallelism, children, func(ctx context.Context, child fs.Endpoint) error {
		return RemoveRecursive(ctx, child, opts)
	})
	if err != nil {
		return err
	}
	if err := p.Rmdir(ctx); err != nil {
		return &OpError{Op: "rmdir", Path: p.String(), Err: err}
	}
	opts.report("rmdir", p.String(), 0)
	return nil
}

// RemoveAction deletes a file or tree
type RemoveAction struct {
	Target  fs.Endpoint
	Options Options
}

func (a RemoveAction) UnixCommand() string {
	if rp, ok := a.Target.(fs.RemotePath); ok {
		return sshCommand(rp, "rm", "-r", "--", quoted(rp))
	}
	return fmt.Sprintf(`rm -r "%s"`, escape(a.Target.String()))
}

func (a RemoveAction) Perform(ctx context.Context) error {
	return RemoveRecursive(ctx, a.Target, a.Options)
}

func (a RemoveAction) Uniqueness() string {
	return "rm" + cmdSeparator + a.Target.String()
}

func (a RemoveAction) String() string {
	return fmt.Sprintf(`remove "%s"`, a.Target)
}
