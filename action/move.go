package action

import (
	"context"
	"fmt"

	"github.com/m-manu/sshpath/fs"
)

// Move moves src to dst. On one host this is a single rename. Between hosts, or between this
// machine and a host, it is a full Copy followed by RemoveRecursive of src; src is only touched
// once the copy has succeeded.
func Move(ctx context.Context, src, dst fs.Endpoint, opts Options) error {
	route, err := Classify(src, dst)
	if err != nil {
		return err
	}
	if err := checkNotInside(route, src, dst, "move"); err != nil {
		return err
	}
	if route == RemoteToRemoteSameHost {
		if _, err := src.(fs.RemotePath).Rename(ctx, dst.(fs.RemotePath)); err != nil {
			return &OpError{Op: "rename", Path: src.String(), Err: err}
		}
		opts.report("rename", src.String(), 0)
		return nil
	}
	// Skipping entries would make the removal below destroy them
	copyOpts := opts
	copyOpts.Exclude = nil
	if err := copyTree(ctx, src, dst, copyOpts); err != nil {
		return err
	}
	return RemoveRecursive(ctx, src, opts)
}

// MoveAction moves or renames a file or tree
type MoveAction struct {
	Source      fs.Endpoint
	Destination fs.Endpoint
	Options     Options
}

func (a MoveAction) UnixCommand() string {
	route, err := Classify(a.Source, a.Destination)
	if err != nil {
		return fmt.Sprintf(`mv -v -n "%s" "%s"`, escape(a.Source.String()), escape(a.Destination.String()))
	}
	if route == RemoteToRemoteSameHost {
		src, dst := a.Source.(fs.RemotePath), a.Destination.(fs.RemotePath)
		return sshCommand(src, "mv", "--", quoted(src), quoted(dst))
	}
	cp := CopyAction{Source: a.Source, Destination: a.Destination, Options: a.Options}
	rm := RemoveAction{Target: a.Source}
	return cp.UnixCommand() + " && " + rm.UnixCommand()
}

func (a MoveAction) Perform(ctx context.Context) error {
	return Move(ctx, a.Source, a.Destination, a.Options)
}

// Uniqueness generates unique string for file renaming/movement
func (a MoveAction) Uniqueness() string {
	return "mv" + cmdSeparator + a.Source.String()
}

func (a MoveAction) String() string {
	return fmt.Sprintf(`rename/move "%s" to "%s"`, a.Source, a.Destination)
}
