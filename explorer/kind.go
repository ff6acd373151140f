package explorer

import (
	"context"
	"fmt"

	"github.com/m-manu/sshpath/action"
	"github.com/m-manu/sshpath/fs"
)

// ClipboardAction is what a paste does with the clipboard's source
type ClipboardAction int8

const (
	ClipboardCopy ClipboardAction = iota
	ClipboardMove
	ClipboardLink
)

func (a ClipboardAction) String() string {
	switch a {
	case ClipboardCopy:
		return "copy"
	case ClipboardMove:
		return "move"
	case ClipboardLink:
		return "link"
	default:
		return fmt.Sprintf("ClipboardAction(%d)", int8(a))
	}
}

// Kind performs the explorer's actions on remote candidates.
type Kind struct {
	source *Source
	// Options are used for every copy, move and removal
	Options action.Options
	// Redraw, if set, is called after a paste or removal changed something
	Redraw func()
	// BufferRename, if set, is called after a file (not a directory) was moved
	BufferRename func(oldPath, newPath string)
}

func NewKind(source *Source) *Kind {
	return &Kind{source: source}
}

// GetHome returns the home directory of the current connection's user
func (k *Kind) GetHome(ctx context.Context) (fs.RemotePath, error) {
	conn, err := k.source.Current()
	if err != nil {
		return fs.RemotePath{}, err
	}
	return fs.Home(ctx, conn)
}

// IsReadable reports whether p can be read. Failures to find out count as unreadable.
func (k *Kind) IsReadable(ctx context.Context, p fs.Endpoint) bool {
	var ok bool
	var err error
	switch e := p.(type) {
	case fs.RemotePath:
		ok, err = e.Readable(ctx)
	case fs.LocalPath:
		ok, err = e.Readable(ctx)
	}
	return err == nil && ok
}

// Paste applies the clipboard action from src to dst, where dst is the full target path
func (k *Kind) Paste(ctx context.Context, src, dst fs.Endpoint, act ClipboardAction) error {
	var err error
	switch act {
	case ClipboardCopy:
		err = action.Copy(ctx, src, dst, k.Options)
	case ClipboardMove:
		err = k.move(ctx, src, dst)
	case ClipboardLink:
		err = action.Link(ctx, src, dst)
	default:
		err = &fs.UnsupportedOperationError{Op: act.String(), Path: src.String()}
	}
	if err != nil {
		return err
	}
	k.redraw()
	return nil
}

func (k *Kind) move(ctx context.Context, src, dst fs.Endpoint) error {
	info, err := src.Info(ctx)
	if err != nil {
		return err
	}
	if err := action.Move(ctx, src, dst, k.Options); err != nil {
		return err
	}
	if !info.IsDir() && k.BufferRename != nil {
		k.BufferRename(src.String(), dst.String())
	}
	return nil
}

// RemoveTree deletes p and everything below it
func (k *Kind) RemoveTree(ctx context.Context, p fs.Endpoint) error {
	if err := action.RemoveRecursive(ctx, p, k.Options); err != nil {
		return err
	}
	k.redraw()
	return nil
}

// RemoveTrash is unsupported: remote hosts have no trash to move entries to
func (k *Kind) RemoveTrash(_ context.Context, p fs.Endpoint) error {
	return &fs.UnsupportedOperationError{Op: "remove to trash", Path: p.String()}
}

func (k *Kind) redraw() {
	if k.Redraw != nil {
		k.Redraw()
	}
}
