package action

import (
	"context"
	"fmt"
	"time"

	"github.com/m-manu/sshpath/fs"
)

// PropagateTimestampAction sets the modification time of Destination, either to ModTime or,
// when that is zero, to the modification time of Source.
type PropagateTimestampAction struct {
	Source      fs.Endpoint // optional when ModTime is set
	Destination fs.Endpoint
	ModTime     time.Time
}

func (a PropagateTimestampAction) modTime(ctx context.Context) (time.Time, error) {
	if !a.ModTime.IsZero() {
		return a.ModTime, nil
	}
	if a.Source == nil {
		return time.Time{}, fmt.Errorf("no source or timestamp to propagate to %s", a.Destination)
	}
	info, err := a.Source.Info(ctx)
	if err != nil {
		return time.Time{}, &OpError{Op: "stat", Path: a.Source.String(), Err: err}
	}
	return info.ModTime, nil
}

// UnixCommand for propagating 'file modification timestamp'
func (a PropagateTimestampAction) UnixCommand() string {
	var stamp string
	if !a.ModTime.IsZero() {
		stamp = fmt.Sprintf("-d @%d", a.ModTime.Unix())
	} else if a.Source != nil && a.Source.Kind() == a.Destination.Kind() {
		stamp = fmt.Sprintf(`-r "%s"`, escape(a.Source.String()))
	} else {
		stamp = "-d @<mtime of source>"
	}
	if rp, ok := a.Destination.(fs.RemotePath); ok {
		return sshCommand(rp, "touch", "-m", stamp, "--", quoted(rp))
	}
	return fmt.Sprintf(`touch -m %s "%s"`, stamp, escape(a.Destination.String()))
}

// Perform the 'file modification timestamp' propagation action
func (a PropagateTimestampAction) Perform(ctx context.Context) error {
	mtime, err := a.modTime(ctx)
	if err != nil {
		return err
	}
	if err := a.Destination.Chtimes(ctx, mtime); err != nil {
		return &OpError{Op: "chtimes", Path: a.Destination.String(), Err: err}
	}
	return nil
}

// Uniqueness generate unique string for 'file modification timestamp' propagation action
func (a PropagateTimestampAction) Uniqueness() string {
	return "touch" + cmdSeparator + a.Destination.String()
}

func (a PropagateTimestampAction) String() string {
	if a.Source == nil {
		return fmt.Sprintf(`set timestamp of "%s" to %v`, a.Destination, a.ModTime)
	}
	return fmt.Sprintf(`propagate timestamp of "%s" to "%s"`, a.Source, a.Destination)
}
