package action

import (
	"context"

	"github.com/m-manu/sshpath/fs"
)

// Link would create dst as a link to src. Links are never created: this always fails.
func Link(_ context.Context, src, dst fs.Endpoint) error {
	return &fs.UnsupportedOperationError{Op: "link", Path: dst.String()}
}
