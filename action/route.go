package action

import (
	"github.com/m-manu/sshpath/fs"
)

// Route is the pair of sides a copy or move runs between
type Route int8

const (
	LocalToRemote Route = iota
	RemoteToLocal
	RemoteToRemoteSameHost
	RemoteToRemoteCrossHost
)

func (r Route) String() string {
	switch r {
	case LocalToRemote:
		return "local to remote"
	case RemoteToLocal:
		return "remote to local"
	case RemoteToRemoteSameHost:
		return "remote to remote (same host)"
	default:
		return "remote to remote (cross host)"
	}
}

// Classify picks the route between src and dst. Local to local is left to the caller's own
// filesystem tools and is unsupported here.
func Classify(src, dst fs.Endpoint) (Route, error) {
	srcRemote, srcIsRemote := src.(fs.RemotePath)
	dstRemote, dstIsRemote := dst.(fs.RemotePath)
	switch {
	case srcIsRemote && dstIsRemote:
		if srcRemote.Connection().SameIdentity(dstRemote.Connection()) {
			return RemoteToRemoteSameHost, nil
		}
		return RemoteToRemoteCrossHost, nil
	case srcIsRemote:
		return RemoteToLocal, nil
	case dstIsRemote:
		return LocalToRemote, nil
	default:
		return 0, &fs.UnsupportedOperationError{Op: "local to local transfer", Path: src.String()}
	}
}
