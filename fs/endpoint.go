package fs

import (
	"context"
	"io"
	iofs "io/fs"
	"time"

	"github.com/m-manu/sshpath/entity"
)

// Kind tells which side of the ssh link an Endpoint lives on
type Kind int8

const (
	Local Kind = iota
	Remote
)

func (k Kind) String() string {
	if k == Remote {
		return "remote"
	}
	return "local"
}

// Endpoint is a file tree location that recursive operations can traverse. It is either a
// LocalPath or a RemotePath; no other implementations exist.
type Endpoint interface {
	Kind() Kind
	// String is the path as shown to users
	String() string
	// Name is the final path segment
	Name() string
	Child(name string) (Endpoint, error)
	// Info describes the entry itself; symlinks are not followed
	Info(ctx context.Context) (FileInfo, error)
	// List returns the entries of a directory, sorted by name
	List(ctx context.Context) ([]Endpoint, error)
	Mkdir(ctx context.Context) error
	Rmdir(ctx context.Context) error
	Unlink(ctx context.Context) error
	Open(ctx context.Context) (io.ReadCloser, error)
	Create(ctx context.Context) (io.WriteCloser, error)
	// Chtimes sets the modification time
	Chtimes(ctx context.Context, mtime time.Time) error

	endpoint()
}

// FileInfo holds what traversal needs to know about an entry, on either side.
type FileInfo struct {
	Name    string
	Size    int64
	Mode    iofs.FileMode
	ModTime time.Time
	Type    entity.FileType
}

func (f FileInfo) IsDir() bool {
	return f.Type == entity.TypeDirectory
}

func (f FileInfo) IsRegular() bool {
	return f.Type == entity.TypeRegular
}

func fileInfoFromAttributes(name string, a entity.Attributes) FileInfo {
	return FileInfo{
		Name:    name,
		Size:    a.Size,
		Mode:    a.FileMode(),
		ModTime: a.ModTime(),
		Type:    a.Type(),
	}
}

func fileInfoFromOS(info iofs.FileInfo) FileInfo {
	return FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		Type:    fileTypeOf(info.Mode()),
	}
}

func fileTypeOf(m iofs.FileMode) entity.FileType {
	switch {
	case m.IsRegular():
		return entity.TypeRegular
	case m.IsDir():
		return entity.TypeDirectory
	case m&iofs.ModeSymlink != 0:
		return entity.TypeSymlink
	case m&iofs.ModeNamedPipe != 0:
		return entity.TypeFIFO
	case m&iofs.ModeSocket != 0:
		return entity.TypeSocket
	case m&iofs.ModeCharDevice != 0:
		return entity.TypeCharDevice
	case m&iofs.ModeDevice != 0:
		return entity.TypeBlockDevice
	default:
		return entity.TypeUnknown
	}
}
