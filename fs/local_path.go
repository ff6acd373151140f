package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// LocalPath is a path on this machine, reached through a billy filesystem.
type LocalPath struct {
	fsys billy.Filesystem
	path string
	onOS bool
}

// NewLocalPath returns a path on the operating system's filesystem. Relative paths are
// resolved against the working directory.
func NewLocalPath(p string) (LocalPath, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return LocalPath{}, fmt.Errorf("couldn't resolve %q: %w", p, err)
	}
	return LocalPath{fsys: osfs.New("/"), path: abs, onOS: true}, nil
}

// NewLocalPathOn returns a path on an arbitrary billy filesystem, such as memfs
func NewLocalPathOn(fsys billy.Filesystem, p string) LocalPath {
	return LocalPath{fsys: fsys, path: filepath.Clean(p)}
}

func (l LocalPath) Kind() Kind {
	return Local
}

func (l LocalPath) endpoint() {}

func (l LocalPath) String() string {
	return l.path
}

func (l LocalPath) Name() string {
	return filepath.Base(l.path)
}

// Filesystem returns the billy filesystem the path lives on
func (l LocalPath) Filesystem() billy.Filesystem {
	return l.fsys
}

func (l LocalPath) Child(name string) (Endpoint, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	return LocalPath{fsys: l.fsys, path: filepath.Join(l.path, name), onOS: l.onOS}, nil
}

func (l LocalPath) Parent() LocalPath {
	return LocalPath{fsys: l.fsys, path: filepath.Dir(l.path), onOS: l.onOS}
}

func (l LocalPath) wrap(err error) error {
	if err != nil && errors.Is(err, iofs.ErrNotExist) {
		return &NotFoundError{Path: l.path, Err: err}
	}
	return err
}

func (l LocalPath) Info(_ context.Context) (FileInfo, error) {
	info, err := l.fsys.Lstat(l.path)
	if err != nil {
		return FileInfo{}, l.wrap(err)
	}
	return fileInfoFromOS(info), nil
}

// Exists mirrors RemotePath.Exists
func (l LocalPath) Exists(ctx context.Context) (bool, error) {
	_, err := l.Info(ctx)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Readable reports whether the entry can be opened for reading
func (l LocalPath) Readable(ctx context.Context) (bool, error) {
	info, err := l.Info(ctx)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		if _, err := l.fsys.ReadDir(l.path); err != nil {
			return false, nil
		}
		return true, nil
	}
	f, err := l.fsys.Open(l.path)
	if err != nil {
		return false, nil
	}
	_ = f.Close()
	return true, nil
}

func (l LocalPath) List(_ context.Context) ([]Endpoint, error) {
	infos, err := l.fsys.ReadDir(l.path)
	if err != nil {
		return nil, l.wrap(err)
	}
	entries := make([]Endpoint, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, LocalPath{fsys: l.fsys, path: filepath.Join(l.path, info.Name()), onOS: l.onOS})
	}
	return entries, nil
}

// Mkdir creates this directory; the parent must exist and the path must not
func (l LocalPath) Mkdir(_ context.Context) error {
	if _, err := l.fsys.Lstat(l.path); err == nil {
		return &os.PathError{Op: "mkdir", Path: l.path, Err: iofs.ErrExist}
	}
	parent, err := l.fsys.Lstat(filepath.Dir(l.path))
	if err != nil {
		return l.wrap(err)
	}
	if !parent.IsDir() {
		return &os.PathError{Op: "mkdir", Path: l.path, Err: syscall.ENOTDIR}
	}
	return l.fsys.MkdirAll(l.path, 0o755)
}

// Rmdir removes this directory, which must be empty
func (l LocalPath) Rmdir(_ context.Context) error {
	info, err := l.fsys.Lstat(l.path)
	if err != nil {
		return l.wrap(err)
	}
	if !info.IsDir() {
		return &os.PathError{Op: "rmdir", Path: l.path, Err: syscall.ENOTDIR}
	}
	entries, err := l.fsys.ReadDir(l.path)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return &os.PathError{Op: "rmdir", Path: l.path, Err: syscall.ENOTEMPTY}
	}
	return l.fsys.Remove(l.path)
}

// Unlink removes a non-directory entry
func (l LocalPath) Unlink(_ context.Context) error {
	info, err := l.fsys.Lstat(l.path)
	if err != nil {
		return l.wrap(err)
	}
	if info.IsDir() {
		return &os.PathError{Op: "unlink", Path: l.path, Err: syscall.EISDIR}
	}
	return l.fsys.Remove(l.path)
}

func (l LocalPath) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := l.fsys.Open(l.path)
	if err != nil {
		return nil, l.wrap(err)
	}
	return f, nil
}

func (l LocalPath) Create(_ context.Context) (io.WriteCloser, error) {
	f, err := l.fsys.Create(l.path)
	if err != nil {
		return nil, l.wrap(err)
	}
	return f, nil
}

func (l LocalPath) Chtimes(_ context.Context, mtime time.Time) error {
	if change, ok := l.fsys.(billy.Change); ok {
		return l.wrap(change.Chtimes(l.path, mtime, mtime))
	}
	if l.onOS {
		return l.wrap(os.Chtimes(l.path, mtime, mtime))
	}
	return &UnsupportedOperationError{Op: "chtimes", Path: l.path}
}
