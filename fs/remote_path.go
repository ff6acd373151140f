package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m-manu/sshpath/entity"
	"github.com/m-manu/sshpath/remote"
)

// RemotePath is an absolute path on the host of its Connection. It is an immutable value:
// every operation that yields another location returns a new RemotePath.
//
// A RemotePath created by a listing carries the attributes fetched with it. They are a
// snapshot, never refreshed; the connection's StatCachePolicy decides whether Stat may reuse
// them.
type RemotePath struct {
	conn  *remote.Connection
	path  string
	attrs *entity.Attributes
}

// NewRemotePath binds an absolute path to a connection. Trailing slashes are dropped; nothing
// else is normalized.
func NewRemotePath(conn *remote.Connection, p string) (RemotePath, error) {
	if !strings.HasPrefix(p, "/") {
		return RemotePath{}, fmt.Errorf("%q: %w", p, ErrRelativePath)
	}
	return RemotePath{conn: conn, path: trimTrailingSlashes(p)}, nil
}

// NewRemotePathWithAttributes is NewRemotePath with pre-fetched attributes
func NewRemotePathWithAttributes(conn *remote.Connection, p string, attrs entity.Attributes) (RemotePath, error) {
	rp, err := NewRemotePath(conn, p)
	if err != nil {
		return RemotePath{}, err
	}
	rp.attrs = &attrs
	return rp, nil
}

// Home returns the login directory of the connection's user
func Home(ctx context.Context, conn *remote.Connection) (RemotePath, error) {
	lines, err := conn.ExecuteRequired(ctx, "realpath", ".")
	if err != nil {
		return RemotePath{}, err
	}
	return NewRemotePath(conn, lines[0])
}

func trimTrailingSlashes(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

func (p RemotePath) Kind() Kind {
	return Remote
}

func (p RemotePath) endpoint() {}

func (p RemotePath) Connection() *remote.Connection {
	return p.conn
}

// Path returns the path string without the host
func (p RemotePath) Path() string {
	return p.path
}

// String returns "user@host:/path"
func (p RemotePath) String() string {
	if p.conn == nil {
		return p.path
	}
	return p.conn.String() + ":" + p.path
}

// Attributes returns the snapshot this value was created with, if any
func (p RemotePath) Attributes() (entity.Attributes, bool) {
	if p.attrs == nil {
		return entity.Attributes{}, false
	}
	return *p.attrs, true
}

// IsRoot reports whether this is "/"
func (p RemotePath) IsRoot() bool {
	return p.path == "/"
}

// Name returns the final path segment; empty for the root
func (p RemotePath) Name() string {
	return p.path[strings.LastIndex(p.path, "/")+1:]
}

// Join appends one name. It is pure string manipulation: nothing is checked remotely.
func (p RemotePath) Join(name string) (RemotePath, error) {
	if name == "" {
		return RemotePath{}, ErrEmptyName
	}
	sep := "/"
	if p.IsRoot() {
		sep = ""
	}
	return RemotePath{conn: p.conn, path: p.path + sep + name}, nil
}

// Parent drops the final segment. The root is its own parent.
func (p RemotePath) Parent() RemotePath {
	if p.IsRoot() {
		return p
	}
	idx := strings.LastIndex(p.path, "/")
	return RemotePath{conn: p.conn, path: trimTrailingSlashes(p.path[:idx])}
}

func (p RemotePath) Child(name string) (Endpoint, error) {
	child, err := p.Join(name)
	if err != nil {
		return nil, err
	}
	return child, nil
}

// Equal compares host identity and path string
func (p RemotePath) Equal(other RemotePath) bool {
	return p.path == other.path && p.conn.SameIdentity(other.conn)
}

// SamePath compares only the path strings, regardless of host
func (p RemotePath) SamePath(other RemotePath) bool {
	return p.path == other.path
}

// Resolve asks the remote host for the canonical form of this path
func (p RemotePath) Resolve(ctx context.Context) (RemotePath, error) {
	lines, err := p.conn.ExecuteRequired(ctx, realpathCommand(p.path)...)
	if err != nil {
		return RemotePath{}, notFoundOr(p.path, err)
	}
	return NewRemotePath(p.conn, lines[0])
}

// Stat returns the entry's attributes, reusing the snapshot when the cache policy allows.
// A missing entry gives a *NotFoundError; other failures are returned as they are.
func (p RemotePath) Stat(ctx context.Context) (entity.Attributes, error) {
	if p.attrs != nil && p.conn.StatCache().Fresh(p.attrs.FetchedAt, p.conn.Now()) {
		return *p.attrs, nil
	}
	lines, err := p.conn.ExecuteRequired(ctx, statCommand(p.path)...)
	if err != nil {
		return entity.Attributes{}, notFoundOr(p.path, err)
	}
	attrs, err := entity.ParseAttributes(strings.Join(lines, "\n"))
	if err != nil {
		return entity.Attributes{}, err
	}
	attrs.FetchedAt = p.conn.Now()
	return attrs, nil
}

// Exists is true when Stat succeeds and false when it reports a NotFoundError. Every other
// error is returned.
func (p RemotePath) Exists(ctx context.Context) (bool, error) {
	_, err := p.Stat(ctx)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (p RemotePath) IsFile(ctx context.Context) (bool, error) {
	attrs, err := p.Stat(ctx)
	if err != nil {
		return false, err
	}
	return attrs.IsRegular(), nil
}

func (p RemotePath) IsDir(ctx context.Context) (bool, error) {
	attrs, err := p.Stat(ctx)
	if err != nil {
		return false, err
	}
	return attrs.IsDir(), nil
}

func (p RemotePath) IsSymlink(ctx context.Context) (bool, error) {
	attrs, err := p.Stat(ctx)
	if err != nil {
		return false, err
	}
	return attrs.IsSymlink(), nil
}

func (p RemotePath) Info(ctx context.Context) (FileInfo, error) {
	attrs, err := p.Stat(ctx)
	if err != nil {
		return FileInfo{}, err
	}
	return fileInfoFromAttributes(p.Name(), attrs), nil
}

// Iterate returns a fresh iterator over the directory's entries. Nothing is fetched until
// the first Step.
func (p RemotePath) Iterate(ctx context.Context) *Iterator {
	return &Iterator{ctx: ctx, dir: p}
}

// ReadDir lists the directory's entries, each carrying its attributes
func (p RemotePath) ReadDir(ctx context.Context) ([]RemotePath, error) {
	var entries []RemotePath
	it := p.Iterate(ctx)
	for it.Step() {
		entries = append(entries, it.Path())
	}
	if it.Err() != nil {
		return nil, it.Err()
	}
	return entries, nil
}

func (p RemotePath) List(ctx context.Context) ([]Endpoint, error) {
	entries, err := p.ReadDir(ctx)
	if err != nil {
		return nil, err
	}
	endpoints := make([]Endpoint, len(entries))
	for i, e := range entries {
		endpoints[i] = e
	}
	return endpoints, nil
}

// Mkdir creates this directory; the parent must exist
func (p RemotePath) Mkdir(ctx context.Context) error {
	_, err := p.conn.Execute(ctx, mkdirCommand(p.path)...)
	return notFoundOr(p.path, err)
}

// Rmdir removes this directory, which must be empty
func (p RemotePath) Rmdir(ctx context.Context) error {
	_, err := p.conn.Execute(ctx, rmdirCommand(p.path)...)
	return notFoundOr(p.path, err)
}

// Unlink removes a non-directory entry
func (p RemotePath) Unlink(ctx context.Context) error {
	_, err := p.conn.Execute(ctx, unlinkCommand(p.path)...)
	return notFoundOr(p.path, err)
}

// Rename moves this entry to dst in one remote call. Both must be on the same host.
func (p RemotePath) Rename(ctx context.Context, dst RemotePath) (RemotePath, error) {
	if !p.conn.SameIdentity(dst.conn) {
		return RemotePath{}, &UnsupportedOperationError{Op: "rename across hosts", Path: p.String()}
	}
	if _, err := p.conn.Execute(ctx, renameCommand(p.path, dst.path)...); err != nil {
		return RemotePath{}, notFoundOr(p.path, err)
	}
	return RemotePath{conn: p.conn, path: dst.path}, nil
}

// Touch creates an empty file or updates the modification time of an existing one
func (p RemotePath) Touch(ctx context.Context) error {
	_, err := p.conn.Execute(ctx, touchCommand(p.path)...)
	return notFoundOr(p.path, err)
}

func (p RemotePath) Chtimes(ctx context.Context, mtime time.Time) error {
	_, err := p.conn.Execute(ctx, setMtimeCommand(p.path, mtime.Unix())...)
	return notFoundOr(p.path, err)
}

func (p RemotePath) Open(ctx context.Context) (io.ReadCloser, error) {
	return p.conn.Open(ctx, p.path)
}

func (p RemotePath) Create(ctx context.Context) (io.WriteCloser, error) {
	return p.conn.Create(ctx, p.path)
}

// Symlink is not provided for remote paths
func (p RemotePath) Symlink(_ context.Context, _ string) error {
	return &UnsupportedOperationError{Op: "symlink", Path: p.String()}
}

// Readable reports whether the remote user can read this entry
func (p RemotePath) Readable(ctx context.Context) (bool, error) {
	_, err := p.conn.Execute(ctx, readableCommand(p.path)...)
	if err == nil {
		return true, nil
	}
	var cmdErr *remote.CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
		return false, nil
	}
	return false, err
}
