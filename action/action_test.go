package action

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	set "github.com/deckarep/golang-set/v2"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/m-manu/sshpath/fs"
	"github.com/m-manu/sshpath/remote"
	"github.com/m-manu/sshpath/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHost(t *testing.T, name string) (*remotetest.Host, *remote.Connection) {
	t.Helper()
	host := remotetest.NewHost("/home/u")
	return host, remote.Configure("u", name, remote.WithRunner(host))
}

func rpath(t *testing.T, conn *remote.Connection, p string) fs.RemotePath {
	t.Helper()
	rp, err := fs.NewRemotePath(conn, p)
	require.NoError(t, err)
	return rp
}

// sampleTree creates a/ with b.txt and c/d.txt below root
func sampleTree(host *remotetest.Host, root string) {
	host.WriteFile(root+"/a/b.txt", []byte("bee"))
	host.WriteFile(root+"/a/c/d.txt", []byte("dee"))
}

func TestClassify(t *testing.T) {
	_, h1 := newHost(t, "one")
	_, h2 := newHost(t, "two")
	local := fs.NewLocalPathOn(memfs.New(), "/x")
	cases := []struct {
		src, dst fs.Endpoint
		want     Route
	}{
		{local, rpath(t, h1, "/x"), LocalToRemote},
		{rpath(t, h1, "/x"), local, RemoteToLocal},
		{rpath(t, h1, "/x"), rpath(t, remote.Configure("u", "one"), "/y"), RemoteToRemoteSameHost},
		{rpath(t, h1, "/x"), rpath(t, h2, "/x"), RemoteToRemoteCrossHost},
	}
	for _, c := range cases {
		got, err := Classify(c.src, c.dst)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%s -> %s", c.src, c.dst)
	}
	_, err := Classify(local, local)
	var unsupported *fs.UnsupportedOperationError
	assert.ErrorAs(t, err, &unsupported)
}

func TestCopyTreeSameHost(t *testing.T) {
	host, conn := newHost(t, "h")
	sampleTree(host, "/src")
	host.MkdirAll("/dst")

	err := Copy(context.Background(), rpath(t, conn, "/src/a"), rpath(t, conn, "/dst/a"), Options{})
	require.NoError(t, err)

	data, ok := host.ReadFile("/dst/a/b.txt")
	require.True(t, ok)
	assert.Equal(t, "bee", string(data))
	data, ok = host.ReadFile("/dst/a/c/d.txt")
	require.True(t, ok)
	assert.Equal(t, "dee", string(data))
	assert.Equal(t, host.Count("/src/a"), host.Count("/dst/a"))

	// pre-order: every directory is created before anything is written into it
	mkdirs := map[string]int{}
	for i, c := range host.Calls() {
		switch {
		case c[0] == "mkdir":
			mkdirs[c[len(c)-1]] = i
		case c[0] == "cat" && c[1] == ">":
			parent := c[2][:strings.LastIndex(c[2], "/")]
			at, ok := mkdirs[parent]
			require.True(t, ok, "%s written before its directory was created", c[2])
			assert.Less(t, at, i)
		}
	}
}

func TestCopyAbortsOnFailingChild(t *testing.T) {
	host, conn := newHost(t, "h")
	sampleTree(host, "/src")
	host.MkdirAll("/dst")
	host.FailWhen("cat -- /src/a/c/d.txt", 1, "cat: /src/a/c/d.txt: Input/output error")

	err := Copy(context.Background(), rpath(t, conn, "/src/a"), rpath(t, conn, "/dst/a"), Options{})
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "u@h:/src/a/c/d.txt", opErr.Path)
	assert.Contains(t, err.Error(), "Input/output error")

	_, ok := host.ReadFile("/dst/a/b.txt")
	assert.True(t, ok)
	assert.True(t, host.IsDir("/dst/a/c"))
	assert.False(t, host.Exists("/dst/a/c/d.txt"))
}

func TestCopyParallelAbortsOnFailure(t *testing.T) {
	host, conn := newHost(t, "h")
	for i := 0; i < 30; i++ {
		host.WriteFile(fmt.Sprintf("/src/d/f%02d", i), []byte("x"))
	}
	host.MkdirAll("/dst")
	host.FailWhen("cat -- /src/d/f07", 1, "cat: /src/d/f07: Input/output error")

	err := Copy(context.Background(), rpath(t, conn, "/src/d"), rpath(t, conn, "/dst/d"),
		Options{Parallelism: 4})
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "u@h:/src/d/f07", opErr.Path)
	assert.False(t, host.Exists("/dst/d/f07"))
}

func TestCopyCrossHost(t *testing.T) {
	srcHost, srcConn := newHost(t, "one")
	dstHost, dstConn := newHost(t, "two")
	sampleTree(srcHost, "/src")
	dstHost.MkdirAll("/dst")

	err := Copy(context.Background(), rpath(t, srcConn, "/src/a"), rpath(t, dstConn, "/dst/a"), Options{Parallelism: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, dstHost.Count("/dst/a"))
	data, _ := dstHost.ReadFile("/dst/a/c/d.txt")
	assert.Equal(t, "dee", string(data))
	assert.Empty(t, srcHost.CallsTo("mkdir"))
	assert.True(t, srcHost.Exists("/src/a/c/d.txt"))
}

func TestCopyExcludes(t *testing.T) {
	host, conn := newHost(t, "h")
	sampleTree(host, "/src")
	host.WriteFile("/src/a/.git/HEAD", []byte("ref"))
	host.MkdirAll("/dst")

	err := Copy(context.Background(), rpath(t, conn, "/src/a"), rpath(t, conn, "/dst/a"),
		Options{Exclude: set.NewSet(".git")})
	require.NoError(t, err)
	assert.False(t, host.Exists("/dst/a/.git"))
	assert.True(t, host.Exists("/dst/a/c/d.txt"))
}

func TestCopyRefusesSymlinksAndSpecialFiles(t *testing.T) {
	host, conn := newHost(t, "h")
	host.Symlink("/src/link", "/etc/passwd")
	host.Mkfifo("/src/pipe")
	for _, p := range []string{"/src/link", "/src/pipe"} {
		err := Copy(context.Background(), rpath(t, conn, p), rpath(t, conn, "/dst"+p), Options{})
		var unsupported *fs.UnsupportedOperationError
		assert.ErrorAs(t, err, &unsupported, p)
	}
	assert.Empty(t, host.CallsTo("cat"))
}

func TestCopyPreservesTimes(t *testing.T) {
	host, conn := newHost(t, "h")
	sampleTree(host, "/src")
	host.MkdirAll("/dst")
	ctx := context.Background()
	require.NoError(t, PropagateTimestampAction{Destination: rpath(t, conn, "/src/a/c/d.txt"),
		ModTime: time.Unix(1_500_000_000, 0)}.Perform(ctx))

	err := Copy(ctx, rpath(t, conn, "/src/a"), rpath(t, conn, "/dst/a"), Options{PreserveTimes: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000_000), host.Mtime("/dst/a/c/d.txt"))
	assert.Equal(t, host.Mtime("/src/a"), host.Mtime("/dst/a"))
}

func TestCopyBetweenLocalAndRemote(t *testing.T) {
	ctx := context.Background()
	host, conn := newHost(t, "h")
	host.MkdirAll("/remote")
	mem := memfs.New()
	require.NoError(t, util.WriteFile(mem, "/local/a/b.txt", []byte("bee"), 0o644))
	require.NoError(t, util.WriteFile(mem, "/local/a/c/d.txt", []byte("dee"), 0o644))
	require.NoError(t, mem.MkdirAll("/back", 0o755))

	up := fs.NewLocalPathOn(mem, "/local/a")
	require.NoError(t, Copy(ctx, up, rpath(t, conn, "/remote/a"), Options{}))
	data, ok := host.ReadFile("/remote/a/c/d.txt")
	require.True(t, ok)
	assert.Equal(t, "dee", string(data))

	down := fs.NewLocalPathOn(mem, "/back/a")
	require.NoError(t, Copy(ctx, rpath(t, conn, "/remote/a"), down, Options{}))
	f, err := mem.Open("/back/a/b.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	_ = f.Close()
	assert.Equal(t, "bee", string(got))
	info, err := mem.Stat("/back/a/c")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRemoveRecursiveIsPostOrder(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism %d", parallelism), func(t *testing.T) {
			host, conn := newHost(t, "h")
			sampleTree(host, "/t")
			host.WriteFile("/t/a/c/e/f.txt", nil)
			host.WriteFile("/t/a/g/h.txt", nil)
			host.MkdirAll("/t/a/empty")
			host.ResetCalls()

			require.NoError(t, RemoveRecursive(context.Background(), rpath(t, conn, "/t/a"), Options{Parallelism: parallelism}))
			assert.False(t, host.Exists("/t/a"))
			assert.True(t, host.Exists("/t"))

			removed := set.NewSet[string]()
			for _, c := range host.Calls() {
				if c[0] != "rm" && c[0] != "rmdir" {
					continue
				}
				target := c[len(c)-1]
				if c[0] == "rmdir" {
					// every entry below must already be gone
					for _, other := range []string{"/t/a/b.txt", "/t/a/c", "/t/a/c/d.txt", "/t/a/c/e",
						"/t/a/c/e/f.txt", "/t/a/g", "/t/a/g/h.txt", "/t/a/empty"} {
						if strings.HasPrefix(other, target+"/") {
							assert.True(t, removed.Contains(other), "rmdir %s before %s was removed", target, other)
						}
					}
				}
				removed.Add(target)
			}
			assert.Equal(t, 9, removed.Cardinality())
		})
	}
}

func TestRemoveRecursiveStopsAtFirstFailure(t *testing.T) {
	host, conn := newHost(t, "h")
	sampleTree(host, "/t")
	host.FailWhen("rm -- /t/a/b.txt", 1, "rm: cannot remove '/t/a/b.txt': Permission denied")

	err := RemoveRecursive(context.Background(), rpath(t, conn, "/t/a"), Options{})
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "unlink", opErr.Op)
	assert.Equal(t, "u@h:/t/a/b.txt", opErr.Path)
	assert.True(t, host.Exists("/t/a/c/d.txt"))
	assert.Empty(t, host.CallsTo("rmdir"))
}

func TestMoveSameHostIsOneRename(t *testing.T) {
	host, conn := newHost(t, "h")
	sampleTree(host, "/src")
	host.MkdirAll("/dst")
	host.ResetCalls()

	err := Move(context.Background(), rpath(t, conn, "/src/a"), rpath(t, remote.Configure("u", "h", remote.WithRunner(host)), "/dst/a"), Options{})
	require.NoError(t, err)
	calls := host.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"mv", "--", "/src/a", "/dst/a"}, calls[0])
	assert.True(t, host.Exists("/dst/a/c/d.txt"))
	assert.False(t, host.Exists("/src/a"))
}

func TestMoveCrossHostCopiesThenRemoves(t *testing.T) {
	srcHost, srcConn := newHost(t, "one")
	dstHost, dstConn := newHost(t, "two")
	sampleTree(srcHost, "/src")
	dstHost.MkdirAll("/dst")

	err := Move(context.Background(), rpath(t, srcConn, "/src/a"), rpath(t, dstConn, "/dst/a"),
		Options{Exclude: set.NewSet("b.txt")})
	require.NoError(t, err)

	assert.Empty(t, srcHost.CallsTo("mv"))
	assert.Empty(t, dstHost.CallsTo("mv"))
	assert.Equal(t, 3, dstHost.Count("/dst/a"), "exclusions don't apply to moves")
	assert.False(t, srcHost.Exists("/src/a"))
	assert.Len(t, srcHost.CallsTo("rm"), 2)
	assert.Len(t, srcHost.CallsTo("rmdir"), 2)

	// the removal only starts once everything was copied
	lastRead := -1
	firstRemoval := -1
	for i, c := range srcHost.Calls() {
		if c[0] == "cat" {
			lastRead = i
		}
		if (c[0] == "rm" || c[0] == "rmdir") && firstRemoval < 0 {
			firstRemoval = i
		}
	}
	assert.Less(t, lastRead, firstRemoval)
}

func TestMoveKeepsSourceWhenCopyFails(t *testing.T) {
	srcHost, srcConn := newHost(t, "one")
	dstHost, dstConn := newHost(t, "two")
	sampleTree(srcHost, "/src")
	dstHost.MkdirAll("/dst")
	dstHost.FailWhen("cat > /dst/a/c/d.txt", 1, "sh: /dst/a/c/d.txt: No space left on device")

	err := Move(context.Background(), rpath(t, srcConn, "/src/a"), rpath(t, dstConn, "/dst/a"), Options{})
	require.Error(t, err)
	assert.True(t, srcHost.Exists("/src/a/c/d.txt"))
	assert.Empty(t, srcHost.CallsTo("rm"))
}

func TestCopyAndMoveRefuseDestinationInsideSource(t *testing.T) {
	host, conn := newHost(t, "h")
	sampleTree(host, "/src")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, dst := range []string{"/src/a", "/src/a/c/copy", "/src/a/sub"} {
		err := Copy(ctx, rpath(t, conn, "/src/a"), rpath(t, conn, dst), Options{})
		require.ErrorIs(t, err, ErrIntoItself, dst)
		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "u@h:/src/a", opErr.Path)

		err = Move(ctx, rpath(t, conn, "/src/a"), rpath(t, conn, dst), Options{})
		assert.ErrorIs(t, err, ErrIntoItself, dst)
	}
	err := Copy(ctx, rpath(t, conn, "/"), rpath(t, conn, "/backup"), Options{})
	assert.ErrorIs(t, err, ErrIntoItself)
	assert.Empty(t, host.CallsTo("mkdir"))
	assert.Empty(t, host.CallsTo("mv"))

	// a sibling sharing the name prefix is fine
	require.NoError(t, Copy(ctx, rpath(t, conn, "/src/a"), rpath(t, conn, "/src/ab"), Options{}))
	assert.True(t, host.Exists("/src/ab/c/d.txt"))
}

func TestLinkIsUnsupported(t *testing.T) {
	host, conn := newHost(t, "h")
	err := Link(context.Background(), rpath(t, conn, "/a"), rpath(t, conn, "/b"))
	var unsupported *fs.UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Empty(t, host.Calls())
}

func TestProgressEvents(t *testing.T) {
	host, conn := newHost(t, "h")
	sampleTree(host, "/src")
	host.MkdirAll("/dst")
	var mx sync.Mutex
	var copied []string
	opts := Options{Parallelism: 2, Progress: func(e Event) {
		mx.Lock()
		defer mx.Unlock()
		if e.Op == "copy" {
			copied = append(copied, e.Path)
		}
	}}
	require.NoError(t, Copy(context.Background(), rpath(t, conn, "/src/a"), rpath(t, conn, "/dst/a"), opts))
	assert.ElementsMatch(t, []string{"u@h:/src/a/b.txt", "u@h:/src/a/c/d.txt"}, copied)
}

func TestUnixCommands(t *testing.T) {
	_, h := newHost(t, "h")
	_, other := newHost(t, "other")
	src, dst := rpath(t, h, "/data/my file"), rpath(t, h, "/backup/x")
	local := fs.NewLocalPathOn(memfs.New(), "/tmp/out")

	assert.Equal(t, `ssh u@h "mv -- /data/my\\ file /backup/x"`,
		MoveAction{Source: src, Destination: dst}.UnixCommand())
	assert.Equal(t, `ssh u@h "cp -r -- /data/my\\ file /backup/x"`,
		CopyAction{Source: src, Destination: dst}.UnixCommand())
	assert.Equal(t, `scp -r "u@h:/data/my\\ file" "/tmp/out"`,
		CopyAction{Source: src, Destination: local}.UnixCommand())
	assert.Equal(t, `scp -r -3 "u@h:/backup/x" "u@other:/backup/x"`,
		CopyAction{Source: dst, Destination: rpath(t, other, "/backup/x")}.UnixCommand())
	assert.Equal(t, `ssh u@h "rm -r -- /backup/x"`, RemoveAction{Target: dst}.UnixCommand())
	assert.Equal(t, `rm -r "/tmp/out"`, RemoveAction{Target: local}.UnixCommand())
	assert.Equal(t, `scp -r "/tmp/out" "u@h:/backup/x" && rm -r "/tmp/out"`,
		MoveAction{Source: local, Destination: dst}.UnixCommand())
	assert.Equal(t, `ssh u@h "touch -m -d @1000 -- /backup/x"`,
		PropagateTimestampAction{Destination: dst, ModTime: time.Unix(1000, 0)}.UnixCommand())
	assert.NotEqual(t, CopyAction{Source: src, Destination: dst}.Uniqueness(), MoveAction{Source: src, Destination: dst}.Uniqueness())
}
