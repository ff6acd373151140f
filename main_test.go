package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-manu/sshpath/fmte"
	"github.com/m-manu/sshpath/remote"
	"github.com/m-manu/sshpath/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, host *remotetest.Host, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	fmte.SetOutput(&stdout, &stderr)
	t.Cleanup(func() { fmte.SetOutput(os.Stdout, os.Stderr) })
	code := run(context.Background(), args, remote.WithRunner(host))
	return code, stdout.String(), stderr.String()
}

func newSampleHost() *remotetest.Host {
	host := remotetest.NewHost("/home/denjo")
	host.WriteFile("/d/a.txt", []byte("hello"))
	host.WriteFile("/d/b.txt", []byte("bee"))
	host.MkdirAll("/d/sub")
	return host
}

func TestHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, remotetest.NewHost("/"), "--help")
	assert.Equal(t, exitCodeSuccess, code)
	assert.Contains(t, stdout, "Usage:")
	for name := range commands {
		assert.Contains(t, stdout, name)
	}
	assert.Contains(t, stdout, "--dry-run")
}

func TestInvalidCommandLines(t *testing.T) {
	host := remotetest.NewHost("/")
	tests := map[string][]string{
		"no command":      {},
		"unknown command": {"frobnicate"},
		"too few args":    {"cp", "h:/a"},
		"too many args":   {"ls", "h:/a", "h:/b"},
		"unknown flag":    {"--frobnicate", "ls", "h:/"},
		"bad cache":       {"--stat-cache", "sometimes", "ls", "h:/"},
		"bad parallelism": {"-j", "0", "ls", "h:/"},
		"relative remote": {"ls", "h:relative"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			code, _, stderr := runCLI(t, host, args...)
			assert.Equal(t, exitCodeInvalidArgs, code)
			assert.Contains(t, stderr, "error:")
		})
	}
}

func TestListDirectory(t *testing.T) {
	host := newSampleHost()
	code, stdout, _ := runCLI(t, host, "ls", "h:/d")
	require.Equal(t, exitCodeSuccess, code)
	assert.Equal(t, "a.txt\nb.txt\nsub\n", stdout)
	// one probe, then the listing
	assert.Len(t, host.CallsTo("stat"), 2)
}

func TestListDirectoryLong(t *testing.T) {
	host := newSampleHost()
	code, stdout, _ := runCLI(t, host, "--null-listing", "ls", "-l", "-H", "h:/d")
	require.Equal(t, exitCodeSuccess, code)
	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "-"), lines[0])
	assert.Contains(t, lines[0], "5 B")
	assert.True(t, strings.HasSuffix(lines[0], " a.txt"), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "d"), lines[2])
	assert.Len(t, host.CallsTo("find"), 1)
	assert.Empty(t, host.CallsTo("ls"))
}

func TestStat(t *testing.T) {
	host := newSampleHost()
	code, stdout, _ := runCLI(t, host, "stat", "h:/d/a.txt")
	require.Equal(t, exitCodeSuccess, code)
	assert.Contains(t, stdout, "File: h:/d/a.txt")
	assert.Contains(t, stdout, "Type: file")
	assert.Contains(t, stdout, "Size: 5")
	assert.Contains(t, stdout, "Uid: 1000")

	code, _, stderr := runCLI(t, host, "stat", "h:/d/missing")
	assert.Equal(t, exitCodeNotFound, code)
	assert.Contains(t, stderr, "missing")
}

func TestCopyAndRemove(t *testing.T) {
	host := newSampleHost()
	code, _, stderr := runCLI(t, host, "cp", "h:/d", "h:/e")
	require.Equal(t, exitCodeSuccess, code, stderr)
	data, ok := host.ReadFile("/e/a.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))
	assert.True(t, host.IsDir("/e/sub"))

	code, _, stderr = runCLI(t, host, "cp", "h:/d/a.txt", "h:/d/sub")
	require.Equal(t, exitCodeSuccess, code, stderr)
	assert.True(t, host.Exists("/d/sub/a.txt"), "an existing directory destination receives the source")

	code, _, stderr = runCLI(t, host, "rm", "h:/e")
	require.Equal(t, exitCodeSuccess, code, stderr)
	assert.False(t, host.Exists("/e"))
}

func TestCopyExcludes(t *testing.T) {
	host := newSampleHost()
	exclusions := filepath.Join(t.TempDir(), "exclusions.txt")
	require.NoError(t, os.WriteFile(exclusions, []byte("b.txt\n"), 0644))

	code, _, stderr := runCLI(t, host, "--exclusions", exclusions, "-x", "sub", "cp", "h:/d", "h:/e")
	require.Equal(t, exitCodeSuccess, code, stderr)
	assert.True(t, host.Exists("/e/a.txt"))
	assert.False(t, host.Exists("/e/b.txt"))
	assert.False(t, host.Exists("/e/sub"))

	code, _, _ = runCLI(t, host, "--exclusions", filepath.Join(t.TempDir(), "missing"), "ls", "h:/d")
	assert.Equal(t, exitCodeExclusionFilesError, code)
}

func TestMoveSeveralIntoDirectory(t *testing.T) {
	host := newSampleHost()
	code, _, stderr := runCLI(t, host, "mv", "h:/d/a.txt", "h:/d/b.txt", "h:/d/sub")
	require.Equal(t, exitCodeSuccess, code, stderr)
	assert.True(t, host.Exists("/d/sub/a.txt"))
	assert.True(t, host.Exists("/d/sub/b.txt"))
	assert.False(t, host.Exists("/d/a.txt"))
	assert.Len(t, host.CallsTo("mv"), 2)

	code, _, _ = runCLI(t, host, "mv", "h:/d/sub/a.txt", "h:/d/sub/b.txt", "h:/d/nowhere")
	assert.Equal(t, exitCodeInvalidArgs, code)
}

func TestDryRunChangesNothing(t *testing.T) {
	host := newSampleHost()
	code, stdout, _ := runCLI(t, host, "-n", "rm", "h:/d", "h:/d")
	require.Equal(t, exitCodeSuccess, code)
	assert.Equal(t, "ssh h \"rm -r -- /d\"\n", stdout, "duplicate actions are printed once")
	assert.True(t, host.Exists("/d/a.txt"))
	assert.Empty(t, host.CallsTo("rm"))
}

func TestShellScript(t *testing.T) {
	host := newSampleHost()
	script := filepath.Join(t.TempDir(), "actions.sh")
	code, _, _ := runCLI(t, host, "--shellscript", script, "mv", "h:/d/a.txt", "h:/d/c.txt")
	require.Equal(t, exitCodeSuccess, code)
	contents, err := os.ReadFile(script)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\nset -e\nssh h \"mv -- /d/a.txt /d/c.txt\"\n", string(contents))
	assert.True(t, host.Exists("/d/a.txt"))
}

func TestHomeAndResolve(t *testing.T) {
	host := newSampleHost()
	host.MkdirAll("/home/denjo")
	code, stdout, _ := runCLI(t, host, "home", "denjo@h")
	require.Equal(t, exitCodeSuccess, code)
	assert.Equal(t, "/home/denjo\n", stdout)

	host.Symlink("/d/link", "/d/sub")
	code, stdout, _ = runCLI(t, host, "resolve", "h:/d/link")
	require.Equal(t, exitCodeSuccess, code)
	assert.Equal(t, "h:/d/sub\n", stdout)

	code, _, _ = runCLI(t, host, "home", "/local/path")
	assert.Equal(t, exitCodeInvalidArgs, code)
}

func TestUnreachableHost(t *testing.T) {
	host := newSampleHost()
	host.FailWhen("stat --version", 255, "ssh: connect to host h port 22: Connection refused")
	code, _, stderr := runCLI(t, host, "ls", "h:/d")
	assert.Equal(t, exitCodeConnectionError, code)
	assert.Contains(t, stderr, "Connection refused")
	assert.Empty(t, host.CallsTo("ls"))
}

func TestCopyRemoteToLocalDirectory(t *testing.T) {
	host := newSampleHost()
	dir := t.TempDir()
	code, _, stderr := runCLI(t, host, "cp", "h:/d/a.txt", dir)
	require.Equal(t, exitCodeSuccess, code, stderr)
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
