// Package remotetest provides an in-memory remote host that answers the shell commands a
// remote.Connection sends, so path and tree operations can be tested without ssh.
package remotetest

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"
	"github.com/m-manu/sshpath/remote"
)

const (
	modeDir     = 0o040755
	modeFile    = 0o100644
	modeSymlink = 0o120777
	modeFIFO    = 0o010644
	device      = 2049
	uid         = 1000
	gid         = 1000
)

// ExitError is what a failed fake command returns; it carries an exit status like *exec.ExitError.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) ExitCode() int {
	return e.Code
}

type node struct {
	mode   uint32
	inode  uint64
	data   []byte
	target string
	mtime  int64
}

type failure struct {
	substr string
	code   int
	stderr string
}

// Host is a fake remote filesystem plus a tiny shell. It implements remote.Runner.
// Every command it receives is recorded, already tokenized the way a POSIX shell would.
type Host struct {
	mx        sync.Mutex
	home      string
	nodes     map[string]*node
	nextInode uint64
	clock     int64
	calls     [][]string
	failures  []failure
}

var _ remote.Runner = (*Host)(nil)

// NewHost creates a host whose filesystem holds "/" and the given home directory
func NewHost(home string) *Host {
	h := &Host{
		home:      path.Clean(home),
		nodes:     map[string]*node{},
		nextInode: 2,
		clock:     1_700_000_000,
	}
	h.nodes["/"] = h.newNode(modeDir)
	h.MkdirAll(h.home)
	return h
}

func (h *Host) newNode(mode uint32) *node {
	h.nextInode++
	h.clock++
	return &node{mode: mode, inode: h.nextInode, mtime: h.clock}
}

// MkdirAll creates a directory and its missing parents
func (h *Host) MkdirAll(p string) {
	h.mx.Lock()
	defer h.mx.Unlock()
	h.mkdirAll(path.Clean(p))
}

func (h *Host) mkdirAll(p string) {
	if _, ok := h.nodes[p]; ok {
		return
	}
	h.mkdirAll(path.Dir(p))
	h.nodes[p] = h.newNode(modeDir)
}

// WriteFile creates or replaces a regular file, creating parent directories
func (h *Host) WriteFile(p string, data []byte) {
	h.mx.Lock()
	defer h.mx.Unlock()
	p = path.Clean(p)
	h.mkdirAll(path.Dir(p))
	n := h.newNode(modeFile)
	n.data = append([]byte(nil), data...)
	h.nodes[p] = n
}

// Symlink creates a symbolic link at p pointing to target
func (h *Host) Symlink(p, target string) {
	h.mx.Lock()
	defer h.mx.Unlock()
	p = path.Clean(p)
	h.mkdirAll(path.Dir(p))
	n := h.newNode(modeSymlink)
	n.target = target
	h.nodes[p] = n
}

// Mkfifo creates a named pipe at p
func (h *Host) Mkfifo(p string) {
	h.mx.Lock()
	defer h.mx.Unlock()
	p = path.Clean(p)
	h.mkdirAll(path.Dir(p))
	h.nodes[p] = h.newNode(modeFIFO)
}

// ReadFile returns the contents of a regular file
func (h *Host) ReadFile(p string) ([]byte, bool) {
	h.mx.Lock()
	defer h.mx.Unlock()
	n, ok := h.nodes[path.Clean(p)]
	if !ok || n.mode != modeFile {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Exists reports whether anything exists at p
func (h *Host) Exists(p string) bool {
	h.mx.Lock()
	defer h.mx.Unlock()
	_, ok := h.nodes[path.Clean(p)]
	return ok
}

// IsDir reports whether p is a directory
func (h *Host) IsDir(p string) bool {
	h.mx.Lock()
	defer h.mx.Unlock()
	n, ok := h.nodes[path.Clean(p)]
	return ok && n.mode == modeDir
}

// Mtime returns the modification time of p in epoch seconds
func (h *Host) Mtime(p string) int64 {
	h.mx.Lock()
	defer h.mx.Unlock()
	if n, ok := h.nodes[path.Clean(p)]; ok {
		return n.mtime
	}
	return 0
}

// Count returns the number of entries strictly below dir
func (h *Host) Count(dir string) int {
	h.mx.Lock()
	defer h.mx.Unlock()
	prefix := strings.TrimSuffix(path.Clean(dir), "/") + "/"
	count := 0
	for p := range h.nodes {
		if strings.HasPrefix(p, prefix) {
			count++
		}
	}
	return count
}

// FailWhen makes every command whose tokens, joined by spaces, contain substr exit with code
// after printing stderr. Exit code 255 simulates an unreachable host.
func (h *Host) FailWhen(substr string, code int, stderr string) {
	h.mx.Lock()
	defer h.mx.Unlock()
	h.failures = append(h.failures, failure{substr: substr, code: code, stderr: stderr})
}

// Calls returns every command received so far, tokenized
func (h *Host) Calls() [][]string {
	h.mx.Lock()
	defer h.mx.Unlock()
	calls := make([][]string, len(h.calls))
	copy(calls, h.calls)
	return calls
}

// CallsTo returns the received commands whose first token is name
func (h *Host) CallsTo(name string) [][]string {
	var matching [][]string
	for _, c := range h.Calls() {
		if len(c) > 0 && c[0] == name {
			matching = append(matching, c)
		}
	}
	return matching
}

// ResetCalls forgets recorded commands
func (h *Host) ResetCalls() {
	h.mx.Lock()
	defer h.mx.Unlock()
	h.calls = nil
}

// Run interprets one command the way a remote login shell would
func (h *Host) Run(ctx context.Context, cmd remote.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	argv, err := shellquote.Split(strings.Join(cmd.Args, " "))
	if err != nil {
		return h.fail(cmd.Stderr, 2, "sh: syntax error: %v", err)
	}

	h.mx.Lock()
	h.calls = append(h.calls, argv)
	joined := strings.Join(argv, " ")
	for _, f := range h.failures {
		if strings.Contains(joined, f.substr) {
			h.mx.Unlock()
			return h.fail(cmd.Stderr, f.code, "%s", f.stderr)
		}
	}
	h.mx.Unlock()

	if len(argv) == 0 {
		return nil
	}
	// cat streams; the lock is never held while a pipe blocks
	if argv[0] == "cat" {
		if len(argv) == 3 && argv[1] == ">" {
			return h.catTo(cmd, h.abs(argv[2]))
		}
		return h.cat(cmd, operands(argv[1:]))
	}

	h.mx.Lock()
	defer h.mx.Unlock()
	switch argv[0] {
	case "ls":
		return h.ls(cmd, argv[1:])
	case "stat":
		return h.stat(cmd, argv[1:])
	case "find":
		return h.find(cmd, argv[1:])
	case "mkdir":
		return h.mkdir(cmd, operands(argv[1:]))
	case "rmdir":
		return h.rmdir(cmd, operands(argv[1:]))
	case "rm":
		return h.rm(cmd, operands(argv[1:]))
	case "mv":
		return h.mv(cmd, operands(argv[1:]))
	case "realpath":
		return h.realpath(cmd, operands(argv[1:]))
	case "test":
		return h.test(argv[1:])
	case "touch":
		return h.touch(cmd, argv[1:])
	default:
		return h.fail(cmd.Stderr, 127, "sh: %s: command not found", argv[0])
	}
}

func (h *Host) fail(stderr io.Writer, code int, format string, args ...any) error {
	if stderr != nil {
		_, _ = fmt.Fprintf(stderr, format+"\n", args...)
	}
	return &ExitError{Code: code}
}

func (h *Host) abs(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = h.home + "/" + p
	}
	return path.Clean(p)
}

// operands drops flags and the "--" terminator
func operands(args []string) []string {
	out := make([]string, 0, len(args))
	for i, a := range args {
		if a == "--" {
			return append(out, args[i+1:]...)
		}
		if !strings.HasPrefix(a, "-") {
			out = append(out, a)
		}
	}
	return out
}

func (h *Host) children(dir string) []string {
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	var names []string
	for p := range h.nodes {
		if p != "/" && strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			names = append(names, p[len(prefix):])
		}
	}
	sort.Strings(names)
	return names
}

func (h *Host) ls(cmd remote.Command, args []string) error {
	ops := operands(args)
	if len(ops) != 1 {
		return h.fail(cmd.Stderr, 2, "ls: expected exactly one operand")
	}
	dir := h.abs(ops[0])
	n, ok := h.nodes[dir]
	if !ok {
		return h.fail(cmd.Stderr, 2, "ls: cannot access '%s': No such file or directory", ops[0])
	}
	if n.mode != modeDir {
		_, _ = fmt.Fprintln(cmd.Stdout, ops[0])
		return nil
	}
	for _, name := range h.children(dir) {
		_, _ = fmt.Fprintln(cmd.Stdout, name)
	}
	return nil
}

func gnuQuote(s string) string {
	if strings.Contains(s, "'") {
		return shellquote.Join(s)
	}
	return "'" + s + "'"
}

func (h *Host) statLine(n *node, reported string) string {
	line := fmt.Sprintf("%x %d %d %d %d %d %d %d %d %d %s",
		n.mode, n.inode, device, 1, uid, gid, len(n.data), n.mtime, n.mtime, n.mtime, gnuQuote(reported))
	if n.mode == modeSymlink {
		line += " -> " + gnuQuote(n.target)
	}
	return line
}

func (h *Host) record(n *node, reported string) string {
	return fmt.Sprintf("%x %d %d %d %d %d %d %d %d %d %s\x00",
		n.mode, n.inode, device, 1, uid, gid, len(n.data), n.mtime, n.mtime, n.mtime, reported)
}

func (h *Host) stat(cmd remote.Command, args []string) error {
	if len(args) > 0 && args[0] == "--version" {
		_, _ = fmt.Fprintln(cmd.Stdout, "stat (GNU coreutils) 9.4")
		_, _ = fmt.Fprintln(cmd.Stdout, "Copyright (C) 2023 Free Software Foundation, Inc.")
		return nil
	}
	var printf bool
	var paths []string
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "--format="):
		case strings.HasPrefix(a, "--printf="):
			printf = true
		case a == "--":
		default:
			paths = append(paths, a)
		}
	}
	if len(paths) == 0 {
		return h.fail(cmd.Stderr, 1, "stat: missing operand")
	}
	var failed bool
	for _, p := range paths {
		n, ok := h.nodes[h.abs(p)]
		if !ok {
			_, _ = fmt.Fprintf(cmd.Stderr, "stat: cannot statx '%s': No such file or directory\n", p)
			failed = true
			continue
		}
		if printf {
			_, _ = io.WriteString(cmd.Stdout, h.record(n, p))
		} else {
			_, _ = fmt.Fprintln(cmd.Stdout, h.statLine(n, p))
		}
	}
	if failed {
		return &ExitError{Code: 1}
	}
	return nil
}

// find supports exactly: find DIR -mindepth 1 -maxdepth 1 -exec stat --printf=FMT {} +
func (h *Host) find(cmd remote.Command, args []string) error {
	if len(args) < 1 {
		return h.fail(cmd.Stderr, 1, "find: missing operand")
	}
	dir := h.abs(args[0])
	n, ok := h.nodes[dir]
	if !ok {
		return h.fail(cmd.Stderr, 1, "find: '%s': No such file or directory", args[0])
	}
	if n.mode != modeDir {
		return nil
	}
	for _, name := range h.children(dir) {
		child := strings.TrimSuffix(args[0], "/") + "/" + name
		_, _ = io.WriteString(cmd.Stdout, h.record(h.nodes[path.Join(dir, name)], child))
	}
	return nil
}

func (h *Host) mkdir(cmd remote.Command, ops []string) error {
	for _, op := range ops {
		p := h.abs(op)
		if _, ok := h.nodes[p]; ok {
			return h.fail(cmd.Stderr, 1, "mkdir: cannot create directory '%s': File exists", op)
		}
		if parent, ok := h.nodes[path.Dir(p)]; !ok || parent.mode != modeDir {
			return h.fail(cmd.Stderr, 1, "mkdir: cannot create directory '%s': No such file or directory", op)
		}
		h.nodes[p] = h.newNode(modeDir)
	}
	return nil
}

func (h *Host) rmdir(cmd remote.Command, ops []string) error {
	for _, op := range ops {
		p := h.abs(op)
		n, ok := h.nodes[p]
		switch {
		case !ok:
			return h.fail(cmd.Stderr, 1, "rmdir: failed to remove '%s': No such file or directory", op)
		case n.mode != modeDir:
			return h.fail(cmd.Stderr, 1, "rmdir: failed to remove '%s': Not a directory", op)
		case len(h.children(p)) > 0:
			return h.fail(cmd.Stderr, 1, "rmdir: failed to remove '%s': Directory not empty", op)
		}
		delete(h.nodes, p)
	}
	return nil
}

func (h *Host) rm(cmd remote.Command, ops []string) error {
	for _, op := range ops {
		p := h.abs(op)
		n, ok := h.nodes[p]
		if !ok {
			return h.fail(cmd.Stderr, 1, "rm: cannot remove '%s': No such file or directory", op)
		}
		if n.mode == modeDir {
			return h.fail(cmd.Stderr, 1, "rm: cannot remove '%s': Is a directory", op)
		}
		delete(h.nodes, p)
	}
	return nil
}

func (h *Host) mv(cmd remote.Command, ops []string) error {
	if len(ops) != 2 {
		return h.fail(cmd.Stderr, 1, "mv: expected two operands")
	}
	src, dst := h.abs(ops[0]), h.abs(ops[1])
	if _, ok := h.nodes[src]; !ok {
		return h.fail(cmd.Stderr, 1, "mv: cannot stat '%s': No such file or directory", ops[0])
	}
	if n, ok := h.nodes[dst]; ok && n.mode == modeDir {
		dst = path.Join(dst, path.Base(src))
	}
	if parent, ok := h.nodes[path.Dir(dst)]; !ok || parent.mode != modeDir {
		return h.fail(cmd.Stderr, 1, "mv: cannot move '%s' to '%s': No such file or directory", ops[0], ops[1])
	}
	if dst == src || strings.HasPrefix(dst, src+"/") {
		return h.fail(cmd.Stderr, 1, "mv: cannot move '%s' to a subdirectory of itself", ops[0])
	}
	moved := map[string]*node{}
	for p, n := range h.nodes {
		if p == src || strings.HasPrefix(p, src+"/") {
			moved[dst+strings.TrimPrefix(p, src)] = n
			delete(h.nodes, p)
		}
	}
	for p, n := range moved {
		h.nodes[p] = n
	}
	return nil
}

func (h *Host) cat(cmd remote.Command, ops []string) error {
	for _, op := range ops {
		h.mx.Lock()
		n, ok := h.nodes[h.abs(op)]
		var data []byte
		var isDir bool
		if ok {
			data = append([]byte(nil), n.data...)
			isDir = n.mode == modeDir
		}
		h.mx.Unlock()
		if !ok {
			return h.fail(cmd.Stderr, 1, "cat: %s: No such file or directory", op)
		}
		if isDir {
			return h.fail(cmd.Stderr, 1, "cat: %s: Is a directory", op)
		}
		if _, err := cmd.Stdout.Write(data); err != nil {
			return h.fail(cmd.Stderr, 1, "cat: write error: %v", err)
		}
	}
	return nil
}

func (h *Host) catTo(cmd remote.Command, p string) error {
	var data []byte
	var err error
	if cmd.Stdin != nil {
		data, err = io.ReadAll(cmd.Stdin)
		if err != nil {
			return h.fail(cmd.Stderr, 1, "cat: read error: %v", err)
		}
	}
	h.mx.Lock()
	defer h.mx.Unlock()
	if parent, ok := h.nodes[path.Dir(p)]; !ok || parent.mode != modeDir {
		return h.fail(cmd.Stderr, 1, "sh: %s: No such file or directory", p)
	}
	if n, ok := h.nodes[p]; ok && n.mode == modeDir {
		return h.fail(cmd.Stderr, 1, "sh: %s: Is a directory", p)
	}
	n := h.newNode(modeFile)
	n.data = data
	h.nodes[p] = n
	return nil
}

func (h *Host) realpath(cmd remote.Command, ops []string) error {
	if len(ops) != 1 {
		return h.fail(cmd.Stderr, 1, "realpath: expected one operand")
	}
	p := h.abs(ops[0])
	for hops := 0; hops < 40; hops++ {
		n, ok := h.nodes[p]
		if !ok {
			return h.fail(cmd.Stderr, 1, "realpath: %s: No such file or directory", ops[0])
		}
		if n.mode != modeSymlink {
			_, _ = fmt.Fprintln(cmd.Stdout, p)
			return nil
		}
		target := n.target
		if !strings.HasPrefix(target, "/") {
			target = path.Join(path.Dir(p), target)
		}
		p = path.Clean(target)
	}
	return h.fail(cmd.Stderr, 1, "realpath: %s: Too many levels of symbolic links", ops[0])
}

func (h *Host) test(args []string) error {
	if len(args) == 2 && args[0] == "-r" {
		if _, ok := h.nodes[h.abs(args[1])]; ok {
			return nil
		}
	}
	return &ExitError{Code: 1}
}

func (h *Host) touch(cmd remote.Command, args []string) error {
	var mtime int64
	var ops []string
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "-d" && i+1 < len(args):
			i++
			v, err := strconv.ParseInt(strings.TrimPrefix(args[i], "@"), 10, 64)
			if err != nil {
				return h.fail(cmd.Stderr, 1, "touch: invalid date format '%s'", args[i])
			}
			mtime = v
		case a == "--":
			ops = append(ops, args[i+1:]...)
			i = len(args)
		case strings.HasPrefix(a, "-"):
		default:
			ops = append(ops, a)
		}
	}
	for _, op := range ops {
		p := h.abs(op)
		n, ok := h.nodes[p]
		if !ok {
			if parent, ok := h.nodes[path.Dir(p)]; !ok || parent.mode != modeDir {
				return h.fail(cmd.Stderr, 1, "touch: cannot touch '%s': No such file or directory", op)
			}
			n = h.newNode(modeFile)
			h.nodes[p] = n
		}
		if mtime != 0 {
			n.mtime = mtime
		} else {
			h.clock++
			n.mtime = h.clock
		}
	}
	return nil
}
