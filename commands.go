package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	set "github.com/deckarep/golang-set/v2"
	"github.com/m-manu/sshpath/action"
	"github.com/m-manu/sshpath/bytesutil"
	"github.com/m-manu/sshpath/explorer"
	"github.com/m-manu/sshpath/fmte"
	"github.com/m-manu/sshpath/fs"
	"github.com/m-manu/sshpath/remote"
)

const unixCommandLengthGuess = 200

type command struct {
	usage   string
	minArgs int
	maxArgs int // -1 = no limit
	run     func(ctx context.Context, env *cliEnv, args []string) error
}

var commands = map[string]command{
	"ls":      {usage: "<dir>", minArgs: 1, maxArgs: 1, run: listDir},
	"stat":    {usage: "<path>...", minArgs: 1, maxArgs: -1, run: statPaths},
	"cp":      {usage: "<source>... <destination>", minArgs: 2, maxArgs: -1, run: copyPaths},
	"mv":      {usage: "<source>... <destination>", minArgs: 2, maxArgs: -1, run: movePaths},
	"rm":      {usage: "<path>...", minArgs: 1, maxArgs: -1, run: removePaths},
	"home":    {usage: "[user@]host[:port]", minArgs: 1, maxArgs: 1, run: printHome},
	"resolve": {usage: "<path>", minArgs: 1, maxArgs: 1, run: resolvePath},
}

// usageError is a command line that parsed but can't be acted on
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

type cliEnv struct {
	flags   *cliFlags
	source  *explorer.Source
	options action.Options

	probeMx sync.Mutex
	probed  map[*remote.Connection]error
}

func newCLIEnv(flags *cliFlags, exclusions set.Set[string], connOpts []remote.Option) *cliEnv {
	return &cliEnv{
		flags:   flags,
		source:  explorer.NewSource(explorer.WithConnectionOptions(connOpts...)),
		options: actionOptions(flags, exclusions),
		probed:  map[*remote.Connection]error{},
	}
}

// open parses an argument into an endpoint, probing each remote host once. Unlike the
// explorer, a command line mixes sides, so a path without a host is always local.
func (env *cliEnv) open(ctx context.Context, raw string) (fs.Endpoint, error) {
	loc, err := remote.ParseLocation(raw)
	if err != nil {
		return nil, &usageError{msg: err.Error()}
	}
	if !loc.IsRemote {
		return fs.NewLocalPath(loc.Path)
	}
	e, err := env.source.Open(raw)
	if err != nil {
		return nil, &usageError{msg: err.Error()}
	}
	if err := env.probe(ctx, e.(fs.RemotePath).Connection()); err != nil {
		return nil, err
	}
	return e, nil
}

func (env *cliEnv) probe(ctx context.Context, conn *remote.Connection) error {
	env.probeMx.Lock()
	defer env.probeMx.Unlock()
	if err, done := env.probed[conn]; done {
		return err
	}
	err := remote.Probe(ctx, conn)
	env.probed[conn] = err
	return err
}

func (env *cliEnv) formatSize(size int64) string {
	if env.flags.isHumanReadable() {
		return bytesutil.BinaryFormat(size)
	}
	return strconv.FormatInt(size, 10)
}

func listDir(ctx context.Context, env *cliEnv, args []string) error {
	dir, err := env.open(ctx, args[0])
	if err != nil {
		return err
	}
	entries, err := dir.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !env.flags.isLong() {
			fmte.Printf("%s\n", e.Name())
			continue
		}
		info, err := e.Info(ctx)
		if err != nil {
			return err
		}
		fmte.Printf("%s %10s %s %s\n", info.Mode, env.formatSize(info.Size),
			info.ModTime.Format("2006-01-02 15:04"), e.Name())
	}
	return nil
}

func statPaths(ctx context.Context, env *cliEnv, args []string) error {
	for _, arg := range args {
		e, err := env.open(ctx, arg)
		if err != nil {
			return err
		}
		info, err := e.Info(ctx)
		if err != nil {
			return err
		}
		fmte.Printf("  File: %s\n", e)
		fmte.Printf("  Type: %s\n  Size: %s\n  Mode: %s\n", info.Type, env.formatSize(info.Size), info.Mode)
		if rp, ok := e.(fs.RemotePath); ok {
			attrs, err := rp.Stat(ctx)
			if err != nil {
				return err
			}
			fmte.Printf(" Inode: %s  Links: %s  Uid: %s  Gid: %s\n", strconv.FormatUint(attrs.Inode, 10),
				strconv.FormatUint(attrs.Links, 10), strconv.FormatUint(uint64(attrs.UID), 10),
				strconv.FormatUint(uint64(attrs.GID), 10))
			if attrs.IsSymlink() && attrs.LinkTarget != "" {
				fmte.Printf("  Link: %s\n", attrs.LinkTarget)
			}
		}
		fmte.Printf("Modify: %s\n", info.ModTime.Format(time.RFC3339))
	}
	return nil
}

// targets opens the sources and works out the full destination path of each. With more than
// one source, or an existing directory as destination, every source goes inside it.
func targets(ctx context.Context, env *cliEnv, args []string) ([]fs.Endpoint, []fs.Endpoint, error) {
	dst, err := env.open(ctx, args[len(args)-1])
	if err != nil {
		return nil, nil, err
	}
	into := false
	info, err := dst.Info(ctx)
	switch {
	case err == nil:
		into = info.IsDir()
	case !fs.IsNotFound(err):
		return nil, nil, err
	}
	if len(args) > 2 && !into {
		return nil, nil, &usageError{msg: fmt.Sprintf("%s is not a directory", dst)}
	}
	sources := make([]fs.Endpoint, 0, len(args)-1)
	destinations := make([]fs.Endpoint, 0, len(args)-1)
	for _, arg := range args[:len(args)-1] {
		src, err := env.open(ctx, arg)
		if err != nil {
			return nil, nil, err
		}
		target := dst
		if into {
			if target, err = dst.Child(src.Name()); err != nil {
				return nil, nil, err
			}
		}
		sources = append(sources, src)
		destinations = append(destinations, target)
	}
	return sources, destinations, nil
}

func copyPaths(ctx context.Context, env *cliEnv, args []string) error {
	sources, destinations, err := targets(ctx, env, args)
	if err != nil {
		return err
	}
	actions := make([]action.Action, 0, len(sources))
	for i := range sources {
		actions = append(actions, action.CopyAction{Source: sources[i], Destination: destinations[i], Options: env.options})
	}
	return applyActions(ctx, env, actions)
}

func movePaths(ctx context.Context, env *cliEnv, args []string) error {
	sources, destinations, err := targets(ctx, env, args)
	if err != nil {
		return err
	}
	actions := make([]action.Action, 0, len(sources))
	for i := range sources {
		actions = append(actions, action.MoveAction{Source: sources[i], Destination: destinations[i], Options: env.options})
	}
	return applyActions(ctx, env, actions)
}

func removePaths(ctx context.Context, env *cliEnv, args []string) error {
	actions := make([]action.Action, 0, len(args))
	for _, arg := range args {
		e, err := env.open(ctx, arg)
		if err != nil {
			return err
		}
		actions = append(actions, action.RemoveAction{Target: e, Options: env.options})
	}
	return applyActions(ctx, env, actions)
}

func printHome(ctx context.Context, env *cliEnv, args []string) error {
	raw := args[0]
	if !strings.Contains(raw, "://") && !strings.Contains(raw, ":/") {
		raw = strings.TrimSuffix(raw, ":") + ":/"
	}
	e, err := env.open(ctx, raw)
	if err != nil {
		return err
	}
	rp, ok := e.(fs.RemotePath)
	if !ok {
		return &usageError{msg: fmt.Sprintf("%s is not a remote host", args[0])}
	}
	home, err := fs.Home(ctx, rp.Connection())
	if err != nil {
		return err
	}
	fmte.Printf("%s\n", home.Path())
	return nil
}

func resolvePath(ctx context.Context, env *cliEnv, args []string) error {
	e, err := env.open(ctx, args[0])
	if err != nil {
		return err
	}
	if rp, ok := e.(fs.RemotePath); ok {
		resolved, err := rp.Resolve(ctx)
		if err != nil {
			return err
		}
		fmte.Printf("%s\n", resolved)
		return nil
	}
	resolved, err := filepath.EvalSymlinks(e.String())
	if err != nil {
		if os.IsNotExist(err) {
			return &fs.NotFoundError{Path: e.String(), Err: err}
		}
		return err
	}
	fmte.Printf("%s\n", resolved)
	return nil
}

// dedupe drops actions whose Uniqueness was already seen, keeping the first
func dedupe(actions []action.Action) []action.Action {
	uniqueness := set.NewThreadUnsafeSet[string]()
	unique := make([]action.Action, 0, len(actions))
	for _, a := range actions {
		if uniqueness.Contains(a.Uniqueness()) {
			continue
		}
		uniqueness.Add(a.Uniqueness())
		unique = append(unique, a)
	}
	return unique
}

func applyActions(ctx context.Context, env *cliEnv, actions []action.Action) error {
	actions = dedupe(actions)
	if scriptPath := env.flags.getScriptPath(); scriptPath != "" {
		return generateScript(actions, scriptPath)
	}
	if env.flags.isDryRun() {
		for _, a := range actions {
			fmte.Printf("%s\n", a.UnixCommand())
		}
		return nil
	}
	return performActions(ctx, actions)
}

// performActions runs every action even after a failure and returns the first failure
func performActions(ctx context.Context, actions []action.Action) error {
	var firstErr error
	successCount := 0
	start := time.Now()
	for i, a := range actions {
		fmte.PrintfV("%4d/%d %s: ", i+1, len(actions), a)
		err := a.Perform(ctx)
		if err == nil {
			fmte.PrintfV("done\n")
			successCount++
			continue
		}
		fmte.PrintfV("failed\n")
		if firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	fmte.PrintfV("%d out of %d actions succeeded in %.1fs\n", successCount, len(actions),
		time.Since(start).Seconds())
	return firstErr
}

func generateScript(actions []action.Action, shellScriptFileName string) error {
	fmte.Printf("Writing actions to shell script \"%s\"...\n", shellScriptFileName)
	var sb strings.Builder
	sb.Grow(unixCommandLengthGuess * (len(actions) + 2))
	sb.WriteString("#!/bin/sh\nset -e\n")
	for _, a := range actions {
		sb.WriteString(a.UnixCommand())
		sb.WriteString("\n")
	}
	if err := os.WriteFile(shellScriptFileName, []byte(sb.String()), 0700); err != nil {
		return fmt.Errorf("couldn't write to file '%s': %w", shellScriptFileName, err)
	}
	fmte.Printf("Done. You may run it now.\n")
	return nil
}

func reportEvent(e action.Event) {
	if e.Op == "copy" {
		fmte.PrintfV("%s %s (%s)\n", e.Op, e.Path, bytesutil.BinaryFormat(e.Size))
		return
	}
	fmte.PrintfV("%s %s\n", e.Op, e.Path)
}
