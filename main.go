package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	set "github.com/deckarep/golang-set/v2"
	"github.com/m-manu/sshpath/action"
	"github.com/m-manu/sshpath/filesutil"
	"github.com/m-manu/sshpath/fmte"
	"github.com/m-manu/sshpath/fs"
	"github.com/m-manu/sshpath/remote"
	"github.com/spf13/pflag"
)

// Constants indicating return codes of this tool, when run from command line
const (
	exitCodeSuccess = iota
	exitCodeInvalidArgs
	exitCodeExclusionFilesError
	exitCodeConnectionError
	exitCodeNotFound
	exitCodeUnsupported
	exitCodeCommandError
)

type cliFlags struct {
	isHelp          func() bool
	isVerbose       func() bool
	isDryRun        func() bool
	isLong          func() bool
	isHumanReadable func() bool
	getScriptPath   func() string
	getParallelism  func() int
	isPreserveTimes func() bool
	getExclusions   func() (set.Set[string], error)
	getConnOptions  func() ([]remote.Option, error)
}

func setupExclusionsOpt(fset *pflag.FlagSet, flags *cliFlags) {
	const exclusionsFlag = "exclusions"
	excludePtr := fset.StringArrayP("exclude", "x", nil,
		"name of a file or directory to leave out of copies (may be repeated)")
	exclusionsFilePtr := fset.String(exclusionsFlag, "",
		"path to file containing newline separated list of names to leave out of copies")
	flags.getExclusions = func() (set.Set[string], error) {
		exclusions := set.NewSet[string](*excludePtr...)
		if *exclusionsFilePtr == "" {
			return exclusions, nil
		}
		fromFile, err := filesutil.ReadNameList(*exclusionsFilePtr)
		if err != nil {
			return nil, fmt.Errorf("argument to flag --%s: %w", exclusionsFlag, err)
		}
		exclusions.Append(fromFile.ToSlice()...)
		return exclusions, nil
	}
}

func setupConnectionOpts(fset *pflag.FlagSet, flags *cliFlags) {
	keyPtr := fset.StringP("identity", "i", "", "private key file handed to ssh")
	timeoutPtr := fset.Duration("timeout", remote.DefaultTimeout, "time limit for each remote command")
	sftpPtr := fset.Bool("sftp", false, "stream file contents over an SFTP session instead of cat")
	nullListingPtr := fset.Bool("null-listing", false,
		"list directories in one NUL-delimited round trip (keeps names with newlines intact)")
	statCachePtr := fset.String("stat-cache", "forever",
		"how long attributes fetched with a listing are reused: forever, never or a duration")
	serializePtr := fset.Bool("serialize", false, "run at most one remote command per host at a time")
	flags.getConnOptions = func() ([]remote.Option, error) {
		policy, err := remote.ParseStatCachePolicy(*statCachePtr)
		if err != nil {
			return nil, err
		}
		opts := []remote.Option{
			remote.WithTimeout(*timeoutPtr),
			remote.WithStatCache(policy),
		}
		if *keyPtr != "" {
			opts = append(opts, remote.WithKeyPath(*keyPtr))
		}
		if *sftpPtr {
			opts = append(opts, remote.WithSFTP())
		}
		if *nullListingPtr {
			opts = append(opts, remote.WithListing(remote.ListingNull))
		}
		if *serializePtr {
			opts = append(opts, remote.WithSerializedCalls())
		}
		return opts, nil
	}
}

func setupOutputOpts(fset *pflag.FlagSet, flags *cliFlags) {
	helpPtr := fset.BoolP("help", "h", false, "display help")
	verbosePtr := fset.BoolP("verbose", "v", false, "report every step and every remote command")
	longPtr := fset.BoolP("long", "l", false, "ls: show type, permissions, size and modification time")
	humanPtr := fset.BoolP("human-readable", "H", false, "ls: show sizes in KiB, MiB etc.")
	flags.isHelp = func() bool { return *helpPtr }
	flags.isVerbose = func() bool { return *verbosePtr }
	flags.isLong = func() bool { return *longPtr }
	flags.isHumanReadable = func() bool { return *humanPtr }
}

func setupActionOpts(fset *pflag.FlagSet, flags *cliFlags) {
	dryRunPtr := fset.BoolP("dry-run", "n", false,
		"print the equivalent shell commands instead of changing anything")
	scriptPtr := fset.String("shellscript", "",
		"instead of applying changes directly, write the equivalent commands to this shell script")
	parallelPtr := fset.IntP("parallel", "j", 1, "entries of one directory processed at once by cp, mv and rm")
	preservePtr := fset.BoolP("preserve-times", "p", false, "cp, mv: keep modification times")
	flags.isDryRun = func() bool { return *dryRunPtr }
	flags.getScriptPath = func() string { return *scriptPtr }
	flags.getParallelism = func() int { return *parallelPtr }
	flags.isPreserveTimes = func() bool { return *preservePtr }
}

func setupFlags(fset *pflag.FlagSet) *cliFlags {
	flags := &cliFlags{}
	setupOutputOpts(fset, flags)
	setupConnectionOpts(fset, flags)
	setupActionOpts(fset, flags)
	setupExclusionsOpt(fset, flags)
	return flags
}

func handlePanic() {
	err := recover()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Program exited unexpectedly. "+
			"Please report the below error to the author:\n"+
			"%+v\n", err)
		_, _ = fmt.Fprintln(os.Stderr, string(debug.Stack()))
		os.Exit(exitCodeCommandError)
	}
}

func usageHint() {
	fmte.PrintfErr("Run \"sshpath --help\" for usage\n")
}

func showHelp(fset *pflag.FlagSet) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "\t%-8s %s\n", name, commands[name].usage)
	}
	fmte.Printf("sshpath lists, inspects, copies, moves and removes files on hosts reachable over ssh.\n\n"+
		"Usage:\n\t sshpath <flags> <command> [arguments]\n\n"+
		"where a path is either local or remote ([user@]host[:port]:/path or ssh://[user@]host[:port]/path)\n"+
		"and command is one of:\n%s\nflags: (all optional)\n%s", sb.String(), fset.FlagUsages())
}

// run executes one command line and returns the process exit code. connOpts are applied
// after the ones derived from flags.
func run(ctx context.Context, args []string, connOpts ...remote.Option) int {
	fset := pflag.NewFlagSet("sshpath", pflag.ContinueOnError)
	fset.SetOutput(io.Discard)
	flags := setupFlags(fset)
	if err := fset.Parse(args); err != nil {
		fmte.PrintfErr("error: %v\n", err)
		usageHint()
		return exitCodeInvalidArgs
	}
	if flags.isHelp() {
		showHelp(fset)
		return exitCodeSuccess
	}
	if flags.isVerbose() {
		fmte.VerboseOn()
	}
	if fset.NArg() == 0 {
		fmte.PrintfErr("error: no command given\n")
		usageHint()
		return exitCodeInvalidArgs
	}
	name, cmdArgs := fset.Arg(0), fset.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmte.PrintfErr("error: unknown command %q\n", name)
		usageHint()
		return exitCodeInvalidArgs
	}
	if len(cmdArgs) < cmd.minArgs || (cmd.maxArgs >= 0 && len(cmdArgs) > cmd.maxArgs) {
		fmte.PrintfErr("error: usage: sshpath %s %s\n", name, cmd.usage)
		return exitCodeInvalidArgs
	}
	exclusions, err := flags.getExclusions()
	if err != nil {
		fmte.PrintfErr("error: %v\n", err)
		return exitCodeExclusionFilesError
	}
	flagConnOpts, err := flags.getConnOptions()
	if err != nil {
		fmte.PrintfErr("error: %v\n", err)
		usageHint()
		return exitCodeInvalidArgs
	}
	if flags.getParallelism() < 1 {
		fmte.PrintfErr("error: --parallel must be at least 1\n")
		return exitCodeInvalidArgs
	}
	env := newCLIEnv(flags, exclusions, append(flagConnOpts, connOpts...))
	defer func() {
		if closeErr := env.source.Close(); closeErr != nil {
			fmte.PrintfV("Closing connections failed: %v\n", closeErr)
		}
	}()
	start := time.Now()
	if err := cmd.run(ctx, env, cmdArgs); err != nil {
		fmte.PrintfErr("error: %v\n", err)
		return exitCodeFor(err)
	}
	fmte.PrintfV("Completed in %.1fs\n", time.Since(start).Seconds())
	return exitCodeSuccess
}

func exitCodeFor(err error) int {
	var connErr *remote.ConnectionError
	var unsupported *fs.UnsupportedOperationError
	var usage *usageError
	switch {
	case errors.As(err, &usage):
		return exitCodeInvalidArgs
	case errors.As(err, &connErr):
		return exitCodeConnectionError
	case fs.IsNotFound(err):
		return exitCodeNotFound
	case errors.As(err, &unsupported):
		return exitCodeUnsupported
	default:
		return exitCodeCommandError
	}
}

// actionOptions builds the options handed to every tree operation
func actionOptions(flags *cliFlags, exclusions set.Set[string]) action.Options {
	return action.Options{
		Parallelism:   flags.getParallelism(),
		Exclude:       exclusions,
		PreserveTimes: flags.isPreserveTimes(),
		Progress:      reportEvent,
	}
}

func main() {
	defer handlePanic()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
