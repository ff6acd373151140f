package fmte

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var p = message.NewPrinter(language.English)

var mx sync.Mutex // guards out and errOut, and keeps stdout/stderr lines ordered

var out io.Writer = os.Stdout

var errOut io.Writer = os.Stderr

var quiet atomic.Bool

var verbose atomic.Bool

// SetOutput redirects normal and error output. A nil writer leaves that stream unchanged.
func SetOutput(stdout, stderr io.Writer) {
	mx.Lock()
	defer mx.Unlock()
	if stdout != nil {
		out = stdout
	}
	if stderr != nil {
		errOut = stderr
	}
}

// Off silences Printf, PrintfV and Print. PrintfErr is never silenced.
func Off() {
	quiet.Store(true)
}

// VerboseOn enables PrintfV and Tracef output
func VerboseOn() {
	verbose.Store(true)
}

// IsVerbose reports whether verbose output is on
func IsVerbose() bool {
	return verbose.Load() && !quiet.Load()
}

// Printf is goroutine-safe fmt.Printf for English
func Printf(format string, a ...any) {
	if quiet.Load() {
		return
	}
	mx.Lock()
	_, _ = p.Fprintf(out, format, a...)
	mx.Unlock()
}

// PrintfV is Printf that only prints in verbose mode
func PrintfV(format string, a ...any) {
	if !IsVerbose() {
		return
	}
	mx.Lock()
	_, _ = p.Fprintf(out, format, a...)
	mx.Unlock()
}

// Tracef writes a verbose-mode line to the error stream, so traces never mix with command output
func Tracef(format string, a ...any) {
	if !IsVerbose() {
		return
	}
	mx.Lock()
	_, _ = p.Fprintf(errOut, format, a...)
	mx.Unlock()
}

// Print is a goroutine-safe fmt.Print for English
func Print(a ...any) {
	if quiet.Load() {
		return
	}
	mx.Lock()
	_, _ = p.Fprint(out, a...)
	mx.Unlock()
}

// PrintfErr is goroutine-safe fmt.Printf to the error stream for English
func PrintfErr(format string, a ...any) {
	mx.Lock()
	_, _ = p.Fprintf(errOut, format, a...)
	mx.Unlock()
}
