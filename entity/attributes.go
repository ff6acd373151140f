package entity

import (
	"fmt"
	iofs "io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// StatFormat is the GNU stat --format string whose output ParseAttributes reads
const StatFormat = "%f %i %d %h %u %g %s %X %Y %Z %N"

// RecordFormat is the GNU stat --printf string whose NUL-terminated output ParseRecord reads
const RecordFormat = `%f %i %d %h %u %g %s %X %Y %Z %n\0`

// POSIX file type bits of a stat mode
const (
	S_IFMT   = 0o170000
	S_IFSOCK = 0o140000
	S_IFLNK  = 0o120000
	S_IFREG  = 0o100000
	S_IFBLK  = 0o060000
	S_IFDIR  = 0o040000
	S_IFCHR  = 0o020000
	S_IFIFO  = 0o010000
)

const numericFields = 10

// FileType is the kind of file encoded in a stat mode
type FileType int8

const (
	TypeUnknown FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
	TypeFIFO
	TypeSocket
	TypeCharDevice
	TypeBlockDevice
)

func (t FileType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	case TypeFIFO:
		return "fifo"
	case TypeSocket:
		return "socket"
	case TypeCharDevice:
		return "char device"
	case TypeBlockDevice:
		return "block device"
	default:
		return "unknown"
	}
}

// Attributes is one stat result of a remote entry.
//
// A value obtained from a directory listing is a snapshot taken at FetchedAt and is never
// refreshed; whether it may still be used is the caller's cache policy.
type Attributes struct {
	Mode     uint32
	Inode    uint64
	Device   uint64
	Links    uint64
	UID      uint32
	GID      uint32
	Size     int64
	Atime    int64
	Mtime    int64
	Ctime    int64
	Filename string // as reported by the remote host: the path stat was given
	// LinkTarget is set for symlinks when the remote host reports it
	LinkTarget string
	FetchedAt  time.Time
}

// ParseError means a stat line or record doesn't have the expected shape.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("couldn't parse stat output %q: %s", e.Input, e.Reason)
}

// ParseAttributes parses one line printed by `stat --format=StatFormat`. Tokens are split the
// way a POSIX shell would, so quoted filenames with spaces stay whole. A filename holding a
// newline spans two lines and can't be parsed here; see ParseRecord.
func ParseAttributes(line string) (Attributes, error) {
	tokens, err := shellquote.Split(line)
	if err != nil {
		return Attributes{}, &ParseError{Input: line, Reason: err.Error()}
	}
	if len(tokens) < numericFields+1 {
		return Attributes{}, &ParseError{Input: line,
			Reason: fmt.Sprintf("expected %d fields, got %d", numericFields+1, len(tokens))}
	}
	a, err := parseNumeric(tokens[:numericFields])
	if err != nil {
		return Attributes{}, &ParseError{Input: line, Reason: err.Error()}
	}
	a.Filename = tokens[numericFields]
	if len(tokens) == numericFields+3 && tokens[numericFields+1] == "->" {
		a.LinkTarget = tokens[numericFields+2]
	} else if len(tokens) != numericFields+1 {
		return Attributes{}, &ParseError{Input: line,
			Reason: fmt.Sprintf("unexpected trailing fields %q", tokens[numericFields+1:])}
	}
	return a, nil
}

// ParseRecord parses one NUL-terminated record (without its terminator) printed by
// `stat --printf=RecordFormat`. The filename is taken verbatim, so any byte but NUL survives.
func ParseRecord(record string) (Attributes, error) {
	fields := strings.SplitN(record, " ", numericFields+1)
	if len(fields) < numericFields+1 || fields[numericFields] == "" {
		return Attributes{}, &ParseError{Input: record,
			Reason: fmt.Sprintf("expected %d fields, got %d", numericFields+1, len(fields))}
	}
	a, err := parseNumeric(fields[:numericFields])
	if err != nil {
		return Attributes{}, &ParseError{Input: record, Reason: err.Error()}
	}
	a.Filename = fields[numericFields]
	return a, nil
}

func parseNumeric(f []string) (a Attributes, err error) {
	mode, err := strconv.ParseUint(f[0], 16, 32)
	if err != nil {
		return a, fmt.Errorf("mode: %w", err)
	}
	a.Mode = uint32(mode)
	uints := []*uint64{&a.Inode, &a.Device, &a.Links}
	for i, dst := range uints {
		if *dst, err = strconv.ParseUint(f[1+i], 10, 64); err != nil {
			return a, fmt.Errorf("field %d: %w", 2+i, err)
		}
	}
	uid, err := strconv.ParseUint(f[4], 10, 32)
	if err != nil {
		return a, fmt.Errorf("uid: %w", err)
	}
	gid, err := strconv.ParseUint(f[5], 10, 32)
	if err != nil {
		return a, fmt.Errorf("gid: %w", err)
	}
	a.UID, a.GID = uint32(uid), uint32(gid)
	ints := []*int64{&a.Size, &a.Atime, &a.Mtime, &a.Ctime}
	for i, dst := range ints {
		if *dst, err = strconv.ParseInt(f[6+i], 10, 64); err != nil {
			return a, fmt.Errorf("field %d: %w", 7+i, err)
		}
	}
	return a, nil
}

// IsRegular tests the mode for a regular file
func (a Attributes) IsRegular() bool {
	return a.Mode&S_IFMT == S_IFREG
}

// IsDir tests the mode for a directory
func (a Attributes) IsDir() bool {
	return a.Mode&S_IFMT == S_IFDIR
}

// IsSymlink tests the mode for a symbolic link
func (a Attributes) IsSymlink() bool {
	return a.Mode&S_IFMT == S_IFLNK
}

func (a Attributes) Type() FileType {
	switch a.Mode & S_IFMT {
	case S_IFREG:
		return TypeRegular
	case S_IFDIR:
		return TypeDirectory
	case S_IFLNK:
		return TypeSymlink
	case S_IFIFO:
		return TypeFIFO
	case S_IFSOCK:
		return TypeSocket
	case S_IFCHR:
		return TypeCharDevice
	case S_IFBLK:
		return TypeBlockDevice
	default:
		return TypeUnknown
	}
}

// Perm returns permission bits including setuid, setgid and sticky
func (a Attributes) Perm() uint32 {
	return a.Mode & 0o7777
}

// FileMode converts the mode to an io/fs.FileMode
func (a Attributes) FileMode() iofs.FileMode {
	m := iofs.FileMode(a.Mode & 0o777)
	switch a.Type() {
	case TypeDirectory:
		m |= iofs.ModeDir
	case TypeSymlink:
		m |= iofs.ModeSymlink
	case TypeFIFO:
		m |= iofs.ModeNamedPipe
	case TypeSocket:
		m |= iofs.ModeSocket
	case TypeCharDevice:
		m |= iofs.ModeDevice | iofs.ModeCharDevice
	case TypeBlockDevice:
		m |= iofs.ModeDevice
	}
	if a.Mode&0o4000 != 0 {
		m |= iofs.ModeSetuid
	}
	if a.Mode&0o2000 != 0 {
		m |= iofs.ModeSetgid
	}
	if a.Mode&0o1000 != 0 {
		m |= iofs.ModeSticky
	}
	return m
}

func (a Attributes) ModTime() time.Time {
	return time.Unix(a.Mtime, 0)
}

// Name is the final path segment of Filename
func (a Attributes) Name() string {
	return path.Base(a.Filename)
}

func (a Attributes) String() string {
	return fmt.Sprintf("{%s %s, size: %d, modified: %v}", a.Type(), a.FileMode(), a.Size, a.ModTime())
}
