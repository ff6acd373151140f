// Package explorer adapts remote paths to a file explorer: root and directory candidates for
// display, and the paste/remove actions invoked from its UI.
package explorer

import (
	"context"
	"errors"
	"strings"
	"sync"

	set "github.com/deckarep/golang-set/v2"
	"github.com/m-manu/sshpath/fs"
	"github.com/m-manu/sshpath/remote"
)

// ErrNoConnection is returned when a remote operation is requested before any remote root
var ErrNoConnection = errors.New("no remote root has been opened")

// Candidate is one row the explorer displays
type Candidate struct {
	Word        string
	IsDirectory bool
	Path        fs.Endpoint
}

// Source turns root arguments and directories into candidates.
type Source struct {
	// RootFormatter, if set, renders the root label from the bare path (no user@host)
	RootFormatter func(path string) string
	// Ignored holds base names left out of GatherCandidates
	Ignored set.Set[string]

	connOpts []remote.Option

	mx      sync.Mutex
	conns   map[string]*remote.Connection
	current *remote.Connection
}

// SourceOption configures a Source
type SourceOption func(*Source)

// WithConnectionOptions applies opts to every connection the Source opens
func WithConnectionOptions(opts ...remote.Option) SourceOption {
	return func(s *Source) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// WithRootFormatter sets Source.RootFormatter
func WithRootFormatter(f func(path string) string) SourceOption {
	return func(s *Source) {
		s.RootFormatter = f
	}
}

// WithIgnored adds names to Source.Ignored
func WithIgnored(names ...string) SourceOption {
	return func(s *Source) {
		s.Ignored.Append(names...)
	}
}

func NewSource(opts ...SourceOption) *Source {
	s := &Source{
		Ignored: set.NewSet[string](),
		conns:   map[string]*remote.Connection{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect returns the connection for loc's login, creating it on first use. Locations that
// differ only in path share one connection.
func (s *Source) Connect(loc remote.Location) *remote.Connection {
	key := loc.User + "@" + loc.SSHAddr()
	s.mx.Lock()
	defer s.mx.Unlock()
	conn, ok := s.conns[key]
	if !ok {
		conn = remote.NewConnection(loc, s.connOpts...)
		s.conns[key] = conn
	}
	return conn
}

// Current returns the connection of the most recently opened remote root
func (s *Source) Current() (*remote.Connection, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.current == nil {
		return nil, ErrNoConnection
	}
	return s.current, nil
}

// Open parses a root argument into an endpoint. User and host, when present, pick the
// connection, which becomes the current one. A path without a host belongs to the current
// connection; it is local only before any remote root was opened, or when written as
// "file:PATH" or "file://PATH".
func (s *Source) Open(raw string) (fs.Endpoint, error) {
	if p, ok := localForm(raw); ok {
		return fs.NewLocalPath(p)
	}
	loc, err := remote.ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	if !loc.IsRemote {
		s.mx.Lock()
		conn := s.current
		s.mx.Unlock()
		if conn == nil {
			return fs.NewLocalPath(loc.Path)
		}
		return fs.NewRemotePath(conn, loc.Path)
	}
	conn := s.Connect(loc)
	p, err := fs.NewRemotePath(conn, loc.Path)
	if err != nil {
		return nil, err
	}
	s.mx.Lock()
	s.current = conn
	s.mx.Unlock()
	return p, nil
}

func localForm(raw string) (string, bool) {
	for _, prefix := range []string{"file://", "file:"} {
		if strings.HasPrefix(raw, prefix) && len(raw) > len(prefix) {
			return raw[len(prefix):], true
		}
	}
	return "", false
}

// GetRootCandidate describes the root the explorer was opened on. The label is the bare path;
// the host is shown by the connection, not repeated on every root.
func (s *Source) GetRootCandidate(raw string) (Candidate, error) {
	p, err := s.Open(raw)
	if err != nil {
		return Candidate{}, err
	}
	label := displayPath(p)
	word := label
	if !strings.HasSuffix(word, "/") {
		word += "/"
	}
	if s.RootFormatter != nil {
		word = s.RootFormatter(label)
	}
	return Candidate{
		Word:        escapeNewlines(word),
		IsDirectory: true,
		Path:        p,
	}, nil
}

// GatherCandidates lists a directory, one candidate per entry not in Ignored
func (s *Source) GatherCandidates(ctx context.Context, dir fs.Endpoint) ([]Candidate, error) {
	entries, err := dir.List(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		if s.Ignored.Contains(e.Name()) {
			continue
		}
		info, err := e.Info(ctx)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			Word:        escapeNewlines(e.Name()),
			IsDirectory: info.IsDir(),
			Path:        e,
		})
	}
	return candidates, nil
}

// Close closes every connection the Source opened
func (s *Source) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	var errs []error
	for _, conn := range s.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// displayPath is the path without its user@host part
func displayPath(e fs.Endpoint) string {
	if rp, ok := e.(fs.RemotePath); ok {
		return rp.Path()
	}
	return e.String()
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}
