package remote

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds every Execute call unless WithTimeout says otherwise
const DefaultTimeout = 30 * time.Second

// ListingProtocol selects how directory listings are fetched.
type ListingProtocol int8

const (
	// ListingShell lists names with `ls -A` and batch-stats them with shell-quoted output.
	// Names containing newlines or some quote forms don't survive it.
	ListingShell ListingProtocol = iota
	// ListingNull fetches names and attributes in one NUL-delimited round trip
	ListingNull
)

func (l ListingProtocol) String() string {
	switch l {
	case ListingNull:
		return "null"
	default:
		return "shell"
	}
}

type cacheMode int8

const (
	cacheForever cacheMode = iota
	cacheNever
	cacheTTL
)

// StatCachePolicy decides whether attributes captured by a listing may be reused by Stat.
// Nothing is ever refreshed in place: a stale snapshot is simply ignored and re-fetched.
type StatCachePolicy struct {
	mode cacheMode
	ttl  time.Duration
}

var (
	// CacheForever reuses listing attributes for the lifetime of the path value
	CacheForever = StatCachePolicy{mode: cacheForever}
	// CacheNever always asks the remote host
	CacheNever = StatCachePolicy{mode: cacheNever}
)

// CacheFor reuses listing attributes for ttl after they were fetched
func CacheFor(ttl time.Duration) StatCachePolicy {
	if ttl <= 0 {
		return CacheNever
	}
	return StatCachePolicy{mode: cacheTTL, ttl: ttl}
}

// Fresh reports whether a snapshot taken at fetchedAt may still be used at now
func (p StatCachePolicy) Fresh(fetchedAt, now time.Time) bool {
	switch p.mode {
	case cacheForever:
		return true
	case cacheTTL:
		return now.Sub(fetchedAt) < p.ttl
	default:
		return false
	}
}

func (p StatCachePolicy) String() string {
	switch p.mode {
	case cacheNever:
		return "never"
	case cacheTTL:
		return p.ttl.String()
	default:
		return "forever"
	}
}

// ParseStatCachePolicy accepts "forever", "never" or a duration such as "30s"
func ParseStatCachePolicy(s string) (StatCachePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "forever":
		return CacheForever, nil
	case "never", "off":
		return CacheNever, nil
	}
	ttl, err := time.ParseDuration(s)
	if err != nil {
		return StatCachePolicy{}, fmt.Errorf("invalid stat cache policy %q: want forever, never or a duration", s)
	}
	return CacheFor(ttl), nil
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithPort sets the ssh port
func WithPort(port int) Option {
	return func(c *Connection) {
		c.loc.Port = port
	}
}

// WithKeyPath passes -i to ssh
func WithKeyPath(path string) Option {
	return func(c *Connection) {
		c.keyPath = path
	}
}

// WithSSHBinary replaces the ssh executable
func WithSSHBinary(binary string) Option {
	return func(c *Connection) {
		c.binary = binary
	}
}

// WithTimeout bounds each Execute call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.timeout = d
	}
}

// WithRunner replaces the ssh execution layer
func WithRunner(r Runner) Option {
	return func(c *Connection) {
		c.runner = r
	}
}

// WithSerializedCalls makes Execute calls on this connection run one at a time
func WithSerializedCalls() Option {
	return func(c *Connection) {
		c.serialize = true
	}
}

// WithSFTP streams file contents over one sftp session instead of one `cat` per file
func WithSFTP() Option {
	return func(c *Connection) {
		c.useSFTP = true
	}
}

// WithListing selects the directory listing protocol
func WithListing(l ListingProtocol) Option {
	return func(c *Connection) {
		c.listing = l
	}
}

// WithStatCache sets the policy for reusing listing attributes
func WithStatCache(p StatCachePolicy) Option {
	return func(c *Connection) {
		c.cache = p
	}
}

// WithClock replaces time.Now, for cache expiry
func WithClock(now func() time.Time) Option {
	return func(c *Connection) {
		c.now = now
	}
}
