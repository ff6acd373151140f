package remote

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Location represents either a local path or a remote [user@]host path.
type Location struct {
	IsRemote bool
	User     string // empty = whatever ssh picks (config or current user)
	Host     string
	Port     int // 0 = default (22)
	Path     string
}

// remoteSchemes are the URL schemes accepted in scheme://[user@]host[:port]/path form
var remoteSchemes = map[string]struct{}{
	"ssh":  {},
	"sftp": {},
	"scp":  {},
}

// ParseLocation parses a root argument into a Location.
//
// Rules:
//   - "ssh://", "sftp://" or "scp://" prefix → remote URL, path defaults to "/"
//   - Starts with "/", "./", or "../" → local
//   - Contains ":" → remote ([user@]host:path or [user@]host:port:path)
//   - Everything else → local
//
// Remote paths must be absolute; no remote working directory is assumed.
func ParseLocation(arg string) (Location, error) {
	if arg == "" {
		return Location{}, fmt.Errorf("empty path argument")
	}

	if schemeEnd := strings.Index(arg, "://"); schemeEnd > 0 {
		if _, ok := remoteSchemes[strings.ToLower(arg[:schemeEnd])]; ok {
			return parseURL(arg)
		}
		return Location{}, fmt.Errorf("unsupported scheme in %q", arg)
	}

	// Clearly local paths
	if strings.HasPrefix(arg, "/") || strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") {
		return Location{Path: arg}, nil
	}

	colonIdx := strings.Index(arg, ":")
	if colonIdx < 0 {
		return Location{Path: arg}, nil
	}

	hostPart := arg[:colonIdx]
	rest := arg[colonIdx+1:]

	if hostPart == "" {
		return Location{}, fmt.Errorf("empty host in remote path %q", arg)
	}

	loc := Location{IsRemote: true}
	if atIdx := strings.LastIndex(hostPart, "@"); atIdx >= 0 {
		loc.User = hostPart[:atIdx]
		loc.Host = hostPart[atIdx+1:]
	} else {
		loc.Host = hostPart
	}
	if loc.Host == "" {
		return Location{}, fmt.Errorf("empty host in remote path %q", arg)
	}

	// port:path, where port is all digits
	if secondColon := strings.Index(rest, ":"); secondColon > 0 {
		if port, err := strconv.Atoi(rest[:secondColon]); err == nil {
			if port <= 0 || port > 65535 {
				return Location{}, fmt.Errorf("invalid port %d in remote path %q", port, arg)
			}
			loc.Port = port
			rest = rest[secondColon+1:]
		}
	}

	if rest == "" {
		return Location{}, fmt.Errorf("empty path in remote spec %q", arg)
	}
	if !strings.HasPrefix(rest, "/") {
		return Location{}, fmt.Errorf("remote path %q must be absolute", rest)
	}
	loc.Path = rest
	return loc, nil
}

func parseURL(arg string) (Location, error) {
	u, err := url.Parse(arg)
	if err != nil {
		return Location{}, fmt.Errorf("couldn't parse %q: %w", arg, err)
	}
	loc := Location{IsRemote: true, Host: u.Hostname(), Path: u.Path}
	if loc.Host == "" {
		return Location{}, fmt.Errorf("empty host in remote path %q", arg)
	}
	if u.User != nil {
		loc.User = u.User.Username()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Location{}, fmt.Errorf("invalid port %q in remote path %q", p, arg)
		}
		loc.Port = port
	}
	if loc.Path == "" {
		loc.Path = "/"
	}
	return loc, nil
}

// SSHAddr returns the host:port string for SSH connection.
func (l Location) SSHAddr() string {
	port := l.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", l.Host, port)
}

// SSHSpec returns "user@host" or "host", the destination handed to ssh.
func (l Location) SSHSpec() string {
	if l.User != "" {
		return l.User + "@" + l.Host
	}
	return l.Host
}

// String renders the location the way ParseLocation accepts it back.
func (l Location) String() string {
	if !l.IsRemote {
		return l.Path
	}
	if l.Port != 0 {
		return fmt.Sprintf("%s:%d:%s", l.SSHSpec(), l.Port, l.Path)
	}
	return l.SSHSpec() + ":" + l.Path
}
