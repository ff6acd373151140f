package fs

import (
	"context"
	"sort"
	"strings"

	"github.com/m-manu/sshpath/entity"
	"github.com/m-manu/sshpath/remote"
)

// Iterator walks one directory listing. It is single-use:
//
//	it := dir.Iterate(ctx)
//	for it.Step() {
//		use(it.Path())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	ctx     context.Context
	dir     RemotePath
	started bool
	entries []RemotePath
	next    int
	cur     RemotePath
	err     error
}

// Step advances to the next entry, fetching the listing on the first call
func (it *Iterator) Step() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		if it.dir.conn.Listing() == remote.ListingNull {
			it.entries, it.err = it.dir.listRecords(it.ctx)
		} else {
			it.entries, it.err = it.dir.listShell(it.ctx)
		}
		if it.err != nil {
			return false
		}
	}
	if it.next >= len(it.entries) {
		return false
	}
	it.cur = it.entries[it.next]
	it.next++
	return true
}

// Path returns the entry of the last successful Step
func (it *Iterator) Path() RemotePath {
	return it.cur
}

// Err returns the error that ended iteration, if any
func (it *Iterator) Err() error {
	return it.err
}

// listShell lists names with ls, then stats all of them in one batch
func (p RemotePath) listShell(ctx context.Context) ([]RemotePath, error) {
	names, err := p.conn.Execute(ctx, listCommand(p.path)...)
	if err != nil {
		return nil, notFoundOr(p.path, err)
	}
	if len(names) == 0 {
		return []RemotePath{}, nil
	}
	children := make([]RemotePath, len(names))
	paths := make([]string, len(names))
	for i, name := range names {
		if children[i], err = p.Join(name); err != nil {
			return nil, err
		}
		paths[i] = children[i].path
	}

	tokens := statCommand(paths...)
	lines, err := p.conn.Execute(ctx, tokens...)
	if err != nil {
		return nil, err
	}
	if len(lines) != len(children) {
		return nil, &remote.CommandError{Target: p.conn.String(), Command: tokens, Err: ErrListingMismatch}
	}
	now := p.conn.Now()
	for i, line := range lines {
		attrs, err := entity.ParseAttributes(line)
		if err != nil {
			return nil, err
		}
		if attrs.Filename != children[i].path {
			return nil, &remote.CommandError{Target: p.conn.String(), Command: tokens, Err: ErrListingMismatch}
		}
		attrs.FetchedAt = now
		children[i].attrs = &attrs
	}
	return children, nil
}

// listRecords fetches names and attributes in one NUL-delimited round trip
func (p RemotePath) listRecords(ctx context.Context) ([]RemotePath, error) {
	tokens := findStatCommand(p.path)
	out, err := p.conn.ExecuteRaw(ctx, tokens...)
	if err != nil {
		return nil, notFoundOr(p.path, err)
	}
	prefix := p.path + "/"
	if p.IsRoot() {
		prefix = "/"
	}
	now := p.conn.Now()
	children := []RemotePath{}
	for _, record := range strings.Split(string(out), "\x00") {
		if record == "" {
			continue
		}
		attrs, err := entity.ParseRecord(record)
		if err != nil {
			return nil, err
		}
		name, ok := strings.CutPrefix(attrs.Filename, prefix)
		if !ok || name == "" || strings.Contains(name, "/") {
			return nil, &remote.CommandError{Target: p.conn.String(), Command: tokens, Err: ErrListingMismatch}
		}
		attrs.FetchedAt = now
		children = append(children, RemotePath{conn: p.conn, path: prefix + name, attrs: &attrs})
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].path < children[j].path
	})
	return children, nil
}
