// Package filesutil reads the local files the command line refers to.
package filesutil

import (
	"fmt"
	"os"
	"strings"

	set "github.com/deckarep/golang-set/v2"
)

// IsReadableFile checks whether argument is a readable file
func IsReadableFile(path string) bool {
	fileInfo, statErr := os.Stat(path)
	if statErr != nil {
		return false
	}
	return fileInfo.Mode().IsRegular()
}

// ParseNameList converts newline separated names to a set, skipping blank lines and
// lines starting with '#'. Windows line endings are accepted.
func ParseNameList(contents string) set.Set[string] {
	names := set.NewThreadUnsafeSet[string]()
	for _, line := range strings.Split(strings.ReplaceAll(contents, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names.Add(line)
	}
	return names
}

// ReadNameList reads a ParseNameList file
func ReadNameList(path string) (set.Set[string], error) {
	if !IsReadableFile(path) {
		return nil, fmt.Errorf("%q is not a readable file", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read %q: %w", path, err)
	}
	return ParseNameList(string(raw)), nil
}
