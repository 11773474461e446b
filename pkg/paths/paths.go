// Package paths validates and decomposes the hierarchical keys of the
// namespace. A path is a sequence of non-empty segments separated by '/',
// always starting with '/', never ending with one except for the root.
package paths

import (
	"errors"
	"strings"
)

const Root = "/"

var (
	ErrEmpty          = errors.New("path is empty")
	ErrNoLeadingSlash = errors.New("path does not start at the root")
	ErrTrailingSlash  = errors.New("path should end in a node name, not a '/'")
	ErrEmptySegment   = errors.New("path contains an empty node name")
	ErrNulChar        = errors.New("path contains a NUL character")
)

// Validate verifies that a path received from a client is well formed. The
// root itself is a valid path; callers that cannot operate on the root check
// for it separately.
func Validate(path string) error {
	if path == "" {
		return ErrEmpty
	}
	if !strings.HasPrefix(path, "/") {
		return ErrNoLeadingSlash
	}
	if path == Root {
		return nil
	}
	if strings.HasSuffix(path, "/") {
		return ErrTrailingSlash
	}
	if strings.ContainsRune(path, 0) {
		return ErrNulChar
	}
	// Since we have a leading /, the first split element is empty.
	for _, name := range strings.Split(path, "/")[1:] {
		if name == "" {
			return ErrEmptySegment
		}
	}
	return nil
}

// Parent returns the longest strict prefix ending before the final '/'.
// Parent("/x") is the root. Parent of the root is the root.
func Parent(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return Root
	}
	return path[:i]
}

// Segment returns the portion of the path after the final '/'. The root has
// an empty segment.
func Segment(path string) string {
	i := strings.LastIndexByte(path, '/')
	return path[i+1:]
}

// Split returns the segment names from the root down. Split of the root is
// empty.
func Split(path string) []string {
	if path == Root {
		return nil
	}
	return strings.Split(path, "/")[1:]
}

// Join appends a segment to a parent path, handling the root specially so no
// double slash appears.
func Join(parent, segment string) string {
	if parent == Root {
		return Root + segment
	}
	return parent + "/" + segment
}
