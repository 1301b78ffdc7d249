// Package datasite implements path helpers for the datasite tree layout:
// every synced file lives under a relative path whose first segment is the
// owning datasite's email address, e.g. "alice@example.com/public/notes.txt".
package datasite

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/opensyncbox/syncbox/internal/utils"
)

var (
	PathSep           = "/"
	regexDatasitePath = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+/`)
)

// RelativePath is a slash-separated path rooted at the datasites directory,
// e.g. "alice@example.com/public/notes.txt". It is always cleaned and never
// carries a leading or trailing separator.
type RelativePath string

// NewRelativePath cleans an arbitrary path string into a RelativePath.
func NewRelativePath(path string) RelativePath {
	return RelativePath(CleanPath(path))
}

func (p RelativePath) String() string {
	return string(p)
}

// Owner returns the datasite email that owns this path, or "" if the path
// does not start with a syntactically valid datasite segment.
func (p RelativePath) Owner() string {
	return ExtractDatasiteName(string(p))
}

// IsValid reports whether the path starts with a datasite-shaped prefix.
func (p RelativePath) IsValid() bool {
	return IsValidPath(string(p))
}

// GetOwner returns the owner (first path segment) of path, without
// validating that it looks like an email address.
func GetOwner(path string) string {
	path = CleanPath(path)
	parts := strings.SplitN(path, PathSep, 2)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// IsOwner reports whether user is the owning prefix of path.
func IsOwner(path string, user string) bool {
	path = CleanPath(path)
	return strings.HasPrefix(path, user+PathSep) || path == user
}

// CleanPath normalizes path separators to "/" and strips leading/trailing
// slashes, regardless of the host OS's native separator.
func CleanPath(path string) string {
	path = filepath.ToSlash(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, string(filepath.Separator), PathSep)
	return strings.Trim(path, PathSep)
}

// IsValidPath reports whether path begins with "<local-part>@<domain>/".
func IsValidPath(path string) bool {
	return regexDatasitePath.MatchString(CleanPath(path) + "/")
}

// IsValidDatasite reports whether user is a syntactically valid email.
func IsValidDatasite(user string) bool {
	return utils.IsValidEmail(user)
}

// ExtractDatasiteName extracts the datasite email from a path's first
// segment, returning "" if that segment is not a valid email address.
func ExtractDatasiteName(path string) string {
	path = CleanPath(path)
	parts := strings.SplitN(path, PathSep, 2)
	if len(parts) == 0 {
		return ""
	}

	email := parts[0]
	if IsValidDatasite(email) {
		return email
	}

	return ""
}
