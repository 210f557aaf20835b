package vfs

import "strings"

// Logical path helpers.
//
// A logical path is absolute and slash-delimited; a trailing slash marks a
// directory reference. These helpers are pure: they never touch I/O and never
// consult the mount table.

// NormalizePath canonicalizes a logical path: ensures a leading slash,
// collapses runs of slashes, and, when the caller declares the reference is a
// directory, appends the trailing slash if missing. Paths containing ".."
// segments are rejected with BadRequest.
func NormalizePath(path string, isDirectory bool) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	segments := strings.Split(path, "/")
	cleaned := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if seg == ".." {
			return "", NewBadRequestError("path must not contain '..' segments")
		}
		cleaned = append(cleaned, seg)
	}

	normalized := "/" + strings.Join(cleaned, "/")
	if isDirectory && normalized != "/" {
		normalized += "/"
	}
	if normalized == "/" && !isDirectory {
		// The root can only be referenced as a directory.
		return "/", nil
	}
	return normalized, nil
}

// IsDirectoryPath reports whether the path references a directory.
func IsDirectoryPath(path string) bool {
	return strings.HasSuffix(path, "/")
}

// ParentPath returns the parent directory of path, always with a trailing
// slash. The parent of the root is the root itself.
func ParentPath(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		return "/"
	}
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return "/"
	}
	return trimmed[:idx+1]
}

// BaseName returns the final path segment without any trailing slash.
// The base name of the root is the empty string.
func BaseName(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		return ""
	}
	idx := strings.LastIndex(trimmed, "/")
	return trimmed[idx+1:]
}

// JoinPath joins two logical path fragments with exactly one slash between
// them. The result keeps b's trailing slash, so joining a directory reference
// stays a directory reference.
func JoinPath(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return strings.TrimSuffix(a, "/") + "/" + strings.TrimPrefix(b, "/")
}
