package model

import (
	"path"
	"strings"
)

// NormalizePath brings a file path into the form used for comparisons and
// map keys: forward slashes, cleaned, lower-case drive letter. The build
// description and the file system may report the same file with different
// separator conventions.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	if len(p) >= 2 && p[1] == ':' {
		p = strings.ToLower(p[:1]) + p[1:]
	}
	return p
}
