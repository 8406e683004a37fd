package scanner

// This file contains directory scanning over a glob pattern.

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/perfgo/cmaketest/model"
	"github.com/rs/zerolog"
)

// DefaultGlob matches the usual C++ translation unit extensions
const DefaultGlob = "**/*.{cpp,cc,cxx,c++}"

// ScanFile scans a single file. Unreadable files yield no tests.
func ScanFile(d Discoverer, path string) []model.ScannedTest {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return d.Discover(string(data))
}

// CacheFile marks the top of a cmake build tree.
const CacheFile = "CMakeCache.txt"

// IgnoreDir reports whether a directory is left out of scans: hidden
// directories, cmake scratch directories and build trees.
func IgnoreDir(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || base == "CMakeFiles" {
		return true
	}
	_, err := os.Stat(filepath.Join(path, CacheFile))
	return err == nil
}

// ScanDir scans every file under root matching glob. Files are visited in
// sorted order so repeated scans produce the same sequence. Files without
// any test declaration are dropped. Directories matched by IgnoreDir and
// those listed in exclude are not entered.
func ScanDir(logger zerolog.Logger, d Discoverer, root, glob string, exclude ...string) ([]model.ScannedFile, error) {
	if glob == "" {
		glob = DefaultGlob
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid scan glob %q", glob)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, dir := range exclude {
		skip[model.NormalizePath(dir)] = struct{}{}
	}

	var matches []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Debug().Err(err).Str("path", path).Msg("Skipping unreadable path")
			return nil
		}
		if entry.IsDir() {
			if path == root {
				return nil
			}
			if _, ok := skip[model.NormalizePath(path)]; ok || IgnoreDir(path) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(glob, filepath.ToSlash(rel)); ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(matches)

	var files []model.ScannedFile
	for _, abs := range matches {
		tests := ScanFile(d, abs)
		if len(tests) == 0 {
			continue
		}
		files = append(files, model.ScannedFile{
			Path:  model.NormalizePath(abs),
			Tests: tests,
		})
	}

	logger.Debug().
		Str("root", root).
		Str("glob", glob).
		Int("candidates", len(matches)).
		Int("files", len(files)).
		Msg("Scanned source tree")

	return files, nil
}
