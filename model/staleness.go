package model

import "time"

// StalenessRecord holds the modification times seen after the last
// successful configure and build of a project root.
type StalenessRecord struct {
	// Modification time of the build description (CMakeLists.txt)
	LastCmakeMtime time.Time `json:"last_cmake_mtime"`
	// Modification times of source files, keyed by normalized absolute path
	LastSourceMtimes map[string]time.Time `json:"last_source_mtimes"`
	// Set once a configure has been committed and cleared by the next
	// successful build, so a failed build is retried.
	BuildPending bool `json:"build_pending,omitempty"`
}

// NewStalenessRecord returns an empty record
func NewStalenessRecord() *StalenessRecord {
	return &StalenessRecord{
		LastSourceMtimes: make(map[string]time.Time),
	}
}
