// Package gtest knows the command line and output conventions of test
// binaries built with GoogleTest.
package gtest

import "strings"

const (
	// FilterFlag selects tests by name pattern
	FilterFlag = "--gtest_filter"
	// ExcludeSigil starts the negative part of a filter expression
	ExcludeSigil = "-"
	// Separator joins patterns of a filter expression
	Separator = ":"
	// MatchAll is the filter selecting every test
	MatchAll = "*"
)

// BuildFilter joins full test names into a filter expression, or selects
// everything when names is empty.
func BuildFilter(names []string) string {
	if len(names) == 0 {
		return MatchAll
	}
	return strings.Join(names, Separator)
}

// WithDefault combines a filter with a configured default filter. A default
// made only of exclusions is appended as the negative part; anything else is
// joined as an additional positive pattern.
func WithDefault(filter, def string) string {
	def = strings.TrimSpace(def)
	if def == "" {
		return filter
	}
	if strings.HasPrefix(def, ExcludeSigil) {
		return filter + def
	}
	return filter + Separator + def
}

// FilterArg renders the filter flag for the command line.
func FilterArg(filter string) string {
	return FilterFlag + "=" + filter
}
