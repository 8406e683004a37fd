// Package scanner finds GoogleTest style test declarations in C/C++ sources.
//
// This is a textual heuristic, not a parser: a declaration is recognised only
// when the whole `MACRO(Suite, Name)` head sits on one line. Invocations
// spanning several lines, macros produced through preprocessor indirection and
// conditional compilation are not resolved.
package scanner

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/perfgo/cmaketest/model"
)

// Discoverer produces the tests declared in a source text. Scanner is the
// textual implementation; a source that asks the built binary to enumerate
// its tests can replace it without touching callers.
type Discoverer interface {
	Discover(text string) []model.ScannedTest
}

type pass struct {
	kind    model.TestKind
	pattern *regexp.Regexp
}

func macroPattern(macro string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*` + macro + `\s*\(\s*([A-Za-z_]\w*)\s*,\s*([A-Za-z_]\w*)\s*\)`)
}

// one pass per kind, in output order for declarations on the same line
var passes = []pass{
	{kind: model.KindPlain, pattern: macroPattern("TEST")},
	{kind: model.KindFixture, pattern: macroPattern("TEST_F")},
	{kind: model.KindParameterized, pattern: macroPattern("TEST_P")},
}

// Scanner scans source text line by line
type Scanner struct{}

// New creates a new scanner
func New() *Scanner {
	return &Scanner{}
}

// Discover implements Discoverer.
func (s *Scanner) Discover(text string) []model.ScannedTest {
	return Scan(text)
}

// Scan returns the test declarations of text ordered by line.
func Scan(text string) []model.ScannedTest {
	lines := splitLines(text)

	var tests []model.ScannedTest
	for _, p := range passes {
		for i, line := range lines {
			m := p.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			tests = append(tests, model.NewScannedTest(m[1], m[2], i+1, p.kind))
		}
	}

	// Passes are concatenated Plain, Fixture, Parameterized; the stable sort
	// keeps that order for matches on the same line.
	sort.SliceStable(tests, func(i, j int) bool {
		return tests[i].Line < tests[j].Line
	})

	return tests
}

// ScanReader scans everything readable from r. A read error yields the
// tests found so far.
func ScanReader(r io.Reader) []model.ScannedTest {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	for sc.Scan() {
		b.WriteString(sc.Text())
		b.WriteByte('\n')
	}
	return Scan(b.String())
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
