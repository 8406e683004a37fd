package gtest

// This file derives per-test outcomes from the report markers a test binary
// prints. It is a textual heuristic kept behind OutcomeParser so a structured
// source (e.g. the binary's XML/JSON report) can replace it.

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/perfgo/cmaketest/model"
)

// OutcomeParser turns the captured output of one run into statuses for the
// requested tests. With no requested names, every reported test is returned.
type OutcomeParser interface {
	Parse(output string, requested []string) map[string]model.TestStatus
}

// markerRe matches lines like "[ PASSED ] Suite.Test", "[       OK ] Suite.Test (3 ms)"
// and "[  FAILED  ] Suite.Test, where GetParam() = 4 (0 ms)".
var markerRe = regexp.MustCompile(`^\[\s*(PASSED|OK|FAILED|SKIPPED)\s*\]\s+([^\s,(]+)`)

// Outcomes holds the names reported with each marker
type Outcomes struct {
	Passed  map[string]struct{}
	Failed  map[string]struct{}
	Skipped map[string]struct{}
}

// ParseOutcomes collects the names reported as passed, failed or skipped.
// Summary lines ("[  PASSED  ] 3 tests.") are ignored since a test name
// always carries a suite.
func ParseOutcomes(output string) Outcomes {
	o := Outcomes{
		Passed:  make(map[string]struct{}),
		Failed:  make(map[string]struct{}),
		Skipped: make(map[string]struct{}),
	}

	sc := bufio.NewScanner(strings.NewReader(output))
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	for sc.Scan() {
		m := markerRe.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		name := m[2]
		if !strings.Contains(name, ".") {
			continue
		}
		switch m[1] {
		case "PASSED", "OK":
			o.Passed[name] = struct{}{}
		case "FAILED":
			o.Failed[name] = struct{}{}
		case "SKIPPED":
			o.Skipped[name] = struct{}{}
		}
	}
	return o
}

// Status resolves one name. A failure anywhere wins over a pass; a name
// never reported is NotRun, which covers filter mismatches and crashes.
func (o Outcomes) Status(name string) model.TestStatus {
	if _, ok := o.Failed[name]; ok {
		return model.StatusFailed
	}
	if _, ok := o.Passed[name]; ok {
		return model.StatusPassed
	}
	if _, ok := o.Skipped[name]; ok {
		return model.StatusIgnored
	}
	return model.StatusNotRun
}

// MarkerParser implements OutcomeParser over the textual report markers.
type MarkerParser struct{}

func (MarkerParser) Parse(output string, requested []string) map[string]model.TestStatus {
	o := ParseOutcomes(output)

	names := requested
	if len(names) == 0 {
		for _, set := range []map[string]struct{}{o.Passed, o.Failed, o.Skipped} {
			for name := range set {
				names = append(names, name)
			}
		}
	}

	statuses := make(map[string]model.TestStatus, len(names))
	for _, name := range names {
		statuses[name] = o.Status(name)
	}
	return statuses
}
