package model

import "time"

// TestKind identifies which declaration macro introduced a test
type TestKind uint8

const (
	KindPlain TestKind = iota
	KindFixture
	KindParameterized
)

// Macro returns the declaration macro name for the kind
func (k TestKind) Macro() string {
	switch k {
	case KindFixture:
		return "TEST_F"
	case KindParameterized:
		return "TEST_P"
	default:
		return "TEST"
	}
}

func (k TestKind) String() string {
	switch k {
	case KindFixture:
		return "fixture"
	case KindParameterized:
		return "parameterized"
	default:
		return "plain"
	}
}

// ScannedTest is a single test declaration found in a source file.
type ScannedTest struct {
	Suite string   `json:"suite"`
	Name  string   `json:"name"`
	Line  int      `json:"line"` // 1-based
	Kind  TestKind `json:"kind"`
	// Suite + "." + Name. For parameterized tests this names the template,
	// not a concrete instantiation.
	FullName string `json:"full_name"`
}

// NewScannedTest builds a ScannedTest with its full name filled in.
func NewScannedTest(suite, name string, line int, kind TestKind) ScannedTest {
	return ScannedTest{
		Suite:    suite,
		Name:     name,
		Line:     line,
		Kind:     kind,
		FullName: FullName(suite, name),
	}
}

// FullName returns the suite qualified test name used for filtering and result keys
func FullName(suite, name string) string {
	return suite + "." + name
}

// ScannedFile holds the tests declared in one source file
type ScannedFile struct {
	Path  string        `json:"path"`
	Tests []ScannedTest `json:"tests"`
}

// TestStatus is the state of a test in the result store
type TestStatus string

const (
	StatusNotRun  TestStatus = "not_run"
	StatusRunning TestStatus = "running"
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusIgnored TestStatus = "ignored"
)

// TestResult is the latest known outcome of a test
type TestResult struct {
	Status      TestStatus `json:"status"`
	Output      string     `json:"output,omitempty"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
}
