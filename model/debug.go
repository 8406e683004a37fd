package model

// LaunchType is the debug adapter type used for native test binaries
// driven through a machine-interface debugger (gdb/lldb-mi).
const LaunchType = "cppdbg"

// EnvVar is a single environment entry of a launch configuration
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DebugLaunchConfig is the configuration handed to the debug service.
// Program, Args and Cwd are always set by this tool; MIDebuggerPath and
// EnvFile may be borrowed from an existing launch configuration.
type DebugLaunchConfig struct {
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Request        string   `json:"request"`
	Program        string   `json:"program"`
	Args           []string `json:"args"`
	Cwd            string   `json:"cwd"`
	Environment    []EnvVar `json:"environment"`
	MIDebuggerPath string   `json:"miDebuggerPath,omitempty"`
	EnvFile        string   `json:"envFile,omitempty"`
}
