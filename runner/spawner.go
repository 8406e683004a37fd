package runner

// This file contains the process spawner used to execute test binaries on
// the local machine.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// Process describes one invocation of a test binary.
type Process struct {
	Path string
	Args []string
	// Env is the complete environment in KEY=value form
	Env []string
	Dir string
}

// Result is what a finished process left behind. Output holds standard
// output and standard error interleaved in arrival order.
type Result struct {
	Output   string
	ExitCode int
}

// Spawner starts a process and waits for it. A non-zero exit code is
// reported through Result; an error means the process could not run.
type Spawner interface {
	Spawn(ctx context.Context, p Process) (Result, error)
}

// ExecSpawner runs processes with os/exec.
type ExecSpawner struct {
	logger zerolog.Logger
	// Stream, when set, receives the output while the process runs
	Stream io.Writer
}

func NewExecSpawner(logger zerolog.Logger, stream io.Writer) *ExecSpawner {
	return &ExecSpawner{logger: logger, Stream: stream}
}

// lockedBuffer serializes writes from the stdout and stderr readers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	out io.Writer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.out != nil {
		_, _ = b.out.Write(p)
	}
	return b.buf.Write(p)
}

func (s *ExecSpawner) Spawn(ctx context.Context, p Process) (Result, error) {
	s.logger.Debug().
		Str("binary", p.Path).
		Strs("args", p.Args).
		Str("dir", p.Dir).
		Msg("Starting test execution")

	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	cmd.Env = p.Env
	cmd.Dir = p.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to open stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to start %s: %w", p.Path, err)
	}

	combined := &lockedBuffer{out: s.Stream}
	var wg sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			_, _ = io.Copy(combined, r)
		}(r)
	}
	// pipes must be drained before Wait closes them
	wg.Wait()

	res := Result{}
	err = cmd.Wait()
	res.Output = combined.buf.String()
	if err != nil {
		// Test failures are expected to return non-zero exit codes
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			s.logger.Info().
				Int("exit_code", res.ExitCode).
				Msg("Tests completed with non-zero exit code")
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("failed to execute test: %w", err)
	}

	s.logger.Info().Msg("Tests completed successfully")
	return res, nil
}
