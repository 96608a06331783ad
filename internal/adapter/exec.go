package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecAnalyzer runs an external command per analysis. The project is written
// to the command's stdin as JSON and the Result is read from its stdout.
// On a non-zero exit the command may print {"diagnostics": [...]} to stdout;
// otherwise stderr becomes a single project-wide diagnostic.
type ExecAnalyzer struct {
	Command []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// NewExecAnalyzer creates an analyzer for the given command line.
func NewExecAnalyzer(command []string, dir string, timeout time.Duration) *ExecAnalyzer {
	return &ExecAnalyzer{Command: command, Dir: dir, Timeout: timeout}
}

// Analyze runs the command. Cancelling ctx kills the process.
func (e *ExecAnalyzer) Analyze(ctx context.Context, p Project) (*Result, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("exec analyzer: no command configured")
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	input, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("exec analyzer: encode project: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var out failureOutput
		if json.Unmarshal(stdout.Bytes(), &out) == nil && len(out.Diagnostics) > 0 {
			return nil, &AnalyzerError{Diagnostics: out.Diagnostics, Err: err}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &AnalyzerError{Diagnostics: []Diagnostic{{Message: msg}}, Err: err}
	}

	res, err := DecodeResult(stdout.Bytes())
	if err != nil {
		return nil, &AnalyzerError{Diagnostics: []Diagnostic{{Message: err.Error()}}, Err: err}
	}
	return res, nil
}
