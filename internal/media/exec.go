package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// Executor runs external tools. It is the single place subprocesses are started.
type Executor interface {
	// Run executes name with args. outPath, when set, has its parent directory created first.
	Run(ctx context.Context, outPath, name string, args ...string) RunResult
	// Output executes name with args and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, RunResult)
}

// Subprocess is the production Executor.
type Subprocess struct {
	logger     *slog.Logger
	debugPaths bool // if true, log full file paths; otherwise sanitise
}

// NewSubprocess creates an Executor that logs through logger.
func NewSubprocess(logger *slog.Logger, debugPaths bool) *Subprocess {
	return &Subprocess{logger: logger, debugPaths: debugPaths}
}

func (s *Subprocess) Run(ctx context.Context, outPath, name string, args ...string) RunResult {
	return s.exec(ctx, outPath, io.Discard, name, args...)
}

func (s *Subprocess) Output(ctx context.Context, name string, args ...string) ([]byte, RunResult) {
	var stdout bytes.Buffer
	res := s.exec(ctx, "", &stdout, name, args...)
	return stdout.Bytes(), res
}

// exec is the core subprocess execution helper.
func (s *Subprocess) exec(ctx context.Context, outPath string, stdout io.Writer, name string, args ...string) RunResult {
	start := time.Now()

	// Ensure output directory exists
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			s.logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	s.logger.Debug("executing command", "tool", filepath.Base(name), "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(err.Error())
		}
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		s.logger.Warn("command failed",
			"tool", filepath.Base(name),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		s.logger.Debug("command succeeded",
			"tool", filepath.Base(name),
			"duration_ms", elapsed.Milliseconds(),
			"output", s.safePath(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (s *Subprocess) safePath(path string) string {
	if s.debugPaths || path == "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

// ToolError is returned when a subprocess exits non-zero.
type ToolError struct {
	Tool   string
	Result RunResult
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", e.Tool, e.Result.ExitCode, truncate(e.Result.StderrTail, 512))
}

// resultErr converts a failed RunResult into a *ToolError.
func resultErr(tool string, res RunResult) error {
	if res.IsSuccess() {
		return nil
	}
	return &ToolError{Tool: filepath.Base(tool), Result: res}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
