// Package searchtool runs the external protein search binary (DIAMOND by
// default) as an opaque subprocess:
//
//	<path> <algorithm> -q <query_file> -o <result_file> -d <database> [extra_args...]
//
// The tool is expected to write the result file on success. Tool runs are
// not retried; a non-zero exit is reported as *Error carrying the tail of the
// tool's stderr.
package searchtool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPath      = "diamond"
	DefaultAlgorithm = "blastp"

	stderrTailLines = 20
	waitDelay       = 5 * time.Second
)

// Config configures the search binary invocation.
type Config struct {
	Path      string
	Algorithm string
	Database  string
	ExtraArgs []string
	Env       []string

	// Timeout bounds a single run. Zero means no timeout.
	Timeout time.Duration
}

// Error describes a failed tool run.
type Error struct {
	Path     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Path, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Tool runs search jobs. It is safe for concurrent use; every Search call
// starts its own process.
type Tool struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Tool, error) {
	cfg.Path = strings.TrimSpace(cfg.Path)
	cfg.Algorithm = strings.TrimSpace(cfg.Algorithm)
	cfg.Database = strings.TrimSpace(cfg.Database)
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("search database is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("search timeout must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		logger.Warn("Search tool has no timeout", zap.String("path", cfg.Path))
	}
	return &Tool{cfg: cfg, logger: logger}, nil
}

func (t *Tool) Config() Config {
	return t.cfg
}

// Args returns the argument list for a run against the given files.
func (t *Tool) Args(queryFile, resultFile string) []string {
	args := []string{t.cfg.Algorithm, "-q", queryFile, "-o", resultFile, "-d", t.cfg.Database}
	return append(args, t.cfg.ExtraArgs...)
}

// LookPath resolves the configured binary.
func (t *Tool) LookPath() (string, error) {
	return exec.LookPath(t.cfg.Path)
}

// Search runs the tool once and waits for it to exit. Stderr lines are
// logged at debug level as they arrive.
func (t *Tool) Search(ctx context.Context, queryFile, resultFile string) error {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	args := t.Args(queryFile, resultFile)
	cmd := exec.CommandContext(ctx, t.cfg.Path, args...)
	cmd.WaitDelay = waitDelay
	if len(t.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), t.cfg.Env...)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &Error{Path: t.cfg.Path, Args: args, ExitCode: -1, Err: err}
	}

	logger := t.logger.With(zap.String("query_file", queryFile))
	started := time.Now()
	if err := cmd.Start(); err != nil {
		return &Error{Path: t.cfg.Path, Args: args, ExitCode: -1, Err: err}
	}
	logger.Debug("Search tool started", zap.Int("pid", cmd.Process.Pid))

	tail := collectStderr(stderr, func(line string) {
		logger.Debug("Search tool stderr", zap.String("line", line))
	})

	if err := cmd.Wait(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return &Error{
			Path:     t.cfg.Path,
			Args:     args,
			ExitCode: exitCode,
			Stderr:   strings.Join(tail, "\n"),
			Err:      err,
		}
	}

	logger.Debug("Search tool finished", zap.Duration("duration", time.Since(started)))
	return nil
}

// collectStderr reads r to EOF, calling fn per line, and returns the last
// stderrTailLines lines.
func collectStderr(r io.Reader, fn func(line string)) []string {
	tail := make([]string, 0, stderrTailLines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fn(line)
		if len(tail) == stderrTailLines {
			tail = append(tail[:0], tail[1:]...)
		}
		tail = append(tail, line)
	}
	if scanner.Err() != nil {
		// Keep the pipe drained so the tool cannot block on a full buffer.
		_, _ = io.Copy(io.Discard, r)
	}
	return tail
}
