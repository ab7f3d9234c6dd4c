package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

// maxReadBytes caps how much of a config file is inspected.
const maxReadBytes = 64 << 10

// PathChecker answers filesystem questions about the inspected host.
type PathChecker interface {
	PathExists(ctx context.Context, path string) (bool, error)
	ReadFile(ctx context.Context, path string) (string, error)
}

// LocalFS checks paths with native filesystem calls.
type LocalFS struct{}

// PathExists reports whether path exists.
func (LocalFS) PathExists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadFile returns up to 64 KiB of path.
func (LocalFS) ReadFile(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ShellFS answers filesystem questions through a Runner, for transports where the host is
// only reachable by command execution.
type ShellFS struct {
	runner  Runner
	timeout time.Duration
}

// NewShellFS wraps runner; timeout <= 0 uses DefaultTimeout.
func NewShellFS(runner Runner, timeout time.Duration) *ShellFS {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ShellFS{runner: runner, timeout: timeout}
}

// PathExists runs `test -e path && echo exists`.
func (s *ShellFS) PathExists(ctx context.Context, path string) (bool, error) {
	quoted, err := syntax.Quote(path, syntax.LangPOSIX)
	if err != nil {
		return false, fmt.Errorf("quote path: %w", err)
	}
	out, err := s.runner.Run(ctx, "test -e "+quoted+" && echo exists", s.timeout)
	if err != nil {
		if IsAbsence(err) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(out) == "exists", nil
}

// ReadFile runs `head -c` on path.
func (s *ShellFS) ReadFile(ctx context.Context, path string) (string, error) {
	quoted, err := syntax.Quote(path, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("quote path: %w", err)
	}
	return s.runner.Run(ctx, fmt.Sprintf("head -c %d %s", maxReadBytes, quoted), s.timeout)
}
