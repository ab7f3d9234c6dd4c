package probe

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

// exitNotFound is the status POSIX shells use when a command cannot be found.
const exitNotFound = 127

// builtins are resolved by the shell itself and never looked up on PATH.
var builtins = map[string]struct{}{
	"test":    {},
	"[":       {},
	"echo":    {},
	"printf":  {},
	"command": {},
	"type":    {},
	"true":    {},
	"false":   {},
	"cd":      {},
}

// ShellRunner executes commands through a POSIX shell on the local host.
type ShellRunner struct {
	shell          string
	defaultTimeout time.Duration
	logger         *slog.Logger
	lookPath       func(string) (string, error)
}

// NewShellRunner constructs a runner using /bin/sh.
func NewShellRunner(logger *slog.Logger, defaultTimeout time.Duration) *ShellRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &ShellRunner{
		shell:          "/bin/sh",
		defaultTimeout: defaultTimeout,
		logger:         logger,
		lookPath:       exec.LookPath,
	}
}

// Run executes command and returns stdout. Stderr is only logged.
func (r *ShellRunner) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	if name := leadingProgram(command); name != "" {
		if _, builtin := builtins[name]; !builtin {
			if _, err := r.lookPath(name); err != nil {
				return "", &Error{Kind: KindNotFound, Command: command, ExitCode: exitNotFound, Err: err}
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	configureProcessGroup(cmd)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		r.logger.Warn("probe wrote to stderr",
			slog.String("command", command),
			slog.String("stderr", truncate(msg, 512)),
		)
	}

	if err == nil {
		return stdout.String(), nil
	}

	if ctx.Err() != nil {
		r.logger.Warn("probe timed out", slog.String("command", command), slog.Duration("elapsed", duration))
		return "", &Error{Kind: KindTimedOut, Command: command, Err: ctx.Err()}
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return "", &Error{Kind: KindNotFound, Command: command, ExitCode: exitNotFound, Err: err}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == exitNotFound {
			return "", &Error{Kind: KindNotFound, Command: command, ExitCode: code, Err: err}
		}
		return "", &Error{Kind: KindNonZeroExit, Command: command, ExitCode: code, Err: err}
	}

	return "", &Error{Kind: KindNonZeroExit, Command: command, ExitCode: -1, Err: err}
}

// leadingProgram returns the literal program name of a simple command, or "" when the
// command is compound or not statically known.
func leadingProgram(command string) string {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil || len(file.Stmts) == 0 {
		return ""
	}
	call, ok := file.Stmts[0].Cmd.(*syntax.CallExpr)
	if !ok || len(call.Args) == 0 {
		return ""
	}
	return call.Args[0].Lit()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
