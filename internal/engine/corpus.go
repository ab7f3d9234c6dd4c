package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/graviton-inventory/internal/models"
	"github.com/miradorstack/graviton-inventory/internal/probe"
)

// Baseline corpus commands, gathered once per run.
const (
	processCommand = "ps aux"
	dpkgCommand    = "dpkg -l"
	rpmCommand     = "rpm -qa"
)

// corpora is the read-only view shared by every detection unit.
type corpora struct {
	// processes is the lower-cased process listing.
	processes string
	// packages holds lower-cased package names from dpkg and rpm.
	packages []string
}

func (c corpora) matchesProcess(patterns []string) (string, bool) {
	if c.processes == "" {
		return "", false
	}
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(c.processes, strings.ToLower(pattern)) {
			return pattern, true
		}
	}
	return "", false
}

// matchesPackage reports the first package whose name contains one of patterns or equals one
// of names.
func (c corpora) matchesPackage(patterns, names []string) (string, bool) {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		needle := strings.ToLower(pattern)
		for _, name := range c.packages {
			if strings.Contains(name, needle) {
				return name, true
			}
		}
	}
	for _, want := range names {
		want = strings.ToLower(want)
		if want == "" {
			continue
		}
		for _, name := range c.packages {
			if name == want {
				return name, true
			}
		}
	}
	return "", false
}

type corpusResult struct {
	command string
	output  string
	err     error
}

func (e *Engine) gatherCorpora(ctx context.Context) (corpora, []models.DetectionError) {
	commands := []string{processCommand, dpkgCommand, rpmCommand}
	results := make([]corpusResult, len(commands))

	var g errgroup.Group
	for i, command := range commands {
		g.Go(func() error {
			out, err := e.runProbe(ctx, command)
			results[i] = corpusResult{command: command, output: out, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if ps := &results[0]; e.processes != nil && isKind(ps.err, probe.KindNotFound) {
		e.logger.Debug("ps unavailable, listing processes natively")
		out, err := e.processes.ListProcesses(ctx)
		ps.output, ps.err = out, err
		if err != nil {
			ps.command = "native process listing"
		}
	}

	var (
		errs   []models.DetectionError
		failed int
	)
	for _, res := range results {
		if res.err == nil {
			continue
		}
		failed++
		if probe.IsAbsence(res.err) {
			e.logger.Debug("corpus unavailable", slog.String("command", res.command), slog.Any("error", res.err))
			continue
		}
		e.logger.Warn("corpus gathering failed", slog.String("command", res.command), slog.Any("error", res.err))
		errs = append(errs, models.DetectionError{
			ApplicationKey: models.RunWide,
			Kind:           models.ErrorKindCorpus,
			Message:        fmt.Sprintf("gather corpus: %v", res.err),
			Command:        res.command,
		})
	}
	if failed == len(results) {
		errs = append(errs, models.DetectionError{
			ApplicationKey: models.RunWide,
			Kind:           models.ErrorKindCorpus,
			Message:        "no baseline corpus available; only config file detection is possible",
		})
	}

	var corp corpora
	if results[0].err == nil {
		corp.processes = strings.ToLower(results[0].output)
	}
	if results[1].err == nil {
		corp.packages = append(corp.packages, dpkgPackages(results[1].output)...)
	}
	if results[2].err == nil {
		corp.packages = append(corp.packages, rpmPackages(results[2].output)...)
	}
	return corp, errs
}

// dpkgPackages extracts installed package names from `dpkg -l`, dropping any :arch suffix.
func dpkgPackages(listing string) []string {
	var names []string
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "ii" {
			continue
		}
		name, _, _ := strings.Cut(fields[1], ":")
		if name != "" {
			names = append(names, strings.ToLower(name))
		}
	}
	return names
}

// rpmPackages extracts package names from `rpm -qa`, dropping version, release and arch.
func rpmPackages(listing string) []string {
	var names []string
	for _, line := range strings.Split(listing, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, strings.ToLower(rpmName(line)))
		}
	}
	return names
}

// rpmName strips the trailing -version-release.arch from an rpm NEVRA line. Lines that do not
// end in a numeric version are returned unchanged.
func rpmName(nevra string) string {
	parts := strings.Split(nevra, "-")
	if len(parts) < 3 {
		return nevra
	}
	version := parts[len(parts)-2]
	if version == "" || version[0] < '0' || version[0] > '9' {
		return nevra
	}
	return strings.Join(parts[:len(parts)-2], "-")
}

func isKind(err error, kind probe.Kind) bool {
	k, ok := probe.KindOf(err)
	return ok && k == kind
}
