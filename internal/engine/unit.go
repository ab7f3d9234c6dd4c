package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime/debug"

	"github.com/miradorstack/graviton-inventory/internal/catalog"
	"github.com/miradorstack/graviton-inventory/internal/compat"
	"github.com/miradorstack/graviton-inventory/internal/metrics"
	"github.com/miradorstack/graviton-inventory/internal/models"
	"github.com/miradorstack/graviton-inventory/internal/probe"
)

// maxEvidenceOutput caps captured probe output per attempt.
const maxEvidenceOutput = 4 << 10

// unitResult is owned by exactly one worker until the merge.
type unitResult struct {
	record *models.DetectionRecord
	errors []models.DetectionError
}

// unit accumulates the state of one application's detection.
type unit struct {
	sig      catalog.Signature
	evidence models.Evidence
	checked  map[string]bool
	errors   []models.DetectionError
	timedOut bool
}

func (e *Engine) detectOne(ctx context.Context, scanID string, sig catalog.Signature, corp corpora, classifier *compat.Classifier) (out unitResult) {
	u := &unit{sig: sig, checked: make(map[string]bool)}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("detection panicked",
				slog.String("application", sig.Key),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			out = unitResult{errors: append(u.errors, models.DetectionError{
				ApplicationKey: sig.Key,
				Kind:           models.ErrorKindInternal,
				Message:        fmt.Sprintf("panic: %v", r),
			})}
		}
	}()

	method, ok := e.detectTier(ctx, u, corp)
	if !ok {
		return unitResult{errors: u.errors}
	}

	version, source := e.resolveVersion(ctx, u)
	status, notes := classifier.Classify(sig.Key, version)

	record := models.DetectionRecord{
		ScanID:              scanID,
		ApplicationKey:      sig.Key,
		Name:                sig.Name,
		Category:            sig.Category,
		ResolvedVersion:     version,
		VersionSource:       source,
		DetectionMethod:     method,
		CompatibilityStatus: status,
		CompatibilityNotes:  notes,
		Evidence:            u.evidence,
		DetectedAt:          e.clock.Now(),
	}

	if e.store != nil {
		id, err := e.store.Save(ctx, record)
		if err != nil {
			e.logger.Warn("failed to persist detection record", slog.String("application", sig.Key), slog.Any("error", err))
			u.errors = append(u.errors, models.DetectionError{
				ApplicationKey: sig.Key,
				Kind:           models.ErrorKindPersistence,
				Message:        fmt.Sprintf("save record: %v", err),
			})
		} else {
			record.StoreID = id
		}
	}

	e.logger.Debug("application detected",
		slog.String("application", sig.Key),
		slog.String("method", string(method)),
		slog.String("version", version),
		slog.String("status", string(status)),
	)
	return unitResult{record: &record, errors: u.errors}
}

// detectTier evaluates process, package and config tiers in that order, stopping at the
// first match.
func (e *Engine) detectTier(ctx context.Context, u *unit, corp corpora) (models.DetectionMethod, bool) {
	if pattern, ok := corp.matchesProcess(u.sig.ProcessPatterns); ok {
		e.logger.Debug("process tier matched", slog.String("application", u.sig.Key), slog.String("pattern", pattern))
		return models.DetectionMethodProcess, true
	}
	if name, ok := corp.matchesPackage(u.sig.PackagePatterns, u.sig.PackageNames); ok {
		e.logger.Debug("package tier matched", slog.String("application", u.sig.Key), slog.String("package", name))
		return models.DetectionMethodPackage, true
	}
	for _, path := range u.sig.ConfigPaths {
		exists, err := e.paths.PathExists(ctx, path)
		if err != nil {
			e.noteFS(u, "test -e "+path, err)
			exists = false
		}
		u.checkPath(path, exists)
		if exists {
			e.logger.Debug("config tier matched", slog.String("application", u.sig.Key), slog.String("path", path))
			return models.DetectionMethodConfigFile, true
		}
	}
	return "", false
}

// resolveVersion tries the version probes, then config file contents, then the default.
func (e *Engine) resolveVersion(ctx context.Context, u *unit) (string, models.VersionSource) {
	for _, command := range u.sig.VersionProbes {
		out, err := e.runProbe(ctx, command)
		attempt := models.ProbeAttempt{Command: command, Output: truncate(out)}
		if err != nil {
			attempt.ErrorKind = errorKindLabel(err)
			u.evidence.Probes = append(u.evidence.Probes, attempt)
			u.note(command, err)
			continue
		}
		version, ok := catalog.ParseVersion(u.sig, out)
		attempt.YieldedVersion = ok
		u.evidence.Probes = append(u.evidence.Probes, attempt)
		if ok {
			return version, models.VersionSourceProbe
		}
	}

	for _, path := range u.sig.ConfigPaths {
		if exists, seen := u.checked[path]; seen && !exists {
			continue
		}
		content, err := e.paths.ReadFile(ctx, path)
		if err != nil {
			e.noteFS(u, "read "+path, err)
			u.readFailed(path, err)
			continue
		}
		u.checkPath(path, true)
		if version, ok := catalog.ExtractConfigVersion(content); ok {
			return version, models.VersionSourceConfigFile
		}
	}

	return u.sig.DefaultVersion, models.VersionSourceDefault
}

// note elevates a failure that is more than an absence signal. At most one timed_out entry
// is kept per application.
func (u *unit) note(command string, err error) {
	if err == nil || probe.IsAbsence(err) {
		return
	}
	if kind, ok := probe.KindOf(err); ok && kind == probe.KindTimedOut {
		if u.timedOut {
			return
		}
		u.timedOut = true
		u.errors = append(u.errors, models.DetectionError{
			ApplicationKey: u.sig.Key,
			Kind:           models.ErrorKindTimedOut,
			Message:        err.Error(),
			Command:        command,
		})
		return
	}
	u.errors = append(u.errors, models.DetectionError{
		ApplicationKey: u.sig.Key,
		Kind:           models.ErrorKindInternal,
		Message:        err.Error(),
		Command:        command,
	})
}

// noteFS elevates only timeouts; other filesystem failures mean the path is unusable.
func (e *Engine) noteFS(u *unit, op string, err error) {
	if isKind(err, probe.KindTimedOut) {
		u.note(op, err)
		return
	}
	if !errors.Is(err, fs.ErrNotExist) {
		e.logger.Debug("config path unusable", slog.String("application", u.sig.Key), slog.String("op", op), slog.Any("error", err))
	}
}

func (u *unit) checkPath(path string, exists bool) {
	if prev, seen := u.checked[path]; seen {
		if prev == exists {
			return
		}
		for i := range u.evidence.ConfigPaths {
			if u.evidence.ConfigPaths[i].Path == path {
				u.evidence.ConfigPaths[i].Exists = exists
			}
		}
		u.checked[path] = exists
		return
	}
	u.checked[path] = exists
	u.evidence.ConfigPaths = append(u.evidence.ConfigPaths, models.ConfigPathCheck{Path: path, Exists: exists})
}

// readFailed records an unreadable config path. Existence already established by the config
// tier is kept; an absence error on an unchecked path just marks it missing.
func (u *unit) readFailed(path string, err error) {
	exists, seen := u.checked[path]
	if !seen && (probe.IsAbsence(err) || errors.Is(err, fs.ErrNotExist)) {
		u.checkPath(path, false)
		return
	}
	if !seen {
		u.checked[path] = false
		u.evidence.ConfigPaths = append(u.evidence.ConfigPaths, models.ConfigPathCheck{Path: path, ReadError: err.Error()})
		return
	}
	if !exists {
		return
	}
	for i := range u.evidence.ConfigPaths {
		if u.evidence.ConfigPaths[i].Path == path {
			u.evidence.ConfigPaths[i].ReadError = err.Error()
		}
	}
}

func truncate(s string) string {
	if len(s) <= maxEvidenceOutput {
		return s
	}
	return s[:maxEvidenceOutput]
}

func errorKindLabel(err error) string {
	if kind, ok := probe.KindOf(err); ok {
		return kind.String()
	}
	return "error"
}

func observeProbe(err error) {
	if err == nil {
		metrics.ObserveProbe(metrics.ProbeOK)
		return
	}
	switch kind, _ := probe.KindOf(err); kind {
	case probe.KindNotFound:
		metrics.ObserveProbe(metrics.ProbeNotFound)
	case probe.KindNonZeroExit:
		metrics.ObserveProbe(metrics.ProbeNonZeroExit)
	case probe.KindTimedOut:
		metrics.ObserveProbe(metrics.ProbeTimedOut)
	default:
		metrics.ObserveProbe(metrics.ProbeError)
	}
}
