package sync

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/fsys"
)

// MergePolicy decides how type conflicts between source and target are
// resolved.
type MergePolicy int

const (
	// PolicyDefault behaves exactly like PolicySoft.
	PolicyDefault MergePolicy = iota
	// PolicySoft never destroys a target entry of the wrong type.
	PolicySoft
	// PolicyFull replaces conflicting target entries and prunes target-only
	// entries.
	PolicyFull
)

func (p MergePolicy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case PolicySoft:
		return "soft"
	case PolicyFull:
		return "full"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func (p MergePolicy) valid() bool {
	return p == PolicyDefault || p == PolicySoft || p == PolicyFull
}

// Destructive reports whether the policy may delete target entries.
func (p MergePolicy) Destructive() bool {
	return p == PolicyFull
}

// ParseMergePolicy maps the two selector flags to a policy.
func ParseMergePolicy(soft, full bool) (MergePolicy, error) {
	switch {
	case soft && full:
		return PolicyDefault, errors.Wrap(ErrConflictingOptions, "soft-merge and full-merge are mutually exclusive")
	case full:
		return PolicyFull, nil
	case soft:
		return PolicySoft, nil
	default:
		return PolicyDefault, nil
	}
}

// Job is one source root synchronized into one target root.
type Job struct {
	Source string
	Target string
	Ignore IgnoreSet
	Policy MergePolicy
}

// Engine copies a source tree into a target tree, depth first. Only the
// source tree is enumerated; the target is queried per entry.
type Engine struct {
	fs     fsys.FS
	logger *zap.Logger
}

// NewEngine returns an engine operating on fs.
func NewEngine(fs fsys.FS, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{fs: fs, logger: logger}
}

// Sync runs the source-driven pass for job. Failures on individual entries
// are logged and counted; they never stop the traversal.
func (e *Engine) Sync(job Job) SyncResult {
	result := newSyncResult()
	e.visit(job, job.Source, job.Target, true, &result)
	return result
}

func (e *Engine) visit(job Job, source, target string, root bool, result *SyncResult) {
	name := filepath.Base(source)
	if !root {
		if p, ok := job.Ignore.Match(name); ok {
			e.logger.Debug("ignored", zap.String("path", source), zap.String("pattern", p.Raw.Text))
			result.count(ActionIgnored)
			return
		}
	}

	kind, err := e.kind(source, root)
	if err != nil {
		e.fail("stat source", source, err, result)
		return
	}
	switch kind {
	case fsys.Dir:
		e.syncDir(job, source, target, root, result)
	case fsys.File:
		e.syncFile(job, source, target, root, result)
	case fsys.Symlink:
		e.logger.Warn("source is a symbolic link, skipping", zap.String("path", source))
		result.count(ActionSkippedLink)
	default:
		e.fail("stat source", source, errors.Wrap(ErrSourceNotFound, "entry vanished"), result)
	}
}

func (e *Engine) syncDir(job Job, source, target string, root bool, result *SyncResult) {
	targetKind, err := e.kind(target, root)
	if err != nil {
		e.fail("stat target", target, err, result)
		return
	}

	switch targetKind {
	case fsys.Missing:
		if err := e.fs.MkdirAll(target); err != nil {
			e.fail("create directory", target, err, result)
			return
		}
		e.logger.Debug("created directory", zap.String("path", target))
		result.count(ActionCreatedDir)
	case fsys.File, fsys.Symlink:
		if !job.Policy.Destructive() {
			e.logger.Warn("target is not a directory, skipping",
				zap.String("path", target), zap.String("source", source), zap.Stringer("policy", job.Policy))
			result.count(ActionConflictSkipped)
			return
		}
		e.logger.Warn("replacing "+targetKind.String()+" with directory", zap.String("path", target), zap.String("source", source))
		if err := e.fs.RemoveFile(target); err != nil {
			e.fail("remove conflicting file", target, err, result)
			return
		}
		if err := e.fs.MkdirAll(target); err != nil {
			e.fail("create directory", target, err, result)
			return
		}
		result.count(ActionConflictReplaced)
	}

	names, err := e.fs.ReadDir(source)
	if err != nil {
		e.fail("list directory", source, err, result)
		return
	}
	for _, name := range names {
		e.visit(job, filepath.Join(source, name), filepath.Join(target, name), false, result)
	}
}

func (e *Engine) syncFile(job Job, source, target string, root bool, result *SyncResult) {
	targetKind, err := e.kind(target, root)
	if err != nil {
		e.fail("stat target", target, err, result)
		return
	}

	switch targetKind {
	case fsys.Symlink:
		// CopyFile would write through the link.
		if !job.Policy.Destructive() {
			e.logger.Warn("target is a symbolic link, skipping file",
				zap.String("path", target), zap.String("source", source), zap.Stringer("policy", job.Policy))
			result.count(ActionConflictSkipped)
			return
		}
		e.logger.Warn("replacing symbolic link with file", zap.String("path", target), zap.String("source", source))
		if err := e.fs.RemoveFile(target); err != nil {
			e.fail("remove conflicting link", target, err, result)
			return
		}
		result.count(ActionConflictReplaced)
	case fsys.Dir:
		if !job.Policy.Destructive() {
			e.logger.Warn("target is a directory, skipping file",
				zap.String("path", target), zap.String("source", source), zap.Stringer("policy", job.Policy))
			result.count(ActionConflictSkipped)
			return
		}
		e.logger.Warn("replacing directory with file", zap.String("path", target), zap.String("source", source))
		if err := e.fs.RemoveDir(target, true); err != nil {
			e.fail("remove conflicting directory", target, err, result)
			return
		}
		result.count(ActionConflictReplaced)
	}

	n, err := e.fs.CopyFile(source, target)
	if err != nil {
		e.fail("copy file", target, err, result)
		return
	}
	e.logger.Debug("copied", zap.String("path", target), zap.String("source", source), zap.Int64("bytes", n))
	result.count(ActionCopied)
	result.BytesCopied += n
}

// kind follows links only for the roots a job names; entries below them
// are classified without following.
func (e *Engine) kind(path string, root bool) (fsys.Kind, error) {
	if root {
		return e.fs.Stat(path)
	}
	return e.fs.Lstat(path)
}

func (e *Engine) fail(op, path string, err error, result *SyncResult) {
	e.logger.Error(op+" failed", zap.String("path", path), zap.Error(err))
	result.count(ActionFailed)
}
