package sync

import (
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/fsys"
)

// Prune deletes target entries whose relative path has no source
// counterpart. It only acts under a destructive policy, and entries whose
// name is ignored are left alone, along with everything below them.
func (e *Engine) Prune(job Job) SyncResult {
	result := newSyncResult()
	if !job.Policy.Destructive() {
		return result
	}
	e.pruneDir(job, job.Source, job.Target, true, &result)
	return result
}

func (e *Engine) pruneDir(job Job, source, target string, root bool, result *SyncResult) {
	sourceKind, err := e.kind(source, root)
	if err != nil {
		e.fail("stat source", source, err, result)
		return
	}
	targetKind, err := e.kind(target, root)
	if err != nil {
		e.fail("stat target", target, err, result)
		return
	}
	if sourceKind != fsys.Dir || targetKind != fsys.Dir {
		return
	}

	sourceNames, err := e.fs.ReadDir(source)
	if err != nil {
		e.fail("list directory", source, err, result)
		return
	}
	targetNames, err := e.fs.ReadDir(target)
	if err != nil {
		e.fail("list directory", target, err, result)
		return
	}

	present := mapset.NewThreadUnsafeSet(sourceNames...)
	for _, name := range targetNames {
		if job.Ignore.Matches(name) {
			continue
		}
		sourceChild := filepath.Join(source, name)
		targetChild := filepath.Join(target, name)
		if present.Contains(name) {
			e.pruneDir(job, sourceChild, targetChild, false, result)
			continue
		}
		e.removeOrphan(targetChild, result)
	}
}

func (e *Engine) removeOrphan(path string, result *SyncResult) {
	kind, err := e.fs.Lstat(path)
	if err != nil {
		e.fail("stat target", path, err, result)
		return
	}
	switch kind {
	case fsys.Dir:
		err = e.fs.RemoveDir(path, true)
	case fsys.File, fsys.Symlink:
		err = e.fs.RemoveFile(path)
	default:
		return
	}
	if err != nil {
		e.fail("prune", path, err, result)
		return
	}
	e.logger.Info("pruned", zap.String("path", path), zap.Stringer("kind", kind))
	result.count(ActionPruned)
}
