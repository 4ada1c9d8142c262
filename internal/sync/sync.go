package sync

import (
	"context"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/fsys"
)

// Action counter keys.
const (
	ActionCopied           = "copied"
	ActionCreatedDir       = "mkdir"
	ActionIgnored          = "ignored"
	ActionSkippedLink      = "symlink(skip)"
	ActionConflictSkipped  = "conflict(skip)"
	ActionConflictReplaced = "conflict(replace)"
	ActionPruned           = "pruned"
	ActionFailed           = "failed"
)

type SyncResult struct {
	ActionCounters map[string]int
	BytesCopied    int64
	Pairs          int
}

func newSyncResult() SyncResult {
	return SyncResult{ActionCounters: map[string]int{
		ActionCopied:           0,
		ActionCreatedDir:       0,
		ActionIgnored:          0,
		ActionSkippedLink:      0,
		ActionConflictSkipped:  0,
		ActionConflictReplaced: 0,
		ActionPruned:           0,
		ActionFailed:           0,
	}}
}

func (r *SyncResult) count(action string) {
	r.ActionCounters[action]++
}

func (r *SyncResult) merge(other SyncResult) {
	for action, n := range other.ActionCounters {
		r.ActionCounters[action] += n
	}
	r.BytesCopied += other.BytesCopied
	r.Pairs += other.Pairs
}

// Fields renders the result for structured logging.
func (r SyncResult) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("pairs", r.Pairs),
		zap.Any("actions", r.ActionCounters),
		zap.String("bytes", humanize.Bytes(uint64(r.BytesCopied))),
	}
}

// Orchestrator runs the engine over every (source, target) pair in order.
type Orchestrator struct {
	engine  *Engine
	sources []string
	targets []string
	ignore  IgnoreSet
	policy  MergePolicy
	logger  *zap.Logger
}

// NewOrchestrator prepares pair-wise synchronization. The ignore set is
// shared read-only by every pass.
func NewOrchestrator(fs fsys.FS, sources, targets []string, ignore IgnoreSet, policy MergePolicy, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		engine:  NewEngine(fs, logger),
		sources: sources,
		targets: targets,
		ignore:  ignore,
		policy:  policy,
		logger:  logger,
	}
}

// Pass synchronizes every pair once, sequentially. Cancellation is checked
// between pairs only.
func (o *Orchestrator) Pass(ctx context.Context) (SyncResult, error) {
	result := newSyncResult()
	for _, source := range o.sources {
		for _, target := range o.targets {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			job := Job{Source: source, Target: target, Ignore: o.ignore, Policy: o.policy}
			o.logger.Info("syncing",
				zap.String("source", source),
				zap.String("target", target),
				zap.Stringer("policy", o.policy),
			)
			result.merge(o.engine.Sync(job))
			if o.policy.Destructive() {
				result.merge(o.engine.Prune(job))
			}
			result.Pairs++
		}
	}
	o.logger.Info("synchronization pass completed", result.Fields()...)
	return result, nil
}

// Watch runs one pass per trigger until ctx is cancelled. Triggers that
// arrive during a pass collapse into a single follow-up pass.
func (o *Orchestrator) Watch(ctx context.Context, trigger *Trigger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger.C():
			o.logger.Info("change detected, resynchronizing")
			if _, err := o.Pass(ctx); err != nil {
				return err
			}
		}
	}
}

// RunSync validates options, compiles the ignore set, synchronizes every
// pair and, when Watch is set, keeps re-synchronizing on source changes until
// ctx is cancelled. The returned result covers the initial pass.
func RunSync(ctx context.Context, options Options, logger *zap.Logger) (SyncResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := newSyncResult()

	if err := options.Validate(); err != nil {
		return result, err
	}
	fs := options.FS
	if fs == nil {
		fs = fsys.NewOS()
	}

	sources := cleanPaths(options.Sources)
	targets := cleanPaths(options.Targets)
	for _, source := range sources {
		kind, err := fs.Stat(source)
		if err != nil {
			return result, errors.Wrapf(err, "source %q", source)
		}
		if kind == fsys.Missing {
			return result, errors.Wrapf(ErrSourceNotFound, "%q", source)
		}
	}

	ignore, err := CompileIgnoreSet(fs, sources, options.Ignore, logger)
	if err != nil {
		return result, err
	}

	orchestrator := NewOrchestrator(fs, sources, targets, ignore, options.Policy, logger)
	result, err = orchestrator.Pass(ctx)
	if err != nil || !options.Watch {
		return result, err
	}

	watcher, err := NewSourceWatcher(fs, sources, ignore, logger)
	if err != nil {
		return result, errors.Wrap(err, "watch sources")
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Warn("close watcher", zap.Error(closeErr))
		}
	}()

	trigger := NewTrigger()
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return watcher.Run(groupCtx, trigger) })
	group.Go(func() error { return orchestrator.Watch(groupCtx, trigger) })
	logger.Info("watching sources for changes", zap.Strings("sources", sources))

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return result, err
	}
	return result, nil
}

func cleanPaths(paths []string) []string {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		cleaned = append(cleaned, filepath.Clean(p))
	}
	return cleaned
}
