// Package reconcile keeps the persisted tree in step with the content root.
// A pass walks the filesystem, diffs it against the stored tree inside one
// transaction, and applies creates, moves, updates and deletes atomically.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/index"
	"github.com/starford/kbtree/internal/storage"
)

// State is the phase of the pass currently running.
type State int32

const (
	Idle State = iota
	Walking
	Diffing
	Applying
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Walking:
		return "walking"
	case Diffing:
		return "diffing"
	case Applying:
		return "applying"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Warning kinds.
const (
	WarnFilesystem  = "filesystem"
	WarnFrontMatter = "front_matter"
	WarnAmbiguous   = "ambiguous_match"
)

// Warning is a per-entry problem that did not abort the pass.
type Warning struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Report summarizes one pass.
type Report struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	DirsCreated   int           `json:"dirs_created"`
	DirsMoved     int           `json:"dirs_moved"`
	DirsDeleted   int           `json:"dirs_deleted"`
	DocsCreated   int           `json:"docs_created"`
	DocsUpdated   int           `json:"docs_updated"`
	DocsMoved     int           `json:"docs_moved"`
	DocsDeleted   int           `json:"docs_deleted"`
	DocsUnchanged int           `json:"docs_unchanged"`
	// Mutations counts storage writes; zero means the pass changed nothing.
	Mutations int       `json:"mutations"`
	Warnings  []Warning `json:"warnings,omitempty"`
}

// Changed reports whether the pass wrote anything.
func (r *Report) Changed() bool { return r.Mutations > 0 }

func (r *Report) warn(kind, path string, err error) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, Path: path, Message: err.Error()})
}

// Syncer runs reconciliation passes. *Engine implements it; triggers such
// as the watcher and the HTTP handler depend on this interface.
type Syncer interface {
	Sync(ctx context.Context) (*Report, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of documents read and parsed concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithWalkTimeout bounds the walk phase. Zero means no limit.
func WithWalkTimeout(d time.Duration) Option {
	return func(e *Engine) { e.walkTimeout = d }
}

// WithRootAlias sets the display name stored on the root directory.
func WithRootAlias(alias string) Option {
	return func(e *Engine) { e.rootAlias = alias }
}

// WithOnCommit registers a hook called after every committed pass.
func WithOnCommit(fn func(*Report)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.onCommit = append(e.onCommit, fn)
		}
	}
}

// Engine runs one reconciliation pass at a time.
type Engine struct {
	db          *index.DB
	fs          storage.Provider
	logger      *slog.Logger
	workers     int
	walkTimeout time.Duration
	rootAlias   string
	onCommit    []func(*Report)

	mu    sync.Mutex
	state atomic.Int32
}

// New creates an Engine over the given store and content provider.
func New(db *index.DB, fs storage.Provider, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		db:      db,
		fs:      fs,
		logger:  logger,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the phase of the running pass, or Idle.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.logger.Debug("sync: state", slog.String("state", s.String()))
}

// Sync runs one pass. A pass requested while another runs fails at once
// with apperr.ErrSyncInProgress. Once the walk has finished the pass is no
// longer cancellable: it either commits or rolls back.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	if !e.mu.TryLock() {
		return nil, fmt.Errorf("reconcile: sync: %w", apperr.ErrSyncInProgress)
	}
	defer e.mu.Unlock()
	defer e.setState(Idle)

	report := &Report{StartedAt: time.Now()}
	err := e.run(ctx, report)
	report.Duration = time.Since(report.StartedAt)
	if err != nil {
		e.setState(RolledBack)
		e.logger.Error("sync: pass failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", report.Duration))
		return report, err
	}
	e.setState(Committed)

	e.logger.Info("sync: committed",
		slog.Int("dirs_created", report.DirsCreated),
		slog.Int("dirs_moved", report.DirsMoved),
		slog.Int("dirs_deleted", report.DirsDeleted),
		slog.Int("docs_created", report.DocsCreated),
		slog.Int("docs_updated", report.DocsUpdated),
		slog.Int("docs_moved", report.DocsMoved),
		slog.Int("docs_deleted", report.DocsDeleted),
		slog.Int("mutations", report.Mutations),
		slog.Int("warnings", len(report.Warnings)),
		slog.Duration("duration", report.Duration))
	for _, fn := range e.onCommit {
		fn(report)
	}
	return report, nil
}

func (e *Engine) run(ctx context.Context, report *Report) error {
	e.setState(Walking)
	walked, err := e.walk(ctx, report)
	if err != nil {
		return err
	}

	applyCtx := context.WithoutCancel(ctx)
	if _, err := e.db.EnsureRoot(applyCtx, e.rootAlias); err != nil {
		return fmt.Errorf("reconcile: ensure root: %w", err)
	}
	tx, err := e.db.Begin(applyCtx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	e.setState(Diffing)
	snap, err := tx.LoadTree(applyCtx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	p, err := diff(walked, snap, report)
	if err != nil {
		return fmt.Errorf("reconcile: diff: %w", err)
	}

	e.setState(Applying)
	if err := p.apply(applyCtx, tx); err != nil {
		return fmt.Errorf("reconcile: apply: %w", err)
	}
	report.Mutations = tx.Mutations()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	return nil
}

// IsInProgress reports whether err means another pass was running.
func IsInProgress(err error) bool {
	return errors.Is(err, apperr.ErrSyncInProgress)
}
