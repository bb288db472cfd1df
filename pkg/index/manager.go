package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/storage"
)

// Manager owns the sidecar of one dataset and caches the last valid index.
// It is safe for concurrent use.
type Manager struct {
	dir    string
	name   string
	cfg    storage.Config
	logger log.Logger

	mu        sync.Mutex
	current   *DatasetIndex
	onRebuild func(*DatasetIndex)
}

// NewManager returns a manager for dataset name stored in dir.
func NewManager(dir, name string, cfg storage.Config, logger log.Logger) *Manager {
	return &Manager{
		dir:    dir,
		name:   name,
		cfg:    cfg,
		logger: log.With(log.OrNoop(logger), log.String("dataset", name)),
	}
}

// Path returns the sidecar path.
func (m *Manager) Path() string { return SidecarPath(m.dir, m.name) }

// Current returns the last index loaded or built, or nil.
func (m *Manager) Current() *DatasetIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnRebuild registers fn to run after every successful rebuild, with the
// manager's lock held.
func (m *Manager) OnRebuild(fn func(*DatasetIndex)) {
	m.mu.Lock()
	m.onRebuild = fn
	m.mu.Unlock()
}

// EnsureIndex loads the sidecar if it exists, parses and matches the record
// files, and rebuilds and persists it otherwise.
func (m *Manager) EnsureIndex(ctx context.Context) (*DatasetIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	x, reason := m.loadValid()
	if x != nil {
		m.current = x
		return x, nil
	}
	m.logger.Info("rebuilding index", log.String("reason", reason))
	return m.regenerate(ctx)
}

// NeedsRebuild reports whether the sidecar is missing, unreadable or stale.
func (m *Manager) NeedsRebuild() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, _ := m.loadValid()
	return x == nil
}

// Regenerate rebuilds the index from the record files and persists it,
// regardless of the sidecar's state.
func (m *Manager) Regenerate(ctx context.Context) (*DatasetIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regenerate(ctx)
}

// loadValid returns the sidecar index when it is usable, or nil and the
// reason it is not.
func (m *Manager) loadValid() (*DatasetIndex, string) {
	x, err := Load(m.Path())
	if err != nil {
		if errs.KindOf(err) == errs.FileNotFound {
			return nil, "missing"
		}
		m.logger.Warn("unreadable index", log.Err(err))
		return nil, "unreadable"
	}
	ok, err := IsValid(x, m.dir)
	if err != nil {
		m.logger.Warn("index validation failed", log.Err(err))
		return nil, "validation error"
	}
	if !ok {
		return nil, "stale"
	}
	return x, ""
}

func (m *Manager) regenerate(ctx context.Context) (*DatasetIndex, error) {
	x, err := Build(ctx, m.dir, m.cfg, m.logger)
	if err != nil {
		return nil, err
	}
	x.Description = fmt.Sprintf("time index for dataset %s", m.name)
	if err := Save(x, m.Path()); err != nil {
		return nil, err
	}
	m.current = x
	if m.onRebuild != nil {
		m.onRebuild(x)
	}
	return x, nil
}
