package playback

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/bft-labs/pktreplay/pkg/dataset"
	"github.com/bft-labs/pktreplay/pkg/dispatch"
	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/lifecycle"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/storage"
)

// DefaultTickInterval is the wall-clock period of the playback loop.
const DefaultTickInterval = 10 * time.Millisecond

// Observer receives playback events. Calls come from the tick loop.
type Observer interface {
	Dispatched(bytes int)
	SendFailed(err error)
	StatusChanged(from, to Status)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTickInterval sets the loop period.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.logger = log.OrNoop(l) }
}

// WithStorageConfig sets the configuration datasets are opened with.
func WithStorageConfig(cfg storage.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithOnStateChange registers a callback invoked with a fresh snapshot
// whenever the status changes.
func WithOnStateChange(fn func(State)) Option {
	return func(e *Engine) { e.onChange = fn }
}

// Engine replays datasets through a sender, paced by their timestamps.
//
// Control methods may be called from any goroutine. They only touch the
// shared state below mu; the tick loop started by Run is the sole owner of
// the open dataset and the scheduler.
type Engine struct {
	root     string
	cfg      storage.Config
	sender   dispatch.Sender
	tick     time.Duration
	logger   log.Logger
	observer Observer
	onChange func(State)
	life     *lifecycle.Manager

	mu      sync.Mutex
	st      State
	tl      *Timeline
	gen     uint64           // bumped by Start and Stop
	pending *dataset.Dataset // opened by Start, not yet taken by the loop
	seekTo  *uint64

	// Owned by the tick loop.
	ds       *dataset.Dataset
	dsGen    uint64
	sched    *Scheduler
	floor    uint64 // records before this are skipped after a seek
	horizon  uint64 // timestamp of the last record read
	eof      bool
	lastTick time.Time
}

// NewEngine returns a stopped engine replaying datasets stored under root.
func NewEngine(root string, sender dispatch.Sender, opts ...Option) *Engine {
	e := &Engine{
		root:   root,
		cfg:    storage.DefaultConfig(),
		sender: sender,
		tick:   DefaultTickInterval,
		logger: log.NewNoopLogger(),
		sched:  NewScheduler(),
		st:     State{Speed: 1, Status: Stopped},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.life = lifecycle.NewManager(e.logger, nil)
	return e
}

// Start opens dataset name and begins playing it from its first record.
// A session already in progress is replaced.
func (e *Engine) Start(ctx context.Context, name string) error {
	if err := dataset.ValidateName(name); err != nil {
		return err
	}
	dir := filepath.Join(e.root, name)
	if _, err := os.Stat(dir); err != nil {
		return errs.FromOSDir("playback.start", dir, err)
	}
	ds, err := dataset.OpenContext(ctx, e.root, name, dataset.WithConfig(e.cfg), dataset.WithLogger(e.logger))
	if err != nil {
		return err
	}
	info, err := ds.Info()
	if err != nil {
		ds.Close()
		return err
	}
	if info.TotalRecords == 0 {
		ds.Close()
		return errs.Ef(errs.InvalidState, "playback.start", "dataset %s has no records", name)
	}

	e.mu.Lock()
	if e.pending != nil {
		e.pending.Close()
	}
	prev := e.st.Status
	e.gen++
	e.pending = ds
	e.seekTo = nil
	e.tl = NewTimeline(info.StartTimestamp, info.EndTimestamp)
	e.tl.SetSpeed(e.st.Speed)
	e.st = State{
		Dataset:     name,
		Session:     ksuid.New().String(),
		StartTime:   info.StartTimestamp,
		EndTime:     info.EndTimestamp,
		CurrentTime: info.StartTimestamp,
		Duration:    info.Duration(),
		Speed:       e.tl.Speed(),
		Status:      Playing,
	}
	snap := e.st
	e.mu.Unlock()

	e.logger.Info("playback started",
		log.String("dataset", name),
		log.String("session", snap.Session),
		log.Int64("records", info.TotalRecords),
		log.Duration("duration", snap.Duration),
	)
	e.changed(prev, snap)
	return nil
}

// Pause suspends a playing session.
func (e *Engine) Pause() error {
	return e.transition(Playing, Paused, "playback.pause")
}

// Resume continues a paused session.
func (e *Engine) Resume() error {
	return e.transition(Paused, Playing, "playback.resume")
}

func (e *Engine) transition(from, to Status, op string) error {
	e.mu.Lock()
	if e.st.Status != from {
		cur := e.st.Status
		e.mu.Unlock()
		return errs.Ef(errs.InvalidState, op, "status is %s, want %s", cur, from)
	}
	e.st.Status = to
	snap := e.st
	e.mu.Unlock()

	e.changed(from, snap)
	return nil
}

// Stop ends the session from any status. The loop releases the dataset at
// its next tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	prev := e.st.Status
	e.gen++
	if e.pending != nil {
		e.pending.Close()
		e.pending = nil
	}
	e.seekTo = nil
	e.st.Status = Stopped
	snap := e.st
	e.mu.Unlock()

	if prev != Stopped {
		e.logger.Info("playback stopped", log.String("dataset", snap.Dataset))
	}
	e.changed(prev, snap)
}

// Seek moves playback to ts, clamped into the dataset's bounds. Seeking a
// completed session leaves it paused at the new position.
func (e *Engine) Seek(ts uint64) error {
	e.mu.Lock()
	if e.st.Status == Stopped || e.tl == nil {
		e.mu.Unlock()
		return errs.Ef(errs.InvalidState, "playback.seek", "no active session")
	}
	prev := e.st.Status
	at := e.tl.Seek(ts)
	e.seekTo = &at
	e.st.CurrentTime = at
	if e.st.Status == Completed {
		e.st.Status = Paused
	}
	snap := e.st
	e.mu.Unlock()

	e.changed(prev, snap)
	return nil
}

// SetSpeed sets the playback speed, clamped into [MinSpeed, MaxSpeed], and
// returns the value applied.
func (e *Engine) SetSpeed(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errs.Ef(errs.InvalidArgument, "playback.speed", "speed %v", v)
	}
	v = ClampSpeed(v)
	e.mu.Lock()
	if e.tl != nil {
		e.tl.SetSpeed(v)
	}
	e.st.Speed = v
	e.mu.Unlock()
	return v, nil
}

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st
}

// Run drives the tick loop until ctx is done. Only one Run may be active.
func (e *Engine) Run(ctx context.Context) error {
	return e.life.Run(ctx, "playback", e.loop)
}

// Lifecycle exposes the loop's lifecycle manager.
func (e *Engine) Lifecycle() *lifecycle.Manager { return e.life }

func (e *Engine) loop(ctx context.Context) error {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	defer e.release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			e.step(now)
		}
	}
}

// release closes every dataset the engine holds when the loop exits.
func (e *Engine) release() {
	e.mu.Lock()
	if e.pending != nil {
		e.pending.Close()
		e.pending = nil
	}
	e.mu.Unlock()
	e.closeDataset()
}

func (e *Engine) closeDataset() {
	if e.ds != nil {
		if err := e.ds.Close(); err != nil {
			e.logger.Warn("close dataset", log.Err(err))
		}
		e.ds = nil
	}
	e.sched.Clear()
}

// step runs one tick. The shared state is read and written under mu at the
// beginning and the end; dataset I/O and sends happen in between.
func (e *Engine) step(now time.Time) {
	e.mu.Lock()
	if e.pending != nil {
		e.closeDataset()
		e.ds, e.dsGen = e.pending, e.gen
		e.pending = nil
		e.floor, e.horizon, e.eof = e.tl.Start(), 0, false
		e.lastTick = now
	}
	if e.ds != nil && e.dsGen != e.gen {
		e.closeDataset()
	}
	if e.ds == nil || e.st.Status != Playing {
		e.lastTick = now
		e.mu.Unlock()
		return
	}

	var seek *uint64
	if e.seekTo != nil {
		seek, e.seekTo = e.seekTo, nil
	}
	atEnd := e.tl.Advance(now.Sub(e.lastTick))
	e.lastTick = now
	cur := e.tl.Current()
	gen := e.gen
	e.mu.Unlock()

	var readErr error
	if seek != nil {
		readErr = e.applySeek(*seek)
	}
	if readErr == nil {
		readErr = e.fill(cur)
	}
	// Records read before a failure still go out.
	sent, failed := e.dispatchDue(cur)
	if readErr != nil {
		e.fail(gen, readErr, sent, failed)
		return
	}
	done := atEnd && e.eof && e.sched.Len() == 0

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.st.Dispatched += sent
	e.st.SendErrors += failed
	if e.st.Status == Playing {
		e.st.CurrentTime = e.tl.Current()
	}
	prev := e.st.Status
	if done && prev == Playing && e.seekTo == nil {
		e.st.Status = Completed
	}
	snap := e.st
	e.mu.Unlock()

	if snap.Status == Completed && prev != Completed {
		e.logger.Info("playback completed",
			log.String("dataset", snap.Dataset),
			log.Uint64("dispatched", snap.Dispatched),
			log.Uint64("send_errors", snap.SendErrors),
		)
	}
	e.changed(prev, snap)
}

func (e *Engine) applySeek(ts uint64) error {
	e.sched.Clear()
	e.floor, e.horizon, e.eof = ts, 0, false
	ok, err := e.ds.SeekToTimestamp(ts)
	if err != nil {
		return err
	}
	if !ok {
		e.eof = true
	}
	return nil
}

// fill reads records until one lies beyond cur or the dataset ends.
func (e *Engine) fill(cur uint64) error {
	for !e.eof && (e.sched.Len() == 0 || e.horizon <= cur) {
		rec, err := e.ds.ReadNext()
		if errors.Is(err, io.EOF) {
			e.eof = true
			return nil
		}
		if err != nil {
			return err
		}
		e.horizon = rec.Timestamp
		if rec.Timestamp < e.floor {
			continue
		}
		e.sched.Push(Event{Timestamp: rec.Timestamp, Payload: rec.Payload})
	}
	return nil
}

func (e *Engine) dispatchDue(cur uint64) (sent, failed uint64) {
	for {
		ev, ok := e.sched.NextDue(cur)
		if !ok {
			return sent, failed
		}
		if err := e.sender.Send(ev.Payload); err != nil {
			// Send failures never stop playback.
			failed++
			e.logger.Warn("send failed", log.Timestamp("ts", ev.Timestamp), log.Err(err))
			if e.observer != nil {
				e.observer.SendFailed(err)
			}
			continue
		}
		sent++
		if e.observer != nil {
			e.observer.Dispatched(len(ev.Payload))
		}
	}
}

// fail stops the session after a dataset read error.
func (e *Engine) fail(gen uint64, err error, sent, failed uint64) {
	e.closeDataset()

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.st.Dispatched += sent
	e.st.SendErrors += failed
	prev := e.st.Status
	e.gen++
	e.st.Status = Stopped
	e.st.Err = err
	snap := e.st
	e.mu.Unlock()

	e.logger.Error("playback stopped on read error", log.String("dataset", snap.Dataset), log.Err(err))
	e.changed(prev, snap)
}

func (e *Engine) changed(prev Status, snap State) {
	if prev == snap.Status {
		return
	}
	if e.observer != nil {
		e.observer.StatusChanged(prev, snap.Status)
	}
	if e.onChange != nil {
		e.onChange(snap)
	}
}
