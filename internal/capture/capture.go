// Package capture records UDP datagrams into a dataset.
package capture

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/pktreplay/pkg/dataset"
	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/lifecycle"
	"github.com/bft-labs/pktreplay/pkg/log"
	"github.com/bft-labs/pktreplay/pkg/record"
)

// Default receive retry bounds.
const (
	DefaultBackoffInitial = 100 * time.Millisecond
	DefaultBackoffMax     = 5 * time.Second
)

// MaxDatagram is the largest UDP payload a socket can deliver.
const MaxDatagram = 65535

// Observer receives capture events. *metrics.Metrics implements it.
type Observer interface {
	Captured(bytes int)
	CaptureFailed()
}

// Config describes what to listen on and when to stop.
type Config struct {
	Listen      string // host:port
	MaxDatagram int    // longer datagrams are dropped and counted as errors
	Limit       int64  // stop after this many records, 0 for no limit
}

// Stats are the running totals of a Recorder.
type Stats struct {
	Packets int64
	Bytes   int64
	Errors  int64
}

// Recorder receives datagrams on one socket and appends each one, stamped
// with its arrival time, to a dataset.
type Recorder struct {
	cfg    Config
	ds     *dataset.Dataset
	logger log.Logger
	obs    Observer
	clock  func() time.Time
	life   *lifecycle.Manager

	mu   sync.Mutex
	conn *net.UDPConn

	packets atomic.Int64
	bytes   atomic.Int64
	errors  atomic.Int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Recorder) { r.logger = log.OrNoop(l) }
}

// WithObserver reports captures to o.
func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.obs = o }
}

// WithClock replaces time.Now for arrival timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.clock = now }
}

// New returns a Recorder writing into ds. The dataset is owned by the
// recorder until Run returns.
func New(ds *dataset.Dataset, cfg Config, opts ...Option) (*Recorder, error) {
	if cfg.Listen == "" {
		return nil, errs.Ef(errs.InvalidArgument, "capture.new", "listen address is required")
	}
	if cfg.MaxDatagram <= 0 || cfg.MaxDatagram > record.MaxRecordSize {
		return nil, errs.Ef(errs.InvalidArgument, "capture.new", "max datagram %d out of range", cfg.MaxDatagram)
	}
	r := &Recorder{
		cfg:    cfg,
		ds:     ds,
		logger: log.NewNoopLogger(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.With(r.logger, log.String("dataset", ds.Name()))
	r.life = lifecycle.NewManager(r.logger, nil)
	return r, nil
}

// Listen binds the socket. Run calls it when it has not been called yet.
func (r *Recorder) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", r.cfg.Listen)
	if err != nil {
		return errs.FromNet("capture.listen", r.cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return errs.FromNet("capture.listen", r.cfg.Listen, err)
	}
	r.conn = conn
	return nil
}

// LocalAddr returns the bound address, or nil before Listen.
func (r *Recorder) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stats returns the running totals.
func (r *Recorder) Stats() Stats {
	return Stats{
		Packets: r.packets.Load(),
		Bytes:   r.bytes.Load(),
		Errors:  r.errors.Load(),
	}
}

// Lifecycle exposes the receive loop's lifecycle manager.
func (r *Recorder) Lifecycle() *lifecycle.Manager { return r.life }

// Run receives until ctx is done or the record limit is reached, then
// finalizes the dataset. Transient receive errors are retried with
// backoff; a failed write ends the run with that error.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.Listen(); err != nil {
		return err
	}
	err := r.life.Run(ctx, "capture", r.loop)
	r.mu.Lock()
	r.conn = nil
	r.mu.Unlock()
	if ferr := r.ds.Finalize(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

func (r *Recorder) loop(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	r.logger.Info("capture started",
		log.String("listen", conn.LocalAddr().String()),
		log.Int64("limit", r.cfg.Limit),
	)

	// One spare byte tells an oversize datagram from one that fits exactly.
	buf := make([]byte, min(r.cfg.MaxDatagram, MaxDatagram)+1)
	backoff := lifecycle.NewBackoff(DefaultBackoffInitial, DefaultBackoffMax)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			r.failed()
			r.logger.Warn("receive failed", log.Err(errs.FromNet("capture.read", conn.LocalAddr().String(), err)),
				log.Duration("retry_in", backoff.Current()))
			if werr := backoff.Wait(ctx); werr != nil {
				return werr
			}
			continue
		}
		backoff.Reset()

		if n == 0 {
			// Records cannot be empty.
			continue
		}
		if n > r.cfg.MaxDatagram {
			r.failed()
			r.logger.Warn("dropped oversize datagram",
				log.String("from", from.String()),
				log.Int("max_datagram", r.cfg.MaxDatagram),
			)
			continue
		}
		ts := record.Timestamp(r.clock())
		if _, err := r.ds.Write(ts, buf[:n]); err != nil {
			r.failed()
			r.logger.Error("write failed", log.Err(err), log.String("from", from.String()))
			return err
		}
		total := r.packets.Add(1)
		r.bytes.Add(int64(n))
		if r.obs != nil {
			r.obs.Captured(n)
		}
		r.logger.Debug("captured",
			log.Int("bytes", n),
			log.String("from", from.String()),
			log.Timestamp("timestamp", ts),
		)

		if r.cfg.Limit > 0 && total >= r.cfg.Limit {
			r.logger.Info("capture limit reached", log.Int64("records", total))
			return nil
		}
	}
}

func (r *Recorder) failed() {
	r.errors.Add(1)
	if r.obs != nil {
		r.obs.CaptureFailed()
	}
}
