// Package dispatch runs the notification pipeline: configuration
// resolution, validation, debouncing and hand-off to the tracklet
// aggregator, bounded to a fixed number of parallel workers.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"autoenroll/internal/config"
	"autoenroll/internal/debounce"
	"autoenroll/internal/enroll"
	"autoenroll/internal/history"
	"autoenroll/internal/model"
	"autoenroll/internal/stats"
	"autoenroll/internal/storage"
	"autoenroll/internal/streams"
	"autoenroll/internal/tracklet"
	"autoenroll/internal/validate"
)

type Enroller interface {
	Enroll(ctx context.Context, n *model.Notification, sc *model.StreamConfiguration) (enroll.Result, error)
}

type Dispatcher struct {
	cfg        *config.Manager
	logger     *slog.Logger
	debouncer  *debounce.Debouncer
	aggregator *tracklet.Aggregator
	enroller   Enroller
	stats      *stats.Store
	history    *history.Store
	store      storage.Store

	in    chan model.Notification
	wg    sync.WaitGroup
	grace time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(
	cfg *config.Manager,
	enroller Enroller,
	debouncer *debounce.Debouncer,
	statsStore *stats.Store,
	historyStore *history.Store,
	store storage.Store,
	logger *slog.Logger,
) *Dispatcher {
	current := cfg.Get()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:       cfg,
		logger:    logger,
		debouncer: debouncer,
		enroller:  enroller,
		stats:     statsStore,
		history:   historyStore,
		store:     store,
		in:        make(chan model.Notification, current.Ingest.ChannelBuffer),
		grace:     current.Pipeline.ShutdownGrace,
		ctx:       ctx,
		cancel:    cancel,
	}
	d.aggregator = tracklet.NewAggregator(
		current.Pipeline.TrackletTimeout,
		current.Pipeline.SweepInterval,
		d.flush,
		logger,
	)
	return d
}

func (d *Dispatcher) Start() {
	workers := d.cfg.Get().Pipeline.MaxParallelBlocks
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for n := range d.in {
				d.process(n)
			}
		}()
	}
	d.aggregator.Start()
	if d.logger != nil {
		d.logger.Info("dispatcher started", "workers", workers)
	}
}

// Submit enqueues a notification without blocking. When the inbound buffer
// is full the notification is dropped with a warning.
func (d *Dispatcher) Submit(n model.Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	if d.stats != nil {
		d.stats.Add(n.StreamID, stats.Received)
	}
	select {
	case d.in <- n:
		return true
	default:
		if d.logger != nil {
			d.logger.Warn("inbound queue full, dropping notification",
				"stream_id", n.StreamID, "tracklet_id", n.TrackletID)
		}
		return false
	}
}

// Stop drains in-flight items, then stops the sweep and cancels any network
// call still running after the grace period.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.in)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.grace):
		if d.logger != nil {
			d.logger.Warn("shutdown grace elapsed, cancelling in-flight work")
		}
		d.cancel()
		<-done
	}
	d.aggregator.Stop()
	d.cancel()
}

// process runs one notification through the pipeline. Any failure here is
// contained: it is logged and the worker moves on to the next item.
func (d *Dispatcher) process(n model.Notification) {
	defer func() {
		if r := recover(); r != nil && d.logger != nil {
			d.logger.Error("panic while processing notification",
				"stream_id", n.StreamID, "tracklet_id", n.TrackletID, "panic", r)
		}
	}()

	current := d.cfg.Get()

	mappings, err := streams.Resolve(current, n.StreamID)
	if err != nil {
		if errors.Is(err, streams.ErrInvalidStreamID) {
			if d.logger != nil {
				d.logger.Error("notification carries an invalid stream id", "stream_id", n.StreamID)
			}
			return
		}
		if d.logger != nil {
			d.logger.Error("failed to resolve stream configuration", "stream_id", n.StreamID, "err", err)
		}
		return
	}
	if len(mappings) == 0 {
		if d.logger != nil {
			d.logger.Debug("no configuration for stream, skipping", "stream_id", n.StreamID)
		}
		d.count(n.StreamID, stats.NoMapping)
		return
	}

	for i := range mappings {
		mapping := &mappings[i]

		if ok, failed := validate.Attributes(&n, mapping); !ok {
			if d.logger != nil {
				d.logger.Debug("attribute validation failed",
					"stream_id", n.StreamID, "tracklet_id", n.TrackletID, "predicate", failed)
			}
			d.count(n.StreamID, stats.RejectedAttributes)
			d.saveRejection(n, "attributes:"+failed)
			continue
		}
		if !validate.Geometry(&n, mapping) {
			if d.logger != nil {
				d.logger.Debug("crop geometry outside padded frame",
					"stream_id", n.StreamID, "tracklet_id", n.TrackletID)
			}
			d.count(n.StreamID, stats.RejectedGeometry)
			d.saveRejection(n, "geometry")
			continue
		}
		if d.debouncer.IsBlocked(&n, mapping) {
			d.count(n.StreamID, stats.Debounced)
			return
		}
		d.debouncer.Block(&n, mapping)

		d.aggregator.Enqueue(n, *mapping)
		d.count(n.StreamID, stats.Aggregated)
	}
}

// flush receives the best notification of an expired tracklet window and
// performs the enrollment attempt. Remote failures are logged and abandoned.
func (d *Dispatcher) flush(n model.Notification, sc model.StreamConfiguration) {
	res, err := d.enroller.Enroll(d.ctx, &n, &sc)

	rec := model.EnrollmentRecord{
		Timestamp:    time.Now().UTC(),
		MemberID:     res.MemberID,
		StreamID:     n.StreamID,
		TrackletID:   n.TrackletID,
		WatchlistIDs: sc.WatchlistIDs,
		Duplicate:    res.Duplicate,
	}
	switch {
	case err != nil:
		rec.Error = err.Error()
		d.count(n.StreamID, stats.Failed)
		if d.logger != nil {
			d.logger.Error("enrollment attempt failed",
				"stream_id", n.StreamID, "tracklet_id", n.TrackletID, "err", err)
		}
	case res.Duplicate:
		d.count(n.StreamID, stats.Duplicate)
	case res.Skipped:
	default:
		d.count(n.StreamID, stats.Enrolled)
	}

	if d.history != nil {
		d.history.Add(rec)
	}
	if d.store != nil {
		_ = d.store.SaveEnrollment(context.Background(), rec)
	}
}

func (d *Dispatcher) count(streamID string, outcome stats.Outcome) {
	if d.stats != nil {
		d.stats.Add(streamID, outcome)
	}
}

func (d *Dispatcher) saveRejection(n model.Notification, reason string) {
	if d.store == nil {
		return
	}
	_ = d.store.SaveRejection(context.Background(), model.Rejection{
		Timestamp:  time.Now().UTC(),
		StreamID:   n.StreamID,
		TrackletID: n.TrackletID,
		Reason:     reason,
	})
}

// SweepNow forces an aggregator sweep. Intended for tests and the admin API.
func (d *Dispatcher) SweepNow() {
	d.aggregator.Sweep()
}

// ActiveTracklets reports the number of open tracklet windows.
func (d *Dispatcher) ActiveTracklets() int {
	return d.aggregator.Len()
}
