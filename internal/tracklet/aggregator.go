// Package tracklet buffers the notifications of one physical transit and,
// once the tracklet goes quiet, picks the single best frame to enroll.
package tracklet

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"autoenroll/internal/model"
)

// Selection weights. Fixed by design, not configuration.
const (
	weightFaceSize   = 50.0
	weightYawAngle   = 20.0
	weightPitchAngle = 10.0
	weightRollAngle  = 10.0
	weightSharpness  = 5.0
	weightBrightness = 5.0
)

// FlushFunc receives the selected notification and the configuration fixed
// when the window was opened.
type FlushFunc func(n model.Notification, cfg model.StreamConfiguration)

type window struct {
	notifications []model.Notification
	cfg           model.StreamConfiguration
	lastSeen      time.Time
}

// Aggregator keeps one window per active tracklet id. A periodic sweep
// flushes every window that has not seen a notification for the configured
// timeout. The flush callback runs outside the table lock.
type Aggregator struct {
	mu      sync.Mutex
	windows map[string]*window

	timeout  time.Duration
	interval time.Duration
	onFlush  FlushFunc
	logger   *slog.Logger
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
}

func NewAggregator(timeout, sweepInterval time.Duration, onFlush FlushFunc, logger *slog.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if sweepInterval <= 0 {
		sweepInterval = 1 * time.Second
	}
	return &Aggregator{
		windows:  make(map[string]*window),
		timeout:  timeout,
		interval: sweepInterval,
		onFlush:  onFlush,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *Aggregator) Start() {
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Sweep()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep ticker. Windows still buffered are discarded; the
// shutdown contract is that nothing fires after Stop returns.
func (a *Aggregator) Stop() {
	close(a.stop)
	<-a.done
}

// Enqueue adds a notification to its tracklet window, opening the window on
// first sight. The window keeps the configuration resolved for its first
// notification; later arrivals only extend the buffer and refresh last-seen.
func (a *Aggregator) Enqueue(n model.Notification, cfg model.StreamConfiguration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.windows[n.TrackletID]
	if !ok {
		a.windows[n.TrackletID] = &window{
			notifications: []model.Notification{n},
			cfg:           cfg,
			lastSeen:      a.now().UTC(),
		}
		if a.logger != nil {
			a.logger.Debug("tracklet window opened", "tracklet_id", n.TrackletID, "stream_id", n.StreamID)
		}
		return
	}
	w.notifications = append(w.notifications, n)
	w.lastSeen = a.now().UTC()
}

// Len returns the number of active tracklet windows.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.windows)
}

// Sweep flushes every window idle longer than the tracklet timeout.
func (a *Aggregator) Sweep() {
	now := a.now().UTC()

	type flush struct {
		trackletID string
		w          *window
	}
	var expired []flush

	a.mu.Lock()
	for id, w := range a.windows {
		if now.Sub(w.lastSeen) > a.timeout {
			expired = append(expired, flush{trackletID: id, w: w})
			delete(a.windows, id)
		}
	}
	a.mu.Unlock()

	for _, e := range expired {
		best := selectBest(e.w.notifications)
		if a.logger != nil {
			a.logger.Info("tracklet window flushed",
				"tracklet_id", e.trackletID,
				"buffered", len(e.w.notifications),
				"timeout", a.timeout,
			)
		}
		if a.onFlush != nil {
			a.onFlush(best, e.w.cfg)
		}
	}
}

// selectBest scores each buffered notification against the window maxima and
// returns the highest scorer, first-seen winning ties. An attribute whose
// window maximum is zero contributes nothing to any score.
func selectBest(notifications []model.Notification) model.Notification {
	maxFaceSize := 0.0
	maxYaw := 0.0
	maxPitch := 0.0
	maxRoll := 0.0
	maxSharpness := 0.0
	maxBrightness := 0.0
	for i := range notifications {
		n := &notifications[i]
		maxFaceSize = math.Max(maxFaceSize, deref(n.FaceSize))
		maxYaw = math.Max(maxYaw, math.Abs(deref(n.YawAngle)))
		maxPitch = math.Max(maxPitch, math.Abs(deref(n.PitchAngle)))
		maxRoll = math.Max(maxRoll, math.Abs(deref(n.RollAngle)))
		maxSharpness = math.Max(maxSharpness, math.Abs(deref(n.Sharpness)))
		maxBrightness = math.Max(maxBrightness, math.Abs(deref(n.Brightness)))
	}

	bestIdx := 0
	bestScore := math.Inf(-1)
	for i := range notifications {
		n := &notifications[i]
		score := ratio(deref(n.FaceSize), maxFaceSize)*weightFaceSize +
			ratio(math.Abs(deref(n.YawAngle)), maxYaw)*weightYawAngle +
			ratio(math.Abs(deref(n.PitchAngle)), maxPitch)*weightPitchAngle +
			ratio(math.Abs(deref(n.RollAngle)), maxRoll)*weightRollAngle +
			ratio(math.Abs(deref(n.Sharpness)), maxSharpness)*weightSharpness +
			ratio(math.Abs(deref(n.Brightness)), maxBrightness)*weightBrightness
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return notifications[bestIdx]
}

func ratio(v, max float64) float64 {
	if max == 0 {
		return 0
	}
	return v / max
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
