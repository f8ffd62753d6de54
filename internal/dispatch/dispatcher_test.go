package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autoenroll/internal/config"
	"autoenroll/internal/debounce"
	"autoenroll/internal/enroll"
	"autoenroll/internal/history"
	"autoenroll/internal/model"
	"autoenroll/internal/stats"
)

const testStream = "3b8bd1b1-6e09-4e8c-bfa9-f9f2d1a1c001"

type fakeEnroller struct {
	mu    sync.Mutex
	calls []model.Notification
	res   enroll.Result
	err   error
}

func (f *fakeEnroller) Enroll(_ context.Context, n *model.Notification, _ *model.StreamConfiguration) (enroll.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, *n)
	return f.res, f.err
}

func (f *fakeEnroller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func pipelineConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Streams.ApplyForAllStreams = true
	cfg.Pipeline.TrackletTimeout = 10 * time.Millisecond
	cfg.Pipeline.SweepInterval = time.Hour // sweeps driven manually in tests
	return cfg
}

func newTestDispatcher(t *testing.T, cfg *config.Config, fake *fakeEnroller) (*Dispatcher, *stats.Store, *history.Store) {
	t.Helper()
	mgr := config.NewStaticManager(cfg)
	statsStore := stats.NewStore(0)
	historyStore := history.NewStore(0)
	debouncer := debounce.NewDebouncer(debounce.NewCache(time.Minute), nil)
	d := NewDispatcher(mgr, fake, debouncer, statsStore, historyStore, nil, nil)
	d.Start()
	t.Cleanup(d.Stop)
	return d, statsStore, historyStore
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func validNotification(trackletID string) model.Notification {
	fq := 5000.0
	tq := 90.0
	return model.Notification{
		StreamID:    testStream,
		TrackletID:  trackletID,
		FaceQuality: &fq, TemplateQuality: &tq,
		CropImage: []byte{0xff, 0xd8},
	}
}

func TestHappyPathEnrollsOnce(t *testing.T) {
	fake := &fakeEnroller{res: enroll.Result{MemberID: "m-1"}}
	d, statsStore, historyStore := newTestDispatcher(t, pipelineConfig(), fake)

	if !d.Submit(validNotification("t1")) {
		t.Fatalf("Submit refused")
	}
	waitFor(t, "tracklet window", func() bool { return d.ActiveTracklets() == 1 })

	time.Sleep(25 * time.Millisecond)
	d.SweepNow()

	if got := fake.count(); got != 1 {
		t.Fatalf("enroll calls = %d, want exactly 1", got)
	}
	c, _, ok := statsStore.Get(testStream)
	if !ok {
		t.Fatalf("no counters for stream")
	}
	if c.Received != 1 || c.Aggregated != 1 || c.Enrolled != 1 {
		t.Fatalf("counters = %+v", c)
	}
	recs := historyStore.List(0)
	if len(recs) != 1 || recs[0].MemberID != "m-1" || recs[0].TrackletID != "t1" {
		t.Fatalf("history = %+v", recs)
	}
}

func TestRejectedNotificationLeavesNoTrace(t *testing.T) {
	fake := &fakeEnroller{res: enroll.Result{MemberID: "m-1"}}
	d, statsStore, _ := newTestDispatcher(t, pipelineConfig(), fake)

	// Below the default face quality floor: must be rejected before any
	// debounce stamp is written.
	bad := validNotification("t1")
	low := 1000.0
	bad.FaceQuality = &low
	d.Submit(bad)
	waitFor(t, "rejection counter", func() bool {
		c, _, _ := statsStore.Get(testStream)
		return c.RejectedAttributes == 1
	})
	if d.ActiveTracklets() != 0 {
		t.Fatalf("rejected notification opened a window")
	}

	// The same tracklet must pass straight through afterwards.
	d.Submit(validNotification("t1"))
	waitFor(t, "tracklet window", func() bool { return d.ActiveTracklets() == 1 })
	c, _, _ := statsStore.Get(testStream)
	if c.Debounced != 0 {
		t.Fatalf("rejection wrote a debounce stamp: %+v", c)
	}
	if fake.count() != 0 {
		t.Fatalf("enroll called before the window expired")
	}
}

func TestDebounceBlocksRepeatTracklet(t *testing.T) {
	fake := &fakeEnroller{res: enroll.Result{MemberID: "m-1"}}
	d, statsStore, _ := newTestDispatcher(t, pipelineConfig(), fake)

	d.Submit(validNotification("t1"))
	waitFor(t, "first aggregation", func() bool {
		c, _, _ := statsStore.Get(testStream)
		return c.Aggregated == 1
	})

	// Default tracklet debounce is 4s; an immediate repeat is swallowed.
	d.Submit(validNotification("t1"))
	waitFor(t, "debounce counter", func() bool {
		c, _, _ := statsStore.Get(testStream)
		return c.Debounced == 1
	})
	c, _, _ := statsStore.Get(testStream)
	if c.Aggregated != 1 {
		t.Fatalf("repeat notification aggregated: %+v", c)
	}
}

func TestEnrollFailureIsContained(t *testing.T) {
	fake := &fakeEnroller{err: errors.New("connection refused")}
	d, statsStore, historyStore := newTestDispatcher(t, pipelineConfig(), fake)

	d.Submit(validNotification("t1"))
	waitFor(t, "tracklet window", func() bool { return d.ActiveTracklets() == 1 })
	time.Sleep(25 * time.Millisecond)
	d.SweepNow()

	c, _, _ := statsStore.Get(testStream)
	if c.Failures != 1 || c.Enrolled != 0 {
		t.Fatalf("counters = %+v", c)
	}
	recs := historyStore.List(0)
	if len(recs) != 1 || recs[0].Error == "" {
		t.Fatalf("failure not recorded in history: %+v", recs)
	}

	// The pipeline keeps working after a remote failure.
	d.Submit(validNotification("t2"))
	waitFor(t, "second window", func() bool { return d.ActiveTracklets() == 1 })
}

func TestDuplicateCountsSeparately(t *testing.T) {
	fake := &fakeEnroller{res: enroll.Result{Duplicate: true}}
	d, statsStore, historyStore := newTestDispatcher(t, pipelineConfig(), fake)

	d.Submit(validNotification("t1"))
	waitFor(t, "tracklet window", func() bool { return d.ActiveTracklets() == 1 })
	time.Sleep(25 * time.Millisecond)
	d.SweepNow()

	c, _, _ := statsStore.Get(testStream)
	if c.Duplicates != 1 || c.Enrolled != 0 {
		t.Fatalf("counters = %+v", c)
	}
	recs := historyStore.List(0)
	if len(recs) != 1 || !recs[0].Duplicate {
		t.Fatalf("duplicate not recorded: %+v", recs)
	}
}

func TestInvalidStreamIDIsDropped(t *testing.T) {
	fake := &fakeEnroller{}
	d, _, _ := newTestDispatcher(t, pipelineConfig(), fake)

	n := validNotification("t1")
	n.StreamID = "not-a-guid"
	d.Submit(n)

	// Give the worker a moment; nothing downstream may happen.
	time.Sleep(20 * time.Millisecond)
	if d.ActiveTracklets() != 0 || fake.count() != 0 {
		t.Fatalf("invalid stream id reached the pipeline")
	}
}

func TestUnmappedStreamIsCounted(t *testing.T) {
	cfg := pipelineConfig()
	cfg.Streams.ApplyForAllStreams = false
	fake := &fakeEnroller{}
	d, statsStore, _ := newTestDispatcher(t, cfg, fake)

	d.Submit(validNotification("t1"))
	waitFor(t, "no-mapping counter", func() bool {
		c, _, _ := statsStore.Get(testStream)
		return c.NoMapping == 1
	})
	if d.ActiveTracklets() != 0 {
		t.Fatalf("unmapped stream opened a window")
	}
}

func TestSubmitAfterStopIsRefused(t *testing.T) {
	fake := &fakeEnroller{}
	mgr := config.NewStaticManager(pipelineConfig())
	d := NewDispatcher(mgr, fake, debounce.NewDebouncer(debounce.NewCache(time.Minute), nil),
		nil, nil, nil, nil)
	d.Start()
	d.Stop()
	if d.Submit(validNotification("t1")) {
		t.Fatalf("Submit accepted after Stop")
	}
	// Stop is idempotent.
	d.Stop()
}
