package debounce

import (
	"testing"
	"time"

	"autoenroll/internal/model"
)

func dur(d time.Duration) *time.Duration { return &d }

func TestCacheWindow(t *testing.T) {
	c := NewCache(time.Minute)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Block("k")

	c.now = func() time.Time { return base.Add(2 * time.Second) }
	if !c.IsBlocked("k", 5*time.Second) {
		t.Fatalf("2s after block with 5s window: want blocked")
	}

	c.now = func() time.Time { return base.Add(6 * time.Second) }
	if c.IsBlocked("k", 5*time.Second) {
		t.Fatalf("6s after block with 5s window: want not blocked")
	}
}

func TestCacheHardExpirationCapsWindow(t *testing.T) {
	// The ceiling evicts a stamp on the real clock even when the caller's
	// window is far longer.
	c := NewCache(100 * time.Millisecond)
	c.Block("k")
	if !c.IsBlocked("k", 10*time.Second) {
		t.Fatalf("fresh stamp not blocked")
	}

	time.Sleep(150 * time.Millisecond)
	if c.IsBlocked("k", 10*time.Second) {
		t.Fatalf("stamp survived past the hard expiration ceiling")
	}
}

func TestCacheUnknownKey(t *testing.T) {
	c := NewCache(time.Minute)
	if c.IsBlocked("missing", time.Second) {
		t.Fatalf("unknown key reported blocked")
	}
}

func TestCacheZeroWindowNeverBlocks(t *testing.T) {
	c := NewCache(time.Minute)
	c.Block("k")
	if c.IsBlocked("k", 0) {
		t.Fatalf("zero window must never block")
	}
}

func TestCacheIsBlockedDoesNotStamp(t *testing.T) {
	c := NewCache(time.Minute)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Block("k")

	// Repeated checks inside the window must not push the stamp forward.
	c.now = func() time.Time { return base.Add(4 * time.Second) }
	c.IsBlocked("k", 5*time.Second)
	c.now = func() time.Time { return base.Add(6 * time.Second) }
	if c.IsBlocked("k", 5*time.Second) {
		t.Fatalf("IsBlocked extended the window")
	}
}

func TestDebouncerScopes(t *testing.T) {
	c := NewCache(time.Minute)
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	d := NewDebouncer(c, nil)

	cfg := &model.StreamConfiguration{
		StreamGroupID:    "entrance",
		TrackletDebounce: dur(4 * time.Second),
		StreamDebounce:   dur(10 * time.Second),
		GroupDebounce:    dur(20 * time.Second),
	}
	n := &model.Notification{StreamID: "s1", TrackletID: "t1"}

	if d.IsBlocked(n, cfg) {
		t.Fatalf("fresh caches must not block")
	}
	d.Block(n, cfg)

	// Same tracklet is blocked immediately.
	if !d.IsBlocked(n, cfg) {
		t.Fatalf("tracklet scope not blocked")
	}

	// A different tracklet on the same stream is caught by the stream scope.
	other := &model.Notification{StreamID: "s1", TrackletID: "t2"}
	c.now = func() time.Time { return base.Add(5 * time.Second) }
	if !d.IsBlocked(other, cfg) {
		t.Fatalf("stream scope not blocked")
	}

	// A different stream in the same group is caught by the group scope.
	elsewhere := &model.Notification{StreamID: "s2", TrackletID: "t3"}
	c.now = func() time.Time { return base.Add(15 * time.Second) }
	if !d.IsBlocked(elsewhere, cfg) {
		t.Fatalf("group scope not blocked")
	}

	c.now = func() time.Time { return base.Add(25 * time.Second) }
	if d.IsBlocked(elsewhere, cfg) {
		t.Fatalf("all windows elapsed, still blocked")
	}
}

func TestDebouncerGroupScopeNeedsGroupID(t *testing.T) {
	c := NewCache(time.Minute)
	d := NewDebouncer(c, nil)

	cfg := &model.StreamConfiguration{GroupDebounce: dur(time.Minute)}
	n := &model.Notification{StreamID: "s1", TrackletID: "t1"}
	d.Block(n, cfg)

	// Without a group id the group window never applies, even across streams.
	other := &model.Notification{StreamID: "s2", TrackletID: "t2"}
	if d.IsBlocked(other, cfg) {
		t.Fatalf("group scope applied without a group id")
	}
}

func TestDebouncerNoWindowsConfigured(t *testing.T) {
	c := NewCache(time.Minute)
	d := NewDebouncer(c, nil)
	n := &model.Notification{StreamID: "s1", TrackletID: "t1"}
	cfg := &model.StreamConfiguration{}
	d.Block(n, cfg)
	if d.IsBlocked(n, cfg) {
		t.Fatalf("no configured windows must never block")
	}
}
