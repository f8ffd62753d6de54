package enroll

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"autoenroll/internal/config"
	"autoenroll/internal/model"
)

func testClient(t *testing.T, url string, threshold int) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Enrollment.TargetURL = url
	cfg.Enrollment.DuplicateSearchThreshold = threshold
	return NewClient(config.NewStaticManager(cfg), nil)
}

func TestEnrollSkipsWithoutWatchlists(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	res, err := c.Enroll(context.Background(), &model.Notification{StreamID: "s1"}, &model.StreamConfiguration{})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("want Skipped result")
	}
	if calls != 0 {
		t.Fatalf("remote called %d times for a skipped enrollment", calls)
	}
}

func TestEnrollRegistersMember(t *testing.T) {
	var registered registerRequest
	registerCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/WatchlistMembers/Register" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		registerCalls++
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &registered); err != nil {
			t.Errorf("decode register body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0) // threshold 0 disables the duplicate search
	crop := []byte{0xff, 0xd8, 0xff}
	keep := true
	sc := &model.StreamConfiguration{WatchlistIDs: []string{"wl-1", "wl-2"}, KeepAutoLearn: &keep}

	res, err := c.Enroll(context.Background(), &model.Notification{StreamID: "s1", TrackletID: "t1", CropImage: crop}, sc)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if registerCalls != 1 {
		t.Fatalf("register called %d times, want 1", registerCalls)
	}
	if res.MemberID == "" || res.Duplicate || res.Skipped {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := uuid.Parse(res.MemberID); err != nil {
		t.Fatalf("member id %q is not a GUID", res.MemberID)
	}
	if registered.ID != res.MemberID || registered.FullName != res.MemberID || registered.DisplayName != res.MemberID {
		t.Fatalf("member names not derived from the generated id: %+v", registered)
	}
	if len(registered.WatchlistIDs) != 2 {
		t.Fatalf("watchlist ids = %v", registered.WatchlistIDs)
	}
	if !registered.KeepAutoLearn {
		t.Fatalf("keepAutoLearnPhotos not carried")
	}
	if registered.FaceDetectorConfig.MaxFaces != 3 || registered.FaceDetectorConfig.ConfidenceThreshold != 450 {
		t.Fatalf("detector config = %+v", registered.FaceDetectorConfig)
	}
	if len(registered.Images) != 1 || string(registered.Images[0].Data) != string(crop) {
		t.Fatalf("crop image not carried")
	}
}

func TestEnrollDuplicateSkipsRegistration(t *testing.T) {
	registerCalls := 0
	var search searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/Watchlists/Search":
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &search); err != nil {
				t.Errorf("decode search body: %v", err)
			}
			io.WriteString(w, `[{"matchResults":[{"score":98}]}]`)
		case "/api/v1/WatchlistMembers/Register":
			registerCalls++
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 90)
	sc := &model.StreamConfiguration{WatchlistIDs: []string{"wl-1"}}
	res, err := c.Enroll(context.Background(), &model.Notification{StreamID: "s1", TrackletID: "t1"}, sc)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("want Duplicate result, got %+v", res)
	}
	if registerCalls != 0 {
		t.Fatalf("register called despite duplicate match")
	}
	if search.Threshold != 90 {
		t.Fatalf("search threshold = %d, want 90", search.Threshold)
	}
}

func TestEnrollEmptyMatchGroupsRegisters(t *testing.T) {
	registerCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/Watchlists/Search":
			// Groups may come back with no match results; that is not a duplicate.
			io.WriteString(w, `[{"matchResults":[]},{"matchResults":[]}]`)
		case "/api/v1/WatchlistMembers/Register":
			registerCalls++
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 90)
	sc := &model.StreamConfiguration{WatchlistIDs: []string{"wl-1"}}
	res, err := c.Enroll(context.Background(), &model.Notification{StreamID: "s1"}, sc)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if res.Duplicate || registerCalls != 1 {
		t.Fatalf("duplicate=%v registerCalls=%d, want registration", res.Duplicate, registerCalls)
	}
}

func TestEnrollSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "watchlist not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	sc := &model.StreamConfiguration{WatchlistIDs: []string{"wl-1"}}
	_, err := c.Enroll(context.Background(), &model.Notification{StreamID: "s1"}, sc)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", apiErr.StatusCode)
	}
}
