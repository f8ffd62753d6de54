// Package enroll talks to the remote watchlist API: optional duplicate
// search, then member registration with the selected face crop.
package enroll

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"autoenroll/internal/config"
	"autoenroll/internal/model"
)

// APIError is a structured failure response from the remote endpoint. One
// enrollment attempt is abandoned on it; there is no retry.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

type faceDetectorConfig struct {
	MaxFaces            int `json:"maxFaces"`
	MinFaceSize         int `json:"minFaceSize"`
	MaxFaceSize         int `json:"maxFaceSize"`
	ConfidenceThreshold int `json:"confidenceThreshold"`
}

type imageData struct {
	Data []byte `json:"data"`
}

type registerRequest struct {
	ID                 string             `json:"id"`
	FullName           string             `json:"fullName"`
	DisplayName        string             `json:"displayName"`
	WatchlistIDs       []string           `json:"watchlistIds"`
	KeepAutoLearn      bool               `json:"keepAutoLearnPhotos"`
	FaceDetectorConfig faceDetectorConfig `json:"faceDetectorConfig"`
	Images             []imageData        `json:"images"`
}

type searchRequest struct {
	WatchlistIDs       []string           `json:"watchlistIds"`
	FaceDetectorConfig faceDetectorConfig `json:"faceDetectorConfig"`
	Threshold          int                `json:"threshold"`
	Image              imageData          `json:"image"`
}

type searchMatchGroup struct {
	MatchResults []json.RawMessage `json:"matchResults"`
}

// Result describes what one Enroll call did.
type Result struct {
	MemberID  string
	Duplicate bool
	Skipped   bool
}

type Client struct {
	cfg    *config.Manager
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg *config.Manager, logger *slog.Logger) *Client {
	current := cfg.Get().Enrollment
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: current.RequestTimeout},
		logger: logger,
	}
}

// Enroll runs the duplicate search when a threshold is configured, then
// registers a new watchlist member with a freshly generated id. A duplicate
// match skips registration and is not an error.
func (c *Client) Enroll(ctx context.Context, n *model.Notification, sc *model.StreamConfiguration) (Result, error) {
	current := c.cfg.Get()

	if len(sc.WatchlistIDs) == 0 {
		if c.logger != nil {
			c.logger.Info("no target watchlist id, skipped", "stream_id", n.StreamID)
		}
		return Result{Skipped: true}, nil
	}

	if current.Enrollment.DuplicateSearchThreshold > 0 {
		duplicate, err := c.checkDuplicate(ctx, current, n, sc)
		if err != nil {
			return Result{}, err
		}
		if duplicate {
			if c.logger != nil {
				c.logger.Info("face is a possible duplicate, skipping enrollment",
					"stream_id", n.StreamID, "tracklet_id", n.TrackletID)
			}
			return Result{Duplicate: true}, nil
		}
	}

	return c.register(ctx, current, n, sc)
}

func (c *Client) checkDuplicate(ctx context.Context, cfg *config.Config, n *model.Notification, sc *model.StreamConfiguration) (bool, error) {
	req := searchRequest{
		WatchlistIDs:       sc.WatchlistIDs,
		FaceDetectorConfig: detectorConfig(cfg),
		Threshold:          cfg.Enrollment.DuplicateSearchThreshold,
		Image:              imageData{Data: n.CropImage},
	}
	if c.logger != nil {
		c.logger.Debug("searching for duplicate", "watchlist_ids", sc.WatchlistIDs, "threshold", req.Threshold)
	}

	var groups []searchMatchGroup
	if err := c.post(ctx, cfg, "/api/v1/Watchlists/Search", req, &groups); err != nil {
		return false, err
	}
	for _, g := range groups {
		if len(g.MatchResults) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) register(ctx context.Context, cfg *config.Config, n *model.Notification, sc *model.StreamConfiguration) (Result, error) {
	memberID := uuid.NewString()
	req := registerRequest{
		ID:                 memberID,
		FullName:           memberID,
		DisplayName:        memberID,
		WatchlistIDs:       sc.WatchlistIDs,
		KeepAutoLearn:      sc.KeepAutoLearn != nil && *sc.KeepAutoLearn,
		FaceDetectorConfig: detectorConfig(cfg),
		Images:             []imageData{{Data: n.CropImage}},
	}

	if folder := cfg.Pipeline.DebugOutputFolder; folder != "" {
		path := filepath.Join(folder, memberID+".jpg")
		if err := os.WriteFile(path, n.CropImage, 0o644); err != nil && c.logger != nil {
			c.logger.Warn("failed to write debug crop", "path", path, "err", err)
		}
	}

	if c.logger != nil {
		c.logger.Info("registering watchlist member",
			"member_id", memberID, "watchlist_ids", sc.WatchlistIDs, "tracklet_id", n.TrackletID)
	}

	if err := c.post(ctx, cfg, "/api/v1/WatchlistMembers/Register", req, nil); err != nil {
		return Result{}, err
	}
	return Result{MemberID: memberID}, nil
}

func (c *Client) post(ctx context.Context, cfg *config.Config, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimRight(cfg.Enrollment.TargetURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if c.logger != nil {
			c.logger.Error("remote call failed", "url", url, "status", resp.StatusCode, "response", string(respBody))
		}
		return apiErr
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", url, err)
		}
	}
	return nil
}

func detectorConfig(cfg *config.Config) faceDetectorConfig {
	return faceDetectorConfig{
		MaxFaces:            cfg.Enrollment.RegisterMaxFaces,
		MinFaceSize:         cfg.Enrollment.RegisterMinFaceSize,
		MaxFaceSize:         cfg.Enrollment.RegisterMaxFaceSize,
		ConfidenceThreshold: cfg.Enrollment.RegisterFaceConfidence,
	}
}
