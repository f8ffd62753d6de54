// Package streams resolves the per-stream rule set by merging stream
// overrides over the global default conditions.
package streams

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autoenroll/internal/config"
	"autoenroll/internal/model"
)

var ErrInvalidStreamID = errors.New("stream id is not a valid GUID")

// Resolve returns the configurations that apply to streamID. Every returned
// configuration is a standalone merged copy; mutating it never alters the
// configured defaults or another resolved instance. Resolving the same id
// against the same config snapshot is idempotent.
func Resolve(cfg *config.Config, streamID string) ([]model.StreamConfiguration, error) {
	id, err := uuid.Parse(streamID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStreamID, streamID)
	}

	defaults := normalizeConditions(cfg)

	var out []model.StreamConfiguration
	for _, override := range cfg.Streams.Overrides {
		overrideID, err := uuid.Parse(override.StreamID)
		if err != nil {
			continue
		}
		if overrideID != id {
			continue
		}
		out = append(out, mergeWithDefaults(override, defaults))
	}

	if len(out) == 0 && cfg.Streams.ApplyForAllStreams {
		merged := mergeWithDefaults(model.StreamConfiguration{}, defaults)
		merged.StreamID = id.String()
		out = append(out, merged)
	}
	return out, nil
}

// normalizeConditions fills the global conditions with the built-in fallback
// ranges. The input config is not modified.
func normalizeConditions(cfg *config.Config) model.StreamConfiguration {
	c := cfg.Streams.Conditions

	if c.FaceQuality == nil {
		c.FaceQuality = &model.Range{Min: f(2000)}
	}
	if c.TemplateQuality == nil {
		c.TemplateQuality = &model.Range{Min: f(80)}
	}
	if c.YawAngle == nil {
		c.YawAngle = &model.Range{Min: f(-7), Max: f(7)}
	}
	if c.PitchAngle == nil {
		c.PitchAngle = &model.Range{Min: f(-25), Max: f(25)}
	}
	if c.RollAngle == nil {
		c.RollAngle = &model.Range{Min: f(-15), Max: f(15)}
	}
	if c.TrackletDebounce == nil {
		c.TrackletDebounce = d(4 * time.Second)
	}
	c.WatchlistIDs = unionWatchlists(c.WatchlistIDs, cfg.Enrollment.WatchlistIDs)
	return c
}

// mergeWithDefaults fills every unset field of the override from the
// normalized defaults, deep-copying ranges and slices so the result shares no
// storage with either input.
func mergeWithDefaults(override model.StreamConfiguration, defaults model.StreamConfiguration) model.StreamConfiguration {
	merged := override

	merged.FaceQuality = pickRange(override.FaceQuality, defaults.FaceQuality)
	merged.TemplateQuality = pickRange(override.TemplateQuality, defaults.TemplateQuality)
	merged.FaceSize = pickRange(override.FaceSize, defaults.FaceSize)
	merged.FaceArea = pickRange(override.FaceArea, defaults.FaceArea)
	merged.FaceOrder = pickRange(override.FaceOrder, defaults.FaceOrder)
	merged.FacesOnFrameCount = pickRange(override.FacesOnFrameCount, defaults.FacesOnFrameCount)
	merged.Brightness = pickRange(override.Brightness, defaults.Brightness)
	merged.Sharpness = pickRange(override.Sharpness, defaults.Sharpness)
	merged.YawAngle = pickRange(override.YawAngle, defaults.YawAngle)
	merged.PitchAngle = pickRange(override.PitchAngle, defaults.PitchAngle)
	merged.RollAngle = pickRange(override.RollAngle, defaults.RollAngle)

	merged.KeepAutoLearn = pickBool(override.KeepAutoLearn, defaults.KeepAutoLearn)
	merged.TrackletDebounce = pickDuration(override.TrackletDebounce, defaults.TrackletDebounce)
	merged.StreamDebounce = pickDuration(override.StreamDebounce, defaults.StreamDebounce)
	merged.GroupDebounce = pickDuration(override.GroupDebounce, defaults.GroupDebounce)

	merged.FramePaddingAbsolute = pickFloat(override.FramePaddingAbsolute, defaults.FramePaddingAbsolute)
	merged.FramePaddingRelative = pickFloat(override.FramePaddingRelative, defaults.FramePaddingRelative)

	if merged.StreamGroupID == "" {
		merged.StreamGroupID = defaults.StreamGroupID
	}
	if len(override.WatchlistIDs) > 0 {
		merged.WatchlistIDs = append([]string(nil), override.WatchlistIDs...)
	} else {
		merged.WatchlistIDs = append([]string(nil), defaults.WatchlistIDs...)
	}
	return merged
}

func pickRange(override, fallback *model.Range) *model.Range {
	if override != nil {
		return override.Clone()
	}
	return fallback.Clone()
}

func pickBool(override, fallback *bool) *bool {
	src := override
	if src == nil {
		src = fallback
	}
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func pickDuration(override, fallback *time.Duration) *time.Duration {
	src := override
	if src == nil {
		src = fallback
	}
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func pickFloat(override, fallback *float64) *float64 {
	src := override
	if src == nil {
		src = fallback
	}
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func unionWatchlists(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func f(v float64) *float64 { return &v }

func d(v time.Duration) *time.Duration { return &v }
