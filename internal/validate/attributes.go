// Package validate holds the pass/fail gates a notification must clear
// before it is considered for enrollment.
package validate

import (
	"autoenroll/internal/model"
)

type predicate struct {
	name  string
	check func(n *model.Notification, cfg *model.StreamConfiguration) bool
}

// The gate is the logical AND of these predicates, evaluated in order. An
// attribute the notification does not carry passes its predicate.
var attributePredicates = []predicate{
	{"face_quality", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.FaceQuality, cfg.FaceQuality)
	}},
	{"template_quality", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.TemplateQuality, cfg.TemplateQuality)
	}},
	{"face_size", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.FaceSize, cfg.FaceSize)
	}},
	{"face_area", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.FaceArea, cfg.FaceArea)
	}},
	{"face_order", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return intInRange(n.FaceOrder, cfg.FaceOrder)
	}},
	{"faces_on_frame_count", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return intInRange(n.FacesOnFrameCount, cfg.FacesOnFrameCount)
	}},
	{"brightness", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.Brightness, cfg.Brightness)
	}},
	{"sharpness", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.Sharpness, cfg.Sharpness)
	}},
	{"yaw_angle", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.YawAngle, cfg.YawAngle)
	}},
	{"pitch_angle", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.PitchAngle, cfg.PitchAngle)
	}},
	{"roll_angle", func(n *model.Notification, cfg *model.StreamConfiguration) bool {
		return inRange(n.RollAngle, cfg.RollAngle)
	}},
}

// Attributes reports whether the notification clears every configured
// attribute range. On failure the name of the first failing predicate is
// returned for diagnostics.
func Attributes(n *model.Notification, cfg *model.StreamConfiguration) (bool, string) {
	for _, p := range attributePredicates {
		if !p.check(n, cfg) {
			return false, p.name
		}
	}
	return true, ""
}

func inRange(value *float64, r *model.Range) bool {
	if value == nil {
		return true
	}
	return r.Contains(*value)
}

func intInRange(value *int, r *model.Range) bool {
	if value == nil {
		return true
	}
	return r.Contains(float64(*value))
}
