package validate

import (
	"autoenroll/internal/model"
)

// Geometry reports whether the crop quadrilateral lies within the padded
// sub-region of the frame. Detections too close to a frame edge tend to
// carry truncated crops. When no padding is configured the check passes;
// relative padding takes precedence over absolute when both are set.
func Geometry(n *model.Notification, cfg *model.StreamConfiguration) bool {
	if cfg.FramePaddingAbsolute == nil && cfg.FramePaddingRelative == nil {
		return true
	}
	if n.FrameInfo == nil || n.CropCoordinates == nil {
		return false
	}

	padding := 0.0
	relative := false
	switch {
	case cfg.FramePaddingRelative != nil:
		padding = *cfg.FramePaddingRelative
		relative = true
	case cfg.FramePaddingAbsolute != nil:
		padding = *cfg.FramePaddingAbsolute
	}

	return withinPaddedFrame(n.FrameInfo.Width, n.FrameInfo.Height, n.CropCoordinates, padding, relative)
}

func withinPaddedFrame(width, height int, c *model.CropCoordinates, padding float64, relative bool) bool {
	paddingX := padding
	paddingY := padding
	if relative {
		paddingX = float64(width) * padding
		paddingY = float64(height) * padding
	}

	paddedLeft := paddingX
	paddedTop := paddingY
	paddedRight := float64(width) - paddingX
	paddedBottom := float64(height) - paddingY

	return c.LeftTopX >= paddedLeft && c.LeftTopY >= paddedTop &&
		c.RightTopX <= paddedRight && c.RightTopY >= paddedTop &&
		c.LeftBottomX >= paddedLeft && c.LeftBottomY <= paddedBottom &&
		c.RightBottomX <= paddedRight && c.RightBottomY <= paddedBottom
}
