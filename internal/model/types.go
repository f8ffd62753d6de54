package model

import "time"

// Range is an inclusive numeric interval. A nil bound means the interval is
// unbounded on that side.
type Range struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

func (r *Range) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r *Range) Clone() *Range {
	if r == nil {
		return nil
	}
	out := &Range{}
	if r.Min != nil {
		v := *r.Min
		out.Min = &v
	}
	if r.Max != nil {
		v := *r.Max
		out.Max = &v
	}
	return out
}

// CropCoordinates are the four corners of the face crop quadrilateral in
// frame pixel space.
type CropCoordinates struct {
	LeftTopX     float64 `json:"cropLeftTopX"`
	LeftTopY     float64 `json:"cropLeftTopY"`
	RightTopX    float64 `json:"cropRightTopX"`
	RightTopY    float64 `json:"cropRightTopY"`
	LeftBottomX  float64 `json:"cropLeftBottomX"`
	LeftBottomY  float64 `json:"cropLeftBottomY"`
	RightBottomX float64 `json:"cropRightBottomX"`
	RightBottomY float64 `json:"cropRightBottomY"`
}

type FrameInformation struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Notification is one face-detection event pushed by the recognition
// pipeline. Optional attributes are nil when the detector did not report
// them; an absent attribute is never a rejection reason.
type Notification struct {
	StreamID   string    `json:"streamId"`
	FaceID     string    `json:"faceId,omitempty"`
	TrackletID string    `json:"trackletId"`
	ReceivedAt time.Time `json:"receivedAt"`
	CropImage  []byte    `json:"cropImage,omitempty"`

	CropCoordinates *CropCoordinates  `json:"cropCoordinates,omitempty"`
	FrameInfo       *FrameInformation `json:"frameInformation,omitempty"`

	FaceQuality       *float64 `json:"faceQuality,omitempty"`
	TemplateQuality   *float64 `json:"templateQuality,omitempty"`
	FaceSize          *float64 `json:"faceSize,omitempty"`
	FaceArea          *float64 `json:"faceArea,omitempty"`
	FaceOrder         *int     `json:"faceOrder,omitempty"`
	FacesOnFrameCount *int     `json:"facesOnFrameCount,omitempty"`
	Brightness        *float64 `json:"brightness,omitempty"`
	Sharpness         *float64 `json:"sharpness,omitempty"`
	YawAngle          *float64 `json:"yawAngle,omitempty"`
	PitchAngle        *float64 `json:"pitchAngle,omitempty"`
	RollAngle         *float64 `json:"rollAngle,omitempty"`
}

// StreamConfiguration is the rule set applied to one stream. In the settings
// document every field is optional; unset fields inherit the global defaults
// at resolution time. A resolved configuration is a standalone copy and never
// shares Range or slice storage with the defaults.
type StreamConfiguration struct {
	StreamID      string   `json:"stream_id" yaml:"stream_id"`
	StreamGroupID string   `json:"stream_group_id,omitempty" yaml:"stream_group_id"`
	WatchlistIDs  []string `json:"watchlist_ids,omitempty" yaml:"watchlist_ids"`

	FaceQuality       *Range `json:"face_quality,omitempty" yaml:"face_quality"`
	TemplateQuality   *Range `json:"template_quality,omitempty" yaml:"template_quality"`
	FaceSize          *Range `json:"face_size,omitempty" yaml:"face_size"`
	FaceArea          *Range `json:"face_area,omitempty" yaml:"face_area"`
	FaceOrder         *Range `json:"face_order,omitempty" yaml:"face_order"`
	FacesOnFrameCount *Range `json:"faces_on_frame_count,omitempty" yaml:"faces_on_frame_count"`
	Brightness        *Range `json:"brightness,omitempty" yaml:"brightness"`
	Sharpness         *Range `json:"sharpness,omitempty" yaml:"sharpness"`
	YawAngle          *Range `json:"yaw_angle,omitempty" yaml:"yaw_angle"`
	PitchAngle        *Range `json:"pitch_angle,omitempty" yaml:"pitch_angle"`
	RollAngle         *Range `json:"roll_angle,omitempty" yaml:"roll_angle"`

	KeepAutoLearn *bool `json:"keep_auto_learn,omitempty" yaml:"keep_auto_learn"`

	TrackletDebounce *time.Duration `json:"tracklet_debounce,omitempty" yaml:"tracklet_debounce"`
	StreamDebounce   *time.Duration `json:"stream_debounce,omitempty" yaml:"stream_debounce"`
	GroupDebounce    *time.Duration `json:"group_debounce,omitempty" yaml:"group_debounce"`

	FramePaddingAbsolute *float64 `json:"frame_padding_absolute,omitempty" yaml:"frame_padding_absolute"`
	FramePaddingRelative *float64 `json:"frame_padding_relative,omitempty" yaml:"frame_padding_relative"`
}

// EnrollmentRecord is the outcome of one enrollment attempt as kept by the
// history store and the optional database.
type EnrollmentRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	MemberID     string    `json:"member_id,omitempty"`
	StreamID     string    `json:"stream_id"`
	TrackletID   string    `json:"tracklet_id"`
	WatchlistIDs []string  `json:"watchlist_ids,omitempty"`
	Duplicate    bool      `json:"duplicate"`
	Error        string    `json:"error,omitempty"`
}

// Rejection records a notification dropped before aggregation.
type Rejection struct {
	Timestamp  time.Time `json:"timestamp"`
	StreamID   string    `json:"stream_id"`
	TrackletID string    `json:"tracklet_id"`
	Reason     string    `json:"reason"`
}
