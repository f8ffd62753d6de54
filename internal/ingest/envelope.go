// Package ingest receives face-detection notifications pushed by the
// recognition platform, over Kafka or HTTP, and feeds them to the pipeline.
package ingest

import (
	"encoding/json"
	"errors"
	"time"

	"autoenroll/internal/model"
)

// Envelope mirrors the identification-event payload emitted by the
// recognition platform for unidentified faces.
type Envelope struct {
	IdentificationEvent struct {
		IdentificationEventType string `json:"identificationEventType"`
		Modality                string `json:"modality"`
		StreamInformation       struct {
			StreamID string `json:"streamId"`
		} `json:"streamInformation"`
		FrameInformation *model.FrameInformation `json:"frameInformation"`
		FaceModalityInfo struct {
			FaceInformation *faceInformation `json:"faceInformation"`
		} `json:"faceModalityInfo"`
	} `json:"identificationEvent"`
}

type faceInformation struct {
	ID              string                 `json:"id"`
	TrackletID      string                 `json:"trackletId"`
	CropImage       []byte                 `json:"cropImage"`
	CropCoordinates *model.CropCoordinates `json:"cropCoordinates"`

	FaceQuality       *float64 `json:"faceQuality"`
	TemplateQuality   *float64 `json:"templateQuality"`
	FaceSize          *float64 `json:"faceSize"`
	FaceArea          *float64 `json:"faceArea"`
	FaceOrder         *int     `json:"faceOrder"`
	FacesOnFrameCount *int     `json:"facesOnFrameCount"`
	Brightness        *float64 `json:"brightness"`
	Sharpness         *float64 `json:"sharpness"`
	YawAngle          *float64 `json:"yawAngle"`
	PitchAngle        *float64 `json:"pitchAngle"`
	RollAngle         *float64 `json:"rollAngle"`
}

var errNoFaceInformation = errors.New("envelope carries no face information")

// DecodeEnvelope parses one notification envelope. Payloads wrapped in a
// GraphQL-style {"data": ...} object are unwrapped first.
func DecodeEnvelope(data []byte) (model.Notification, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Data) > 0 {
		data = wrapper.Data
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Notification{}, err
	}
	return env.Notification()
}

func (e *Envelope) Notification() (model.Notification, error) {
	face := e.IdentificationEvent.FaceModalityInfo.FaceInformation
	if face == nil {
		return model.Notification{}, errNoFaceInformation
	}
	return model.Notification{
		StreamID:   e.IdentificationEvent.StreamInformation.StreamID,
		FaceID:     face.ID,
		TrackletID: face.TrackletID,
		ReceivedAt: time.Now().UTC(),
		CropImage:  face.CropImage,

		CropCoordinates: face.CropCoordinates,
		FrameInfo:       e.IdentificationEvent.FrameInformation,

		FaceQuality:       face.FaceQuality,
		TemplateQuality:   face.TemplateQuality,
		FaceSize:          face.FaceSize,
		FaceArea:          face.FaceArea,
		FaceOrder:         face.FaceOrder,
		FacesOnFrameCount: face.FacesOnFrameCount,
		Brightness:        face.Brightness,
		Sharpness:         face.Sharpness,
		YawAngle:          face.YawAngle,
		PitchAngle:        face.PitchAngle,
		RollAngle:         face.RollAngle,
	}, nil
}
