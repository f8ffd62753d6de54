package validate

import (
	"testing"

	"autoenroll/internal/model"
)

func f(v float64) *float64 { return &v }

func i(v int) *int { return &v }

func TestAttributesAllAbsentPasses(t *testing.T) {
	n := &model.Notification{}
	cfg := &model.StreamConfiguration{
		FaceQuality: &model.Range{Min: f(2000)},
		YawAngle:    &model.Range{Min: f(-7), Max: f(7)},
	}
	ok, failed := Attributes(n, cfg)
	if !ok {
		t.Fatalf("absent attributes must pass, failed on %s", failed)
	}
}

func TestAttributesBoundaryInclusive(t *testing.T) {
	cfg := &model.StreamConfiguration{
		FaceQuality: &model.Range{Min: f(2000), Max: f(5000)},
	}
	cases := []struct {
		quality float64
		want    bool
	}{
		{2000, true},
		{5000, true},
		{1999, false},
		{5001, false},
		{3000, true},
	}
	for _, tc := range cases {
		n := &model.Notification{FaceQuality: f(tc.quality)}
		ok, _ := Attributes(n, cfg)
		if ok != tc.want {
			t.Fatalf("quality %v: got %v want %v", tc.quality, ok, tc.want)
		}
	}
}

func TestAttributesUnboundedSide(t *testing.T) {
	cfg := &model.StreamConfiguration{
		Sharpness: &model.Range{Min: f(-10000)},
	}
	n := &model.Notification{Sharpness: f(999999)}
	if ok, _ := Attributes(n, cfg); !ok {
		t.Fatalf("max-unbounded range rejected a high value")
	}
	n = &model.Notification{Sharpness: f(-10001)}
	if ok, _ := Attributes(n, cfg); ok {
		t.Fatalf("value below min accepted")
	}
}

func TestAttributesReportsFailingPredicate(t *testing.T) {
	cfg := &model.StreamConfiguration{
		FaceQuality: &model.Range{Min: f(2000)},
		YawAngle:    &model.Range{Min: f(-7), Max: f(7)},
	}
	n := &model.Notification{
		FaceQuality: f(2500),
		YawAngle:    f(39.3),
	}
	ok, failed := Attributes(n, cfg)
	if ok {
		t.Fatalf("expected yaw rejection")
	}
	if failed != "yaw_angle" {
		t.Fatalf("failing predicate: %s", failed)
	}
}

func TestAttributesIntFields(t *testing.T) {
	cfg := &model.StreamConfiguration{
		FaceOrder:         &model.Range{Max: f(1)},
		FacesOnFrameCount: &model.Range{Max: f(2)},
	}
	n := &model.Notification{FaceOrder: i(1), FacesOnFrameCount: i(2)}
	if ok, failed := Attributes(n, cfg); !ok {
		t.Fatalf("boundary int values must pass, failed on %s", failed)
	}
	n = &model.Notification{FaceOrder: i(2)}
	if ok, _ := Attributes(n, cfg); ok {
		t.Fatalf("face order above max accepted")
	}
}

func TestAttributesNoRangesConfigured(t *testing.T) {
	n := &model.Notification{
		FaceQuality: f(1),
		Brightness:  f(-99999),
	}
	if ok, _ := Attributes(n, &model.StreamConfiguration{}); !ok {
		t.Fatalf("unconfigured ranges must pass everything")
	}
}
