package pose

import (
	"testing"
	"time"
)

func TestVisible(t *testing.T) {
	var f Frame
	f.Detected = true
	f.Landmarks[LeftShoulder] = Landmark{X: 0.4, Y: 0.3, Visibility: 0.9}
	f.Landmarks[RightShoulder] = Landmark{X: 0.6, Y: 0.3, Visibility: 0.2}

	if !f.Visible(LeftShoulder, 0.5) {
		t.Error("left shoulder at 0.9 visibility should pass 0.5 floor")
	}
	if f.Visible(RightShoulder, 0.5) {
		t.Error("right shoulder at 0.2 visibility should fail 0.5 floor")
	}
	if f.Visible(-1, 0) || f.Visible(NumLandmarks, 0) {
		t.Error("out-of-range indices should never be visible")
	}

	f.Detected = false
	if f.Visible(LeftShoulder, 0.5) {
		t.Error("undetected frame should have no visible landmarks")
	}
}

func TestMirrorSwapsSides(t *testing.T) {
	var f Frame
	f.Detected = true
	f.Landmarks[LeftShoulder] = Landmark{X: 0.3, Y: 0.3, Z: -0.1, Visibility: 0.9}
	f.Landmarks[RightShoulder] = Landmark{X: 0.7, Y: 0.3, Z: 0.1, Visibility: 0.8}

	m := f.Mirror()

	// Right shoulder should now carry the left's data, reflected in X.
	if got := m.Landmarks[RightShoulder]; got.X != 0.7 || got.Z != -0.1 || got.Visibility != 0.9 {
		t.Errorf("mirrored right shoulder = %+v, want reflected left shoulder", got)
	}
	if got := m.Landmarks[LeftShoulder]; got.X != 0.3 || got.Z != 0.1 || got.Visibility != 0.8 {
		t.Errorf("mirrored left shoulder = %+v, want reflected right shoulder", got)
	}

	// Mirroring twice restores the original.
	back := m.Mirror()
	if back.Landmarks[LeftShoulder] != f.Landmarks[LeftShoulder] {
		t.Errorf("double mirror changed left shoulder: %+v", back.Landmarks[LeftShoulder])
	}
}

func TestTraceDetectorReplay(t *testing.T) {
	trace := []byte(`
# two-frame trace
{"detected":true,"landmarks":[{"x":0.1,"y":0.2,"z":0,"visibility":0.9}]}
{"detected":false}
`)
	d, err := NewTraceDetector(trace, false)
	if err != nil {
		t.Fatalf("NewTraceDetector failed: %v", err)
	}

	f1, err := d.Detect(nil)
	if err != nil {
		t.Fatalf("first Detect failed: %v", err)
	}
	if !f1.Detected {
		t.Error("first frame should be detected")
	}
	if f1.Landmarks[Nose].X != 0.1 {
		t.Errorf("nose X = %v, want 0.1", f1.Landmarks[Nose].X)
	}
	if time.Since(f1.Timestamp) > time.Second {
		t.Error("timestamps should be rewritten to now")
	}

	f2, err := d.Detect(nil)
	if err != nil {
		t.Fatalf("second Detect failed: %v", err)
	}
	if f2.Detected {
		t.Error("second frame should be undetected")
	}

	if _, err := d.Detect(nil); err == nil {
		t.Error("non-looping trace should error once exhausted")
	}
}

func TestTraceDetectorLoops(t *testing.T) {
	d := NewScriptedDetector([]Frame{{Detected: true}}, true)
	for i := 0; i < 5; i++ {
		if _, err := d.Detect(nil); err != nil {
			t.Fatalf("looping Detect %d failed: %v", i, err)
		}
	}
}

func TestTraceDetectorRejectsEmptyAndMalformed(t *testing.T) {
	if _, err := NewTraceDetector([]byte("\n# only comments\n"), false); err == nil {
		t.Error("expected error for empty trace")
	}
	if _, err := NewTraceDetector([]byte("{not json}"), false); err == nil {
		t.Error("expected error for malformed trace line")
	}
}
