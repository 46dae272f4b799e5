// Package pose defines the body landmark model produced by the external
// pose detector and the interface the measurement core consumes it through.
package pose

import "time"

// Body landmark indices following the MediaPipe pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// Landmark is a detected anatomical keypoint. X and Y are normalized image
// coordinates (Y grows downward), Z is an estimated depth in the same scale
// (more negative is closer to the camera), Visibility is the detector's
// confidence that the point is present and unoccluded.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame holds one detection result. Landmarks are immutable once emitted and
// scoped to the frame that produced them.
type Frame struct {
	Timestamp time.Time              `json:"timestamp"`
	Landmarks [NumLandmarks]Landmark `json:"landmarks"`
	Detected  bool                   `json:"detected"`
}

// Visible reports whether the landmark at index idx meets the visibility floor.
func (f Frame) Visible(idx int, minVisibility float64) bool {
	if !f.Detected || idx < 0 || idx >= NumLandmarks {
		return false
	}
	return f.Landmarks[idx].Visibility >= minVisibility
}

// Mirror returns a copy of the frame with left/right landmark labels swapped
// and X reflected about the image midline. Used to verify symmetry properties.
func (f Frame) Mirror() Frame {
	out := f
	for l, r := range mirrorPairs {
		out.Landmarks[l], out.Landmarks[r] = reflect(f.Landmarks[r]), reflect(f.Landmarks[l])
	}
	out.Landmarks[Nose] = reflect(f.Landmarks[Nose])
	return out
}

func reflect(l Landmark) Landmark {
	l.X = 1 - l.X
	return l
}

var mirrorPairs = map[int]int{
	LeftEyeInner:  RightEyeInner,
	LeftEye:       RightEye,
	LeftEyeOuter:  RightEyeOuter,
	LeftEar:       RightEar,
	MouthLeft:     MouthRight,
	LeftShoulder:  RightShoulder,
	LeftElbow:     RightElbow,
	LeftWrist:     RightWrist,
	LeftPinky:     RightPinky,
	LeftIndex:     RightIndex,
	LeftThumb:     RightThumb,
	LeftHip:       RightHip,
	LeftKnee:      RightKnee,
	LeftAnkle:     RightAnkle,
	LeftHeel:      RightHeel,
	LeftFootIndex: RightFootIndex,
}

// Detector is the external pose inference collaborator. Implementations take
// a raw camera frame and return per-frame body landmarks with confidence.
// Detector failures are recoverable: callers treat them as insufficient data
// for the frame, never as fatal.
type Detector interface {
	Detect(image []byte) (Frame, error)
}
