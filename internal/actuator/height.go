package actuator

import "strings"

// Drillis and Contini body segment ratios: joint height above the floor as
// a fraction of standing stature, for an average adult.
const (
	hipHeightRatio      = 0.530
	shoulderHeightRatio = 0.818
	elbowHeightRatio    = 0.630
	kneeHeightRatio     = 0.285
	ankleHeightRatio    = 0.039
	neckHeightRatio     = 0.870
)

// RecommendedCameraHeight returns the mount height in centimeters that
// centers the lens on the given joint for a subject of the given stature.
// Unknown joints fall back to the hip, the mid-body default.
func RecommendedCameraHeight(subjectHeightCM float64, joint string) float64 {
	ratio := hipHeightRatio
	switch strings.ToLower(joint) {
	case "shoulder":
		ratio = shoulderHeightRatio
	case "elbow":
		ratio = elbowHeightRatio
	case "knee":
		ratio = kneeHeightRatio
	case "ankle":
		ratio = ankleHeightRatio
	case "neck":
		ratio = neckHeightRatio
	case "hip":
		ratio = hipHeightRatio
	}
	return subjectHeightCM * ratio
}

// HeightCommand builds the mount command for a subject and target joint.
func HeightCommand(subjectHeightCM float64, joint string) Command {
	return Command{Verb: VerbHeight, Value: RecommendedCameraHeight(subjectHeightCM, joint)}
}
