// Package units provides shared angle conversions and goniometer display
// formatting
package units

import (
	"fmt"
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// NormalizeDegrees wraps an angle into (-180, 180].
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	}
	if deg <= -180 {
		deg += 360
	}
	return deg
}

// FormatGoniometer renders a signed angle the way a clinician reads a
// goniometer: unsigned magnitude plus the movement direction label.
func FormatGoniometer(signedDegrees float64, positiveLabel, negativeLabel string) string {
	label := positiveLabel
	if signedDegrees < 0 {
		label = negativeLabel
	}
	return fmt.Sprintf("%.0f° %s", math.Abs(signedDegrees), label)
}
