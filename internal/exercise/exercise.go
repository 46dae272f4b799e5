// Package exercise holds the static per-exercise measurement configuration:
// which landmarks form the measured segment, the orientation the subject
// must present, phase durations, and the bands a final range of motion is
// graded against. Definitions are loaded once and shared read-only.
package exercise

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/biotrack-data/motion.report/internal/orientation"
	"github.com/biotrack-data/motion.report/internal/pose"
)

//go:embed exercises.defaults.json
var defaultsFS embed.FS

// Side identifies which body side a measurement belongs to.
type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// Triplet names the three landmarks a side's measurement uses. The moving
// vector runs Pivot->Distal; Proximal anchors the segment and participates
// in the visibility check only.
type Triplet struct {
	Proximal int `json:"proximal"`
	Pivot    int `json:"pivot"`
	Distal   int `json:"distal"`
}

func (t Triplet) validate() error {
	for _, idx := range []int{t.Proximal, t.Pivot, t.Distal} {
		if idx < 0 || idx >= pose.NumLandmarks {
			return fmt.Errorf("landmark index %d out of range", idx)
		}
	}
	if t.Pivot == t.Distal {
		return fmt.Errorf("pivot and distal landmarks must differ")
	}
	return nil
}

// Band is one classification threshold: a final ROM strictly above Above
// earns Label, unless a higher band already claimed it.
type Band struct {
	Label string  `json:"label"`
	Above float64 `json:"above"`
}

// Bands is an ordered threshold table, highest first.
type Bands []Band

// Classify maps a final ROM magnitude to a band label by threshold lookup.
func (b Bands) Classify(romDegrees float64) string {
	for _, band := range b {
		if romDegrees > band.Above {
			return band.Label
		}
	}
	if len(b) == 0 {
		return "unknown"
	}
	return b[len(b)-1].Label
}

// Range bounds the anatomically valid ROM for an exercise.
type Range struct {
	MinDegrees float64 `json:"min_degrees"`
	MaxDegrees float64 `json:"max_degrees"`
}

// Definition is the immutable configuration for one (joint, movement) pair.
type Definition struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Joint    string `json:"joint"`
	Movement string `json:"movement"`

	RequiredOrientation orientation.State `json:"required_orientation"`

	// Sides maps each measured side to its landmark triplet. Bilateral
	// exercises carry both sides; each side is measured independently.
	Sides map[Side]Triplet `json:"sides"`

	ValidRange Range `json:"valid_range"`

	// Direction labels for the signed angle: positive cross product reads
	// PositiveLabel on the goniometer display.
	PositiveLabel string `json:"positive_label"`
	NegativeLabel string `json:"negative_label"`

	PositioningTimeoutSeconds int `json:"positioning_timeout_seconds"`
	CalibrationSeconds        int `json:"calibration_seconds"`
	MeasurementSeconds        int `json:"measurement_seconds"`

	Bands Bands `json:"bands"`
}

// Bilateral reports whether the exercise measures both sides.
func (d *Definition) Bilateral() bool {
	return len(d.Sides) > 1
}

// SideOrder returns the measured sides in stable order (left before right).
func (d *Definition) SideOrder() []Side {
	sides := make([]Side, 0, len(d.Sides))
	for s := range d.Sides {
		sides = append(sides, s)
	}
	sort.Slice(sides, func(i, j int) bool { return sides[i] < sides[j] })
	return sides
}

// PositioningTimeout returns the bounded wait for orientation confirmation.
func (d *Definition) PositioningTimeout() time.Duration {
	return time.Duration(d.PositioningTimeoutSeconds) * time.Second
}

// CalibrationWindow returns the neutral-hold countdown duration.
func (d *Definition) CalibrationWindow() time.Duration {
	return time.Duration(d.CalibrationSeconds) * time.Second
}

// MeasurementWindow returns the bounded capture window duration.
func (d *Definition) MeasurementWindow() time.Duration {
	return time.Duration(d.MeasurementSeconds) * time.Second
}

func (d *Definition) validate() error {
	if d.ID == "" {
		return fmt.Errorf("definition missing id")
	}
	if len(d.Sides) == 0 {
		return fmt.Errorf("exercise %s: no measured sides", d.ID)
	}
	for side, triplet := range d.Sides {
		if side != Left && side != Right {
			return fmt.Errorf("exercise %s: unknown side %q", d.ID, side)
		}
		if err := triplet.validate(); err != nil {
			return fmt.Errorf("exercise %s side %s: %w", d.ID, side, err)
		}
	}
	switch d.RequiredOrientation {
	case orientation.Sagittal, orientation.Frontal:
	default:
		return fmt.Errorf("exercise %s: required orientation must be sagittal or frontal, got %q",
			d.ID, d.RequiredOrientation)
	}
	if d.ValidRange.MaxDegrees <= d.ValidRange.MinDegrees {
		return fmt.Errorf("exercise %s: invalid ROM range %+v", d.ID, d.ValidRange)
	}
	if d.PositioningTimeoutSeconds <= 0 || d.CalibrationSeconds <= 0 || d.MeasurementSeconds <= 0 {
		return fmt.Errorf("exercise %s: phase durations must be positive", d.ID)
	}
	if len(d.Bands) == 0 {
		return fmt.Errorf("exercise %s: no classification bands", d.ID)
	}
	for i := 1; i < len(d.Bands); i++ {
		if d.Bands[i].Above >= d.Bands[i-1].Above {
			return fmt.Errorf("exercise %s: bands must be ordered highest threshold first", d.ID)
		}
	}
	return nil
}

// Registry holds the loaded definitions, keyed by ID.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

// ErrUnknownExercise marks a lookup for an id the registry does not hold.
var ErrUnknownExercise = errors.New("unknown exercise")

// Get returns the definition for id, or an error naming the unknown id.
func (r *Registry) Get(id string) (*Definition, error) {
	def, ok := r.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExercise, id)
	}
	return def, nil
}

// All returns every definition in file order.
func (r *Registry) All() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

func parseRegistry(data []byte) (*Registry, error) {
	var file struct {
		Exercises []*Definition `json:"exercises"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse exercise config: %w", err)
	}
	if len(file.Exercises) == 0 {
		return nil, fmt.Errorf("exercise config contains no exercises")
	}

	r := &Registry{defs: make(map[string]*Definition, len(file.Exercises))}
	for _, def := range file.Exercises {
		if err := def.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate exercise id %q", def.ID)
		}
		r.defs[def.ID] = def
		r.order = append(r.order, def.ID)
	}
	return r, nil
}

// DefaultRegistry loads the embedded exercise definitions.
func DefaultRegistry() (*Registry, error) {
	data, err := defaultsFS.ReadFile("exercises.defaults.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded exercise defaults: %w", err)
	}
	return parseRegistry(data)
}

// LoadRegistry loads exercise definitions from a JSON file on disk,
// overriding the embedded defaults entirely.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exercise config: %w", err)
	}
	return parseRegistry(data)
}
