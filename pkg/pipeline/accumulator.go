// Package pipeline drives room-description requests through the ordered
// downstream stages: reference point, direction angle, obstruction,
// encoding, model inference, merging and statistics. Each stage derives its
// outbound requests from a shared accumulator and merges its responses back
// in; fan-out within a stage runs one task per window.
package pipeline

import (
	"encoding/json"
	"sort"
)

// Point is a reference point in room coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Window is one window's geometry as supplied by the client. Horizon,
// Zenith and DirectionAngle are only set when the client pre-computed them;
// the parser lifts them into the accumulator maps.
type Window struct {
	X1               float64   `json:"x1"`
	Y1               float64   `json:"y1"`
	Z1               float64   `json:"z1"`
	X2               float64   `json:"x2"`
	Y2               float64   `json:"y2"`
	Z2               float64   `json:"z2"`
	WindowFrameRatio float64   `json:"window_frame_ratio"`
	Horizon          []float64 `json:"horizon,omitempty"`
	Zenith           []float64 `json:"zenith,omitempty"`
	DirectionAngle   *float64  `json:"direction_angle,omitempty"`
}

// Accumulator is the request-local state threaded through the pipeline.
// It is only ever mutated on the coordinating goroutine: fan-out tasks
// return deltas, and the executor merges them after fan-in.
type Accumulator struct {
	// Inbound fields.
	ModelType               string
	Mesh                    []json.RawMessage
	RoomPolygon             []json.RawMessage
	Windows                 map[string]*Window
	HeightRoofOverFloor     *float64
	FloorHeightAboveTerrain *float64

	// Direct obstruction inputs for the single-point endpoints, where the
	// client supplies the observation point instead of window geometry.
	X, Y, Z        *float64
	DirectionValue *float64

	// Inbound payloads for the aggregation-only endpoints.
	DFValues [][]float64

	// Stage-produced state. Map fields deep-merge by window name.
	ReferencePoint map[string]Point
	DirectionAngle map[string]float64
	Horizon        map[string][]float64
	Zenith         map[string][]float64

	// Single-point obstruction results (no window key to merge under).
	HorizonList []float64
	ZenithList  []float64

	// Image holds the last encoded PNG (the historical single-image slot);
	// Images keeps every window's encoding so the model stage can fan out.
	Image  []byte
	Images map[string][]byte

	Mask        map[string][][]int
	Simulations map[string][][]float64

	// Room-level aggregates from the merger and stats services.
	Result   [][]float64
	RoomMask [][]int
	Stats    map[string]float64
}

// NewAccumulator returns an empty accumulator with all maps initialized.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		Windows:        make(map[string]*Window),
		ReferencePoint: make(map[string]Point),
		DirectionAngle: make(map[string]float64),
		Horizon:        make(map[string][]float64),
		Zenith:         make(map[string][]float64),
		Images:         make(map[string][]byte),
		Mask:           make(map[string][][]int),
		Simulations:    make(map[string][][]float64),
	}
}

// WindowNames returns the window names in sorted order, so fan-out request
// order is deterministic.
func (a *Accumulator) WindowNames() []string {
	names := make([]string, 0, len(a.Windows))
	for name := range a.Windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delta is one task's contribution to the accumulator. Window carries the
// fan-out key the task ran under, empty for single requests.
type Delta struct {
	Window string

	ReferencePoint map[string]Point
	DirectionAngle map[string]float64
	Horizon        map[string][]float64
	Zenith         map[string][]float64
	HorizonList    []float64
	ZenithList     []float64
	Image          []byte
	Masks          map[string][][]int
	Simulations    map[string][][]float64
	Result         [][]float64
	RoomMask       [][]int
	Stats          map[string]float64
}

// Merge folds a delta into the accumulator. Per-window maps merge by key,
// scalar and room-level fields overwrite. The image overwrites the single
// slot and, when the delta is window-keyed, is also retained per window.
func (a *Accumulator) Merge(d *Delta) {
	if d == nil {
		return
	}
	for name, point := range d.ReferencePoint {
		a.ReferencePoint[name] = point
	}
	for name, angle := range d.DirectionAngle {
		a.DirectionAngle[name] = angle
	}
	for name, horizon := range d.Horizon {
		a.Horizon[name] = horizon
	}
	for name, zenith := range d.Zenith {
		a.Zenith[name] = zenith
	}
	if d.HorizonList != nil {
		a.HorizonList = d.HorizonList
	}
	if d.ZenithList != nil {
		a.ZenithList = d.ZenithList
	}
	if d.Image != nil {
		a.Image = d.Image
		if d.Window != "" {
			a.Images[d.Window] = d.Image
		}
	}
	for name, mask := range d.Masks {
		a.Mask[name] = mask
	}
	for name, sim := range d.Simulations {
		a.Simulations[name] = sim
	}
	if d.Result != nil {
		a.Result = d.Result
	}
	if d.RoomMask != nil {
		a.RoomMask = d.RoomMask
	}
	if d.Stats != nil {
		a.Stats = d.Stats
	}
}

// wireWindow renders a window's geometry as the downstream wire object,
// with optional extra fields layered on top.
func (a *Accumulator) wireWindow(name string, extra map[string]interface{}) map[string]interface{} {
	w := a.Windows[name]
	out := map[string]interface{}{
		"x1":                 w.X1,
		"y1":                 w.Y1,
		"z1":                 w.Z1,
		"x2":                 w.X2,
		"y2":                 w.Y2,
		"z2":                 w.Z2,
		"window_frame_ratio": w.WindowFrameRatio,
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}
