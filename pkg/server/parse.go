package server

import (
	"bytes"
	"encoding/json"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/pipeline"
)

// obstructionArrayLen is the fixed sample count of the downstream
// obstruction arrays. Client-supplied horizon and zenith arrays must match
// it exactly.
const obstructionArrayLen = 64

// requestBody is the superset of inbound JSON fields across all endpoints.
// Which fields are required, and whether the room layout lives at the top
// level or under "parameters", is decided per endpoint by parseRequest.
type requestBody struct {
	ModelType  *string           `json:"model_type"`
	Mesh       []json.RawMessage `json:"mesh"`
	Parameters json.RawMessage   `json:"parameters"`

	// Top-level layout fields for the geometry and merge endpoints.
	RoomPolygon []json.RawMessage          `json:"room_polygon"`
	Windows     map[string]json.RawMessage `json:"windows"`
	Simulations map[string]json.RawMessage `json:"simulations"`
	Simulation  map[string]json.RawMessage `json:"simulation"`

	// Single-point obstruction inputs.
	X              *float64 `json:"x"`
	Y              *float64 `json:"y"`
	Z              *float64 `json:"z"`
	DirectionAngle *float64 `json:"direction_angle"`

	// Aggregation-only inputs.
	DFValues [][]float64 `json:"df_values"`
	Mask     [][]int     `json:"mask"`
}

// parametersBody is the room description nested under "parameters" on the
// model-bound endpoints.
type parametersBody struct {
	RoomPolygon             []json.RawMessage          `json:"room_polygon"`
	Windows                 map[string]json.RawMessage `json:"windows"`
	HeightRoofOverFloor     *float64                   `json:"height_roof_over_floor"`
	FloorHeightAboveTerrain *float64                   `json:"floor_height_above_terrain"`
}

type windowBody struct {
	X1               *float64  `json:"x1"`
	Y1               *float64  `json:"y1"`
	Z1               *float64  `json:"z1"`
	X2               *float64  `json:"x2"`
	Y2               *float64  `json:"y2"`
	Z2               *float64  `json:"z2"`
	WindowFrameRatio *float64  `json:"window_frame_ratio"`
	Horizon          []float64 `json:"horizon"`
	Zenith           []float64 `json:"zenith"`
	DirectionAngle   *float64  `json:"direction_angle"`
}

type simulationBody struct {
	DFValues [][]float64 `json:"df_values"`
	Mask     [][]int     `json:"mask"`
}

// parseRequest validates the inbound body against the endpoint's required
// fields and builds the initial pipeline accumulator. Every failure here is
// a validation error; no downstream service is consulted.
func parseRequest(endpoint pipeline.Endpoint, data []byte) (*pipeline.Accumulator, error) {
	body, err := decodeBody(data)
	if err != nil {
		return nil, err
	}
	acc := pipeline.NewAccumulator()

	switch endpoint {
	case pipeline.EndpointSimulate:
		return acc, parseModelRequest(body, acc, modelRules{requireMesh: true, requireHeights: true})
	case pipeline.EndpointEncode:
		return acc, parseModelRequest(body, acc, modelRules{requireMesh: true})
	case pipeline.EndpointEncodeRaw:
		return acc, parseModelRequest(body, acc, modelRules{requireAngles: true})
	case pipeline.EndpointObstruction, pipeline.EndpointHorizon, pipeline.EndpointZenith:
		return acc, parsePointRequest(body, acc)
	case pipeline.EndpointObstructionAll:
		return acc, parseLayoutRequest(body, acc, true)
	case pipeline.EndpointDirection, pipeline.EndpointReferencePoint:
		return acc, parseLayoutRequest(body, acc, false)
	case pipeline.EndpointMerge:
		return acc, parseMergeRequest(body, acc)
	case pipeline.EndpointStats:
		return acc, parseStatsRequest(body, acc)
	default:
		return nil, errdefs.New(errdefs.KindInternal, "no parser for endpoint %q", endpoint)
	}
}

func decodeBody(data []byte) (*requestBody, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errdefs.New(errdefs.KindValidation, "request body is empty")
	}
	var body requestBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, err, "malformed JSON body")
	}
	return &body, nil
}

// modelRules selects which parts of a model-bound request are mandatory.
type modelRules struct {
	requireMesh    bool
	requireHeights bool

	// requireAngles demands client-supplied horizon and zenith arrays on
	// every window, for the encode path that never calls the obstruction
	// service.
	requireAngles bool
}

func parseModelRequest(body *requestBody, acc *pipeline.Accumulator, rules modelRules) error {
	if body.ModelType == nil || *body.ModelType == "" {
		return missingField("model_type")
	}
	acc.ModelType = *body.ModelType

	if err := parseMesh(body.Mesh, acc, rules.requireMesh); err != nil {
		return err
	}

	if len(body.Parameters) == 0 {
		return missingField("parameters")
	}
	var params parametersBody
	if err := json.Unmarshal(body.Parameters, &params); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, err, `"parameters" must be an object`)
	}

	if err := parsePolygon(params.RoomPolygon, acc); err != nil {
		return err
	}
	if err := parseWindows(params.Windows, acc, rules.requireAngles); err != nil {
		return err
	}

	if rules.requireHeights {
		if params.HeightRoofOverFloor == nil {
			return missingField("height_roof_over_floor")
		}
		if params.FloorHeightAboveTerrain == nil {
			return missingField("floor_height_above_terrain")
		}
	}
	acc.HeightRoofOverFloor = params.HeightRoofOverFloor
	acc.FloorHeightAboveTerrain = params.FloorHeightAboveTerrain
	return nil
}

// parsePointRequest reads the single-observation obstruction inputs, where
// the client supplies the point directly instead of window geometry.
func parsePointRequest(body *requestBody, acc *pipeline.Accumulator) error {
	coordinates := []struct {
		name  string
		value *float64
	}{
		{"x", body.X},
		{"y", body.Y},
		{"z", body.Z},
		{"direction_angle", body.DirectionAngle},
	}
	for _, c := range coordinates {
		if c.value == nil {
			return missingField(c.name)
		}
	}
	if err := parseMesh(body.Mesh, acc, true); err != nil {
		return err
	}
	acc.X, acc.Y, acc.Z = body.X, body.Y, body.Z
	acc.DirectionValue = body.DirectionAngle
	return nil
}

// parseLayoutRequest reads the top-level room layout used by the geometry,
// parallel obstruction and merge endpoints.
func parseLayoutRequest(body *requestBody, acc *pipeline.Accumulator, requireMesh bool) error {
	if err := parsePolygon(body.RoomPolygon, acc); err != nil {
		return err
	}
	if err := parseWindows(body.Windows, acc, false); err != nil {
		return err
	}
	return parseMesh(body.Mesh, acc, requireMesh)
}

// parseMergeRequest reads the layout plus per-window simulations.
// "simulation" is accepted as a legacy alias for "simulations".
func parseMergeRequest(body *requestBody, acc *pipeline.Accumulator) error {
	if err := parseLayoutRequest(body, acc, false); err != nil {
		return err
	}

	simulations := body.Simulations
	if simulations == nil {
		simulations = body.Simulation
	}
	if len(simulations) == 0 {
		return missingField("simulations")
	}
	for name, raw := range simulations {
		var sim simulationBody
		if err := json.Unmarshal(raw, &sim); err != nil {
			return errdefs.Wrap(errdefs.KindValidation, err, "simulation %q must be an object", name)
		}
		if sim.DFValues == nil {
			return errdefs.New(errdefs.KindValidation,
				`simulation %q missing required field "df_values"`, name)
		}
		acc.Simulations[name] = sim.DFValues
		if sim.Mask != nil {
			acc.Mask[name] = sim.Mask
		}
	}
	return nil
}

func parseStatsRequest(body *requestBody, acc *pipeline.Accumulator) error {
	if body.DFValues == nil {
		return missingField("df_values")
	}
	if body.Mask == nil {
		return missingField("mask")
	}
	acc.DFValues = body.DFValues
	acc.RoomMask = body.Mask
	return nil
}

// parseMesh checks the triangle-list layout: a flat point sequence whose
// length is a multiple of 3. Points themselves pass through opaque.
func parseMesh(mesh []json.RawMessage, acc *pipeline.Accumulator, required bool) error {
	if mesh == nil {
		if required {
			return missingField("mesh")
		}
		return nil
	}
	if len(mesh)%3 != 0 {
		return errdefs.New(errdefs.KindValidation,
			`"mesh" length must be a multiple of 3, got %d`, len(mesh))
	}
	acc.Mesh = mesh
	return nil
}

func parsePolygon(polygon []json.RawMessage, acc *pipeline.Accumulator) error {
	if polygon == nil {
		return missingField("room_polygon")
	}
	if len(polygon) < 3 {
		return errdefs.New(errdefs.KindValidation,
			`"room_polygon" needs at least 3 points, got %d`, len(polygon))
	}
	for i, raw := range polygon {
		var point []float64
		if err := json.Unmarshal(raw, &point); err != nil || len(point) != 2 {
			return errdefs.New(errdefs.KindValidation,
				`"room_polygon"[%d] must be a 2D point`, i)
		}
	}
	acc.RoomPolygon = polygon
	return nil
}

// windowFields orders the required window scalars for stable error messages.
var windowFields = []string{"x1", "y1", "z1", "x2", "y2", "z2", "window_frame_ratio"}

// parseWindows validates each window's geometry and lifts any client-supplied
// horizon, zenith and direction_angle values into the accumulator maps so
// the corresponding stages skip those windows.
func parseWindows(windows map[string]json.RawMessage, acc *pipeline.Accumulator, requireAngles bool) error {
	if windows == nil {
		return missingField("windows")
	}
	if len(windows) == 0 {
		return errdefs.New(errdefs.KindValidation, `"windows" must not be empty`)
	}
	for name, raw := range windows {
		var w windowBody
		if err := json.Unmarshal(raw, &w); err != nil {
			return errdefs.Wrap(errdefs.KindValidation, err, "window %q must be an object", name)
		}

		values := []*float64{w.X1, w.Y1, w.Z1, w.X2, w.Y2, w.Z2, w.WindowFrameRatio}
		for i, value := range values {
			if value == nil {
				return errdefs.New(errdefs.KindValidation,
					"window %q missing required field %q", name, windowFields[i])
			}
		}
		if *w.WindowFrameRatio <= 0 || *w.WindowFrameRatio > 1 {
			return errdefs.New(errdefs.KindValidation,
				"window %q window_frame_ratio must be in (0, 1], got %v", name, *w.WindowFrameRatio)
		}
		if err := checkAngles(name, "horizon", w.Horizon); err != nil {
			return err
		}
		if err := checkAngles(name, "zenith", w.Zenith); err != nil {
			return err
		}
		if requireAngles && (w.Horizon == nil || w.Zenith == nil) {
			return errdefs.New(errdefs.KindValidation,
				"window %q needs precomputed horizon and zenith arrays", name)
		}

		acc.Windows[name] = &pipeline.Window{
			X1: *w.X1, Y1: *w.Y1, Z1: *w.Z1,
			X2: *w.X2, Y2: *w.Y2, Z2: *w.Z2,
			WindowFrameRatio: *w.WindowFrameRatio,
			Horizon:          w.Horizon,
			Zenith:           w.Zenith,
			DirectionAngle:   w.DirectionAngle,
		}
		if len(w.Horizon) > 0 {
			acc.Horizon[name] = w.Horizon
		}
		if len(w.Zenith) > 0 {
			acc.Zenith[name] = w.Zenith
		}
		if w.DirectionAngle != nil {
			acc.DirectionAngle[name] = *w.DirectionAngle
		}
	}
	return nil
}

func checkAngles(window, field string, values []float64) error {
	if values == nil {
		return nil
	}
	if len(values) != obstructionArrayLen {
		return errdefs.New(errdefs.KindValidation,
			"window %q %s must have exactly %d values, got %d",
			window, field, obstructionArrayLen, len(values))
	}
	return nil
}

func missingField(name string) error {
	return errdefs.New(errdefs.KindValidation, "missing required field %q", name)
}
