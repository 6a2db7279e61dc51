package server

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/pipeline"
)

func angleArray(n int) string {
	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprintf("%d.5", i%90)
	}
	return "[" + strings.Join(values, ",") + "]"
}

func simulateBody() string {
	return `{
		"model_type": "default",
		"mesh": [[0,0,0],[1,0,0],[0,1,0]],
		"parameters": {
			"room_polygon": [[0,0],[0,7],[-3,7],[-3,0]],
			"windows": {
				"w1": {"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4, "window_frame_ratio": 0.9}
			},
			"height_roof_over_floor": 3.2,
			"floor_height_above_terrain": 12.3
		}
	}`
}

func TestParseSimulateRequest(t *testing.T) {
	acc, err := parseRequest(pipeline.EndpointSimulate, []byte(simulateBody()))
	require.NoError(t, err)

	assert.Equal(t, "default", acc.ModelType)
	assert.Len(t, acc.Mesh, 3)
	assert.Len(t, acc.RoomPolygon, 4)
	require.Contains(t, acc.Windows, "w1")
	assert.Equal(t, -2.0, acc.Windows["w1"].X1)
	assert.Equal(t, 0.9, acc.Windows["w1"].WindowFrameRatio)
	require.NotNil(t, acc.HeightRoofOverFloor)
	assert.Equal(t, 3.2, *acc.HeightRoofOverFloor)
	require.NotNil(t, acc.FloorHeightAboveTerrain)
	assert.Equal(t, 12.3, *acc.FloorHeightAboveTerrain)
}

func TestParseLiftsPrecomputedArrays(t *testing.T) {
	body := fmt.Sprintf(`{
		"model_type": "default",
		"parameters": {
			"room_polygon": [[0,0],[0,7],[-3,7]],
			"windows": {
				"w1": {
					"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4,
					"window_frame_ratio": 0.9,
					"horizon": %s,
					"zenith": %s,
					"direction_angle": 1.5708
				}
			}
		}
	}`, angleArray(64), angleArray(64))

	acc, err := parseRequest(pipeline.EndpointEncodeRaw, []byte(body))
	require.NoError(t, err)

	assert.Len(t, acc.Horizon["w1"], 64)
	assert.Len(t, acc.Zenith["w1"], 64)
	assert.Equal(t, 1.5708, acc.DirectionAngle["w1"])
}

func TestParsePointRequest(t *testing.T) {
	body := `{"x": 1.5, "y": -2, "z": 1.2, "direction_angle": 0.7, "mesh": []}`

	acc, err := parseRequest(pipeline.EndpointObstruction, []byte(body))
	require.NoError(t, err)

	require.NotNil(t, acc.X)
	assert.Equal(t, 1.5, *acc.X)
	require.NotNil(t, acc.DirectionValue)
	assert.Equal(t, 0.7, *acc.DirectionValue)
	assert.NotNil(t, acc.Mesh)
	assert.Empty(t, acc.Mesh)
}

func TestParseMergeAlias(t *testing.T) {
	body := `{
		"room_polygon": [[0,0],[0,7],[-3,7]],
		"windows": {
			"w1": {"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4, "window_frame_ratio": 0.9}
		},
		"simulation": {
			"w1": {"df_values": [[1.5, 2.5]], "mask": [[1, 0]]}
		}
	}`

	acc, err := parseRequest(pipeline.EndpointMerge, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{1.5, 2.5}}, acc.Simulations["w1"])
	assert.Equal(t, [][]int{{1, 0}}, acc.Mask["w1"])
}

func TestParseStatsRequest(t *testing.T) {
	body := `{"df_values": [[0.5, 1.5], [2.5, 3.5]], "mask": [[1, 1], [1, 0]]}`

	acc, err := parseRequest(pipeline.EndpointStats, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0.5, 1.5}, {2.5, 3.5}}, acc.DFValues)
	assert.Equal(t, [][]int{{1, 1}, {1, 0}}, acc.RoomMask)
}

func TestParseValidationErrors(t *testing.T) {
	window := `{"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4, "window_frame_ratio": 0.9}`

	tests := []struct {
		name     string
		endpoint pipeline.Endpoint
		body     string
		wantMsg  string
	}{
		{
			name:     "empty body",
			endpoint: pipeline.EndpointSimulate,
			body:     "",
			wantMsg:  "body is empty",
		},
		{
			name:     "malformed JSON",
			endpoint: pipeline.EndpointSimulate,
			body:     `{"model_type": `,
			wantMsg:  "malformed JSON",
		},
		{
			name:     "missing model_type",
			endpoint: pipeline.EndpointSimulate,
			body:     `{"mesh": [], "parameters": {}}`,
			wantMsg:  `"model_type"`,
		},
		{
			name:     "parameters not an object",
			endpoint: pipeline.EndpointSimulate,
			body:     `{"model_type": "default", "mesh": [], "parameters": "nope"}`,
			wantMsg:  `"parameters" must be an object`,
		},
		{
			name:     "mesh not a multiple of 3",
			endpoint: pipeline.EndpointSimulate,
			body:     `{"model_type": "default", "mesh": [[0,0,0],[1,0,0]], "parameters": {}}`,
			wantMsg:  "multiple of 3",
		},
		{
			name:     "missing windows",
			endpoint: pipeline.EndpointSimulate,
			body:     `{"model_type": "default", "mesh": [], "parameters": {"room_polygon": [[0,0],[0,7],[-3,7]]}}`,
			wantMsg:  `"windows"`,
		},
		{
			name:     "zero windows",
			endpoint: pipeline.EndpointSimulate,
			body:     `{"model_type": "default", "mesh": [], "parameters": {"room_polygon": [[0,0],[0,7],[-3,7]], "windows": {}}}`,
			wantMsg:  "must not be empty",
		},
		{
			name:     "window missing corner",
			endpoint: pipeline.EndpointDirection,
			body:     `{"room_polygon": [[0,0],[0,7],[-3,7]], "windows": {"w1": {"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "window_frame_ratio": 0.9}}}`,
			wantMsg:  `missing required field "z2"`,
		},
		{
			name:     "frame ratio zero",
			endpoint: pipeline.EndpointDirection,
			body:     `{"room_polygon": [[0,0],[0,7],[-3,7]], "windows": {"w1": {"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4, "window_frame_ratio": 0}}}`,
			wantMsg:  "window_frame_ratio",
		},
		{
			name:     "frame ratio above one",
			endpoint: pipeline.EndpointDirection,
			body:     `{"room_polygon": [[0,0],[0,7],[-3,7]], "windows": {"w1": {"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4, "window_frame_ratio": 1.5}}}`,
			wantMsg:  "window_frame_ratio",
		},
		{
			name:     "polygon too short",
			endpoint: pipeline.EndpointDirection,
			body:     `{"room_polygon": [[0,0],[0,7]], "windows": {"w1": ` + window + `}}`,
			wantMsg:  "at least 3 points",
		},
		{
			name:     "polygon point not 2D",
			endpoint: pipeline.EndpointDirection,
			body:     `{"room_polygon": [[0,0],[0,7],[-3,7,1]], "windows": {"w1": ` + window + `}}`,
			wantMsg:  "2D point",
		},
		{
			name:     "horizon wrong length",
			endpoint: pipeline.EndpointEncodeRaw,
			body: `{"model_type": "default", "parameters": {"room_polygon": [[0,0],[0,7],[-3,7]], "windows": {"w1": {"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4, "window_frame_ratio": 0.9, "horizon": [1,2,3], "zenith": ` +
				angleArray(64) + `}}}}`,
			wantMsg: "exactly 64 values",
		},
		{
			name:     "encode_raw without zenith",
			endpoint: pipeline.EndpointEncodeRaw,
			body: `{"model_type": "default", "parameters": {"room_polygon": [[0,0],[0,7],[-3,7]], "windows": {"w1": {"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4, "window_frame_ratio": 0.9, "horizon": ` +
				angleArray(64) + `}}}}`,
			wantMsg: "precomputed horizon and zenith",
		},
		{
			name:     "obstruction missing direction_angle",
			endpoint: pipeline.EndpointObstruction,
			body:     `{"x": 1, "y": 2, "z": 3, "mesh": []}`,
			wantMsg:  `"direction_angle"`,
		},
		{
			name:     "obstruction missing mesh",
			endpoint: pipeline.EndpointObstruction,
			body:     `{"x": 1, "y": 2, "z": 3, "direction_angle": 0.7}`,
			wantMsg:  `"mesh"`,
		},
		{
			name:     "merge missing simulations",
			endpoint: pipeline.EndpointMerge,
			body:     `{"room_polygon": [[0,0],[0,7],[-3,7]], "windows": {"w1": ` + window + `}}`,
			wantMsg:  `"simulations"`,
		},
		{
			name:     "merge simulation without df_values",
			endpoint: pipeline.EndpointMerge,
			body:     `{"room_polygon": [[0,0],[0,7],[-3,7]], "windows": {"w1": ` + window + `}, "simulations": {"w1": {"mask": [[1]]}}}`,
			wantMsg:  `"df_values"`,
		},
		{
			name:     "stats missing mask",
			endpoint: pipeline.EndpointStats,
			body:     `{"df_values": [[1.0]]}`,
			wantMsg:  `"mask"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRequest(tt.endpoint, []byte(tt.body))
			require.Error(t, err)
			assert.True(t, errdefs.IsKind(err, errdefs.KindValidation),
				"kind = %v, want validation", errdefs.AsError(err).Kind)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseSimulateRequiresHeights(t *testing.T) {
	body := `{
		"model_type": "default",
		"mesh": [],
		"parameters": {
			"room_polygon": [[0,0],[0,7],[-3,7]],
			"windows": {
				"w1": {"x1": -2, "y1": 7, "z1": 2.8, "x2": -0.4, "y2": 7.2, "z2": 5.4, "window_frame_ratio": 0.9}
			}
		}
	}`

	_, err := parseRequest(pipeline.EndpointSimulate, []byte(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "height_roof_over_floor")

	// The same layout is complete for /encode, which treats heights as
	// optional.
	_, err = parseRequest(pipeline.EndpointEncode, []byte(body))
	assert.NoError(t, err)
}
