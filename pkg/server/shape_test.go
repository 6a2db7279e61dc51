package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxsim/helio/pkg/pipeline"
)

func decodeShaped(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestShapeBinaryNPZ(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.Image = []byte("PK\x03\x04archive")

	rec := httptest.NewRecorder()
	writeResponse(rec, pipeline.EndpointEncode, acc)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, acc.Image, rec.Body.Bytes())
}

func TestShapeBinaryPNG(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.Image = []byte("\x89PNG\r\n\x1a\npixels")

	rec := httptest.NewRecorder()
	writeResponse(rec, pipeline.EndpointEncodeRaw, acc)

	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, acc.Image, rec.Body.Bytes())
}

func TestShapeSimulateJSON(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.Image = []byte("\x89PNG\r\n\x1a\npixels")
	acc.Result = [][]float64{{1.5, 2.5}}
	acc.RoomMask = [][]int{{1, 0}}

	rec := httptest.NewRecorder()
	writeResponse(rec, pipeline.EndpointSimulate, acc)

	// A present result forces JSON even though an encoded image exists.
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	payload := decodeShaped(t, rec)
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, []interface{}{[]interface{}{1.5, 2.5}}, payload["result"])
	assert.Equal(t, []interface{}{[]interface{}{1.0, 0.0}}, payload["mask"])
}

func TestShapeObstructionUnwrapsSingleton(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.HorizonList = []float64{30.5}
	acc.ZenithList = []float64{15.25}

	payload := decodeShaped(t, shapeRecorder(pipeline.EndpointObstruction, acc))
	assert.Equal(t, 30.5, payload["horizon"])
	assert.Equal(t, 15.25, payload["zenith"])
}

func TestShapeObstructionKeepsFullArrays(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.HorizonList = []float64{1, 2, 3}
	acc.ZenithList = []float64{4, 5, 6}

	payload := decodeShaped(t, shapeRecorder(pipeline.EndpointObstruction, acc))
	assert.Len(t, payload["horizon"], 3)
	assert.Len(t, payload["zenith"], 3)
}

func TestShapeHorizonAndZenithSelectTheirKey(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.HorizonList = []float64{30.5}
	acc.ZenithList = []float64{15.25}

	payload := decodeShaped(t, shapeRecorder(pipeline.EndpointHorizon, acc))
	assert.Contains(t, payload, "horizon")
	assert.NotContains(t, payload, "zenith")

	payload = decodeShaped(t, shapeRecorder(pipeline.EndpointZenith, acc))
	assert.Contains(t, payload, "zenith")
	assert.NotContains(t, payload, "horizon")
}

func TestShapeObstructionAllEmitsWindowMaps(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.Horizon["w1"] = []float64{1, 2}
	acc.Horizon["w2"] = []float64{3, 4}
	acc.Zenith["w1"] = []float64{5, 6}
	acc.Zenith["w2"] = []float64{7, 8}

	payload := decodeShaped(t, shapeRecorder(pipeline.EndpointObstructionAll, acc))
	horizon, ok := payload["horizon"].(map[string]interface{})
	require.True(t, ok, "horizon is %T", payload["horizon"])
	assert.Len(t, horizon, 2)
}

func TestShapeDirectionAndReferencePoint(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.DirectionAngle["w1"] = 1.5708
	acc.ReferencePoint["w1"] = pipeline.Point{X: 1, Y: 2, Z: 1.2}

	payload := decodeShaped(t, shapeRecorder(pipeline.EndpointDirection, acc))
	angles, ok := payload["direction_angle"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.5708, angles["w1"])

	payload = decodeShaped(t, shapeRecorder(pipeline.EndpointReferencePoint, acc))
	points, ok := payload["reference_point"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, points, "w1")
}

func TestShapeStatsSplicesMetrics(t *testing.T) {
	acc := pipeline.NewAccumulator()
	acc.Stats = map[string]float64{
		"min": 0.1, "max": 9.5, "mean": 3.2, "median": 2.9, "valid_area": 0.84,
	}

	payload := decodeShaped(t, shapeRecorder(pipeline.EndpointStats, acc))
	assert.Equal(t, "success", payload["status"])
	assert.Equal(t, 0.1, payload["min"])
	assert.Equal(t, 9.5, payload["max"])
	assert.Equal(t, 0.84, payload["valid_area"])
}

func shapeRecorder(endpoint pipeline.Endpoint, acc *pipeline.Accumulator) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	writeResponse(rec, endpoint, acc)
	return rec
}
