package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/luxsim/helio/pkg/pipeline"
)

// writeResponse renders the final accumulator for the endpoint. Encode
// responses pass the raw downstream bytes through; everything else is a
// JSON object with "status": "success" plus the endpoint's result keys.
func writeResponse(w http.ResponseWriter, endpoint pipeline.Endpoint, acc *pipeline.Accumulator) {
	if acc.Image != nil && acc.Result == nil {
		writeBinary(w, acc.Image)
		return
	}

	payload := map[string]interface{}{"status": "success"}
	switch endpoint {
	case pipeline.EndpointSimulate, pipeline.EndpointMerge:
		payload["result"] = acc.Result
		payload["mask"] = acc.RoomMask
	case pipeline.EndpointObstruction:
		payload["horizon"] = unwrapAngles(acc.HorizonList)
		payload["zenith"] = unwrapAngles(acc.ZenithList)
	case pipeline.EndpointHorizon:
		payload["horizon"] = unwrapAngles(acc.HorizonList)
	case pipeline.EndpointZenith:
		payload["zenith"] = unwrapAngles(acc.ZenithList)
	case pipeline.EndpointObstructionAll:
		payload["horizon"] = acc.Horizon
		payload["zenith"] = acc.Zenith
	case pipeline.EndpointDirection:
		payload["direction_angle"] = acc.DirectionAngle
	case pipeline.EndpointReferencePoint:
		payload["reference_point"] = acc.ReferencePoint
	case pipeline.EndpointStats:
		for key, value := range acc.Stats {
			payload[key] = value
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// writeBinary passes encoder output through. NPZ archives keep their ZIP
// container type; anything else is served as PNG.
func writeBinary(w http.ResponseWriter, data []byte) {
	contentType := "image/png"
	if bytes.HasPrefix(data, []byte("PK")) {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// unwrapAngles collapses a single-sample angle array to its scalar, which
// is how the single-point endpoints report one observation.
func unwrapAngles(values []float64) interface{} {
	if len(values) == 1 {
		return values[0]
	}
	return values
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
