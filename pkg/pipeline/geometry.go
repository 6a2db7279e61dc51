package pipeline

import (
	"context"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/services"
)

// Downstream paths on the obstruction service, which owns the room
// geometry math alongside the obstruction sampling itself.
const (
	pathReferencePoint = "/get-reference-point"
	pathDirection      = "/calculate-direction"
)

// referencePointStage asks the obstruction service for each window's
// observation point. One request per window.
type referencePointStage struct {
	svc *services.Service
}

func (s *referencePointStage) Name() string { return StageReferencePoint }

func (s *referencePointStage) Parse(acc *Accumulator) ([]*StageRequest, error) {
	reqs := make([]*StageRequest, 0, len(acc.Windows))
	for _, name := range acc.WindowNames() {
		reqs = append(reqs, &StageRequest{
			Window: name,
			Body: map[string]interface{}{
				"room_polygon": acc.RoomPolygon,
				"windows": map[string]interface{}{
					name: acc.wireWindow(name, nil),
				},
			},
		})
	}
	return reqs, nil
}

func (s *referencePointStage) Execute(ctx context.Context, req *StageRequest) (*Delta, error) {
	var out struct {
		ReferencePoint map[string]Point `json:"reference_point"`
	}
	if err := s.svc.Client.PostJSON(ctx, s.svc.Endpoint(pathReferencePoint), req.Body, &out); err != nil {
		return nil, err
	}
	if len(out.ReferencePoint) == 0 {
		return nil, errdefs.New(errdefs.KindResponse, "no reference point for window %q", req.Window)
	}
	return &Delta{Window: req.Window, ReferencePoint: out.ReferencePoint}, nil
}

// directionAngleStage asks the obstruction service for each window's facade
// direction in radians. One request per window.
type directionAngleStage struct {
	svc *services.Service
}

func (s *directionAngleStage) Name() string { return StageDirectionAngle }

func (s *directionAngleStage) Parse(acc *Accumulator) ([]*StageRequest, error) {
	reqs := make([]*StageRequest, 0, len(acc.Windows))
	for _, name := range acc.WindowNames() {
		reqs = append(reqs, &StageRequest{
			Window: name,
			Body: map[string]interface{}{
				"room_polygon": acc.RoomPolygon,
				"windows": map[string]interface{}{
					name: acc.wireWindow(name, nil),
				},
			},
		})
	}
	return reqs, nil
}

func (s *directionAngleStage) Execute(ctx context.Context, req *StageRequest) (*Delta, error) {
	var out struct {
		DirectionAngle map[string]float64 `json:"direction_angle"`
	}
	if err := s.svc.Client.PostJSON(ctx, s.svc.Endpoint(pathDirection), req.Body, &out); err != nil {
		return nil, err
	}
	if len(out.DirectionAngle) == 0 {
		return nil, errdefs.New(errdefs.KindResponse, "no direction angle for window %q", req.Window)
	}
	return &Delta{Window: req.Window, DirectionAngle: out.DirectionAngle}, nil
}
