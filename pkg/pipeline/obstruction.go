package pipeline

import (
	"context"
	"sort"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/services"
)

const (
	pathObstruction         = "/obstruction"
	pathObstructionParallel = "/obstruction_parallel"
)

// obstructionStage samples horizon and zenith obstruction angles around an
// observation point. In window mode it fans out one request per reference
// point computed upstream, skipping windows whose arrays the client already
// supplied. In point mode (x, y, z given directly) it sends one request.
type obstructionStage struct {
	svc *services.Service
}

func (s *obstructionStage) Name() string { return StageObstruction }

func (s *obstructionStage) Parse(acc *Accumulator) ([]*StageRequest, error) {
	if acc.X != nil {
		var direction float64
		if acc.DirectionValue != nil {
			direction = *acc.DirectionValue
		}
		return []*StageRequest{{
			Body: map[string]interface{}{
				"x":               *acc.X,
				"y":               *acc.Y,
				"z":               *acc.Z,
				"direction_angle": direction,
				"mesh":            acc.Mesh,
			},
		}}, nil
	}

	names := make([]string, 0, len(acc.ReferencePoint))
	for name := range acc.ReferencePoint {
		names = append(names, name)
	}
	sort.Strings(names)

	reqs := make([]*StageRequest, 0, len(names))
	for _, name := range names {
		// Client-supplied arrays make the sampling call redundant.
		if len(acc.Horizon[name]) > 0 && len(acc.Zenith[name]) > 0 {
			continue
		}
		point := acc.ReferencePoint[name]
		reqs = append(reqs, &StageRequest{
			Window: name,
			Body: map[string]interface{}{
				"x":               point.X,
				"y":               point.Y,
				"z":               point.Z,
				"direction_angle": acc.DirectionAngle[name],
				"mesh":            acc.Mesh,
			},
		})
	}
	return reqs, nil
}

// obstructionWire is the downstream response shape: one result per sampled
// direction, each carrying a horizon and a zenith angle in degrees.
type obstructionWire struct {
	Data struct {
		Results []struct {
			Horizon struct {
				ObstructionAngleDegrees float64 `json:"obstruction_angle_degrees"`
			} `json:"horizon"`
			Zenith struct {
				ObstructionAngleDegrees float64 `json:"obstruction_angle_degrees"`
			} `json:"zenith"`
		} `json:"results"`
	} `json:"data"`
}

func (s *obstructionStage) Execute(ctx context.Context, req *StageRequest) (*Delta, error) {
	path := pathObstructionParallel
	if req.Window == "" {
		path = pathObstruction
	}
	var out obstructionWire
	if err := s.svc.Client.PostJSON(ctx, s.svc.Endpoint(path), req.Body, &out); err != nil {
		return nil, err
	}
	if len(out.Data.Results) == 0 {
		return nil, errdefs.New(errdefs.KindResponse, "empty obstruction result set")
	}

	horizon := make([]float64, len(out.Data.Results))
	zenith := make([]float64, len(out.Data.Results))
	for i, result := range out.Data.Results {
		horizon[i] = result.Horizon.ObstructionAngleDegrees
		zenith[i] = result.Zenith.ObstructionAngleDegrees
	}

	if req.Window == "" {
		return &Delta{HorizonList: horizon, ZenithList: zenith}, nil
	}
	return &Delta{
		Window:  req.Window,
		Horizon: map[string][]float64{req.Window: horizon},
		Zenith:  map[string][]float64{req.Window: zenith},
	}, nil
}
