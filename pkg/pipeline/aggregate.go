package pipeline

import (
	"context"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/services"
)

const (
	pathMerge = "/merge"
	pathStats = "/stats"
)

// mergeStage sends every window's simulation to the merger service, which
// stitches the per-window grids into one room-level daylight-factor grid. A
// single request covers all windows.
type mergeStage struct {
	svc *services.Service
}

func (s *mergeStage) Name() string { return StageMerge }

func (s *mergeStage) Parse(acc *Accumulator) ([]*StageRequest, error) {
	if len(acc.Simulations) == 0 {
		return nil, nil
	}

	windows := make(map[string]interface{}, len(acc.Windows))
	for _, name := range acc.WindowNames() {
		windows[name] = acc.wireWindow(name, map[string]interface{}{
			"direction_angle": acc.DirectionAngle[name],
		})
	}

	simulations := make(map[string]interface{}, len(acc.Simulations))
	for name, values := range acc.Simulations {
		entry := map[string]interface{}{"df_values": values}
		if mask, ok := acc.Mask[name]; ok {
			entry["mask"] = mask
		}
		simulations[name] = entry
	}

	return []*StageRequest{{
		Body: map[string]interface{}{
			"room_polygon": acc.RoomPolygon,
			"windows":      windows,
			"simulations":  simulations,
		},
	}}, nil
}

func (s *mergeStage) Execute(ctx context.Context, req *StageRequest) (*Delta, error) {
	var out struct {
		Result [][]float64 `json:"result"`
		Mask   [][]int     `json:"mask"`
	}
	if err := s.svc.Client.PostJSON(ctx, s.svc.Endpoint(pathMerge), req.Body, &out); err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, errdefs.New(errdefs.KindResponse, "merger response carries no result")
	}
	return &Delta{Result: out.Result, RoomMask: out.Mask}, nil
}

// statsStage reduces a daylight-factor grid and its mask to summary
// metrics. Always a single request.
type statsStage struct {
	svc *services.Service
}

func (s *statsStage) Name() string { return StageStats }

func (s *statsStage) Parse(acc *Accumulator) ([]*StageRequest, error) {
	values := acc.DFValues
	if values == nil {
		values = acc.Result
	}
	if values == nil {
		return nil, nil
	}
	return []*StageRequest{{
		Body: map[string]interface{}{
			"df_values": values,
			"mask":      acc.RoomMask,
		},
	}}, nil
}

func (s *statsStage) Execute(ctx context.Context, req *StageRequest) (*Delta, error) {
	var out map[string]interface{}
	if err := s.svc.Client.PostJSON(ctx, s.svc.Endpoint(pathStats), req.Body, &out); err != nil {
		return nil, err
	}

	stats := make(map[string]float64, len(out))
	for key, value := range out {
		if number, ok := value.(float64); ok {
			stats[key] = number
		}
	}
	if len(stats) == 0 {
		return nil, errdefs.New(errdefs.KindResponse, "stats response carries no metrics")
	}
	return &Delta{Stats: stats}, nil
}
