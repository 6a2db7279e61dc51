package pipeline

import (
	"context"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/npy"
	"github.com/luxsim/helio/pkg/services"
)

const pathEncode = "/encode"

// encodeStage renders one window's geometry and obstruction arrays into the
// model's input image. The encoder answers with raw binary: either a PNG,
// or an NPZ archive from which the image (and optional mask) is extracted
// and rendered to PNG here.
type encodeStage struct {
	svc *services.Service
}

func (s *encodeStage) Name() string { return StageEncode }

func (s *encodeStage) Parse(acc *Accumulator) ([]*StageRequest, error) {
	reqs := make([]*StageRequest, 0, len(acc.Windows))
	for _, name := range acc.WindowNames() {
		parameters := map[string]interface{}{
			"room_polygon": acc.RoomPolygon,
			"windows": map[string]interface{}{
				name: acc.wireWindow(name, map[string]interface{}{
					"horizon":         acc.Horizon[name],
					"zenith":          acc.Zenith[name],
					"direction_angle": acc.DirectionAngle[name],
				}),
			},
		}
		if acc.HeightRoofOverFloor != nil {
			parameters["height_roof_over_floor"] = *acc.HeightRoofOverFloor
		}
		if acc.FloorHeightAboveTerrain != nil {
			parameters["floor_height_above_terrain"] = *acc.FloorHeightAboveTerrain
		}
		reqs = append(reqs, &StageRequest{
			Window: name,
			Body: map[string]interface{}{
				"model_type": acc.ModelType,
				"parameters": parameters,
			},
		})
	}
	return reqs, nil
}

func (s *encodeStage) Execute(ctx context.Context, req *StageRequest) (*Delta, error) {
	body, _, err := s.svc.Client.PostBinary(ctx, s.svc.Endpoint(pathEncode), req.Body)
	if err != nil {
		return nil, err
	}

	switch npy.Sniff(body) {
	case npy.FormatPNG:
		return &Delta{Window: req.Window, Image: body}, nil
	case npy.FormatNPZ:
		archive, err := npy.DecodeArchive(body)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindResponse, err, "decoding encoder archive")
		}
		image, mask, err := archive.ExtractImageMask(req.Window)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindResponse, err, "reading encoder archive")
		}
		png, err := npy.EncodePNG(image)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindResponse, err, "rendering encoded image")
		}
		delta := &Delta{Window: req.Window, Image: png}
		if mask != nil && req.Window != "" {
			rows, err := mask.IntRows()
			if err != nil {
				return nil, errdefs.Wrap(errdefs.KindResponse, err, "reading encoder mask")
			}
			delta.Masks = map[string][][]int{req.Window: rows}
		}
		return delta, nil
	default:
		return nil, errdefs.New(errdefs.KindResponse, "unrecognized encoder payload")
	}
}
