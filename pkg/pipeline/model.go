package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"sort"

	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/npy"
	"github.com/luxsim/helio/pkg/services"
)

const pathPredict = "/predict"

// modelStage uploads each window's encoded PNG to the model service and
// collects the predicted daylight-factor grid. One request per encoded
// image.
type modelStage struct {
	svc *services.Service
}

func (s *modelStage) Name() string { return StageModel }

func (s *modelStage) Parse(acc *Accumulator) ([]*StageRequest, error) {
	names := make([]string, 0, len(acc.Images))
	for name := range acc.Images {
		names = append(names, name)
	}
	sort.Strings(names)

	reqs := make([]*StageRequest, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, &StageRequest{Window: name, Image: acc.Images[name]})
	}
	if len(reqs) == 0 && acc.Image != nil {
		reqs = append(reqs, &StageRequest{Image: acc.Image})
	}
	return reqs, nil
}

// modelWire tolerates the two simulation encodings the model service emits:
// a 2D grid, or a flat array plus its shape. The mask may be a 2D array or
// a base64-encoded NPY or PNG blob.
type modelWire struct {
	Simulation json.RawMessage `json:"simulation"`
	Shape      []int           `json:"shape"`
	Mask       json.RawMessage `json:"mask"`
}

func (s *modelStage) Execute(ctx context.Context, req *StageRequest) (*Delta, error) {
	filename := "encoded.png"
	if req.Window != "" {
		filename = fmt.Sprintf("%s.png", req.Window)
	}

	var out modelWire
	err := s.svc.Client.PostMultipart(ctx, s.svc.Endpoint(pathPredict), "file", filename, req.Image, nil, &out)
	if err != nil {
		return nil, err
	}

	simulation, err := simulationFromWire(out.Simulation, out.Shape)
	if err != nil {
		return nil, err
	}

	delta := &Delta{
		Window:      req.Window,
		Simulations: map[string][][]float64{req.Window: simulation},
	}
	if len(out.Mask) > 0 {
		mask, err := maskFromWire(out.Mask)
		if err != nil {
			return nil, err
		}
		if mask != nil {
			delta.Masks = map[string][][]int{req.Window: mask}
		}
	}
	return delta, nil
}

func simulationFromWire(raw json.RawMessage, shape []int) ([][]float64, error) {
	if len(raw) == 0 {
		return nil, errdefs.New(errdefs.KindResponse, "model response carries no simulation")
	}
	var grid [][]float64
	if err := json.Unmarshal(raw, &grid); err == nil {
		return grid, nil
	}

	var flat []float64
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, errdefs.New(errdefs.KindResponse, "unrecognized simulation payload")
	}
	if len(shape) != 2 || shape[0]*shape[1] != len(flat) {
		return nil, errdefs.New(errdefs.KindResponse, "flat simulation of %d values does not fit shape %v", len(flat), shape)
	}
	grid = make([][]float64, shape[0])
	for i := range grid {
		grid[i] = flat[i*shape[1] : (i+1)*shape[1]]
	}
	return grid, nil
}

func maskFromWire(raw json.RawMessage) ([][]int, error) {
	var grid [][]int
	if err := json.Unmarshal(raw, &grid); err == nil {
		return grid, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, errdefs.New(errdefs.KindResponse, "unrecognized mask payload")
	}
	if encoded == "" {
		return nil, nil
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindResponse, err, "decoding mask")
	}

	switch npy.Sniff(blob) {
	case npy.FormatPNG:
		return maskFromPNG(blob)
	default:
		arr, err := npy.Decode(blob)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindResponse, err, "decoding mask array")
		}
		rows, err := arr.IntRows()
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindResponse, err, "mask array shape")
		}
		return rows, nil
	}
}

// maskFromPNG reads a grayscale mask image, treating any pixel at half
// intensity or above as inside the room.
func maskFromPNG(blob []byte) ([][]int, error) {
	img, err := png.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindResponse, err, "decoding mask image")
	}
	bounds := img.Bounds()
	mask := make([][]int, bounds.Dy())
	for y := range mask {
		row := make([]int, bounds.Dx())
		for x := range row {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if r>>8 >= 128 {
				row[x] = 1
			}
		}
		mask[y] = row
	}
	return mask, nil
}
