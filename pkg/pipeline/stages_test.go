package pipeline

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"reflect"
	"testing"

	"github.com/luxsim/helio/pkg/npy"
)

func fptr(v float64) *float64 { return &v }

func TestObstructionParseSkipsPopulatedWindows(t *testing.T) {
	acc := NewAccumulator()
	acc.Mesh = []json.RawMessage{json.RawMessage(`[[0,0,0],[1,0,0],[0,1,0]]`)}
	acc.ReferencePoint["w1"] = Point{X: 1, Y: 2, Z: 3}
	acc.ReferencePoint["w2"] = Point{X: 4, Y: 5, Z: 6}
	acc.DirectionAngle["w1"] = 0.5
	acc.DirectionAngle["w2"] = 1.5
	acc.Horizon["w1"] = []float64{30, 30}
	acc.Zenith["w1"] = []float64{10, 10}

	stage := &obstructionStage{}
	reqs, err := stage.Parse(acc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected only the unpopulated window, got %d requests", len(reqs))
	}
	if reqs[0].Window != "w2" {
		t.Errorf("window = %q, want w2", reqs[0].Window)
	}
	if reqs[0].Body["x"] != 4.0 || reqs[0].Body["direction_angle"] != 1.5 {
		t.Errorf("body = %v", reqs[0].Body)
	}
}

func TestObstructionParseHorizonOnlyStillSamples(t *testing.T) {
	acc := NewAccumulator()
	acc.Mesh = []json.RawMessage{json.RawMessage(`[[0,0,0],[1,0,0],[0,1,0]]`)}
	acc.ReferencePoint["w1"] = Point{X: 1, Y: 2, Z: 3}
	acc.DirectionAngle["w1"] = 0.5
	acc.Horizon["w1"] = []float64{30, 30}

	stage := &obstructionStage{}
	reqs, err := stage.Parse(acc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("zenith missing, expected the window to be sampled, got %d requests", len(reqs))
	}
}

func TestObstructionParseAllPopulatedSkipsStage(t *testing.T) {
	acc := NewAccumulator()
	acc.ReferencePoint["w1"] = Point{}
	acc.Horizon["w1"] = []float64{30}
	acc.Zenith["w1"] = []float64{10}

	stage := &obstructionStage{}
	reqs, err := stage.Parse(acc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected stage skip, got %d requests", len(reqs))
	}
}

func TestObstructionParsePointMode(t *testing.T) {
	acc := NewAccumulator()
	acc.X, acc.Y, acc.Z = fptr(1), fptr(2), fptr(3)
	acc.DirectionValue = fptr(0.7)
	acc.Mesh = []json.RawMessage{json.RawMessage(`[[0,0,0],[1,0,0],[0,1,0]]`)}

	stage := &obstructionStage{}
	reqs, err := stage.Parse(acc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 1 || reqs[0].Window != "" {
		t.Fatalf("expected one window-less request, got %+v", reqs)
	}
	if reqs[0].Body["x"] != 1.0 || reqs[0].Body["direction_angle"] != 0.7 {
		t.Errorf("body = %v", reqs[0].Body)
	}
}

func TestEncodeParseCarriesAnglesAndHeights(t *testing.T) {
	acc := NewAccumulator()
	acc.ModelType = "default"
	acc.RoomPolygon = []json.RawMessage{json.RawMessage(`[0,0]`)}
	acc.Windows["w1"] = &Window{X1: -2, Y1: 7, Z1: 2.8, X2: -0.4, Y2: 7.2, Z2: 5.4, WindowFrameRatio: 0.9}
	acc.Horizon["w1"] = []float64{30, 40}
	acc.Zenith["w1"] = []float64{10, 20}
	acc.DirectionAngle["w1"] = 1.5708
	acc.HeightRoofOverFloor = fptr(2.8)
	acc.FloorHeightAboveTerrain = fptr(1.2)

	stage := &encodeStage{}
	reqs, err := stage.Parse(acc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected one request per window, got %d", len(reqs))
	}

	if reqs[0].Body["model_type"] != "default" {
		t.Errorf("model_type = %v", reqs[0].Body["model_type"])
	}
	parameters := reqs[0].Body["parameters"].(map[string]interface{})
	if parameters["height_roof_over_floor"] != 2.8 || parameters["floor_height_above_terrain"] != 1.2 {
		t.Errorf("heights not carried: %v", parameters)
	}
	window := parameters["windows"].(map[string]interface{})["w1"].(map[string]interface{})
	if !reflect.DeepEqual(window["horizon"], []float64{30, 40}) {
		t.Errorf("horizon = %v", window["horizon"])
	}
	if window["direction_angle"] != 1.5708 {
		t.Errorf("direction_angle = %v", window["direction_angle"])
	}
}

func TestModelParseFansOutPerImage(t *testing.T) {
	acc := NewAccumulator()
	acc.Images["w2"] = []byte("png-2")
	acc.Images["w1"] = []byte("png-1")

	stage := &modelStage{}
	reqs, err := stage.Parse(acc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 2 || reqs[0].Window != "w1" || reqs[1].Window != "w2" {
		t.Fatalf("requests = %+v, want sorted per-window fan-out", reqs)
	}
}

func TestModelParseFallsBackToSingleImage(t *testing.T) {
	acc := NewAccumulator()
	acc.Image = []byte("png")

	stage := &modelStage{}
	reqs, err := stage.Parse(acc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 1 || reqs[0].Window != "" || !bytes.Equal(reqs[0].Image, []byte("png")) {
		t.Fatalf("requests = %+v", reqs)
	}
}

func TestMergeParseBuildsSimulationEntries(t *testing.T) {
	acc := NewAccumulator()
	acc.RoomPolygon = []json.RawMessage{json.RawMessage(`[0,0]`)}
	acc.Windows["w1"] = &Window{X1: 1, WindowFrameRatio: 0.8}
	acc.DirectionAngle["w1"] = 0.5
	acc.Simulations["w1"] = [][]float64{{0.1, 0.2}}
	acc.Mask["w1"] = [][]int{{1, 0}}

	stage := &mergeStage{}
	reqs, err := stage.Parse(acc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected a single merge request, got %d", len(reqs))
	}

	simulations := reqs[0].Body["simulations"].(map[string]interface{})
	entry := simulations["w1"].(map[string]interface{})
	if !reflect.DeepEqual(entry["df_values"], [][]float64{{0.1, 0.2}}) {
		t.Errorf("df_values = %v", entry["df_values"])
	}
	if !reflect.DeepEqual(entry["mask"], [][]int{{1, 0}}) {
		t.Errorf("mask = %v", entry["mask"])
	}
	window := reqs[0].Body["windows"].(map[string]interface{})["w1"].(map[string]interface{})
	if window["direction_angle"] != 0.5 {
		t.Errorf("window = %v", window)
	}
}

func TestMergeParseSkipsWithoutSimulations(t *testing.T) {
	stage := &mergeStage{}
	reqs, err := stage.Parse(NewAccumulator())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected skip, got %d requests", len(reqs))
	}
}

func TestStatsParseValueSources(t *testing.T) {
	direct := NewAccumulator()
	direct.DFValues = [][]float64{{1, 2}}
	direct.RoomMask = [][]int{{1, 1}}

	merged := NewAccumulator()
	merged.Result = [][]float64{{3, 4}}

	empty := NewAccumulator()

	stage := &statsStage{}

	reqs, err := stage.Parse(direct)
	if err != nil || len(reqs) != 1 {
		t.Fatalf("direct: reqs=%v err=%v", reqs, err)
	}
	if !reflect.DeepEqual(reqs[0].Body["df_values"], [][]float64{{1, 2}}) {
		t.Errorf("direct df_values = %v", reqs[0].Body["df_values"])
	}

	reqs, err = stage.Parse(merged)
	if err != nil || len(reqs) != 1 {
		t.Fatalf("merged: reqs=%v err=%v", reqs, err)
	}
	if !reflect.DeepEqual(reqs[0].Body["df_values"], [][]float64{{3, 4}}) {
		t.Errorf("merged df_values = %v", reqs[0].Body["df_values"])
	}

	reqs, err = stage.Parse(empty)
	if err != nil || len(reqs) != 0 {
		t.Fatalf("empty: reqs=%v err=%v", reqs, err)
	}
}

func TestSimulationFromWire(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		shape   []int
		want    [][]float64
		wantErr bool
	}{
		{name: "grid", raw: `[[0.1,0.2],[0.3,0.4]]`, want: [][]float64{{0.1, 0.2}, {0.3, 0.4}}},
		{name: "flat with shape", raw: `[1,2,3,4,5,6]`, shape: []int{2, 3}, want: [][]float64{{1, 2, 3}, {4, 5, 6}}},
		{name: "flat shape mismatch", raw: `[1,2,3]`, shape: []int{2, 2}, wantErr: true},
		{name: "flat without shape", raw: `[1,2,3]`, wantErr: true},
		{name: "garbage", raw: `"nope"`, wantErr: true},
		{name: "missing", raw: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := simulationFromWire(json.RawMessage(tt.raw), tt.shape)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaskFromWireGrid(t *testing.T) {
	mask, err := maskFromWire(json.RawMessage(`[[1,0],[0,1]]`))
	if err != nil {
		t.Fatalf("maskFromWire() error = %v", err)
	}
	if !reflect.DeepEqual(mask, [][]int{{1, 0}, {0, 1}}) {
		t.Errorf("mask = %v", mask)
	}
}

func TestMaskFromWireBase64NPY(t *testing.T) {
	blob, err := npy.Marshal(npy.NewArray([][]float64{{1, 0}, {0, 1}}), "|u1")
	if err != nil {
		t.Fatalf("building npy fixture: %v", err)
	}
	raw, _ := json.Marshal(base64.StdEncoding.EncodeToString(blob))

	mask, err := maskFromWire(raw)
	if err != nil {
		t.Fatalf("maskFromWire() error = %v", err)
	}
	if !reflect.DeepEqual(mask, [][]int{{1, 0}, {0, 1}}) {
		t.Errorf("mask = %v", mask)
	}
}

func TestMaskFromWireBase64PNG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix = []uint8{255, 0, 0, 255}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("building png fixture: %v", err)
	}
	raw, _ := json.Marshal(base64.StdEncoding.EncodeToString(buf.Bytes()))

	mask, err := maskFromWire(raw)
	if err != nil {
		t.Fatalf("maskFromWire() error = %v", err)
	}
	if !reflect.DeepEqual(mask, [][]int{{1, 0}, {0, 1}}) {
		t.Errorf("mask = %v", mask)
	}
}

func TestMaskFromWireRejectsGarbage(t *testing.T) {
	if _, err := maskFromWire(json.RawMessage(`"not base64!!!"`)); err == nil {
		t.Fatal("expected error for undecodable mask")
	}
	if _, err := maskFromWire(json.RawMessage(`42`)); err == nil {
		t.Fatal("expected error for numeric mask")
	}
}

func TestMaskFromWireEmptyString(t *testing.T) {
	mask, err := maskFromWire(json.RawMessage(`""`))
	if err != nil {
		t.Fatalf("maskFromWire() error = %v", err)
	}
	if mask != nil {
		t.Errorf("mask = %v, want nil", mask)
	}
}
