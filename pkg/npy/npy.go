// Package npy reads the numeric-array payloads the encoder service emits:
// .npy buffers, .npz archives (ZIP containers of .npy members) and their
// normalization into PNG bytes for the model service.
package npy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// Array is a decoded n-dimensional numeric array in row-major order. All
// supported dtypes widen to float64.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray builds a 2-D array from rows.
func NewArray(rows [][]float64) *Array {
	height := len(rows)
	width := 0
	if height > 0 {
		width = len(rows[0])
	}
	data := make([]float64, 0, height*width)
	for _, row := range rows {
		data = append(data, row...)
	}
	return &Array{Shape: []int{height, width}, Data: data}
}

// Len returns the element count implied by the shape.
func (a *Array) Len() int {
	n := 1
	for _, dim := range a.Shape {
		n *= dim
	}
	return n
}

// Rows returns a 2-D view of the values.
func (a *Array) Rows() ([][]float64, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("expected 2-D array, got shape %v", a.Shape)
	}
	height, width := a.Shape[0], a.Shape[1]
	rows := make([][]float64, height)
	for r := 0; r < height; r++ {
		rows[r] = a.Data[r*width : (r+1)*width]
	}
	return rows, nil
}

// IntRows returns a 2-D view with values rounded to integers, the shape
// mask payloads travel in.
func (a *Array) IntRows() ([][]int, error) {
	rows, err := a.Rows()
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(rows))
	for r, row := range rows {
		out[r] = make([]int, len(row))
		for c, v := range row {
			out[r][c] = int(math.Round(v))
		}
	}
	return out, nil
}

// Max returns the largest value, or 0 for an empty array.
func (a *Array) Max() float64 {
	max := math.Inf(-1)
	for _, v := range a.Data {
		if v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return 0
	}
	return max
}

var (
	descrPattern   = regexp.MustCompile(`'descr':\s*'([^']+)'`)
	fortranPattern = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapePattern   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// Decode parses one .npy payload: magic, version, header dict and raw
// little-endian buffer.
func Decode(data []byte) (*Array, error) {
	if len(data) < 10 || !bytes.HasPrefix(data, npyMagic) {
		return nil, fmt.Errorf("not an npy payload")
	}

	major := data[6]
	var headerLen, headerStart int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		headerStart = 10
	case 2, 3:
		if len(data) < 12 {
			return nil, fmt.Errorf("truncated npy header")
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		headerStart = 12
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}
	if len(data) < headerStart+headerLen {
		return nil, fmt.Errorf("truncated npy header")
	}
	header := string(data[headerStart : headerStart+headerLen])

	descr, fortran, shape, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	count := 1
	for _, dim := range shape {
		count *= dim
	}

	values, err := decodeBuffer(data[headerStart+headerLen:], descr, count)
	if err != nil {
		return nil, err
	}

	if fortran && count > 1 {
		if len(shape) != 2 {
			return nil, fmt.Errorf("fortran order unsupported for shape %v", shape)
		}
		values = transpose2D(values, shape[0], shape[1])
	}

	return &Array{Shape: shape, Data: values}, nil
}

func parseHeader(header string) (descr string, fortran bool, shape []int, err error) {
	m := descrPattern.FindStringSubmatch(header)
	if m == nil {
		return "", false, nil, fmt.Errorf("npy header missing descr")
	}
	descr = m[1]

	if m := fortranPattern.FindStringSubmatch(header); m != nil {
		fortran = m[1] == "True"
	}

	m = shapePattern.FindStringSubmatch(header)
	if m == nil {
		return "", false, nil, fmt.Errorf("npy header missing shape")
	}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dim, convErr := strconv.Atoi(part)
		if convErr != nil || dim < 0 {
			return "", false, nil, fmt.Errorf("invalid npy shape %q", m[1])
		}
		shape = append(shape, dim)
	}
	return descr, fortran, shape, nil
}

func decodeBuffer(buf []byte, descr string, count int) ([]float64, error) {
	size, read, err := elementReader(descr)
	if err != nil {
		return nil, err
	}
	if len(buf) < count*size {
		return nil, fmt.Errorf("npy buffer truncated: need %d bytes, have %d", count*size, len(buf))
	}
	values := make([]float64, count)
	for i := 0; i < count; i++ {
		values[i] = read(buf[i*size:])
	}
	return values, nil
}

// elementReader returns the byte width and decoder for a dtype descriptor.
// Only little-endian and byte-order-free descriptors occur in practice.
func elementReader(descr string) (int, func([]byte) float64, error) {
	switch descr {
	case "|b1":
		return 1, func(b []byte) float64 {
			if b[0] != 0 {
				return 1
			}
			return 0
		}, nil
	case "|u1":
		return 1, func(b []byte) float64 { return float64(b[0]) }, nil
	case "|i1":
		return 1, func(b []byte) float64 { return float64(int8(b[0])) }, nil
	case "<u2":
		return 2, func(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) }, nil
	case "<i2":
		return 2, func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) }, nil
	case "<u4":
		return 4, func(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) }, nil
	case "<i4":
		return 4, func(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) }, nil
	case "<u8":
		return 8, func(b []byte) float64 { return float64(binary.LittleEndian.Uint64(b)) }, nil
	case "<i8":
		return 8, func(b []byte) float64 { return float64(int64(binary.LittleEndian.Uint64(b))) }, nil
	case "<f4":
		return 4, func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}, nil
	case "<f8":
		return 8, func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}, nil
	default:
		return 0, nil, fmt.Errorf("unsupported npy dtype %q", descr)
	}
}

func transpose2D(values []float64, rows, cols int) []float64 {
	out := make([]float64, len(values))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[r*cols+c] = values[c*rows+r]
		}
	}
	return out
}

// Marshal encodes the array as a version 1.0 .npy payload in the given
// dtype. Supported dtypes: <f8, <f4, |u1.
func Marshal(arr *Array, descr string) ([]byte, error) {
	dims := make([]string, len(arr.Shape))
	for i, dim := range arr.Shape {
		dims[i] = strconv.Itoa(dim)
	}
	shape := strings.Join(dims, ", ")
	if len(arr.Shape) == 1 {
		shape += ","
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shape)
	// Pad so the data section starts on a 64-byte boundary.
	total := len(npyMagic) + 4 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.WriteByte(1)
	buf.WriteByte(0)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)

	switch descr {
	case "<f8":
		for _, v := range arr.Data {
			_ = binary.Write(&buf, binary.LittleEndian, v)
		}
	case "<f4":
		for _, v := range arr.Data {
			_ = binary.Write(&buf, binary.LittleEndian, float32(v))
		}
	case "|u1":
		for _, v := range arr.Data {
			buf.WriteByte(uint8(v))
		}
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", descr)
	}
	return buf.Bytes(), nil
}
