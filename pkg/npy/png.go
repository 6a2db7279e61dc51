package npy

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// EncodePNG renders the array as PNG bytes. Values are normalized to uint8:
// arrays whose maximum is at most 1.0 are scaled by 255 first. 2-D arrays
// become grayscale; 3-D arrays with 3 or 4 channels become NRGBA.
func EncodePNG(arr *Array) ([]byte, error) {
	var img image.Image
	switch {
	case len(arr.Shape) == 2:
		img = grayImage(arr)
	case len(arr.Shape) == 3 && (arr.Shape[2] == 3 || arr.Shape[2] == 4):
		img = colorImage(arr)
	default:
		return nil, fmt.Errorf("cannot render shape %v as PNG", arr.Shape)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

func normalizeScale(arr *Array) float64 {
	if arr.Max() <= 1.0 {
		return 255
	}
	return 1
}

func toUint8(v, scale float64) uint8 {
	v *= scale
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func grayImage(arr *Array) image.Image {
	height, width := arr.Shape[0], arr.Shape[1]
	scale := normalizeScale(arr)
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Pix[y*img.Stride+x] = toUint8(arr.Data[y*width+x], scale)
		}
	}
	return img
}

func colorImage(arr *Array) image.Image {
	height, width, channels := arr.Shape[0], arr.Shape[1], arr.Shape[2]
	scale := normalizeScale(arr)
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			base := (y*width + x) * channels
			offset := y*img.Stride + x*4
			img.Pix[offset] = toUint8(arr.Data[base], scale)
			img.Pix[offset+1] = toUint8(arr.Data[base+1], scale)
			img.Pix[offset+2] = toUint8(arr.Data[base+2], scale)
			if channels == 4 {
				img.Pix[offset+3] = toUint8(arr.Data[base+3], scale)
			} else {
				img.Pix[offset+3] = 255
			}
		}
	}
	return img
}
