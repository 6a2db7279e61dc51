package npy

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// Format identifies an encoder payload layout by its leading bytes.
type Format int

const (
	FormatUnknown Format = iota
	FormatNPZ
	FormatPNG
)

// Sniff inspects the payload's magic bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 2 && data[0] == 'P' && data[1] == 'K':
		return FormatNPZ
	case bytes.HasPrefix(data, pngMagic):
		return FormatPNG
	default:
		return FormatUnknown
	}
}

// Archive is a decoded .npz: member name (without the .npy suffix) to array.
type Archive map[string]*Array

// DecodeArchive parses an .npz payload, decoding every .npy member.
func DecodeArchive(data []byte) (Archive, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid npz archive: %w", err)
	}

	archive := make(Archive, len(reader.File))
	for _, member := range reader.File {
		rc, err := member.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open npz member %s: %w", member.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read npz member %s: %w", member.Name, err)
		}
		arr, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("npz member %s: %w", member.Name, err)
		}
		archive[strings.TrimSuffix(member.Name, ".npy")] = arr
	}
	return archive, nil
}

// ExtractImageMask picks the image and mask arrays for a window. Preference
// order: the window-qualified pair (<window>_image, <window>_mask), then the
// unqualified pair (image, mask), then the first member ending in _image
// with the mask sharing its prefix. The mask may be absent.
func (a Archive) ExtractImageMask(window string) (image, mask *Array, err error) {
	if img, ok := a[window+"_image"]; ok {
		return img, a[window+"_mask"], nil
	}
	if img, ok := a["image"]; ok {
		return img, a["mask"], nil
	}

	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.HasSuffix(name, "_image") {
			prefix := strings.TrimSuffix(name, "_image")
			return a[name], a[prefix+"_mask"], nil
		}
	}
	return nil, nil, fmt.Errorf("npz archive has no image member (members: %s)", strings.Join(names, ", "))
}

// WriteArchive builds an .npz payload from named arrays, each stored as an
// .npy member in <f8.
func WriteArchive(members map[string]*Array) ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		payload, err := Marshal(members[name], "<f8")
		if err != nil {
			return nil, err
		}
		w, err := writer.Create(name + ".npy")
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
