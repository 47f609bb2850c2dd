package daemon

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	// MaxCaptureLayer excludes status and navigation overlays from captures.
	MaxCaptureLayer = 22000

	// MaxFramePixels is the pixel budget above which frames are downscaled.
	MaxFramePixels = 1440000

	landscapeTargetWidth = 1600
	portraitTargetWidth  = 900
)

// ScaleDimensions returns the size a w×h frame is streamed at. Frames within
// the pixel budget are unchanged; larger frames are scaled to a fixed target
// width (portrait when w < h) keeping the aspect ratio.
func ScaleDimensions(w, h int) (int, int) {
	if w <= 0 || h <= 0 || w*h <= MaxFramePixels {
		return w, h
	}

	target := landscapeTargetWidth
	if w < h {
		target = portraitTargetWidth
	}
	factor := float64(target) / float64(w)
	return target, int(float64(h) * factor)
}

// ScaleFrame downscales img to ScaleDimensions with a Catmull-Rom filter.
// It returns img itself when no scaling is needed.
func ScaleFrame(img image.Image) image.Image {
	b := img.Bounds()
	w, h := ScaleDimensions(b.Dx(), b.Dy())
	if w == b.Dx() && h == b.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodeFrame encodes img as PNG at maximum compression.
func EncodeFrame(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
