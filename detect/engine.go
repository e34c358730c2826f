// Package detect locates and decodes QR symbols in still images.
//
// Decoding of the encoded input (PNG, JPEG, GIF, WebP, BMP, TIFF) and symbol
// detection are reported separately: a malformed input is an INVALID_IMAGE
// failure, an engine failure is a DETECTION_ERROR, and an image without a
// symbol is not an error at all.
//
// When an image contains several symbols only the first one reported by the
// engine is returned. Which one comes first depends on the engine's scan
// order and is not guaranteed to be stable across versions.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	xdraw "golang.org/x/image/draw"

	"github.com/shinow/qrscan/scanerr"
)

// Options tune the detection engine.
type Options struct {
	// MaxDimension bounds the longest side of the image handed to the engine.
	// Larger images are downscaled first. Zero disables downscaling.
	MaxDimension int `help:"Downscale images whose longest side exceeds this many pixels before detection (0 disables)" default:"2048" env:"QRSCAN_DETECT_MAX_DIMENSION"`
	// MaxPixels bounds width*height of decoded inputs; see Decoder.
	MaxPixels int `help:"Reject input images with more pixels than this (0 disables)" default:"50000000" env:"QRSCAN_DETECT_MAX_PIXELS"`
	// TryHarder trades speed for accuracy.
	TryHarder bool `help:"Spend more time looking for symbols" default:"true" negatable:"" env:"QRSCAN_DETECT_TRY_HARDER"`
}

// DefaultOptions mirrors the CLI defaults.
func DefaultOptions() Options {
	return Options{MaxDimension: 2048, MaxPixels: DefaultMaxPixels, TryHarder: true}
}

// Engine detects QR symbols. It is safe for concurrent use; every call
// builds its own reader.
type Engine struct {
	opts Options
}

// New returns an Engine configured with opts.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Decoder returns the input decoder matching the engine's limits.
func (e *Engine) Decoder() Decoder {
	return Decoder{MaxPixels: e.opts.MaxPixels}
}

// Detect runs the engine once over img. found is false when the image holds
// no readable symbol.
func (e *Engine) Detect(ctx context.Context, img image.Image) (payload string, found bool, err error) {
	if img == nil {
		return "", false, scanerr.New(scanerr.CodeInvalidImage, "detect", "nil image")
	}
	if err := ctx.Err(); err != nil {
		return "", false, scanerr.Wrap(scanerr.CodeDetection, "detect", err)
	}

	src := e.fit(img)

	defer func() {
		// gozxing indexes past slice bounds on some degenerate inputs.
		if r := recover(); r != nil {
			payload, found = "", false
			err = scanerr.Wrapf(scanerr.CodeDetection, "detect", fmt.Errorf("%v", r), "detection engine failed")
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(src)
	if err != nil {
		return "", false, scanerr.Wrap(scanerr.CodeDetection, "detect.binarize", err)
	}

	// Byte-mode payloads are produced as UTF-8 by qrgen and by every
	// mainstream encoder; skip the engine's charset guessing.
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_CHARACTER_SET: "UTF-8",
	}
	if e.opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		if isNoSymbol(err) {
			return "", false, nil
		}
		return "", false, scanerr.Wrap(scanerr.CodeDetection, "detect", err)
	}
	return res.GetText(), true, nil
}

// isNoSymbol reports engine outcomes that mean "nothing readable here": no
// finder patterns, or a candidate that failed format/checksum validation.
func isNoSymbol(err error) bool {
	var nf gozxing.NotFoundException
	if errors.As(err, &nf) {
		return true
	}
	var fe gozxing.FormatException
	if errors.As(err, &fe) {
		return true
	}
	var ce gozxing.ChecksumException
	return errors.As(err, &ce)
}

func (e *Engine) fit(img image.Image) image.Image {
	limit := e.opts.MaxDimension
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if limit <= 0 || (w <= limit && h <= limit) {
		return img
	}
	dstW, dstH := limit, limit
	if w >= h {
		dstH = h * limit / w
	} else {
		dstW = w * limit / h
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
