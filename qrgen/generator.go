// Package qrgen renders text payloads as QR code images.
package qrgen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"unicode/utf8"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	xdraw "golang.org/x/image/draw"

	"github.com/shinow/qrscan/scanerr"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Options controls the rendered output.
type Options struct {
	Height    int    `help:"Rendered image height in pixels; width follows the symbol's aspect ratio" default:"400" env:"QRSCAN_GENERATOR_HEIGHT"`
	Format    string `help:"Output image format" enum:"png,jpeg" default:"png" env:"QRSCAN_GENERATOR_FORMAT"`
	QuietZone int    `help:"Blank border around the symbol, in modules" default:"4" env:"QRSCAN_GENERATOR_QUIET_ZONE"`
}

// DefaultOptions mirrors the CLI defaults.
func DefaultOptions() Options {
	return Options{Height: 400, Format: FormatPNG, QuietZone: 4}
}

// Image is a rendered, encoded QR symbol.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Generator encodes text with error correction level M ("~15% redundancy").
type Generator struct {
	opts Options
}

// New returns a Generator. Zero fields in opts fall back to DefaultOptions.
func New(opts Options) *Generator {
	def := DefaultOptions()
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Format == "" {
		opts.Format = def.Format
	}
	if opts.QuietZone < 0 {
		opts.QuietZone = 0
	}
	opts.Format = strings.ToLower(opts.Format)
	if opts.Format == "jpg" {
		opts.Format = FormatJPEG
	}
	return &Generator{opts: opts}
}

// Generate renders text. Failures are *scanerr.Error values with the
// generation-path codes.
func (g *Generator) Generate(ctx context.Context, text string) (*Image, error) {
	const op = "generate"
	if text == "" {
		return nil, scanerr.New(scanerr.CodeInvalidArgument, op, "missing 'code'")
	}
	if !utf8.ValidString(text) {
		return nil, scanerr.New(scanerr.CodeEncoding, op, "unable to encode 'code' as UTF-8")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, err := qr.Encode(text, qr.M, qr.Auto)
	if err != nil {
		return nil, scanerr.Wrapf(scanerr.CodeFilter, op, err, "unable to create QR symbol: %v", err)
	}

	rendered, err := g.render(code)
	if err != nil {
		return nil, scanerr.Wrapf(scanerr.CodeImage, op, err, "failed to generate QR image: %v", err)
	}

	data, err := g.encode(rendered)
	if err != nil {
		return nil, scanerr.Wrapf(scanerr.CodeConversion, op, err, "failed to convert image to %s: %v", strings.ToUpper(g.opts.Format), err)
	}

	b := rendered.Bounds()
	return &Image{Data: data, Format: g.opts.Format, Width: b.Dx(), Height: b.Dy()}, nil
}

// render scales the symbol by the largest whole factor that keeps the symbol
// plus its quiet zone inside the target height, then centers it on a white
// canvas of exactly that height.
func (g *Generator) render(code barcode.Barcode) (image.Image, error) {
	cb := code.Bounds()
	modW, modH := cb.Dx(), cb.Dy()
	if modW == 0 || modH == 0 {
		return nil, fmt.Errorf("symbol has no modules")
	}

	height := g.opts.Height
	factor := height / (modH + 2*g.opts.QuietZone)
	if factor < 1 {
		return nil, fmt.Errorf("height %d too small for a %d-module symbol", height, modH)
	}
	// keep the aspect ratio of the symbol plus quiet zone
	width := height * (modW + 2*g.opts.QuietZone) / (modH + 2*g.opts.QuietZone)

	scaled, err := barcode.Scale(code, modW*factor, modH*factor)
	if err != nil {
		return nil, err
	}

	canvas := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, xdraw.Src)

	offX := (width - modW*factor) / 2
	offY := (height - modH*factor) / 2
	dst := image.Rect(offX, offY, offX+modW*factor, offY+modH*factor)
	xdraw.Draw(canvas, dst, scaled, scaled.Bounds().Min, xdraw.Src)
	return canvas, nil
}

func (g *Generator) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	switch g.opts.Format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", g.opts.Format)
	}
	return buf.Bytes(), nil
}
