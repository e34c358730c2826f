package detect_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinow/qrscan/detect"
	"github.com/shinow/qrscan/qrgen"
	"github.com/shinow/qrscan/scanerr"
)

func blankPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func generated(t *testing.T, text string, height int) []byte {
	t.Helper()
	out, err := qrgen.New(qrgen.Options{Height: height, Format: qrgen.FormatPNG, QuietZone: 4}).Generate(context.Background(), text)
	require.NoError(t, err)
	return out.Data
}

func TestDetectBlankImageIsEmpty(t *testing.T) {
	img, _, err := detect.DecodeBytes(blankPNG(t, 200, 120))
	require.NoError(t, err)

	payload, found, err := detect.New(detect.DefaultOptions()).Detect(context.Background(), img)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, payload)
}

func TestDetectDownscalesLargeImages(t *testing.T) {
	img, _, err := detect.DecodeBytes(generated(t, "large input", 3000))
	require.NoError(t, err)
	require.Equal(t, 3000, img.Bounds().Dy())

	payload, found, err := detect.New(detect.Options{MaxDimension: 800, TryHarder: true}).Detect(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "large input", payload)
}

func TestDetectNilImage(t *testing.T) {
	_, _, err := detect.New(detect.DefaultOptions()).Detect(context.Background(), nil)
	assert.True(t, scanerr.Is(err, scanerr.CodeInvalidImage))
}

func TestDetectCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := detect.New(detect.DefaultOptions()).Detect(ctx, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.True(t, scanerr.Is(err, scanerr.CodeDetection))
}

func TestDecodeBytesErrors(t *testing.T) {
	_, _, err := detect.DecodeBytes(nil)
	assert.True(t, scanerr.Is(err, scanerr.CodeInvalidImage))

	_, _, err = detect.DecodeBytes([]byte("definitely not an image"))
	assert.True(t, scanerr.Is(err, scanerr.CodeInvalidImage))
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h
// grayscale image, with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, w)
	chunk = binary.BigEndian.AppendUint32(chunk, h)
	chunk = append(chunk, 8, 0, 0, 0, 0) // 8-bit gray, no interlace
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(chunk)-4))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodePixelLimit(t *testing.T) {
	huge := pngHeader(20000, 20000)
	blank := blankPNG(t, 200, 120)

	tests := []struct {
		name      string
		decoder   detect.Decoder
		data      []byte
		wantErr   string
		wantWidth int
	}{
		{name: "header claims 400 MP", decoder: detect.Decoder{MaxPixels: detect.DefaultMaxPixels}, data: huge, wantErr: "image is 20000x20000, exceeds the 50000000 pixel limit"},
		{name: "just over a small limit", decoder: detect.Decoder{MaxPixels: 200*120 - 1}, data: blank, wantErr: "image is 200x120, exceeds the 23999 pixel limit"},
		{name: "at the limit", decoder: detect.Decoder{MaxPixels: 200 * 120}, data: blank, wantWidth: 200},
		{name: "unbounded", decoder: detect.Decoder{}, data: blank, wantWidth: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, _, err := tt.decoder.DecodeBytes(tt.data)
			if tt.wantErr != "" {
				require.Error(t, err)
				se, ok := scanerr.As(err)
				require.True(t, ok)
				assert.Equal(t, scanerr.CodeInvalidImage, se.Code)
				assert.Equal(t, tt.wantErr, se.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, img.Bounds().Dx())
		})
	}

	_, _, err := detect.DecodeBytes(huge)
	assert.True(t, scanerr.Is(err, scanerr.CodeInvalidImage), "package default must apply the bound")

	p := filepath.Join(t.TempDir(), "huge.png")
	require.NoError(t, os.WriteFile(p, huge, 0o644))
	_, _, err = detect.New(detect.DefaultOptions()).Decoder().LoadPath(p)
	assert.True(t, scanerr.Is(err, scanerr.CodeInvalidImage))
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "code.png")
	require.NoError(t, os.WriteFile(p, generated(t, "from disk", 400), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "plain path", path: p},
		{name: "file uri", path: "file://" + p},
		{name: "missing file", path: filepath.Join(dir, "nope.png"), wantErr: true},
		{name: "uri without path", path: "file://", wantErr: true},
	}
	engine := detect.New(detect.DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := detect.LoadPath(tt.path)
			if tt.wantErr {
				assert.True(t, scanerr.Is(err, scanerr.CodeInvalidImage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "png", format)
			payload, found, err := engine.Detect(context.Background(), img)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "from disk", payload)
		})
	}
}
