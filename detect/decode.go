package detect

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"net/url"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder (lossy only)

	"github.com/shinow/qrscan/scanerr"
)

// DefaultMaxPixels bounds decoded images: a 48 MP photo fits, a small file
// whose header claims 20000x20000 does not.
const DefaultMaxPixels = 50_000_000

// Decoder turns encoded images into pixels. Dimensions are read from the
// header first, so oversized images are rejected before any pixel memory is
// allocated.
type Decoder struct {
	// MaxPixels bounds width*height. Zero disables the check.
	MaxPixels int
}

// DecodeBytes decodes an encoded image held in memory with the default
// bound. Returns the image and the name of the format that matched.
func DecodeBytes(data []byte) (image.Image, string, error) {
	return Decoder{MaxPixels: DefaultMaxPixels}.DecodeBytes(data)
}

// LoadPath is DecodeBytes for a file; see Decoder.LoadPath.
func LoadPath(path string) (image.Image, string, error) {
	return Decoder{MaxPixels: DefaultMaxPixels}.LoadPath(path)
}

func (d Decoder) DecodeBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", scanerr.New(scanerr.CodeInvalidImage, "decode", "empty image data")
	}
	return d.decode("decode", data, "failed to decode image bytes")
}

// LoadPath reads and decodes the image at path. Both plain filesystem paths
// and file:// URIs are accepted.
func (d Decoder) LoadPath(path string) (image.Image, string, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, "", scanerr.Wrapf(scanerr.CodeInvalidImage, "load", err, "failed to load image from path")
	}
	return d.decode("load", data, "failed to decode image at "+resolved)
}

func (d Decoder) decode(op string, data []byte, failure string) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", scanerr.Wrapf(scanerr.CodeInvalidImage, op, err, "%s", failure)
	}
	if d.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(d.MaxPixels) {
		return nil, "", scanerr.New(scanerr.CodeInvalidImage, op,
			fmt.Sprintf("image is %dx%d, exceeds the %d pixel limit", cfg.Width, cfg.Height, d.MaxPixels))
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", scanerr.Wrapf(scanerr.CodeInvalidImage, op, err, "%s", failure)
	}
	return img, format, nil
}

// ResolvePath turns a file:// URI into a filesystem path. Other inputs are
// returned unchanged.
func ResolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, "file://") {
		return path, nil
	}
	u, err := url.Parse(path)
	if err != nil {
		return "", scanerr.Wrapf(scanerr.CodeInvalidImage, "load", err, "invalid file URI %q", path)
	}
	if u.Path == "" {
		return "", scanerr.New(scanerr.CodeInvalidImage, "load", fmt.Sprintf("file URI %q has no path", path))
	}
	return u.Path, nil
}
