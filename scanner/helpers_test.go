package scanner_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shinow/qrscan/qrgen"
)

func blankPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func generated(t *testing.T, text string) []byte {
	t.Helper()
	out, err := qrgen.New(qrgen.DefaultOptions()).Generate(context.Background(), text)
	require.NoError(t, err)
	return out.Data
}
