package qrgen_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinow/qrscan/detect"
	"github.com/shinow/qrscan/qrgen"
	"github.com/shinow/qrscan/scanerr"
)

func TestGenerateRoundTrip(t *testing.T) {
	engine := detect.New(detect.DefaultOptions())
	texts := []string{
		"hello",
		"HTTPS://EXAMPLE.COM/PATH",
		"0123456789",
		"https://example.com/a?b=c&d=e",
		"héllo wörld ✓",
		"line one\nline two",
		strings.Repeat("payload-", 40),
	}

	for _, format := range []string{qrgen.FormatPNG, qrgen.FormatJPEG} {
		gen := qrgen.New(qrgen.Options{Height: 400, Format: format, QuietZone: 4})
		for _, text := range texts {
			t.Run(format+"/"+text[:min(len(text), 12)], func(t *testing.T) {
				out, err := gen.Generate(context.Background(), text)
				require.NoError(t, err)
				assert.Equal(t, format, out.Format)
				assert.Equal(t, 400, out.Height)
				assert.Equal(t, 400, out.Width)

				img, decodedFormat, err := detect.DecodeBytes(out.Data)
				require.NoError(t, err)
				assert.Equal(t, format, decodedFormat)

				got, found, err := engine.Detect(context.Background(), img)
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, text, got)
			})
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		opts qrgen.Options
		text string
		code scanerr.Code
	}{
		{
			name: "empty text",
			opts: qrgen.DefaultOptions(),
			text: "",
			code: scanerr.CodeInvalidArgument,
		},
		{
			name: "invalid utf-8",
			opts: qrgen.DefaultOptions(),
			text: string([]byte{0xff, 0xfe, 0x41}),
			code: scanerr.CodeEncoding,
		},
		{
			name: "content exceeds symbol capacity",
			opts: qrgen.DefaultOptions(),
			text: strings.Repeat("x", 3000),
			code: scanerr.CodeFilter,
		},
		{
			name: "height too small for symbol",
			opts: qrgen.Options{Height: 10, Format: qrgen.FormatPNG, QuietZone: 4},
			text: "hello",
			code: scanerr.CodeImage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := qrgen.New(tt.opts).Generate(context.Background(), tt.text)
			require.Error(t, err)
			assert.Equal(t, tt.code, scanerr.CodeOf(err))
		})
	}
}

func TestNewDefaults(t *testing.T) {
	out, err := qrgen.New(qrgen.Options{Format: "JPG"}).Generate(context.Background(), "defaults")
	require.NoError(t, err)
	assert.Equal(t, qrgen.FormatJPEG, out.Format)
	assert.Equal(t, 400, out.Height)
}
