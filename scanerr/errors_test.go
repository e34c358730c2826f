package scanerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shinow/qrscan/scanerr"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *scanerr.Error
		want string
	}{
		{
			name: "no cause",
			err:  scanerr.New(scanerr.CodeInvalidArgument, "generate", "missing 'code'"),
			want: "[INVALID_ARGUMENT] generate: missing 'code'",
		},
		{
			name: "cause with same text",
			err:  scanerr.Wrap(scanerr.CodeDetection, "detect", errors.New("engine down")),
			want: "[DETECTION_ERROR] detect: engine down",
		},
		{
			name: "cause with own message",
			err:  scanerr.Wrapf(scanerr.CodeInvalidImage, "scan.path", errors.New("open x: no such file"), "failed to load image from path"),
			want: "[INVALID_IMAGE] scan.path: failed to load image from path: open x: no such file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := scanerr.New(scanerr.CodeBusy, "live", "another request is pending")
	wrapped := fmt.Errorf("dispatch: %w", base)

	assert.Equal(t, scanerr.CodeBusy, scanerr.CodeOf(wrapped))
	assert.True(t, scanerr.Is(wrapped, scanerr.CodeBusy))
	assert.False(t, scanerr.Is(wrapped, scanerr.CodeSetupFailed))
	assert.Equal(t, scanerr.Code(""), scanerr.CodeOf(errors.New("plain")))

	se, ok := scanerr.As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "live", se.Op)

	assert.Nil(t, scanerr.Wrap(scanerr.CodeImage, "x", nil))
}
