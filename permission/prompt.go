package permission

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shinow/qrscan/scanner"
)

// LineReader yields one line of user input.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// LinePrompter asks on Out and reads a y/n answer from In. Anything other
// than yes is a refusal.
type LinePrompter struct {
	In  LineReader
	Out io.Writer
}

var questions = map[scanner.Capability]string{
	scanner.CapabilityCamera:       "Allow qrscan to use the camera?",
	scanner.CapabilityPhotoLibrary: "Allow qrscan to read the photo library?",
}

func (p LinePrompter) Ask(ctx context.Context, c scanner.Capability) (bool, error) {
	q, ok := questions[c]
	if !ok {
		q = fmt.Sprintf("Allow qrscan to use %s?", c)
	}
	if _, err := fmt.Fprintf(p.Out, "%s [y/N] ", q); err != nil {
		return false, err
	}
	line, err := p.In.ReadLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
