package surface

import (
	"fmt"
	"io"

	"github.com/shinow/qrscan/scanner"
)

// Resolver implements scanner.SurfaceResolver over a Terminal.
type Resolver struct {
	mode string
	term *Terminal
}

func NewResolver(mode string, t *Terminal) (*Resolver, error) {
	switch mode {
	case "", "auto":
		mode = "auto"
	case "terminal", "none":
	default:
		return nil, fmt.Errorf("unknown surface mode %q", mode)
	}
	return &Resolver{mode: mode, term: t}, nil
}

// ActiveSurface checks the terminal on every call; stdin may be detached
// while the server runs.
func (r *Resolver) ActiveSurface() (scanner.Surface, bool) {
	if r.term == nil {
		return nil, false
	}
	switch r.mode {
	case "terminal":
		return r.term, true
	case "auto":
		if r.term.IsInteractive() {
			return r.term, true
		}
	}
	return nil, false
}

// Bell rings the terminal bell as scan feedback.
type Bell struct {
	Out io.Writer
}

func (b Bell) Success() {
	fmt.Fprint(b.Out, "\a")
}
