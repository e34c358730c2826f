package scanner

import (
	"fmt"

	"github.com/shinow/qrscan/qrgen"
	"github.com/shinow/qrscan/scanerr"
)

// Op names an operation accepted by Dispatch.
type Op int

const (
	OpGenerate Op = iota + 1
	OpScanBytes
	OpScanPath
	OpScanPhoto
	OpScanLive
)

func (o Op) String() string {
	switch o {
	case OpGenerate:
		return "generate"
	case OpScanBytes:
		return "scan.bytes"
	case OpScanPath:
		return "scan.path"
	case OpScanPhoto:
		return "scan.photo"
	case OpScanLive:
		return "scan.live"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// interactive ops need a presentation surface and occupy the controller's
// single interactive slot.
func (o Op) interactive() bool {
	return o == OpScanPhoto || o == OpScanLive
}

// Viewport is the area a live preview should cover. Zero values let the
// surface pick its own size.
type Viewport struct {
	Width  int
	Height int
}

// Request is one incoming call. Only the field matching Op is read.
type Request struct {
	Op       Op
	Text     string   // OpGenerate
	Bytes    []byte   // OpScanBytes
	Path     string   // OpScanPath, plain path or file:// URI
	Viewport Viewport // OpScanLive
}

// ResultKind tags the variant held by a Result.
type ResultKind int

const (
	KindEmpty ResultKind = iota
	KindPayload
	KindImage
	KindError
)

func (k ResultKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindPayload:
		return "payload"
	case KindImage:
		return "image"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the single outcome of a Request.
type Result struct {
	Kind    ResultKind
	Payload string         // KindPayload
	Image   *qrgen.Image   // KindImage
	Err     *scanerr.Error // KindError
}

// Empty is the result of a scan that found nothing or was cancelled.
func Empty() Result { return Result{Kind: KindEmpty} }

// Payload wraps decoded symbol text.
func Payload(text string) Result { return Result{Kind: KindPayload, Payload: text} }

// Failed wraps err. Errors outside the scanerr taxonomy are reported under
// fallback.
func Failed(op string, fallback scanerr.Code, err error) Result {
	if se, ok := scanerr.As(err); ok {
		return Result{Kind: KindError, Err: se}
	}
	return Result{Kind: KindError, Err: scanerr.Wrap(fallback, op, err)}
}

func failure(e *scanerr.Error) Result { return Result{Kind: KindError, Err: e} }

// Capability is a permission-gated resource.
type Capability int

const (
	CapabilityCamera Capability = iota + 1
	CapabilityPhotoLibrary
)

func (c Capability) String() string {
	switch c {
	case CapabilityCamera:
		return "camera"
	case CapabilityPhotoLibrary:
		return "photo-library"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Decision is the current authorization for a Capability.
type Decision int

const (
	DecisionNotDetermined Decision = iota
	DecisionGranted
	DecisionDenied
	DecisionRestricted
)

func (d Decision) String() string {
	switch d {
	case DecisionNotDetermined:
		return "not-determined"
	case DecisionGranted:
		return "granted"
	case DecisionDenied:
		return "denied"
	case DecisionRestricted:
		return "restricted"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// ParseDecision is the inverse of Decision.String.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "", "not-determined":
		return DecisionNotDetermined, nil
	case "granted":
		return DecisionGranted, nil
	case "denied":
		return DecisionDenied, nil
	case "restricted":
		return DecisionRestricted, nil
	default:
		return DecisionNotDetermined, fmt.Errorf("unknown decision %q", s)
	}
}

// Symbology is the barcode standard a detection output reports.
type Symbology string

const SymbologyQR Symbology = "qr"

// Device identifies a capture device.
type Device struct {
	ID    string
	Label string
}
