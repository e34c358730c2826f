package log

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

// maxRawDump caps the bytes dumped per frame; scan requests carry whole
// images.
const maxRawDump = 512

// RawLogger records raw API frames.
type RawLogger interface {
	Log(in bool, remote string, data []byte)
}

type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw returns a RawLogger writing to w. A nil w discards everything.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

// Log writes one line per frame. in=true means client to server.
func (r *rawLogger) Log(in bool, remote string, data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}
	dir := "S->C"
	if in {
		dir = "C->S"
	}
	dump := data
	suffix := ""
	if len(dump) > maxRawDump {
		dump = dump[:maxRawDump]
		suffix = fmt.Sprintf(" ...(+%d bytes)", len(data)-maxRawDump)
	}
	line := fmt.Sprintf("%s %s %s frame: %d bytes, hex: %s%s\n",
		time.Now().Format("2006/01/02 15:04:05.000"), remote, dir, len(data), hex.EncodeToString(dump), suffix)

	r.mu.Lock()
	_, _ = io.WriteString(r.w, line)
	r.mu.Unlock()
}
