package encoder

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// maxLineBytes bounds a single unterminated diagnostic line.
const maxLineBytes = 64 << 10

var timePattern = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// diagnostics is the encoder's stderr sink. It splits the stream on both
// carriage returns and newlines, hands each line to onLine and keeps only
// the last few lines.
type diagnostics struct {
	mu      sync.Mutex
	partial []byte
	tail    []string
	max     int
	onLine  func(string)
}

func newDiagnostics(maxLines int, onLine func(string)) *diagnostics {
	return &diagnostics{max: maxLines, onLine: onLine}
}

func (d *diagnostics) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range p {
		if c == '\n' || c == '\r' {
			d.emit()
			continue
		}
		if len(d.partial) < maxLineBytes {
			d.partial = append(d.partial, c)
		}
	}
	return len(p), nil
}

// Flush emits any unterminated final line.
func (d *diagnostics) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emit()
}

// Tail returns the retained lines joined by newlines.
func (d *diagnostics) Tail() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.tail, "\n")
}

func (d *diagnostics) emit() {
	line := strings.TrimSpace(string(d.partial))
	d.partial = d.partial[:0]
	if line == "" {
		return
	}
	if len(d.tail) == d.max {
		copy(d.tail, d.tail[1:])
		d.tail = d.tail[:d.max-1]
	}
	d.tail = append(d.tail, line)
	if d.onLine != nil {
		d.onLine(line)
	}
}

// parseTime extracts the output timestamp from an ffmpeg status line.
func parseTime(line string) (float64, bool) {
	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(h*3600+mins*60) + secs, true
}
