package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogBuffer keeps the most recent log lines in a ring so /api/logs can show
// what a device did without shell access. It is safe as a log.SetOutput
// target.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []string
	next    int
	full    bool
	partial []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{ring: make([]string, maxLines)}
}

// Write implements io.Writer. Bytes after the last newline are held until the
// line is completed by a later write.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := p
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := string(b.partial) + string(data[:i])
		b.partial = b.partial[:0]
		b.appendLineLocked(line)
		data = data[i+1:]
	}
	b.partial = append(b.partial, data...)
	return len(p), nil
}

func (b *LogBuffer) appendLineLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	if b.full {
		b.dropped++
	}
	b.ring[b.next] = line
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.full = true
	}
}

// orderedLocked returns the buffered lines oldest first.
func (b *LogBuffer) orderedLocked() []string {
	if !b.full {
		return b.ring[:b.next]
	}
	out := make([]string, 0, len(b.ring))
	out = append(out, b.ring[b.next:]...)
	return append(out, b.ring[:b.next]...)
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Device  string   `json:"device,omitempty"`
	Lines   []string `json:"lines"`
}

// Snapshot returns up to tail of the newest lines. A non-empty device keeps
// only lines that mention it as a whole word.
func (b *LogBuffer) Snapshot(tail int, device string) (lines []string, dropped uint64) {
	if tail <= 0 {
		tail = 200
	}
	b.mu.Lock()
	all := b.orderedLocked()
	dropped = b.dropped
	for i := len(all) - 1; i >= 0 && len(lines) < tail; i-- {
		if device == "" || mentions(all[i], device) {
			lines = append(lines, all[i])
		}
	}
	b.mu.Unlock()

	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, dropped
}

func mentions(line, word string) bool {
	for _, f := range strings.Fields(line) {
		if f == word {
			return true
		}
	}
	return false
}

func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		tail := 200
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}
		device := strings.TrimSpace(q.Get("device"))

		lines, dropped := b.Snapshot(tail, device)
		w.Header().Set("Cache-Control", "no-store")

		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, line := range lines {
				_, _ = fmt.Fprintln(w, line)
			}
			return
		}

		bts, err := json.MarshalIndent(LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Device:  device,
			Lines:   lines,
		}, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(bts)
		_, _ = w.Write([]byte("\n"))
	})
}
