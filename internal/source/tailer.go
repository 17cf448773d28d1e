package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// Tailer follows one transcript file, delivering complete appended lines.
// It polls by size rather than watching the file itself, which holds up
// better against editors and CLIs that append from another process.
type Tailer struct {
	path     string
	offset   int64
	interval time.Duration
}

// NewTailer starts reading at offset; interval defaults to 500ms.
func NewTailer(path string, offset int64, interval time.Duration) *Tailer {
	if interval == 0 {
		interval = 500 * time.Millisecond
	}
	return &Tailer{path: path, offset: offset, interval: interval}
}

// Tail blocks until ctx is cancelled, sending each complete new line on
// lines. It waits for the file to appear, and resets to the start when
// the file shrinks under the stored offset (truncation or replacement).
// The returned offset is where the next run should resume.
func (t *Tailer) Tail(ctx context.Context, lines chan<- []byte) (int64, error) {
	for {
		if _, err := os.Stat(t.path); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return t.offset, nil
		case <-time.After(t.interval):
		}
	}

	f, err := os.Open(t.path)
	if err != nil {
		return t.offset, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return t.offset, fmt.Errorf("stat %s: %w", t.path, err)
	}
	if info.Size() < t.offset {
		t.offset = 0
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return t.offset, fmt.Errorf("seek %s to %d: %w", t.path, t.offset, err)
	}

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		for {
			raw, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					break // partial line, wait for the rest
				}
				return t.offset, fmt.Errorf("read %s: %w", t.path, err)
			}

			t.offset += int64(len(raw))
			for len(raw) > 0 && (raw[len(raw)-1] == '\n' || raw[len(raw)-1] == '\r') {
				raw = raw[:len(raw)-1]
			}
			if len(raw) == 0 {
				continue
			}

			line := make([]byte, len(raw))
			copy(line, raw)
			select {
			case lines <- line:
			case <-ctx.Done():
				return t.offset, nil
			}
		}

		select {
		case <-ctx.Done():
			return t.offset, nil
		case <-ticker.C:
			info, err := os.Stat(t.path)
			if err != nil {
				continue // removed; wait for it to come back
			}
			if info.Size() < t.offset {
				t.offset = 0
				f.Close()
				f, err = os.Open(t.path)
				if err != nil {
					return t.offset, fmt.Errorf("reopen %s: %w", t.path, err)
				}
				reader = bufio.NewReader(f)
			}
		}
	}
}

// Offset returns the current read position.
func (t *Tailer) Offset() int64 {
	return t.offset
}
