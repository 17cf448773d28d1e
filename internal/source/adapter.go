package source

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/session"
)

// discoverMaxAge limits startup discovery to recently touched transcripts.
const discoverMaxAge = 24 * time.Hour

// Adapter runs the Claude Code transcript pipeline: discovery, watching,
// tailing, and delivery into the session manager.
type Adapter struct {
	mgr  *session.Manager
	kv   kv.KV
	dirs []string

	mu      sync.Mutex
	tailing map[string]bool
	wg      sync.WaitGroup
}

// DefaultTranscriptDir is where Claude Code keeps its transcripts.
func DefaultTranscriptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".claude", "projects")
}

// NewAdapter wires an adapter over the given transcript directories.
// An empty dirs list falls back to the default location. db may be nil;
// offsets are then not persisted and every run re-reads from the start.
func NewAdapter(mgr *session.Manager, db kv.KV, dirs []string) *Adapter {
	if len(dirs) == 0 {
		dirs = []string{DefaultTranscriptDir()}
	}
	return &Adapter{
		mgr:     mgr,
		kv:      db,
		dirs:    dirs,
		tailing: make(map[string]bool),
	}
}

// Run discovers existing transcripts, starts a tailer per file, and
// watches for new ones until ctx is cancelled. It blocks; run it in a
// goroutine and cancel the context to stop.
func (a *Adapter) Run(ctx context.Context) {
	found := make(chan TranscriptFile, 16)

	for _, dir := range a.dirs {
		files, err := Discover(ctx, dir, discoverMaxAge)
		if err != nil {
			logf("discovery in %s: %v", dir, err)
		}
		for _, tf := range files {
			a.startTailer(ctx, tf)
		}

		a.wg.Add(1)
		go func(dir string) {
			defer a.wg.Done()
			if err := WatchForNew(ctx, dir, found); err != nil {
				logf("watching %s: %v", dir, err)
			}
		}(dir)
	}

	for {
		select {
		case <-ctx.Done():
			a.wg.Wait()
			return
		case tf := <-found:
			a.startTailer(ctx, tf)
		}
	}
}

// startTailer spawns one tailer goroutine per transcript, deduplicating
// repeated watch notifications for the same path.
func (a *Adapter) startTailer(ctx context.Context, tf TranscriptFile) {
	a.mu.Lock()
	if a.tailing[tf.Path] {
		a.mu.Unlock()
		return
	}
	a.tailing[tf.Path] = true
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		t := NewTailer(tf.Path, a.loadOffset(tf.Path), 0)
		lines := make(chan []byte, 64)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for line := range lines {
				a.handleLine(tf, line)
				a.saveOffset(tf.Path, t.Offset())
			}
		}()

		offset, err := t.Tail(ctx, lines)
		close(lines)
		<-done
		if err != nil {
			logf("tailing %s: %v", tf.Path, err)
		}
		a.saveOffset(tf.Path, offset)
	}()
}

// handleLine parses one transcript line and delivers it. Activity syncs
// first so prompts and responses attach to the correct project/session.
func (a *Adapter) handleLine(tf TranscriptFile, line []byte) {
	ev := ParseLine(line)
	if ev == nil {
		return
	}

	sourceSessionID := ev.SourceSessionID
	if sourceSessionID == "" {
		sourceSessionID = tf.SourceSessionID
	}

	if _, err := a.mgr.SyncFromSource(session.SyncInput{
		SourceID:        SourceID,
		ProjectPath:     ev.WorkspacePath,
		SourceSessionID: sourceSessionID,
	}); err != nil {
		logf("syncing %s: %v", sourceSessionID, err)
		return
	}

	switch ev.Kind {
	case KindPrompt:
		a.mgr.OnPromptDetected(session.PromptInput{
			Text:            ev.Text,
			Timestamp:       ev.Timestamp,
			SourceID:        SourceID,
			SourceSessionID: sourceSessionID,
		})
	case KindResponse:
		a.mgr.AddResponse(session.ResponseInput{
			Timestamp:     ev.Timestamp,
			Source:        SourceID,
			Text:          ev.Text,
			Success:       true,
			Reason:        "completed",
			FilesModified: ev.FilesModified,
			ToolCalls:     ev.ToolCalls,
		})
	}
}

func (a *Adapter) loadOffset(path string) int64 {
	if a.kv == nil {
		return 0
	}
	raw, ok, err := a.kv.Get(kv.TailerOffsetPrefix + path)
	if err != nil || !ok {
		return 0
	}
	offset, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return offset
}

func (a *Adapter) saveOffset(path string, offset int64) {
	if a.kv == nil {
		return
	}
	key := kv.TailerOffsetPrefix + path
	if err := a.kv.Set(key, []byte(strconv.FormatInt(offset, 10))); err != nil {
		logf("persisting offset for %s: %v", path, err)
	}
}

func logf(format string, args ...any) {
	log.Printf("source: "+format, args...)
}
