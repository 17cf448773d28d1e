package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TranscriptFile is one discovered transcript.
type TranscriptFile struct {
	Path            string
	SourceSessionID string
}

// sourceSessionIDFromPath derives the correlation id from the transcript
// location: {project-hash}/{session-id}.jsonl.
func sourceSessionIDFromPath(path string) string {
	projectHash := filepath.Base(filepath.Dir(path))
	name := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	return projectHash + "/" + name
}

// Discover scans baseDir recursively for .jsonl transcripts modified
// within maxAge. A missing directory yields an empty result.
func Discover(ctx context.Context, baseDir string, maxAge time.Duration) ([]TranscriptFile, error) {
	cutoff := time.Now().Add(-maxAge)
	var files []TranscriptFile

	err := filepath.WalkDir(baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			return nil
		}
		files = append(files, TranscriptFile{
			Path:            path,
			SourceSessionID: sourceSessionIDFromPath(path),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return files, err
	}
	return files, nil
}

// WatchForNew reports new or newly written transcripts under baseDir on
// found until ctx is cancelled. New project directories are picked up
// and watched as they appear.
func WatchForNew(ctx context.Context, baseDir string, found chan<- TranscriptFile) error {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	_ = addDirRecursive(watcher, baseDir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addDirRecursive(watcher, event.Name)
				}
			}
			if (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) &&
				strings.HasSuffix(event.Name, ".jsonl") {
				tf := TranscriptFile{
					Path:            event.Name,
					SourceSessionID: sourceSessionIDFromPath(event.Name),
				}
				select {
				case found <- tf:
				case <-ctx.Done():
					return nil
				}
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func addDirRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = w.Add(path)
		}
		return nil
	})
}
