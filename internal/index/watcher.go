package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the content root and processes file
// change events until ctx is cancelled. It calls handler (if non-nil) after
// each index mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// index entries whose files no longer exist on disk.
func (ix *Indexer) Watch(ctx context.Context, root string, handler ChangeHandler) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	ix.logger.Info("watcher: started", slog.String("root", root))

	emit := func(ev *models.ChangeEvent) {
		if ev != nil && handler != nil {
			handler(*ev)
		}
	}

	// reconcileTimer debounces rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			ix.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			ix.reconcile(emit)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || hidden(rel) {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						ix.logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					} else {
						ix.logger.Debug("watcher: watching new dir", slog.String("path", rel))
					}
					ix.indexNewDir(root, ev.Name, emit)
					continue
				}
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				change, idxErr := ix.Reindex(rel)
				if idxErr != nil {
					ix.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				if change != nil {
					ix.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", string(change.Op)))
				}
				emit(change)

			case ev.Op&fsnotify.Remove != 0:
				change, delErr := ix.Remove(rel)
				if delErr != nil {
					ix.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				ix.logger.Debug("watcher: deleted", slog.String("path", rel))
				emit(change)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a separate Create when it stays under the root.
				change, delErr := ix.Remove(rel)
				if delErr != nil {
					ix.logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
				} else {
					emit(change)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile removes index entries without a file on disk and indexes files
// that are missing or stale.
func (ix *Indexer) reconcile(emit func(*models.ChangeEvent)) {
	checksums, err := ix.db.AllChecksums()
	if err != nil {
		ix.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := ix.store.List("")
	if err != nil {
		ix.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if change, delErr := ix.Remove(p); delErr == nil {
			ix.logger.Debug("reconcile: removed stale", slog.String("path", p))
			emit(change)
		}
	}

	// Reindex compares checksums itself and yields no event for unchanged files.
	for p := range disk {
		if change, idxErr := ix.Reindex(p); idxErr == nil {
			emit(change)
		}
	}
}

// indexNewDir indexes the files already present in a newly created directory.
func (ix *Indexer) indexNewDir(root, dir string, emit func(*models.ChangeEvent)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p != dir && storage.Ignored(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if change, idxErr := ix.Reindex(filepath.ToSlash(rel)); idxErr == nil && change != nil {
			ix.logger.Debug("watcher: indexed from new dir", slog.String("path", change.ID))
			emit(change)
		}
		return nil
	})
}

// addDirsRecursive adds root and its visible subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && storage.Ignored(d.Name()) {
			return fs.SkipDir
		}
		return w.Add(p)
	})
}

// hidden reports whether any element of rel is a dot-file or temp file.
func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part != "." && storage.Ignored(part) {
			return true
		}
	}
	return false
}
