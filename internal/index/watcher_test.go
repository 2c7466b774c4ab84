package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/quill/internal/models"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (l *eventLog) add(ev models.ChangeEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) has(want models.ChangeEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev == want {
			return true
		}
	}
	return false
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	root, ix := testIndexer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var log eventLog
	go ix.Watch(ctx, root, log.add)

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "new.md"), []byte("---\ntype: post\ntitle: New\n---\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := ix.DB().GetChecksum("new.md")
		return cs != ""
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has(models.ChangeEvent{Op: models.ChangeCreated, Entity: models.EntityDocument, ID: "new.md"})
	}, "expected document created event for new.md")
}

func TestWatcher_AssetEvents(t *testing.T) {
	root, ix := testIndexer(t)
	_ = os.MkdirAll(filepath.Join(root, "assets"), 0o755)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var log eventLog
	go ix.Watch(ctx, root, log.add)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "assets", "cat.png"), []byte("png"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return log.has(models.ChangeEvent{Op: models.ChangeCreated, Entity: models.EntityAsset, ID: "cat.png"})
	}, "expected asset created event for cat.png")
}

func TestWatcher_IgnoresHiddenFiles(t *testing.T) {
	root, ix := testIndexer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ix.Watch(ctx, root, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, ".draft.md"), []byte("---\ntype: post\n---\n"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "seen.md"), []byte("---\ntype: post\n---\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := ix.DB().GetChecksum("seen.md")
		return cs != ""
	}, "visible file not indexed")

	if cs, _ := ix.DB().GetChecksum(".draft.md"); cs != "" {
		t.Error("hidden file was indexed")
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root, ix := testIndexer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ix.Watch(ctx, root, nil)

	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(root, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := ix.DB().GetChecksum("subdir/deep.md")
		return cs != ""
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	root, ix := testIndexer(t)

	_ = os.WriteFile(filepath.Join(root, "del.md"), []byte("# Delete Me"), 0o644)
	if err := ix.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	cs, _ := ix.DB().GetChecksum("del.md")
	if cs == "" {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var log eventLog
	go ix.Watch(ctx, root, log.add)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(root, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := ix.DB().GetChecksum("del.md")
		return cs == ""
	}, "deleted file still in index")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has(models.ChangeEvent{Op: models.ChangeDeleted, Entity: models.EntityDocument, ID: "del.md"})
	}, "expected deleted event")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	root, ix := testIndexer(t)

	_ = os.WriteFile(filepath.Join(root, "old.md"), []byte("# Rename"), 0o644)
	if err := ix.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ix.Watch(ctx, root, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(root, "old.md"), filepath.Join(root, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := ix.DB().GetChecksum("old.md")
		newCS, _ := ix.DB().GetChecksum("renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
