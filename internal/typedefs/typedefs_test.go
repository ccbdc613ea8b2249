package typedefs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/bitkeep/internal/models"
)

const taskFile = `---
name: Task
icon: check-square
properties:
  - id: title
    name: Title
    type: text
    required: true
  - id: priority
    name: Priority
    type: select
    options: [low, high]
  - id: effort
    name: Effort
    type: slider
    options: [0, 10, 1]
---

Something to get done.
`

type recorder struct {
	mu   sync.Mutex
	defs []models.BitTypeDefinition
	fail error
}

func (r *recorder) UpdateBitType(_ context.Context, def models.BitTypeDefinition) (models.Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return models.Ref{}, r.fail
	}
	r.defs = append(r.defs, def)
	return models.Ref{ID: def.ID, Name: def.Name}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.defs)
}

func (r *recorder) last() models.BitTypeDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defs[len(r.defs)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newSyncer(t *testing.T) (string, *Syncer, *recorder) {
	t.Helper()
	root := t.TempDir()
	dir, err := NewDir(root)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	return root, NewSyncer(dir, rec, quietLogger()), rec
}

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

func TestParse(t *testing.T) {
	def, err := Parse("types/task.md", []byte(taskFile))
	if err != nil {
		t.Fatal(err)
	}
	if def.ID != "task" || def.Name != "Task" || def.IconName != "check-square" {
		t.Errorf("header = %+v", def)
	}
	if def.Origin != models.OriginBuiltin {
		t.Errorf("origin = %q", def.Origin)
	}
	if def.Description != "Something to get done." {
		t.Errorf("description = %q", def.Description)
	}
	if len(def.Properties) != 3 {
		t.Fatalf("properties = %d", len(def.Properties))
	}
	for i, p := range def.Properties {
		if p.Order != i {
			t.Errorf("%s order = %d, want %d", p.ID, p.Order, i)
		}
	}
	if !def.Properties[0].Required || def.Properties[1].Type != models.PropSelect {
		t.Errorf("properties = %+v", def.Properties)
	}
	if lo, hi, _, ok := def.Properties[2].Range(); !ok || lo != 0 || hi != 10 {
		t.Errorf("slider range = %v %v %v", lo, hi, ok)
	}
}

func TestParseExplicitID(t *testing.T) {
	def, err := Parse("x.md", []byte("---\nid: book\nname: Book\nicon: book\n---\n"))
	if err != nil {
		t.Fatal(err)
	}
	if def.ID != "book" || def.Description != "" {
		t.Errorf("def = %+v", def)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no frontmatter": "# Just markdown",
		"unclosed":       "---\nname: Broken\n",
		"bad yaml":       "---\nname: [unclosed\n---\n",
		"missing icon":   "---\nname: Thing\n---\n",
		"bad type":       "---\nname: Thing\nicon: x\nproperties:\n  - id: a\n    name: A\n    type: colour\n---\n",
		"duplicate prop": "---\nname: Thing\nicon: x\nproperties:\n  - {id: a, name: A, type: text}\n  - {id: a, name: B, type: text}\n---\n",
	}
	for name, content := range cases {
		if _, err := Parse("thing.md", []byte(content)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := Parse("x.md", []byte("plain")); !errors.Is(err, ErrNoFrontmatter) {
		t.Errorf("err = %v, want ErrNoFrontmatter", err)
	}
}

func TestDirRejectsEscape(t *testing.T) {
	dir, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{"../etc/passwd", "/etc/passwd", ""} {
		if _, err := dir.Read(rel); err == nil {
			t.Errorf("Read(%q) should fail", rel)
		}
	}
}

func TestNewDirRequiresDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDir(file); err == nil {
		t.Error("expected error for a file root")
	}
	if _, err := NewDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for a missing root")
	}
}

func TestSyncSkipsUnchanged(t *testing.T) {
	root, s, rec := newSyncer(t)
	ctx := context.Background()
	writeFile(t, root, "task.md", taskFile)
	writeFile(t, root, "nested/book.md", "---\nname: Book\nicon: book\n---\n")
	writeFile(t, root, "broken.md", "no frontmatter")
	writeFile(t, root, "notes.txt", "ignored")

	n, err := s.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || rec.count() != 2 {
		t.Errorf("written = %d, calls = %d; want 2", n, rec.count())
	}

	n, err = s.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second sync wrote %d, want 0", n)
	}

	writeFile(t, root, "nested/book.md", "---\nname: Books\nicon: book\n---\n")
	if n, _ := s.Sync(ctx); n != 1 {
		t.Errorf("sync after edit wrote %d, want 1", n)
	}
	if got := rec.last(); got.ID != "book" || got.Name != "Books" {
		t.Errorf("last = %+v", got)
	}
}

func TestSyncRetriesFailedApply(t *testing.T) {
	root, s, rec := newSyncer(t)
	ctx := context.Background()
	writeFile(t, root, "task.md", taskFile)

	rec.fail = errors.New("store down")
	if n, _ := s.Sync(ctx); n != 0 {
		t.Fatalf("written = %d, want 0", n)
	}
	rec.fail = nil
	if n, _ := s.Sync(ctx); n != 1 {
		t.Errorf("retry wrote %d, want 1", n)
	}
}

func TestSyncFileAndForget(t *testing.T) {
	root, s, rec := newSyncer(t)
	ctx := context.Background()
	writeFile(t, root, "task.md", taskFile)

	changed, err := s.SyncFile(ctx, "task.md")
	if err != nil || !changed {
		t.Fatalf("SyncFile = %v, %v", changed, err)
	}
	if changed, _ := s.SyncFile(ctx, "task.md"); changed {
		t.Error("unchanged file applied twice")
	}
	s.Forget("task.md")
	if changed, _ := s.SyncFile(ctx, "task.md"); !changed {
		t.Error("forgotten file should apply again")
	}
	if rec.count() != 2 {
		t.Errorf("calls = %d, want 2", rec.count())
	}
}

func TestWatcherAppliesNewAndChangedFiles(t *testing.T) {
	root, s, rec := newSyncer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Watch(ctx, s) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, root, "task.md", taskFile)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count() >= 1 && rec.last().Name == "Task"
	}, "new type file not applied")

	writeFile(t, root, "task.md", strings.Replace(taskFile, "name: Task", "name: Chore", 1))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.last().Name == "Chore"
	}, "changed type file not applied")

	if err := os.MkdirAll(filepath.Join(root, "more"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	writeFile(t, root, "more/book.md", "---\nname: Book\nicon: book\n---\n")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.last().ID == "book"
	}, "file in new directory not applied")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop")
	}
}
