package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/models"
)

func tempContent(t *testing.T) (string, *FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return dir, fs
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func collect(t *testing.T, fs *FS) []Entry {
	t.Helper()
	var out []Entry
	for e, err := range fs.Walk(context.Background()) {
		if err != nil {
			t.Fatalf("Walk: %v", err)
		}
		if e.Err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func skipped(t *testing.T, fs *FS) map[string]error {
	t.Helper()
	out := make(map[string]error)
	for e, err := range fs.Walk(context.Background()) {
		if err != nil {
			t.Fatalf("Walk: %v", err)
		}
		if e.Err != nil {
			out[e.Path] = e.Err
		}
	}
	return out
}

func paths(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func TestRead(t *testing.T) {
	dir, s := tempContent(t)
	writeFile(t, dir, "a/note.md", "# Hello\nWorld\n")
	got, err := s.Read("a/note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "# Hello\nWorld\n" {
		t.Errorf("content mismatch: got %q", got)
	}
	if _, err := s.Read("missing.md"); err == nil {
		t.Error("expected error reading missing file")
	}
}

func TestTraversalBlocked(t *testing.T) {
	_, s := tempContent(t)
	if _, err := s.Read("../../../etc/passwd"); err == nil {
		t.Error("expected traversal error")
	}
	if _, err := s.Read("/etc/passwd"); err == nil {
		t.Error("expected absolute path error")
	}
}

func TestStat(t *testing.T) {
	dir, s := tempContent(t)
	writeFile(t, dir, "a/note.md", "x")
	info, err := s.Stat("a")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("a is not reported as a directory")
	}
	if _, err := s.Stat("missing"); !errors.Is(err, apperr.ErrFilesystem) {
		t.Errorf("Stat(missing) = %v, want filesystem error", err)
	}
	if _, err := s.Stat("../outside"); err == nil {
		t.Error("expected traversal error")
	}
}

func TestNewFS_NotExist(t *testing.T) {
	if _, err := NewFS("/nonexistent/path/xyz"); err == nil {
		t.Error("expected error for nonexistent dir")
	}
}

func TestWalk_PreOrderSorted(t *testing.T) {
	dir, s := tempContent(t)
	writeFile(t, dir, "b.md", "b")
	writeFile(t, dir, "a/z.md", "z")
	writeFile(t, dir, "a/c/deep.markdown", "deep")
	writeFile(t, dir, "a/b.md", "b")
	writeFile(t, dir, "image.png", "binary")

	got := collect(t, s)
	want := []string{"a", "a/b.md", "a/c", "a/c/deep.markdown", "a/z.md", "b.md"}
	if !reflect.DeepEqual(paths(got), want) {
		t.Fatalf("walk order = %v, want %v", paths(got), want)
	}
	if got[0].Kind != models.KindDirectory || got[1].Kind != models.KindDocument {
		t.Errorf("kinds = %s, %s", got[0].Kind, got[1].Kind)
	}
	if got[3].Depth != 3 || got[3].Name != "deep.markdown" {
		t.Errorf("deep entry = %+v", got[3])
	}
	if got[1].Size != 1 || got[1].ModTime.IsZero() {
		t.Errorf("document stat missing: %+v", got[1])
	}
}

func TestWalk_SkipsDotEntries(t *testing.T) {
	dir, s := tempContent(t)
	writeFile(t, dir, ".git/HEAD.md", "x")
	writeFile(t, dir, ".hidden.md", "x")
	writeFile(t, dir, "visible.md", "x")

	if got := paths(collect(t, s)); !reflect.DeepEqual(got, []string{"visible.md"}) {
		t.Errorf("walk = %v", got)
	}
}

func TestWalk_Extensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "x")
	writeFile(t, dir, "b.txt", "x")
	s, err := NewFS(dir, WithExtensions("txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got := paths(collect(t, s)); !reflect.DeepEqual(got, []string{"b.txt"}) {
		t.Errorf("walk = %v", got)
	}
}

func TestWalk_Restartable(t *testing.T) {
	dir, s := tempContent(t)
	writeFile(t, dir, "one.md", "1")
	first := paths(collect(t, s))
	writeFile(t, dir, "two.md", "2")
	second := paths(collect(t, s))
	if len(first) != 1 || len(second) != 2 {
		t.Errorf("first = %v, second = %v", first, second)
	}
}

func TestWalk_SymlinkCycleSkipped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir, s := tempContent(t)
	writeFile(t, dir, "a/note.md", "x")
	if err := os.Symlink(dir, filepath.Join(dir, "a", "loop")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "shared/s.md", "x")
	if err := os.Symlink(filepath.Join(dir, "shared"), filepath.Join(dir, "a", "linked")); err != nil {
		t.Fatal(err)
	}

	got := paths(collect(t, s))
	want := []string{"a", "a/linked", "a/linked/s.md", "a/note.md", "shared", "shared/s.md"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}

	skips := skipped(t, s)
	if len(skips) != 1 || !errors.Is(skips["a/loop"], apperr.ErrCycleDetected) {
		t.Errorf("skipped = %v, want a/loop as a cycle", skips)
	}
}

func TestWalk_BrokenSymlinkSkipped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir, s := tempContent(t)
	writeFile(t, dir, "ok.md", "x")
	if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "dangling.md")); err != nil {
		t.Fatal(err)
	}
	if got := paths(collect(t, s)); !reflect.DeepEqual(got, []string{"ok.md"}) {
		t.Errorf("walk = %v", got)
	}
	if err := skipped(t, s)["dangling.md"]; !errors.Is(err, apperr.ErrFilesystem) {
		t.Errorf("dangling.md skip error = %v, want filesystem error", err)
	}
}

func TestWalk_CancelledContext(t *testing.T) {
	dir, s := tempContent(t)
	writeFile(t, dir, "a.md", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range s.Walk(ctx) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", gotErr)
	}
}

func TestWalk_EarlyBreak(t *testing.T) {
	dir, s := tempContent(t)
	writeFile(t, dir, "a.md", "x")
	writeFile(t, dir, "b.md", "x")
	n := 0
	for range s.Walk(context.Background()) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterations = %d", n)
	}
}
