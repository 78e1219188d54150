package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/testutil"
)

func TestMoveDirectory_FollowsDisk(t *testing.T) {
	root, db, e := testEngine(t)
	seedContent(t, root)
	mustSync(t, e)
	advanced := dirAt(t, db, "guides/advanced")

	testutil.Rename(t, root, "guides/advanced", "advanced")
	if err := e.MoveDirectory(context.Background(), advanced.ID, "", "advanced"); err != nil {
		t.Fatalf("MoveDirectory: %v", err)
	}
	if got := dirAt(t, db, "advanced"); got.ID != advanced.ID {
		t.Errorf("id changed: %s -> %s", advanced.ID, got.ID)
	}

	if r := mustSync(t, e); r.Mutations != 0 {
		t.Errorf("pass after move changed storage: %+v", r)
	}
	checkPaths(t, db)
}

func TestMoveDirectory_RejectsWhenDiskDiffers(t *testing.T) {
	root, db, e := testEngine(t)
	seedContent(t, root)
	mustSync(t, e)
	advanced := dirAt(t, db, "guides/advanced")
	if err := os.MkdirAll(filepath.Join(root, ".hidden"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"advanced", ".hidden", "index.md"} {
		err := e.MoveDirectory(context.Background(), advanced.ID, "", name)
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("move to %q: err = %v, want ErrInvalidInput", name, err)
		}
	}
	if got := dirAt(t, db, "guides/advanced"); got.ID != advanced.ID {
		t.Errorf("rejected moves changed storage: %+v", got)
	}
}

func TestMoveDirectory_InProgress(t *testing.T) {
	root, db, e := testEngine(t)
	seedContent(t, root)
	mustSync(t, e)
	advanced := dirAt(t, db, "guides/advanced")

	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.MoveDirectory(context.Background(), advanced.ID, "", "advanced")
	if !errors.Is(err, apperr.ErrSyncInProgress) {
		t.Errorf("err = %v, want ErrSyncInProgress", err)
	}
}
