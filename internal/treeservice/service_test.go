package treeservice

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/index"
	"github.com/starford/kbtree/internal/models"
	"github.com/starford/kbtree/internal/reconcile"
	"github.com/starford/kbtree/internal/testutil"
)

func testService(t *testing.T) *Service {
	t.Helper()
	root, fs := testutil.TestContent(t)
	db := testutil.TestDB(t)
	testutil.WriteFile(t, root, "index.md", "# Welcome\n")
	testutil.WriteFile(t, root, "guides/intro.md", "---\ntitle: Intro\ncustom_id: intro\ntags: [a, b]\n---\nbody\n")
	testutil.WriteFile(t, root, "guides/deep/leaf.md", "plain text\n")
	e := reconcile.New(db, fs, testutil.Logger(), reconcile.WithRootAlias("Handbook"))
	if _, err := e.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return NewService(db)
}

func TestListChildren_Root(t *testing.T) {
	s := testService(t)
	entries, err := s.ListChildren(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Name != "guides" || entries[1].DisplayName != "Welcome" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestListChildren_Unknown(t *testing.T) {
	s := testService(t)
	_, err := s.ListChildren(context.Background(), "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetDocument_ByCustomIDAndID(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	byCustom, err := s.GetDocument(ctx, "intro")
	if err != nil {
		t.Fatal(err)
	}
	if byCustom.Title != "Intro" || byCustom.Content == "" {
		t.Errorf("document = %+v", byCustom)
	}
	if len(byCustom.Tags) != 2 || byCustom.Tags[0] != "a" {
		t.Errorf("tags = %v", byCustom.Tags)
	}

	byID, err := s.GetDocument(ctx, byCustom.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID.Path != "guides/intro.md" {
		t.Errorf("path = %q", byID.Path)
	}

	if _, err := s.GetDocument(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown ref err = %v", err)
	}
	if _, err := s.GetDocument(ctx, " "); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("blank ref err = %v", err)
	}
}

func TestGetDocument_Breadcrumbs(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	guides, err := s.ListChildren(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	children, err := s.ListChildren(ctx, guides[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	// deep directory first, then intro.md
	leaves, err := s.ListChildren(ctx, children[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(leaves) != 1 {
		t.Fatalf("leaves = %+v", leaves)
	}

	doc, err := s.GetDocument(ctx, leaves[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "leaf" {
		t.Errorf("title = %q, want file name fallback", doc.Title)
	}
	want := []string{"Handbook", "guides", "deep"}
	if len(doc.Breadcrumbs) != len(want) {
		t.Fatalf("breadcrumbs = %+v", doc.Breadcrumbs)
	}
	for i, c := range doc.Breadcrumbs {
		if c.DisplayName != want[i] {
			t.Errorf("crumb %d = %q, want %q", i, c.DisplayName, want[i])
		}
	}
}

func TestDirectory(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	root, err := s.Directory(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if root.DisplayName != "Handbook" || root.Path != "" || len(root.Breadcrumbs) != 0 {
		t.Errorf("root = %+v", root)
	}

	entries, _ := s.ListChildren(ctx, "")
	guides, err := s.Directory(ctx, entries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if guides.Path != "guides" || len(guides.Breadcrumbs) != 1 || guides.Breadcrumbs[0].ID != root.ID {
		t.Errorf("guides = %+v", guides)
	}

	if _, err := s.Directory(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestTree(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	root, _, err := s.Tree(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	_, top, _ := s.Tree(ctx, root.ID)
	_, level, _ := s.Tree(ctx, top[0].ID)
	dir, entries, err := s.Tree(ctx, level[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if dir.Path != "guides/deep" || len(dir.Breadcrumbs) != 2 ||
		dir.Breadcrumbs[0].DisplayName != "Handbook" || dir.Breadcrumbs[1].Path != "guides" {
		t.Errorf("header = %+v", dir)
	}
	if len(entries) != 1 || entries[0].Path != "guides/deep/leaf.md" {
		t.Errorf("entries = %+v", entries)
	}
}

// listingOnly serves ListDirectory and nothing else.
type listingOnly struct {
	index.TreeReader
	calls int
}

func (l *listingOnly) ListDirectory(ctx context.Context, id string) (*index.Listing, error) {
	l.calls++
	return &index.Listing{
		Directory: models.Directory{ID: "d", Name: "docs", ParentID: "r", Path: "docs"},
		Ancestors: []models.Directory{{ID: "r", Name: "", Alias: "KB"}},
		Entries:   []models.Entry{{ID: "x", Kind: models.KindDocument, Path: "docs/x.md"}},
	}, nil
}

func TestTree_SingleRead(t *testing.T) {
	reader := &listingOnly{}
	dir, entries, err := NewService(reader).Tree(context.Background(), "d")
	if err != nil {
		t.Fatal(err)
	}
	if reader.calls != 1 {
		t.Errorf("ListDirectory calls = %d, want 1", reader.calls)
	}
	if dir.ID != "d" || len(dir.Breadcrumbs) != 1 || dir.Breadcrumbs[0].DisplayName != "KB" || len(entries) != 1 {
		t.Errorf("tree = %+v %+v", dir, entries)
	}
}

func TestLanding(t *testing.T) {
	s := testService(t)
	doc, err := s.Landing(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if doc.Path != LandingPath || doc.Title != "Welcome" {
		t.Errorf("landing = %+v", doc)
	}
}

func TestLanding_Missing(t *testing.T) {
	db := testutil.TestDB(t)
	if _, err := db.EnsureRoot(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	s := NewService(db)
	if _, err := s.Landing(context.Background()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSplitTags(t *testing.T) {
	got := splitTags(" go, ,sync ")
	if len(got) != 2 || got[0] != "go" || got[1] != "sync" {
		t.Errorf("splitTags = %v", got)
	}
	if got := splitTags(""); got == nil || len(got) != 0 {
		t.Errorf("empty = %#v", got)
	}
}
