// Package treeservice is the read side of the knowledge base: sidebar
// listings, document pages and the landing document.
package treeservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/index"
	"github.com/starford/kbtree/internal/models"
)

// LandingPath is the root-level document served as the landing page.
const LandingPath = "index.md"

// Crumb is one ancestor on the way from the root to a node.
type Crumb struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Path        string `json:"path"`
}

// DirectoryDetail is a directory header with its ancestry.
type DirectoryDetail struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Alias       string  `json:"alias,omitempty"`
	DisplayName string  `json:"display_name"`
	Path        string  `json:"path"`
	ParentID    string  `json:"parent,omitempty"`
	Breadcrumbs []Crumb `json:"breadcrumbs"`
}

// DocumentDetail is the full representation of a document.
type DocumentDetail struct {
	ID          string    `json:"id"`
	CustomID    string    `json:"custom_id,omitempty"`
	Path        string    `json:"path"`
	FileName    string    `json:"file_name"`
	Title       string    `json:"title"`
	DirectoryID string    `json:"directory"`
	Tags        []string  `json:"tags"`
	ReadingTime int       `json:"reading_time"`
	Checksum    string    `json:"checksum"`
	Content     string    `json:"content"`
	Breadcrumbs []Crumb   `json:"breadcrumbs"`
	ModTime     time.Time `json:"mod_time"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Service answers tree queries from the persisted store.
type Service struct {
	tree index.TreeReader
}

// NewService creates a new tree service.
func NewService(tree index.TreeReader) *Service {
	return &Service{tree: tree}
}

// ListChildren returns the child directories and documents of dirID, which
// is the root when empty.
func (s *Service) ListChildren(ctx context.Context, dirID string) ([]models.Entry, error) {
	entries, err := s.tree.ListChildren(ctx, dirID)
	if err != nil {
		return nil, fmt.Errorf("treeservice: list children: %w", err)
	}
	return entries, nil
}

// Directory returns the header of a directory. An empty id is the root.
func (s *Service) Directory(ctx context.Context, id string) (*DirectoryDetail, error) {
	dir, _, err := s.Tree(ctx, id)
	return dir, err
}

// Tree returns the header of a directory and its children, read together
// so both describe the same committed state. An empty id is the root.
func (s *Service) Tree(ctx context.Context, id string) (*DirectoryDetail, []models.Entry, error) {
	l, err := s.tree.ListDirectory(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("treeservice: directory: %w", err)
	}
	crumbs := make([]Crumb, 0, len(l.Ancestors))
	for _, a := range l.Ancestors {
		crumbs = append(crumbs, Crumb{ID: a.ID, DisplayName: a.DisplayName(), Path: a.Path})
	}
	dir := l.Directory
	return &DirectoryDetail{
		ID:          dir.ID,
		Name:        dir.Name,
		Alias:       dir.Alias,
		DisplayName: dir.DisplayName(),
		Path:        dir.Path,
		ParentID:    dir.ParentID,
		Breadcrumbs: crumbs,
	}, l.Entries, nil
}

// GetDocument resolves ref as a system id first and as a custom id second.
func (s *Service) GetDocument(ctx context.Context, ref string) (*DocumentDetail, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("treeservice: empty document ref: %w", apperr.ErrNotFound)
	}
	var (
		doc *models.Document
		err error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		doc, err = s.tree.GetDocument(ctx, ref)
		if errors.Is(err, apperr.ErrNotFound) {
			doc, err = s.tree.GetDocumentByCustomID(ctx, ref)
		}
	} else {
		doc, err = s.tree.GetDocumentByCustomID(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("treeservice: document %q: %w", ref, err)
	}
	return s.detail(ctx, doc)
}

// Landing returns the root-level index document.
func (s *Service) Landing(ctx context.Context) (*DocumentDetail, error) {
	doc, err := s.tree.GetDocumentByPath(ctx, LandingPath)
	if err != nil {
		return nil, fmt.Errorf("treeservice: landing: %w", err)
	}
	return s.detail(ctx, doc)
}

// Stats summarizes the tree.
func (s *Service) Stats(ctx context.Context) (*index.Stats, error) {
	st, err := s.tree.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("treeservice: stats: %w", err)
	}
	return st, nil
}

func (s *Service) detail(ctx context.Context, doc *models.Document) (*DocumentDetail, error) {
	crumbs, err := s.ancestry(ctx, doc.DirectoryID)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{
		ID:          doc.ID,
		CustomID:    doc.CustomID,
		Path:        doc.Path,
		FileName:    doc.FileName,
		Title:       doc.Title,
		DirectoryID: doc.DirectoryID,
		Tags:        splitTags(doc.Tags),
		ReadingTime: doc.ReadingTime,
		Checksum:    doc.Checksum,
		Content:     doc.Content,
		Breadcrumbs: crumbs,
		ModTime:     doc.ModTime,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}

// ancestry returns the chain from the root down to and including dirID.
func (s *Service) ancestry(ctx context.Context, dirID string) ([]Crumb, error) {
	crumbs := []Crumb{}
	if dirID == "" {
		return crumbs, nil
	}
	seen := make(map[string]bool)
	for id := dirID; id != ""; {
		if seen[id] {
			return nil, fmt.Errorf("treeservice: ancestry of %s: %w", dirID, apperr.ErrCycleDetected)
		}
		seen[id] = true
		dir, err := s.tree.GetDirectory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("treeservice: ancestry: %w", err)
		}
		crumbs = append(crumbs, Crumb{ID: dir.ID, DisplayName: dir.DisplayName(), Path: dir.Path})
		id = dir.ParentID
	}
	for i, j := 0, len(crumbs)-1; i < j; i, j = i+1, j-1 {
		crumbs[i], crumbs[j] = crumbs[j], crumbs[i]
	}
	return crumbs, nil
}

func splitTags(s string) []string {
	out := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
