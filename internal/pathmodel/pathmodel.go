// Package pathmodel computes and validates materialized paths for the
// directory tree. It performs no I/O: callers load nodes, ask for rewrites,
// and persist the results themselves.
package pathmodel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/kbtree/internal/apperr"
)

// Separator delimits path segments. The root directory has the empty path.
const Separator = "/"

// ValidateSegment rejects names that cannot be a single path segment.
func ValidateSegment(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("pathmodel: empty name: %w", apperr.ErrInvalidSegment)
	case name == "." || name == "..":
		return fmt.Errorf("pathmodel: reserved name %q: %w", name, apperr.ErrInvalidSegment)
	case strings.Contains(name, Separator):
		return fmt.Errorf("pathmodel: name %q contains separator: %w", name, apperr.ErrInvalidSegment)
	}
	return nil
}

// Join returns the materialized path of a child named name under parentPath.
func Join(parentPath, name string) (string, error) {
	if err := ValidateSegment(name); err != nil {
		return "", err
	}
	if parentPath == "" {
		return name, nil
	}
	return parentPath + Separator + name, nil
}

// Parent returns the parent path and leaf name of p.
func Parent(p string) (string, string) {
	i := strings.LastIndex(p, Separator)
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// HasPrefix reports whether p equals prefix or lies beneath it. The empty
// prefix (root) contains every path.
func HasPrefix(p, prefix string) bool {
	if prefix == "" || p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+Separator)
}

// RewritePrefix replaces the oldPrefix portion of p with newPrefix. Paths
// outside oldPrefix are returned unchanged.
func RewritePrefix(p, oldPrefix, newPrefix string) string {
	if !HasPrefix(p, oldPrefix) {
		return p
	}
	rest := strings.TrimPrefix(p[len(oldPrefix):], Separator)
	if oldPrefix == "" {
		rest = p
	}
	switch {
	case rest == "":
		return newPrefix
	case newPrefix == "":
		return rest
	default:
		return newPrefix + Separator + rest
	}
}

// Depth is the number of segments in p.
func Depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, Separator) + 1
}

// Node is a directory as seen by the path model.
type Node struct {
	ID       string
	ParentID string // empty for the root
	Name     string
	Path     string
}

// Rewrite describes a path change for one directory.
type Rewrite struct {
	ID      string
	OldPath string
	NewPath string
}

// Tree is an in-memory directory hierarchy keyed by id. Mutations through
// Move keep every node's Path consistent with its ancestors.
type Tree struct {
	rootID   string
	nodes    map[string]*Node
	children map[string]map[string]struct{}
	byPath   map[string]string
}

// NewTree builds a tree from a flat node list. Exactly one node must have an
// empty ParentID.
func NewTree(nodes []Node) (*Tree, error) {
	t := &Tree{
		nodes:    make(map[string]*Node, len(nodes)),
		children: make(map[string]map[string]struct{}, len(nodes)),
		byPath:   make(map[string]string, len(nodes)),
	}
	for i := range nodes {
		n := nodes[i]
		if n.ParentID == "" {
			if t.rootID != "" {
				return nil, fmt.Errorf("pathmodel: multiple roots %q and %q", t.rootID, n.ID)
			}
			t.rootID = n.ID
		}
		t.nodes[n.ID] = &n
		t.byPath[n.Path] = n.ID
	}
	if t.rootID == "" {
		return nil, fmt.Errorf("pathmodel: no root node")
	}
	for id, n := range t.nodes {
		if n.ParentID == "" {
			continue
		}
		if _, ok := t.nodes[n.ParentID]; !ok {
			return nil, fmt.Errorf("pathmodel: node %q references unknown parent %q", id, n.ParentID)
		}
		t.link(n.ParentID, id)
	}
	return t, nil
}

func (t *Tree) link(parentID, id string) {
	set, ok := t.children[parentID]
	if !ok {
		set = make(map[string]struct{})
		t.children[parentID] = set
	}
	set[id] = struct{}{}
}

// RootID returns the id of the root node.
func (t *Tree) RootID() string { return t.rootID }

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id string) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Lookup returns the id of the node currently at path p.
func (t *Tree) Lookup(p string) (string, bool) {
	id, ok := t.byPath[p]
	return id, ok
}

// Path returns the current materialized path of id.
func (t *Tree) Path(id string) (string, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return "", false
	}
	return n.Path, true
}

// Children returns the direct children of id sorted by name.
func (t *Tree) Children(id string) []string {
	set := t.children[id]
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return t.nodes[out[i]].Name < t.nodes[out[j]].Name })
	return out
}

// Descendants returns every node below id, breadth first, so each node
// appears after its parent.
func (t *Tree) Descendants(id string) []string {
	var out []string
	queue := t.Children(id)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		queue = append(queue, t.Children(cur)...)
	}
	return out
}

// IsAncestor reports whether ancestor lies on the parent chain of id.
// A node is not its own ancestor.
func (t *Tree) IsAncestor(ancestor, id string) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	seen := map[string]struct{}{id: {}}
	for n.ParentID != "" {
		if n.ParentID == ancestor {
			return true
		}
		if _, loop := seen[n.ParentID]; loop {
			return false
		}
		seen[n.ParentID] = struct{}{}
		n = t.nodes[n.ParentID]
	}
	return false
}

// Add inserts a new child under parentID and returns its path.
func (t *Tree) Add(id, parentID, name string) (string, error) {
	if _, exists := t.nodes[id]; exists {
		return "", fmt.Errorf("pathmodel: duplicate node %q", id)
	}
	parent, ok := t.nodes[parentID]
	if !ok {
		return "", fmt.Errorf("pathmodel: unknown parent %q: %w", parentID, apperr.ErrNotFound)
	}
	p, err := Join(parent.Path, name)
	if err != nil {
		return "", err
	}
	if _, taken := t.byPath[p]; taken {
		return "", fmt.Errorf("pathmodel: path %q already taken: %w", p, apperr.ErrStorageConflict)
	}
	t.nodes[id] = &Node{ID: id, ParentID: parentID, Name: name, Path: p}
	t.byPath[p] = id
	t.link(parentID, id)
	return p, nil
}

// Remove deletes id and its whole subtree, returning the removed ids with
// the deepest nodes first.
func (t *Tree) Remove(id string) []string {
	n, ok := t.nodes[id]
	if !ok || id == t.rootID {
		return nil
	}
	sub := append([]string{id}, t.Descendants(id)...)
	if set := t.children[n.ParentID]; set != nil {
		delete(set, id)
	}
	out := make([]string, 0, len(sub))
	for i := len(sub) - 1; i >= 0; i-- {
		cur := sub[i]
		if t.byPath[t.nodes[cur].Path] == cur {
			delete(t.byPath, t.nodes[cur].Path)
		}
		delete(t.children, cur)
		delete(t.nodes, cur)
		out = append(out, cur)
	}
	return out
}

// Move gives id a new parent and name and recomputes the path of id and of
// every descendant by prefix substitution. The returned rewrites are ordered
// parents first. Assigning a node under itself or one of its descendants
// fails with apperr.ErrCycleDetected and leaves the tree untouched.
func (t *Tree) Move(id, newParentID, newName string) ([]Rewrite, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("pathmodel: unknown node %q: %w", id, apperr.ErrNotFound)
	}
	if id == t.rootID {
		return nil, fmt.Errorf("pathmodel: root cannot be moved: %w", apperr.ErrInvalidInput)
	}
	parent, ok := t.nodes[newParentID]
	if !ok {
		return nil, fmt.Errorf("pathmodel: unknown parent %q: %w", newParentID, apperr.ErrNotFound)
	}
	if newParentID == id || t.IsAncestor(id, newParentID) {
		return nil, fmt.Errorf("pathmodel: %q cannot move under %q: %w", n.Path, parent.Path, apperr.ErrCycleDetected)
	}
	newPath, err := Join(parent.Path, newName)
	if err != nil {
		return nil, err
	}
	if other, taken := t.byPath[newPath]; taken && other != id {
		return nil, fmt.Errorf("pathmodel: path %q already taken: %w", newPath, apperr.ErrStorageConflict)
	}

	oldPath := n.Path
	ids := append([]string{id}, t.Descendants(id)...)
	rewrites := make([]Rewrite, 0, len(ids))
	for _, cur := range ids {
		old := t.nodes[cur].Path
		rewrites = append(rewrites, Rewrite{ID: cur, OldPath: old, NewPath: RewritePrefix(old, oldPath, newPath)})
	}

	if set := t.children[n.ParentID]; set != nil {
		delete(set, id)
	}
	n.ParentID = newParentID
	n.Name = newName
	t.link(newParentID, id)

	for _, rw := range rewrites {
		if t.byPath[rw.OldPath] == rw.ID {
			delete(t.byPath, rw.OldPath)
		}
	}
	for _, rw := range rewrites {
		t.nodes[rw.ID].Path = rw.NewPath
		t.byPath[rw.NewPath] = rw.ID
	}
	return rewrites, nil
}

// Verify checks that every node's path equals its parent's path joined with
// its name.
func (t *Tree) Verify() error {
	for id, n := range t.nodes {
		if id == t.rootID {
			if n.Path != "" {
				return fmt.Errorf("pathmodel: root path is %q, want empty", n.Path)
			}
			continue
		}
		want, err := Join(t.nodes[n.ParentID].Path, n.Name)
		if err != nil {
			return err
		}
		if n.Path != want {
			return fmt.Errorf("pathmodel: node %q has path %q, want %q", id, n.Path, want)
		}
	}
	return nil
}
