package reconcile

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/index"
	"github.com/starford/kbtree/internal/models"
	"github.com/starford/kbtree/internal/pathmodel"
)

type dirMove struct {
	id, parentID, name string
	rewrites           []pathmodel.Rewrite
}

type docMove struct {
	id, dirID, fileName, path string
}

// dirOp is either a move or a create. Directory operations keep walk
// order so a parent always exists before anything is placed under it.
type dirOp struct {
	move   *dirMove
	create *models.Directory
}

// plan is the ordered set of writes one pass applies.
type plan struct {
	dirOps         []dirOp
	clearCustomIDs []string
	docDeletes     []string
	docMoves       []docMove
	docUpdates     []*models.Document
	docCreates     []*models.Document
	dirDeletes     []string
}

// differ matches walked entries against the persisted snapshot. The path
// model tracks projected paths: where every persisted directory will be once
// the moves decided so far are applied.
type differ struct {
	tree    *pathmodel.Tree
	report  *Report
	plan    *plan
	dirs    map[string]*models.Directory
	docs    map[string]*models.Document
	dirSig  map[string]string // persisted directory id -> signature
	matched map[string]bool   // persisted ids already claimed
	dirIDs  map[string]string // walked directory path -> id
	walked  map[string]bool   // every walked path
	held    []string          // unreadable walked paths
}

func diff(w *walkResult, snap *index.Snapshot, report *Report) (*plan, error) {
	tree, err := pathmodel.NewTree(snap.Nodes())
	if err != nil {
		return nil, err
	}
	d := &differ{
		tree:    tree,
		report:  report,
		plan:    &plan{},
		dirs:    make(map[string]*models.Directory, len(snap.Directories)),
		docs:    make(map[string]*models.Document, len(snap.Documents)),
		matched: make(map[string]bool),
		dirIDs:  map[string]string{"": tree.RootID()},
		walked:  make(map[string]bool, len(w.dirs)+len(w.docs)),
		held:    w.held,
	}
	for i := range snap.Directories {
		d.dirs[snap.Directories[i].ID] = &snap.Directories[i]
	}
	for i := range snap.Documents {
		d.docs[snap.Documents[i].ID] = &snap.Documents[i]
	}
	d.matched[tree.RootID()] = true
	d.dirSig = signPersisted(snap)
	for _, wd := range w.dirs {
		d.walked[wd.path] = true
	}
	for _, wd := range w.docs {
		d.walked[wd.path] = true
	}

	for _, wd := range w.dirs {
		if err := d.matchDir(wd); err != nil {
			return nil, err
		}
	}
	d.keepHeld()
	docAt := d.projectedDocs()
	for _, wd := range w.docs {
		if err := d.matchDoc(wd, docAt); err != nil {
			return nil, err
		}
	}
	d.collectDeletes()
	return d.plan, nil
}

// isHeld reports whether p is, or lies below, a path the walk could not read.
func (d *differ) isHeld(p string) bool {
	for _, h := range d.held {
		if pathmodel.HasPrefix(p, h) {
			return true
		}
	}
	return false
}

// keepHeld claims every persisted record below an unreadable path, so an
// I/O error never deletes a subtree.
func (d *differ) keepHeld() {
	if len(d.held) == 0 {
		return
	}
	for id := range d.dirs {
		if p, _ := d.tree.Path(id); !d.matched[id] && d.isHeld(p) {
			d.matched[id] = true
		}
	}
	for id, doc := range d.docs {
		if !d.matched[id] && d.isHeld(d.projectedDocPath(doc)) {
			d.matched[id] = true
			d.report.DocsUnchanged++
		}
	}
}

// signPersisted computes subtree signatures from stored paths.
func signPersisted(snap *index.Snapshot) map[string]string {
	byPath := make(map[string]string, len(snap.Directories))
	for _, dir := range snap.Directories {
		byPath[dir.Path] = dir.ID
	}
	parts := make(map[string][]string, len(snap.Directories))
	for _, doc := range snap.Documents {
		dir, _ := pathmodel.Parent(doc.Path)
		for ; dir != ""; dir, _ = pathmodel.Parent(dir) {
			parts[dir] = append(parts[dir], signaturePart(doc.Path, dir, doc.Checksum))
		}
	}
	sigs := make(map[string]string, len(parts))
	for p, ps := range parts {
		if id, ok := byPath[p]; ok {
			sigs[id] = signature(ps)
		}
	}
	return sigs
}

func (d *differ) matchDir(wd *walkedDir) error {
	parentPath, _ := pathmodel.Parent(wd.path)
	parentID, ok := d.dirIDs[parentPath]
	if !ok {
		return fmt.Errorf("walked directory %q has no parent: %w", wd.path, apperr.ErrNotFound)
	}

	if id, ok := d.tree.Lookup(wd.path); ok && !d.matched[id] {
		d.matched[id] = true
		d.dirIDs[wd.path] = id
		return nil
	}

	id := d.pickDir(wd)
	if id != "" {
		rewrites, err := d.tree.Move(id, parentID, wd.name)
		if err != nil {
			return err
		}
		d.plan.dirOps = append(d.plan.dirOps, dirOp{move: &dirMove{id: id, parentID: parentID, name: wd.name, rewrites: rewrites}})
		d.report.DirsMoved++
		d.matched[id] = true
		d.dirIDs[wd.path] = id
		return nil
	}

	id = uuid.NewString()
	p, err := d.tree.Add(id, parentID, wd.name)
	if err != nil {
		return err
	}
	d.plan.dirOps = append(d.plan.dirOps, dirOp{create: &models.Directory{ID: id, Name: wd.name, ParentID: parentID, Path: p}})
	d.report.DirsCreated++
	d.matched[id] = true
	d.dirIDs[wd.path] = id
	return nil
}

// pickDir finds the unmatched persisted directory wd was renamed or moved
// from: equal subtree signature first, else equal name.
func (d *differ) pickDir(wd *walkedDir) string {
	var bySig, byName []string
	for id, dir := range d.dirs {
		if d.matched[id] {
			continue
		}
		cur, _ := d.tree.Path(id)
		if d.walked[cur] || d.isHeld(cur) {
			// still present at its own path
			continue
		}
		if wd.signature != "" && d.dirSig[id] == wd.signature {
			bySig = append(bySig, id)
		}
		if dir.Name == wd.name {
			byName = append(byName, id)
		}
	}
	cands := bySig
	if len(cands) == 0 {
		cands = byName
	}
	return d.choose(wd.path, cands, func(id string) string {
		p, _ := d.tree.Path(id)
		return p
	})
}

// choose picks the candidate whose current path is closest to target. A tie
// for the smallest distance is ambiguous and yields no match.
func (d *differ) choose(target string, cands []string, pathOf func(string) string) string {
	switch len(cands) {
	case 0:
		return ""
	case 1:
		return cands[0]
	}
	sort.Strings(cands)
	best, bestDist, tie := "", -1, false
	for _, id := range cands {
		dist := levenshtein(target, pathOf(id))
		switch {
		case bestDist < 0 || dist < bestDist:
			best, bestDist, tie = id, dist, false
		case dist == bestDist:
			tie = true
		}
	}
	if tie {
		d.report.warn(WarnAmbiguous, target,
			fmt.Errorf("%d equally close candidates: %w", len(cands), apperr.ErrAmbiguousMatch))
		return ""
	}
	return best
}

// projectedDocs maps the projected path of every persisted document to its id.
func (d *differ) projectedDocs() map[string]string {
	out := make(map[string]string, len(d.docs))
	for id, doc := range d.docs {
		out[d.projectedDocPath(doc)] = id
	}
	return out
}

func (d *differ) projectedDocPath(doc *models.Document) string {
	dirPath, _ := d.tree.Path(doc.DirectoryID)
	p, err := pathmodel.Join(dirPath, doc.FileName)
	if err != nil {
		return doc.Path
	}
	return p
}

func (d *differ) matchDoc(wd *walkedDoc, docAt map[string]string) error {
	dirID, ok := d.dirIDs[wd.dir]
	if !ok {
		return fmt.Errorf("walked document %q has no directory: %w", wd.path, apperr.ErrNotFound)
	}

	if id, ok := docAt[wd.path]; ok && !d.matched[id] {
		d.matched[id] = true
		prev := d.docs[id]
		if wd.readErr != nil {
			// unreadable now: keep the stored record as it is
			d.report.DocsUnchanged++
			return nil
		}
		if prev.Checksum == wd.checksum && sameInstant(prev.ModTime, wd.modTime) {
			d.report.DocsUnchanged++
			return nil
		}
		d.update(prev, wd, dirID)
		return nil
	}
	if wd.readErr != nil {
		return nil
	}

	if id := d.pickDoc(wd); id != "" {
		d.matched[id] = true
		prev := d.docs[id]
		if prev.Checksum == wd.checksum && sameInstant(prev.ModTime, wd.modTime) {
			d.plan.docMoves = append(d.plan.docMoves, docMove{id: id, dirID: dirID, fileName: wd.name, path: wd.path})
			d.report.DocsMoved++
			return nil
		}
		d.update(prev, wd, dirID)
		d.report.DocsMoved++
		return nil
	}

	doc := &models.Document{ID: uuid.NewString()}
	fill(doc, wd, dirID)
	d.plan.docCreates = append(d.plan.docCreates, doc)
	d.report.DocsCreated++
	return nil
}

// pickDoc finds the unmatched persisted document wd was renamed or moved
// from: equal checksum first, else equal file name.
func (d *differ) pickDoc(wd *walkedDoc) string {
	var bySum, byName []string
	for id, doc := range d.docs {
		if d.matched[id] {
			continue
		}
		if p := d.projectedDocPath(doc); d.walked[p] || d.isHeld(p) {
			// still present at its own path
			continue
		}
		if doc.Checksum == wd.checksum {
			bySum = append(bySum, id)
		}
		if doc.FileName == wd.name {
			byName = append(byName, id)
		}
	}
	cands := bySum
	if len(cands) == 0 {
		cands = byName
	}
	return d.choose(wd.path, cands, func(id string) string { return d.projectedDocPath(d.docs[id]) })
}

func (d *differ) update(prev *models.Document, wd *walkedDoc, dirID string) {
	next := &models.Document{ID: prev.ID, CreatedAt: prev.CreatedAt}
	fill(next, wd, dirID)
	if prev.CustomID != "" && prev.CustomID != next.CustomID {
		d.plan.clearCustomIDs = append(d.plan.clearCustomIDs, prev.ID)
	}
	d.plan.docUpdates = append(d.plan.docUpdates, next)
	d.report.DocsUpdated++
}

func fill(doc *models.Document, wd *walkedDoc, dirID string) {
	doc.FileName = wd.name
	doc.DirectoryID = dirID
	doc.Path = wd.path
	doc.Title = wd.meta.EffectiveTitle(wd.name)
	doc.DerivedTitle = wd.meta.DerivedTitle
	doc.CustomID = wd.meta.CustomID
	doc.Tags = wd.meta.TagString()
	doc.ReadingTime = wd.meta.ReadingTime
	doc.Checksum = wd.checksum
	doc.ModTime = wd.modTime
	doc.Content = string(wd.data)
}

// collectDeletes schedules every unclaimed persisted record for removal.
// Directories go deepest first.
func (d *differ) collectDeletes() {
	for id := range d.docs {
		if !d.matched[id] {
			d.plan.docDeletes = append(d.plan.docDeletes, id)
			d.report.DocsDeleted++
		}
	}
	sort.Strings(d.plan.docDeletes)

	var gone []string
	for id := range d.dirs {
		if !d.matched[id] {
			gone = append(gone, id)
		}
	}
	depth := func(id string) int {
		p, _ := d.tree.Path(id)
		return pathmodel.Depth(p)
	}
	sort.Slice(gone, func(i, j int) bool {
		di, dj := depth(gone[i]), depth(gone[j])
		if di != dj {
			return di > dj
		}
		return gone[i] < gone[j]
	})
	d.plan.dirDeletes = gone
	d.report.DirsDeleted = len(gone)
}
