package storage

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/models"
)

// DefaultExtensions are the file extensions treated as documents.
var DefaultExtensions = []string{".md", ".markdown"}

// FS implements Provider backed by the local file system.
type FS struct {
	root       string // absolute path to the content directory
	extensions map[string]struct{}
	logger     *slog.Logger
}

// FSOption configures an FS.
type FSOption func(*FS)

// WithExtensions replaces the recognized document extensions.
func WithExtensions(exts ...string) FSOption {
	return func(f *FS) {
		if len(exts) == 0 {
			return
		}
		f.extensions = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			f.extensions[e] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for skipped-entry warnings.
func WithLogger(l *slog.Logger) FSOption {
	return func(f *FS) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, logger: slog.Default()}
	WithExtensions(DefaultExtensions...)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute content root.
func (f *FS) Root() string { return f.root }

// IsDocument reports whether name carries a recognized document extension.
func (f *FS) IsDocument(name string) bool {
	_, ok := f.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// safePath resolves a relative path against the content root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	// Ensure the resolved path is still under root.
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes content root: %s", rel)
	}
	return abs, nil
}

// Read returns the raw bytes of a content file.
func (f *FS) Read(p string) ([]byte, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w: %w", p, apperr.ErrFilesystem, err)
	}
	return data, nil
}

// Stat describes a content item, following symlinks.
func (f *FS) Stat(p string) (os.FileInfo, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w: %w", p, apperr.ErrFilesystem, err)
	}
	return info, nil
}

// Walk yields directories and documents below the root. Each call reads the
// filesystem afresh, so walks can be repeated at any time.
//
// Dot entries are ignored. Unreadable directories and broken symlinks are
// yielded once with Entry.Err set and not descended into. A symlink pointing
// back at a directory on the current ancestor chain is yielded the same way
// with an error wrapping apperr.ErrCycleDetected.
func (f *FS) Walk(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		real, err := filepath.EvalSymlinks(f.root)
		if err != nil {
			yield(Entry{}, fmt.Errorf("storage: resolve root: %w", err))
			return
		}
		entries, err := os.ReadDir(f.root)
		if err != nil {
			yield(Entry{}, fmt.Errorf("storage: read root: %w", err))
			return
		}
		ancestors := map[string]struct{}{real: {}}
		f.walkDir(ctx, f.root, "", entries, ancestors, yield)
	}
}

// walkDir reports false once iteration has to stop.
func (f *FS) walkDir(ctx context.Context, abs, rel string, entries []os.DirEntry, ancestors map[string]struct{}, yield func(Entry, error) bool) bool {
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("storage: walk interrupted: %w", err))
			return false
		}

		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childAbs := filepath.Join(abs, name)
		childRel := path.Join(rel, name)

		// os.Stat follows symlinks so linked directories are walked too.
		info, err := os.Stat(childAbs)
		if err != nil {
			if !f.skip(yield, childRel, name, "stat failed", err) {
				return false
			}
			continue
		}

		if info.IsDir() {
			real, err := filepath.EvalSymlinks(childAbs)
			if err != nil {
				if !f.skip(yield, childRel, name, "resolve failed", err) {
					return false
				}
				continue
			}
			if _, loop := ancestors[real]; loop {
				f.logger.Warn("walk: symlink cycle skipped",
					slog.String("path", childRel),
					slog.String("target", real))
				if !yield(Entry{
					Kind:  models.KindDirectory,
					Path:  childRel,
					Name:  name,
					Depth: strings.Count(childRel, "/") + 1,
					Err:   fmt.Errorf("storage: symlink to %s: %w", real, apperr.ErrCycleDetected),
				}, nil) {
					return false
				}
				continue
			}
			children, err := os.ReadDir(childAbs)
			if err != nil {
				if !f.skip(yield, childRel, name, "read dir failed", err) {
					return false
				}
				continue
			}
			if !yield(Entry{
				Kind:    models.KindDirectory,
				Path:    childRel,
				Name:    name,
				Depth:   strings.Count(childRel, "/") + 1,
				ModTime: info.ModTime(),
			}, nil) {
				return false
			}
			ancestors[real] = struct{}{}
			ok := f.walkDir(ctx, childAbs, childRel, children, ancestors, yield)
			delete(ancestors, real)
			if !ok {
				return false
			}
			continue
		}

		if !info.Mode().IsRegular() || !f.IsDocument(name) {
			continue
		}
		if !yield(Entry{
			Kind:    models.KindDocument,
			Path:    childRel,
			Name:    name,
			Depth:   strings.Count(childRel, "/") + 1,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}, nil) {
			return false
		}
	}
	return true
}

// skip logs an unreadable entry and yields it with its error attached.
func (f *FS) skip(yield func(Entry, error) bool, rel, name, reason string, err error) bool {
	err = fmt.Errorf("storage: %s: %w: %w", reason, apperr.ErrFilesystem, err)
	f.logger.Warn("walk: entry skipped",
		slog.String("path", rel),
		slog.String("error", err.Error()))
	return yield(Entry{
		Path:  rel,
		Name:  name,
		Depth: strings.Count(rel, "/") + 1,
		Err:   err,
	}, nil)
}
