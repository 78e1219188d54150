package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/kbtree/internal/apperr"
	"github.com/starford/kbtree/internal/checksum"
	"github.com/starford/kbtree/internal/models"
	"github.com/starford/kbtree/internal/parser"
	"github.com/starford/kbtree/internal/pathmodel"
)

type walkedDir struct {
	path string
	name string
	// signature identifies the subtree by the relative paths and checksums
	// of every document below it; empty when there are none.
	signature string
}

type walkedDoc struct {
	path     string
	name     string
	dir      string
	modTime  time.Time
	data     []byte
	checksum string
	meta     *parser.Metadata
	readErr  error
}

type walkResult struct {
	dirs []*walkedDir // walk order, parents first
	docs []*walkedDoc // walk order
	// held lists paths that exist but could not be read. Stored records at
	// or below them are kept untouched.
	held []string
}

func (e *Engine) walk(ctx context.Context, report *Report) (*walkResult, error) {
	wctx := ctx
	if e.walkTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, e.walkTimeout)
		defer cancel()
	}

	res := &walkResult{}
	for entry, err := range e.fs.Walk(wctx) {
		if err != nil {
			return nil, fmt.Errorf("reconcile: walk incomplete: %w", err)
		}
		if entry.Err != nil {
			report.warn(WarnFilesystem, entry.Path, entry.Err)
			if errors.Is(entry.Err, apperr.ErrFilesystem) {
				res.held = append(res.held, entry.Path)
			}
			continue
		}
		switch entry.Kind {
		case models.KindDirectory:
			res.dirs = append(res.dirs, &walkedDir{path: entry.Path, name: entry.Name})
		case models.KindDocument:
			dir, _ := pathmodel.Parent(entry.Path)
			res.docs = append(res.docs, &walkedDoc{
				path:    entry.Path,
				name:    entry.Name,
				dir:     dir,
				modTime: storedTime(entry.ModTime),
			})
		}
	}

	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(e.workers)
	for _, d := range res.docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := e.fs.Read(d.path)
			if err != nil {
				d.readErr = err
				return nil
			}
			d.data = data
			d.checksum = checksum.Sum(data)
			d.meta, d.readErr = parser.Extract(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconcile: read documents: %w", err)
	}

	for _, d := range res.docs {
		switch {
		case d.readErr == nil:
		case errors.Is(d.readErr, apperr.ErrMalformedFrontMatter):
			report.warn(WarnFrontMatter, d.path, d.readErr)
			e.logger.Warn("sync: malformed front matter",
				slog.String("path", d.path),
				slog.String("error", d.readErr.Error()))
			d.readErr = nil
		default:
			report.warn(WarnFilesystem, d.path, d.readErr)
			e.logger.Warn("sync: read failed",
				slog.String("path", d.path),
				slog.String("error", d.readErr.Error()))
		}
	}

	signWalked(res)
	return res, nil
}

// signWalked computes the subtree signature of every walked directory.
func signWalked(res *walkResult) {
	parts := make(map[string][]string, len(res.dirs))
	for _, d := range res.docs {
		for dir := d.dir; dir != ""; dir, _ = pathmodel.Parent(dir) {
			parts[dir] = append(parts[dir], signaturePart(d.path, dir, d.checksum))
		}
	}
	for _, d := range res.dirs {
		d.signature = signature(parts[d.path])
	}
}

func signaturePart(docPath, dirPath, sum string) string {
	return strings.TrimPrefix(docPath, dirPath+pathmodel.Separator) + "\x00" + sum
}

func signature(parts []string) string {
	return checksum.Combine(parts)
}

// storedTime normalizes a timestamp to what every supported database keeps.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func sameInstant(a, b time.Time) bool {
	return storedTime(a).Equal(storedTime(b))
}
