// Package parser extracts front matter, the derived title, and the reading
// time from Markdown content. It is pure over bytes.
package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"

	"github.com/starford/kbtree/internal/apperr"
)

// WordsPerMinute is the reading speed used for ReadingTime.
const WordsPerMinute = 200

var bom = []byte("\xef\xbb\xbf")

// Metadata holds the output of extracting a Markdown file.
type Metadata struct {
	Title        string   // front matter title, may be empty
	Tags         []string // front matter tags in declaration order
	CustomID     string
	DerivedTitle string // text of the first level-1 heading
	ReadingTime  int    // minutes
	Body         string // content without the front matter block
}

// EffectiveTitle returns the front matter title, then the derived title,
// then the file name stem: "notes.md" gives "notes", not "notes.md". The
// full name is used only when the stem is empty, so the result is never
// empty for a non-empty file name.
func (m *Metadata) EffectiveTitle(fileName string) string {
	if m.Title != "" {
		return m.Title
	}
	if m.DerivedTitle != "" {
		return m.DerivedTitle
	}
	if stem := strings.TrimSuffix(fileName, filepath.Ext(fileName)); stem != "" {
		return stem
	}
	return fileName
}

// TagString joins the tags the way they are persisted.
func (m *Metadata) TagString() string {
	return strings.Join(m.Tags, ",")
}

// Extract parses raw Markdown bytes. A malformed front matter block yields a
// usable Metadata together with an error wrapping
// apperr.ErrMalformedFrontMatter; callers treat it as a warning.
func Extract(data []byte) (*Metadata, error) {
	data = bytes.TrimPrefix(data, bom)

	block, body, status := splitFrontMatter(data)
	m := &Metadata{Body: string(body)}

	var fmErr error
	switch status {
	case blockUnclosed:
		fmErr = fmt.Errorf("parser: unterminated front matter: %w", apperr.ErrMalformedFrontMatter)
	case blockClosed:
		if err := decodeFrontMatter(block, m); err != nil {
			fmErr = fmt.Errorf("parser: decode front matter: %w: %w", apperr.ErrMalformedFrontMatter, err)
		}
	}

	doc := parseMarkdown(body)
	m.DerivedTitle = firstHeading(doc, body)
	m.ReadingTime = readingTime(countWords(doc, body), len(bytes.TrimSpace(body)) > 0)
	return m, fmErr
}

type blockStatus int

const (
	blockNone blockStatus = iota
	blockClosed
	blockUnclosed
)

// splitFrontMatter detects a `---` or `+++` block opening on the first line.
// For a closed block it returns the whole block including both delimiter
// lines, and the body that follows. Otherwise body is the full input.
func splitFrontMatter(data []byte) ([]byte, []byte, blockStatus) {
	first, _, found := bytes.Cut(data, []byte("\n"))
	delim := string(bytes.TrimRight(first, " \t\r"))
	if delim != "---" && delim != "+++" {
		return nil, data, blockNone
	}
	if !found {
		return nil, data, blockUnclosed
	}

	pos := len(first) + 1
	for pos <= len(data) {
		line, _, more := bytes.Cut(data[pos:], []byte("\n"))
		end := pos + len(line)
		if string(bytes.TrimRight(line, " \t\r")) == delim {
			bodyStart := end
			if more {
				bodyStart++
			}
			return data[:end], data[bodyStart:], blockClosed
		}
		if !more {
			break
		}
		pos = end + 1
	}
	return nil, data, blockUnclosed
}

// decodeFrontMatter fills the recognized keys of m from a closed block.
// Unknown keys are ignored.
func decodeFrontMatter(block []byte, m *Metadata) error {
	framed := make([]byte, 0, len(block)+1)
	framed = append(append(framed, block...), '\n')

	var raw map[string]any
	if _, err := frontmatter.Parse(bytes.NewReader(framed), &raw); err != nil {
		return err
	}
	m.Title = scalar(raw["title"])
	m.Tags = tagList(raw["tags"])
	if id := scalar(raw["custom_id"]); id != "" {
		m.CustomID = id
	} else {
		m.CustomID = scalar(raw["slug"])
	}
	return nil
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []any, map[string]any, map[any]any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// tagList accepts a list of scalars or a comma-separated string.
func tagList(v any) []string {
	var items []string
	switch x := v.(type) {
	case string:
		items = strings.Split(x, ",")
	case []any:
		for _, it := range x {
			items = append(items, scalar(it))
		}
	case []string:
		items = x
	}
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// readingTime is at least one minute for a body with any content, even
// when none of it renders as words (a lone HTML block, say).
func readingTime(words int, hasContent bool) int {
	if words <= 0 {
		if hasContent {
			return 1
		}
		return 0
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}
