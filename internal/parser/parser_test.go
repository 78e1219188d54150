package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/kbtree/internal/apperr"
)

func TestExtract_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - kbtree\ncustom_id: intro\n---\n# Heading\nBody text.\n")
	m, err := Extract(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Title != "Hello" {
		t.Errorf("title = %q, want %q", m.Title, "Hello")
	}
	if !reflect.DeepEqual(m.Tags, []string{"go", "kbtree"}) {
		t.Errorf("tags = %v, want [go kbtree]", m.Tags)
	}
	if m.CustomID != "intro" {
		t.Errorf("custom id = %q", m.CustomID)
	}
	if m.DerivedTitle != "Heading" {
		t.Errorf("derived title = %q", m.DerivedTitle)
	}
	if m.Body != "# Heading\nBody text.\n" {
		t.Errorf("body = %q", m.Body)
	}
	if m.EffectiveTitle("x.md") != "Hello" {
		t.Errorf("effective title = %q", m.EffectiveTitle("x.md"))
	}
}

func TestExtract_TitlePrecedence(t *testing.T) {
	cases := []struct {
		name, input, want string
	}{
		{"front matter wins", "---\ntitle: FM\n---\n# H1\n", "FM"},
		{"heading fallback", "some text\n\n# My Heading\nmore", "My Heading"},
		{"setext heading", "Setext Title\n============\n\nbody", "Setext Title"},
		{"level two ignored", "## Sub\ntext", "notes"},
		{"file name fallback", "just text", "notes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Extract([]byte(tc.input))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got := m.EffectiveTitle("notes.md"); got != tc.want {
				t.Errorf("EffectiveTitle = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtract_HeadingInlineMarkup(t *testing.T) {
	m, err := Extract([]byte("# Hello **bold** `code`\n"))
	if err != nil {
		t.Fatal(err)
	}
	if m.DerivedTitle != "Hello bold code" {
		t.Errorf("derived title = %q", m.DerivedTitle)
	}
}

func TestExtract_ReadingTime(t *testing.T) {
	words := strings.TrimSpace(strings.Repeat("word ", 400))
	cases := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"front matter only", "---\ntitle: x\n---\n", 0},
		{"one word", "hello", 1},
		{"whitespace only", "  \n\n", 0},
		{"html block only", "<div>hello world</div>\n", 1},
		{"raw html comment", "<!-- draft -->\n", 1},
		{"400 words", words, 2},
		{"401 words", words + " extra", 3},
		{"200 words", strings.TrimSpace(strings.Repeat("w ", 200)), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Extract([]byte(tc.input))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if m.ReadingTime != tc.want {
				t.Errorf("ReadingTime = %d, want %d", m.ReadingTime, tc.want)
			}
		})
	}
}

func TestExtract_FrontMatterExcludedFromWordCount(t *testing.T) {
	fm := "---\ntitle: " + strings.Repeat("word ", 300) + "\n---\n"
	m, err := Extract([]byte(fm + "only three words"))
	if err != nil {
		t.Fatal(err)
	}
	if m.ReadingTime != 1 {
		t.Errorf("ReadingTime = %d, want 1", m.ReadingTime)
	}
}

func TestExtract_UnclosedFrontMatter(t *testing.T) {
	input := "---\ntitle: Broken\n# Real Title\nbody"
	m, err := Extract([]byte(input))
	if !errors.Is(err, apperr.ErrMalformedFrontMatter) {
		t.Fatalf("err = %v, want ErrMalformedFrontMatter", err)
	}
	if m == nil {
		t.Fatal("metadata must be usable on malformed front matter")
	}
	if m.Title != "" {
		t.Errorf("title = %q, want empty", m.Title)
	}
	if m.Body != input {
		t.Errorf("body = %q, want whole content", m.Body)
	}
	if m.EffectiveTitle("broken.md") != "Real Title" {
		t.Errorf("effective title = %q", m.EffectiveTitle("broken.md"))
	}
}

func TestExtract_InvalidYAML(t *testing.T) {
	m, err := Extract([]byte("---\ntitle: [unclosed\n---\n# After\n"))
	if !errors.Is(err, apperr.ErrMalformedFrontMatter) {
		t.Fatalf("err = %v, want ErrMalformedFrontMatter", err)
	}
	if m.DerivedTitle != "After" {
		t.Errorf("derived title = %q", m.DerivedTitle)
	}
}

func TestExtract_TOML(t *testing.T) {
	input := "+++\ntitle = \"From TOML\"\ntags = [\"a\", \"b\"]\nslug = \"toml-doc\"\n+++\nBody\n"
	m, err := Extract([]byte(input))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m.Title != "From TOML" || m.CustomID != "toml-doc" {
		t.Errorf("metadata = %+v", m)
	}
	if !reflect.DeepEqual(m.Tags, []string{"a", "b"}) {
		t.Errorf("tags = %v", m.Tags)
	}
}

func TestExtract_TagString(t *testing.T) {
	m, err := Extract([]byte("---\ntags: go, sync ,go\n---\n"))
	if err != nil {
		t.Fatal(err)
	}
	if m.TagString() != "go,sync" {
		t.Errorf("tags = %q", m.TagString())
	}
}

func TestExtract_CustomIDPrefersExplicitKey(t *testing.T) {
	m, err := Extract([]byte("---\nslug: from-slug\ncustom_id: 42\n---\n"))
	if err != nil {
		t.Fatal(err)
	}
	if m.CustomID != "42" {
		t.Errorf("custom id = %q", m.CustomID)
	}
}

func TestExtract_UnknownKeysIgnored(t *testing.T) {
	m, err := Extract([]byte("---\nauthor: someone\ndraft: true\n---\ntext"))
	if err != nil {
		t.Fatal(err)
	}
	if m.Title != "" || m.CustomID != "" || len(m.Tags) != 0 {
		t.Errorf("metadata = %+v", m)
	}
}

func TestExtract_ThematicBreakIsNotFrontMatter(t *testing.T) {
	m, err := Extract([]byte("# Title\n\n---\n\ntext"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if m.DerivedTitle != "Title" {
		t.Errorf("derived title = %q", m.DerivedTitle)
	}
}
