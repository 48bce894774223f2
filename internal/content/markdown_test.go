package content

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unnamedteam/docserver/internal/domain"
)

func pageContext(project, tag string, latest bool, filePath string) FileContext {
	return FileContext{
		Repository: domain.Repository{Name: project, FullName: "unnamed/" + project},
		Version:    domain.Version{Version: tag, Latest: latest},
		File:       domain.Entry{Name: filePath[strings.LastIndex(filePath, "/")+1:], Path: filePath},
	}
}

func TestPageLinkRewrites(t *testing.T) {
	m := NewMarkdown(MarkdownConfig{})

	tests := []struct {
		name   string
		href   string
		fc     FileContext
		want   string
		reject bool
	}{
		{
			name: "sibling page at older version",
			href: "./advanced.md",
			fc:   pageContext("foo", "2.0.0", false, "docs/guide/setup.md"),
			want: "/docs/foo/2.0.0/guide/advanced",
		},
		{
			name: "latest version omits tag",
			href: "advanced.md",
			fc:   pageContext("foo", "3.0.0", true, "docs/guide/setup.md"),
			want: "/docs/foo/guide/advanced",
		},
		{
			name: "parent directory",
			href: "../readme.md",
			fc:   pageContext("foo", "2.0.0", false, "docs/guide/setup.md"),
			want: "/docs/foo/2.0.0/readme",
		},
		{
			name: "root page",
			href: "guide/setup.md",
			fc:   pageContext("foo", "1.0.0", true, "docs/readme.md"),
			want: "/docs/foo/guide/setup",
		},
		{
			name: "escaping the root is clamped",
			href: "../../../outside.md",
			fc:   pageContext("foo", "1.0.0", true, "docs/guide/setup.md"),
			want: "/docs/foo/outside",
		},
		{
			name:   "absolute https link",
			href:   "https://github.com/unnamed/foo/blob/main/readme.md",
			fc:     pageContext("foo", "1.0.0", true, "docs/readme.md"),
			reject: true,
		},
		{
			name:   "non page link",
			href:   "./diagram.png",
			fc:     pageContext("foo", "1.0.0", true, "docs/readme.md"),
			reject: true,
		},
		{
			name:   "anchor",
			href:   "#usage",
			fc:     pageContext("foo", "1.0.0", true, "docs/readme.md"),
			reject: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.PageLink(tt.href, tt.fc)
			if tt.reject {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImageSourceRewrites(t *testing.T) {
	m := NewMarkdown(MarkdownConfig{})
	fc := pageContext("foo", "2.0.0", false, "docs/guide/setup.md")

	got, ok := m.ImageSource("img/diagram.png", fc)
	require.True(t, ok)
	assert.Equal(t, "https://raw.githubusercontent.com/unnamed/foo/2.0.0/docs/guide/img/diagram.png", got)

	got, ok = m.ImageSource("../assets/logo.svg", fc)
	require.True(t, ok)
	assert.Equal(t, "https://raw.githubusercontent.com/unnamed/foo/2.0.0/docs/assets/logo.svg", got)

	got, ok = m.ImageSource("/assets/banner.png", fc)
	require.True(t, ok)
	assert.Equal(t, "https://raw.githubusercontent.com/unnamed/foo/2.0.0/assets/banner.png", got)

	_, ok = m.ImageSource("https://example.com/a.png", fc)
	assert.False(t, ok)
	_, ok = m.ImageSource("data:image/png;base64,AAAA", fc)
	assert.False(t, ok)
}

func TestMarkdownProcessRewritesDocument(t *testing.T) {
	m := NewMarkdown(MarkdownConfig{})
	fc := pageContext("foo", "2.0.0", false, "docs/guide/setup.md")

	src := strings.Join([]string{
		"# Setup",
		"",
		"Read [advanced](./advanced.md) or [GitHub](https://github.com/unnamed/foo).",
		"",
		"![diagram](img/diagram.png)",
		"",
		"| a | b |",
		"|---|---|",
		"| 1 | 2 |",
		"",
		"- [x] done",
		"",
	}, "\n")

	out, err := m.Process(context.Background(), src, fc)
	require.NoError(t, err)

	assert.Contains(t, out, "<h1>Setup</h1>")
	assert.Contains(t, out, `href="/docs/foo/2.0.0/guide/advanced"`)
	assert.Contains(t, out, `href="https://github.com/unnamed/foo"`)
	assert.Contains(t, out, `src="https://raw.githubusercontent.com/unnamed/foo/2.0.0/docs/guide/img/diagram.png"`)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, `type="checkbox"`)
}

func TestMarkdownHighlighting(t *testing.T) {
	m := NewMarkdown(MarkdownConfig{})
	fc := pageContext("foo", "1.0.0", true, "docs/readme.md")

	out, err := m.Process(context.Background(), "```go\nfunc main() {}\n```\n", fc)
	require.NoError(t, err)
	assert.Contains(t, out, "chroma")

	out, err = m.Process(context.Background(), "```nosuchlanguage\ndoSomething\n```\n", fc)
	require.NoError(t, err)
	assert.Contains(t, out, "doSomething")
}

func TestMarkdownDropsRawHTML(t *testing.T) {
	m := NewMarkdown(MarkdownConfig{})
	fc := pageContext("foo", "1.0.0", true, "docs/readme.md")

	out, err := m.Process(context.Background(), "<script>alert(1)</script>\n\ntext\n", fc)
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}
