package content

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkdownConfig holds markdown rendering configuration
type MarkdownConfig struct {
	// DocsPrefix is the URL prefix of rendered documentation, e.g. "/docs"
	DocsPrefix string

	// RootFolder is the repository folder holding documentation, e.g. "docs"
	RootFolder string

	// PageSuffix is the extension of page files, e.g. ".md"
	PageSuffix string

	// RawBaseURL serves raw repository files, e.g. "https://raw.githubusercontent.com"
	RawBaseURL string

	// HighlightStyle is the chroma style used for fenced code blocks
	HighlightStyle string
}

// Markdown renders GitHub flavoured markdown to HTML and rewrites relative
// page links and image sources
type Markdown struct {
	cfg MarkdownConfig
	md  goldmark.Markdown
}

// NewMarkdown creates the markdown stage
func NewMarkdown(cfg MarkdownConfig) *Markdown {
	if cfg.DocsPrefix == "" {
		cfg.DocsPrefix = "/docs"
	}
	if cfg.RootFolder == "" {
		cfg.RootFolder = "docs"
	}
	if cfg.PageSuffix == "" {
		cfg.PageSuffix = ".md"
	}
	if cfg.RawBaseURL == "" {
		cfg.RawBaseURL = "https://raw.githubusercontent.com"
	}
	if cfg.HighlightStyle == "" {
		cfg.HighlightStyle = "github"
	}
	cfg.RawBaseURL = strings.TrimSuffix(cfg.RawBaseURL, "/")

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(cfg.HighlightStyle),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
	)

	return &Markdown{cfg: cfg, md: md}
}

// Process converts markdown to HTML and rewrites links for the page in fc
func (m *Markdown) Process(_ context.Context, text string, fc FileContext) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	nodes, err := parseFragment(buf.String())
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered HTML: %w", err)
	}

	for _, n := range nodes {
		m.rewrite(n, fc)
	}

	var out strings.Builder
	for _, n := range nodes {
		if err := html.Render(&out, n); err != nil {
			return "", fmt.Errorf("failed to serialize HTML: %w", err)
		}
	}
	return out.String(), nil
}

func (m *Markdown) rewrite(n *html.Node, fc FileContext) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.A:
			if href, ok := getAttr(n, "href"); ok {
				if rewritten, ok := m.PageLink(href, fc); ok {
					setAttr(n, "href", rewritten)
				}
			}
		case atom.Img:
			if src, ok := getAttr(n, "src"); ok {
				if rewritten, ok := m.ImageSource(src, fc); ok {
					setAttr(n, "src", rewritten)
				}
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.rewrite(c, fc)
	}
}

// PageLink rewrites a relative link to another page into its documentation
// URL. It reports false for links that must be left alone.
func (m *Markdown) PageLink(href string, fc FileContext) (string, bool) {
	if isAbsolute(href) || !strings.HasSuffix(href, m.cfg.PageSuffix) {
		return "", false
	}
	target := strings.TrimSuffix(href, m.cfg.PageSuffix)

	var resolved string
	if strings.HasPrefix(target, "/") {
		resolved = path.Clean(target)
	} else {
		resolved = path.Join("/", m.docsDir(fc.File.Path), target)
	}

	segments := []string{m.cfg.DocsPrefix, fc.Repository.Name}
	if !fc.Version.Latest {
		segments = append(segments, fc.Version.Version)
	}
	segments = append(segments, resolved)
	return path.Join(segments...), true
}

// ImageSource rewrites a relative image source into the raw content URL of
// the file at the page's exact release
func (m *Markdown) ImageSource(src string, fc FileContext) (string, bool) {
	if src == "" || isAbsolute(src) {
		return "", false
	}

	var resolved string
	if strings.HasPrefix(src, "/") {
		resolved = path.Clean(src)
	} else {
		resolved = path.Join("/", path.Dir(fc.File.Path), src)
	}

	return fmt.Sprintf("%s/%s/%s%s", m.cfg.RawBaseURL, fc.Repository.FullName, fc.Version.Version, resolved), true
}

// docsDir returns the directory of a repository file path relative to the
// documentation root folder
func (m *Markdown) docsDir(filePath string) string {
	rel := strings.TrimPrefix(filePath, m.cfg.RootFolder)
	rel = strings.TrimPrefix(rel, "/")
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

func isAbsolute(ref string) bool {
	if strings.HasPrefix(ref, "//") {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		// unparseable references are never rewritten
		return true
	}
	return u.Scheme != ""
}

func parseFragment(s string) ([]*html.Node, error) {
	return html.ParseFragment(strings.NewReader(s), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
