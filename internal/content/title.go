package content

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var wordSeparators = regexp.MustCompile(`[-_\s]+`)

// PageTitle returns the text of the first <h1> of a rendered page, else the
// first <h2>, else the humanized file name
func PageTitle(filename, rendered string) string {
	nodes, err := parseFragment(rendered)
	if err == nil {
		for _, tag := range []atom.Atom{atom.H1, atom.H2} {
			if h := findFirst(nodes, tag); h != nil {
				if text := strings.TrimSpace(innerText(h)); text != "" {
					return text
				}
			}
		}
	}
	return Humanize(filename)
}

// Humanize turns a file or directory name into a display name:
// "getting-started" becomes "Getting Started"
func Humanize(name string) string {
	caser := cases.Title(language.Und)
	words := wordSeparators.Split(name, -1)
	out := words[:0]
	for _, w := range words {
		if w == "" {
			continue
		}
		out = append(out, caser.String(w))
	}
	return strings.Join(out, " ")
}

func findFirst(nodes []*html.Node, tag atom.Atom) *html.Node {
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			return n
		}
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		if found := findFirst(children, tag); found != nil {
			return found
		}
	}
	return nil
}

func innerText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(innerText(c))
	}
	return b.String()
}
