package domain

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// NodeType distinguishes directories from pages in a documentation tree
type NodeType string

const (
	NodeTypeDirectory NodeType = "dir"
	NodeTypeFile      NodeType = "file"
)

// UnknownDate is recorded when a page has no commit history at its ref
const UnknownDate = "unknown"

// Node is an entry of a documentation tree
type Node interface {
	// Kind returns whether the node is a directory or a file
	Kind() NodeType
	// Key returns the raw segment name of the node
	Key() string
	// Title returns the human readable name of the node
	Title() string
}

// DirectoryNode owns an ordered set of child nodes
type DirectoryNode struct {
	Name        string
	DisplayName string
	Content     *Content
}

func (d *DirectoryNode) Kind() NodeType { return NodeTypeDirectory }
func (d *DirectoryNode) Key() string    { return d.Name }
func (d *DirectoryNode) Title() string  { return d.DisplayName }

// MarshalJSON encodes the directory with its type tag
func (d *DirectoryNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        NodeType `json:"type"`
		Name        string   `json:"name"`
		DisplayName string   `json:"displayName"`
		Content     *Content `json:"content"`
	}{NodeTypeDirectory, d.Name, d.DisplayName, d.Content})
}

// FileNode is a single documentation page
type FileNode struct {
	Name        string
	DisplayName string

	// Content is the rendered HTML of the page
	Content string

	// Path holds the directory names from the documentation root and the
	// page name, without extension
	Path []string

	// LastUpdateDate is an RFC 3339 timestamp or UnknownDate
	LastUpdateDate string
}

func (f *FileNode) Kind() NodeType { return NodeTypeFile }
func (f *FileNode) Key() string    { return f.Name }
func (f *FileNode) Title() string  { return f.DisplayName }

// MarshalJSON encodes the page with its type tag
func (f *FileNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type           NodeType `json:"type"`
		Name           string   `json:"name"`
		DisplayName    string   `json:"displayName"`
		Content        string   `json:"content,omitempty"`
		Path           []string `json:"path"`
		LastUpdateDate string   `json:"lastUpdateDate"`
	}{NodeTypeFile, f.Name, f.DisplayName, f.Content, f.Path, f.LastUpdateDate})
}

// Content maps child segment names to nodes, preserving display order
type Content struct {
	m *orderedmap.OrderedMap[string, Node]
}

// NewContent creates an empty directory content
func NewContent() *Content {
	return &Content{m: orderedmap.New[string, Node]()}
}

// Set appends a node under key. It reports false and leaves the content
// untouched when key is already present.
func (c *Content) Set(key string, node Node) bool {
	if _, ok := c.m.Get(key); ok {
		return false
	}
	c.m.Set(key, node)
	return true
}

// Get returns the node stored under key
func (c *Content) Get(key string) (Node, bool) {
	if c == nil {
		return nil, false
	}
	return c.m.Get(key)
}

// Len returns the number of direct children
func (c *Content) Len() int {
	if c == nil {
		return 0
	}
	return c.m.Len()
}

// Keys returns child keys in display order
func (c *Content) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Nodes returns children in display order
func (c *Content) Nodes() []Node {
	if c == nil {
		return nil
	}
	nodes := make([]Node, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		nodes = append(nodes, pair.Value)
	}
	return nodes
}

// FirstFile returns the first direct child that is a page
func (c *Content) FirstFile() *FileNode {
	for _, node := range c.Nodes() {
		if f, ok := node.(*FileNode); ok {
			return f
		}
	}
	return nil
}

// Outline returns a copy of the tree with page bodies removed, for sidebars
func (c *Content) Outline() *Content {
	out := NewContent()
	for _, node := range c.Nodes() {
		switch n := node.(type) {
		case *DirectoryNode:
			out.Set(n.Name, &DirectoryNode{Name: n.Name, DisplayName: n.DisplayName, Content: n.Content.Outline()})
		case *FileNode:
			out.Set(n.Name, &FileNode{Name: n.Name, DisplayName: n.DisplayName, Path: n.Path, LastUpdateDate: n.LastUpdateDate})
		}
	}
	return out
}

// MarshalJSON encodes the content as a JSON object in display order
func (c *Content) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return c.m.MarshalJSON()
}

// Documentation is the documentation tree of one version
type Documentation struct {
	Content *Content `json:"content"`
}
