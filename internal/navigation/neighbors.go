// Package navigation walks built documentation trees: previous/next pages,
// canonical page paths and slug resolution.
package navigation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unnamedteam/docserver/internal/domain"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNotDocumented   = errors.New("project has no documentation")
	ErrFileNotFound    = errors.New("documentation page not found")
	ErrInvalidPath     = errors.New("invalid documentation path")
)

// Neighbors holds the pages around the current one. Either may be nil.
type Neighbors struct {
	Previous *domain.FileNode
	Next     *domain.FileNode
}

// FindNeighbors returns the previous and next pages of the file at filePath
// within its own directory. Only sibling files count as previous; the next
// page may be the first direct file of a following sibling directory.
func FindNeighbors(root *domain.Content, filePath []string) (Neighbors, error) {
	if len(filePath) == 0 {
		return Neighbors{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	dir := root
	for _, segment := range filePath[:len(filePath)-1] {
		node, ok := dir.Get(segment)
		sub, isDir := node.(*domain.DirectoryNode)
		if !ok || !isDir {
			return Neighbors{}, fmt.Errorf("%w: %s", ErrInvalidPath, strings.Join(filePath, "/"))
		}
		dir = sub.Content
	}

	name := filePath[len(filePath)-1]
	var (
		result Neighbors
		found  bool
	)
	for _, node := range dir.Nodes() {
		switch n := node.(type) {
		case *domain.DirectoryNode:
			if !found {
				continue
			}
			if first := n.Content.FirstFile(); first != nil {
				result.Next = first
				return result, nil
			}
		case *domain.FileNode:
			switch {
			case found:
				result.Next = n
				return result, nil
			case n.Name == name:
				found = true
			default:
				result.Previous = n
			}
		}
	}

	if !found {
		return Neighbors{}, fmt.Errorf("%w: %s", ErrInvalidPath, strings.Join(filePath, "/"))
	}
	return result, nil
}
