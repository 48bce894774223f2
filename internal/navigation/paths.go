package navigation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/unnamedteam/docserver/internal/domain"
)

const (
	// Prefix is the path prefix of documentation pages
	Prefix = "/docs"

	// LatestAlias selects the latest version of a project
	LatestAlias = "latest"
)

// Location is a resolved documentation page
type Location struct {
	Project *domain.Project
	Version *domain.Version
	File    *domain.FileNode
}

// PagePath returns the canonical path of file:
// /docs/<project>/<tag>/<segments...>
func PagePath(project *domain.Project, version *domain.Version, file *domain.FileNode) string {
	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString("/")
	b.WriteString(url.PathEscape(project.Name))
	b.WriteString("/")
	b.WriteString(url.PathEscape(version.Version))
	for _, segment := range file.Path {
		b.WriteString("/")
		b.WriteString(url.PathEscape(segment))
	}
	return b.String()
}

// SplitPath splits an escaped page path into unescaped segments, dropping the
// /docs prefix and empty segments
func SplitPath(p string) ([]string, error) {
	if rest, ok := strings.CutPrefix(p, Prefix+"/"); ok {
		p = rest
	} else if p == Prefix {
		p = ""
	}

	var segments []string
	for _, raw := range strings.Split(p, "/") {
		if raw == "" {
			continue
		}
		segment, err := url.PathUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPath, p, err)
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

// Resolve maps path segments (project, optional tag or "latest", page path)
// to a page. A segment after the project that is not a known tag is read as
// part of the page path of the latest version.
//
// A project without any documented version resolves to its Location and
// ErrNotDocumented so callers can render that state.
func Resolve(projects domain.ProjectMap, segments []string) (Location, error) {
	if len(segments) == 0 {
		return Location{}, ErrProjectNotFound
	}

	project, ok := projects[segments[0]]
	if !ok || project == nil {
		return Location{}, fmt.Errorf("%w: %s", ErrProjectNotFound, segments[0])
	}
	if !project.HasDocumentation() {
		return Location{Project: project}, fmt.Errorf("%w: %s", ErrNotDocumented, project.Name)
	}

	rest := segments[1:]
	version := project.LatestVersion
	if len(rest) > 0 {
		if rest[0] == LatestAlias {
			rest = rest[1:]
		} else if v, ok := project.Versions[rest[0]]; ok {
			version = v
			rest = rest[1:]
		}
	}

	if (version == nil || version.Documentation == nil) && len(rest) == 0 {
		// the requested version has nothing to show; use the latest root page
		version = project.LatestVersion
	}
	if version == nil || version.Documentation == nil {
		return Location{}, fmt.Errorf("%w: %s", ErrFileNotFound, strings.Join(segments, "/"))
	}

	file := FindFile(version.Documentation.Content, rest)
	if file == nil {
		return Location{}, fmt.Errorf("%w: %s", ErrFileNotFound, strings.Join(segments, "/"))
	}
	return Location{Project: project, Version: version, File: file}, nil
}

// FindFile walks segments from root. A path that ends on a directory, or an
// empty path, yields that directory's first direct file.
func FindFile(root *domain.Content, segments []string) *domain.FileNode {
	dir := root
	for i, segment := range segments {
		node, ok := dir.Get(segment)
		if !ok {
			return nil
		}
		switch n := node.(type) {
		case *domain.FileNode:
			if i != len(segments)-1 {
				return nil
			}
			return n
		case *domain.DirectoryNode:
			dir = n.Content
		}
	}
	return dir.FirstFile()
}
