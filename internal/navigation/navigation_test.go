package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unnamedteam/docserver/internal/domain"
)

func page(path ...string) *domain.FileNode {
	return &domain.FileNode{
		Name:           path[len(path)-1],
		DisplayName:    path[len(path)-1],
		Path:           path,
		LastUpdateDate: domain.UnknownDate,
	}
}

func dir(name string, children ...domain.Node) *domain.DirectoryNode {
	c := domain.NewContent()
	for _, child := range children {
		c.Set(child.Key(), child)
	}
	return &domain.DirectoryNode{Name: name, DisplayName: name, Content: c}
}

// sampleTree:
//
//	readme
//	install
//	guide/
//	  setup
//	  advanced
//	  internals/
//	    design
//	assets/
//	  nested/
//	    deep
//	changelog
func sampleTree() *domain.Content {
	root := domain.NewContent()
	root.Set("readme", page("readme"))
	root.Set("install", page("install"))
	root.Set("guide", dir("guide",
		page("guide", "setup"),
		page("guide", "advanced"),
		dir("internals", page("guide", "internals", "design")),
	))
	root.Set("assets", dir("assets",
		dir("nested", page("assets", "nested", "deep")),
	))
	root.Set("changelog", page("changelog"))
	return root
}

func names(n Neighbors) (string, string) {
	var prev, next string
	if n.Previous != nil {
		prev = n.Previous.Name
	}
	if n.Next != nil {
		next = n.Next.Name
	}
	return prev, next
}

func TestFindNeighbors(t *testing.T) {
	tests := []struct {
		name     string
		path     []string
		previous string
		next     string
	}{
		{"first page has no previous", []string{"readme"}, "", "install"},
		{"next descends into following directory", []string{"install"}, "readme", "setup"},
		{"last page has no next", []string{"changelog"}, "install", ""},
		{"inside a directory", []string{"guide", "setup"}, "", "advanced"},
		{"last file before nested directory", []string{"guide", "advanced"}, "setup", "design"},
		{"only page in directory", []string{"guide", "internals", "design"}, "", ""},
	}

	root := sampleTree()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := FindNeighbors(root, tt.path)
			require.NoError(t, err)
			prev, next := names(n)
			assert.Equal(t, tt.previous, prev)
			assert.Equal(t, tt.next, next)
		})
	}
}

func TestFindNeighborsSkipsEmptyDirectoryBeforeNextFile(t *testing.T) {
	root := domain.NewContent()
	root.Set("a", page("a"))
	root.Set("b", dir("b", dir("c", page("b", "c", "d"))))
	root.Set("e", page("e"))

	n, err := FindNeighbors(root, []string{"a"})
	require.NoError(t, err)
	_, next := names(n)
	assert.Equal(t, "e", next)
}

func TestFindNeighborsInvalidPath(t *testing.T) {
	root := sampleTree()
	for _, p := range [][]string{
		nil,
		{"missing", "setup"},
		{"readme", "setup"},
		{"guide", "missing"},
	} {
		_, err := FindNeighbors(root, p)
		assert.ErrorIs(t, err, ErrInvalidPath, "%v", p)
	}
}

func sampleProjects() domain.ProjectMap {
	latest := &domain.Version{Version: "2.0.0", Latest: true, Documentation: &domain.Documentation{Content: sampleTree()}}
	old := &domain.Version{Version: "1.0.0", Documentation: &domain.Documentation{Content: sampleTree()}}
	bare := &domain.Version{Version: "0.9.0"}

	undocumented := &domain.Version{Version: "0.1.0", Latest: true}
	return domain.ProjectMap{
		"creative": {
			Name:          "creative",
			DisplayName:   "Creative",
			Versions:      map[string]*domain.Version{"2.0.0": latest, "1.0.0": old, "0.9.0": bare},
			LatestVersion: latest,
		},
		"sketch": {
			Name:          "sketch",
			Versions:      map[string]*domain.Version{"0.1.0": undocumented},
			LatestVersion: undocumented,
		},
		"empty": {
			Name:     "empty",
			Versions: map[string]*domain.Version{},
		},
	}
}

func TestResolve(t *testing.T) {
	projects := sampleProjects()
	tests := []struct {
		name     string
		segments []string
		version  string
		path     []string
	}{
		{"project root is the first latest page", []string{"creative"}, "2.0.0", []string{"readme"}},
		{"latest alias", []string{"creative", "latest", "guide", "setup"}, "2.0.0", []string{"guide", "setup"}},
		{"explicit tag", []string{"creative", "1.0.0", "install"}, "1.0.0", []string{"install"}},
		{"unknown tag is part of the page path", []string{"creative", "guide", "advanced"}, "2.0.0", []string{"guide", "advanced"}},
		{"directory yields its first page", []string{"creative", "1.0.0", "guide"}, "1.0.0", []string{"guide", "setup"}},
		{"undocumented version falls back to latest root", []string{"creative", "0.9.0"}, "2.0.0", []string{"readme"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := Resolve(projects, tt.segments)
			require.NoError(t, err)
			assert.Equal(t, "creative", loc.Project.Name)
			assert.Equal(t, tt.version, loc.Version.Version)
			assert.Equal(t, tt.path, loc.File.Path)
		})
	}
}

func TestResolveFailures(t *testing.T) {
	projects := sampleProjects()

	_, err := Resolve(projects, nil)
	assert.ErrorIs(t, err, ErrProjectNotFound)

	_, err = Resolve(projects, []string{"ghost", "readme"})
	assert.ErrorIs(t, err, ErrProjectNotFound)

	loc, err := Resolve(projects, []string{"sketch", "readme"})
	assert.ErrorIs(t, err, ErrNotDocumented)
	require.NotNil(t, loc.Project)
	assert.Equal(t, "sketch", loc.Project.Name)

	_, err = Resolve(projects, []string{"empty"})
	assert.ErrorIs(t, err, ErrNotDocumented)

	_, err = Resolve(projects, []string{"creative", "2.0.0", "missing"})
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = Resolve(projects, []string{"creative", "0.9.0", "readme"})
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = Resolve(projects, []string{"creative", "readme", "extra"})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestPagePathRoundTrip(t *testing.T) {
	projects := sampleProjects()
	for _, p := range []string{
		"/docs/creative/2.0.0/readme",
		"/docs/creative/1.0.0/guide/setup",
		"/docs/creative/2.0.0/guide/internals/design",
		"/docs/creative/1.0.0/assets/nested/deep",
	} {
		segments, err := SplitPath(p)
		require.NoError(t, err)
		loc, err := Resolve(projects, segments)
		require.NoError(t, err, p)
		assert.Equal(t, p, PagePath(loc.Project, loc.Version, loc.File))
	}
}

func TestPagePathEscapesSegments(t *testing.T) {
	project := &domain.Project{Name: "creative"}
	version := &domain.Version{Version: "release/1.0"}
	file := page("my guide", "setup")

	p := PagePath(project, version, file)
	assert.Equal(t, "/docs/creative/release%2F1.0/my%20guide/setup", p)

	segments, err := SplitPath(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"creative", "release/1.0", "my guide", "setup"}, segments)
}

func TestSplitPath(t *testing.T) {
	segments, err := SplitPath("/docs//creative/latest/")
	require.NoError(t, err)
	assert.Equal(t, []string{"creative", "latest"}, segments)

	segments, err = SplitPath("creative/guide")
	require.NoError(t, err)
	assert.Equal(t, []string{"creative", "guide"}, segments)

	_, err = SplitPath("/docs/creative/%zz")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
