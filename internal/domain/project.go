package domain

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by content sources when a path does not exist at a ref
var ErrNotFound = errors.New("not found")

// Repository describes a source repository that may host documentation
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	Private       bool   `json:"private"`
	Archived      bool   `json:"archived"`
	Stars         int    `json:"stars"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
}

// Owner returns the owner part of the repository full name
func (r Repository) Owner() string {
	owner, _ := r.split()
	return owner
}

// Repo returns the repository part of the full name
func (r Repository) Repo() string {
	_, repo := r.split()
	return repo
}

func (r Repository) split() (string, string) {
	owner, repo, ok := strings.Cut(r.FullName, "/")
	if !ok {
		return "", r.FullName
	}
	return owner, repo
}

// EntryType is the kind of a listed repository entry
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// Entry is one item of a remote directory listing
type Entry struct {
	Name   string    `json:"name"`
	Path   string    `json:"path"`
	Type   EntryType `json:"type"`
	RawURL string    `json:"raw_url,omitempty"`
	// Ref is the ref the entry was listed at
	Ref string `json:"ref"`
}

// Commit is a single history entry for a path
type Commit struct {
	SHA       string `json:"sha"`
	Timestamp string `json:"timestamp"`
}

// Release is a published release of a repository
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// Version is a release together with its documentation tree
type Version struct {
	Version       string         `json:"version"`
	Latest        bool           `json:"latest"`
	Documentation *Documentation `json:"documentation,omitempty"`
}

// Project is a documented repository with all of its versions
type Project struct {
	Name          string              `json:"name"`
	DisplayName   string              `json:"displayName"`
	Description   string              `json:"description"`
	Stars         int                 `json:"stars"`
	Versions      map[string]*Version `json:"versions"`
	LatestVersion *Version            `json:"latestVersion,omitempty"`
}

// HasDocumentation reports whether any version carries documentation
func (p *Project) HasDocumentation() bool {
	for _, v := range p.Versions {
		if v.Documentation != nil {
			return true
		}
	}
	return false
}

// ProjectMap indexes projects by name
type ProjectMap map[string]*Project

// ProjectSettings overrides what is discovered from a repository
type ProjectSettings struct {
	DisplayName string `yaml:"display_name" json:"displayName,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
	// Exclude hides the repository from the project map
	Exclude bool `yaml:"exclude" json:"exclude,omitempty"`
}
