package domain

// ProjectSummary describes a project without its versions
type ProjectSummary struct {
	Name          string `json:"name"`
	DisplayName   string `json:"displayName"`
	Description   string `json:"description"`
	Stars         int    `json:"stars"`
	Documented    bool   `json:"documented"`
	LatestVersion string `json:"latestVersion,omitempty"`
}

// Summary returns the summary of p
func (p *Project) Summary() ProjectSummary {
	s := ProjectSummary{
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Description: p.Description,
		Stars:       p.Stars,
		Documented:  p.HasDocumentation(),
	}
	if p.LatestVersion != nil {
		s.LatestVersion = p.LatestVersion.Version
	}
	return s
}

// ProjectListResponse lists every project
type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects"`
	Count    int              `json:"count"`
}

// VersionSummary describes a version without its documentation tree
type VersionSummary struct {
	Version    string `json:"version"`
	Latest     bool   `json:"latest"`
	Documented bool   `json:"documented"`
}

// ProjectResponse is a project together with its versions
type ProjectResponse struct {
	ProjectSummary
	Versions []VersionSummary `json:"versions"`
}

// PageLink points at a neighboring page
type PageLink struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// Page is a rendered documentation page
type Page struct {
	Title          string   `json:"title"`
	HTML           string   `json:"html"`
	Path           []string `json:"path"`
	CanonicalPath  string   `json:"canonicalPath"`
	LastUpdateDate string   `json:"lastUpdateDate"`
}

// PageResponse is everything needed to display one page
type PageResponse struct {
	Documented bool           `json:"documented"`
	Project    ProjectSummary `json:"project"`
	Version    string         `json:"version"`
	Page       Page           `json:"page"`
	Previous   *PageLink      `json:"previous,omitempty"`
	Next       *PageLink      `json:"next,omitempty"`
	// Outline is the version's tree without page bodies
	Outline *Content `json:"outline"`
}

// NotDocumentedResponse is served for projects without documentation
type NotDocumentedResponse struct {
	Documented bool           `json:"documented"`
	Project    ProjectSummary `json:"project"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status          string `json:"status"`
	Organization    string `json:"organization"`
	LastSyncAt      string `json:"last_sync_at,omitempty"`
	ProjectCount    int    `json:"project_count"`
	DocumentedCount int    `json:"documented_count"`
	Syncing         bool   `json:"syncing"`
	LastError       string `json:"last_error,omitempty"`
}

// PingResponse represents the ping response
type PingResponse struct {
	Pong bool `json:"pong"`
}

// VersionResponse represents the version info response
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}
