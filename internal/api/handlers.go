package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/mod/semver"

	"github.com/unnamedteam/docserver/internal/domain"
	"github.com/unnamedteam/docserver/internal/navigation"
	"github.com/unnamedteam/docserver/internal/registry"
)

// Build information (set at compile time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// docsRoute is the route prefix of page requests
const docsRoute = "/v1/docs"

// ProjectSource provides the served project map
type ProjectSource interface {
	Projects(ctx context.Context) (domain.ProjectMap, error)
	Project(ctx context.Context, name string) (*domain.Project, error)
	Stats() registry.Stats
}

// SyncStatus reports the state of background refreshes
type SyncStatus interface {
	LastError() error
	IsSyncing() bool
}

// Handlers provides HTTP handlers for the API
type Handlers struct {
	organization string
	projects     ProjectSource
	sync         SyncStatus
	logger       *slog.Logger
}

// NewHandlers creates a new handlers instance. status may be nil.
func NewHandlers(organization string, projects ProjectSource, status SyncStatus, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		organization: organization,
		projects:     projects,
		sync:         status,
		logger:       logger,
	}
}

// Health returns health check information
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.projects.Stats()

	resp := domain.HealthResponse{
		Status:          "ok",
		Organization:    h.organization,
		ProjectCount:    stats.Projects,
		DocumentedCount: stats.Documented,
	}
	if !stats.LastSyncAt.IsZero() {
		resp.LastSyncAt = stats.LastSyncAt.Format(time.RFC3339)
	}
	if !stats.Loaded {
		resp.Status = "degraded"
	}
	if h.sync != nil {
		resp.Syncing = h.sync.IsSyncing()
		if err := h.sync.LastError(); err != nil {
			resp.Status = "degraded"
			resp.LastError = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ping returns a simple pong response
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.PingResponse{Pong: true})
}

// Version returns build version information
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	version := Version
	commit := GitCommit
	buildTime := BuildTime

	// Try to get from build info if not set
	if info, ok := debug.ReadBuildInfo(); ok && version == "dev" {
		version = info.Main.Version
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			}
		}
	}

	writeJSON(w, http.StatusOK, domain.VersionResponse{
		Version:   version,
		GitCommit: commit,
		BuildTime: buildTime,
	})
}

// ListProjects returns a summary of every project, sorted by name
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.Projects(r.Context())
	if err != nil {
		h.unavailable(w, err)
		return
	}

	resp := domain.ProjectListResponse{Projects: make([]domain.ProjectSummary, 0, len(projects))}
	for _, p := range projects {
		resp.Projects = append(resp.Projects, p.Summary())
	}
	sort.Slice(resp.Projects, func(i, j int) bool {
		return resp.Projects[i].Name < resp.Projects[j].Name
	})
	resp.Count = len(resp.Projects)

	writeJSON(w, http.StatusOK, resp)
}

// GetProject returns a project and its versions, newest first
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "project")

	project, err := h.projects.Project(r.Context(), name)
	if errors.Is(err, navigation.ErrProjectNotFound) {
		writeError(w, http.StatusNotFound, "Not Found", "Project not found: "+name)
		return
	}
	if err != nil {
		h.unavailable(w, err)
		return
	}

	resp := domain.ProjectResponse{
		ProjectSummary: project.Summary(),
		Versions:       make([]domain.VersionSummary, 0, len(project.Versions)),
	}
	for _, v := range project.Versions {
		resp.Versions = append(resp.Versions, domain.VersionSummary{
			Version:    v.Version,
			Latest:     v.Latest,
			Documented: v.Documentation != nil,
		})
	}
	sort.Slice(resp.Versions, func(i, j int) bool {
		return newer(resp.Versions[i].Version, resp.Versions[j].Version)
	})

	writeJSON(w, http.StatusOK, resp)
}

// GetPage resolves /v1/docs/<project>[/<tag>|/latest][/<page path>] to a
// rendered page with its neighbors and the sidebar outline
func (h *Handlers) GetPage(w http.ResponseWriter, r *http.Request) {
	segments, err := navigation.SplitPath(navigation.Prefix + strings.TrimPrefix(r.URL.EscapedPath(), docsRoute))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	projects, err := h.projects.Projects(r.Context())
	if err != nil {
		h.unavailable(w, err)
		return
	}

	loc, err := navigation.Resolve(projects, segments)
	switch {
	case errors.Is(err, navigation.ErrNotDocumented):
		writeJSON(w, http.StatusOK, domain.NotDocumentedResponse{Project: loc.Project.Summary()})
		return
	case errors.Is(err, navigation.ErrProjectNotFound), errors.Is(err, navigation.ErrFileNotFound):
		h.logger.Debug("page not found", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusNotFound, "Not Found", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	root := loc.Version.Documentation.Content
	neighbors, err := navigation.FindNeighbors(root, loc.File.Path)
	if err != nil {
		// the page was just found in this tree
		h.logger.Error("failed to find page neighbors", "path", r.URL.Path, "error", err)
	}

	resp := domain.PageResponse{
		Documented: true,
		Project:    loc.Project.Summary(),
		Version:    loc.Version.Version,
		Page: domain.Page{
			Title:          loc.File.DisplayName,
			HTML:           loc.File.Content,
			Path:           loc.File.Path,
			CanonicalPath:  navigation.PagePath(loc.Project, loc.Version, loc.File),
			LastUpdateDate: loc.File.LastUpdateDate,
		},
		Previous: link(loc, neighbors.Previous),
		Next:     link(loc, neighbors.Next),
		Outline:  root.Outline(),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) unavailable(w http.ResponseWriter, err error) {
	h.logger.Error("project map unavailable", "error", err)
	writeError(w, http.StatusServiceUnavailable, "Service Unavailable",
		"Documentation is not available yet. Try again later.")
}

func link(loc navigation.Location, file *domain.FileNode) *domain.PageLink {
	if file == nil {
		return nil
	}
	return &domain.PageLink{
		Title: file.DisplayName,
		Path:  navigation.PagePath(loc.Project, loc.Version, file),
	}
}

// newer orders release tags newest first. Tags that are not semantic
// versions sort after those that are.
func newer(a, b string) bool {
	va, vb := semverOf(a), semverOf(b)
	switch {
	case va != "" && vb != "":
		if c := semver.Compare(va, vb); c != 0 {
			return c > 0
		}
		return a > b
	case va != "":
		return true
	case vb != "":
		return false
	}
	return a > b
}

func semverOf(tag string) string {
	v := tag
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, detail string) {
	resp := domain.ErrorResponse{
		Status: status,
		Title:  title,
		Detail: detail,
	}
	writeJSON(w, status, resp)
}
