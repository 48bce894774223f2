package content

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/unnamedteam/docserver/internal/maven"
)

// Macro verbs understood by Macros
const (
	VerbLatestRelease           = "latestRelease"
	VerbLatestVersion           = "latestVersion"
	VerbLatestReleaseOrSnapshot = "latestReleaseOrSnapshot"
)

// unknownRelease replaces latestRelease for artifacts that were never released
const unknownRelease = "unknown"

// macroPattern matches %%REPLACE_<verb>{<argument>}%%
var macroPattern = regexp.MustCompile(`%%REPLACE_([^%]+)\{([^%]+)}%%`)

// VersioningSource resolves artifact versions for macro expansion
type VersioningSource interface {
	Metadata(ctx context.Context, groupID, artifactID string) (maven.Versioning, error)
}

// Macros expands version macros such as
// %%REPLACE_latestRelease{team.unnamed:creative-api}%%
type Macros struct {
	source VersioningSource
}

// NewMacros creates the macro expansion stage
func NewMacros(source VersioningSource) *Macros {
	return &Macros{source: source}
}

// Process replaces every recognized macro token. Tokens are resolved
// concurrently and spliced back in their original order; unknown verbs and
// malformed arguments are left byte-for-byte unchanged.
func (m *Macros) Process(ctx context.Context, text string, fc FileContext) (string, error) {
	matches := macroPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	replacements := make([]string, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	for i, loc := range matches {
		token := text[loc[0]:loc[1]]
		verb := text[loc[2]:loc[3]]
		argument := text[loc[4]:loc[5]]
		g.Go(func() error {
			out, err := m.expand(gctx, verb, argument)
			if err != nil {
				return fmt.Errorf("macro %s in %s: %w", token, fc.File.Path, err)
			}
			if out == "" {
				out = token
			}
			replacements[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for i, loc := range matches {
		b.WriteString(text[last:loc[0]])
		b.WriteString(replacements[i])
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// expand returns the replacement for one macro, or "" to keep the token
func (m *Macros) expand(ctx context.Context, verb, argument string) (string, error) {
	switch verb {
	case VerbLatestRelease, VerbLatestVersion, VerbLatestReleaseOrSnapshot:
	default:
		return "", nil
	}

	groupID, artifactID, ok := strings.Cut(argument, ":")
	if !ok || groupID == "" || artifactID == "" || strings.Contains(artifactID, ":") {
		return "", nil
	}

	v, err := m.source.Metadata(ctx, groupID, artifactID)
	if err != nil {
		return "", err
	}

	switch verb {
	case VerbLatestRelease:
		if v.Release == "" {
			return unknownRelease, nil
		}
		return v.Release, nil
	case VerbLatestVersion:
		return v.Latest, nil
	default:
		if v.Release != "" {
			return v.Release, nil
		}
		return v.Latest, nil
	}
}
