// Package changelog implements the filesystem-backed changelog collaborator.
//
// The layout follows the ".changes" convention: pending fragment files live
// in <dir>/next-release, and each released version gets a single merged
// file named after the version, e.g. ".changes/1.9.0-rc1.md".
package changelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/relcut/relcut/pkg/api"
)

// NextReleaseDir is the subdirectory holding pending fragment files.
const NextReleaseDir = "next-release"

// FileTool is a ChangelogTool operating on a local ".changes" directory.
type FileTool struct {
	// Dir is the changelog root, typically ".changes" inside the repo.
	Dir string
}

var _ api.ChangelogTool = (*FileTool)(nil)

// NewFileTool returns a FileTool rooted at dir.
func NewFileTool(dir string) *FileTool {
	return &FileTool{Dir: dir}
}

// Path computes the changelog location for v: <dir>/<base>[-<pre>].md.
func (t *FileTool) Path(v api.Version) string {
	return filepath.Join(t.Dir, v.String()+".md")
}

// Exists reports whether the changelog file for v is present.
func (t *FileTool) Exists(v api.Version) (bool, error) {
	_, err := os.Stat(t.Path(v))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ExistingPrereleases lists prerelease changelog files for v's base version
// in lexical order.
func (t *FileTool) ExistingPrereleases(v api.Version) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(t.Dir, v.Base+"-*.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Generate merges the pending fragments into the changelog file for v.
//
// Mode semantics:
//   - ModePrerelease: fragments move into the prerelease-tagged file.
//   - ModeFinalWithPrereleases: fragments plus the bodies of all existing
//     prerelease files fold into the final file; the prerelease files are
//     removed.
//   - ModeCleanFinal: fragments fold into the final file.
//
// Consumed fragments are removed in every mode.
func (t *FileTool) Generate(ctx context.Context, v api.Version, mode api.GenerationMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fragments, err := t.pendingFragments()
	if err != nil {
		return "", err
	}

	var sections []string
	for _, frag := range fragments {
		body, err := os.ReadFile(frag)
		if err != nil {
			return "", err
		}
		if s := strings.TrimSpace(string(body)); s != "" {
			sections = append(sections, s)
		}
	}

	var consumedPres []string
	if mode == api.ModeFinalWithPrereleases {
		pres, err := t.ExistingPrereleases(v)
		if err != nil {
			return "", err
		}
		for _, pre := range pres {
			body, err := os.ReadFile(pre)
			if err != nil {
				return "", err
			}
			if s := stripHeader(string(body)); s != "" {
				sections = append(sections, s)
			}
		}
		consumedPres = pres
	}

	path := t.Path(v)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "# %s\n", v.String())
	for _, s := range sections {
		out.WriteString("\n")
		out.WriteString(s)
		out.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(out.String()), 0o644); err != nil {
		return "", err
	}

	// Consumed inputs go away only after the merged file is on disk.
	for _, frag := range fragments {
		if err := os.Remove(frag); err != nil {
			return "", err
		}
	}
	for _, pre := range consumedPres {
		if err := os.Remove(pre); err != nil {
			return "", err
		}
	}

	return path, nil
}

func (t *FileTool) pendingFragments() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(t.Dir, NextReleaseDir, "*.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// stripHeader drops a leading "# ..." line so folded prerelease bodies do
// not repeat their version headers inside the final file.
func stripHeader(body string) string {
	s := strings.TrimSpace(body)
	if strings.HasPrefix(s, "# ") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = strings.TrimSpace(s[i+1:])
		} else {
			s = ""
		}
	}
	return s
}

// ChooseMode picks the generation mode for v: prereleases always use
// ModePrerelease; final releases fold in existing prereleases when any are
// present, and use ModeCleanFinal otherwise.
func ChooseMode(v api.Version, existingPrereleases []string) api.GenerationMode {
	switch {
	case v.IsPrerelease():
		return api.ModePrerelease
	case len(existingPrereleases) > 0:
		return api.ModeFinalWithPrereleases
	default:
		return api.ModeCleanFinal
	}
}
