// Package relocate decides where each referenced asset belongs and moves it
// there while keeping every content reference intact.
package relocate

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/mediakeep/internal/checksum"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/storage"
	"github.com/starford/mediakeep/internal/usage"
)

// Reason explains why an asset was assigned its target folder.
type Reason string

const (
	ReasonSingleProject  Reason = "single-project"
	ReasonSharedProjects Reason = "shared-across-projects"
	ReasonSharedPosts    Reason = "shared-with-posts"
)

// SkipReason explains why an asset was left in place.
type SkipReason string

const (
	SkipInvalidURL   SkipReason = "invalid-url"
	SkipPrivateRoot  SkipReason = "private-root"
	SkipUnmanaged    SkipReason = "unmanaged-root"
	SkipMissing      SkipReason = "missing-source"
	SkipUnclassified SkipReason = "unclassified"
	SkipCanonical    SkipReason = "already-canonical"
	SkipConflict     SkipReason = "conflict-unresolvable"
)

// DefaultMaxAttempts bounds the counter suffixes tried after the hashed name.
const DefaultMaxAttempts = 50

// Entry is one planned move.
type Entry struct {
	OldURL     string `json:"oldUrl"`
	NewURL     string `json:"newUrl"`
	SourcePath string `json:"sourcePath"`
	TargetPath string `json:"targetPath"`
	Reason     Reason `json:"reason"`
}

// Skip is an asset the planner left alone.
type Skip struct {
	URL    string     `json:"url"`
	Path   string     `json:"path,omitempty"`
	Reason SkipReason `json:"reason"`
}

// Plan is the output of one planning pass.
type Plan struct {
	Entries []Entry `json:"entries"`
	Skipped []Skip  `json:"skipped"`
}

// Mapping returns old URL to new URL for every entry.
func (p *Plan) Mapping() map[string]string {
	m := make(map[string]string, len(p.Entries))
	for _, e := range p.Entries {
		m[e.OldURL] = e.NewURL
	}
	return m
}

// Classify returns the canonical folder for an asset given its usage.
func Classify(u *usage.Usage) (string, Reason, bool) {
	projects := u.Projects()
	switch n := projects.Cardinality(); {
	case n > 1:
		return pathrules.FolderShared, ReasonSharedProjects, true
	case n == 1:
		key := projects.ToSlice()[0]
		if u.ProjectMain.Contains(key) {
			return pathrules.ProjectFolder(key), ReasonSingleProject, true
		}
		return pathrules.EpisodeFolder(key), ReasonSingleProject, true
	}
	if u.Posts.Cardinality() > 0 {
		return pathrules.FolderPosts, ReasonSharedPosts, true
	}
	return "", "", false
}

// Planner computes relocation plans. It reads the file system but never
// changes it.
type Planner struct {
	rules       *pathrules.Rules
	files       storage.Provider
	maxAttempts int
}

// NewPlanner creates a planner. maxAttempts <= 0 selects DefaultMaxAttempts.
func NewPlanner(rules *pathrules.Rules, files storage.Provider, maxAttempts int) *Planner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Planner{rules: rules, files: files, maxAttempts: maxAttempts}
}

// pass holds the targets claimed so far in one planning pass.
type pass struct {
	reserved map[string]struct{}
}

// Plan classifies every asset in m, in sorted URL order, and resolves a
// collision-free target for each one that should move.
func (p *Planner) Plan(m usage.Map) *Plan {
	st := &pass{reserved: make(map[string]struct{})}
	plan := &Plan{Entries: []Entry{}, Skipped: []Skip{}}
	for _, u := range m.URLs() {
		entry, skip := p.planOne(st, u, m[u])
		if skip != nil {
			plan.Skipped = append(plan.Skipped, *skip)
			continue
		}
		plan.Entries = append(plan.Entries, *entry)
	}
	return plan
}

func (p *Planner) planOne(st *pass, assetURL string, u *usage.Usage) (*Entry, *Skip) {
	rel, ok := p.rules.RelativePath(assetURL)
	if !ok {
		return nil, &Skip{URL: assetURL, Reason: SkipInvalidURL}
	}
	skip := func(r SkipReason) (*Entry, *Skip) {
		return nil, &Skip{URL: assetURL, Path: rel, Reason: r}
	}
	if p.rules.IsPrivate(rel) {
		return skip(SkipPrivateRoot)
	}
	if !p.rules.IsManagedSource(rel) {
		return skip(SkipUnmanaged)
	}
	if !p.exists(rel) {
		return skip(SkipMissing)
	}
	folder, reason, ok := Classify(u)
	if !ok {
		return skip(SkipUnclassified)
	}
	if folderOf(rel) == folder {
		return skip(SkipCanonical)
	}
	target, ok := p.resolveUniqueTarget(st, path.Join(folder, path.Base(rel)), rel, assetURL)
	if !ok {
		return skip(SkipConflict)
	}
	return &Entry{
		OldURL:     assetURL,
		NewURL:     p.rules.URLFor(target),
		SourcePath: rel,
		TargetPath: target,
		Reason:     reason,
	}, nil
}

// resolveUniqueTarget claims proposed if it is free, otherwise a name
// disambiguated by a short hash of the old URL, then by a counter.
func (p *Planner) resolveUniqueTarget(st *pass, proposed, source, oldURL string) (string, bool) {
	if proposed == source {
		return proposed, true
	}
	if p.claim(st, proposed) {
		return proposed, true
	}
	dir := path.Dir(proposed)
	ext := path.Ext(proposed)
	stem := strings.TrimSuffix(path.Base(proposed), ext)
	base := stem + "-migrated-" + checksum.Short(oldURL)
	if p.claim(st, path.Join(dir, base+ext)) {
		return path.Join(dir, base+ext), true
	}
	for i := 2; i <= p.maxAttempts; i++ {
		cand := path.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
		if p.claim(st, cand) {
			return cand, true
		}
	}
	return "", false
}

func (p *Planner) claim(st *pass, rel string) bool {
	if _, taken := st.reserved[rel]; taken {
		return false
	}
	if p.exists(rel) {
		return false
	}
	st.reserved[rel] = struct{}{}
	return true
}

func (p *Planner) exists(rel string) bool {
	_, err := p.files.Stat(rel)
	return err == nil
}

func folderOf(rel string) string {
	if d := path.Dir(rel); d != "." {
		return d
	}
	return ""
}
