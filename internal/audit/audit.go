// Package audit cross-checks content references against the uploads root
// without changing either.
package audit

import (
	"context"
	"fmt"
	"sort"

	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/relocate"
	"github.com/starford/mediakeep/internal/storage"
	"github.com/starford/mediakeep/internal/usage"
)

// IssueType classifies an audit finding.
type IssueType string

const (
	// MissingFile is critical: a reference points at a file that is absent.
	MissingFile      IssueType = "missing-file"
	NeedsRelocation  IssueType = "needs-relocation"
	ConflictingName  IssueType = "conflict-unresolvable"
	UnmanagedRoot    IssueType = "unmanaged-root"
	InvalidReference IssueType = "invalid-url"
)

// DefaultMaxExamples bounds the examples kept per issue type.
const DefaultMaxExamples = 20

// Issue is one finding.
type Issue struct {
	Type   IssueType `json:"type"`
	URL    string    `json:"url"`
	Path   string    `json:"path,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Report holds full counts and bounded examples per type.
type Report struct {
	Total    int                   `json:"total"`
	Critical int                   `json:"critical"`
	Counts   map[IssueType]int     `json:"counts"`
	Examples map[IssueType][]Issue `json:"examples"`
}

// Auditor runs read-only integrity checks.
type Auditor struct {
	rules       *pathrules.Rules
	files       storage.Provider
	store       content.Store
	planner     *relocate.Planner
	maxExamples int
}

// New creates an auditor. maxExamples <= 0 selects DefaultMaxExamples.
func New(rules *pathrules.Rules, files storage.Provider, store content.Store, planner *relocate.Planner, maxExamples int) *Auditor {
	if maxExamples <= 0 {
		maxExamples = DefaultMaxExamples
	}
	return &Auditor{rules: rules, files: files, store: store, planner: planner, maxExamples: maxExamples}
}

type issueKey struct {
	t         IssueType
	url, path string
}

// Run scans every collection, including site configuration and pages, for
// references to missing files, merges the relocation dry run, and
// deduplicates by type, url and path.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	snap, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: load content: %w", err)
	}

	seen := make(map[issueKey]struct{})
	var issues []Issue
	add := func(is Issue) {
		k := issueKey{is.Type, is.URL, is.Path}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		issues = append(issues, is)
	}

	for _, ref := range usage.References(a.rules, snap) {
		rel, ok := a.rules.RelativePath(ref.URL)
		if !ok {
			continue
		}
		if !a.files.Exists(rel) {
			add(Issue{Type: MissingFile, URL: ref.URL, Path: rel,
				Detail: fmt.Sprintf("%s %s %s", ref.Collection, ref.Owner, ref.Field)})
		}
	}

	plan := a.planner.Plan(usage.Scan(a.rules, snap))
	for _, e := range plan.Entries {
		add(Issue{Type: NeedsRelocation, URL: e.OldURL, Path: e.SourcePath,
			Detail: fmt.Sprintf("%s -> %s", string(e.Reason), e.NewURL)})
	}
	for _, s := range plan.Skipped {
		switch s.Reason {
		case relocate.SkipMissing:
			add(Issue{Type: MissingFile, URL: s.URL, Path: s.Path})
		case relocate.SkipConflict:
			add(Issue{Type: ConflictingName, URL: s.URL, Path: s.Path})
		case relocate.SkipUnmanaged:
			add(Issue{Type: UnmanagedRoot, URL: s.URL, Path: s.Path})
		case relocate.SkipInvalidURL:
			add(Issue{Type: InvalidReference, URL: s.URL})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Type != issues[j].Type {
			return issues[i].Type < issues[j].Type
		}
		return issues[i].URL < issues[j].URL
	})
	rep := &Report{Counts: map[IssueType]int{}, Examples: map[IssueType][]Issue{}}
	for _, is := range issues {
		rep.Total++
		rep.Counts[is.Type]++
		if is.Type == MissingFile {
			rep.Critical++
		}
		if len(rep.Examples[is.Type]) < a.maxExamples {
			rep.Examples[is.Type] = append(rep.Examples[is.Type], is)
		}
	}
	return rep, nil
}
