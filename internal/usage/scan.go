package usage

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/pathrules"
)

// Usage records the distinct owners referencing one asset. Projects are
// recorded by folder slug, so keys that share a slug count as one project.
type Usage struct {
	Posts          mapset.Set[string]
	ProjectMain    mapset.Set[string]
	ProjectEpisode mapset.Set[string]
	// Other holds site configuration and page owners. They keep an asset
	// alive but never decide its folder.
	Other mapset.Set[string]
}

func newUsage() *Usage {
	return &Usage{
		Posts:          mapset.NewThreadUnsafeSet[string](),
		ProjectMain:    mapset.NewThreadUnsafeSet[string](),
		ProjectEpisode: mapset.NewThreadUnsafeSet[string](),
		Other:          mapset.NewThreadUnsafeSet[string](),
	}
}

// Projects returns every project referencing the asset in any role.
func (u *Usage) Projects() mapset.Set[string] {
	return u.ProjectMain.Union(u.ProjectEpisode)
}

// Empty reports whether nothing references the asset.
func (u *Usage) Empty() bool {
	return u.Posts.Cardinality() == 0 && u.ProjectMain.Cardinality() == 0 &&
		u.ProjectEpisode.Cardinality() == 0 && u.Other.Cardinality() == 0
}

// Map is keyed by normalized asset URL.
type Map map[string]*Usage

// URLs returns the keys in sorted order.
func (m Map) URLs() []string {
	out := make([]string, 0, len(m))
	for u := range m {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Reference is one resolved asset reference at a site.
type Reference struct {
	URL        string             `json:"url"`
	Kind       Kind               `json:"-"`
	Collection content.Collection `json:"collection"`
	Owner      string             `json:"owner"`
	Field      string             `json:"field"`
}

// References returns every normalized asset reference in snap.
func References(rules *pathrules.Rules, snap *content.Snapshot) []Reference {
	var out []Reference
	Visit(snap, func(s Site) {
		for _, u := range urlsAt(rules, s) {
			out = append(out, Reference{URL: u, Kind: s.Kind, Collection: s.Collection, Owner: s.Owner, Field: s.Field})
		}
	})
	return out
}

func urlsAt(rules *pathrules.Rules, s Site) []string {
	if *s.Value == "" {
		return nil
	}
	if s.Text {
		return rules.ExtractAssetURLs(*s.Value)
	}
	if u, ok := rules.NormalizeAssetURL(*s.Value); ok {
		return []string{u}
	}
	return nil
}

// Scan folds every reference in snap into a usage map.
func Scan(rules *pathrules.Rules, snap *content.Snapshot) Map {
	m := make(Map)
	for _, ref := range References(rules, snap) {
		u, ok := m[ref.URL]
		if !ok {
			u = newUsage()
			m[ref.URL] = u
		}
		switch ref.Kind {
		case PostCover, PostGallery, PostBody:
			u.Posts.Add(ref.Owner)
		case ProjectMain:
			u.ProjectMain.Add(pathrules.ProjectSlug(ref.Owner))
		case ProjectEpisode:
			u.ProjectEpisode.Add(pathrules.ProjectSlug(ref.Owner))
		default:
			u.Other.Add(string(ref.Collection) + ":" + ref.Owner)
		}
	}
	return m
}

// LiveSet returns the set of every referenced asset URL.
func LiveSet(rules *pathrules.Rules, snap *content.Snapshot) mapset.Set[string] {
	live := mapset.NewThreadUnsafeSet[string]()
	for _, ref := range References(rules, snap) {
		live.Add(ref.URL)
	}
	return live
}
