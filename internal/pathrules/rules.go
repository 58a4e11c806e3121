// Package pathrules recognizes, normalizes and classifies asset URLs and
// the relative paths they map to under the uploads root. Nothing here
// touches the file system.
package pathrules

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Canonical folder names.
const (
	FolderShared   = "shared"
	FolderPosts    = "posts"
	FolderProjects = "projects"
	FolderEpisodes = "episodes"
)

// DefaultPrefix is the URL path prefix of the uploads namespace.
const DefaultPrefix = "/uploads/"

var (
	// DefaultManagedRoots are root folders whose assets may be relocated.
	DefaultManagedRoots = []string{FolderProjects, FolderPosts, FolderShared, "imports", "media"}
	// DefaultPrivateRoots are never relocated.
	DefaultPrivateRoots = []string{"users", "downloads", "private"}

	slugRe = regexp.MustCompile(`[^a-z0-9_-]+`)
)

// Rules holds the namespace configuration.
type Rules struct {
	prefix  string
	managed map[string]struct{}
	private map[string]struct{}
	urlRe   *regexp.Regexp
}

// New builds Rules. An empty prefix selects DefaultPrefix.
func New(prefix string, managedRoots, privateRoots []string) *Rules {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	r := &Rules{
		prefix:  prefix,
		managed: toSet(managedRoots),
		private: toSet(privateRoots),
	}
	// Optional scheme+host, then the prefix, then any run of characters that
	// can appear in a path inside markup.
	r.urlRe = regexp.MustCompile(`(?i)(?:https?://[a-z0-9.\-]+(?::\d+)?)?` +
		regexp.QuoteMeta(prefix) + `[^\s"'<>()\[\]{}\\|^` + "`" + `]+`)
	return r
}

// Default returns Rules with the default prefix and roots.
func Default() *Rules {
	return New(DefaultPrefix, DefaultManagedRoots, DefaultPrivateRoots)
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.Trim(strings.TrimSpace(s), "/")
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// Prefix returns the uploads URL prefix including both slashes.
func (r *Rules) Prefix() string { return r.prefix }

// NormalizeAssetURL accepts a bare prefix path or an absolute http(s) URL and
// returns the path-only form without query or fragment. The path is decoded
// and re-escaped with URLFor, so every spelling of one file ("café.png",
// "caf%C3%A9.png") yields the same key. ok is false when raw does not
// reference the uploads namespace or would escape it.
func (r *Rules) NormalizeAssetURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if !strings.HasPrefix(s, "/") {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", false
		}
		s = u.EscapedPath()
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if !strings.HasPrefix(s, r.prefix) {
		return "", false
	}
	rel := s[len(r.prefix):]
	if !validRelative(rel) {
		return "", false
	}
	dec, err := url.PathUnescape(rel)
	if err != nil {
		return "", false
	}
	return r.URLFor(dec), true
}

// validRelative rejects empty, directory, traversal and backslash paths.
func validRelative(rel string) bool {
	if rel == "" || strings.HasSuffix(rel, "/") || strings.ContainsAny(rel, "\\\x00") {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
		if dec, err := url.PathUnescape(seg); err != nil || dec == "." || dec == ".." || strings.ContainsAny(dec, "/\\") {
			return false
		}
	}
	return path.Clean(rel) == rel
}

// ExtractAssetURLs finds every asset reference embedded in free text, bare
// or fully qualified, and returns the normalized forms in first-seen order.
func (r *Rules) ExtractAssetURLs(text string) []string {
	if !strings.Contains(text, r.prefix) {
		return nil
	}
	matches := r.urlRe.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		u, _, ok := r.TrimToken(m)
		if !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// TrimToken normalizes a pattern match after shedding trailing sentence
// punctuation that the pattern cannot tell apart from the path. It returns
// the normalized URL and the length of tok that it covers.
func (r *Rules) TrimToken(tok string) (string, int, bool) {
	tok = strings.TrimRight(tok, ".,;:!*")
	u, ok := r.NormalizeAssetURL(tok)
	if !ok {
		return "", 0, false
	}
	return u, len(tok), true
}

// Pattern returns the regular expression used to find embedded references.
func (r *Rules) Pattern() *regexp.Regexp { return r.urlRe }

// RelativePath returns the path below the uploads root for a normalized URL.
func (r *Rules) RelativePath(assetURL string) (string, bool) {
	u, ok := r.NormalizeAssetURL(assetURL)
	if !ok {
		return "", false
	}
	rel := strings.TrimPrefix(u, r.prefix)
	if dec, err := url.PathUnescape(rel); err == nil {
		rel = dec
	}
	return rel, true
}

// URLFor returns the asset URL for a relative path, escaping each segment.
func (r *Rules) URLFor(rel string) string {
	segs := strings.Split(strings.TrimLeft(rel, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return r.prefix + strings.Join(segs, "/")
}

// RootSegment returns the first path segment, or "" for files stored
// directly at the namespace root.
func RootSegment(rel string) string {
	i := strings.IndexByte(rel, '/')
	if i < 0 {
		return ""
	}
	return rel[:i]
}

// IsPrivate reports whether rel lives under a private root.
func (r *Rules) IsPrivate(rel string) bool {
	_, ok := r.private[RootSegment(rel)]
	return ok
}

// IsManagedSource reports whether rel is eligible for relocation: files at
// the namespace root and under managed roots are; private and unknown roots
// are not.
func (r *Rules) IsManagedSource(rel string) bool {
	root := RootSegment(rel)
	if root == "" {
		return true
	}
	if _, ok := r.private[root]; ok {
		return false
	}
	_, ok := r.managed[root]
	return ok
}

// Area names the top-level area an asset belongs to.
func Area(rel string) string {
	if root := RootSegment(rel); root != "" {
		return root
	}
	return "root"
}

// ProjectSlug turns a project key into a safe folder name.
func ProjectSlug(key string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(key)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// ProjectFolder is the canonical folder for assets owned by one project.
func ProjectFolder(key string) string {
	return path.Join(FolderProjects, ProjectSlug(key))
}

// EpisodeFolder is the canonical folder for episode-only assets of a project.
func EpisodeFolder(key string) string {
	return path.Join(ProjectFolder(key), FolderEpisodes)
}

// CleanFolder validates a caller-supplied folder relative to the uploads
// root. The empty string denotes the root itself.
func CleanFolder(folder string) (string, bool) {
	f := strings.Trim(strings.TrimSpace(folder), "/")
	if f == "" {
		return "", true
	}
	if !validRelative(f) {
		return "", false
	}
	return f, true
}
