package relocate

import (
	"strings"

	"github.com/starford/mediakeep/internal/content"
	"github.com/starford/mediakeep/internal/pathrules"
	"github.com/starford/mediakeep/internal/usage"
)

// Rewrite replaces every reference to a key of mapping with its value,
// in place, across all collections of snap. Absolute URLs keep their scheme,
// host, query and fragment; only the path changes. Each occurrence is
// rewritten at most once so chained mappings never cascade. It returns the
// number of replacements per collection.
func Rewrite(rules *pathrules.Rules, snap *content.Snapshot, mapping map[string]string) map[content.Collection]int {
	counts := make(map[content.Collection]int)
	if len(mapping) == 0 {
		return counts
	}
	usage.Visit(snap, func(s usage.Site) {
		if *s.Value == "" {
			return
		}
		var (
			out string
			n   int
		)
		if s.Text {
			out, n = rewriteText(rules, *s.Value, mapping)
		} else {
			out, n = rewriteField(rules, *s.Value, mapping)
		}
		if n > 0 {
			*s.Value = out
			counts[s.Collection] += n
		}
	})
	return counts
}

// rewriteField rewrites a field holding exactly one URL. The whole value is
// normalized the same way the usage scan does, so paths the free-text
// pattern cannot match (spaces, brackets) are still found.
func rewriteField(rules *pathrules.Rules, value string, mapping map[string]string) (string, int) {
	norm, ok := rules.NormalizeAssetURL(value)
	if !ok {
		return value, 0
	}
	newURL, hit := mapping[norm]
	if !hit {
		return value, 0
	}
	var start, end int
	if !strings.HasPrefix(strings.TrimSpace(value), "/") {
		// Absolute URL: the path begins at the first slash after "//host".
		i := strings.Index(value, "//")
		j := strings.IndexByte(value[i+2:], '/')
		start = i + 2 + j
	} else {
		start = strings.Index(value, "/")
	}
	if i := strings.IndexAny(value[start:], "?#"); i >= 0 {
		end = start + i
	} else {
		end = start + len(strings.TrimRight(value[start:], " \t\r\n"))
	}
	return value[:start] + newURL + value[end:], 1
}

func rewriteText(rules *pathrules.Rules, text string, mapping map[string]string) (string, int) {
	if !strings.Contains(text, rules.Prefix()) {
		return text, 0
	}
	var b strings.Builder
	last, n := 0, 0
	for _, loc := range rules.Pattern().FindAllStringIndex(text, -1) {
		tok := text[loc[0]:loc[1]]
		norm, covered, ok := rules.TrimToken(tok)
		if !ok {
			continue
		}
		newURL, hit := mapping[norm]
		if !hit {
			continue
		}
		tok = tok[:covered]
		start := strings.Index(tok, rules.Prefix())
		end := len(tok)
		if i := strings.IndexAny(tok, "?#"); i >= 0 {
			end = i
		}
		b.WriteString(text[last : loc[0]+start])
		b.WriteString(newURL)
		last = loc[0] + end
		n++
	}
	if n == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), n
}
