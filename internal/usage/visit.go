// Package usage walks content records and computes which records reference
// which assets.
package usage

import (
	"fmt"

	"github.com/starford/mediakeep/internal/content"
)

// Kind is the closed set of places an asset reference can live.
type Kind int

const (
	PostCover Kind = iota
	PostGallery
	PostBody
	ProjectMain
	ProjectEpisode
	SiteField
	PageBody
)

var kindNames = [...]string{
	PostCover:      "post-cover",
	PostGallery:    "post-gallery",
	PostBody:       "post-body",
	ProjectMain:    "project-main",
	ProjectEpisode: "project-episode",
	SiteField:      "site-field",
	PageBody:       "page-body",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Site is one field that may hold an asset reference. Value points into the
// snapshot so a visitor can rewrite it in place. Text fields hold free text
// with embedded references; the others hold a single URL.
type Site struct {
	Kind       Kind
	Collection content.Collection
	Owner      string
	Field      string
	Value      *string
	Text       bool
}

// Visit calls fn for every reference site in snap, in document order.
func Visit(snap *content.Snapshot, fn func(Site)) {
	for i := range snap.Posts {
		p := &snap.Posts[i]
		owner := p.ID
		if owner == "" {
			owner = p.Slug
		}
		if owner == "" {
			owner = fmt.Sprintf("post#%d", i)
		}
		fn(Site{Kind: PostCover, Collection: content.Posts, Owner: owner, Field: "cover", Value: &p.Cover})
		for j := range p.Gallery {
			fn(Site{Kind: PostGallery, Collection: content.Posts, Owner: owner, Field: fmt.Sprintf("gallery[%d]", j), Value: &p.Gallery[j]})
		}
		fn(Site{Kind: PostBody, Collection: content.Posts, Owner: owner, Field: "body", Value: &p.Body, Text: true})
	}

	for i := range snap.Projects {
		p := &snap.Projects[i]
		owner := p.Key()
		if owner == "" {
			owner = fmt.Sprintf("project#%d", i)
		}
		main := func(field string, v *string, text bool) {
			fn(Site{Kind: ProjectMain, Collection: content.Projects, Owner: owner, Field: field, Value: v, Text: text})
		}
		main("cover", &p.Cover, false)
		main("banner", &p.Banner, false)
		main("hero", &p.Hero, false)
		main("description", &p.Description, true)
		for j := range p.Relations {
			main(fmt.Sprintf("relations[%d].thumbnail", j), &p.Relations[j].Thumbnail, false)
		}
		for j := range p.Episodes {
			ep := &p.Episodes[j]
			fn(Site{Kind: ProjectEpisode, Collection: content.Projects, Owner: owner, Field: fmt.Sprintf("episodes[%d].cover", j), Value: &ep.Cover})
			fn(Site{Kind: ProjectEpisode, Collection: content.Projects, Owner: owner, Field: fmt.Sprintf("episodes[%d].body", j), Value: &ep.Body, Text: true})
		}
	}

	s := &snap.Site
	site := func(field string, v *string, text bool) {
		fn(Site{Kind: SiteField, Collection: content.Site, Owner: "site", Field: field, Value: v, Text: text})
	}
	site("logo", &s.Logo, false)
	site("favicon", &s.Favicon, false)
	site("social_image", &s.SocialImage, false)
	for j := range s.HeroImages {
		site(fmt.Sprintf("hero_images[%d]", j), &s.HeroImages[j], false)
	}
	site("footer", &s.Footer, true)

	for i := range snap.Pages {
		p := &snap.Pages[i]
		fn(Site{Kind: PageBody, Collection: content.Pages, Owner: p.Path, Field: "content", Value: &p.Content, Text: true})
	}
}
