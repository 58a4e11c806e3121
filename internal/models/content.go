package models

// Post is a blog article or update.
type Post struct {
	ID      string   `yaml:"id" json:"id"`
	Slug    string   `yaml:"slug" json:"slug"`
	Title   string   `yaml:"title" json:"title"`
	Cover   string   `yaml:"cover,omitempty" json:"cover,omitempty"`
	Gallery []string `yaml:"gallery,omitempty" json:"gallery,omitempty"`
	Body    string   `yaml:"body,omitempty" json:"body,omitempty"`
}

// Relation links a project to an external work, usually with an imported thumbnail.
type Relation struct {
	ExternalID string `yaml:"external_id" json:"externalId"`
	Title      string `yaml:"title,omitempty" json:"title,omitempty"`
	URL        string `yaml:"url,omitempty" json:"url,omitempty"`
	Thumbnail  string `yaml:"thumbnail,omitempty" json:"thumbnail,omitempty"`
}

// Episode is a per-episode entry of a project.
type Episode struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	Cover string `yaml:"cover,omitempty" json:"cover,omitempty"`
	Body  string `yaml:"body,omitempty" json:"body,omitempty"`
}

// Project is a long-running piece of work with its own asset folder.
type Project struct {
	ID          string     `yaml:"id" json:"id"`
	Slug        string     `yaml:"slug" json:"slug"`
	Title       string     `yaml:"title" json:"title"`
	Cover       string     `yaml:"cover,omitempty" json:"cover,omitempty"`
	Banner      string     `yaml:"banner,omitempty" json:"banner,omitempty"`
	Hero        string     `yaml:"hero,omitempty" json:"hero,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Relations   []Relation `yaml:"relations,omitempty" json:"relations,omitempty"`
	Episodes    []Episode  `yaml:"episodes,omitempty" json:"episodes,omitempty"`
}

// Key returns the stable owner key used for folder naming.
func (p *Project) Key() string {
	if p.Slug != "" {
		return p.Slug
	}
	return p.ID
}

// SiteConfig holds site-wide settings that may reference assets.
type SiteConfig struct {
	Title       string   `yaml:"title,omitempty" json:"title,omitempty"`
	Logo        string   `yaml:"logo,omitempty" json:"logo,omitempty"`
	Favicon     string   `yaml:"favicon,omitempty" json:"favicon,omitempty"`
	SocialImage string   `yaml:"social_image,omitempty" json:"socialImage,omitempty"`
	HeroImages  []string `yaml:"hero_images,omitempty" json:"heroImages,omitempty"`
	Footer      string   `yaml:"footer,omitempty" json:"footer,omitempty"`
}

// Page is a static Markdown page stored as a single file.
type Page struct {
	Path    string `json:"path"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}
