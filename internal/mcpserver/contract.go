package mcpserver

// FolderConventions describes where assets live and how they should be
// referenced, for LLM consumers that import or upload images.
const FolderConventions = `# Mediakeep Folder Conventions

Every asset lives under the uploads root and is referenced by an absolute URL
that starts with ` + "`" + `/uploads/` + "`" + `.

## Canonical folders

| Usage | Folder |
|---|---|
| Used only by one project (cover, banner, hero, relations, description) | ` + "`" + `projects/<slug>/` + "`" + ` |
| Used only by episodes of one project | ` + "`" + `projects/<slug>/episodes/` + "`" + ` |
| Used by more than one project | ` + "`" + `shared/` + "`" + ` |
| Used only by posts | ` + "`" + `posts/` + "`" + ` |

Site configuration and static pages keep an asset alive but never decide its folder.
The relocation tool moves assets into these folders and rewrites every reference.

## Private roots

Files under ` + "`" + `users/` + "`" + `, ` + "`" + `downloads/` + "`" + ` and ` + "`" + `private/` + "`" + ` are never moved.

## Importing

- Use ` + "`" + `import_asset` + "`" + ` for http(s) URLs. Private, loopback and metadata
  addresses are refused, and redirects are re-checked on every hop.
- Pass ` + "`" + `base` + "`" + ` for a stable file name (for example ` + "`" + `relation-42` + "`" + `) and
  ` + "`" + `reuse: true` + "`" + ` to skip the download when a valid copy already exists.
- Use ` + "`" + `upload_asset` + "`" + ` for base64 data URIs.
- Supported formats: png, jpeg, gif, webp, avif, svg. SVG markup is sanitized.

## Referencing

` + "```" + `markdown
![Cover](/uploads/projects/alpha/cover.png)
` + "```" + `

Never use relative paths like ` + "`" + `./uploads/...` + "`" + `.
`
