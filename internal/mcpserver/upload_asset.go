package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mediakeep/internal/imagemeta"
	"github.com/starford/mediakeep/internal/models"
)

var safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type uploadResult struct {
	Entry         *models.InventoryEntry `json:"entry"`
	MarkdownImage string                 `json:"markdownImage"`
}

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, kind, err := decodeDataURI(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filename := sanitizeFilename(req.GetString("filename", ""), kind)
	e, err := s.svc.Upload(ctx, req.GetString("folder", ""), filename, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.Marshal(uploadResult{
		Entry:         e,
		MarkdownImage: fmt.Sprintf("![%s](%s)", e.FileName, e.URL),
	})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:[<mediatype>];base64,<data> URI. The declared
// type must be a supported image type; the stored type is decided by sniffing.
func decodeDataURI(uri string) ([]byte, imagemeta.Kind, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing data: prefix")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	kind := imagemeta.KindFromMIME(mime)
	if kind == imagemeta.KindUnknown {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, kind, nil
}

// sanitizeFilename strips path separators and unsafe characters, falling
// back to a random name.
func sanitizeFilename(name string, kind imagemeta.Kind) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	name = strings.TrimLeft(name, "._-")
	if name == "" {
		name = uuid.NewString() + kind.Ext()
	}
	return name
}
