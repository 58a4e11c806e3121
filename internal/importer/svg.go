package importer

import (
	"errors"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

var (
	forbiddenSVGElements = map[string]struct{}{
		"script": {}, "foreignobject": {}, "iframe": {}, "object": {}, "embed": {},
	}
	safeDataImage = regexp.MustCompile(`^data:image/(png|jpeg|jpg|gif|webp);base64,[a-z0-9+/=\s]*$`)
	// unsafeChars are stripped before scheme checks so "java\tscript:" is caught.
	unsafeChars = regexp.MustCompile(`[\x00-\x20]+`)

	errNotSVG = errors.New("document root is not <svg>")
)

// SanitizeSVG parses an SVG document and removes active content. It
// returns an error when data is not well-formed SVG.
func SanitizeSVG(data []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil || !strings.EqualFold(root.Tag, "svg") {
		return nil, errNotSVG
	}
	for _, tok := range append([]etree.Token(nil), doc.Child...) {
		switch tok.(type) {
		case *etree.Directive, *etree.ProcInst:
			doc.RemoveChild(tok)
		}
	}
	sanitizeElement(root)
	return doc.WriteToBytes()
}

func sanitizeElement(e *etree.Element) {
	for _, tok := range append([]etree.Token(nil), e.Child...) {
		switch t := tok.(type) {
		case *etree.Element:
			if _, bad := forbiddenSVGElements[strings.ToLower(t.Tag)]; bad {
				e.RemoveChild(t)
				continue
			}
			sanitizeElement(t)
		case *etree.Directive, *etree.ProcInst:
			e.RemoveChild(t)
		}
	}

	kept := e.Attr[:0]
	for _, a := range e.Attr {
		if keepAttr(a) {
			kept = append(kept, a)
		}
	}
	e.Attr = kept
}

func keepAttr(a etree.Attr) bool {
	key := strings.ToLower(a.Key)
	if strings.HasPrefix(key, "on") {
		return false
	}
	val := strings.ToLower(unsafeChars.ReplaceAllString(a.Value, ""))
	if strings.Contains(val, "javascript:") || strings.Contains(val, "vbscript:") {
		return false
	}
	if key == "href" || key == "src" {
		return safeReference(strings.TrimSpace(a.Value))
	}
	if strings.Contains(val, "data:") {
		return safeDataImage.MatchString(strings.ToLower(strings.TrimSpace(a.Value)))
	}
	return true
}

// safeReference allows same-document fragments, root-relative paths and
// raster data URIs.
func safeReference(v string) bool {
	switch {
	case strings.HasPrefix(v, "#"):
		return true
	case strings.HasPrefix(v, "/") && !strings.HasPrefix(v, "//"):
		return true
	case safeDataImage.MatchString(strings.ToLower(v)):
		return true
	}
	return false
}
