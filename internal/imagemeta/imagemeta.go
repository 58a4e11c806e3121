// Package imagemeta identifies image payloads by their magic bytes and reads
// pixel dimensions from container headers without decoding pixel data.
package imagemeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"path"
	"strings"

	_ "image/gif"  // register GIF header decoder
	_ "image/jpeg" // register JPEG header decoder
	_ "image/png"  // register PNG header decoder

	_ "golang.org/x/image/webp" // register WebP header decoder
)

// Kind is a recognized image container.
type Kind string

const (
	KindUnknown Kind = ""
	KindPNG     Kind = "png"
	KindJPEG    Kind = "jpeg"
	KindGIF     Kind = "gif"
	KindWebP    Kind = "webp"
	KindAVIF    Kind = "avif"
	KindSVG     Kind = "svg"
)

var (
	// ErrCorrupt is returned when a header cannot be parsed.
	ErrCorrupt = errors.New("imagemeta: corrupt image header")

	kindMIME = map[Kind]string{
		KindPNG:  "image/png",
		KindJPEG: "image/jpeg",
		KindGIF:  "image/gif",
		KindWebP: "image/webp",
		KindAVIF: "image/avif",
		KindSVG:  "image/svg+xml",
	}
	kindExt = map[Kind]string{
		KindPNG:  ".png",
		KindJPEG: ".jpg",
		KindGIF:  ".gif",
		KindWebP: ".webp",
		KindAVIF: ".avif",
		KindSVG:  ".svg",
	}
	extKind = map[string]Kind{
		".png":  KindPNG,
		".jpg":  KindJPEG,
		".jpeg": KindJPEG,
		".gif":  KindGIF,
		".webp": KindWebP,
		".avif": KindAVIF,
		".svg":  KindSVG,
	}
	// extraMIME covers non-image files that may still sit under uploads.
	extraMIME = map[string]string{
		".pdf":  "application/pdf",
		".mp4":  "video/mp4",
		".webm": "video/webm",
		".mp3":  "audio/mpeg",
		".zip":  "application/zip",
		".txt":  "text/plain; charset=utf-8",
	}
)

// MIME returns the media type of k.
func (k Kind) MIME() string { return kindMIME[k] }

// Ext returns the canonical file extension of k, including the dot.
func (k Kind) Ext() string { return kindExt[k] }

// Raster reports whether k is a pixel format.
func (k Kind) Raster() bool { return k != KindUnknown && k != KindSVG }

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindPNG, KindJPEG, KindGIF, KindWebP, KindAVIF, KindSVG}
}

// Extensions lists every extension a supported kind may be stored under.
func Extensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".svg"}
}

// KindFromExt maps a file extension (with or without a leading dot) to a kind.
func KindFromExt(ext string) Kind {
	ext = strings.ToLower(ext)
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return extKind[ext]
}

// KindFromMIME maps a Content-Type header value to a kind.
func KindFromMIME(ct string) Kind {
	ct = strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	if ct == "image/jpg" || ct == "image/pjpeg" {
		return KindJPEG
	}
	for k, m := range kindMIME {
		if m == ct {
			return k
		}
	}
	return KindUnknown
}

// MIMEByName infers a media type from a file name's extension.
func MIMEByName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if k, ok := extKind[ext]; ok {
		return k.MIME()
	}
	if m, ok := extraMIME[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// Sniff detects the container from magic bytes, checking raster signatures
// first and then a lightweight SVG heuristic.
func Sniff(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return KindPNG
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return KindJPEG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return KindGIF
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return KindWebP
	case isAVIF(data):
		return KindAVIF
	case looksLikeSVG(data):
		return KindSVG
	}
	return KindUnknown
}

func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	size := int(binary.BigEndian.Uint32(data[0:4]))
	if size < 16 || size > len(data) {
		size = min(len(data), 64)
	}
	brands := data[8:size]
	for i := 0; i+4 <= len(brands); i += 4 {
		switch string(brands[i : i+4]) {
		case "avif", "avis":
			return true
		}
	}
	return false
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	head = bytes.TrimPrefix(head, []byte("\xEF\xBB\xBF"))
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) == 0 || head[0] != '<' {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

// Dimensions reads width and height from the container header of a raster
// kind. Only header bytes are consulted.
func Dimensions(kind Kind, data []byte) (int, int, error) {
	switch kind {
	case KindPNG, KindJPEG, KindGIF, KindWebP:
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return 0, 0, ErrCorrupt
		}
		return cfg.Width, cfg.Height, nil
	case KindAVIF:
		return avifDimensions(data)
	}
	return 0, 0, fmt.Errorf("imagemeta: no dimensions for kind %q", kind)
}

// avifDimensions walks ISO-BMFF boxes down to the first ispe property.
func avifDimensions(data []byte) (int, int, error) {
	chain := []string{"meta", "iprp", "ipco", "ispe"}
	buf := data
	for depth, want := range chain {
		body, ok := findBox(buf, want)
		if !ok {
			return 0, 0, fmt.Errorf("%w: missing %s box", ErrCorrupt, want)
		}
		if want == "meta" {
			// meta is a full box: skip version and flags.
			if len(body) < 4 {
				return 0, 0, ErrCorrupt
			}
			body = body[4:]
		}
		if depth == len(chain)-1 {
			if len(body) < 12 {
				return 0, 0, ErrCorrupt
			}
			w := int(binary.BigEndian.Uint32(body[4:8]))
			h := int(binary.BigEndian.Uint32(body[8:12]))
			if w <= 0 || h <= 0 {
				return 0, 0, ErrCorrupt
			}
			return w, h, nil
		}
		buf = body
	}
	return 0, 0, ErrCorrupt
}

func findBox(buf []byte, typ string) ([]byte, bool) {
	for len(buf) >= 8 {
		size := uint64(binary.BigEndian.Uint32(buf[0:4]))
		name := string(buf[4:8])
		hdr := uint64(8)
		switch size {
		case 1:
			if len(buf) < 16 {
				return nil, false
			}
			size = binary.BigEndian.Uint64(buf[8:16])
			hdr = 16
		case 0:
			size = uint64(len(buf))
		}
		if size < hdr || size > uint64(len(buf)) {
			return nil, false
		}
		if name == typ {
			return buf[hdr:size], true
		}
		buf = buf[size:]
	}
	return nil, false
}
