// Package mime maps file extensions to media types.
package mime

import (
	"path/filepath"
	"strings"
)

type MIME = string

const (
	OctetStream MIME = "application/octet-stream"
	Plain       MIME = "text/plain"
	HTML        MIME = "text/html"
	CSS         MIME = "text/css"
	CSV         MIME = "text/csv"
	Calendar    MIME = "text/calendar"
	JSON        MIME = "application/json"
	JavaScript  MIME = "application/javascript"
	XML         MIME = "application/xml"
	XHTML       MIME = "application/xhtml+xml"
	PDF         MIME = "application/pdf"
	ZIP         MIME = "application/zip"
	GZIP        MIME = "application/gzip"
	JPEG        MIME = "image/jpeg"
	PNG         MIME = "image/png"
	GIF         MIME = "image/gif"
	SVG         MIME = "image/svg+xml"
	ICO         MIME = "image/vnd.microsoft.icon"
	WEBP        MIME = "image/webp"
	TIFF        MIME = "image/tiff"
)

// Extension holds the built-in table, keyed by lower-case extension including the dot.
var Extension = map[string]MIME{
	".jpg":   JPEG,
	".jpeg":  JPEG,
	".png":   PNG,
	".gif":   GIF,
	".html":  HTML,
	".htm":   HTML,
	".txt":   Plain,
	".css":   CSS,
	".json":  JSON,
	".js":    JavaScript,
	".mjs":   "text/javascript",
	".bz":    "application/x-bzip",
	".bz2":   "application/x-bzip2",
	".csv":   CSV,
	".eot":   "application/vnd.ms-fontobject",
	".epub":  "application/epub+zip",
	".gz":    GZIP,
	".ico":   ICO,
	".ics":   Calendar,
	".jar":   "application/java-archive",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".mpeg":  "video/mpeg",
	".odp":   "application/vnd.oasis.opendocument.presentation",
	".ods":   "application/vnd.oasis.opendocument.spreadsheet",
	".odt":   "application/vnd.oasis.opendocument.text",
	".oga":   "audio/ogg",
	".ogv":   "video/ogg",
	".ogx":   "application/ogg",
	".opus":  "audio/opus",
	".otf":   "font/otf",
	".pdf":   PDF,
	".rar":   "application/vnd.rar",
	".rtf":   "application/rtf",
	".svg":   SVG,
	".tif":   TIFF,
	".tiff":  TIFF,
	".ttf":   "font/ttf",
	".wav":   "audio/wav",
	".weba":  "audio/webm",
	".webm":  "video/webm",
	".webp":  WEBP,
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".xhtml": XHTML,
	".xml":   XML,
	".zip":   ZIP,
	".7z":    "application/x-7z-compressed",
}

// ByExtension guesses the media type of path from its extension. overrides is consulted
// before the built-in table and may be nil. Unknown extensions yield OctetStream.
func ByExtension(path string, overrides map[string]MIME) MIME {
	ext := strings.ToLower(filepath.Ext(path))
	if len(ext) == 0 {
		return OctetStream
	}

	if m, found := overrides[ext]; found {
		return m
	}

	if m, found := Extension[ext]; found {
		return m
	}

	return OctetStream
}
