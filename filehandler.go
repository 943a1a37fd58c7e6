package mi

import (
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirion/mi/fs"
	"github.com/sirion/mi/logger"
	"github.com/sirion/mi/mime"
	"github.com/sirion/mi/status"
)

// FileHandler serves the files below Root for every URI that starts with Prefix. The
// prefix is removed before the rest of the URI is mapped onto Root.
type FileHandler struct {
	Prefix string
	Root   string

	// Index lists the file names tried, in order, when a directory is requested with a
	// trailing slash.
	Index []string
	// ListDirs enables generated directory listings when no index file exists.
	ListDirs bool
	// MimeTypes overrides or extends the built-in extension table. Keys include the
	// leading dot.
	MimeTypes map[string]string

	Log *logger.Logger
}

func NewFileHandler(prefix, root string, log *logger.Logger) *FileHandler {
	return &FileHandler{
		Prefix: prefix,
		Root:   root,
		Index:  []string{"index.html"},
		Log:    log,
	}
}

// AddMimeType registers the media type served for files with extension ext.
func (h *FileHandler) AddMimeType(ext, mimeType string) {
	if h.MimeTypes == nil {
		h.MimeTypes = make(map[string]string)
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	h.MimeTypes[strings.ToLower(ext)] = mimeType
}

func (h *FileHandler) Matches(req *Request) bool {
	return strings.HasPrefix(req.URI, h.Prefix)
}

func (h *FileHandler) Handle(req *Request, res *Response) {
	uriPath := strings.TrimLeft(strings.TrimPrefix(req.Path(), h.Prefix), "/")

	path, ok := h.resolve(uriPath)
	if !ok {
		h.Log.Warnf("Rejected path outside of root: %s", req.URI)
		_ = res.Error(status.NotFound, "Not found: "+uriPath)
		return
	}

	if err := h.serve(res, path, uriPath); err != nil {
		h.Log.Debugf("Serving %s failed: %v", req.URI, err)
	}
}

// resolve maps the URI path onto Root and refuses anything that escapes it.
func (h *FileHandler) resolve(uriPath string) (string, bool) {
	root := filepath.Clean(h.Root)
	path := filepath.Join(root, filepath.FromSlash(uriPath))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", false
	}

	return path, true
}

func (h *FileHandler) serve(res *Response, path, uriPath string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return res.Error(status.NotFound, "Not found: "+uriPath)
		}

		h.Log.Errorf("Internal Server Error - cannot stat %s: %v", path, err)
		return res.Error(status.InternalServerError, "Internal Server Error")
	}

	switch {
	case info.IsDir():
		if len(uriPath) > 0 && !strings.HasSuffix(uriPath, "/") {
			return res.Error(status.NotFound, "Not found: "+uriPath)
		}

		for _, name := range h.Index {
			index := filepath.Join(path, name)
			if fi, err := os.Stat(index); err == nil && fi.Mode().IsRegular() {
				return h.serveFile(res, index)
			}
		}

		if h.ListDirs {
			return h.listDir(res, path)
		}

		return res.Error(status.NotFound, "Not found: "+uriPath)
	case info.Mode().IsRegular():
		return h.serveFile(res, path)
	default:
		h.Log.Errorf("Internal Server Error - path is neither file nor directory: %s", path)
		return res.Error(status.InternalServerError, "Internal Server Error")
	}
}

func (h *FileHandler) serveFile(res *Response, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		h.Log.Errorf("Internal Server Error: %v", err)
		return res.Error(status.InternalServerError, "Internal Server Error")
	}

	res.Status = status.OK
	res.Headers.Set("Content-Type", mime.ByExtension(path, h.MimeTypes))
	if _, err = res.Write(data); err != nil {
		return err
	}

	return res.End()
}

func (h *FileHandler) listDir(res *Response, dir string) error {
	entries, err := fs.ListDir(dir)
	if err != nil {
		h.Log.Errorf("Internal Server Error - cannot list directory %s: %v", dir, err)
		return res.Error(status.InternalServerError, "Internal Server Error")
	}

	res.Headers.Set("Content-Type", mime.HTML)
	_, _ = res.WriteString("<!DOCTYPE html><body><ul>")
	for _, entry := range entries {
		name := filepath.Base(entry)
		h.Log.Debugf(" - %s", name)

		_, _ = res.WriteString(`<li><a href="`)
		_, _ = res.WriteString(html.EscapeString(name))
		_, _ = res.WriteString(`">`)
		_, _ = res.WriteString(html.EscapeString(name))
		_, _ = res.WriteString("</a></li>")
	}
	_, _ = res.WriteString("</ul></body>")

	return res.End()
}
