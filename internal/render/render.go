package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/narstation/narstation/pkg/listing"
)

const (
	IndexFileName = "index.html"
	FeedFileName  = "feed.xml"
)

//go:embed templates/*.tmpl
var templates embed.FS

type Site struct {
	Title string
	URL   string
}

type Renderer struct {
	site Site
	tmpl *template.Template
}

// installURI passes the install link through as a trusted URL: the custom scheme would
// otherwise be rejected by the template's URL filter. The only variable part is the
// query-escaped download URL.
func installURI(e *listing.Entry) template.URL {
	return template.URL(listing.InstallURI(e.DownloadURL))
}

func New(site Site) *Renderer {
	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"installURI": installURI,
	}).ParseFS(templates, "templates/*.tmpl"))
	return &Renderer{site: site, tmpl: tmpl}
}

func (r *Renderer) HTML(w io.Writer, page *listing.Page) error {
	return r.tmpl.ExecuteTemplate(w, "index.html.tmpl", struct {
		Site Site
		Page *listing.Page
	}{Site: r.site, Page: page})
}

// Files renders all artifacts of a page keyed by file name.
func (r *Renderer) Files(page *listing.Page) (map[string][]byte, error) {
	var html, feed bytes.Buffer
	if err := r.HTML(&html, page); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}
	if err := r.Feed(&feed, page); err != nil {
		return nil, fmt.Errorf("failed to render feed: %w", err)
	}
	return map[string][]byte{
		IndexFileName: html.Bytes(),
		FeedFileName:  feed.Bytes(),
	}, nil
}

// WriteFiles renders the page and writes every artifact into dir.
func (r *Renderer) WriteFiles(dir string, page *listing.Page) (map[string][]byte, error) {
	files, err := r.Files(page)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return files, nil
}
