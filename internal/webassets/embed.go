// Package webassets holds the generated files of every starter bundle: the
// editor settings written in full mode and the index.html / index.js pair
// written in both modes.
package webassets

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"text/template"
)

//go:embed templates
var embedded embed.FS

// File is one generated bundle entry.
type File struct {
	Path string
	Data []byte
}

// Script is one library reference in index.html. Disabled scripts are
// written commented out so users can switch them on.
type Script struct {
	Src     string
	Enabled bool
}

// IndexPage is the data for index.html.
type IndexPage struct {
	Title   string
	Scripts []Script
}

// DefaultTitle is used when IndexPage.Title is empty
const DefaultTitle = "p5.js Starter Project"

var indexTmpl = template.Must(template.ParseFS(embedded, "templates/index.html.tmpl"))

// editor files keyed by bundle path, source names drop leading dots because
// go:embed skips dotfiles
var editorFiles = []struct{ dst, src string }{
	{".editorconfig", "templates/editorconfig"},
	{".vscode/extensions.json", "templates/vscode/extensions.json"},
	{".vscode/settings.json", "templates/vscode/settings.json"},
}

// TemplatesFS exposes the raw embedded templates.
func TemplatesFS() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(fmt.Errorf("webassets: templates subfs: %w", err))
	}
	return sub
}

// EditorFiles returns the full-mode editor and workspace settings.
func EditorFiles() []File {
	out := make([]File, 0, len(editorFiles))
	for _, f := range editorFiles {
		out = append(out, File{Path: f.dst, Data: mustRead(f.src)})
	}
	return out
}

// IndexJS returns the sketch entry point.
func IndexJS() []byte {
	return mustRead("templates/index.js")
}

// RenderIndex renders index.html for p.
func RenderIndex(p IndexPage) ([]byte, error) {
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render index.html: %w", err)
	}
	return buf.Bytes(), nil
}

func mustRead(name string) []byte {
	b, err := embedded.ReadFile(name)
	if err != nil {
		panic(fmt.Errorf("webassets: read %s: %w", name, err))
	}
	return b
}
