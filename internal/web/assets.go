package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed index.html style.css
var static embed.FS

//go:embed admin.html
var templates embed.FS

// Static holds the files served as-is. Templates are not part of it.
func Static() fs.FS { return static }

// AdminTemplate parses the staff dashboard.
func AdminTemplate(funcs template.FuncMap) (*template.Template, error) {
	return template.New("admin.html").Funcs(funcs).ParseFS(templates, "admin.html")
}
