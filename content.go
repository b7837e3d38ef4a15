package aggregio

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates
var Content embed.FS

// Template renders the embedded pages for echo.
type Template struct {
	templates *template.Template
}

func NewTemplate() (*Template, error) {
	t, err := template.ParseFS(Content, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Template{templates: t}, nil
}

func (t *Template) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}
