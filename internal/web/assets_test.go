package web

import (
	"html/template"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticExcludesTemplates(t *testing.T) {
	_, err := fs.Stat(Static(), "index.html")
	require.NoError(t, err)
	_, err = fs.Stat(Static(), "style.css")
	require.NoError(t, err)
	_, err = fs.Stat(Static(), "admin.html")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestAdminTemplateParses(t *testing.T) {
	tmpl, err := AdminTemplate(template.FuncMap{"money": func(float64) string { return "" }})
	require.NoError(t, err)
	assert.Equal(t, "admin.html", tmpl.Name())
}
