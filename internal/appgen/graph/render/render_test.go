package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

type fakeDB struct{}

func (d *fakeDB) Greet(name string) (string, error) {
	return "hello " + name, nil
}

func TestPageRendersResults(t *testing.T) {
	r := NewRenderer()
	out, err := r.Page(
		`<ul>{% for t in results['todos'] %}<li>{{ t.title }}</li>{% endfor %}</ul><p>{{ path }}</p>`,
		map[string]any{
			"results": map[string]any{"todos": []map[string]any{{"title": "milk"}, {"title": "eggs"}}},
			"path":    "/list",
		})
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>milk</li><li>eggs</li></ul><p>/list</p>", out)
}

func TestPageEscapesValues(t *testing.T) {
	r := NewRenderer()
	out, err := r.Page(`<p>{{ v }}</p>`, map[string]any{"v": "<script>x</script>"})
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;script&gt;x&lt;/script&gt;</p>", out)
}

func TestPageCallsDBMethods(t *testing.T) {
	r := NewRenderer()
	out, err := r.Page(`{{ db.Greet("ada") }}`, map[string]any{"db": &fakeDB{}})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", out)
}

func TestPageSyntaxError(t *testing.T) {
	r := NewRenderer()
	_, err := r.Page(`{% for x in %}`, map[string]any{})
	assert.Error(t, err)
}

func TestPageCachesCompiledTemplates(t *testing.T) {
	r := NewRenderer()
	for i := 0; i < 3; i++ {
		_, err := r.Page(`<p>{{ n }}</p>`, map[string]any{"n": i})
		require.NoError(t, err)
	}
	assert.Len(t, r.cache, 1)
}

func TestShell(t *testing.T) {
	r := NewRenderer()
	settings := &model.TenantSettings{TenantID: tenant, ApplicationType: "todo <app>"}

	out, err := r.Shell(ShellData{
		Title:      settings.Title(),
		TenantID:   tenant,
		PagePath:   "/list",
		Body:       "<main>body</main>",
		CSS:        "body { color: red }",
		Javascript: "console.log('x')",
		Settings:   settings,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "<title>AI Powered todo &lt;app&gt;</title>")
	assert.Contains(t, out, "<main>body</main>")
	assert.Contains(t, out, "<style>body { color: red }</style>")
	assert.Contains(t, out, "<script>console.log('x')</script>")
	assert.Contains(t, out, `action="/settings"`)
	assert.Contains(t, out, `value="/`+tenant+`/list"`)
	assert.Contains(t, out, "htmx.org")
	assert.NotContains(t, out, "http-equiv=\"refresh\"")

	out, err = r.Shell(ShellData{Title: "x", TenantID: tenant, PagePath: "/", Refresh: 5})
	require.NoError(t, err)
	assert.NotContains(t, out, `action="/settings"`)
	assert.Contains(t, out, `http-equiv="refresh" content="5"`)
}

func TestErrorPanelEscapesRaw(t *testing.T) {
	r := NewRenderer()
	out := r.ErrorPanel("Invalid JSON Response", errors.New("unexpected end"), `{"template": "<b>`)
	assert.Contains(t, out, "<strong>Invalid JSON Response:</strong> unexpected end")
	assert.Contains(t, out, "<pre>{&quot;template&quot;: &quot;&lt;b&gt;</pre>")
}

func TestPlaceholder(t *testing.T) {
	r := NewRenderer()
	out := r.Placeholder(model.TenantSettings{ApplicationType: "wiki"})
	assert.Contains(t, out, "Your wiki is being generated")

	out = r.Placeholder(model.TenantSettings{ApplicationType: "wiki", Init: model.InitClaim{
		Status: model.InitFailed, Attempts: 3, LastError: "bad json",
	}})
	assert.Contains(t, out, "could not build your wiki")
	assert.Contains(t, out, "bad json")
}

func TestLanding(t *testing.T) {
	r := NewRenderer()
	out, err := r.Landing("TODO")
	require.NoError(t, err)
	assert.Contains(t, out, `name="application_type"`)
	assert.Contains(t, out, `value="TODO"`)
}
