package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

func TestBuildPageSystemFallbackFlag(t *testing.T) {
	base := PageInputs{
		Variant:         backend.Relational,
		ApplicationType: "todo app",
		Schema:          "Type: table, Name: todos, SQL: CREATE TABLE todos (id INTEGER)",
	}

	p := BuildPageSystem(base)
	assert.False(t, p.FallbackUsed)
	assert.Contains(t, p.System, "You are a full featured todo app web application.")
	assert.Contains(t, p.System, "CREATE TABLE todos")
	assert.Contains(t, p.System, DefaultRootPrompt("todo app"))
	assert.NotContains(t, p.System, "<previous_template>")

	own := base
	own.Cached = &model.CachedTemplate{PagePath: "/list", Template: "<ul>{{ x }}</ul>"}
	p = BuildPageSystem(own)
	assert.False(t, p.FallbackUsed)
	assert.Contains(t, p.System, "A previous version of this page")
	assert.Contains(t, p.System, "<ul>{{ x }}</ul>")

	ref := base
	ref.Cached = &model.CachedTemplate{PagePath: "/list", Template: "<ul></ul>", Fallback: true}
	p = BuildPageSystem(ref)
	assert.True(t, p.FallbackUsed)
	assert.Contains(t, p.System, "the page the user came from (/list)")
}

func TestBuildPageSystemInstructionsAndVariant(t *testing.T) {
	p := BuildPageSystem(PageInputs{
		Variant:          backend.KeyValue,
		ApplicationType:  "reddit clone",
		RootPrompt:       "dark theme",
		PageInstructions: "show top posts first",
	})
	assert.Contains(t, p.System, "redis_results")
	assert.Contains(t, p.System, "ZADD key score member")
	assert.Contains(t, p.System, "dark theme")
	assert.Contains(t, p.System, "show top posts first")
	assert.Contains(t, p.System, "(no data stored yet)")
}

func TestBuildUserMessage(t *testing.T) {
	assert.Equal(t, "GET /list", BuildUserMessage("get", "/list", []byte("ignored")))
	assert.Equal(t, "POST /add\ntitle=milk", BuildUserMessage("POST", "/add", []byte("title=milk")))
	assert.Equal(t, "DELETE /x", BuildUserMessage("DELETE", "/x", nil))
	assert.Equal(t, "POST /add", BuildUserMessage("POST", "/add", []byte{0xff, 0xfe}))
}

func TestRenderInit(t *testing.T) {
	sql := RenderInit(backend.Relational, "blog")
	assert.Contains(t, sql, "web blog application")
	assert.Contains(t, sql, `"commands"`)

	kv := RenderInit(backend.KeyValue, "blog")
	assert.Contains(t, kv, `"args": ["data_model", "generated data model"]`)
}

func TestRenderDesign(t *testing.T) {
	assert.Contains(t, RenderDesignNarrative("wiki"), "web wiki application")
	m := RenderDesignMarkup("wiki", "A calm wiki with a sidebar.")
	assert.Contains(t, m, "A calm wiki with a sidebar.")
	assert.NotContains(t, m, "{narrative}")
}
