package graph

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
	"github.com/genapp-poc-v1/server/internal/appgen/repo"
	errx "github.com/genapp-poc-v1/server/internal/core/error"
	"github.com/genapp-poc-v1/server/pkg/sqlite"
)

const tenant = "3f1c2a8e-0d5b-4f61-9b2e-7a4c1d9e8f00"

type scriptedGateway struct {
	mu      sync.Mutex
	replies []string
	users   []string
	systems []string
}

func (g *scriptedGateway) GetResponse(_ context.Context, userMessage, systemPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users = append(g.users, userMessage)
	g.systems = append(g.systems, systemPrompt)
	if len(g.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	out := g.replies[0]
	g.replies = g.replies[1:]
	return out, nil
}

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.users)
}

type countingInitializer struct {
	mu       sync.Mutex
	triggers []string
}

func (c *countingInitializer) Trigger(_ context.Context, tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggers = append(c.triggers, tenantID)
}

type fixture struct {
	engine   *Engine
	gateway  *scriptedGateway
	init     *countingInitializer
	settings *repo.SettingsRepository
	backends backend.SQLOpener
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := sqlite.Config{DataDir: t.TempDir(), BusyTimeout: 1000}

	db, err := cfg.Open(ctx, "settings")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	settings, err := repo.NewSettingsRepository(ctx, db)
	require.NoError(t, err)
	_, err = settings.CreateTenant(ctx, tenant, "todo app")
	require.NoError(t, err)

	f := &fixture{
		gateway:  &scriptedGateway{replies: replies},
		init:     &countingInitializer{},
		settings: settings,
		backends: backend.SQLOpener{Config: cfg},
	}
	f.engine, err = NewEngine(ctx, Config{
		Gateway:     f.gateway,
		Settings:    settings,
		Backends:    f.backends,
		Initializer: f.init,
	})
	require.NoError(t, err)
	return f
}

// seed creates the todos table and records the tenant as initialized.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	f.seedTables(t)
	ctx := context.Background()
	ok, err := f.settings.ClaimInitialization(ctx, tenant, "seed", time.Now(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.settings.MarkInitialized(ctx, tenant, "seed"))
}

func (f *fixture) seedTables(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	c, err := f.backends.Open(ctx, tenant)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.ExecuteCommands(ctx, []backend.Command{
		backend.SQLCommand{Name: "create", Query: "CREATE TABLE todos (id INTEGER PRIMARY KEY, title TEXT)"},
		backend.SQLCommand{Name: "insert", Query: "INSERT INTO todos (title) VALUES ('milk')"},
	})
	require.NoError(t, err)
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	c, err := f.backends.Open(ctx, tenant)
	require.NoError(t, err)
	defer c.Close()
	rows, err := c.(*backend.SQLClient).Query(ctx, "SELECT COUNT(*) AS n FROM todos")
	require.NoError(t, err)
	return rows[0]["n"].(int64)
}

func TestSynthesizeRendersPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		`{"commands":[{"name":"todos","query":"SELECT id, title FROM todos ORDER BY id"}],
		  "template":"<ul>{% for t in results.todos %}<li>{{ t.title }}</li>{% endfor %}</ul><a href='add'>Add</a>",
		  "CSS":"li { color: red; }"}`,
		`{"commands":[],"template":"<p>again</p>"}`,
	)
	f.seed(t)

	res, err := f.engine.Synthesize(ctx, model.PageRequest{TenantID: tenant, Path: "/", Method: http.MethodGet})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRendered, res.Outcome)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Body, "<li>milk</li>")
	assert.Contains(t, res.Body, `href="/`+tenant+`/add"`)
	assert.Contains(t, res.Body, "<!DOCTYPE html>")
	assert.Contains(t, res.Body, "li { color: red; }")
	assert.Contains(t, res.Body, "AI Powered todo app")

	cached, err := f.settings.LatestTemplate(ctx, tenant, "/", "")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Contains(t, cached.Template, "results.todos")

	require.Equal(t, 1, f.gateway.calls())
	assert.Equal(t, "GET /", f.gateway.users[0])
	assert.Contains(t, f.gateway.systems[0], "todos")

	_, err = f.engine.Synthesize(ctx, model.PageRequest{TenantID: tenant, Path: "/", Method: http.MethodGet})
	require.NoError(t, err)
	assert.Contains(t, f.gateway.systems[1], "results.todos", "cached template is offered to the model")
}

func TestSynthesizeRedirectShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "```json\n"+`{"commands":[
		{"name":"a","query":"INSERT INTO todos (title) VALUES ('bread')"},
		{"name":"b","query":"INSERT INTO todos (title) VALUES ('jam')","redirect":"thanks"},
		{"name":"c","query":"INSERT INTO todos (title) VALUES ('tea')","redirect":"/ignored"}
	],"template":"<p>never rendered</p>"`+"\n```")
	f.seed(t)

	res, err := f.engine.Synthesize(ctx, model.PageRequest{
		TenantID: tenant, Path: "/add", Method: http.MethodPost, Body: []byte("title=bread"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRedirect, res.Outcome)
	assert.Equal(t, http.StatusSeeOther, res.Status)
	assert.Equal(t, "/"+tenant+"/thanks", res.Location)
	assert.Empty(t, res.Body)

	assert.Equal(t, int64(4), f.count(t), "the whole batch runs before the redirect")
	assert.Equal(t, "POST /add\ntitle=bread", f.gateway.users[0])

	cached, err := f.settings.LatestTemplate(ctx, tenant, "/add", "")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestSynthesizeParseErrorPanel(t *testing.T) {
	f := newFixture(t, "I cannot do that")
	f.seed(t)

	res, err := f.engine.Synthesize(context.Background(), model.PageRequest{
		TenantID: tenant, Path: "/", Method: http.MethodGet, Fragment: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeParseError, res.Outcome)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Body, "Invalid JSON Response")
	assert.Contains(t, res.Body, "I cannot do that")
	assert.NotContains(t, res.Body, "<!DOCTYPE html>")
}

func TestSynthesizeRenderErrorPanel(t *testing.T) {
	f := newFixture(t, `{"commands":[],"template":"{% for x in %}"}`)
	f.seed(t)

	res, err := f.engine.Synthesize(context.Background(), model.PageRequest{
		TenantID: tenant, Path: "/broken", Method: http.MethodGet, Fragment: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRenderError, res.Outcome)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Body, "Template Error")
}

func TestSynthesizeEmptyTemplate(t *testing.T) {
	f := newFixture(t, `{"commands":[]}`)
	f.seed(t)

	res, err := f.engine.Synthesize(context.Background(), model.PageRequest{
		TenantID: tenant, Path: "/", Method: http.MethodGet,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRendered, res.Outcome)
	assert.Contains(t, res.Body, "<!DOCTYPE html>")
}

func TestSynthesizeRefererFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, `{"commands":[],"template":"<p>detail</p>"}`)
	f.seed(t)
	require.NoError(t, f.settings.SaveTemplate(ctx, tenant, "/list", "<table id='list-markup'></table>"))

	_, err := f.engine.Synthesize(ctx, model.PageRequest{
		TenantID: tenant, Path: "/detail", Method: http.MethodGet, RefererPath: "/list/",
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.gateway.calls())
	assert.Contains(t, f.gateway.systems[0], "list-markup")
	assert.Contains(t, f.gateway.systems[0], "the page the user came from (/list)")
}

func TestSynthesizePlaceholderTriggersInitializer(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Synthesize(context.Background(), model.PageRequest{
		TenantID: tenant, Path: "/", Method: http.MethodGet,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePlaceholder, res.Outcome)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Body, "is being generated")
	assert.Contains(t, res.Body, `http-equiv="refresh"`)
	assert.Equal(t, []string{tenant}, f.init.triggers)
	assert.Zero(t, f.gateway.calls())
}

func TestSynthesizePartiallyPopulatedTenantIsNotServed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedTables(t)
	now := time.Now()
	ok, err := f.settings.ClaimInitialization(ctx, tenant, "owner", now, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.settings.MarkInitFailed(ctx, tenant, "owner", "disk full", now, model.RetryPolicy{MaxAttempts: 3, Backoff: time.Second})
	require.NoError(t, err)

	res, err := f.engine.Synthesize(ctx, model.PageRequest{TenantID: tenant, Path: "/", Method: http.MethodGet, Fragment: true})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePlaceholder, res.Outcome)
	assert.Equal(t, []string{tenant}, f.init.triggers)
	assert.Zero(t, f.gateway.calls())
}

func TestSynthesizeFailedTenantIsNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now()
	ok, err := f.settings.ClaimInitialization(ctx, tenant, "owner", now, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.settings.MarkInitFailed(ctx, tenant, "owner", "model unavailable", now, model.RetryPolicy{MaxAttempts: 1, Backoff: time.Second})
	require.NoError(t, err)

	res, err := f.engine.Synthesize(ctx, model.PageRequest{TenantID: tenant, Path: "/", Method: http.MethodGet, Fragment: true})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePlaceholder, res.Outcome)
	assert.Contains(t, res.Body, "model unavailable")
	assert.Empty(t, f.init.triggers)
}

func TestSynthesizeUnknownTenant(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Synthesize(context.Background(), model.PageRequest{
		TenantID: "00000000-0000-0000-0000-000000000000", Path: "/", Method: http.MethodGet,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrTenantNotFound))
	assert.Equal(t, http.StatusNotFound, errx.StatusOf(err))
}

func TestSynthesizeGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	_, err := f.engine.Synthesize(context.Background(), model.PageRequest{
		TenantID: tenant, Path: "/", Method: http.MethodGet,
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errx.StatusOf(err))
}
