// Package render turns model templates into HTML and wraps pages in the
// application shell.
package render

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"sync"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/exec"

	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

const maxCachedTemplates = 512

//go:embed template/*.html
var templateFS embed.FS

// Renderer compiles Jinja templates with gonja, caching compiled model
// templates by content hash. It is safe for concurrent use.
type Renderer struct {
	env *gonja.Environment

	mu    sync.Mutex
	cache map[[sha256.Size]byte]*exec.Template

	shell       *exec.Template
	errorPanel  *exec.Template
	placeholder *exec.Template
	landing     *exec.Template
}

func NewRenderer() *Renderer {
	cfg := config.NewConfig()
	cfg.Autoescape = true
	env := gonja.NewEnvironment(cfg, gonja.DefaultLoader)

	mustCompile := func(name string) *exec.Template {
		src, err := templateFS.ReadFile("template/" + name)
		if err != nil {
			panic(err)
		}
		return gonja.Must(env.FromString(string(src)))
	}

	return &Renderer{
		env:         env,
		cache:       map[[sha256.Size]byte]*exec.Template{},
		shell:       mustCompile("shell.html"),
		errorPanel:  mustCompile("error_panel.html"),
		placeholder: mustCompile("placeholder.html"),
		landing:     mustCompile("landing.html"),
	}
}

// Page renders a model-produced template against data.
func (r *Renderer) Page(src string, data map[string]any) (out string, err error) {
	tpl, err := r.compile(src)
	if err != nil {
		return "", fmt.Errorf("template syntax: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("template execution panicked: %v", p)
		}
	}()
	out, err = tpl.Execute(data)
	if err != nil {
		return "", fmt.Errorf("template execution: %w", err)
	}
	return out, nil
}

func (r *Renderer) compile(src string) (tpl *exec.Template, err error) {
	key := sha256.Sum256([]byte(src))

	r.mu.Lock()
	tpl, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return tpl, nil
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("template parse panicked: %v", p)
		}
	}()
	tpl, err = r.env.FromString(src)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if len(r.cache) >= maxCachedTemplates {
		r.cache = map[[sha256.Size]byte]*exec.Template{}
	}
	r.cache[key] = tpl
	r.mu.Unlock()
	return tpl, nil
}

// ShellData fills the application shell.
type ShellData struct {
	Title      string
	TenantID   string
	PagePath   string
	Body       string
	CSS        string
	Javascript string
	// Settings pre-fills the settings form; nil hides it.
	Settings *model.TenantSettings
	// PageInstructions pre-fills the per-page instructions field.
	PageInstructions string
	// Refresh reloads the page after the given number of seconds when positive.
	Refresh int
}

// Shell wraps a page body in the full HTML document.
func (r *Renderer) Shell(d ShellData) (string, error) {
	ctx := map[string]any{
		"title":             d.Title,
		"tenant":            d.TenantID,
		"page_url":          "/" + d.TenantID + d.PagePath,
		"body":              d.Body,
		"css":               d.CSS,
		"javascript":        d.Javascript,
		"page_instructions": d.PageInstructions,
		"refresh":           d.Refresh,
	}
	if d.Settings != nil {
		ctx["settings"] = map[string]any{
			"application_type": d.Settings.ApplicationType,
			"prompt_template":  d.Settings.PromptTemplate,
		}
	}
	out, err := r.shell.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("render shell: %w", err)
	}
	return out, nil
}

// ErrorPanel renders the diagnostic shown when a reply cannot be used.
func (r *Renderer) ErrorPanel(label string, cause error, raw string) string {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	out, err := r.errorPanel.Execute(map[string]any{"label": label, "error": msg, "raw": raw})
	if err != nil {
		return "<div class='error'><p>" + label + "</p></div>"
	}
	return out
}

// Placeholder renders the page shown while a tenant is being initialized.
func (r *Renderer) Placeholder(s model.TenantSettings) string {
	out, err := r.placeholder.Execute(map[string]any{
		"application_type": s.ApplicationType,
		"failed":           s.Init.Status == model.InitFailed,
		"last_error":       s.Init.LastError,
		"attempts":         s.Init.Attempts,
	})
	if err != nil {
		return "<p>Initializing...</p>"
	}
	return out
}

// Landing renders the create-application page.
func (r *Renderer) Landing(defaultType string) (string, error) {
	out, err := r.landing.Execute(map[string]any{"default_type": defaultType})
	if err != nil {
		return "", fmt.Errorf("render landing page: %w", err)
	}
	return out, nil
}
