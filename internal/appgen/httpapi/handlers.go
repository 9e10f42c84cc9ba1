package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/genapp-poc-v1/server/internal/appgen/graph/render"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
	errx "github.com/genapp-poc-v1/server/internal/core/error"
	logx "github.com/genapp-poc-v1/server/pkg/logger"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Synthesizer serves tenant pages.
type Synthesizer interface {
	Synthesize(ctx context.Context, req model.PageRequest) (*model.PageResult, error)
}

// Initializer starts a tenant's initialization in the background.
type Initializer interface {
	Trigger(ctx context.Context, tenantID string)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Engine   Synthesizer
	Settings model.SettingsRepository
	Renderer *render.Renderer
	Defaults model.AppDefaults
	// Initializer, when set, starts initialization as soon as a tenant is created.
	Initializer Initializer
}

type createRequest struct {
	ApplicationType string `json:"application_type"`
}

// Landing handles GET /
func (h *Handlers) Landing(w http.ResponseWriter, r *http.Request) {
	page, err := h.Renderer.Landing(h.Defaults.ApplicationType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, page)
}

// CreateApp handles POST /
func (h *Handlers) CreateApp(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var appType string
	if isJSON(r) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		appType = req.ApplicationType
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		appType = r.PostForm.Get("application_type")
	}
	appType = strings.TrimSpace(appType)
	if appType == "" {
		appType = h.Defaults.ApplicationType
	}

	tenantID := uuid.NewString()
	if _, err := h.Settings.CreateTenant(r.Context(), tenantID, appType); err != nil {
		h.writeError(w, r, err)
		return
	}
	logx.Info().Str("tenant_id", tenantID).Str("application_type", appType).Msg("Application created")

	if h.Initializer != nil {
		h.Initializer.Trigger(r.Context(), tenantID)
	}
	seeOther(w, "/"+tenantID+"/")
}

// UpdateSettings handles POST /settings
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	tenantID, pagePath, ok := splitTenantPath(r.PostForm.Get("path"))
	if !ok {
		http.Error(w, "path must point into an application", http.StatusBadRequest)
		return
	}

	u := model.SettingsUpdate{
		TenantID:         tenantID,
		PagePath:         pagePath,
		ApplicationType:  strings.TrimSpace(r.PostForm.Get("application_type")),
		PromptTemplate:   optionalField(r.PostForm, "prompt_template"),
		PageInstructions: optionalField(r.PostForm, "page_instructions"),
		ClearTemplates:   r.PostForm.Get("clear_templates") != "",
	}
	if err := h.Settings.UpdateSettings(r.Context(), u); err != nil {
		h.writeError(w, r, err)
		return
	}
	logx.Info().
		Str("tenant_id", tenantID).
		Str("path", pagePath).
		Bool("clear_templates", u.ClearTemplates).
		Msg("Settings updated")

	target := "/" + tenantID + pagePath
	if pagePath == "/" {
		target = "/" + tenantID + "/"
	}
	seeOther(w, target)
}

// Page handles every method on /{tenant}/*
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	if !validTenantID(tenantID) {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req := model.PageRequest{
		TenantID:    tenantID,
		Path:        "/" + chi.URLParam(r, "*"),
		Method:      r.Method,
		Body:        body,
		Query:       flatten(r.URL.Query()),
		Form:        formValues(r, body),
		RefererPath: refererPath(r.Header.Get("Referer"), tenantID),
		Fragment:    isFragment(r),
	}

	res, err := h.Engine.Synthesize(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if res.Status == http.StatusSeeOther || res.Location != "" {
		seeOther(w, res.Location)
		return
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeHTML(w, status, res.Body)
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.StatusOf(err)
	ev := logx.Warn()
	if status >= http.StatusInternalServerError {
		ev = logx.Error()
	}
	ev.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	http.Error(w, errx.MessageOf(err), status)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		logx.Warn().Err(err).Msg("Error writing response")
	}
}

func seeOther(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusSeeOther)
}

func validTenantID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// splitTenantPath splits "/{tenant}/rest" into the tenant id and "/rest".
func splitTenantPath(p string) (tenantID, pagePath string, ok bool) {
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	p = strings.TrimPrefix(strings.TrimSpace(p), "/")
	tenantID, rest, _ := strings.Cut(p, "/")
	if !validTenantID(tenantID) {
		return "", "", false
	}
	return tenantID, model.NormalizePagePath(rest), true
}

// refererPath returns the page path of a Referer pointing into the tenant, on any host.
func refererPath(referer, tenantID string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}
	prefix := "/" + tenantID
	if u.Path != prefix && !strings.HasPrefix(u.Path, prefix+"/") {
		return ""
	}
	return model.NormalizePagePath(strings.TrimPrefix(u.Path, prefix))
}

func isFragment(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("HX-Request"), "true") {
		return true
	}
	v := r.URL.Query().Get("fragment")
	return v == "1" || strings.EqualFold(v, "true")
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func formValues(r *http.Request, body []byte) map[string]string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/x-www-form-urlencoded" {
		return map[string]string{}
	}
	vals, err := url.ParseQuery(string(body))
	if err != nil {
		logx.Warn().Err(err).Str("path", r.URL.Path).Msg("Error parsing form body")
		return map[string]string{}
	}
	return flatten(vals)
}

func flatten(vals url.Values) map[string]string {
	out := make(map[string]string, len(vals))
	for k, v := range vals {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// optionalField returns nil when the form did not carry key at all.
func optionalField(form url.Values, key string) *string {
	if _, ok := form[key]; !ok {
		return nil
	}
	v := form.Get(key)
	return &v
}
