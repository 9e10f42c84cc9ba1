package render

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

	linkAttrs = map[string]struct{}{
		"href":       {},
		"action":     {},
		"formaction": {},
		"hx-get":     {},
		"hx-post":    {},
		"hx-put":     {},
		"hx-delete":  {},
		"hx-patch":   {},
	}
)

// RewriteLinks moves every relative link in doc under /{tenantID}/. Absolute
// URLs, scheme links (mailto:, tel:, javascript:), fragments and links already
// under the tenant prefix are left alone, so the rewrite is idempotent.
// Untouched markup is copied byte for byte.
func RewriteLinks(doc, tenantID string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var b strings.Builder
	b.Grow(len(doc) + 64)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				// unparseable tail: keep it verbatim
				b.Write(z.Raw())
			}
			return b.String()
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			tok := z.Token()
			changed := false
			for i, a := range tok.Attr {
				if _, ok := linkAttrs[a.Key]; !ok || a.Namespace != "" {
					continue
				}
				if v, ok := tenantURL(a.Val, tenantID); ok {
					tok.Attr[i].Val = v
					changed = true
				}
			}
			if changed {
				b.WriteString(tok.String())
			} else {
				b.Write(raw)
			}
		default:
			b.Write(z.Raw())
		}
	}
}

// ResolveRedirect maps a command's redirect target into the tenant's space:
// "thanks" and "/thanks" both become "/{tenant}/thanks".
func ResolveRedirect(target, tenantID string) string {
	target = strings.TrimSpace(target)
	if v, ok := tenantURL(target, tenantID); ok {
		return v
	}
	if target == "" {
		return "/" + tenantID + "/"
	}
	return target
}

// tenantURL returns the tenant-prefixed form of link and true when it must change.
func tenantURL(link, tenantID string) (string, bool) {
	v := strings.TrimSpace(link)
	if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "//") || schemeRe.MatchString(v) {
		return "", false
	}
	prefix := "/" + tenantID
	if v == prefix || strings.HasPrefix(v, prefix+"/") || strings.HasPrefix(v, prefix+"?") || strings.HasPrefix(v, prefix+"#") {
		return "", false
	}
	return prefix + "/" + cleanRelative(v), true
}

// cleanRelative drops any run of leading "./", "../" and "/" segments.
func cleanRelative(v string) string {
	for {
		switch {
		case strings.HasPrefix(v, "./"):
			v = v[2:]
		case strings.HasPrefix(v, "../"):
			v = v[3:]
		case strings.HasPrefix(v, "/"):
			v = v[1:]
		case v == "." || v == "..":
			return ""
		default:
			return v
		}
	}
}
