// Package view renders the HTML pages. Templates are embedded; each page
// defines a "content" block that layout.html wraps.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/i18n"
	"github.com/motorworks/invoicegen/internal/money"
	"github.com/shopspring/decimal"
)

//go:embed templates
var embedded embed.FS

const layout = "layout.html"

var (
	mu       sync.RWMutex
	source   fs.FS = mustSub(embedded, "templates")
	devMode  bool
	tplCache = map[string]*template.Template{}

	langResolver = func(r *http.Request) string { return i18n.DetectLanguage(r.Header.Get("Accept-Language")) }
	canResolver  func(r *http.Request, resource, action string) bool
)

func mustSub(f fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(f, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// SetDir serves templates from a directory on disk and disables caching, for
// editing templates without a rebuild. An empty dir restores the embedded set.
func SetDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	if dir == "" {
		source = mustSub(embedded, "templates")
		devMode = false
	} else {
		source = os.DirFS(dir)
		devMode = true
	}
	tplCache = map[string]*template.Template{}
}

// SetCanResolver sets the permission check behind the "can" template func.
func SetCanResolver(f func(r *http.Request, resource, action string) bool) {
	mu.Lock()
	canResolver = f
	mu.Unlock()
}

// Funcs returns the template helpers bound to r.
func Funcs(r *http.Request) template.FuncMap {
	mu.RLock()
	lang := langResolver(r)
	can := canResolver
	mu.RUnlock()
	return template.FuncMap{
		"t":    func(code string) string { return i18n.T(lang, code) },
		"lang": func() string { return lang },
		"can": func(resource, action string) bool {
			return can != nil && can(r, resource, action)
		},
		"money":    formatMoney,
		"date":     formatDate("2006-01-02"),
		"longdate": formatDate("January 02, 2006"),
		"year":     func() int { return time.Now().Year() },
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			m := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					continue
				}
				m[key] = values[i+1]
			}
			return m
		},
	}
}

func formatMoney(v any) string {
	switch d := v.(type) {
	case decimal.Decimal:
		return money.Format(d, "")
	case decimal.NullDecimal:
		return money.FormatOptional(d, "")
	case *decimal.Decimal:
		if d == nil {
			return ""
		}
		return money.Format(*d, "")
	}
	return fmt.Sprint(v)
}

func formatDate(layout string) func(any) string {
	return func(v any) string {
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return ""
			}
			return t.Format(layout)
		case *time.Time:
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format(layout)
		}
		return ""
	}
}

func load(name string) (*template.Template, error) {
	mu.RLock()
	t, ok := tplCache[name]
	src, dev := source, devMode
	mu.RUnlock()
	if ok {
		return t, nil
	}

	// Placeholder funcs make parsing possible; Render rebinds them per request.
	placeholder := Funcs(&http.Request{Header: http.Header{}})
	page, err := fs.ReadFile(src, name)
	if err != nil {
		return nil, fmt.Errorf("view: %s: %w", name, err)
	}
	if bytes.Contains(bytes.ToLower(page), []byte("<!doctype")) {
		t, err = template.New(name).Funcs(placeholder).Parse(string(page))
	} else {
		t, err = template.New(layout).Funcs(placeholder).ParseFS(src, layout, name)
	}
	if err != nil {
		return nil, err
	}
	if !dev {
		mu.Lock()
		tplCache[name] = t
		mu.Unlock()
	}
	return t, nil
}

// Render executes the named page with status 200.
func Render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) error {
	return RenderStatus(w, r, http.StatusOK, name, data)
}

// RenderStatus executes the named page. Nothing is written when the template fails.
func RenderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) error {
	base, err := load(name)
	if err != nil {
		return err
	}
	t, err := base.Clone()
	if err != nil {
		return err
	}
	t.Funcs(Funcs(r))

	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["IsLoggedIn"]; !ok {
		_, data["IsLoggedIn"] = auth.UserIDFromContext(r.Context())
	}
	if _, ok := data["Path"]; !ok {
		data["Path"] = r.URL.Path
	}
	if _, ok := data["Title"]; !ok {
		data["Title"] = strings.TrimSuffix(name[strings.LastIndex(name, "/")+1:], ".html")
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}
